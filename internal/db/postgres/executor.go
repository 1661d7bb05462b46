// Package postgres — executor.go реализует слой выполнения:
// единственную точку контакта остального кода с базой.
//
// Каждая единица работы выполняется в одной транзакции на соединении из пула.
// Временные ошибки повторяются с экспоненциальной задержкой, нарушение
// ожидаемого UNIQUE-ключа превращается в результат Conflicted,
// любое другое нарушение ограничений — фатальная ошибка.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/rewards-ledger/internal/common"
	"serotonyl.ru/rewards-ledger/internal/config"
)

// Outcome — итог выполнения единицы работы.
type Outcome int

const (
	// Committed — транзакция зафиксирована.
	Committed Outcome = iota
	// Conflicted — сработал ожидаемый ключ идемпотентности, всё откатано.
	Conflicted
)

func (o Outcome) String() string {
	if o == Conflicted {
		return "conflicted"
	}
	return "committed"
}

// Unit — единица работы: набор запросов, выполняемых атомарно.
type Unit struct {
	// Name попадает в логи и тексты ошибок
	Name string
	// IdempotencyKeys — имена UNIQUE-ограничений, конфликт по которым
	// означает «уже сделано», а не ошибку
	IdempotencyKeys []string
	// Fn выполняет запросы внутри транзакции. Может вызываться несколько раз.
	Fn func(ctx context.Context, tx pgx.Tx) error
}

// RetryPolicy — параметры повторов.
type RetryPolicy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	// AcquireTimeout ограничивает ожидание свободного соединения в пуле
	AcquireTimeout time.Duration
}

// PolicyFromConfig собирает RetryPolicy из конфигурации процесса.
func PolicyFromConfig(cfg *config.Config) RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     cfg.DBRetryMaxAttempts,
		InitialInterval: cfg.DBRetryInitialInterval,
		MaxInterval:     cfg.DBRetryMaxInterval,
		AcquireTimeout:  cfg.DBAcquireTimeout,
	}
}

// Executor выполняет единицы работы с повторами.
type Executor struct {
	pool   Pool
	policy RetryPolicy
}

// NewExecutor создаёт слой выполнения поверх пула.
func NewExecutor(pool Pool, policy RetryPolicy) *Executor {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	if policy.InitialInterval <= 0 {
		policy.InitialInterval = 100 * time.Millisecond
	}
	if policy.MaxInterval < policy.InitialInterval {
		policy.MaxInterval = policy.InitialInterval
	}
	return &Executor{pool: pool, policy: policy}
}

// Pool возвращает пул (для статистики и применения схемы).
func (e *Executor) Pool() Pool {
	return e.pool
}

// Execute выполняет единицу работы в транзакции.
//
// Возвращает:
//   - Committed, nil — всё записано
//   - Conflicted, nil — ожидаемый конфликт идемпотентности, ничего не записано
//   - error — ошибка; частичных изменений нет
func (e *Executor) Execute(ctx context.Context, u Unit) (Outcome, error) {
	outcome := Committed
	err := e.retry(ctx, u.Name, func() error {
		err := e.runTx(ctx, u)
		if err == nil {
			return nil
		}
		if constraint, ok := UniqueViolation(err); ok && contains(u.IdempotencyKeys, constraint) {
			outcome = Conflicted
			return nil
		}
		return err
	})
	if err != nil {
		return Committed, err
	}
	return outcome, nil
}

// snapshotTx — только чтение, один снимок базы на всю транзакцию.
var snapshotTx = pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly}

// Read выполняет чтение вне транзакции с теми же правилами повторов.
func (e *Executor) Read(ctx context.Context, name string, fn func(ctx context.Context, q DBTX) error) error {
	return e.retry(ctx, name, func() error {
		q, release, err := e.conn(ctx)
		if err != nil {
			return err
		}
		defer release()
		return fn(ctx, q)
	})
}

// Snapshot выполняет несколько чтений в транзакции REPEATABLE READ READ ONLY:
// все запросы fn видят одно и то же состояние базы.
func (e *Executor) Snapshot(ctx context.Context, name string, fn func(ctx context.Context, q DBTX) error) error {
	return e.retry(ctx, name, func() error {
		tx, err := e.begin(ctx, snapshotTx)
		if err != nil {
			return fmt.Errorf("ошибка начала транзакции: %w", err)
		}
		finishCtx := context.WithoutCancel(ctx)
		defer tx.Rollback(finishCtx)

		if err := fn(ctx, tx); err != nil {
			return err
		}
		return tx.Commit(finishCtx)
	})
}

// runTx — одна попытка: begin → fn → commit.
func (e *Executor) runTx(ctx context.Context, u Unit) error {
	tx, err := e.begin(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	// Откат и фиксация не должны обрываться отменой контекста вызывающего:
	// начатая фиксация доходит до конца, иначе откатывается целиком.
	finishCtx := context.WithoutCancel(ctx)
	defer tx.Rollback(finishCtx)

	if err := u.Fn(ctx, tx); err != nil {
		return err
	}

	if err := tx.Commit(finishCtx); err != nil {
		// Ответ сервера на COMMIT (40001, 40P01) означает, что транзакция
		// откатана: такую ошибку классифицируем как обычно.
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			return fmt.Errorf("ошибка фиксации транзакции: %w", err)
		}
		// Без ответа повторять можно только если до сервера ничего не ушло,
		// иначе неизвестно, применилась ли транзакция.
		if IsTransient(err) && !safeToRetry(err) {
			return backoff.Permanent(fmt.Errorf("%w: %w", ErrCommitUncertain, err))
		}
		return fmt.Errorf("ошибка фиксации транзакции: %w", err)
	}
	return nil
}

// begin получает соединение с ограничением по времени ожидания.
func (e *Executor) begin(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error) {
	if e.policy.AcquireTimeout <= 0 {
		return e.pool.BeginTx(ctx, opts)
	}
	acquireCtx, cancel := context.WithTimeout(ctx, e.policy.AcquireTimeout)
	defer cancel()

	tx, err := e.pool.BeginTx(acquireCtx, opts)
	if err != nil {
		return nil, acquireError(ctx, acquireCtx, err)
	}
	return tx, nil
}

// conn выдаёт соединение для чтения. У настоящего пула ожидание
// свободного соединения ограничено тем же AcquireTimeout, что и в begin.
func (e *Executor) conn(ctx context.Context) (DBTX, func(), error) {
	pp, ok := e.pool.(*pgxpool.Pool)
	if !ok || e.policy.AcquireTimeout <= 0 {
		return e.pool, func() {}, nil
	}
	acquireCtx, cancel := context.WithTimeout(ctx, e.policy.AcquireTimeout)
	defer cancel()

	c, err := pp.Acquire(acquireCtx)
	if err != nil {
		return nil, nil, acquireError(ctx, acquireCtx, err)
	}
	return c, c.Release, nil
}

// acquireError отличает истечение нашего таймаута от отмены вызывающим.
// Истёк наш таймаут — пул перегружен, ошибка временная.
func acquireError(ctx, acquireCtx context.Context, err error) error {
	if ctx.Err() == nil && errors.Is(acquireCtx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", errAcquireTimeout, err)
	}
	return err
}

// retry повторяет op при временных ошибках.
func (e *Executor) retry(ctx context.Context, name string, op func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = e.policy.InitialInterval
	b.MaxInterval = e.policy.MaxInterval
	b.MaxElapsedTime = 0 // ограничиваем числом попыток, а не временем

	attempt := 0
	var lastErr error
	err := backoff.RetryNotify(func() error {
		attempt++
		err := op()
		if err == nil {
			return nil
		}
		lastErr = err
		if !IsTransient(err) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(backoff.WithMaxRetries(b, uint64(e.policy.MaxAttempts-1)), ctx),
		func(err error, wait time.Duration) {
			log.WithError(err).WithFields(log.Fields{
				"operation": name,
				"attempt":   attempt,
				"max":       e.policy.MaxAttempts,
				"wait":      wait,
			}).Warn("Временная ошибка БД, повторяем")
		})
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, ErrCommitUncertain):
		log.WithError(err).WithField("operation", name).Error("Соединение оборвалось во время фиксации")
		return fmt.Errorf("%s: %w", name, err)
	case IsTransient(err):
		log.WithError(err).WithFields(log.Fields{
			"operation": name,
			"attempts":  attempt,
		}).Error("Ошибка БД не прошла после всех повторов")
		return fmt.Errorf("%s: %w: %w", name, common.ErrRetriesExhausted, err)
	case IsConstraintViolation(err):
		log.WithError(err).WithField("operation", name).Error("Неожиданное нарушение ограничения")
		return fmt.Errorf("%s: %w: %w", name, common.ErrInvariantViolation, err)
	case errors.Is(err, common.ErrInvariantViolation):
		log.WithError(err).WithField("operation", name).Error("Нарушение инварианта, операция отменена")
		return err
	}
	// Контекст мог закончиться во время ожидания между попытками
	if ctx.Err() != nil && lastErr != nil && lastErr != err {
		return fmt.Errorf("%s: %w (последняя ошибка: %v)", name, err, lastErr)
	}
	return err
}

func safeToRetry(err error) bool {
	var s interface{ SafeToRetry() bool }
	if errors.As(err, &s) {
		return s.SafeToRetry()
	}
	return false
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
