// Package jobs управляет фоновыми задачами (cron).
// scheduler.go настраивает расписание: очистка просроченных рукопожатий OAuth,
// удаление старых сообщений и ночная сверка балансов с журналом аудита.
package jobs

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/rewards-ledger/internal/config"
	"serotonyl.ru/rewards-ledger/internal/features/points"
)

// HandshakeSweeper удаляет просроченные рукопожатия.
type HandshakeSweeper interface {
	Sweep(ctx context.Context) (int64, error)
}

// MessageCleaner удаляет сообщения старше срока хранения.
type MessageCleaner interface {
	Cleanup(ctx context.Context, now time.Time) (int64, error)
}

// Reconciler сверяет все балансы.
type Reconciler interface {
	ReconcileAll(ctx context.Context) ([]*points.Reconciliation, error)
}

// Scheduler управляет фоновыми задачами.
type Scheduler struct {
	cron       *cron.Cron
	loc        *time.Location
	sweeper    HandshakeSweeper
	cleaner    MessageCleaner
	reconciler Reconciler
	now        func() time.Time
}

// NewScheduler создаёт планировщик в часовом поясе loc.
// Задача, не успевшая завершиться к следующему запуску, пропускает его.
func NewScheduler(loc *time.Location, sweeper HandshakeSweeper, cleaner MessageCleaner, reconciler Reconciler) *Scheduler {
	c := cron.New(
		cron.WithLocation(loc),
		cron.WithChain(cron.SkipIfStillRunning(cron.PrintfLogger(log.StandardLogger()))),
	)
	return &Scheduler{
		cron:       c,
		loc:        loc,
		sweeper:    sweeper,
		cleaner:    cleaner,
		reconciler: reconciler,
		now:        time.Now,
	}
}

// Register добавляет задачи по расписанию из конфигурации.
func (s *Scheduler) Register(ctx context.Context, cfg *config.Config) error {
	jobs := []struct {
		name string
		spec string
		run  func(ctx context.Context) error
	}{
		{"handshake_sweep", cfg.JobsHandshakeSweep, s.sweepHandshakes},
		{"message_cleanup", cfg.JobsMessageCleanup, s.cleanupMessages},
		{"reconcile", cfg.JobsReconcile, s.reconcile},
	}
	for _, j := range jobs {
		if _, err := s.cron.AddFunc(j.spec, s.wrap(ctx, j.name, j.run)); err != nil {
			return fmt.Errorf("задача %s: некорректное расписание %q: %w", j.name, j.spec, err)
		}
	}
	return nil
}

// Start запускает планировщик.
func (s *Scheduler) Start() {
	s.cron.Start()
	log.WithField("timezone", s.loc.String()).Info("Планировщик задач запущен")
}

// Stop останавливает планировщик и ждёт завершения запущенных задач.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	log.Info("Планировщик задач остановлен")
}

// wrap добавляет к задаче логирование и восстановление после паники.
func (s *Scheduler) wrap(ctx context.Context, name string, run func(ctx context.Context) error) func() {
	return func() {
		defer func() {
			if r := recover(); r != nil {
				log.WithFields(log.Fields{
					"component": "panic_recovery",
					"job":       name,
					"panic":     fmt.Sprintf("%v", r),
					"stack":     string(debug.Stack()),
				}).Error("[CRON] ПАНИКА в задаче — восстановлено")
			}
		}()
		if ctx.Err() != nil {
			return
		}

		start := time.Now()
		if err := run(ctx); err != nil {
			log.WithError(err).WithField("job", name).Error("[CRON] Ошибка задачи")
			return
		}
		log.WithFields(log.Fields{
			"job":      name,
			"duration": time.Since(start),
		}).Debug("[CRON] Задача выполнена")
	}
}

func (s *Scheduler) sweepHandshakes(ctx context.Context) error {
	_, err := s.sweeper.Sweep(ctx)
	return err
}

func (s *Scheduler) cleanupMessages(ctx context.Context) error {
	_, err := s.cleaner.Cleanup(ctx, s.now())
	return err
}

// reconcile превращает найденные расхождения в ошибку задачи.
// Подробности по каждому балансу уже залогированы сверкой; исправлений нет.
func (s *Scheduler) reconcile(ctx context.Context) error {
	bad, err := s.reconciler.ReconcileAll(ctx)
	if err != nil {
		return err
	}
	if len(bad) > 0 {
		return fmt.Errorf("расхождения в %d балансах", len(bad))
	}
	return nil
}
