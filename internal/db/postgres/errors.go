// Package postgres — errors.go классифицирует ошибки PostgreSQL:
// временные (повторяем), нарушения ограничений (идемпотентность или баг)
// и всё остальное (возвращаем сразу).
package postgres

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// Коды SQLSTATE, которые нас интересуют.
const (
	codeUniqueViolation      = "23505"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeTooManyConnections   = "53300"
	codeAdminShutdown        = "57P01"
	codeCrashShutdown        = "57P02"
	codeCannotConnectNow     = "57P03"
)

// ErrCommitUncertain — соединение оборвалось во время COMMIT, и неизвестно,
// применилась ли транзакция. Такую ошибку не повторяем.
var ErrCommitUncertain = errors.New("результат фиксации транзакции неизвестен")

// errAcquireTimeout помечает истечение нашего таймаута на получение соединения.
var errAcquireTimeout = errors.New("таймаут получения соединения из пула")

// IsTransient сообщает, имеет ли смысл повторить операцию.
// Сюда входят: обрыв соединения, конфликт сериализации, дедлок,
// перегрузка сервера и таймаут ожидания соединения в пуле.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, errAcquireTimeout) {
		return true
	}
	// Отмена самим вызывающим — не повод повторять
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeSerializationFailure, codeDeadlockDetected, codeTooManyConnections,
			codeAdminShutdown, codeCrashShutdown, codeCannotConnectNow:
			return true
		}
		// Класс 08 — connection exception
		return strings.HasPrefix(pgErr.Code, "08")
	}

	if pgconn.SafeToRetry(err) {
		return true
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var connectErr *pgconn.ConnectError
	return errors.As(err, &connectErr)
}

// UniqueViolation возвращает имя нарушенного UNIQUE-ограничения.
func UniqueViolation(err error) (constraint string, ok bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == codeUniqueViolation {
		return pgErr.ConstraintName, true
	}
	return "", false
}

// IsConstraintViolation — любой класс 23 (integrity constraint violation).
func IsConstraintViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && strings.HasPrefix(pgErr.Code, "23")
}
