// Package common содержит общие утилиты, используемые во всём проекте.
// Сюда входят: проверка идентификаторов и работа с календарными датами.
package common

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// GlobalTenant — псевдо-сервер с настройками «по умолчанию для всех».
const GlobalTenant = "global"

// Идентификаторы хранятся в VARCHAR(20): снежинки Discord, chat id и т.п.
var idPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,20}$`)

// ValidateID проверяет идентификатор. name попадает в текст ошибки.
func ValidateID(name, id string) error {
	if !idPattern.MatchString(id) {
		return fmt.Errorf("%w: %s=%q", ErrInvalidID, name, id)
	}
	return nil
}

// ValidateKey проверяет пару (пользователь, сервер) — ключ почти всех таблиц.
func ValidateKey(userID, tenantID string) error {
	if err := ValidateID("user_id", userID); err != nil {
		return err
	}
	return ValidateID("server_id", tenantID)
}

// ValidateReason проверяет, что причина не пустая и влезает в TEXT разумно.
func ValidateReason(reason string) error {
	if strings.TrimSpace(reason) == "" {
		return ErrEmptyReason
	}
	return nil
}

// DateIn возвращает календарную дату момента t в часовом поясе loc.
// Результат — полночь в UTC, чтобы сравнения и запись в DATE не зависели от пояса.
//
// Пример:
//
//	DateIn(2024-01-01T23:30:00-05:00, UTC) → 2024-01-02
func DateIn(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	l := t.In(loc)
	return time.Date(l.Year(), l.Month(), l.Day(), 0, 0, 0, 0, time.UTC)
}

// PrevDay возвращает предыдущую календарную дату.
func PrevDay(d time.Time) time.Time {
	return d.AddDate(0, 0, -1)
}

// SameDate сравнивает только дату (год, месяц, день).
func SameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// FormatDate форматирует дату в ISO-виде для логов и CLI.
func FormatDate(d time.Time) string {
	return d.Format("2006-01-02")
}
