// Package checkin — rewards.go считает стрик и награду за отметку.
package checkin

import (
	"time"

	"serotonyl.ru/rewards-ledger/internal/common"
	"serotonyl.ru/rewards-ledger/internal/features/tenantcfg"
)

// WeeklyBonusEvery — каждый седьмой день серии даёт бонус.
const WeeklyBonusEvery = 7

// NextStreak вычисляет стрик для отметки в день today.
// prev — последняя отметка строго до today (nil, если её нет).
//
//	вчера была отметка со стриком 4 → 5
//	последняя отметка позавчера     → 1
//	отметок не было                 → 1
func NextStreak(prev *Record, today time.Time) int {
	if prev != nil && common.SameDate(prev.Date, common.PrevDay(today)) {
		return prev.Streak + 1
	}
	return 1
}

// Reward вычисляет награду за день серии streak.
//
// Таблица наград (по умолчанию):
//
//	Обычный день: 10 баллов
//	День 7, 14, 21...: 10 + 5 баллов
//	Не больше CheckinMaxPoints
func Reward(streak int, s *tenantcfg.Settings) int {
	points := s.CheckinBasePoints
	if streak > 0 && streak%WeeklyBonusEvery == 0 {
		points += s.CheckinWeeklyBonus
	}
	if points > s.CheckinMaxPoints {
		points = s.CheckinMaxPoints
	}
	return points
}
