package checkin

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"serotonyl.ru/rewards-ledger/internal/features/tenantcfg"
)

func day(s string) time.Time {
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestNextStreak(t *testing.T) {
	today := day("2024-01-03")

	assert.Equal(t, 1, NextStreak(nil, today))
	assert.Equal(t, 3, NextStreak(&Record{Date: day("2024-01-02"), Streak: 2}, today))
	assert.Equal(t, 1, NextStreak(&Record{Date: day("2024-01-01"), Streak: 9}, today), "пропуск дня сбрасывает стрик")
}

func TestNextStreak_AcrossMonthBoundary(t *testing.T) {
	assert.Equal(t, 6, NextStreak(&Record{Date: day("2024-02-29"), Streak: 5}, day("2024-03-01")))
}

func TestReward(t *testing.T) {
	s := &tenantcfg.Settings{CheckinBasePoints: 10, CheckinWeeklyBonus: 5, CheckinMaxPoints: 100}

	assert.Equal(t, 10, Reward(1, s))
	assert.Equal(t, 10, Reward(6, s))
	assert.Equal(t, 15, Reward(7, s))
	assert.Equal(t, 10, Reward(8, s))
	assert.Equal(t, 15, Reward(14, s))

	capped := &tenantcfg.Settings{CheckinBasePoints: 10, CheckinWeeklyBonus: 50, CheckinMaxPoints: 40}
	assert.Equal(t, 40, Reward(7, capped))
}
