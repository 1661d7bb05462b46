// Package tenantcfg хранит настройки серверов в виде ключ → значение
// и собирает из них типизированные Settings.
// models.go описывает поддерживаемые ключи и их разбор.
package tenantcfg

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	"serotonyl.ru/rewards-ledger/internal/common"
	"serotonyl.ru/rewards-ledger/internal/config"
)

// Ключи конфигурации сервера
const (
	KeyCheckinBasePoints   = "checkin_base_points"
	KeyCheckinWeeklyBonus  = "checkin_weekly_bonus"
	KeyCheckinMaxPoints    = "checkin_max_points"
	KeyActivityWindow      = "activity_window"
	KeyActivityThreshold   = "activity_threshold"
	KeyActivityBonusPoints = "activity_bonus_points"
	KeyMessagePoints       = "message_points"
	KeyMessageDailyLimit   = "message_daily_limit"
	KeySocialLikePoints    = "social_like_points"
	KeySocialRetweetPoints = "social_retweet_points"
	KeySocialReplyPoints   = "social_reply_points"
	KeySocialTripleBonus   = "social_triple_bonus"
	KeyAutoDetectUsername  = "twitter_auto_detect_username"
	KeyAutoDetectUserID    = "twitter_auto_detect_user_id"
)

// Settings — типизированные настройки одного сервера.
type Settings struct {
	CheckinBasePoints   int           `json:"checkin_base_points"`
	CheckinWeeklyBonus  int           `json:"checkin_weekly_bonus"`
	CheckinMaxPoints    int           `json:"checkin_max_points"`
	ActivityWindow      time.Duration `json:"activity_window"`
	ActivityThreshold   int           `json:"activity_threshold"`
	ActivityBonusPoints int           `json:"activity_bonus_points"`
	MessagePoints       int           `json:"message_points"`
	MessageDailyLimit   int           `json:"message_daily_limit"`
	SocialLikePoints    int           `json:"social_like_points"`
	SocialRetweetPoints int           `json:"social_retweet_points"`
	SocialReplyPoints   int           `json:"social_reply_points"`
	SocialTripleBonus   int           `json:"social_triple_bonus"`

	// Аккаунт, за постами которого следит автоопределение целевых постов
	AutoDetectUsername string `json:"twitter_auto_detect_username,omitempty"`
	AutoDetectUserID   string `json:"twitter_auto_detect_user_id,omitempty"`
}

// Defaults собирает настройки по умолчанию из конфигурации процесса.
func Defaults(cfg *config.Config) Settings {
	return Settings{
		CheckinBasePoints:   cfg.CheckinBasePoints,
		CheckinWeeklyBonus:  cfg.CheckinWeeklyBonus,
		CheckinMaxPoints:    cfg.CheckinMaxPoints,
		ActivityWindow:      cfg.ActivityWindow,
		ActivityThreshold:   cfg.ActivityThreshold,
		ActivityBonusPoints: cfg.ActivityBonusPoints,
		MessagePoints:       cfg.MessagePoints,
		MessageDailyLimit:   cfg.MessageDailyLimit,
		SocialLikePoints:    cfg.SocialLikePoints,
		SocialRetweetPoints: cfg.SocialRetweetPoints,
		SocialReplyPoints:   cfg.SocialReplyPoints,
		SocialTripleBonus:   cfg.SocialTripleBonus,
	}
}

// Entry — сырая запись server_config.
type Entry struct {
	TenantID  string    `db:"server_id" json:"server_id"`
	Key       string    `db:"config_key" json:"key"`
	Value     string    `db:"config_value" json:"value"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// applier разбирает значение и записывает его в Settings.
type applier func(s *Settings, raw string) error

var keys = map[string]applier{
	KeyCheckinBasePoints:   intField(func(s *Settings) *int { return &s.CheckinBasePoints }, 0),
	KeyCheckinWeeklyBonus:  intField(func(s *Settings) *int { return &s.CheckinWeeklyBonus }, 0),
	KeyCheckinMaxPoints:    intField(func(s *Settings) *int { return &s.CheckinMaxPoints }, 0),
	KeyActivityThreshold:   intField(func(s *Settings) *int { return &s.ActivityThreshold }, 1),
	KeyActivityBonusPoints: intField(func(s *Settings) *int { return &s.ActivityBonusPoints }, 0),
	KeyMessagePoints:       intField(func(s *Settings) *int { return &s.MessagePoints }, 0),
	KeyMessageDailyLimit:   intField(func(s *Settings) *int { return &s.MessageDailyLimit }, 0),
	KeySocialLikePoints:    intField(func(s *Settings) *int { return &s.SocialLikePoints }, 0),
	KeySocialRetweetPoints: intField(func(s *Settings) *int { return &s.SocialRetweetPoints }, 0),
	KeySocialReplyPoints:   intField(func(s *Settings) *int { return &s.SocialReplyPoints }, 0),
	KeySocialTripleBonus:   intField(func(s *Settings) *int { return &s.SocialTripleBonus }, 0),
	KeyActivityWindow: func(s *Settings, raw string) error {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			return fmt.Errorf("%w: %s=%q (ожидается длительность > 0, например 6h)",
				common.ErrInvalidConfigValue, KeyActivityWindow, raw)
		}
		s.ActivityWindow = d
		return nil
	},
	KeyAutoDetectUsername: func(s *Settings, raw string) error {
		s.AutoDetectUsername = raw
		return nil
	},
	KeyAutoDetectUserID: func(s *Settings, raw string) error {
		if err := common.ValidateID(KeyAutoDetectUserID, raw); err != nil {
			return fmt.Errorf("%w: %w", common.ErrInvalidConfigValue, err)
		}
		s.AutoDetectUserID = raw
		return nil
	},
}

// intField — целое значение не меньше lo.
func intField(field func(s *Settings) *int, lo int) applier {
	return func(s *Settings, raw string) error {
		n, err := strconv.Atoi(raw)
		if err != nil || n < lo || n > 100000 {
			return fmt.Errorf("%w: %q (ожидается целое от %d до 100000)",
				common.ErrInvalidConfigValue, raw, lo)
		}
		*field(s) = n
		return nil
	}
}

// Keys возвращает список поддерживаемых ключей по алфавиту.
func Keys() []string {
	out := make([]string, 0, len(keys))
	for k := range keys {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// ValidateValue проверяет пару ключ/значение, ничего не сохраняя.
func ValidateValue(key, value string) error {
	apply, ok := keys[key]
	if !ok {
		return fmt.Errorf("%w: %q", common.ErrUnknownConfigKey, key)
	}
	var scratch Settings
	return apply(&scratch, value)
}

// Apply накладывает записи поверх базовых настроек.
// Неизвестные ключи пропускаются, некорректные значения — ошибка.
func Apply(base Settings, entries []Entry) (*Settings, []string, error) {
	s := base
	var skipped []string
	for _, e := range entries {
		apply, ok := keys[e.Key]
		if !ok {
			skipped = append(skipped, e.Key)
			continue
		}
		if err := apply(&s, e.Value); err != nil {
			return nil, skipped, fmt.Errorf("сервер %s: %w", e.TenantID, err)
		}
	}
	if s.CheckinMaxPoints < s.CheckinBasePoints {
		return nil, skipped, fmt.Errorf("%w: %s (%d) меньше %s (%d)", common.ErrInvalidConfigValue,
			KeyCheckinMaxPoints, s.CheckinMaxPoints, KeyCheckinBasePoints, s.CheckinBasePoints)
	}
	return &s, skipped, nil
}
