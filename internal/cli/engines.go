package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"serotonyl.ru/rewards-ledger/internal/common"
	"serotonyl.ru/rewards-ledger/internal/features/checkin"
)

func newCheckinCommand(opts *RootOptions) *cobra.Command {
	var userID, tenantID, at string

	cmd := &cobra.Command{
		Use:   "checkin",
		Short: "Ежедневная отметка за пользователя",
		Long: `Выполняет отметку так же, как это делает бот.
--at позволяет указать момент (RFC 3339) для восстановления пропущенных событий.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			when, err := parseMoment(at)
			if err != nil {
				return err
			}
			p := &printer{format: opts.Format, w: cmd.OutOrStdout()}
			return withEnv(cmd, opts, func(ctx context.Context, env *Env) error {
				res, err := env.Services.Checkin.CheckIn(ctx, userID, tenantID, when)
				if err != nil {
					return err
				}
				data := map[string]any{
					"status":        res.Status,
					"date":          common.FormatDate(res.Date),
					"streak":        res.Streak,
					"points_earned": res.PointsEarned,
					"total_points":  res.TotalPoints,
				}
				return p.ok(data, func(w io.Writer) {
					if res.Status == checkin.AlreadyCheckedIn {
						fmt.Fprintf(w, "Уже отмечался %s (серия %s), баланс %s\n",
							common.FormatDate(res.Date), common.FormatDays(res.Streak), common.FormatPoints(res.TotalPoints))
						return
					}
					fmt.Fprintf(w, "Отметка %s: %s, серия %s, баланс %s\n",
						common.FormatDate(res.Date), common.FormatDelta(res.PointsEarned),
						common.FormatDays(res.Streak), common.FormatPoints(res.TotalPoints))
				})
			})
		},
	}
	userServerFlags(cmd, &userID, &tenantID)
	cmd.Flags().StringVar(&at, "at", "", "момент отметки в RFC 3339 (по умолчанию сейчас)")
	return cmd
}

func newActivityCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "activity",
		Short: "Награды за активность в чате",
	}

	var userID, tenantID string
	stats := &cobra.Command{
		Use:   "stats",
		Short: "Сообщения в текущем окне и награда за сегодня",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p := &printer{format: opts.Format, w: cmd.OutOrStdout()}
			return withEnv(cmd, opts, func(ctx context.Context, env *Env) error {
				st, err := env.Services.Activity.Stats(ctx, userID, tenantID, time.Now())
				if err != nil {
					return err
				}
				return p.ok(st, func(w io.Writer) {
					fmt.Fprintf(w, "Сообщений за окно: %d из %d (осталось %s)\n",
						st.MessageCount, st.Threshold, common.FormatMessages(st.Remaining))
					if st.TodayReward != nil {
						fmt.Fprintf(w, "Награда за сегодня: %s в %s\n",
							common.FormatDelta(st.TodayReward.PointsEarned), st.TodayReward.RewardTime.Format("15:04:05"))
					}
				})
			})
		},
	}
	userServerFlags(stats, &userID, &tenantID)

	cleanup := &cobra.Command{
		Use:   "cleanup",
		Short: "Удалить сообщения старше срока хранения",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p := &printer{format: opts.Format, w: cmd.OutOrStdout()}
			return withEnv(cmd, opts, func(ctx context.Context, env *Env) error {
				n, err := env.Services.Activity.Cleanup(ctx, time.Now())
				if err != nil {
					return err
				}
				return p.ok(map[string]int64{"deleted": n}, func(w io.Writer) {
					fmt.Fprintf(w, "Удалено сообщений: %d\n", n)
				})
			})
		},
	}

	cmd.AddCommand(stats, cleanup)
	return cmd
}

func newOAuthCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "oauth",
		Short: "Хранилище рукопожатий OAuth",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "sweep",
		Short: "Удалить просроченные рукопожатия",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p := &printer{format: opts.Format, w: cmd.OutOrStdout()}
			return withEnv(cmd, opts, func(ctx context.Context, env *Env) error {
				n, err := env.Services.OAuth.Sweep(ctx)
				if err != nil {
					return err
				}
				return p.ok(map[string]int64{"deleted": n}, func(w io.Writer) {
					fmt.Fprintf(w, "Удалено рукопожатий: %d\n", n)
				})
			})
		},
	})
	return cmd
}

// parseMoment разбирает --at. Пустое значение — текущий момент.
func parseMoment(s string) (time.Time, error) {
	if s == "" {
		return time.Now(), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, WrapExitError(ExitCommandError, "некорректный --at", err)
	}
	return t, nil
}
