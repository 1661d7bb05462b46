package cli

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"serotonyl.ru/rewards-ledger/internal/common"
	"serotonyl.ru/rewards-ledger/internal/features/points"
)

func newPointsCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "points",
		Short: "Балансы и журнал аудита",
	}
	cmd.AddCommand(newPointsAdjustCommand(opts))
	cmd.AddCommand(newPointsBalanceCommand(opts))
	cmd.AddCommand(newPointsLeaderboardCommand(opts))
	cmd.AddCommand(newPointsAuditCommand(opts))
	cmd.AddCommand(newPointsReconcileCommand(opts))
	return cmd
}

func newPointsAdjustCommand(opts *RootOptions) *cobra.Command {
	var c points.Change

	cmd := &cobra.Command{
		Use:   "adjust",
		Short: "Ручное изменение баланса",
		Long: `Начисляет или списывает баллы с записью в журнал аудита.

Примеры:
  ledgerctl points adjust --user 123 --server 456 --delta 100 --actor 789 --reason "победа в конкурсе"
  ledgerctl points adjust --user 123 --server 456 --delta -50 --actor 789 --reason "спам"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c.Operation = points.OpAdminAdjust
			p := &printer{format: opts.Format, w: cmd.OutOrStdout()}
			return withEnv(cmd, opts, func(ctx context.Context, env *Env) error {
				res, err := env.Services.Points.ApplyDelta(ctx, c)
				if err != nil {
					return err
				}
				return p.ok(res, func(w io.Writer) {
					fmt.Fprintf(w, "Баланс %s на %s: %d → %d", c.UserID, c.TenantID, res.PointsBefore, res.PointsAfter)
					if res.Clamped {
						fmt.Fprint(w, " (обрезано до нуля)")
					}
					fmt.Fprintf(w, ", запись аудита #%d\n", res.AuditID)
				})
			})
		},
	}

	cmd.Flags().StringVar(&c.UserID, "user", "", "ID пользователя (обязательно)")
	cmd.Flags().StringVar(&c.TenantID, "server", "", "ID сервера (обязательно)")
	cmd.Flags().IntVar(&c.Delta, "delta", 0, "изменение: >0 начисление, <0 списание")
	cmd.Flags().StringVar(&c.ActorID, "actor", "", "ID модератора (обязательно)")
	cmd.Flags().StringVar(&c.Reason, "reason", "", "причина (обязательно)")
	for _, f := range []string{"user", "server", "delta", "actor", "reason"} {
		_ = cmd.MarkFlagRequired(f)
	}
	return cmd
}

func newPointsBalanceCommand(opts *RootOptions) *cobra.Command {
	var userID, tenantID string

	cmd := &cobra.Command{
		Use:   "balance",
		Short: "Баланс пользователя",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p := &printer{format: opts.Format, w: cmd.OutOrStdout()}
			return withEnv(cmd, opts, func(ctx context.Context, env *Env) error {
				b, err := env.Services.Points.GetBalance(ctx, userID, tenantID)
				if err != nil {
					return err
				}
				return p.ok(b, func(w io.Writer) {
					fmt.Fprintf(w, "%s на %s: %s, отметок: %d\n", b.UserID, b.TenantID, common.FormatPoints(b.Points), b.TotalCheckins)
				})
			})
		},
	}
	userServerFlags(cmd, &userID, &tenantID)
	return cmd
}

func newPointsLeaderboardCommand(opts *RootOptions) *cobra.Command {
	var tenantID string
	var limit int

	cmd := &cobra.Command{
		Use:   "leaderboard",
		Short: "Рейтинг сервера",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p := &printer{format: opts.Format, w: cmd.OutOrStdout()}
			return withEnv(cmd, opts, func(ctx context.Context, env *Env) error {
				top, err := env.Services.Points.Leaderboard(ctx, tenantID, limit)
				if err != nil {
					return err
				}
				return p.ok(top, func(w io.Writer) {
					tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
					fmt.Fprintln(tw, "#\tПОЛЬЗОВАТЕЛЬ\tБАЛЛЫ")
					for _, b := range top {
						fmt.Fprintf(tw, "%d\t%s\t%d\n", b.Rank, b.UserID, b.Points)
					}
					_ = tw.Flush()
				})
			})
		},
	}
	cmd.Flags().StringVar(&tenantID, "server", "", "ID сервера (обязательно)")
	_ = cmd.MarkFlagRequired("server")
	cmd.Flags().IntVar(&limit, "limit", 10, "сколько строк показать")
	return cmd
}

func newPointsAuditCommand(opts *RootOptions) *cobra.Command {
	var f points.AuditFilter

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Журнал аудита сервера",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p := &printer{format: opts.Format, w: cmd.OutOrStdout()}
			return withEnv(cmd, opts, func(ctx context.Context, env *Env) error {
				entries, err := env.Services.Points.AuditLog(ctx, f)
				if err != nil {
					return err
				}
				return p.ok(entries, func(w io.Writer) {
					tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
					fmt.Fprintln(tw, "ID\tВРЕМЯ\tОПЕРАЦИЯ\tКТО\tКОМУ\tИЗМЕНЕНИЕ\tДО\tПОСЛЕ\tПРИЧИНА")
					for _, e := range entries {
						mark := ""
						if e.Clamped {
							mark = "*"
						}
						fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%+d\t%d\t%d%s\t%s\n",
							e.ID, e.CreatedAt.Format("2006-01-02 15:04:05"), e.OperationType,
							e.ActorID, e.TargetUserID, e.PointsChange, e.PointsBefore, e.PointsAfter, mark, e.Reason)
					}
					_ = tw.Flush()
				})
			})
		},
	}
	cmd.Flags().StringVar(&f.TenantID, "server", "", "ID сервера (обязательно)")
	_ = cmd.MarkFlagRequired("server")
	cmd.Flags().StringVar(&f.ActorID, "actor", "", "только записи этого модератора")
	cmd.Flags().StringVar(&f.TargetID, "user", "", "только записи этого пользователя")
	cmd.Flags().IntVar(&f.Limit, "limit", 20, "сколько записей показать")
	return cmd
}

func newPointsReconcileCommand(opts *RootOptions) *cobra.Command {
	var userID, tenantID string

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Сверить балансы с журналом аудита",
		Long: `Проигрывает журнал аудита и сравнивает результат с балансом.
Без --user/--server сверяет все балансы и выводит только расходящиеся.
Код выхода 1, если найдено расхождение.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p := &printer{format: opts.Format, w: cmd.OutOrStdout()}
			return withEnv(cmd, opts, func(ctx context.Context, env *Env) error {
				var bad []*points.Reconciliation
				if userID != "" || tenantID != "" {
					rec, err := env.Services.Points.Reconcile(ctx, userID, tenantID)
					if err != nil {
						return err
					}
					if !rec.Consistent() {
						bad = append(bad, rec)
					}
				} else {
					var err error
					if bad, err = env.Services.Points.ReconcileAll(ctx); err != nil {
						return err
					}
				}

				err := p.ok(bad, func(w io.Writer) {
					if len(bad) == 0 {
						fmt.Fprintln(w, "Расхождений нет")
						return
					}
					for _, r := range bad {
						fmt.Fprintf(w, "%s/%s: баланс %d, по журналу %d (разница %d), разрывов цепочки: %d, ошибок арифметики: %d\n",
							r.TenantID, r.UserID, r.Balance, r.ReplayedTo, r.Drift, len(r.ChainBreaks), len(r.BadMath))
					}
				})
				if err != nil {
					return err
				}
				if len(bad) > 0 {
					return NewExitError(ExitFailure, fmt.Sprintf("расхождения в %d балансах", len(bad)))
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "ID пользователя")
	cmd.Flags().StringVar(&tenantID, "server", "", "ID сервера")
	cmd.MarkFlagsRequiredTogether("user", "server")
	return cmd
}

// userServerFlags добавляет обязательные --user и --server.
func userServerFlags(cmd *cobra.Command, userID, tenantID *string) {
	cmd.Flags().StringVar(userID, "user", "", "ID пользователя (обязательно)")
	cmd.Flags().StringVar(tenantID, "server", "", "ID сервера (обязательно)")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("server")
}
