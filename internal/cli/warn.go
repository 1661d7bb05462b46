package cli

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"
)

func newWarnCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "warn",
		Short: "Предупреждения модераторов",
	}

	var addUser, addTenant, moderator, reason string
	add := &cobra.Command{
		Use:   "add",
		Short: "Выдать предупреждение",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p := &printer{format: opts.Format, w: cmd.OutOrStdout()}
			return withEnv(cmd, opts, func(ctx context.Context, env *Env) error {
				w, err := env.Services.Moderation.AddWarning(ctx, addUser, addTenant, moderator, reason)
				if err != nil {
					return err
				}
				count, err := env.Services.Moderation.WarningCount(ctx, addUser, addTenant)
				if err != nil {
					return err
				}
				data := map[string]any{"warning": w, "total": count}
				return p.ok(data, func(out io.Writer) {
					fmt.Fprintf(out, "Предупреждение #%d выдано, всего у пользователя: %d\n", w.ID, count)
				})
			})
		},
	}
	userServerFlags(add, &addUser, &addTenant)
	add.Flags().StringVar(&moderator, "moderator", "", "ID модератора (обязательно)")
	add.Flags().StringVar(&reason, "reason", "", "причина (обязательно)")
	_ = add.MarkFlagRequired("moderator")
	_ = add.MarkFlagRequired("reason")

	var listUser, listTenant string
	list := &cobra.Command{
		Use:   "list",
		Short: "Предупреждения пользователя",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p := &printer{format: opts.Format, w: cmd.OutOrStdout()}
			return withEnv(cmd, opts, func(ctx context.Context, env *Env) error {
				warns, err := env.Services.Moderation.Warnings(ctx, listUser, listTenant)
				if err != nil {
					return err
				}
				return p.ok(warns, func(out io.Writer) {
					if len(warns) == 0 {
						fmt.Fprintln(out, "Предупреждений нет")
						return
					}
					for _, w := range warns {
						fmt.Fprintf(out, "#%d %s от %s: %s\n",
							w.ID, w.CreatedAt.Format("2006-01-02"), w.ModeratorID, w.Reason)
					}
				})
			})
		},
	}
	userServerFlags(list, &listUser, &listTenant)

	var removeTenant string
	remove := &cobra.Command{
		Use:   "remove <id>",
		Short: "Снять предупреждение",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return WrapExitError(ExitCommandError, "некорректный ID предупреждения", err)
			}
			p := &printer{format: opts.Format, w: cmd.OutOrStdout()}
			return withEnv(cmd, opts, func(ctx context.Context, env *Env) error {
				if err := env.Services.Moderation.RemoveWarning(ctx, removeTenant, id); err != nil {
					return err
				}
				return p.ok(map[string]int64{"removed": id}, func(out io.Writer) {
					fmt.Fprintf(out, "Предупреждение #%d снято\n", id)
				})
			})
		},
	}
	remove.Flags().StringVar(&removeTenant, "server", "", "ID сервера (обязательно)")
	_ = remove.MarkFlagRequired("server")

	cmd.AddCommand(add, list, remove)
	return cmd
}
