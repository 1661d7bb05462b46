package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"serotonyl.ru/rewards-ledger/internal/features/tenantcfg"
)

func newConfigCommand(opts *RootOptions) *cobra.Command {
	var tenantID string

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Настройки сервера",
		Long: fmt.Sprintf(`Настройки хранятся парами ключ → значение.
Сервер global задаёт значения по умолчанию для всех серверов.

Ключи: %v`, tenantcfg.Keys()),
	}
	cmd.PersistentFlags().StringVar(&tenantID, "server", "", "ID сервера или global (обязательно)")
	_ = cmd.MarkPersistentFlagRequired("server")

	set := &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Сохранить значение",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			p := &printer{format: opts.Format, w: cmd.OutOrStdout()}
			return withEnv(cmd, opts, func(ctx context.Context, env *Env) error {
				if err := env.Services.TenantCfg.Set(ctx, tenantID, args[0], args[1]); err != nil {
					return err
				}
				return p.ok(map[string]string{args[0]: args[1]}, func(w io.Writer) {
					fmt.Fprintf(w, "%s = %s\n", args[0], args[1])
				})
			})
		},
	}

	get := &cobra.Command{
		Use:   "get <key>",
		Short: "Показать сохранённое значение",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p := &printer{format: opts.Format, w: cmd.OutOrStdout()}
			return withEnv(cmd, opts, func(ctx context.Context, env *Env) error {
				value, ok, err := env.Services.TenantCfg.Get(ctx, tenantID, args[0])
				if err != nil {
					return err
				}
				if !ok {
					return NewExitError(ExitFailure, fmt.Sprintf("%s не задан для %s", args[0], tenantID))
				}
				return p.ok(map[string]string{args[0]: value}, func(w io.Writer) {
					fmt.Fprintln(w, value)
				})
			})
		},
	}

	settings := &cobra.Command{
		Use:   "settings",
		Short: "Итоговые настройки с учётом global и значений по умолчанию",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p := &printer{format: opts.Format, w: cmd.OutOrStdout()}
			return withEnv(cmd, opts, func(ctx context.Context, env *Env) error {
				s, err := env.Services.TenantCfg.Settings(ctx, tenantID)
				if err != nil {
					return err
				}
				return p.ok(s, func(w io.Writer) {
					out, _ := json.MarshalIndent(s, "", "  ")
					fmt.Fprintln(w, string(out))
				})
			})
		},
	}

	unset := &cobra.Command{
		Use:   "unset <key>",
		Short: "Удалить значение (сервер вернётся к global и умолчаниям)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p := &printer{format: opts.Format, w: cmd.OutOrStdout()}
			return withEnv(cmd, opts, func(ctx context.Context, env *Env) error {
				deleted, err := env.Services.TenantCfg.Delete(ctx, tenantID, args[0])
				if err != nil {
					return err
				}
				if !deleted {
					return NewExitError(ExitFailure, fmt.Sprintf("%s не задан для %s", args[0], tenantID))
				}
				return p.ok(map[string]string{"unset": args[0]}, func(w io.Writer) {
					fmt.Fprintf(w, "%s удалён\n", args[0])
				})
			})
		},
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "Значения, заданные для самого сервера",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p := &printer{format: opts.Format, w: cmd.OutOrStdout()}
			return withEnv(cmd, opts, func(ctx context.Context, env *Env) error {
				entries, err := env.Services.TenantCfg.Entries(ctx, tenantID)
				if err != nil {
					return err
				}
				return p.ok(entries, func(w io.Writer) {
					for _, e := range entries {
						fmt.Fprintf(w, "%s = %s\n", e.Key, e.Value)
					}
				})
			})
		},
	}

	cmd.AddCommand(set, get, unset, list, settings)
	return cmd
}
