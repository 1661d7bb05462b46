package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

func newSchemaCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Схема базы данных",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "apply",
		Short: "Применить недостающие миграции",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p := &printer{format: opts.Format, w: cmd.OutOrStdout()}
			return withEnv(cmd, opts, func(ctx context.Context, env *Env) error {
				if err := env.Migrate(ctx); err != nil {
					return err
				}
				return p.ok(map[string]string{"schema": "up to date"}, func(w io.Writer) {
					fmt.Fprintln(w, "Схема в актуальном состоянии")
				})
			})
		},
	})
	return cmd
}
