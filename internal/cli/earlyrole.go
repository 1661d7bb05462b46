package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"serotonyl.ru/rewards-ledger/internal/features/earlyrole"
)

func newEarlyRoleCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "early-role",
		Short: "Реестр участников ранней роли",
	}

	var regUser, regTenant, regWallet string
	register := &cobra.Command{
		Use:   "register",
		Short: "Записать участника (повтор без --wallet сохраняет адрес)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p := &printer{format: opts.Format, w: cmd.OutOrStdout()}
			return withEnv(cmd, opts, func(ctx context.Context, env *Env) error {
				m, err := env.Services.EarlyRole.Register(ctx, regUser, regTenant, regWallet)
				if err != nil {
					return err
				}
				return p.ok(m, func(out io.Writer) { printMember(out, m) })
			})
		},
	}
	userServerFlags(register, &regUser, &regTenant)
	register.Flags().StringVar(&regWallet, "wallet", "", "адрес кошелька")

	var showUser, showTenant string
	show := &cobra.Command{
		Use:   "show",
		Short: "Показать участника",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p := &printer{format: opts.Format, w: cmd.OutOrStdout()}
			return withEnv(cmd, opts, func(ctx context.Context, env *Env) error {
				m, err := env.Services.EarlyRole.Member(ctx, showUser, showTenant)
				if err != nil {
					return err
				}
				return p.ok(m, func(out io.Writer) { printMember(out, m) })
			})
		},
	}
	userServerFlags(show, &showUser, &showTenant)

	var walletUser, walletTenant, address string
	wallet := &cobra.Command{
		Use:   "wallet",
		Short: "Сменить кошелёк (без --server — на всех серверах)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p := &printer{format: opts.Format, w: cmd.OutOrStdout()}
			return withEnv(cmd, opts, func(ctx context.Context, env *Env) error {
				n, err := env.Services.EarlyRole.SetWallet(ctx, walletUser, walletTenant, address)
				if err != nil {
					return err
				}
				return p.ok(map[string]int64{"updated": n}, func(out io.Writer) {
					fmt.Fprintf(out, "Кошелёк обновлён, записей: %d\n", n)
				})
			})
		},
	}
	wallet.Flags().StringVar(&walletUser, "user", "", "ID пользователя (обязательно)")
	wallet.Flags().StringVar(&walletTenant, "server", "", "ID сервера")
	wallet.Flags().StringVar(&address, "address", "", "новый адрес (обязательно)")
	_ = wallet.MarkFlagRequired("user")
	_ = wallet.MarkFlagRequired("address")

	cmd.AddCommand(register, show, wallet)
	return cmd
}

func printMember(out io.Writer, m *earlyrole.Member) {
	addr := "не указан"
	if m.WalletAddress != nil {
		addr = *m.WalletAddress
	}
	fmt.Fprintf(out, "%s на сервере %s, кошелёк: %s, с %s\n",
		m.UserID, m.TenantID, addr, m.CreatedAt.Format("2006-01-02"))
}
