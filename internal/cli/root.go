// Package cli содержит команды ledgerctl — консоли оператора леджера.
package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"serotonyl.ru/rewards-ledger/internal/app"
	"serotonyl.ru/rewards-ledger/internal/config"
)

// RootOptions — общие флаги всех команд.
type RootOptions struct {
	Format  string // "text" | "json"
	EnvFile string
	Verbose bool

	open Opener
}

// ValidFormats — допустимые форматы вывода.
var ValidFormats = []string{"text", "json"}

// Env — всё, что нужно командам от приложения.
type Env struct {
	Services *app.Services
	Migrate  func(ctx context.Context) error
	Close    func()
}

// Opener подключается к базе и собирает сервисы.
type Opener func(ctx context.Context, opts *RootOptions) (*Env, error)

// DefaultOpener читает .env (если есть) и окружение и поднимает приложение.
func DefaultOpener(ctx context.Context, opts *RootOptions) (*Env, error) {
	if opts.EnvFile != "" {
		if err := godotenv.Load(opts.EnvFile); err != nil {
			return nil, WrapExitError(ExitCommandError, "не удалось прочитать "+opts.EnvFile, err)
		}
	} else {
		_ = godotenv.Load()
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "ошибка конфигурации", err)
	}
	a, err := app.New(ctx, cfg)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "ошибка запуска", err)
	}
	return &Env{Services: a.Services, Migrate: a.Migrate, Close: a.Close}, nil
}

// NewRootCommand создаёт корневую команду ledgerctl.
func NewRootCommand(open Opener) *cobra.Command {
	opts := &RootOptions{open: open}

	cmd := &cobra.Command{
		Use:   "ledgerctl",
		Short: "Консоль оператора леджера баллов",
		Long: `ledgerctl управляет леджером напрямую через базу:
ручные корректировки, сверка с журналом аудита, целевые посты,
настройки серверов и предупреждения.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError,
					fmt.Sprintf("некорректный формат %q: допустимо %v", opts.Format, ValidFormats))
			}
			if opts.Verbose {
				log.SetLevel(log.DebugLevel)
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "формат вывода (json|text)")
	cmd.PersistentFlags().StringVar(&opts.EnvFile, "env-file", "", "путь к .env")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "подробные логи")

	cmd.AddCommand(newSchemaCommand(opts))
	cmd.AddCommand(newPointsCommand(opts))
	cmd.AddCommand(newCheckinCommand(opts))
	cmd.AddCommand(newActivityCommand(opts))
	cmd.AddCommand(newSocialCommand(opts))
	cmd.AddCommand(newOAuthCommand(opts))
	cmd.AddCommand(newConfigCommand(opts))
	cmd.AddCommand(newWarnCommand(opts))
	cmd.AddCommand(newEarlyRoleCommand(opts))

	return cmd
}

// withEnv открывает окружение на время выполнения команды.
func withEnv(cmd *cobra.Command, opts *RootOptions, fn func(ctx context.Context, env *Env) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	env, err := opts.open(ctx, opts)
	if err != nil {
		return err
	}
	defer env.Close()
	return fn(ctx, env)
}

func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

// Execute запускает ledgerctl и возвращает код выхода.
func Execute(ctx context.Context, open Opener, args []string, stdout, stderr io.Writer) int {
	cmd := NewRootCommand(open)
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	if err := cmd.ExecuteContext(ctx); err != nil {
		format, _ := cmd.PersistentFlags().GetString("format")
		if !isValidFormat(format) {
			format = "text"
		}
		WriteError(stderr, format, err)
		return GetExitCode(err)
	}
	return ExitSuccess
}
