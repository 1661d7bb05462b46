// Package main — ledgerctl, консоль оператора леджера.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"

	"serotonyl.ru/rewards-ledger/internal/cli"
)

func main() {
	// Логи сервисов не должны смешиваться с выводом команд
	log.SetOutput(os.Stderr)
	log.SetLevel(log.WarnLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := cli.Execute(ctx, cli.DefaultOpener, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}
