// Synchronizer — ставит в очередь синхронизации, которым пора выполняться.
//
// Synchronizer:
//   - Выбирает из таблицы synchronizations записи с наступившим run_at
//   - Переводит их в QUEUED и публикует job в RabbitMQ
//   - Повторно ставит синхронизации, зависшие в SYNCING
//
// Использование:
//
//	synchronizer [--json] <command> [flags]
//
// Команды:
//
//	run       Один проход (--force-all: все SUCCESS и SYNCING)
//	stalled   Повторная постановка зависших
//	status    Список синхронизаций
//	serve     Проходы по расписанию, /healthz и /metrics
//
// Конфигурация читается из окружения и .env.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/joho/godotenv/autoload"
	"github.com/spf13/cobra"

	"github.com/shaiso/Synchronizer/internal/cli"
	"github.com/shaiso/Synchronizer/internal/config"
	"github.com/shaiso/Synchronizer/internal/telemetry"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	var jsonOutput bool

	rootCmd := &cobra.Command{
		Use:           "synchronizer",
		Short:         "Synchronizer — enqueues due synchronizations",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	envFn := func() (*cli.Env, error) {
		cfg, err := config.Load()
		if err != nil {
			return nil, err
		}
		return &cli.Env{Config: cfg, Logger: telemetry.SetupLogger()}, nil
	}
	outputFn := func() *cli.Output { return cli.NewOutput(jsonOutput) }

	rootCmd.AddCommand(
		cli.NewRunCmd(envFn, outputFn),
		cli.NewStalledCmd(envFn, outputFn),
		cli.NewStatusCmd(envFn, outputFn),
		cli.NewServeCmd(envFn),
	)

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		cancel()
		os.Exit(1)
	}
}
