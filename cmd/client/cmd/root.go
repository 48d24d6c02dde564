package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/exp/slog"

	"shiptrack/cmd/client/cmd/common"
	"shiptrack/internal/app/client"
	"shiptrack/internal/app/client/config"
	"shiptrack/internal/utils/logger"
)

var (
	cfg        *config.Config
	log        *slog.Logger
	app        *client.App
	debug      bool
	jsonOutput bool
	serverAddr string
	companyID  string
	userID     string
)

var rootCmd = &cobra.Command{
	Use:   "shiptrack",
	Short: "Shiptrack - офлайн-клиент учета отгрузок",
	Long: `Shiptrack держит локальную копию данных компании и работает без сети.

Изменения, сделанные офлайн, ставятся в очередь и отправляются на сервер
по порядку, как только связь восстановится.`,
	PersistentPreRunE:  setupApp,
	PersistentPostRunE: shutdownApp,
	SilenceUsage:       true,
	SilenceErrors:      true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Ошибка: %v\n", err)
		os.Exit(1)
	}
}

func setupApp(cmd *cobra.Command, _ []string) error {
	var err error
	cfg, err = config.Load()
	if err != nil {
		return fmt.Errorf("ошибка загрузки конфигурации: %w", err)
	}

	// Флаги командной строки важнее окружения
	if serverAddr != "" {
		cfg.ServerAddress = serverAddr
	}
	if companyID != "" {
		cfg.CompanyID = companyID
	}
	if userID != "" {
		cfg.UserID = userID
	}

	level := cfg.LogLevel
	switch {
	case debug:
		level = "debug"
	case jsonOutput:
		// логи идут в stdout и не должны ломать JSON
		level = "error"
	}
	log = logger.WithLevel(cfg.Env, level)
	common.SetupColor()

	app, err = client.New(cfg, log)
	if err != nil {
		return fmt.Errorf("ошибка инициализации приложения: %w", err)
	}

	cmd.SetContext(common.WithApp(cmd.Context(), app))
	return nil
}

func shutdownApp(_ *cobra.Command, _ []string) error {
	if app != nil {
		app.Shutdown()
	}
	return nil
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "включить отладочный режим")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "вывод в формате JSON")
	rootCmd.PersistentFlags().StringVar(&serverAddr, "server", "", "адрес сервера host:port")
	rootCmd.PersistentFlags().StringVar(&companyID, "company", "", "компания, данные которой синхронизируются")
	rootCmd.PersistentFlags().StringVar(&userID, "user", "", "пользователь, от имени которого пишутся изменения")
}
