package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"shiptrack/cmd/client/cmd/common"
	"shiptrack/cmd/client/cmd/queue"
	"shiptrack/cmd/client/cmd/record"
	"shiptrack/cmd/client/cmd/sync"
	"shiptrack/internal/domain/entity"
	domainSync "shiptrack/internal/domain/sync"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Первичная загрузка локального кэша",
	Long: `Команда init проверяет связь с сервером и заполняет локальный кэш.

Без связи init покажет, что уже есть в кэше. После успешной загрузки
клиент может работать полностью офлайн.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := common.App(cmd)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()

		fmt.Fprintln(out, "Проверка соединения с сервером...")
		if app.CheckConnection(cmd.Context()) {
			common.Success(out, "Сервер доступен: %s", cfg.ServerAddress)
		} else {
			common.Warn(out, "Нет связи, используем локальный кэш")
		}

		res, err := app.Start(cmd.Context())
		if errors.Is(err, domainSync.ErrNoCachedData) {
			common.Fail(out, "Локальный кэш пуст, а сервер недоступен")
			return err
		}
		if err != nil {
			return err
		}

		if common.JSONOutput(cmd) {
			return common.PrintJSON(out, res)
		}

		for _, t := range entity.All() {
			fmt.Fprintf(out, "  %-22s %d\n", t, len(app.List(t)))
		}
		for _, te := range res.FailedTypes {
			common.Warn(out, "%s: %s", te.EntityType, te.Message)
		}
		common.Success(out, "Готово за %v, в очереди %d изменений", res.Duration.Round(1e6), res.Pending)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)

	rootCmd.AddCommand(record.RecordCmd)
	record.RecordCmd.AddCommand(record.ListCmd)
	record.RecordCmd.AddCommand(record.CreateCmd)
	record.RecordCmd.AddCommand(record.UpdateCmd)
	record.RecordCmd.AddCommand(record.DeleteCmd)

	rootCmd.AddCommand(queue.QueueCmd)
	queue.QueueCmd.AddCommand(queue.ListCmd)
	queue.QueueCmd.AddCommand(queue.RetryCmd)
	queue.QueueCmd.AddCommand(queue.DiscardCmd)

	rootCmd.AddCommand(sync.SyncCmd)
	rootCmd.AddCommand(sync.StatusCmd)
	rootCmd.AddCommand(sync.WatchCmd)
}
