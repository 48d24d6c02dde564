package sync

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"shiptrack/cmd/client/cmd/common"
	"shiptrack/internal/domain/sync"
)

var SyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Синхронизировать с сервером",
	Long: `Полная сверка: загрузка всех коллекций, слияние с локальными
изменениями и отправка очереди на сервер.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := common.App(cmd)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()

		fmt.Fprintln(out, "Начало синхронизации...")
		res, err := app.Sync(cmd.Context())
		if errors.Is(err, sync.ErrNoCachedData) {
			common.Fail(out, "Сервер недоступен, локальный кэш пуст")
			return err
		}
		if err != nil {
			return fmt.Errorf("ошибка синхронизации: %w", err)
		}

		if common.JSONOutput(cmd) {
			return common.PrintJSON(out, res)
		}
		printResult(out, res)
		return nil
	},
}

func printResult(out io.Writer, res *sync.Result) {
	fmt.Fprintln(out)
	if res.FromCache {
		common.Warn(out, "Нет связи: данные загружены из локального кэша")
	} else if res.Success() {
		common.Success(out, "Синхронизация завершена!")
	} else {
		common.Warn(out, "Синхронизация завершена с ошибками")
	}

	fmt.Fprintf(out, "Время выполнения: %v\n", res.Duration.Round(time.Millisecond))
	for t, n := range res.Fetched {
		fmt.Fprintf(out, "  %-22s загружено %d, после слияния %d\n", t, n, res.Merged[t])
	}
	fmt.Fprintf(out, "Отправлено изменений: %d\n", res.Replayed)
	if res.Deferred > 0 {
		fmt.Fprintf(out, "Отложено до следующей попытки: %d\n", res.Deferred)
	}
	fmt.Fprintf(out, "Осталось в очереди: %d\n", res.Pending)

	for _, te := range res.FailedTypes {
		common.Fail(out, "%s: %s", te.EntityType, te.Message)
	}
	for _, re := range res.ReplayErrors {
		suffix := ""
		if re.DeadLetter {
			suffix = " (перемещена в failed)"
		}
		common.Fail(out, "мутация %d %s/%s: %s%s", re.Seq, re.EntityType, re.RecordID, re.Message, suffix)
	}
	for _, c := range res.Conflicts {
		common.Warn(out, "%s", c.Error())
	}
}
