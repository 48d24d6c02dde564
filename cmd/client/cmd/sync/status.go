package sync

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"shiptrack/cmd/client/cmd/common"
	"shiptrack/internal/domain/sync"
)

type statusView struct {
	Online bool        `json:"online"`
	Status sync.Status `json:"status"`
	Failed int         `json:"failed"`
}

var StatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Состояние синхронизации и очереди",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := common.App(cmd)
		if err != nil {
			return err
		}

		online := app.CheckConnection(cmd.Context())
		pending, err := app.PendingMutations(cmd.Context())
		if err != nil {
			return err
		}
		failed, err := app.FailedMutations(cmd.Context())
		if err != nil {
			return err
		}

		view := statusView{Online: online, Status: app.Status(), Failed: len(failed)}
		// движок не запускался, счетчик берем из хранилища
		view.Status.Pending = len(pending)

		out := cmd.OutOrStdout()
		if common.JSONOutput(cmd) {
			return common.PrintJSON(out, view)
		}
		printStatus(out, view)
		return nil
	},
}

func printStatus(out io.Writer, v statusView) {
	if v.Online {
		common.Success(out, "Сервер доступен")
	} else {
		common.Warn(out, "Нет связи с сервером")
	}

	fmt.Fprintf(out, "Фаза:              %s\n", v.Status.Phase)
	if !v.Status.LastSuccessAt.IsZero() {
		fmt.Fprintf(out, "Последняя сверка:  %s\n", v.Status.LastSuccessAt.Local().Format(time.DateTime))
	}
	fmt.Fprintf(out, "В очереди:         %d\n", v.Status.Pending)
	fmt.Fprintf(out, "Failed:            %d\n", v.Failed)
	if v.Status.LastError != "" {
		common.Fail(out, "Последняя ошибка: %s", v.Status.LastError)
	}
}
