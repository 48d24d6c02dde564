package sync

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"shiptrack/cmd/client/cmd/common"
	"shiptrack/internal/domain/sync"
)

var WatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Фоновая синхронизация до Ctrl+C",
	Long: `Клиент следит за связью, периодически сверяется с сервером и
получает уведомления об изменениях. Смены фазы печатаются по мере появления.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := common.App(cmd)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()

		updates, unsubscribe := app.SubscribeStatus()
		defer unsubscribe()

		stop := make(chan struct{})
		done := make(chan struct{})
		go func() {
			defer close(done)
			for {
				var st sync.Status
				select {
				case <-stop:
					return
				case st = <-updates:
				}
				if common.JSONOutput(cmd) {
					_ = common.PrintJSON(out, st)
					continue
				}
				fmt.Fprintf(out, "[%s] %-20s в очереди: %d\n",
					time.Now().Format(time.TimeOnly), st.Phase, st.Pending)
				if st.LastError != "" {
					common.Fail(out, "%s", st.LastError)
				}
			}
		}()

		err = app.Run(cmd.Context())
		close(stop)
		<-done
		return err
	},
}
