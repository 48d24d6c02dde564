package record

import (
	"fmt"

	"github.com/spf13/cobra"

	"shiptrack/cmd/client/cmd/common"
)

var DeleteCmd = &cobra.Command{
	Use:     "delete <type> <id>",
	Aliases: []string{"rm"},
	Short:   "Удалить запись",
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := common.App(cmd)
		if err != nil {
			return err
		}
		t, err := common.ParseType(args[0])
		if err != nil {
			return err
		}

		online := app.CheckConnection(cmd.Context())
		if err := app.Delete(cmd.Context(), t, args[1]); err != nil {
			return fmt.Errorf("ошибка удаления записи: %w", err)
		}

		out := cmd.OutOrStdout()
		if common.JSONOutput(cmd) {
			return common.PrintJSON(out, map[string]any{"id": args[1], "queued": !online})
		}
		if !online {
			common.Warn(out, "Удаление %s поставлено в очередь", args[1])
			return nil
		}
		common.Success(out, "Запись %s удалена", args[1])
		return nil
	},
}
