package record

import (
	"fmt"

	"github.com/spf13/cobra"

	"shiptrack/cmd/client/cmd/common"
)

var UpdateCmd = &cobra.Command{
	Use:   "update <type> <id>",
	Short: "Изменить запись",
	Long: `Частичное обновление записи: переданные поля заменяют текущие.

  shiptrack record update shipments s-1 --data '{"status":"delivered"}'`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := common.App(cmd)
		if err != nil {
			return err
		}
		t, err := common.ParseType(args[0])
		if err != nil {
			return err
		}
		patch, err := common.ReadRecord(data, cmd.InOrStdin())
		if err != nil {
			return err
		}

		app.CheckConnection(cmd.Context())
		updated, err := app.Update(cmd.Context(), t, args[1], patch)
		if err != nil {
			return fmt.Errorf("ошибка обновления записи: %w", err)
		}

		return report(cmd, t, updated)
	},
}

func init() {
	UpdateCmd.Flags().StringVarP(&data, "data", "d", "", "JSON с изменяемыми полями; '-' читает stdin")
}
