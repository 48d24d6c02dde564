package record

import (
	"fmt"

	"github.com/spf13/cobra"

	"shiptrack/cmd/client/cmd/common"
	"shiptrack/internal/domain/entity"
)

var CreateCmd = &cobra.Command{
	Use:   "create <type>",
	Short: "Создать запись",
	Long: `Создание записи в коллекции.

Данные передаются JSON-объектом через --data или stdin:

  shiptrack record create shipments --data '{"status":"new"}'
  cat shipment.json | shiptrack record create shipments`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := common.App(cmd)
		if err != nil {
			return err
		}
		t, err := common.ParseType(args[0])
		if err != nil {
			return err
		}
		rec, err := common.ReadRecord(data, cmd.InOrStdin())
		if err != nil {
			return err
		}

		app.CheckConnection(cmd.Context())
		created, err := app.Create(cmd.Context(), t, rec)
		if err != nil {
			return fmt.Errorf("ошибка создания записи: %w", err)
		}

		return report(cmd, t, created)
	},
}

// report печатает результат записи с пометкой, ушла ли она на сервер
func report(cmd *cobra.Command, t entity.Type, rec entity.Record) error {
	out := cmd.OutOrStdout()
	if common.JSONOutput(cmd) {
		return common.PrintJSON(out, rec)
	}

	id, _ := entity.IDOf(t, rec)
	if rec.Pending() {
		common.Warn(out, "Запись %s сохранена локально и будет отправлена при появлении связи", id)
		return nil
	}
	common.Success(out, "Запись %s сохранена на сервере", id)
	return nil
}

func init() {
	CreateCmd.Flags().StringVarP(&data, "data", "d", "", "JSON записи; '-' читает stdin")
}
