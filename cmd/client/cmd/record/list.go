package record

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"shiptrack/cmd/client/cmd/common"
	"shiptrack/internal/domain/entity"
	"shiptrack/internal/domain/sync"
)

var ListCmd = &cobra.Command{
	Use:   "list <type>",
	Short: "Показать записи коллекции",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := common.App(cmd)
		if err != nil {
			return err
		}
		t, err := common.ParseType(args[0])
		if err != nil {
			return err
		}

		res, err := app.Start(cmd.Context())
		if errors.Is(err, sync.ErrNoCachedData) {
			return fmt.Errorf("нет связи с сервером и локальных данных: выполните init при наличии сети")
		}
		if err != nil {
			return err
		}

		records := app.List(t)
		out := cmd.OutOrStdout()
		if common.JSONOutput(cmd) {
			return common.PrintJSON(out, records)
		}

		if res.FromCache {
			common.Warn(out, "Офлайн: показаны данные из локального кэша")
		}
		return printRecords(out, t, records)
	},
}

func printRecords(out io.Writer, t entity.Type, records []entity.Record) error {
	if len(records) == 0 {
		fmt.Fprintln(out, "Записи не найдены")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "ID\tСтатус\tДанные\t\n")
	fmt.Fprintf(w, "---\t---\t---\t\n")

	for _, rec := range records {
		id, _ := entity.IDOf(t, rec)
		status := "✓"
		if rec.Pending() {
			status = "в очереди"
		}
		raw, err := json.Marshal(rec.WithPending(false))
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t\n", id, status, truncate(string(raw), 60))
	}

	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(out, "\nВсего записей: %d\n", len(records))
	return nil
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}
