package queue

import (
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"shiptrack/cmd/client/cmd/common"
	"shiptrack/internal/domain/mutation"
)

// QueueCmd - просмотр и управление очередью неотправленных изменений
var QueueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Очередь офлайн-изменений",
	Long: `Изменения, сделанные без связи, отправляются на сервер по порядку.
Мутации, исчерпавшие попытки, переходят в failed: их можно вернуть в
очередь (retry) или отбросить (discard).`,
}

var ListCmd = &cobra.Command{
	Use:   "list",
	Short: "Показать очередь",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := common.App(cmd)
		if err != nil {
			return err
		}

		pending, err := app.PendingMutations(cmd.Context())
		if err != nil {
			return err
		}
		failed, err := app.FailedMutations(cmd.Context())
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if common.JSONOutput(cmd) {
			return common.PrintJSON(out, map[string][]mutation.Mutation{
				"pending": pending,
				"failed":  failed,
			})
		}

		if len(pending) == 0 && len(failed) == 0 {
			common.Success(out, "Очередь пуста")
			return nil
		}
		return printMutations(out, append(pending, failed...))
	},
}

var RetryCmd = &cobra.Command{
	Use:   "retry <seq>",
	Short: "Вернуть мутацию из failed в очередь",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := common.App(cmd)
		if err != nil {
			return err
		}
		seq, err := parseSeq(args[0])
		if err != nil {
			return err
		}
		if err := app.Retry(cmd.Context(), seq); err != nil {
			return fmt.Errorf("ошибка возврата в очередь: %w", err)
		}
		common.Success(cmd.OutOrStdout(), "Мутация %d возвращена в очередь", seq)
		return nil
	},
}

var DiscardCmd = &cobra.Command{
	Use:   "discard <seq>",
	Short: "Отбросить мутацию",
	Long: `Удаляет мутацию из очереди. Локальная версия записи будет заменена
серверной при следующей сверке.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := common.App(cmd)
		if err != nil {
			return err
		}
		seq, err := parseSeq(args[0])
		if err != nil {
			return err
		}
		if err := app.Discard(cmd.Context(), seq); err != nil {
			return fmt.Errorf("ошибка удаления мутации: %w", err)
		}
		common.Success(cmd.OutOrStdout(), "Мутация %d отброшена", seq)
		return nil
	},
}

func parseSeq(s string) (int64, error) {
	seq, err := strconv.ParseInt(s, 10, 64)
	if err != nil || seq <= 0 {
		return 0, fmt.Errorf("некорректный номер мутации: %q", s)
	}
	return seq, nil
}

func printMutations(out io.Writer, ms []mutation.Mutation) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Seq\tОперация\tТип\tID\tПопыток\tСтатус\tОшибка\t\n")
	fmt.Fprintf(w, "---\t---\t---\t---\t---\t---\t---\t\n")

	for _, m := range ms {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d\t%s\t%s\t\n",
			m.Seq,
			m.Kind,
			m.EntityType,
			m.RecordID,
			m.Attempts,
			m.Status,
			m.LastError,
		)
	}
	return w.Flush()
}
