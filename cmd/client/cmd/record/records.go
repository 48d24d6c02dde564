package record

import (
	"github.com/spf13/cobra"
)

// RecordCmd - родительская команда для операций с записями коллекций
var RecordCmd = &cobra.Command{
	Use:   "record",
	Short: "Управление записями",
	Long: `Просмотр, создание, обновление и удаление записей коллекций.

Без связи с сервером изменения сохраняются локально и ставятся в очередь.
Такие записи помечены как неподтвержденные до следующей сверки.`,
}

var data string
