// Package common общие помощники подкоманд клиента: доступ к App и вывод.
package common

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"shiptrack/internal/app/client"
	"shiptrack/internal/domain/entity"
)

type appKey struct{}

func WithApp(ctx context.Context, app *client.App) context.Context {
	return context.WithValue(ctx, appKey{}, app)
}

// App достает приложение, созданное в PersistentPreRunE корневой команды
func App(cmd *cobra.Command) (*client.App, error) {
	app, ok := cmd.Context().Value(appKey{}).(*client.App)
	if !ok || app == nil {
		return nil, errors.New("приложение не инициализировано")
	}
	return app, nil
}

// JSONOutput включен ли флаг --json
func JSONOutput(cmd *cobra.Command) bool {
	v, _ := cmd.Flags().GetBool("json")
	return v
}

// IsTerminal stdout подключен к терминалу; без терминала вывод без цвета
func IsTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

func SetupColor() {
	if !IsTerminal() {
		color.NoColor = true
	}
}

func PrintJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func Success(w io.Writer, format string, args ...any) {
	fmt.Fprintln(w, color.GreenString("✓ "+format, args...))
}

func Warn(w io.Writer, format string, args ...any) {
	fmt.Fprintln(w, color.YellowString("! "+format, args...))
}

func Fail(w io.Writer, format string, args ...any) {
	fmt.Fprintln(w, color.RedString("✗ "+format, args...))
}

// ParseType проверяет имя коллекции из аргумента
func ParseType(s string) (entity.Type, error) {
	t, err := entity.Parse(strings.TrimSpace(s))
	if err != nil {
		names := make([]string, 0, len(entity.All()))
		for _, t := range entity.All() {
			names = append(names, string(t))
		}
		return "", fmt.Errorf("%w; доступны: %s", err, strings.Join(names, ", "))
	}
	return t, nil
}

// ReadRecord разбирает JSON из --data; "-" или пустое значение при перенаправленном stdin читает stdin
func ReadRecord(data string, stdin io.Reader) (entity.Record, error) {
	if data == "" || data == "-" {
		if data == "" {
			if f, ok := stdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
				return nil, errors.New("укажите --data '{...}' или передайте JSON через stdin")
			}
		}
		raw, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("ошибка чтения stdin: %w", err)
		}
		data = string(raw)
	}

	var rec entity.Record
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return nil, fmt.Errorf("некорректный JSON записи: %w", err)
	}
	if rec == nil {
		return nil, errors.New("запись должна быть JSON-объектом")
	}
	return rec, nil
}
