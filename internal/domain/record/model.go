package record

import (
	"shiptrack/internal/domain/entity"
)

// Op вид изменения в ленте
type Op string

const (
	OpInsert Op = "insert"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// Change сообщение ленты realtime об изменении одной записи
type Change struct {
	EntityType entity.Type `json:"entity_type"`
	ID         string      `json:"id"`
	Op         Op          `json:"op"`
}

// Query выборка по диапазону позиций from..to включительно, в порядке вставки
type Query struct {
	From      int
	To        int
	CompanyID string
}

func (q Query) Limit() int {
	return q.To - q.From + 1
}

// Stored запись в хранилище сервера вместе с ключом
type Stored struct {
	Type      entity.Type
	ID        string
	CompanyID string
	Data      entity.Record
}
