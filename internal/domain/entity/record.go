package entity

import (
	"encoding/hex"
	"encoding/json"
	"math"
	"strconv"

	"golang.org/x/crypto/blake2b"
)

// PendingSyncField помечает локальную запись, еще не подтвержденную
// сервером
const PendingSyncField = "isPendingSync"

// Record запись без схемы: имя поля -> JSON-значение
type Record map[string]any

// IDOf нормализованный ключ записи для типа t
func IDOf(t Type, r Record) (string, bool) {
	if r == nil {
		return "", false
	}
	return KeyOf(r[t.IDField()])
}

// KeyOf приводит строковый или целый id к строке. JSON декодирует числа
// в float64, поэтому целые float64 тоже принимаются.
func KeyOf(v any) (string, bool) {
	switch id := v.(type) {
	case string:
		return id, id != ""
	case int:
		return strconv.Itoa(id), true
	case int32:
		return strconv.FormatInt(int64(id), 10), true
	case int64:
		return strconv.FormatInt(id, 10), true
	case uint64:
		return strconv.FormatUint(id, 10), true
	case float64:
		if id != math.Trunc(id) || math.IsInf(id, 0) || math.IsNaN(id) {
			return "", false
		}
		return strconv.FormatInt(int64(id), 10), true
	case json.Number:
		if _, err := id.Int64(); err != nil {
			return "", false
		}
		return id.String(), true
	default:
		return "", false
	}
}

// Clone глубокая копия записи, вложенные объекты и массивы копируются
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(val))
		for k, inner := range val {
			m[k] = cloneValue(inner)
		}
		return m
	case Record:
		return val.Clone()
	case []any:
		s := make([]any, len(val))
		for i, inner := range val {
			s[i] = cloneValue(inner)
		}
		return s
	default:
		return v
	}
}

// Patch копия r с полями верхнего уровня из p
func (r Record) Patch(p Record) Record {
	out := r.Clone()
	if out == nil {
		out = Record{}
	}
	for k, v := range p {
		out[k] = cloneValue(v)
	}
	return out
}

func (r Record) Pending() bool {
	pending, _ := r[PendingSyncField].(bool)
	return pending
}

// WithPending копия r с установленной или снятой пометкой pending
func (r Record) WithPending(pending bool) Record {
	out := r.Clone()
	if out == nil {
		out = Record{}
	}
	if pending {
		out[PendingSyncField] = true
	} else {
		delete(out, PendingSyncField)
	}
	return out
}

// Fingerprint хэш содержимого без локальных пометок.
// encoding/json сортирует ключи map, кодирование каноническое.
func Fingerprint(r Record) string {
	content := make(Record, len(r))
	for k, v := range r {
		if k == PendingSyncField {
			continue
		}
		content[k] = v
	}
	data, err := json.Marshal(content)
	if err != nil {
		return ""
	}
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// SameContent одинаковы ли поля и значения a и b
func SameContent(a, b Record) bool {
	fa, fb := Fingerprint(a), Fingerprint(b)
	return fa != "" && fa == fb
}

// Covers все поля subset есть в r с теми же значениями; локальные
// пометки не учитываются
func Covers(r, subset Record) bool {
	for k, v := range subset {
		if k == PendingSyncField {
			continue
		}
		have, ok := r[k]
		if !ok {
			return false
		}
		a, b := Fingerprint(Record{k: have}), Fingerprint(Record{k: v})
		if a == "" || a != b {
			return false
		}
	}
	return true
}
