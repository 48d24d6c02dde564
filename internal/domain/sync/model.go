package sync

import (
	"time"

	"shiptrack/internal/domain/entity"
)

// Phase состояние движка сверки
type Phase string

const (
	PhaseIdle             Phase = "idle"
	PhaseLoadingFromCache Phase = "loading_from_cache"
	PhaseFetchingRemote   Phase = "fetching_remote"
	PhaseMerging          Phase = "merging"
	PhaseSyncing          Phase = "syncing"
	PhaseError            Phase = "error"
)

// Busy идет ли проход в этой фазе
func (p Phase) Busy() bool {
	switch p {
	case PhaseLoadingFromCache, PhaseFetchingRemote, PhaseMerging, PhaseSyncing:
		return true
	}
	return false
}

// Status снимок состояния движка для внешней границы (UI, CLI).
// По PassStartedAt внешняя граница сама отсчитывает дедлайны
// "все еще загружается" и "перезагрузить".
type Status struct {
	Phase          Phase         `json:"phase"`
	PassStartedAt  time.Time     `json:"pass_started_at,omitempty"`
	LastSuccessAt  time.Time     `json:"last_success_at,omitempty"`
	LastError      string        `json:"last_error,omitempty"`
	FailedTypes    []entity.Type `json:"failed_types,omitempty"`
	Pending        int           `json:"pending"`
	RerunScheduled bool          `json:"rerun_scheduled"`
}

// Elapsed сколько длится текущий проход
func (s Status) Elapsed(now time.Time) time.Duration {
	if !s.Phase.Busy() || s.PassStartedAt.IsZero() {
		return 0
	}
	return now.Sub(s.PassStartedAt)
}

// TypeError ошибка загрузки одного типа сущностей
type TypeError struct {
	EntityType entity.Type `json:"entity_type"`
	Err        error       `json:"-"`
	Message    string      `json:"error"`
}

// ReplayError ошибка повтора одной мутации
type ReplayError struct {
	Seq        int64       `json:"seq"`
	MutationID string      `json:"mutation_id"`
	EntityType entity.Type `json:"entity_type"`
	RecordID   string      `json:"record_id"`
	Err        error       `json:"-"`
	Message    string      `json:"error"`
	DeadLetter bool        `json:"dead_letter"`
}

// Result итог одного прохода сверки
type Result struct {
	FromCache    bool                  `json:"from_cache"`
	Fetched      map[entity.Type]int   `json:"fetched,omitempty"`
	Merged       map[entity.Type]int   `json:"merged,omitempty"`
	FailedTypes  []TypeError           `json:"failed_types,omitempty"`
	Conflicts    []*MergeConflictError `json:"-"`
	Replayed     int                   `json:"replayed"`
	ReplayErrors []ReplayError         `json:"replay_errors,omitempty"`
	Deferred     int                   `json:"deferred"`
	Pending      int                   `json:"pending"`
	StartTime    time.Time             `json:"start_time"`
	EndTime      time.Time             `json:"end_time"`
	Duration     time.Duration         `json:"duration"`
}

// Success проход без ошибок загрузки и отправки
func (r *Result) Success() bool {
	return len(r.FailedTypes) == 0 && len(r.ReplayErrors) == 0
}
