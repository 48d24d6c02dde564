// Package state состояние приложения в памяти. Все изменения идут
// через Dispatch типизированными действиями.
package state

import (
	gosync "sync"

	"shiptrack/internal/domain/entity"
)

// State снимок состояния приложения
type State struct {
	Collections map[entity.Type][]entity.Record
	Online      bool
	Syncing     bool
	// Version растет при каждом Dispatch
	Version uint64
}

// Action изменение состояния
type Action interface {
	apply(s *State)
}

// ReplaceCollection заменяет коллекцию целиком
type ReplaceCollection struct {
	EntityType entity.Type
	Records    []entity.Record
}

func (a ReplaceCollection) apply(s *State) {
	list := make([]entity.Record, len(a.Records))
	for i, rec := range a.Records {
		list[i] = rec.Clone()
	}
	s.Collections[a.EntityType] = list
}

// UpsertRecord заменяет запись с тем же id или добавляет новую в начало
type UpsertRecord struct {
	EntityType entity.Type
	Record     entity.Record
}

func (a UpsertRecord) apply(s *State) {
	id, ok := entity.IDOf(a.EntityType, a.Record)
	if !ok {
		return
	}
	list := s.Collections[a.EntityType]
	if i := indexOf(a.EntityType, list, id); i >= 0 {
		updated := make([]entity.Record, len(list))
		copy(updated, list)
		updated[i] = a.Record.Clone()
		s.Collections[a.EntityType] = updated
		return
	}
	s.Collections[a.EntityType] = append([]entity.Record{a.Record.Clone()}, list...)
}

type RemoveRecord struct {
	EntityType entity.Type
	ID         string
}

func (a RemoveRecord) apply(s *State) {
	list := s.Collections[a.EntityType]
	i := indexOf(a.EntityType, list, a.ID)
	if i < 0 {
		return
	}
	updated := make([]entity.Record, 0, len(list)-1)
	updated = append(updated, list[:i]...)
	s.Collections[a.EntityType] = append(updated, list[i+1:]...)
}

type SetConnectivity struct {
	Online bool
}

func (a SetConnectivity) apply(s *State) { s.Online = a.Online }

type SetSyncing struct {
	Syncing bool
}

func (a SetSyncing) apply(s *State) { s.Syncing = a.Syncing }

func indexOf(t entity.Type, list []entity.Record, id string) int {
	for i, rec := range list {
		if recID, ok := entity.IDOf(t, rec); ok && recID == id {
			return i
		}
	}
	return -1
}

// Container хранит состояние и оповещает подписчиков об изменениях
type Container struct {
	mu     gosync.RWMutex
	state  State
	subs   map[int]chan uint64
	nextID int
}

func New() *Container {
	return &Container{
		state: State{Collections: make(map[entity.Type][]entity.Record)},
		subs:  make(map[int]chan uint64),
	}
}

// Dispatch применяет действия атомарно, подписчики видят одну версию
func (c *Container) Dispatch(actions ...Action) {
	if len(actions) == 0 {
		return
	}

	c.mu.Lock()
	for _, a := range actions {
		a.apply(&c.state)
	}
	c.state.Version++
	version := c.state.Version
	subs := make([]chan uint64, 0, len(c.subs))
	for _, ch := range c.subs {
		subs = append(subs, ch)
	}
	c.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- version:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- version:
			default:
			}
		}
	}
}

// Snapshot возвращает копию состояния; записи копируются глубоко
func (c *Container) Snapshot() State {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := State{
		Collections: make(map[entity.Type][]entity.Record, len(c.state.Collections)),
		Online:      c.state.Online,
		Syncing:     c.state.Syncing,
		Version:     c.state.Version,
	}
	for t, list := range c.state.Collections {
		out.Collections[t] = cloneList(list)
	}
	return out
}

// Collection возвращает копию одной коллекции
func (c *Container) Collection(t entity.Type) []entity.Record {
	c.mu.RLock()
	list := c.state.Collections[t]
	c.mu.RUnlock()
	return cloneList(list)
}

// Subscribe канал с последней версией после каждого Dispatch.
// Промежуточные версии могут пропускаться.
func (c *Container) Subscribe() (<-chan uint64, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.nextID
	c.nextID++
	ch := make(chan uint64, 1)
	c.subs[id] = ch

	var once gosync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.subs, id)
			c.mu.Unlock()
		})
	}
}

func cloneList(list []entity.Record) []entity.Record {
	out := make([]entity.Record, len(list))
	for i, rec := range list {
		out[i] = rec.Clone()
	}
	return out
}
