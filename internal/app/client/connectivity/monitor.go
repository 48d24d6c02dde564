// Package connectivity следит за доступностью сети
package connectivity

import (
	"context"
	"net"
	gosync "sync"
	"time"

	"golang.org/x/exp/slog"
)

const DefaultProbeInterval = 10 * time.Second

// Transition смена состояния связи
type Transition struct {
	Online bool
	At     time.Time
}

// Prober проверяет наличие связи одним запросом
type Prober interface {
	Probe(ctx context.Context) error
}

// ProberFunc функция как Prober
type ProberFunc func(ctx context.Context) error

func (f ProberFunc) Probe(ctx context.Context) error { return f(ctx) }

// DialProber считает сеть доступной, если удается открыть TCP-соединение
type DialProber struct {
	Address string
	Timeout time.Duration
}

func (p DialProber) Probe(ctx context.Context) error {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "tcp", p.Address)
	if err != nil {
		return err
	}
	return conn.Close()
}

type Monitor struct {
	prober   Prober
	interval time.Duration
	log      *slog.Logger

	mu     gosync.RWMutex
	online bool
	subs   map[int]chan Transition
	nextID int
}

func NewMonitor(prober Prober, interval time.Duration, log *slog.Logger) *Monitor {
	if interval <= 0 {
		interval = DefaultProbeInterval
	}
	return &Monitor{
		prober:   prober,
		interval: interval,
		log:      log.With("component", "connectivity"),
		subs:     make(map[int]chan Transition),
	}
}

func (m *Monitor) IsOnline() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.online
}

// Set фиксирует состояние и оповещает подписчиков, если оно изменилось
func (m *Monitor) Set(online bool) {
	m.mu.Lock()
	if m.online == online {
		m.mu.Unlock()
		return
	}
	m.online = online
	tr := Transition{Online: online, At: time.Now()}
	subs := make([]chan Transition, 0, len(m.subs))
	for _, ch := range m.subs {
		subs = append(subs, ch)
	}
	m.mu.Unlock()

	if online {
		m.log.Info("Связь восстановлена")
	} else {
		m.log.Warn("Связь потеряна")
	}

	for _, ch := range subs {
		// медленный подписчик получит только последнее состояние
		select {
		case ch <- tr:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- tr:
			default:
			}
		}
	}
}

// Subscribe возвращает канал переходов и функцию отписки
func (m *Monitor) Subscribe() (<-chan Transition, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextID
	m.nextID++
	ch := make(chan Transition, 1)
	m.subs[id] = ch

	var once gosync.Once
	return ch, func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.subs, id)
			m.mu.Unlock()
		})
	}
}

// Start выполняет первую проверку синхронно
func (m *Monitor) Start(ctx context.Context) bool {
	m.check(ctx)
	return m.IsOnline()
}

// Run опрашивает Prober до отмены ctx
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.check(ctx)
		}
	}
}

func (m *Monitor) check(ctx context.Context) {
	err := m.prober.Probe(ctx)
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		m.log.Debug("Проверка связи не прошла", "error", err)
	}
	m.Set(err == nil)
}
