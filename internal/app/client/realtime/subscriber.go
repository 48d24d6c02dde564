// Package realtime подписка на ленту изменений сервера
package realtime

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/exp/slog"

	"shiptrack/internal/domain/entity"
	"shiptrack/internal/domain/mutation"
)

const FeedPath = "/api/v1/realtime"

// Event уведомление об изменении записи на сервере
type Event struct {
	EntityType entity.Type `json:"entity_type"`
	ID         string      `json:"id"`
	Op         string      `json:"op"`
}

type Subscriber struct {
	url        string
	dialer     *websocket.Dialer
	log        *slog.Logger
	minBackoff time.Duration
	maxBackoff time.Duration
}

// FeedURL строит адрес ленты изменений из адреса бэкенда
func FeedURL(baseURL string) (string, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path += FeedPath
	return u.String(), nil
}

func NewSubscriber(feedURL string, minBackoff, maxBackoff time.Duration, log *slog.Logger) *Subscriber {
	if minBackoff <= 0 {
		minBackoff = time.Second
	}
	if maxBackoff < minBackoff {
		maxBackoff = minBackoff
	}
	return &Subscriber{
		url:        feedURL,
		dialer:     &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		log:        log.With("component", "realtime"),
		minBackoff: minBackoff,
		maxBackoff: maxBackoff,
	}
}

// Run держит подключение к ленте, пока онлайн, и передает события в handle.
// После обрыва переподключается с экспоненциальной задержкой.
func (s *Subscriber) Run(ctx context.Context, online func() bool, handle func(Event)) {
	failures := 0
	for {
		if online() {
			err := s.listen(ctx, handle)
			if ctx.Err() != nil {
				return
			}
			if err != nil {
				s.log.Debug("Лента изменений недоступна", "error", err, "failures", failures+1)
				failures++
			} else {
				failures = 0
			}
		}

		wait := s.minBackoff
		if failures > 0 {
			wait = mutation.Backoff(failures-1, s.minBackoff, s.maxBackoff)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

func (s *Subscriber) listen(ctx context.Context, handle func(Event)) error {
	conn, _, err := s.dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return err
	}

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
		case <-stop:
		}
		conn.Close()
	}()

	s.log.Info("Подписка на ленту изменений", "url", s.url)

	for {
		var ev Event
		if err := conn.ReadJSON(&ev); err != nil {
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) && (closeErr.Code == websocket.CloseNormalClosure || closeErr.Code == websocket.CloseGoingAway) {
				return nil
			}
			return err
		}
		if !ev.EntityType.Valid() {
			s.log.Debug("Пропуск события неизвестного типа", "entity_type", ev.EntityType)
			continue
		}
		handle(ev)
	}
}
