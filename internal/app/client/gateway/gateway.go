// Package gateway клиент REST API сущностей. Любая ошибка переводится
// в типы ошибок синхронизации до выхода из пакета.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/exp/slog"

	"shiptrack/internal/domain/entity"
	"shiptrack/internal/domain/sync"
)

const (
	DefaultPageSize     = 1000
	DefaultFetchTimeout = 20 * time.Second

	IdempotencyHeader = "Idempotency-Key"
)

type Config struct {
	BaseURL string
	// PageSize строк в одном окне [from, to]
	PageSize int
	// FetchTimeout ограничивает весь FetchAll, включая все страницы
	FetchTimeout time.Duration
	// RequestTimeout ограничивает одиночную запись
	RequestTimeout time.Duration
	UserAgent      string
}

// Filter сужает выборку по компании для типов с TenantScoped
type Filter struct {
	CompanyID string
}

type HTTPGateway struct {
	client *http.Client
	cfg    Config
	log    *slog.Logger
}

func New(cfg Config, log *slog.Logger) *HTTPGateway {
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = DefaultFetchTimeout
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = cfg.FetchTimeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "Shiptrack-Client/1.0"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	client := &http.Client{
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        100,
			IdleConnTimeout:     90 * time.Second,
			MaxIdleConnsPerHost: 16,
		},
	}

	return &HTTPGateway{
		client: client,
		cfg:    cfg,
		log:    log.With("component", "gateway"),
	}
}

type recordsResponse struct {
	Records []entity.Record `json:"records"`
}

type recordResponse struct {
	Record entity.Record `json:"record"`
}

// FetchAll читает все записи типа постранично, пока не придет неполная страница
func (g *HTTPGateway) FetchAll(ctx context.Context, t entity.Type, f Filter) ([]entity.Record, error) {
	desc, ok := entity.Lookup(t)
	if !ok {
		return nil, &sync.RemoteFetchError{Op: "fetch", EntityType: t, Err: entity.ErrUnknownType}
	}

	callCtx, cancel := context.WithTimeout(ctx, g.cfg.FetchTimeout)
	defer cancel()

	records := []entity.Record{}
	for from := 0; ; from += g.cfg.PageSize {
		q := url.Values{}
		q.Set("from", strconv.Itoa(from))
		q.Set("to", strconv.Itoa(from+g.cfg.PageSize-1))
		if desc.TenantScoped && f.CompanyID != "" {
			q.Set("company_id", f.CompanyID)
		}

		var page recordsResponse
		if err := g.do(ctx, callCtx, "fetch", t, http.MethodGet, entityPath(t)+"?"+q.Encode(), "", nil, &page); err != nil {
			return nil, err
		}
		records = append(records, page.Records...)

		if len(page.Records) < g.cfg.PageSize {
			break
		}
	}

	g.log.Debug("Коллекция загружена", "entity_type", t, "count", len(records))
	return records, nil
}

// Insert создает запись и возвращает подтвержденную сервером версию
func (g *HTTPGateway) Insert(ctx context.Context, t entity.Type, rec entity.Record, key string) (entity.Record, error) {
	callCtx, cancel := context.WithTimeout(ctx, g.cfg.RequestTimeout)
	defer cancel()

	var resp recordResponse
	body := recordResponse{Record: rec.WithPending(false)}
	if err := g.do(ctx, callCtx, "insert", t, http.MethodPost, entityPath(t), key, body, &resp); err != nil {
		return nil, err
	}
	return resp.Record, nil
}

// Update применяет частичное изменение к записи id
func (g *HTTPGateway) Update(ctx context.Context, t entity.Type, id string, patch entity.Record, key string) (entity.Record, error) {
	callCtx, cancel := context.WithTimeout(ctx, g.cfg.RequestTimeout)
	defer cancel()

	var resp recordResponse
	body := struct {
		Patch entity.Record `json:"patch"`
	}{Patch: patch.WithPending(false)}
	if err := g.do(ctx, callCtx, "update", t, http.MethodPatch, entityPath(t)+"/"+url.PathEscape(id), key, body, &resp); err != nil {
		return nil, err
	}
	return resp.Record, nil
}

func (g *HTTPGateway) Delete(ctx context.Context, t entity.Type, id string, key string) error {
	callCtx, cancel := context.WithTimeout(ctx, g.cfg.RequestTimeout)
	defer cancel()

	return g.do(ctx, callCtx, "delete", t, http.MethodDelete, entityPath(t)+"/"+url.PathEscape(id), key, nil, nil)
}

// Health проверяет доступность бэкенда
func (g *HTTPGateway) Health(ctx context.Context) error {
	callCtx, cancel := context.WithTimeout(ctx, g.cfg.RequestTimeout)
	defer cancel()

	return g.do(ctx, callCtx, "health", "", http.MethodGet, "/api/v1/health", "", nil, nil)
}

func entityPath(t entity.Type) string {
	return "/api/v1/entities/" + url.PathEscape(string(t))
}

// do выполняет запрос в callCtx; parent нужен, чтобы отличить отмену
// вызывающим от истечения собственного таймаута.
func (g *HTTPGateway) do(parent, callCtx context.Context, op string, t entity.Type, method, path, key string, body, result any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return &sync.RemoteFetchError{Op: op, EntityType: t, Err: fmt.Errorf("ошибка маршалинга тела запроса: %w", err)}
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(callCtx, method, g.cfg.BaseURL+path, reqBody)
	if err != nil {
		return &sync.RemoteFetchError{Op: op, EntityType: t, Err: fmt.Errorf("ошибка создания запроса: %w", err)}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", g.cfg.UserAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if key != "" {
		req.Header.Set(IdempotencyHeader, key)
	}

	g.log.Debug("Отправка запроса", "method", method, "url", req.URL.String())

	resp, err := g.client.Do(req)
	if err != nil {
		return classify(parent, callCtx, op, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return classify(parent, callCtx, op, err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return &sync.RemoteFetchError{
			Op:         op,
			EntityType: t,
			StatusCode: resp.StatusCode,
			Message:    errorMessage(resp.StatusCode, data),
		}
	}

	if result != nil && len(data) > 0 {
		if err := json.Unmarshal(data, result); err != nil {
			return &sync.RemoteFetchError{
				Op:         op,
				EntityType: t,
				StatusCode: resp.StatusCode,
				Err:        fmt.Errorf("ошибка парсинга ответа: %w", err),
			}
		}
	}

	return nil
}

func classify(parent, callCtx context.Context, op string, err error) error {
	if parent.Err() != nil && errors.Is(parent.Err(), context.Canceled) {
		return parent.Err()
	}
	if callCtx.Err() != nil {
		return &sync.TimeoutError{Op: op, Err: callCtx.Err()}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &sync.TimeoutError{Op: op, Err: err}
	}
	return &sync.NetworkError{Op: op, Err: err}
}

// errorMessage извлекает текст ошибки из тела ответа (problem+json или {"error": ...})
func errorMessage(status int, body []byte) string {
	var problem struct {
		Title  string `json:"title"`
		Detail string `json:"detail"`
		Error  string `json:"error"`
	}
	if err := json.Unmarshal(body, &problem); err == nil {
		switch {
		case problem.Detail != "":
			return problem.Detail
		case problem.Error != "":
			return problem.Error
		case problem.Title != "":
			return problem.Title
		}
	}
	if text := strings.TrimSpace(string(body)); text != "" && len(text) < 512 {
		return text
	}
	return http.StatusText(status)
}
