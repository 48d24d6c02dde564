package entity

import (
	"context"
	"errors"

	"github.com/danielgtaylor/huma/v2"
	"golang.org/x/exp/slog"

	"shiptrack/internal/domain/entity"
	"shiptrack/internal/domain/record"
)

type Handler struct {
	service    record.Servicer
	log        *slog.Logger
	middleware huma.Middlewares
}

func NewHandler(service record.Servicer, log *slog.Logger, mws huma.Middlewares) *Handler {
	return &Handler{
		service:    service,
		log:        log,
		middleware: mws,
	}
}

func (h *Handler) SetupRoutes(api huma.API) {
	huma.Register(api, h.listOp(), h.list)
	huma.Register(api, h.createOp(), h.create)
	huma.Register(api, h.updateOp(), h.update)
	huma.Register(api, h.deleteOp(), h.delete)
}

func (h *Handler) list(ctx context.Context, input *listInput) (*listOutput, error) {
	records, err := h.service.List(ctx, entity.Type(input.Type), record.Query{
		From:      input.From,
		To:        input.To,
		CompanyID: input.CompanyID,
	})
	if err != nil {
		return nil, h.httpError(err)
	}

	return &listOutput{
		Body: listResponse{Records: records},
	}, nil
}

func (h *Handler) create(ctx context.Context, input *createInput) (*output, error) {
	saved, err := h.service.Create(ctx, entity.Type(input.Type), input.Body.Record, input.IdempotencyKey)
	if err != nil {
		return nil, h.httpError(err)
	}

	return &output{Body: recordResponse{Record: saved}}, nil
}

func (h *Handler) update(ctx context.Context, input *updateInput) (*output, error) {
	saved, err := h.service.Update(ctx, entity.Type(input.Type), input.ID, input.Body.Patch)
	if err != nil {
		return nil, h.httpError(err)
	}

	return &output{Body: recordResponse{Record: saved}}, nil
}

func (h *Handler) delete(ctx context.Context, input *deleteInput) (*struct{}, error) {
	if err := h.service.Delete(ctx, entity.Type(input.Type), input.ID); err != nil {
		return nil, h.httpError(err)
	}
	return &struct{}{}, nil
}

func (h *Handler) httpError(err error) error {
	switch {
	case errors.Is(err, entity.ErrUnknownType):
		return huma.Error404NotFound(err.Error())
	case errors.Is(err, record.ErrNotFound):
		return huma.Error404NotFound(err.Error())
	case errors.Is(err, record.ErrInvalidRange),
		errors.Is(err, record.ErrInvalidData),
		errors.Is(err, record.ErrIDChange),
		errors.Is(err, entity.ErrMissingID):
		return huma.Error422UnprocessableEntity(err.Error())
	default:
		if h.log != nil {
			h.log.Error("entity request failed", "error", err)
		}
		return huma.Error500InternalServerError("internal error")
	}
}
