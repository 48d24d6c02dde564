package entity

import (
	"net/http"

	"github.com/danielgtaylor/huma/v2"
)

const basePath = "/api/v1/entities/{type}"

func (h *Handler) listOp() huma.Operation {
	return huma.Operation{
		OperationID: "entities-list",
		Method:      http.MethodGet,
		Path:        basePath,
		Summary:     "Страница записей в порядке вставки",
		Tags:        []string{"entities"},
		Middlewares: h.middleware,
	}
}

func (h *Handler) createOp() huma.Operation {
	return huma.Operation{
		OperationID: "entities-create",
		Method:      http.MethodPost,
		Path:        basePath,
		Summary:     "Создать запись",
		Description: "Повтор с тем же Idempotency-Key или существующим id возвращает сохраненную запись.",
		Tags:        []string{"entities"},
		Middlewares: h.middleware,
	}
}

func (h *Handler) updateOp() huma.Operation {
	return huma.Operation{
		OperationID: "entities-update",
		Method:      http.MethodPatch,
		Path:        basePath + "/{id}",
		Summary:     "Частично обновить запись",
		Tags:        []string{"entities"},
		Middlewares: h.middleware,
	}
}

func (h *Handler) deleteOp() huma.Operation {
	return huma.Operation{
		OperationID:   "entities-delete",
		Method:        http.MethodDelete,
		Path:          basePath + "/{id}",
		Summary:       "Удалить запись",
		DefaultStatus: http.StatusNoContent,
		Tags:          []string{"entities"},
		Middlewares:   h.middleware,
	}
}
