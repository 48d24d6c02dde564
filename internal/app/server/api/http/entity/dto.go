package entity

import (
	"shiptrack/internal/domain/entity"
)

type listInput struct {
	Type      string `path:"type" example:"shipments" doc:"Тип сущности"`
	From      int    `query:"from" default:"0" minimum:"0" doc:"Позиция первой записи"`
	To        int    `query:"to" default:"999" minimum:"0" doc:"Позиция последней записи, включительно"`
	CompanyID string `query:"company_id" doc:"Фильтр по компании для типов с арендатором"`
}

type listOutput struct {
	Body listResponse
}

type listResponse struct {
	Records []entity.Record `json:"records"`
}

type createInput struct {
	Type           string `path:"type" example:"shipments" doc:"Тип сущности"`
	IdempotencyKey string `header:"Idempotency-Key" doc:"Ключ повтора, обычно id мутации"`
	Body           struct {
		Record entity.Record `json:"record" doc:"Запись целиком"`
	}
}

type updateInput struct {
	Type           string `path:"type" example:"shipments" doc:"Тип сущности"`
	ID             string `path:"id" doc:"Ключ записи"`
	IdempotencyKey string `header:"Idempotency-Key"`
	Body           struct {
		Patch entity.Record `json:"patch" doc:"Изменяемые поля"`
	}
}

type deleteInput struct {
	Type           string `path:"type" example:"shipments" doc:"Тип сущности"`
	ID             string `path:"id" doc:"Ключ записи"`
	IdempotencyKey string `header:"Idempotency-Key"`
}

type output struct {
	Body recordResponse
}

type recordResponse struct {
	Record entity.Record `json:"record"`
}
