package dto

import (
	"encoding/json"

	"github.com/thereayou/ligabpi/internal/docstore"
)

// CreateDocumentRequest тело POST /collections/:collection/documents
type CreateDocumentRequest struct {
	ID        string          `json:"id,omitempty"`
	UniqueKey string          `json:"uniqueKey,omitempty"`
	Private   bool            `json:"private,omitempty"`
	Data      json.RawMessage `json:"data" binding:"required"`
}

// PatchDocumentRequest тело PATCH, data сливается с телом документа
type PatchDocumentRequest struct {
	Data json.RawMessage `json:"data" binding:"required"`
}

type DocumentList struct {
	Documents []docstore.Document `json:"documents"`
	Total     int                 `json:"total"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}
