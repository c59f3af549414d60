package client

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/thereayou/ligabpi/internal/docstore"
)

var (
	ErrNotSignedIn  = errors.New("not signed in")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
)

// APIError is a non-2xx server response. Unwrap maps the status onto the
// docstore sentinels, so errors.Is(err, docstore.ErrNotFound) holds for the
// remote store as it does for the local ones.
type APIError struct {
	Status  int
	Message string
	Field   string
}

func (e *APIError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("api %d: %s: %s", e.Status, e.Field, e.Message)
	}
	return fmt.Sprintf("api %d: %s", e.Status, e.Message)
}

func (e *APIError) Unwrap() error {
	switch e.Status {
	case http.StatusNotFound:
		return docstore.ErrNotFound
	case http.StatusConflict:
		return docstore.ErrConflict
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		return ErrForbidden
	}
	return nil
}
