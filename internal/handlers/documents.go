package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/thereayou/ligabpi/internal/docstore"
	"github.com/thereayou/ligabpi/internal/handlers/dto"
	"github.com/thereayou/ligabpi/internal/league"
	"github.com/thereayou/ligabpi/internal/middleware"
	"github.com/thereayou/ligabpi/internal/predictions"
	"github.com/thereayou/ligabpi/internal/realtime"
)

// Коллекции, в которые пишут обычные пользователи. Остальные заполняет админ.
var userWritable = map[string]bool{
	league.ChatMessages: true,
	league.Predictions:  true,
	league.Profiles:     true,
}

// Observer получает уведомления о записях для метрик.
type Observer interface {
	DocumentCreated(collection string)
	predictions.Recorder
}

type DocumentHandler struct {
	store    docstore.Store
	isAdmin  func(email string) bool
	observer Observer
	log      *slog.Logger
}

func NewDocumentHandler(store docstore.Store, isAdmin func(string) bool, observer Observer, log *slog.Logger) *DocumentHandler {
	if isAdmin == nil {
		isAdmin = func(string) bool { return false }
	}
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &DocumentHandler{store: store, isAdmin: isAdmin, observer: observer, log: log}
}

// List GET /collections/:collection/documents?q={json query}
func (h *DocumentHandler) List(c *gin.Context) {
	collection, ok := h.collection(c)
	if !ok {
		return
	}

	var q docstore.Query
	if raw := c.Query("q"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &q); err != nil {
			badRequest(c, fmt.Errorf("invalid query: %w", err))
			return
		}
	}
	if err := q.Validate(); err != nil {
		badRequest(c, err)
		return
	}
	if user, ok := middleware.CurrentUser(c); ok {
		q.Viewer = user.ID
	}

	docs, err := h.store.List(c.Request.Context(), collection, q)
	if err != nil {
		abort(c, h.log, err)
		return
	}
	if docs == nil {
		docs = []docstore.Document{}
	}
	c.JSON(http.StatusOK, dto.DocumentList{Documents: docs, Total: len(docs)})
}

func (h *DocumentHandler) Get(c *gin.Context) {
	collection, ok := h.collection(c)
	if !ok {
		return
	}
	doc, err := h.visible(c, collection, c.Param("id"))
	if err != nil {
		abort(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

func (h *DocumentHandler) Create(c *gin.Context) {
	collection, ok := h.collection(c)
	if !ok {
		return
	}
	user, ok := middleware.CurrentUser(c)
	if !ok {
		abort(c, h.log, errUnauthorized)
		return
	}

	var req dto.CreateDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if !userWritable[collection] && !h.isAdmin(user.Email) {
		abort(c, h.log, errForbidden)
		return
	}
	if err := docstore.CheckObject(req.Data); err != nil {
		abort(c, h.log, err)
		return
	}
	if err := league.Validate(collection, req.Data); err != nil {
		abort(c, h.log, err)
		return
	}
	if err := claim(collection, user, &req); err != nil {
		abort(c, h.log, err)
		return
	}

	nd := docstore.NewDocument{ID: req.ID, OwnerID: user.ID, Private: req.Private, Data: req.Data}
	ctx := c.Request.Context()
	var (
		doc docstore.Document
		err error
	)
	if req.UniqueKey != "" {
		doc, err = h.store.CreateUnique(ctx, collection, req.UniqueKey, nd)
	} else {
		doc, err = h.store.Create(ctx, collection, nd)
	}
	if err != nil {
		if collection == league.Predictions && errors.Is(err, docstore.ErrConflict) && h.observer != nil {
			h.observer.PredictionRejected(predictions.RejectDuplicate)
		}
		abort(c, h.log, err)
		return
	}

	if h.observer != nil {
		h.observer.DocumentCreated(collection)
	}
	h.log.Debug("document created", "collection", collection, "id", doc.ID, "owner", user.ID)
	c.JSON(http.StatusCreated, doc)
}

func (h *DocumentHandler) Patch(c *gin.Context) {
	collection, ok := h.collection(c)
	if !ok {
		return
	}
	user, ok := middleware.CurrentUser(c)
	if !ok {
		abort(c, h.log, errUnauthorized)
		return
	}

	var req dto.PatchDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if err := docstore.CheckObject(req.Data); err != nil {
		abort(c, h.log, err)
		return
	}

	ctx := c.Request.Context()
	doc, err := h.visible(c, collection, c.Param("id"))
	if err != nil {
		abort(c, h.log, err)
		return
	}

	admin := h.isAdmin(user.Email)
	// сообщения чата и прогнозы после создания не меняются
	if !admin && (doc.OwnerID != user.ID || collection == league.Predictions || collection == league.ChatMessages) {
		abort(c, h.log, errForbidden)
		return
	}

	merged, err := docstore.MergePatch(doc.Data, req.Data)
	if err != nil {
		abort(c, h.log, err)
		return
	}
	if err := league.Validate(collection, merged); err != nil {
		abort(c, h.log, err)
		return
	}
	if !admin {
		check := dto.CreateDocumentRequest{ID: doc.ID, Data: merged}
		if err := claim(collection, user, &check); err != nil {
			abort(c, h.log, err)
			return
		}
	}

	updated, err := h.store.Update(ctx, collection, doc.ID, req.Data)
	if err != nil {
		abort(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

func (h *DocumentHandler) collection(c *gin.Context) (string, bool) {
	name := c.Param("collection")
	if !realtime.ValidTopic(docstore.Topic(name)) {
		c.AbortWithStatusJSON(http.StatusNotFound, dto.ErrorResponse{Error: "unknown collection"})
		return "", false
	}
	return name, true
}

// visible прячет чужие приватные документы так же, как их отсутствие
func (h *DocumentHandler) visible(c *gin.Context, collection, id string) (docstore.Document, error) {
	doc, err := h.store.Get(c.Request.Context(), collection, id)
	if err != nil {
		return docstore.Document{}, err
	}
	var viewer string
	if user, ok := middleware.CurrentUser(c); ok {
		viewer = user.ID
	}
	if !docstore.Visible(doc, viewer) {
		return docstore.Document{}, docstore.ErrNotFound
	}
	return doc, nil
}

type ownership struct {
	Text     string `json:"text"`
	AuthorID string `json:"authorId"`
	UserID   string `json:"userId"`
	MatchID  string `json:"matchId"`
}

// claim проверяет, что пользователь пишет от своего имени, и проставляет
// ключ уникальности прогноза: один прогноз на пару пользователь/матч.
func claim(collection string, user league.User, req *dto.CreateDocumentRequest) error {
	var o ownership
	if err := json.Unmarshal(req.Data, &o); err != nil {
		return docstore.ErrInvalidDocument
	}

	switch collection {
	case league.ChatMessages:
		if o.AuthorID != user.ID {
			return fmt.Errorf("%w: authorId must be the caller", errForbidden)
		}
		data, err := withField(req.Data, "text", strings.TrimSpace(o.Text))
		if err != nil {
			return err
		}
		req.Data = data
	case league.Predictions:
		if o.UserID != user.ID {
			return fmt.Errorf("%w: userId must be the caller", errForbidden)
		}
		req.UniqueKey = league.PredictionKey(o.UserID, o.MatchID)
		req.Private = true
	case league.Profiles:
		if req.ID == "" {
			req.ID = user.ID
		}
		if req.ID != user.ID {
			return fmt.Errorf("%w: profile id must be the caller", errForbidden)
		}
	}
	return nil
}

// withField возвращает копию объекта data с заменённым полем key.
func withField(data json.RawMessage, key string, value any) (json.RawMessage, error) {
	var body map[string]json.RawMessage
	if err := json.Unmarshal(data, &body); err != nil {
		return nil, docstore.ErrInvalidDocument
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	body[key] = raw
	return json.Marshal(body)
}
