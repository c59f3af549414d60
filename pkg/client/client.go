// Package client talks to the league server over HTTP and websocket. A Client
// is a docstore.Store and a league.Identity, so the feed, the prediction guard
// and the catalog run against a remote server unchanged.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/thereayou/ligabpi/internal/docstore"
	"github.com/thereayou/ligabpi/internal/handlers/dto"
	"github.com/thereayou/ligabpi/internal/league"
)

const apiPrefix = "/api/v1"

type Client struct {
	baseURL string
	http    *http.Client
	dialer  *websocket.Dialer
	log     *slog.Logger

	mu    sync.RWMutex
	token string
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option { return func(c *Client) { c.http = hc } }
func WithToken(token string) Option         { return func(c *Client) { c.token = token } }
func WithLogger(log *slog.Logger) Option    { return func(c *Client) { c.log = log } }

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 15 * time.Second},
		dialer:  &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		log:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var (
	_ docstore.Store  = (*Client)(nil)
	_ league.Identity = (*Client)(nil)
)

func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

func (c *Client) setToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

func (c *Client) Register(ctx context.Context, name, email, password string) (league.User, error) {
	var info dto.UserInfo
	err := c.do(ctx, http.MethodPost, "/auth/register", dto.RegisterRequest{Name: name, Email: email, Password: password}, &info)
	if err != nil {
		return league.User{}, err
	}
	return league.User(info), nil
}

// Login keeps the issued token for later calls.
func (c *Client) Login(ctx context.Context, email, password string) (dto.LoginResponse, error) {
	var resp dto.LoginResponse
	if err := c.do(ctx, http.MethodPost, "/auth/login", dto.LoginRequest{Email: email, Password: password}, &resp); err != nil {
		return dto.LoginResponse{}, err
	}
	c.setToken(resp.Token)
	return resp, nil
}

func (c *Client) Logout(ctx context.Context) error {
	if c.Token() == "" {
		return nil
	}
	err := c.do(ctx, http.MethodPost, "/auth/logout", nil, nil)
	c.setToken("")
	return err
}

// CurrentUser returns nil, nil without a token or when the server no longer
// accepts it.
func (c *Client) CurrentUser(ctx context.Context) (*league.User, error) {
	if c.Token() == "" {
		return nil, nil
	}
	var info dto.UserInfo
	err := c.do(ctx, http.MethodGet, apiPrefix+"/account/me", nil, &info)
	if isStatus(err, http.StatusUnauthorized) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	user := league.User(info)
	return &user, nil
}

func documentsPath(collection string) string {
	return apiPrefix + "/collections/" + url.PathEscape(collection) + "/documents"
}

// List sends q as JSON; Viewer is decided by the server from the token.
func (c *Client) List(ctx context.Context, collection string, q docstore.Query) ([]docstore.Document, error) {
	raw, err := json.Marshal(q)
	if err != nil {
		return nil, fmt.Errorf("encode query: %w", err)
	}
	var out dto.DocumentList
	path := documentsPath(collection) + "?q=" + url.QueryEscape(string(raw))
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Documents, nil
}

func (c *Client) Get(ctx context.Context, collection, id string) (docstore.Document, error) {
	var doc docstore.Document
	err := c.do(ctx, http.MethodGet, documentsPath(collection)+"/"+url.PathEscape(id), nil, &doc)
	return doc, err
}

func (c *Client) Create(ctx context.Context, collection string, nd docstore.NewDocument) (docstore.Document, error) {
	return c.create(ctx, collection, dto.CreateDocumentRequest{ID: nd.ID, Private: nd.Private, Data: nd.Data})
}

func (c *Client) CreateUnique(ctx context.Context, collection, key string, nd docstore.NewDocument) (docstore.Document, error) {
	if key == "" {
		return docstore.Document{}, docstore.ErrInvalidDocument
	}
	return c.create(ctx, collection, dto.CreateDocumentRequest{ID: nd.ID, UniqueKey: key, Private: nd.Private, Data: nd.Data})
}

func (c *Client) create(ctx context.Context, collection string, req dto.CreateDocumentRequest) (docstore.Document, error) {
	var doc docstore.Document
	err := c.do(ctx, http.MethodPost, documentsPath(collection), req, &doc)
	return doc, err
}

func (c *Client) Update(ctx context.Context, collection, id string, patch json.RawMessage) (docstore.Document, error) {
	var doc docstore.Document
	err := c.do(ctx, http.MethodPatch, documentsPath(collection)+"/"+url.PathEscape(id), dto.PatchDocumentRequest{Data: patch}, &doc)
	return doc, err
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal body: %w", err)
		}
		r = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, r)
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	c.log.Debug("api call", "method", method, "path", path, "status", resp.StatusCode)

	if resp.StatusCode >= 300 {
		return decodeError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

// decodeError reports every 400 as a ValidationError; the server only sends
// 400 for malformed input.
func decodeError(resp *http.Response) error {
	var body dto.ErrorResponse
	data, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(data, &body); err != nil || body.Error == "" {
		body.Error = strings.TrimSpace(string(data))
	}
	if resp.StatusCode == http.StatusBadRequest {
		return &league.ValidationError{Field: body.Field, Reason: body.Error}
	}
	return &APIError{Status: resp.StatusCode, Message: body.Error, Field: body.Field}
}

func isStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == status
}
