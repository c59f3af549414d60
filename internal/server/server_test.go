package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/thereayou/ligabpi/internal/database"
	"github.com/thereayou/ligabpi/internal/docstore"
	"github.com/thereayou/ligabpi/internal/handlers/dto"
	"github.com/thereayou/ligabpi/internal/league"
	"github.com/thereayou/ligabpi/internal/realtime"
	"github.com/thereayou/ligabpi/pkg/auth"
)

const adminEmail = "admin@liga.pt"

func newTestServer(t *testing.T, origins ...string) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	gdb, err := database.Open(database.DriverSQLite, ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	s := New(Options{
		DB:         database.NewDatabase(gdb, nil),
		JWTManager: auth.NewJWTManager("test-secret", time.Hour),
		IsAdmin:    func(email string) bool { return email == adminEmail },

		AllowedOrigins: origins,
	})
	t.Cleanup(func() { s.Close() })
	return s
}

func do(t *testing.T, s *Server, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.Router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %s: %v", w.Body.String(), err)
	}
	return v
}

// signUp регистрирует пользователя и возвращает токен и id
func signUp(t *testing.T, s *Server, name, email string) (string, string) {
	t.Helper()
	w := do(t, s, http.MethodPost, "/auth/register", "", dto.RegisterRequest{Name: name, Email: email, Password: "golo-da-ju"})
	if w.Code != http.StatusCreated {
		t.Fatalf("register %s: %d %s", email, w.Code, w.Body.String())
	}
	w = do(t, s, http.MethodPost, "/auth/login", "", dto.LoginRequest{Email: email, Password: "golo-da-ju"})
	if w.Code != http.StatusOK {
		t.Fatalf("login %s: %d %s", email, w.Code, w.Body.String())
	}
	resp := decode[dto.LoginResponse](t, w)
	return resp.Token, resp.User.ID
}

func docsPath(collection string) string {
	return "/api/v1/collections/" + collection + "/documents"
}

func TestAuthFlow(t *testing.T) {
	s := newTestServer(t)
	token, id := signUp(t, s, "Ana", "ana@liga.pt")

	w := do(t, s, http.MethodPost, "/auth/register", "", dto.RegisterRequest{Name: "Ana", Email: "ANA@liga.pt", Password: "outra-senha"})
	if w.Code != http.StatusConflict {
		t.Fatalf("duplicate register = %d", w.Code)
	}
	w = do(t, s, http.MethodPost, "/auth/login", "", dto.LoginRequest{Email: "ana@liga.pt", Password: "errada123"})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("wrong password = %d", w.Code)
	}

	w = do(t, s, http.MethodGet, "/api/v1/account/me", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("me = %d %s", w.Code, w.Body.String())
	}
	if me := decode[dto.UserInfo](t, w); me.ID != id || me.Name != "Ana" {
		t.Fatalf("me = %+v", me)
	}

	if w := do(t, s, http.MethodPost, "/auth/logout", token, nil); w.Code != http.StatusNoContent {
		t.Fatalf("logout = %d", w.Code)
	}
	if w := do(t, s, http.MethodGet, "/api/v1/account/me", token, nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("me after logout = %d", w.Code)
	}
}

func TestDocuments_ChatWritePolicy(t *testing.T) {
	s := newTestServer(t)
	token, id := signUp(t, s, "Ana", "ana@liga.pt")

	msg := dto.CreateDocumentRequest{Data: league.ChatMessageBody("Força!", league.User{ID: id, Name: "Ana"})}
	if w := do(t, s, http.MethodPost, docsPath(league.ChatMessages), "", msg); w.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous create = %d", w.Code)
	}

	forged := dto.CreateDocumentRequest{Data: league.ChatMessageBody("Olá", league.User{ID: "someone-else", Name: "Rui"})}
	if w := do(t, s, http.MethodPost, docsPath(league.ChatMessages), token, forged); w.Code != http.StatusForbidden {
		t.Fatalf("forged author = %d", w.Code)
	}

	missing := dto.CreateDocumentRequest{Data: json.RawMessage(`{"authorId":"` + id + `","authorName":"Ana"}`)}
	if w := do(t, s, http.MethodPost, docsPath(league.ChatMessages), token, missing); w.Code != http.StatusBadRequest {
		t.Fatalf("missing text = %d %s", w.Code, w.Body.String())
	}

	w := do(t, s, http.MethodPost, docsPath(league.ChatMessages), token, msg)
	if w.Code != http.StatusCreated {
		t.Fatalf("create = %d %s", w.Code, w.Body.String())
	}
	created := decode[docstore.Document](t, w)
	if created.OwnerID != id {
		t.Fatalf("owner = %q", created.OwnerID)
	}

	// Читать ленту можно без входа
	w = do(t, s, http.MethodGet, docsPath(league.ChatMessages), "", nil)
	list := decode[dto.DocumentList](t, w)
	if w.Code != http.StatusOK || list.Total != 1 {
		t.Fatalf("list = %d %s", w.Code, w.Body.String())
	}
	m, err := league.ParseChatMessage(list.Documents[0])
	if err != nil || m.Text != "Força!" {
		t.Fatalf("message = %+v, %v", m, err)
	}

	blank := dto.CreateDocumentRequest{Data: league.ChatMessageBody("   ", league.User{ID: id, Name: "Ana"})}
	if w := do(t, s, http.MethodPost, docsPath(league.ChatMessages), token, blank); w.Code != http.StatusBadRequest {
		t.Fatalf("blank text = %d %s", w.Code, w.Body.String())
	}

	// Пробелы по краям сервер обрезает сам
	padded := dto.CreateDocumentRequest{Data: league.ChatMessageBody("  golo!\n", league.User{ID: id, Name: "Ana"})}
	w = do(t, s, http.MethodPost, docsPath(league.ChatMessages), token, padded)
	if w.Code != http.StatusCreated {
		t.Fatalf("padded create = %d %s", w.Code, w.Body.String())
	}
	var body struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(decode[docstore.Document](t, w).Data, &body); err != nil || body.Text != "golo!" {
		t.Fatalf("stored text = %q, %v", body.Text, err)
	}

	// Сообщения не редактируются, даже автором
	edit := dto.PatchDocumentRequest{Data: json.RawMessage(`{"text":"editado"}`)}
	if w := do(t, s, http.MethodPatch, docsPath(league.ChatMessages)+"/"+created.ID, token, edit); w.Code != http.StatusForbidden {
		t.Fatalf("owner edit = %d %s", w.Code, w.Body.String())
	}
	w = do(t, s, http.MethodGet, docsPath(league.ChatMessages)+"/"+created.ID, "", nil)
	if m, err := league.ParseChatMessage(decode[docstore.Document](t, w)); err != nil || m.Text != "Força!" {
		t.Fatalf("message after edit attempt = %+v, %v", m, err)
	}
}

func TestDocuments_ReferenceDataIsAdminOnly(t *testing.T) {
	s := newTestServer(t)
	fan, _ := signUp(t, s, "Ana", "ana@liga.pt")
	admin, _ := signUp(t, s, "Liga", adminEmail)

	club := dto.CreateDocumentRequest{ID: "slb", Data: json.RawMessage(`{"name":"Benfica","category":"senior"}`)}
	if w := do(t, s, http.MethodPost, docsPath(league.Clubs), fan, club); w.Code != http.StatusForbidden {
		t.Fatalf("fan create club = %d", w.Code)
	}
	if w := do(t, s, http.MethodPost, docsPath(league.Clubs), admin, club); w.Code != http.StatusCreated {
		t.Fatalf("admin create club = %d %s", w.Code, w.Body.String())
	}
	if w := do(t, s, http.MethodPost, docsPath(league.Clubs), admin, club); w.Code != http.StatusConflict {
		t.Fatalf("duplicate id = %d", w.Code)
	}

	w := do(t, s, http.MethodGet, docsPath(league.Clubs)+"/slb", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get club = %d", w.Code)
	}
	if w := do(t, s, http.MethodGet, docsPath(league.Clubs)+"/scp", "", nil); w.Code != http.StatusNotFound {
		t.Fatalf("missing club = %d", w.Code)
	}
	if w := do(t, s, http.MethodGet, "/api/v1/collections/a.b/documents", "", nil); w.Code != http.StatusNotFound {
		t.Fatalf("bad collection = %d", w.Code)
	}
}

func TestDocuments_PredictionsAreUniqueAndPrivate(t *testing.T) {
	s := newTestServer(t)
	ana, anaID := signUp(t, s, "Ana", "ana@liga.pt")
	rui, _ := signUp(t, s, "Rui", "rui@liga.pt")

	pred := dto.CreateDocumentRequest{Data: league.PredictionBody(league.Prediction{
		UserID:      anaID,
		MatchID:     "m1",
		Outcome:     league.OutcomeHome,
		SubmittedAt: time.Now(),
	})}
	w := do(t, s, http.MethodPost, docsPath(league.Predictions), ana, pred)
	if w.Code != http.StatusCreated {
		t.Fatalf("first prediction = %d %s", w.Code, w.Body.String())
	}
	doc := decode[docstore.Document](t, w)
	if !doc.Private || doc.UniqueKey != league.PredictionKey(anaID, "m1") {
		t.Fatalf("prediction doc = %+v", doc)
	}

	// без uniqueKey от клиента сервер всё равно не пропустит второй прогноз
	if w := do(t, s, http.MethodPost, docsPath(league.Predictions), ana, pred); w.Code != http.StatusConflict {
		t.Fatalf("second prediction = %d", w.Code)
	}
	if body := do(t, s, http.MethodGet, "/metrics", "", nil).Body.String(); !strings.Contains(body, `liga_predictions_rejected_total{reason="duplicate"} 1`) {
		t.Fatal("duplicate prediction not counted")
	}

	if list := decode[dto.DocumentList](t, do(t, s, http.MethodGet, docsPath(league.Predictions), rui, nil)); list.Total != 0 {
		t.Fatalf("rui sees %d predictions", list.Total)
	}
	if list := decode[dto.DocumentList](t, do(t, s, http.MethodGet, docsPath(league.Predictions), ana, nil)); list.Total != 1 {
		t.Fatalf("ana sees %d predictions", list.Total)
	}
	if w := do(t, s, http.MethodGet, docsPath(league.Predictions)+"/"+doc.ID, rui, nil); w.Code != http.StatusNotFound {
		t.Fatalf("rui get = %d", w.Code)
	}

	patch := dto.PatchDocumentRequest{Data: json.RawMessage(`{"outcome":"away"}`)}
	if w := do(t, s, http.MethodPatch, docsPath(league.Predictions)+"/"+doc.ID, ana, patch); w.Code != http.StatusForbidden {
		t.Fatalf("patch prediction = %d", w.Code)
	}
}

func TestDocuments_ProfilePatch(t *testing.T) {
	s := newTestServer(t)
	ana, anaID := signUp(t, s, "Ana", "ana@liga.pt")
	rui, _ := signUp(t, s, "Rui", "rui@liga.pt")

	profile := dto.CreateDocumentRequest{Data: json.RawMessage(`{"name":"Ana","email":"ana@liga.pt"}`)}
	w := do(t, s, http.MethodPost, docsPath(league.Profiles), ana, profile)
	if w.Code != http.StatusCreated {
		t.Fatalf("create profile = %d %s", w.Code, w.Body.String())
	}
	if doc := decode[docstore.Document](t, w); doc.ID != anaID {
		t.Fatalf("profile id = %q", doc.ID)
	}

	path := docsPath(league.Profiles) + "/" + anaID
	patch := dto.PatchDocumentRequest{Data: json.RawMessage(`{"favoriteClub":"slb"}`)}
	if w := do(t, s, http.MethodPatch, path, rui, patch); w.Code != http.StatusForbidden {
		t.Fatalf("foreign patch = %d", w.Code)
	}
	w = do(t, s, http.MethodPatch, path, ana, patch)
	if w.Code != http.StatusOK {
		t.Fatalf("patch = %d %s", w.Code, w.Body.String())
	}
	p, err := league.ParseProfile(decode[docstore.Document](t, w))
	if err != nil || p.FavoriteClub != "slb" || p.Name != "Ana" {
		t.Fatalf("profile = %+v, %v", p, err)
	}
}

func TestDocuments_ListQuery(t *testing.T) {
	s := newTestServer(t)
	admin, _ := signUp(t, s, "Liga", adminEmail)
	for _, body := range []string{
		`{"name":"Kika","clubId":"slb","position":"FW"}`,
		`{"name":"Ana","clubId":"slb","position":"MF"}`,
		`{"name":"Diana","clubId":"scp","position":"DF"}`,
	} {
		if w := do(t, s, http.MethodPost, docsPath(league.Players), admin, dto.CreateDocumentRequest{Data: json.RawMessage(body)}); w.Code != http.StatusCreated {
			t.Fatalf("create player = %d %s", w.Code, w.Body.String())
		}
	}

	q, _ := json.Marshal(docstore.Query{
		Filters: []docstore.Filter{docstore.Equal("clubId", "slb")},
		OrderBy: []docstore.Order{docstore.Asc("name")},
	})
	w := do(t, s, http.MethodGet, docsPath(league.Players)+"?q="+url.QueryEscape(string(q)), "", nil)
	players, err := league.ParseAll(decode[dto.DocumentList](t, w).Documents, league.ParsePlayer)
	if err != nil || len(players) != 2 || players[0].Name != "Ana" {
		t.Fatalf("players = %+v, %v", players, err)
	}

	if w := do(t, s, http.MethodGet, docsPath(league.Players)+"?q="+url.QueryEscape(`{"limit":-1}`), "", nil); w.Code != http.StatusBadRequest {
		t.Fatalf("negative limit = %d", w.Code)
	}
	if w := do(t, s, http.MethodGet, docsPath(league.Players)+"?q=nope", "", nil); w.Code != http.StatusBadRequest {
		t.Fatalf("bad json = %d", w.Code)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t)
	if w := do(t, s, http.MethodGet, "/healthz", "", nil); w.Code != http.StatusOK {
		t.Fatalf("healthz = %d", w.Code)
	}
	token, id := signUp(t, s, "Ana", "ana@liga.pt")
	do(t, s, http.MethodPost, docsPath(league.ChatMessages), token,
		dto.CreateDocumentRequest{Data: league.ChatMessageBody("golo", league.User{ID: id, Name: "Ana"})})

	w := do(t, s, http.MethodGet, "/metrics", "", nil)
	body := w.Body.String()
	if !strings.Contains(body, `liga_documents_created_total{collection="chat_messages"} 1`) {
		t.Fatalf("metrics missing document counter:\n%s", body)
	}
	if !strings.Contains(body, "liga_http_requests_total") {
		t.Fatal("metrics missing request counter")
	}
}

func TestRealtime_DeliversCreatedMessages(t *testing.T) {
	s := newTestServer(t)
	go s.Hub.Run()
	t.Cleanup(s.Hub.Stop)
	srv := httptest.NewServer(s.Router)
	t.Cleanup(srv.Close)

	token, id := signUp(t, s, "Ana", "ana@liga.pt")

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/realtime"
	if _, _, err := websocket.DefaultDialer.Dial(wsURL, nil); err == nil {
		t.Fatal("anonymous websocket accepted")
	}
	conn, _, err := websocket.DefaultDialer.Dial(wsURL+"?token="+token, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	topic := docstore.Topic(league.ChatMessages)
	conn.WriteJSON(realtime.Message{Type: realtime.TypeSubscribe, Topic: topic})
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ack realtime.Message
	if err := conn.ReadJSON(&ack); err != nil || ack.Type != realtime.TypeSubscribed {
		t.Fatalf("ack = %+v, %v", ack, err)
	}

	do(t, s, http.MethodPost, docsPath(league.ChatMessages), token,
		dto.CreateDocumentRequest{Data: league.ChatMessageBody("ao vivo", league.User{ID: id, Name: "Ana"})})

	var msg realtime.Message
	if err := conn.ReadJSON(&msg); err != nil || msg.Type != realtime.TypeEvent {
		t.Fatalf("event = %+v, %v", msg, err)
	}
	var ev docstore.Event
	json.Unmarshal(msg.Data, &ev)
	if m, err := league.ParseChatMessage(ev.Document); err != nil || m.Text != "ao vivo" {
		t.Fatalf("event message = %+v, %v", m, err)
	}
}

func TestRealtime_ChecksOrigin(t *testing.T) {
	s := newTestServer(t, "https://liga.pt")
	go s.Hub.Run()
	t.Cleanup(s.Hub.Stop)
	srv := httptest.NewServer(s.Router)
	t.Cleanup(srv.Close)

	token, _ := signUp(t, s, "Ana", "ana@liga.pt")
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/realtime?token=" + token

	for origin, ok := range map[string]bool{
		"":                   true,
		"https://liga.pt":    true,
		"https://LIGA.pt":    true,
		"https://evil.co":    false,
		"http://liga.pt:666": false,
	} {
		header := http.Header{}
		if origin != "" {
			header.Set("Origin", origin)
		}
		conn, _, err := websocket.DefaultDialer.Dial(wsURL, header)
		if (err == nil) != ok {
			t.Errorf("origin %q: err = %v", origin, err)
		}
		if conn != nil {
			conn.Close()
		}
	}
}
