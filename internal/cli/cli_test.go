package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/thereayou/ligabpi/internal/database"
	"github.com/thereayou/ligabpi/internal/docstore"
	"github.com/thereayou/ligabpi/internal/league"
	"github.com/thereayou/ligabpi/internal/server"
	"github.com/thereayou/ligabpi/pkg/auth"
	"github.com/thereayou/ligabpi/pkg/client"
)

const adminEmail = "admin@liga.pt"

func newBackend(t *testing.T) string {
	t.Helper()
	gin.SetMode(gin.TestMode)
	gdb, err := database.Open(database.DriverSQLite, ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	s := server.New(server.Options{
		DB:         database.NewDatabase(gdb, nil),
		JWTManager: auth.NewJWTManager("test-secret", time.Hour),
		IsAdmin:    func(email string) bool { return email == adminEmail },
	})
	go s.Hub.Run()
	srv := httptest.NewServer(s.Router)
	t.Cleanup(func() {
		s.Hub.Stop()
		srv.Close()
		s.Close()
	})
	return srv.URL
}

// ligactl запускает команду с отдельным конфигом, как отдельный процесс
func ligactl(t *testing.T, cfg, url string, args ...string) (string, error) {
	t.Helper()
	cmd := New()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--config", cfg, "--server", url}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func mustRun(t *testing.T, cfg, url string, args ...string) string {
	t.Helper()
	out, err := ligactl(t, cfg, url, args...)
	if err != nil {
		t.Fatalf("ligactl %s: %v\n%s", strings.Join(args, " "), err, out)
	}
	return out
}

func seed(t *testing.T, url string) {
	t.Helper()
	ctx := context.Background()
	admin := client.New(url)
	if _, err := admin.Register(ctx, "Liga", adminEmail, "liga-admin-1"); err != nil {
		t.Fatal(err)
	}
	if _, err := admin.Login(ctx, adminEmail, "liga-admin-1"); err != nil {
		t.Fatal(err)
	}
	kickoff := time.Now().Add(72 * time.Hour).UTC().Format(time.RFC3339)
	docs := []struct {
		collection, id, body string
	}{
		{league.Matches, "m1", `{"homeTeam":{"name":"Benfica"},"awayTeam":{"name":"Sporting"},"scheduled":"` + kickoff + `","speculative":true}`},
		{league.News, "", `{"title":"Jornada 12 adiada","body":"Chuva intensa."}`},
		{league.Standings, "", `{"clubId":"slb","clubName":"Benfica","points":30,"played":10,"wins":10}`},
		{league.Standings, "", `{"clubId":"scp","clubName":"Sporting","points":27,"played":10,"wins":9}`},
	}
	for _, d := range docs {
		if _, err := admin.Create(ctx, d.collection, docstore.NewDocument{ID: d.id, Data: json.RawMessage(d.body)}); err != nil {
			t.Fatalf("seed %s: %v", d.collection, err)
		}
	}
}

func TestLigactl_Session(t *testing.T) {
	url := newBackend(t)
	cfg := filepath.Join(t.TempDir(), "ligactl.yaml")

	mustRun(t, cfg, url, "register", "--name", "Ana", "--email", "ana@liga.pt", "--password", "golo-da-ju")
	if out := mustRun(t, cfg, url, "login", "--email", "ana@liga.pt", "--password", "golo-da-ju"); !strings.Contains(out, "signed in as Ana") {
		t.Fatalf("login output: %s", out)
	}
	if out := mustRun(t, cfg, url, "whoami"); !strings.Contains(out, "ana@liga.pt") {
		t.Fatalf("whoami output: %s", out)
	}

	mustRun(t, cfg, url, "chat", "send", "vamos", "meninas!")
	if out := mustRun(t, cfg, url, "chat", "tail", "-n", "10"); !strings.Contains(out, "Ana: vamos meninas!") {
		t.Fatalf("chat tail output: %s", out)
	}

	if out := mustRun(t, cfg, url, "profile", "--favorite-club", "slb"); !strings.Contains(out, "favorite club: slb") {
		t.Fatalf("profile output: %s", out)
	}

	mustRun(t, cfg, url, "logout")
	if _, err := ligactl(t, cfg, url, "whoami"); err == nil {
		t.Fatal("whoami succeeded after logout")
	}
}

func TestLigactl_Predictions(t *testing.T) {
	url := newBackend(t)
	seed(t, url)
	cfg := filepath.Join(t.TempDir(), "ligactl.yaml")
	mustRun(t, cfg, url, "register", "--name", "Rui", "--email", "rui@liga.pt", "--password", "golo-da-ju")
	mustRun(t, cfg, url, "login", "--email", "rui@liga.pt", "--password", "golo-da-ju")

	if out := mustRun(t, cfg, url, "matches"); !strings.Contains(out, "Benfica vs Sporting") {
		t.Fatalf("matches output: %s", out)
	}
	if _, err := ligactl(t, cfg, url, "predict", "m1", "maybe"); err == nil {
		t.Fatal("invalid outcome accepted")
	}
	if out := mustRun(t, cfg, url, "predict", "m1", "home"); !strings.Contains(out, "prediction saved") {
		t.Fatalf("predict output: %s", out)
	}
	_, err := ligactl(t, cfg, url, "predict", "m1", "away")
	if err == nil || !strings.Contains(err.Error(), "already predicted") {
		t.Fatalf("second predict err = %v", err)
	}
	if out := mustRun(t, cfg, url, "predictions"); !strings.Contains(out, "home") {
		t.Fatalf("predictions output: %s", out)
	}
}

func TestLigactl_Catalog(t *testing.T) {
	url := newBackend(t)
	seed(t, url)
	cfg := filepath.Join(t.TempDir(), "ligactl.yaml")

	if out := mustRun(t, cfg, url, "news"); !strings.Contains(out, "Jornada 12 adiada") {
		t.Fatalf("news output: %s", out)
	}
	out := mustRun(t, cfg, url, "standings")
	if strings.Index(out, "Benfica") > strings.Index(out, "Sporting") {
		t.Fatalf("standings order:\n%s", out)
	}
}
