package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/thereayou/ligabpi/internal/docstore"
	"github.com/thereayou/ligabpi/internal/league"
)

func seed(t *testing.T, s docstore.Store, coll string, bodies ...string) {
	t.Helper()
	for _, b := range bodies {
		if _, err := s.Create(context.Background(), coll, docstore.NewDocument{Data: json.RawMessage(b)}); err != nil {
			t.Fatalf("seed %s: %v", coll, err)
		}
	}
}

func TestNewsNewestFirstWithDefaultLimit(t *testing.T) {
	store := docstore.NewMemoryStore()
	for i := 0; i < 7; i++ {
		seed(t, store, league.News, fmt.Sprintf(`{"title":"n%d","body":""}`, i))
	}
	items, err := New(store).News(context.Background(), 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != DefaultNewsLimit || items[0].Title != "n6" {
		t.Fatalf("got %d items, first %q", len(items), items[0].Title)
	}
}

func TestStandingsOrder(t *testing.T) {
	store := docstore.NewMemoryStore()
	seed(t, store, league.Standings,
		`{"clubName":"Racing Power","points":20,"goalsFor":10,"goalsAgainst":10}`,
		`{"clubName":"Benfica","points":30,"goalsFor":40,"goalsAgainst":5}`,
		`{"clubName":"Braga","points":20,"goalsFor":25,"goalsAgainst":8}`,
		`{"clubName":"Sporting","points":28,"goalsFor":35,"goalsAgainst":9}`,
	)
	rows, err := New(store).Standings(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, r := range rows {
		names = append(names, r.ClubName)
	}
	if got := fmt.Sprint(names); got != "[Benfica Sporting Braga Racing Power]" {
		t.Fatalf("standings = %s", got)
	}
}

func TestClubsFilter(t *testing.T) {
	store := docstore.NewMemoryStore()
	seed(t, store, league.Clubs,
		`{"name":"Sporting CP","category":"senior"}`,
		`{"name":"SL Benfica","category":"senior"}`,
		`{"name":"SL Benfica B","category":"sub-23"}`,
	)
	c := New(store)

	tests := []struct {
		filter ClubFilter
		want   string
	}{
		{ClubFilter{}, "[SL Benfica SL Benfica B Sporting CP]"},
		{ClubFilter{Category: CategoryAll}, "[SL Benfica SL Benfica B Sporting CP]"},
		{ClubFilter{Category: "senior"}, "[SL Benfica Sporting CP]"},
		{ClubFilter{Query: "benfica"}, "[SL Benfica SL Benfica B]"},
		{ClubFilter{Query: "benfica", Category: "sub-23"}, "[SL Benfica B]"},
	}
	for _, tt := range tests {
		clubs, err := c.Clubs(context.Background(), tt.filter)
		if err != nil {
			t.Fatal(err)
		}
		var names []string
		for _, cl := range clubs {
			names = append(names, cl.Name)
		}
		if got := fmt.Sprint(names); got != tt.want {
			t.Errorf("%+v: got %s, want %s", tt.filter, got, tt.want)
		}
	}
}

func TestPlayersAndScorers(t *testing.T) {
	store := docstore.NewMemoryStore()
	seed(t, store, league.Players,
		`{"name":"Kika","clubId":"slb"}`,
		`{"name":"Ana","clubId":"slb"}`,
		`{"name":"Diana","clubId":"scp"}`,
	)
	seed(t, store, league.Scorers,
		`{"playerName":"Kika","clubName":"SLB","goals":12}`,
		`{"playerName":"Diana","clubName":"SCP","goals":15}`,
	)
	c := New(store)

	players, err := c.Players(context.Background(), "slb")
	if err != nil {
		t.Fatal(err)
	}
	if len(players) != 2 || players[0].Name != "Ana" {
		t.Fatalf("roster = %+v", players)
	}

	var ve *league.ValidationError
	if _, err := c.Players(context.Background(), ""); !errors.As(err, &ve) {
		t.Fatalf("want ValidationError, got %v", err)
	}

	scorers, err := c.TopScorers(context.Background(), 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(scorers) != 2 || scorers[0].PlayerName != "Diana" {
		t.Fatalf("scorers = %+v", scorers)
	}
}

func TestProfileCreatedOnFirstAccess(t *testing.T) {
	store := docstore.NewMemoryStore()
	c := New(store)
	user := league.User{ID: "u1", Name: "Jéssica", Email: "j@example.org"}

	p, err := c.Profile(context.Background(), user)
	if err != nil {
		t.Fatal(err)
	}
	if p.ID != "u1" || p.Name != "Jéssica" || p.Bio != "" {
		t.Fatalf("profile = %+v", p)
	}

	bio := "Avançada"
	updated, err := c.UpdateProfile(context.Background(), "u1", ProfileUpdate{Bio: &bio})
	if err != nil {
		t.Fatal(err)
	}
	if updated.Bio != bio || updated.Email != user.Email {
		t.Fatalf("updated = %+v", updated)
	}

	again, err := c.Profile(context.Background(), user)
	if err != nil || again.Bio != bio {
		t.Fatalf("second access = %+v, %v", again, err)
	}

	var ve *league.ValidationError
	if _, err := c.UpdateProfile(context.Background(), "u1", ProfileUpdate{}); !errors.As(err, &ve) {
		t.Fatalf("empty update: %v", err)
	}
	if _, err := c.UpdateProfile(context.Background(), "ghost", ProfileUpdate{Bio: &bio}); !errors.Is(err, docstore.ErrNotFound) {
		t.Fatalf("missing profile: %v", err)
	}
}
