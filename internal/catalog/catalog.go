// Package catalog serves the read-mostly screens of the app: news,
// standings, clubs, rosters, top scorers and user profiles.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/thereayou/ligabpi/internal/docstore"
	"github.com/thereayou/ligabpi/internal/league"
)

const (
	DefaultNewsLimit    = 5
	DefaultScorersLimit = 10

	// CategoryAll disables the category filter on Clubs.
	CategoryAll = "all"
)

type Catalog struct {
	store docstore.Store
}

func New(store docstore.Store) *Catalog {
	return &Catalog{store: store}
}

// News returns the latest items, newest first.
func (c *Catalog) News(ctx context.Context, limit int) ([]league.NewsItem, error) {
	if limit <= 0 {
		limit = DefaultNewsLimit
	}
	return list(ctx, c, league.News, docstore.Query{
		OrderBy: []docstore.Order{docstore.Desc(docstore.FieldCreatedAt)},
		Limit:   limit,
	}, league.ParseNewsItem)
}

// Standings returns the league table, best first. Ties on points fall back
// to goal difference, then name.
func (c *Catalog) Standings(ctx context.Context) ([]league.Standing, error) {
	rows, err := list(ctx, c, league.Standings, docstore.Query{
		OrderBy: []docstore.Order{docstore.Desc("points"), docstore.Asc("clubName")},
	}, league.ParseStanding)
	if err != nil {
		return nil, err
	}
	sortStandings(rows)
	return rows, nil
}

type ClubFilter struct {
	Query    string
	Category string
}

func (c *Catalog) Clubs(ctx context.Context, f ClubFilter) ([]league.Club, error) {
	q := docstore.Query{OrderBy: []docstore.Order{docstore.Asc("name")}}
	if term := strings.TrimSpace(f.Query); term != "" {
		q.Filters = append(q.Filters, docstore.Search("name", term))
	}
	if f.Category != "" && !strings.EqualFold(f.Category, CategoryAll) {
		q.Filters = append(q.Filters, docstore.Equal("category", f.Category))
	}
	return list(ctx, c, league.Clubs, q, league.ParseClub)
}

func (c *Catalog) Club(ctx context.Context, id string) (league.Club, error) {
	doc, err := c.store.Get(ctx, league.Clubs, id)
	if err != nil {
		return league.Club{}, err
	}
	return league.ParseClub(doc)
}

// Players returns a club's roster by name.
func (c *Catalog) Players(ctx context.Context, clubID string) ([]league.Player, error) {
	if clubID == "" {
		return nil, &league.ValidationError{Field: "clubId", Reason: "required"}
	}
	return list(ctx, c, league.Players, docstore.Query{
		Filters: []docstore.Filter{docstore.Equal("clubId", clubID)},
		OrderBy: []docstore.Order{docstore.Asc("name")},
	}, league.ParsePlayer)
}

func (c *Catalog) TopScorers(ctx context.Context, limit int) ([]league.Scorer, error) {
	if limit <= 0 {
		limit = DefaultScorersLimit
	}
	return list(ctx, c, league.Scorers, docstore.Query{
		OrderBy: []docstore.Order{docstore.Desc("goals"), docstore.Asc("playerName")},
		Limit:   limit,
	}, league.ParseScorer)
}

// Profile returns the profile of user, creating it from the account on
// first access.
func (c *Catalog) Profile(ctx context.Context, user league.User) (league.Profile, error) {
	if user.ID == "" {
		return league.Profile{}, &league.ValidationError{Field: "userId", Reason: "not signed in"}
	}
	doc, err := c.store.Get(ctx, league.Profiles, user.ID)
	if err == nil {
		return league.ParseProfile(doc)
	}
	if !errors.Is(err, docstore.ErrNotFound) {
		return league.Profile{}, &league.FetchError{Op: "get " + league.Profiles, Err: err}
	}

	body, _ := json.Marshal(ProfileUpdate{Name: &user.Name, Email: &user.Email, Avatar: new(string), FavoriteClub: new(string), Bio: new(string)})
	doc, err = c.store.Create(ctx, league.Profiles, docstore.NewDocument{ID: user.ID, OwnerID: user.ID, Data: body})
	if errors.Is(err, docstore.ErrConflict) {
		// Another session created it first.
		doc, err = c.store.Get(ctx, league.Profiles, user.ID)
	}
	if err != nil {
		return league.Profile{}, err
	}
	return league.ParseProfile(doc)
}

// ProfileUpdate changes the non-nil fields of a profile.
type ProfileUpdate struct {
	Name         *string `json:"name,omitempty"`
	Email        *string `json:"email,omitempty"`
	Avatar       *string `json:"avatar,omitempty"`
	FavoriteClub *string `json:"favoriteClub,omitempty"`
	Bio          *string `json:"bio,omitempty"`
}

func (c *Catalog) UpdateProfile(ctx context.Context, userID string, u ProfileUpdate) (league.Profile, error) {
	patch, err := json.Marshal(u)
	if err != nil {
		return league.Profile{}, err
	}
	if string(patch) == "{}" {
		return league.Profile{}, &league.ValidationError{Field: "profile", Reason: "nothing to update"}
	}
	doc, err := c.store.Update(ctx, league.Profiles, userID, patch)
	if err != nil {
		return league.Profile{}, err
	}
	return league.ParseProfile(doc)
}

func list[T any](ctx context.Context, c *Catalog, collection string, q docstore.Query, parse func(docstore.Document) (T, error)) ([]T, error) {
	docs, err := c.store.List(ctx, collection, q)
	if err != nil {
		return nil, &league.FetchError{Op: "list " + collection, Err: err}
	}
	return league.ParseAll(docs, parse)
}
