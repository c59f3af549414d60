// Package league holds the typed records of the league app and the boundary
// that turns raw store documents into them.
package league

import (
	"context"
	"time"
)

// Collection names.
const (
	ChatMessages = "chat_messages"
	Predictions  = "predictions"
	Matches      = "matches"
	Clubs        = "clubs"
	Players      = "players"
	Standings    = "standings"
	News         = "news"
	Scorers      = "scorers"
	Profiles     = "profiles"
)

type User struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Identity resolves the signed-in user. CurrentUser returns nil, nil when
// nobody is signed in.
type Identity interface {
	CurrentUser(ctx context.Context) (*User, error)
}

// StaticIdentity always returns the same user (or nobody).
type StaticIdentity struct{ User *User }

func (s StaticIdentity) CurrentUser(context.Context) (*User, error) { return s.User, nil }

type ChatMessage struct {
	ID         string    `json:"id"`
	Text       string    `json:"text"`
	CreatedAt  time.Time `json:"createdAt"`
	AuthorID   string    `json:"authorId"`
	AuthorName string    `json:"authorName"`
}

type Outcome string

const (
	OutcomeHome Outcome = "home"
	OutcomeDraw Outcome = "draw"
	OutcomeAway Outcome = "away"
)

func (o Outcome) Valid() bool {
	switch o {
	case OutcomeHome, OutcomeDraw, OutcomeAway:
		return true
	}
	return false
}

type Prediction struct {
	ID            string    `json:"id"`
	UserID        string    `json:"userId"`
	MatchID       string    `json:"matchId"`
	Outcome       Outcome   `json:"outcome"`
	FirstScorerID string    `json:"firstScorerId,omitempty"`
	SubmittedAt   time.Time `json:"submittedAt"`
}

// PredictionKey is the composite key that makes a prediction unique.
func PredictionKey(userID, matchID string) string {
	return userID + "/" + matchID
}

type Team struct {
	ID       string `json:"id,omitempty"`
	Name     string `json:"name"`
	CrestURL string `json:"crestURL,omitempty"`
}

type Match struct {
	ID          string    `json:"id"`
	Home        Team      `json:"homeTeam"`
	Away        Team      `json:"awayTeam"`
	Scheduled   time.Time `json:"scheduled"`
	Speculative bool      `json:"speculative"`
	Outcome     string    `json:"outcome,omitempty"`
}

// OpenForPredictions reports whether the match still accepts predictions at now.
func (m Match) OpenForPredictions(now time.Time) bool {
	return m.Speculative && m.Scheduled.After(now)
}

type NewsItem struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	ImageID   string    `json:"imageId,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

type Standing struct {
	ID           string `json:"id"`
	ClubID       string `json:"clubId"`
	ClubName     string `json:"clubName"`
	Points       int    `json:"points"`
	Played       int    `json:"played"`
	Wins         int    `json:"wins"`
	Draws        int    `json:"draws"`
	Losses       int    `json:"losses"`
	GoalsFor     int    `json:"goalsFor"`
	GoalsAgainst int    `json:"goalsAgainst"`
}

type Club struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Category string `json:"category"`
	CrestURL string `json:"crestURL,omitempty"`
}

type Player struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	ClubID   string `json:"clubId"`
	Position string `json:"position,omitempty"`
	PhotoURL string `json:"photoURL,omitempty"`
}

type Scorer struct {
	ID         string `json:"id"`
	PlayerName string `json:"playerName"`
	ClubName   string `json:"clubName"`
	Goals      int    `json:"goals"`
}

type Profile struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Email        string `json:"email"`
	Avatar       string `json:"avatar"`
	FavoriteClub string `json:"favoriteClub"`
	Bio          string `json:"bio"`
}
