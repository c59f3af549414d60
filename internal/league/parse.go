package league

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/thereayou/ligabpi/internal/docstore"
)

// decode validates doc against the schema of collection and unmarshals its
// body into v. Nothing untyped leaves this package.
func decode(collection string, doc docstore.Document, v any) error {
	if err := Validate(collection, doc.Data); err != nil {
		var ve *ValidationError
		if errors.As(err, &ve) && doc.ID != "" {
			ve.Reason = fmt.Sprintf("%s %s: %s", collection, doc.ID, ve.Reason)
		}
		return err
	}
	if err := json.Unmarshal(doc.Data, v); err != nil {
		return invalid("", "%s %s: %v", collection, doc.ID, err)
	}
	return nil
}

type chatBody struct {
	Text       string `json:"text"`
	AuthorID   string `json:"authorId"`
	AuthorName string `json:"authorName"`
}

func ParseChatMessage(doc docstore.Document) (ChatMessage, error) {
	var b chatBody
	if err := decode(ChatMessages, doc, &b); err != nil {
		return ChatMessage{}, err
	}
	return ChatMessage{
		ID:         doc.ID,
		Text:       strings.TrimSpace(b.Text),
		CreatedAt:  doc.CreatedAt,
		AuthorID:   b.AuthorID,
		AuthorName: b.AuthorName,
	}, nil
}

// ChatMessageBody is the stored body of a new chat message.
func ChatMessageBody(text string, author User) json.RawMessage {
	data, _ := json.Marshal(chatBody{Text: text, AuthorID: author.ID, AuthorName: author.Name})
	return data
}

type predictionBody struct {
	UserID        string    `json:"userId"`
	MatchID       string    `json:"matchId"`
	Outcome       Outcome   `json:"outcome"`
	FirstScorerID string    `json:"firstScorerId,omitempty"`
	SubmittedAt   time.Time `json:"submittedAt"`
}

func ParsePrediction(doc docstore.Document) (Prediction, error) {
	var b predictionBody
	if err := decode(Predictions, doc, &b); err != nil {
		return Prediction{}, err
	}
	return Prediction{
		ID:            doc.ID,
		UserID:        b.UserID,
		MatchID:       b.MatchID,
		Outcome:       b.Outcome,
		FirstScorerID: b.FirstScorerID,
		SubmittedAt:   b.SubmittedAt,
	}, nil
}

func PredictionBody(p Prediction) json.RawMessage {
	data, _ := json.Marshal(predictionBody{
		UserID:        p.UserID,
		MatchID:       p.MatchID,
		Outcome:       p.Outcome,
		FirstScorerID: p.FirstScorerID,
		SubmittedAt:   p.SubmittedAt.UTC(),
	})
	return data
}

func ParseMatch(doc docstore.Document) (Match, error) {
	var m Match
	if err := decode(Matches, doc, &m); err != nil {
		return Match{}, err
	}
	m.ID = doc.ID
	return m, nil
}

func ParseNewsItem(doc docstore.Document) (NewsItem, error) {
	var n NewsItem
	if err := decode(News, doc, &n); err != nil {
		return NewsItem{}, err
	}
	n.ID = doc.ID
	n.CreatedAt = doc.CreatedAt
	return n, nil
}

func ParseStanding(doc docstore.Document) (Standing, error) {
	var s Standing
	if err := decode(Standings, doc, &s); err != nil {
		return Standing{}, err
	}
	s.ID = doc.ID
	return s, nil
}

func ParseClub(doc docstore.Document) (Club, error) {
	var c Club
	if err := decode(Clubs, doc, &c); err != nil {
		return Club{}, err
	}
	c.ID = doc.ID
	return c, nil
}

func ParsePlayer(doc docstore.Document) (Player, error) {
	var p Player
	if err := decode(Players, doc, &p); err != nil {
		return Player{}, err
	}
	p.ID = doc.ID
	return p, nil
}

func ParseScorer(doc docstore.Document) (Scorer, error) {
	var s Scorer
	if err := decode(Scorers, doc, &s); err != nil {
		return Scorer{}, err
	}
	s.ID = doc.ID
	return s, nil
}

func ParseProfile(doc docstore.Document) (Profile, error) {
	var p Profile
	if err := decode(Profiles, doc, &p); err != nil {
		return Profile{}, err
	}
	p.ID = doc.ID
	return p, nil
}

// ParseAll applies parse to every document and fails on the first malformed one.
func ParseAll[T any](docs []docstore.Document, parse func(docstore.Document) (T, error)) ([]T, error) {
	out := make([]T, 0, len(docs))
	for _, doc := range docs {
		v, err := parse(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}
