// Package predictions lets a user pick the outcome of an upcoming match, once.
package predictions

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/thereayou/ligabpi/internal/docstore"
	"github.com/thereayou/ligabpi/internal/league"
)

// Rejection reasons passed to the Recorder.
const (
	RejectInvalid   = "invalid"
	RejectClosed    = "closed"
	RejectDuplicate = "duplicate"
	RejectRace      = "race"
)

// Recorder counts rejected submissions. The server wires it to Prometheus.
type Recorder interface {
	PredictionRejected(reason string)
}

type nopRecorder struct{}

func (nopRecorder) PredictionRejected(string) {}

type SubmitRequest struct {
	UserID        string
	MatchID       string
	Outcome       league.Outcome
	FirstScorerID string
}

type Guard struct {
	store   docstore.Store
	log     *slog.Logger
	metrics Recorder
	now     func() time.Time
}

type Option func(*Guard)

func WithRecorder(r Recorder) Option { return func(g *Guard) { g.metrics = r } }

func WithClock(now func() time.Time) Option { return func(g *Guard) { g.now = now } }

func NewGuard(store docstore.Store, log *slog.Logger, opts ...Option) *Guard {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	g := &Guard{
		store:   store,
		log:     log.With("component", "predictions"),
		metrics: nopRecorder{},
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// ListEligibleMatches returns the speculative matches scheduled after now,
// earliest first.
func (g *Guard) ListEligibleMatches(ctx context.Context, now time.Time) ([]league.Match, error) {
	docs, err := g.store.List(ctx, league.Matches, docstore.Query{
		Filters: []docstore.Filter{
			docstore.GreaterThan("scheduled", now.UTC().Format(time.RFC3339Nano)),
			docstore.Equal("speculative", true),
		},
		OrderBy: []docstore.Order{docstore.Asc("scheduled")},
	})
	if err != nil {
		return nil, &league.FetchError{Op: "list " + league.Matches, Err: err}
	}

	all, err := league.ParseAll(docs, league.ParseMatch)
	if err != nil {
		return nil, err
	}
	// The store's answer is not trusted for the contract.
	eligible := all[:0]
	for _, m := range all {
		if m.OpenForPredictions(now) {
			eligible = append(eligible, m)
		}
	}
	sort.SliceStable(eligible, func(i, j int) bool {
		return eligible[i].Scheduled.Before(eligible[j].Scheduled)
	})
	return eligible, nil
}

// HasPredicted reports whether userID already has a prediction for matchID.
func (g *Guard) HasPredicted(ctx context.Context, userID, matchID string) (bool, error) {
	docs, err := g.store.List(ctx, league.Predictions, docstore.Query{
		Filters: []docstore.Filter{
			docstore.Equal("userId", userID),
			docstore.Equal("matchId", matchID),
		},
		Limit:  1,
		Viewer: userID,
	})
	if err != nil {
		return false, &league.FetchError{Op: "list " + league.Predictions, Err: err}
	}
	return len(docs) > 0, nil
}

// Submit stores a prediction for an open match. It fails with a
// *league.ValidationError before touching the store when the request is
// malformed or the match is closed, and with *league.DuplicatePredictionError
// when the user already predicted the match, including when a concurrent
// submit won the race.
func (g *Guard) Submit(ctx context.Context, req SubmitRequest) (league.Prediction, error) {
	req.UserID = strings.TrimSpace(req.UserID)
	req.MatchID = strings.TrimSpace(req.MatchID)
	if err := req.validate(); err != nil {
		g.metrics.PredictionRejected(RejectInvalid)
		return league.Prediction{}, err
	}

	matchDoc, err := g.store.Get(ctx, league.Matches, req.MatchID)
	if err != nil {
		return league.Prediction{}, err
	}
	match, err := league.ParseMatch(matchDoc)
	if err != nil {
		return league.Prediction{}, err
	}
	now := g.now()
	if !match.OpenForPredictions(now) {
		g.metrics.PredictionRejected(RejectClosed)
		return league.Prediction{}, &league.ValidationError{Field: "matchId", Reason: "match is not open for predictions"}
	}

	exists, err := g.HasPredicted(ctx, req.UserID, req.MatchID)
	if err != nil {
		return league.Prediction{}, err
	}
	if exists {
		g.metrics.PredictionRejected(RejectDuplicate)
		return league.Prediction{}, &league.DuplicatePredictionError{UserID: req.UserID, MatchID: req.MatchID}
	}

	p := league.Prediction{
		UserID:        req.UserID,
		MatchID:       req.MatchID,
		Outcome:       req.Outcome,
		FirstScorerID: req.FirstScorerID,
		SubmittedAt:   now.UTC(),
	}
	doc, err := g.store.CreateUnique(ctx, league.Predictions, league.PredictionKey(req.UserID, req.MatchID), docstore.NewDocument{
		OwnerID: req.UserID,
		Private: true,
		Data:    league.PredictionBody(p),
	})
	if errors.Is(err, docstore.ErrConflict) {
		g.metrics.PredictionRejected(RejectRace)
		g.log.Info("concurrent prediction lost the race", "user", req.UserID, "match", req.MatchID)
		return league.Prediction{}, &league.DuplicatePredictionError{UserID: req.UserID, MatchID: req.MatchID}
	}
	if err != nil {
		return league.Prediction{}, err
	}
	p.ID = doc.ID
	g.log.Debug("prediction stored", "id", p.ID, "user", p.UserID, "match", p.MatchID, "outcome", p.Outcome)
	return p, nil
}

// ForUser lists the user's predictions, most recent first.
func (g *Guard) ForUser(ctx context.Context, userID string) ([]league.Prediction, error) {
	docs, err := g.store.List(ctx, league.Predictions, docstore.Query{
		Filters: []docstore.Filter{docstore.Equal("userId", userID)},
		OrderBy: []docstore.Order{docstore.Desc(docstore.FieldCreatedAt)},
		Viewer:  userID,
	})
	if err != nil {
		return nil, &league.FetchError{Op: "list " + league.Predictions, Err: err}
	}
	return league.ParseAll(docs, league.ParsePrediction)
}

func (r SubmitRequest) validate() error {
	switch {
	case r.UserID == "":
		return &league.ValidationError{Field: "userId", Reason: "required"}
	case r.MatchID == "":
		return &league.ValidationError{Field: "matchId", Reason: "required"}
	case !r.Outcome.Valid():
		return &league.ValidationError{Field: "outcome", Reason: "must be one of home, draw, away"}
	}
	return nil
}
