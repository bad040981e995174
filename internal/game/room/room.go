// Package room binds one game engine to its participants and their scores.
package room

import (
	"sort"
	"sync"

	"github.com/cory-johannsen/setgame/internal/game/card"
	"github.com/cory-johannsen/setgame/internal/game/engine"
)

// Score is one leaderboard row.
type Score struct {
	Name  string `json:"name"`
	Score int    `json:"score"`
}

// Room is one game instance with its score table. Rooms live for the process
// lifetime; participants are added by Join and never removed, so a player who
// moves on leaves a frozen score behind.
//
// All methods are safe for concurrent use. The room's lock guards the score
// table only; the engine serializes gameplay with its own lock.
type Room struct {
	id     int
	engine *engine.Engine

	mu     sync.RWMutex
	scores map[string]int
	// joined preserves participant insertion order so leaderboard ties sort
	// deterministically per call.
	joined []string
}

// New creates an empty room around the given engine.
//
// Precondition: eng must be non-nil.
func New(id int, eng *engine.Engine) *Room {
	return &Room{
		id:     id,
		engine: eng,
		scores: make(map[string]int),
	}
}

// ID returns the room's identifier.
func (r *Room) ID() int { return r.id }

// Join adds a participant with score 0. Idempotent: joining twice changes
// nothing. No capacity limit is enforced.
func (r *Room) Join(token string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.scores[token]; ok {
		return
	}
	r.scores[token] = 0
	r.joined = append(r.joined, token)
}

// SubmitPick delegates to the engine and applies the score delta: +1 on a
// match, -1 on a non-match. Engine validation errors (wrong id count,
// duplicate ids, card not on field) leave the score unchanged and propagate.
//
// Precondition: token must already be a participant (the session directory
// joins on room entry).
// Postcondition: Returns the post-update score in all cases.
func (r *Room) SubmitPick(token string, ids []int) (bool, int, error) {
	matched, err := r.engine.Pick(ids)
	if err != nil {
		return false, r.ScoreOf(token), err
	}

	delta := -1
	if matched {
		delta = 1
	}

	r.mu.Lock()
	r.scores[token] += delta
	score := r.scores[token]
	r.mu.Unlock()

	return matched, score, nil
}

// ScoreOf returns the participant's current score, or 0 for unknown tokens.
func (r *Room) ScoreOf(token string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.scores[token]
}

// Field returns a copy of the engine's visible cards.
func (r *Room) Field() []card.Card { return r.engine.Field() }

// Status returns the engine status, ongoing or ended.
func (r *Room) Status() string { return r.engine.Status() }

// AddExtra deals up to three extra cards onto the field.
func (r *Room) AddExtra() { r.engine.AddExtra() }

// Leaderboard returns every participant's display name and score, sorted by
// score descending. Ties keep join order (stable sort over the insertion
// sequence).
//
// The room lock is released before displayName runs, so the callback may
// take locks of its own (the session directory's, another room's) without
// ordering constraints.
//
// Precondition: displayName must be non-nil; it resolves participant tokens
// to nicknames.
func (r *Room) Leaderboard(displayName func(token string) string) []Score {
	r.mu.RLock()
	tokens := make([]string, len(r.joined))
	copy(tokens, r.joined)
	scores := make([]int, len(tokens))
	for i, token := range tokens {
		scores[i] = r.scores[token]
	}
	r.mu.RUnlock()

	rows := make([]Score, 0, len(tokens))
	for i, token := range tokens {
		rows = append(rows, Score{Name: displayName(token), Score: scores[i]})
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Score > rows[j].Score })
	return rows
}
