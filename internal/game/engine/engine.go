// Package engine implements the Set game engine: one shuffled deck, one
// visible field, the triple-matching rule, field refill, and end-of-game
// detection.
package engine

import (
	"errors"
	"sort"
	"sync"

	"github.com/cory-johannsen/setgame/internal/game/card"
	"github.com/cory-johannsen/setgame/internal/game/rng"
)

// Status values for a game. Ended is terminal.
const (
	StatusOngoing = "ongoing"
	StatusEnded   = "ended"
)

const (
	// FieldTarget is the field size the engine refills toward while the
	// deck lasts.
	FieldTarget = 12
	// FieldMax bounds the field when extra cards are dealt without a match.
	FieldMax = 15
)

// ErrInvalidPick is returned when a pick does not name exactly three
// distinct card ids.
var ErrInvalidPick = errors.New("pick must name exactly three distinct cards")

// ErrCardNotFound is returned when a picked id is not currently on the field.
var ErrCardNotFound = errors.New("card is not on the field")

// Engine owns the deck and field for a single game instance.
//
// All methods are safe for concurrent use. One mutex guards deck, field, and
// status as a unit: of two picks racing on the same three cards, at most one
// wins; the loser observes the cards gone and gets ErrCardNotFound.
type Engine struct {
	mu     sync.Mutex
	deck   []card.Card
	field  []card.Card
	status string
}

// New builds the full 81-card deck, shuffles it with src, and deals the
// opening field.
//
// Precondition: src must be non-nil.
// Postcondition: The field holds 12 cards, the deck 69, status is ongoing.
func New(src rng.Source) *Engine {
	e := &Engine{
		deck:   card.NewDeck(),
		status: StatusOngoing,
	}
	// Fisher-Yates
	for i := len(e.deck) - 1; i > 0; i-- {
		j := src.Intn(i + 1)
		e.deck[i], e.deck[j] = e.deck[j], e.deck[i]
	}
	e.refill()
	return e
}

// deal removes and returns the tail card of the deck.
// Caller must hold mu; the deck must be non-empty.
func (e *Engine) deal() card.Card {
	c := e.deck[len(e.deck)-1]
	e.deck = e.deck[:len(e.deck)-1]
	return c
}

// refill deals one card at a time until the field reaches FieldTarget or the
// deck empties. Caller must hold mu.
func (e *Engine) refill() {
	for len(e.field) < FieldTarget && len(e.deck) > 0 {
		e.field = append(e.field, e.deal())
	}
}

// indexOf returns the field position of the card with the given id, or -1.
// Caller must hold mu.
func (e *Engine) indexOf(id int) int {
	for i, c := range e.field {
		if c.ID == id {
			return i
		}
	}
	return -1
}

// removeAt deletes the field entries at the given positions.
// Caller must hold mu; positions must be distinct and in range.
func (e *Engine) removeAt(idx []int) {
	sort.Sort(sort.Reverse(sort.IntSlice(idx)))
	for _, pos := range idx {
		e.field[pos] = e.field[len(e.field)-1]
		e.field = e.field[:len(e.field)-1]
	}
}

// Pick attempts to claim the three field cards named by ids as a Set.
//
// Precondition: ids must hold exactly three distinct card ids, all currently
// on the field; violations return ErrInvalidPick or ErrCardNotFound with the
// field untouched.
// Postcondition: On a match the three cards leave the field, the field is
// refilled toward 12, and status becomes ended once the deck is empty and
// fewer than three cards remain visible. On a non-match nothing changes.
func (e *Engine) Pick(ids []int) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(ids) != 3 {
		return false, ErrInvalidPick
	}
	// A repeated id would resolve every slot to the same card and trivially
	// "match"; reject before lookup.
	if ids[0] == ids[1] || ids[0] == ids[2] || ids[1] == ids[2] {
		return false, ErrInvalidPick
	}

	idx := make([]int, 3)
	for i, id := range ids {
		pos := e.indexOf(id)
		if pos < 0 {
			return false, ErrCardNotFound
		}
		idx[i] = pos
	}

	if !card.IsSet(e.field[idx[0]], e.field[idx[1]], e.field[idx[2]]) {
		return false, nil
	}

	e.removeAt(idx)
	e.refill()
	if len(e.deck) == 0 && len(e.field) < 3 {
		e.status = StatusEnded
	}
	return true, nil
}

// AddExtra deals up to three more cards onto the field, for use when the
// visible cards contain no Set. It stops early when the deck empties or the
// field reaches FieldMax, and is a no-op once the deck is empty. Status is
// never changed.
func (e *Engine) AddExtra() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i := 0; i < 3 && len(e.deck) > 0 && len(e.field) < FieldMax; i++ {
		e.field = append(e.field, e.deal())
	}
}

// Field returns a copy of the visible cards.
//
// Postcondition: Mutating the returned slice does not affect the engine.
func (e *Engine) Field() []card.Card {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]card.Card, len(e.field))
	copy(out, e.field)
	return out
}

// Status returns StatusOngoing or StatusEnded.
func (e *Engine) Status() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

// DeckSize returns the number of undealt cards.
func (e *Engine) DeckSize() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.deck)
}
