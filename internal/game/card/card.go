// Package card defines the Set deck: 81 cards over four ternary attributes
// and the triple-matching rule.
package card

// Attribute values are drawn from {1, 2, 3}.
const (
	AttrMin = 1
	AttrMax = 3
)

// DeckSize is the number of cards in a full deck: one per attribute
// combination (3^4).
const DeckSize = 81

// Card is a single Set card. Attribute values are immutable; ID is assigned
// at deck construction and stable for the lifetime of the game.
type Card struct {
	ID    int `json:"id"`
	Count int `json:"count"`
	Shape int `json:"shape"`
	Fill  int `json:"fill"`
	Color int `json:"color"`
}

// NewDeck returns the canonical 81-card deck in id order.
//
// Postcondition: Every attribute combination appears exactly once; ids run
// 0..80 and equal each card's slice index.
func NewDeck() []Card {
	deck := make([]Card, 0, DeckSize)
	id := 0
	for color := AttrMin; color <= AttrMax; color++ {
		for shape := AttrMin; shape <= AttrMax; shape++ {
			for fill := AttrMin; fill <= AttrMax; fill++ {
				for count := AttrMin; count <= AttrMax; count++ {
					deck = append(deck, Card{
						ID:    id,
						Count: count,
						Shape: shape,
						Fill:  fill,
						Color: color,
					})
					id++
				}
			}
		}
	}
	return deck
}

// coherent reports whether one attribute triple is all-equal or all-distinct.
// A triple with exactly two equal values fails.
func coherent(a, b, c int) bool {
	return (a == b && b == c) || (a != b && a != c && b != c)
}

// IsSet reports whether three cards form a valid Set: every one of the four
// attributes must be coherent (all-equal or all-distinct) across the triple.
//
// Postcondition: The result is invariant under any permutation of the
// arguments.
func IsSet(a, b, c Card) bool {
	return coherent(a.Count, b.Count, c.Count) &&
		coherent(a.Shape, b.Shape, c.Shape) &&
		coherent(a.Fill, b.Fill, c.Fill) &&
		coherent(a.Color, b.Color, c.Color)
}
