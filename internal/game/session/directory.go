// Package session maps access tokens to registered identities and to the
// room each identity currently occupies.
package session

import (
	"errors"
	"sync"

	"github.com/cory-johannsen/setgame/internal/game/engine"
	"github.com/cory-johannsen/setgame/internal/game/rng"
	"github.com/cory-johannsen/setgame/internal/game/room"
)

// ErrInvalidToken is returned when a token matches no registered identity.
var ErrInvalidToken = errors.New("invalid access token")

// ErrRoomNotFound is returned when a room id matches no room.
var ErrRoomNotFound = errors.New("game not found")

// ErrNotInRoom is returned when an identity has never entered a room.
var ErrNotInRoom = errors.New("user is not in a game")

// Identity is a registered player, addressed solely by token after
// registration. The credential is stored and never compared again.
type Identity struct {
	Nickname string
	Token    string

	credential string
}

const (
	tokenLength   = 16
	tokenAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
)

// Directory is the process-wide session registry: token to identity,
// room id to room, and each identity's current-room pointer. Construct one
// at startup and inject it into handlers; identities and rooms are
// append-only and live for the process lifetime.
//
// All methods are safe for concurrent use.
type Directory struct {
	src rng.Source

	mu          sync.RWMutex
	identities  map[string]*Identity
	rooms       map[int]*room.Room
	roomOrder   []int
	currentRoom map[string]int
	nextRoomID  int
}

// NewDirectory creates an empty Directory whose rooms shuffle with src.
//
// Precondition: src must be non-nil.
func NewDirectory(src rng.Source) *Directory {
	return &Directory{
		src:         src,
		identities:  make(map[string]*Identity),
		rooms:       make(map[int]*room.Room),
		currentRoom: make(map[string]int),
	}
}

// generateToken draws a 16-character token from the 62-symbol alphanumeric
// alphabet. Caller checks uniqueness.
func (d *Directory) generateToken() string {
	buf := make([]byte, tokenLength)
	for i := range buf {
		buf[i] = tokenAlphabet[d.src.Intn(len(tokenAlphabet))]
	}
	return string(buf)
}

// Register creates an identity and returns its access token. Registration
// always succeeds; nicknames need not be unique. The token is regenerated on
// the (vanishingly rare) collision with an existing identity rather than
// silently merging sessions.
func (d *Directory) Register(nickname, credential string) string {
	d.mu.Lock()
	defer d.mu.Unlock()

	token := d.generateToken()
	for _, taken := d.identities[token]; taken; _, taken = d.identities[token] {
		token = d.generateToken()
	}

	d.identities[token] = &Identity{
		Nickname:   nickname,
		Token:      token,
		credential: credential,
	}
	return token
}

// Authenticate resolves a token to its identity.
//
// Postcondition: Returns the identity, or ErrInvalidToken.
func (d *Directory) Authenticate(token string) (*Identity, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	id, ok := d.identities[token]
	if !ok {
		return nil, ErrInvalidToken
	}
	return id, nil
}

// CreateRoom allocates the next room id (monotonic from 0, never reused) and
// constructs a fresh room with a freshly shuffled game.
func (d *Directory) CreateRoom() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	id := d.nextRoomID
	d.nextRoomID++
	d.rooms[id] = room.New(id, engine.New(d.src))
	d.roomOrder = append(d.roomOrder, id)
	return id
}

// ListRooms returns all room ids in creation order.
func (d *Directory) ListRooms() []int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]int, len(d.roomOrder))
	copy(out, d.roomOrder)
	return out
}

// EnterRoom points the identity at the given room and joins it. Re-entering
// any room is always allowed; the pointer is last-enter-wins and switching
// leaves the old room's score frozen, not deleted.
//
// Postcondition: On ErrInvalidToken or ErrRoomNotFound the current-room
// pointer is unchanged.
func (d *Directory) EnterRoom(token string, roomID int) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.identities[token]; !ok {
		return ErrInvalidToken
	}
	rm, ok := d.rooms[roomID]
	if !ok {
		return ErrRoomNotFound
	}

	d.currentRoom[token] = roomID
	rm.Join(token)
	return nil
}

// CurrentRoom returns the room the identity currently occupies.
//
// Postcondition: Returns ErrInvalidToken for unknown tokens and ErrNotInRoom
// for identities that never entered a room.
func (d *Directory) CurrentRoom(token string) (*room.Room, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if _, ok := d.identities[token]; !ok {
		return nil, ErrInvalidToken
	}
	roomID, ok := d.currentRoom[token]
	if !ok {
		return nil, ErrNotInRoom
	}
	rm, ok := d.rooms[roomID]
	if !ok {
		// Rooms are never removed, but a dangling pointer still reads as
		// "not in a game" rather than a panic.
		return nil, ErrNotInRoom
	}
	return rm, nil
}

// DisplayName resolves a participant token to its nickname for leaderboards.
// Unknown tokens resolve to the empty string.
func (d *Directory) DisplayName(token string) string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if id, ok := d.identities[token]; ok {
		return id.Nickname
	}
	return ""
}
