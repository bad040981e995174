package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cory-johannsen/setgame/internal/config"
	"github.com/cory-johannsen/setgame/internal/game/card"
	"github.com/cory-johannsen/setgame/internal/game/rng"
	"github.com/cory-johannsen/setgame/internal/game/session"
)

func testConfig() config.HTTPConfig {
	return config.HTTPConfig{
		Host:            "127.0.0.1",
		Port:            8000,
		ReadTimeout:     5 * time.Second,
		WriteTimeout:    5 * time.Second,
		ShutdownTimeout: time.Second,
	}
}

func newTestServer(t *testing.T, recorder IdentityRecorder) *Server {
	t.Helper()
	dir := session.NewDirectory(rng.NewCryptoSource())
	return New(testConfig(), dir, recorder, zap.NewNop())
}

// post sends a JSON body and unmarshals the (always-200) response into out.
func post(t *testing.T, s *Server, path string, body, out any) {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, "body: %s", rec.Body.String())
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out))
}

func register(t *testing.T, s *Server, nickname string) string {
	t.Helper()
	var resp registerResponse
	post(t, s, "/user/register", registerRequest{Nickname: nickname, Password: "pw"}, &resp)
	require.True(t, resp.Success)
	require.NotEmpty(t, resp.AccessToken)
	return resp.AccessToken
}

func findSetIDs(cards []card.Card) []int {
	for i := 0; i < len(cards); i++ {
		for j := i + 1; j < len(cards); j++ {
			for k := j + 1; k < len(cards); k++ {
				if card.IsSet(cards[i], cards[j], cards[k]) {
					return []int{cards[i].ID, cards[j].ID, cards[k].ID}
				}
			}
		}
	}
	return nil
}

func findNonSetIDs(cards []card.Card) []int {
	for i := 0; i < len(cards); i++ {
		for j := i + 1; j < len(cards); j++ {
			for k := j + 1; k < len(cards); k++ {
				if !card.IsSet(cards[i], cards[j], cards[k]) {
					return []int{cards[i].ID, cards[j].ID, cards[k].ID}
				}
			}
		}
	}
	return nil
}

func TestRoot_ListsEndpoints(t *testing.T) {
	s := newTestServer(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp rootResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Set Game Server", resp.Message)
	assert.Contains(t, resp.Endpoints, "POST /set/pick")
}

func TestRequestIDHeader(t *testing.T) {
	s := newTestServer(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestRegister(t *testing.T) {
	s := newTestServer(t, nil)
	var resp registerResponse
	post(t, s, "/user/register", registerRequest{Nickname: "alice", Password: "pw"}, &resp)

	assert.True(t, resp.Success)
	assert.Nil(t, resp.Exception)
	assert.Equal(t, "alice", resp.Nickname)
	assert.Len(t, resp.AccessToken, 16)
}

type failingRecorder struct{}

func (failingRecorder) RecordRegistration(context.Context, string, string) error {
	return errors.New("database offline")
}

func TestRegister_RecorderFailureIsBestEffort(t *testing.T) {
	s := newTestServer(t, failingRecorder{})
	var resp registerResponse
	post(t, s, "/user/register", registerRequest{Nickname: "alice", Password: "pw"}, &resp)
	assert.True(t, resp.Success, "audit store failures must not block registration")
}

func TestBadJSONBody(t *testing.T) {
	s := newTestServer(t, nil)
	req := httptest.NewRequest(http.MethodPost, "/user/register", bytes.NewReader([]byte("{nope")))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp baseResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	require.NotNil(t, resp.Exception)
	assert.Equal(t, codeBadRequest, resp.Exception.Code)
}

func TestCreateRoom_InvalidToken(t *testing.T) {
	s := newTestServer(t, nil)
	var resp createRoomResponse
	post(t, s, "/set/room/create", tokenRequest{AccessToken: "nope"}, &resp)

	assert.False(t, resp.Success)
	require.NotNil(t, resp.Exception)
	assert.Equal(t, codeInvalidToken, resp.Exception.Code)
}

func TestListRooms(t *testing.T) {
	s := newTestServer(t, nil)
	token := register(t, s, "alice")

	var created createRoomResponse
	post(t, s, "/set/room/create", tokenRequest{AccessToken: token}, &created)
	require.True(t, created.Success)
	assert.Equal(t, 0, created.GameID)

	post(t, s, "/set/room/create", tokenRequest{AccessToken: token}, &created)
	assert.Equal(t, 1, created.GameID)

	var listed listRoomsResponse
	post(t, s, "/set/room/list", tokenRequest{AccessToken: token}, &listed)
	require.True(t, listed.Success)
	assert.Equal(t, []roomInfo{{ID: 0}, {ID: 1}}, listed.Games)
}

func TestEnterRoom_UnknownRoom(t *testing.T) {
	s := newTestServer(t, nil)
	token := register(t, s, "alice")

	var resp enterRoomResponse
	post(t, s, "/set/room/enter", enterRoomRequest{AccessToken: token, GameID: 42}, &resp)

	assert.False(t, resp.Success)
	require.NotNil(t, resp.Exception)
	assert.Equal(t, codeRoomNotFound, resp.Exception.Code)
}

func TestField_NotInRoom(t *testing.T) {
	s := newTestServer(t, nil)
	token := register(t, s, "alice")

	var resp fieldResponse
	post(t, s, "/set/field", tokenRequest{AccessToken: token}, &resp)

	assert.False(t, resp.Success)
	require.NotNil(t, resp.Exception)
	assert.Equal(t, codeNotInRoom, resp.Exception.Code)
}

func TestPick_WrongCardCount(t *testing.T) {
	s := newTestServer(t, nil)
	token := register(t, s, "alice")

	var created createRoomResponse
	post(t, s, "/set/room/create", tokenRequest{AccessToken: token}, &created)
	var entered enterRoomResponse
	post(t, s, "/set/room/enter", enterRoomRequest{AccessToken: token, GameID: created.GameID}, &entered)
	require.True(t, entered.Success)

	var resp pickResponse
	post(t, s, "/set/pick", pickRequest{AccessToken: token, Cards: []int{1}}, &resp)

	assert.False(t, resp.Success)
	require.NotNil(t, resp.Exception)
	assert.Equal(t, codeInvalidPick, resp.Exception.Code)
}

func TestFullGameFlow(t *testing.T) {
	s := newTestServer(t, nil)
	alice := register(t, s, "alice")
	bob := register(t, s, "bob")

	var created createRoomResponse
	post(t, s, "/set/room/create", tokenRequest{AccessToken: alice}, &created)
	require.True(t, created.Success)

	for _, token := range []string{alice, bob} {
		var entered enterRoomResponse
		post(t, s, "/set/room/enter", enterRoomRequest{AccessToken: token, GameID: created.GameID}, &entered)
		require.True(t, entered.Success)
	}

	var field fieldResponse
	post(t, s, "/set/field", tokenRequest{AccessToken: alice}, &field)
	require.True(t, field.Success)
	assert.Len(t, field.Cards, 12)
	assert.Equal(t, "ongoing", field.Status)
	assert.Equal(t, 0, field.Score)

	// Alice hunts a real Set, dealing extra cards if the field has none. A
	// capped field with no Set exists but is astronomically rare; re-deal
	// into a fresh room rather than fail on it.
	var setIDs []int
	for {
		post(t, s, "/set/field", tokenRequest{AccessToken: alice}, &field)
		require.True(t, field.Success)
		setIDs = findSetIDs(field.Cards)
		if setIDs != nil {
			break
		}
		before := len(field.Cards)
		var ack baseResponse
		post(t, s, "/set/add", tokenRequest{AccessToken: alice}, &ack)
		require.True(t, ack.Success)
		post(t, s, "/set/field", tokenRequest{AccessToken: alice}, &field)
		if len(field.Cards) == before {
			post(t, s, "/set/room/create", tokenRequest{AccessToken: alice}, &created)
			require.True(t, created.Success)
			for _, token := range []string{alice, bob} {
				var entered enterRoomResponse
				post(t, s, "/set/room/enter", enterRoomRequest{AccessToken: token, GameID: created.GameID}, &entered)
				require.True(t, entered.Success)
			}
		}
	}

	// Bob guesses a triple that is not a Set; every 12-card field has one.
	// A miss never mutates the field, so alice's Set stays available.
	nonSet := findNonSetIDs(field.Cards)
	require.NotNil(t, nonSet)
	var miss pickResponse
	post(t, s, "/set/pick", pickRequest{AccessToken: bob, Cards: nonSet}, &miss)
	require.True(t, miss.Success)
	assert.False(t, miss.IsSet)
	assert.Equal(t, -1, miss.Score)

	var hit pickResponse
	post(t, s, "/set/pick", pickRequest{AccessToken: alice, Cards: setIDs}, &hit)
	require.True(t, hit.Success)
	assert.True(t, hit.IsSet)
	assert.Equal(t, 1, hit.Score)

	var scores scoresResponse
	post(t, s, "/set/scores", tokenRequest{AccessToken: bob}, &scores)
	require.True(t, scores.Success)
	require.Len(t, scores.Users, 2)
	assert.Equal(t, "alice", scores.Users[0].Name)
	assert.Equal(t, 1, scores.Users[0].Score)
	assert.Equal(t, "bob", scores.Users[1].Name)
	assert.Equal(t, -1, scores.Users[1].Score)
}

func TestAddCards_GrowsField(t *testing.T) {
	s := newTestServer(t, nil)
	token := register(t, s, "alice")

	var created createRoomResponse
	post(t, s, "/set/room/create", tokenRequest{AccessToken: token}, &created)
	var entered enterRoomResponse
	post(t, s, "/set/room/enter", enterRoomRequest{AccessToken: token, GameID: created.GameID}, &entered)
	require.True(t, entered.Success)

	var ack baseResponse
	post(t, s, "/set/add", tokenRequest{AccessToken: token}, &ack)
	require.True(t, ack.Success)

	var field fieldResponse
	post(t, s, "/set/field", tokenRequest{AccessToken: token}, &field)
	assert.Len(t, field.Cards, 15)
}
