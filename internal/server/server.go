package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/cory-johannsen/setgame/internal/config"
	"github.com/cory-johannsen/setgame/internal/game/card"
	"github.com/cory-johannsen/setgame/internal/game/engine"
	"github.com/cory-johannsen/setgame/internal/game/room"
	"github.com/cory-johannsen/setgame/internal/game/session"
)

// IdentityRecorder persists registrations for audit. Implementations must be
// safe for concurrent use; a nil recorder disables persistence.
type IdentityRecorder interface {
	RecordRegistration(ctx context.Context, nickname, token string) error
}

// Server exposes the game over the JSON-over-POST protocol the original
// clients speak: every response carries a success flag and an in-band
// exception instead of a transport error status.
type Server struct {
	cfg      config.HTTPConfig
	dir      *session.Directory
	recorder IdentityRecorder
	logger   *zap.Logger
	mux      *http.ServeMux
	httpSrv  *http.Server
}

// New creates a Server with all routes registered.
//
// Precondition: dir and logger must be non-nil; recorder may be nil.
func New(cfg config.HTTPConfig, dir *session.Directory, recorder IdentityRecorder, logger *zap.Logger) *Server {
	s := &Server{
		cfg:      cfg,
		dir:      dir,
		recorder: recorder,
		logger:   logger,
		mux:      http.NewServeMux(),
	}
	s.routes()
	s.httpSrv = &http.Server{
		Addr:         cfg.Addr(),
		Handler:      s.withRequestLogging(s.mux),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /{$}", s.handleRoot)
	s.mux.HandleFunc("POST /user/register", s.handleRegister)
	s.mux.HandleFunc("POST /set/room/create", s.handleCreateRoom)
	s.mux.HandleFunc("POST /set/room/list", s.handleListRooms)
	s.mux.HandleFunc("POST /set/room/enter", s.handleEnterRoom)
	s.mux.HandleFunc("POST /set/field", s.handleField)
	s.mux.HandleFunc("POST /set/pick", s.handlePick)
	s.mux.HandleFunc("POST /set/add", s.handleAddCards)
	s.mux.HandleFunc("POST /set/scores", s.handleScores)
}

// ServeHTTP dispatches through the full middleware chain; used by tests.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpSrv.Handler.ServeHTTP(w, r)
}

// Start implements Service. It blocks until the listener closes.
func (s *Server) Start() error {
	s.logger.Info("http server listening", zap.String("addr", s.cfg.Addr()))
	if err := s.httpSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop implements Service with a bounded graceful shutdown.
func (s *Server) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := s.httpSrv.Shutdown(ctx); err != nil {
		s.logger.Warn("http shutdown", zap.Error(err))
	}
}

// Wire envelope. Failures are reported in-band with HTTP 200; the code field
// lets callers distinguish the recoverable kinds.
type exceptionBody struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type baseResponse struct {
	Success   bool           `json:"success"`
	Exception *exceptionBody `json:"exception"`
}

// Failure codes surfaced on the exception body.
const (
	codeBadRequest   = "bad_request"
	codeInvalidToken = "invalid_token"
	codeRoomNotFound = "room_not_found"
	codeNotInRoom    = "not_in_room"
	codeInvalidPick  = "invalid_pick"
	codeCardNotFound = "card_not_found"
)

// failure maps a domain error onto the wire envelope.
func failure(err error) baseResponse {
	code := codeBadRequest
	switch {
	case errors.Is(err, session.ErrInvalidToken):
		code = codeInvalidToken
	case errors.Is(err, session.ErrRoomNotFound):
		code = codeRoomNotFound
	case errors.Is(err, session.ErrNotInRoom):
		code = codeNotInRoom
	case errors.Is(err, engine.ErrInvalidPick):
		code = codeInvalidPick
	case errors.Is(err, engine.ErrCardNotFound):
		code = codeCardNotFound
	}
	return baseResponse{Exception: &exceptionBody{Message: err.Error(), Code: code}}
}

var errBadBody = errors.New("invalid request body")

func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errBadBody
	}
	return nil
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("encoding response", zap.Error(err))
	}
}

type registerRequest struct {
	Nickname string `json:"nickname"`
	Password string `json:"password"`
}

type registerResponse struct {
	baseResponse
	Nickname    string `json:"nickname"`
	AccessToken string `json:"accessToken"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decode(r, &req); err != nil {
		s.writeJSON(w, failure(err))
		return
	}

	token := s.dir.Register(req.Nickname, req.Password)
	if s.recorder != nil {
		if err := s.recorder.RecordRegistration(r.Context(), req.Nickname, token); err != nil {
			// The in-memory registration already succeeded; the audit row is
			// best-effort.
			s.logger.Warn("recording registration", zap.Error(err))
		}
	}
	s.logger.Info("player registered", zap.String("nickname", req.Nickname))

	s.writeJSON(w, registerResponse{
		baseResponse: baseResponse{Success: true},
		Nickname:     req.Nickname,
		AccessToken:  token,
	})
}

type tokenRequest struct {
	AccessToken string `json:"accessToken"`
}

type createRoomResponse struct {
	baseResponse
	GameID int `json:"gameId"`
}

func (s *Server) handleCreateRoom(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := decode(r, &req); err != nil {
		s.writeJSON(w, failure(err))
		return
	}
	if _, err := s.dir.Authenticate(req.AccessToken); err != nil {
		s.writeJSON(w, failure(err))
		return
	}

	id := s.dir.CreateRoom()
	s.logger.Info("room created", zap.Int("game_id", id))

	s.writeJSON(w, createRoomResponse{
		baseResponse: baseResponse{Success: true},
		GameID:       id,
	})
}

type roomInfo struct {
	ID int `json:"id"`
}

type listRoomsResponse struct {
	baseResponse
	Games []roomInfo `json:"games"`
}

func (s *Server) handleListRooms(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := decode(r, &req); err != nil {
		s.writeJSON(w, failure(err))
		return
	}
	if _, err := s.dir.Authenticate(req.AccessToken); err != nil {
		s.writeJSON(w, failure(err))
		return
	}

	ids := s.dir.ListRooms()
	games := make([]roomInfo, 0, len(ids))
	for _, id := range ids {
		games = append(games, roomInfo{ID: id})
	}

	s.writeJSON(w, listRoomsResponse{
		baseResponse: baseResponse{Success: true},
		Games:        games,
	})
}

type enterRoomRequest struct {
	AccessToken string `json:"accessToken"`
	GameID      int    `json:"gameId"`
}

type enterRoomResponse struct {
	baseResponse
	GameID int `json:"gameId"`
}

func (s *Server) handleEnterRoom(w http.ResponseWriter, r *http.Request) {
	var req enterRoomRequest
	if err := decode(r, &req); err != nil {
		s.writeJSON(w, failure(err))
		return
	}
	if err := s.dir.EnterRoom(req.AccessToken, req.GameID); err != nil {
		s.writeJSON(w, failure(err))
		return
	}
	s.logger.Info("player entered room", zap.Int("game_id", req.GameID))

	s.writeJSON(w, enterRoomResponse{
		baseResponse: baseResponse{Success: true},
		GameID:       req.GameID,
	})
}

type fieldResponse struct {
	baseResponse
	Cards  []card.Card `json:"cards"`
	Status string      `json:"status"`
	Score  int         `json:"score"`
}

func (s *Server) handleField(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := decode(r, &req); err != nil {
		s.writeJSON(w, failure(err))
		return
	}
	rm, err := s.dir.CurrentRoom(req.AccessToken)
	if err != nil {
		s.writeJSON(w, failure(err))
		return
	}

	s.writeJSON(w, fieldResponse{
		baseResponse: baseResponse{Success: true},
		Cards:        rm.Field(),
		Status:       rm.Status(),
		Score:        rm.ScoreOf(req.AccessToken),
	})
}

type pickRequest struct {
	AccessToken string `json:"accessToken"`
	Cards       []int  `json:"cards"`
}

type pickResponse struct {
	baseResponse
	IsSet bool `json:"isSet"`
	Score int  `json:"score"`
}

func (s *Server) handlePick(w http.ResponseWriter, r *http.Request) {
	var req pickRequest
	if err := decode(r, &req); err != nil {
		s.writeJSON(w, failure(err))
		return
	}
	rm, err := s.dir.CurrentRoom(req.AccessToken)
	if err != nil {
		s.writeJSON(w, failure(err))
		return
	}

	matched, score, err := rm.SubmitPick(req.AccessToken, req.Cards)
	if err != nil {
		s.writeJSON(w, failure(err))
		return
	}
	s.logger.Debug("pick submitted",
		zap.Int("game_id", rm.ID()),
		zap.Bool("matched", matched),
		zap.Int("score", score),
	)

	s.writeJSON(w, pickResponse{
		baseResponse: baseResponse{Success: true},
		IsSet:        matched,
		Score:        score,
	})
}

func (s *Server) handleAddCards(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := decode(r, &req); err != nil {
		s.writeJSON(w, failure(err))
		return
	}
	rm, err := s.dir.CurrentRoom(req.AccessToken)
	if err != nil {
		s.writeJSON(w, failure(err))
		return
	}

	rm.AddExtra()
	s.logger.Debug("extra cards dealt", zap.Int("game_id", rm.ID()))

	s.writeJSON(w, baseResponse{Success: true})
}

type scoresResponse struct {
	baseResponse
	Users []room.Score `json:"users"`
}

func (s *Server) handleScores(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := decode(r, &req); err != nil {
		s.writeJSON(w, failure(err))
		return
	}
	rm, err := s.dir.CurrentRoom(req.AccessToken)
	if err != nil {
		s.writeJSON(w, failure(err))
		return
	}

	s.writeJSON(w, scoresResponse{
		baseResponse: baseResponse{Success: true},
		Users:        rm.Leaderboard(s.dir.DisplayName),
	})
}

type rootResponse struct {
	Message   string   `json:"message"`
	Endpoints []string `json:"endpoints"`
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, rootResponse{
		Message: "Set Game Server",
		Endpoints: []string{
			"POST /user/register",
			"POST /set/room/create",
			"POST /set/room/list",
			"POST /set/room/enter",
			"POST /set/field",
			"POST /set/pick",
			"POST /set/add",
			"POST /set/scores",
		},
	})
}
