package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/wricardo/dicerace/auth"
	"github.com/wricardo/dicerace/game/config"
	"github.com/wricardo/dicerace/game/directory"
	"github.com/wricardo/dicerace/game/room"
	"github.com/wricardo/dicerace/game/service"
	"github.com/wricardo/dicerace/storage"
	"github.com/wricardo/dicerace/transport/websocket"
)

// AccountStore is what the account page reads.
type AccountStore interface {
	GetUser(ctx context.Context, username string) (storage.User, error)
	PlayerStats(ctx context.Context, username string) (storage.PlayerStats, error)
}

// Server represents the REST API server
type Server struct {
	coord    *service.Coordinator
	hub      *websocket.Hub
	auth     *auth.Service
	accounts AccountStore
	router   *mux.Router
	logger   zerolog.Logger
}

// NewServer creates a new API server
func NewServer(coord *service.Coordinator, hub *websocket.Hub, authService *auth.Service, accounts AccountStore, logger zerolog.Logger) *Server {
	s := &Server{
		coord:    coord,
		hub:      hub,
		auth:     authService,
		accounts: accounts,
		router:   mux.NewRouter(),
		logger:   logger,
	}

	s.setupRoutes()
	return s
}

// Router exposes the router so callers can mount extra handlers.
func (s *Server) Router() *mux.Router { return s.router }

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api").Subrouter()

	// Accounts
	api.HandleFunc("/register", s.handleRegister).Methods("POST")
	api.HandleFunc("/token", s.handleToken).Methods("POST")
	api.HandleFunc("/logout", s.handleLogout).Methods("POST")
	api.HandleFunc("/account", s.handleAccount).Methods("GET")

	// Rooms
	api.HandleFunc("/rooms", s.handleListRooms).Methods("GET")
	api.HandleFunc("/rooms", s.handleCreateRoom).Methods("POST")
	api.HandleFunc("/rooms/{id}", s.handleGetRoom).Methods("GET")

	// Presets
	api.HandleFunc("/presets", s.handleListPresets).Methods("GET")

	// WebSocket
	s.router.HandleFunc("/ws/{room}", s.handleWebSocket).Methods("GET")

	s.router.HandleFunc("/healthz", s.handleHealth).Methods("GET")
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Response helpers
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, directory.ErrRoomNotFound),
		errors.Is(err, room.ErrRoomClosed),
		errors.Is(err, config.ErrConfigNotFound),
		errors.Is(err, storage.ErrUserNotFound):
		return http.StatusNotFound
	case errors.Is(err, directory.ErrDuplicateID),
		errors.Is(err, storage.ErrDuplicateUsername),
		errors.Is(err, storage.ErrDuplicateEmail):
		return http.StatusConflict
	case errors.Is(err, room.ErrRoomFull):
		return http.StatusForbidden
	case errors.Is(err, room.ErrInvalidConfig),
		errors.Is(err, room.ErrEmptyIdentity),
		errors.Is(err, directory.ErrInvalidRoomID),
		errors.Is(err, config.ErrInvalidConfig),
		errors.Is(err, auth.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, auth.ErrInvalidCredentials),
		errors.Is(err, auth.ErrNoToken),
		errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrExpiredToken):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		respondError(w, status, "internal error")
		return
	}
	respondError(w, status, err.Error())
}

// decodeBody accepts either a JSON body or a classic HTML form.
func decodeBody(r *http.Request, dst interface{}, form func(get func(string) string)) error {
	ct := r.Header.Get("Content-Type")
	if strings.HasPrefix(ct, "application/x-www-form-urlencoded") || strings.HasPrefix(ct, "multipart/form-data") {
		if err := r.ParseForm(); err != nil {
			return err
		}
		form(r.PostFormValue)
		return nil
	}
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	return json.NewDecoder(r.Body).Decode(dst)
}

// Account Handlers

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req auth.RegisterRequest
	err := decodeBody(r, &req, func(get func(string) string) {
		req.Username = get("username")
		req.Password = get("password")
		req.ConfirmPassword = get("confirm_password")
		req.Email = get("email")
	})
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := s.auth.Register(r.Context(), req); err != nil {
		s.fail(w, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, map[string]string{
		"message":  "user added",
		"username": req.Username,
	})
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	err := decodeBody(r, &req, func(get func(string) string) {
		req.Username = get("username")
		req.Password = get("password")
	})
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	tok, err := s.auth.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	maxAge := int(time.Until(tok.ExpiresAt).Seconds())
	http.SetCookie(w, &http.Cookie{
		Name:     auth.AccessTokenCookie,
		Value:    tok.Value,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   maxAge,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     auth.ExpirationCookie,
		Value:    tok.ExpiresAt.UTC().Format(time.RFC3339),
		Path:     "/",
		SameSite: http.SameSiteLaxMode,
		MaxAge:   maxAge,
	})

	respondJSON(w, http.StatusOK, tok)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	for _, name := range []string{auth.AccessTokenCookie, auth.ExpirationCookie} {
		http.SetCookie(w, &http.Cookie{Name: name, Value: "", Path: "/", MaxAge: -1})
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

func (s *Server) handleAccount(w http.ResponseWriter, r *http.Request) {
	username, err := s.auth.Identify(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	user, err := s.accounts.GetUser(r.Context(), username)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	stats, err := s.accounts.PlayerStats(r.Context(), username)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"username":          user.Username,
		"email":             user.Email,
		"games":             stats.Games,
		"wins":              stats.Wins,
		"mean_game_seconds": stats.MeanGameSeconds,
	})
}

// Room Handlers

func (s *Server) handleListRooms(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.coord.ListRooms(r.Context()))
}

func (s *Server) handleCreateRoom(w http.ResponseWriter, r *http.Request) {
	var req service.CreateRoomRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
	}

	info, err := s.coord.CreateRoom(r.Context(), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, info)
}

func (s *Server) handleGetRoom(w http.ResponseWriter, r *http.Request) {
	info, err := s.coord.GetRoom(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, info)
}

func (s *Server) handleListPresets(w http.ResponseWriter, r *http.Request) {
	presets, err := s.coord.ListPresets(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, presets)
}

// WebSocket Handler

// handleWebSocket admits the player over HTTP first so a full or missing room
// is refused before any socket exists.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	roomID := mux.Vars(r)["room"]

	identity, err := s.auth.Identify(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	if err := s.coord.Join(r.Context(), roomID, identity); err != nil {
		s.fail(w, r, err)
		return
	}

	if err := s.hub.Serve(w, r, roomID, identity, s.coord); err != nil {
		s.coord.AbortJoin(roomID, identity)
	}
}

// Health check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status": "healthy",
		"rooms":  len(s.coord.ListRooms(r.Context())),
	})
}
