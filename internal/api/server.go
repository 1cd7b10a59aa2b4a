package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"gangs/internal/config"
	"gangs/internal/gang"
	"gangs/internal/notify"
	"gangs/internal/store"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

type contextKey string

const playerContextKey contextKey = "player"

const playerHeader = "X-Player-ID"

type Server struct {
	cfg   config.ServerConfig
	log   *slog.Logger
	gangs *gang.Directory
	hub   *notify.Hub
	save  func(context.Context) error
	mux   *chi.Mux
}

func New(cfg config.ServerConfig, logger *slog.Logger, gangs *gang.Directory, hub *notify.Hub) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:   cfg,
		log:   logger,
		gangs: gangs,
		hub:   hub,
		mux:   chi.NewRouter(),
	}
	s.routes()
	return s
}

// SetSaver wires the admin save endpoint to the persistence layer.
func (s *Server) SetSaver(fn func(context.Context) error) {
	s.save = fn
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	r := s.mux
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "gangs": s.gangs.Len()})
	})

	r.Route("/v1", func(r chi.Router) {
		// The socket outlives any request timeout.
		r.With(s.authMiddleware).Get("/ws", s.handleWS)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(30 * time.Second))
			r.Use(s.authMiddleware)

			r.Get("/perks", s.handlePerks)
			r.Get("/gangs", s.handleList)
			r.Post("/gangs", s.handleCreate)
			r.Get("/gangs/{ref}", s.handleInfo)
			r.Post("/gangs/{ref}/join", s.handleJoin)
			r.Get("/territory/{chunk}", s.handleTerritoryOwner)

			r.Get("/me/gang", s.handleMyGang)
			r.Post("/gang/invites", s.handleInvite)
			r.Post("/gang/leave", s.handleLeave)
			r.Post("/gang/kick", s.handleKick)
			r.Post("/gang/promote", s.handlePromote)
			r.Post("/gang/disband", s.handleDisband)
			r.Post("/gang/perks", s.handleUnlockPerk)
			r.Post("/gang/fee", s.handleFee)
			r.Post("/gang/color", s.handleColor)
			r.Post("/gang/xp", s.handleAddXP)
			r.Post("/gang/treasury/deposit", s.handleDeposit)
			r.Post("/gang/treasury/withdraw", s.handleWithdraw)
			r.Post("/gang/territory/claim", s.handleClaim)
			r.Post("/gang/territory/unclaim", s.handleUnclaim)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.Timeout(60 * time.Second))
			r.Use(s.adminMiddleware)
			r.Post("/gangs/{ref}/level", s.handleAdminSetLevel)
			r.Post("/gangs/{ref}/xp", s.handleAdminAddXP)
			r.Post("/billing/run", s.handleAdminBilling)
			r.Post("/save", s.handleAdminSave)
			r.Get("/consistency", s.handleAdminConsistency)
		})
	})
}

// authMiddleware checks the shared API key and resolves the acting player.
// Browsers cannot set headers on a websocket upgrade, so token and player
// are also accepted as query parameters.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r.Header.Get("Authorization"))
		if token == "" {
			token = strings.TrimSpace(r.URL.Query().Get("token"))
		}
		if token == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		if !keyMatches(token, s.cfg.APIKey) {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		raw := strings.TrimSpace(r.Header.Get(playerHeader))
		if raw == "" {
			raw = strings.TrimSpace(r.URL.Query().Get("player"))
		}
		player, err := uuid.Parse(raw)
		if err != nil || player == uuid.Nil {
			writeError(w, http.StatusBadRequest, "missing or invalid "+playerHeader)
			return
		}
		ctx := context.WithValue(r.Context(), playerContextKey, player)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) adminMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.AdminKey == "" {
			writeError(w, http.StatusForbidden, "admin api disabled")
			return
		}
		if !keyMatches(bearerToken(r.Header.Get("Authorization")), s.cfg.AdminKey) {
			writeError(w, http.StatusForbidden, "invalid admin key")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// urlParam returns the decoded path parameter. chi matches on the raw path,
// so escaped characters such as the comma in "x,z" arrive still encoded.
func urlParam(r *http.Request, key string) string {
	raw := chi.URLParam(r, key)
	v, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return v
}

func keyMatches(got, want string) bool {
	if got == "" || want == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}

func playerFromContext(ctx context.Context) (uuid.UUID, error) {
	player, ok := ctx.Value(playerContextKey).(uuid.UUID)
	if !ok || player == uuid.Nil {
		return uuid.Nil, errors.New("missing player context")
	}
	return player, nil
}

func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, gang.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, gang.ErrAlreadyExists), errors.Is(err, gang.ErrCapacityExceeded):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, gang.ErrUnauthorized):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, gang.ErrInvalidState):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, gang.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrTxConflict):
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func decodeJSON(r *http.Request, out any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": strings.TrimSpace(message)})
}

func bearerToken(header string) string {
	header = strings.TrimSpace(header)
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
