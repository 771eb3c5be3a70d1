// Package server exposes the chat engine over HTTP.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"vizbot/internal/bot"
	"vizbot/internal/journal"
	"vizbot/internal/logging"
	"vizbot/internal/models"
	"vizbot/internal/store"
)

// Server routes chat requests to the engine and persists the outcome.
//
// Overlapping requests for the same user are last-write-wins: each turn
// loads a snapshot, runs the engine, and saves. Chat clients send turns
// sequentially, so this is accepted rather than locked around.
type Server struct {
	router       *chi.Mux
	server       *http.Server
	engine       *bot.Engine
	store        store.UserStore
	initialFunds decimal.Decimal
	logger       zerolog.Logger
	addr         string
}

// Config holds server construction parameters.
type Config struct {
	ListenAddr   string
	InitialFunds decimal.Decimal
}

// NewServer creates the HTTP front end for the chat engine.
func NewServer(cfg Config, engine *bot.Engine, userStore store.UserStore, logger zerolog.Logger) *Server {
	s := &Server{
		router:       chi.NewRouter(),
		engine:       engine,
		store:        userStore,
		initialFunds: cfg.InitialFunds,
		logger:       logger,
		addr:         cfg.ListenAddr,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(30 * time.Second))

	s.router.Post("/api/chat", s.handleChat)
	s.router.Get("/api/users/{userID}/portfolio", s.handleGetPortfolio)
	s.router.Get("/api/users/{userID}/journal.csv", s.handleJournalCSV)
	s.router.Get("/health", s.handleHealth)
}

// Handler returns the underlying router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start blocks serving HTTP until Shutdown or a listener error.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:    s.addr,
		Handler: s.router,
	}

	s.logger.Info().Str("addr", s.addr).Msg("Starting chat server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// welcomeMessage opens a new user's transcript before their first turn's reply.
const welcomeMessage = "Welcome to VizBot — a NIFTY options paper trading assistant. " +
	"You start with ₹4,00,000 in virtual funds. Type 'start' to begin or 'help' for commands."

type chatRequest struct {
	UserID string `json:"userId"`
	Text   string `json:"text"`
}

type chatResponse struct {
	Response models.BotResponsePayload `json:"response"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.UserID == "" {
		s.writeError(w, http.StatusBadRequest, "userId is required")
		return
	}

	ctx := r.Context()
	logger := logging.WithUser(s.logger, req.UserID)

	data, found, err := s.store.Get(ctx, req.UserID)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to load user")
		s.writeError(w, http.StatusInternalServerError, "storage error")
		return
	}
	if !found {
		data = s.seedUser()
	}

	payload := s.engine.HandleChatInput(ctx, req.Text, data.AccessToken, data.Portfolio)

	if payload.Type == models.PayloadReset {
		// Reset wipes the stored state entirely; the fresh portfolio is
		// seeded on the user's next turn.
		if err := s.store.Delete(ctx, req.UserID); err != nil {
			logger.Error().Err(err).Msg("Failed to reset user")
			s.writeError(w, http.StatusInternalServerError, "storage error")
			return
		}
		s.writeJSON(w, http.StatusOK, chatResponse{Response: payload})
		return
	}

	patch := store.UserDataPatch{
		Messages: []models.Message{
			{ID: uuid.NewString(), Role: models.RoleUser, Content: req.Text},
			{ID: uuid.NewString(), Role: models.RoleBot, Content: payload.Message, Payload: &payload},
		},
	}
	if !found {
		greeting := models.Message{ID: uuid.NewString(), Role: models.RoleBot, Content: welcomeMessage}
		patch.Messages = append([]models.Message{greeting}, patch.Messages...)
		patch.Portfolio = &data.Portfolio
		patch.AccessToken = &data.AccessToken
	}
	if payload.Portfolio != nil {
		patch.Portfolio = payload.Portfolio
	}
	if payload.AccessToken != "" {
		patch.AccessToken = &payload.AccessToken
	}

	if err := s.store.Save(ctx, req.UserID, patch); err != nil {
		logger.Error().Err(err).Msg("Failed to save user")
		s.writeError(w, http.StatusInternalServerError, "storage error")
		return
	}

	s.writeJSON(w, http.StatusOK, chatResponse{Response: payload})
}

func (s *Server) handleGetPortfolio(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	data, found, err := s.store.Get(r.Context(), userID)
	if err != nil {
		s.logger.Error().Err(err).Str("user", userID).Msg("Failed to load user")
		s.writeError(w, http.StatusInternalServerError, "storage error")
		return
	}
	if !found {
		data = s.seedUser()
	}

	s.writeJSON(w, http.StatusOK, data.Portfolio)
}

func (s *Server) handleJournalCSV(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	data, found, err := s.store.Get(r.Context(), userID)
	if err != nil {
		s.logger.Error().Err(err).Str("user", userID).Msg("Failed to load user")
		s.writeError(w, http.StatusInternalServerError, "storage error")
		return
	}
	if !found {
		data = s.seedUser()
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="trade-journal.csv"`)
	if err := journal.WriteCSV(w, data.Portfolio.TradeHistory); err != nil {
		s.logger.Error().Err(err).Str("user", userID).Msg("Failed to write journal csv")
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// seedUser builds the state a first-time user starts from.
func (s *Server) seedUser() store.UserData {
	return store.UserData{Portfolio: models.NewPortfolio(s.initialFunds)}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error().Err(err).Msg("Failed to encode response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
