package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"chess-server/internal/game"
	"chess-server/internal/services"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

type GameHandler struct {
	coord  *services.Coordinator
	logger *zap.Logger
}

func NewGameHandler(coord *services.Coordinator, logger *zap.Logger) *GameHandler {
	return &GameHandler{coord: coord, logger: logger}
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type CreateGameRequest struct {
	WhitePlayerID string `json:"whitePlayerId"`
	BlackPlayerID string `json:"blackPlayerId"`
	TimeControl   string `json:"timeControl"`
}

type CreateGameResponse struct {
	GameID        string `json:"gameId"`
	WhitePlayerID string `json:"whitePlayerId"`
	BlackPlayerID string `json:"blackPlayerId"`
	TimeControl   string `json:"timeControl"`
}

// CreateGame creates a game for a matched pair of players. Called by the
// matchmaker, never by clients directly.
func (h *GameHandler) CreateGame(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	var req CreateGameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.WhitePlayerID == "" || req.BlackPlayerID == "" {
		respondWithError(w, http.StatusBadRequest, "whitePlayerId and blackPlayerId are required")
		return
	}
	if req.WhitePlayerID == req.BlackPlayerID {
		respondWithError(w, http.StatusBadRequest, "Players must be distinct")
		return
	}
	if req.TimeControl != "" && !game.IsValidTimeControl(req.TimeControl) {
		respondWithError(w, http.StatusBadRequest, "Unknown time control")
		return
	}

	g, err := h.coord.CreateGame(ctx, req.WhitePlayerID, req.BlackPlayerID, req.TimeControl)
	if err != nil {
		h.logger.Error("create game failed",
			zap.String("whitePlayerId", req.WhitePlayerID),
			zap.String("blackPlayerId", req.BlackPlayerID),
			zap.Error(err))
		respondWithError(w, http.StatusInternalServerError, "Failed to create game")
		return
	}

	respondWithJSON(w, http.StatusCreated, CreateGameResponse{
		GameID:        g.GameID,
		WhitePlayerID: g.WhitePlayerID,
		BlackPlayerID: g.BlackPlayerID,
		TimeControl:   g.TimeControl.Label,
	})
}

// GetGame returns the persisted game document.
func (h *GameHandler) GetGame(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	gameID := mux.Vars(r)["gameId"]

	g, err := h.coord.LoadGame(ctx, gameID)
	if err != nil {
		if errors.Is(err, services.ErrGameNotFound) {
			respondWithError(w, http.StatusNotFound, "Game not found")
			return
		}
		h.logger.Error("load game failed", zap.String("gameId", gameID), zap.Error(err))
		respondWithError(w, http.StatusInternalServerError, "Failed to load game")
		return
	}

	respondWithJSON(w, http.StatusOK, g)
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, ErrorResponse{Error: message})
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, _ := json.Marshal(payload)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}
