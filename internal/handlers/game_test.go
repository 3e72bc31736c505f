package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"chess-server/internal/audit"
	"chess-server/internal/models"
	"chess-server/internal/services"
	"chess-server/internal/store"
)

type noopFabric struct{}

func (noopFabric) Emit(room, event string, payload interface{}) {}
func (noopFabric) EmitAll(event string, payload interface{})    {}
func (noopFabric) Count(room string) int                        { return 0 }
func (noopFabric) CountUser(room, userID string) int            { return 0 }

func newTestRouter(t *testing.T) (*mux.Router, *services.Coordinator) {
	t.Helper()
	logger := zap.NewNop()
	st := store.NewMemoryStore()
	coord := services.NewCoordinator(st, noopFabric{}, services.NewStats(st, nil, logger), audit.NewLogger(nil, logger), logger)
	h := NewGameHandler(coord, logger)

	r := mux.NewRouter()
	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/games", h.CreateGame).Methods(http.MethodPost)
	api.HandleFunc("/games/{gameId}", h.GetGame).Methods(http.MethodGet)
	return r, coord
}

func doJSON(t *testing.T, router *mux.Router, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	r := httptest.NewRequest(method, path, strings.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)
	return w
}

func TestCreateGame(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doJSON(t, router, http.MethodPost, "/api/games",
		`{"whitePlayerId":"alice","blackPlayerId":"bob","timeControl":"blitz"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	require.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var resp CreateGameResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.GameID)
	require.Equal(t, "alice", resp.WhitePlayerID)
	require.Equal(t, "bob", resp.BlackPlayerID)
	require.Equal(t, "blitz", resp.TimeControl)

	got := doJSON(t, router, http.MethodGet, "/api/games/"+resp.GameID, "")
	require.Equal(t, http.StatusOK, got.Code)

	var g models.Game
	require.NoError(t, json.Unmarshal(got.Body.Bytes(), &g))
	require.Equal(t, resp.GameID, g.GameID)
	require.Equal(t, models.GameStatusOngoing, g.Status)
	require.NotNil(t, g.Clock)
}

func TestCreateGame_DefaultTimeControl(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doJSON(t, router, http.MethodPost, "/api/games",
		`{"whitePlayerId":"alice","blackPlayerId":"bob"}`)
	require.Equal(t, http.StatusCreated, w.Code)

	var resp CreateGameResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, "rapid", resp.TimeControl)
}

func TestCreateGame_Rejections(t *testing.T) {
	router, _ := newTestRouter(t)

	tests := []struct {
		name    string
		body    string
		wantMsg string
	}{
		{
			name:    "malformed body",
			body:    `{nope`,
			wantMsg: "Invalid request body",
		},
		{
			name:    "missing players",
			body:    `{"whitePlayerId":"alice"}`,
			wantMsg: "whitePlayerId and blackPlayerId are required",
		},
		{
			name:    "same player on both sides",
			body:    `{"whitePlayerId":"alice","blackPlayerId":"alice"}`,
			wantMsg: "Players must be distinct",
		},
		{
			name:    "unknown time control",
			body:    `{"whitePlayerId":"alice","blackPlayerId":"bob","timeControl":"hyperbullet"}`,
			wantMsg: "Unknown time control",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			w := doJSON(t, router, http.MethodPost, "/api/games", tc.body)
			require.Equal(t, http.StatusBadRequest, w.Code)

			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			require.Equal(t, tc.wantMsg, resp.Error)
		})
	}
}

func TestGetGame_NotFound(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doJSON(t, router, http.MethodGet, "/api/games/does-not-exist", "")
	require.Equal(t, http.StatusNotFound, w.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, "Game not found", resp.Error)
}

func TestGetGame_ReflectsCompletedState(t *testing.T) {
	router, coord := newTestRouter(t)
	ctx := context.Background()

	g, err := coord.CreateGame(ctx, "alice", "bob", "bullet")
	require.NoError(t, err)
	require.NoError(t, coord.Resign(ctx, "alice", g.GameID))

	w := doJSON(t, router, http.MethodGet, "/api/games/"+g.GameID, "")
	require.Equal(t, http.StatusOK, w.Code)

	var got models.Game
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	require.Equal(t, models.GameStatusCompleted, got.Status)
	require.Equal(t, models.ResultBlack, got.Result)
	require.Equal(t, models.ReasonResignation, got.ResultReason)
}
