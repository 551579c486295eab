// Package api serves the game core over HTTP. GET endpoints are
// read-only snapshots; POST endpoints mutate and sit behind the rate
// limiter. The mission endpoint relays the engine's outcome verbatim.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/talgya/ironhold/internal/accrual"
	"github.com/talgya/ironhold/internal/game"
	"github.com/talgya/ironhold/internal/mission"
	"github.com/talgya/ironhold/internal/persistence"
	"github.com/talgya/ironhold/internal/vault"
)

// Server exposes the core engines over HTTP.
type Server struct {
	Port     int
	DB       *persistence.DB
	Accrual  *accrual.Engine
	Missions *mission.Engine
	Vaults   *vault.Manager
	Feed     *Hub
}

// routes assembles the endpoint table.
func (s *Server) routes() *http.ServeMux {
	actionLimiter := NewRateLimiter(60, time.Minute)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/status", s.handleStatus)
	mux.HandleFunc("GET /api/v1/owners/{id}", s.handleOwner)
	mux.HandleFunc("GET /api/v1/owners/{id}/income", s.handleIncome)
	mux.HandleFunc("POST /api/v1/owners/{id}/catchup", limit(actionLimiter, s.handleCatchUp))
	mux.HandleFunc("POST /api/v1/owners/{id}/vault/purchase", limit(actionLimiter, s.handleVaultPurchase))
	mux.HandleFunc("POST /api/v1/missions", limit(actionLimiter, s.handleMission))
	if s.Feed != nil {
		mux.HandleFunc("GET /api/v1/feed", s.Feed.serveFeed)
	}
	return mux
}

// Start begins serving in a goroutine.
func (s *Server) Start() {
	if s.Feed != nil {
		go s.Feed.Run()
	}
	mux := s.routes()

	addr := fmt.Sprintf(":%d", s.Port)
	go func() {
		slog.Info("api server listening", "addr", addr)
		if err := http.ListenAndServe(addr, mux); err != nil {
			slog.Error("api server stopped", "error", err)
		}
	}()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps the error taxonomy onto HTTP statuses: validation
// 400, precondition 409, consistency 503 (retryable), dependency 502.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, game.ErrOwnerNotFound):
		status = http.StatusNotFound
	case errors.Is(err, game.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, game.ErrPrecondition):
		status = http.StatusConflict
	case errors.Is(err, game.ErrConsistency):
		status = http.StatusServiceUnavailable
	case errors.Is(err, game.ErrDependency):
		status = http.StatusBadGateway
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func ownerID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: bad owner id", game.ErrValidation)
	}
	return id, nil
}

// ownerSnapshot is the full presentation-layer view of one owner.
type ownerSnapshot struct {
	Owner      *game.Owner               `json:"owner"`
	Structures []game.StructureHealth    `json:"structures"`
	Pending    []game.PendingUnitRelease `json:"pending_releases"`
	Vault      *game.VaultState          `json:"vault,omitempty"`
	Capacity   int64                     `json:"capacity,omitempty"`
}

func (s *Server) handleOwner(w http.ResponseWriter, r *http.Request) {
	id, err := ownerID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	// Page views catch up first so the snapshot is current.
	if _, err := s.Accrual.CatchUp(id); err != nil {
		writeError(w, err)
		return
	}

	conn := s.DB.Conn()
	o, err := persistence.OwnerByID(conn, id)
	if err != nil {
		writeError(w, err)
		return
	}
	structures, err := persistence.StructureHealthAll(conn, id)
	if err != nil {
		writeError(w, err)
		return
	}
	pending, err := persistence.PendingReleasesByOwner(conn, id)
	if err != nil {
		writeError(w, err)
		return
	}

	snap := ownerSnapshot{Owner: o, Structures: structures, Pending: pending}
	if vs, err := persistence.VaultByOwner(conn, id); err == nil {
		snap.Vault = vs
		snap.Capacity = s.Vaults.Capacity(vs.ActiveUnits)
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleCatchUp(w http.ResponseWriter, r *http.Request) {
	id, err := ownerID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	res, err := s.Accrual.CatchUp(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleIncome(w http.ResponseWriter, r *http.Request) {
	id, err := ownerID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	bd, err := s.Accrual.IncomeSummary(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, bd)
}

func (s *Server) handleVaultPurchase(w http.ResponseWriter, r *http.Request) {
	id, err := ownerID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	vs, err := s.Vaults.Purchase(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"vault":    vs,
		"capacity": s.Vaults.Capacity(vs.ActiveUnits),
	})
}

type missionRequest struct {
	InitiatorID int64            `json:"initiator_id"`
	TargetID    int64            `json:"target_id"`
	Turns       int              `json:"turns"`
	Mission     game.MissionType `json:"mission"`
	TargetUnit  game.UnitType    `json:"target_unit,omitempty"`
}

func (s *Server) handleMission(w http.ResponseWriter, r *http.Request) {
	var req missionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, fmt.Errorf("%w: bad mission body", game.ErrValidation))
		return
	}
	out, err := s.Missions.Resolve(req.InitiatorID, req.TargetID, req.Turns, req.Mission,
		mission.Params{TargetUnit: req.TargetUnit})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	conn := s.DB.Conn()
	var owners int
	var credits int64
	if err := conn.Get(&owners, `SELECT COUNT(*) FROM owners`); err != nil {
		writeError(w, fmt.Errorf("%w: count owners: %v", game.ErrDependency, err))
		return
	}
	if err := conn.Get(&credits, `SELECT COALESCE(SUM(credits + banked), 0) FROM owners`); err != nil {
		writeError(w, fmt.Errorf("%w: sum credits: %v", game.ErrDependency, err))
		return
	}

	recent, err := persistence.RecentEncounters(conn, 10)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"owners":            owners,
		"total_credits":     credits,
		"total_credits_str": humanize.Comma(credits),
		"recent_encounters": recent,
	})
}
