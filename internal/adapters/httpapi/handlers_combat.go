package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/sectorwars/gameserver/internal/application/common"
	"github.com/sectorwars/gameserver/internal/application/drones"
	"github.com/sectorwars/gameserver/internal/domain/combat"
	"github.com/sectorwars/gameserver/internal/domain/drone"
	"github.com/sectorwars/gameserver/internal/domain/shared"
)

func (s *Server) handleEngage(w http.ResponseWriter, r *http.Request) {
	actor, err := common.RequireActor(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	var req struct {
		TargetShipID string `json:"target_ship_id" validate:"required"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	c, err := s.engagement.Engage(r.Context(), actor, shared.ShipID(req.TargetShipID))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusCreated, viewCombat(c))
}

func (s *Server) handleCombatStatus(w http.ResponseWriter, r *http.Request) {
	actor, err := common.RequireActor(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	c, err := s.engagement.Status(r.Context(), actor, shared.CombatID(mux.Vars(r)["id"]))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, viewCombat(c))
}

func (s *Server) handleCombatHistory(w http.ResponseWriter, r *http.Request) {
	actor, err := common.RequireActor(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	history, err := s.engagement.History(r.Context(), actor, queryInt(r, "limit", 25))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, viewCombats(history))
}

func (s *Server) handleCombatCommand(w http.ResponseWriter, r *http.Request) {
	actor, err := common.RequireActor(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	var cmd combat.Command
	if err := decodeJSON(r, &cmd); err != nil {
		respondError(w, r, err)
		return
	}
	c, err := s.engagement.SubmitCommand(r.Context(), actor, shared.CombatID(mux.Vars(r)["id"]), cmd)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, viewCombat(c))
}

func (s *Server) handleRetreat(w http.ResponseWriter, r *http.Request) {
	actor, err := common.RequireActor(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	c, err := s.engagement.Retreat(r.Context(), actor, shared.CombatID(mux.Vars(r)["id"]))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, viewCombat(c))
}

func (s *Server) handleDeployDrones(w http.ResponseWriter, r *http.Request) {
	actor, err := common.RequireActor(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	var in drones.DeployInput
	if err := decodeJSON(r, &in); err != nil {
		respondError(w, r, err)
		return
	}
	dep, err := s.drones.Deploy(r.Context(), actor, in)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusCreated, viewDeployment(dep))
}

func (s *Server) handleRecallDrones(w http.ResponseWriter, r *http.Request) {
	actor, err := common.RequireActor(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	var req struct {
		Count int `json:"count" validate:"min=0"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	dep, err := s.drones.Recall(r.Context(), actor, shared.DroneDeploymentID(mux.Vars(r)["id"]), req.Count)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, viewDeployment(dep))
}

func (s *Server) handleReconfigureDrones(w http.ResponseWriter, r *http.Request) {
	actor, err := common.RequireActor(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	var behavior drone.Behavior
	if err := decodeJSON(r, &behavior); err != nil {
		respondError(w, r, err)
		return
	}
	dep, err := s.drones.Reconfigure(r.Context(), actor, shared.DroneDeploymentID(mux.Vars(r)["id"]), behavior)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, viewDeployment(dep))
}

func (s *Server) handleListDrones(w http.ResponseWriter, r *http.Request) {
	actor, err := common.RequireActor(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	var (
		deployments []*drone.Deployment
	)
	if r.URL.Query().Get("scope") == "sector" {
		deployments, err = s.drones.SectorStacks(r.Context(), actor)
	} else {
		deployments, err = s.drones.List(r.Context(), actor)
	}
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, viewDeployments(deployments))
}

func (s *Server) handleBuyDrones(w http.ResponseWriter, r *http.Request) {
	actor, err := common.RequireActor(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	var req struct {
		Count int `json:"count" validate:"required,min=1"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	persona, err := s.drones.Buy(r.Context(), actor, req.Count)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, viewPlayer(persona))
}
