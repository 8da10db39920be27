package httpapi

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/sectorwars/gameserver/internal/application/colony"
	"github.com/sectorwars/gameserver/internal/application/common"
	"github.com/sectorwars/gameserver/internal/domain/planet"
	"github.com/sectorwars/gameserver/internal/domain/shared"
)

func planetID(r *http.Request) shared.PlanetID {
	return shared.PlanetID(mux.Vars(r)["id"])
}

func (s *Server) handleHoldings(w http.ResponseWriter, r *http.Request) {
	actor, err := common.RequireActor(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	holdings, err := s.colony.Holdings(r.Context(), actor)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, viewPlanets(holdings))
}

func (s *Server) handlePlanetDetail(w http.ResponseWriter, r *http.Request) {
	actor, err := common.RequireActor(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	p, err := s.colony.Detail(r.Context(), actor, planetID(r))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, viewPlanet(p))
}

func (s *Server) handleColonize(w http.ResponseWriter, r *http.Request) {
	actor, err := common.RequireActor(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	var req struct {
		PlanetID string `json:"planet_id" validate:"required"`
		Units    int    `json:"units" validate:"required,min=1"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	p, err := s.colony.Colonize(r.Context(), actor, shared.PlanetID(req.PlanetID), req.Units)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusCreated, viewPlanet(p))
}

func (s *Server) handleLandColonists(w http.ResponseWriter, r *http.Request) {
	actor, err := common.RequireActor(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	var req struct {
		Units int `json:"units" validate:"required,min=1"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	p, err := s.colony.LandColonists(r.Context(), actor, planetID(r), req.Units)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, viewPlanet(p))
}

func (s *Server) handleAllocate(w http.ResponseWriter, r *http.Request) {
	actor, err := common.RequireActor(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	var req struct {
		Allocation map[planet.Role]float64 `json:"allocation" validate:"required"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	p, err := s.colony.Allocate(r.Context(), actor, planetID(r), req.Allocation)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, viewPlanet(p))
}

func (s *Server) handleConstruct(w http.ResponseWriter, r *http.Request) {
	actor, err := common.RequireActor(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	var req struct {
		Building string `json:"building" validate:"required"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	p, err := s.colony.Construct(r.Context(), actor, planetID(r), planet.Building(req.Building))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, viewPlanet(p))
}

func (s *Server) handleUpgradeCitadel(w http.ResponseWriter, r *http.Request) {
	s.handleDefenseUpgrade(w, r, s.colony.UpgradeCitadel)
}

func (s *Server) handleUpgradeShield(w http.ResponseWriter, r *http.Request) {
	s.handleDefenseUpgrade(w, r, s.colony.UpgradeShield)
}

func (s *Server) handleDefenseUpgrade(w http.ResponseWriter, r *http.Request,
	upgrade func(ctx context.Context, actor common.Actor, id shared.PlanetID) (*planet.Planet, error)) {
	actor, err := common.RequireActor(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	p, err := upgrade(r.Context(), actor, planetID(r))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, viewPlanet(p))
}

func (s *Server) handleStationDrones(w http.ResponseWriter, r *http.Request) {
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
	p, err := s.colony.StationDrones(r.Context(), actor, planetID(r), req.Count)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, viewPlanet(p))
}

func (s *Server) handleCollectStockpile(w http.ResponseWriter, r *http.Request) {
	actor, err := common.RequireActor(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	var req struct {
		Role string `json:"role" validate:"required"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	units, err := s.colony.CollectStockpile(r.Context(), actor, planetID(r), planet.Role(req.Role))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, map[string]int{"units": units})
}

func (s *Server) handleGenesis(w http.ResponseWriter, r *http.Request) {
	actor, err := common.RequireActor(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	var in colony.GenesisInput
	if err := decodeJSON(r, &in); err != nil {
		respondError(w, r, err)
		return
	}
	in.Name = sanitize(in.Name)
	p, err := s.colony.Genesis(r.Context(), actor, in)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusCreated, viewPlanet(p))
}

func (s *Server) handleBesiege(w http.ResponseWriter, r *http.Request) {
	actor, err := common.RequireActor(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	p, err := s.colony.Besiege(r.Context(), actor, planetID(r))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, viewPlanet(p))
}
