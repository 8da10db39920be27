package httpapi

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/sectorwars/gameserver/internal/application/common"
	"github.com/sectorwars/gameserver/internal/application/movement"
	"github.com/sectorwars/gameserver/internal/domain/shared"
)

func sectorIndex(r *http.Request) (int, error) {
	raw := mux.Vars(r)["index"]
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, shared.NewValidationError("index", "must be a non-negative sector index")
	}
	return n, nil
}

func (s *Server) handleListSectors(w http.ResponseWriter, r *http.Request) {
	actor, err := common.RequireActor(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	sectors, err := s.movement.ListSectors(r.Context(), actor)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, viewSectors(sectors))
}

func (s *Server) handleTunnels(w http.ResponseWriter, r *http.Request) {
	actor, err := common.RequireActor(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	index, err := sectorIndex(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	links, err := s.movement.Tunnels(r.Context(), actor, index)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, viewLinks(links))
}

func (s *Server) handleMove(w http.ResponseWriter, r *http.Request) {
	actor, err := common.RequireActor(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	var req struct {
		ToSector int `json:"to_sector" validate:"min=0"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	result, err := s.movement.Move(r.Context(), actor, req.ToSector)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, viewMoveResult(result))
}

func (s *Server) handlePlanRoute(w http.ResponseWriter, r *http.Request) {
	actor, err := common.RequireActor(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	var req struct {
		ToSector int `json:"to_sector" validate:"min=0"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	plan, err := s.movement.PlanRoute(r.Context(), actor, req.ToSector)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, plan)
}

func (s *Server) handleScanSector(w http.ResponseWriter, r *http.Request) {
	actor, err := common.RequireActor(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	index, err := sectorIndex(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	report, err := s.movement.ScanSector(r.Context(), actor, index)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, viewScanReport(report))
}

type moveResultView struct {
	Sector        sectorView `json:"sector"`
	FuelRemaining int        `json:"fuel_remaining"`
	TurnCost      int        `json:"turn_cost"`
	TollPaid      int64      `json:"toll_paid"`
}

func viewMoveResult(m *movement.MoveResult) moveResultView {
	return moveResultView{
		Sector:        viewSector(m.Sector),
		FuelRemaining: m.FuelRemaining,
		TurnCost:      m.TurnCost,
		TollPaid:      m.TollPaid,
	}
}

type scanReportView struct {
	Sector   sectorView              `json:"sector"`
	Links    []warpLinkView          `json:"links"`
	Station  *stationView            `json:"station,omitempty"`
	Planets  []planetView            `json:"planets"`
	Ships    []movement.ShipSighting `json:"ships"`
	Presence int                     `json:"presence"`
}

func viewScanReport(rep *movement.ScanReport) scanReportView {
	view := scanReportView{
		Sector:   viewSector(rep.Sector),
		Links:    viewLinks(rep.Links),
		Planets:  viewPlanets(rep.Planets),
		Ships:    rep.Ships,
		Presence: rep.Presence,
	}
	if rep.Station != nil {
		sv := viewStation(rep.Station)
		view.Station = &sv
	}
	return view
}
