package httpapi

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/sectorwars/gameserver/internal/application/common"
	"github.com/sectorwars/gameserver/internal/application/federation"
	"github.com/sectorwars/gameserver/internal/domain/shared"
	"github.com/sectorwars/gameserver/internal/domain/travel"
	"github.com/sectorwars/gameserver/internal/domain/treaty"
)

func (s *Server) handleListRegions(w http.ResponseWriter, r *http.Request) {
	regions, err := s.federation.ListRegions(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, viewRegions(regions))
}

func (s *Server) handleGetRegion(w http.ResponseWriter, r *http.Request) {
	reg, err := s.federation.GetRegion(r.Context(), mux.Vars(r)["name"])
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, viewRegion(reg))
}

func (s *Server) handleRegionStatistics(w http.ResponseWriter, r *http.Request) {
	stats, err := s.federation.RegionStatistics(r.Context(), mux.Vars(r)["name"])
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, stats)
}

func (s *Server) handleInitiateTravel(w http.ResponseWriter, r *http.Request) {
	actor, err := common.RequireActor(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	var req struct {
		TravelID      string   `json:"travel_id,omitempty"`
		Destination   string   `json:"destination" validate:"required"`
		Method        string   `json:"method" validate:"required,oneof=platform-gate player-gate warp-jumper"`
		ShipIDs       []string `json:"ship_ids,omitempty"`
		EscrowCredits int64    `json:"escrow_credits" validate:"min=0"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	in := federation.TravelInput{
		TravelID:      shared.TravelID(req.TravelID),
		Destination:   req.Destination,
		Method:        travel.Method(req.Method),
		EscrowCredits: shared.Credits(req.EscrowCredits),
	}
	for _, id := range req.ShipIDs {
		in.ShipIDs = append(in.ShipIDs, shared.ShipID(id))
	}
	t, err := s.federation.InitiateTravel(r.Context(), actor, in)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusCreated, viewTravel(t))
}

func (s *Server) handleGetTravel(w http.ResponseWriter, r *http.Request) {
	actor, err := common.RequireActor(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	t, err := s.federation.GetTravel(r.Context(), actor, shared.TravelID(mux.Vars(r)["id"]))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, viewTravel(t))
}

func (s *Server) handleTravelHistory(w http.ResponseWriter, r *http.Request) {
	actor, err := common.RequireActor(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	history, err := s.federation.TravelHistory(r.Context(), actor.PlayerID, queryInt(r, "limit", 25))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, viewTravels(history))
}

func (s *Server) handleCancelTravel(w http.ResponseWriter, r *http.Request) {
	actor, err := common.RequireActor(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	t, err := s.federation.CancelTravel(r.Context(), actor, shared.TravelID(mux.Vars(r)["id"]))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, viewTravel(t))
}

func (s *Server) handleProposeTreaty(w http.ResponseWriter, r *http.Request) {
	actor, err := common.RequireActor(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	var req struct {
		PartnerRegion string       `json:"partner_region" validate:"required"`
		Type          string       `json:"type" validate:"required,oneof=trade-agreement non-aggression mutual-defense open-borders"`
		Terms         treaty.Terms `json:"terms"`
		ExpiresAt     *time.Time   `json:"expires_at,omitempty"`
		PolicyID      string       `json:"policy_id,omitempty"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	t, err := s.federation.ProposeTreaty(r.Context(), actor, federation.TreatyProposal{
		PartnerRegion: req.PartnerRegion,
		Type:          treaty.Type(req.Type),
		Terms:         req.Terms,
		ExpiresAt:     req.ExpiresAt,
		PolicyID:      shared.PolicyID(req.PolicyID),
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusCreated, viewTreaty(t))
}

func (s *Server) handleListTreaties(w http.ResponseWriter, r *http.Request) {
	treaties, err := s.federation.ListTreaties(r.Context(), r.URL.Query().Get("region"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, viewTreaties(treaties))
}

func (s *Server) handleCountersignTreaty(w http.ResponseWriter, r *http.Request) {
	actor, err := common.RequireActor(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	var req struct {
		PolicyID string `json:"policy_id,omitempty"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	t, err := s.federation.CountersignTreaty(r.Context(), actor, shared.TreatyID(mux.Vars(r)["id"]), shared.PolicyID(req.PolicyID))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, viewTreaty(t))
}

func (s *Server) handleDissolveTreaty(w http.ResponseWriter, r *http.Request) {
	actor, err := common.RequireActor(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	policyID := shared.PolicyID(r.URL.Query().Get("policy_id"))
	t, err := s.federation.TerminateTreaty(r.Context(), actor, shared.TreatyID(mux.Vars(r)["id"]), policyID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, viewTreaty(t))
}
