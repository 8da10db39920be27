package httpapi

import (
	"net/http"

	"github.com/sectorwars/gameserver/internal/application/common"
	"github.com/sectorwars/gameserver/internal/domain/ship"
)

func (s *Server) handlePlayerState(w http.ResponseWriter, r *http.Request) {
	actor, err := common.RequireActor(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	loc, err := s.locales.Resolve(r.Context(), actor, false)
	if err != nil {
		respondError(w, r, err)
		return
	}
	body := map[string]any{
		"player": viewPlayer(loc.Persona),
		"region": viewRegion(loc.Region),
	}
	if !loc.Persona.CurrentShipID.IsZero() {
		vessel, err := loc.GW.Ships.FindByID(r.Context(), loc.Region.ID, loc.Persona.CurrentShipID)
		if err == nil {
			body["ship"] = viewShip(vessel)
		}
	}
	respond(w, http.StatusOK, body)
}

func (s *Server) handlePlayerShips(w http.ResponseWriter, r *http.Request) {
	actor, err := common.RequireActor(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	loc, err := s.locales.Resolve(r.Context(), actor, false)
	if err != nil {
		respondError(w, r, err)
		return
	}
	ships, err := loc.GW.Ships.ListByOwner(r.Context(), loc.Region.ID, loc.Persona.ID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	views := make([]shipView, 0, len(ships))
	for _, sh := range ships {
		views = append(views, viewShip(sh))
	}
	respond(w, http.StatusOK, views)
}

func (s *Server) handleOnboardingStart(w http.ResponseWriter, r *http.Request) {
	actor, err := common.RequireActor(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	sess, err := s.onboarding.Start(r.Context(), actor)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusCreated, viewOnboarding(sess, ""))
}

func (s *Server) handleOnboardingSession(w http.ResponseWriter, r *http.Request) {
	actor, err := common.RequireActor(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	sess, err := s.onboarding.Session(r.Context(), actor)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, viewOnboarding(sess, ""))
}

func (s *Server) handleOnboardingClaim(w http.ResponseWriter, r *http.Request) {
	actor, err := common.RequireActor(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	var req struct {
		Hull string `json:"hull" validate:"required"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	sess, question, err := s.onboarding.Claim(r.Context(), actor, ship.HullClass(req.Hull))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, viewOnboarding(sess, question))
}

func (s *Server) handleOnboardingAnswer(w http.ResponseWriter, r *http.Request) {
	actor, err := common.RequireActor(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	var req struct {
		Answer string `json:"answer" validate:"required"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	sess, question, err := s.onboarding.Answer(r.Context(), actor, sanitize(req.Answer))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, viewOnboarding(sess, question))
}

func (s *Server) handleOnboardingAbandon(w http.ResponseWriter, r *http.Request) {
	actor, err := common.RequireActor(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	sess, err := s.onboarding.Abandon(r.Context(), actor)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, viewOnboarding(sess, ""))
}
