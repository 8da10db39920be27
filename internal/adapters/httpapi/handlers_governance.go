package httpapi

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/sectorwars/gameserver/internal/application/common"
	"github.com/sectorwars/gameserver/internal/application/politics"
	"github.com/sectorwars/gameserver/internal/domain/governance"
	"github.com/sectorwars/gameserver/internal/domain/shared"
)

func (s *Server) handleProposePolicy(w http.ResponseWriter, r *http.Request) {
	actor, err := common.RequireActor(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	var req struct {
		Title             string `json:"title" validate:"required,min=3,max=120"`
		Proposal          string `json:"proposal" validate:"required"`
		VotingWindowHours int    `json:"voting_window_hours" validate:"min=0"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	p, err := s.politics.ProposePolicy(r.Context(), actor, politics.ProposeInput{
		Title:        sanitize(req.Title),
		Proposal:     sanitize(req.Proposal),
		VotingWindow: time.Duration(req.VotingWindowHours) * time.Hour,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusCreated, viewPolicy(p))
}

func (s *Server) handleListPolicies(w http.ResponseWriter, r *http.Request) {
	actor, err := common.RequireActor(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	status := governance.PolicyStatus(r.URL.Query().Get("status"))
	policies, err := s.politics.Policies(r.Context(), actor, status)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, viewPolicies(policies))
}

func (s *Server) handlePolicyDetail(w http.ResponseWriter, r *http.Request) {
	actor, err := common.RequireActor(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	p, err := s.politics.PolicyDetail(r.Context(), actor, shared.PolicyID(mux.Vars(r)["id"]))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, viewPolicy(p))
}

func (s *Server) handleCastPolicyVote(w http.ResponseWriter, r *http.Request) {
	actor, err := common.RequireActor(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	var req struct {
		Approve *bool `json:"approve" validate:"required"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	p, err := s.politics.CastPolicyVote(r.Context(), actor, shared.PolicyID(mux.Vars(r)["id"]), *req.Approve)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, viewPolicy(p))
}

func (s *Server) handleRetractPolicyVote(w http.ResponseWriter, r *http.Request) {
	actor, err := common.RequireActor(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	p, err := s.politics.RetractPolicyVote(r.Context(), actor, shared.PolicyID(mux.Vars(r)["id"]))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, viewPolicy(p))
}

func (s *Server) handleWithdrawPolicy(w http.ResponseWriter, r *http.Request) {
	actor, err := common.RequireActor(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	p, err := s.politics.WithdrawPolicy(r.Context(), actor, shared.PolicyID(mux.Vars(r)["id"]))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, viewPolicy(p))
}

func (s *Server) handleScheduleElection(w http.ResponseWriter, r *http.Request) {
	actor, err := common.RequireActor(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	var in politics.ScheduleInput
	if err := decodeJSON(r, &in); err != nil {
		respondError(w, r, err)
		return
	}
	e, err := s.politics.ScheduleElection(r.Context(), actor, in)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusCreated, viewElection(e))
}

func (s *Server) handleListElections(w http.ResponseWriter, r *http.Request) {
	actor, err := common.RequireActor(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	status := governance.ElectionStatus(r.URL.Query().Get("status"))
	elections, err := s.politics.Elections(r.Context(), actor, status)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, viewElections(elections))
}

func (s *Server) handleElectionDetail(w http.ResponseWriter, r *http.Request) {
	actor, err := common.RequireActor(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	e, err := s.politics.ElectionDetail(r.Context(), actor, shared.ElectionID(mux.Vars(r)["id"]))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, viewElection(e))
}

func (s *Server) handleCancelElection(w http.ResponseWriter, r *http.Request) {
	actor, err := common.RequireActor(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	if err := s.politics.CancelElection(r.Context(), actor, shared.ElectionID(mux.Vars(r)["id"])); err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusNoContent, nil)
}

func (s *Server) handleCastBallot(w http.ResponseWriter, r *http.Request) {
	actor, err := common.RequireActor(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	var req struct {
		Candidate string `json:"candidate" validate:"required"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	e, err := s.politics.CastBallot(r.Context(), actor, shared.ElectionID(mux.Vars(r)["id"]), shared.PlayerID(req.Candidate))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, viewElection(e))
}

func (s *Server) handleRetractBallot(w http.ResponseWriter, r *http.Request) {
	actor, err := common.RequireActor(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	e, err := s.politics.RetractBallot(r.Context(), actor, shared.ElectionID(mux.Vars(r)["id"]))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, viewElection(e))
}
