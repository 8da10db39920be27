package httpapi

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/sectorwars/gameserver/internal/application/common"
	"github.com/sectorwars/gameserver/internal/application/teams"
	"github.com/sectorwars/gameserver/internal/domain/shared"
	"github.com/sectorwars/gameserver/internal/domain/team"
)

func (s *Server) handleCreateTeam(w http.ResponseWriter, r *http.Request) {
	actor, err := common.RequireActor(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	var in teams.CreateInput
	if err := decodeJSON(r, &in); err != nil {
		respondError(w, r, err)
		return
	}
	in.Name = sanitize(in.Name)
	in.Tag = sanitize(in.Tag)
	t, err := s.teams.Create(r.Context(), actor, in)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusCreated, viewTeam(t))
}

func (s *Server) handleListTeams(w http.ResponseWriter, r *http.Request) {
	actor, err := common.RequireActor(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	page, perPage := pageParams(r)
	list, total, err := s.teams.List(r.Context(), actor, page, perPage)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondList(w, viewTeams(list), total, page, perPage)
}

func (s *Server) handleTeamDetail(w http.ResponseWriter, r *http.Request) {
	actor, err := common.RequireActor(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	t, members, err := s.teams.Detail(r.Context(), actor, shared.TeamID(mux.Vars(r)["id"]))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, map[string]any{
		"team":    viewTeam(t),
		"members": viewMembers(members),
	})
}

func (s *Server) handleInvite(w http.ResponseWriter, r *http.Request) {
	actor, err := common.RequireActor(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	var req struct {
		PlayerID string `json:"player_id" validate:"required"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	inv, err := s.teams.Invite(r.Context(), actor, shared.PlayerID(req.PlayerID))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusCreated, map[string]any{
		"team_id":    inv.TeamID,
		"player_id":  inv.PlayerID,
		"invited_by": inv.InvitedBy,
		"expires_at": inv.ExpiresAt,
	})
}

func (s *Server) handleAcceptInvite(w http.ResponseWriter, r *http.Request) {
	actor, err := common.RequireActor(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	t, err := s.teams.Accept(r.Context(), actor, shared.TeamID(mux.Vars(r)["id"]))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, viewTeam(t))
}

func (s *Server) handleApply(w http.ResponseWriter, r *http.Request) {
	actor, err := common.RequireActor(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	t, err := s.teams.Apply(r.Context(), actor, shared.TeamID(mux.Vars(r)["id"]))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, viewTeam(t))
}

func (s *Server) handleApproveApplication(w http.ResponseWriter, r *http.Request) {
	actor, err := common.RequireActor(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	t, err := s.teams.Approve(r.Context(), actor, shared.PlayerID(mux.Vars(r)["playerID"]))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, viewTeam(t))
}

func (s *Server) handleRejectApplication(w http.ResponseWriter, r *http.Request) {
	actor, err := common.RequireActor(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	if err := s.teams.Reject(r.Context(), actor, shared.PlayerID(mux.Vars(r)["playerID"])); err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusNoContent, nil)
}

func (s *Server) handleAssignRole(w http.ResponseWriter, r *http.Request) {
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
	target := shared.PlayerID(mux.Vars(r)["playerID"])
	if err := s.teams.AssignRole(r.Context(), actor, target, team.Role(req.Role)); err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusNoContent, nil)
}

func (s *Server) handleKick(w http.ResponseWriter, r *http.Request) {
	actor, err := common.RequireActor(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	if err := s.teams.Kick(r.Context(), actor, shared.PlayerID(mux.Vars(r)["playerID"])); err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusNoContent, nil)
}

func (s *Server) handleLeaveTeam(w http.ResponseWriter, r *http.Request) {
	actor, err := common.RequireActor(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	if err := s.teams.Leave(r.Context(), actor); err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusNoContent, nil)
}

func (s *Server) handleDisbandTeam(w http.ResponseWriter, r *http.Request) {
	actor, err := common.RequireActor(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	if err := s.teams.Disband(r.Context(), actor); err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusNoContent, nil)
}

func (s *Server) handleTreasuryDeposit(w http.ResponseWriter, r *http.Request) {
	s.handleTreasury(w, r, s.teams.Deposit)
}

func (s *Server) handleTreasuryWithdraw(w http.ResponseWriter, r *http.Request) {
	s.handleTreasury(w, r, s.teams.Withdraw)
}

func (s *Server) handleTreasury(w http.ResponseWriter, r *http.Request,
	move func(ctx context.Context, actor common.Actor, amount shared.Credits) (*team.Team, error)) {
	actor, err := common.RequireActor(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	var req struct {
		Amount int64 `json:"amount" validate:"required,min=1"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	t, err := move(r.Context(), actor, shared.Credits(req.Amount))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, viewTeam(t))
}
