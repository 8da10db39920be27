package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/sectorwars/gameserver/internal/application/common"
	"github.com/sectorwars/gameserver/internal/domain/audit"
	"github.com/sectorwars/gameserver/internal/domain/region"
	"github.com/sectorwars/gameserver/internal/domain/shared"
)

func (s *Server) handleAdminUsers(w http.ResponseWriter, r *http.Request) {
	actor, err := common.RequireActor(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	page, perPage := pageParams(r)
	accounts, total, err := s.admin.Users(r.Context(), actor, page, perPage)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondList(w, viewAccounts(accounts), total, page, perPage)
}

func (s *Server) handleAdminEconomy(w http.ResponseWriter, r *http.Request) {
	actor, err := common.RequireActor(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	overview, err := s.admin.Economy(r.Context(), actor, r.URL.Query().Get("region"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, overview)
}

func (s *Server) handleAdminCombat(w http.ResponseWriter, r *http.Request) {
	actor, err := common.RequireActor(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	overview, err := s.admin.Combat(r.Context(), actor, r.URL.Query().Get("region"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, overview)
}

func (s *Server) handleAdminFleet(w http.ResponseWriter, r *http.Request) {
	actor, err := common.RequireActor(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	overview, err := s.admin.Fleet(r.Context(), actor, r.URL.Query().Get("region"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, overview)
}

func (s *Server) handleAdminColonization(w http.ResponseWriter, r *http.Request) {
	actor, err := common.RequireActor(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	overview, err := s.admin.Colonization(r.Context(), actor, r.URL.Query().Get("region"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, overview)
}

func (s *Server) handleAdminPresence(w http.ResponseWriter, r *http.Request) {
	actor, err := common.RequireActor(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	report, err := s.admin.Presence(r.Context(), actor)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, report)
}

func (s *Server) handleAdminAudit(w http.ResponseWriter, r *http.Request) {
	actor, err := common.RequireActor(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	page, perPage := pageParams(r)
	category := audit.Category(r.URL.Query().Get("category"))
	entries, total, err := s.admin.AuditTrail(r.Context(), actor, category, page, perPage)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondList(w, viewAuditEntries(entries), total, page, perPage)
}

type auditEntryView struct {
	ID         string           `json:"id"`
	Category   audit.Category   `json:"category"`
	Action     string           `json:"action"`
	Actor      shared.AccountID `json:"actor_account_id,omitempty"`
	ActorIP    string           `json:"actor_ip,omitempty"`
	Subject    string           `json:"subject,omitempty"`
	RegionName string           `json:"region_name,omitempty"`
	RequestID  string           `json:"request_id,omitempty"`
	Detail     map[string]any   `json:"detail,omitempty"`
	OccurredAt time.Time        `json:"occurred_at"`
}

func viewAuditEntries(in []*audit.Entry) []auditEntryView {
	out := make([]auditEntryView, 0, len(in))
	for _, e := range in {
		out = append(out, auditEntryView{
			ID:         e.ID,
			Category:   e.Category,
			Action:     e.Action,
			Actor:      e.ActorAccountID,
			ActorIP:    e.ActorIP,
			Subject:    e.Subject,
			RegionName: e.RegionName,
			RequestID:  e.RequestID,
			Detail:     e.Detail,
			OccurredAt: e.OccurredAt,
		})
	}
	return out
}

func (s *Server) handleSuspendAccount(w http.ResponseWriter, r *http.Request) {
	actor, err := common.RequireActor(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	var req struct {
		Reason string `json:"reason" validate:"required,max=500"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	acct, err := s.admin.SuspendAccount(r.Context(), actor, shared.AccountID(mux.Vars(r)["id"]), sanitize(req.Reason))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, viewAccount(acct))
}

func (s *Server) handleReinstateAccount(w http.ResponseWriter, r *http.Request) {
	actor, err := common.RequireActor(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	acct, err := s.admin.ReinstateAccount(r.Context(), actor, shared.AccountID(mux.Vars(r)["id"]))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, viewAccount(acct))
}

func (s *Server) handleMutePlayer(w http.ResponseWriter, r *http.Request) {
	actor, err := common.RequireActor(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	var req struct {
		Hours  int    `json:"hours" validate:"required,min=1"`
		Reason string `json:"reason" validate:"max=500"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	duration := time.Duration(req.Hours) * time.Hour
	persona, err := s.admin.MutePlayer(r.Context(), actor, shared.PlayerID(mux.Vars(r)["id"]), duration, sanitize(req.Reason))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, viewPlayer(persona))
}

func (s *Server) handleUnmutePlayer(w http.ResponseWriter, r *http.Request) {
	actor, err := common.RequireActor(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	persona, err := s.admin.UnmutePlayer(r.Context(), actor, shared.PlayerID(mux.Vars(r)["id"]))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, viewPlayer(persona))
}

func (s *Server) handleCreateRegion(w http.ResponseWriter, r *http.Request) {
	actor, err := common.RequireActor(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	var spec region.Spec
	if err := decodeJSON(r, &spec); err != nil {
		respondError(w, r, err)
		return
	}
	reg, err := s.federation.CreateRegion(r.Context(), spec, actor.AccountID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusCreated, viewRegion(reg))
}

func (s *Server) handleSuspendRegion(w http.ResponseWriter, r *http.Request) {
	s.regionLifecycle(w, r, s.federation.Suspend)
}

func (s *Server) handleResumeRegion(w http.ResponseWriter, r *http.Request) {
	s.regionLifecycle(w, r, s.federation.Resume)
}

func (s *Server) handleTerminateRegion(w http.ResponseWriter, r *http.Request) {
	s.regionLifecycle(w, r, s.federation.BeginTermination)
}

func (s *Server) regionLifecycle(w http.ResponseWriter, r *http.Request,
	op func(ctx context.Context, name string, actor common.Actor) (*region.Region, error)) {
	actor, err := common.RequireActor(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	reg, err := op(r.Context(), mux.Vars(r)["name"], actor)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, viewRegion(reg))
}

func (s *Server) handleSetGovernance(w http.ResponseWriter, r *http.Request) {
	actor, err := common.RequireActor(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	var req struct {
		Governance      string  `json:"governance" validate:"required"`
		TaxRate         float64 `json:"tax_rate" validate:"min=0,max=1"`
		VotingThreshold float64 `json:"voting_threshold" validate:"min=0,max=1"`
		CadenceDays     int     `json:"election_cadence_days" validate:"min=0"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	reg, err := s.federation.SetGovernance(r.Context(), mux.Vars(r)["name"], actor,
		region.GovernanceType(req.Governance), req.TaxRate, req.VotingThreshold, req.CadenceDays)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, viewRegion(reg))
}

func (s *Server) handleAppointGovernor(w http.ResponseWriter, r *http.Request) {
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
	reg, err := s.federation.AppointGovernor(r.Context(), mux.Vars(r)["name"], actor, shared.PlayerID(req.PlayerID))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, viewRegion(reg))
}

func (s *Server) handleEntitlements(w http.ResponseWriter, r *http.Request) {
	actor, err := common.RequireActor(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	subs, err := s.provisioner.Entitlements(r.Context(), actor)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, viewSubscriptions(subs))
}
