package httpapi

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/sectorwars/gameserver/internal/application/comms"
	"github.com/sectorwars/gameserver/internal/application/common"
	"github.com/sectorwars/gameserver/internal/application/security"
	"github.com/sectorwars/gameserver/internal/domain/faction"
	"github.com/sectorwars/gameserver/internal/domain/shared"
)

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	actor, err := common.RequireActor(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	var in comms.SendInput
	if err := decodeJSON(r, &in); err != nil {
		respondError(w, r, err)
		return
	}
	in.Subject = sanitize(in.Subject)
	in.Body = sanitize(in.Body)
	msg, err := s.comms.Send(r.Context(), actor, in)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusCreated, viewMessage(msg))
}

func (s *Server) handleInbox(w http.ResponseWriter, r *http.Request) {
	actor, err := common.RequireActor(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	page, perPage := pageParams(r)
	messages, total, err := s.comms.Inbox(r.Context(), actor, page, perPage)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondList(w, viewMessages(messages), total, page, perPage)
}

func (s *Server) handleUnread(w http.ResponseWriter, r *http.Request) {
	actor, err := common.RequireActor(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	count, err := s.comms.Unread(r.Context(), actor)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, map[string]int64{"unread": count})
}

func (s *Server) handleThread(w http.ResponseWriter, r *http.Request) {
	actor, err := common.RequireActor(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	thread, err := s.comms.Thread(r.Context(), actor, shared.MessageID(mux.Vars(r)["id"]))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, viewMessages(thread))
}

func (s *Server) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	s.mutateMessage(w, r, s.comms.MarkRead)
}

func (s *Server) handleConfirmMessage(w http.ResponseWriter, r *http.Request) {
	s.mutateMessage(w, r, s.comms.Confirm)
}

func (s *Server) handleDeleteMessage(w http.ResponseWriter, r *http.Request) {
	s.mutateMessage(w, r, s.comms.Delete)
}

func (s *Server) mutateMessage(w http.ResponseWriter, r *http.Request,
	op func(ctx context.Context, actor common.Actor, id shared.MessageID) error) {
	actor, err := common.RequireActor(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	if err := op(r.Context(), actor, shared.MessageID(mux.Vars(r)["id"])); err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusNoContent, nil)
}

func (s *Server) handleMissionBoard(w http.ResponseWriter, r *http.Request) {
	actor, err := common.RequireActor(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	board, err := s.missions.Board(r.Context(), actor, faction.ID(r.URL.Query().Get("faction")))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, viewMissions(board))
}

func (s *Server) handleMyMissions(w http.ResponseWriter, r *http.Request) {
	actor, err := common.RequireActor(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	mine, err := s.missions.Mine(r.Context(), actor)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, viewMissions(mine))
}

func (s *Server) handleStanding(w http.ResponseWriter, r *http.Request) {
	actor, err := common.RequireActor(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	standing, err := s.missions.Standing(r.Context(), actor)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, viewReputations(standing))
}

func (s *Server) handleAcceptMission(w http.ResponseWriter, r *http.Request) {
	actor, err := common.RequireActor(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	forTeam := r.URL.Query().Get("for_team") == "true"
	m, err := s.missions.Accept(r.Context(), actor, mux.Vars(r)["id"], forTeam)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, viewMission(m))
}

func (s *Server) handleCompleteMission(w http.ResponseWriter, r *http.Request) {
	actor, err := common.RequireActor(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	m, err := s.missions.Complete(r.Context(), actor, mux.Vars(r)["id"])
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, viewMission(m))
}

func (s *Server) handleAbandonMission(w http.ResponseWriter, r *http.Request) {
	actor, err := common.RequireActor(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	m, err := s.missions.Abandon(r.Context(), actor, mux.Vars(r)["id"])
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, viewMission(m))
}

func (s *Server) handlePostBounty(w http.ResponseWriter, r *http.Request) {
	actor, err := common.RequireActor(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	var in security.PostInput
	if err := decodeJSON(r, &in); err != nil {
		respondError(w, r, err)
		return
	}
	in.Reason = sanitize(in.Reason)
	b, err := s.security.Post(r.Context(), actor, in)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusCreated, viewBounty(b))
}

func (s *Server) handleBountyBoard(w http.ResponseWriter, r *http.Request) {
	actor, err := common.RequireActor(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	board, err := s.security.Board(r.Context(), actor, queryInt(r, "limit", 50))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, viewBounties(board))
}

func (s *Server) handleBountiesOnPlayer(w http.ResponseWriter, r *http.Request) {
	actor, err := common.RequireActor(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	list, err := s.security.OnPlayer(r.Context(), actor, shared.PlayerID(mux.Vars(r)["id"]))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, viewBounties(list))
}

func (s *Server) handleCancelBounty(w http.ResponseWriter, r *http.Request) {
	actor, err := common.RequireActor(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	b, err := s.security.Cancel(r.Context(), actor, mux.Vars(r)["id"])
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, viewBounty(b))
}
