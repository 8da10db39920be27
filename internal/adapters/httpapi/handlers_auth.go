package httpapi

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/sectorwars/gameserver/internal/application/auth"
	"github.com/sectorwars/gameserver/internal/application/common"
)

type registerRequest struct {
	Handle      string `json:"handle" validate:"required,min=3,max=32"`
	Email       string `json:"email" validate:"required,email"`
	Credential  string `json:"credential" validate:"required,min=12"`
	PlayerName  string `json:"player_name" validate:"required,min=3,max=32"`
	Fingerprint string `json:"fingerprint,omitempty"`
}

type loginRequest struct {
	Handle      string `json:"handle" validate:"required"`
	Credential  string `json:"credential" validate:"required"`
	Fingerprint string `json:"fingerprint,omitempty"`
}

type mfaVerifyRequest struct {
	ChallengeToken string `json:"challenge_token" validate:"required"`
	Code           string `json:"code" validate:"required"`
	Fingerprint    string `json:"fingerprint,omitempty"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
	Fingerprint  string `json:"fingerprint,omitempty"`
}

type logoutRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

type loginView struct {
	AccessToken     string      `json:"access_token,omitempty"`
	AccessExpiresAt time.Time   `json:"access_expires_at,omitempty"`
	RefreshToken    string      `json:"refresh_token,omitempty"`
	SessionID       string      `json:"session_id,omitempty"`
	Challenge       string      `json:"challenge_token,omitempty"`
	Account         *accountView `json:"account,omitempty"`
	Player          *playerView  `json:"player,omitempty"`
}

func viewLogin(res *auth.LoginResult) loginView {
	v := loginView{Challenge: res.Challenge}
	if res.Tokens != nil {
		v.AccessToken = res.Tokens.AccessToken
		v.AccessExpiresAt = res.Tokens.AccessExpiresAt
		v.RefreshToken = res.Tokens.RefreshToken
		v.SessionID = res.Tokens.SessionID
	}
	if res.Account != nil {
		av := viewAccount(res.Account)
		v.Account = &av
	}
	if res.Player != nil {
		pv := viewPlayer(res.Player)
		v.Player = &pv
	}
	return v
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	res, err := s.auth.Register(r.Context(), auth.RegisterInput{
		Handle:      sanitize(req.Handle),
		Email:       sanitize(req.Email),
		Credential:  req.Credential,
		PlayerName:  sanitize(req.PlayerName),
		Fingerprint: req.Fingerprint,
		IP:          clientIP(r),
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusCreated, viewLogin(res))
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	res, err := s.auth.Authenticate(r.Context(), req.Handle, req.Credential, req.Fingerprint, clientIP(r))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, viewLogin(res))
}

func (s *Server) handleMFAVerify(w http.ResponseWriter, r *http.Request) {
	var req mfaVerifyRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	res, err := s.auth.CompleteChallenge(r.Context(), req.ChallengeToken, req.Code, req.Fingerprint, clientIP(r))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, viewLogin(res))
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	pair, err := s.auth.Refresh(r.Context(), req.RefreshToken, req.Fingerprint, clientIP(r))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, loginView{
		AccessToken:     pair.AccessToken,
		AccessExpiresAt: pair.AccessExpiresAt,
		RefreshToken:    pair.RefreshToken,
		SessionID:       pair.SessionID,
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	var req logoutRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	if err := s.auth.Logout(r.Context(), req.RefreshToken, clientIP(r)); err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusNoContent, nil)
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	actor, err := common.RequireActor(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	sessions, err := s.auth.ListSessions(r.Context(), actor.AccountID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, viewSessions(sessions))
}

func (s *Server) handleRevokeSession(w http.ResponseWriter, r *http.Request) {
	actor, err := common.RequireActor(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	if err := s.auth.RevokeSession(r.Context(), actor.AccountID, mux.Vars(r)["id"], clientIP(r)); err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusNoContent, nil)
}

func (s *Server) handleEnrollTOTP(w http.ResponseWriter, r *http.Request) {
	actor, err := common.RequireActor(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	enrollment, err := s.auth.EnrollTOTP(r.Context(), actor.AccountID, clientIP(r))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, map[string]any{
		"secret":       enrollment.Secret,
		"uri":          enrollment.URI,
		"backup_codes": enrollment.BackupCodes,
	})
}

func (s *Server) handleVerifyEnrollment(w http.ResponseWriter, r *http.Request) {
	actor, err := common.RequireActor(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	var req struct {
		Code string `json:"code" validate:"required"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	if err := s.auth.VerifyEnrollment(r.Context(), actor.AccountID, req.Code, clientIP(r)); err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, map[string]bool{"mfa_enabled": true})
}

func (s *Server) handleChangeCredential(w http.ResponseWriter, r *http.Request) {
	actor, err := common.RequireActor(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	var req struct {
		Current string `json:"current" validate:"required"`
		Next    string `json:"next" validate:"required,min=12"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	if err := s.auth.ChangeCredential(r.Context(), actor.AccountID, req.Current, req.Next, clientIP(r)); err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusNoContent, nil)
}

func (s *Server) handleOAuthURL(w http.ResponseWriter, r *http.Request) {
	url, err := s.auth.OAuthURL(mux.Vars(r)["provider"], r.URL.Query().Get("state"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, map[string]string{"url": url})
}

func (s *Server) handleOAuthCallback(w http.ResponseWriter, r *http.Request) {
	res, err := s.auth.OAuthCallback(r.Context(), mux.Vars(r)["provider"],
		r.URL.Query().Get("code"), r.URL.Query().Get("fingerprint"), clientIP(r))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, viewLogin(res))
}
