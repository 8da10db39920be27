// Package onboarding drives the first-login ship-claim dialogue: a new
// player picks one of three docked ships, bluffs through the guard's
// questions, and walks away with the claim, a battered fallback, or a
// security flag. The session row is the single source of truth; every
// input advances it in one guarded write.
package onboarding

import (
	"context"
	"errors"
	"strings"
	"unicode"

	"github.com/rs/zerolog/log"

	"github.com/sectorwars/gameserver/internal/application/common"
	"github.com/sectorwars/gameserver/internal/domain/audit"
	"github.com/sectorwars/gameserver/internal/domain/firstlogin"
	"github.com/sectorwars/gameserver/internal/domain/player"
	"github.com/sectorwars/gameserver/internal/domain/region"
	"github.com/sectorwars/gameserver/internal/domain/shared"
	"github.com/sectorwars/gameserver/internal/domain/ship"
)

// Advisor phrases guard questions and scores claim answers. Implementations
// may call external model providers; answers must score in [0, 1]. A failed
// call degrades to the deterministic templates and heuristic.
type Advisor interface {
	PhraseQuestion(ctx context.Context, claimed ship.HullClass, template string) (string, error)
	ScoreAnswer(ctx context.Context, question, answer string) (float64, error)
}

// HeuristicAdvisor is the zero-dependency guard: templates pass through
// unchanged and answers are rated on substance alone.
type HeuristicAdvisor struct{}

func (HeuristicAdvisor) PhraseQuestion(_ context.Context, _ ship.HullClass, template string) (string, error) {
	return template, nil
}

func (HeuristicAdvisor) ScoreAnswer(_ context.Context, _, answer string) (float64, error) {
	return HeuristicScore(answer), nil
}

// HeuristicScore rates an answer's plausibility deterministically: length
// earns credit, concrete detail (a number, a named someone) earns more, and
// hedging loses it.
func HeuristicScore(answer string) float64 {
	words := strings.Fields(strings.TrimSpace(answer))
	if len(words) == 0 {
		return 0
	}
	score := 0.25
	if len(words) >= 4 {
		score += 0.2
	}
	if len(words) >= 9 {
		score += 0.1
	}
	for _, w := range words {
		if strings.IndexFunc(w, unicode.IsDigit) >= 0 {
			score += 0.15
			break
		}
	}
	for _, w := range words[1:] {
		r := []rune(w)
		if len(r) > 1 && unicode.IsUpper(r[0]) {
			score += 0.15
			break
		}
	}
	lower := strings.ToLower(answer)
	for _, hedge := range []string{"maybe", "i guess", "not sure", "dunno", "um ", "uh "} {
		if strings.Contains(lower, hedge) {
			score -= 0.2
			break
		}
	}
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

// Service executes the onboarding use-cases.
type Service struct {
	regions region.Repository
	players player.Repository
	shards  common.ShardResolver
	advisor Advisor
	auditor audit.Recorder
	locales common.LocaleResolver
	clock   shared.Clock
}

// NewService wires the onboarding use-cases. A nil advisor falls back to the
// deterministic heuristic.
func NewService(
	regions region.Repository,
	players player.Repository,
	shards common.ShardResolver,
	advisor Advisor,
	auditor audit.Recorder,
	clock shared.Clock,
) *Service {
	if clock == nil {
		clock = shared.NewRealClock()
	}
	if advisor == nil {
		advisor = HeuristicAdvisor{}
	}
	return &Service{
		regions: regions,
		players: players,
		shards:  shards,
		advisor: advisor,
		auditor: auditor,
		locales: common.LocaleResolver{Regions: regions, Players: players, Shards: shards, Clock: clock},
		clock:   clock,
	}
}

// Start opens the dialogue, or resumes the player's unresolved session. An
// expired leftover resolves as abandoned and a fresh dialogue begins.
func (s *Service) Start(ctx context.Context, actor common.Actor) (*firstlogin.Session, error) {
	loc, err := s.locales.Resolve(ctx, actor, false)
	if err != nil {
		return nil, err
	}
	if loc.Persona.Onboarded {
		return nil, shared.NewConflictError("onboarding is already complete")
	}
	now := s.clock.Now()

	existing, err := loc.GW.FirstLogin.FindOpenByPlayer(ctx, loc.Persona.ID)
	switch {
	case err == nil:
		if !existing.Expired(now) {
			return existing, nil
		}
		if abandonErr := existing.Abandon(now); abandonErr == nil {
			if err := loc.GW.FirstLogin.Update(ctx, existing); err != nil {
				return nil, err
			}
		}
	case !errors.Is(err, shared.ErrNotFound):
		return nil, err
	}

	sess := firstlogin.NewSession(loc.Persona.ID, now.UnixNano(), now)
	if err := loc.GW.FirstLogin.Create(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// Session returns the player's unresolved dialogue.
func (s *Service) Session(ctx context.Context, actor common.Actor) (*firstlogin.Session, error) {
	loc, err := s.locales.Resolve(ctx, actor, false)
	if err != nil {
		return nil, err
	}
	return loc.GW.FirstLogin.FindOpenByPlayer(ctx, loc.Persona.ID)
}

// Claim picks one of the presented ships and returns the guard's first
// question.
func (s *Service) Claim(ctx context.Context, actor common.Actor, hull ship.HullClass) (*firstlogin.Session, string, error) {
	loc, err := s.locales.Resolve(ctx, actor, false)
	if err != nil {
		return nil, "", err
	}
	sess, err := loc.GW.FirstLogin.FindOpenByPlayer(ctx, loc.Persona.ID)
	if err != nil {
		return nil, "", err
	}
	now := s.clock.Now()

	question, err := sess.Claim(hull, now)
	if err != nil {
		s.persistLapse(ctx, loc, sess)
		return nil, "", err
	}
	question = s.phrase(ctx, sess, question)
	if err := loc.GW.FirstLogin.Update(ctx, sess); err != nil {
		return nil, "", err
	}
	return sess, question, nil
}

// Answer scores the player's reply and advances the dialogue. The returned
// question is empty once the guard is done; the session then carries the
// verdict and any granted ship is already waiting at the dock.
func (s *Service) Answer(ctx context.Context, actor common.Actor, text string) (*firstlogin.Session, string, error) {
	if strings.TrimSpace(text) == "" {
		return nil, "", shared.NewValidationError("answer", "must not be empty")
	}
	loc, err := s.locales.Resolve(ctx, actor, false)
	if err != nil {
		return nil, "", err
	}
	sess, err := loc.GW.FirstLogin.FindOpenByPlayer(ctx, loc.Persona.ID)
	if err != nil {
		return nil, "", err
	}
	if sess.State != firstlogin.StateQuestioning || len(sess.Exchanges) == 0 {
		return nil, "", shared.NewConflictError("session is not taking answers")
	}
	now := s.clock.Now()

	question := sess.Exchanges[len(sess.Exchanges)-1].Question
	score := s.score(ctx, question, text)
	next, err := sess.Answer(text, score, now)
	if err != nil {
		s.persistLapse(ctx, loc, sess)
		return nil, "", err
	}
	if next != "" {
		next = s.phrase(ctx, sess, next)
	}
	// The session row's version guard settles double-submitted answers.
	if err := loc.GW.FirstLogin.Update(ctx, sess); err != nil {
		return nil, "", err
	}
	if sess.Terminal() {
		s.settle(ctx, loc, sess)
	}
	return sess, next, nil
}

// Abandon walks away from the dock without a ship.
func (s *Service) Abandon(ctx context.Context, actor common.Actor) (*firstlogin.Session, error) {
	loc, err := s.locales.Resolve(ctx, actor, false)
	if err != nil {
		return nil, err
	}
	sess, err := loc.GW.FirstLogin.FindOpenByPlayer(ctx, loc.Persona.ID)
	if err != nil {
		return nil, err
	}
	if err := sess.Abandon(s.clock.Now()); err != nil {
		return nil, err
	}
	if err := loc.GW.FirstLogin.Update(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// settle grants the awarded ship and closes the player's onboarding. The
// session row already names the outcome, so a failed grant is logged for
// replay rather than unwinding the verdict.
func (s *Service) settle(ctx context.Context, loc *common.Locale, sess *firstlogin.Session) {
	hull, ok := sess.GrantedHull()
	if !ok {
		return
	}
	if sess.Flagged {
		s.recordAudit(ctx, "onboarding.flagged", audit.Fields{
			Subject:    sess.PlayerID.String(),
			RegionName: loc.Region.Name,
			Detail: map[string]any{
				"session_id": sess.ID,
				"hull":       string(hull),
			},
		})
	}
	now := s.clock.Now()

	sh, err := ship.New(sess.PlayerID, loc.Region.ID, loc.Persona.CurrentSector, hull, "", now)
	if err == nil {
		err = loc.GW.Ships.Create(ctx, sh)
	}
	if err != nil {
		log.Ctx(ctx).Error().Err(err).
			Str("session_id", sess.ID).
			Str("player_id", sess.PlayerID.String()).
			Str("hull", string(hull)).
			Msg("onboarding ship grant failed")
		return
	}

	loc.Persona.BoardShip(sh.ID, now)
	loc.Persona.Onboarded = true
	if err := s.players.Update(ctx, loc.Persona); err != nil {
		log.Ctx(ctx).Error().Err(err).
			Str("player_id", sess.PlayerID.String()).
			Msg("onboarding player update failed")
	}
}

// persistLapse stores a session that a rejected input resolved, such as an
// expiry discovered on touch.
func (s *Service) persistLapse(ctx context.Context, loc *common.Locale, sess *firstlogin.Session) {
	if !sess.Terminal() {
		return
	}
	if err := loc.GW.FirstLogin.Update(ctx, sess); err != nil {
		log.Ctx(ctx).Warn().Err(err).
			Str("session_id", sess.ID).
			Msg("lapsed onboarding session not persisted")
	}
}

// phrase asks the advisor to reword the open question, keeping the template
// when the call degrades.
func (s *Service) phrase(ctx context.Context, sess *firstlogin.Session, template string) string {
	phrased, err := s.advisor.PhraseQuestion(ctx, sess.ClaimedHull, template)
	if err != nil || strings.TrimSpace(phrased) == "" {
		if err != nil {
			log.Ctx(ctx).Warn().Err(err).Msg("guard phrasing degraded to template")
		}
		return template
	}
	if phrased == template {
		return template
	}
	if err := sess.RephraseCurrent(phrased, s.clock.Now()); err != nil {
		return template
	}
	return phrased
}

// score asks the advisor to judge the answer, degrading to the heuristic.
func (s *Service) score(ctx context.Context, question, answer string) float64 {
	score, err := s.advisor.ScoreAnswer(ctx, question, answer)
	if err != nil || score < 0 || score > 1 {
		if err != nil {
			log.Ctx(ctx).Warn().Err(err).Msg("answer scoring degraded to heuristic")
		}
		return HeuristicScore(answer)
	}
	return score
}

func (s *Service) recordAudit(ctx context.Context, action string, f audit.Fields) {
	if s.auditor == nil {
		return
	}
	f.RequestID = common.RequestIDFromContext(ctx)
	entry, err := audit.New(audit.CategorySecurity, action, f, s.clock.Now())
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Str("action", action).Msg("audit entry rejected")
		return
	}
	if err := s.auditor.Record(ctx, entry); err != nil {
		log.Ctx(ctx).Error().Err(err).Str("action", action).Msg("audit write failed")
	}
}
