// Package firstlogin runs the onboarding dialogue for new players. The
// scene: the player stands on the shipyard deck claiming one of three
// docked ships while a guard questions the claim. Each answer is scored
// for plausibility; the accumulated score decides whether the player walks
// away with the claimed ship, a battered fallback, or a security flag.
//
// The dialogue is a persisted finite-state machine: every external input
// advances the state in one transaction, so a crashed process resumes the
// session instead of restarting it. A player holds at most one active
// session.
package firstlogin

import (
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/sectorwars/gameserver/internal/domain/shared"
	"github.com/sectorwars/gameserver/internal/domain/ship"
)

// State is the dialogue position. The four outcome states are terminal.
type State string

const (
	StatePresenting  State = "presenting"  // ship options shown, no claim yet
	StateQuestioning State = "questioning" // claim made, guard asking
	StateSuccess     State = "success"
	StateCaught      State = "caught"
	StateSuspicious  State = "suspicious"
	StateAbandoned   State = "abandoned"
)

// Dialogue tuning.
const (
	// MaxExchanges bounds the guard's questioning.
	MaxExchanges = 3
	// SessionTTL bounds the whole dialogue; an expired session resolves as
	// abandoned.
	SessionTTL = 30 * time.Minute
	// successThreshold and caughtThreshold split the mean plausibility
	// score into the three terminal outcomes.
	successThreshold = 0.6
	caughtThreshold  = 0.3
)

// FallbackHull is granted when the guard catches the bluff.
const FallbackHull = ship.HullScout

// claimablePool is the set of hulls the shipyard may present.
var claimablePool = []ship.HullClass{
	ship.HullScout, ship.HullCourier, ship.HullLightFreighter,
	ship.HullCargoHauler, ship.HullDefender,
}

// guardQuestions are the deterministic templates used when no advisory
// provider is configured. Selection is seeded per session.
var guardQuestions = []string{
	"This ship is registered to another name. What's your business with it?",
	"Dock records show this berth rented through next cycle. Explain.",
	"Your flight credentials look freshly printed. Who trained you?",
	"The manifest says this hull shipped in for repairs. Why are you boarding?",
	"I don't recognize you from this deck. Which crew are you with?",
	"That access badge is for cargo handlers. Why are you at the pilot hatch?",
}

// Exchange is one guard question and the player's scored answer.
type Exchange struct {
	Question   string     `json:"question"`
	Answer     string     `json:"answer"`
	Score      float64    `json:"score"`
	AskedAt    time.Time  `json:"asked_at"`
	AnsweredAt *time.Time `json:"answered_at,omitempty"`
}

// Session is the persisted dialogue state for one player.
type Session struct {
	ID           string
	PlayerID     shared.PlayerID
	State        State
	Seed         int64
	OfferedHulls []ship.HullClass
	ClaimedHull  ship.HullClass
	Exchanges    []Exchange
	// Flagged marks a suspicious outcome for the security watch list.
	Flagged    bool
	CreatedAt  time.Time
	ExpiresAt  time.Time
	ResolvedAt *time.Time
	UpdatedAt  time.Time
	Version    int
}

// NewSession opens the dialogue and rolls the three presented hulls.
// Presentation is deterministic in the seed so a reloaded session shows the
// same ships.
func NewSession(playerID shared.PlayerID, seed int64, now time.Time) *Session {
	rng := rand.New(rand.NewSource(seed))
	offered := make([]ship.HullClass, 0, 3)
	perm := rng.Perm(len(claimablePool))
	for _, i := range perm[:3] {
		offered = append(offered, claimablePool[i])
	}
	return &Session{
		ID:           uuid.NewString(),
		PlayerID:     playerID,
		State:        StatePresenting,
		Seed:         seed,
		OfferedHulls: offered,
		CreatedAt:    now,
		ExpiresAt:    now.Add(SessionTTL),
		UpdatedAt:    now,
	}
}

// Terminal reports whether the dialogue has resolved.
func (s *Session) Terminal() bool {
	switch s.State {
	case StateSuccess, StateCaught, StateSuspicious, StateAbandoned:
		return true
	}
	return false
}

// Expired reports whether the dialogue aged out.
func (s *Session) Expired(now time.Time) bool {
	return !s.Terminal() && now.After(s.ExpiresAt)
}

// offered reports whether a hull was presented to this player.
func (s *Session) offered(hull ship.HullClass) bool {
	for _, h := range s.OfferedHulls {
		if h == hull {
			return true
		}
	}
	return false
}

// Claim picks a presented ship and starts the questioning. Returns the
// first guard question.
func (s *Session) Claim(hull ship.HullClass, now time.Time) (string, error) {
	if s.State != StatePresenting {
		return "", shared.NewConflictError("session is not presenting ships")
	}
	if s.Expired(now) {
		s.resolve(StateAbandoned, now)
		return "", shared.NewConflictError("session has expired")
	}
	if !s.offered(hull) {
		return "", shared.NewValidationError("hull", "that ship was not presented")
	}
	s.ClaimedHull = hull
	s.State = StateQuestioning
	s.UpdatedAt = now
	return s.nextQuestion(now), nil
}

// nextQuestion appends a pending exchange with a seeded template. The
// application layer may overwrite the question text with an advisory
// phrasing before presenting it.
func (s *Session) nextQuestion(now time.Time) string {
	rng := rand.New(rand.NewSource(s.Seed + int64(len(s.Exchanges))))
	q := guardQuestions[rng.Intn(len(guardQuestions))]
	s.Exchanges = append(s.Exchanges, Exchange{Question: q, AskedAt: now})
	return q
}

// RephraseCurrent swaps the open question's wording, keeping the slot.
func (s *Session) RephraseCurrent(text string, now time.Time) error {
	if s.State != StateQuestioning || len(s.Exchanges) == 0 {
		return shared.NewConflictError("no question is open")
	}
	last := &s.Exchanges[len(s.Exchanges)-1]
	if last.AnsweredAt != nil {
		return shared.NewConflictError("question is already answered")
	}
	last.Question = text
	s.UpdatedAt = now
	return nil
}

// Answer records the player's scored reply and advances the dialogue. The
// returned question is empty once the guard is done; then the session is
// terminal and Outcome carries the verdict.
func (s *Session) Answer(text string, score float64, now time.Time) (string, error) {
	if s.State != StateQuestioning {
		return "", shared.NewConflictError("session is not taking answers")
	}
	if s.Expired(now) {
		s.resolve(StateAbandoned, now)
		return "", shared.NewConflictError("session has expired")
	}
	if score < 0 || score > 1 {
		return "", shared.NewValidationError("score", "must be in [0, 1]")
	}
	last := &s.Exchanges[len(s.Exchanges)-1]
	if last.AnsweredAt != nil {
		return "", shared.NewConflictError("question is already answered")
	}
	last.Answer = text
	last.Score = score
	t := now
	last.AnsweredAt = &t
	s.UpdatedAt = now

	if len(s.Exchanges) < MaxExchanges {
		return s.nextQuestion(now), nil
	}
	s.resolve(s.verdict(), now)
	return "", nil
}

// verdict maps the mean plausibility score to an outcome.
func (s *Session) verdict() State {
	total := 0.0
	for _, e := range s.Exchanges {
		total += e.Score
	}
	mean := total / float64(len(s.Exchanges))
	switch {
	case mean >= successThreshold:
		return StateSuccess
	case mean < caughtThreshold:
		return StateCaught
	default:
		return StateSuspicious
	}
}

// Abandon closes the dialogue without a ship grant.
func (s *Session) Abandon(now time.Time) error {
	if s.Terminal() {
		return shared.NewConflictError("session is already resolved")
	}
	s.resolve(StateAbandoned, now)
	return nil
}

func (s *Session) resolve(outcome State, now time.Time) {
	s.State = outcome
	s.Flagged = outcome == StateSuspicious
	t := now
	s.ResolvedAt = &t
	s.UpdatedAt = now
}

// GrantedHull returns the hull the outcome awards: the claim on success and
// suspicious (the guard waves a flagged player through), the battered
// fallback when caught, nothing when abandoned.
func (s *Session) GrantedHull() (ship.HullClass, bool) {
	switch s.State {
	case StateSuccess, StateSuspicious:
		return s.ClaimedHull, true
	case StateCaught:
		return FallbackHull, true
	default:
		return "", false
	}
}
