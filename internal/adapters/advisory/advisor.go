package advisory

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/sectorwars/gameserver/internal/application/onboarding"
	"github.com/sectorwars/gameserver/internal/domain/ship"
	"github.com/sectorwars/gameserver/internal/domain/trading"
)

// Advisor answers the game's advisory questions through the provider chain,
// degrading to the deterministic heuristics when every provider is down.
// It satisfies onboarding.Advisor and feeds the trade family's analysis
// endpoints.
type Advisor struct {
	client   *Client
	fallback onboarding.HeuristicAdvisor
}

// NewAdvisor wraps the provider client. A nil client means heuristics only.
func NewAdvisor(client *Client) *Advisor {
	return &Advisor{client: client}
}

// PhraseQuestion rewords a guard question for the first-login dialogue.
func (a *Advisor) PhraseQuestion(ctx context.Context, claimed ship.HullClass, template string) (string, error) {
	if a.client == nil {
		return a.fallback.PhraseQuestion(ctx, claimed, template)
	}
	prompt := fmt.Sprintf(
		"Rephrase this spaceport security question in one suspicious sentence, keeping its meaning. Claimed ship: %s. Question: %s",
		claimed, template)
	answer, err := a.client.Complete(ctx, "onboarding.question", prompt)
	if err != nil || strings.TrimSpace(answer) == "" {
		return a.fallback.PhraseQuestion(ctx, claimed, template)
	}
	return strings.TrimSpace(answer), nil
}

// ScoreAnswer rates the plausibility of a first-login answer in [0, 1].
func (a *Advisor) ScoreAnswer(ctx context.Context, question, answer string) (float64, error) {
	if a.client == nil {
		return a.fallback.ScoreAnswer(ctx, question, answer)
	}
	prompt := fmt.Sprintf(
		"Rate how plausible this answer is, 0.0 to 1.0, reply with only the number.\nQuestion: %s\nAnswer: %s",
		question, answer)
	raw, err := a.client.Complete(ctx, "onboarding.score", prompt)
	if err != nil {
		return a.fallback.ScoreAnswer(ctx, question, answer)
	}
	score, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || score < 0 || score > 1 {
		// A provider that cannot follow the format is treated as down.
		return a.fallback.ScoreAnswer(ctx, question, answer)
	}
	return score, nil
}

// Forecast is one commodity's advisory outlook at a station.
type Forecast struct {
	Commodity string  `json:"commodity"`
	Outlook   string  `json:"outlook"` // rising, falling or stable
	Note      string  `json:"note"`
	Fill      float64 `json:"fill"` // inventory / capacity behind the call
}

// MarketForecast predicts price direction per commodity from the current
// quotes. The provider may phrase the notes; the outlook itself always comes
// from the supply heuristic so two calls with the same book agree.
func (a *Advisor) MarketForecast(ctx context.Context, stationName string, quotes []trading.Quote) []Forecast {
	forecasts := make([]Forecast, 0, len(quotes))
	for _, q := range quotes {
		f := heuristicForecast(q)
		forecasts = append(forecasts, f)
	}
	sort.Slice(forecasts, func(i, j int) bool { return forecasts[i].Commodity < forecasts[j].Commodity })
	if a.client == nil {
		return forecasts
	}
	prompt := forecastPrompt(stationName, forecasts)
	note, err := a.client.Complete(ctx, "trade.forecast", prompt)
	if err != nil {
		return forecasts
	}
	// One summary line across the board; per-commodity outlooks stay
	// deterministic.
	for i := range forecasts {
		forecasts[i].Note = strings.TrimSpace(note)
	}
	return forecasts
}

func forecastPrompt(stationName string, forecasts []Forecast) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Summarize trading conditions at station %s in one sentence. Commodity outlooks:", stationName)
	for _, f := range forecasts {
		fmt.Fprintf(&b, " %s=%s(fill %.2f)", f.Commodity, f.Outlook, f.Fill)
	}
	return b.String()
}

// heuristicForecast reads direction off the fill ratio: a starved market
// keeps bidding prices up, a glutted one lets them slide.
func heuristicForecast(q trading.Quote) Forecast {
	fill := 1.0
	if q.Capacity > 0 {
		fill = float64(q.Stock) / float64(q.Capacity)
	}
	f := Forecast{Commodity: string(q.Commodity), Fill: fill}
	switch {
	case fill < 0.25:
		f.Outlook = "rising"
		f.Note = "inventory scarce, sellers hold the advantage"
	case fill > 0.75:
		f.Outlook = "falling"
		f.Note = "inventory glut, buyers hold the advantage"
	default:
		f.Outlook = "stable"
		f.Note = "inventory balanced"
	}
	return f
}

// RouteHint comments on a computed route. Purely cosmetic; the route itself
// comes from the deterministic planner.
func (a *Advisor) RouteHint(ctx context.Context, hops int, fuel int, hazard float64) string {
	fallback := heuristicRouteHint(hops, fuel, hazard)
	if a.client == nil {
		return fallback
	}
	prompt := fmt.Sprintf(
		"In one short sentence, advise a pilot on a route with %d hops, %d fuel cost and %.2f mean hazard.",
		hops, fuel, hazard)
	hint, err := a.client.Complete(ctx, "navigation.route", prompt)
	if err != nil || strings.TrimSpace(hint) == "" {
		return fallback
	}
	return strings.TrimSpace(hint)
}

func heuristicRouteHint(hops, fuel int, hazard float64) string {
	switch {
	case hazard > 0.5:
		return "hazardous corridor: expect hull wear, carry repair margin"
	case hops > 10:
		return fmt.Sprintf("long haul of %d hops: top off fuel beyond the %d required", hops, fuel)
	default:
		return "clean route: no special precautions"
	}
}
