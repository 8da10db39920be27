package bdd

import (
	"testing"

	"github.com/cucumber/godog"

	"github.com/sectorwars/gameserver/test/bdd/steps"
)

func TestFeatures(t *testing.T) {
	suite := godog.TestSuite{
		ScenarioInitializer: InitializeScenario,
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{"features"},
			TestingT: t,
		},
	}

	if suite.Run() != 0 {
		t.Fatal("non-zero status returned, failed to run feature tests")
	}
}

func InitializeScenario(sc *godog.ScenarioContext) {
	// The universe bootstrap step is shared by every feature and must be
	// registered exactly once.
	steps.InitializeUniverseSteps(sc)
	steps.InitializeRegistrationCombatScenario(sc)
	steps.InitializeTradingScenario(sc)
	steps.InitializeElectionScenario(sc)
	steps.InitializeTravelScenario(sc)
	steps.InitializeSubscriptionScenario(sc)
	steps.InitializeReplayScenario(sc)
}
