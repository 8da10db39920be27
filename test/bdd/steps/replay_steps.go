package steps

import (
	"context"
	"fmt"

	"github.com/cucumber/godog"

	"github.com/sectorwars/gameserver/internal/domain/shared"
)

type replayContext struct {
	accountID shared.AccountID
	scope     shared.Scope
	stored    []shared.SequencedEvent
	received  []shared.SequencedEvent
}

func (c *replayContext) reset() {
	c.accountID = ""
	c.scope = ""
	c.stored = nil
	c.received = nil
}

// durableMessagesPublished appends numbered durable events through the
// hub, the same path every service mutation publishes on.
func (c *replayContext) durableMessagesPublished(count int) error {
	c.accountID = shared.NewAccountID()
	c.scope = shared.PlayerScope(shared.NewPlayerID())
	for i := 1; i <= count; i++ {
		ev := shared.NewEvent(shared.EventMessageDelivered, current.clock.Now(), map[string]any{
			"message": fmt.Sprintf("m-%d", i),
		}, c.scope)
		if err := current.hub.Publish(current.ctx, ev); err != nil {
			return err
		}
	}
	var err error
	c.stored, err = current.replay(c.scope)
	if err != nil {
		return err
	}
	if len(c.stored) != count {
		return fmt.Errorf("expected %d durable rows, found %d", count, len(c.stored))
	}
	return nil
}

func (c *replayContext) theSubscriberAcknowledgedThe(n int) error {
	if n < 1 || n > len(c.stored) {
		return fmt.Errorf("no stored message %d", n)
	}
	return current.eventLog.Ack(current.ctx, c.accountID, c.scope, c.stored[n-1].Seq, current.clock.Now())
}

func (c *replayContext) theSubscriberReplaysFromItsCursor() error {
	cursor, err := current.eventLog.LastAck(current.ctx, c.accountID, c.scope)
	if err != nil {
		return err
	}
	c.received, err = current.eventLog.Replay(current.ctx, c.scope, cursor, 100)
	return err
}

func (c *replayContext) itReceivesMessagesInOrder(first, second int) error {
	want := []string{fmt.Sprintf("m-%d", first), fmt.Sprintf("m-%d", second)}
	if len(c.received) != len(want) {
		return fmt.Errorf("expected %d replayed events, got %d", len(want), len(c.received))
	}
	var lastSeq int64
	for i, row := range c.received {
		got, _ := row.Payload["message"].(string)
		if got != want[i] {
			return fmt.Errorf("position %d: expected %q, got %q", i, want[i], got)
		}
		if row.Seq <= lastSeq {
			return fmt.Errorf("sequence regressed: %d after %d", row.Seq, lastSeq)
		}
		lastSeq = row.Seq
	}
	return nil
}

// InitializeReplayScenario registers the durable cursor replay steps.
func InitializeReplayScenario(sc *godog.ScenarioContext) {
	c := &replayContext{}

	sc.Before(func(ctx context.Context, _ *godog.Scenario) (context.Context, error) {
		c.reset()
		return ctx, nil
	})

	sc.Step(`^(\d+) durable messages published to a player scope$`, c.durableMessagesPublished)
	sc.Step(`^the subscriber acknowledged the (\d+)(?:st|nd|rd|th) message$`, c.theSubscriberAcknowledgedThe)
	sc.Step(`^the subscriber replays from its acknowledged cursor$`, c.theSubscriberReplaysFromItsCursor)
	sc.Step(`^it receives messages (\d+) and (\d+) in order and nothing else$`, c.itReceivesMessagesInOrder)
}
