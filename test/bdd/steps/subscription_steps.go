package steps

import (
	"context"
	"fmt"

	"github.com/cucumber/godog"

	"github.com/sectorwars/gameserver/internal/application/provisioner"
	"github.com/sectorwars/gameserver/internal/domain/account"
	"github.com/sectorwars/gameserver/internal/domain/region"
	"github.com/sectorwars/gameserver/internal/domain/subscription"
)

type subscriptionContext struct {
	subscriber *account.Account
	delivery   *subscription.Delivery
}

func (c *subscriptionContext) reset() {
	c.subscriber = nil
	c.delivery = nil
}

func (c *subscriptionContext) aSubscriberAccount() error {
	res, err := current.register("prospector")
	if err != nil {
		return err
	}
	c.subscriber = res.Account
	return nil
}

func (c *subscriptionContext) webhookEvent(eventType, regionName, deliveryID, plan string) provisioner.Event {
	return provisioner.Event{
		DeliveryID: deliveryID,
		Provider:   "stripe",
		Type:       eventType,
		AccountID:  c.subscriber.ID,
		ExternalID: "sub-" + regionName,
		Plan:       plan,
		RegionName: regionName,
	}
}

func (c *subscriptionContext) aWebhookArrives(eventType, regionName, deliveryID, plan string) error {
	d, err := current.provisioner.Handle(current.ctx, c.webhookEvent(eventType, regionName, deliveryID, plan))
	if err != nil {
		return err
	}
	c.delivery = d
	return nil
}

func (c *subscriptionContext) theSameDeliveryArrivesAgain(deliveryID string) error {
	if c.delivery == nil || c.delivery.DeliveryID != deliveryID {
		return fmt.Errorf("no prior delivery %q to replay", deliveryID)
	}
	d, err := current.provisioner.Handle(current.ctx, provisioner.Event{
		DeliveryID: deliveryID,
		Provider:   c.delivery.Provider,
		Type:       c.delivery.EventType,
		AccountID:  c.subscriber.ID,
		ExternalID: "sub-mining-co",
		RegionName: "mining-co",
	})
	if err != nil {
		return err
	}
	c.delivery = d
	return nil
}

func (c *subscriptionContext) theDeliveryOutcomeIs(outcome string) error {
	if c.delivery == nil {
		return fmt.Errorf("no delivery was processed")
	}
	if c.delivery.Outcome != outcome {
		return fmt.Errorf("expected outcome %q, got %q (%s)", outcome, c.delivery.Outcome, c.delivery.Note)
	}
	return nil
}

func (c *subscriptionContext) regionIsListedAsActive(name string) error {
	r, err := current.federation.GetRegion(current.ctx, name)
	if err != nil {
		return err
	}
	if r.Status != region.StatusActive {
		return fmt.Errorf("expected region %q active, got %q", name, r.Status)
	}
	return nil
}

func (c *subscriptionContext) exactlyOneRegionNamedExists(name string) error {
	all, err := current.regions.List(current.ctx)
	if err != nil {
		return err
	}
	count := 0
	for _, r := range all {
		if r.Name == name {
			count++
		}
	}
	if count != 1 {
		return fmt.Errorf("expected exactly one region %q, found %d", name, count)
	}
	return nil
}

// InitializeSubscriptionScenario registers the billing lifecycle steps.
func InitializeSubscriptionScenario(sc *godog.ScenarioContext) {
	c := &subscriptionContext{}

	sc.Before(func(ctx context.Context, _ *godog.Scenario) (context.Context, error) {
		c.reset()
		return ctx, nil
	})

	sc.Step(`^a subscriber account$`, c.aSubscriberAccount)
	sc.Step(`^a "([^"]*)" webhook arrives for region "([^"]*)" under delivery "([^"]*)" and plan "([^"]*)"$`, c.aWebhookArrives)
	sc.Step(`^a processed "([^"]*)" webhook for region "([^"]*)" under delivery "([^"]*)" and plan "([^"]*)"$`, c.aWebhookArrives)
	sc.Step(`^the same delivery "([^"]*)" arrives again$`, c.theSameDeliveryArrivesAgain)
	sc.Step(`^the delivery outcome is "([^"]*)"$`, c.theDeliveryOutcomeIs)
	sc.Step(`^region "([^"]*)" is listed as active$`, c.regionIsListedAsActive)
	sc.Step(`^exactly one region named "([^"]*)" exists$`, c.exactlyOneRegionNamedExists)
}
