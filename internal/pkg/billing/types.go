package billing

import "time"

// Webhook event types sent by the billing provider
const (
	EventSubscriptionCreated   = "subscription.created"
	EventSubscriptionUpdated   = "subscription.updated"
	EventSubscriptionCancelled = "subscription.cancelled"
	EventTrialStarted          = "trial.started"
)

// WebhookEvent is the normalized shape of a billing provider webhook. The
// provider references projects by our public UUID and its own subscription id.
type WebhookEvent struct {
	EventID           string     `json:"event_id"`
	Type              string     `json:"type"`
	ProjectUUID       string     `json:"project_uuid"`
	SubscriptionID    string     `json:"subscription_id"`
	TierID            string     `json:"tier_id"`
	EndOfBillingCycle *time.Time `json:"end_of_billing_cycle,omitempty"`
	CancelAtPeriodEnd bool       `json:"cancel_at_period_end"`
}
