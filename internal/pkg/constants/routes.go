package constants

// Static route constants
const (
	PublicRoute  = "/"
	InviteRoute  = "/invite"
	APIV1Prefix  = "/api/v1"
	WebhookRoute = "/webhooks/billing"
)
