package billing

import (
	"context"
	"encoding/json"
	"strings"

	"gorm.io/gorm"

	"github.com/siteforge-io/siteforge/app/models"
	"github.com/siteforge-io/siteforge/app/repository"
	"github.com/siteforge-io/siteforge/internal/pkg/apperrors"
	"github.com/siteforge-io/siteforge/internal/pkg/entitlement"
)

// Service translates billing provider webhooks into subscription changes.
type Service struct {
	projects     repository.ProjectRepository
	entitlements *entitlement.Service
	secret       string
}

// NewService creates a billing webhook service.
func NewService(projects repository.ProjectRepository, entitlements *entitlement.Service, webhookSecret string) *Service {
	return &Service{
		projects:     projects,
		entitlements: entitlements,
		secret:       strings.TrimSpace(webhookSecret),
	}
}

// NewServiceFromDB creates a billing webhook service from a GORM DB handle.
func NewServiceFromDB(db *gorm.DB, webhookSecret string) *Service {
	repos := repository.NewRepositories(db)
	return NewService(repos.Project, entitlement.NewServiceFromDB(db), webhookSecret)
}

// HandleWebhook verifies, parses and applies a raw webhook payload. The
// returned project reflects the subscription state after the event was
// applied.
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, signatureHeader string) (*models.Project, error) {
	_ = ctx
	if !VerifyWebhookSignature(payload, signatureHeader, s.secret) {
		return nil, apperrors.New(apperrors.KindUnauthorized, "invalid webhook signature")
	}

	var event WebhookEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, apperrors.New(apperrors.KindInvalidState, "malformed webhook payload")
	}

	return s.ApplyEvent(&event)
}

// ApplyEvent dispatches a parsed webhook event to the entitlement service.
func (s *Service) ApplyEvent(event *WebhookEvent) (*models.Project, error) {
	if event.ProjectUUID == "" {
		return nil, apperrors.New(apperrors.KindInvalidState, "webhook event is missing project_uuid")
	}

	project, err := s.projects.GetByUUID(event.ProjectUUID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, apperrors.Newf(apperrors.KindNotFound, "project %s not found", event.ProjectUUID)
		}
		return nil, err
	}

	switch event.Type {
	case EventSubscriptionCreated:
		return s.entitlements.StartSubscription(project.ID, event.SubscriptionID, event.TierID)

	case EventSubscriptionUpdated:
		patch := entitlement.SubscriptionPatch{}
		if event.TierID != "" {
			tierID := event.TierID
			patch.TierID = &tierID
		}
		if event.EndOfBillingCycle != nil {
			patch.EndOfBillingCycle = event.EndOfBillingCycle
		} else {
			patch.ClearEndOfBillingCycle = true
		}
		scheduled := event.CancelAtPeriodEnd
		patch.ScheduledForCancellation = &scheduled
		if event.SubscriptionID != "" {
			subID := event.SubscriptionID
			patch.ExternalID = &subID
		}
		return s.entitlements.UpdateSubscription(project.ID, patch)

	case EventSubscriptionCancelled:
		return s.entitlements.CancelSubscription(project.ID, entitlement.CancelOptions{
			Immediate: !event.CancelAtPeriodEnd,
		})

	case EventTrialStarted:
		return s.entitlements.StartTrial(project.ID, event.TierID, true)

	default:
		return nil, apperrors.Newf(apperrors.KindInvalidState, "unknown webhook event type %q", event.Type)
	}
}
