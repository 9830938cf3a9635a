package billing

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/siteforge-io/siteforge/app/models"
	"github.com/siteforge-io/siteforge/app/repository"
	"github.com/siteforge-io/siteforge/internal/pkg/analytics"
	"github.com/siteforge-io/siteforge/internal/pkg/apperrors"
	"github.com/siteforge-io/siteforge/internal/pkg/entitlement"
	"github.com/siteforge-io/siteforge/internal/pkg/mail"
)

// memProjectRepo holds a single project; only the methods the webhook flow
// touches are meaningfully implemented.
type memProjectRepo struct {
	project *models.Project
}

func (r *memProjectRepo) Create(p *models.Project) error { return nil }

func (r *memProjectRepo) GetByID(id uint) (*models.Project, error) {
	if r.project == nil || r.project.ID != id {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *r.project
	return &cp, nil
}

func (r *memProjectRepo) GetByUUID(uuid string) (*models.Project, error) {
	if r.project == nil || r.project.UUID != uuid {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *r.project
	return &cp, nil
}

func (r *memProjectRepo) GetByInviteToken(token string) (*models.Project, error) {
	return nil, gorm.ErrRecordNotFound
}

func (r *memProjectRepo) GetByOwnerID(ownerID uint) ([]models.Project, error) { return nil, nil }
func (r *memProjectRepo) ListByTierID(tierID string) ([]models.Project, error) {
	return nil, nil
}

func (r *memProjectRepo) GetByIDMatchingRoles(projectID, userID uint, ownerClause, defaultRoleClause bool, roleNames []string) (*models.Project, error) {
	return nil, gorm.ErrRecordNotFound
}

func (r *memProjectRepo) Update(p *models.Project) error { return nil }
func (r *memProjectRepo) Delete(id uint) error           { return nil }
func (r *memProjectRepo) Count() (int64, error)          { return 0, nil }

func (r *memProjectRepo) UpdateSubscriptionFields(projectID uint, fields map[string]interface{}) error {
	if r.project == nil || r.project.ID != projectID {
		return gorm.ErrRecordNotFound
	}
	sub := &r.project.Subscription
	for col, val := range fields {
		switch col {
		case repository.ColSubscriptionTierID:
			sub.TierID = val.(string)
		case repository.ColSubscriptionExternalID:
			sub.ExternalID = val.(string)
		case repository.ColSubscriptionEndOfBillingCycle:
			if val == nil {
				sub.EndOfBillingCycle = nil
			} else {
				t := val.(time.Time)
				sub.EndOfBillingCycle = &t
			}
		case repository.ColSubscriptionScheduledForCancellation:
			sub.ScheduledForCancellation = val.(bool)
		case repository.ColSubscriptionTrialExpiredRecently:
			sub.TrialExpiredRecently = val.(string)
		case repository.ColSubscriptionPaidPlanExpiredRecently:
			sub.PaidPlanExpiredRecently = val.(string)
		case repository.ColSubscriptionTrialStartedRecently:
			sub.TrialStartedRecently = val.(string)
		}
	}
	return nil
}

func (r *memProjectRepo) AppendPastTier(projectID uint, tierID string) error {
	for _, pt := range r.project.PastTiers {
		if pt.TierID == tierID {
			return nil
		}
	}
	r.project.PastTiers = append(r.project.PastTiers, models.ProjectPastTier{ProjectID: projectID, TierID: tierID})
	return nil
}

func (r *memProjectRepo) ListCollaborators(projectID uint) ([]models.Collaborator, error) {
	return r.project.Collaborators, nil
}

func (r *memProjectRepo) AddCollaboratorIfAbsent(c *models.Collaborator) (bool, error) {
	return false, nil
}

func (r *memProjectRepo) ConsumeInviteToken(projectID uint, token string, userID uint) (bool, error) {
	return false, nil
}

func (r *memProjectRepo) UpdateCollaboratorRole(projectID uint, collabID, role string) error {
	return nil
}
func (r *memProjectRepo) RemoveCollaborator(projectID uint, collabID string) error { return nil }
func (r *memProjectRepo) DemoteCollaboratorsByRoles(projectID uint, roleNames []string) (int64, error) {
	return 0, nil
}
func (r *memProjectRepo) DemoteCollaboratorsByIDs(projectID uint, ids []uint) (int64, error) {
	return 0, nil
}
func (r *memProjectRepo) UpsertCollaboratorNotification(n *models.CollaboratorNotification) error {
	return nil
}

func (r *memProjectRepo) CountEnvironments(projectID uint) (int64, error) { return 0, nil }
func (r *memProjectRepo) AddEnvironmentIfAbsent(e *models.ProjectEnvironment) (bool, error) {
	return false, nil
}
func (r *memProjectRepo) RemoveEnvironment(projectID uint, name string) error { return nil }

func (r *memProjectRepo) GetActiveSplitTest(projectID uint) (*models.SplitTest, error) {
	return nil, nil
}
func (r *memProjectRepo) GetSplitTestByEnvironmentName(projectID uint, name string) (*models.SplitTest, error) {
	return nil, nil
}
func (r *memProjectRepo) UpdateSplitTestStatus(splitTestID uint, status string) error { return nil }

type memUserRepo struct {
	user *models.User
}

func (r *memUserRepo) Create(u *models.User) error { return nil }
func (r *memUserRepo) GetByID(id uint) (*models.User, error) {
	if r.user == nil || r.user.ID != id {
		return nil, gorm.ErrRecordNotFound
	}
	return r.user, nil
}
func (r *memUserRepo) GetByEmail(email string) (*models.User, error) {
	return nil, gorm.ErrRecordNotFound
}
func (r *memUserRepo) GetByActivationToken(token string) (*models.User, error) {
	return nil, gorm.ErrRecordNotFound
}
func (r *memUserRepo) Update(u *models.User) error                   { return nil }
func (r *memUserRepo) Delete(id uint) error                          { return nil }
func (r *memUserRepo) List(offset, limit int) ([]models.User, error) { return nil, nil }
func (r *memUserRepo) Count() (int64, error)                         { return 0, nil }
func (r *memUserRepo) Search(query string) ([]models.User, error) {
	return nil, nil
}
func (r *memUserRepo) GetStatsByUserID(userID uint) (*repository.UserStats, error) {
	return &repository.UserStats{}, nil
}

const testSecret = "whsec_billing_test"

func newWebhookService(project *models.Project, owner *models.User) (*Service, *memProjectRepo) {
	repo := &memProjectRepo{project: project}
	users := &memUserRepo{user: owner}
	ents := entitlement.NewService(repo, users, mail.NopMailer{}, analytics.NopTracker{}, entitlement.NewSplitTestStopper(repo))
	return NewService(repo, ents, testSecret), repo
}

func testProject() (*models.Project, *models.User) {
	owner := &models.User{ID: 9, Email: "owner@example.com", DefaultTierID: "free"}
	project := &models.Project{
		ID:      3,
		UUID:    "b0c9e7a6-2f9a-4a51-8b1f-4f0a2f8f13aa",
		OwnerID: owner.ID,
		Name:    "Docs Site",
		Subscription: models.Subscription{
			TierID: "free",
		},
	}
	return project, owner
}

func TestHandleWebhookStartsSubscription(t *testing.T) {
	project, owner := testProject()
	svc, repo := newWebhookService(project, owner)

	payload, _ := json.Marshal(WebhookEvent{
		Type:           EventSubscriptionCreated,
		ProjectUUID:    project.UUID,
		SubscriptionID: "sub_123",
		TierID:         "business",
	})

	updated, err := svc.HandleWebhook(context.Background(), payload, signSHA256(payload, testSecret))
	if err != nil {
		t.Fatalf("HandleWebhook failed: %v", err)
	}
	if updated.Subscription.TierID != "business" {
		t.Errorf("expected tier business, got %q", updated.Subscription.TierID)
	}
	if repo.project.Subscription.ExternalID != "sub_123" {
		t.Errorf("expected external id sub_123, got %q", repo.project.Subscription.ExternalID)
	}
}

func TestHandleWebhookRejectsBadSignature(t *testing.T) {
	project, owner := testProject()
	svc, _ := newWebhookService(project, owner)

	payload, _ := json.Marshal(WebhookEvent{Type: EventSubscriptionCreated, ProjectUUID: project.UUID, TierID: "pro"})

	_, err := svc.HandleWebhook(context.Background(), payload, signSHA256(payload, "wrong"))
	if apperrors.KindOf(err) != apperrors.KindUnauthorized {
		t.Fatalf("expected unauthorized error, got %v", err)
	}
}

func TestApplyEventScheduledCancellation(t *testing.T) {
	project, owner := testProject()
	project.Subscription.TierID = "business"
	project.Subscription.ExternalID = "sub_123"
	svc, repo := newWebhookService(project, owner)

	_, err := svc.ApplyEvent(&WebhookEvent{
		Type:              EventSubscriptionCancelled,
		ProjectUUID:       project.UUID,
		CancelAtPeriodEnd: true,
	})
	if err != nil {
		t.Fatalf("ApplyEvent failed: %v", err)
	}
	if !repo.project.Subscription.ScheduledForCancellation {
		t.Error("expected subscription to be scheduled for cancellation")
	}
	if repo.project.Subscription.TierID != "business" {
		t.Errorf("scheduled cancellation must not change the tier, got %q", repo.project.Subscription.TierID)
	}
}

func TestApplyEventImmediateCancellation(t *testing.T) {
	project, owner := testProject()
	project.Subscription.TierID = "business"
	project.Subscription.ExternalID = "sub_123"
	svc, repo := newWebhookService(project, owner)

	_, err := svc.ApplyEvent(&WebhookEvent{
		Type:        EventSubscriptionCancelled,
		ProjectUUID: project.UUID,
	})
	if err != nil {
		t.Fatalf("ApplyEvent failed: %v", err)
	}
	if repo.project.Subscription.TierID != "free" {
		t.Errorf("expected downgrade to free, got %q", repo.project.Subscription.TierID)
	}
	if repo.project.Subscription.ExternalID != "" {
		t.Errorf("expected external id cleared, got %q", repo.project.Subscription.ExternalID)
	}
}

func TestApplyEventUpdateSetsBillingCycle(t *testing.T) {
	project, owner := testProject()
	project.Subscription.TierID = "pro"
	svc, repo := newWebhookService(project, owner)

	end := time.Now().Add(30 * 24 * time.Hour).Truncate(time.Second)
	_, err := svc.ApplyEvent(&WebhookEvent{
		Type:              EventSubscriptionUpdated,
		ProjectUUID:       project.UUID,
		SubscriptionID:    "sub_456",
		EndOfBillingCycle: &end,
	})
	if err != nil {
		t.Fatalf("ApplyEvent failed: %v", err)
	}
	sub := repo.project.Subscription
	if sub.EndOfBillingCycle == nil || !sub.EndOfBillingCycle.Equal(end) {
		t.Errorf("expected end of billing cycle %v, got %v", end, sub.EndOfBillingCycle)
	}
	if sub.ExternalID != "sub_456" {
		t.Errorf("expected external id sub_456, got %q", sub.ExternalID)
	}
	if sub.TierID != "pro" {
		t.Errorf("update without tier change must keep the tier, got %q", sub.TierID)
	}
}

func TestApplyEventUnknownProject(t *testing.T) {
	project, owner := testProject()
	svc, _ := newWebhookService(project, owner)

	_, err := svc.ApplyEvent(&WebhookEvent{
		Type:        EventSubscriptionCreated,
		ProjectUUID: "missing-uuid",
		TierID:      "pro",
	})
	if apperrors.KindOf(err) != apperrors.KindNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestApplyEventUnknownType(t *testing.T) {
	project, owner := testProject()
	svc, _ := newWebhookService(project, owner)

	_, err := svc.ApplyEvent(&WebhookEvent{Type: "invoice.paid", ProjectUUID: project.UUID})
	if apperrors.KindOf(err) != apperrors.KindInvalidState {
		t.Fatalf("expected invalid state, got %v", err)
	}
}
