package repository

import (
	"github.com/siteforge-io/siteforge/app/models"
	"gorm.io/gorm"
)

// UserRepository defines the interface for user-related database operations
type UserRepository interface {
	Create(user *models.User) error
	GetByID(id uint) (*models.User, error)
	GetByEmail(email string) (*models.User, error)
	GetByActivationToken(token string) (*models.User, error)
	GetStatsByUserID(userID uint) (*UserStats, error)
	Update(user *models.User) error
	Delete(id uint) error
	List(offset, limit int) ([]models.User, error)
	Count() (int64, error)
	Search(query string) ([]models.User, error)
}

// Subscription column names used with UpdateSubscriptionFields. Keeping them
// in one place so the entitlement engine and the repository agree on the
// embedded-column layout.
const (
	ColSubscriptionTierID                   = "subscription_tier_id"
	ColSubscriptionEndOfBillingCycle        = "subscription_end_of_billing_cycle"
	ColSubscriptionScheduledForCancellation = "subscription_scheduled_for_cancellation"
	ColSubscriptionExternalID               = "subscription_external_id"
	ColSubscriptionTrialExpiredRecently     = "subscription_trial_expired_recently"
	ColSubscriptionPaidPlanExpiredRecently  = "subscription_paid_plan_expired_recently"
	ColSubscriptionTrialStartedRecently     = "subscription_trial_started_recently"
)

// ProjectRepository defines the interface for project-related database
// operations. Mutations that do not depend on values derived from the
// pre-update row are expressed as single conditional updates so the
// database's per-row atomicity is the only concurrency control needed.
type ProjectRepository interface {
	Create(project *models.Project) error
	GetByID(id uint) (*models.Project, error)
	GetByUUID(uuid string) (*models.Project, error)
	GetByInviteToken(token string) (*models.Project, error)
	GetByOwnerID(ownerID uint) ([]models.Project, error)
	ListByTierID(tierID string) ([]models.Project, error)
	GetByIDMatchingRoles(projectID uint, userID uint, ownerClause bool, defaultRoleClause bool, roleNames []string) (*models.Project, error)
	Update(project *models.Project) error
	Delete(id uint) error
	Count() (int64, error)

	// Subscription state
	UpdateSubscriptionFields(projectID uint, fields map[string]interface{}) error
	AppendPastTier(projectID uint, tierID string) error

	// Collaborators
	ListCollaborators(projectID uint) ([]models.Collaborator, error)
	AddCollaboratorIfAbsent(collab *models.Collaborator) (bool, error)
	ConsumeInviteToken(projectID uint, token string, userID uint) (bool, error)
	UpdateCollaboratorRole(projectID uint, collabID string, role string) error
	RemoveCollaborator(projectID uint, collabID string) error
	DemoteCollaboratorsByRoles(projectID uint, roleNames []string) (int64, error)
	DemoteCollaboratorsByIDs(projectID uint, ids []uint) (int64, error)
	UpsertCollaboratorNotification(n *models.CollaboratorNotification) error

	// Environments
	CountEnvironments(projectID uint) (int64, error)
	AddEnvironmentIfAbsent(env *models.ProjectEnvironment) (bool, error)
	RemoveEnvironment(projectID uint, name string) error

	// Split tests
	GetActiveSplitTest(projectID uint) (*models.SplitTest, error)
	GetSplitTestByEnvironmentName(projectID uint, name string) (*models.SplitTest, error)
	UpdateSplitTestStatus(splitTestID uint, status string) error
}

// SettingRepository defines the interface for application settings
type SettingRepository interface {
	Get() (*models.AppSettings, error)
	Save(settings *models.AppSettings) error
	GetValue(key string) (string, error)
	SetValue(key, value string) error
}

// UserStats provides aggregated counts for a single user (owned projects,
// collaborations).
type UserStats struct {
	ProjectCount       int64
	CollaborationCount int64
}

// Repositories struct holds all repository instances
type Repositories struct {
	User    UserRepository
	Project ProjectRepository
	Setting SettingRepository
}

// NewRepositories creates a new instance of all repositories
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		User:    NewUserRepository(db),
		Project: NewProjectRepository(db),
		Setting: NewSettingRepository(db),
	}
}
