package models

import (
	"encoding/json"
	"time"

	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"

	"github.com/siteforge-io/siteforge/internal/pkg/tier"
)

// Subscription is the billing state embedded in a project. The one-shot
// *Recently columns hold the tier id that triggered them until an explicit
// unset clears them.
type Subscription struct {
	TierID                   string     `gorm:"column:tier_id;type:varchar(50);index" json:"tierId"`
	TierOverrides            JSON       `gorm:"column:tier_overrides;type:text" json:"tierOverrides,omitempty"`
	EndOfBillingCycle        *time.Time `gorm:"column:end_of_billing_cycle;type:timestamp;default:null" json:"endOfBillingCycle,omitempty"`
	ScheduledForCancellation bool       `gorm:"column:scheduled_for_cancellation;default:false" json:"scheduledForCancellation"`
	ExternalID               string     `gorm:"column:external_id;type:varchar(191);default:''" json:"-"`
	TrialExpiredRecently     string     `gorm:"column:trial_expired_recently;type:varchar(50);default:''" json:"trialExpiredRecently,omitempty"`
	PaidPlanExpiredRecently  string     `gorm:"column:paid_plan_expired_recently;type:varchar(50);default:''" json:"paidPlanExpiredRecently,omitempty"`
	TrialStartedRecently     string     `gorm:"column:trial_started_recently;type:varchar(50);default:''" json:"trialStartedRecently,omitempty"`
}

// SafeTierID returns the stored tier id or the process-wide default.
func (s Subscription) SafeTierID() string {
	return tier.SafeTierID(s.TierID)
}

// OverridesMap decodes the stored override document. Invalid or empty
// documents yield no overrides.
func (s Subscription) OverridesMap() map[string]interface{} {
	if len(s.TierOverrides) == 0 {
		return nil
	}
	var m map[string]interface{}
	if err := json.Unmarshal(s.TierOverrides, &m); err != nil {
		return nil
	}
	return m
}

// IsFree reports whether the current tier is a free tier.
func (s Subscription) IsFree() bool {
	t := tier.Get(s.SafeTierID())
	return t != nil && t.IsFree
}

// IsTrial reports whether the current tier is a trial tier.
func (s Subscription) IsTrial() bool {
	t := tier.Get(s.SafeTierID())
	return t != nil && t.IsTrial
}

// PaidTierID returns the tier a trial converts to, or the current tier.
func (s Subscription) PaidTierID() string {
	return tier.PaidTierID(s.SafeTierID())
}

// HasExternalSubscription reports whether a live payment-provider
// subscription is linked.
func (s Subscription) HasExternalSubscription() bool {
	return s.ExternalID != ""
}

// AvailableFeatures resolves the effective feature set. The second return is
// false when the stored tier id is not in the catalog.
func (s Subscription) AvailableFeatures() (tier.FeatureMap, bool) {
	return tier.ResolveFeatures(s.SafeTierID(), s.OverridesMap())
}

// SplitTestStatusProvisioned marks an active split test.
const SplitTestStatusProvisioned = "provisioned"

// Project binds a theme, a static site generator, a CMS, a source repository
// and a deployment target, and carries the subscription plus collaborators.
type Project struct {
	ID               uint   `gorm:"primaryKey" json:"id"`
	UUID             string `gorm:"type:char(36) CHARACTER SET utf8 COLLATE utf8_bin;uniqueIndex;not null" json:"uuid"`
	OwnerID          uint   `gorm:"index;not null" json:"owner_id"`
	Owner            User   `gorm:"foreignKey:OwnerID" json:"owner,omitempty"`
	Name             string `gorm:"type:varchar(255);not null" json:"name" validate:"required,min=1,max=255"`
	ThemeID          string `gorm:"type:varchar(100)" json:"theme_id"`
	SSG              string `gorm:"type:varchar(50)" json:"ssg"`
	CMS              string `gorm:"type:varchar(50)" json:"cms"`
	CMSTitle         string `gorm:"type:varchar(255)" json:"cms_title"`
	RepoURL          string `gorm:"type:varchar(255)" json:"repo_url"`
	DeploymentTarget string `gorm:"type:varchar(50)" json:"deployment_target"`
	SiteURL          string `gorm:"type:varchar(255)" json:"site_url"`

	Subscription Subscription `gorm:"embedded;embeddedPrefix:subscription_" json:"subscription"`

	Collaborators []Collaborator       `gorm:"foreignKey:ProjectID" json:"collaborators,omitempty"`
	Environments  []ProjectEnvironment `gorm:"foreignKey:ProjectID" json:"environments,omitempty"`
	PastTiers     []ProjectPastTier    `gorm:"foreignKey:ProjectID" json:"-"`
	SplitTests    []SplitTest          `gorm:"foreignKey:ProjectID" json:"-"`

	CreatedAt time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (p *Project) Validate() error {
	v := validator.New()

	return v.Struct(p)
}

// PastTierIDs returns the tier history from the loaded association.
func (p *Project) PastTierIDs() []string {
	ids := make([]string, 0, len(p.PastTiers))
	for _, pt := range p.PastTiers {
		ids = append(ids, pt.TierID)
	}
	return ids
}

// FindCollaboratorByCollabID looks up a collaborator entry on the loaded
// snapshot by its per-entry id.
func (p *Project) FindCollaboratorByCollabID(collabID string) *Collaborator {
	for i := range p.Collaborators {
		if p.Collaborators[i].CollabID == collabID {
			return &p.Collaborators[i]
		}
	}
	return nil
}

// FindCollaboratorByUserID looks up an accepted collaborator entry by user id.
func (p *Project) FindCollaboratorByUserID(userID uint) *Collaborator {
	for i := range p.Collaborators {
		c := &p.Collaborators[i]
		if c.UserID != nil && *c.UserID == userID {
			return c
		}
	}
	return nil
}

// FindCollaboratorByInviteToken looks up a pending invitation by token.
func (p *Project) FindCollaboratorByInviteToken(token string) *Collaborator {
	if token == "" {
		return nil
	}
	for i := range p.Collaborators {
		if p.Collaborators[i].InviteToken == token {
			return &p.Collaborators[i]
		}
	}
	return nil
}

// ActiveSplitTest returns the provisioned split test, or nil.
func (p *Project) ActiveSplitTest() *SplitTest {
	for i := range p.SplitTests {
		if p.SplitTests[i].Status == SplitTestStatusProvisioned {
			return &p.SplitTests[i]
		}
	}
	return nil
}

// ProjectEnvironment is one named preview/deploy environment of a project.
type ProjectEnvironment struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	ProjectID uint      `gorm:"not null;index:ux_project_environments_name,unique,priority:1" json:"project_id"`
	Name      string    `gorm:"type:varchar(100);not null;index:ux_project_environments_name,unique,priority:2" json:"name"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// ProjectPastTier records a tier the project has ever held. The unique index
// gives append set semantics: revisiting a tier never accumulates duplicates.
type ProjectPastTier struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	ProjectID uint      `gorm:"not null;index:ux_project_past_tiers,unique,priority:1" json:"project_id"`
	TierID    string    `gorm:"type:varchar(50);not null;index:ux_project_past_tiers,unique,priority:2" json:"tier_id"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}
