package access

import (
	"errors"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/siteforge-io/siteforge/app/models"
	"github.com/siteforge-io/siteforge/app/repository"
	"github.com/siteforge-io/siteforge/internal/pkg/apperrors"
	"github.com/siteforge-io/siteforge/internal/pkg/mail"
	"github.com/siteforge-io/siteforge/internal/pkg/roles"
	"github.com/siteforge-io/siteforge/internal/pkg/tier"
)

// Controller resolves user roles on projects, enforces tier seat ceilings and
// manages the collaborator invite lifecycle.
type Controller struct {
	projects repository.ProjectRepository
	users    repository.UserRepository
	mailer   mail.Mailer
}

// NewController creates an access controller from injected collaborators.
func NewController(projects repository.ProjectRepository, users repository.UserRepository, mailer mail.Mailer) *Controller {
	return &Controller{projects: projects, users: users, mailer: mailer}
}

// NewControllerFromDB creates an access controller wired to the default
// implementations.
func NewControllerFromDB(db *gorm.DB) *Controller {
	repos := repository.NewRepositories(db)
	return NewController(repos.Project, repos.User, mail.NewSMTPPlansMailer())
}

// GetCollaboratorRole resolves a user's effective role on a project: owner
// first, then an accepted collaborator record, then platform-level system
// roles, then the None sentinel.
func GetCollaboratorRole(project *models.Project, user *models.User) *roles.Role {
	if user == nil || project == nil {
		return roles.None
	}
	if user.ID == project.OwnerID {
		return roles.FromName(roles.Owner)
	}
	if c := project.FindCollaboratorByUserID(user.ID); c != nil {
		return c.RoleOrDefault()
	}
	if user.HasSystemRole(models.SYSTEM_ROLE_ADMIN) {
		if user.HasSystemRole(models.SYSTEM_ROLE_SUPPORT_ADMIN) {
			return roles.FromName(roles.SiteForgeSupport)
		}
		return roles.FromName(roles.SiteForgeAdmin)
	}
	return roles.None
}

// matchesSystemRole reports whether the user's platform-level system roles
// grant the requested project role.
func matchesSystemRole(user *models.User, roleName string) bool {
	switch roleName {
	case roles.SiteForgeAdmin:
		return user.HasSystemRole(models.SYSTEM_ROLE_ADMIN)
	case roles.SiteForgeSupport:
		return user.HasSystemRole(models.SYSTEM_ROLE_ADMIN) &&
			user.HasSystemRole(models.SYSTEM_ROLE_SUPPORT_ADMIN)
	default:
		return false
	}
}

// FindProjectByIDAndUserRoles loads a project only if the user holds one of
// the requested roles on it. System-admin roles are checked against the
// user's platform roles before any per-collaborator clause is built, so
// system admins never need a matching collaborator record.
func (a *Controller) FindProjectByIDAndUserRoles(projectID uint, user *models.User, roleNames []string) (*models.Project, error) {
	if user == nil {
		return nil, apperrors.New(apperrors.KindNotFound, "project not found")
	}

	var ownerClause, defaultRoleClause bool
	var collabRoles []string
	for _, name := range roleNames {
		switch name {
		case roles.SiteForgeAdmin, roles.SiteForgeSupport:
			if matchesSystemRole(user, name) {
				return a.getProject(projectID)
			}
		case roles.Owner:
			ownerClause = true
		case roles.DefaultCollabRole:
			// Legacy collaborator records predate per-collaborator roles and
			// store no role at all; they hold the default role.
			defaultRoleClause = true
		default:
			collabRoles = append(collabRoles, name)
		}
	}

	project, err := a.projects.GetByIDMatchingRoles(projectID, user.ID, ownerClause, defaultRoleClause, collabRoles)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.Newf(apperrors.KindNotFound, "project %d not found", projectID)
		}
		return nil, err
	}
	return project, nil
}

// AllowanceOptions tunes a seat allowance check. Call sites pass
// RequiredAmount explicitly: one new seat for adds (the HTTP layer fills in
// DefaultRequiredAmount when the query omits it), zero for accept-invite
// because the invitee already occupies a pending record. The zero value is
// meaningful, it is not a default.
type AllowanceOptions struct {
	RequiredAmount int
	Role           string
}

// DefaultRequiredAmount is the seat amount assumed when a caller asks about
// a feature without naming one: a single new seat.
const DefaultRequiredAmount = 1

// quirkCount folds the requested amount into a seat count the way clients
// have always observed it: the requested amount only registers when the
// filtered set is empty, otherwise the raw count wins. Downstream billing
// prompts are calibrated against this arithmetic, so it is kept as is.
func quirkCount(n int, requiredAmount int) int {
	if n == 0 {
		return requiredAmount
	}
	return n
}

// CheckTierAllowanceForFeature reports whether the project's tier allows one
// more unit of the named feature. Numeric features compare seat or
// environment counts against the tier limit; any other feature is a truthy
// flag check. Returns false when the project's tier cannot be resolved.
func CheckTierAllowanceForFeature(project *models.Project, featureName string, opts AllowanceOptions) bool {
	features, ok := project.Subscription.AvailableFeatures()
	if !ok {
		return false
	}

	switch featureName {
	case tier.FeatureCollaborators:
		var viewers, editorsAndPublishers int
		for i := range project.Collaborators {
			r := project.Collaborators[i].RoleOrDefault()
			if r.Name == roles.Unlicensed {
				continue
			}
			switch r.Seat {
			case roles.SeatViewer:
				viewers++
			case roles.SeatEditor:
				editorsAndPublishers++
			}
		}
		viewersCount := quirkCount(viewers, opts.RequiredAmount)
		editorsCount := quirkCount(editorsAndPublishers, opts.RequiredAmount)

		switch opts.Role {
		case roles.Viewer:
			return viewersCount <= features.Int(tier.FeatureViewersCollaborators)
		case roles.Editor, roles.Developer:
			if !features.Bool(tier.FeatureCollaboratorRoles) {
				return false
			}
			return editorsCount <= features.Int(tier.FeatureCollaborators)
		case roles.Admin:
			return editorsCount <= features.Int(tier.FeatureCollaborators)
		default:
			return false
		}

	case tier.FeatureEnvironments:
		count := quirkCount(len(project.Environments), opts.RequiredAmount)
		return count <= features.Int(tier.FeatureEnvironments)

	default:
		return features.Bool(featureName)
	}
}

// InviteInput is the payload of an invitation.
type InviteInput struct {
	InviteToken string
	InviteEmail string
	Role        string
}

// AddInvitedCollaborator appends a pending invitation to a project. Only the
// owner or an existing collaborator may invite; identical pending invitations
// are not duplicated, though re-inviting resends the email. Each send is
// recorded on the collaborator's notification state, upserted by type so at
// most one row per type exists. Email and notification are best-effort.
func (a *Controller) AddInvitedCollaborator(projectID uint, actingUser *models.User, input InviteInput) (*models.Project, error) {
	project, err := a.getProject(projectID)
	if err != nil {
		return nil, err
	}

	if actingUser == nil ||
		(actingUser.ID != project.OwnerID && project.FindCollaboratorByUserID(actingUser.ID) == nil) {
		return nil, apperrors.New(apperrors.KindUnauthorized, "only the owner or a collaborator can invite")
	}

	token := strings.TrimSpace(input.InviteToken)
	email := strings.TrimSpace(input.InviteEmail)
	if token == "" || email == "" {
		return nil, apperrors.New(apperrors.KindInvalidState, "invite token and email are required")
	}
	if input.Role != "" && !roles.IsValidNonPhantomRole(input.Role) {
		return nil, apperrors.Newf(apperrors.KindInvalidState, "role %q cannot be assigned", input.Role)
	}

	_, err = a.projects.AddCollaboratorIfAbsent(&models.Collaborator{
		CollabID:    uuid.NewString(),
		ProjectID:   projectID,
		InviteToken: token,
		InviteEmail: email,
		Role:        input.Role,
	})
	if err != nil {
		return nil, err
	}

	updated, err := a.getProject(projectID)
	if err != nil {
		return nil, err
	}
	if pending := updated.FindCollaboratorByInviteToken(token); pending != nil {
		a.mailer.SendCollaboratorInvite(updated, email, token)
		a.recordInviteNotification(pending.ID)
	}

	return updated, nil
}

// recordInviteNotification upserts the invite-email notification state for a
// collaborator, keeping at most one row per type with the latest send time.
func (a *Controller) recordInviteNotification(collaboratorID uint) {
	now := time.Now()
	err := a.projects.UpsertCollaboratorNotification(&models.CollaboratorNotification{
		CollaboratorID: collaboratorID,
		Type:           models.NotificationTypeInviteEmail,
		LastSentAt:     &now,
	})
	if err != nil {
		log.Printf("access: recording invite notification for collaborator %d failed: %v", collaboratorID, err)
	}
}

// UpdateCollaboratorByTokenAndUserID links a pending invitation to a user:
// the accept-invite transition. The token is consumed with one conditional
// update so it can never be redeemed twice; a second call with the same token
// fails as invalid instead of silently re-linking.
func (a *Controller) UpdateCollaboratorByTokenAndUserID(projectID uint, token string, userID uint) (*models.Project, error) {
	project, err := a.getProject(projectID)
	if err != nil {
		return nil, err
	}

	pending := project.FindCollaboratorByInviteToken(token)
	if pending == nil {
		return nil, apperrors.New(apperrors.KindNotFound, "invite token is invalid")
	}
	if existing := project.FindCollaboratorByUserID(userID); existing != nil && existing.CollabID != pending.CollabID {
		return nil, apperrors.New(apperrors.KindConflict, "user is already a collaborator")
	}

	consumed, err := a.projects.ConsumeInviteToken(projectID, token, userID)
	if err != nil {
		return nil, err
	}
	if !consumed {
		return nil, apperrors.New(apperrors.KindNotFound, "invite token is invalid")
	}

	return a.getProject(projectID)
}

// UpdateCollaboratorByID changes a collaborator's role. The record must exist
// on the loaded snapshot before the mutation is issued.
func (a *Controller) UpdateCollaboratorByID(projectID uint, collabID string, role string) (*models.Project, error) {
	project, err := a.getProject(projectID)
	if err != nil {
		return nil, err
	}
	if project.FindCollaboratorByCollabID(collabID) == nil {
		return nil, apperrors.Newf(apperrors.KindNotFound, "collaborator %s does not exist", collabID)
	}
	if role != "" && !roles.IsValidNonPhantomRole(role) {
		return nil, apperrors.Newf(apperrors.KindInvalidState, "role %q cannot be assigned", role)
	}

	if err := a.projects.UpdateCollaboratorRole(projectID, collabID, role); err != nil {
		return nil, err
	}
	return a.getProject(projectID)
}

// RemoveCollaboratorByID deletes a collaborator record.
func (a *Controller) RemoveCollaboratorByID(projectID uint, collabID string) (*models.Project, error) {
	project, err := a.getProject(projectID)
	if err != nil {
		return nil, err
	}
	if project.FindCollaboratorByCollabID(collabID) == nil {
		return nil, apperrors.Newf(apperrors.KindNotFound, "collaborator %s does not exist", collabID)
	}

	if err := a.projects.RemoveCollaborator(projectID, collabID); err != nil {
		return nil, err
	}
	return a.getProject(projectID)
}

// AcceptInvite resolves an invite token and links it to the accepting user.
// The token must resolve to a project before anything else; an owner
// accepting their own invite is rejected without consuming the token; the
// seat allowance is checked with a required amount of zero because the
// invitee already occupies the pending record.
func (a *Controller) AcceptInvite(token string, user *models.User) (*models.Project, error) {
	if user == nil {
		return nil, apperrors.New(apperrors.KindUnauthorized, "authentication required")
	}

	project, err := a.projects.GetByInviteToken(token)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.New(apperrors.KindNotFound, "invite token is invalid")
		}
		return nil, err
	}

	if user.ID == project.OwnerID {
		return nil, apperrors.New(apperrors.KindConflict, "user is the project owner").
			WithDetails(projectSummary(project, a.ownerEmail(project)))
	}

	pending := project.FindCollaboratorByInviteToken(token)
	if pending == nil {
		return nil, apperrors.New(apperrors.KindNotFound, "invite token is invalid")
	}

	roleName := pending.RoleOrDefault().Name
	allowed := CheckTierAllowanceForFeature(project, tier.FeatureCollaborators, AllowanceOptions{
		RequiredAmount: 0,
		Role:           roleName,
	})
	if !allowed {
		return nil, apperrors.New(apperrors.KindTierExceeded, "collaborator limit reached").
			WithDetails(map[string]interface{}{
				"feature": tier.FeatureCollaborators,
				"role":    roleName,
			})
	}

	return a.UpdateCollaboratorByTokenAndUserID(project.ID, token, user.ID)
}

func projectSummary(project *models.Project, ownerEmail string) map[string]interface{} {
	return map[string]interface{}{
		"projectId":  project.ID,
		"name":       project.Name,
		"cmsId":      project.CMS,
		"cmsTitle":   project.CMSTitle,
		"ownerEmail": ownerEmail,
		"siteUrl":    project.SiteURL,
	}
}

func (a *Controller) ownerEmail(project *models.Project) string {
	if project.Owner.Email != "" {
		return project.Owner.Email
	}
	if owner, err := a.users.GetByID(project.OwnerID); err == nil {
		return owner.Email
	}
	return ""
}

func (a *Controller) getProject(projectID uint) (*models.Project, error) {
	project, err := a.projects.GetByID(projectID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.Newf(apperrors.KindNotFound, "project %d not found", projectID)
		}
		return nil, err
	}
	return project, nil
}
