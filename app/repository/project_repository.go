package repository

import (
	"strings"

	"github.com/siteforge-io/siteforge/app/models"
	"github.com/siteforge-io/siteforge/internal/pkg/roles"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// projectRepository implements the ProjectRepository interface
type projectRepository struct {
	db *gorm.DB
}

// NewProjectRepository creates a new project repository instance
func NewProjectRepository(db *gorm.DB) ProjectRepository {
	return &projectRepository{db: db}
}

// preloadAll loads the associations the entitlement engine and access
// controller operate on. Collaborators are ordered by primary key because
// insertion order decides which entries survive a seat-ceiling demotion.
func (r *projectRepository) preloadAll() *gorm.DB {
	return r.db.
		Preload("Collaborators", func(db *gorm.DB) *gorm.DB {
			return db.Order("collaborators.id ASC")
		}).
		Preload("Collaborators.Notifications").
		Preload("Environments").
		Preload("PastTiers").
		Preload("SplitTests")
}

// Create creates a new project in the database
func (r *projectRepository) Create(project *models.Project) error {
	return r.db.Create(project).Error
}

// GetByID retrieves a project by its ID with all associations loaded
func (r *projectRepository) GetByID(id uint) (*models.Project, error) {
	var project models.Project
	err := r.preloadAll().First(&project, id).Error
	if err != nil {
		return nil, err
	}
	return &project, nil
}

// GetByUUID retrieves a project by its UUID
func (r *projectRepository) GetByUUID(uuid string) (*models.Project, error) {
	var project models.Project
	err := r.preloadAll().Where("uuid = ?", uuid).First(&project).Error
	if err != nil {
		return nil, err
	}
	return &project, nil
}

// GetByInviteToken resolves a pending invitation token to its project.
func (r *projectRepository) GetByInviteToken(token string) (*models.Project, error) {
	trimmed := strings.TrimSpace(token)
	if trimmed == "" {
		return nil, gorm.ErrRecordNotFound
	}
	var collab models.Collaborator
	if err := r.db.Where("invite_token = ? AND invite_token <> ''", trimmed).First(&collab).Error; err != nil {
		return nil, err
	}
	return r.GetByID(collab.ProjectID)
}

// GetByOwnerID retrieves all projects owned by a user
func (r *projectRepository) GetByOwnerID(ownerID uint) ([]models.Project, error) {
	var projects []models.Project
	err := r.db.Where("owner_id = ?", ownerID).Order("created_at DESC").Find(&projects).Error
	return projects, err
}

// ListByTierID retrieves all projects currently on a tier. Used by the
// auto-downgrade sweep and the out-of-sync report.
func (r *projectRepository) ListByTierID(tierID string) ([]models.Project, error) {
	var projects []models.Project
	err := r.db.Where("subscription_tier_id = ?", tierID).Order("id ASC").Find(&projects).Error
	return projects, err
}

// GetByIDMatchingRoles loads a project only when the user holds one of the
// requested roles on it. The clauses are OR'd: owner match, legacy
// collaborator match (user linked, no role stored), and per-name collaborator
// matches. System-admin short-circuiting happens in the access controller
// before this query is built.
func (r *projectRepository) GetByIDMatchingRoles(projectID uint, userID uint, ownerClause bool, defaultRoleClause bool, roleNames []string) (*models.Project, error) {
	var conditions []string
	var args []interface{}

	if ownerClause {
		conditions = append(conditions, "owner_id = ?")
		args = append(args, userID)
	}
	if defaultRoleClause {
		conditions = append(conditions,
			"EXISTS (SELECT 1 FROM collaborators c WHERE c.project_id = projects.id AND c.user_id = ? AND (c.role IS NULL OR c.role = ''))")
		args = append(args, userID)
	}
	for _, name := range roleNames {
		conditions = append(conditions,
			"EXISTS (SELECT 1 FROM collaborators c WHERE c.project_id = projects.id AND c.user_id = ? AND c.role = ?)")
		args = append(args, userID, name)
	}
	if len(conditions) == 0 {
		return nil, gorm.ErrRecordNotFound
	}

	var project models.Project
	err := r.preloadAll().
		Where("projects.id = ?", projectID).
		Where("("+strings.Join(conditions, " OR ")+")", args...).
		First(&project).Error
	if err != nil {
		return nil, err
	}
	return &project, nil
}

// Update saves a project aggregate
func (r *projectRepository) Update(project *models.Project) error {
	return r.db.Save(project).Error
}

// Delete soft deletes a project by its ID
func (r *projectRepository) Delete(id uint) error {
	return r.db.Delete(&models.Project{}, id).Error
}

// Count returns the total number of projects
func (r *projectRepository) Count() (int64, error) {
	var count int64
	err := r.db.Model(&models.Project{}).Count(&count).Error
	return count, err
}

// UpdateSubscriptionFields applies an atomic partial update to the embedded
// subscription columns.
func (r *projectRepository) UpdateSubscriptionFields(projectID uint, fields map[string]interface{}) error {
	if len(fields) == 0 {
		return nil
	}
	return r.db.Model(&models.Project{}).Where("id = ?", projectID).Updates(fields).Error
}

// AppendPastTier records a tier in the project's history with set semantics:
// the unique index plus DO NOTHING makes re-adding a visited tier a no-op.
func (r *projectRepository) AppendPastTier(projectID uint, tierID string) error {
	if tierID == "" {
		return nil
	}
	entry := models.ProjectPastTier{ProjectID: projectID, TierID: tierID}
	return r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "project_id"},
			{Name: "tier_id"},
		},
		DoNothing: true,
	}).Create(&entry).Error
}

// ListCollaborators returns the project's collaborator entries in insertion
// order, read fresh from the store.
func (r *projectRepository) ListCollaborators(projectID uint) ([]models.Collaborator, error) {
	var collabs []models.Collaborator
	err := r.db.Where("project_id = ?", projectID).Order("id ASC").Find(&collabs).Error
	return collabs, err
}

// AddCollaboratorIfAbsent appends a collaborator entry unless an identical
// pending invitation already exists. Returns true when a row was created.
func (r *projectRepository) AddCollaboratorIfAbsent(collab *models.Collaborator) (bool, error) {
	var count int64
	err := r.db.Model(&models.Collaborator{}).
		Where("project_id = ? AND invite_token = ? AND invite_email = ?",
			collab.ProjectID, collab.InviteToken, collab.InviteEmail).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	if count > 0 {
		return false, nil
	}
	if err := r.db.Create(collab).Error; err != nil {
		return false, err
	}
	return true, nil
}

// ConsumeInviteToken links a pending invitation to a user in one conditional
// update keyed on the token, so a token can never be consumed twice. Returns
// false when no pending row matched.
func (r *projectRepository) ConsumeInviteToken(projectID uint, token string, userID uint) (bool, error) {
	res := r.db.Model(&models.Collaborator{}).
		Where("project_id = ? AND invite_token = ? AND invite_token <> '' AND user_id IS NULL", projectID, token).
		Updates(map[string]interface{}{
			"user_id":      userID,
			"invite_token": "",
			"invite_email": "",
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// UpdateCollaboratorRole sets the role of a collaborator entry.
func (r *projectRepository) UpdateCollaboratorRole(projectID uint, collabID string, role string) error {
	return r.db.Model(&models.Collaborator{}).
		Where("project_id = ? AND collab_id = ?", projectID, collabID).
		Update("role", role).Error
}

// RemoveCollaborator deletes a collaborator entry by its per-entry id.
func (r *projectRepository) RemoveCollaborator(projectID uint, collabID string) error {
	return r.db.Where("project_id = ? AND collab_id = ?", projectID, collabID).
		Delete(&models.Collaborator{}).Error
}

// DemoteCollaboratorsByRoles sets every collaborator holding one of the
// given roles to unlicensed in a single pass. Idempotent: already demoted
// entries no longer match the filter.
func (r *projectRepository) DemoteCollaboratorsByRoles(projectID uint, roleNames []string) (int64, error) {
	if len(roleNames) == 0 {
		return 0, nil
	}
	res := r.db.Model(&models.Collaborator{}).
		Where("project_id = ? AND role IN ?", projectID, roleNames).
		Update("role", roles.Unlicensed)
	return res.RowsAffected, res.Error
}

// DemoteCollaboratorsByIDs sets the given collaborator rows to unlicensed.
func (r *projectRepository) DemoteCollaboratorsByIDs(projectID uint, ids []uint) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := r.db.Model(&models.Collaborator{}).
		Where("project_id = ? AND id IN ?", projectID, ids).
		Update("role", roles.Unlicensed)
	return res.RowsAffected, res.Error
}

// UpsertCollaboratorNotification inserts or replaces the notification state
// for one (collaborator, type) pair.
func (r *projectRepository) UpsertCollaboratorNotification(n *models.CollaboratorNotification) error {
	return r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "collaborator_id"},
			{Name: "type"},
		},
		DoUpdates: clause.AssignmentColumns([]string{
			"last_sent_at",
			"subscribed",
			"updated_at",
		}),
	}).Create(n).Error
}

// CountEnvironments counts the project's named environments.
func (r *projectRepository) CountEnvironments(projectID uint) (int64, error) {
	var count int64
	err := r.db.Model(&models.ProjectEnvironment{}).Where("project_id = ?", projectID).Count(&count).Error
	return count, err
}

// AddEnvironmentIfAbsent creates an environment row unless the name already
// exists for the project. Returns true when a row was created.
func (r *projectRepository) AddEnvironmentIfAbsent(env *models.ProjectEnvironment) (bool, error) {
	tx := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "project_id"},
			{Name: "name"},
		},
		DoNothing: true,
	}).Create(env)
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}

// RemoveEnvironment deletes an environment row by name.
func (r *projectRepository) RemoveEnvironment(projectID uint, name string) error {
	return r.db.Where("project_id = ? AND name = ?", projectID, name).
		Delete(&models.ProjectEnvironment{}).Error
}

// GetActiveSplitTest returns the provisioned split test of a project, if any.
func (r *projectRepository) GetActiveSplitTest(projectID uint) (*models.SplitTest, error) {
	var st models.SplitTest
	err := r.db.Where("project_id = ? AND status = ?", projectID, models.SplitTestStatusProvisioned).
		First(&st).Error
	if err != nil {
		return nil, err
	}
	return &st, nil
}

// GetSplitTestByEnvironmentName returns the split test whose variant list is
// exactly the single given environment. Multi-variant tests are not matched;
// clients depend on this historical behavior.
func (r *projectRepository) GetSplitTestByEnvironmentName(projectID uint, name string) (*models.SplitTest, error) {
	var tests []models.SplitTest
	if err := r.db.Where("project_id = ?", projectID).Find(&tests).Error; err != nil {
		return nil, err
	}
	for i := range tests {
		if tests[i].MatchesEnvironmentName(name) {
			return &tests[i], nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

// UpdateSplitTestStatus sets a split test's status.
func (r *projectRepository) UpdateSplitTestStatus(splitTestID uint, status string) error {
	return r.db.Model(&models.SplitTest{}).Where("id = ?", splitTestID).
		Update("status", status).Error
}
