package controllers

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/siteforge-io/siteforge/app/models"
	"github.com/siteforge-io/siteforge/app/repository"
	"github.com/siteforge-io/siteforge/internal/pkg/access"
	"github.com/siteforge-io/siteforge/internal/pkg/roles"
	"github.com/siteforge-io/siteforge/internal/pkg/tier"
	"github.com/siteforge-io/siteforge/internal/pkg/usercontext"
)

type createProjectRequest struct {
	Name             string `json:"name"`
	ThemeID          string `json:"theme_id"`
	SSG              string `json:"ssg"`
	CMS              string `json:"cms"`
	CMSTitle         string `json:"cms_title"`
	RepoURL          string `json:"repo_url"`
	DeploymentTarget string `json:"deployment_target"`
}

type updateProjectRequest struct {
	Name             *string `json:"name"`
	ThemeID          *string `json:"theme_id"`
	RepoURL          *string `json:"repo_url"`
	DeploymentTarget *string `json:"deployment_target"`
	SiteURL          *string `json:"site_url"`
}

// roleNamesWith returns the collaborator role names granting the permission,
// plus the system roles so support staff can go through the same code path.
func roleNamesWith(perm string) []string {
	var names []string
	for _, r := range roles.ListByPermission(perm) {
		names = append(names, r.Name)
	}
	return names
}

// HandleCreateProject creates a project owned by the current user
func HandleCreateProject(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil || user == nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Login required"})
	}

	if settings := models.GetAppSettings(); settings != nil && !settings.IsProjectCreationEnabled() {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "forbidden", "message": "Project creation is currently disabled"})
	}

	var req createProjectRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid request body"})
	}

	tierID := user.DefaultTierID
	if tier.Get(tierID) == nil {
		tierID = tier.DefaultTierID
	}

	project := &models.Project{
		UUID:             uuid.NewString(),
		OwnerID:          user.ID,
		Name:             strings.TrimSpace(req.Name),
		ThemeID:          req.ThemeID,
		SSG:              req.SSG,
		CMS:              req.CMS,
		CMSTitle:         req.CMSTitle,
		RepoURL:          req.RepoURL,
		DeploymentTarget: req.DeploymentTarget,
		Subscription:     models.Subscription{TierID: tierID},
	}
	if err := project.Validate(); err != nil {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": "invalid_state", "message": err.Error()})
	}

	if err := repository.GetGlobalRepositories().Project.Create(project); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to create project"})
	}

	return c.Status(fiber.StatusCreated).JSON(project)
}

// HandleListProjects returns the projects owned by the current user
func HandleListProjects(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Login required"})
	}

	projects, err := repository.GetGlobalRepositories().Project.GetByOwnerID(userCtx.UserID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load projects"})
	}

	return c.JSON(fiber.Map{"projects": projects, "count": len(projects)})
}

// HandleGetProject returns one project if the current user has any access to it
func HandleGetProject(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil || user == nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Login required"})
	}
	projectID, err := c.ParamsInt("id")
	if err != nil || projectID <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid project id"})
	}

	project, err := accessController().FindProjectByIDAndUserRoles(uint(projectID), user, roleNamesWith(roles.PermBasicAccess))
	if err != nil {
		return respondAppError(c, err)
	}

	role := access.GetCollaboratorRole(project, user)
	return c.JSON(fiber.Map{
		"project": project,
		"role":    role.Name,
	})
}

// HandleUpdateProject updates mutable project fields
func HandleUpdateProject(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil || user == nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Login required"})
	}
	projectID, err := c.ParamsInt("id")
	if err != nil || projectID <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid project id"})
	}

	var req updateProjectRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid request body"})
	}

	project, err := accessController().FindProjectByIDAndUserRoles(uint(projectID), user, roleNamesWith(roles.PermManageProject))
	if err != nil {
		return respondAppError(c, err)
	}

	if req.Name != nil {
		project.Name = strings.TrimSpace(*req.Name)
	}
	if req.ThemeID != nil {
		project.ThemeID = *req.ThemeID
	}
	if req.RepoURL != nil {
		project.RepoURL = *req.RepoURL
	}
	if req.DeploymentTarget != nil {
		project.DeploymentTarget = *req.DeploymentTarget
	}
	if req.SiteURL != nil {
		project.SiteURL = *req.SiteURL
	}
	if err := project.Validate(); err != nil {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": "invalid_state", "message": err.Error()})
	}

	if err := repository.GetGlobalRepositories().Project.Update(project); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to update project"})
	}

	return c.JSON(project)
}

// HandleDeleteProject soft-deletes a project. Owner only (or system admin).
func HandleDeleteProject(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil || user == nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Login required"})
	}
	projectID, err := c.ParamsInt("id")
	if err != nil || projectID <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid project id"})
	}

	project, err := accessController().FindProjectByIDAndUserRoles(uint(projectID), user, []string{roles.Owner, roles.SiteForgeAdmin})
	if err != nil {
		return respondAppError(c, err)
	}

	if err := repository.GetGlobalRepositories().Project.Delete(project.ID); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to delete project"})
	}

	return c.JSON(fiber.Map{"status": "deleted"})
}

type environmentRequest struct {
	Name string `json:"name"`
}

// HandleAddEnvironment creates a named environment, subject to the tier's
// environment limit.
func HandleAddEnvironment(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil || user == nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Login required"})
	}
	projectID, err := c.ParamsInt("id")
	if err != nil || projectID <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid project id"})
	}

	var req environmentRequest
	if err := c.BodyParser(&req); err != nil || strings.TrimSpace(req.Name) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Environment name is required"})
	}
	name := strings.TrimSpace(req.Name)

	project, err := accessController().FindProjectByIDAndUserRoles(uint(projectID), user, roleNamesWith(roles.PermManageProject))
	if err != nil {
		return respondAppError(c, err)
	}

	if !access.CheckTierAllowanceForFeature(project, tier.FeatureEnvironments, access.AllowanceOptions{RequiredAmount: 1}) {
		return c.Status(fiber.StatusPaymentRequired).JSON(fiber.Map{
			"error":   "tier_exceeded",
			"message": "The current tier does not allow more environments",
			"details": fiber.Map{"feature": tier.FeatureEnvironments},
		})
	}

	created, err := repository.GetGlobalRepositories().Project.AddEnvironmentIfAbsent(&models.ProjectEnvironment{
		ProjectID: project.ID,
		Name:      name,
	})
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to add environment"})
	}

	status := fiber.StatusOK
	if created {
		status = fiber.StatusCreated
	}
	return c.Status(status).JSON(fiber.Map{"name": name, "created": created})
}

// HandleRemoveEnvironment deletes a named environment
func HandleRemoveEnvironment(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil || user == nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Login required"})
	}
	projectID, err := c.ParamsInt("id")
	if err != nil || projectID <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid project id"})
	}
	name := c.Params("name")

	project, err := accessController().FindProjectByIDAndUserRoles(uint(projectID), user, roleNamesWith(roles.PermManageProject))
	if err != nil {
		return respondAppError(c, err)
	}

	// A provisioned split test pinned to exactly this environment blocks
	// removal; the test must be stopped first.
	if st, err := repository.GetGlobalRepositories().Project.GetSplitTestByEnvironmentName(project.ID, name); err == nil && st.Status == models.SplitTestStatusProvisioned {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"error":   "invalid_state",
			"message": "Environment is in use by an active split test",
			"details": fiber.Map{"split_test": st.Name},
		})
	}

	if err := repository.GetGlobalRepositories().Project.RemoveEnvironment(project.ID, name); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to remove environment"})
	}

	return c.JSON(fiber.Map{"status": "removed"})
}

// HandleCheckAllowance reports whether the project's tier allows a feature
func HandleCheckAllowance(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil || user == nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Login required"})
	}
	projectID, err := c.ParamsInt("id")
	if err != nil || projectID <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid project id"})
	}
	feature := c.Query("feature")
	if feature == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Missing feature parameter"})
	}

	project, err := accessController().FindProjectByIDAndUserRoles(uint(projectID), user, roleNamesWith(roles.PermBasicAccess))
	if err != nil {
		return respondAppError(c, err)
	}

	opts := access.AllowanceOptions{
		RequiredAmount: c.QueryInt("required_amount", access.DefaultRequiredAmount),
		Role:           c.Query("role"),
	}

	return c.JSON(fiber.Map{
		"feature": feature,
		"allowed": access.CheckTierAllowanceForFeature(project, feature, opts),
	})
}
