package controllers

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/siteforge-io/siteforge/internal/pkg/access"
	"github.com/siteforge-io/siteforge/internal/pkg/roles"
)

type inviteCollaboratorRequest struct {
	InviteToken string `json:"invite_token"`
	InviteEmail string `json:"invite_email"`
	Role        string `json:"role"`
}

type updateCollaboratorRequest struct {
	Role string `json:"role"`
}

// HandleListCollaborators returns a project's collaborator records
func HandleListCollaborators(c *fiber.Ctx) error {
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

	return c.JSON(fiber.Map{"collaborators": project.Collaborators})
}

// HandleInviteCollaborator adds a pending collaborator and sends the
// invitation email.
func HandleInviteCollaborator(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil || user == nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Login required"})
	}
	projectID, err := c.ParamsInt("id")
	if err != nil || projectID <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid project id"})
	}

	var req inviteCollaboratorRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid request body"})
	}

	token := strings.TrimSpace(req.InviteToken)
	if token == "" {
		token = uuid.NewString()
	}

	project, err := accessController().AddInvitedCollaborator(uint(projectID), user, access.InviteInput{
		InviteToken: token,
		InviteEmail: strings.TrimSpace(req.InviteEmail),
		Role:        req.Role,
	})
	if err != nil {
		return respondAppError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"collaborators": project.Collaborators})
}

// HandleAcceptInvite redeems an invite token for the current user
func HandleAcceptInvite(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil || user == nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Login required"})
	}
	token := c.Params("token")
	if token == "" {
		token = c.Query("token")
	}
	if token == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Missing invite token"})
	}

	project, err := accessController().AcceptInvite(token, user)
	if err != nil {
		return respondAppError(c, err)
	}

	role := access.GetCollaboratorRole(project, user)
	return c.JSON(fiber.Map{
		"project": project,
		"role":    role.Name,
	})
}

// HandleUpdateCollaborator changes a collaborator's role
func HandleUpdateCollaborator(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil || user == nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Login required"})
	}
	projectID, err := c.ParamsInt("id")
	if err != nil || projectID <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid project id"})
	}
	collabID := c.Params("collabId")

	var req updateCollaboratorRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid request body"})
	}

	// Managing collaborators requires the corresponding permission
	if _, err := accessController().FindProjectByIDAndUserRoles(uint(projectID), user, roleNamesWith(roles.PermManageCollaborators)); err != nil {
		return respondAppError(c, err)
	}

	project, err := accessController().UpdateCollaboratorByID(uint(projectID), collabID, req.Role)
	if err != nil {
		return respondAppError(c, err)
	}

	return c.JSON(fiber.Map{"collaborators": project.Collaborators})
}

// HandleRemoveCollaborator deletes a collaborator record
func HandleRemoveCollaborator(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil || user == nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Login required"})
	}
	projectID, err := c.ParamsInt("id")
	if err != nil || projectID <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid project id"})
	}
	collabID := c.Params("collabId")

	if _, err := accessController().FindProjectByIDAndUserRoles(uint(projectID), user, roleNamesWith(roles.PermManageCollaborators)); err != nil {
		return respondAppError(c, err)
	}

	project, err := accessController().RemoveCollaboratorByID(uint(projectID), collabID)
	if err != nil {
		return respondAppError(c, err)
	}

	return c.JSON(fiber.Map{"collaborators": project.Collaborators})
}
