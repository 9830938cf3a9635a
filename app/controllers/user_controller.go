package controllers

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/siteforge-io/siteforge/app/repository"
	"github.com/siteforge-io/siteforge/internal/pkg/utils"
)

// HandleGetUserAccount returns account information for the authenticated user
func HandleGetUserAccount(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil || user == nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Missing or invalid authentication"})
	}

	repo := repository.GetGlobalRepositories().User
	stats, err := repo.GetStatsByUserID(user.ID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load statistics"})
	}

	avatar := user.AvatarURL
	if avatar == "" {
		avatar = utils.GetGravatarURL(user.Email, 80)
	}

	return c.JSON(fiber.Map{
		"id":            user.ID,
		"name":          user.Name,
		"email":         user.Email,
		"status":        user.Status,
		"is_admin":      user.IsAdmin(),
		"system_roles":  user.SystemRoleList(),
		"avatar_url":    avatar,
		"created_at":    user.CreatedAt.UTC().Format(time.RFC3339),
		"last_login_at": formatTimePtr(user.LastLoginAt),
		"stats": fiber.Map{
			"projects":       stats.ProjectCount,
			"collaborations": stats.CollaborationCount,
		},
	})
}

type updateAccountRequest struct {
	Name          *string `json:"name"`
	DefaultTierID *string `json:"default_tier_id"`
}

// HandleUpdateUserAccount updates mutable account fields
func HandleUpdateUserAccount(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil || user == nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Missing or invalid authentication"})
	}

	var req updateAccountRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid request body"})
	}

	if req.Name != nil {
		user.Name = *req.Name
	}
	// Setting the default tier for new projects is restricted to admins
	if req.DefaultTierID != nil {
		if !user.IsAdmin() {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "forbidden", "message": "Only admins may change the default tier"})
		}
		user.DefaultTierID = *req.DefaultTierID
	}
	if err := user.Validate(); err != nil {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": "invalid_state", "message": err.Error()})
	}

	if err := repository.GetGlobalRepositories().User.Update(user); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to update account"})
	}

	return c.JSON(fiber.Map{"id": user.ID, "name": user.Name})
}
