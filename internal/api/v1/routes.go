package apiv1

import (
	"github.com/gofiber/fiber/v2"

	"github.com/siteforge-io/siteforge/app/controllers"
	"github.com/siteforge-io/siteforge/internal/pkg/middleware"
)

// RegisterHandlers attaches all v1 routes to the given router group.
// Everything except ping and tier catalog reads requires a session.
func RegisterHandlers(router fiber.Router, s *APIServer) {
	router.Get("/ping", s.GetPing)

	// Tier catalog is public so pricing pages can render without a login.
	router.Get("/tiers", controllers.HandleListTiers)
	router.Get("/tiers/:tierId/hooks", controllers.HandleGetTierHooks)

	// Account
	router.Get("/users/me", middleware.RequireAPISessionAuth, controllers.HandleGetUserAccount)
	router.Patch("/users/me", middleware.RequireAPISessionAuth, controllers.HandleUpdateUserAccount)

	// Projects
	projects := router.Group("/projects", middleware.RequireAPISessionAuth)
	projects.Post("/", controllers.HandleCreateProject)
	projects.Get("/", controllers.HandleListProjects)
	projects.Get("/:id", controllers.HandleGetProject)
	projects.Patch("/:id", controllers.HandleUpdateProject)
	projects.Delete("/:id", controllers.HandleDeleteProject)

	// Environments
	projects.Post("/:id/environments", controllers.HandleAddEnvironment)
	projects.Delete("/:id/environments/:name", controllers.HandleRemoveEnvironment)

	// Allowance checks
	projects.Get("/:id/allowance", controllers.HandleCheckAllowance)

	// Collaborators
	projects.Get("/:id/collaborators", controllers.HandleListCollaborators)
	projects.Post("/:id/collaborators", controllers.HandleInviteCollaborator)
	projects.Post("/:id/collaborators/accept", controllers.HandleAcceptInvite)
	projects.Patch("/:id/collaborators/:collabId", controllers.HandleUpdateCollaborator)
	projects.Delete("/:id/collaborators/:collabId", controllers.HandleRemoveCollaborator)

	// Subscription lifecycle
	projects.Get("/:id/subscription", controllers.HandleGetSubscription)
	projects.Put("/:id/subscription", controllers.HandleStartSubscription)
	projects.Patch("/:id/subscription", controllers.HandleUpdateSubscription)
	projects.Post("/:id/subscription/cancel", controllers.HandleCancelSubscription)
	projects.Post("/:id/subscription/trial", controllers.HandleStartTrial)
	projects.Get("/:id/subscription/trials", controllers.HandleListTrials)
	projects.Post("/:id/subscription/unset-flag", controllers.HandleUnsetSubscriptionFlag)
}
