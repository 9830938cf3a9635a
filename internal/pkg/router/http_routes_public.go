package router

import (
	"github.com/gofiber/fiber/v2"
	gothfiber "github.com/shareed2k/goth_fiber"

	"github.com/siteforge-io/siteforge/app/controllers"
	"github.com/siteforge-io/siteforge/internal/pkg/constants"
	"github.com/siteforge-io/siteforge/internal/pkg/middleware"
)

func (h HttpRouter) registerPublicRoutes(app *fiber.App) {
	// Auth
	app.Post("/register", loggedInMiddleware, controllers.HandleAuthRegister)
	app.Get("/activate", loggedInMiddleware, controllers.HandleAuthActivate)
	app.Post("/login", loggedInMiddleware, controllers.HandleAuthLogin)
	app.Post("/logout", middleware.RequireAuth, controllers.HandleAuthLogout)

	// Social OAuth
	app.Get("/auth/:provider", gothfiber.BeginAuthHandler)
	app.Get("/auth/:provider/callback", controllers.HandleOAuthCallback)

	// Invitation links from collaborator emails
	app.Post(constants.InviteRoute+"/:token", middleware.RequireAuth, controllers.HandleAcceptInvite)

	// Billing provider webhooks (signature-verified in controller)
	app.Post(constants.WebhookRoute, controllers.HandleBillingWebhook)
}
