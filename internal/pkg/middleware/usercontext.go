package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/siteforge-io/siteforge/app/repository"
	"github.com/siteforge-io/siteforge/internal/pkg/session"
	"github.com/siteforge-io/siteforge/internal/pkg/usercontext"
)

// UserContextMiddleware sets up the complete user context for every request
// This centralizes user session handling and eliminates code duplication
func UserContextMiddleware(c *fiber.Ctx) error {
	// Avoid interfering with Goth/Fiber session handling on OAuth routes.
	// Goth uses its own fiber session store and relies on per-request locals.
	// We skip our app session on /auth/* to prevent cross-store collisions.
	if strings.HasPrefix(c.Path(), "/auth/") {
		return c.Next()
	}
	// Get session with error handling
	sess, err := session.GetSessionStore().Get(c)
	if err != nil {
		return setAnonymousContext(c)
	}

	// Get user ID from session
	userID := sess.Get(usercontext.KeyUserID)
	if userID == nil {
		return setAnonymousContext(c)
	}

	// User is logged in - get additional data
	username := session.GetSessionValue(c, usercontext.KeyUsername)

	// Determine system roles with session-first strategy
	systemRoles := session.GetSessionValue(c, usercontext.KeySystemRoles)
	if systemRoles == "" {
		if repos := repository.GetGlobalRepositories(); repos != nil {
			if user, err := repos.User.GetByID(userID.(uint)); err == nil {
				systemRoles = user.SystemRoles
			}
		}
		if systemRoles == "" {
			systemRoles = "-" // sentinel so we don't hit the DB on every request
		}
		// cache in session for subsequent requests
		_ = session.SetSessionValue(c, usercontext.KeySystemRoles, systemRoles)
	}

	isAdmin := hasRole(systemRoles, "admin")
	isSupportAdmin := hasRole(systemRoles, "support_admin")

	// Set complete user context
	userCtx := usercontext.UserContext{
		UserID:         userID.(uint),
		Username:       username,
		IsLoggedIn:     true,
		IsAdmin:        isAdmin,
		IsSupportAdmin: isSupportAdmin,
	}
	c.Locals("USER_CONTEXT", userCtx)

	c.Locals(usercontext.KeyFromProtected, true)
	c.Locals(usercontext.KeyUsername, username)
	c.Locals(usercontext.KeyUserID, userID.(uint))
	c.Locals(usercontext.KeyIsAdmin, isAdmin)

	return c.Next()
}

func setAnonymousContext(c *fiber.Ctx) error {
	c.Locals("USER_CONTEXT", usercontext.UserContext{
		IsLoggedIn: false,
		IsAdmin:    false,
	})
	c.Locals(usercontext.KeyFromProtected, false)
	c.Locals(usercontext.KeyIsAdmin, false)
	return c.Next()
}

func hasRole(roles string, role string) bool {
	for _, r := range strings.Split(roles, ",") {
		if strings.TrimSpace(r) == role {
			return true
		}
	}
	return false
}
