package controllers

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/siteforge-io/siteforge/app/models"
	"github.com/siteforge-io/siteforge/app/repository"
	"github.com/siteforge-io/siteforge/internal/pkg/billing"
	"github.com/siteforge-io/siteforge/internal/pkg/database"
	"github.com/siteforge-io/siteforge/internal/pkg/entitlement"
	"github.com/siteforge-io/siteforge/internal/pkg/env"
	"github.com/siteforge-io/siteforge/internal/pkg/jobqueue"
	"github.com/siteforge-io/siteforge/internal/pkg/roles"
	"github.com/siteforge-io/siteforge/internal/pkg/tier"
)

type startSubscriptionRequest struct {
	TierID     string `json:"tier_id"`
	ExternalID string `json:"external_id"`
}

type cancelSubscriptionRequest struct {
	Immediate bool `json:"immediate"`
}

type updateSubscriptionRequest struct {
	TierID                   *string    `json:"tier_id"`
	EndOfBillingCycle        *time.Time `json:"end_of_billing_cycle"`
	ClearEndOfBillingCycle   bool       `json:"clear_end_of_billing_cycle"`
	ScheduledForCancellation *bool      `json:"scheduled_for_cancellation"`
	ExternalID               *string    `json:"external_id"`
}

type startTrialRequest struct {
	TierID string `json:"tier_id"`
}

type unsetFlagRequest struct {
	Flag string `json:"flag"`
}

// subscriptionRoles are the collaborator roles allowed to manage the
// subscription, plus the system roles.
func subscriptionRoles() []string {
	return roleNamesWith(roles.PermManageSubscription)
}

// findSubscriptionProject authorizes the request and loads the project
func findSubscriptionProject(c *fiber.Ctx) (*models.Project, error) {
	user, err := currentUser(c)
	if err != nil || user == nil {
		return nil, c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Login required"})
	}
	projectID, err := c.ParamsInt("id")
	if err != nil || projectID <= 0 {
		return nil, c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid project id"})
	}

	project, err := accessController().FindProjectByIDAndUserRoles(uint(projectID), user, subscriptionRoles())
	if err != nil {
		return nil, respondAppError(c, err)
	}
	return project, nil
}

// HandleGetSubscription returns the project's subscription state
func HandleGetSubscription(c *fiber.Ctx) error {
	project, errResp := findSubscriptionProject(c)
	if project == nil {
		return errResp
	}

	features, _ := project.Subscription.AvailableFeatures()
	envCount, err := repository.GetGlobalRepositories().Project.CountEnvironments(project.ID)
	if err != nil {
		envCount = int64(len(project.Environments))
	}
	return c.JSON(fiber.Map{
		"subscription": project.Subscription,
		"ended":        entitlement.IsSubscriptionEnded(project, time.Now()),
		"features":     features,
		"past_tiers":   project.PastTierIDs(),
		"usage": fiber.Map{
			"environments":  envCount,
			"collaborators": len(project.Collaborators),
		},
	})
}

// HandleStartSubscription activates a paid tier for the project
func HandleStartSubscription(c *fiber.Ctx) error {
	project, errResp := findSubscriptionProject(c)
	if project == nil {
		return errResp
	}

	var req startSubscriptionRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid request body"})
	}

	updated, err := entitlementService().StartSubscription(project.ID, req.ExternalID, req.TierID)
	if err != nil {
		return respondAppError(c, err)
	}
	return c.JSON(fiber.Map{"subscription": updated.Subscription})
}

// HandleCancelSubscription schedules or executes a cancellation. Immediate
// cancellations also queue an archive export of the project.
func HandleCancelSubscription(c *fiber.Ctx) error {
	project, errResp := findSubscriptionProject(c)
	if project == nil {
		return errResp
	}

	var req cancelSubscriptionRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid request body"})
	}

	updated, err := entitlementService().CancelSubscription(project.ID, entitlement.CancelOptions{
		Immediate: req.Immediate,
	})
	if err != nil {
		return respondAppError(c, err)
	}

	if req.Immediate {
		if _, err := jobqueue.GetManager().GetQueue().EnqueueProjectExport(project.ID, jobqueue.ExportTriggerCancellation); err != nil {
			// The cancellation already happened; the export can be retried later
			return c.JSON(fiber.Map{"subscription": updated.Subscription, "export_queued": false})
		}
		return c.JSON(fiber.Map{"subscription": updated.Subscription, "export_queued": true})
	}

	return c.JSON(fiber.Map{"subscription": updated.Subscription})
}

// HandleUpdateSubscription patches subscription fields
func HandleUpdateSubscription(c *fiber.Ctx) error {
	project, errResp := findSubscriptionProject(c)
	if project == nil {
		return errResp
	}

	var req updateSubscriptionRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid request body"})
	}

	updated, err := entitlementService().UpdateSubscription(project.ID, entitlement.SubscriptionPatch{
		TierID:                   req.TierID,
		EndOfBillingCycle:        req.EndOfBillingCycle,
		ClearEndOfBillingCycle:   req.ClearEndOfBillingCycle,
		ScheduledForCancellation: req.ScheduledForCancellation,
		ExternalID:               req.ExternalID,
	})
	if err != nil {
		return respondAppError(c, err)
	}
	return c.JSON(fiber.Map{"subscription": updated.Subscription})
}

// HandleStartTrial begins a trial tier for the project
func HandleStartTrial(c *fiber.Ctx) error {
	project, errResp := findSubscriptionProject(c)
	if project == nil {
		return errResp
	}

	var req startTrialRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid request body"})
	}

	if !tier.IsEligibleForTrial(req.TierID, project.Subscription.SafeTierID(), project.PastTierIDs()) {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"error":   "invalid_state",
			"message": "The project is not eligible for this trial",
		})
	}

	updated, err := entitlementService().StartTrial(project.ID, req.TierID, true)
	if err != nil {
		return respondAppError(c, err)
	}
	return c.JSON(fiber.Map{"subscription": updated.Subscription})
}

// HandleListTrials lists all trial tiers with the project's eligibility
func HandleListTrials(c *fiber.Ctx) error {
	project, errResp := findSubscriptionProject(c)
	if project == nil {
		return errResp
	}

	trials := tier.ListTrialsWithEligibility(project.Subscription.SafeTierID(), project.PastTierIDs())
	return c.JSON(fiber.Map{"trials": trials})
}

// HandleUnsetSubscriptionFlag clears one of the recent-transition flags
func HandleUnsetSubscriptionFlag(c *fiber.Ctx) error {
	project, errResp := findSubscriptionProject(c)
	if project == nil {
		return errResp
	}

	var req unsetFlagRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid request body"})
	}

	updated, err := entitlementService().UnsetNotificationFlag(project.ID, req.Flag)
	if err != nil {
		return respondAppError(c, err)
	}
	return c.JSON(fiber.Map{"subscription": updated.Subscription})
}

// HandleListTiers returns the public tier catalog
func HandleListTiers(c *fiber.Ctx) error {
	type tierView struct {
		ID           string          `json:"id"`
		Name         string          `json:"name"`
		IsFree       bool            `json:"is_free"`
		IsTrial      bool            `json:"is_trial"`
		TrialDays    int             `json:"trial_days,omitempty"`
		DowngradesTo string          `json:"downgrades_to,omitempty"`
		Features     tier.FeatureMap `json:"features"`
	}

	all := tier.All()
	views := make([]tierView, 0, len(all))
	for _, t := range all {
		views = append(views, tierView{
			ID:           t.ID,
			Name:         t.Name,
			IsFree:       t.IsFree,
			IsTrial:      t.IsTrial,
			TrialDays:    t.TrialDays,
			DowngradesTo: t.DowngradesTo,
			Features:     t.Features,
		})
	}
	return c.JSON(fiber.Map{"tiers": views})
}

// HandleGetTierHooks returns the upgrade/trial hooks for a tier
func HandleGetTierHooks(c *fiber.Ctx) error {
	tierID := c.Params("tierId")
	if tier.Get(tierID) == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "Unknown tier"})
	}
	return c.JSON(fiber.Map{"hooks": tier.ResolveTierHooks(tierID)})
}

// HandleBillingWebhook ingests subscription events from the billing provider
func HandleBillingWebhook(c *fiber.Ctx) error {
	secret := env.GetEnv("BILLING_WEBHOOK_SECRET", "")
	svc := billing.NewServiceFromDB(database.GetDB(), secret)

	project, err := svc.HandleWebhook(c.UserContext(), c.Body(), c.Get("X-Webhook-Signature"))
	if err != nil {
		return respondAppError(c, err)
	}
	return c.JSON(fiber.Map{"status": "applied", "subscription": project.Subscription})
}
