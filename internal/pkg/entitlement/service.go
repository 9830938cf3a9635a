package entitlement

import (
	"errors"
	"log"
	"time"

	"github.com/siteforge-io/siteforge/app/models"
	"github.com/siteforge-io/siteforge/app/repository"
	"github.com/siteforge-io/siteforge/internal/pkg/analytics"
	"github.com/siteforge-io/siteforge/internal/pkg/apperrors"
	"github.com/siteforge-io/siteforge/internal/pkg/mail"
	"github.com/siteforge-io/siteforge/internal/pkg/roles"
	"github.com/siteforge-io/siteforge/internal/pkg/tier"
	"gorm.io/gorm"
)

// Analytics event names emitted by subscription transitions.
const (
	EventSubscriptionPurchased  = "Subscription Purchased"
	EventSubscriptionCanceled   = "Subscription Canceled"
	EventTrialExpired           = "Trial Expired"
	EventSubscriptionsOutOfSync = "Subscriptions Out Of Sync"
)

// One-shot notification flags settable and clearable on a subscription.
const (
	FlagTrialExpiredRecently    = "trialExpiredRecently"
	FlagPaidPlanExpiredRecently = "paidPlanExpiredRecently"
	FlagTrialStartedRecently    = "trialStartedRecently"
)

// SplitTestCleaner tears down a project's provisioned split test when the
// target tier no longer includes A/B testing.
type SplitTestCleaner interface {
	CleanupSplitTest(project *models.Project, owner *models.User) error
}

// Service orchestrates subscription tier transitions for projects: it applies
// the subscription mutation, then runs the tier-change cascade that corrects
// collaborator roles, seat counts and split tests against the new feature set.
type Service struct {
	projects repository.ProjectRepository
	users    repository.UserRepository
	mailer   mail.Mailer
	tracker  analytics.Tracker
	splits   SplitTestCleaner
}

// NewService creates an entitlement service from injected collaborators.
func NewService(
	projects repository.ProjectRepository,
	users repository.UserRepository,
	mailer mail.Mailer,
	tracker analytics.Tracker,
	splits SplitTestCleaner,
) *Service {
	return &Service{
		projects: projects,
		users:    users,
		mailer:   mailer,
		tracker:  tracker,
		splits:   splits,
	}
}

// NewServiceFromDB creates an entitlement service wired to the default
// implementations of all collaborators.
func NewServiceFromDB(db *gorm.DB) *Service {
	repos := repository.NewRepositories(db)
	return NewService(
		repos.Project,
		repos.User,
		mail.NewSMTPPlansMailer(),
		analytics.NewRedisTracker(),
		NewSplitTestStopper(repos.Project),
	)
}

// SplitTestStopper is the default cleanup collaborator: it marks the active
// split test stopped so the deployment layer tears its variants down.
type SplitTestStopper struct {
	projects repository.ProjectRepository
}

// SplitTestStatusStopped is the terminal status set by cleanup.
const SplitTestStatusStopped = "stopped"

// NewSplitTestStopper creates the default split-test cleaner.
func NewSplitTestStopper(projects repository.ProjectRepository) *SplitTestStopper {
	return &SplitTestStopper{projects: projects}
}

// CleanupSplitTest stops the project's provisioned split test. The test is
// re-fetched from the store rather than read off the snapshot, since the
// cascade may run on a project loaded before the test was provisioned.
func (s *SplitTestStopper) CleanupSplitTest(project *models.Project, owner *models.User) error {
	st, err := s.projects.GetActiveSplitTest(project.ID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return err
	}
	return s.projects.UpdateSplitTestStatus(st.ID, SplitTestStatusStopped)
}

// CancelOptions controls cancellation behavior.
type CancelOptions struct {
	// Immediate downgrades the project right away; otherwise the project is
	// only flagged and the scheduled sweep performs the downgrade at cycle end.
	Immediate bool
	// SuppressEmail skips the cancellation email sent by the scheduled path
	// (used when the cancellation originates from a payment-provider webhook
	// that sends its own). Immediate cancellation sends no cancellation
	// email at all, so the flag has no effect there.
	SuppressEmail bool
}

// CancelSubscription cancels a project's subscription. Immediate cancellation
// downgrades to the tier's downgrade target (falling back to the owner's
// default tier) and runs the cascade; when no target is resolvable the
// project is returned unchanged. Scheduled cancellation only flags the
// subscription and does not change the tier.
func (s *Service) CancelSubscription(projectID uint, opts CancelOptions) (*models.Project, error) {
	project, err := s.getProject(projectID)
	if err != nil {
		return nil, err
	}

	if !opts.Immediate {
		return s.cancelScheduled(project, opts.SuppressEmail)
	}
	return s.cancelImmediate(project)
}

func (s *Service) cancelScheduled(project *models.Project, suppressEmail bool) (*models.Project, error) {
	prevTier := project.Subscription.SafeTierID()

	err := s.projects.UpdateSubscriptionFields(project.ID, map[string]interface{}{
		repository.ColSubscriptionScheduledForCancellation: true,
	})
	if err != nil {
		return nil, err
	}

	owner := s.lookupOwner(project)
	s.trackCancelEvent(project, owner, prevTier, true)
	if !suppressEmail {
		s.mailer.SendPlansEmail(project, owner, prevTier, mail.PlansEventCancelled)
	}

	return s.getProject(project.ID)
}

// cancelImmediate downgrades the project right away on the user's (or a
// billing webhook's) behalf. The paid cancellation is tracked and no email
// is sent, the downgrade being the user's own doing.
func (s *Service) cancelImmediate(project *models.Project) (*models.Project, error) {
	return s.downgradeNow(project, downgradeOptions{trackPaidCancel: true})
}

// expireImmediate downgrades a project whose subscription ran out. The owner
// gets the plan-expired email; no paid-cancellation event is tracked since
// the expiry is not a user action.
func (s *Service) expireImmediate(project *models.Project) (*models.Project, error) {
	return s.downgradeNow(project, downgradeOptions{emailEvent: mail.PlansEventExpired})
}

type downgradeOptions struct {
	emailEvent      string
	trackPaidCancel bool
}

// downgradeNow applies the downgrade and runs the cascade. The email named by
// opts is sent before the cascade.
func (s *Service) downgradeNow(project *models.Project, opts downgradeOptions) (*models.Project, error) {
	prevTier := project.Subscription.SafeTierID()
	wasTrial := project.Subscription.IsTrial()

	target := s.resolveDowngradeTarget(project, prevTier)
	if target == "" {
		return project, nil
	}

	fields := map[string]interface{}{
		repository.ColSubscriptionTierID:                   target,
		repository.ColSubscriptionExternalID:               "",
		repository.ColSubscriptionTrialStartedRecently:     "",
		repository.ColSubscriptionScheduledForCancellation: false,
	}
	if wasTrial {
		fields[repository.ColSubscriptionTrialExpiredRecently] = prevTier
	} else {
		fields[repository.ColSubscriptionPaidPlanExpiredRecently] = prevTier
	}
	if err := s.projects.UpdateSubscriptionFields(project.ID, fields); err != nil {
		return nil, err
	}

	// Owner is looked up before the cascade so the cancellation event carries
	// the pre-cascade actor even if the cascade later fails to resolve one.
	owner := s.lookupOwner(project)
	s.trackCancelEvent(project, owner, prevTier, opts.trackPaidCancel)
	if opts.emailEvent != "" {
		s.mailer.SendPlansEmail(project, owner, prevTier, opts.emailEvent)
	}

	return s.runTierChangeCascade(project.ID, prevTier)
}

func (s *Service) trackCancelEvent(project *models.Project, owner *models.User, prevTier string, trackPaidCancel bool) {
	wasTrial := false
	if t := tier.Get(prevTier); t != nil {
		wasTrial = t.IsTrial
	}
	props := map[string]interface{}{
		"projectId": project.ID,
		"tierId":    prevTier,
	}
	switch {
	case wasTrial:
		s.tracker.Track(EventTrialExpired, ownerID(owner), props)
	case trackPaidCancel:
		s.tracker.Track(EventSubscriptionCanceled, ownerID(owner), props)
	}
}

// resolveDowngradeTarget returns the tier the project falls back to on
// cancellation, or "" when none is resolvable.
func (s *Service) resolveDowngradeTarget(project *models.Project, prevTier string) string {
	if t := tier.Get(prevTier); t != nil && t.DowngradesTo != "" {
		return t.DowngradesTo
	}
	if owner := s.lookupOwner(project); owner != nil && owner.DefaultTierID != "" {
		return owner.DefaultTierID
	}
	return ""
}

// StartSubscription activates a paid subscription on a project and runs the
// cascade.
func (s *Service) StartSubscription(projectID uint, externalID string, tierID string) (*models.Project, error) {
	if tier.Get(tierID) == nil {
		return nil, apperrors.Newf(apperrors.KindInvalidState, "unknown tier %q", tierID)
	}
	project, err := s.getProject(projectID)
	if err != nil {
		return nil, err
	}
	prevTier := project.Subscription.SafeTierID()

	err = s.projects.UpdateSubscriptionFields(projectID, map[string]interface{}{
		repository.ColSubscriptionScheduledForCancellation: false,
		repository.ColSubscriptionExternalID:               externalID,
		repository.ColSubscriptionTierID:                   tierID,
	})
	if err != nil {
		return nil, err
	}

	return s.runTierChangeCascade(projectID, prevTier)
}

// SubscriptionPatch carries the optional fields of an update. Nil pointers
// leave the stored value untouched; ClearEndOfBillingCycle unsets the cycle
// end explicitly.
type SubscriptionPatch struct {
	TierID                   *string
	EndOfBillingCycle        *time.Time
	ClearEndOfBillingCycle   bool
	ScheduledForCancellation *bool
	ExternalID               *string
}

// UpdateSubscription patches the provided subscription fields. The cascade
// runs only when the patch actually changes the tier id.
func (s *Service) UpdateSubscription(projectID uint, patch SubscriptionPatch) (*models.Project, error) {
	project, err := s.getProject(projectID)
	if err != nil {
		return nil, err
	}
	prevTier := project.Subscription.SafeTierID()

	fields := map[string]interface{}{}
	if patch.TierID != nil {
		if tier.Get(*patch.TierID) == nil {
			return nil, apperrors.Newf(apperrors.KindInvalidState, "unknown tier %q", *patch.TierID)
		}
		fields[repository.ColSubscriptionTierID] = *patch.TierID
	}
	if patch.EndOfBillingCycle != nil {
		fields[repository.ColSubscriptionEndOfBillingCycle] = *patch.EndOfBillingCycle
	} else if patch.ClearEndOfBillingCycle {
		fields[repository.ColSubscriptionEndOfBillingCycle] = nil
	}
	if patch.ScheduledForCancellation != nil {
		fields[repository.ColSubscriptionScheduledForCancellation] = *patch.ScheduledForCancellation
	}
	if patch.ExternalID != nil {
		fields[repository.ColSubscriptionExternalID] = *patch.ExternalID
	}
	if len(fields) == 0 {
		return project, nil
	}

	if err := s.projects.UpdateSubscriptionFields(projectID, fields); err != nil {
		return nil, err
	}

	if patch.TierID != nil && tier.SafeTierID(*patch.TierID) != prevTier {
		return s.runTierChangeCascade(projectID, prevTier)
	}
	return s.getProject(projectID)
}

// StartTrial puts a project on a trial tier. The billing cycle ends at the
// end of the last trial day: local midnight of the start day plus
// trialDays+1 days minus one millisecond.
func (s *Service) StartTrial(projectID uint, trialTierID string, markStarted bool) (*models.Project, error) {
	t := tier.Get(trialTierID)
	if t == nil || !t.IsTrial {
		return nil, apperrors.Newf(apperrors.KindInvalidState, "tier %q is not a trial tier", trialTierID)
	}
	if t.TrialDays <= 0 {
		return nil, apperrors.Newf(apperrors.KindInvalidState, "trial tier %q has no trial length", trialTierID)
	}

	project, err := s.getProject(projectID)
	if err != nil {
		return nil, err
	}
	prevTier := project.Subscription.SafeTierID()

	fields := map[string]interface{}{
		repository.ColSubscriptionTierID:                   trialTierID,
		repository.ColSubscriptionEndOfBillingCycle:        TrialEnd(time.Now(), t.TrialDays),
		repository.ColSubscriptionTrialExpiredRecently:     "",
		repository.ColSubscriptionPaidPlanExpiredRecently:  "",
		repository.ColSubscriptionScheduledForCancellation: false,
	}
	if markStarted {
		fields[repository.ColSubscriptionTrialStartedRecently] = trialTierID
	}
	if err := s.projects.UpdateSubscriptionFields(projectID, fields); err != nil {
		return nil, err
	}

	return s.runTierChangeCascade(projectID, prevTier)
}

// TrialEnd computes the end of a trial started at the given moment: 23:59:59.999
// local time on the last trial day, counted inclusively from the start day.
func TrialEnd(start time.Time, trialDays int) time.Time {
	midnight := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, start.Location())
	return midnight.AddDate(0, 0, trialDays+1).Add(-time.Millisecond)
}

// IsSubscriptionEnded reports whether a subscription has run out. Free tiers
// never end; a paid non-trial tier that is not scheduled for cancellation is
// considered active even when its cycle end has passed (it may be out of sync
// with the payment provider, which is reported separately, never treated as
// ended here).
func IsSubscriptionEnded(project *models.Project, now time.Time) bool {
	sub := project.Subscription
	if sub.IsFree() {
		return false
	}
	if !sub.IsTrial() && !sub.ScheduledForCancellation {
		return false
	}
	return sub.EndOfBillingCycle == nil || sub.EndOfBillingCycle.Before(now)
}

// AutoDowngradeExpired downgrades every project whose subscription has ended,
// one project at a time. A crash mid-sweep leaves processed projects migrated
// and the rest for the next run. Returns the number of downgraded projects.
func (s *Service) AutoDowngradeExpired(now time.Time) (int, error) {
	downgraded := 0
	for _, t := range tier.All() {
		if t.DowngradesTo == "" {
			continue
		}
		projects, err := s.projects.ListByTierID(t.ID)
		if err != nil {
			return downgraded, err
		}
		for i := range projects {
			project, err := s.getProject(projects[i].ID)
			if err != nil {
				log.Printf("[entitlement] sweep: load project %d: %v", projects[i].ID, err)
				continue
			}
			if !IsSubscriptionEnded(project, now) {
				continue
			}
			if _, err := s.expireImmediate(project); err != nil {
				log.Printf("[entitlement] sweep: downgrade project %d: %v", project.ID, err)
				continue
			}
			downgraded++
		}
	}
	return downgraded, nil
}

// OutOfSyncProject is one entry in the out-of-sync report.
type OutOfSyncProject struct {
	ProjectID         uint       `json:"projectId"`
	TierID            string     `json:"tierId"`
	EndOfBillingCycle *time.Time `json:"endOfBillingCycle,omitempty"`
}

// FindOutOfSyncProjects reports projects on paid tiers whose billing cycle
// has lapsed without a scheduled cancellation: the payment provider has not
// reconciled them yet. Reporting only, nothing is mutated or auto-corrected.
func (s *Service) FindOutOfSyncProjects(now time.Time) ([]OutOfSyncProject, error) {
	var report []OutOfSyncProject
	for _, t := range tier.All() {
		if t.IsFree || t.IsTrial || t.DowngradesTo == "" {
			continue
		}
		projects, err := s.projects.ListByTierID(t.ID)
		if err != nil {
			return nil, err
		}
		for i := range projects {
			sub := projects[i].Subscription
			if sub.ScheduledForCancellation {
				continue
			}
			if sub.EndOfBillingCycle != nil && !sub.EndOfBillingCycle.Before(now) {
				continue
			}
			report = append(report, OutOfSyncProject{
				ProjectID:         projects[i].ID,
				TierID:            t.ID,
				EndOfBillingCycle: sub.EndOfBillingCycle,
			})
		}
	}

	if len(report) > 0 {
		ids := make([]uint, len(report))
		for i, e := range report {
			ids[i] = e.ProjectID
		}
		log.Printf("[entitlement] %d projects out of sync with payment provider: %v", len(report), ids)
		s.tracker.Track(EventSubscriptionsOutOfSync, 0, map[string]interface{}{
			"count":      len(report),
			"projectIds": ids,
		})
	}
	return report, nil
}

// UnsetNotificationFlag clears one of the one-shot subscription notification
// flags after the client has displayed it.
func (s *Service) UnsetNotificationFlag(projectID uint, flag string) (*models.Project, error) {
	var column string
	switch flag {
	case FlagTrialExpiredRecently:
		column = repository.ColSubscriptionTrialExpiredRecently
	case FlagPaidPlanExpiredRecently:
		column = repository.ColSubscriptionPaidPlanExpiredRecently
	case FlagTrialStartedRecently:
		column = repository.ColSubscriptionTrialStartedRecently
	default:
		return nil, apperrors.Newf(apperrors.KindInvalidState, "unknown notification flag %q", flag)
	}

	if _, err := s.getProject(projectID); err != nil {
		return nil, err
	}
	err := s.projects.UpdateSubscriptionFields(projectID, map[string]interface{}{column: ""})
	if err != nil {
		return nil, err
	}
	return s.getProject(projectID)
}

// runTierChangeCascade applies the fixed sequence of corrections after a tier
// change. Every step is idempotent, so two interleaved cascades on the same
// project still converge.
func (s *Service) runTierChangeCascade(projectID uint, previousTierID string) (*models.Project, error) {
	// 1. Record the previous tier in the history set.
	if err := s.projects.AppendPastTier(projectID, previousTierID); err != nil {
		return nil, err
	}

	// 2. Resolve the feature sets before and after the change. The current
	// set comes from a fresh read so concurrent mutations are not overwritten
	// with stale data.
	project, err := s.getProject(projectID)
	if err != nil {
		return nil, err
	}
	previousFeatures, _ := tier.ResolveFeatures(tier.SafeTierID(previousTierID), project.Subscription.OverridesMap())
	currentFeatures, ok := project.Subscription.AvailableFeatures()
	if !ok {
		return nil, apperrors.Newf(apperrors.KindInvalidState,
			"project %d has unresolvable tier %q", projectID, project.Subscription.SafeTierID())
	}

	// 3. Per-collaborator roles were dropped: demote editors and developers.
	if !currentFeatures.Bool(tier.FeatureCollaboratorRoles) && previousFeatures.Bool(tier.FeatureCollaboratorRoles) {
		if _, err := s.projects.DemoteCollaboratorsByRoles(projectID, []string{roles.Editor, roles.Developer}); err != nil {
			return nil, err
		}
	}

	// 4. The viewer role was dropped: demote viewers.
	if !currentFeatures.Bool(tier.FeatureHasViewerRole) && previousFeatures.Bool(tier.FeatureHasViewerRole) {
		if _, err := s.projects.DemoteCollaboratorsByRoles(projectID, []string{roles.Viewer}); err != nil {
			return nil, err
		}
	}

	// 5 + 6. Enforce the seat ceilings against a fresh collaborator list.
	if err := s.enforceSeatCeiling(projectID, roles.SeatEditor, currentFeatures.Int(tier.FeatureCollaborators)); err != nil {
		return nil, err
	}
	if err := s.enforceSeatCeiling(projectID, roles.SeatViewer, currentFeatures.Int(tier.FeatureViewersCollaborators)); err != nil {
		return nil, err
	}

	// 7. Owner for email and analytics. A missing owner degrades those steps
	// to logged no-ops, it never aborts the cascade.
	owner := s.lookupOwner(project)

	// 8. A/B testing was dropped: tear down the active split test.
	if !currentFeatures.Bool(tier.FeatureABTesting) && project.ActiveSplitTest() != nil {
		if err := s.splits.CleanupSplitTest(project, owner); err != nil {
			return nil, err
		}
	}

	// 9. Notify on an actual tier change.
	currentTier := project.Subscription.SafeTierID()
	if currentTier != tier.SafeTierID(previousTierID) {
		s.mailer.SendPlansEmail(project, owner, currentTier, mail.PlansEventStarted)
		if t := tier.Get(currentTier); t != nil && !t.IsFree && !t.IsTrial {
			s.tracker.Track(EventSubscriptionPurchased, ownerID(owner), map[string]interface{}{
				"projectId": project.ID,
				"tierId":    currentTier,
			})
		}
	}

	return s.getProject(projectID)
}

// enforceSeatCeiling demotes collaborators of one seat class beyond the
// allowed count. Stored order decides survival: the earliest entries keep
// their role, later ones are demoted to unlicensed.
func (s *Service) enforceSeatCeiling(projectID uint, seat roles.SeatClass, limit int) error {
	collabs, err := s.projects.ListCollaborators(projectID)
	if err != nil {
		return err
	}

	var occupied []uint
	for i := range collabs {
		r := collabs[i].RoleOrDefault()
		if !r.Phantom && r.Seat == seat {
			occupied = append(occupied, collabs[i].ID)
		}
	}
	if len(occupied) <= limit {
		return nil
	}
	if limit < 0 {
		limit = 0
	}
	_, err = s.projects.DemoteCollaboratorsByIDs(projectID, occupied[limit:])
	return err
}

func (s *Service) getProject(projectID uint) (*models.Project, error) {
	project, err := s.projects.GetByID(projectID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.Newf(apperrors.KindNotFound, "project %d not found", projectID)
		}
		return nil, err
	}
	return project, nil
}

func (s *Service) lookupOwner(project *models.Project) *models.User {
	owner, err := s.users.GetByID(project.OwnerID)
	if err != nil {
		log.Printf("[entitlement] owner %d of project %d not found: %v", project.OwnerID, project.ID, err)
		return nil
	}
	return owner
}

func ownerID(owner *models.User) uint {
	if owner == nil {
		return 0
	}
	return owner.ID
}
