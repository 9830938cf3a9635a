package access

import (
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/siteforge-io/siteforge/app/models"
	"github.com/siteforge-io/siteforge/app/repository"
	"github.com/siteforge-io/siteforge/internal/pkg/apperrors"
	"github.com/siteforge-io/siteforge/internal/pkg/roles"
	"github.com/siteforge-io/siteforge/internal/pkg/tier"
)

// stubProjectRepo is a minimal in-memory ProjectRepository for controller
// tests. roleQueries counts GetByIDMatchingRoles calls so the system-admin
// short-circuit can be asserted.
type notifKey struct {
	collaboratorID uint
	typ            string
}

type stubProjectRepo struct {
	projects      map[uint]*models.Project
	notifications map[notifKey]models.CollaboratorNotification
	roleQueries   int
	nextID        uint
}

func newStubProjectRepo(projects ...*models.Project) *stubProjectRepo {
	r := &stubProjectRepo{
		projects:      map[uint]*models.Project{},
		notifications: map[notifKey]models.CollaboratorNotification{},
		nextID:        100,
	}
	for _, p := range projects {
		r.projects[p.ID] = p
	}
	return r
}

func (r *stubProjectRepo) Create(p *models.Project) error { r.projects[p.ID] = p; return nil }

func (r *stubProjectRepo) GetByID(id uint) (*models.Project, error) {
	p, ok := r.projects[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *stubProjectRepo) GetByUUID(string) (*models.Project, error) {
	return nil, gorm.ErrRecordNotFound
}

func (r *stubProjectRepo) GetByInviteToken(token string) (*models.Project, error) {
	for _, p := range r.projects {
		if p.FindCollaboratorByInviteToken(token) != nil {
			cp := *p
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *stubProjectRepo) GetByOwnerID(uint) ([]models.Project, error) { return nil, nil }

func (r *stubProjectRepo) ListByTierID(string) ([]models.Project, error) { return nil, nil }

func (r *stubProjectRepo) GetByIDMatchingRoles(projectID uint, userID uint, ownerClause bool, defaultRoleClause bool, roleNames []string) (*models.Project, error) {
	r.roleQueries++
	p, ok := r.projects[projectID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	if ownerClause && p.OwnerID == userID {
		return p, nil
	}
	for i := range p.Collaborators {
		c := &p.Collaborators[i]
		if c.UserID == nil || *c.UserID != userID {
			continue
		}
		if defaultRoleClause && c.Role == "" {
			return p, nil
		}
		for _, name := range roleNames {
			if c.Role == name {
				return p, nil
			}
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *stubProjectRepo) Update(p *models.Project) error { return nil }

func (r *stubProjectRepo) Delete(id uint) error { return nil }

func (r *stubProjectRepo) Count() (int64, error) { return 0, nil }

func (r *stubProjectRepo) UpdateSubscriptionFields(uint, map[string]interface{}) error { return nil }

func (r *stubProjectRepo) AppendPastTier(uint, string) error { return nil }

func (r *stubProjectRepo) ListCollaborators(projectID uint) ([]models.Collaborator, error) {
	return r.projects[projectID].Collaborators, nil
}

func (r *stubProjectRepo) AddCollaboratorIfAbsent(c *models.Collaborator) (bool, error) {
	p := r.projects[c.ProjectID]
	for i := range p.Collaborators {
		if p.Collaborators[i].InviteToken == c.InviteToken && p.Collaborators[i].InviteEmail == c.InviteEmail {
			return false, nil
		}
	}
	r.nextID++
	c.ID = r.nextID
	p.Collaborators = append(p.Collaborators, *c)
	return true, nil
}

func (r *stubProjectRepo) ConsumeInviteToken(projectID uint, token string, userID uint) (bool, error) {
	p := r.projects[projectID]
	for i := range p.Collaborators {
		c := &p.Collaborators[i]
		if c.InviteToken == token && token != "" && c.UserID == nil {
			uid := userID
			c.UserID = &uid
			c.InviteToken = ""
			c.InviteEmail = ""
			return true, nil
		}
	}
	return false, nil
}

func (r *stubProjectRepo) UpdateCollaboratorRole(projectID uint, collabID string, role string) error {
	p := r.projects[projectID]
	for i := range p.Collaborators {
		if p.Collaborators[i].CollabID == collabID {
			p.Collaborators[i].Role = role
		}
	}
	return nil
}

func (r *stubProjectRepo) RemoveCollaborator(projectID uint, collabID string) error {
	p := r.projects[projectID]
	out := p.Collaborators[:0]
	for _, c := range p.Collaborators {
		if c.CollabID != collabID {
			out = append(out, c)
		}
	}
	p.Collaborators = out
	return nil
}

func (r *stubProjectRepo) DemoteCollaboratorsByRoles(uint, []string) (int64, error) { return 0, nil }

func (r *stubProjectRepo) DemoteCollaboratorsByIDs(uint, []uint) (int64, error) { return 0, nil }

func (r *stubProjectRepo) UpsertCollaboratorNotification(n *models.CollaboratorNotification) error {
	r.notifications[notifKey{n.CollaboratorID, n.Type}] = *n
	return nil
}

func (r *stubProjectRepo) CountEnvironments(uint) (int64, error) { return 0, nil }

func (r *stubProjectRepo) AddEnvironmentIfAbsent(*models.ProjectEnvironment) (bool, error) {
	return false, nil
}

func (r *stubProjectRepo) RemoveEnvironment(uint, string) error { return nil }

func (r *stubProjectRepo) GetActiveSplitTest(uint) (*models.SplitTest, error) {
	return nil, gorm.ErrRecordNotFound
}

func (r *stubProjectRepo) GetSplitTestByEnvironmentName(uint, string) (*models.SplitTest, error) {
	return nil, gorm.ErrRecordNotFound
}

func (r *stubProjectRepo) UpdateSplitTestStatus(uint, string) error { return nil }

type stubUserRepo struct {
	users map[uint]*models.User
}

func newStubUserRepo(users ...*models.User) *stubUserRepo {
	r := &stubUserRepo{users: map[uint]*models.User{}}
	for _, u := range users {
		r.users[u.ID] = u
	}
	return r
}

func (r *stubUserRepo) Create(*models.User) error { return nil }

func (r *stubUserRepo) GetByID(id uint) (*models.User, error) {
	u, ok := r.users[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return u, nil
}

func (r *stubUserRepo) GetByEmail(string) (*models.User, error) { return nil, gorm.ErrRecordNotFound }

func (r *stubUserRepo) GetByActivationToken(string) (*models.User, error) {
	return nil, gorm.ErrRecordNotFound
}

func (r *stubUserRepo) GetStatsByUserID(uint) (*repository.UserStats, error) {
	return &repository.UserStats{}, nil
}

func (r *stubUserRepo) Update(*models.User) error { return nil }

func (r *stubUserRepo) Delete(uint) error { return nil }

func (r *stubUserRepo) List(int, int) ([]models.User, error) { return nil, nil }

func (r *stubUserRepo) Count() (int64, error) { return 0, nil }

func (r *stubUserRepo) Search(string) ([]models.User, error) { return nil, nil }

type stubMailer struct {
	invites []string
}

func (m *stubMailer) SendPlansEmail(*models.Project, *models.User, string, string) {}

func (m *stubMailer) SendCollaboratorInvite(p *models.Project, email string, token string) {
	m.invites = append(m.invites, email)
}

func uintPtr(v uint) *uint { return &v }

func TestGetCollaboratorRole(t *testing.T) {
	project := &models.Project{
		ID: 1, OwnerID: 10,
		Collaborators: []models.Collaborator{
			{ID: 1, CollabID: "a", ProjectID: 1, UserID: uintPtr(20), Role: roles.Editor},
			{ID: 2, CollabID: "b", ProjectID: 1, UserID: uintPtr(21)},
		},
	}

	tests := []struct {
		name string
		user *models.User
		want string
	}{
		{"owner", &models.User{ID: 10}, roles.Owner},
		{"collaborator with role", &models.User{ID: 20}, roles.Editor},
		{"collaborator without role gets default", &models.User{ID: 21}, roles.DefaultCollabRole},
		{"system admin", &models.User{ID: 30, SystemRoles: "admin"}, roles.SiteForgeAdmin},
		{"support admin", &models.User{ID: 31, SystemRoles: "admin,support_admin"}, roles.SiteForgeSupport},
		{"support role alone grants nothing", &models.User{ID: 32, SystemRoles: "support_admin"}, "none"},
		{"stranger", &models.User{ID: 40}, "none"},
	}
	for _, tt := range tests {
		if got := GetCollaboratorRole(project, tt.user); got.Name != tt.want {
			t.Fatalf("%s: role = %q, want %q", tt.name, got.Name, tt.want)
		}
	}
}

func TestFindProjectSystemAdminShortCircuit(t *testing.T) {
	project := &models.Project{ID: 1, OwnerID: 10}
	pr := newStubProjectRepo(project)
	ctrl := NewController(pr, newStubUserRepo(), &stubMailer{})

	admin := &models.User{ID: 99, SystemRoles: "admin"}
	got, err := ctrl.FindProjectByIDAndUserRoles(1, admin, []string{roles.Owner, roles.SiteForgeAdmin})
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if got.ID != 1 {
		t.Fatalf("expected project 1, got %d", got.ID)
	}
	if pr.roleQueries != 0 {
		t.Fatalf("system admin must bypass per-role queries, got %d", pr.roleQueries)
	}
}

func TestFindProjectByRoles(t *testing.T) {
	project := &models.Project{
		ID: 1, OwnerID: 10,
		Collaborators: []models.Collaborator{
			{ID: 1, CollabID: "a", ProjectID: 1, UserID: uintPtr(20), Role: roles.Editor},
			{ID: 2, CollabID: "b", ProjectID: 1, UserID: uintPtr(21)},
		},
	}
	pr := newStubProjectRepo(project)
	ctrl := NewController(pr, newStubUserRepo(), &stubMailer{})

	if _, err := ctrl.FindProjectByIDAndUserRoles(1, &models.User{ID: 10}, []string{roles.Owner}); err != nil {
		t.Fatalf("owner lookup: %v", err)
	}
	if _, err := ctrl.FindProjectByIDAndUserRoles(1, &models.User{ID: 20}, []string{roles.Editor}); err != nil {
		t.Fatalf("editor lookup: %v", err)
	}
	// The default-role clause matches legacy records with no stored role.
	if _, err := ctrl.FindProjectByIDAndUserRoles(1, &models.User{ID: 21}, []string{roles.DefaultCollabRole}); err != nil {
		t.Fatalf("default role lookup: %v", err)
	}
	_, err := ctrl.FindProjectByIDAndUserRoles(1, &models.User{ID: 20}, []string{roles.Owner})
	if !apperrors.IsNotFound(err) {
		t.Fatalf("editor asking for owner must be not found, got %v", err)
	}
}

func TestCheckTierAllowanceForCollaborators(t *testing.T) {
	// business: collaborators 10, viewersCollaborators 10, collaboratorRoles on.
	business := &models.Project{
		ID: 1, OwnerID: 10,
		Subscription: models.Subscription{TierID: "business"},
		Collaborators: []models.Collaborator{
			{ID: 1, CollabID: "a", ProjectID: 1, UserID: uintPtr(20), Role: roles.Editor},
			{ID: 2, CollabID: "b", ProjectID: 1, UserID: uintPtr(21), Role: roles.Viewer},
			{ID: 3, CollabID: "c", ProjectID: 1, UserID: uintPtr(22), Role: roles.Unlicensed},
		},
	}
	if !CheckTierAllowanceForFeature(business, tier.FeatureCollaborators, AllowanceOptions{RequiredAmount: 1, Role: roles.Editor}) {
		t.Fatalf("business must allow another editor")
	}
	if !CheckTierAllowanceForFeature(business, tier.FeatureCollaborators, AllowanceOptions{RequiredAmount: 1, Role: roles.Viewer}) {
		t.Fatalf("business must allow another viewer")
	}
	if CheckTierAllowanceForFeature(business, tier.FeatureCollaborators, AllowanceOptions{RequiredAmount: 1, Role: roles.Owner}) {
		t.Fatalf("unsupported roles are rejected")
	}

	// pro: collaboratorRoles off, editors are gated but admins are not.
	pro := &models.Project{ID: 2, OwnerID: 10, Subscription: models.Subscription{TierID: "pro"}}
	if CheckTierAllowanceForFeature(pro, tier.FeatureCollaborators, AllowanceOptions{RequiredAmount: 1, Role: roles.Editor}) {
		t.Fatalf("editor seats require the collaboratorRoles feature")
	}
	if !CheckTierAllowanceForFeature(pro, tier.FeatureCollaborators, AllowanceOptions{RequiredAmount: 1, Role: roles.Admin}) {
		t.Fatalf("admin seats are not gated by collaboratorRoles")
	}

	unknown := &models.Project{ID: 3, OwnerID: 10, Subscription: models.Subscription{TierID: "retired-tier"}}
	if CheckTierAllowanceForFeature(unknown, tier.FeatureCollaborators, AllowanceOptions{RequiredAmount: 1, Role: roles.Admin}) {
		t.Fatalf("unresolvable tiers never grant seats")
	}
}

func TestCheckTierAllowanceCountArithmetic(t *testing.T) {
	// free: collaborators 0. With no existing seats the requested amount is
	// the count; with existing seats the requested amount is not added.
	free := &models.Project{ID: 1, OwnerID: 10, Subscription: models.Subscription{TierID: "free"}}
	if CheckTierAllowanceForFeature(free, tier.FeatureCollaborators, AllowanceOptions{RequiredAmount: 1, Role: roles.Admin}) {
		t.Fatalf("free tier has no admin seats")
	}
	if !CheckTierAllowanceForFeature(free, tier.FeatureCollaborators, AllowanceOptions{RequiredAmount: 0, Role: roles.Admin}) {
		t.Fatalf("zero required seats fit a zero limit")
	}

	// pro allows 4 collaborator seats: with exactly 4 occupied the check
	// still passes because the requested amount is dropped for non-empty sets.
	pro := &models.Project{
		ID: 2, OwnerID: 10,
		Subscription: models.Subscription{TierID: "pro"},
		Collaborators: []models.Collaborator{
			{ID: 1, CollabID: "a", ProjectID: 2, UserID: uintPtr(20), Role: roles.Admin},
			{ID: 2, CollabID: "b", ProjectID: 2, UserID: uintPtr(21), Role: roles.Admin},
			{ID: 3, CollabID: "c", ProjectID: 2, UserID: uintPtr(22), Role: roles.Admin},
			{ID: 4, CollabID: "d", ProjectID: 2, UserID: uintPtr(23), Role: roles.Admin},
		},
	}
	if !CheckTierAllowanceForFeature(pro, tier.FeatureCollaborators, AllowanceOptions{RequiredAmount: 1, Role: roles.Admin}) {
		t.Fatalf("requested amount is not added to non-empty seat counts")
	}
}

func TestDefaultRequiredAmountIsOneSeat(t *testing.T) {
	if DefaultRequiredAmount != 1 {
		t.Fatalf("default required amount must be 1, got %d", DefaultRequiredAmount)
	}

	// The default is observable: on an empty project the requested amount
	// stands in for the count, so asking for one seat against a zero limit
	// fails where asking for zero would pass.
	free := &models.Project{ID: 1, OwnerID: 10, Subscription: models.Subscription{TierID: "free"}}
	if CheckTierAllowanceForFeature(free, tier.FeatureCollaborators, AllowanceOptions{RequiredAmount: DefaultRequiredAmount, Role: roles.Admin}) {
		t.Fatalf("one default seat must not fit a zero limit")
	}
}

func TestCheckTierAllowanceEnvironmentsAndFlags(t *testing.T) {
	business := &models.Project{
		ID: 1, OwnerID: 10,
		Subscription: models.Subscription{TierID: "business"},
		Environments: []models.ProjectEnvironment{
			{ID: 1, ProjectID: 1, Name: "preview"},
		},
	}
	if !CheckTierAllowanceForFeature(business, tier.FeatureEnvironments, AllowanceOptions{RequiredAmount: 1}) {
		t.Fatalf("business allows three environments")
	}
	if !CheckTierAllowanceForFeature(business, tier.FeatureABTesting, AllowanceOptions{}) {
		t.Fatalf("business includes abTesting")
	}

	free := &models.Project{ID: 2, OwnerID: 10, Subscription: models.Subscription{TierID: "free"}}
	if CheckTierAllowanceForFeature(free, tier.FeatureABTesting, AllowanceOptions{}) {
		t.Fatalf("free excludes abTesting")
	}
}

func TestAddInvitedCollaborator(t *testing.T) {
	project := &models.Project{
		ID: 1, OwnerID: 10, Name: "site",
		Subscription: models.Subscription{TierID: "business"},
	}
	pr := newStubProjectRepo(project)
	mailer := &stubMailer{}
	ctrl := NewController(pr, newStubUserRepo(), mailer)

	owner := &models.User{ID: 10}
	stranger := &models.User{ID: 50}

	_, err := ctrl.AddInvitedCollaborator(1, stranger, InviteInput{InviteToken: "tok", InviteEmail: "a@b.c"})
	if apperrors.KindOf(err) != apperrors.KindUnauthorized {
		t.Fatalf("stranger invite: expected unauthorized, got %v", err)
	}

	_, err = ctrl.AddInvitedCollaborator(1, owner, InviteInput{InviteEmail: "a@b.c"})
	if apperrors.KindOf(err) != apperrors.KindInvalidState {
		t.Fatalf("missing token: expected invalid state, got %v", err)
	}

	got, err := ctrl.AddInvitedCollaborator(1, owner, InviteInput{InviteToken: "tok", InviteEmail: "a@b.c", Role: roles.Editor})
	if err != nil {
		t.Fatalf("invite: %v", err)
	}
	if len(got.Collaborators) != 1 {
		t.Fatalf("expected 1 collaborator, got %d", len(got.Collaborators))
	}
	if len(mailer.invites) != 1 {
		t.Fatalf("expected 1 invite email, got %d", len(mailer.invites))
	}

	// Identical invitation again: set-add, no duplicate row, but the email
	// goes out again.
	got, err = ctrl.AddInvitedCollaborator(1, owner, InviteInput{InviteToken: "tok", InviteEmail: "a@b.c", Role: roles.Editor})
	if err != nil {
		t.Fatalf("repeat invite: %v", err)
	}
	if len(got.Collaborators) != 1 {
		t.Fatalf("duplicate invitation must not be created, got %d", len(got.Collaborators))
	}
	if len(mailer.invites) != 2 {
		t.Fatalf("repeat invitation must resend the email, got %d", len(mailer.invites))
	}
}

func TestInviteNotificationReplacedPerType(t *testing.T) {
	project := &models.Project{
		ID: 1, OwnerID: 10, Name: "site",
		Subscription: models.Subscription{TierID: "business"},
	}
	pr := newStubProjectRepo(project)
	ctrl := NewController(pr, newStubUserRepo(), &stubMailer{})
	owner := &models.User{ID: 10}

	if _, err := ctrl.AddInvitedCollaborator(1, owner, InviteInput{InviteToken: "tok", InviteEmail: "a@b.c", Role: roles.Editor}); err != nil {
		t.Fatalf("invite: %v", err)
	}
	if len(pr.notifications) != 1 {
		t.Fatalf("expected 1 notification record, got %d", len(pr.notifications))
	}
	var first time.Time
	for _, n := range pr.notifications {
		if n.Type != models.NotificationTypeInviteEmail {
			t.Fatalf("expected %q notification type, got %q", models.NotificationTypeInviteEmail, n.Type)
		}
		if n.LastSentAt == nil {
			t.Fatalf("lastSentAt must be recorded")
		}
		first = *n.LastSentAt
	}

	// A resend replaces the record in place rather than adding a second row.
	if _, err := ctrl.AddInvitedCollaborator(1, owner, InviteInput{InviteToken: "tok", InviteEmail: "a@b.c", Role: roles.Editor}); err != nil {
		t.Fatalf("repeat invite: %v", err)
	}
	if len(pr.notifications) != 1 {
		t.Fatalf("resend must keep a single record per type, got %d", len(pr.notifications))
	}
	for _, n := range pr.notifications {
		if n.LastSentAt == nil || n.LastSentAt.Before(first) {
			t.Fatalf("lastSentAt must advance on resend")
		}
	}
}

func TestAcceptInviteIsSingleUse(t *testing.T) {
	project := &models.Project{
		ID: 1, OwnerID: 10,
		Subscription: models.Subscription{TierID: "business"},
		Collaborators: []models.Collaborator{
			{ID: 1, CollabID: "a", ProjectID: 1, InviteToken: "tok", InviteEmail: "a@b.c", Role: roles.Editor},
		},
	}
	pr := newStubProjectRepo(project)
	ctrl := NewController(pr, newStubUserRepo(&models.User{ID: 10, Email: "owner@b.c"}), &stubMailer{})

	got, err := ctrl.AcceptInvite("tok", &models.User{ID: 20})
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	c := got.FindCollaboratorByUserID(20)
	if c == nil {
		t.Fatalf("collaborator must be linked to user 20")
	}
	if c.InviteToken != "" || c.InviteEmail != "" {
		t.Fatalf("token and email must be cleared after accept")
	}

	_, err = ctrl.AcceptInvite("tok", &models.User{ID: 21})
	if !apperrors.IsNotFound(err) {
		t.Fatalf("second accept must fail as invalid token, got %v", err)
	}
}

func TestAcceptInviteOwnerRejected(t *testing.T) {
	project := &models.Project{
		ID: 1, OwnerID: 10, Name: "site", CMS: "forestry", SiteURL: "https://example.com",
		Subscription: models.Subscription{TierID: "business"},
		Collaborators: []models.Collaborator{
			{ID: 1, CollabID: "a", ProjectID: 1, InviteToken: "tok", InviteEmail: "a@b.c"},
		},
	}
	pr := newStubProjectRepo(project)
	ctrl := NewController(pr, newStubUserRepo(&models.User{ID: 10, Email: "owner@b.c"}), &stubMailer{})

	_, err := ctrl.AcceptInvite("tok", &models.User{ID: 10})
	if !apperrors.IsConflict(err) {
		t.Fatalf("owner accept: expected conflict, got %v", err)
	}
	details := apperrors.DetailsOf(err)
	if details["name"] != "site" || details["ownerEmail"] != "owner@b.c" {
		t.Fatalf("owner conflict must carry the project summary, got %v", details)
	}

	// The token is still consumable by someone else.
	if _, err := ctrl.AcceptInvite("tok", &models.User{ID: 20}); err != nil {
		t.Fatalf("token must survive an owner rejection: %v", err)
	}
}

func TestAcceptInviteSeatLimit(t *testing.T) {
	// free tier: zero collaborator seats. The pending record itself makes the
	// filtered set non-empty, so the count equals the occupied seats.
	project := &models.Project{
		ID: 1, OwnerID: 10,
		Subscription: models.Subscription{TierID: "free"},
		Collaborators: []models.Collaborator{
			{ID: 1, CollabID: "a", ProjectID: 1, InviteToken: "tok", InviteEmail: "a@b.c", Role: roles.Admin},
		},
	}
	pr := newStubProjectRepo(project)
	ctrl := NewController(pr, newStubUserRepo(&models.User{ID: 10}), &stubMailer{})

	_, err := ctrl.AcceptInvite("tok", &models.User{ID: 20})
	if apperrors.KindOf(err) != apperrors.KindTierExceeded {
		t.Fatalf("expected tier exceeded, got %v", err)
	}
	details := apperrors.DetailsOf(err)
	if details["feature"] != tier.FeatureCollaborators || details["role"] != roles.Admin {
		t.Fatalf("tier exceeded must carry feature and role, got %v", details)
	}
}

func TestUpdateAndRemoveCollaboratorByID(t *testing.T) {
	project := &models.Project{
		ID: 1, OwnerID: 10,
		Subscription: models.Subscription{TierID: "business"},
		Collaborators: []models.Collaborator{
			{ID: 1, CollabID: "a", ProjectID: 1, UserID: uintPtr(20), Role: roles.Editor},
		},
	}
	pr := newStubProjectRepo(project)
	ctrl := NewController(pr, newStubUserRepo(), &stubMailer{})

	got, err := ctrl.UpdateCollaboratorByID(1, "a", roles.Developer)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if got.Collaborators[0].Role != roles.Developer {
		t.Fatalf("expected developer, got %q", got.Collaborators[0].Role)
	}

	if _, err := ctrl.UpdateCollaboratorByID(1, "missing", roles.Editor); !apperrors.IsNotFound(err) {
		t.Fatalf("unknown collaborator: expected not found, got %v", err)
	}
	if _, err := ctrl.UpdateCollaboratorByID(1, "a", "superuser"); apperrors.KindOf(err) != apperrors.KindInvalidState {
		t.Fatalf("invalid role: expected invalid state, got %v", err)
	}

	got, err = ctrl.RemoveCollaboratorByID(1, "a")
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if len(got.Collaborators) != 0 {
		t.Fatalf("expected no collaborators, got %d", len(got.Collaborators))
	}
	if _, err := ctrl.RemoveCollaboratorByID(1, "a"); !apperrors.IsNotFound(err) {
		t.Fatalf("second remove: expected not found, got %v", err)
	}
}
