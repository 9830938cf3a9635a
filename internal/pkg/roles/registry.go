package roles

import "log"

// Permission tokens checked by the access controller and the HTTP layer.
const (
	PermBasicAccess         = "BASIC_ACCESS"
	PermEditContent         = "EDIT_CONTENT"
	PermPublishSite         = "PUBLISH_SITE"
	PermManageCollaborators = "MANAGE_COLLABORATORS"
	PermManageProject       = "MANAGE_PROJECT"
	PermManageSubscription  = "MANAGE_SUBSCRIPTION"
	PermSystemAdminAccess   = "SYSTEM_ADMIN_ACCESS"
	PermImpersonateUsers    = "IMPERSONATE_USERS"
)

// Role names. The two system roles are granted through user-level system
// roles, never through collaborator records.
const (
	Owner             = "owner"
	Admin             = "admin"
	Developer         = "developer"
	Editor            = "editor"
	Viewer            = "viewer"
	Unlicensed        = "unlicensed"
	Invited           = "invited"
	SiteForgeAdmin    = "siteforge-admin"
	SiteForgeSupport  = "siteforge-support-admin"
	DefaultCollabRole = Admin
)

// SeatClass determines which tier limit a role counts against.
type SeatClass int

const (
	// SeatNone marks phantom roles that never occupy a licensed seat.
	SeatNone SeatClass = iota
	// SeatEditor counts against the "collaborators" limit.
	SeatEditor
	// SeatViewer counts against the "viewersCollaborators" limit.
	SeatViewer
)

// Role is a static registry entry.
type Role struct {
	Name        string
	DisplayName string
	Permissions []string
	Phantom     bool
	Seat        SeatClass
}

// HasPermission reports whether the role grants the permission token.
func (r *Role) HasPermission(perm string) bool {
	if r == nil {
		return false
	}
	for _, p := range r.Permissions {
		if p == perm {
			return true
		}
	}
	return false
}

// None is the sentinel returned for users with no relationship to a project
// and for unknown role names on legacy records.
var None = &Role{Name: "none", DisplayName: "None", Phantom: true, Seat: SeatNone}

// Declaration order is the stable order returned by ListByPermission and
// ListNonPhantomRoles.
var registry = []*Role{
	{
		Name:        Owner,
		DisplayName: "Owner",
		Phantom:     true,
		Seat:        SeatNone,
		Permissions: []string{
			PermBasicAccess, PermEditContent, PermPublishSite,
			PermManageCollaborators, PermManageProject, PermManageSubscription,
		},
	},
	{
		Name:        Admin,
		DisplayName: "Admin",
		Seat:        SeatEditor,
		Permissions: []string{
			PermBasicAccess, PermEditContent, PermPublishSite,
			PermManageCollaborators, PermManageProject,
		},
	},
	{
		Name:        Developer,
		DisplayName: "Developer",
		Seat:        SeatEditor,
		Permissions: []string{PermBasicAccess, PermEditContent, PermPublishSite},
	},
	{
		Name:        Editor,
		DisplayName: "Editor",
		Seat:        SeatEditor,
		Permissions: []string{PermBasicAccess, PermEditContent, PermPublishSite},
	},
	{
		Name:        Viewer,
		DisplayName: "Viewer",
		Seat:        SeatViewer,
		Permissions: []string{PermBasicAccess},
	},
	{
		Name:        Unlicensed,
		DisplayName: "Unlicensed",
		Phantom:     true,
		Seat:        SeatNone,
		Permissions: []string{},
	},
	{
		Name:        Invited,
		DisplayName: "Invited",
		Phantom:     true,
		Seat:        SeatNone,
		Permissions: []string{},
	},
	{
		Name:        SiteForgeAdmin,
		DisplayName: "SiteForge Admin",
		Phantom:     true,
		Seat:        SeatNone,
		Permissions: []string{
			PermBasicAccess, PermEditContent, PermPublishSite,
			PermManageCollaborators, PermManageProject, PermManageSubscription,
			PermSystemAdminAccess,
		},
	},
	{
		Name:        SiteForgeSupport,
		DisplayName: "SiteForge Support Admin",
		Phantom:     true,
		Seat:        SeatNone,
		Permissions: []string{
			PermBasicAccess, PermEditContent, PermPublishSite,
			PermManageCollaborators, PermManageProject, PermManageSubscription,
			PermSystemAdminAccess, PermImpersonateUsers,
		},
	},
}

var byName = func() map[string]*Role {
	m := make(map[string]*Role, len(registry))
	for _, r := range registry {
		m[r.Name] = r
	}
	return m
}()

// FromName resolves a role by name, or nil if unknown.
func FromName(name string) *Role {
	return byName[name]
}

// OrDefault resolves a collaborator record's stored role name. Empty names
// resolve to the default collaborator role (legacy records predate per-
// collaborator roles); unknown names degrade to the None sentinel with a
// warning, since stored documents may reference retired role names.
func OrDefault(name string) *Role {
	if name == "" {
		return byName[DefaultCollabRole]
	}
	if r := byName[name]; r != nil {
		return r
	}
	log.Printf("[roles] unknown role name %q, treating as none", name)
	return None
}

// ListByPermission returns all roles granting the permission, in declaration
// order.
func ListByPermission(perm string) []*Role {
	var out []*Role
	for _, r := range registry {
		if r.HasPermission(perm) {
			out = append(out, r)
		}
	}
	return out
}

// ListNonPhantomRoles returns the roles that occupy licensed seats, in
// declaration order.
func ListNonPhantomRoles() []*Role {
	var out []*Role
	for _, r := range registry {
		if !r.Phantom {
			out = append(out, r)
		}
	}
	return out
}

// IsValidNonPhantomRole reports whether name refers to a seat-occupying role.
// Used to validate role values supplied by invite and update requests.
func IsValidNonPhantomRole(name string) bool {
	r := byName[name]
	return r != nil && !r.Phantom
}
