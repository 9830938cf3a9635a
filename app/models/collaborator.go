package models

import (
	"time"

	"github.com/siteforge-io/siteforge/internal/pkg/roles"
)

const (
	CollaboratorStatusAccepted = "collaborator"
	CollaboratorStatusInvited  = "invitation-sent"
)

// NotificationTypeInviteEmail tracks the last invite email sent for a
// pending collaborator record.
const NotificationTypeInviteEmail = "invite-email"

// Collaborator is a project-scoped membership record. A pending invitation
// carries invite token + email; an accepted membership carries a user id. The
// engine never constructs a record with both. Insertion order (primary key)
// is load-bearing: seat ceilings preserve the earliest entries.
type Collaborator struct {
	ID          uint      `gorm:"primaryKey" json:"-"`
	CollabID    string    `gorm:"type:char(36) CHARACTER SET utf8 COLLATE utf8_bin;uniqueIndex;not null" json:"id"`
	ProjectID   uint      `gorm:"not null;index" json:"project_id"`
	UserID      *uint     `gorm:"index;default:null" json:"user_id,omitempty"`
	InviteToken string    `gorm:"type:varchar(191);index;default:''" json:"-"`
	InviteEmail string    `gorm:"type:varchar(200);default:''" json:"invite_email,omitempty"`
	Role        string    `gorm:"type:varchar(50);default:''" json:"role,omitempty"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`

	Notifications []CollaboratorNotification `gorm:"foreignKey:CollaboratorID" json:"notifications,omitempty"`
}

// Status derives the membership state from the linked user id.
func (c *Collaborator) Status() string {
	if c.UserID != nil {
		return CollaboratorStatusAccepted
	}
	return CollaboratorStatusInvited
}

// RoleOrDefault resolves the stored role name through the registry. Absent
// names resolve to the default collaborator role, unknown names degrade to
// the None sentinel.
func (c *Collaborator) RoleOrDefault() *roles.Role {
	return roles.OrDefault(c.Role)
}

// IsPending reports whether the record is an unconsumed invitation.
func (c *Collaborator) IsPending() bool {
	return c.UserID == nil
}

// CollaboratorNotification tracks per-type notification state for one
// collaborator; at most one row per type (upsert by type).
type CollaboratorNotification struct {
	ID             uint       `gorm:"primaryKey" json:"id"`
	CollaboratorID uint       `gorm:"not null;index:ux_collaborator_notifications_type,unique,priority:1" json:"collaborator_id"`
	Type           string     `gorm:"type:varchar(100);not null;index:ux_collaborator_notifications_type,unique,priority:2" json:"type"`
	LastSentAt     *time.Time `gorm:"type:timestamp;default:null" json:"last_sent_at,omitempty"`
	Subscribed     *bool      `gorm:"default:null" json:"subscribed,omitempty"`
	CreatedAt      time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}
