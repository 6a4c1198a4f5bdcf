package models

import "time"

type Role string

const (
	RoleOwner  Role = "owner"
	RoleEditor Role = "editor"
	RoleViewer Role = "viewer"
)

type Presence string

const (
	PresenceOnline  Presence = "online"
	PresenceOffline Presence = "offline"
	PresenceTyping  Presence = "typing"
)

// Cursor is the last pointer position reported by a participant.
type Cursor struct {
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Color     string  `json:"color"`
	ElementID string  `json:"elementId,omitempty"`
}

// ParticipantPermissions is the per-member view of what a user may do.
type ParticipantPermissions struct {
	CanEdit    bool `json:"canEdit"`
	CanComment bool `json:"canComment"`
	CanShare   bool `json:"canShare"`
	CanInvite  bool `json:"canInvite"`
	CanDelete  bool `json:"canDelete"`
}

// OwnerPermissions grants everything.
func OwnerPermissions() ParticipantPermissions {
	return ParticipantPermissions{CanEdit: true, CanComment: true, CanShare: true, CanInvite: true, CanDelete: true}
}

// JoinerPermissions derives a joiner's permissions from the session settings.
// Joiners can never share or delete.
func JoinerPermissions(p Permissions) ParticipantPermissions {
	return ParticipantPermissions{
		CanEdit:    p.CanEdit,
		CanComment: p.CanComment,
		CanInvite:  p.CanInvite,
	}
}

// Participant is a user's membership record within a session.
type Participant struct {
	UserID      string                 `json:"userId"`
	Username    string                 `json:"username"`
	Role        Role                   `json:"role"`
	Status      Presence               `json:"status"`
	JoinedAt    time.Time              `json:"joinedAt"`
	Cursor      *Cursor                `json:"cursor,omitempty"`
	Permissions ParticipantPermissions `json:"permissions"`
}

func (p Participant) clone() Participant {
	if p.Cursor != nil {
		c := *p.Cursor
		p.Cursor = &c
	}
	return p
}
