package models

import "time"

// SessionStatus is the lifecycle state of a collaborative session.
type SessionStatus string

const (
	SessionActive    SessionStatus = "active"
	SessionPaused    SessionStatus = "paused"
	SessionCompleted SessionStatus = "completed"
)

// Permissions are the session-wide settings supplied at creation.
type Permissions struct {
	CanEdit    bool `json:"canEdit"`
	CanComment bool `json:"canComment"`
	CanShare   bool `json:"canShare"`
	CanInvite  bool `json:"canInvite"`
}

// DefaultPermissions is used when a session is created without explicit settings.
func DefaultPermissions() Permissions {
	return Permissions{CanEdit: true, CanComment: true, CanShare: true, CanInvite: true}
}

// Comment is a note attached to a session by one of its participants.
type Comment struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
}

// Session groups the participants editing one shared idea.
type Session struct {
	ID           string        `json:"id"`
	Title        string        `json:"title"`
	CreatedBy    string        `json:"createdBy"`
	CreatedAt    time.Time     `json:"createdAt"`
	UpdatedAt    time.Time     `json:"updatedAt"`
	Participants []Participant `json:"participants"`
	CurrentIdea  string        `json:"currentIdea"`
	Status       SessionStatus `json:"status"`
	Permissions  Permissions   `json:"permissions"`
	Comments     []Comment     `json:"comments,omitempty"`
}

// IsActive reports whether the session still accepts content mutations.
func (s *Session) IsActive() bool {
	return s != nil && s.Status != SessionCompleted
}

// Participant returns the membership record for userID, or nil.
func (s *Session) Participant(userID string) *Participant {
	if s == nil {
		return nil
	}
	for i := range s.Participants {
		if s.Participants[i].UserID == userID {
			return &s.Participants[i]
		}
	}
	return nil
}

// Owner returns the participant holding the owner role, or nil.
func (s *Session) Owner() *Participant {
	if s == nil {
		return nil
	}
	for i := range s.Participants {
		if s.Participants[i].Role == RoleOwner {
			return &s.Participants[i]
		}
	}
	return nil
}

// OnlineCount counts participants that are not offline.
func (s *Session) OnlineCount() int {
	n := 0
	for _, p := range s.Participants {
		if p.Status != PresenceOffline {
			n++
		}
	}
	return n
}

// AddParticipant marks an existing member online again or appends a new
// editor. It reports whether a new record was appended.
func (s *Session) AddParticipant(userID, username string, at time.Time) bool {
	if p := s.Participant(userID); p != nil {
		p.Status = PresenceOnline
		return false
	}
	s.Participants = append(s.Participants, Participant{
		UserID:      userID,
		Username:    username,
		Role:        RoleEditor,
		Status:      PresenceOnline,
		JoinedAt:    at,
		Permissions: JoinerPermissions(s.Permissions),
	})
	return true
}

// MarkOffline records that userID left. When the owner leaves and someone is
// still online, ownership moves to the first online participant in list
// order and that user id is returned. When nobody is left online the session
// is completed.
func (s *Session) MarkOffline(userID string) (newOwner string) {
	p := s.Participant(userID)
	if p == nil {
		return ""
	}
	p.Status = PresenceOffline
	p.Cursor = nil
	if !s.IsActive() {
		return ""
	}
	if p.Role == RoleOwner {
		for i := range s.Participants {
			next := &s.Participants[i]
			if next.UserID == userID || next.Status == PresenceOffline {
				continue
			}
			p.Role = RoleEditor
			p.Permissions = JoinerPermissions(s.Permissions)
			next.Role = RoleOwner
			next.Permissions = OwnerPermissions()
			newOwner = next.UserID
			break
		}
	}
	if s.OnlineCount() == 0 {
		s.Status = SessionCompleted
	}
	return newOwner
}

// TransferOwnership hands the owner role from one participant to another.
// It reports false when either user is not a participant.
func (s *Session) TransferOwnership(fromUserID, toUserID string) bool {
	from := s.Participant(fromUserID)
	to := s.Participant(toUserID)
	if from == nil || to == nil {
		return false
	}
	if from == to {
		return true
	}
	from.Role = RoleEditor
	from.Permissions = JoinerPermissions(s.Permissions)
	to.Role = RoleOwner
	to.Permissions = OwnerPermissions()
	return true
}

// Clone returns a deep copy that can be handed out without sharing state.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	out := *s
	out.Participants = make([]Participant, len(s.Participants))
	for i, p := range s.Participants {
		out.Participants[i] = p.clone()
	}
	if s.Comments != nil {
		out.Comments = append([]Comment(nil), s.Comments...)
	}
	return &out
}
