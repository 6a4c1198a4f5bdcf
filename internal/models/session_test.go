package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSession(users ...string) *Session {
	s := &Session{ID: "s1", Status: SessionActive, Permissions: DefaultPermissions()}
	for i, u := range users {
		if i == 0 {
			s.Participants = append(s.Participants, Participant{
				UserID: u, Role: RoleOwner, Status: PresenceOnline, Permissions: OwnerPermissions(),
			})
			continue
		}
		s.AddParticipant(u, u, time.Time{})
	}
	return s
}

func TestMarkOfflineMovesOwnership(t *testing.T) {
	s := newSession("a", "b", "c")
	s.Participant("b").Status = PresenceOffline

	assert.Equal(t, "c", s.MarkOffline("a"))
	assert.Equal(t, RoleEditor, s.Participant("a").Role)
	assert.False(t, s.Participant("a").Permissions.CanDelete)
	assert.Equal(t, RoleOwner, s.Participant("c").Role)
	assert.True(t, s.Participant("c").Permissions.CanDelete)
	assert.True(t, s.IsActive())

	assert.Equal(t, "", s.MarkOffline("c"))
	assert.Equal(t, SessionCompleted, s.Status)
	assert.Equal(t, RoleOwner, s.Participant("c").Role)
	assert.Equal(t, "", s.MarkOffline("ghost"))
}

func TestMarkOfflineClearsCursor(t *testing.T) {
	s := newSession("a", "b")
	s.Participant("b").Cursor = &Cursor{X: 1}
	s.MarkOffline("b")
	assert.Nil(t, s.Participant("b").Cursor)
	assert.Equal(t, 1, s.OnlineCount())
}

func TestAddParticipant(t *testing.T) {
	s := newSession("a")
	s.Permissions.CanEdit = false
	assert.True(t, s.AddParticipant("b", "Bee", time.Time{}))
	b := s.Participant("b")
	require.NotNil(t, b)
	assert.Equal(t, RoleEditor, b.Role)
	assert.False(t, b.Permissions.CanEdit)
	assert.False(t, b.Permissions.CanShare)

	b.Status = PresenceOffline
	assert.False(t, s.AddParticipant("b", "Bee", time.Time{}))
	assert.Equal(t, PresenceOnline, s.Participant("b").Status)
	assert.Len(t, s.Participants, 2)
}

func TestTransferOwnership(t *testing.T) {
	s := newSession("a", "b")
	assert.False(t, s.TransferOwnership("a", "ghost"))
	assert.True(t, s.TransferOwnership("a", "a"))
	assert.Equal(t, "a", s.Owner().UserID)

	assert.True(t, s.TransferOwnership("a", "b"))
	assert.Equal(t, "b", s.Owner().UserID)
	assert.Equal(t, RoleEditor, s.Participant("a").Role)
}

func TestCloneIsDeep(t *testing.T) {
	s := newSession("a")
	s.Participants[0].Cursor = &Cursor{X: 1}
	s.Comments = []Comment{{ID: "c1", Text: "x"}}

	c := s.Clone()
	c.Participants[0].Cursor.X = 9
	c.Participants[0].Role = RoleViewer
	c.Comments[0].Text = "y"

	assert.Equal(t, 1.0, s.Participants[0].Cursor.X)
	assert.Equal(t, RoleOwner, s.Participants[0].Role)
	assert.Equal(t, "x", s.Comments[0].Text)

	var nilSession *Session
	assert.Nil(t, nilSession.Clone())
	assert.Nil(t, nilSession.Participant("a"))
	assert.False(t, nilSession.IsActive())
}

func TestEventPayload(t *testing.T) {
	ev, err := NewEvent(EventUserJoined, "s1", "u1", UserJoinedData{Username: "U", Role: RoleEditor})
	require.NoError(t, err)
	assert.False(t, ev.Timestamp.IsZero())

	var data UserJoinedData
	require.NoError(t, ev.DecodeData(&data))
	assert.Equal(t, "U", data.Username)

	empty := Event{Type: EventSessionEnded}
	assert.NoError(t, empty.DecodeData(&data))

	bad := Event{Type: EventIdeaUpdated, Data: []byte(`"text"`)}
	assert.Error(t, bad.DecodeData(&IdeaUpdatedData{}))

	assert.True(t, EventUserTyping.Valid())
	assert.False(t, EventType("nope").Valid())
}
