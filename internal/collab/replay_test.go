package collab

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ideasync/internal/events"
	"ideasync/internal/models"
)

func remoteEvent(t *testing.T, typ models.EventType, sessionID, userID string, payload any) []byte {
	t.Helper()
	ev, err := models.NewEvent(typ, sessionID, userID, payload)
	require.NoError(t, err)
	frame, err := events.EncodeBroadcast(ev)
	require.NoError(t, err)
	return frame
}

func TestReplayAppliesRemoteEventsWithoutRebroadcast(t *testing.T) {
	svc, rec := newTestService(t)
	se := create(t, svc, "u1", "s")
	bus := events.NewBus()
	var seen []models.EventType
	bus.SubscribeAll(func(ev models.Event) { seen = append(seen, ev.Type) })
	router := events.NewRouter(NewReplayer(svc), bus)

	router.HandleFrame(remoteEvent(t, models.EventUserJoined, se.ID, "u2", models.UserJoinedData{Username: "U2", Role: models.RoleEditor}))
	router.HandleFrame(remoteEvent(t, models.EventIdeaUpdated, se.ID, "u2", models.IdeaUpdatedData{Idea: "remote"}))
	router.HandleFrame(remoteEvent(t, models.EventCommentAdded, se.ID, "u2", models.CommentAddedData{CommentID: "c1", Text: "hi"}))
	router.HandleFrame(remoteEvent(t, models.EventCursorMoved, se.ID, "u2", models.CursorMovedData{Cursor: models.Cursor{X: 7, Y: 8}}))
	router.HandleFrame(remoteEvent(t, models.EventUserTyping, se.ID, "u2", models.UserTypingData{Typing: true}))

	got, _ := svc.GetSession(se.ID)
	p := got.Participant("u2")
	require.NotNil(t, p)
	assert.Equal(t, "U2", p.Username)
	assert.Equal(t, models.PresenceTyping, p.Status)
	require.NotNil(t, p.Cursor)
	assert.Equal(t, 7.0, p.Cursor.X)
	assert.Equal(t, "remote", got.CurrentIdea)
	require.Len(t, got.Comments, 1)
	assert.Equal(t, "c1", got.Comments[0].ID)
	require.Len(t, svc.GetUserSessions("u2"), 1)
	assert.Equal(t, se.ID, svc.GetUserSessions("u2")[0].ID)

	assert.Empty(t, rec.types())
	assert.Len(t, seen, 5)
}

func TestReplayOwnershipAndEnd(t *testing.T) {
	svc, _ := newTestService(t)
	se := create(t, svc, "u1", "s")
	join(t, svc, se.ID, "u2")
	router := events.NewRouter(NewReplayer(svc), nil)

	router.HandleFrame(remoteEvent(t, models.EventOwnershipTransferred, se.ID, "u1", models.OwnershipTransferredData{ToUserID: "u2"}))
	got, _ := svc.GetSession(se.ID)
	assert.Equal(t, models.RoleOwner, got.Participant("u2").Role)

	router.HandleFrame(remoteEvent(t, models.EventSessionEnded, se.ID, "u1", models.SessionEndedData{EndedBy: "u1"}))
	got, _ = svc.GetSession(se.ID)
	assert.Equal(t, models.SessionActive, got.Status, "a former owner cannot end the session")

	router.HandleFrame(remoteEvent(t, models.EventSessionEnded, se.ID, "u2", models.SessionEndedData{EndedBy: "u2"}))
	got, _ = svc.GetSession(se.ID)
	assert.Equal(t, models.SessionCompleted, got.Status)
}

func TestReplayLeaveTransfersOwnership(t *testing.T) {
	svc, _ := newTestService(t)
	se := create(t, svc, "u1", "s")
	join(t, svc, se.ID, "u2")
	router := events.NewRouter(NewReplayer(svc), nil)

	router.HandleFrame(remoteEvent(t, models.EventUserLeft, se.ID, "u1", models.UserLeftData{NewOwnerID: "u2"}))
	got, _ := svc.GetSession(se.ID)
	assert.Equal(t, models.RoleOwner, got.Participant("u2").Role)
	assert.Equal(t, models.PresenceOffline, got.Participant("u1").Status)
}

func TestReplayIgnoresUnknownSessions(t *testing.T) {
	svc, _ := newTestService(t)
	bus := events.NewBus()
	delivered := 0
	bus.SubscribeAll(func(models.Event) { delivered++ })
	router := events.NewRouter(NewReplayer(svc), bus)

	router.HandleFrame(remoteEvent(t, models.EventIdeaUpdated, "elsewhere", "u9", models.IdeaUpdatedData{Idea: "x"}))
	_, ok := svc.GetSession("elsewhere")
	assert.False(t, ok)
	assert.Equal(t, 1, delivered)
}
