package projector

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ideasync/internal/collab"
	"ideasync/internal/connection"
	"ideasync/internal/events"
	"ideasync/internal/models"
)

type busBroadcaster struct {
	bus *events.Bus
}

func (b busBroadcaster) Broadcast(_ context.Context, ev models.Event) {
	b.bus.Publish(ev)
}

func newTestProjector(t *testing.T, opts ...Option) (*Projector, *collab.Service, *events.Bus) {
	t.Helper()
	bus := events.NewBus()
	svc := collab.NewService(collab.NewStore(), busBroadcaster{bus: bus})
	p := New(svc, bus, Identity{UserID: "alice", Username: "Alice"}, opts...)
	t.Cleanup(p.Close)
	return p, svc, bus
}

type fakeNotifier struct {
	fn func(connection.Notification)
}

func (f *fakeNotifier) Notify(fn func(connection.Notification)) func() {
	f.fn = fn
	return func() { f.fn = nil }
}

func TestProjectorFoldsSessionEvents(t *testing.T) {
	p, svc, _ := newTestProjector(t)
	ctx := context.Background()

	var transitions int
	p.OnChange(func(State) { transitions++ })

	se, err := p.CreateSession(ctx, "Plan", "v1", nil)
	require.NoError(t, err)
	st := p.State()
	require.NotNil(t, st.CurrentSession)
	assert.Equal(t, se.ID, st.CurrentSession.ID)
	assert.False(t, st.IsCreating)
	require.Len(t, st.Participants, 1)

	_, err = svc.JoinSession(ctx, collab.JoinRequest{SessionID: se.ID, UserID: "bob", Username: "Bob"})
	require.NoError(t, err)
	require.NoError(t, p.UpdateIdea(ctx, "v2"))
	require.NoError(t, p.AddComment(ctx, "ship it"))
	svc.UpdateCursorPosition(ctx, se.ID, "bob", models.Cursor{X: 4, Y: 2, Color: "#00f"})
	require.NoError(t, svc.TransferOwnership(ctx, se.ID, "alice", "bob"))

	st = p.State()
	assert.Len(t, st.Participants, 2)
	assert.Equal(t, "v2", st.CurrentSession.CurrentIdea)
	require.Len(t, st.Comments, 1)
	assert.Equal(t, "ship it", st.Comments[0].Text)
	assert.Equal(t, 4.0, st.Cursors["bob"].X)
	assert.Equal(t, "bob", st.CurrentSession.Owner().UserID)

	require.NoError(t, svc.LeaveSession(ctx, se.ID, "bob"))
	st = p.State()
	_, hasCursor := st.Cursors["bob"]
	assert.False(t, hasCursor)
	assert.Equal(t, "alice", st.CurrentSession.Owner().UserID)
	assert.Greater(t, transitions, 6)
}

func TestProjectorIgnoresOtherSessions(t *testing.T) {
	p, svc, _ := newTestProjector(t)
	ctx := context.Background()
	mine, err := p.CreateSession(ctx, "Mine", "keep", nil)
	require.NoError(t, err)

	other, err := svc.CreateSession(ctx, collab.CreateRequest{UserID: "carol", Title: "Other"})
	require.NoError(t, err)
	require.NoError(t, svc.UpdateIdeaInSession(ctx, other.ID, "carol", "elsewhere"))

	st := p.State()
	assert.Equal(t, mine.ID, st.CurrentSession.ID)
	assert.Equal(t, "keep", st.CurrentSession.CurrentIdea)
}

func TestProjectorEndAndLeave(t *testing.T) {
	p, _, _ := newTestProjector(t)
	ctx := context.Background()
	_, err := p.CreateSession(ctx, "Short", "", nil)
	require.NoError(t, err)

	require.NoError(t, p.EndSession(ctx))
	assert.Equal(t, models.SessionCompleted, p.State().CurrentSession.Status)

	err = p.UpdateIdea(ctx, "too late")
	assert.ErrorIs(t, err, collab.ErrSessionEnded)
	assert.Equal(t, collab.ErrSessionEnded.Error(), p.State().Error)
	p.ClearError()
	assert.Empty(t, p.State().Error)

	require.NoError(t, p.LeaveSession(ctx))
	st := p.State()
	assert.Nil(t, st.CurrentSession)
	assert.Empty(t, st.Participants)
}

func TestProjectorActionsWithoutSession(t *testing.T) {
	p, _, _ := newTestProjector(t)
	ctx := context.Background()

	assert.ErrorIs(t, p.LeaveSession(ctx), ErrNoSession)
	assert.ErrorIs(t, p.EndSession(ctx), ErrNoSession)
	assert.ErrorIs(t, p.UpdateIdea(ctx, "x"), ErrNoSession)
	assert.ErrorIs(t, p.AddComment(ctx, "x"), ErrNoSession)
	p.MoveCursor(ctx, models.Cursor{X: 1})
	p.StartTyping(ctx)
	assert.False(t, p.State().IsTyping("alice"))

	_, err := p.JoinSession(ctx, "missing")
	assert.ErrorIs(t, err, collab.ErrSessionNotFound)
	st := p.State()
	assert.False(t, st.IsJoining)
	assert.Equal(t, "Session not found", st.Error)
}

func TestProjectorTypingDebounce(t *testing.T) {
	p, svc, _ := newTestProjector(t, WithTypingTimeout(150*time.Millisecond))
	ctx := context.Background()
	se, err := p.CreateSession(ctx, "Typing", "", nil)
	require.NoError(t, err)

	p.StartTyping(ctx)
	assert.True(t, p.State().IsTyping("alice"))
	got, _ := svc.GetSession(se.ID)
	assert.Equal(t, models.PresenceTyping, got.Participant("alice").Status)

	time.Sleep(60 * time.Millisecond)
	p.StartTyping(ctx)
	time.Sleep(60 * time.Millisecond)
	assert.True(t, p.State().IsTyping("alice"), "second keystroke restarts the timer")

	require.Eventually(t, func() bool { return !p.State().IsTyping("alice") }, time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		got, _ := svc.GetSession(se.ID)
		return got.Participant("alice").Status == models.PresenceOnline
	}, time.Second, 10*time.Millisecond)
}

func TestProjectorRemoteTypingStop(t *testing.T) {
	p, svc, _ := newTestProjector(t, WithTypingTimeout(time.Minute))
	ctx := context.Background()
	se, err := p.CreateSession(ctx, "Typing", "", nil)
	require.NoError(t, err)
	_, err = svc.JoinSession(ctx, collab.JoinRequest{SessionID: se.ID, UserID: "bob"})
	require.NoError(t, err)

	svc.SetTyping(ctx, se.ID, "bob", true)
	assert.True(t, p.State().IsTyping("bob"))
	svc.SetTyping(ctx, se.ID, "bob", false)
	assert.False(t, p.State().IsTyping("bob"))

	svc.SetTyping(ctx, se.ID, "bob", true)
	require.NoError(t, svc.LeaveSession(ctx, se.ID, "bob"))
	assert.False(t, p.State().IsTyping("bob"))
}

func TestProjectorFollowsConnection(t *testing.T) {
	p, _, _ := newTestProjector(t)
	n := &fakeNotifier{}
	p.AttachConnection(n)

	n.fn(connection.Notification{Kind: connection.NotifyConnected})
	assert.True(t, p.State().IsConnected)
	n.fn(connection.Notification{Kind: connection.NotifyError, Err: &connection.TransportError{Op: "read", Err: errors.New("reset")}})
	assert.Equal(t, "transport read: reset", p.State().Error)
	n.fn(connection.Notification{Kind: connection.NotifyDisconnected})
	assert.False(t, p.State().IsConnected)

	p.Close()
	assert.Nil(t, n.fn)
}

func TestProjectorCloseStopsFolding(t *testing.T) {
	p, svc, _ := newTestProjector(t)
	ctx := context.Background()
	se, err := p.CreateSession(ctx, "Closed", "before", nil)
	require.NoError(t, err)

	p.Close()
	require.NoError(t, svc.UpdateIdeaInSession(ctx, se.ID, "alice", "after"))
	assert.Equal(t, "before", p.State().CurrentSession.CurrentIdea)
}

func TestStateIsACopy(t *testing.T) {
	p, _, _ := newTestProjector(t)
	_, err := p.CreateSession(context.Background(), "Copy", "", nil)
	require.NoError(t, err)

	st := p.State()
	st.Cursors["ghost"] = models.Cursor{}
	st.CurrentSession.Title = "changed"
	again := p.State()
	_, ok := again.Cursors["ghost"]
	assert.False(t, ok)
	assert.Equal(t, "Copy", again.CurrentSession.Title)
}

func TestRemoteTypingIndicatorStaysUpWhileTyping(t *testing.T) {
	ctx := context.Background()
	timeout := 150 * time.Millisecond
	alice, aliceSvc, aliceBus := newTestProjector(t, WithTypingTimeout(timeout))

	bobBus := events.NewBus()
	bobSvc := collab.NewService(collab.NewStore(), busBroadcaster{bus: bobBus})
	bob := New(bobSvc, bobBus, Identity{UserID: "bob", Username: "Bob"}, WithTypingTimeout(timeout))
	t.Cleanup(bob.Close)

	se, err := alice.CreateSession(ctx, "Relay", "", nil)
	require.NoError(t, err)
	_, err = aliceSvc.JoinSession(ctx, collab.JoinRequest{SessionID: se.ID, UserID: "bob", Username: "Bob"})
	require.NoError(t, err)
	snapshot, _ := aliceSvc.GetSession(se.ID)
	bobSvc.Store().Import(snapshot)
	_, err = bob.JoinSession(ctx, se.ID)
	require.NoError(t, err)

	sent := 0
	aliceBus.Subscribe(models.EventUserTyping, func(ev models.Event) {
		var data models.UserTypingData
		if ev.DecodeData(&data) == nil && data.Typing {
			sent++
		}
		bobBus.Publish(ev)
	})

	for i := 0; i < 6; i++ {
		if i > 0 {
			time.Sleep(50 * time.Millisecond)
		}
		alice.StartTyping(ctx)
	}
	assert.True(t, alice.State().IsTyping("alice"))
	assert.True(t, bob.State().IsTyping("alice"), "remote indicator expired while alice kept typing")
	assert.Greater(t, sent, 1)
	assert.Less(t, sent, 6)

	require.Eventually(t, func() bool { return !bob.State().IsTyping("alice") }, time.Second, 10*time.Millisecond)
}

func TestProjectorIgnoresCursorFromNonParticipant(t *testing.T) {
	p, _, bus := newTestProjector(t)
	se, err := p.CreateSession(context.Background(), "Cursors", "", nil)
	require.NoError(t, err)

	ev, err := models.NewEvent(models.EventCursorMoved, se.ID, "stranger", models.CursorMovedData{Cursor: models.Cursor{X: 1}})
	require.NoError(t, err)
	bus.Publish(ev)
	_, ok := p.State().Cursors["stranger"]
	assert.False(t, ok)

	require.NoError(t, p.EndSession(context.Background()))
	ev, err = models.NewEvent(models.EventCursorMoved, se.ID, "alice", models.CursorMovedData{Cursor: models.Cursor{X: 2}})
	require.NoError(t, err)
	bus.Publish(ev)
	_, ok = p.State().Cursors["alice"]
	assert.False(t, ok)
}
