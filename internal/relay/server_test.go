package relay

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ideasync/internal/config"
	"ideasync/internal/events"
	"ideasync/internal/models"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

func newTestRelay(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	s := NewServer(config.Default(), nil)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		s.Hub().Close()
		ts.Close()
	})
	return s, ts
}

func dial(t *testing.T, ts *httptest.Server, userID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws?user_id=" + userID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, frame []byte) {
	t.Helper()
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, frame))
}

func read(t *testing.T, conn *websocket.Conn) []byte {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, frame, err := conn.ReadMessage()
	require.NoError(t, err)
	return frame
}

// roundTrip waits until every frame sent before it has been handled.
func roundTrip(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	send(t, conn, events.EncodePing())
	cf, err := events.DecodeControl(read(t, conn))
	require.NoError(t, err)
	require.Equal(t, events.ActionPong, cf.Action)
}

func subscribe(t *testing.T, conn *websocket.Conn, sessionID string) {
	t.Helper()
	frame, err := events.EncodeSubscribe(sessionID)
	require.NoError(t, err)
	send(t, conn, frame)
	roundTrip(t, conn)
}

func ideaFrame(t *testing.T, sessionID, userID, idea string) []byte {
	t.Helper()
	ev, err := models.NewEvent(models.EventIdeaUpdated, sessionID, userID, models.IdeaUpdatedData{Idea: idea})
	require.NoError(t, err)
	frame, err := events.EncodeBroadcast(ev)
	require.NoError(t, err)
	return frame
}

func TestRelayForwardsToOtherPeersOnly(t *testing.T) {
	_, ts := newTestRelay(t)
	alice := dial(t, ts, "alice")
	bob := dial(t, ts, "bob")
	carol := dial(t, ts, "carol")
	subscribe(t, alice, "s1")
	subscribe(t, bob, "s1")
	subscribe(t, carol, "s2")

	send(t, alice, ideaFrame(t, "s1", "alice", "hello"))

	ev, err := events.DecodeEvent(read(t, bob))
	require.NoError(t, err)
	assert.Equal(t, models.EventIdeaUpdated, ev.Type)
	assert.Equal(t, "alice", ev.UserID)
	var data models.IdeaUpdatedData
	require.NoError(t, ev.DecodeData(&data))
	assert.Equal(t, "hello", data.Idea)

	// the sender and other rooms see nothing before their pong
	roundTrip(t, alice)
	roundTrip(t, carol)
}

func TestRelayBroadcastSubscribesSender(t *testing.T) {
	_, ts := newTestRelay(t)
	alice := dial(t, ts, "alice")
	bob := dial(t, ts, "bob")

	send(t, bob, ideaFrame(t, "s1", "bob", "first"))
	roundTrip(t, bob)

	send(t, alice, ideaFrame(t, "s1", "alice", "second"))
	ev, err := events.DecodeEvent(read(t, bob))
	require.NoError(t, err)
	assert.Equal(t, "alice", ev.UserID)
}

func TestRelayUnsubscribeStopsDelivery(t *testing.T) {
	s, ts := newTestRelay(t)
	alice := dial(t, ts, "alice")
	bob := dial(t, ts, "bob")
	subscribe(t, alice, "s1")
	subscribe(t, bob, "s1")
	assert.Equal(t, 2, s.Hub().RoomSize("s1"))

	frame, err := events.EncodeUnsubscribe("s1")
	require.NoError(t, err)
	send(t, bob, frame)
	roundTrip(t, bob)
	assert.Equal(t, 1, s.Hub().RoomSize("s1"))

	send(t, alice, ideaFrame(t, "s1", "alice", "quiet"))
	roundTrip(t, alice)
	roundTrip(t, bob)
}

func TestRelayMalformedFrameKeepsConnection(t *testing.T) {
	_, ts := newTestRelay(t)
	alice := dial(t, ts, "alice")

	send(t, alice, []byte("not json"))
	cf, err := events.DecodeControl(read(t, alice))
	require.NoError(t, err)
	assert.Equal(t, events.ActionError, cf.Action)
	assert.NotEmpty(t, cf.Error)

	send(t, alice, []byte(`{"action":"broadcast","sessionId":"s1","event":{"type":"bogus","sessionId":"s1"}}`))
	cf, err = events.DecodeControl(read(t, alice))
	require.NoError(t, err)
	assert.Equal(t, events.ActionError, cf.Action)

	send(t, alice, []byte(`{"action":"subscribe"}`))
	cf, err = events.DecodeControl(read(t, alice))
	require.NoError(t, err)
	assert.Equal(t, events.ActionError, cf.Action)

	roundTrip(t, alice)
}

func TestRelayAnnounceServesDirectory(t *testing.T) {
	_, ts := newTestRelay(t)
	alice := dial(t, ts, "alice")

	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	se := &models.Session{
		ID: "s1", Title: "Brainstorm", CreatedBy: "alice", CreatedAt: at, UpdatedAt: at,
		Status: models.SessionActive, Permissions: models.DefaultPermissions(),
		Participants: []models.Participant{{
			UserID: "alice", Username: "Alice", Role: models.RoleOwner,
			Status: models.PresenceOnline, JoinedAt: at, Permissions: models.OwnerPermissions(),
		}},
	}
	se.AddParticipant("bob", "Bob", at.Add(time.Minute))
	frame, err := events.EncodeAnnounce(se)
	require.NoError(t, err)
	send(t, alice, frame)
	roundTrip(t, alice)

	resp, err := http.Get(ts.URL + "/api/sessions/s1")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body struct {
		Session *models.Session `json:"session"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.NotNil(t, body.Session)
	assert.Equal(t, "Brainstorm", body.Session.Title)
	assert.Len(t, body.Session.Participants, 2)

	list, err := http.Get(ts.URL + "/api/users/bob/sessions")
	require.NoError(t, err)
	defer list.Body.Close()
	var listBody struct {
		SessionList []*models.Session `json:"session_list"`
	}
	require.NoError(t, json.NewDecoder(list.Body).Decode(&listBody))
	require.Len(t, listBody.SessionList, 1)
	assert.Equal(t, "s1", listBody.SessionList[0].ID)

	missing, err := http.Get(ts.URL + "/api/sessions/nope")
	require.NoError(t, err)
	missing.Body.Close()
	assert.Equal(t, http.StatusNotFound, missing.StatusCode)
}

func TestRelayRequiresUser(t *testing.T) {
	_, ts := newTestRelay(t)
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestRelayHealth(t *testing.T) {
	s, ts := newTestRelay(t)
	dial(t, ts, "alice")

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	var body struct {
		Status   string `json:"status"`
		Instance string `json:"instance"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, s.InstanceID(), body.Instance)
}
