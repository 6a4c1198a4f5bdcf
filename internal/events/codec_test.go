package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ideasync/internal/models"
)

func TestDecodeEventValidatesEnvelope(t *testing.T) {
	_, err := DecodeEvent([]byte(`{"type":"idea_updated"}`))
	assert.ErrorIs(t, err, ErrMalformedFrame)

	_, err = DecodeEvent([]byte(`{"type":"teleport","sessionId":"s1"}`))
	assert.ErrorIs(t, err, ErrUnknownEvent)

	_, err = DecodeEvent([]byte(`[1,2]`))
	assert.ErrorIs(t, err, ErrMalformedFrame)

	ev, err := DecodeEvent([]byte(`{"type":"cursor_moved","sessionId":"s1","userId":"u1","data":{"x":1,"y":2,"color":"#fff"}}`))
	require.NoError(t, err)
	var cursor models.CursorMovedData
	require.NoError(t, ev.DecodeData(&cursor))
	assert.Equal(t, 2.0, cursor.Y)
	assert.Equal(t, "#fff", cursor.Color)
}

func TestControlFrames(t *testing.T) {
	assert.True(t, IsControl(EncodePing()))
	assert.False(t, IsControl([]byte(`{"type":"user_left","sessionId":"s1"}`)))
	assert.False(t, IsControl([]byte(`garbage`)))

	_, err := DecodeControl([]byte(`{"sessionId":"s1"}`))
	assert.ErrorIs(t, err, ErrMalformedFrame)

	frame, err := EncodeSubscribe("s1")
	require.NoError(t, err)
	cf, err := DecodeControl(frame)
	require.NoError(t, err)
	assert.Equal(t, ActionSubscribe, cf.Action)
	assert.Equal(t, "s1", cf.SessionID)

	cf, err = DecodeControl(EncodeError("bad frame"))
	require.NoError(t, err)
	assert.Equal(t, "bad frame", cf.Error)

	_, err = EncodeAnnounce(nil)
	assert.Error(t, err)
}

func TestEncodeBroadcastWrapsEvent(t *testing.T) {
	ev, err := models.NewEvent(models.EventIdeaUpdated, "s1", "u1", models.IdeaUpdatedData{Idea: "v2"})
	require.NoError(t, err)
	frame, err := EncodeBroadcast(ev)
	require.NoError(t, err)

	cf, err := DecodeControl(frame)
	require.NoError(t, err)
	assert.Equal(t, ActionBroadcast, cf.Action)
	assert.Equal(t, "s1", cf.SessionID)

	inner, err := DecodeEvent(cf.Event)
	require.NoError(t, err)
	assert.Equal(t, ev.Type, inner.Type)
	assert.Equal(t, ev.UserID, inner.UserID)
	assert.JSONEq(t, string(ev.Data), string(inner.Data))
}
