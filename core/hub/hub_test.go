package hub

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRunningHub(t *testing.T) *Hub {
	t.Helper()
	h := NewHub(nil)
	go h.Run()
	t.Cleanup(h.Stop)
	return h
}

func subscribe(t *testing.T, h *Hub, projectID, userID string) *Session {
	t.Helper()
	s := NewSession(h, nil, projectID, userID, userID)
	h.Subscribe(s)
	require.Eventually(t, func() bool {
		return h.SessionCount(projectID) > 0
	}, time.Second, 5*time.Millisecond)
	return s
}

func receiveFrame(t *testing.T, s *Session) *Frame {
	t.Helper()
	select {
	case raw := <-s.Send:
		frame := &Frame{}
		require.NoError(t, json.Unmarshal(raw, frame))
		return frame
	case <-time.After(time.Second):
		t.Fatal("no frame delivered")
		return nil
	}
}

func TestBroadcastUpdateReachesProjectSessions(t *testing.T) {
	h := newRunningHub(t)
	member := subscribe(t, h, "p1", "alice")
	outsider := subscribe(t, h, "p2", "bob")

	err := h.BroadcastUpdate("/scene", map[string]interface{}{
		"ProjectId": "p1",
		"SceneId":   "s1",
	})
	require.NoError(t, err)

	frame := receiveFrame(t, member)
	assert.Equal(t, MsgTypeUpdate, frame.Type)
	assert.Equal(t, "p1", frame.ProjectID)

	var update Update
	require.NoError(t, json.Unmarshal(frame.Data, &update))
	assert.Equal(t, "/scene", update.Path)
	assert.Equal(t, "s1", update.Body["SceneId"])

	// the other project's channel stays quiet
	select {
	case <-outsider.Send:
		t.Fatal("update leaked to another project's channel")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBroadcastUpdateRequiresProjectID(t *testing.T) {
	h := newRunningHub(t)

	err := h.BroadcastUpdate("/scene", map[string]interface{}{"SceneId": "s1"})
	assert.Error(t, err)

	err = h.BroadcastUpdate("/scene", map[string]interface{}{"ProjectId": ""})
	assert.Error(t, err)
}

func TestBroadcastToEmptyChannelIsANoOp(t *testing.T) {
	h := newRunningHub(t)
	err := h.BroadcastUpdate("/scene", map[string]interface{}{"ProjectId": "ghost"})
	assert.NoError(t, err)
}

func TestUnsubscribeRemovesSession(t *testing.T) {
	h := newRunningHub(t)
	s := subscribe(t, h, "p1", "alice")

	h.Unsubscribe(s)
	require.Eventually(t, func() bool {
		return h.SessionCount("p1") == 0
	}, time.Second, 5*time.Millisecond)

	// the send channel is closed on unsubscribe
	_, open := <-s.Send
	assert.False(t, open)
}

func TestReplyToLiveSession(t *testing.T) {
	h := newRunningHub(t)
	s := subscribe(t, h, "p1", "alice")

	h.reply(s, &Frame{Type: MsgTypePong})

	frame := receiveFrame(t, s)
	assert.Equal(t, MsgTypePong, frame.Type)
	assert.NotZero(t, frame.Timestamp)
}

func TestReplyAfterUnsubscribeIsSkipped(t *testing.T) {
	h := newRunningHub(t)
	s := subscribe(t, h, "p1", "alice")

	h.Unsubscribe(s)
	require.Eventually(t, func() bool {
		return h.SessionCount("p1") == 0
	}, time.Second, 5*time.Millisecond)

	// the send channel is closed now; the reply must be dropped, not sent
	assert.NotPanics(t, func() {
		h.reply(s, &Frame{Type: MsgTypePong})
	})
}

func TestReplyAfterSlowSessionDrop(t *testing.T) {
	h := newRunningHub(t)
	s := subscribe(t, h, "p1", "alice")

	// a session that never drains its buffer gets dropped by the hub
	for i := 0; i <= cap(s.Send); i++ {
		require.NoError(t, h.BroadcastUpdate("/scene", map[string]interface{}{"ProjectId": "p1"}))
	}
	require.Eventually(t, func() bool {
		return h.SessionCount("p1") == 0
	}, time.Second, 5*time.Millisecond)

	// a late ping on the still-open socket replies through the hub and
	// must not touch the closed channel
	assert.NotPanics(t, func() {
		h.reply(s, &Frame{Type: MsgTypePong})
	})
}

func TestBroadcastStatus(t *testing.T) {
	h := newRunningHub(t)
	s := subscribe(t, h, "p1", "alice")

	require.NoError(t, h.BroadcastStatus("p1", "u2", "bob", "joined"))

	frame := receiveFrame(t, s)
	assert.Equal(t, MsgTypeStatus, frame.Type)
	assert.Equal(t, "bob", frame.Username)

	var body map[string]string
	require.NoError(t, json.Unmarshal(frame.Data, &body))
	assert.Equal(t, "joined", body["status"])
}

func TestMultipleSessionsSameProject(t *testing.T) {
	h := newRunningHub(t)
	a := subscribe(t, h, "p1", "alice")
	b := subscribe(t, h, "p1", "bob")
	require.Eventually(t, func() bool {
		return h.SessionCount("p1") == 2
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, h.BroadcastUpdate("/track", map[string]interface{}{"ProjectId": "p1"}))

	for _, s := range []*Session{a, b} {
		frame := receiveFrame(t, s)
		assert.Equal(t, MsgTypeUpdate, frame.Type)
	}
}
