package session

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"neon-storyboard-server/modules/common/gemini/mocks"
	"neon-storyboard-server/modules/common/model"
)

func dialSession(t *testing.T, sess *Session) *websocket.Conn {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		sess.Attach(conn)
	}))
	t.Cleanup(srv.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	require.Eventually(t, func() bool { return sess.hub.Len() == 1 }, time.Second, time.Millisecond)
	return conn
}

func TestHub_BroadcastsSessionEvents(t *testing.T) {
	sess := New("ws-session", Deps{Config: testConfig(), Factory: mocks.NewMockGateway(t).Factory(nil), Logger: zap.NewNop()})
	defer sess.Close()
	conn := dialSession(t, sess)

	require.NoError(t, sess.Authenticate("secret"))

	var event Event
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
	require.NoError(t, conn.ReadJSON(&event))
	assert.Equal(t, EventStepChanged, event.Type)
	assert.Equal(t, "ws-session", event.SessionID)
	assert.Equal(t, model.StepScript, event.Step)
	assert.False(t, sess.Idle())
}

func TestHub_CredentialMessageAnswersBroker(t *testing.T) {
	sess := New("ws-session", Deps{Config: testConfig(), Factory: mocks.NewMockGateway(t).Factory(nil), Logger: zap.NewNop()})
	defer sess.Close()
	conn := dialSession(t, sess)

	answer := make(chan string, 1)
	go func() {
		key, _ := sess.broker.RequestCredential(t.Context(), "need key")
		answer <- key
	}()

	var event Event
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
	require.NoError(t, conn.ReadJSON(&event))
	require.Equal(t, EventCredentialRequired, event.Type)

	require.NoError(t, conn.WriteJSON(ClientMessage{Type: MessageCredential, RequestID: event.RequestID, Key: "ws-key"}))
	select {
	case key := <-answer:
		assert.Equal(t, "ws-key", key)
	case <-time.After(time.Second):
		t.Fatal("credential answer not delivered")
	}
}

func TestHub_CloseDisconnectsClients(t *testing.T) {
	sess := New("ws-session", Deps{Config: testConfig(), Factory: mocks.NewMockGateway(t).Factory(nil), Logger: zap.NewNop()})
	conn := dialSession(t, sess)

	sess.Close()
	assert.Equal(t, 0, sess.hub.Len())

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
}
