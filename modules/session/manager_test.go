package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"neon-storyboard-server/modules/common/gemini/mocks"
	"neon-storyboard-server/modules/common/metrics"
	"neon-storyboard-server/modules/worker"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m := NewManager(Deps{
		Config:  testConfig(),
		Factory: mocks.NewMockGateway(t).Factory(nil),
		Metrics: metrics.New(),
		Logger:  zap.NewNop(),
	})
	t.Cleanup(m.Shutdown)
	return m
}

func TestManager_CreateGetRemove(t *testing.T) {
	m := newTestManager(t)

	sess := m.Create()
	got, err := m.Get(sess.ID)
	require.NoError(t, err)
	assert.Same(t, sess, got)
	assert.Equal(t, 1, m.Len())

	assert.True(t, m.Remove(sess.ID))
	assert.False(t, m.Remove(sess.ID))
	_, err = m.Get(sess.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestManager_SessionsHaveOwnCredentials(t *testing.T) {
	m := newTestManager(t)
	a, b := m.Create(), m.Create()

	a.creds.SetOverride("only-for-a")
	assert.Equal(t, "only-for-a", a.creds.Resolve())
	assert.Equal(t, "env-key", b.creds.Resolve())
}

func TestManager_CleanupExpired(t *testing.T) {
	m := newTestManager(t)
	idle := m.Create()
	busy := m.Create()
	require.NoError(t, busy.Authenticate("secret"))
	busy.register(jobKey{worker.KindImage, "scene"})

	removed := m.CleanupExpired(time.Now().Add(2 * time.Hour))
	assert.Equal(t, 1, removed)

	_, err := m.Get(idle.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = m.Get(busy.ID)
	assert.NoError(t, err)

	assert.Zero(t, m.CleanupExpired(time.Now()))
}

func TestManager_RunUnknownSession(t *testing.T) {
	m := newTestManager(t)
	err := m.Run(context.Background(), worker.NewJob("missing", "scene", worker.KindImage))
	assert.ErrorIs(t, err, ErrSessionNotFound)
}
