package workflow

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"neon-storyboard-server/modules/common/model"
)

const secret = "nihongboluoup!"

func okDecompose(context.Context, string) error { return nil }

func authenticated(t *testing.T) *Workflow {
	t.Helper()
	w := New(secret)
	require.NoError(t, w.Authenticate(secret))
	return w
}

func atImages(t *testing.T) *Workflow {
	t.Helper()
	w := authenticated(t)
	require.NoError(t, w.EnterStoryboard(context.Background(), "a script", okDecompose))
	require.NoError(t, w.EnterImages())
	return w
}

func TestAuthenticate_RejectsAnythingButExactSecret(t *testing.T) {
	attempts := []string{"", " ", "nihongboluoup", "nihongboluoup! ", " nihongboluoup!", "NIHONGBOLUOUP!", "password"}
	for _, attempt := range attempts {
		w := New(secret)
		err := w.Authenticate(attempt)

		var authErr *AuthError
		require.ErrorAs(t, err, &authErr, "attempt %q", attempt)
		assert.Equal(t, "密码错误！提示：nihongboluoup!", authErr.Error())
		assert.Equal(t, model.StepAuth, w.Step())
	}
}

func TestAuthenticate_Success(t *testing.T) {
	w := New(secret)
	require.NoError(t, w.Authenticate(secret))
	assert.Equal(t, model.StepScript, w.Step())

	assert.ErrorIs(t, w.Authenticate(secret), ErrInvalidTransition)
}

func TestEnterStoryboard(t *testing.T) {
	t.Run("empty script", func(t *testing.T) {
		w := authenticated(t)
		called := false
		err := w.EnterStoryboard(context.Background(), "   \n", func(context.Context, string) error {
			called = true
			return nil
		})
		assert.ErrorIs(t, err, ErrEmptyScript)
		assert.False(t, called)
		assert.Equal(t, model.StepScript, w.Step())
	})

	t.Run("decompose failure stays in script", func(t *testing.T) {
		w := authenticated(t)
		boom := errors.New("malformed")
		err := w.EnterStoryboard(context.Background(), "script", func(context.Context, string) error { return boom })
		assert.Same(t, boom, err)
		assert.Equal(t, model.StepScript, w.Step())
	})

	t.Run("not before auth", func(t *testing.T) {
		w := New(secret)
		err := w.EnterStoryboard(context.Background(), "script", okDecompose)
		assert.ErrorIs(t, err, ErrInvalidTransition)
		assert.Equal(t, model.StepAuth, w.Step())
	})

	t.Run("blocks other transitions while decomposing", func(t *testing.T) {
		w := authenticated(t)
		started := make(chan struct{})
		release := make(chan struct{})
		done := make(chan error, 1)
		go func() {
			done <- w.EnterStoryboard(context.Background(), "script", func(context.Context, string) error {
				close(started)
				<-release
				return nil
			})
		}()
		<-started
		_, err := w.Back()
		assert.ErrorIs(t, err, ErrTransitionPending)
		close(release)
		require.NoError(t, <-done)
		assert.Equal(t, model.StepStoryboard, w.Step())
	})
}

func TestEnterVideo_DecliningConfirmationStaysInImages(t *testing.T) {
	w := atImages(t)

	var asked int
	err := w.EnterVideo(3, func(missing int) bool {
		asked = missing
		return false
	})

	var confirmErr *ConfirmationRequiredError
	require.ErrorAs(t, err, &confirmErr)
	assert.Equal(t, 3, confirmErr.Missing)
	assert.Equal(t, 3, asked)
	assert.Equal(t, "还有 3 个场景没有参考图，Gemini 将自由发挥。是否继续？", err.Error())
	assert.Equal(t, model.StepImages, w.Step())

	assert.ErrorAs(t, w.EnterVideo(3, nil), &confirmErr)
	assert.Equal(t, model.StepImages, w.Step())
}

func TestEnterVideo_Proceeds(t *testing.T) {
	w := atImages(t)
	require.NoError(t, w.EnterVideo(2, func(int) bool { return true }))
	assert.Equal(t, model.StepVideo, w.Step())

	w = atImages(t)
	require.NoError(t, w.EnterVideo(0, func(int) bool {
		t.Fatal("confirm must not be asked when every scene has an image")
		return false
	}))
	assert.Equal(t, model.StepVideo, w.Step())
}

func TestNoSkippingForward(t *testing.T) {
	w := authenticated(t)
	assert.ErrorIs(t, w.EnterImages(), ErrInvalidTransition)
	assert.ErrorIs(t, w.EnterVideo(0, nil), ErrInvalidTransition)
	assert.Equal(t, model.StepScript, w.Step())
}

func TestBack(t *testing.T) {
	w := atImages(t)
	require.NoError(t, w.EnterVideo(0, nil))

	for _, want := range []model.Step{model.StepImages, model.StepStoryboard, model.StepScript} {
		got, err := w.Back()
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := w.Back()
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, model.StepScript, w.Step())
}

func TestRequire(t *testing.T) {
	w := atImages(t)
	assert.NoError(t, w.Require(model.StepImages, model.StepVideo))
	assert.ErrorIs(t, w.Require(model.StepVideo), ErrInvalidTransition)
}
