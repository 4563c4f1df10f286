package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScene_Validate(t *testing.T) {
	tests := []struct {
		name    string
		scene   Scene
		wantErr bool
	}{
		{"idle scene", Scene{ID: "s1", ImageStatus: StatusIdle, VideoStatus: StatusIdle}, false},
		{"empty id", Scene{}, true},
		{"image completed without payload", Scene{ID: "s1", ImageStatus: StatusCompleted}, true},
		{"image completed with payload", Scene{ID: "s1", ImageStatus: StatusCompleted, ReferenceImage: "data:image/png;base64,AA=="}, false},
		{"video completed without url", Scene{ID: "s1", VideoStatus: StatusCompleted}, true},
		{"video failed without url", Scene{ID: "s1", VideoStatus: StatusFailed}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.scene.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrSceneInvariant)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSceneEdit_ApplyOnlyTouchesSetFields(t *testing.T) {
	camera := "推镜头"
	s := Scene{ID: "s1", Description: "rain", Prompt: "neon alley", Camera: "广角", Duration: 3}

	got := SceneEdit{Camera: &camera}.Apply(s)

	assert.Equal(t, "推镜头", got.Camera)
	assert.Equal(t, "rain", got.Description)
	assert.Equal(t, "neon alley", got.Prompt)
	assert.Equal(t, "s1", got.ID)
}
