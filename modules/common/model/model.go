package model

import (
	"errors"
	"fmt"
)

// Status - 이미지/비디오 생성 상태
type Status string

const (
	StatusIdle       Status = "idle"
	StatusGenerating Status = "generating"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Step - 워크플로 위치
type Step string

const (
	StepAuth       Step = "AUTH"
	StepScript     Step = "SCRIPT"
	StepStoryboard Step = "STORYBOARD"
	StepImages     Step = "IMAGES"
	StepVideo      Step = "VIDEO"
)

// ErrSceneInvariant is returned by Scene.Validate.
var ErrSceneInvariant = errors.New("scene invariant violated")

// Scene - 스토리보드의 한 컷
type Scene struct {
	ID             string `json:"id"`
	Description    string `json:"description"`
	Prompt         string `json:"prompt"`
	Camera         string `json:"camera"`
	Duration       int    `json:"duration"` // seconds
	ReferenceImage string `json:"referenceImage,omitempty"` // data URI
	ImageStatus    Status `json:"imageStatus"`
	VideoURL       string `json:"videoUrl,omitempty"`
	VideoStatus    Status `json:"videoStatus"`
	VideoDemo      bool   `json:"videoDemo,omitempty"` // VideoURL is the demo asset
}

// Validate checks the completed-implies-payload invariants.
func (s Scene) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("%w: empty id", ErrSceneInvariant)
	}
	if s.ImageStatus == StatusCompleted && s.ReferenceImage == "" {
		return fmt.Errorf("%w: scene %s image completed without reference image", ErrSceneInvariant, s.ID)
	}
	if s.VideoStatus == StatusCompleted && s.VideoURL == "" {
		return fmt.Errorf("%w: scene %s video completed without url", ErrSceneInvariant, s.ID)
	}
	return nil
}

// HasReferenceImage reports whether the scene carries a visual anchor.
func (s Scene) HasReferenceImage() bool {
	return s.ReferenceImage != ""
}

// SceneEdit - 사용자가 수정 가능한 필드 (nil = 변경 없음)
type SceneEdit struct {
	Description *string `json:"description,omitempty"`
	Prompt      *string `json:"prompt,omitempty"`
	Camera      *string `json:"camera,omitempty"`
}

// Apply returns s with the non-nil edit fields applied.
func (e SceneEdit) Apply(s Scene) Scene {
	if e.Description != nil {
		s.Description = *e.Description
	}
	if e.Prompt != nil {
		s.Prompt = *e.Prompt
	}
	if e.Camera != nil {
		s.Camera = *e.Camera
	}
	return s
}

// SessionSnapshot - 세션 상태 조회 응답
type SessionSnapshot struct {
	SessionID    string  `json:"sessionId"`
	Step         Step    `json:"step"`
	Script       string  `json:"script"`
	VisualBible  string  `json:"visualBible"`
	Scenes       []Scene `json:"scenes"`
	EDL          string  `json:"edl,omitempty"`
	MissingImage int     `json:"missingImages"`
}
