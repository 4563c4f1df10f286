package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Kind - 생성 작업 종류
type Kind string

const (
	KindImage Kind = "image"
	KindVideo Kind = "video"
)

var (
	ErrInvalidJob = errors.New("invalid job")
	ErrClosed     = errors.New("dispatcher closed")
)

// Job is one per-scene generation request.
type Job struct {
	JobID     string    `json:"job_id"`
	SessionID string    `json:"session_id"`
	SceneID   string    `json:"scene_id"`
	Kind      Kind      `json:"kind"`
	CreatedAt time.Time `json:"created_at"`
}

// NewJob - job_id는 uuid
func NewJob(sessionID, sceneID string, kind Kind) Job {
	return Job{
		JobID:     uuid.NewString(),
		SessionID: sessionID,
		SceneID:   sceneID,
		Kind:      kind,
		CreatedAt: time.Now().UTC(),
	}
}

// Validate checks the fields a runner needs.
func (j Job) Validate() error {
	if j.JobID == "" || j.SessionID == "" || j.SceneID == "" {
		return fmt.Errorf("%w: job, session and scene ids are required", ErrInvalidJob)
	}
	switch j.Kind {
	case KindImage, KindVideo:
		return nil
	}
	return fmt.Errorf("%w: unknown kind %q", ErrInvalidJob, j.Kind)
}

// Runner executes a job to completion.
type Runner interface {
	Run(ctx context.Context, job Job) error
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(ctx context.Context, job Job) error

func (f RunnerFunc) Run(ctx context.Context, job Job) error {
	return f(ctx, job)
}

// Dispatcher accepts jobs for asynchronous execution.
type Dispatcher interface {
	Submit(ctx context.Context, job Job) error
}
