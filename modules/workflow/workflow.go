package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"neon-storyboard-server/modules/common/model"
)

var (
	ErrEmptyScript       = errors.New("script is empty")
	ErrInvalidTransition = errors.New("invalid workflow transition")
	ErrTransitionPending = errors.New("another transition is in progress")
)

// AuthError is returned when the password gate rejects a credential. The
// message carries the hint shown to the user.
type AuthError struct {
	Hint string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("密码错误！提示：%s", e.Hint)
}

// ConfirmationRequiredError is returned when the user declines to continue
// into VIDEO with scenes that have no reference image.
type ConfirmationRequiredError struct {
	Missing int
}

func (e *ConfirmationRequiredError) Error() string {
	return ConfirmationMessage(e.Missing)
}

// ConfirmationMessage - 참고 이미지 없는 씬 경고 문구
func ConfirmationMessage(missing int) string {
	return fmt.Sprintf("还有 %d 个场景没有参考图，Gemini 将自由发挥。是否继续？", missing)
}

// Workflow is the five-step cursor of one session:
// AUTH -> SCRIPT -> STORYBOARD -> IMAGES -> VIDEO.
type Workflow struct {
	mu       sync.Mutex
	step     model.Step
	password string
	pending  bool
}

// New - AUTH 단계에서 시작
func New(password string) *Workflow {
	return &Workflow{step: model.StepAuth, password: password}
}

// Step returns the current position.
func (w *Workflow) Step() model.Step {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.step
}

// Authenticate moves AUTH -> SCRIPT when credential equals the configured
// password exactly. Plain comparison, no lockout.
func (w *Workflow) Authenticate(credential string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.step != model.StepAuth {
		return fmt.Errorf("%w: already authenticated", ErrInvalidTransition)
	}
	if credential != w.password {
		return &AuthError{Hint: w.password}
	}
	w.step = model.StepScript
	return nil
}

// EnterStoryboard moves SCRIPT -> STORYBOARD once decompose succeeds. The
// decompose error is returned unchanged and the cursor stays in SCRIPT.
func (w *Workflow) EnterStoryboard(ctx context.Context, script string, decompose func(context.Context, string) error) error {
	if strings.TrimSpace(script) == "" {
		return ErrEmptyScript
	}
	if err := w.begin(model.StepScript); err != nil {
		return err
	}

	err := decompose(ctx, script)

	w.mu.Lock()
	defer w.mu.Unlock()
	w.pending = false
	if err != nil {
		return err
	}
	w.step = model.StepStoryboard
	return nil
}

// EnterImages moves STORYBOARD -> IMAGES.
func (w *Workflow) EnterImages() error {
	return w.advance(model.StepStoryboard, model.StepImages)
}

// EnterVideo moves IMAGES -> VIDEO. With scenes missing a reference image,
// confirm decides; a nil confirm or a refusal keeps the cursor in IMAGES.
func (w *Workflow) EnterVideo(missingImages int, confirm func(missing int) bool) error {
	if err := w.begin(model.StepImages); err != nil {
		return err
	}

	ok := missingImages <= 0 || (confirm != nil && confirm(missingImages))

	w.mu.Lock()
	defer w.mu.Unlock()
	w.pending = false
	if !ok {
		return &ConfirmationRequiredError{Missing: missingImages}
	}
	w.step = model.StepVideo
	return nil
}

// Back walks one step towards SCRIPT. AUTH and SCRIPT have no way back.
func (w *Workflow) Back() (model.Step, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.pending {
		return w.step, ErrTransitionPending
	}
	var prev model.Step
	switch w.step {
	case model.StepStoryboard:
		prev = model.StepScript
	case model.StepImages:
		prev = model.StepStoryboard
	case model.StepVideo:
		prev = model.StepImages
	default:
		return w.step, fmt.Errorf("%w: no step before %s", ErrInvalidTransition, w.step)
	}
	w.step = prev
	return prev, nil
}

// Require fails unless the cursor is at one of steps.
func (w *Workflow) Require(steps ...model.Step) error {
	current := w.Step()
	for _, s := range steps {
		if s == current {
			return nil
		}
	}
	return fmt.Errorf("%w: action not available in %s", ErrInvalidTransition, current)
}

func (w *Workflow) advance(from, to model.Step) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.pending {
		return ErrTransitionPending
	}
	if w.step != from {
		return fmt.Errorf("%w: %s -> %s from %s", ErrInvalidTransition, from, to, w.step)
	}
	w.step = to
	return nil
}

// begin reserves the cursor while a transition waits on outside work.
func (w *Workflow) begin(from model.Step) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.pending {
		return ErrTransitionPending
	}
	if w.step != from {
		return fmt.Errorf("%w: expected %s, at %s", ErrInvalidTransition, from, w.step)
	}
	w.pending = true
	return nil
}
