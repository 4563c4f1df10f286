package scene

import (
	"errors"
	"fmt"
	"sync"

	"neon-storyboard-server/modules/common/model"
)

var (
	ErrSceneNotFound = errors.New("scene not found")
	ErrInvalidPatch  = errors.New("invalid scene patch")
)

// Repository is the ordered scene sequence of one session. Order is the cut
// order and never changes; every mutation swaps in a new slice with exactly
// one element replaced.
type Repository struct {
	mu       sync.RWMutex
	scenes   []model.Scene
	onChange func(model.Scene)
}

// NewRepository - 빈 시퀀스
func NewRepository() *Repository {
	return &Repository{}
}

// OnChange registers a hook called after every successful patch, outside the lock.
func (r *Repository) OnChange(fn func(model.Scene)) {
	r.mu.Lock()
	r.onChange = fn
	r.mu.Unlock()
}

// Replace installs a whole new sequence.
func (r *Repository) Replace(scenes []model.Scene) error {
	seen := make(map[string]struct{}, len(scenes))
	next := make([]model.Scene, len(scenes))
	for i, s := range scenes {
		if err := s.Validate(); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidPatch, err)
		}
		if _, dup := seen[s.ID]; dup {
			return fmt.Errorf("%w: duplicate id %s", ErrInvalidPatch, s.ID)
		}
		seen[s.ID] = struct{}{}
		next[i] = s
	}

	r.mu.Lock()
	r.scenes = next
	r.mu.Unlock()
	return nil
}

// Patch applies fn to the latest stored version of the scene and installs the
// result in place. fn runs under the repository lock, so concurrent patches to
// different scenes never lose each other's updates. fn must not change the id.
func (r *Repository) Patch(id string, fn func(model.Scene) model.Scene) (model.Scene, error) {
	r.mu.Lock()
	idx := r.indexLocked(id)
	if idx < 0 {
		r.mu.Unlock()
		return model.Scene{}, fmt.Errorf("%w: %s", ErrSceneNotFound, id)
	}

	updated := fn(r.scenes[idx])
	if updated.ID != id {
		r.mu.Unlock()
		return model.Scene{}, fmt.Errorf("%w: id changed from %s to %s", ErrInvalidPatch, id, updated.ID)
	}
	if err := updated.Validate(); err != nil {
		r.mu.Unlock()
		return model.Scene{}, fmt.Errorf("%w: %v", ErrInvalidPatch, err)
	}

	next := make([]model.Scene, len(r.scenes))
	copy(next, r.scenes)
	next[idx] = updated
	r.scenes = next
	hook := r.onChange
	r.mu.Unlock()

	if hook != nil {
		hook(updated)
	}
	return updated, nil
}

// Get returns the scene with id.
func (r *Repository) Get(id string) (model.Scene, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	idx := r.indexLocked(id)
	if idx < 0 {
		return model.Scene{}, false
	}
	return r.scenes[idx], true
}

// Index returns the 0-based cut position of id, or -1.
func (r *Repository) Index(id string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.indexLocked(id)
}

// List returns a copy of the sequence.
func (r *Repository) List() []model.Scene {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.Scene, len(r.scenes))
	copy(out, r.scenes)
	return out
}

// Len - 씬 개수
func (r *Repository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.scenes)
}

// MissingReferenceImages counts scenes without a reference image.
func (r *Repository) MissingReferenceImages() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	missing := 0
	for _, s := range r.scenes {
		if !s.HasReferenceImage() {
			missing++
		}
	}
	return missing
}

func (r *Repository) indexLocked(id string) int {
	for i := range r.scenes {
		if r.scenes[i].ID == id {
			return i
		}
	}
	return -1
}
