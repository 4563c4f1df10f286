package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"neon-storyboard-server/modules/common/config"
	"neon-storyboard-server/modules/common/credential"
	"neon-storyboard-server/modules/common/gemini"
	"neon-storyboard-server/modules/common/metrics"
	"neon-storyboard-server/modules/common/model"
	"neon-storyboard-server/modules/common/utils"
	"neon-storyboard-server/modules/scene"
	"neon-storyboard-server/modules/storyboard"
	"neon-storyboard-server/modules/worker"
	"neon-storyboard-server/modules/workflow"
)

var (
	ErrBusy           = errors.New("scene generation already in progress")
	ErrNoVideo        = errors.New("scene has no completed video")
	ErrNotGenerating  = errors.New("scene is not generating")
	ErrUnknownJobKind = errors.New("unknown job kind")
)

// User-facing failure notices.
const (
	noticeStoryboardFailed = "分镜生成失败，请重试。"
	noticeImageFailed      = "场景 %d 参考图生成失败。"
	noticeVideoFailed      = "视频生成失败，请检查网络或稍后重试。"
	noticeEDLFailed        = "EDL 生成失败"
	noticeCancelled        = "场景 %d 的生成已取消。"
)

// Deps are the process-wide collaborators every session shares.
type Deps struct {
	Config  *config.Config
	Factory gemini.Factory
	Metrics *metrics.Metrics
	Logger  *zap.Logger
}

type jobKey struct {
	kind    worker.Kind
	sceneID string
}

// jobHandle - 씬 생성 1회분의 취소 핸들
type jobHandle struct {
	ctx    context.Context
	cancel context.CancelFunc
}

// Session is one wizard run: workflow cursor, scenes, visual bible, EDL and
// its own credential provider.
type Session struct {
	ID        string
	CreatedAt time.Time

	workflow     *workflow.Workflow
	scenes       *scene.Repository
	creds        *credential.Provider
	orchestrator *storyboard.Service
	broker       *CredentialBroker
	hub          *Hub
	log          *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	lastActive atomic.Int64
	inflight   atomic.Int32

	mu          sync.RWMutex
	script      string
	visualBible string
	edl         string
	jobs        map[jobKey]*jobHandle
}

// New - 세션 생성 (AUTH 단계)
func New(id string, deps Deps) *Session {
	cfg := deps.Config
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}
	log = log.With(zap.String("session_id", id))

	s := &Session{
		ID:        id,
		CreatedAt: time.Now(),
		workflow:  workflow.New(cfg.AppPassword),
		scenes:    scene.NewRepository(),
		creds:     credential.NewStaticProvider(cfg.GeminiAPIKey, cfg.GeminiDefaultAPIKey),
		log:       log,
		jobs:      make(map[jobKey]*jobHandle),
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.touch()

	s.hub = newHub(id, log, s.handleClientMessage)
	s.broker = newCredentialBroker(s.hub.Broadcast, log)

	opts := storyboard.OptionsFromConfig(cfg)
	opts.Prompter = s.broker
	opts.Notifier = s
	opts.Metrics = deps.Metrics
	s.orchestrator = storyboard.NewService(opts, deps.Factory, s.creds, log)

	s.scenes.OnChange(func(sc model.Scene) {
		s.hub.Broadcast(Event{Type: EventSceneUpdated, Scene: &sc})
	})
	return s
}

// Notify broadcasts a user-visible notice.
func (s *Session) Notify(_ context.Context, message string) {
	s.hub.Broadcast(Event{Type: EventNotice, Message: message})
}

// Attach connects a websocket client to the session's event stream.
func (s *Session) Attach(conn *websocket.Conn) string {
	s.touch()
	return s.hub.Attach(conn)
}

// SupplyCredential answers a pending credential request.
func (s *Session) SupplyCredential(requestID, key string) error {
	s.touch()
	return s.broker.Supply(requestID, key)
}

// PendingCredentialRequests lists unanswered credential requests.
func (s *Session) PendingCredentialRequests() []string {
	return s.broker.Pending()
}

func (s *Session) handleClientMessage(msg ClientMessage) {
	switch msg.Type {
	case MessageCredential:
		if err := s.SupplyCredential(msg.RequestID, msg.Key); err != nil {
			s.log.Warn("Credential answer rejected", zap.Error(err))
		}
	default:
		s.log.Debug("Ignoring client message", zap.String("type", msg.Type))
	}
}

// Authenticate passes the password gate.
func (s *Session) Authenticate(password string) error {
	s.touch()
	if err := s.workflow.Authenticate(password); err != nil {
		return err
	}
	s.stepChanged()
	return nil
}

// SetScript saves a draft script without decomposing it.
func (s *Session) SetScript(script string) error {
	s.touch()
	if err := s.workflow.Require(model.StepScript); err != nil {
		return err
	}
	s.mu.Lock()
	s.script = script
	s.mu.Unlock()
	return nil
}

// SubmitScript decomposes script and enters STORYBOARD with the new scenes.
func (s *Session) SubmitScript(ctx context.Context, script string) error {
	s.touch()
	err := s.workflow.EnterStoryboard(ctx, script, func(ctx context.Context, script string) error {
		scenes, err := s.orchestrator.Decompose(ctx, script)
		if err != nil {
			return err
		}
		if err := s.scenes.Replace(scenes); err != nil {
			return err
		}
		s.mu.Lock()
		s.script = script
		s.edl = ""
		s.mu.Unlock()
		return nil
	})
	if err != nil {
		if !errors.Is(err, workflow.ErrEmptyScript) && !errors.Is(err, workflow.ErrInvalidTransition) {
			s.log.Error("Storyboard generation failed", zap.Error(err))
			s.Notify(ctx, noticeStoryboardFailed)
		}
		return err
	}
	s.hub.Broadcast(Event{Type: EventScenesReplaced, Scenes: s.scenes.List()})
	s.stepChanged()
	return nil
}

// EditScene applies user edits to description, prompt and camera.
func (s *Session) EditScene(id string, edit model.SceneEdit) (model.Scene, error) {
	s.touch()
	if err := s.workflow.Require(model.StepStoryboard, model.StepImages); err != nil {
		return model.Scene{}, err
	}
	return s.scenes.Patch(id, edit.Apply)
}

// SetVisualBible replaces the global visual bible.
func (s *Session) SetVisualBible(text string) error {
	s.touch()
	if err := s.workflow.Require(model.StepStoryboard, model.StepImages, model.StepVideo); err != nil {
		return err
	}
	s.mu.Lock()
	s.visualBible = text
	s.mu.Unlock()
	return nil
}

// VisualBible - 현재 전역 비주얼 설정
func (s *Session) VisualBible() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.visualBible
}

// EnterImages moves STORYBOARD -> IMAGES.
func (s *Session) EnterImages() error {
	s.touch()
	if err := s.workflow.EnterImages(); err != nil {
		return err
	}
	s.stepChanged()
	return nil
}

// EnterVideo moves IMAGES -> VIDEO. confirmed answers the missing-image
// question; without it a *workflow.ConfirmationRequiredError is returned.
func (s *Session) EnterVideo(confirmed bool) error {
	s.touch()
	missing := s.scenes.MissingReferenceImages()
	if err := s.workflow.EnterVideo(missing, func(int) bool { return confirmed }); err != nil {
		return err
	}
	s.stepChanged()
	return nil
}

// Back walks one step back.
func (s *Session) Back() (model.Step, error) {
	s.touch()
	step, err := s.workflow.Back()
	if err != nil {
		return step, err
	}
	s.stepChanged()
	return step, nil
}

// Step - 현재 워크플로 단계
func (s *Session) Step() model.Step {
	return s.workflow.Step()
}

// Scenes returns the scene sequence.
func (s *Session) Scenes() []model.Scene {
	return s.scenes.List()
}

// Snapshot returns the session state for the presentation layer.
func (s *Session) Snapshot() model.SessionSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return model.SessionSnapshot{
		SessionID:    s.ID,
		Step:         s.workflow.Step(),
		Script:       s.script,
		VisualBible:  s.visualBible,
		Scenes:       s.scenes.List(),
		EDL:          s.edl,
		MissingImage: s.scenes.MissingReferenceImages(),
	}
}

// StartImage marks the scene generating. A scene already generating is
// rejected with ErrBusy.
func (s *Session) StartImage(id string) (model.Scene, error) {
	s.touch()
	if err := s.workflow.Require(model.StepImages, model.StepVideo); err != nil {
		return model.Scene{}, err
	}
	return s.start(worker.KindImage, id)
}

// StartVideo marks the scene's video generating.
func (s *Session) StartVideo(id string) (model.Scene, error) {
	s.touch()
	if err := s.workflow.Require(model.StepVideo); err != nil {
		return model.Scene{}, err
	}
	return s.start(worker.KindVideo, id)
}

func (s *Session) start(kind worker.Kind, id string) (model.Scene, error) {
	busy := false
	updated, err := s.scenes.Patch(id, func(sc model.Scene) model.Scene {
		if statusOf(kind, sc) == model.StatusGenerating {
			busy = true
			return sc
		}
		return withStatus(kind, sc, model.StatusGenerating)
	})
	if err != nil {
		return model.Scene{}, err
	}
	if busy {
		return updated, fmt.Errorf("%w: %s %s", ErrBusy, kind, id)
	}

	s.register(jobKey{kind, id})
	return updated, nil
}

// Abort marks a started generation failed, e.g. when dispatch fails.
func (s *Session) Abort(kind worker.Kind, id string) {
	s.mu.Lock()
	if h, ok := s.jobs[jobKey{kind, id}]; ok {
		h.cancel()
		delete(s.jobs, jobKey{kind, id})
	}
	s.mu.Unlock()

	_, err := s.scenes.Patch(id, func(sc model.Scene) model.Scene {
		if statusOf(kind, sc) != model.StatusGenerating {
			return sc
		}
		return withStatus(kind, sc, model.StatusFailed)
	})
	if err != nil {
		s.log.Warn("Abort failed", zap.String("scene_id", id), zap.Error(err))
	}
}

// Cancel stops a queued or running generation. The scene ends up failed.
func (s *Session) Cancel(kind worker.Kind, id string) error {
	s.touch()
	s.mu.Lock()
	_, ok := s.jobs[jobKey{kind, id}]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s %s", ErrNotGenerating, kind, id)
	}
	s.Abort(kind, id)
	s.Notify(context.Background(), fmt.Sprintf(noticeCancelled, s.scenes.Index(id)+1))
	return nil
}

// GenerateSceneImage runs a started image generation. Failures are recorded
// on the scene and returned for logging.
func (s *Session) GenerateSceneImage(ctx context.Context, id string) error {
	ctx, h, done, err := s.jobContext(ctx, worker.KindImage, id)
	if err != nil {
		return err
	}
	defer done()

	sc, ok := s.scenes.Get(id)
	if !ok {
		return fmt.Errorf("%w: %s", scene.ErrSceneNotFound, id)
	}
	log := s.log.With(zap.String("scene_id", id))

	prompt := storyboard.BuildImagePrompt(s.VisualBible(), sc.Prompt)
	uri, err := s.orchestrator.GenerateImage(ctx, prompt)
	if !s.owns(worker.KindImage, id, h) {
		log.Info("Discarding result of superseded image generation")
		return ctx.Err()
	}
	if err != nil {
		log.Warn("Image generation failed", zap.String("kind", string(gemini.Classify(err))), zap.Error(err))
		s.markFailed(worker.KindImage, id)
		if ctx.Err() == nil {
			s.Notify(ctx, fmt.Sprintf(noticeImageFailed, s.scenes.Index(id)+1))
		}
		return err
	}

	_, err = s.scenes.Patch(id, func(sc model.Scene) model.Scene {
		sc.ReferenceImage = uri
		sc.ImageStatus = model.StatusCompleted
		return sc
	})
	if err == nil {
		log.Info("Reference image generated")
	}
	return err
}

// GenerateSceneVideo runs a started video generation.
func (s *Session) GenerateSceneVideo(ctx context.Context, id string) error {
	ctx, h, done, err := s.jobContext(ctx, worker.KindVideo, id)
	if err != nil {
		return err
	}
	defer done()

	sc, ok := s.scenes.Get(id)
	if !ok {
		return fmt.Errorf("%w: %s", scene.ErrSceneNotFound, id)
	}
	log := s.log.With(zap.String("scene_id", id))

	result, err := s.orchestrator.GenerateVideo(ctx, sc.Prompt, sc.ReferenceImage)
	if !s.owns(worker.KindVideo, id, h) {
		log.Info("Discarding result of superseded video generation")
		return ctx.Err()
	}
	if err != nil {
		log.Warn("Video generation failed", zap.String("kind", string(gemini.Classify(err))), zap.Error(err))
		s.markFailed(worker.KindVideo, id)
		if ctx.Err() == nil {
			s.Notify(ctx, noticeVideoFailed)
		}
		return err
	}

	_, err = s.scenes.Patch(id, func(sc model.Scene) model.Scene {
		sc.VideoURL = result.URL
		sc.VideoDemo = result.Demo
		sc.VideoStatus = model.StatusCompleted
		return sc
	})
	if err == nil {
		log.Info("Video generated", zap.Bool("demo", result.Demo))
	}
	return err
}

// UploadSceneImage installs a user supplied reference image, bypassing
// generation.
func (s *Session) UploadSceneImage(id string, data []byte) (model.Scene, error) {
	s.touch()
	if err := s.workflow.Require(model.StepImages, model.StepVideo); err != nil {
		return model.Scene{}, err
	}
	mimeType, normalized, err := utils.NormalizeUpload(data)
	if err != nil {
		return model.Scene{}, err
	}
	uri := utils.EncodeDataURI(mimeType, normalized)

	busy := false
	updated, err := s.scenes.Patch(id, func(sc model.Scene) model.Scene {
		if sc.ImageStatus == model.StatusGenerating {
			busy = true
			return sc
		}
		sc.ReferenceImage = uri
		sc.ImageStatus = model.StatusCompleted
		return sc
	})
	if err != nil {
		return model.Scene{}, err
	}
	if busy {
		return updated, fmt.Errorf("%w: image %s", ErrBusy, id)
	}
	return updated, nil
}

// GenerateEDL builds the edit decision list from the current scenes.
func (s *Session) GenerateEDL(ctx context.Context) (string, error) {
	s.touch()
	if err := s.workflow.Require(model.StepVideo); err != nil {
		return "", err
	}
	edl, err := s.orchestrator.GenerateEDL(ctx, s.scenes.List())
	if err != nil {
		s.log.Error("EDL generation failed", zap.Error(err))
		s.Notify(ctx, noticeEDLFailed)
		return "", err
	}

	s.mu.Lock()
	s.edl = edl
	s.mu.Unlock()
	s.hub.Broadcast(Event{Type: EventEDLReady, Message: edl})
	return edl, nil
}

// VideoClip returns the clip URL and its download file name.
func (s *Session) VideoClip(id string) (string, string, error) {
	s.touch()
	sc, ok := s.scenes.Get(id)
	if !ok {
		return "", "", fmt.Errorf("%w: %s", scene.ErrSceneNotFound, id)
	}
	if sc.VideoStatus != model.StatusCompleted || sc.VideoURL == "" {
		return "", "", fmt.Errorf("%w: %s", ErrNoVideo, id)
	}
	return sc.VideoURL, storyboard.ClipFilename(s.scenes.Index(id) + 1), nil
}

// Run executes a dispatched job.
func (s *Session) Run(ctx context.Context, job worker.Job) error {
	switch job.Kind {
	case worker.KindImage:
		return s.GenerateSceneImage(ctx, job.SceneID)
	case worker.KindVideo:
		return s.GenerateSceneVideo(ctx, job.SceneID)
	}
	return fmt.Errorf("%w: %s", ErrUnknownJobKind, job.Kind)
}

// Close cancels every running generation and disconnects clients.
func (s *Session) Close() {
	s.cancel()
	s.hub.Close()
}

// Idle reports whether no job is queued or running and no client is connected.
func (s *Session) Idle() bool {
	s.mu.RLock()
	pending := len(s.jobs)
	s.mu.RUnlock()
	return pending == 0 && s.inflight.Load() == 0 && s.hub.Len() == 0
}

// LastActive - 마지막 활동 시각
func (s *Session) LastActive() time.Time {
	return time.Unix(0, s.lastActive.Load())
}

func (s *Session) touch() {
	s.lastActive.Store(time.Now().UnixNano())
}

func (s *Session) stepChanged() {
	s.hub.Broadcast(Event{Type: EventStepChanged, Step: s.workflow.Step()})
}

func (s *Session) register(key jobKey) {
	ctx, cancel := context.WithCancel(s.ctx)
	h := &jobHandle{ctx: ctx, cancel: cancel}

	s.mu.Lock()
	if prev, ok := s.jobs[key]; ok {
		prev.cancel()
	}
	s.jobs[key] = h
	s.mu.Unlock()
}

// jobContext joins the worker's ctx with the scene's cancel handle, which
// also ends with the session. Jobs that were cancelled while queued have no
// handle left and are refused.
func (s *Session) jobContext(ctx context.Context, kind worker.Kind, id string) (context.Context, *jobHandle, func(), error) {
	key := jobKey{kind, id}
	s.mu.Lock()
	h, ok := s.jobs[key]
	s.mu.Unlock()
	if !ok {
		return nil, nil, nil, fmt.Errorf("%w: %s %s", ErrNotGenerating, kind, id)
	}

	s.inflight.Add(1)
	s.touch()
	ctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(h.ctx, cancel)

	return ctx, h, func() {
		stop()
		cancel()
		s.mu.Lock()
		if s.jobs[key] == h {
			delete(s.jobs, key)
		}
		s.mu.Unlock()
		h.cancel()
		s.inflight.Add(-1)
		s.touch()
	}, nil
}

// owns reports whether h is still the live handle for the scene's job.
func (s *Session) owns(kind worker.Kind, id string, h *jobHandle) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jobs[jobKey{kind, id}] == h
}

func (s *Session) markFailed(kind worker.Kind, id string) {
	_, err := s.scenes.Patch(id, func(sc model.Scene) model.Scene {
		return withStatus(kind, sc, model.StatusFailed)
	})
	if err != nil {
		s.log.Warn("Failed to record failure", zap.String("scene_id", id), zap.Error(err))
	}
}

func statusOf(kind worker.Kind, sc model.Scene) model.Status {
	if kind == worker.KindVideo {
		return sc.VideoStatus
	}
	return sc.ImageStatus
}

func withStatus(kind worker.Kind, sc model.Scene, status model.Status) model.Scene {
	if kind == worker.KindVideo {
		sc.VideoStatus = status
	} else {
		sc.ImageStatus = status
	}
	return sc
}
