package storyboard

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"neon-storyboard-server/modules/common/config"
	"neon-storyboard-server/modules/common/credential"
	"neon-storyboard-server/modules/common/fallback"
	"neon-storyboard-server/modules/common/gemini"
	"neon-storyboard-server/modules/common/metrics"
	"neon-storyboard-server/modules/common/model"
	"neon-storyboard-server/modules/common/utils"
)

const (
	statusSuccess = "success"
	statusFailed  = "failed"
	statusDemo    = "demo"
)

// CredentialPrompter asks the user for a replacement API key while a video
// generation is suspended. An empty key or an error means declined.
type CredentialPrompter interface {
	RequestCredential(ctx context.Context, reason string) (string, error)
}

// CredentialPrompterFunc adapts a function to CredentialPrompter.
type CredentialPrompterFunc func(ctx context.Context, reason string) (string, error)

func (f CredentialPrompterFunc) RequestCredential(ctx context.Context, reason string) (string, error) {
	return f(ctx, reason)
}

// Notifier delivers user-visible notices.
type Notifier interface {
	Notify(ctx context.Context, message string)
}

// Options - 오케스트레이터 설정
type Options struct {
	ReasoningModel string
	ImageModel     string
	VideoModel     string
	RateLimit      gemini.RetryPolicy

	PollInterval      time.Duration
	VideoTimeout      time.Duration
	CredentialTimeout time.Duration
	DemoFallback      bool
	DemoVideoURL      string

	Prompter CredentialPrompter // nil disables credential recovery
	Notifier Notifier
	Metrics  *metrics.Metrics
}

// OptionsFromConfig copies the generation settings out of cfg.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		ReasoningModel:    cfg.ReasoningModel,
		ImageModel:        cfg.ImageModel,
		VideoModel:        cfg.VideoModel,
		RateLimit:         gemini.RetryPolicy{Attempts: cfg.RateLimitAttempts, Delay: cfg.RateLimitDelay},
		PollInterval:      cfg.PollInterval,
		VideoTimeout:      cfg.VideoTimeout,
		CredentialTimeout: cfg.CredentialTimeout,
		DemoFallback:      cfg.DemoFallback,
		DemoVideoURL:      cfg.DemoVideoURL,
	}
}

// Service runs the four generation operations against the AI gateway. Every
// call builds its client from the credential provider's current key.
type Service struct {
	opts    Options
	factory gemini.Factory
	creds   *credential.Provider
	log     *zap.Logger
	now     func() time.Time
}

// NewService - 세션별 오케스트레이터 생성
func NewService(opts Options, factory gemini.Factory, creds *credential.Provider, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.ReasoningModel == "" {
		opts.ReasoningModel = config.DefaultReasoningModel
	}
	if opts.ImageModel == "" {
		opts.ImageModel = config.DefaultImageModel
	}
	if opts.VideoModel == "" {
		opts.VideoModel = config.DefaultVideoModel
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 5 * time.Second
	}
	if opts.VideoTimeout <= 0 {
		opts.VideoTimeout = 10 * time.Minute
	}
	return &Service{
		opts:    opts,
		factory: factory,
		creds:   creds,
		log:     logger,
		now:     time.Now,
	}
}

type sceneSeed struct {
	Description       string      `json:"description"`
	VisualPrompt      string      `json:"visual_prompt"`
	CameraAngle       string      `json:"camera_angle"`
	EstimatedDuration interface{} `json:"estimated_duration"`
}

type storyboardResponse struct {
	Scenes []sceneSeed `json:"scenes"`
}

// Decompose splits script into scene seeds using the reasoning model.
func (s *Service) Decompose(ctx context.Context, script string) ([]model.Scene, error) {
	start := time.Now()

	resp, err := s.generateContent(ctx, gemini.ContentRequest{
		Model:             s.opts.ReasoningModel,
		SystemInstruction: SystemInstructionStoryboard,
		Prompt:            script,
		ResponseMIMEType:  "application/json",
		ResponseSchema:    storyboardSchema(),
	})
	if err != nil {
		s.observe(metrics.KindStoryboard, statusFailed, start)
		return nil, fmt.Errorf("storyboard decomposition failed: %w", err)
	}

	text := strings.TrimSpace(resp.Text)
	if text == "" {
		text = "{}"
	}
	var payload storyboardResponse
	if err := json.Unmarshal([]byte(text), &payload); err != nil {
		s.observe(metrics.KindStoryboard, statusFailed, start)
		return nil, fmt.Errorf("%w: storyboard json: %v", gemini.ErrMalformedResponse, err)
	}
	if payload.Scenes == nil {
		s.observe(metrics.KindStoryboard, statusFailed, start)
		return nil, fmt.Errorf("%w: scenes array missing", gemini.ErrMalformedResponse)
	}

	stamp := s.now().UnixMilli()
	scenes := make([]model.Scene, len(payload.Scenes))
	for i, seed := range payload.Scenes {
		scenes[i] = model.Scene{
			ID:          fmt.Sprintf("scene-%d-%d", stamp, i),
			Description: seed.Description,
			Prompt:      seed.VisualPrompt,
			Camera:      seed.CameraAngle,
			Duration:    fallback.SceneDuration(seed.EstimatedDuration),
			ImageStatus: model.StatusIdle,
			VideoStatus: model.StatusIdle,
		}
	}

	s.observe(metrics.KindStoryboard, statusSuccess, start)
	s.log.Info("Storyboard decomposed", zap.Int("scenes", len(scenes)))
	return scenes, nil
}

// GenerateImage renders prompt (already merged with the visual bible) and
// returns the first inline image as a data URI.
func (s *Service) GenerateImage(ctx context.Context, prompt string) (string, error) {
	start := time.Now()

	resp, err := s.generateContent(ctx, gemini.ContentRequest{
		Model:  s.opts.ImageModel,
		Prompt: prompt + ImageQualitySuffix,
	})
	if err != nil {
		s.observe(metrics.KindImage, statusFailed, start)
		return "", fmt.Errorf("image generation failed: %w", err)
	}

	for _, part := range resp.Parts {
		if len(part.Data) > 0 && part.MIMEType != "" {
			s.observe(metrics.KindImage, statusSuccess, start)
			return utils.EncodeDataURI(part.MIMEType, part.Data), nil
		}
	}

	s.observe(metrics.KindImage, statusFailed, start)
	return "", gemini.ErrNoImageData
}

// GenerateEDL asks the reasoning model for a CMX 3600 edit decision list of
// scenes in cut order. The text is returned verbatim.
func (s *Service) GenerateEDL(ctx context.Context, scenes []model.Scene) (string, error) {
	start := time.Now()

	resp, err := s.generateContent(ctx, gemini.ContentRequest{
		Model:             s.opts.ReasoningModel,
		SystemInstruction: SystemInstructionEDL,
		Prompt:            edlPrompt(scenes),
	})
	if err != nil {
		s.observe(metrics.KindEDL, statusFailed, start)
		return "", fmt.Errorf("edl generation failed: %w", err)
	}
	if strings.TrimSpace(resp.Text) == "" {
		s.observe(metrics.KindEDL, statusFailed, start)
		return "", fmt.Errorf("%w: empty edl text", gemini.ErrMalformedResponse)
	}

	s.observe(metrics.KindEDL, statusSuccess, start)
	return resp.Text, nil
}

func (s *Service) generateContent(ctx context.Context, req gemini.ContentRequest) (*gemini.ContentResponse, error) {
	return gemini.WithRateLimitRetry(ctx, s.opts.RateLimit, s.log, func(ctx context.Context) (*gemini.ContentResponse, error) {
		client, _, err := s.client(ctx)
		if err != nil {
			return nil, err
		}
		return client.GenerateContent(ctx, req)
	})
}

// client builds a fresh gateway bound to the currently resolved key.
func (s *Service) client(ctx context.Context) (gemini.Gateway, string, error) {
	key, source := s.creds.ResolveWithSource()
	s.log.Debug("Creating gateway client", zap.String("credential_source", string(source)))

	client, err := s.factory(ctx, key)
	if err != nil {
		return nil, "", err
	}
	return client, key, nil
}

func (s *Service) observe(kind, status string, start time.Time) {
	s.opts.Metrics.ObserveGeneration(kind, status, time.Since(start))
}
