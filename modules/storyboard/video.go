package storyboard

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"neon-storyboard-server/modules/common/fallback"
	"neon-storyboard-server/modules/common/gemini"
	"neon-storyboard-server/modules/common/metrics"
	"neon-storyboard-server/modules/common/utils"
)

// Veo output config
const (
	videoCount       = 1
	videoResolution  = "720p"
	videoAspectRatio = "16:9"
)

// Credential recovery outcomes (metric label values).
const (
	recoveryUnavailable = "unavailable"
	recoveryDeclined    = "declined"
	recoveryRecovered   = "recovered"
	recoveryFailed      = "failed"
)

// VideoResult is the outcome of GenerateVideo. Demo marks the placeholder
// clip; Cause then holds the failure it replaced.
type VideoResult struct {
	URL   string
	Demo  bool
	Cause error
}

// GenerateVideo submits a Veo job, polls it to completion and returns the clip
// URL with the API key attached. An authorization failure triggers one
// credential prompt and one retry with a fresh client. Any unrecovered
// failure becomes the demo clip when DemoFallback is on, and an error
// otherwise. Cancelling ctx aborts without falling back.
func (s *Service) GenerateVideo(ctx context.Context, prompt, referenceImage string) (VideoResult, error) {
	start := time.Now()
	req := gemini.VideoRequest{
		Model:          s.opts.VideoModel,
		Prompt:         prompt,
		NumberOfVideos: videoCount,
		Resolution:     videoResolution,
		AspectRatio:    videoAspectRatio,
	}

	uri, err := s.videoAttempt(ctx, req, referenceImage)
	if err == nil {
		s.observe(metrics.KindVideo, statusSuccess, start)
		return VideoResult{URL: uri}, nil
	}
	if ctx.Err() != nil {
		s.observe(metrics.KindVideo, statusFailed, start)
		return VideoResult{Cause: err}, ctx.Err()
	}

	kind := gemini.Classify(err)
	s.log.Warn("Video generation attempt failed", zap.String("kind", string(kind)), zap.Error(err))

	if kind == gemini.KindAuthorization {
		uri, err = s.recoverCredential(ctx, req, referenceImage, err)
		if err == nil {
			s.observe(metrics.KindVideo, statusSuccess, start)
			return VideoResult{URL: uri}, nil
		}
		if ctx.Err() != nil {
			s.observe(metrics.KindVideo, statusFailed, start)
			return VideoResult{Cause: err}, ctx.Err()
		}
	}

	return s.degrade(ctx, start, err)
}

// recoverCredential asks for a new key, installs it and retries once. On any
// failure it returns the error to report: cause when no retry happened, the
// retry's error otherwise.
func (s *Service) recoverCredential(ctx context.Context, req gemini.VideoRequest, referenceImage string, cause error) (string, error) {
	if s.opts.Prompter == nil {
		s.opts.Metrics.CredentialRecovery(recoveryUnavailable)
		return "", cause
	}

	promptCtx := ctx
	if s.opts.CredentialTimeout > 0 {
		var cancel context.CancelFunc
		promptCtx, cancel = context.WithTimeout(ctx, s.opts.CredentialTimeout)
		defer cancel()
	}

	key, err := s.opts.Prompter.RequestCredential(promptCtx, CredentialPromptMessage)
	if err != nil || !s.creds.SetOverride(key) {
		s.log.Info("Credential recovery declined", zap.Error(err))
		s.opts.Metrics.CredentialRecovery(recoveryDeclined)
		return "", cause
	}

	s.log.Info("Applying user provided key, retrying video generation")
	uri, err := s.videoAttempt(ctx, req, referenceImage)
	if err != nil {
		s.log.Warn("Video generation retry failed", zap.Error(err))
		s.opts.Metrics.CredentialRecovery(recoveryFailed)
		return "", err
	}
	s.opts.Metrics.CredentialRecovery(recoveryRecovered)
	return uri, nil
}

func (s *Service) degrade(ctx context.Context, start time.Time, err error) (VideoResult, error) {
	kind := gemini.Classify(err)
	if !s.opts.DemoFallback {
		s.observe(metrics.KindVideo, statusFailed, start)
		return VideoResult{Cause: err}, fmt.Errorf("video generation failed: %w", err)
	}

	s.log.Warn("Video generation degraded to demo clip", zap.String("kind", string(kind)), zap.Error(err))
	s.observe(metrics.KindVideo, statusDemo, start)
	s.opts.Metrics.VideoFallback(string(kind))
	if s.opts.Notifier != nil {
		s.opts.Notifier.Notify(ctx, DemoModeMessage(err))
	}
	return VideoResult{URL: fallback.DemoVideo(s.opts.DemoVideoURL), Demo: true, Cause: err}, nil
}

// videoAttempt runs one submit-and-poll cycle on a freshly built client,
// bounded by VideoTimeout.
func (s *Service) videoAttempt(ctx context.Context, req gemini.VideoRequest, referenceImage string) (string, error) {
	if referenceImage != "" {
		mimeType, data, err := utils.DecodeDataURI(referenceImage)
		if err != nil {
			return "", fmt.Errorf("reference image: %w", err)
		}
		req.Image = data
		req.ImageMIMEType = mimeType
	}

	attemptCtx, cancel := context.WithTimeout(ctx, s.opts.VideoTimeout)
	defer cancel()

	client, key, err := s.client(attemptCtx)
	if err != nil {
		return "", err
	}

	op, err := client.GenerateVideos(attemptCtx, req)
	if err != nil {
		return "", s.timeoutOr(ctx, attemptCtx, err)
	}
	if op == nil {
		return "", fmt.Errorf("%w: no operation handle", gemini.ErrMalformedResponse)
	}

	ticker := time.NewTicker(s.opts.PollInterval)
	defer ticker.Stop()

	for !op.Done {
		select {
		case <-attemptCtx.Done():
			return "", s.timeoutOr(ctx, attemptCtx, attemptCtx.Err())
		case <-ticker.C:
		}

		next, err := client.GetVideosOperation(attemptCtx, op)
		if err != nil {
			return "", s.timeoutOr(ctx, attemptCtx, err)
		}
		if next == nil {
			return "", fmt.Errorf("%w: empty operation status", gemini.ErrMalformedResponse)
		}
		op = next
		s.log.Debug("Polled video operation", zap.String("operation", op.Name), zap.Bool("done", op.Done))
	}

	if op.Err != nil {
		return "", op.Err
	}
	if op.VideoURI == "" {
		return "", gemini.ErrNoVideoURI
	}
	return withKey(op.VideoURI, key), nil
}

// timeoutOr reports the attempt deadline as ErrTimeout while leaving caller
// cancellation untouched.
func (s *Service) timeoutOr(parent, attempt context.Context, err error) error {
	if parent.Err() == nil && errors.Is(attempt.Err(), context.DeadlineExceeded) && !errors.Is(err, gemini.ErrTimeout) {
		return fmt.Errorf("%w: video not ready after %s", gemini.ErrTimeout, s.opts.VideoTimeout)
	}
	return err
}

// withKey appends the access key so the clip is fetchable.
func withKey(uri, key string) string {
	if key == "" {
		return uri
	}
	sep := "?"
	if strings.Contains(uri, "?") {
		sep = "&"
	}
	return uri + sep + "key=" + url.QueryEscape(key)
}
