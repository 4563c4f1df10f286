package storyboard

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"neon-storyboard-server/modules/common/credential"
	"neon-storyboard-server/modules/common/gemini"
	"neon-storyboard-server/modules/common/gemini/mocks"
	"neon-storyboard-server/modules/common/metrics"
	"neon-storyboard-server/modules/common/model"
)

func newTestService(t *testing.T, gw *mocks.MockGateway, keys *[]string, opts Options) *Service {
	t.Helper()
	if opts.RateLimit.Delay == 0 {
		opts.RateLimit = gemini.RetryPolicy{Attempts: 3, Delay: time.Millisecond}
	}
	svc := NewService(opts, gw.Factory(keys), credential.NewStaticProvider("env-key", ""), zap.NewNop())
	svc.now = func() time.Time { return time.UnixMilli(1700000000000) }
	return svc
}

func TestDecompose(t *testing.T) {
	gw := mocks.NewMockGateway(t)
	svc := newTestService(t, gw, nil, Options{})

	body := `{"scenes":[
		{"description":"雨夜","visual_prompt":"霓虹街道","camera_angle":"推镜头","estimated_duration":3},
		{"description":"对峙","visual_prompt":"特写","camera_angle":"特写","estimated_duration":0},
		{"description":"离开","visual_prompt":"背影","camera_angle":"广角","estimated_duration":5}
	]}`
	gw.On("GenerateContent", mock.Anything, mock.MatchedBy(func(req gemini.ContentRequest) bool {
		return req.Model == "gemini-2.5-flash" &&
			req.SystemInstruction == SystemInstructionStoryboard &&
			req.ResponseMIMEType == "application/json" &&
			req.ResponseSchema != nil &&
			req.Prompt == "剧本"
	})).Return(&gemini.ContentResponse{Text: body}, nil).Once()

	scenes, err := svc.Decompose(context.Background(), "剧本")
	require.NoError(t, err)
	require.Len(t, scenes, 3)

	ids := map[string]struct{}{}
	for _, s := range scenes {
		ids[s.ID] = struct{}{}
		assert.Equal(t, model.StatusIdle, s.ImageStatus)
		assert.Equal(t, model.StatusIdle, s.VideoStatus)
		assert.True(t, strings.HasPrefix(s.ID, "scene-1700000000000-"))
	}
	assert.Len(t, ids, 3)

	assert.Equal(t, "霓虹街道", scenes[0].Prompt)
	assert.Equal(t, "推镜头", scenes[0].Camera)
	assert.Equal(t, 3, scenes[1].Duration, "non-positive duration falls back to the default")
	assert.Equal(t, 5, scenes[2].Duration)
}

func TestDecompose_MalformedResponse(t *testing.T) {
	for name, body := range map[string]string{
		"missing scenes": `{"shots":[]}`,
		"not json":       `scenes: none`,
		"empty":          ``,
	} {
		t.Run(name, func(t *testing.T) {
			gw := mocks.NewMockGateway(t)
			svc := newTestService(t, gw, nil, Options{})
			gw.On("GenerateContent", mock.Anything, mock.Anything).Return(&gemini.ContentResponse{Text: body}, nil).Once()

			_, err := svc.Decompose(context.Background(), "script")
			assert.ErrorIs(t, err, gemini.ErrMalformedResponse)
			assert.Equal(t, gemini.KindMalformedResponse, gemini.Classify(err))
		})
	}
}

func TestDecompose_RetriesRateLimit(t *testing.T) {
	gw := mocks.NewMockGateway(t)
	svc := newTestService(t, gw, nil, Options{})

	gw.On("GenerateContent", mock.Anything, mock.Anything).
		Return(nil, &gemini.GatewayError{Code: 429, Status: "RESOURCE_EXHAUSTED", Message: "quota"}).Once()
	gw.On("GenerateContent", mock.Anything, mock.Anything).
		Return(&gemini.ContentResponse{Text: `{"scenes":[]}`}, nil).Once()

	scenes, err := svc.Decompose(context.Background(), "script")
	require.NoError(t, err)
	assert.Empty(t, scenes)
}

func TestGenerateImage(t *testing.T) {
	gw := mocks.NewMockGateway(t)
	m := metrics.New()
	svc := newTestService(t, gw, nil, Options{Metrics: m})

	prompt := BuildImagePrompt("黑白胶片", "女孩站在雨中")
	gw.On("GenerateContent", mock.Anything, mock.MatchedBy(func(req gemini.ContentRequest) bool {
		return req.Model == "gemini-2.5-flash-image" &&
			req.Prompt == "(Global Visual Settings / 全局视觉设定: 黑白胶片)。 女孩站在雨中"+ImageQualitySuffix
	})).Return(&gemini.ContentResponse{Parts: []gemini.Part{
		{Text: "here you go"},
		{MIMEType: "image/png", Data: []byte{0x89, 0x50}},
		{MIMEType: "image/jpeg", Data: []byte{0xff}},
	}}, nil).Once()

	uri, err := svc.GenerateImage(context.Background(), prompt)
	require.NoError(t, err)
	assert.Equal(t, "data:image/png;base64,iVA=", uri)
}

func TestGenerateImage_NoImageData(t *testing.T) {
	gw := mocks.NewMockGateway(t)
	svc := newTestService(t, gw, nil, Options{})
	gw.On("GenerateContent", mock.Anything, mock.Anything).
		Return(&gemini.ContentResponse{Text: "I cannot draw that", Parts: []gemini.Part{{Text: "I cannot draw that"}}}, nil).Once()

	_, err := svc.GenerateImage(context.Background(), "prompt")
	assert.ErrorIs(t, err, gemini.ErrNoImageData)
}

func TestSequenceData(t *testing.T) {
	scenes := []model.Scene{
		{ID: "a", Description: "A", Duration: 3},
		{ID: "b", Description: "B", Duration: 4},
		{ID: "c", Description: "C", Duration: 2},
	}
	lines := strings.Split(SequenceData(scenes), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "SCENE_1: Duration=3s. Description=A. Filename=scene_1.mp4", lines[0])
	assert.Equal(t, "SCENE_2: Duration=4s. Description=B. Filename=scene_2.mp4", lines[1])
	assert.Equal(t, "SCENE_3: Duration=2s. Description=C. Filename=scene_3.mp4", lines[2])
}

func TestGenerateEDL(t *testing.T) {
	gw := mocks.NewMockGateway(t)
	svc := newTestService(t, gw, nil, Options{})
	scenes := []model.Scene{
		{ID: "a", Description: "A", Duration: 3},
		{ID: "b", Description: "B", Duration: 4},
	}
	edl := "TITLE: NEON\n001  SCENE_01 V C 01:00:00:00 01:00:03:00"

	gw.On("GenerateContent", mock.Anything, mock.MatchedBy(func(req gemini.ContentRequest) bool {
		return req.SystemInstruction == SystemInstructionEDL &&
			req.Prompt == "Video Sequence Data:\nSCENE_1: Duration=3s. Description=A. Filename=scene_1.mp4\nSCENE_2: Duration=4s. Description=B. Filename=scene_2.mp4"
	})).Return(&gemini.ContentResponse{Text: edl}, nil).Once()

	got, err := svc.GenerateEDL(context.Background(), scenes)
	require.NoError(t, err)
	assert.Equal(t, edl, got)
}

func TestGenerateEDL_Errors(t *testing.T) {
	gw := mocks.NewMockGateway(t)
	svc := newTestService(t, gw, nil, Options{})

	gw.On("GenerateContent", mock.Anything, mock.Anything).
		Return(nil, &gemini.GatewayError{Code: 500, Message: "internal"}).Once()
	_, err := svc.GenerateEDL(context.Background(), nil)
	assert.ErrorIs(t, err, gemini.ErrTransient)

	gw.On("GenerateContent", mock.Anything, mock.Anything).
		Return(&gemini.ContentResponse{Text: "  "}, nil).Once()
	_, err = svc.GenerateEDL(context.Background(), nil)
	assert.ErrorIs(t, err, gemini.ErrMalformedResponse)
}

func TestBuildImagePrompt_NoBible(t *testing.T) {
	assert.Equal(t, "prompt", BuildImagePrompt("  ", "prompt"))
}
