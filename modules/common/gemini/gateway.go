package gemini

import (
	"context"

	"google.golang.org/genai"
)

// Gateway is the slice of the Gemini / Veo API the storyboard needs.
type Gateway interface {
	GenerateContent(ctx context.Context, req ContentRequest) (*ContentResponse, error)
	GenerateVideos(ctx context.Context, req VideoRequest) (*VideoOperation, error)
	GetVideosOperation(ctx context.Context, op *VideoOperation) (*VideoOperation, error)
}

// Factory builds a Gateway bound to one API key. The orchestrator calls it per
// attempt so a freshly installed key takes effect immediately.
type Factory func(ctx context.Context, apiKey string) (Gateway, error)

// ContentRequest - 텍스트/이미지 생성 요청
type ContentRequest struct {
	Model             string
	SystemInstruction string
	Prompt            string
	ResponseMIMEType  string
	ResponseSchema    *genai.Schema
}

// Part is one piece of generated content: text or inline binary data.
type Part struct {
	Text     string
	MIMEType string
	Data     []byte
}

// ContentResponse - 첫 번째 candidate의 내용
type ContentResponse struct {
	Text  string
	Parts []Part
}

// VideoRequest - Veo 생성 요청
type VideoRequest struct {
	Model          string
	Prompt         string
	Image          []byte
	ImageMIMEType  string
	NumberOfVideos int32
	Resolution     string
	AspectRatio    string
}

// VideoOperation is a long-running video generation handle.
type VideoOperation struct {
	Name     string
	Done     bool
	VideoURI string
	Err      error // set when the backend reports the operation as failed

	raw *genai.GenerateVideosOperation
}
