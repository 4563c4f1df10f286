package gemini

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

const (
	opGenerateContent = "generate_content"
	opGenerateVideos  = "generate_videos"
	opGetOperation    = "get_videos_operation"
)

type genaiGateway struct {
	client *genai.Client
}

// NewGenAIFactory returns a Factory that creates Gemini API clients.
func NewGenAIFactory() Factory {
	return func(ctx context.Context, apiKey string) (Gateway, error) {
		if strings.TrimSpace(apiKey) == "" {
			return nil, fmt.Errorf("%w: no API key configured", ErrAuthorization)
		}
		client, err := genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  apiKey,
			Backend: genai.BackendGeminiAPI,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create genai client: %w", err)
		}
		return &genaiGateway{client: client}, nil
	}
}

func (g *genaiGateway) GenerateContent(ctx context.Context, req ContentRequest) (*ContentResponse, error) {
	config := &genai.GenerateContentConfig{}
	if req.SystemInstruction != "" {
		config.SystemInstruction = genai.NewContentFromText(req.SystemInstruction, genai.RoleUser)
	}
	if req.ResponseMIMEType != "" {
		config.ResponseMIMEType = req.ResponseMIMEType
	}
	if req.ResponseSchema != nil {
		config.ResponseSchema = req.ResponseSchema
	}

	result, err := g.client.Models.GenerateContent(ctx, req.Model, genai.Text(req.Prompt), config)
	if err != nil {
		return nil, Normalize(opGenerateContent, err)
	}

	resp := &ContentResponse{}
	if result == nil || len(result.Candidates) == 0 || result.Candidates[0].Content == nil {
		return resp, nil
	}

	var text strings.Builder
	for _, part := range result.Candidates[0].Content.Parts {
		if part == nil {
			continue
		}
		if part.Text != "" && !part.Thought {
			text.WriteString(part.Text)
			resp.Parts = append(resp.Parts, Part{Text: part.Text})
		}
		if part.InlineData != nil && len(part.InlineData.Data) > 0 {
			resp.Parts = append(resp.Parts, Part{
				MIMEType: part.InlineData.MIMEType,
				Data:     part.InlineData.Data,
			})
		}
	}
	resp.Text = text.String()
	return resp, nil
}

func (g *genaiGateway) GenerateVideos(ctx context.Context, req VideoRequest) (*VideoOperation, error) {
	var image *genai.Image
	if len(req.Image) > 0 {
		image = &genai.Image{ImageBytes: req.Image, MIMEType: req.ImageMIMEType}
	}

	op, err := g.client.Models.GenerateVideos(ctx, req.Model, req.Prompt, image, &genai.GenerateVideosConfig{
		NumberOfVideos: req.NumberOfVideos,
		Resolution:     req.Resolution,
		AspectRatio:    req.AspectRatio,
	})
	if err != nil {
		return nil, Normalize(opGenerateVideos, err)
	}
	return fromGenAIOperation(op), nil
}

func (g *genaiGateway) GetVideosOperation(ctx context.Context, op *VideoOperation) (*VideoOperation, error) {
	if op == nil || op.raw == nil {
		return nil, fmt.Errorf("%w: operation handle missing", ErrMalformedResponse)
	}
	next, err := g.client.Operations.GetVideosOperation(ctx, op.raw, nil)
	if err != nil {
		return nil, Normalize(opGetOperation, err)
	}
	return fromGenAIOperation(next), nil
}

func fromGenAIOperation(op *genai.GenerateVideosOperation) *VideoOperation {
	if op == nil {
		return &VideoOperation{}
	}
	out := &VideoOperation{
		Name: op.Name,
		Done: op.Done,
		Err:  operationError(opGetOperation, op.Error),
		raw:  op,
	}
	if op.Response != nil && len(op.Response.GeneratedVideos) > 0 {
		if v := op.Response.GeneratedVideos[0]; v != nil && v.Video != nil {
			out.VideoURI = v.Video.URI
		}
	}
	return out
}
