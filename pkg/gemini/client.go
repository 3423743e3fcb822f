// Package gemini wraps the Vertex AI Gemini SDK for single-shot JSON
// completions.
package gemini

import (
	"context"
	"errors"
	"strings"

	"cloud.google.com/go/vertexai/genai"
	"github.com/rotisserie/eris"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Client defines the Gemini operations used by paper-cli.
type Client interface {
	Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error)
	Close() error
}

// GenerateRequest is one system-instructed prompt expecting a JSON reply.
type GenerateRequest struct {
	Model           string
	System          string
	Prompt          string
	MaxOutputTokens int32
}

// GenerateResponse carries the reply text and token usage.
type GenerateResponse struct {
	Text         string
	FinishReason string
	InputTokens  int64
	OutputTokens int64
}

type vertexClient struct {
	base *genai.Client
}

// NewClient connects to Vertex AI in project/location. Application default
// credentials are used unless credentialsFile is set.
func NewClient(ctx context.Context, project, location, credentialsFile string) (Client, error) {
	if project == "" || location == "" {
		return nil, eris.New("gemini: project and location cannot be empty")
	}
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	base, err := genai.NewClient(ctx, project, location, opts...)
	if err != nil {
		return nil, eris.Wrap(err, "gemini: new client")
	}
	return &vertexClient{base: base}, nil
}

func (c *vertexClient) Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	model := c.base.GenerativeModel(req.Model)
	if req.System != "" {
		model.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(req.System)},
		}
	}
	model.GenerationConfig = genai.GenerationConfig{
		ResponseMIMEType: "application/json",
		Temperature:      genai.Ptr[float32](0),
	}
	if req.MaxOutputTokens > 0 {
		model.GenerationConfig.MaxOutputTokens = genai.Ptr(req.MaxOutputTokens)
	}

	resp, err := model.GenerateContent(ctx, genai.Text(req.Prompt))
	if err != nil {
		return nil, &Error{Code: status.Code(err), Err: eris.Wrap(err, "gemini: generate content")}
	}
	return fromResponse(resp), nil
}

func (c *vertexClient) Close() error {
	if c.base != nil {
		return c.base.Close()
	}
	return nil
}

func fromResponse(resp *genai.GenerateContentResponse) *GenerateResponse {
	out := &GenerateResponse{}
	if resp == nil {
		return out
	}
	if len(resp.Candidates) > 0 {
		cand := resp.Candidates[0]
		out.FinishReason = cand.FinishReason.String()
		if cand.Content != nil {
			var b strings.Builder
			for _, p := range cand.Content.Parts {
				if t, ok := p.(genai.Text); ok {
					b.WriteString(string(t))
				}
			}
			out.Text = b.String()
		}
	}
	if resp.UsageMetadata != nil {
		out.InputTokens = int64(resp.UsageMetadata.PromptTokenCount)
		out.OutputTokens = int64(resp.UsageMetadata.CandidatesTokenCount)
	}
	return out
}

// Error is a failed Generate call with the gRPC status code it carried.
type Error struct {
	Code codes.Code
	Err  error
}

func (e *Error) Error() string { return e.Err.Error() }

func (e *Error) Unwrap() error { return e.Err }

// Code returns the gRPC status code of a Generate failure. Errors from
// elsewhere yield their own status code, or codes.Unknown.
func Code(err error) codes.Code {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Code
	}
	return status.Code(err)
}
