package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// GenAIGateway implements Gateway on the Gemini API.
type GenAIGateway struct {
	client *genai.Client
}

// NewGenAIGateway creates a Gemini-backed gateway.
func NewGenAIGateway(ctx context.Context, apiKey string) (*GenAIGateway, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gateway: api key not configured")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gateway: create client: %w", err)
	}
	return &GenAIGateway{client: client}, nil
}

// Generate issues one stateless call. It is the caller's job to wrap this in
// WithRetry; Generate only classifies failures.
func (g *GenAIGateway) Generate(ctx context.Context, req Request) (string, error) {
	parts := []*genai.Part{genai.NewPartFromText(req.Prompt)}
	for _, b := range req.Blobs {
		parts = append(parts, genai.NewPartFromBytes(b.Data, b.MIMEType))
	}
	contents := []*genai.Content{{Parts: parts, Role: genai.RoleUser}}

	resp, err := g.client.Models.GenerateContent(ctx, req.Model, contents, buildConfig(req))
	if err != nil {
		return "", classify(err)
	}
	return resp.Text(), nil
}

// StartSession opens a stateful chat. The returned session owns its history;
// the registry serializes sends.
func (g *GenAIGateway) StartSession(ctx context.Context, cfg SessionConfig) (Session, error) {
	config := &genai.GenerateContentConfig{}
	if cfg.System != "" {
		config.SystemInstruction = genai.NewContentFromText(cfg.System, genai.RoleUser)
	}
	if cfg.Temperature != nil {
		config.Temperature = genai.Ptr(float32(*cfg.Temperature))
	}
	config.Tools = buildTools(cfg.Tools)

	chat, err := g.client.Chats.Create(ctx, cfg.Model, config, nil)
	if err != nil {
		return nil, classify(err)
	}
	return &genaiSession{chat: chat}, nil
}

type genaiSession struct {
	chat *genai.Chat
}

func (s *genaiSession) Send(ctx context.Context, parts ...Part) (string, error) {
	msg := make([]genai.Part, 0, len(parts))
	for _, p := range parts {
		if p.Blob != nil {
			msg = append(msg, genai.Part{InlineData: &genai.Blob{Data: p.Blob.Data, MIMEType: p.Blob.MIMEType}})
			continue
		}
		msg = append(msg, genai.Part{Text: p.Text})
	}
	resp, err := s.chat.SendMessage(ctx, msg...)
	if err != nil {
		return "", classify(err)
	}
	return resp.Text(), nil
}

func buildConfig(req Request) *genai.GenerateContentConfig {
	config := &genai.GenerateContentConfig{}
	if req.System != "" {
		config.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	if req.Temperature != nil {
		config.Temperature = genai.Ptr(float32(*req.Temperature))
	}
	if req.MaxOutputTokens > 0 {
		config.MaxOutputTokens = int32(req.MaxOutputTokens)
	}
	if req.ThinkingBudget != nil {
		config.ThinkingConfig = &genai.ThinkingConfig{ThinkingBudget: genai.Ptr(int32(*req.ThinkingBudget))}
	}
	if req.Schema != nil {
		config.ResponseMIMEType = "application/json"
		config.ResponseSchema = toGenAISchema(req.Schema)
	}
	config.Tools = buildTools(req.Tools)
	return config
}

func buildTools(kinds []ToolKind) []*genai.Tool {
	var tools []*genai.Tool
	for _, k := range kinds {
		switch k {
		case ToolWebSearch:
			tools = append(tools, &genai.Tool{GoogleSearch: &genai.GoogleSearch{}})
		case ToolURLContext:
			tools = append(tools, &genai.Tool{URLContext: &genai.URLContext{}})
		}
	}
	return tools
}

func toGenAISchema(s *Schema) *genai.Schema {
	if s == nil {
		return nil
	}
	out := &genai.Schema{
		Description: s.Description,
		Required:    s.Required,
		Enum:        s.Enum,
		Items:       toGenAISchema(s.Items),
	}
	switch s.Type {
	case "object":
		out.Type = genai.TypeObject
	case "array":
		out.Type = genai.TypeArray
	case "string":
		out.Type = genai.TypeString
	case "integer":
		out.Type = genai.TypeInteger
	case "number":
		out.Type = genai.TypeNumber
	case "boolean":
		out.Type = genai.TypeBoolean
	}
	if s.Minimum != 0 || s.Maximum != 0 {
		out.Minimum = genai.Ptr(float64(s.Minimum))
		out.Maximum = genai.Ptr(float64(s.Maximum))
	}
	if len(s.Properties) > 0 {
		out.Properties = make(map[string]*genai.Schema, len(s.Properties))
		for k, v := range s.Properties {
			out.Properties[k] = toGenAISchema(v)
		}
	}
	return out
}

// classify maps provider failures into the retry taxonomy: rate limit and
// overload are transient, cancellation is Aborted, the rest pass through.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrAborted, err)
	}
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case 429, 500, 502, 503, 504:
			return Transient(err)
		}
		return err
	}
	msg := strings.ToUpper(err.Error())
	if strings.Contains(msg, "RESOURCE_EXHAUSTED") || strings.Contains(msg, "UNAVAILABLE") || strings.Contains(msg, "OVERLOADED") || strings.Contains(msg, "RATE LIMIT") {
		return Transient(err)
	}
	return err
}
