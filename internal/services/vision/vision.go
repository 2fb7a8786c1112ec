package vision

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"vidrepo/internal/config"
	"vidrepo/internal/logging"
	"vidrepo/internal/services"
)

const (
	defaultHTTPTimeout = 2 * time.Minute
	transcriptExcerpt  = 4000
)

// Request is the input for one analysis call. Images or the raw audio
// recording are attached as message parts; the transcript is added as
// context when present. MimeType describes the attached payload.
type Request struct {
	Images     [][]byte
	Audio      []byte
	MimeType   string
	Name       string
	Transcript string
}

// Result is the normalized analysis output.
type Result struct {
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
}

// Analyzer describes media content.
type Analyzer interface {
	Analyze(ctx context.Context, req Request) (Result, error)
}

// Config captures the runtime settings for the OpenAI-compatible endpoint.
type Config struct {
	APIKey         string
	BaseURL        string
	Model          string
	MaxTokens      int
	TimeoutSeconds int
}

// ConfigFromApp maps the analysis section of the application config.
func ConfigFromApp(cfg *config.Config) Config {
	return Config{
		APIKey:         cfg.Analysis.APIKey,
		BaseURL:        cfg.Analysis.BaseURL,
		Model:          cfg.Analysis.Model,
		MaxTokens:      cfg.Analysis.MaxTokens,
		TimeoutSeconds: cfg.Analysis.TimeoutSeconds,
	}
}

// Client calls a chat completion endpoint with image or audio parts.
type Client struct {
	cfg    Config
	api    *openai.Client
	logger *slog.Logger
}

var _ Analyzer = (*Client)(nil)

// Option customizes the client.
type Option func(*openai.ClientConfig)

// WithHTTPClient overrides the HTTP client used for requests.
func WithHTTPClient(client *http.Client) Option {
	return func(c *openai.ClientConfig) {
		if client != nil {
			c.HTTPClient = client
		}
	}
}

// NewClient builds a client for cfg.
func NewClient(cfg Config, logger *slog.Logger, opts ...Option) *Client {
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	cfg.Model = strings.TrimSpace(cfg.Model)
	timeout := defaultHTTPTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}

	apiCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		apiCfg.BaseURL = cfg.BaseURL
	}
	apiCfg.HTTPClient = &http.Client{Timeout: timeout}
	for _, opt := range opts {
		opt(&apiCfg)
	}
	apiCfg.HTTPClient = audioDoer{next: apiCfg.HTTPClient}
	return &Client{
		cfg:    cfg,
		api:    openai.NewClientWithConfig(apiCfg),
		logger: logging.NewComponentLogger(logger, "vision"),
	}
}

// Analyze sends the request and decodes the model's JSON reply.
func (c *Client) Analyze(ctx context.Context, req Request) (Result, error) {
	if c.cfg.APIKey == "" {
		return Result{}, services.Wrap(services.ErrConfiguration, "vision", "analyze", "api key required", nil)
	}
	if len(req.Images) == 0 && len(req.Audio) == 0 && strings.TrimSpace(req.Transcript) == "" && strings.TrimSpace(req.Name) == "" {
		return Result{}, services.Wrap(services.ErrValidation, "vision", "analyze", "nothing to analyze", nil)
	}

	chatReq := openai.ChatCompletionRequest{
		Model: c.cfg.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, MultiContent: userParts(req)},
		},
		MaxTokens:   c.cfg.MaxTokens,
		Temperature: 0.2,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	}

	started := time.Now()
	resp, err := c.api.CreateChatCompletion(withAudio(ctx, req.Audio, req.MimeType), chatReq)
	if err != nil {
		return Result{}, classify(ctx, err)
	}
	if len(resp.Choices) == 0 {
		return Result{}, services.Wrap(services.ErrExternalTool, "vision", "analyze", "empty choices", nil)
	}
	content := resp.Choices[0].Message.Content
	result, err := DecodeResult(content)
	if err != nil {
		return Result{}, services.Wrap(services.ErrExternalTool, "vision", "decode", "malformed analysis reply", err)
	}
	c.logger.Debug("analysis complete",
		logging.String("model", c.cfg.Model),
		logging.Int("images", len(req.Images)),
		logging.Int("audio_bytes", len(req.Audio)),
		logging.Int("tags", len(result.Tags)),
		logging.Duration("elapsed", time.Since(started)),
	)
	return result, nil
}

func userParts(req Request) []openai.ChatMessagePart {
	var b strings.Builder
	b.WriteString("Asset: ")
	b.WriteString(strings.TrimSpace(req.Name))
	switch {
	case len(req.Images) > 0:
		fmt.Fprintf(&b, "\nDescribe the %d attached image(s) as one scene.", len(req.Images))
	case len(req.Audio) > 0:
		b.WriteString("\nDescribe the attached audio recording.")
	default:
		b.WriteString("\nNo images are available; describe the recording from its transcript.")
	}
	if transcript := strings.TrimSpace(req.Transcript); transcript != "" {
		if runes := []rune(transcript); len(runes) > transcriptExcerpt {
			transcript = string(runes[:transcriptExcerpt]) + "..."
		}
		b.WriteString("\nTranscript excerpt:\n")
		b.WriteString(transcript)
	}

	parts := []openai.ChatMessagePart{{Type: openai.ChatMessagePartTypeText, Text: b.String()}}
	mime := strings.TrimSpace(req.MimeType)
	if mime == "" || !strings.HasPrefix(mime, "image/") {
		mime = "image/jpeg"
	}
	for _, img := range req.Images {
		parts = append(parts, openai.ChatMessagePart{
			Type: openai.ChatMessagePartTypeImageURL,
			ImageURL: &openai.ChatMessageImageURL{
				URL:    "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(img),
				Detail: openai.ImageURLDetailLow,
			},
		})
	}
	return parts
}

func classify(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return services.Wrap(services.ErrTimeout, "vision", "analyze", "analysis timed out", err)
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		marker := services.ErrExternalTool
		if apiErr.HTTPStatusCode == http.StatusTooManyRequests || apiErr.HTTPStatusCode >= http.StatusInternalServerError {
			marker = services.ErrTransient
		}
		return services.Wrap(marker, "vision", "analyze", fmt.Sprintf("api status %d", apiErr.HTTPStatusCode), err)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode >= http.StatusInternalServerError {
		return services.Wrap(services.ErrTransient, "vision", "analyze", fmt.Sprintf("http status %d", reqErr.HTTPStatusCode), err)
	}
	return services.Wrap(services.ErrExternalTool, "vision", "analyze", "request failed", err)
}

const systemPrompt = `You index footage for a video editor. Reply with JSON only:
{"description": "<one or two sentences describing what is shown or said>", "tags": ["<short lower-case keyword>", ...]}
Use at most 12 tags. Do not wrap the JSON in code fences.`
