package transcribe

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"vidrepo/internal/logging"
	"vidrepo/internal/services"
)

const (
	defaultPollInterval = 3 * time.Second
	defaultMaxAttempts  = 100
	defaultJobTimeout   = 15 * time.Minute

	statusStarting   = "starting"
	statusProcessing = "processing"
	statusSucceeded  = "succeeded"
	statusFailed     = "failed"
	statusCanceled   = "canceled"
)

// HTTPConfig configures the asynchronous prediction API client.
type HTTPConfig struct {
	BaseURL      string
	APIToken     string
	ModelVersion string
	PollInterval time.Duration
	MaxAttempts  int
	Timeout      time.Duration
}

// HTTPClient submits audio as a prediction job and polls until it settles.
type HTTPClient struct {
	cfg        HTTPConfig
	httpClient *http.Client
	logger     *slog.Logger
}

var _ Transcriber = (*HTTPClient)(nil)

// NewHTTPClient applies defaults to cfg.
func NewHTTPClient(cfg HTTPConfig, logger *slog.Logger) *HTTPClient {
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	cfg.APIToken = strings.TrimSpace(cfg.APIToken)
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultJobTimeout
	}
	return &HTTPClient{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: time.Minute},
		logger:     logging.NewComponentLogger(logger, "transcribe"),
	}
}

// WithHTTPClient overrides the HTTP client (for testing).
func (c *HTTPClient) WithHTTPClient(client *http.Client) *HTTPClient {
	if client != nil {
		c.httpClient = client
	}
	return c
}

type predictionRequest struct {
	Version string          `json:"version,omitempty"`
	Input   predictionInput `json:"input"`
}

type predictionInput struct {
	Audio         string `json:"audio"`
	Language      string `json:"language,omitempty"`
	Translate     bool   `json:"translate"`
	Transcription string `json:"transcription"`
}

type prediction struct {
	ID     string          `json:"id"`
	Status string          `json:"status"`
	Output *predictionData `json:"output"`
	Error  any             `json:"error"`
}

type predictionData struct {
	Transcription string    `json:"transcription"`
	SRT           string    `json:"srt"`
	Segments      []Segment `json:"segments"`
	Language      string    `json:"detected_language"`
}

// Transcribe runs one job. Exhausting the poll budget yields ErrTimeout.
func (c *HTTPClient) Transcribe(ctx context.Context, audio []byte, opts Options) (Result, error) {
	if c.cfg.BaseURL == "" {
		return Result{}, services.Wrap(services.ErrConfiguration, "transcribe", "submit", "base url required", nil)
	}
	if len(audio) == 0 {
		return Result{}, services.Wrap(services.ErrValidation, "transcribe", "submit", "empty audio payload", nil)
	}
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	job, err := c.submit(ctx, audio, opts)
	if err != nil {
		return Result{}, err
	}
	c.logger.Debug("transcription job submitted", logging.String("job_id", job.ID))

	limiter := rate.NewLimiter(rate.Every(c.cfg.PollInterval), 1)
	var lastErr error
	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		if err := limiter.Wait(ctx); err != nil {
			if errors.Is(ctx.Err(), context.Canceled) {
				return Result{}, ctx.Err()
			}
			return Result{}, services.Wrap(services.ErrTimeout, "transcribe", "poll", "deadline reached while waiting", err)
		}
		polled, err := c.fetch(ctx, job.ID)
		if err != nil {
			// A transient poll failure uses up an attempt; the job may still finish.
			if errors.Is(err, services.ErrTransient) && ctx.Err() == nil {
				lastErr = err
				c.logger.Debug("transcription poll failed; retrying",
					logging.String("job_id", job.ID),
					logging.Int("attempt", attempt),
					logging.Error(err),
				)
				continue
			}
			return Result{}, err
		}
		job = polled
		switch job.Status {
		case statusSucceeded:
			return c.result(job), nil
		case statusFailed, statusCanceled:
			return Result{}, services.Wrap(services.ErrExternalTool, "transcribe", "poll",
				fmt.Sprintf("job %s %s: %v", job.ID, job.Status, job.Error), nil)
		case statusStarting, statusProcessing:
		default:
			c.logger.Debug("unknown transcription status", logging.String("status", job.Status))
		}
	}
	return Result{}, services.Wrap(services.ErrTimeout, "transcribe", "poll",
		fmt.Sprintf("job %s unfinished after %d polls", job.ID, c.cfg.MaxAttempts), lastErr)
}

func (c *HTTPClient) submit(ctx context.Context, audio []byte, opts Options) (prediction, error) {
	language := strings.TrimSpace(opts.Language)
	if strings.EqualFold(language, "auto") {
		language = ""
	}
	body := predictionRequest{
		Version: c.cfg.ModelVersion,
		Input: predictionInput{
			Audio:         "data:" + audioMIME(opts.MimeType) + ";base64," + base64.StdEncoding.EncodeToString(audio),
			Language:      language,
			Translate:     opts.Translate,
			Transcription: "plain text",
		},
	}
	encoded, err := json.Marshal(body)
	if err != nil {
		return prediction{}, fmt.Errorf("transcribe submit: encode body: %w", err)
	}
	endpoint, err := url.JoinPath(c.cfg.BaseURL, "predictions")
	if err != nil {
		return prediction{}, fmt.Errorf("transcribe submit: build url: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(encoded))
	if err != nil {
		return prediction{}, fmt.Errorf("transcribe submit: new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(ctx, req, "submit")
}

func audioMIME(value string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	if !strings.HasPrefix(value, "audio/") {
		return "audio/wav"
	}
	return value
}

func (c *HTTPClient) fetch(ctx context.Context, id string) (prediction, error) {
	endpoint, err := url.JoinPath(c.cfg.BaseURL, "predictions", id)
	if err != nil {
		return prediction{}, fmt.Errorf("transcribe poll: build url: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return prediction{}, fmt.Errorf("transcribe poll: new request: %w", err)
	}
	return c.do(ctx, req, "poll")
}

func (c *HTTPClient) do(ctx context.Context, req *http.Request, op string) (prediction, error) {
	if c.cfg.APIToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIToken)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return prediction{}, c.contextError(ctx, err)
	}
	defer resp.Body.Close()
	payload, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return prediction{}, services.Wrap(services.ErrTransient, "transcribe", op, "read body", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		marker := services.ErrExternalTool
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError {
			marker = services.ErrTransient
		}
		return prediction{}, services.Wrap(marker, "transcribe", op,
			fmt.Sprintf("http %d: %s", resp.StatusCode, strings.TrimSpace(string(payload))), nil)
	}
	var job prediction
	if err := json.Unmarshal(payload, &job); err != nil {
		return prediction{}, services.Wrap(services.ErrExternalTool, "transcribe", op, "decode response", err)
	}
	if strings.TrimSpace(job.ID) == "" {
		return prediction{}, services.Wrap(services.ErrExternalTool, "transcribe", op, "response missing job id", nil)
	}
	return job, nil
}

func (c *HTTPClient) result(job prediction) Result {
	if job.Output == nil {
		return Result{}
	}
	return Finalize(Result{
		Text:     job.Output.Transcription,
		Segments: job.Output.Segments,
		Captions: job.Output.SRT,
	})
}

func (c *HTTPClient) contextError(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return services.Wrap(services.ErrTimeout, "transcribe", "wait", "transcription timed out", err)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return services.Wrap(services.ErrTransient, "transcribe", "request", "http request failed", err)
}
