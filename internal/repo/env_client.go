package repo

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/clinicscore/drug-advisor/internal/cache"
	"github.com/clinicscore/drug-advisor/internal/config"
	"github.com/clinicscore/drug-advisor/internal/models"
)

const deploymentsCacheKey = "drug-advisor:deployments"

// maxBodyBytes caps how much of a response body is read.
const maxBodyBytes = 4 << 20

// DeploymentDescriptor is one raw entry of the deployment list as served by the environment.
// Pointer fields distinguish "absent" from "empty".
type DeploymentDescriptor struct {
	ID                 string          `json:"id"`
	Name               string          `json:"name"`
	CreatedAt          json.RawMessage `json:"createdAt"`
	Model              *ModelInfo      `json:"model"`
	RuntimeEnvironment string          `json:"runtimeEnvironment"`
	ScoringHref        string          `json:"scoringHref"`
	FeedbackHref       string          `json:"feedbackHref"`
}

// ModelInfo is the model block of a deployment descriptor.
type ModelInfo struct {
	Name               string       `json:"name"`
	InputDataSchema    *InputSchema `json:"input_data_schema"`
	RuntimeEnvironment string       `json:"runtimeEnvironment"`
}

// InputSchema lists the declared input fields of a model.
type InputSchema struct {
	Fields []models.SchemaField `json:"fields"`
}

// CreatedAtString returns the creation timestamp as text whether it was sent as a string or a number.
func (d DeploymentDescriptor) CreatedAtString() string {
	raw := bytes.TrimSpace(d.CreatedAt)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

// Runtime returns the runtime environment tag, preferring the one declared on the model.
func (d DeploymentDescriptor) Runtime() string {
	if d.Model != nil && d.Model.RuntimeEnvironment != "" {
		return d.Model.RuntimeEnvironment
	}
	return d.RuntimeEnvironment
}

// Envelope is the common response shape of the score and feedback endpoints.
type Envelope struct {
	Score  json.RawMessage `json:"score"`
	Errors json.RawMessage `json:"errors"`
}

// StatusError reports a non-success HTTP response; Body holds the raw response text.
type StatusError struct {
	Operation  string
	StatusCode int
	Status     string
	Body       []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("environment %s returned %s", e.Operation, e.Status)
}

// EnvClient wraps the deployment environment APIs used by the scoring workflow.
type EnvClient struct {
	baseURL         string
	deploymentsPath string
	scorePath       string
	feedbackPath    string
	httpClient      *http.Client
	limiter         *rate.Limiter
	breakers        map[string]*gobreaker.CircuitBreaker
	cache           cache.Provider
	deploymentsTTL  time.Duration
	logger          *slog.Logger
}

// NewEnvClient constructs a client targeting the configured environment service.
func NewEnvClient(cfg config.EnvConfig, cacheProvider cache.Provider, deploymentsTTL time.Duration, logger *slog.Logger) *EnvClient {
	if logger == nil {
		logger = slog.Default()
	}
	if cacheProvider == nil {
		cacheProvider = cache.NoopProvider{}
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	c := &EnvClient{
		baseURL:         strings.TrimRight(cfg.BaseURL, "/"),
		deploymentsPath: cfg.DeploymentsPath,
		scorePath:       cfg.ScorePath,
		feedbackPath:    cfg.FeedbackPath,
		httpClient:      &http.Client{Timeout: timeout},
		cache:           cacheProvider,
		deploymentsTTL:  deploymentsTTL,
		logger:          logger,
	}
	if cfg.RateLimit > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), 1)
	}
	c.breakers = map[string]*gobreaker.CircuitBreaker{
		"deployments": c.newBreaker("deployments", cfg.Breaker),
		"score":       c.newBreaker("score", cfg.Breaker),
		"feedback":    c.newBreaker("feedback", cfg.Breaker),
	}
	return c
}

func (c *EnvClient) newBreaker(name string, cfg config.BreakerConfig) *gobreaker.CircuitBreaker {
	minRequests := cfg.MinRequests
	if minRequests == 0 {
		minRequests = 5
	}
	ratio := cfg.FailureRatio
	if ratio <= 0 {
		ratio = 0.6
	}
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "env-" + name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= minRequests && failureRatio >= ratio
		},
		// Only an unreachable or failing service counts against the breaker;
		// a 4xx describes a bad request, and cancellation is the caller's choice.
		IsSuccessful: func(err error) bool {
			if err == nil || errors.Is(err, context.Canceled) {
				return true
			}
			var statusErr *StatusError
			if errors.As(err, &statusErr) {
				return statusErr.StatusCode < http.StatusInternalServerError
			}
			return false
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			c.logger.Warn("circuit breaker state changed", slog.String("breaker", name), slog.String("from", from.String()), slog.String("to", to.String()))
		},
	})
}

// ListDeployments fetches the raw deployment list, serving it from cache when fresh.
func (c *EnvClient) ListDeployments(ctx context.Context) ([]DeploymentDescriptor, error) {
	if c == nil {
		return nil, fmt.Errorf("environment client not initialised")
	}

	body, err := c.cache.Get(ctx, deploymentsCacheKey)
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			c.logger.Debug("deployment cache lookup failed", slog.Any("error", err))
		}
		body, err = c.do(ctx, "deployments", http.MethodGet, c.resolvePath(c.deploymentsPath), nil)
		if err != nil {
			return nil, fmt.Errorf("list deployments: %w", err)
		}
		if c.deploymentsTTL > 0 {
			if err := c.cache.Set(ctx, deploymentsCacheKey, body, c.deploymentsTTL); err != nil {
				c.logger.Debug("deployment cache store failed", slog.Any("error", err))
			}
		}
	}

	var descriptors []DeploymentDescriptor
	if err := json.Unmarshal(body, &descriptors); err != nil {
		_ = c.cache.Del(ctx, deploymentsCacheKey)
		return nil, fmt.Errorf("decode deployment list: %w", err)
	}
	return descriptors, nil
}

// Score submits a JSON-encoded patient row to the deployment's scoring endpoint.
func (c *EnvClient) Score(ctx context.Context, scoringHref, scoringData string) (Envelope, error) {
	payload := map[string]string{
		"scoringData": scoringData,
		"scoringHref": scoringHref,
	}
	return c.postEnvelope(ctx, "score", c.resolvePath(c.scorePath), payload)
}

// Feedback submits a JSON-encoded patient row with the chosen label to the deployment's feedback endpoint.
func (c *EnvClient) Feedback(ctx context.Context, feedbackURL, feedbackData string) (Envelope, error) {
	payload := map[string]string{
		"feedbackData": feedbackData,
		"feedbackUrl":  feedbackURL,
	}
	return c.postEnvelope(ctx, "feedback", c.resolvePath(c.feedbackPath), payload)
}

// BreakerStates reports the state of each per-operation circuit breaker.
func (c *EnvClient) BreakerStates() map[string]string {
	states := make(map[string]string, len(c.breakers))
	for name, b := range c.breakers {
		states[name] = b.State().String()
	}
	return states
}

func (c *EnvClient) postEnvelope(ctx context.Context, op, endpoint string, payload any) (Envelope, error) {
	if c == nil {
		return Envelope{}, fmt.Errorf("environment client not initialised")
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s payload: %w", op, err)
	}
	raw, err := c.do(ctx, op, http.MethodPost, endpoint, body)
	if err != nil {
		return Envelope{}, err
	}
	var env Envelope
	if len(bytes.TrimSpace(raw)) == 0 {
		return env, nil
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode %s response: %w", op, err)
	}
	return env, nil
}

func (c *EnvClient) do(ctx context.Context, op, method, endpoint string, body []byte) ([]byte, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("environment base URL not configured")
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	breaker := c.breakers[op]
	result, err := breaker.Execute(func() (interface{}, error) {
		return c.roundTrip(ctx, op, method, endpoint, body)
	})
	if err != nil {
		return nil, err
	}
	return result.([]byte), nil
}

func (c *EnvClient) roundTrip(ctx context.Context, op, method, endpoint string, body []byte) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", op, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Operation: op, StatusCode: resp.StatusCode, Status: resp.Status, Body: raw}
	}
	return raw, nil
}

func (c *EnvClient) resolvePath(p string) string {
	if c.baseURL == "" {
		return ""
	}
	cleaned := "/" + strings.TrimLeft(p, "/")
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return c.baseURL + cleaned
	}
	joined := path.Join(u.Path, cleaned)
	if strings.HasSuffix(cleaned, "/") && !strings.HasSuffix(joined, "/") {
		joined += "/"
	}
	u.Path = joined
	return u.String()
}
