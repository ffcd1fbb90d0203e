package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/clinicscore/drug-advisor/internal/metrics"
	"github.com/clinicscore/drug-advisor/internal/models"
	"github.com/clinicscore/drug-advisor/internal/repo"
)

// FeedbackFailure is the message used when nothing more specific is known.
const FeedbackFailure = "Feedback service failure."

// FeedbackSender posts feedback submissions to the environment service.
type FeedbackSender interface {
	Feedback(ctx context.Context, feedbackURL, feedbackData string) (repo.Envelope, error)
}

// FeedbackGateway submits clinician-confirmed labels.
type FeedbackGateway struct {
	client FeedbackSender
	logger *slog.Logger
	now    func() time.Time
}

// NewFeedbackGateway constructs a FeedbackGateway.
func NewFeedbackGateway(client FeedbackSender, logger *slog.Logger) *FeedbackGateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &FeedbackGateway{client: client, logger: logger, now: time.Now}
}

// Submit appends label to the JSON-array patient payload and posts it to feedbackURL.
// A success without a response payload still yields an accepted result.
func (g *FeedbackGateway) Submit(ctx context.Context, feedbackURL, patientPayload, label string) (models.FeedbackResult, error) {
	data, err := AppendLabel(patientPayload, label)
	if err != nil {
		return models.FeedbackResult{}, &Error{Kind: KindMalformed, Message: "Patient data could not be encoded.", Err: err}
	}

	start := time.Now()
	result, err := g.submit(ctx, feedbackURL, data, label)
	outcome := metrics.OutcomeSuccess
	if err != nil {
		outcome = metrics.OutcomeError
		g.logger.Debug("feedback failed", slog.String("label", label), slog.Any("error", err))
	}
	metrics.ObserveRemoteCall(metrics.OpFeedback, time.Since(start), outcome)
	return result, err
}

func (g *FeedbackGateway) submit(ctx context.Context, feedbackURL, data, label string) (models.FeedbackResult, error) {
	env, err := g.client.Feedback(ctx, feedbackURL, data)
	if err != nil {
		return models.FeedbackResult{}, classify(err, FeedbackFailure)
	}
	if err := envelopeError(env, FeedbackFailure); err != nil {
		return models.FeedbackResult{}, err
	}

	result := models.FeedbackResult{
		Accepted:    true,
		Label:       label,
		SubmittedAt: g.now().UTC(),
	}
	if raw := bytes.TrimSpace(env.Score); len(raw) > 0 && !bytes.Equal(raw, []byte("null")) {
		result.Payload = append(json.RawMessage(nil), raw...)
	}
	return result, nil
}

// AppendLabel decodes a JSON array payload, appends label as its final element
// and re-encodes it. Numbers keep their original text.
func AppendLabel(payload, label string) (string, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(payload)))
	dec.UseNumber()
	var row []any
	if err := dec.Decode(&row); err != nil {
		return "", fmt.Errorf("decode patient payload: %w", err)
	}
	if row == nil {
		return "", fmt.Errorf("patient payload is not an array")
	}
	row = append(row, label)
	out, err := json.Marshal(row)
	if err != nil {
		return "", fmt.Errorf("encode feedback payload: %w", err)
	}
	return string(out), nil
}
