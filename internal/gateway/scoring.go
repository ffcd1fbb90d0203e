// Package gateway turns scoring and feedback calls against the environment
// service into typed results.
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

// ScoringFailure is the message used when nothing more specific is known.
const ScoringFailure = "Scoring service failure."

// Scorer posts scoring requests to the environment service.
type Scorer interface {
	Score(ctx context.Context, scoringHref, scoringData string) (repo.Envelope, error)
}

// ScoringGateway issues one scoring call per request and validates the answer.
type ScoringGateway struct {
	client Scorer
	logger *slog.Logger
	now    func() time.Time
}

// NewScoringGateway constructs a ScoringGateway.
func NewScoringGateway(client Scorer, logger *slog.Logger) *ScoringGateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &ScoringGateway{client: client, logger: logger, now: time.Now}
}

type scorePayload struct {
	Probability *struct {
		Values []float64 `json:"values"`
	} `json:"probability"`
	Fields []string `json:"fields"`
	Values [][]any  `json:"values"`
}

// Score sends the patient's data row to the deployment's scoring endpoint.
// The result is stamped with the deployment and patient it was computed for.
func (g *ScoringGateway) Score(ctx context.Context, deployment models.Deployment, patient models.Patient) (models.ScoringResult, error) {
	payload, err := patient.Payload()
	if err != nil {
		return models.ScoringResult{}, &Error{Kind: KindMalformed, Message: "Patient data could not be encoded.", Err: err}
	}

	start := time.Now()
	result, err := g.score(ctx, deployment, patient, payload)
	outcome := metrics.OutcomeSuccess
	if err != nil {
		outcome = metrics.OutcomeError
		g.logger.Debug("scoring failed",
			slog.String("deployment", deployment.ID),
			slog.String("patient", patient.ID()),
			slog.Any("error", err))
	}
	metrics.ObserveRemoteCall(metrics.OpScore, time.Since(start), outcome)
	return result, err
}

func (g *ScoringGateway) score(ctx context.Context, deployment models.Deployment, patient models.Patient, payload string) (models.ScoringResult, error) {
	env, err := g.client.Score(ctx, deployment.ScoringHref, payload)
	if err != nil {
		return models.ScoringResult{}, classify(err, ScoringFailure)
	}
	if err := envelopeError(env, ScoringFailure); err != nil {
		return models.ScoringResult{}, err
	}

	body, err := decodeScore(env.Score)
	if err != nil {
		return models.ScoringResult{}, &Error{Kind: KindMalformed, Message: ScoringFailure, Err: err}
	}

	result := models.ScoringResult{
		Probabilities: body.Probability.Values,
		Fields:        body.Fields,
		DeploymentID:  deployment.ID,
		PatientID:     patient.ID(),
		ScoredAt:      g.now().UTC(),
	}
	if len(body.Values) > 0 {
		result.Values = body.Values[0]
	}
	return result, nil
}

func decodeScore(raw json.RawMessage) (scorePayload, error) {
	var body scorePayload
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return body, fmt.Errorf("response has no score")
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return body, fmt.Errorf("decode score: %w", err)
	}
	if body.Probability == nil || len(body.Probability.Values) == 0 {
		return body, fmt.Errorf("score has no probability values")
	}
	for i, v := range body.Probability.Values {
		if v < 0 || v > 1 {
			return body, fmt.Errorf("probability %d out of range: %v", i, v)
		}
	}
	return body, nil
}

// envelopeError reports the service-side error carried in a 2xx response, if any.
func envelopeError(env repo.Envelope, fallback string) error {
	raw := bytes.TrimSpace(env.Errors)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	msg := repo.ErrorsText(raw)
	if msg == "" {
		msg = fallback
	}
	return &Error{Kind: KindService, Message: msg}
}
