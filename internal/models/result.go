package models

import (
	"encoding/json"
	"time"
)

// ScoringResult is the parsed response of one scoring call, stamped with the
// selection it was computed for.
type ScoringResult struct {
	Probabilities []float64 `json:"probabilities"`
	Fields        []string  `json:"fields,omitempty"`
	Values        []any     `json:"values,omitempty"`
	DeploymentID  string    `json:"deploymentId"`
	PatientID     string    `json:"patientId"`
	ScoredAt      time.Time `json:"scoredAt"`
}

// FeedbackResult marks a successful feedback submission.
type FeedbackResult struct {
	Accepted    bool            `json:"accepted"`
	Label       string          `json:"label"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	SubmittedAt time.Time       `json:"submittedAt"`
}

// ProbabilityEntry is one label of a probability vector as a rounded percentage.
type ProbabilityEntry struct {
	Label string `json:"drug"`
	Value int    `json:"value"`
}

// LabelValue is one feedback option offered to the clinician.
type LabelValue struct {
	Title string `json:"title" yaml:"title"`
	Value string `json:"value" yaml:"value"`
}
