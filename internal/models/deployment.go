package models

// SchemaField describes one named, typed column of a model input schema.
type SchemaField struct {
	Name string `json:"name" yaml:"name"`
	Type string `json:"type" yaml:"type"`
}

// Deployment is a scoring-capable model deployment offered for selection.
// Values are built by the deployment feed and never mutated afterwards.
type Deployment struct {
	ID                 string        `json:"id"`
	Name               string        `json:"name,omitempty"`
	ModelName          string        `json:"modelName,omitempty"`
	ScoringHref        string        `json:"scoringHref"`
	FeedbackHref       string        `json:"feedbackHref"`
	InputSchema        []SchemaField `json:"inputSchema"`
	RuntimeEnvironment string        `json:"runtimeEnvironment"`
	CreatedAt          string        `json:"createdAt"`
	// Eligible is false when the declared schema does not match the expected one.
	// Ineligible deployments stay listed but cannot be selected.
	Eligible bool `json:"eligible"`
}
