package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/clinicscore/drug-advisor/internal/models"
)

// Model is the read-only model description loaded once at startup and shared by
// every workflow. JSON model files parse as YAML.
type Model struct {
	ExpectedSchema    []models.SchemaField `yaml:"model-schema"`
	PredictionMapping []string             `yaml:"model-prediction-mapping"`
	LabelValues       []models.LabelValue  `yaml:"label-values"`
	Patients          []models.Patient     `yaml:"model-input"`
}

// LoadModel reads and validates the model file at path.
func LoadModel(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read model file: %w", err)
	}
	return ParseModel(data)
}

// ParseModel decodes and validates a model description.
func ParseModel(data []byte) (*Model, error) {
	var m Model
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse model file: %w", err)
	}
	if err := m.validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

func (m *Model) validate() error {
	if len(m.PredictionMapping) == 0 {
		return fmt.Errorf("model-prediction-mapping must not be empty")
	}
	for i, label := range m.LabelValues {
		if label.Value == "" {
			return fmt.Errorf("label-values[%d]: value is required", i)
		}
		if label.Title == "" {
			m.LabelValues[i].Title = label.Value
		}
	}
	seen := make(map[string]struct{}, len(m.Patients))
	for i, p := range m.Patients {
		if p.Name == "" {
			return fmt.Errorf("model-input[%d]: name is required", i)
		}
		if _, dup := seen[p.Name]; dup {
			return fmt.Errorf("model-input[%d]: duplicate patient %q", i, p.Name)
		}
		seen[p.Name] = struct{}{}
	}
	for i, f := range m.ExpectedSchema {
		if f.Name == "" || f.Type == "" {
			return fmt.Errorf("model-schema[%d]: name and type are required", i)
		}
	}
	return nil
}

// Patient looks up a configured patient by id.
func (m *Model) Patient(id string) (models.Patient, bool) {
	for _, p := range m.Patients {
		if p.ID() == id {
			return p, true
		}
	}
	return models.Patient{}, false
}

// Label returns the label name for a probability vector index.
func (m *Model) Label(index int) string {
	if index >= 0 && index < len(m.PredictionMapping) {
		return m.PredictionMapping[index]
	}
	return fmt.Sprintf("#%d", index)
}

// HasLabel reports whether value is one of the configured feedback label values.
func (m *Model) HasLabel(value string) bool {
	for _, l := range m.LabelValues {
		if l.Value == value {
			return true
		}
	}
	return false
}
