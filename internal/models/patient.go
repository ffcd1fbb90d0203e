package models

import (
	"encoding/json"
	"fmt"
)

var genderTitles = map[string]string{
	"M": "Male",
	"F": "Female",
}

// GenderTitle expands a gender code; unknown codes are returned unchanged.
func GenderTitle(code string) string {
	if title, ok := genderTitles[code]; ok {
		return title
	}
	return code
}

// Patient is a selectable patient record. Data is sent verbatim to the scoring service.
type Patient struct {
	Name string `json:"name" yaml:"name"`
	Icon string `json:"icon" yaml:"icon"`
	Data []any  `json:"data" yaml:"data"`
}

// ID returns the patient identifier; patient names are unique within a model file.
func (p Patient) ID() string { return p.Name }

// Payload encodes the raw data row as the JSON string expected by the scoring service.
func (p Patient) Payload() (string, error) {
	raw, err := json.Marshal(p.Data)
	if err != nil {
		return "", fmt.Errorf("encode patient %s: %w", p.Name, err)
	}
	return string(raw), nil
}

// Card returns the display attributes of a patient.
func (p Patient) Card() PatientCard {
	attrs := DecodeAttributes(p.Data)
	return PatientCard{
		Name:       p.Name,
		Icon:       p.Icon,
		Attributes: attrs,
	}
}

// PatientCard is what the patient list renders for one patient.
type PatientCard struct {
	Name string `json:"name"`
	Icon string `json:"icon"`
	Attributes
}

// Attributes are the positional values of a patient data row:
// age, gender code, blood pressure, cholesterol, sodium, potassium.
type Attributes struct {
	Age         string `json:"age"`
	Gender      string `json:"gender"`
	BP          string `json:"bp"`
	Cholesterol string `json:"cholesterol"`
	Na          string `json:"na"`
	K           string `json:"k"`
}

// DecodeAttributes reads display attributes from a data row, tolerating short rows.
func DecodeAttributes(row []any) Attributes {
	at := func(i int) string {
		if i >= len(row) || row[i] == nil {
			return ""
		}
		return fmt.Sprint(row[i])
	}
	return Attributes{
		Age:         at(0),
		Gender:      GenderTitle(at(1)),
		BP:          at(2),
		Cholesterol: at(3),
		Na:          at(4),
		K:           at(5),
	}
}
