package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/clinicscore/drug-advisor/internal/models"
)

func expected() []models.SchemaField {
	return []models.SchemaField{
		{Name: "AGE", Type: "integer"},
		{Name: "SEX", Type: "string"},
		{Name: "BP", Type: "string"},
		{Name: "CHOLESTEROL", Type: "string"},
		{Name: "NA", Type: "decimal(12,6)"},
		{Name: "K", Type: "decimal(12,6)"},
	}
}

func TestBaseType(t *testing.T) {
	assert.Equal(t, "integer", BaseType("decimal(12,6)"))
	assert.Equal(t, "integer", BaseType("decimal"))
	assert.Equal(t, "integer", BaseType("integer"))
	assert.Equal(t, "string", BaseType("string"))
	assert.Equal(t, "varchar", BaseType("varchar(32)"))
}

func TestMatchesIgnoresOrder(t *testing.T) {
	declared := []models.SchemaField{
		{Name: "K", Type: "integer"},
		{Name: "NA", Type: "decimal"},
		{Name: "CHOLESTEROL", Type: "string"},
		{Name: "BP", Type: "string"},
		{Name: "SEX", Type: "string"},
		{Name: "AGE", Type: "decimal(12,6)"},
	}
	assert.True(t, Matches(declared, expected()))
	assert.True(t, Matches(expected(), declared))
}

func TestMatchesDoesNotReorderInputs(t *testing.T) {
	declared := []models.SchemaField{{Name: "b", Type: "string"}, {Name: "a", Type: "string"}}
	other := []models.SchemaField{{Name: "a", Type: "string"}, {Name: "b", Type: "string"}}
	assert.True(t, Matches(declared, other))
	assert.Equal(t, "b", declared[0].Name)
}

func TestMatchesRejectsCountAndTypeMismatch(t *testing.T) {
	fewer := expected()[:5]
	assert.False(t, Matches(fewer, expected()))

	wrongType := expected()
	wrongType[1].Type = "integer"
	assert.False(t, Matches(wrongType, expected()))

	wrongName := expected()
	wrongName[0].Name = "age"
	assert.False(t, Matches(wrongName, expected()))
}

func TestMatchesEmptySchemas(t *testing.T) {
	assert.True(t, Matches(nil, []models.SchemaField{}))
	assert.False(t, Matches(nil, expected()))
	assert.False(t, Matches(expected(), nil))
}
