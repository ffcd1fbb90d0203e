package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinicscore/drug-advisor/internal/models"
)

func labels(names ...string) func(int) string {
	return func(i int) string { return names[i] }
}

func TestDeriveRanksAndDropsZeros(t *testing.T) {
	p := Derive([]float64{0.82, 0.10, 0.05, 0.002}, labels("drugA", "drugB", "drugC", "drugD"))

	require.NotNil(t, p.Best)
	assert.Equal(t, models.ProbabilityEntry{Label: "drugA", Value: 82}, *p.Best)
	assert.Equal(t, []models.ProbabilityEntry{{Label: "drugB", Value: 10}, {Label: "drugC", Value: 5}}, p.Others)
	assert.Len(t, p.Chart, 4)
	assert.Equal(t, 0, p.Chart[3].Value)
}

func TestDeriveKeepsSmallNonZero(t *testing.T) {
	p := Derive([]float64{0.82, 0.10, 0.05, 0.03}, labels("drugA", "drugB", "drugC", "drugD"))
	assert.Len(t, p.Others, 3)
	assert.Equal(t, "drugD", p.Others[2].Label)
}

func TestDeriveOrdersByValue(t *testing.T) {
	p := Derive([]float64{0.1, 0.3, 0.6}, labels("a", "b", "c"))
	require.NotNil(t, p.Best)
	assert.Equal(t, "c", p.Best.Label)
	assert.Equal(t, []models.ProbabilityEntry{{Label: "b", Value: 30}, {Label: "a", Value: 10}}, p.Others)
}

func TestDeriveTiesKeepVectorOrder(t *testing.T) {
	p := Derive([]float64{0.4, 0.4, 0.2}, labels("a", "b", "c"))
	assert.Equal(t, "a", p.Best.Label)
	assert.Equal(t, "b", p.Others[0].Label)
}

func TestDeriveAllZero(t *testing.T) {
	p := Derive([]float64{0.001, 0.004}, labels("a", "b"))
	assert.Nil(t, p.Best)
	assert.Empty(t, p.Others)
	assert.Len(t, p.Chart, 2)
}

func TestPercentRoundsHalfUp(t *testing.T) {
	assert.Equal(t, 13, Percent(0.125))
	assert.Equal(t, 0, Percent(0.004))
	assert.Equal(t, 100, Percent(1))
}
