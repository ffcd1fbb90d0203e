package feed

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinicscore/drug-advisor/internal/models"
	"github.com/clinicscore/drug-advisor/internal/repo"
	"github.com/clinicscore/drug-advisor/internal/utils"
)

type listerFunc func(ctx context.Context) ([]repo.DeploymentDescriptor, error)

func (f listerFunc) ListDeployments(ctx context.Context) ([]repo.DeploymentDescriptor, error) {
	return f(ctx)
}

var expectedSchema = []models.SchemaField{
	{Name: "AGE", Type: "integer"},
	{Name: "NA", Type: "decimal(12,6)"},
}

func descriptor(id, runtime string, fields []models.SchemaField) repo.DeploymentDescriptor {
	d := repo.DeploymentDescriptor{
		ID:           id,
		CreatedAt:    json.RawMessage(`"2017-05-04T15:11:12Z"`),
		ScoringHref:  "https://scoring/" + id,
		FeedbackHref: "https://feedback/" + id,
		Model:        &repo.ModelInfo{Name: "model-" + id, RuntimeEnvironment: runtime},
	}
	if fields != nil {
		d.Model.InputDataSchema = &repo.InputSchema{Fields: fields}
	}
	return d
}

func newFeed(lister Lister) *Feed {
	return New(lister, Options{
		ExpectedSchema:  expectedSchema,
		RequiredRuntime: "spark",
		TimestampLayout: "1/2/2006, 3:04:05 PM",
		Location:        time.UTC,
	}, utils.DiscardLogger())
}

func TestLoadFiltersAndAnnotates(t *testing.T) {
	descriptors := []repo.DeploymentDescriptor{
		descriptor("match", "spark-2.0", []models.SchemaField{{Name: "NA", Type: "integer"}, {Name: "AGE", Type: "decimal"}}),
		descriptor("mismatch", "spark-2.0", []models.SchemaField{{Name: "AGE", Type: "string"}, {Name: "NA", Type: "integer"}}),
		descriptor("python", "python-3.5", expectedSchema),
		descriptor("noschema", "spark-2.0", nil),
		{ID: "nomodel", RuntimeEnvironment: "spark"},
	}
	f := newFeed(listerFunc(func(context.Context) ([]repo.DeploymentDescriptor, error) {
		return descriptors, nil
	}))

	deployments, err := f.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, deployments, 2)

	assert.Equal(t, "match", deployments[0].ID)
	assert.True(t, deployments[0].Eligible)
	assert.Equal(t, "5/4/2017, 3:11:12 PM", deployments[0].CreatedAt)
	assert.Equal(t, "https://feedback/match", deployments[0].FeedbackHref)

	assert.Equal(t, "mismatch", deployments[1].ID)
	assert.False(t, deployments[1].Eligible)
}

func TestLoadTopLevelRuntimeFallback(t *testing.T) {
	d := descriptor("top", "", expectedSchema)
	d.RuntimeEnvironment = "spark-2.1"
	f := newFeed(listerFunc(func(context.Context) ([]repo.DeploymentDescriptor, error) {
		return []repo.DeploymentDescriptor{d}, nil
	}))

	deployments, err := f.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, deployments, 1)
	assert.Equal(t, "spark-2.1", deployments[0].RuntimeEnvironment)
}

func TestLoadSurfacesReadableError(t *testing.T) {
	f := newFeed(listerFunc(func(context.Context) ([]repo.DeploymentDescriptor, error) {
		return nil, &repo.StatusError{StatusCode: 500, Status: "500 Internal Server Error", Body: []byte(`{"errors": "token expired"}`)}
	}))

	_, err := f.Load(context.Background())
	require.Error(t, err)
	assert.Equal(t, "token expired", utils.UserMessage(err))
}

func TestLoadHonoursCancellation(t *testing.T) {
	f := newFeed(listerFunc(func(ctx context.Context) ([]repo.DeploymentDescriptor, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.Load(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}
