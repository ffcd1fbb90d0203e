package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinicscore/drug-advisor/internal/config"
	"github.com/clinicscore/drug-advisor/internal/models"
	"github.com/clinicscore/drug-advisor/internal/utils"
	"github.com/clinicscore/drug-advisor/internal/workflow"
)

const testModel = `{
  "model-schema": [{"name": "AGE", "type": "integer"}],
  "model-prediction-mapping": ["drugA", "drugB"],
  "label-values": [{"title": "Drug A", "value": "drugA"}],
  "model-input": [{"name": "Alice", "icon": "alice.png", "data": [23, "F", "HIGH", "HIGH", 0.79, 0.03]}]
}`

type stubFeed struct{ err error }

func (f stubFeed) Load(context.Context) ([]models.Deployment, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []models.Deployment{{ID: "dep-1", Eligible: true}}, nil
}

type stubScorer struct{}

func (stubScorer) Score(_ context.Context, d models.Deployment, p models.Patient) (models.ScoringResult, error) {
	return models.ScoringResult{Probabilities: []float64{0.7, 0.3}, DeploymentID: d.ID, PatientID: p.ID()}, nil
}

type stubFeedback struct{}

func (stubFeedback) Submit(context.Context, string, string, string) (models.FeedbackResult, error) {
	return models.FeedbackResult{Accepted: true}, nil
}

func newService(t *testing.T, maxSessions int, feed workflow.DeploymentLoader) *SessionService {
	t.Helper()
	model, err := config.ParseModel([]byte(testModel))
	require.NoError(t, err)
	svc := NewSessionService(utils.DiscardLogger(), config.SessionsConfig{MaxSessions: maxSessions, IdleTTL: time.Hour}, model,
		func(alert workflow.AlertFunc) *workflow.Controller {
			return workflow.New(workflow.Options{
				Feed:     feed,
				Scorer:   stubScorer{},
				Feedback: stubFeedback{},
				Model:    model,
				Alert:    alert,
				Logger:   utils.DiscardLogger(),
			})
		})
	t.Cleanup(svc.Close)
	return svc
}

func TestCreateAndGet(t *testing.T) {
	svc := newService(t, 4, stubFeed{})
	session := svc.Create()
	require.NotEmpty(t, session.ID)

	got, err := svc.Get(session.ID)
	require.NoError(t, err)
	assert.Same(t, session, got)
	assert.Equal(t, 1, svc.Len())

	require.Eventually(t, func() bool {
		return len(got.Controller.View().Deployments) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestDeleteClosesController(t *testing.T) {
	svc := newService(t, 4, stubFeed{})
	session := svc.Create()

	require.NoError(t, svc.Delete(session.ID))
	assert.True(t, session.Controller.Closed())

	_, err := svc.Get(session.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.ErrorIs(t, svc.Delete(session.ID), ErrSessionNotFound)
}

func TestCapacityEvictsOldest(t *testing.T) {
	svc := newService(t, 2, stubFeed{})
	first := svc.Create()
	svc.Create()
	svc.Create()

	assert.True(t, first.Controller.Closed())
	_, err := svc.Get(first.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.Equal(t, 2, svc.Len())
}

func TestAlertsAreQueuedPerSession(t *testing.T) {
	svc := newService(t, 4, stubFeed{err: utils.NewAppError("load deployments", "Deployment service failure.", errors.New("down"))})
	session := svc.Create()

	require.Eventually(t, func() bool {
		return !session.Controller.View().DeploymentsLoading
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, []string{"Deployment service failure."}, session.DrainAlerts())
	assert.Empty(t, session.DrainAlerts())
}

func TestDoRunsAgainstController(t *testing.T) {
	svc := newService(t, 4, stubFeed{})
	session := svc.Create()
	require.Eventually(t, func() bool {
		return len(session.Controller.View().Deployments) == 1
	}, time.Second, 5*time.Millisecond)

	_, err := svc.Do(context.Background(), session.ID, "select deployment", func(_ context.Context, c *workflow.Controller) error {
		return c.SelectDeployment("dep-1")
	})
	require.NoError(t, err)
	_, err = svc.Do(context.Background(), session.ID, "select patient", func(ctx context.Context, c *workflow.Controller) error {
		return c.SelectPatient(ctx, "Alice")
	})
	require.NoError(t, err)
	assert.Equal(t, workflow.StateScored, session.Controller.State())

	_, err = svc.Do(context.Background(), "missing", "reset", func(context.Context, *workflow.Controller) error { return nil })
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestPatients(t *testing.T) {
	svc := newService(t, 4, stubFeed{})
	cards := svc.Patients()
	require.Len(t, cards, 1)
	assert.Equal(t, "Alice", cards[0].Name)
	assert.Equal(t, "Female", cards[0].Gender)
}

func TestAlertQueueIsBounded(t *testing.T) {
	s := &Session{}
	for i := 0; i < maxQueuedAlerts+5; i++ {
		s.pushAlert("alert")
	}
	assert.Len(t, s.DrainAlerts(), maxQueuedAlerts)
}
