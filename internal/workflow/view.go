package workflow

import (
	"time"

	"github.com/clinicscore/drug-advisor/internal/models"
)

// View is a render-ready snapshot of a controller.
type View struct {
	State              State               `json:"state"`
	Deployments        []models.Deployment `json:"deployments"`
	DeploymentsLoading bool                `json:"deploymentsLoading"`
	DeploymentsError   string              `json:"deploymentsError,omitempty"`
	SelectedDeployment *models.Deployment  `json:"selectedDeployment,omitempty"`
	SelectedPatient    *models.PatientCard `json:"selectedPatient,omitempty"`
	ShowPatients       bool                `json:"showPatients"`
	Loading            bool                `json:"loading"`
	Result             *ResultPanel        `json:"result,omitempty"`
	Feedback           *FeedbackPanel      `json:"feedback,omitempty"`
	CanRegenerate      bool                `json:"canRegenerate"`
}

// ResultPanel describes a scoring result for display.
type ResultPanel struct {
	PatientID    string            `json:"patientId"`
	DeploymentID string            `json:"deploymentId"`
	Input        models.Attributes `json:"input"`
	ScoredAt     time.Time         `json:"scoredAt"`
	Presentation
}

// FeedbackPanel describes the feedback prompt below a result.
type FeedbackPanel struct {
	Prompt  bool                   `json:"prompt"`
	Loading bool                   `json:"loading"`
	Thanks  bool                   `json:"thanks"`
	Options []models.LabelValue    `json:"options"`
	Result  *models.FeedbackResult `json:"result,omitempty"`
}

// View derives the current snapshot.
func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()

	v := View{
		State:              c.stateLocked(),
		Deployments:        append([]models.Deployment{}, c.deployments...),
		DeploymentsLoading: c.deploymentsLoading,
		DeploymentsError:   c.deploymentsError,
		ShowPatients:       c.deployment != nil,
		Loading:            c.scoringInFlight || c.feedbackInFlight,
	}
	if c.deployment != nil {
		d := *c.deployment
		v.SelectedDeployment = &d
	}
	if c.patient != nil {
		card := c.patient.Card()
		v.SelectedPatient = &card
	}
	if c.scoring != nil {
		v.Result = c.resultPanelLocked()
		v.Feedback = &FeedbackPanel{
			Prompt:  c.feedbackResult == nil && !c.feedbackInFlight,
			Loading: c.feedbackInFlight,
			Thanks:  c.feedbackResult != nil,
			Options: append([]models.LabelValue{}, c.model.LabelValues...),
		}
		if c.feedbackResult != nil {
			fr := *c.feedbackResult
			v.Feedback.Result = &fr
		}
	}
	v.CanRegenerate = c.deployment != nil && c.patient != nil && c.scoring != nil
	return v
}

func (c *Controller) resultPanelLocked() *ResultPanel {
	r := c.scoring
	row := r.Values
	if len(row) == 0 && c.patient != nil {
		row = c.patient.Data
	}
	return &ResultPanel{
		PatientID:    r.PatientID,
		DeploymentID: r.DeploymentID,
		Input:        models.DecodeAttributes(row),
		ScoredAt:     r.ScoredAt,
		Presentation: Derive(r.Probabilities, c.model.Label),
	}
}
