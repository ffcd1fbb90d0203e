package workflow

import "errors"

// State is the workflow position derived from the controller's data.
type State string

const (
	StateIdle             State = "idle"
	StateDeploymentChosen State = "deployment_chosen"
	StatePatientChosen    State = "patient_chosen"
	StateScoring          State = "scoring"
	StateScored           State = "scored"
	StateFeedbackPending  State = "feedback_pending"
	StateFeedbackComplete State = "feedback_complete"
)

// PreconditionError is returned when an action is attempted without the selection
// it needs. The text is shown to the clinician as is.
type PreconditionError string

func (e PreconditionError) Error() string { return string(e) }

const (
	ErrNoDeployment         PreconditionError = "Select a Deployment"
	ErrNoPatient            PreconditionError = "Select a Patient"
	ErrUnknownDeployment    PreconditionError = "Unknown deployment."
	ErrDeploymentIneligible PreconditionError = "This deployment's input schema does not match the model."
	ErrUnknownPatient       PreconditionError = "Unknown patient."
	ErrUnknownLabel         PreconditionError = "Unknown feedback label."
	ErrNoResult             PreconditionError = "Generate a prediction first."
	ErrScoringInFlight      PreconditionError = "A prediction is already in progress."
	ErrFeedbackInFlight     PreconditionError = "Feedback is already being submitted."
	ErrFeedbackSubmitted    PreconditionError = "Feedback was already submitted for this prediction."
)

var (
	// ErrSuperseded is returned to the caller whose result was dropped because
	// the selection changed while the request was in flight.
	ErrSuperseded = errors.New("workflow: result superseded by a newer selection")
	// ErrClosed is returned once the controller has been torn down.
	ErrClosed = errors.New("workflow: controller closed")
)

// IsPrecondition reports whether err is a selection precondition failure.
func IsPrecondition(err error) bool {
	var pre PreconditionError
	return errors.As(err, &pre)
}
