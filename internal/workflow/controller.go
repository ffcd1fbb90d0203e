// Package workflow holds the per-session scoring workflow: deployment and patient
// selection, scoring and feedback calls, and the view derived from them.
package workflow

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/clinicscore/drug-advisor/internal/config"
	"github.com/clinicscore/drug-advisor/internal/metrics"
	"github.com/clinicscore/drug-advisor/internal/models"
	"github.com/clinicscore/drug-advisor/internal/utils"
)

// DeploymentLoader fetches the filtered and annotated deployment list.
type DeploymentLoader interface {
	Load(ctx context.Context) ([]models.Deployment, error)
}

// Scorer scores one patient against one deployment.
type Scorer interface {
	Score(ctx context.Context, deployment models.Deployment, patient models.Patient) (models.ScoringResult, error)
}

// FeedbackSubmitter submits a confirmed label for a scored patient.
type FeedbackSubmitter interface {
	Submit(ctx context.Context, feedbackURL, patientPayload, label string) (models.FeedbackResult, error)
}

// AlertFunc receives clinician-readable failure messages.
type AlertFunc func(message string)

// Options carries the collaborators of a Controller.
type Options struct {
	Feed     DeploymentLoader
	Scorer   Scorer
	Feedback FeedbackSubmitter
	Model    *config.Model
	// Alert receives every surfaced failure; when nil failures are logged as warnings.
	Alert AlertFunc
	// RequestTimeout bounds each scoring and feedback call; zero means no extra bound.
	RequestTimeout time.Duration
	Logger         *slog.Logger
}

// Controller owns one clinician's selection state. Remote calls run in the
// calling goroutine with the lock released; their results are applied only if
// no newer selection has been made in the meantime.
type Controller struct {
	feed     DeploymentLoader
	scorer   Scorer
	feedback FeedbackSubmitter
	model    *config.Model
	alert    AlertFunc
	timeout  time.Duration
	logger   *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu                 sync.Mutex
	closed             bool
	deployments        []models.Deployment
	deploymentsLoading bool
	deploymentsError   string
	deployment         *models.Deployment
	patient            *models.Patient
	scoring            *models.ScoringResult
	feedbackResult     *models.FeedbackResult
	scoringInFlight    bool
	feedbackInFlight   bool
	// generation advances whenever the selection or scoring result is replaced.
	generation     uint64
	scoringCancel  context.CancelFunc
	feedbackCancel context.CancelFunc
}

// New constructs a Controller in the Idle state.
func New(opts Options) *Controller {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		feed:     opts.Feed,
		scorer:   opts.Scorer,
		feedback: opts.Feedback,
		model:    opts.Model,
		alert:    opts.Alert,
		timeout:  opts.RequestTimeout,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start loads the deployment list in the background.
func (c *Controller) Start() {
	c.mu.Lock()
	c.deploymentsLoading = true
	c.mu.Unlock()
	go func() {
		_ = c.LoadDeployments(context.Background())
	}()
}

// LoadDeployments fetches the deployment list and publishes it. Failures are
// surfaced as one alert. Nothing is applied once the controller is closed.
func (c *Controller) LoadDeployments(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.deploymentsLoading = true
	c.mu.Unlock()

	reqCtx, cancel := c.requestContext(ctx, 0)
	deployments, err := c.feed.Load(reqCtx)
	cancel()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		metrics.ObserveDiscarded(metrics.OpDeployments)
		return ErrClosed
	}
	c.deploymentsLoading = false
	if err != nil {
		msg := utils.UserMessage(err)
		c.deploymentsError = msg
		c.mu.Unlock()
		c.logger.Warn("deployment list unavailable", slog.Any("error", err))
		c.raise(msg)
		return err
	}
	c.deployments = deployments
	c.deploymentsError = ""
	c.mu.Unlock()
	return nil
}

// SelectDeployment chooses a deployment by id. Re-selecting the current one is a no-op.
func (c *Controller) SelectDeployment(id string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.deployment != nil && c.deployment.ID == id {
		c.mu.Unlock()
		return nil
	}
	d, ok := c.findDeployment(id)
	if !ok {
		c.mu.Unlock()
		return c.fail(ErrUnknownDeployment)
	}
	if !d.Eligible {
		c.mu.Unlock()
		return c.fail(ErrDeploymentIneligible)
	}
	c.deployment = &d
	c.invalidateLocked()
	c.mu.Unlock()

	c.logger.Debug("deployment selected", slog.String("deployment", id))
	return nil
}

// SelectPatient chooses a patient by id and, when a deployment is chosen, scores it.
// Re-selecting the current patient is a no-op.
func (c *Controller) SelectPatient(ctx context.Context, id string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.patient != nil && c.patient.ID() == id {
		c.mu.Unlock()
		return nil
	}
	p, ok := c.model.Patient(id)
	if !ok {
		c.mu.Unlock()
		return c.fail(ErrUnknownPatient)
	}
	c.patient = &p
	c.invalidateLocked()
	if c.deployment == nil {
		c.mu.Unlock()
		c.logger.Debug("patient selected", slog.String("patient", id))
		return nil
	}
	req := c.beginScoringLocked(ctx)
	c.mu.Unlock()

	c.logger.Debug("patient selected, scoring", slog.String("patient", id))
	return c.runScoring(req)
}

// RequestPrediction scores the current selection again.
func (c *Controller) RequestPrediction(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if err := c.selectionErrLocked(); err != nil {
		c.mu.Unlock()
		return c.fail(err)
	}
	if c.scoringInFlight {
		c.mu.Unlock()
		return ErrScoringInFlight
	}
	req := c.beginScoringLocked(ctx)
	c.mu.Unlock()
	return c.runScoring(req)
}

// RequestFeedback submits label for the current scoring result.
func (c *Controller) RequestFeedback(ctx context.Context, label string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if err := c.selectionErrLocked(); err != nil {
		c.mu.Unlock()
		return c.fail(err)
	}
	var pre error
	switch {
	case c.scoring == nil:
		pre = ErrNoResult
	case c.feedbackInFlight:
		pre = ErrFeedbackInFlight
	case c.feedbackResult != nil:
		pre = ErrFeedbackSubmitted
	case !c.model.HasLabel(label):
		pre = ErrUnknownLabel
	}
	if pre != nil {
		c.mu.Unlock()
		return c.fail(pre)
	}
	payload, err := c.patient.Payload()
	if err != nil {
		c.mu.Unlock()
		return c.fail(utils.NewAppError("feedback", "Patient data could not be encoded.", err))
	}
	gen := c.generation
	deploymentID := c.deployment.ID
	feedbackURL := c.deployment.FeedbackHref
	reqCtx, cancel := c.requestContext(ctx, c.timeout)
	c.feedbackInFlight = true
	c.feedbackCancel = cancel
	c.mu.Unlock()

	result, err := c.feedback.Submit(reqCtx, feedbackURL, payload, label)
	cancel()

	c.mu.Lock()
	if c.closed || gen != c.generation {
		closed := c.closed
		c.mu.Unlock()
		metrics.ObserveDiscarded(metrics.OpFeedback)
		if closed {
			return ErrClosed
		}
		return ErrSuperseded
	}
	c.feedbackInFlight = false
	c.feedbackCancel = nil
	if err != nil {
		c.mu.Unlock()
		return c.fail(err)
	}
	c.feedbackResult = &result
	c.mu.Unlock()

	c.logger.Info("feedback submitted", slog.String("deployment", deploymentID), slog.String("label", label))
	return nil
}

// Reset clears the selection and every result, cancelling in-flight calls.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deployment = nil
	c.patient = nil
	c.invalidateLocked()
}

// Close tears the controller down. In-flight calls are cancelled and their
// results discarded. Close is idempotent.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.generation++
	c.scoringCancel = nil
	c.feedbackCancel = nil
	c.mu.Unlock()
	c.cancel()
}

// Closed reports whether Close has been called.
func (c *Controller) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// State returns the current workflow state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateLocked()
}

func (c *Controller) stateLocked() State {
	switch {
	case c.feedbackInFlight:
		return StateFeedbackPending
	case c.feedbackResult != nil:
		return StateFeedbackComplete
	case c.scoringInFlight:
		return StateScoring
	case c.scoring != nil:
		return StateScored
	case c.deployment != nil && c.patient != nil:
		return StatePatientChosen
	case c.deployment != nil:
		return StateDeploymentChosen
	default:
		return StateIdle
	}
}

type scoringRequest struct {
	ctx        context.Context
	cancel     context.CancelFunc
	generation uint64
	deployment models.Deployment
	patient    models.Patient
}

// beginScoringLocked issues a new scoring generation for the current selection.
func (c *Controller) beginScoringLocked(ctx context.Context) scoringRequest {
	c.invalidateLocked()
	reqCtx, cancel := c.requestContext(ctx, c.timeout)
	c.scoringInFlight = true
	c.scoringCancel = cancel
	return scoringRequest{
		ctx:        reqCtx,
		cancel:     cancel,
		generation: c.generation,
		deployment: *c.deployment,
		patient:    *c.patient,
	}
}

func (c *Controller) runScoring(req scoringRequest) error {
	result, err := c.scorer.Score(req.ctx, req.deployment, req.patient)
	req.cancel()

	c.mu.Lock()
	if c.closed || req.generation != c.generation {
		closed := c.closed
		c.mu.Unlock()
		metrics.ObserveDiscarded(metrics.OpScore)
		c.logger.Debug("scoring result discarded",
			slog.String("deployment", req.deployment.ID),
			slog.String("patient", req.patient.ID()))
		if closed {
			return ErrClosed
		}
		return ErrSuperseded
	}
	c.scoringInFlight = false
	c.scoringCancel = nil
	if err != nil {
		c.mu.Unlock()
		return c.fail(err)
	}
	c.scoring = &result
	c.mu.Unlock()
	return nil
}

// invalidateLocked drops results and in-flight calls tied to the previous selection.
func (c *Controller) invalidateLocked() {
	c.generation++
	if c.scoringCancel != nil {
		c.scoringCancel()
		c.scoringCancel = nil
	}
	if c.feedbackCancel != nil {
		c.feedbackCancel()
		c.feedbackCancel = nil
	}
	c.scoringInFlight = false
	c.feedbackInFlight = false
	c.scoring = nil
	c.feedbackResult = nil
}

func (c *Controller) selectionErrLocked() error {
	if c.deployment == nil {
		return ErrNoDeployment
	}
	if c.patient == nil {
		return ErrNoPatient
	}
	return nil
}

func (c *Controller) findDeployment(id string) (models.Deployment, bool) {
	for _, d := range c.deployments {
		if d.ID == id {
			return d, true
		}
	}
	return models.Deployment{}, false
}

// requestContext derives a call context that ends when the caller's context
// ends, the controller closes, or timeout elapses.
func (c *Controller) requestContext(caller context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(c.ctx)
	stop := context.AfterFunc(caller, cancel)
	if timeout <= 0 {
		return ctx, func() {
			stop()
			cancel()
		}
	}
	timed, cancelTimed := context.WithTimeout(ctx, timeout)
	return timed, func() {
		stop()
		cancelTimed()
		cancel()
	}
}

// fail surfaces err through the alert hook and returns it.
func (c *Controller) fail(err error) error {
	c.raise(utils.UserMessage(err))
	return err
}

func (c *Controller) raise(msg string) {
	if c.alert != nil {
		c.alert(msg)
		return
	}
	c.logger.Warn("workflow alert", slog.String("message", msg))
}
