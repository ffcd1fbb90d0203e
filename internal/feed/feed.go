// Package feed builds the list of deployments a clinician can choose from.
package feed

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/clinicscore/drug-advisor/internal/config"
	"github.com/clinicscore/drug-advisor/internal/metrics"
	"github.com/clinicscore/drug-advisor/internal/models"
	"github.com/clinicscore/drug-advisor/internal/repo"
	"github.com/clinicscore/drug-advisor/internal/schema"
	"github.com/clinicscore/drug-advisor/internal/utils"
)

// FailureMessage is shown when the deployment list cannot be fetched and the
// environment gave no better explanation.
const FailureMessage = "Deployment service failure."

// Lister fetches the raw deployment list.
type Lister interface {
	ListDeployments(ctx context.Context) ([]repo.DeploymentDescriptor, error)
}

// Options tune how descriptors are filtered and annotated.
type Options struct {
	ExpectedSchema  []models.SchemaField
	RequiredRuntime string
	TimestampLayout string
	Location        *time.Location
}

// Feed filters and annotates deployments for selection.
type Feed struct {
	lister Lister
	opts   Options
	logger *slog.Logger
}

// New constructs a Feed.
func New(lister Lister, opts Options, logger *slog.Logger) *Feed {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	opts.ExpectedSchema = append([]models.SchemaField(nil), opts.ExpectedSchema...)
	return &Feed{lister: lister, opts: opts, logger: logger}
}

// Load fetches the deployment list once and returns the compatible entries in
// service order. The returned error carries a clinician-readable message.
func (f *Feed) Load(ctx context.Context) ([]models.Deployment, error) {
	start := time.Now()
	descriptors, err := f.lister.ListDeployments(ctx)
	if err != nil {
		metrics.ObserveRemoteCall(metrics.OpDeployments, time.Since(start), metrics.OutcomeError)
		return nil, utils.NewAppError("load deployments", repo.DescribeError(err, FailureMessage), err)
	}
	metrics.ObserveRemoteCall(metrics.OpDeployments, time.Since(start), metrics.OutcomeSuccess)

	deployments := f.Annotate(descriptors)
	eligible := 0
	for _, d := range deployments {
		if d.Eligible {
			eligible++
		}
	}
	metrics.ObserveDeployments(eligible, len(deployments)-eligible)
	f.logger.Debug("deployment list loaded",
		slog.Int("received", len(descriptors)),
		slog.Int("usable", len(deployments)),
		slog.Int("eligible", eligible))
	return deployments, nil
}

// Annotate drops unusable descriptors and computes eligibility for the rest.
func (f *Feed) Annotate(descriptors []repo.DeploymentDescriptor) []models.Deployment {
	out := make([]models.Deployment, 0, len(descriptors))
	for _, d := range descriptors {
		if !f.usable(d) {
			continue
		}
		fields := append([]models.SchemaField(nil), d.Model.InputDataSchema.Fields...)
		out = append(out, models.Deployment{
			ID:                 d.ID,
			Name:               d.Name,
			ModelName:          d.Model.Name,
			ScoringHref:        d.ScoringHref,
			FeedbackHref:       d.FeedbackHref,
			InputSchema:        fields,
			RuntimeEnvironment: d.Runtime(),
			CreatedAt:          utils.FormatDisplay(d.CreatedAtString(), f.opts.TimestampLayout, f.opts.Location),
			Eligible:           schema.Matches(fields, f.opts.ExpectedSchema),
		})
	}
	return out
}

func (f *Feed) usable(d repo.DeploymentDescriptor) bool {
	if d.Model == nil || d.Model.InputDataSchema == nil || d.Model.InputDataSchema.Fields == nil {
		return false
	}
	runtime := d.Runtime()
	if runtime == "" {
		return false
	}
	return f.opts.RequiredRuntime == "" || strings.Contains(runtime, f.opts.RequiredRuntime)
}

// OptionsFromConfig builds feed options from the model description and service config.
func OptionsFromConfig(model *config.Model, cfg config.ModelConfig) (Options, error) {
	loc, err := cfg.Location()
	if err != nil {
		return Options{}, err
	}
	return Options{
		ExpectedSchema:  model.ExpectedSchema,
		RequiredRuntime: cfg.RequiredRuntime,
		TimestampLayout: cfg.TimestampLayout,
		Location:        loc,
	}, nil
}
