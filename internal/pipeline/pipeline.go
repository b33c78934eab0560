// Package pipeline orchestrates the derivation stages in their fixed order:
// classification, law audit, funding audit, doctrine, scorecard, validity.
// A failed stage never aborts the run; downstream stages observe the missing
// artifact and degrade or fail the same way on every re-run.
package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"lexaudit/internal/artifact"
	"lexaudit/internal/classify"
	"lexaudit/internal/doctrine"
	"lexaudit/internal/funding"
	"lexaudit/internal/intake"
	"lexaudit/internal/lawaudit"
	"lexaudit/internal/platform/metrics"
	"lexaudit/internal/rules"
	"lexaudit/internal/scorecard"
	"lexaudit/internal/validity"
	dErrors "lexaudit/pkg/domain-errors"
	"lexaudit/pkg/platform/audit"
	"lexaudit/pkg/requestcontext"
)

// Stage names, in execution order.
const (
	StageClassify     = "classify"
	StageLawAudit     = "law_audit"
	StageFundingAudit = "funding_audit"
	StageDoctrine     = "doctrine"
	StageScorecard    = "scorecard"
	StageValidity     = "validity"
)

// Run statuses.
const (
	StatusCompleted    = "completed"
	StatusWithFailures = "completed_with_failures"
)

// StageStatus reports how one stage ended.
type StageStatus struct {
	Stage  string `json:"stage"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
	Code   string `json:"code,omitempty"`
}

// RunReport summarizes a pipeline execution.
type RunReport struct {
	RunID       string        `json:"run_id"`
	Status      string        `json:"status"`
	Stages      []StageStatus `json:"stages"`
	CompletedAt time.Time     `json:"completed_at"`
}

// Pipeline wires the stage services together.
type Pipeline struct {
	store     artifact.Store
	classify  *classify.Service
	lawAudit  *lawaudit.Service
	funding   *funding.Service
	doctrine  *doctrine.Service
	scorecard *scorecard.Service
	validity  *validity.Service
	publisher *audit.Publisher
	metrics   *metrics.Metrics
	tracer    trace.Tracer
	logger    *slog.Logger
}

func New(store artifact.Store, loader *rules.Loader, publisher *audit.Publisher, m *metrics.Metrics, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		store:     store,
		classify:  classify.NewService(store, logger),
		lawAudit:  lawaudit.NewService(store, loader, logger),
		funding:   funding.NewService(store, loader, logger),
		doctrine:  doctrine.NewService(store, loader, logger, m),
		scorecard: scorecard.NewService(store, logger),
		validity:  validity.NewService(store, loader, logger, m),
		publisher: publisher,
		metrics:   m,
		tracer:    otel.Tracer("lexaudit/pipeline"),
		logger:    logger,
	}
}

// Start persists the intake record under a fresh run id and executes the
// full pipeline.
func (p *Pipeline) Start(ctx context.Context, rec *intake.Record) (string, *RunReport, error) {
	runID := uuid.NewString()

	rec.Normalize()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = requestcontext.Now(ctx)
	}
	if err := artifact.Write(ctx, p.store, runID, artifact.KeyIntake, rec); err != nil {
		return "", nil, dErrors.Wrap(dErrors.CodeInternal, "failed to persist intake", err)
	}

	p.emit(ctx, audit.Event{RunID: runID, Action: audit.ActionRunStarted})

	report := p.Execute(ctx, runID)
	return runID, report, nil
}

// Execute runs every stage in order against an already-persisted intake.
// Stage errors are recorded and the pipeline moves on; the same inputs always
// produce the same artifacts and the same report.
func (p *Pipeline) Execute(ctx context.Context, runID string) *RunReport {
	ctx, span := p.tracer.Start(ctx, "pipeline.execute",
		trace.WithAttributes(attribute.String("run.id", runID)))
	defer span.End()

	stages := []struct {
		name string
		run  func(context.Context, string) error
	}{
		{StageClassify, func(ctx context.Context, id string) error { _, err := p.classify.Run(ctx, id); return err }},
		{StageLawAudit, func(ctx context.Context, id string) error { _, err := p.lawAudit.Run(ctx, id); return err }},
		{StageFundingAudit, func(ctx context.Context, id string) error { _, err := p.funding.Run(ctx, id); return err }},
		{StageDoctrine, func(ctx context.Context, id string) error { _, err := p.doctrine.Run(ctx, id); return err }},
		{StageScorecard, func(ctx context.Context, id string) error { _, err := p.scorecard.Run(ctx, id); return err }},
		{StageValidity, func(ctx context.Context, id string) error { _, err := p.validity.Run(ctx, id); return err }},
	}

	report := &RunReport{RunID: runID, Status: StatusCompleted, Stages: make([]StageStatus, 0, len(stages))}

	for _, stage := range stages {
		status := p.runStage(ctx, runID, stage.name, stage.run)
		if status.Status != "ok" {
			report.Status = StatusWithFailures
		}
		report.Stages = append(report.Stages, status)
	}

	report.CompletedAt = requestcontext.Now(ctx)
	p.metrics.IncrementRun(report.Status)
	p.emit(ctx, audit.Event{RunID: runID, Action: audit.ActionRunCompleted, Outcome: report.Status})

	return report
}

func (p *Pipeline) runStage(ctx context.Context, runID, name string, run func(context.Context, string) error) StageStatus {
	ctx, span := p.tracer.Start(ctx, "stage."+name)
	defer span.End()

	start := time.Now()
	err := run(ctx, runID)
	p.metrics.ObserveStageLatency(name, time.Since(start))

	if err != nil {
		code := string(dErrors.CodeOf(err))
		span.SetStatus(codes.Error, code)
		p.metrics.IncrementStageFailure(name, code)
		p.logger.WarnContext(ctx, "pipeline stage failed",
			"run_id", runID,
			"stage", name,
			"code", code,
			"error", err,
		)
		p.emit(ctx, audit.Event{
			RunID:   runID,
			Stage:   name,
			Action:  audit.ActionStageFailed,
			Reason:  dErrors.MessageOf(err),
			Outcome: code,
		})
		return StageStatus{Stage: name, Status: "failed", Error: dErrors.MessageOf(err), Code: code}
	}

	p.emit(ctx, audit.Event{RunID: runID, Stage: name, Action: audit.ActionStageCompleted, Outcome: "ok"})
	return StageStatus{Stage: name, Status: "ok"}
}

func (p *Pipeline) emit(ctx context.Context, event audit.Event) {
	if p.publisher == nil {
		return
	}
	event.RequestID = requestcontext.RequestID(ctx)
	if err := p.publisher.Emit(ctx, event); err != nil {
		p.logger.WarnContext(ctx, "audit emit failed", "action", event.Action, "error", err)
	}
}
