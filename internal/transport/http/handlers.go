package httptransport

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"lexaudit/internal/artifact"
	"lexaudit/internal/export"
	"lexaudit/internal/intake"
	"lexaudit/internal/pipeline"
	"lexaudit/internal/receipt"
	dErrors "lexaudit/pkg/domain-errors"
	"lexaudit/pkg/platform/audit"
	"lexaudit/pkg/platform/httputil"
	"lexaudit/pkg/platform/sentinel"
	"lexaudit/pkg/requestcontext"
)

// Handler delegates to the pipeline and supporting services.
type Handler struct {
	pipeline   *pipeline.Pipeline
	store      artifact.Store
	exporter   *export.Service
	issuer     *receipt.Issuer
	auditTrail audit.Store
	publisher  *audit.Publisher
	logger     *slog.Logger
}

func NewHandler(
	p *pipeline.Pipeline,
	store artifact.Store,
	exporter *export.Service,
	issuer *receipt.Issuer,
	auditTrail audit.Store,
	publisher *audit.Publisher,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		pipeline:   p,
		store:      store,
		exporter:   exporter,
		issuer:     issuer,
		auditTrail: auditTrail,
		publisher:  publisher,
		logger:     logger,
	}
}

type createRunRequest struct {
	Jurisdiction  intake.Jurisdiction    `json:"jurisdiction"`
	Event         intake.Event           `json:"event"`
	DriverContext intake.DriverContext   `json:"driver_context"`
	Statutes      []intake.Statute       `json:"statutes"`
	StatutesText  string                 `json:"statutes_text"`
	Attachment    *intake.Attachment     `json:"attachment"`
	Funding       *intake.FundingContext `json:"funding"`
}

func (r *createRunRequest) Validate() error {
	if len(r.Statutes) == 0 && r.StatutesText == "" {
		return dErrors.New(dErrors.CodeValidation, "statutes or statutes_text is required")
	}
	return nil
}

func (r *createRunRequest) record() *intake.Record {
	statutes := r.Statutes
	if len(statutes) == 0 {
		statutes = intake.ParseStatutes(r.StatutesText)
	}
	return &intake.Record{
		Jurisdiction:  r.Jurisdiction,
		Event:         r.Event,
		DriverContext: r.DriverContext,
		Statutes:      statutes,
		Attachment:    r.Attachment,
		Funding:       r.Funding,
	}
}

type createRunResponse struct {
	RunID  string                 `json:"run_id"`
	Status string                 `json:"status"`
	Stages []pipeline.StageStatus `json:"stages"`
}

func (h *Handler) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[createRunRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	runID, report, err := h.pipeline.Start(ctx, req.record())
	if err != nil {
		h.logger.ErrorContext(ctx, "run start failed", "request_id", requestID, "error", err)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, createRunResponse{
		RunID:  runID,
		Status: report.Status,
		Stages: report.Stages,
	})
}

var artifactKeys = map[string]artifact.Key{
	string(artifact.KeyIntake):         artifact.KeyIntake,
	string(artifact.KeyClassification): artifact.KeyClassification,
	string(artifact.KeyLawAudit):       artifact.KeyLawAudit,
	string(artifact.KeyFundingAudit):   artifact.KeyFundingAudit,
	string(artifact.KeyDoctrine):       artifact.KeyDoctrine,
	string(artifact.KeyScorecard):      artifact.KeyScorecard,
	string(artifact.KeyValidity):       artifact.KeyValidity,
}

func (h *Handler) handleGetArtifact(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	runID := chi.URLParam(r, "runID")

	key, ok := artifactKeys[chi.URLParam(r, "key")]
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "unknown artifact key"))
		return
	}

	payload, err := h.store.Find(ctx, runID, key)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "artifact not found"))
			return
		}
		h.logger.ErrorContext(ctx, "artifact lookup failed", "run_id", runID, "key", key, "error", err)
		httputil.WriteError(w, dErrors.Wrap(dErrors.CodeInternal, "artifact lookup failed", err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(payload)
}

type reportResponse struct {
	Bundle  export.Bundle    `json:"bundle"`
	HTML    string           `json:"html"`
	Receipt *receipt.Receipt `json:"receipt"`
}

func (h *Handler) handleGetReport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	runID := chi.URLParam(r, "runID")

	report, err := h.exporter.Build(ctx, runID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	// The receipt covers the canonical JSON rendering, which is what gets
	// attached to filings.
	rcpt, err := h.issuer.Issue(runID, []byte(report.JSON), requestcontext.Now(ctx))
	if err != nil {
		h.logger.ErrorContext(ctx, "receipt issue failed", "run_id", runID, "error", err)
		httputil.WriteError(w, err)
		return
	}

	h.emit(ctx, audit.Event{RunID: runID, Action: audit.ActionReportExported, Outcome: "ok"})
	h.emit(ctx, audit.Event{RunID: runID, Action: audit.ActionReceiptIssued, Outcome: rcpt.Digest})

	httputil.WriteJSON(w, http.StatusOK, reportResponse{
		Bundle:  report.Bundle,
		HTML:    report.HTML,
		Receipt: rcpt,
	})
}

type listAuditResponse struct {
	RunID  string        `json:"run_id"`
	Events []audit.Event `json:"events"`
}

func (h *Handler) handleListAuditEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	runID := chi.URLParam(r, "runID")

	events, err := h.auditTrail.ListByRun(ctx, runID)
	if err != nil {
		h.logger.ErrorContext(ctx, "audit listing failed", "run_id", runID, "error", err)
		httputil.WriteError(w, dErrors.Wrap(dErrors.CodeInternal, "audit listing failed", err))
		return
	}

	httputil.WriteJSON(w, http.StatusOK, listAuditResponse{RunID: runID, Events: events})
}

type verifyReceiptRequest struct {
	Content string `json:"content"`
	Digest  string `json:"digest"`
	Token   string `json:"token"`
}

func (r *verifyReceiptRequest) Validate() error {
	if r.Digest == "" && r.Token == "" {
		return dErrors.New(dErrors.CodeValidation, "digest or token is required")
	}
	return nil
}

func (h *Handler) handleVerifyReceipt(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[verifyReceiptRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	verification := h.issuer.Verify([]byte(req.Content), req.Digest, req.Token)
	httputil.WriteJSON(w, http.StatusOK, verification)
}

func (h *Handler) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) emit(ctx context.Context, event audit.Event) {
	if h.publisher == nil {
		return
	}
	event.RequestID = requestcontext.RequestID(ctx)
	if err := h.publisher.Emit(ctx, event); err != nil {
		h.logger.WarnContext(ctx, "audit emit failed", "action", event.Action, "error", err)
	}
}
