package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dvloznov/kyc-ledger/internal/api/middleware"
	"github.com/dvloznov/kyc-ledger/internal/domain"
	"github.com/dvloznov/kyc-ledger/internal/gcsstore"
	"github.com/dvloznov/kyc-ledger/internal/jobs"
	"github.com/dvloznov/kyc-ledger/internal/ledger"
	"github.com/dvloznov/kyc-ledger/internal/logger"
	"github.com/dvloznov/kyc-ledger/internal/pipeline"
)

// MaxDocumentBytes bounds the text accepted by the analyze endpoint.
const MaxDocumentBytes = 4 << 20

// DocumentAnalyzer runs the full analysis pipeline on one document.
type DocumentAnalyzer interface {
	AnalyzeDocument(ctx context.Context, text, documentName string) domain.DocumentAnalysisResult
}

// ClientLedger is the part of the ledger the API exposes.
type ClientLedger interface {
	Get(ctx context.Context, key domain.ClientKey) (*domain.ClientRecord, error)
	Summaries(ctx context.Context) ([]domain.ClientSummary, error)
	Reconcile(ctx context.Context) (int, error)
	Export(ctx context.Context) (*ledger.Snapshot, error)
	Import(ctx context.Context, snap *ledger.Snapshot) (int, error)
}

// NetWorthCalculator computes one client's net worth.
type NetWorthCalculator interface {
	Compute(ctx context.Context, key domain.ClientKey) (domain.NetWorthSummary, error)
}

// DocumentsHandler handles document-related endpoints.
type DocumentsHandler struct {
	analyzer  DocumentAnalyzer
	publisher jobs.Publisher
}

// NewDocumentsHandler creates a new documents handler. publisher may be nil,
// in which case enqueueing is disabled.
func NewDocumentsHandler(analyzer DocumentAnalyzer, publisher jobs.Publisher) *DocumentsHandler {
	return &DocumentsHandler{
		analyzer:  analyzer,
		publisher: publisher,
	}
}

// Analyze handles POST /api/documents/analyze
func (h *DocumentsHandler) Analyze(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text         string `json:"text"`
		DocumentName string `json:"document_name"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if strings.TrimSpace(req.Text) == "" {
		middleware.WriteError(w, http.StatusBadRequest, "text is required")
		return
	}
	if req.DocumentName == "" {
		req.DocumentName = "document.txt"
	}

	result := h.analyzer.AnalyzeDocument(r.Context(), req.Text, req.DocumentName)
	middleware.WriteJSON(w, analysisStatus(result), result)
}

// analysisStatus maps a finished analysis to an HTTP status. The body is
// always the full result.
func analysisStatus(result domain.DocumentAnalysisResult) int {
	if !result.Failed() {
		return http.StatusOK
	}
	switch result.ErrorType {
	case pipeline.ErrorTypeTransport:
		return http.StatusBadGateway
	case pipeline.ErrorTypeTimeout:
		return http.StatusGatewayTimeout
	case pipeline.ErrorTypeCanceled:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Enqueue handles POST /api/documents/enqueue
func (h *DocumentsHandler) Enqueue(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())

	if h.publisher == nil {
		middleware.WriteError(w, http.StatusServiceUnavailable, "Job queue is not configured")
		return
	}

	var req struct {
		DocumentURI  string `json:"document_uri"`
		DocumentName string `json:"document_name"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if _, object, err := gcsstore.ParseURI(req.DocumentURI); err != nil || object == "" {
		middleware.WriteError(w, http.StatusBadRequest, "document_uri must be a gs://bucket/object URI")
		return
	}

	job := &jobs.AnalyzeDocumentJob{
		DocumentURI:  req.DocumentURI,
		DocumentName: req.DocumentName,
	}

	if err := h.publisher.PublishAnalyzeDocument(r.Context(), job); err != nil {
		log.Error().Err(err).Str("document_uri", req.DocumentURI).Msg("Failed to enqueue analysis job")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to enqueue analysis job")
		return
	}

	log.Info().Str("job_id", job.JobID).Str("document_uri", req.DocumentURI).Msg("Analysis job enqueued")

	middleware.WriteJSON(w, http.StatusAccepted, map[string]string{
		"job_id":       job.JobID,
		"document_uri": job.DocumentURI,
		"status":       string(job.Status),
	})
}

// ClientsHandler handles ledger endpoints.
type ClientsHandler struct {
	ledger ClientLedger
	calc   NetWorthCalculator
}

// NewClientsHandler creates a new clients handler.
func NewClientsHandler(l ClientLedger, calc NetWorthCalculator) *ClientsHandler {
	return &ClientsHandler{ledger: l, calc: calc}
}

// ListClients handles GET /api/clients
func (h *ClientsHandler) ListClients(w http.ResponseWriter, r *http.Request) {
	summaries, err := h.ledger.Summaries(r.Context())
	if err != nil {
		log := logger.FromContext(r.Context())
		log.Error().Err(err).Msg("Failed to list clients")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list clients")
		return
	}
	if summaries == nil {
		summaries = []domain.ClientSummary{}
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"clients": summaries,
		"count":   len(summaries),
	})
}

// GetClient handles GET /api/clients/{key}
func (h *ClientsHandler) GetClient(w http.ResponseWriter, r *http.Request) {
	key := domain.ClientKey(r.PathValue("key"))

	rec, err := h.ledger.Get(r.Context(), key)
	if errors.Is(err, ledger.ErrClientNotFound) {
		middleware.WriteError(w, http.StatusNotFound, "Client not found")
		return
	}
	if err != nil {
		log := logger.FromContext(r.Context())
		log.Error().Err(err).Str("client_key", string(key)).Msg("Failed to load client")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to load client")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, rec)
}

// NetWorth handles GET /api/clients/{key}/net-worth
func (h *ClientsHandler) NetWorth(w http.ResponseWriter, r *http.Request) {
	key := domain.ClientKey(r.PathValue("key"))

	summary, err := h.calc.Compute(r.Context(), key)
	if err != nil {
		log := logger.FromContext(r.Context())
		log.Warn().Err(err).Str("client_key", string(key)).Msg("Net worth calculation degraded")
		if summary.ClientID == "" {
			middleware.WriteError(w, http.StatusInternalServerError, "Failed to calculate net worth")
			return
		}
	}
	if !summary.Found() {
		middleware.WriteJSON(w, http.StatusNotFound, summary)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, summary)
}

// Reconcile handles POST /api/reconcile
func (h *ClientsHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	merged, err := h.ledger.Reconcile(r.Context())
	if err != nil {
		log := logger.FromContext(r.Context())
		log.Error().Err(err).Msg("Reconciliation failed")
		middleware.WriteError(w, http.StatusInternalServerError, "Reconciliation failed")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]int{"merged": merged})
}

// Export handles GET /api/export
func (h *ClientsHandler) Export(w http.ResponseWriter, r *http.Request) {
	snap, err := h.ledger.Export(r.Context())
	if err != nil {
		log := logger.FromContext(r.Context())
		log.Error().Err(err).Msg("Export failed")
		middleware.WriteError(w, http.StatusInternalServerError, "Export failed")
		return
	}

	filename := fmt.Sprintf("kyc_ledger_%s.json", snap.ExportTimestamp.UTC().Format("20060102_150405"))
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	if err := ledger.WriteSnapshot(w, snap); err != nil {
		log := logger.FromContext(r.Context())
		log.Error().Err(err).Msg("Failed to write snapshot")
	}
}

// Import handles POST /api/import
func (h *ClientsHandler) Import(w http.ResponseWriter, r *http.Request) {
	snap, err := ledger.ReadSnapshot(r.Body)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid snapshot")
		return
	}

	n, err := h.ledger.Import(r.Context(), snap)
	if err != nil {
		log := logger.FromContext(r.Context())
		log.Error().Err(err).Int("imported", n).Msg("Import failed")
		middleware.WriteError(w, http.StatusInternalServerError, "Import failed")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]int{"imported": n})
}

// JobsHandler handles job-related endpoints.
type JobsHandler struct {
	store jobs.JobStore
}

// NewJobsHandler creates a new jobs handler.
func NewJobsHandler(store jobs.JobStore) *JobsHandler {
	return &JobsHandler{store: store}
}

// GetJob handles GET /api/jobs/{id}
func (h *JobsHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")

	job, err := h.store.GetJob(r.Context(), jobID)
	if errors.Is(err, jobs.ErrJobNotFound) {
		middleware.WriteError(w, http.StatusNotFound, "Job not found")
		return
	}
	if err != nil {
		log := logger.FromContext(r.Context())
		log.Error().Err(err).Str("job_id", jobID).Msg("Failed to get job")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to get job")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, job)
}

// ListJobs handles GET /api/jobs
func (h *JobsHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := jobs.JobFilter{
		DocumentURI: query.Get("document_uri"),
		Status:      jobs.JobStatus(query.Get("status")),
	}

	var err error
	if filter.Limit, err = intParam(query.Get("limit")); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid limit")
		return
	}
	if filter.Offset, err = intParam(query.Get("offset")); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid offset")
		return
	}

	jobsList, err := h.store.ListJobs(r.Context(), filter)
	if err != nil {
		log := logger.FromContext(r.Context())
		log.Error().Err(err).Msg("Failed to list jobs")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list jobs")
		return
	}
	if jobsList == nil {
		jobsList = []*jobs.AnalyzeDocumentJob{}
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  jobsList,
		"count": len(jobsList),
	})
}

func intParam(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid integer %q", raw)
	}
	return n, nil
}

// Health handles GET /health
func Health(w http.ResponseWriter, r *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	})
}
