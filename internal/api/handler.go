package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/opensource-finance/compenso/internal/compensation"
	"github.com/opensource-finance/compenso/internal/domain"
	"github.com/opensource-finance/compenso/internal/errtrack"
	"github.com/opensource-finance/compenso/internal/rules"
	"github.com/opensource-finance/compenso/internal/service"
)

// Handler holds dependencies for API handlers.
type Handler struct {
	svc     *service.Service
	repo    domain.Repository
	cache   domain.Cache
	version string
}

// NewHandler creates a new API handler.
func NewHandler(svc *service.Service, repo domain.Repository, cache domain.Cache, version string) *Handler {
	return &Handler{
		svc:     svc,
		repo:    repo,
		cache:   cache,
		version: version,
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

// EditResponse is returned by every configuration mutation.
type EditResponse struct {
	Result   any              `json:"result,omitempty"`
	Warnings []domain.Warning `json:"warnings"`
}

// CatalogProductRequest is the request body for PUT /catalog/{name}.
type CatalogProductRequest struct {
	Unit string `json:"unit"`
}

// BatchRequest is the request body for POST /doctors/{doctorID}/calculate/batch.
type BatchRequest struct {
	Lines []domain.InvoiceLine `json:"lines"`
}

// ScenarioRequest is the request body for POST /doctors/{doctorID}/scenarios.
type ScenarioRequest struct {
	Line       domain.InvoiceLine       `json:"line"`
	Variations []compensation.Variation `json:"variations"`
}

// ValidateRuleResponse is the response for POST /rules/validate.
type ValidateRuleResponse struct {
	Valid bool         `json:"valid"`
	Rule  *domain.Rule `json:"rule,omitempty"`
	Error string       `json:"error,omitempty"`
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	// Check repository health
	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	// Check cache health
	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"ready": "false",
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

// ListCatalog handles GET /catalog.
func (h *Handler) ListCatalog(w http.ResponseWriter, r *http.Request) {
	catalog, err := h.svc.ListCatalog(r.Context(), GetTenantID(r.Context()))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"products": catalog,
		"count":    len(catalog),
	})
}

// SetCatalogProduct handles PUT /catalog/{name}.
func (h *Handler) SetCatalogProduct(w http.ResponseWriter, r *http.Request) {
	var req CatalogProductRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	product := domain.CatalogProduct{Name: chi.URLParam(r, "name"), Unit: req.Unit}
	if err := h.svc.SetCatalogProduct(r.Context(), GetTenantID(r.Context()), product); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, product)
}

// ListDoctors handles GET /doctors.
func (h *Handler) ListDoctors(w http.ResponseWriter, r *http.Request) {
	doctors, err := h.svc.ListDoctors(r.Context(), GetTenantID(r.Context()))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"doctors": doctors,
		"count":   len(doctors),
	})
}

// GetDoctor handles GET /doctors/{doctorID}.
func (h *Handler) GetDoctor(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.svc.GetConfig(r.Context(), GetTenantID(r.Context()), chi.URLParam(r, "doctorID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

// DeleteDoctor handles DELETE /doctors/{doctorID}.
func (h *Handler) DeleteDoctor(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteDoctor(r.Context(), GetTenantID(r.Context()), chi.URLParam(r, "doctorID")); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SetBaseRule handles PUT /doctors/{doctorID}/base-rule.
func (h *Handler) SetBaseRule(w http.ResponseWriter, r *http.Request) {
	var rule domain.Rule
	if !decodeJSON(w, r, &rule) {
		return
	}

	warnings, err := h.svc.SetBaseRule(r.Context(), GetTenantID(r.Context()), chi.URLParam(r, "doctorID"), rule)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, EditResponse{Result: rule, Warnings: warnings})
}

// Validate handles GET /doctors/{doctorID}/validation.
func (h *Handler) Validate(w http.ResponseWriter, r *http.Request) {
	warnings, err := h.svc.Validate(r.Context(), GetTenantID(r.Context()), chi.URLParam(r, "doctorID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"warnings":  warnings,
		"hasErrors": rules.HasErrors(warnings),
	})
}

// AddException handles POST /doctors/{doctorID}/exceptions.
func (h *Handler) AddException(w http.ResponseWriter, r *http.Request) {
	var in domain.ExceptionInput
	if !decodeJSON(w, r, &in) {
		return
	}

	exc, warnings, err := h.svc.AddException(r.Context(), GetTenantID(r.Context()), chi.URLParam(r, "doctorID"), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, EditResponse{Result: exc, Warnings: warnings})
}

// ImportExceptions handles PUT /doctors/{doctorID}/exceptions.
func (h *Handler) ImportExceptions(w http.ResponseWriter, r *http.Request) {
	var list []domain.Exception
	if !decodeJSON(w, r, &list) {
		return
	}

	warnings, err := h.svc.ImportExceptions(r.Context(), GetTenantID(r.Context()), chi.URLParam(r, "doctorID"), list)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, EditResponse{Warnings: warnings})
}

// MergeExceptions handles POST /doctors/{doctorID}/exceptions/merge.
func (h *Handler) MergeExceptions(w http.ResponseWriter, r *http.Request) {
	var incoming []domain.Exception
	if !decodeJSON(w, r, &incoming) {
		return
	}

	strategy := domain.MergeStrategy(r.URL.Query().Get("strategy"))
	report, warnings, err := h.svc.MergeExceptions(r.Context(), GetTenantID(r.Context()), chi.URLParam(r, "doctorID"), incoming, strategy)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, EditResponse{Result: report, Warnings: warnings})
}

// UpdateException handles PATCH /doctors/{doctorID}/exceptions/{id}.
func (h *Handler) UpdateException(w http.ResponseWriter, r *http.Request) {
	id, ok := intParam(w, r, "id")
	if !ok {
		return
	}
	var patch domain.ExceptionPatch
	if !decodeJSON(w, r, &patch) {
		return
	}

	exc, warnings, err := h.svc.UpdateException(r.Context(), GetTenantID(r.Context()), chi.URLParam(r, "doctorID"), id, patch)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, EditResponse{Result: exc, Warnings: warnings})
}

// RemoveException handles DELETE /doctors/{doctorID}/exceptions/{id}.
func (h *Handler) RemoveException(w http.ResponseWriter, r *http.Request) {
	id, ok := intParam(w, r, "id")
	if !ok {
		return
	}

	warnings, err := h.svc.RemoveException(r.Context(), GetTenantID(r.Context()), chi.URLParam(r, "doctorID"), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, EditResponse{Warnings: warnings})
}

// AddProductCost handles POST /doctors/{doctorID}/product-costs.
func (h *Handler) AddProductCost(w http.ResponseWriter, r *http.Request) {
	var in domain.ProductCostInput
	if !decodeJSON(w, r, &in) {
		return
	}

	pc, warnings, err := h.svc.AddProductCost(r.Context(), GetTenantID(r.Context()), chi.URLParam(r, "doctorID"), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, EditResponse{Result: pc, Warnings: warnings})
}

// UpdateProductCost handles PATCH /doctors/{doctorID}/product-costs/{id}.
func (h *Handler) UpdateProductCost(w http.ResponseWriter, r *http.Request) {
	id, ok := intParam(w, r, "id")
	if !ok {
		return
	}
	var patch domain.ProductCostPatch
	if !decodeJSON(w, r, &patch) {
		return
	}

	pc, warnings, err := h.svc.UpdateProductCost(r.Context(), GetTenantID(r.Context()), chi.URLParam(r, "doctorID"), id, patch)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, EditResponse{Result: pc, Warnings: warnings})
}

// RemoveProductCost handles DELETE /doctors/{doctorID}/product-costs/{id}.
func (h *Handler) RemoveProductCost(w http.ResponseWriter, r *http.Request) {
	id, ok := intParam(w, r, "id")
	if !ok {
		return
	}

	warnings, err := h.svc.RemoveProductCost(r.Context(), GetTenantID(r.Context()), chi.URLParam(r, "doctorID"), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, EditResponse{Warnings: warnings})
}

// RemoveProductCostByName handles DELETE /doctors/{doctorID}/product-costs?name=...
func (h *Handler) RemoveProductCostByName(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	if name == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "name query parameter is required"})
		return
	}

	warnings, err := h.svc.RemoveProductCostByName(r.Context(), GetTenantID(r.Context()), chi.URLParam(r, "doctorID"), name)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, EditResponse{Warnings: warnings})
}

// PrepareCostImport handles POST /doctors/{doctorID}/product-costs/import/preview.
func (h *Handler) PrepareCostImport(w http.ResponseWriter, r *http.Request) {
	var rows []domain.CostRow
	if !decodeJSON(w, r, &rows) {
		return
	}

	preview, err := h.svc.PrepareCostImport(r.Context(), GetTenantID(r.Context()), chi.URLParam(r, "doctorID"), rows)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, preview)
}

// ConfirmCostImport handles POST /doctors/{doctorID}/product-costs/import/confirm.
func (h *Handler) ConfirmCostImport(w http.ResponseWriter, r *http.Request) {
	var preview domain.CostImportPreview
	if !decodeJSON(w, r, &preview) {
		return
	}

	summary, warnings, err := h.svc.ConfirmCostImport(r.Context(), GetTenantID(r.Context()), chi.URLParam(r, "doctorID"), preview)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, EditResponse{Result: summary, Warnings: warnings})
}

// Calculate handles POST /doctors/{doctorID}/calculate.
func (h *Handler) Calculate(w http.ResponseWriter, r *http.Request) {
	var line domain.InvoiceLine
	if !decodeJSON(w, r, &line) {
		return
	}

	calc, err := h.svc.Calculate(r.Context(), GetTenantID(r.Context()), chi.URLParam(r, "doctorID"), line)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, calc)
}

// CalculateBatch handles POST /doctors/{doctorID}/calculate/batch.
func (h *Handler) CalculateBatch(w http.ResponseWriter, r *http.Request) {
	var req BatchRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	calcs, err := h.svc.CalculateBatch(r.Context(), GetTenantID(r.Context()), chi.URLParam(r, "doctorID"), req.Lines)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var gross, payable float64
	for _, c := range calcs {
		gross += c.Result.GrossAmount
		payable += c.Result.NetCompensation
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"calculations":    calcs,
		"count":           len(calcs),
		"totalGross":      gross,
		"totalNetPayable": payable,
	})
}

// AnalyzeScenarios handles POST /doctors/{doctorID}/scenarios.
func (h *Handler) AnalyzeScenarios(w http.ResponseWriter, r *http.Request) {
	var req ScenarioRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	results, err := h.svc.AnalyzeScenarios(r.Context(), GetTenantID(r.Context()), chi.URLParam(r, "doctorID"), req.Line, req.Variations)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"scenarios": results,
	})
}

// GetCalculation handles GET /calculations/{id}.
func (h *Handler) GetCalculation(w http.ResponseWriter, r *http.Request) {
	calc, err := h.svc.GetCalculation(r.Context(), GetTenantID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, calc)
}

// ValidateRule handles POST /rules/validate. It checks a rule before it is
// saved and always answers 200 for a well-formed body.
func (h *Handler) ValidateRule(w http.ResponseWriter, r *http.Request) {
	var spec domain.RuleSpec
	if !decodeJSON(w, r, &spec) {
		return
	}

	rule, err := spec.Rule()
	if err == nil {
		err = rules.Validate(rule)
	}
	if err != nil {
		writeJSON(w, http.StatusOK, ValidateRuleResponse{Valid: false, Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, ValidateRuleResponse{Valid: true, Rule: &rule})
}

// writeError maps domain errors to HTTP status codes. Unexpected errors are
// logged and reported.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
	case errors.Is(err, domain.ErrDuplicate):
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
	case errors.Is(err, domain.ErrInvalidInput), errors.Is(err, domain.ErrInvalidRule):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	default:
		slog.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"tenant_id", GetTenantID(r.Context()),
			"error", err,
		)
		errtrack.CaptureError(r.Context(), err, map[string]string{
			"endpoint":  r.URL.Path,
			"tenant_id": GetTenantID(r.Context()),
		})
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal server error"})
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Error: fmt.Sprintf("invalid JSON request body: %v", err),
		})
		return false
	}
	return true
}

func intParam(w http.ResponseWriter, r *http.Request, name string) (int, bool) {
	v, err := strconv.Atoi(chi.URLParam(r, name))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Error: fmt.Sprintf("%s must be an integer", name),
		})
		return 0, false
	}
	return v, true
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
