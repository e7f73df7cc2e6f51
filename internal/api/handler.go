package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/opencustomruler/ruler/internal/domain"
	"github.com/opencustomruler/ruler/internal/impact"
	"github.com/opencustomruler/ruler/internal/metrics"
	"github.com/opencustomruler/ruler/internal/rules"
	"github.com/opencustomruler/ruler/internal/worker"
)

// DraftRuleID identifies a rule estimated through POST /estimate.
const DraftRuleID = "draft"

var validate = validator.New()

// Handler holds dependencies for API handlers.
type Handler struct {
	catalog *rules.Catalog
	engine  *rules.Engine
	service *impact.Service
	cache   domain.ReportCache
	bus     domain.EventBus
	version string

	// worker is set when the impact worker runs in this process.
	worker WorkerStats
}

// WorkerStats reports on the background impact worker. *worker.Worker
// satisfies it.
type WorkerStats interface {
	GetStats() worker.Stats
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status  string        `json:"status"`
	Version string        `json:"version"`
	Worker  *worker.Stats `json:"worker,omitempty"`
}

// NewHandler creates a new API handler.
func NewHandler(catalog *rules.Catalog, engine *rules.Engine, service *impact.Service, cache domain.ReportCache, bus domain.EventBus, version string) *Handler {
	return &Handler{
		catalog: catalog,
		engine:  engine,
		service: service,
		cache:   cache,
		bus:     bus,
		version: version,
	}
}

// EstimateRequest is the request body for POST /estimate: a rule draft
// that does not need to be in the catalog.
type EstimateRequest struct {
	ID         string             `json:"id,omitempty"`
	Name       string             `json:"name,omitempty"`
	Conditions []domain.Condition `json:"conditions" validate:"required,min=1"`
	Action     *domain.Action     `json:"action,omitempty"`
}

// ConditionRequest is the request body for POST /rules/{id}/conditions.
type ConditionRequest struct {
	Field           string                 `json:"field" validate:"required"`
	Operator        domain.Operator        `json:"operator" validate:"required"`
	Value           domain.Value           `json:"value"`
	LogicalOperator domain.LogicalOperator `json:"logicalOperator,omitempty"`
}

// StatusRequest is the request body for PUT /rules/{id}/status.
type StatusRequest struct {
	Status domain.RuleStatus `json:"status" validate:"required"`
}

// ProfileResponse describes the estimation context.
type ProfileResponse struct {
	Profile     domain.ReferenceProfile   `json:"profile"`
	Calibration domain.Calibration        `json:"calibration"`
	Advisory    domain.AdvisoryThresholds `json:"advisory"`
}

// SummaryResponse is the response for GET /rules/{id}/summary.
type SummaryResponse struct {
	RuleID      string `json:"ruleId"`
	Summary     string `json:"summary"`
	Expression  string `json:"expression"`
	Fingerprint string `json:"fingerprint"`
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			slog.Warn("cache health check failed", "error", err)
			status = "degraded"
		}
	}

	if h.bus != nil {
		if err := h.bus.Ping(r.Context()); err != nil {
			slog.Warn("event bus health check failed", "error", err)
			status = "degraded"
		}
	}

	resp := HealthResponse{Status: status, Version: h.version}
	if h.worker != nil {
		stats := h.worker.GetStats()
		if stats.SubscriptionCount == 0 {
			status = "degraded"
		}
		resp.Status = status
		resp.Worker = &stats
	}
	writeJSON(w, http.StatusOK, resp)
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

// Profile returns the reference profile, calibration and advisory thresholds.
func (h *Handler) Profile(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, ProfileResponse{
		Profile:     h.service.Profile(),
		Calibration: h.service.Calibration(),
		Advisory:    h.service.Thresholds(),
	})
}

// Fields lists the declaration fields conditions can test.
func (h *Handler) Fields(w http.ResponseWriter, r *http.Request) {
	fields := domain.KnownFields()
	writeJSON(w, http.StatusOK, map[string]any{
		"fields": fields,
		"count":  len(fields),
	})
}

// Estimate projects the impact of a rule draft.
func (h *Handler) Estimate(w http.ResponseWriter, r *http.Request) {
	var req EstimateRequest
	if !decode(w, r, &req) {
		return
	}

	seed, err := parseSeed(r)
	if err != nil {
		writeError(w, err)
		return
	}

	rule := &domain.Rule{
		ID:         req.ID,
		Name:       req.Name,
		Priority:   1,
		Status:     domain.StatusTesting,
		Conditions: req.Conditions,
	}
	if req.Action != nil {
		rule.Action = *req.Action
	}
	if rule.ID == "" {
		rule.ID = DraftRuleID
	}

	report, err := h.service.Report(r.Context(), rule, seed)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// ListRules returns catalog rules, filtered by ?status, ?riskLevel and ?search.
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := domain.RuleFilter{
		Status:    domain.RuleStatus(q.Get("status")),
		RiskLevel: domain.RiskLevel(q.Get("riskLevel")),
		Search:    q.Get("search"),
	}
	if filter.Status != "" && !filter.Status.Valid() {
		writeError(w, domain.Validationf("api.ListRules", "unknown status %q", filter.Status))
		return
	}
	if filter.RiskLevel != "" && !filter.RiskLevel.Valid() {
		writeError(w, domain.Validationf("api.ListRules", "unknown risk level %q", filter.RiskLevel))
		return
	}

	list, err := h.catalog.List(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"rules": list,
		"count": len(list),
	})
}

// GetRule returns one rule.
func (h *Handler) GetRule(w http.ResponseWriter, r *http.Request) {
	rule, err := h.catalog.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

// CreateRule builds a new rule and adds it to the catalog.
// The author defaults to the X-Editor header.
func (h *Handler) CreateRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var spec rules.RuleSpec
	if !decode(w, r, &spec) {
		return
	}
	if spec.Author == "" {
		spec.Author = GetEditor(ctx)
	}

	rule, err := rules.CreateRule(spec)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.catalog.Put(ctx, rule); err != nil {
		writeError(w, err)
		return
	}
	h.recordCatalogSize()

	slog.Info("rule created", "rule_id", rule.ID, "name", rule.Name, "editor", rule.Metadata.CreatedBy)
	writeJSON(w, http.StatusCreated, rule)
}

// DeleteRule removes a rule from the catalog.
func (h *Handler) DeleteRule(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.catalog.Delete(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	h.recordCatalogSize()

	slog.Info("rule deleted", "rule_id", id, "editor", GetEditor(r.Context()))
	writeJSON(w, http.StatusOK, map[string]string{
		"deleted": id,
	})
}

// Summary returns the human-readable rendering of a rule.
func (h *Handler) Summary(w http.ResponseWriter, r *http.Request) {
	rule, err := h.catalog.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	expr, err := rules.Expression(rule)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, SummaryResponse{
		RuleID:      rule.ID,
		Summary:     rules.Describe(rule),
		Expression:  expr,
		Fingerprint: rules.FingerprintHex(rule),
	})
}

// DuplicateRule stores an inactive copy of a rule under a new id.
func (h *Handler) DuplicateRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	source, err := h.catalog.Get(ctx, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}

	dup := rules.Duplicate(source, GetEditor(ctx))
	if err := h.catalog.Put(ctx, dup); err != nil {
		writeError(w, err)
		return
	}
	h.recordCatalogSize()

	slog.Info("rule duplicated", "rule_id", source.ID, "copy_id", dup.ID)
	writeJSON(w, http.StatusCreated, dup)
}

// ToggleRule flips a rule between active and inactive.
func (h *Handler) ToggleRule(w http.ResponseWriter, r *http.Request) {
	editor := GetEditor(r.Context())
	h.update(w, r, func(rule *domain.Rule) (*domain.Rule, error) {
		return rules.ToggleStatus(rule, editor), nil
	})
}

// SetStatus moves a rule to an explicit status.
func (h *Handler) SetStatus(w http.ResponseWriter, r *http.Request) {
	var req StatusRequest
	if !decode(w, r, &req) {
		return
	}
	editor := GetEditor(r.Context())
	h.update(w, r, func(rule *domain.Rule) (*domain.Rule, error) {
		return rules.SetStatus(rule, req.Status, editor)
	})
}

// UpdateAction patches the rule's action.
func (h *Handler) UpdateAction(w http.ResponseWriter, r *http.Request) {
	var patch rules.ActionPatch
	if !decode(w, r, &patch) {
		return
	}
	editor := GetEditor(r.Context())
	h.update(w, r, func(rule *domain.Rule) (*domain.Rule, error) {
		return rules.UpdateAction(rule, patch, editor)
	})
}

// AddCondition appends a new condition to a rule.
func (h *Handler) AddCondition(w http.ResponseWriter, r *http.Request) {
	var req ConditionRequest
	if !decode(w, r, &req) {
		return
	}

	cond, err := rules.CreateCondition(req.Field, req.Operator, req.Value, req.LogicalOperator)
	if err != nil {
		writeError(w, err)
		return
	}

	editor := GetEditor(r.Context())
	h.updateWithStatus(w, r, http.StatusCreated, func(rule *domain.Rule) (*domain.Rule, error) {
		return rules.AddCondition(rule, cond, editor)
	})
}

// UpdateCondition patches one condition in place.
func (h *Handler) UpdateCondition(w http.ResponseWriter, r *http.Request) {
	var patch rules.ConditionPatch
	if !decode(w, r, &patch) {
		return
	}
	cid := chi.URLParam(r, "cid")
	editor := GetEditor(r.Context())
	h.update(w, r, func(rule *domain.Rule) (*domain.Rule, error) {
		return rules.UpdateCondition(rule, cid, patch, editor)
	})
}

// RemoveCondition deletes one condition. The last condition cannot be removed.
func (h *Handler) RemoveCondition(w http.ResponseWriter, r *http.Request) {
	cid := chi.URLParam(r, "cid")
	editor := GetEditor(r.Context())
	h.update(w, r, func(rule *domain.Rule) (*domain.Rule, error) {
		return rules.RemoveCondition(rule, cid, editor)
	})
}

// Impact returns the impact report of a catalog rule, cached by rule shape.
func (h *Handler) Impact(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	seed, err := parseSeed(r)
	if err != nil {
		writeError(w, err)
		return
	}

	rule, err := h.catalog.Get(ctx, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}

	report, err := h.service.Report(ctx, rule, seed)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// DryRun evaluates one rule against a sample declaration.
func (h *Handler) DryRun(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req domain.DeclarationRequest
	if !decode(w, r, &req) {
		return
	}

	rule, err := h.catalog.Get(ctx, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}

	result, err := h.engine.DryRun(ctx, rule, req.ToDeclaration())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Sweep runs every rule with the given status (active by default) against
// a sample declaration and reports the deciding rule.
func (h *Handler) Sweep(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	status := domain.RuleStatus(r.URL.Query().Get("status"))
	if status == "" {
		status = domain.StatusActive
	}
	if !status.Valid() {
		writeError(w, domain.Validationf("api.Sweep", "unknown status %q", status))
		return
	}

	var req domain.DeclarationRequest
	if !decode(w, r, &req) {
		return
	}

	set, err := h.catalog.List(ctx, domain.RuleFilter{Status: status})
	if err != nil {
		writeError(w, err)
		return
	}

	result, err := h.engine.Sweep(ctx, set, req.ToDeclaration())
	if err != nil {
		writeError(w, err)
		return
	}
	result.Metadata.TraceID = GetTraceID(ctx)

	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request, fn func(*domain.Rule) (*domain.Rule, error)) {
	h.updateWithStatus(w, r, http.StatusOK, fn)
}

func (h *Handler) updateWithStatus(w http.ResponseWriter, r *http.Request, status int, fn func(*domain.Rule) (*domain.Rule, error)) {
	rule, err := h.catalog.Update(r.Context(), chi.URLParam(r, "id"), fn)
	if err != nil {
		writeError(w, err)
		return
	}
	slog.Debug("rule updated", "rule_id", rule.ID, "editor", rule.Metadata.ModifiedBy)
	writeJSON(w, status, rule)
}

func (h *Handler) recordCatalogSize() {
	metrics.CatalogRules.Set(float64(h.catalog.Len()))
}

// decode reads a JSON body into dst and validates its struct tags.
// It writes the error response and returns false on failure.
func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, domain.Validationf("api.decode", "invalid JSON request body: %v", err))
		return false
	}
	if err := validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			writeError(w, domain.Validationf("api.decode", "%s failed on %s", fe.Field(), fe.Tag()))
			return false
		}
		writeError(w, domain.Validationf("api.decode", "%v", err))
		return false
	}
	return true
}

// parseSeed reads the optional ?seed query parameter.
func parseSeed(r *http.Request) (*uint64, error) {
	raw := r.URL.Query().Get("seed")
	if raw == "" {
		return nil, nil
	}
	seed, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return nil, domain.Validationf("api.parseSeed", "seed must be an unsigned integer, got %q", raw)
	}
	return &seed, nil
}

// statusFor maps an error code to an HTTP status.
func statusFor(code string) int {
	switch code {
	case domain.EINVALID:
		return http.StatusBadRequest
	case domain.EINVARIANT:
		return http.StatusConflict
	case domain.EPROFILE:
		return http.StatusUnprocessableEntity
	case domain.ENOTFOUND:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	code := domain.ErrorCode(err)
	status := statusFor(code)
	msg := domain.ErrorMessage(err)
	if status == http.StatusInternalServerError {
		slog.Error("request failed", "error", err)
		msg = "internal server error"
	}
	writeJSON(w, status, map[string]string{
		"error": msg,
		"code":  code,
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
