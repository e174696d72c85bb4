package warehouseorders

import (
	"errors"
	"log/slog"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/odyssey-wms/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-wms/internal/rbac"
	"github.com/odyssey-erp/odyssey-wms/internal/reconcile"
	"github.com/odyssey-erp/odyssey-wms/internal/shared"
)

const (
	defaultReceiveRateLimit = 60
	receiveRateWindow       = time.Minute
)

// Handler wires HTTP endpoints for warehouse order lines.
type Handler struct {
	logger       *slog.Logger
	service      *Service
	validator    *validator.Validate
	rbac         rbac.Middleware
	receiveLimit int
}

// NewHandler constructs the handler. receiveLimit caps receiving submissions
// per actor per minute.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware, receiveLimit int) *Handler {
	if receiveLimit <= 0 {
		receiveLimit = defaultReceiveRateLimit
	}
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &Handler{logger: logger, service: service, validator: v, rbac: rbac, receiveLimit: receiveLimit}
}

// MountRoutes registers warehouse order routes under the API prefix.
func (h *Handler) MountRoutes(r chi.Router) {
	limiter := httprate.Limit(h.receiveLimit, receiveRateWindow,
		httprate.WithKeyFuncs(actorRateKey),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			httpx.Problem(w, http.StatusTooManyRequests, "Too Many Requests", "receiving submissions are rate limited")
		}),
	)

	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermWarehouseOrderView))
		r.Post("/expected-units", h.handlePreview)
		r.Get("/lines", h.handleList)
		r.Get("/lines/{id}", h.handleGet)
		r.Get("/lines/{id}/receipts", h.handleListEvents)
		r.Get("/lines/{id}/progress", h.handleProgress)
		r.Get("/summary", h.handleSummary)
	})
	r.With(h.rbac.RequireAny(shared.PermWarehouseOrderCreate)).Post("/lines", h.handleCreate)
	r.With(h.rbac.RequireAny(shared.PermWarehouseOrderEdit)).Patch("/lines/{id}/config", h.handleUpdateConfig)
	r.With(h.rbac.RequireAny(shared.PermWarehouseOrderReceive), limiter).Post("/lines/{id}/receipts", h.handleReceive)
	r.With(h.rbac.RequireAny(shared.PermWarehouseOrderCancel)).Post("/lines/{id}/cancel", h.handleCancel)
	r.With(h.rbac.RequireAny(shared.PermWarehouseOrderRepair)).Post("/lines/{id}/repair", h.handleRepair)
}

func actorRateKey(r *http.Request) (string, error) {
	if p, ok := shared.PrincipalFromContext(r.Context()); ok && p.ActorID != 0 {
		return "actor:" + p.Actor(), nil
	}
	key, err := httprate.KeyByIP(r)
	if err != nil {
		return "", err
	}
	return "ip:" + key, nil
}

func (h *Handler) handlePreview(w http.ResponseWriter, r *http.Request) {
	var req configRequest
	if !h.decode(w, r, &req) {
		return
	}
	expected, err := h.service.PreviewExpectedUnits(req.toConfig())
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, expected)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createLineRequest
	if !h.decode(w, r, &req) {
		return
	}
	line, err := h.service.CreateLine(r.Context(), CreateLineInput{
		ClientCode:  req.ClientCode,
		SKU:         req.SKU,
		UPC:         req.UPC,
		ASIN:        req.ASIN,
		ProductName: req.ProductName,
		Config:      req.toConfig(),
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	w.Header().Set("Location", "/api/v1/lines/"+line.ID)
	httpx.JSON(w, http.StatusCreated, newLineResponse(line))
}

func (h *Handler) handleUpdateConfig(w http.ResponseWriter, r *http.Request) {
	var req configRequest
	if !h.decode(w, r, &req) {
		return
	}
	line, err := h.service.UpdateConfig(r.Context(), chi.URLParam(r, "id"), req.toConfig())
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, newLineResponse(line))
}

func (h *Handler) handleReceive(w http.ResponseWriter, r *http.Request) {
	var req receiveRequest
	if !h.decode(w, r, &req) {
		return
	}
	input := ReceiveInput{
		GoodUnits:      req.GoodUnits,
		DamagedUnits:   req.DamagedUnits,
		Note:           req.Note,
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
	}
	if req.ReceivedAt != nil {
		input.ReceivedAt = *req.ReceivedAt
	}
	line, rec, err := h.service.RecordReceiving(r.Context(), chi.URLParam(r, "id"), input)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, receiveResponse{Line: newLineResponse(line), Event: rec})
}

func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	line, err := h.service.CancelLine(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, newLineResponse(line))
}

func (h *Handler) handleRepair(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.RepairLine(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	line, err := h.service.GetLine(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, newLineResponse(line))
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ListFilter{
		ClientCode: q.Get("client_code"),
		Status:     reconcile.Status(strings.ToLower(strings.TrimSpace(q.Get("status")))),
		Search:     q.Get("q"),
	}
	var err error
	if filter.Limit, err = intParam(q.Get("limit")); err != nil {
		httpx.FieldProblem(w, "ValidationError", "limit", "must be an integer")
		return
	}
	if filter.Offset, err = intParam(q.Get("offset")); err != nil {
		httpx.FieldProblem(w, "ValidationError", "offset", "must be an integer")
		return
	}
	lines, page, err := h.service.ListLines(r.Context(), filter)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	resp := listResponse{Lines: make([]lineResponse, 0, len(lines)), Pagination: page}
	for _, line := range lines {
		resp.Lines = append(resp.Lines, newLineResponse(line))
	}
	httpx.JSON(w, http.StatusOK, resp)
}

func (h *Handler) handleListEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.service.ListEvents(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"events": events})
}

func (h *Handler) handleProgress(w http.ResponseWriter, r *http.Request) {
	progress, err := h.service.Progress(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, progress)
}

func (h *Handler) handleSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.service.Summary(r.Context(), r.URL.Query().Get("client_code"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, summary)
}

// decode parses and validates a JSON body, writing the problem response on failure.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := httpx.DecodeJSON(r, dst); err != nil {
		httpx.FieldProblem(w, "ValidationError", "body", "malformed JSON: "+err.Error())
		return false
	}
	if err := h.validator.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			httpx.FieldProblem(w, "ValidationError", fe.Field(), validationMessage(fe))
			return false
		}
		httpx.FieldProblem(w, "ValidationError", "body", err.Error())
		return false
	}
	return true
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "gte":
		if fe.Param() == "0" {
			return "must not be negative"
		}
		return "must be at least " + fe.Param()
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "min":
		return "must be at least " + fe.Param() + " characters"
	case "len":
		return "must be exactly " + fe.Param() + " characters"
	case "alphanum":
		return "must contain only letters and digits"
	case "numeric":
		return "must contain only digits"
	}
	return "is invalid"
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	if verr, ok := reconcile.AsValidation(err); ok {
		httpx.FieldProblem(w, verr.Kind(), verr.Field, verr.Message)
		return
	}
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, shared.ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrInvalidState), errors.Is(err, ErrConflict),
		errors.Is(err, ErrDuplicateSubmission), errors.Is(err, ErrSequenceExhausted):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, shared.ErrForbidden):
		httpx.Problem(w, http.StatusForbidden, "Forbidden", err.Error())
	default:
		h.logger.Error("warehouse order request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Any("error", err),
		)
		httpx.RespondError(w, err)
	}
}

func intParam(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}
