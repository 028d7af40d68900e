package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/curalink/clinic-comms/internal/bulk_comm_service/app"
	"github.com/curalink/clinic-comms/internal/bulk_comm_service/domain"
	"github.com/curalink/clinic-comms/internal/bulk_comm_service/repository"
)

// Header names carrying tenant and actor identity. Set by the upstream
// gateway, which handles authentication.
const (
	headerOrgID  = "X-Org-ID"
	headerUserID = "X-User-ID"
)

const defaultPageSize = 20

// CommHandler handles HTTP requests for bulk communication batches.
type CommHandler struct {
	manager   *app.BatchManager
	processor *app.QueueProcessor
	lifecycle *app.Lifecycle
	batchSize int
	logger    *slog.Logger
	validate  *validator.Validate
}

// NewCommHandler creates a new CommHandler. batchSize is the default item
// budget for manually triggered processing cycles.
func NewCommHandler(
	manager *app.BatchManager,
	processor *app.QueueProcessor,
	lifecycle *app.Lifecycle,
	batchSize int,
	logger *slog.Logger,
	validate *validator.Validate,
) *CommHandler {
	return &CommHandler{
		manager:   manager,
		processor: processor,
		lifecycle: lifecycle,
		batchSize: batchSize,
		logger:    logger,
		validate:  validate,
	}
}

// Helper to respond with JSON
func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if payload != nil {
		if err := json.NewEncoder(w).Encode(payload); err != nil {
			slog.Default().Error("Failed to write JSON response", "error", err)
		}
	}
}

// Helper to respond with an error
func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}

// mapDomainErrorToHTTPStatus converts domain sentinel errors to HTTP status codes.
func mapDomainErrorToHTTPStatus(err error) int {
	switch {
	case errors.Is(err, domain.ErrBatchNotFound),
		errors.Is(err, domain.ErrItemNotFound),
		errors.Is(err, domain.ErrRecipientNotFound),
		errors.Is(err, domain.ErrOrganizationNotFound),
		errors.Is(err, domain.ErrTemplateNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidBatchState):
		return http.StatusConflict
	case errors.Is(err, domain.ErrNoRecipients),
		errors.Is(err, domain.ErrEmptyContent),
		errors.Is(err, domain.ErrInvalidChannel):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// RegisterRoutes sets up the routing for batch operations.
func (h *CommHandler) RegisterRoutes(r chi.Router) {
	r.Post("/batches", h.CreateBatch)
	r.Get("/batches", h.ListBatches)
	r.Get("/batches/{batchID}", h.GetBatchStatus)
	r.Post("/batches/{batchID}/cancel", h.CancelBatch)
	r.Get("/batches/{batchID}/items", h.ListBatchItems)

	r.Post("/messages/preview", h.PreviewMessage)
	r.Get("/variables", h.ListVariables)

	r.Post("/queue/process", h.ProcessQueue)
}

func orgIDFromRequest(r *http.Request) (uuid.UUID, error) {
	return uuid.Parse(r.Header.Get(headerOrgID))
}

func pagination(r *http.Request) (page, pageSize int) {
	page, _ = strconv.Atoi(r.URL.Query().Get("page"))
	pageSize, _ = strconv.Atoi(r.URL.Query().Get("page_size"))
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	return page, pageSize
}

func (h *CommHandler) CreateBatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orgID, err := orgIDFromRequest(r)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Missing or invalid "+headerOrgID+" header")
		return
	}
	createdBy, _ := uuid.Parse(r.Header.Get(headerUserID))

	var reqDTO CreateBatchRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&reqDTO); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request payload: "+err.Error())
		return
	}
	defer r.Body.Close()

	if err := h.validate.StructCtx(ctx, reqDTO); err != nil {
		respondWithError(w, http.StatusBadRequest, "Validation failed: "+err.Error())
		return
	}

	result, err := h.manager.QueueBulkCommunications(ctx, app.QueueBulkRequest{
		OrgID:        orgID,
		RecipientIDs: reqDTO.RecipientIDs,
		Channel:      domain.Channel(reqDTO.Channel),
		TemplateID:   reqDTO.TemplateID,
		Subject:      reqDTO.Subject,
		Content:      reqDTO.Content,
		Priority:     domain.Priority(reqDTO.Priority),
		ScheduledAt:  reqDTO.ScheduledAt,
		CreatedBy:    createdBy,
	})
	if err != nil {
		h.logger.ErrorContext(ctx, "Failed to queue bulk communication", "error", err, "org_id", orgID)
		respondWithError(w, mapDomainErrorToHTTPStatus(err), "Failed to queue batch: "+err.Error())
		return
	}
	respondWithJSON(w, http.StatusCreated, result)
}

func (h *CommHandler) ListBatches(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	page, pageSize := pagination(r)

	filter := repository.BatchFilter{
		Status:   domain.BatchStatus(r.URL.Query().Get("status")),
		Channel:  domain.Channel(r.URL.Query().Get("channel")),
		Page:     page,
		PageSize: pageSize,
	}
	if orgID, err := orgIDFromRequest(r); err == nil {
		filter.OrgID = uuid.NullUUID{UUID: orgID, Valid: true}
	}

	batches, total, err := h.lifecycle.ListBatches(ctx, filter)
	if err != nil {
		h.logger.ErrorContext(ctx, "Failed to list batches", "error", err)
		respondWithError(w, mapDomainErrorToHTTPStatus(err), "Failed to list batches: "+err.Error())
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"batches":     batches,
		"total_count": total,
		"page":        page,
		"page_size":   pageSize,
	})
}

func (h *CommHandler) GetBatchStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	batchID, err := uuid.Parse(chi.URLParam(r, "batchID"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid batch ID format")
		return
	}

	report, err := h.lifecycle.GetStatus(ctx, batchID)
	if err != nil {
		h.logger.ErrorContext(ctx, "Failed to get batch status", "error", err, "batch_id", batchID)
		respondWithError(w, mapDomainErrorToHTTPStatus(err), "Failed to get batch status: "+err.Error())
		return
	}
	respondWithJSON(w, http.StatusOK, report)
}

func (h *CommHandler) CancelBatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	batchID, err := uuid.Parse(chi.URLParam(r, "batchID"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid batch ID format")
		return
	}

	batch, err := h.lifecycle.Cancel(ctx, batchID)
	if err != nil {
		h.logger.ErrorContext(ctx, "Failed to cancel batch", "error", err, "batch_id", batchID)
		respondWithError(w, mapDomainErrorToHTTPStatus(err), "Failed to cancel batch: "+err.Error())
		return
	}
	respondWithJSON(w, http.StatusOK, batch)
}

func (h *CommHandler) ListBatchItems(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	batchID, err := uuid.Parse(chi.URLParam(r, "batchID"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid batch ID format")
		return
	}
	page, pageSize := pagination(r)

	items, total, err := h.lifecycle.ListItems(ctx, batchID, repository.ItemFilter{
		Status:   domain.ItemStatus(r.URL.Query().Get("status")),
		Page:     page,
		PageSize: pageSize,
	})
	if err != nil {
		h.logger.ErrorContext(ctx, "Failed to list batch items", "error", err, "batch_id", batchID)
		respondWithError(w, mapDomainErrorToHTTPStatus(err), "Failed to list batch items: "+err.Error())
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"items":       items,
		"total_count": total,
		"page":        page,
		"page_size":   pageSize,
	})
}

func (h *CommHandler) PreviewMessage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orgID, err := orgIDFromRequest(r)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Missing or invalid "+headerOrgID+" header")
		return
	}

	var reqDTO PreviewRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&reqDTO); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request payload: "+err.Error())
		return
	}
	defer r.Body.Close()

	if err := h.validate.StructCtx(ctx, reqDTO); err != nil {
		respondWithError(w, http.StatusBadRequest, "Validation failed: "+err.Error())
		return
	}

	preview, err := h.lifecycle.Preview(ctx, orgID, reqDTO.RecipientID, domain.Channel(reqDTO.Channel), reqDTO.Content)
	if err != nil {
		h.logger.ErrorContext(ctx, "Failed to preview message", "error", err, "org_id", orgID)
		respondWithError(w, mapDomainErrorToHTTPStatus(err), "Failed to preview message: "+err.Error())
		return
	}
	respondWithJSON(w, http.StatusOK, preview)
}

func (h *CommHandler) ListVariables(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, VariablesResponseDTO{Variables: h.lifecycle.AvailableVariables()})
}

// ProcessQueue triggers one processing cycle on demand. It mirrors what the
// background worker does on its poll interval.
func (h *CommHandler) ProcessQueue(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	batchSize := h.batchSize
	if r.Body != nil && r.ContentLength > 0 {
		var reqDTO ProcessQueueRequestDTO
		if err := json.NewDecoder(r.Body).Decode(&reqDTO); err != nil {
			respondWithError(w, http.StatusBadRequest, "Invalid request payload: "+err.Error())
			return
		}
		defer r.Body.Close()
		if err := h.validate.StructCtx(ctx, reqDTO); err != nil {
			respondWithError(w, http.StatusBadRequest, "Validation failed: "+err.Error())
			return
		}
		if reqDTO.BatchSize > 0 {
			batchSize = reqDTO.BatchSize
		}
	}

	result, err := h.processor.ProcessQueue(ctx, batchSize)
	if err != nil {
		h.logger.ErrorContext(ctx, "Manual queue processing cycle failed", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Queue processing failed: "+err.Error())
		return
	}
	respondWithJSON(w, http.StatusOK, result)
}
