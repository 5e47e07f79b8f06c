package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/groupize/aime-planner-chatbot/pkg/logging"
)

const maxRequestBytes = 1 << 20

// Service is the engine surface the HTTP and Lambda handlers need.
type Service interface {
	Initiate(ctx context.Context, req *InitiateRequest) (*InitiateResult, error)
	Get(ctx context.Context, id string) (*Conversation, error)
	List(ctx context.Context, limit int) ([]*Conversation, error)
	Cancel(ctx context.Context, id, reason string) (*Conversation, error)
}

var _ Service = (*Engine)(nil)

// ErrorResponse is the JSON error body returned to API callers.
type ErrorResponse struct {
	Error     string   `json:"error"`
	ErrorKind string   `json:"error_kind"`
	Details   []string `json:"details,omitempty"`
}

// InitiateResponse is the JSON body for a successful initiate call.
type InitiateResponse struct {
	Message string `json:"message"`
	*InitiateResult
}

// Handler wires HTTP requests to the conversation engine.
type Handler struct {
	service Service
	logger  *logging.Logger
}

// NewHandler creates a conversation handler.
func NewHandler(service Service, logger *logging.Logger) *Handler {
	if service == nil {
		panic("conversation: service cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		service: service,
		logger:  logger,
	}
}

// HandleInitiate runs an initiate request from a raw JSON body and returns
// the HTTP status and payload. Shared by the HTTP route and the Lambda.
func (h *Handler) HandleInitiate(ctx context.Context, body []byte) (int, any) {
	req, err := ParseInitiateRequest(body)
	if err != nil {
		return h.errorPayload(ctx, err)
	}
	result, err := h.service.Initiate(ctx, req)
	if err != nil {
		return h.errorPayload(ctx, err)
	}
	if !result.EmailSent {
		return http.StatusBadGateway, InitiateResponse{Message: "Failed to send initial email to vendor", InitiateResult: result}
	}
	return http.StatusOK, InitiateResponse{Message: "Bid conversation initiated successfully", InitiateResult: result}
}

// Initiate handles POST /api/v1/bids.
func (h *Handler) Initiate(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	if err != nil {
		h.writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "Invalid request body", ErrorKind: KindValidation})
		return
	}
	status, payload := h.HandleInitiate(r.Context(), body)
	h.writeJSON(w, status, payload)
}

// Get handles GET /api/v1/conversations/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	conv, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		status, payload := h.errorPayload(r.Context(), err)
		h.writeJSON(w, status, payload)
		return
	}
	h.writeJSON(w, http.StatusOK, conv)
}

// List handles GET /api/v1/conversations?limit=N.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	convs, err := h.service.List(r.Context(), limit)
	if err != nil {
		status, payload := h.errorPayload(r.Context(), err)
		h.writeJSON(w, status, payload)
		return
	}
	if convs == nil {
		convs = []*Conversation{}
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"conversations": convs, "count": len(convs)})
}

// Cancel handles POST /api/v1/conversations/{id}/cancel.
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Reason string `json:"reason"`
	}
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes)).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
			h.writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "Invalid request body", ErrorKind: KindValidation})
			return
		}
	}
	conv, err := h.service.Cancel(r.Context(), chi.URLParam(r, "id"), body.Reason)
	if err != nil {
		status, payload := h.errorPayload(r.Context(), err)
		h.writeJSON(w, status, payload)
		return
	}
	h.writeJSON(w, http.StatusOK, conv)
}

func (h *Handler) errorPayload(ctx context.Context, err error) (int, any) {
	kind := ErrorKind(err)
	resp := ErrorResponse{Error: err.Error(), ErrorKind: kind}
	switch kind {
	case KindValidation:
		var v *ValidationError
		if errors.As(err, &v) {
			resp.Error = "Invalid request"
			resp.Details = v.Problems
		}
		return http.StatusBadRequest, resp
	case KindNotFound:
		return http.StatusNotFound, resp
	case KindTerminalState:
		return http.StatusConflict, resp
	case KindExternalService:
		h.logger.WithContext(ctx).Error("external service failure", "error", err)
		return http.StatusBadGateway, resp
	default:
		h.logger.WithContext(ctx).Error("unexpected error", "error", err)
		resp.Error = "Internal server error"
		return http.StatusInternalServerError, resp
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("failed to write JSON response", "error", err)
	}
}
