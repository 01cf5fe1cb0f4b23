package webhook

import (
	"crypto/subtle"
	"encoding/json"
	"io"
	"net/http"

	"github.com/kevin07696/billing-service/internal/domain"
	"github.com/kevin07696/billing-service/internal/domain/ports"
	webhookService "github.com/kevin07696/billing-service/internal/services/webhook"
)

// maxBodySize bounds webhook payloads at 1 MiB
const maxBodySize = 1 << 20

// Handler receives gateway webhook deliveries over HTTP and hands them to the
// webhook service. Responding 2xx acknowledges the delivery; the gateway
// redelivers on any other status.
type Handler struct {
	service *webhookService.Service
	logger  ports.Logger
	secret  string
}

// NewHandler creates a new webhook HTTP handler. secret, when non-empty, must
// match the X-Webhook-Secret header of every delivery.
func NewHandler(service *webhookService.Service, logger ports.Logger, secret string) *Handler {
	return &Handler{
		service: service,
		logger:  logger,
		secret:  secret,
	}
}

// HandleEvent processes POST deliveries on the webhook endpoint
func (h *Handler) HandleEvent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	if h.secret != "" {
		given := r.Header.Get("X-Webhook-Secret")
		if subtle.ConstantTimeCompare([]byte(given), []byte(h.secret)) != 1 {
			h.logger.Warn("webhook delivery rejected: bad secret",
				ports.String("remote_addr", r.RemoteAddr))
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	var event webhookService.Event
	if err := json.Unmarshal(body, &event); err != nil {
		h.logger.Warn("webhook delivery rejected: malformed body",
			ports.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	if err := h.service.ApplyEvent(r.Context(), &event); err != nil {
		if domain.IsInvalidArgumentError(err) {
			h.logger.Warn("webhook event rejected",
				ports.String("event_id", event.ID),
				ports.Err(err))
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		// Transient failure; a non-2xx status makes the gateway redeliver
		h.logger.Error("webhook event processing failed",
			ports.String("event_id", event.ID),
			ports.String("event_type", event.Type),
			ports.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
}
