package httpapi

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/sectorwars/gameserver/internal/application/provisioner"
	"github.com/sectorwars/gameserver/internal/domain/shared"
)

// handleSubscriptionWebhook verifies the provider's HMAC-SHA256 signature
// over the raw body before any parsing. The signature header carries a hex
// digest, optionally prefixed "sha256=".
func (s *Server) handleSubscriptionWebhook(w http.ResponseWriter, r *http.Request) {
	if s.webhookSecret == "" {
		respondError(w, r, shared.NewUnavailableError("webhook intake is not configured", nil))
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		respondError(w, r, shared.NewValidationErrorf("unreadable body: %v", err))
		return
	}
	if !s.verifyWebhookSignature(r.Header.Get("X-Webhook-Signature"), body) {
		respondError(w, r, shared.NewUnauthorizedError())
		return
	}

	var ev provisioner.Event
	if err := json.Unmarshal(body, &ev); err != nil {
		respondError(w, r, shared.NewValidationErrorf("malformed webhook payload: %v", err))
		return
	}
	if err := validate.Struct(&ev); err != nil {
		respondError(w, r, validationError(err))
		return
	}
	delivery, err := s.provisioner.Handle(r.Context(), ev)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, map[string]string{
		"delivery_id": delivery.DeliveryID,
		"outcome":     delivery.Outcome,
	})
}

func (s *Server) verifyWebhookSignature(header string, body []byte) bool {
	presented := strings.TrimPrefix(strings.TrimSpace(header), "sha256=")
	if presented == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(s.webhookSecret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(presented))
}
