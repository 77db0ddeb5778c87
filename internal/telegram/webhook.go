package telegram

import (
	"crypto/subtle"
	"errors"
	"io"
	"net/http"

	"plugbot/pkg/bot"

	"go.uber.org/zap"
)

// SecretHeader carries the secret token configured with setWebhook.
const SecretHeader = "X-Telegram-Bot-Api-Secret-Token"

const maxWebhookBody = 1 << 20

// WebhookHandler receives pushed updates and forwards them to out.
type WebhookHandler struct {
	secret string
	out    chan<- *bot.Update
	logger *zap.Logger
}

// NewWebhookHandler creates a handler. An empty secret disables the header
// check.
func NewWebhookHandler(secret string, out chan<- *bot.Update, logger *zap.Logger) *WebhookHandler {
	return &WebhookHandler{secret: secret, out: out, logger: logger.Named("webhook")}
}

func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.secret != "" && subtle.ConstantTimeCompare([]byte(r.Header.Get(SecretHeader)), []byte(h.secret)) != 1 {
		h.logger.Warn("Rejected webhook call with bad secret", zap.String("remote", r.RemoteAddr))
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}

	u, err := Normalize(body)
	switch {
	case errors.Is(err, ErrUnsupported):
		// Acknowledge so the service does not redeliver.
		w.WriteHeader(http.StatusOK)
		return
	case err != nil:
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	select {
	case h.out <- u:
		w.WriteHeader(http.StatusOK)
	case <-r.Context().Done():
		http.Error(w, "cancelled", http.StatusServiceUnavailable)
	}
}
