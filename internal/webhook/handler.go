package webhook

import (
	"io"
	"net/http"

	"waba-gateway/internal/config"
	"waba-gateway/internal/log"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	Config   *config.Config
	Ingestor *Ingestor
}

func NewHandler(cfg *config.Config, ingestor *Ingestor) *Handler {
	return &Handler{
		Config:   cfg,
		Ingestor: ingestor,
	}
}

// VerifyWebhook answers the provider's subscription handshake: echo the
// challenge iff the verify token matches. This is the only webhook path
// allowed to return a non-2xx.
func (h *Handler) VerifyWebhook(c *gin.Context) {
	mode := c.Query("hub.mode")
	token := c.Query("hub.verify_token")
	challenge := c.Query("hub.challenge")

	if mode == "" || token == "" {
		c.Status(http.StatusBadRequest)
		return
	}

	if mode == "subscribe" && token == h.Config.VerifyToken {
		log.Logger.Info("webhook verified successfully")
		c.String(http.StatusOK, challenge)
		return
	}

	c.Status(http.StatusForbidden)
}

// ReceiveWebhook ingests one callback. It always acknowledges with 200:
// the provider retries non-2xx responses aggressively and a retry storm is
// worse than a record parked with a processing error.
func (h *Handler) ReceiveWebhook(c *gin.Context) {
	raw, err := io.ReadAll(c.Request.Body)
	if err != nil {
		log.Logger.WithError(err).Error("failed to read webhook body")
		c.Status(http.StatusOK)
		return
	}

	if _, err := h.Ingestor.Ingest(c.Request.Context(), raw); err != nil {
		log.Logger.WithError(err).Error("webhook ingestion failed")
	}

	c.Status(http.StatusOK)
}
