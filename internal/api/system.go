package api

import (
	"net/http"

	"waba-gateway/internal/config"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type SystemHandler struct {
	Config *config.Config
	DB     *gorm.DB
}

func NewSystemHandler(cfg *config.Config, db *gorm.DB) *SystemHandler {
	return &SystemHandler{Config: cfg, DB: db}
}

func (h *SystemHandler) Health(c *gin.Context) {
	sqlDB, err := h.DB.DB()
	if err == nil {
		err = sqlDB.Ping()
	}
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "database": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// ConfigInfo exposes the non-secret configuration for operators.
func (h *SystemHandler) ConfigInfo(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"graph_base_url":      h.Config.GraphBaseURL,
		"graph_version":       h.Config.GraphVersion,
		"redirect_uri":        h.Config.RedirectURI,
		"bulk_workers":        h.Config.BulkWorkers,
		"task_max_retries":    h.Config.TaskMaxRetries,
		"task_poll_interval":  h.Config.TaskPollInterval.String(),
		"task_backoff_base":   h.Config.TaskBackoffBase.String(),
		"http_timeout":        h.Config.HTTPTimeout.String(),
		"verify_token_set":    h.Config.VerifyToken != "",
		"facebook_app_id_set": h.Config.FacebookAppID != "",
	})
}
