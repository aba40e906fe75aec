package main

import (
	"waba-gateway/internal/api"
	"waba-gateway/internal/config"
	"waba-gateway/internal/database"
	"waba-gateway/internal/dispatch"
	"waba-gateway/internal/log"
	"waba-gateway/internal/metrics"
	"waba-gateway/internal/onboarding"
	"waba-gateway/internal/taskqueue"
	"waba-gateway/internal/webhook"
	"waba-gateway/internal/whatsapp"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	cfg := config.LoadConfig()

	db, err := database.Connect(cfg)
	if err != nil {
		log.Logger.WithError(err).Fatal("failed to connect to database")
	}

	client := whatsapp.NewClient(cfg)
	coordinator := onboarding.NewCoordinator(db, client)
	dispatcher := dispatch.NewDispatcher(db, client)
	bulk := dispatch.NewBulkOrchestrator(dispatcher, cfg.BulkWorkers)
	ingestor := webhook.NewIngestor(db)
	queue := taskqueue.NewQueue(db, cfg.TaskMaxRetries)
	metrics.RegisterQueueSize(queue)

	webhookHandler := webhook.NewHandler(cfg, ingestor)
	onboardingHandler := api.NewOnboardingHandler(coordinator)
	messageHandler := api.NewMessageHandler(dispatcher, bulk, queue)
	businessHandler := api.NewBusinessHandler(db, client)
	systemHandler := api.NewSystemHandler(cfg, db)

	r := gin.Default()
	r.Use(api.CORSMiddleware())

	// Webhook routes stay outside the auth gate: the provider calls them.
	r.GET("/webhook", webhookHandler.VerifyWebhook)
	r.POST("/webhook", webhookHandler.ReceiveWebhook)

	r.GET("/health", systemHandler.Health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	apiGroup := r.Group("/api", api.AuthRequired(cfg))
	{
		apiGroup.GET("/config", systemHandler.ConfigInfo)

		whatsappGroup := apiGroup.Group("/whatsapp")
		{
			whatsappGroup.POST("/onboarding/start", onboardingHandler.StartOnboarding)
			whatsappGroup.POST("/onboarding/complete", onboardingHandler.CompleteOnboarding)
			whatsappGroup.GET("/onboarding/:businessId/status", onboardingHandler.GetStatus)

			whatsappGroup.POST("/send/text", messageHandler.SendText)
			whatsappGroup.POST("/send/template", messageHandler.SendTemplate)
			whatsappGroup.POST("/send/media", messageHandler.SendMedia)
			whatsappGroup.POST("/send/bulk", messageHandler.SendBulk)

			whatsappGroup.GET("/businesses", businessHandler.ListBusinesses)
			whatsappGroup.DELETE("/businesses/:businessId", businessHandler.DeleteBusiness)
			whatsappGroup.POST("/businesses/:businessId/test-connection", businessHandler.TestConnection)

			whatsappGroup.GET("/tasks/:id", messageHandler.GetTask)
		}
	}

	log.Logger.WithField("port", cfg.Port).Info("server starting")
	if err := r.Run(":" + cfg.Port); err != nil {
		log.Logger.WithError(err).Fatal("failed to run server")
	}
}
