package main

import (
	"context"
	"os/signal"
	"syscall"

	"waba-gateway/internal/config"
	"waba-gateway/internal/database"
	"waba-gateway/internal/dispatch"
	"waba-gateway/internal/log"
	"waba-gateway/internal/taskqueue"
	"waba-gateway/internal/whatsapp"
)

func main() {
	cfg := config.LoadConfig()

	db, err := database.Connect(cfg)
	if err != nil {
		log.Logger.WithError(err).Fatal("failed to connect to database")
	}

	client := whatsapp.NewClient(cfg)
	dispatcher := dispatch.NewDispatcher(db, client)

	worker := taskqueue.NewWorker(db, cfg.TaskPollInterval, cfg.TaskBackoffBase)
	worker.Register(dispatch.TaskTypeSendMessage, dispatch.SendMessageTaskHandler(dispatcher))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	worker.Run(ctx)
}
