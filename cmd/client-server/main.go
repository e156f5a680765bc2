package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"ecolisting-chat-backend/internal/api"
	"ecolisting-chat-backend/internal/api/router"
	"ecolisting-chat-backend/internal/app"
)

func main() {
	cfg, log, err := app.Bootstrap("client-server")
	if err != nil {
		os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal("app init failed", "error", err)
	}
	defer a.Close()

	server := api.NewAPIServer(
		":81",
		a.Queue,
		a.Services(),
		a.Options(),
		log,
		router.UtilsRoutes("/api/client/v1"),
		router.StaffConversationRoutes("/api/client/v1"),
		router.PolicyRoutes("/rest/v1"),
	)

	if err := server.Run(ctx); err != nil {
		log.Error("server stopped", "error", err)
	}
}
