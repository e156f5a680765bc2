package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"ecolisting-chat-backend/internal/api"
	"ecolisting-chat-backend/internal/api/router"
	"ecolisting-chat-backend/internal/app"
	"ecolisting-chat-backend/internal/websocket"
)

func main() {
	cfg, log, err := app.Bootstrap("ws-server")
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

	hub := websocket.NewHub(log)
	go hub.Run(ctx)
	handler := websocket.NewHandler(hub, a.Broker, a.Chat, log)
	defer handler.Close()

	services := a.Services()
	services.WS = handler

	server := api.NewAPIServer(
		":83",
		a.Queue,
		services,
		a.Options(),
		log,
		router.UtilsRoutes("/api/ws/v1"),
		router.WebsocketRoutes("/api/ws/v1"),
	)

	if err := server.Run(ctx); err != nil {
		log.Error("server stopped", "error", err)
	}
}
