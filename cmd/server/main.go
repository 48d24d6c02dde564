package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"shiptrack/internal/app/server"
	"shiptrack/internal/app/server/config"
	"shiptrack/internal/utils/logger"
)

func main() {
	conf := config.MustLoad()
	log := logger.WithLevel(conf.Env, conf.Logger.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := server.New(ctx, conf, log)
	if err != nil {
		log.Error("Не удалось запустить сервер", "error", err)
		os.Exit(1)
	}

	if err := app.Run(ctx); err != nil {
		log.Error("Сервер завершился с ошибкой", "error", err)
		os.Exit(1)
	}
}
