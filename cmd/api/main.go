package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/hidalgo-digital/panel-secretario/internal/config"
	"github.com/hidalgo-digital/panel-secretario/internal/database"
	"github.com/hidalgo-digital/panel-secretario/internal/ingestion"
	"github.com/hidalgo-digital/panel-secretario/internal/server"
)

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})

	if err := godotenv.Load(); err != nil {
		log.Info("no .env file found, reading environment directly")
	}

	cfg, err := config.New()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx := context.Background()
	dbpool, err := database.ConnectDB(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to the database: %v", err)
	}
	defer dbpool.Close()

	store := database.NewPostgresStore(dbpool)
	importer := ingestion.NewService(store, cfg, log)
	handlers := server.NewHandlers(store, importer, cfg, log)
	router := server.SetupRoutes(handlers, cfg.APIKey)

	log.WithField("port", cfg.APIPort).Info("server starting")
	if err := http.ListenAndServe(fmt.Sprintf(":%s", cfg.APIPort), router); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
