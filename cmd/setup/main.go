package main

import (
	"context"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/hidalgo-digital/panel-secretario/internal/config"
	"github.com/hidalgo-digital/panel-secretario/internal/database"
	"github.com/hidalgo-digital/panel-secretario/internal/models"
)

// Creates the schema and seeds the default yearly goals. Safe to run
// repeatedly.
func main() {
	log := logrus.New()

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
	if err := store.CreateTables(ctx); err != nil {
		log.Fatalf("Failed to create schema: %v", err)
	}
	log.Info("schema ready")

	metas, err := store.GetMetasPorAnio(ctx)
	if err != nil {
		log.Fatalf("Failed to read metas: %v", err)
	}
	if metas == nil {
		metas = models.MetasPorAnio{
			strconv.Itoa(cfg.DefaultAnio): {
				Total: cfg.GoalTotal,
				E1:    cfg.GoalEtapas[0],
				E2:    cfg.GoalEtapas[1],
				E3:    cfg.GoalEtapas[2],
				E4:    cfg.GoalEtapas[3],
				E5:    cfg.GoalEtapas[4],
				E6:    cfg.GoalEtapas[5],
			},
		}
		if err := store.UpdateMetasPorAnio(ctx, metas); err != nil {
			log.Fatalf("Failed to seed metas: %v", err)
		}
		log.WithField("anio", cfg.DefaultAnio).Info("seeded default metas")
	}

	log.Info("setup finished")
}
