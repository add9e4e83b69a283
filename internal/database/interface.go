package database

import (
	"context"

	"github.com/hidalgo-digital/panel-secretario/internal/models"
)

// ImportTx is the unit of work for one CSV import. Everything between Begin
// and Commit (the year delete, every upsert and the audit row) becomes
// durable together or not at all.
type ImportTx interface {
	// LockAnio serializes imports for one year. The lock is
	// transaction-scoped, so every exit path releases it.
	LockAnio(ctx context.Context, anio int) error
	DeleteTramitesAnio(ctx context.Context, anio int) (int64, error)
	// UpsertDependencia returns the stable id for an agency name, creating
	// it on first sight. Idempotent within the transaction.
	UpsertDependencia(ctx context.Context, nombre string) (int, error)
	// UpsertTramite inserts or updates the procedure identified by
	// (dependencia, nombre, anio) and reports whether it was an update.
	UpsertTramite(ctx context.Context, data *models.TramiteData, dependenciaID, anio int) (bool, error)
	InsertCargaLog(ctx context.Context, log *models.CargaLog) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Store is the persistence surface of the service.
type Store interface {
	Begin(ctx context.Context) (ImportTx, error)

	GetResumenGlobal(ctx context.Context, anio int) (*models.ResumenGlobal, error)
	GetResumenDependencias(ctx context.Context, anio int) ([]models.ResumenDependencia, error)
	ListTramites(ctx context.Context, filter models.TramiteFilter) (*models.TramitePage, error)
	ExportTramites(ctx context.Context, anio int) ([]models.TramiteRow, error)
	ListCargaLogs(ctx context.Context, limit int) ([]models.CargaLog, error)
	ListAnios(ctx context.Context) ([]int, error)

	GetMetasPorAnio(ctx context.Context) (models.MetasPorAnio, error)
	UpdateMetasPorAnio(ctx context.Context, metas models.MetasPorAnio) error
}
