package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hidalgo-digital/panel-secretario/internal/models"
)

// anioLockClass namespaces the per-year advisory lock so it cannot collide
// with other advisory locks on the same database.
const anioLockClass = 7201

func ConnectDB(ctx context.Context, connStr string) (*pgxpool.Pool, error) {
	dbpool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}

	return dbpool, nil
}

type PostgresStore struct {
	dbpool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{dbpool: pool}
}

func (s *PostgresStore) CreateTables(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS dependencias (
			id SERIAL PRIMARY KEY,
			nombre VARCHAR(255) NOT NULL UNIQUE,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE TABLE IF NOT EXISTS tramites (
			id SERIAL PRIMARY KEY,
			dependencia_id INTEGER NOT NULL REFERENCES dependencias(id),
			nombre TEXT NOT NULL,
			anio INTEGER NOT NULL,
			nivel_digitalizacion NUMERIC(4, 2) NOT NULL DEFAULT 0,
			fase1_tramites_intervenidos BOOLEAN NOT NULL DEFAULT FALSE,
			fase2_modelado BOOLEAN NOT NULL DEFAULT FALSE,
			fase3_reingenieria BOOLEAN NOT NULL DEFAULT FALSE,
			fase4_digitalizacion BOOLEAN NOT NULL DEFAULT FALSE,
			fase5_implementacion BOOLEAN NOT NULL DEFAULT FALSE,
			fase6_liberacion BOOLEAN NOT NULL DEFAULT FALSE,
			s INTEGER NOT NULL DEFAULT 0,
			r INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE (dependencia_id, nombre, anio)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_tramites_anio ON tramites (anio);`,
		`CREATE TABLE IF NOT EXISTS carga_logs (
			id SERIAL PRIMARY KEY,
			filename VARCHAR(255) NOT NULL,
			rows_read INTEGER NOT NULL,
			rows_inserted INTEGER NOT NULL,
			rows_invalid INTEGER NOT NULL,
			errors JSONB,
			checksum VARCHAR(64),
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE TABLE IF NOT EXISTS configuracion (
			clave VARCHAR(100) PRIMARY KEY,
			valor JSONB NOT NULL,
			descripcion TEXT,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);`,
	}

	for _, query := range queries {
		if _, err := s.dbpool.Exec(ctx, query); err != nil {
			return fmt.Errorf("error creating schema: %w", err)
		}
	}

	return nil
}

func (s *PostgresStore) Begin(ctx context.Context) (ImportTx, error) {
	tx, err := s.dbpool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("error beginning transaction: %w", err)
	}
	return &pgImportTx{tx: tx}, nil
}

type pgImportTx struct {
	tx pgx.Tx
}

func (t *pgImportTx) LockAnio(ctx context.Context, anio int) error {
	_, err := t.tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1, $2);`, anioLockClass, anio)
	if err != nil {
		return fmt.Errorf("error acquiring import lock for year %d: %w", anio, err)
	}
	return nil
}

func (t *pgImportTx) DeleteTramitesAnio(ctx context.Context, anio int) (int64, error) {
	tag, err := t.tx.Exec(ctx, `DELETE FROM tramites WHERE anio = $1;`, anio)
	if err != nil {
		return 0, fmt.Errorf("error deleting tramites for year %d: %w", anio, err)
	}
	return tag.RowsAffected(), nil
}

func (t *pgImportTx) UpsertDependencia(ctx context.Context, nombre string) (int, error) {
	query := `
	INSERT INTO dependencias (nombre)
	VALUES ($1)
	ON CONFLICT (nombre) DO UPDATE SET nombre = EXCLUDED.nombre
	RETURNING id;`

	var id int
	if err := t.tx.QueryRow(ctx, query, nombre).Scan(&id); err != nil {
		return 0, fmt.Errorf("error upserting dependencia %q: %w", nombre, err)
	}
	return id, nil
}

func (t *pgImportTx) UpsertTramite(ctx context.Context, data *models.TramiteData, dependenciaID, anio int) (bool, error) {
	checkQuery := `
	SELECT id FROM tramites
	WHERE dependencia_id = $1 AND nombre = $2 AND anio = $3;`

	var existingID int
	err := t.tx.QueryRow(ctx, checkQuery, dependenciaID, data.Tramite, anio).Scan(&existingID)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return false, fmt.Errorf("error checking tramite %q: %w", data.Tramite, err)
	}

	if err == nil {
		updateQuery := `
		UPDATE tramites SET
			nivel_digitalizacion = $3,
			fase1_tramites_intervenidos = $4,
			fase2_modelado = $5,
			fase3_reingenieria = $6,
			fase4_digitalizacion = $7,
			fase5_implementacion = $8,
			fase6_liberacion = $9,
			s = $10,
			r = $11,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = $1 AND dependencia_id = $2;`

		if _, err := t.tx.Exec(ctx, updateQuery,
			existingID, dependenciaID,
			data.NivelDigitalizacion,
			data.Fase1TramitesIntervenidos, data.Fase2Modelado, data.Fase3Reingenieria,
			data.Fase4Digitalizacion, data.Fase5Implementacion, data.Fase6Liberacion,
			data.S, data.R,
		); err != nil {
			return false, fmt.Errorf("error updating tramite %q: %w", data.Tramite, err)
		}
		return true, nil
	}

	insertQuery := `
	INSERT INTO tramites (
		dependencia_id, nombre, anio, nivel_digitalizacion,
		fase1_tramites_intervenidos, fase2_modelado, fase3_reingenieria,
		fase4_digitalizacion, fase5_implementacion, fase6_liberacion,
		s, r
	)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12);`

	if _, err := t.tx.Exec(ctx, insertQuery,
		dependenciaID, data.Tramite, anio, data.NivelDigitalizacion,
		data.Fase1TramitesIntervenidos, data.Fase2Modelado, data.Fase3Reingenieria,
		data.Fase4Digitalizacion, data.Fase5Implementacion, data.Fase6Liberacion,
		data.S, data.R,
	); err != nil {
		return false, fmt.Errorf("error inserting tramite %q: %w", data.Tramite, err)
	}
	return false, nil
}

func (t *pgImportTx) InsertCargaLog(ctx context.Context, log *models.CargaLog) error {
	errorsJSON, err := json.Marshal(log.Errors)
	if err != nil {
		return fmt.Errorf("error serializing carga log errors: %w", err)
	}

	query := `
	INSERT INTO carga_logs (filename, rows_read, rows_inserted, rows_invalid, errors, checksum)
	VALUES ($1, $2, $3, $4, $5, $6);`

	if _, err := t.tx.Exec(ctx, query,
		log.Filename, log.RowsRead, log.RowsInserted, log.RowsInvalid, errorsJSON, log.Checksum,
	); err != nil {
		return fmt.Errorf("error inserting carga log: %w", err)
	}
	return nil
}

func (t *pgImportTx) Commit(ctx context.Context) error {
	return t.tx.Commit(ctx)
}

func (t *pgImportTx) Rollback(ctx context.Context) error {
	return t.tx.Rollback(ctx)
}

func (s *PostgresStore) GetResumenGlobal(ctx context.Context, anio int) (*models.ResumenGlobal, error) {
	query := `
	SELECT
		COUNT(*),
		COUNT(DISTINCT dependencia_id),
		COALESCE(AVG(nivel_digitalizacion), 0),
		COUNT(*) FILTER (WHERE fase1_tramites_intervenidos),
		COUNT(*) FILTER (WHERE fase2_modelado),
		COUNT(*) FILTER (WHERE fase3_reingenieria),
		COUNT(*) FILTER (WHERE fase4_digitalizacion),
		COUNT(*) FILTER (WHERE fase5_implementacion),
		COUNT(*) FILTER (WHERE fase6_liberacion)
	FROM tramites
	WHERE anio = $1;`

	var totales [6]int
	resumen := &models.ResumenGlobal{}
	err := s.dbpool.QueryRow(ctx, query, anio).Scan(
		&resumen.TotalTramites,
		&resumen.TotalDependencias,
		&resumen.PromedioNivelGlobal,
		&totales[0], &totales[1], &totales[2], &totales[3], &totales[4], &totales[5],
	)
	if err != nil {
		return nil, fmt.Errorf("error querying global summary: %w", err)
	}

	nombres := []string{"Trámites Intervenidos", "Modelado", "Reingeniería", "Digitalización", "Implementación", "Liberación"}
	for i, total := range totales {
		resumen.Fases = append(resumen.Fases, models.FaseResumen{
			Fase:       fmt.Sprintf("F%d", i+1),
			Nombre:     nombres[i],
			Total:      total,
			Porcentaje: porcentaje(total, resumen.TotalTramites),
		})
	}

	return resumen, nil
}

func (s *PostgresStore) GetResumenDependencias(ctx context.Context, anio int) ([]models.ResumenDependencia, error) {
	query := `
	SELECT
		d.id,
		d.nombre,
		COUNT(t.id),
		COALESCE(AVG(t.nivel_digitalizacion), 0),
		COUNT(*) FILTER (WHERE t.fase1_tramites_intervenidos),
		COUNT(*) FILTER (WHERE t.fase2_modelado),
		COUNT(*) FILTER (WHERE t.fase3_reingenieria),
		COUNT(*) FILTER (WHERE t.fase4_digitalizacion),
		COUNT(*) FILTER (WHERE t.fase5_implementacion),
		COUNT(*) FILTER (WHERE t.fase6_liberacion)
	FROM dependencias d
	INNER JOIN tramites t ON t.dependencia_id = d.id AND t.anio = $1
	GROUP BY d.id, d.nombre
	ORDER BY COUNT(t.id) DESC;`

	rows, err := s.dbpool.Query(ctx, query, anio)
	if err != nil {
		return nil, fmt.Errorf("error querying dependencia summary: %w", err)
	}
	defer rows.Close()

	var resumenes []models.ResumenDependencia
	for rows.Next() {
		var r models.ResumenDependencia
		if err := rows.Scan(
			&r.DependenciaID, &r.Dependencia, &r.TotalTramites, &r.PromedioNivel,
			&r.Fases.F1, &r.Fases.F2, &r.Fases.F3, &r.Fases.F4, &r.Fases.F5, &r.Fases.F6,
		); err != nil {
			return nil, fmt.Errorf("error scanning dependencia summary: %w", err)
		}

		r.Porcentajes = models.FasePorcentaje{
			F1: porcentaje(r.Fases.F1, r.TotalTramites),
			F2: porcentaje(r.Fases.F2, r.TotalTramites),
			F3: porcentaje(r.Fases.F3, r.TotalTramites),
			F4: porcentaje(r.Fases.F4, r.TotalTramites),
			F5: porcentaje(r.Fases.F5, r.TotalTramites),
			F6: porcentaje(r.Fases.F6, r.TotalTramites),
		}
		resumenes = append(resumenes, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating dependencia summary: %w", err)
	}

	return resumenes, nil
}

// faseColumnNames maps the 1-based phase number to its column, for the listing
// filter.
var faseColumnNames = map[int]string{
	1: "fase1_tramites_intervenidos",
	2: "fase2_modelado",
	3: "fase3_reingenieria",
	4: "fase4_digitalizacion",
	5: "fase5_implementacion",
	6: "fase6_liberacion",
}

func (s *PostgresStore) ListTramites(ctx context.Context, filter models.TramiteFilter) (*models.TramitePage, error) {
	var conditions []string
	var args []interface{}

	conditions = append(conditions, fmt.Sprintf("t.anio = $%d", len(args)+1))
	args = append(args, filter.Anio)

	if dep := strings.TrimSpace(filter.Dependencia); dep != "" {
		conditions = append(conditions, fmt.Sprintf("d.nombre ILIKE $%d", len(args)+1))
		args = append(args, "%"+dep+"%")
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		conditions = append(conditions, fmt.Sprintf("t.nombre ILIKE $%d", len(args)+1))
		args = append(args, "%"+search+"%")
	}
	if col, ok := faseColumnNames[filter.Fase]; ok {
		conditions = append(conditions, fmt.Sprintf("t.%s = true", col))
	}

	where := strings.Join(conditions, " AND ")

	countQuery := fmt.Sprintf(`
	SELECT COUNT(*)
	FROM tramites t
	INNER JOIN dependencias d ON t.dependencia_id = d.id
	WHERE %s;`, where)

	var total int
	if err := s.dbpool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("error counting tramites: %w", err)
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	limit := filter.Limit
	if limit < 1 {
		limit = 50
	}

	listQuery := fmt.Sprintf(`
	SELECT
		t.id,
		d.nombre,
		t.nombre,
		t.nivel_digitalizacion,
		t.fase1_tramites_intervenidos,
		t.fase2_modelado,
		t.fase3_reingenieria,
		t.fase4_digitalizacion,
		t.fase5_implementacion,
		t.fase6_liberacion,
		t.updated_at
	FROM tramites t
	INNER JOIN dependencias d ON t.dependencia_id = d.id
	WHERE %s
	ORDER BY t.nivel_digitalizacion DESC, t.nombre
	LIMIT $%d OFFSET $%d;`, where, len(args)+1, len(args)+2)
	args = append(args, limit, (page-1)*limit)

	rows, err := s.dbpool.Query(ctx, listQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("error listing tramites: %w", err)
	}
	defer rows.Close()

	var tramites []models.TramiteRow
	for rows.Next() {
		var t models.TramiteRow
		if err := rows.Scan(
			&t.ID, &t.Dependencia, &t.Tramite, &t.NivelDigitalizacion,
			&t.Fase1TramitesIntervenidos, &t.Fase2Modelado, &t.Fase3Reingenieria,
			&t.Fase4Digitalizacion, &t.Fase5Implementacion, &t.Fase6Liberacion,
			&t.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("error scanning tramite: %w", err)
		}
		tramites = append(tramites, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tramites: %w", err)
	}

	totalPages := (total + limit - 1) / limit
	return &models.TramitePage{
		Data: tramites,
		Pagination: models.Pagination{
			Page:       page,
			Limit:      limit,
			Total:      total,
			TotalPages: totalPages,
		},
	}, nil
}

func (s *PostgresStore) ExportTramites(ctx context.Context, anio int) ([]models.TramiteRow, error) {
	query := `
	SELECT
		t.id,
		d.nombre,
		t.nombre,
		t.nivel_digitalizacion,
		t.fase1_tramites_intervenidos,
		t.fase2_modelado,
		t.fase3_reingenieria,
		t.fase4_digitalizacion,
		t.fase5_implementacion,
		t.fase6_liberacion,
		t.updated_at
	FROM tramites t
	INNER JOIN dependencias d ON t.dependencia_id = d.id
	WHERE t.anio = $1
	ORDER BY d.nombre, t.nombre;`

	rows, err := s.dbpool.Query(ctx, query, anio)
	if err != nil {
		return nil, fmt.Errorf("error querying tramites for export: %w", err)
	}
	defer rows.Close()

	var tramites []models.TramiteRow
	for rows.Next() {
		var t models.TramiteRow
		if err := rows.Scan(
			&t.ID, &t.Dependencia, &t.Tramite, &t.NivelDigitalizacion,
			&t.Fase1TramitesIntervenidos, &t.Fase2Modelado, &t.Fase3Reingenieria,
			&t.Fase4Digitalizacion, &t.Fase5Implementacion, &t.Fase6Liberacion,
			&t.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("error scanning tramite for export: %w", err)
		}
		tramites = append(tramites, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tramites for export: %w", err)
	}

	return tramites, nil
}

func (s *PostgresStore) ListCargaLogs(ctx context.Context, limit int) ([]models.CargaLog, error) {
	if limit < 1 {
		limit = 20
	}

	query := `
	SELECT id, filename, rows_read, rows_inserted, rows_invalid, COALESCE(errors, '[]'::jsonb), COALESCE(checksum, ''), created_at
	FROM carga_logs
	ORDER BY created_at DESC
	LIMIT $1;`

	rows, err := s.dbpool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("error querying carga logs: %w", err)
	}
	defer rows.Close()

	var logs []models.CargaLog
	for rows.Next() {
		var l models.CargaLog
		var errorsJSON []byte
		if err := rows.Scan(&l.ID, &l.Filename, &l.RowsRead, &l.RowsInserted, &l.RowsInvalid, &errorsJSON, &l.Checksum, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("error scanning carga log: %w", err)
		}
		if err := json.Unmarshal(errorsJSON, &l.Errors); err != nil {
			return nil, fmt.Errorf("error decoding carga log errors: %w", err)
		}
		logs = append(logs, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating carga logs: %w", err)
	}

	return logs, nil
}

// ListAnios returns the distinct years with imported trámites, ascending.
func (s *PostgresStore) ListAnios(ctx context.Context) ([]int, error) {
	rows, err := s.dbpool.Query(ctx, `SELECT DISTINCT anio FROM tramites ORDER BY anio;`)
	if err != nil {
		return nil, fmt.Errorf("error querying anios: %w", err)
	}
	defer rows.Close()

	var anios []int
	for rows.Next() {
		var anio int
		if err := rows.Scan(&anio); err != nil {
			return nil, fmt.Errorf("error scanning anio: %w", err)
		}
		anios = append(anios, anio)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating anios: %w", err)
	}

	return anios, nil
}

const metasClave = "metas_por_anio"

// GetMetasPorAnio returns the stored yearly goals, or nil when none have been
// configured yet.
func (s *PostgresStore) GetMetasPorAnio(ctx context.Context) (models.MetasPorAnio, error) {
	var valor []byte
	err := s.dbpool.QueryRow(ctx,
		`SELECT valor FROM configuracion WHERE clave = $1;`, metasClave,
	).Scan(&valor)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("error querying metas: %w", err)
	}

	var metas models.MetasPorAnio
	if err := json.Unmarshal(valor, &metas); err != nil {
		return nil, fmt.Errorf("error decoding metas: %w", err)
	}
	return metas, nil
}

func (s *PostgresStore) UpdateMetasPorAnio(ctx context.Context, metas models.MetasPorAnio) error {
	valor, err := json.Marshal(metas)
	if err != nil {
		return fmt.Errorf("error serializing metas: %w", err)
	}

	query := `
	INSERT INTO configuracion (clave, valor, descripcion)
	VALUES ($1, $2, 'Metas de simplificación por año')
	ON CONFLICT (clave) DO UPDATE SET valor = EXCLUDED.valor, updated_at = CURRENT_TIMESTAMP;`

	if _, err := s.dbpool.Exec(ctx, query, metasClave, valor); err != nil {
		return fmt.Errorf("error updating metas: %w", err)
	}
	return nil
}

func porcentaje(parte, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(parte) * 100 / float64(total)
}
