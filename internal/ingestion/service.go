package ingestion

import (
	"context"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/hidalgo-digital/panel-secretario/internal/config"
	"github.com/hidalgo-digital/panel-secretario/internal/database"
	"github.com/hidalgo-digital/panel-secretario/internal/models"
	"github.com/hidalgo-digital/panel-secretario/internal/parser"
	"github.com/hidalgo-digital/panel-secretario/pkg/checksum"
)

// Service runs CSV imports and previews. One import is synchronous end to
// end: rows are processed strictly in file order inside a single transaction,
// which also fixes the deterministic row numbering in error reports.
type Service struct {
	store  database.Store
	log    *logrus.Logger
	strict *Validator
	loose  *Validator

	auditErrorLimit   int
	previewRowLimit   int
	previewErrorLimit int
}

func NewService(store database.Store, cfg *config.Config, log *logrus.Logger) *Service {
	return &Service{
		store:             store,
		log:               log,
		strict:            NewValidator(StrictBool{}, cfg.StrictPhaseOrder),
		loose:             NewValidator(LenientBool{}, cfg.StrictPhaseOrder),
		auditErrorLimit:   cfg.AuditErrorLimit,
		previewRowLimit:   cfg.PreviewRowLimit,
		previewErrorLimit: cfg.PreviewErrorLimit,
	}
}

// ProcessCSV imports one file for one year. All trámites for that year are
// deleted and recreated from the file (full replace, so rows omitted from a
// re-upload disappear), one audit record is written, and everything commits
// or rolls back as a unit. A structural parse failure or a transaction-level
// failure returns an error with nothing written; per-row failures only mark
// the row invalid.
func (s *Service) ProcessCSV(ctx context.Context, filePath, filename string, anio int) (*models.ImportResult, error) {
	doc, err := parser.ParseFile(filePath)
	if err != nil {
		s.log.WithFields(logrus.Fields{"filename": filename, "error": err}).Error("failed to parse CSV upload")
		return nil, err
	}

	results := &models.ImportResult{Anio: anio, Errors: []models.RowError{}}

	tx, err := s.store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	// No-op after a successful commit; releases everything on early returns.
	defer tx.Rollback(ctx)

	if err := tx.LockAnio(ctx, anio); err != nil {
		return nil, err
	}

	deleted, err := tx.DeleteTramitesAnio(ctx, anio)
	if err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{"anio": anio, "deleted": deleted}).Info("cleared existing tramites for year before import")

	for _, record := range doc.Records {
		results.RowsRead++

		validation := s.strict.ValidateRow(record.Fields)
		if !validation.Valid {
			results.RowsInvalid++
			results.Errors = append(results.Errors, models.RowError{
				Row:    record.Row,
				Errors: validation.Errors,
				Data:   record.Fields,
			})
			continue
		}

		if err := s.upsertRow(ctx, tx, validation.Data, anio, results); err != nil {
			// Row-level persistence failures are recovered and reported;
			// only errors escaping this loop abort the transaction.
			s.log.WithFields(logrus.Fields{"row": record.Row, "error": err}).Error("failed to persist row")
			results.RowsInvalid++
			results.Errors = append(results.Errors, models.RowError{
				Row:    record.Row,
				Errors: []string{err.Error()},
				Data:   record.Fields,
			})
		}
	}

	fileChecksum, err := checksum.GetFileChecksum(filePath)
	if err != nil {
		s.log.WithFields(logrus.Fields{"filename": filename, "error": err}).Warn("could not checksum upload")
		fileChecksum = ""
	}

	auditErrors := results.Errors
	if len(auditErrors) > s.auditErrorLimit {
		auditErrors = auditErrors[:s.auditErrorLimit]
	}
	if err := tx.InsertCargaLog(ctx, &models.CargaLog{
		Filename:     fmt.Sprintf("%s (%d)", filename, anio),
		RowsRead:     results.RowsRead,
		RowsInserted: results.RowsInserted + results.RowsUpdated,
		RowsInvalid:  results.RowsInvalid,
		Errors:       auditErrors,
		Checksum:     fileChecksum,
	}); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("error committing import for year %d: %w", anio, err)
	}

	s.log.WithFields(logrus.Fields{
		"filename":     filename,
		"anio":         anio,
		"rowsRead":     results.RowsRead,
		"rowsInserted": results.RowsInserted,
		"rowsUpdated":  results.RowsUpdated,
		"rowsInvalid":  results.RowsInvalid,
	}).Info("CSV import committed")

	return results, nil
}

func (s *Service) upsertRow(ctx context.Context, tx database.ImportTx, data *models.TramiteData, anio int, results *models.ImportResult) error {
	dependenciaID, err := tx.UpsertDependencia(ctx, data.Dependencia)
	if err != nil {
		return err
	}

	updated, err := tx.UpsertTramite(ctx, data, dependenciaID, anio)
	if err != nil {
		return err
	}

	if updated {
		results.RowsUpdated++
	} else {
		results.RowsInserted++
	}
	return nil
}

// Preview computes the diagnostic summary of an upload without touching the
// database: column presence, a bounded sample of valid rows, error samples
// and totals. Phase columns are interpreted leniently here; only committed
// writes get the strict 0/1 contract.
func (s *Service) Preview(r io.Reader) (*models.PreviewResult, error) {
	doc, err := parser.Parse(r)
	if err != nil {
		return nil, err
	}

	result := &models.PreviewResult{
		MissingColumns: parser.MissingColumns(doc.Headers),
		Rows:           []models.TramiteData{},
		Errors:         []models.RowError{},
	}
	for _, h := range doc.Headers {
		switch h {
		case "s":
			result.HasS = true
		case "r":
			result.HasR = true
		}
	}

	dependencias := make(map[string]struct{})
	for _, record := range doc.Records {
		result.TotalRows++

		validation := s.loose.ValidateRow(record.Fields)
		if !validation.Valid {
			result.InvalidRows++
			if len(result.Errors) < s.previewErrorLimit {
				result.Errors = append(result.Errors, models.RowError{
					Row:    record.Row,
					Errors: validation.Errors,
					Data:   record.Fields,
				})
			}
			continue
		}

		result.ValidRows++
		dependencias[validation.Data.Dependencia] = struct{}{}
		if len(result.Rows) < s.previewRowLimit {
			result.Rows = append(result.Rows, *validation.Data)
		}
	}
	result.TotalDependencias = len(dependencias)

	return result, nil
}
