package ingestion

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/hidalgo-digital/panel-secretario/internal/config"
	"github.com/hidalgo-digital/panel-secretario/internal/database"
	"github.com/hidalgo-digital/panel-secretario/internal/models"
)

const csvHeader = "dependencia,tramite,nivel_digitalizacion,fase1_tramites_intervenidos,fase2_modelado,fase3_reingenieria,fase4_digitalizacion,fase5_implementacion,fase6_liberacion,s,r"

// MockStore is a mock implementation of the database.Store interface.
type MockStore struct {
	mock.Mock
}

func (m *MockStore) Begin(ctx context.Context) (database.ImportTx, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(database.ImportTx), args.Error(1)
}

func (m *MockStore) GetResumenGlobal(ctx context.Context, anio int) (*models.ResumenGlobal, error) {
	args := m.Called(ctx, anio)
	return args.Get(0).(*models.ResumenGlobal), args.Error(1)
}

func (m *MockStore) GetResumenDependencias(ctx context.Context, anio int) ([]models.ResumenDependencia, error) {
	args := m.Called(ctx, anio)
	return args.Get(0).([]models.ResumenDependencia), args.Error(1)
}

func (m *MockStore) ListTramites(ctx context.Context, filter models.TramiteFilter) (*models.TramitePage, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).(*models.TramitePage), args.Error(1)
}

func (m *MockStore) ExportTramites(ctx context.Context, anio int) ([]models.TramiteRow, error) {
	args := m.Called(ctx, anio)
	return args.Get(0).([]models.TramiteRow), args.Error(1)
}

func (m *MockStore) ListCargaLogs(ctx context.Context, limit int) ([]models.CargaLog, error) {
	args := m.Called(ctx, limit)
	return args.Get(0).([]models.CargaLog), args.Error(1)
}

func (m *MockStore) ListAnios(ctx context.Context) ([]int, error) {
	args := m.Called(ctx)
	return args.Get(0).([]int), args.Error(1)
}

func (m *MockStore) GetMetasPorAnio(ctx context.Context) (models.MetasPorAnio, error) {
	args := m.Called(ctx)
	return args.Get(0).(models.MetasPorAnio), args.Error(1)
}

func (m *MockStore) UpdateMetasPorAnio(ctx context.Context, metas models.MetasPorAnio) error {
	args := m.Called(ctx, metas)
	return args.Error(0)
}

// MockImportTx is a mock implementation of the database.ImportTx interface.
type MockImportTx struct {
	mock.Mock
}

func (m *MockImportTx) LockAnio(ctx context.Context, anio int) error {
	args := m.Called(ctx, anio)
	return args.Error(0)
}

func (m *MockImportTx) DeleteTramitesAnio(ctx context.Context, anio int) (int64, error) {
	args := m.Called(ctx, anio)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockImportTx) UpsertDependencia(ctx context.Context, nombre string) (int, error) {
	args := m.Called(ctx, nombre)
	return args.Int(0), args.Error(1)
}

func (m *MockImportTx) UpsertTramite(ctx context.Context, data *models.TramiteData, dependenciaID, anio int) (bool, error) {
	args := m.Called(ctx, data, dependenciaID, anio)
	return args.Bool(0), args.Error(1)
}

func (m *MockImportTx) InsertCargaLog(ctx context.Context, log *models.CargaLog) error {
	args := m.Called(ctx, log)
	return args.Error(0)
}

func (m *MockImportTx) Commit(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockImportTx) Rollback(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func testConfig() *config.Config {
	return &config.Config{
		DefaultAnio:       2025,
		APIErrorLimit:     20,
		AuditErrorLimit:   100,
		PreviewRowLimit:   50,
		PreviewErrorLimit: 20,
	}
}

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func writeTestCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "carga.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestProcessCSV_SingleInsert(t *testing.T) {
	content := csvHeader + "\n" +
		"Secretaría de Salud,Registro Civil,3,1,1,0,0,0,0,2,1\n"
	path := writeTestCSV(t, content)

	store := new(MockStore)
	tx := new(MockImportTx)

	store.On("Begin", mock.Anything).Return(tx, nil)
	tx.On("LockAnio", mock.Anything, 2025).Return(nil)
	tx.On("DeleteTramitesAnio", mock.Anything, 2025).Return(int64(0), nil)
	tx.On("UpsertDependencia", mock.Anything, "Secretaría de Salud").Return(7, nil)
	tx.On("UpsertTramite", mock.Anything, mock.MatchedBy(func(data *models.TramiteData) bool {
		return data.Tramite == "Registro Civil" &&
			data.NivelDigitalizacion == 3.0 &&
			data.Fase1TramitesIntervenidos && data.Fase2Modelado &&
			!data.Fase3Reingenieria && !data.Fase4Digitalizacion &&
			!data.Fase5Implementacion && !data.Fase6Liberacion &&
			data.S == 2 && data.R == 1
	}), 7, 2025).Return(false, nil)
	tx.On("InsertCargaLog", mock.Anything, mock.MatchedBy(func(log *models.CargaLog) bool {
		return log.Filename == "datos.csv (2025)" &&
			log.RowsRead == 1 && log.RowsInserted == 1 && log.RowsInvalid == 0
	})).Return(nil)
	tx.On("Commit", mock.Anything).Return(nil)
	tx.On("Rollback", mock.Anything).Return(nil).Maybe()

	svc := NewService(store, testConfig(), testLogger())
	results, err := svc.ProcessCSV(context.Background(), path, "datos.csv", 2025)

	require.NoError(t, err)
	assert.Equal(t, 1, results.RowsRead)
	assert.Equal(t, 1, results.RowsInserted)
	assert.Equal(t, 0, results.RowsUpdated)
	assert.Equal(t, 0, results.RowsInvalid)
	assert.Empty(t, results.Errors)
	assert.Equal(t, 2025, results.Anio)
	tx.AssertExpectations(t)
	store.AssertExpectations(t)
}

func TestProcessCSV_ReimportReportsUpdates(t *testing.T) {
	content := csvHeader + "\n" +
		"Secretaría de Salud,Registro Civil,3,1,1,0,0,0,0,2,1\n" +
		"Secretaría de Salud,Acta de Nacimiento,5,1,1,1,1,0,0,0,0\n"
	path := writeTestCSV(t, content)

	store := new(MockStore)
	tx := new(MockImportTx)

	store.On("Begin", mock.Anything).Return(tx, nil)
	tx.On("LockAnio", mock.Anything, 2025).Return(nil)
	tx.On("DeleteTramitesAnio", mock.Anything, 2025).Return(int64(2), nil)
	tx.On("UpsertDependencia", mock.Anything, "Secretaría de Salud").Return(7, nil).Twice()
	tx.On("UpsertTramite", mock.Anything, mock.Anything, 7, 2025).Return(true, nil).Twice()
	tx.On("InsertCargaLog", mock.Anything, mock.Anything).Return(nil)
	tx.On("Commit", mock.Anything).Return(nil)
	tx.On("Rollback", mock.Anything).Return(nil).Maybe()

	svc := NewService(store, testConfig(), testLogger())
	results, err := svc.ProcessCSV(context.Background(), path, "datos.csv", 2025)

	require.NoError(t, err)
	assert.Equal(t, 2, results.RowsRead)
	assert.Equal(t, 0, results.RowsInserted)
	assert.Equal(t, 2, results.RowsUpdated)
	tx.AssertExpectations(t)
}

func TestProcessCSV_InvalidRowNumbering(t *testing.T) {
	// First data row is invalid; it must be reported as row 2 (the header is
	// row 1) and must never reach the database.
	content := csvHeader + "\n" +
		",Registro Civil,3,1,0,0,0,0,0,0,0\n" +
		"Secretaría de Salud,Acta de Nacimiento,2,1,0,0,0,0,0,0,0\n" +
		"Secretaría de Salud,Cartilla,1,1,0,0,0,0,0,0,0\n"
	path := writeTestCSV(t, content)

	store := new(MockStore)
	tx := new(MockImportTx)

	store.On("Begin", mock.Anything).Return(tx, nil)
	tx.On("LockAnio", mock.Anything, 2025).Return(nil)
	tx.On("DeleteTramitesAnio", mock.Anything, 2025).Return(int64(0), nil)
	tx.On("UpsertDependencia", mock.Anything, "Secretaría de Salud").Return(7, nil).Twice()
	tx.On("UpsertTramite", mock.Anything, mock.Anything, 7, 2025).Return(false, nil).Twice()
	tx.On("InsertCargaLog", mock.Anything, mock.Anything).Return(nil)
	tx.On("Commit", mock.Anything).Return(nil)
	tx.On("Rollback", mock.Anything).Return(nil).Maybe()

	svc := NewService(store, testConfig(), testLogger())
	results, err := svc.ProcessCSV(context.Background(), path, "datos.csv", 2025)

	require.NoError(t, err)
	assert.Equal(t, 3, results.RowsRead)
	assert.Equal(t, 2, results.RowsInserted)
	assert.Equal(t, 1, results.RowsInvalid)
	require.Len(t, results.Errors, 1)
	assert.Equal(t, 2, results.Errors[0].Row)
	assert.Contains(t, results.Errors[0].Errors, "Dependencia vacía")
	tx.AssertExpectations(t)
}

func TestProcessCSV_RowPersistenceErrorDoesNotAbort(t *testing.T) {
	content := csvHeader + "\n" +
		"Secretaría A,Tramite Uno,1,1,0,0,0,0,0,0,0\n" +
		"Secretaría B,Tramite Dos,2,1,0,0,0,0,0,0,0\n"
	path := writeTestCSV(t, content)

	store := new(MockStore)
	tx := new(MockImportTx)

	store.On("Begin", mock.Anything).Return(tx, nil)
	tx.On("LockAnio", mock.Anything, 2025).Return(nil)
	tx.On("DeleteTramitesAnio", mock.Anything, 2025).Return(int64(0), nil)
	tx.On("UpsertDependencia", mock.Anything, "Secretaría A").Return(0, errors.New("duplicate key value violates unique constraint"))
	tx.On("UpsertDependencia", mock.Anything, "Secretaría B").Return(8, nil)
	tx.On("UpsertTramite", mock.Anything, mock.Anything, 8, 2025).Return(false, nil)
	tx.On("InsertCargaLog", mock.Anything, mock.Anything).Return(nil)
	tx.On("Commit", mock.Anything).Return(nil)
	tx.On("Rollback", mock.Anything).Return(nil).Maybe()

	svc := NewService(store, testConfig(), testLogger())
	results, err := svc.ProcessCSV(context.Background(), path, "datos.csv", 2025)

	require.NoError(t, err)
	assert.Equal(t, 1, results.RowsInserted)
	assert.Equal(t, 1, results.RowsInvalid)
	require.Len(t, results.Errors, 1)
	assert.Equal(t, 2, results.Errors[0].Row)
	assert.Contains(t, results.Errors[0].Errors[0], "duplicate key")
	tx.AssertExpectations(t)
}

func TestProcessCSV_AuditInsertFailureRollsBack(t *testing.T) {
	content := csvHeader + "\n" +
		"Secretaría A,Tramite Uno,1,1,0,0,0,0,0,0,0\n"
	path := writeTestCSV(t, content)

	store := new(MockStore)
	tx := new(MockImportTx)

	store.On("Begin", mock.Anything).Return(tx, nil)
	tx.On("LockAnio", mock.Anything, 2025).Return(nil)
	tx.On("DeleteTramitesAnio", mock.Anything, 2025).Return(int64(0), nil)
	tx.On("UpsertDependencia", mock.Anything, "Secretaría A").Return(1, nil)
	tx.On("UpsertTramite", mock.Anything, mock.Anything, 1, 2025).Return(false, nil)
	tx.On("InsertCargaLog", mock.Anything, mock.Anything).Return(errors.New("disk full"))
	tx.On("Rollback", mock.Anything).Return(nil)

	svc := NewService(store, testConfig(), testLogger())
	results, err := svc.ProcessCSV(context.Background(), path, "datos.csv", 2025)

	require.Error(t, err)
	assert.Nil(t, results)
	tx.AssertNotCalled(t, "Commit", mock.Anything)
	tx.AssertCalled(t, "Rollback", mock.Anything)
}

func TestProcessCSV_DeleteFailureRollsBack(t *testing.T) {
	content := csvHeader + "\n" +
		"Secretaría A,Tramite Uno,1,1,0,0,0,0,0,0,0\n"
	path := writeTestCSV(t, content)

	store := new(MockStore)
	tx := new(MockImportTx)

	store.On("Begin", mock.Anything).Return(tx, nil)
	tx.On("LockAnio", mock.Anything, 2025).Return(nil)
	tx.On("DeleteTramitesAnio", mock.Anything, 2025).Return(int64(0), errors.New("connection reset"))
	tx.On("Rollback", mock.Anything).Return(nil)

	svc := NewService(store, testConfig(), testLogger())
	_, err := svc.ProcessCSV(context.Background(), path, "datos.csv", 2025)

	require.Error(t, err)
	tx.AssertNotCalled(t, "UpsertDependencia", mock.Anything, mock.Anything)
	tx.AssertNotCalled(t, "Commit", mock.Anything)
}

func TestProcessCSV_StructuralParseErrorTouchesNothing(t *testing.T) {
	path := writeTestCSV(t, "")

	store := new(MockStore)
	svc := NewService(store, testConfig(), testLogger())

	_, err := svc.ProcessCSV(context.Background(), path, "vacio.csv", 2025)

	require.Error(t, err)
	store.AssertNotCalled(t, "Begin", mock.Anything)
}

func TestProcessCSV_AuditErrorListCapped(t *testing.T) {
	cfg := testConfig()
	cfg.AuditErrorLimit = 3

	var content strings.Builder
	content.WriteString(csvHeader + "\n")
	for i := 0; i < 10; i++ {
		content.WriteString(",Sin Dependencia,1,1,0,0,0,0,0,0,0\n")
	}
	path := writeTestCSV(t, content.String())

	store := new(MockStore)
	tx := new(MockImportTx)

	store.On("Begin", mock.Anything).Return(tx, nil)
	tx.On("LockAnio", mock.Anything, 2025).Return(nil)
	tx.On("DeleteTramitesAnio", mock.Anything, 2025).Return(int64(0), nil)
	tx.On("InsertCargaLog", mock.Anything, mock.MatchedBy(func(log *models.CargaLog) bool {
		return len(log.Errors) == 3 && log.RowsInvalid == 10
	})).Return(nil)
	tx.On("Commit", mock.Anything).Return(nil)
	tx.On("Rollback", mock.Anything).Return(nil).Maybe()

	svc := NewService(store, cfg, testLogger())
	results, err := svc.ProcessCSV(context.Background(), path, "datos.csv", 2025)

	require.NoError(t, err)
	// The full error list still comes back to the caller; only the audit
	// record is truncated.
	assert.Len(t, results.Errors, 10)
	tx.AssertExpectations(t)
}
