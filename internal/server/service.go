package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/hidalgo-digital/panel-secretario/internal/config"
	"github.com/hidalgo-digital/panel-secretario/internal/database"
	"github.com/hidalgo-digital/panel-secretario/internal/models"
)

// Importer is the ingestion surface the HTTP layer consumes.
type Importer interface {
	ProcessCSV(ctx context.Context, filePath, filename string, anio int) (*models.ImportResult, error)
	Preview(r io.Reader) (*models.PreviewResult, error)
}

type Handlers struct {
	store    database.Store
	importer Importer
	cfg      *config.Config
	log      *logrus.Logger
}

func NewHandlers(store database.Store, importer Importer, cfg *config.Config, log *logrus.Logger) *Handlers {
	return &Handlers{store: store, importer: importer, cfg: cfg, log: log}
}

type envelope struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, envelope{Success: false, Error: message})
}

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, envelope{
		Success: true,
		Message: "API Panel Secretario",
		Data:    map[string]string{"version": "1.0.0"},
	})
}

// UploadCSV receives a multipart CSV upload and runs the transactional
// import for the requested year. A 200 means the import transaction
// committed, even when some rows were invalid; the per-row errors ride along
// in the response, capped at the configured API limit.
func (h *Handlers) UploadCSV(w http.ResponseWriter, r *http.Request) {
	path, filename, ok := h.receiveUpload(w, r)
	if !ok {
		return
	}
	defer os.Remove(path)

	anio, err := h.anioParam(r.FormValue("anio"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.log.WithFields(logrus.Fields{"filename": filename, "anio": anio}).Info("processing CSV upload")

	results, err := h.importer.ProcessCSV(r.Context(), path, filename, anio)
	if err != nil {
		h.log.WithFields(logrus.Fields{"filename": filename, "error": err}).Error("CSV import failed")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	apiErrors := results.Errors
	if len(apiErrors) > h.cfg.APIErrorLimit {
		apiErrors = apiErrors[:h.cfg.APIErrorLimit]
	}

	writeJSON(w, http.StatusOK, envelope{
		Success: true,
		Message: "CSV procesado correctamente",
		Data: map[string]interface{}{
			"filename":     filename,
			"anio":         results.Anio,
			"rowsRead":     results.RowsRead,
			"rowsInserted": results.RowsInserted,
			"rowsUpdated":  results.RowsUpdated,
			"rowsInvalid":  results.RowsInvalid,
			"errors":       apiErrors,
		},
	})
}

// PreviewCSV validates an upload without writing anything.
func (h *Handlers) PreviewCSV(w http.ResponseWriter, r *http.Request) {
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, `No se recibió ningún archivo. Use el campo "file"`)
		return
	}
	defer file.Close()

	if err := checkExtension(header.Filename); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.importer.Preview(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, envelope{Success: true, Data: result})
}

func (h *Handlers) GetResumen(w http.ResponseWriter, r *http.Request) {
	anio, err := h.anioParam(r.URL.Query().Get("anio"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	resumen, err := h.store.GetResumenGlobal(r.Context(), anio)
	if err != nil {
		h.log.WithField("error", err).Error("failed to query global summary")
		writeError(w, http.StatusInternalServerError, "Error obteniendo resumen global")
		return
	}

	writeJSON(w, http.StatusOK, envelope{Success: true, Data: resumen})
}

func (h *Handlers) GetDependencias(w http.ResponseWriter, r *http.Request) {
	anio, err := h.anioParam(r.URL.Query().Get("anio"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	resumenes, err := h.store.GetResumenDependencias(r.Context(), anio)
	if err != nil {
		h.log.WithField("error", err).Error("failed to query dependencia summary")
		writeError(w, http.StatusInternalServerError, "Error obteniendo resumen de dependencias")
		return
	}

	writeJSON(w, http.StatusOK, envelope{Success: true, Data: resumenes})
}

func (h *Handlers) GetTramites(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	anio, err := h.anioParam(q.Get("anio"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	filter := models.TramiteFilter{
		Anio:        anio,
		Dependencia: q.Get("dependencia"),
		Search:      q.Get("search"),
	}
	filter.Fase, _ = strconv.Atoi(q.Get("fase"))
	filter.Page, _ = strconv.Atoi(q.Get("page"))
	filter.Limit, _ = strconv.Atoi(q.Get("limit"))

	page, err := h.store.ListTramites(r.Context(), filter)
	if err != nil {
		h.log.WithField("error", err).Error("failed to list tramites")
		writeError(w, http.StatusInternalServerError, "Error obteniendo trámites")
		return
	}

	writeJSON(w, http.StatusOK, envelope{Success: true, Data: page})
}

func (h *Handlers) GetCargaLogs(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	logs, err := h.store.ListCargaLogs(r.Context(), limit)
	if err != nil {
		h.log.WithField("error", err).Error("failed to list carga logs")
		writeError(w, http.StatusInternalServerError, "Error obteniendo historial de cargas")
		return
	}

	writeJSON(w, http.StatusOK, envelope{Success: true, Data: logs})
}

func (h *Handlers) GetMetas(w http.ResponseWriter, r *http.Request) {
	metas, err := h.store.GetMetasPorAnio(r.Context())
	if err != nil {
		h.log.WithField("error", err).Error("failed to query metas")
		writeError(w, http.StatusInternalServerError, "Error obteniendo metas")
		return
	}
	if metas == nil {
		metas = h.defaultMetas()
	}

	writeJSON(w, http.StatusOK, envelope{Success: true, Data: metas})
}

// GetAnios lists the years with imported data, the years with configured
// goals, and their sorted union, so the dashboard can offer every year that
// has anything to show.
func (h *Handlers) GetAnios(w http.ResponseWriter, r *http.Request) {
	conDatos, err := h.store.ListAnios(r.Context())
	if err != nil {
		h.log.WithField("error", err).Error("failed to list anios")
		writeError(w, http.StatusInternalServerError, "Error obteniendo años disponibles")
		return
	}

	metas, err := h.store.GetMetasPorAnio(r.Context())
	if err != nil {
		h.log.WithField("error", err).Error("failed to query metas")
		writeError(w, http.StatusInternalServerError, "Error obteniendo años disponibles")
		return
	}
	if metas == nil {
		metas = h.defaultMetas()
	}

	conMetas := make([]int, 0, len(metas))
	for clave := range metas {
		if anio, err := strconv.Atoi(clave); err == nil {
			conMetas = append(conMetas, anio)
		}
	}
	sort.Ints(conMetas)

	seen := make(map[int]bool, len(conDatos))
	todos := make([]int, 0, len(conDatos)+len(conMetas))
	for _, anio := range conDatos {
		seen[anio] = true
		todos = append(todos, anio)
	}
	for _, anio := range conMetas {
		if !seen[anio] {
			todos = append(todos, anio)
		}
	}
	sort.Ints(todos)

	if conDatos == nil {
		conDatos = []int{}
	}

	writeJSON(w, http.StatusOK, envelope{Success: true, Data: models.AniosDisponibles{
		AniosConDatos: conDatos,
		AniosConMetas: conMetas,
		TodosAnios:    todos,
	}})
}

// GetAvanceMetas reports the year's phase counts against its goals. A
// percentage is capped at 100 so overshooting a goal reads as complete, and a
// zero goal reports zero progress.
func (h *Handlers) GetAvanceMetas(w http.ResponseWriter, r *http.Request) {
	anio, err := h.anioParam(r.URL.Query().Get("anio"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	resumen, err := h.store.GetResumenGlobal(r.Context(), anio)
	if err != nil {
		h.log.WithField("error", err).Error("failed to query global summary")
		writeError(w, http.StatusInternalServerError, "Error obteniendo avance de metas")
		return
	}

	metasPorAnio, err := h.store.GetMetasPorAnio(r.Context())
	if err != nil {
		h.log.WithField("error", err).Error("failed to query metas")
		writeError(w, http.StatusInternalServerError, "Error obteniendo avance de metas")
		return
	}
	if metasPorAnio == nil {
		metasPorAnio = h.defaultMetas()
	}
	metas := metasPorAnio[strconv.Itoa(anio)]

	objetivos := []int{metas.E1, metas.E2, metas.E3, metas.E4, metas.E5, metas.E6}
	etapas := make([]models.EtapaAvance, 0, len(objetivos))
	for i, fase := range resumen.Fases {
		if i >= len(objetivos) {
			break
		}
		etapas = append(etapas, models.EtapaAvance{
			Etapa:      fmt.Sprintf("E%d", i+1),
			Nombre:     fase.Nombre,
			Meta:       objetivos[i],
			Actual:     fase.Total,
			Porcentaje: avancePct(fase.Total, objetivos[i]),
		})
	}

	writeJSON(w, http.StatusOK, envelope{Success: true, Data: models.AvanceMetas{
		Anio:            anio,
		Metas:           metas,
		TotalTramites:   resumen.TotalTramites,
		PorcentajeTotal: avancePct(resumen.TotalTramites, metas.Total),
		Etapas:          etapas,
	}})
}

func avancePct(actual, meta int) float64 {
	if meta == 0 {
		return 0
	}
	pct := float64(actual) / float64(meta) * 100
	if pct > 100 {
		return 100
	}
	return pct
}

func (h *Handlers) UpdateMetas(w http.ResponseWriter, r *http.Request) {
	var metas models.MetasPorAnio
	if err := json.NewDecoder(r.Body).Decode(&metas); err != nil {
		writeError(w, http.StatusBadRequest, "Cuerpo de metas inválido")
		return
	}

	if err := h.store.UpdateMetasPorAnio(r.Context(), metas); err != nil {
		h.log.WithField("error", err).Error("failed to update metas")
		writeError(w, http.StatusInternalServerError, "Error actualizando metas")
		return
	}

	writeJSON(w, http.StatusOK, envelope{Success: true, Data: metas})
}

// ExportCSV streams the year's trámites in the canonical upload format:
// string fields double-quoted, phases rendered as 0/1, so a round trip
// through export and import is lossless.
func (h *Handlers) ExportCSV(w http.ResponseWriter, r *http.Request) {
	anio, err := h.anioParam(r.URL.Query().Get("anio"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	tramites, err := h.store.ExportTramites(r.Context(), anio)
	if err != nil {
		h.log.WithField("error", err).Error("failed to export tramites")
		writeError(w, http.StatusInternalServerError, "Error exportando a CSV")
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="tramites_%d.csv"`, anio))
	_, _ = io.WriteString(w, RenderCSV(tramites))
}

func (h *Handlers) defaultMetas() models.MetasPorAnio {
	return models.MetasPorAnio{
		strconv.Itoa(h.cfg.DefaultAnio): {
			Total: h.cfg.GoalTotal,
			E1:    h.cfg.GoalEtapas[0],
			E2:    h.cfg.GoalEtapas[1],
			E3:    h.cfg.GoalEtapas[2],
			E4:    h.cfg.GoalEtapas[3],
			E5:    h.cfg.GoalEtapas[4],
			E6:    h.cfg.GoalEtapas[5],
		},
	}
}

// anioParam resolves the target year from a request value, defaulting to the
// configured year.
func (h *Handlers) anioParam(value string) (int, error) {
	if strings.TrimSpace(value) == "" {
		return h.cfg.DefaultAnio, nil
	}

	anio, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || anio < 2000 || anio > 2100 {
		return 0, fmt.Errorf("año inválido: %s", value)
	}
	return anio, nil
}

// receiveUpload copies the multipart "file" field to a temp file and returns
// its path. The caller removes the file.
func (h *Handlers) receiveUpload(w http.ResponseWriter, r *http.Request) (path, filename string, ok bool) {
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, `No se recibió ningún archivo. Use el campo "file"`)
		return "", "", false
	}
	defer file.Close()

	if err := checkExtension(header.Filename); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return "", "", false
	}

	tmp, err := os.CreateTemp("", "carga-*.csv")
	if err != nil {
		h.log.WithField("error", err).Error("failed to create temp file for upload")
		writeError(w, http.StatusInternalServerError, "Error guardando archivo temporal")
		return "", "", false
	}

	if _, err := io.Copy(tmp, file); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		h.log.WithField("error", err).Error("failed to buffer upload")
		writeError(w, http.StatusInternalServerError, "Error guardando archivo temporal")
		return "", "", false
	}
	tmp.Close()

	return tmp.Name(), header.Filename, true
}

func checkExtension(filename string) error {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv", ".txt":
		return nil
	default:
		return fmt.Errorf("Tipo de archivo no permitido. Solo archivos CSV")
	}
}
