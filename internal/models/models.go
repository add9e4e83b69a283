package models

import "time"

// TramiteData is a validated, normalized CSV row ready for upsert.
type TramiteData struct {
	Dependencia               string  `json:"dependencia"`
	Tramite                   string  `json:"tramite"`
	NivelDigitalizacion       float64 `json:"nivel_digitalizacion"`
	Fase1TramitesIntervenidos bool    `json:"fase1_tramites_intervenidos"`
	Fase2Modelado             bool    `json:"fase2_modelado"`
	Fase3Reingenieria         bool    `json:"fase3_reingenieria"`
	Fase4Digitalizacion       bool    `json:"fase4_digitalizacion"`
	Fase5Implementacion       bool    `json:"fase5_implementacion"`
	Fase6Liberacion           bool    `json:"fase6_liberacion"`
	S                         int     `json:"s"`
	R                         int     `json:"r"`
}

// ValidationResult tags a raw row as valid or invalid. Data is only set when
// the row passed every rule.
type ValidationResult struct {
	Valid  bool
	Errors []string
	Data   *TramiteData
}

// RowError records every rule a single row violated, with its 1-based file
// row number (the header is row 1, so the first data row reports as 2).
type RowError struct {
	Row    int               `json:"row"`
	Errors []string          `json:"errors"`
	Data   map[string]string `json:"data,omitempty"`
}

// ImportResult is the terminal outcome of a committed import.
type ImportResult struct {
	RowsRead     int        `json:"rowsRead"`
	RowsInserted int        `json:"rowsInserted"`
	RowsUpdated  int        `json:"rowsUpdated"`
	RowsInvalid  int        `json:"rowsInvalid"`
	Errors       []RowError `json:"errors"`
	Anio         int        `json:"anio"`
}

// PreviewResult is the read-only diagnostic summary of a file, computed
// without touching the database.
type PreviewResult struct {
	TotalRows         int           `json:"totalRows"`
	ValidRows         int           `json:"validRows"`
	InvalidRows       int           `json:"invalidRows"`
	TotalDependencias int           `json:"totalDependencias"`
	MissingColumns    []string      `json:"missingColumns"`
	HasS              bool          `json:"hasS"`
	HasR              bool          `json:"hasR"`
	Rows              []TramiteData `json:"rows"`
	Errors            []RowError    `json:"errors"`
}

// CargaLog is one audit row per committed import.
type CargaLog struct {
	ID           int        `json:"id"`
	Filename     string     `json:"filename"`
	RowsRead     int        `json:"rows_read"`
	RowsInserted int        `json:"rows_inserted"`
	RowsInvalid  int        `json:"rows_invalid"`
	Errors       []RowError `json:"errors"`
	Checksum     string     `json:"checksum,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

type FaseResumen struct {
	Fase       string  `json:"fase"`
	Nombre     string  `json:"nombre"`
	Total      int     `json:"total"`
	Porcentaje float64 `json:"porcentaje"`
}

type ResumenGlobal struct {
	TotalTramites       int           `json:"total_tramites"`
	TotalDependencias   int           `json:"total_dependencias"`
	PromedioNivelGlobal float64       `json:"promedio_nivel_global"`
	Fases               []FaseResumen `json:"fases"`
}

type FaseConteo struct {
	F1 int `json:"f1"`
	F2 int `json:"f2"`
	F3 int `json:"f3"`
	F4 int `json:"f4"`
	F5 int `json:"f5"`
	F6 int `json:"f6"`
}

type FasePorcentaje struct {
	F1 float64 `json:"f1"`
	F2 float64 `json:"f2"`
	F3 float64 `json:"f3"`
	F4 float64 `json:"f4"`
	F5 float64 `json:"f5"`
	F6 float64 `json:"f6"`
}

type ResumenDependencia struct {
	DependenciaID int            `json:"dependencia_id"`
	Dependencia   string         `json:"dependencia"`
	TotalTramites int            `json:"total_tramites"`
	PromedioNivel float64        `json:"promedio_nivel"`
	Fases         FaseConteo     `json:"fases"`
	Porcentajes   FasePorcentaje `json:"porcentajes"`
}

// TramiteRow is one trámite as listed or exported.
type TramiteRow struct {
	ID                        int       `json:"id"`
	Dependencia               string    `json:"dependencia"`
	Tramite                   string    `json:"tramite"`
	NivelDigitalizacion       float64   `json:"nivel_digitalizacion"`
	Fase1TramitesIntervenidos bool      `json:"fase1_tramites_intervenidos"`
	Fase2Modelado             bool      `json:"fase2_modelado"`
	Fase3Reingenieria         bool      `json:"fase3_reingenieria"`
	Fase4Digitalizacion       bool      `json:"fase4_digitalizacion"`
	Fase5Implementacion       bool      `json:"fase5_implementacion"`
	Fase6Liberacion           bool      `json:"fase6_liberacion"`
	UpdatedAt                 time.Time `json:"updated_at"`
}

type TramiteFilter struct {
	Anio        int
	Dependencia string
	Search      string
	Fase        int
	Page        int
	Limit       int
}

type Pagination struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

type TramitePage struct {
	Data       []TramiteRow `json:"data"`
	Pagination Pagination   `json:"pagination"`
}

// Metas holds the yearly goals the dashboard measures progress against.
type Metas struct {
	Total int `json:"total"`
	E1    int `json:"e1"`
	E2    int `json:"e2"`
	E3    int `json:"e3"`
	E4    int `json:"e4"`
	E5    int `json:"e5"`
	E6    int `json:"e6"`
}

// MetasPorAnio maps a year (as string, matching the stored JSON document) to
// its goals.
type MetasPorAnio map[string]Metas

// AniosDisponibles lists the years the dashboard can show: years that have
// imported data, years that have configured goals, and their union.
type AniosDisponibles struct {
	AniosConDatos []int `json:"aniosConDatos"`
	AniosConMetas []int `json:"aniosConMetas"`
	TodosAnios    []int `json:"todosAnios"`
}

// EtapaAvance measures one phase count against its goal.
type EtapaAvance struct {
	Etapa      string  `json:"etapa"`
	Nombre     string  `json:"nombre"`
	Meta       int     `json:"meta"`
	Actual     int     `json:"actual"`
	Porcentaje float64 `json:"porcentaje"`
}

// AvanceMetas is one year's progress against its goals.
type AvanceMetas struct {
	Anio            int           `json:"anio"`
	Metas           Metas         `json:"metas"`
	TotalTramites   int           `json:"total_tramites"`
	PorcentajeTotal float64       `json:"porcentaje_total"`
	Etapas          []EtapaAvance `json:"etapas"`
}
