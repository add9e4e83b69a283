package ingestion

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/hidalgo-digital/panel-secretario/internal/models"
)

// FaseColumns lists the six phase-completion columns in pipeline order.
var FaseColumns = []string{
	"fase1_tramites_intervenidos",
	"fase2_modelado",
	"fase3_reingenieria",
	"fase4_digitalizacion",
	"fase5_implementacion",
	"fase6_liberacion",
}

// BoolPolicy decides how a phase column is interpreted. Committed imports use
// the strict policy; the read-only preview uses the lenient one. The two are
// separate types so neither path can fall back to the other implicitly.
type BoolPolicy interface {
	Parse(value string) (bool, error)
}

// StrictBool accepts exactly "0" or "1".
type StrictBool struct{}

func (StrictBool) Parse(value string) (bool, error) {
	switch strings.TrimSpace(value) {
	case "0":
		return false, nil
	case "1":
		return true, nil
	default:
		return false, fmt.Errorf("debe ser 0 o 1")
	}
}

// LenientBool accepts the boolean-ish strings humans type into spreadsheets:
// true/false, 1/0, si/sí/no and empty (false).
type LenientBool struct{}

func (LenientBool) Parse(value string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "si", "sí":
		return true, nil
	case "0", "false", "no", "":
		return false, nil
	default:
		return false, fmt.Errorf("debe ser 0 o 1")
	}
}

// Validator applies every row rule independently and collects all violations.
type Validator struct {
	bools BoolPolicy

	// strictPhaseOrder additionally rejects rows whose phases are not
	// cumulative (a later phase marked while an earlier one is not). Off by
	// default: source data legitimately skips stages.
	strictPhaseOrder bool
}

func NewValidator(bools BoolPolicy, strictPhaseOrder bool) *Validator {
	return &Validator{bools: bools, strictPhaseOrder: strictPhaseOrder}
}

// ValidateRow checks one record keyed by normalized header. A row with any
// violation is invalid in full: none of its fields are applied and Data is nil.
func (v *Validator) ValidateRow(row map[string]string) models.ValidationResult {
	var errs []string

	dependencia := strings.TrimSpace(row["dependencia"])
	if dependencia == "" {
		errs = append(errs, "Dependencia vacía")
	}

	tramite := strings.TrimSpace(row["tramite"])
	if tramite == "" {
		errs = append(errs, "Trámite vacío")
	}

	nivelRaw := strings.TrimSpace(row["nivel_digitalizacion"])
	nivel, err := strconv.ParseFloat(nivelRaw, 64)
	if err != nil || nivel < 0 || nivel > 6 {
		errs = append(errs, fmt.Sprintf("Nivel de digitalización inválido: %s", row["nivel_digitalizacion"]))
	}

	var fases [6]bool
	for i, col := range FaseColumns {
		val, err := v.bools.Parse(row[col])
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s debe ser 0 o 1, recibido: %s", col, row[col]))
			continue
		}
		fases[i] = val
	}

	if v.strictPhaseOrder {
		for i := 1; i < len(fases); i++ {
			if fases[i] && !fases[i-1] {
				errs = append(errs, fmt.Sprintf("%s marcada sin completar %s", FaseColumns[i], FaseColumns[i-1]))
			}
		}
	}

	s, err := parseContador(row["s"])
	if err != nil {
		errs = append(errs, fmt.Sprintf("s debe ser >= 0, recibido: %s", row["s"]))
	}
	r, err := parseContador(row["r"])
	if err != nil {
		errs = append(errs, fmt.Sprintf("r debe ser >= 0, recibido: %s", row["r"]))
	}

	if len(errs) > 0 {
		return models.ValidationResult{Valid: false, Errors: errs}
	}

	return models.ValidationResult{
		Valid: true,
		Data: &models.TramiteData{
			Dependencia:               dependencia,
			Tramite:                   tramite,
			NivelDigitalizacion:       nivel,
			Fase1TramitesIntervenidos: fases[0],
			Fase2Modelado:             fases[1],
			Fase3Reingenieria:         fases[2],
			Fase4Digitalizacion:       fases[3],
			Fase5Implementacion:       fases[4],
			Fase6Liberacion:           fases[5],
			S:                         s,
			R:                         r,
		},
	}
}

// parseContador reads an optional action counter: absent or unparsable values
// default to 0, negative values are an error.
func parseContador(value string) (int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return 0, nil
	}

	n, err := strconv.Atoi(trimmed)
	if err != nil {
		return 0, nil
	}
	if n < 0 {
		return 0, fmt.Errorf("valor negativo")
	}
	return n, nil
}
