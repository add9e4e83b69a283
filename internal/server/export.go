package server

import (
	"strconv"
	"strings"

	"github.com/hidalgo-digital/panel-secretario/internal/models"
)

// ExportHeader is the canonical column order for CSV exports, matching the
// required upload columns.
const ExportHeader = "dependencia,tramite,nivel_digitalizacion,fase1_tramites_intervenidos,fase2_modelado,fase3_reingenieria,fase4_digitalizacion,fase5_implementacion,fase6_liberacion"

// RenderCSV renders trámites in the upload format: string fields always
// double-quoted, booleans as 0/1.
func RenderCSV(tramites []models.TramiteRow) string {
	var b strings.Builder
	b.WriteString(ExportHeader + "\n")

	for _, t := range tramites {
		fields := []string{
			quoteField(t.Dependencia),
			quoteField(t.Tramite),
			strconv.FormatFloat(t.NivelDigitalizacion, 'f', -1, 64),
			boolField(t.Fase1TramitesIntervenidos),
			boolField(t.Fase2Modelado),
			boolField(t.Fase3Reingenieria),
			boolField(t.Fase4Digitalizacion),
			boolField(t.Fase5Implementacion),
			boolField(t.Fase6Liberacion),
		}
		b.WriteString(strings.Join(fields, ",") + "\n")
	}

	return b.String()
}

func quoteField(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func boolField(v bool) string {
	if v {
		return "1"
	}
	return "0"
}
