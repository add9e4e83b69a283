package ingestion

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// validRow returns a row that passes every strict rule; tests mutate single
// fields from here.
func validRow() map[string]string {
	return map[string]string{
		"dependencia":                 "Secretaría de Salud",
		"tramite":                     "Registro Civil",
		"nivel_digitalizacion":        "3",
		"fase1_tramites_intervenidos": "1",
		"fase2_modelado":              "1",
		"fase3_reingenieria":          "0",
		"fase4_digitalizacion":        "0",
		"fase5_implementacion":        "0",
		"fase6_liberacion":            "0",
		"s":                           "2",
		"r":                           "1",
	}
}

func TestValidateRow_Valid(t *testing.T) {
	v := NewValidator(StrictBool{}, false)

	result := v.ValidateRow(validRow())

	require.True(t, result.Valid)
	require.Empty(t, result.Errors)
	require.NotNil(t, result.Data)
	assert.Equal(t, "Secretaría de Salud", result.Data.Dependencia)
	assert.Equal(t, "Registro Civil", result.Data.Tramite)
	assert.Equal(t, 3.0, result.Data.NivelDigitalizacion)
	assert.True(t, result.Data.Fase1TramitesIntervenidos)
	assert.True(t, result.Data.Fase2Modelado)
	assert.False(t, result.Data.Fase3Reingenieria)
	assert.False(t, result.Data.Fase4Digitalizacion)
	assert.False(t, result.Data.Fase5Implementacion)
	assert.False(t, result.Data.Fase6Liberacion)
	assert.Equal(t, 2, result.Data.S)
	assert.Equal(t, 1, result.Data.R)
}

func TestValidateRow_RequiredFields(t *testing.T) {
	v := NewValidator(StrictBool{}, false)

	t.Run("EmptyDependencia", func(t *testing.T) {
		row := validRow()
		row["dependencia"] = "   "
		result := v.ValidateRow(row)
		assert.False(t, result.Valid)
		assert.Contains(t, result.Errors, "Dependencia vacía")
		assert.Nil(t, result.Data)
	})

	t.Run("EmptyTramite", func(t *testing.T) {
		row := validRow()
		row["tramite"] = ""
		result := v.ValidateRow(row)
		assert.False(t, result.Valid)
		assert.Contains(t, result.Errors, "Trámite vacío")
	})

	t.Run("NamesAreTrimmed", func(t *testing.T) {
		row := validRow()
		row["dependencia"] = "  Secretaría X  "
		result := v.ValidateRow(row)
		require.True(t, result.Valid)
		assert.Equal(t, "Secretaría X", result.Data.Dependencia)
	})
}

func TestValidateRow_NivelDigitalizacion(t *testing.T) {
	v := NewValidator(StrictBool{}, false)

	cases := []struct {
		value string
		valid bool
	}{
		{"0", true},
		{"6", true},
		{"3.5", true},
		{"6.1", false},
		{"-0.1", false},
		{"abc", false},
		{"", false},
	}

	for _, tc := range cases {
		t.Run(fmt.Sprintf("Nivel_%s", tc.value), func(t *testing.T) {
			row := validRow()
			row["nivel_digitalizacion"] = tc.value
			result := v.ValidateRow(row)
			assert.Equal(t, tc.valid, result.Valid)
			if !tc.valid {
				assert.Contains(t, result.Errors, fmt.Sprintf("Nivel de digitalización inválido: %s", tc.value))
			}
		})
	}
}

func TestValidateRow_StrictFases(t *testing.T) {
	v := NewValidator(StrictBool{}, false)

	t.Run("RejectsTwo", func(t *testing.T) {
		row := validRow()
		row["fase2_modelado"] = "2"
		result := v.ValidateRow(row)
		assert.False(t, result.Valid)
		assert.Contains(t, result.Errors, "fase2_modelado debe ser 0 o 1, recibido: 2")
	})

	t.Run("RejectsBooleanWords", func(t *testing.T) {
		row := validRow()
		row["fase1_tramites_intervenidos"] = "si"
		result := v.ValidateRow(row)
		assert.False(t, result.Valid)
		assert.Contains(t, result.Errors, "fase1_tramites_intervenidos debe ser 0 o 1, recibido: si")
	})

	t.Run("RejectsEmpty", func(t *testing.T) {
		row := validRow()
		row["fase6_liberacion"] = ""
		result := v.ValidateRow(row)
		assert.False(t, result.Valid)
	})

	t.Run("NonMonotonicAccepted", func(t *testing.T) {
		// Phase flags are not required to be cumulative by default.
		row := validRow()
		row["fase1_tramites_intervenidos"] = "0"
		row["fase2_modelado"] = "0"
		row["fase3_reingenieria"] = "1"
		result := v.ValidateRow(row)
		assert.True(t, result.Valid)
		assert.True(t, result.Data.Fase3Reingenieria)
		assert.False(t, result.Data.Fase2Modelado)
	})
}

func TestValidateRow_LenientFases(t *testing.T) {
	v := NewValidator(LenientBool{}, false)

	trueValues := []string{"1", "true", "si", "sí", "SÍ", " Si "}
	for _, value := range trueValues {
		row := validRow()
		row["fase3_reingenieria"] = value
		result := v.ValidateRow(row)
		require.True(t, result.Valid, "value %q should parse as true", value)
		assert.True(t, result.Data.Fase3Reingenieria)
	}

	falseValues := []string{"0", "false", "no", ""}
	for _, value := range falseValues {
		row := validRow()
		row["fase3_reingenieria"] = value
		result := v.ValidateRow(row)
		require.True(t, result.Valid, "value %q should parse as false", value)
		assert.False(t, result.Data.Fase3Reingenieria)
	}

	row := validRow()
	row["fase3_reingenieria"] = "2"
	result := v.ValidateRow(row)
	assert.False(t, result.Valid)
}

func TestValidateRow_Contadores(t *testing.T) {
	v := NewValidator(StrictBool{}, false)

	t.Run("DefaultToZero", func(t *testing.T) {
		row := validRow()
		delete(row, "s")
		row["r"] = "no-numerico"
		result := v.ValidateRow(row)
		require.True(t, result.Valid)
		assert.Equal(t, 0, result.Data.S)
		assert.Equal(t, 0, result.Data.R)
	})

	t.Run("NegativeRejected", func(t *testing.T) {
		row := validRow()
		row["s"] = "-3"
		result := v.ValidateRow(row)
		assert.False(t, result.Valid)
		assert.Contains(t, result.Errors, "s debe ser >= 0, recibido: -3")
	})
}

func TestValidateRow_CollectsAllErrors(t *testing.T) {
	v := NewValidator(StrictBool{}, false)

	row := validRow()
	row["dependencia"] = ""
	row["tramite"] = ""
	row["nivel_digitalizacion"] = "9"
	row["fase4_digitalizacion"] = "x"
	row["r"] = "-1"

	result := v.ValidateRow(row)
	assert.False(t, result.Valid)
	assert.Len(t, result.Errors, 5)
}

func TestValidateRow_StrictPhaseOrder(t *testing.T) {
	row := validRow()
	row["fase1_tramites_intervenidos"] = "0"
	row["fase2_modelado"] = "1"

	permissive := NewValidator(StrictBool{}, false)
	assert.True(t, permissive.ValidateRow(row).Valid)

	ordered := NewValidator(StrictBool{}, true)
	result := ordered.ValidateRow(row)
	assert.False(t, result.Valid)
	assert.Contains(t, result.Errors, "fase2_modelado marcada sin completar fase1_tramites_intervenidos")
}
