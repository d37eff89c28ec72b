package schemas

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllSchemas_LoadAndCompile(t *testing.T) {
	for _, name := range Names() {
		t.Run(name, func(t *testing.T) {
			raw, err := Get(name)
			require.NoError(t, err)

			var v map[string]any
			require.NoError(t, json.Unmarshal([]byte(raw), &v), "schema should be valid JSON")
			assert.Equal(t, "object", v["type"])

			_, err = load(name)
			assert.NoError(t, err, "schema should compile")
		})
	}
}

func TestGet_UnknownSchema(t *testing.T) {
	_, err := Get("does_not_exist")
	require.Error(t, err)

	var loadErr *SchemaLoadError
	assert.True(t, errors.As(err, &loadErr))
	assert.Panics(t, func() { MustGet("does_not_exist") })
}

func TestValidate_CVProfile(t *testing.T) {
	valid := `{
		"skills": ["Go"],
		"experience_level": "senior",
		"job_titles": ["Backend Engineer"],
		"industries": ["Fintech"],
		"keywords": ["payments"],
		"education": "MSc",
		"years_of_experience": 8,
		"preferred_locations": ["Remote"]
	}`
	assert.NoError(t, Validate(CVProfile, valid))

	tests := []struct {
		name string
		doc  string
	}{
		{"empty skills", `{"skills": [], "experience_level": "mid", "job_titles": ["a"], "industries": ["b"], "keywords": ["c"], "education": "", "years_of_experience": 1, "preferred_locations": ["d"]}`},
		{"bad level", `{"skills": ["a"], "experience_level": "lead", "job_titles": ["a"], "industries": ["b"], "keywords": ["c"], "education": "", "years_of_experience": 1, "preferred_locations": ["d"]}`},
		{"negative years", `{"skills": ["a"], "experience_level": "mid", "job_titles": ["a"], "industries": ["b"], "keywords": ["c"], "education": "", "years_of_experience": -2, "preferred_locations": ["d"]}`},
		{"missing fields", `{"skills": ["a"]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(CVProfile, tt.doc)
			require.Error(t, err)

			var validationErr *ValidationError
			require.True(t, errors.As(err, &validationErr))
			assert.Equal(t, CVProfile, validationErr.Schema)
			assert.NotEmpty(t, validationErr.Errors)
		})
	}
}

func TestValidate_JobDetailsAllowsNulls(t *testing.T) {
	doc := `{"salary_min": null, "salary_max": 120000, "currency": "EUR", "company": null, "job_type": "full-time"}`
	assert.NoError(t, Validate(JobDetails, doc))

	err := Validate(JobDetails, `{"salary_min": "lots"}`)
	assert.Error(t, err)
}

func TestValidate_MalformedDocument(t *testing.T) {
	err := Validate(SearchParameters, "{ invalid json }")
	require.Error(t, err)

	var validationErr *ValidationError
	assert.True(t, errors.As(err, &validationErr))
}

func TestValidateJSONString(t *testing.T) {
	schema := `{"type": "object", "required": ["name"], "properties": {"name": {"type": "string"}}}`

	assert.NoError(t, ValidateJSONString(schema, `{"name": "ok"}`))

	err := ValidateJSONString(schema, `{"name": 5}`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "name")

	err = ValidateJSONString("{ not a schema", `{}`)
	var loadErr *SchemaLoadError
	assert.True(t, errors.As(err, &loadErr))
}
