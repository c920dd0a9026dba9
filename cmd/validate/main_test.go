package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/couchcryptid/storm-data-runoff/internal/mockdata"
	"github.com/stretchr/testify/assert"
)

func TestRun_RepositoryFixturesPass(t *testing.T) {
	var out bytes.Buffer
	code := run(filepath.Join("..", "..", mockdata.DefaultPath), &out)
	assert.Equal(t, 0, code, out.String())
	assert.Contains(t, out.String(), "All validations passed.")
}

func TestRun_DetectsWrongExpectation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fixtures.json")
	fixture := `[{
		"name": "wrong",
		"request": {"site_id": "s", "slope_degrees": 5, "precipitation": {"total_mm": 50}},
		"expected": {"curve_number": 80, "curve_number_source": "default", "slope_class": "moderate",
			"potential_max_retention_mm": 84.67, "initial_abstraction_mm": 16.93, "runoff_mm": 9.29}
	}]`
	if err := os.WriteFile(path, []byte(fixture), 0o600); err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	code := run(path, &out)
	assert.Equal(t, 1, code)
	assert.Contains(t, out.String(), "curve_number: want 80.00, got 75.00")
}

func TestRun_MissingFile(t *testing.T) {
	var out bytes.Buffer
	code := run(filepath.Join(t.TempDir(), "missing.json"), &out)
	assert.Equal(t, 1, code)
	assert.Contains(t, out.String(), "FATAL")
}
