package main

import (
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Masoud-Amirdadi/Future-Fire-Stations-Planning/internal/composite"
	"github.com/Masoud-Amirdadi/Future-Fire-Stations-Planning/internal/config"
)

func TestParseWeights(t *testing.T) {
	reg, err := config.Default().Registry(t.TempDir(), "")
	require.NoError(t, err)

	raw, err := parseWeights(reg, []string{"Fire Hydrants=3", " land_use_risk = 1.5"})
	require.NoError(t, err)
	assert.Equal(t, composite.RawWeights{"Fire Hydrants": 3, "Land Use Risk": 1.5}, raw)

	for _, bad := range []string{"Fire Hydrants", "Fire Hydrants=lots", "Nowhere=1"} {
		_, err := parseWeights(reg, []string{bad})
		assert.Error(t, err, bad)
	}
}

func TestFetchTimeoutDefaultsToNone(t *testing.T) {
	field, ok := reflect.TypeOf(Options{}).FieldByName("FetchTimeout")
	require.True(t, ok)

	d, err := parseFetchTimeout(field.Tag.Get("default"))
	require.NoError(t, err)
	assert.Zero(t, d)
}

func TestParseFetchTimeout(t *testing.T) {
	d, err := parseFetchTimeout("2500ms")
	require.NoError(t, err)
	assert.Equal(t, 2500*time.Millisecond, d)

	for _, bad := range []string{"soon", "-1s", ""} {
		_, err := parseFetchTimeout(bad)
		assert.Error(t, err, bad)
	}
}
