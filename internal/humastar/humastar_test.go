package humastar

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSignals(t *testing.T) {
	s, err := ParseSignals([]byte(`{"layer":"CRITIC","gamma":1.6,"weights":{"trucks":"3","pop_density":0.5,"bad":"x"}}`))
	require.NoError(t, err)

	assert.Equal(t, "CRITIC", s.String("layer"))
	assert.Equal(t, 1.6, s.Float("gamma"))
	assert.True(t, s.Has("weights"))
	assert.Equal(t, map[string]float64{"trucks": 3, "pop_density": 0.5}, s.Floats("weights"))
	assert.Nil(t, s.Map("layer"))
	assert.Nil(t, s.Floats("missing"))
	assert.Zero(t, s.Float("missing"))
}

func TestParseSignalsNull(t *testing.T) {
	s, err := ParseSignals([]byte(`null`))
	require.NoError(t, err)
	assert.NotNil(t, s)

	_, err = ParseSignals([]byte(`{`))
	assert.Error(t, err)
}

func TestSignalsInputMustParse(t *testing.T) {
	in := &SignalsInput{RawBody: []byte(`not json`)}
	_, err := in.MustParse()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid request data")
}
