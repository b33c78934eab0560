package intake

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStatutes(t *testing.T) {
	t.Run("splits citation and title on dash variants", func(t *testing.T) {
		for _, raw := range []string{
			"Tex. Transp. Code 521.021 - driver's license required",
			"Tex. Transp. Code 521.021 – driver's license required",
			"Tex. Transp. Code 521.021 — driver's license required",
		} {
			statutes := ParseStatutes(raw)
			require.Len(t, statutes, 1)
			assert.Equal(t, raw, statutes[0].Raw)
			assert.Equal(t, "Tex. Transp. Code 521.021", statutes[0].Citation)
			assert.Equal(t, "driver's license required", statutes[0].Title)
		}
	})

	t.Run("missing title yields empty string, never absent", func(t *testing.T) {
		statutes := ParseStatutes("521.021")
		require.Len(t, statutes, 1)
		assert.Equal(t, "521.021", statutes[0].Citation)
		assert.Equal(t, "", statutes[0].Title)
	})

	t.Run("leading dash yields empty citation", func(t *testing.T) {
		statutes := ParseStatutes("— driver's license required")
		require.Len(t, statutes, 1)
		assert.Equal(t, "", statutes[0].Citation)
		assert.Equal(t, "driver's license required", statutes[0].Title)
	})

	t.Run("preserves input order and skips blank lines", func(t *testing.T) {
		statutes := ParseStatutes("first - a\n\n  \nsecond - b\nthird - c")
		require.Len(t, statutes, 3)
		assert.Equal(t, "first", statutes[0].Citation)
		assert.Equal(t, "second", statutes[1].Citation)
		assert.Equal(t, "third", statutes[2].Citation)
	})

	t.Run("empty input", func(t *testing.T) {
		assert.Empty(t, ParseStatutes(""))
	})
}

func TestRecordNormalize(t *testing.T) {
	var r Record
	r.Normalize()

	assert.Equal(t, "United States", r.Jurisdiction.Country)
	assert.Equal(t, "Unknown", r.Jurisdiction.State)
	assert.Equal(t, "traffic_stop", r.Event.Type)
	assert.Equal(t, "personal", r.DriverContext.VehicleUse)
	assert.NotNil(t, r.Statutes)
}

func TestStatutesText(t *testing.T) {
	r := Record{Statutes: []Statute{
		{Raw: "Tex. Transp. Code 521.021 - Driver's License Required"},
		{Raw: "FMCSR 390.5"},
	}}
	assert.Equal(t,
		"tex. transp. code 521.021 - driver's license required fmcsr 390.5",
		r.StatutesText())
}
