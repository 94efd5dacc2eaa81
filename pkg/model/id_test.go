package model

import (
	"regexp"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/require"
)

func TestStableExternalIDDeterministic(t *testing.T) {
	url := "https://www.fda.gov/recalls/example"
	published := time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)

	a := StableExternalID("fda_recalls", &url, &published, "Recall of Example Lot 42")
	b := StableExternalID("fda_recalls", &url, &published, "Recall of Example Lot 42")
	require.Equal(t, a, b)
	require.Len(t, a, 32)
}

func TestStableExternalIDSensitivity(t *testing.T) {
	url := "https://www.fda.gov/recalls/example"
	published := time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)
	base := StableExternalID("fda_recalls", &url, &published, "Recall A")

	require.NotEqual(t, base, StableExternalID("fda_shortages", &url, &published, "Recall A"))
	require.NotEqual(t, base, StableExternalID("fda_recalls", &url, &published, "Recall B"))
	require.NotEqual(t, base, StableExternalID("fda_recalls", nil, &published, "Recall A"))

	later := published.Add(time.Hour)
	require.NotEqual(t, base, StableExternalID("fda_recalls", &url, &later, "Recall A"))
}

func TestStableExternalIDAbsentFields(t *testing.T) {
	// Absent url and date still produce a well-formed id.
	id := StableExternalID("fda_warning_letters", nil, nil, "Warning Letter: Acme Pharma")
	require.Len(t, id, 32)
}

func TestStableExternalIDProperties(t *testing.T) {
	hexRe := regexp.MustCompile(`^[0-9a-f]{32}$`)
	params := gopter.DefaultTestParameters()
	params.MinSuccessfulTests = 200
	properties := gopter.NewProperties(params)

	properties.Property("id is 32 lowercase hex chars for any input", prop.ForAll(
		func(source, title string) bool {
			return hexRe.MatchString(StableExternalID(source, nil, nil, title))
		},
		gen.AnyString(), gen.AnyString(),
	))

	properties.Property("same input always yields same id", prop.ForAll(
		func(source, title string) bool {
			return StableExternalID(source, nil, nil, title) == StableExternalID(source, nil, nil, title)
		},
		gen.AnyString(), gen.AnyString(),
	))

	properties.TestingRun(t)
}
