package model

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/require"
)

func TestNormalizeShortageStatusExact(t *testing.T) {
	cases := map[string]ShortageStatus{
		"Currently in Shortage": ShortageCurrent,
		"current":               ShortageCurrent,
		"Active":                ShortageCurrent,
		"ongoing":               ShortageCurrent,
		"Resolved":              ShortageResolved,
		"No Longer in Shortage": ShortageResolved,
		"discontinued":          ShortageResolved,
		"Terminated":            ShortageTerminated,
		"ended":                 ShortageTerminated,
		"unknown":               ShortageAbsent,
		"":                      ShortageAbsent,
		"  current  ":           ShortageCurrent,
	}
	for raw, want := range cases {
		require.Equal(t, want, NormalizeShortageStatus(raw), "raw=%q", raw)
	}
}

func TestNormalizeShortageStatusFuzzy(t *testing.T) {
	require.Equal(t, ShortageCurrent, NormalizeShortageStatus("Shortage reported in Q3"))
	require.Equal(t, ShortageResolved, NormalizeShortageStatus("Now available in all regions"))
	require.Equal(t, ShortageTerminated, NormalizeShortageStatus("Program ended 2024"))
	require.Equal(t, ShortageAbsent, NormalizeShortageStatus("pending review"))
}

func TestNormalizeShortageStatusTotal(t *testing.T) {
	params := gopter.DefaultTestParameters()
	params.MinSuccessfulTests = 500
	properties := gopter.NewProperties(params)

	properties.Property("every input maps to one of the four values", prop.ForAll(
		func(raw string) bool {
			switch NormalizeShortageStatus(raw) {
			case ShortageCurrent, ShortageResolved, ShortageTerminated, ShortageAbsent:
				return true
			}
			return false
		},
		gen.AnyString(),
	))

	properties.Property("normalization never emits the word Unknown", prop.ForAll(
		func(raw string) bool {
			ptr := NormalizeShortageStatus(raw).StatusPtr()
			return ptr == nil || *ptr != "Unknown"
		},
		gen.AnyString(),
	))

	properties.TestingRun(t)
}

func TestStatusPtr(t *testing.T) {
	require.Nil(t, ShortageAbsent.StatusPtr())
	ptr := ShortageCurrent.StatusPtr()
	require.NotNil(t, ptr)
	require.Equal(t, "current", *ptr)
}
