package capabilities

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPrefixParseReversibility(t *testing.T) {
	// Property 2 from spec.md §8: for every emitted name n, parse(n)
	// yields (serverId, original) such that prefix(serverId, original) = n.
	cases := []struct{ original, instance string }{
		{"search", "1"},
		{"search", "server-instance-42"},
		{"weird_-_name", "inst"}, // original itself contains the separator
	}
	for _, c := range cases {
		n := Prefix(c.original, c.instance)
		original, instance, ok := Parse(n)
		require.True(t, ok)
		require.Equal(t, c.original, original)
		require.Equal(t, c.instance, instance)
		require.Equal(t, n, Prefix(original, instance))
	}
}

func TestParseMissingSeparatorFails(t *testing.T) {
	_, _, ok := Parse("search")
	require.False(t, ok)
}

func TestPrefixedNamesScenarioS1(t *testing.T) {
	// S1: two servers A (instance "1") and B (instance "2") each expose
	// "search"; their prefixed names are "search_-_1" and "search_-_2".
	a := Prefix("search", "1")
	b := Prefix("search", "2")
	require.Equal(t, "search_-_1", a)
	require.Equal(t, "search_-_2", b)
}
