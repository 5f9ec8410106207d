// Package capabilities implements name prefixing and the danger-level
// primitives used by ClientSession (C8) and CapabilitiesService (C11);
// the aggregation and filtering themselves live in pkg/clientsession.
// Grounded on the teacher's
// getToolNamePrefix/prefixToolName in pkg/gateway/capabilitites.go,
// generalized from an optional single prefix into the spec's mandatory
// "{original}_-_{serverInstanceId}" scheme (spec.md §3, "Name prefixing").
package capabilities

import "strings"

// Separator is the delimiter between an original capability name and the
// owning server instance id, per spec.md §3.
const Separator = "_-_"

// Prefix builds the externally visible name for a capability owned by
// serverInstanceID.
func Prefix(original, serverInstanceID string) string {
	return original + Separator + serverInstanceID
}

// Parse splits a prefixed name into its original name and owning server
// instance id. It splits on the *last* occurrence of Separator so original
// names that themselves happen to contain the separator still round-trip.
// ok is false if the separator is absent (spec.md: "missing or unknown
// suffix ⇒ routing failure").
func Parse(prefixed string) (original, serverInstanceID string, ok bool) {
	idx := strings.LastIndex(prefixed, Separator)
	if idx < 0 {
		return "", "", false
	}
	return prefixed[:idx], prefixed[idx+len(Separator):], true
}
