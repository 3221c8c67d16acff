package cache

import "strings"

// KeySeparator defines the delimiter used between cache key segments.
const KeySeparator = ":"

// SealMarker is the set member that marks a lookup set as populated from a complete
// source result. It can never collide with a primary key.
const SealMarker = "*"

// Keys builds the cache keys of one aggregate:
//
//	<aggregate>:<pk>                        primary hash
//	<aggregate>:<selector>:<value>          unique mapping or lookup set
//	<aggregate>:<selector>                  whole-aggregate set (e.g. genre:all)
//
// Values passed to Index must already be normalized with Normalize.
type Keys struct {
	Prefix string
}

// NewKeys returns the key scheme for the aggregate prefix.
func NewKeys(prefix string) Keys {
	return Keys{Prefix: prefix}
}

// Primary returns the key of the primary hash for pk.
func (k Keys) Primary(pk string) string {
	return k.Prefix + KeySeparator + pk
}

// Index returns the key of a secondary index entry. An empty value addresses the
// whole-aggregate set of the selector.
func (k Keys) Index(selector, value string) string {
	if value == "" {
		return k.Prefix + KeySeparator + selector
	}
	return strings.Join([]string{k.Prefix, selector, value}, KeySeparator)
}

// Normalize trims the value and, when fold is set, lower-cases it so that case
// varying input resolves to the same cache slot. Id-based keys pass fold=false.
func Normalize(value string, fold bool) string {
	value = strings.TrimSpace(value)
	if fold {
		return strings.ToLower(value)
	}
	return value
}
