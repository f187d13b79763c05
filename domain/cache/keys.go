// Package cache defines the core model of the resource cache: structured
// keys, schema-free entities, and the store contract both refresh paths
// write through.
package cache

import (
	"fmt"
	"strings"

	appErrors "stratus-backend/pkg/errors"
)

// Namespace is a named category of cached entities. Each namespace declares
// its own ordered key field schema.
type Namespace string

const (
	NamespaceApplications   Namespace = "applications"
	NamespaceClusters       Namespace = "clusters"
	NamespaceSecurityGroups Namespace = "security-groups"
)

// Delimiter separates the namespace prefix and key fields in an encoded key.
// Field values must never contain it.
const Delimiter = ":"

// fieldSchemas maps each namespace to its ordered key field names.
var fieldSchemas = map[Namespace][]string{
	NamespaceApplications:   {"name"},
	NamespaceClusters:       {"account", "name"},
	NamespaceSecurityGroups: {"account", "region", "name"},
}

// Namespaces returns the fixed set of namespaces the cache partitions by.
func Namespaces() []Namespace {
	return []Namespace{
		NamespaceApplications,
		NamespaceClusters,
		NamespaceSecurityGroups,
	}
}

// ValidNamespace reports whether ns is one of the declared namespaces.
func ValidNamespace(ns Namespace) bool {
	_, ok := fieldSchemas[ns]
	return ok
}

// FieldSchema returns the ordered field names for a namespace, or nil for an
// unknown namespace.
func FieldSchema(ns Namespace) []string {
	schema, ok := fieldSchemas[ns]
	if !ok {
		return nil
	}
	out := make([]string, len(schema))
	copy(out, schema)
	return out
}

// Key is the structured identifier for a cached entity. Encoding and
// decoding are mutual inverses for any key whose fields do not contain the
// delimiter.
type Key struct {
	Namespace Namespace
	Fields    []string
}

// NewKey builds a key for a namespace, validating field arity against the
// namespace schema and rejecting fields that contain the delimiter.
func NewKey(ns Namespace, fields ...string) (Key, error) {
	schema, ok := fieldSchemas[ns]
	if !ok {
		return Key{}, appErrors.NewInvalidField(fmt.Sprintf("unknown namespace %q", ns))
	}
	if len(fields) != len(schema) {
		return Key{}, appErrors.NewInvalidField(fmt.Sprintf(
			"namespace %q expects %d fields, got %d", ns, len(schema), len(fields)))
	}
	for i, f := range fields {
		if strings.Contains(f, Delimiter) {
			return Key{}, appErrors.NewInvalidField(fmt.Sprintf(
				"field %q contains reserved delimiter %q", schema[i], Delimiter))
		}
	}
	out := make([]string, len(fields))
	copy(out, fields)
	return Key{Namespace: ns, Fields: out}, nil
}

// Encode renders the key as <namespace>:<field1>:<field2>... The encoded
// form is stable and must remain parseable by any component holding only
// the string.
func (k Key) Encode() string {
	return string(k.Namespace) + Delimiter + k.Scope()
}

// Scope returns the field portion of the encoded key, without the namespace
// prefix. Identifier filter patterns match against this portion.
func (k Key) Scope() string {
	return strings.Join(k.Fields, Delimiter)
}

// Field returns the value of the named schema field, or "" when the
// namespace does not declare it.
func (k Key) Field(name string) string {
	for i, f := range fieldSchemas[k.Namespace] {
		if f == name && i < len(k.Fields) {
			return k.Fields[i]
		}
	}
	return ""
}

// Equal reports whether two keys identify the same entity.
func (k Key) Equal(other Key) bool {
	if k.Namespace != other.Namespace || len(k.Fields) != len(other.Fields) {
		return false
	}
	for i := range k.Fields {
		if k.Fields[i] != other.Fields[i] {
			return false
		}
	}
	return true
}

// Decode parses an encoded key token back into its structured form. It
// fails on an unknown namespace or a field count that does not match the
// namespace schema.
func Decode(token string) (Key, error) {
	parts := strings.Split(token, Delimiter)
	if len(parts) < 2 {
		return Key{}, appErrors.NewMalformedKey(fmt.Sprintf("token %q has no fields", token))
	}
	ns := Namespace(parts[0])
	schema, ok := fieldSchemas[ns]
	if !ok {
		return Key{}, appErrors.NewMalformedKey(fmt.Sprintf("unknown namespace in token %q", token))
	}
	fields := parts[1:]
	if len(fields) != len(schema) {
		return Key{}, appErrors.NewMalformedKey(fmt.Sprintf(
			"token %q has %d fields, namespace %q expects %d", token, len(fields), ns, len(schema)))
	}
	return Key{Namespace: ns, Fields: fields}, nil
}

// MatchScope matches a glob pattern against the scope portion of an encoded
// key. Patterns support '*' (any run of characters, including delimiters)
// and '?' (any single character).
func MatchScope(pattern, scope string) bool {
	return matchGlob(pattern, scope)
}

// matchGlob is a classic iterative wildcard matcher with single-star
// backtracking.
func matchGlob(pattern, s string) bool {
	var p, i int
	star, mark := -1, 0

	for i < len(s) {
		switch {
		case p < len(pattern) && (pattern[p] == '?' || pattern[p] == s[i]):
			p++
			i++
		case p < len(pattern) && pattern[p] == '*':
			star = p
			mark = i
			p++
		case star >= 0:
			p = star + 1
			mark++
			i = mark
		default:
			return false
		}
	}
	for p < len(pattern) && pattern[p] == '*' {
		p++
	}
	return p == len(pattern)
}

// LiteralPrefix returns the leading literal portion of a glob pattern, up
// to the first wildcard. Backing stores use it to narrow range scans before
// applying the full match.
func LiteralPrefix(pattern string) string {
	if idx := strings.IndexAny(pattern, "*?"); idx >= 0 {
		return pattern[:idx]
	}
	return pattern
}
