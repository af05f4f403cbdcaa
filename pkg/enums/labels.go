package enums

import (
	"fmt"
	"slices"
	"strings"
)

// labelSet is the closed set of labels a string-backed enum accepts.
type labelSet[T ~string] struct {
	name   string
	values []T
}

func newLabelSet[T ~string](name string, values ...T) labelSet[T] {
	return labelSet[T]{name: name, values: values}
}

func (s labelSet[T]) has(v T) bool {
	return slices.Contains(s.values, v)
}

// parse trims raw and matches it case insensitively.
func (s labelSet[T]) parse(raw string) (T, error) {
	v := T(strings.ToLower(strings.TrimSpace(raw)))
	if !s.has(v) {
		return "", fmt.Errorf("invalid %s %q", s.name, raw)
	}
	return v, nil
}
