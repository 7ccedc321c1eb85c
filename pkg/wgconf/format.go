package wgconf

import (
	"slices"
	"strconv"
	"strings"
)

func writeAttribute(sb *strings.Builder, name, value string) {
	sb.WriteString(name)
	sb.WriteString(" = ")
	sb.WriteString(value)
	sb.WriteByte('\n')
}

func writeUAPI(sb *strings.Builder, name, value string) {
	sb.WriteString(name)
	sb.WriteByte('=')
	sb.WriteString(value)
	sb.WriteByte('\n')
}

func parseInt(value string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0, &ParseError{Target: TargetInteger, Text: value, Err: err}
	}
	return n, nil
}

func appendUnique(values []string, more ...string) []string {
	for _, v := range more {
		if !slices.Contains(values, v) {
			values = append(values, v)
		}
	}
	return values
}

func equalPointers[T comparable](a, b *T) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
