package wgconf

import (
	"fmt"
	"regexp"
	"strings"
)

var attributePattern = regexp.MustCompile(`^\s*(\w+)\s*=\s*([^\s#][^#]*)(?:#.*)?$`)

// Attribute is a single "key = value" line.
type Attribute struct {
	Key   string
	Value string
}

// ParseAttribute extracts the key and value from line. A trailing "#" comment
// is not part of the value. ok is false when line does not match the grammar.
func ParseAttribute(line string) (attribute Attribute, ok bool) {
	matches := attributePattern.FindStringSubmatch(line)
	if matches == nil {
		return Attribute{}, false
	}
	return Attribute{
		Key:   matches[1],
		Value: strings.TrimSpace(matches[2]),
	}, true
}

func (a Attribute) String() string {
	return a.Key + " = " + a.Value
}

func SplitList(value string) []string {
	var values []string
	for _, v := range strings.Split(value, ",") {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		values = append(values, v)
	}
	return values
}

func JoinList(values []string) string {
	return strings.Join(values, ", ")
}

func JoinStringers[T fmt.Stringer](values []T) string {
	s := make([]string, 0, len(values))
	for _, v := range values {
		s = append(s, v.String())
	}
	return JoinList(s)
}
