package wgconf

import (
	"fmt"
	"strings"
)

type Section int

const (
	SectionConfig Section = iota
	SectionInterface
	SectionPeer
)

func (s Section) String() string {
	switch s {
	case SectionConfig:
		return "Config"
	case SectionInterface:
		return "Interface"
	case SectionPeer:
		return "Peer"
	default:
		return fmt.Sprintf("Section(%d)", int(s))
	}
}

// Location is the attribute an error refers to, or LocationTopLevel when the
// error concerns a whole line or section.
type Location int

const (
	LocationTopLevel Location = iota
	LocationAddress
	LocationAllowedIPs
	LocationDNS
	LocationEndpoint
	LocationExcludedApplications
	LocationIncludedApplications
	LocationListenPort
	LocationMTU
	LocationPersistentKeepalive
	LocationPresharedKey
	LocationPrivateKey
	LocationPublicKey
)

var locationNames = map[Location]string{
	LocationTopLevel:             "",
	LocationAddress:              "Address",
	LocationAllowedIPs:           "AllowedIPs",
	LocationDNS:                  "DNS",
	LocationEndpoint:             "Endpoint",
	LocationExcludedApplications: "ExcludedApplications",
	LocationIncludedApplications: "IncludedApplications",
	LocationListenPort:           "ListenPort",
	LocationMTU:                  "MTU",
	LocationPersistentKeepalive:  "PersistentKeepalive",
	LocationPresharedKey:         "PresharedKey",
	LocationPrivateKey:           "PrivateKey",
	LocationPublicKey:            "PublicKey",
}

func (l Location) String() string {
	if name, ok := locationNames[l]; ok {
		return name
	}
	return fmt.Sprintf("Location(%d)", int(l))
}

type Reason int

const (
	ReasonInvalidKey Reason = iota
	ReasonInvalidNumber
	ReasonInvalidValue
	ReasonMissingAttribute
	ReasonMissingSection
	ReasonMissingValue
	ReasonSyntaxError
	ReasonUnknownAttribute
	ReasonUnknownSection
	ReasonDuplicate
)

var reasonNames = map[Reason]string{
	ReasonInvalidKey:       "INVALID_KEY",
	ReasonInvalidNumber:    "INVALID_NUMBER",
	ReasonInvalidValue:     "INVALID_VALUE",
	ReasonMissingAttribute: "MISSING_ATTRIBUTE",
	ReasonMissingSection:   "MISSING_SECTION",
	ReasonMissingValue:     "MISSING_VALUE",
	ReasonSyntaxError:      "SYNTAX_ERROR",
	ReasonUnknownAttribute: "UNKNOWN_ATTRIBUTE",
	ReasonUnknownSection:   "UNKNOWN_SECTION",
	ReasonDuplicate:        "DUPLICATE",
}

func (r Reason) String() string {
	if name, ok := reasonNames[r]; ok {
		return name
	}
	return fmt.Sprintf("Reason(%d)", int(r))
}

func (r Reason) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

func (r *Reason) UnmarshalText(text []byte) error {
	for reason, name := range reasonNames {
		if name == string(text) {
			*r = reason
			return nil
		}
	}
	return fmt.Errorf("unknown reason %q", text)
}

// BadConfigError describes why a configuration was rejected. Err holds the
// underlying *ParseError or *key.FormatError when there is one.
type BadConfigError struct {
	Section  Section
	Location Location
	Reason   Reason
	Text     string
	Err      error
}

func newBadConfigError(section Section, location Location, reason Reason, text string, err error) *BadConfigError {
	return &BadConfigError{
		Section:  section,
		Location: location,
		Reason:   reason,
		Text:     text,
		Err:      err,
	}
}

func (e *BadConfigError) Error() string {
	var sb strings.Builder
	sb.WriteString("bad config: ")
	sb.WriteString(strings.ToLower(strings.ReplaceAll(e.Reason.String(), "_", " ")))
	sb.WriteString(" in ")
	sb.WriteString(e.Section.String())
	if e.Location != LocationTopLevel {
		sb.WriteString(" ")
		sb.WriteString(e.Location.String())
	}
	if e.Text != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Text)
	}
	if e.Err != nil {
		sb.WriteString(" (")
		sb.WriteString(e.Err.Error())
		sb.WriteString(")")
	}
	return sb.String()
}

func (e *BadConfigError) Unwrap() error {
	return e.Err
}

type ParseTarget int

const (
	TargetAddress ParseTarget = iota
	TargetEndpoint
	TargetNetwork
	TargetInteger
)

func (t ParseTarget) String() string {
	switch t {
	case TargetAddress:
		return "address"
	case TargetEndpoint:
		return "endpoint"
	case TargetNetwork:
		return "network"
	case TargetInteger:
		return "integer"
	default:
		return fmt.Sprintf("ParseTarget(%d)", int(t))
	}
}

// ParseError is returned when a single value cannot be parsed as Target.
type ParseError struct {
	Target ParseTarget
	Text   string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("failed to parse %s %q: %v", e.Target, e.Text, e.Err)
	}
	return fmt.Sprintf("failed to parse %s %q", e.Target, e.Text)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
