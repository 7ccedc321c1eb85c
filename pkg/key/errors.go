package key

import "fmt"

type Format int

const (
	FormatBase64 Format = iota
	FormatBinary
	FormatHex
)

func (f Format) String() string {
	switch f {
	case FormatBase64:
		return "base64"
	case FormatBinary:
		return "binary"
	case FormatHex:
		return "hex"
	default:
		return fmt.Sprintf("Format(%d)", int(f))
	}
}

// Length returns the encoded length of a key in this format.
func (f Format) Length() int {
	switch f {
	case FormatBase64:
		return base64Length
	case FormatHex:
		return hexLength
	default:
		return Length
	}
}

type FormatErrorType int

const (
	FormatErrorContents FormatErrorType = iota
	FormatErrorLength
)

func (t FormatErrorType) String() string {
	switch t {
	case FormatErrorContents:
		return "contents"
	case FormatErrorLength:
		return "length"
	default:
		return fmt.Sprintf("FormatErrorType(%d)", int(t))
	}
}

// FormatError is returned when text or bytes cannot be turned into a key.
type FormatError struct {
	Format Format
	Type   FormatErrorType
}

func (e *FormatError) Error() string {
	if e.Type == FormatErrorLength {
		return fmt.Sprintf("invalid %s key length: must be %d characters", e.Format, e.Format.Length())
	}
	return fmt.Sprintf("invalid %s key contents", e.Format)
}
