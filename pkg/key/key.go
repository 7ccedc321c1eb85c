package key

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/curve25519"
	"golang.zx2c4.com/wireguard/wgctrl/wgtypes"
)

const (
	// Length is the size of a Curve25519 key in bytes.
	Length = 32

	base64Length = ((Length + 2) / 3) * 4
	hexLength    = Length * 2
)

// Key is a 32 byte WireGuard key. It is used for private, public and
// preshared keys alike.
type Key [Length]byte

func FromBytes(b []byte) (Key, error) {
	var k Key
	if len(b) != Length {
		return k, &FormatError{Format: FormatBinary, Type: FormatErrorLength}
	}
	copy(k[:], b)
	return k, nil
}

func FromBase64(s string) (Key, error) {
	var k Key
	if len(s) != base64Length || s[base64Length-1] != '=' {
		return k, &FormatError{Format: FormatBase64, Type: FormatErrorLength}
	}

	decoded, err := base64.StdEncoding.DecodeString(s)
	if err != nil || len(decoded) != Length {
		return k, &FormatError{Format: FormatBase64, Type: FormatErrorContents}
	}
	copy(k[:], decoded)
	return k, nil
}

func FromHex(s string) (Key, error) {
	var k Key
	if len(s) != hexLength {
		return k, &FormatError{Format: FormatHex, Type: FormatErrorLength}
	}

	if _, err := hex.Decode(k[:], []byte(s)); err != nil {
		return Key{}, &FormatError{Format: FormatHex, Type: FormatErrorContents}
	}
	return k, nil
}

// GeneratePrivateKey returns a random key clamped for use as a Curve25519
// scalar.
func GeneratePrivateKey() (Key, error) {
	var k Key
	if _, err := rand.Read(k[:]); err != nil {
		return Key{}, fmt.Errorf("failed to read random bytes: %w", err)
	}
	k.clamp()
	return k, nil
}

func GeneratePresharedKey() (Key, error) {
	var k Key
	if _, err := rand.Read(k[:]); err != nil {
		return Key{}, fmt.Errorf("failed to read random bytes: %w", err)
	}
	return k, nil
}

// PublicKey derives the public key belonging to privateKey.
func PublicKey(privateKey Key) Key {
	var public Key
	out, err := curve25519.X25519(privateKey[:], curve25519.Basepoint)
	if err != nil {
		// X25519 only fails for low order points, which the base point is not.
		panic(fmt.Sprintf("failed to derive public key: %v", err))
	}
	copy(public[:], out)
	return public
}

func (k Key) Bytes() []byte {
	b := make([]byte, Length)
	copy(b, k[:])
	return b
}

func (k Key) Base64() string {
	return base64.StdEncoding.EncodeToString(k[:])
}

func (k Key) Hex() string {
	return hex.EncodeToString(k[:])
}

func (k Key) String() string {
	return k.Base64()
}

func (k Key) IsZero() bool {
	var zero Key
	return k.Equal(zero)
}

// Equal compares keys in constant time.
func (k Key) Equal(other Key) bool {
	return subtle.ConstantTimeCompare(k[:], other[:]) == 1
}

func (k Key) WgKey() wgtypes.Key {
	return wgtypes.Key(k)
}

func (k Key) MarshalText() ([]byte, error) {
	return []byte(k.Base64()), nil
}

func (k *Key) UnmarshalText(text []byte) error {
	parsed, err := FromBase64(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

func (k *Key) clamp() {
	k[0] &= 248
	k[31] &= 127
	k[31] |= 64
}
