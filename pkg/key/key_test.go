package key

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

const (
	testPrivateKey = "yAnz5TF+lXXJte14tji3zlMNq+hd2rYUIgJBgB3fBmk="
	testPublicKey  = "HIgo9xNzJMWLKASShiTqIybxZ0U3wGLiUeJ1PKf8ykw="
)

func TestBase64RoundTrip(t *testing.T) {
	for i := 0; i < 16; i++ {
		var raw [Length]byte
		for j := range raw {
			raw[j] = byte(i*31 + j*7)
		}

		k, err := FromBytes(raw[:])
		if err != nil {
			t.Fatalf("FromBytes returned error: %v", err)
		}

		decoded, err := FromBase64(k.Base64())
		if err != nil {
			t.Fatalf("FromBase64 returned error: %v", err)
		}
		if !bytes.Equal(decoded[:], raw[:]) {
			t.Fatalf("expected %x, got %x", raw, decoded)
		}

		decoded, err = FromHex(k.Hex())
		if err != nil {
			t.Fatalf("FromHex returned error: %v", err)
		}
		if !bytes.Equal(decoded[:], raw[:]) {
			t.Fatalf("expected %x, got %x", raw, decoded)
		}
	}
}

func TestFromBase64RejectsWrongLength(t *testing.T) {
	_, err := FromBase64("AAAA")
	var formatErr *FormatError
	if !errors.As(err, &formatErr) {
		t.Fatalf("expected FormatError, got %v", err)
	}
	if formatErr.Format != FormatBase64 || formatErr.Type != FormatErrorLength {
		t.Fatalf("expected base64 length error, got %s %s", formatErr.Format, formatErr.Type)
	}
}

func TestFromBase64RejectsInvalidContents(t *testing.T) {
	_, err := FromBase64(strings.Repeat("!", 43) + "=")
	var formatErr *FormatError
	if !errors.As(err, &formatErr) {
		t.Fatalf("expected FormatError, got %v", err)
	}
	if formatErr.Type != FormatErrorContents {
		t.Fatalf("expected contents error, got %s", formatErr.Type)
	}
}

func TestFromHexErrors(t *testing.T) {
	var formatErr *FormatError

	_, err := FromHex("abcd")
	if !errors.As(err, &formatErr) || formatErr.Type != FormatErrorLength || formatErr.Format != FormatHex {
		t.Fatalf("expected hex length error, got %v", err)
	}

	_, err = FromHex(strings.Repeat("zz", Length))
	if !errors.As(err, &formatErr) || formatErr.Type != FormatErrorContents {
		t.Fatalf("expected hex contents error, got %v", err)
	}
}

func TestFromBytesRejectsWrongLength(t *testing.T) {
	_, err := FromBytes(make([]byte, 31))
	var formatErr *FormatError
	if !errors.As(err, &formatErr) || formatErr.Format != FormatBinary || formatErr.Type != FormatErrorLength {
		t.Fatalf("expected binary length error, got %v", err)
	}
}

func TestGeneratePrivateKeyIsClamped(t *testing.T) {
	for i := 0; i < 64; i++ {
		k, err := GeneratePrivateKey()
		if err != nil {
			t.Fatalf("GeneratePrivateKey returned error: %v", err)
		}
		if k[0]&7 != 0 {
			t.Fatalf("expected low 3 bits of byte 0 to be clear, got %08b", k[0])
		}
		if k[31]&128 != 0 {
			t.Fatalf("expected top bit of byte 31 to be clear, got %08b", k[31])
		}
		if k[31]&64 == 0 {
			t.Fatalf("expected bit 6 of byte 31 to be set, got %08b", k[31])
		}
	}
}

func TestKeypairDerivesKnownPublicKey(t *testing.T) {
	kp, err := ParseKeypair(testPrivateKey)
	if err != nil {
		t.Fatalf("ParseKeypair returned error: %v", err)
	}
	if got := kp.PublicKey().Base64(); got != testPublicKey {
		t.Fatalf("expected public key %s, got %s", testPublicKey, got)
	}
	if got := kp.PublicKey().WgKey(); got.String() != testPublicKey {
		t.Fatalf("expected wgtypes key %s, got %s", testPublicKey, got)
	}
}

func TestGenerateKeypairMatchesDerivation(t *testing.T) {
	kp, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair returned error: %v", err)
	}
	if !kp.PublicKey().Equal(PublicKey(kp.PrivateKey())) {
		t.Fatalf("expected public key to be derived from private key")
	}
	if kp.PrivateKey().IsZero() {
		t.Fatalf("expected non-zero private key")
	}
}

func TestUnmarshalText(t *testing.T) {
	var k Key
	if err := k.UnmarshalText([]byte(testPublicKey)); err != nil {
		t.Fatalf("UnmarshalText returned error: %v", err)
	}
	text, err := k.MarshalText()
	if err != nil {
		t.Fatalf("MarshalText returned error: %v", err)
	}
	if string(text) != testPublicKey {
		t.Fatalf("expected %s, got %s", testPublicKey, text)
	}
}
