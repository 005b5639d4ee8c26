package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"
)

func sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func TestVerifySignature_RoundTrip(t *testing.T) {
	bodies := [][]byte{
		[]byte(""),
		[]byte("{}"),
		[]byte(`{"action":"opened"}`),
		{0x00, 0xff, 0x7f},
	}
	for _, body := range bodies {
		if !VerifySignature(body, sign(body, "s3cret"), "s3cret") {
			t.Errorf("expected valid signature for body %q", body)
		}
	}
}

func TestVerifySignature_BodyBitFlip(t *testing.T) {
	body := []byte(`{"action":"opened"}`)
	signature := sign(body, "s3cret")

	flipped := append([]byte(nil), body...)
	flipped[0] ^= 0x01
	if VerifySignature(flipped, signature, "s3cret") {
		t.Error("expected signature mismatch after body bit flip")
	}
}

func TestVerifySignature_DigestBitFlip(t *testing.T) {
	body := []byte(`{"action":"opened"}`)
	signature := []byte(sign(body, "s3cret"))

	// Flip one hex digit in the digest
	last := len(signature) - 1
	if signature[last] == 'a' {
		signature[last] = 'b'
	} else {
		signature[last] = 'a'
	}
	if VerifySignature(body, string(signature), "s3cret") {
		t.Error("expected signature mismatch after digest bit flip")
	}
}

func TestVerifySignature_WrongSecret(t *testing.T) {
	body := []byte(`{"action":"opened"}`)
	if VerifySignature(body, sign(body, "s3cret"), "other") {
		t.Error("expected mismatch for wrong secret")
	}
}

func TestVerifySignature_Malformed(t *testing.T) {
	body := []byte("{}")
	cases := []string{
		"",                    // empty header
		"sha256",              // no separator
		"deadbeef",            // digest without algorithm
		"sha1=deadbeef",       // unsupported algorithm
		"sha256=not-hex-data", // junk digest
	}
	for _, header := range cases {
		// Must return false, never panic
		if VerifySignature(body, header, "s3cret") {
			t.Errorf("expected false for malformed header %q", header)
		}
	}
}
