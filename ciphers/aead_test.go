package ciphers

import (
	"bytes"
	"testing"
)

func TestAEADSealOpenRoundTrip(t *testing.T) {
	key := DeriveKey([]byte("a test passphrase"), 32)
	seal, err := NewAEAD(key)
	if err != nil {
		t.Fatalf("NewAEAD: %v", err)
	}
	open, err := NewAEAD(key)
	if err != nil {
		t.Fatalf("NewAEAD: %v", err)
	}

	plaintext := []byte("channel payload")
	ad := []byte{1, 2, 3, 4}

	ciphertext := seal.Seal(7, ad, plaintext, nil)
	got, err := open.Open(7, ad, ciphertext, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Fatalf("round trip: got %q, want %q", got, plaintext)
	}
}

func TestAEADRejectsWrongSeqn(t *testing.T) {
	key := DeriveKey([]byte("a test passphrase"), 32)
	seal, _ := NewAEAD(key)
	open, _ := NewAEAD(key)

	ciphertext := seal.Seal(1, nil, []byte("hi"), nil)
	if _, err := open.Open(2, nil, ciphertext, nil); err == nil {
		t.Fatal("Open: expected error with mismatched sequence number")
	}
}

func TestAEADRejectsTamperedCiphertext(t *testing.T) {
	key := DeriveKey([]byte("a test passphrase"), 32)
	seal, _ := NewAEAD(key)
	open, _ := NewAEAD(key)

	ciphertext := seal.Seal(0, nil, []byte("hi"), nil)
	ciphertext[0] ^= 0xff
	if _, err := open.Open(0, nil, ciphertext, nil); err == nil {
		t.Fatal("Open: expected error with tampered ciphertext")
	}
}

func TestDeriveKeyDeterministic(t *testing.T) {
	a := DeriveKey([]byte("secret"), 32)
	b := DeriveKey([]byte("secret"), 32)
	if !bytes.Equal(a, b) {
		t.Fatal("DeriveKey: expected deterministic output for the same passphrase")
	}
	c := DeriveKey([]byte("different"), 32)
	if bytes.Equal(a, c) {
		t.Fatal("DeriveKey: expected different output for different passphrases")
	}
}
