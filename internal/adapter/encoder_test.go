package adapter

import (
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestEncoderRegistryDefault(t *testing.T) {
	r := NewEncoderRegistry()
	if r.DefaultName() != "bcrypt" {
		t.Errorf("DefaultName() = %q, want bcrypt", r.DefaultName())
	}
	if _, err := r.Get("argon2"); err == nil {
		t.Error("Get(argon2) accepted an unregistered encoder")
	}
}

func TestMD5EncoderIsDeterministic(t *testing.T) {
	r := NewEncoderRegistry()
	enc, err := r.Get("md5")
	if err != nil {
		t.Fatalf("Get(md5) error = %v", err)
	}
	hash, err := enc.Encode("secret")
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	if hash != "5ebe2294ecd0e0f08eab7690d2a6ee69" {
		t.Errorf("md5(secret) = %q", hash)
	}
}

func TestBcryptEncoderVerifiable(t *testing.T) {
	r := NewEncoderRegistry()
	enc, err := r.Get("bcrypt")
	if err != nil {
		t.Fatalf("Get(bcrypt) error = %v", err)
	}
	hash, err := enc.Encode("secret")
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte("secret")); err != nil {
		t.Errorf("hash does not verify: %v", err)
	}
}
