package adapter

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// Encoder hashes a cleartext password under one named scheme.
type Encoder interface {
	Name() string
	Encode(plain string) (string, error)
}

// EncoderRegistry resolves password encoders by the name carried in the
// record's encoder field. Lookups are case-insensitive in spirit: names are
// registered lowercase and callers normalize.
type EncoderRegistry struct {
	encoders    map[string]Encoder
	defaultName string
}

// NewEncoderRegistry builds the stock registry: bcrypt as the default, plus
// the legacy md5 scheme for records migrated from older systems.
func NewEncoderRegistry() *EncoderRegistry {
	r := &EncoderRegistry{encoders: make(map[string]Encoder), defaultName: "bcrypt"}
	r.Register(bcryptEncoder{})
	r.Register(md5Encoder{})
	return r
}

// Register adds an encoder under its own name.
func (r *EncoderRegistry) Register(e Encoder) {
	r.encoders[e.Name()] = e
}

// DefaultName returns the name used when a record carries no encoder field.
func (r *EncoderRegistry) DefaultName() string { return r.defaultName }

// Get returns the encoder registered under the given name.
func (r *EncoderRegistry) Get(name string) (Encoder, error) {
	e, ok := r.encoders[name]
	if !ok {
		return nil, fmt.Errorf("unknown password encoder %q", name)
	}
	return e, nil
}

type bcryptEncoder struct{}

func (bcryptEncoder) Name() string { return "bcrypt" }

func (bcryptEncoder) Encode(plain string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("bcrypt encode: %w", err)
	}
	return string(hash), nil
}

type md5Encoder struct{}

func (md5Encoder) Name() string { return "md5" }

func (md5Encoder) Encode(plain string) (string, error) {
	sum := md5.Sum([]byte(plain))
	return hex.EncodeToString(sum[:]), nil
}
