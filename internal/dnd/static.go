package dnd

import (
	"context"
	"fmt"
)

// Static is an in-memory Directory implementation used by tests. It is not
// a network client and has no role outside test fixtures.
type Static struct {
	Records map[string]Record
	// Responder computes the challenge response for a user, defaulting to
	// a simple reversible transform if nil.
	Responder func(challenge, password string) string
}

func (s *Static) LookupUnique(_ context.Context, name string, _ ...string) (Record, error) {
	rec, ok := s.Records[name]
	if !ok {
		return Record{}, fmt.Errorf("dnd: no such user %q", name)
	}
	return rec, nil
}

func (s *Static) EncryptChallenge(_ context.Context, challenge, password string) (string, error) {
	if s.Responder != nil {
		return s.Responder(challenge, password), nil
	}
	return challenge + ":" + password, nil
}

// StaticValidator is an in-memory Validator implementation used by tests.
type StaticValidator struct {
	// Challenge is the challenge text BeginValidate hands back; defaults
	// to a fixed test value if empty.
	Challenge string
	// Passwords maps a directory name to the Record CompleteValidate
	// returns for it on success.
	Passwords map[string]Record
	// Secrets maps a directory name to its password.
	Secrets map[string]string
	// Responder computes the expected response for a user, defaulting to
	// the same transform Static.EncryptChallenge uses if nil.
	Responder func(challenge, password string) string

	pending string
}

func (v *StaticValidator) BeginValidate(_ context.Context, name string) (string, error) {
	v.pending = name
	if v.Challenge != "" {
		return v.Challenge, nil
	}
	return "abcdef012345", nil
}

func (v *StaticValidator) CompleteValidate(_ context.Context, response string) (Record, error) {
	name := v.pending
	v.pending = ""

	rec, ok := v.Passwords[name]
	if !ok {
		return Record{}, fmt.Errorf("dnd: no such user %q", name)
	}
	secret := v.Secrets[name]
	challenge := v.Challenge
	if challenge == "" {
		challenge = "abcdef012345"
	}

	want := challenge + ":" + secret
	if v.Responder != nil {
		want = v.Responder(challenge, secret)
	}
	if response != want {
		return Record{}, fmt.Errorf("dnd: validation failed for %q", name)
	}
	return rec, nil
}
