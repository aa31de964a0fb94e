// Package keyrotation pkg/keyrotation/key.go
package keyrotation

import (
	"context"
	"time"

	"github.com/skycoin/skywire-utilities/pkg/cipher"
)

// KeyState is the state of the tunnel key material.
type KeyState int

const (
	// Valid key material; connects may proceed.
	Valid KeyState = iota
	// Expired key material; a connect triggers regeneration.
	Expired
	// RegenerationInFlight while a regeneration call is outstanding.
	RegenerationInFlight
	// RegenerationFailed after the last regeneration failed.
	RegenerationFailed
)

func (s KeyState) String() string {
	switch s {
	case Valid:
		return "valid"
	case Expired:
		return "expired"
	case RegenerationInFlight:
		return "regeneration-in-flight"
	case RegenerationFailed:
		return "regeneration-failed"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s KeyState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// KeyPair is the tunnel key material.
type KeyPair struct {
	Public      cipher.PubKey `json:"public_key"`
	Secret      cipher.SecKey `json:"-"`
	GeneratedAt time.Time     `json:"generated_at"`
	ExpiresAt   time.Time     `json:"expires_at"`
}

// IsZero reports whether no key material is set.
func (kp KeyPair) IsZero() bool {
	return kp.Public.Null()
}

// ExpiredAt reports whether the key is expired at t.
func (kp KeyPair) ExpiredAt(t time.Time) bool {
	if kp.IsZero() {
		return true
	}
	return !kp.ExpiresAt.IsZero() && !t.Before(kp.ExpiresAt)
}

// Regenerator produces fresh key material.
type Regenerator interface {
	// RegenerateKeys starts a regeneration and calls done exactly once with its
	// outcome. done may be called from any goroutine.
	RegenerateKeys(ctx context.Context, done func(KeyPair, error))
}

// RegeneratorFunc is a function adapter for Regenerator.
type RegeneratorFunc func(ctx context.Context, done func(KeyPair, error))

// RegenerateKeys implements Regenerator.
func (f RegeneratorFunc) RegenerateKeys(ctx context.Context, done func(KeyPair, error)) {
	f(ctx, done)
}
