package keyrotation

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/skycoin/skywire-utilities/pkg/logging"

	"github.com/skycoin/vpn-coordinator/pkg/vpnerr"
)

// Decision is the result of Gate.BeginConnection.
type Decision int

const (
	// DecisionProceed means the intent already ran.
	DecisionProceed Decision = iota
	// DecisionSuspended means a regeneration started and the intent waits for it.
	DecisionSuspended
	// DecisionQueued means a regeneration was already in flight; the intent
	// replaced any previously stored one.
	DecisionQueued
)

func (d Decision) String() string {
	switch d {
	case DecisionProceed:
		return "proceed"
	case DecisionSuspended:
		return "suspended"
	case DecisionQueued:
		return "queued"
	default:
		return "unknown"
	}
}

// ErrNoRegenerator is reported when regeneration is needed but the gate has none.
var ErrNoRegenerator = errors.New("no key regenerator configured")

// GateConfig configures a Gate.
type GateConfig struct {
	Regenerator Regenerator
	// Key is the initial key material; a zero key starts the gate Expired.
	Key KeyPair
	// OnStart is called when a regeneration starts.
	OnStart func()
	// OnFailure receives a vpnerr KeyRegenerationFailure.
	OnFailure func(error)
	// OnSuccess is called with the new key after a successful regeneration.
	OnSuccess func(KeyPair)
	Log       logrus.FieldLogger
	Clock     func() time.Time
}

// Gate gates connection attempts on valid key material. At most one
// regeneration is in flight and at most one connect intent waits for it.
type Gate struct {
	regen     Regenerator
	onStart   func()
	onFailure func(error)
	onSuccess func(KeyPair)
	log       logrus.FieldLogger
	now       func() time.Time

	mx      sync.Mutex
	state   KeyState
	key     KeyPair
	pending func()
	gen     uint64
	// expired stays set from detected expiry until a regeneration succeeds.
	expired bool
}

// NewGate constructs a Gate.
func NewGate(conf GateConfig) *Gate {
	g := &Gate{
		regen:     conf.Regenerator,
		onStart:   conf.OnStart,
		onFailure: conf.OnFailure,
		onSuccess: conf.OnSuccess,
		log:       conf.Log,
		now:       conf.Clock,
		key:       conf.Key,
	}
	if g.log == nil {
		g.log = logging.MustGetLogger("key_rotation")
	}
	if g.now == nil {
		g.now = time.Now
	}
	if g.key.ExpiredAt(g.now()) {
		g.state = Expired
		g.expired = true
	}
	return g
}

// State returns the current KeyState.
func (g *Gate) State() KeyState {
	g.mx.Lock()
	defer g.mx.Unlock()

	g.checkExpiryLocked()
	return g.state
}

// Key returns the current key material.
func (g *Gate) Key() KeyPair {
	g.mx.Lock()
	defer g.mx.Unlock()

	return g.key
}

// MarkExpired records that key expiry was detected.
func (g *Gate) MarkExpired() {
	g.mx.Lock()
	defer g.mx.Unlock()

	if g.state == Valid {
		g.state = Expired
	}
	g.expired = true
}

// BeginConnection runs intent once key material is valid. With valid keys the
// intent runs synchronously. Otherwise a regeneration is started (or joined)
// and intent is stored until it resolves; a later call replaces the stored
// intent. On failure the stored intent is dropped and OnFailure is called.
func (g *Gate) BeginConnection(ctx context.Context, intent func()) Decision {
	g.mx.Lock()
	g.checkExpiryLocked()

	switch g.state {
	case Valid:
		g.mx.Unlock()
		if intent != nil {
			intent()
		}
		return DecisionProceed

	case RegenerationInFlight:
		g.pending = intent
		g.mx.Unlock()
		g.log.Debug("Key regeneration in flight, connect intent replaced.")
		return DecisionQueued

	default:
		g.pending = intent
		start := g.startLocked()
		g.mx.Unlock()
		start(ctx)
		return DecisionSuspended
	}
}

// Rotate regenerates keys without a connect intent. It is a no-op while a
// regeneration is already in flight.
func (g *Gate) Rotate(ctx context.Context) bool {
	g.mx.Lock()
	if g.state == RegenerationInFlight {
		g.mx.Unlock()
		return false
	}
	start := g.startLocked()
	g.mx.Unlock()

	start(ctx)
	return true
}

func (g *Gate) checkExpiryLocked() {
	if g.state == Valid && g.key.ExpiredAt(g.now()) {
		g.state = Expired
		g.expired = true
	}
}

// startLocked moves the gate to RegenerationInFlight and returns the function
// starting the regeneration, to be called without holding mx.
func (g *Gate) startLocked() func(context.Context) {
	g.state = RegenerationInFlight
	g.gen++
	gen := g.gen

	return func(ctx context.Context) {
		g.log.Info("Regenerating keys...")
		if g.onStart != nil {
			g.onStart()
		}
		if g.regen == nil {
			g.finish(gen, KeyPair{}, ErrNoRegenerator)
			return
		}

		var once sync.Once
		g.regen.RegenerateKeys(ctx, func(kp KeyPair, err error) {
			once.Do(func() { g.finish(gen, kp, err) })
		})
	}
}

func (g *Gate) finish(gen uint64, kp KeyPair, err error) {
	if err == nil && kp.IsZero() {
		err = errors.New("regenerator returned empty key")
	}

	g.mx.Lock()
	if gen != g.gen || g.state != RegenerationInFlight {
		g.mx.Unlock()
		return
	}

	intent := g.pending
	g.pending = nil

	if err != nil {
		g.state = RegenerationFailed
		expired := g.expired || g.key.ExpiredAt(g.now())
		g.mx.Unlock()

		regenErr := vpnerr.KeyRegenerationFailure(expired, err)
		g.log.WithError(err).WithField("expired", expired).Warn("Key regeneration failed.")
		if g.onFailure != nil {
			g.onFailure(regenErr)
		}
		return
	}

	g.state = Valid
	g.key = kp
	g.expired = false
	g.mx.Unlock()

	g.log.WithField("public_key", kp.Public.Hex()).Info("Keys regenerated.")
	if g.onSuccess != nil {
		g.onSuccess(kp)
	}
	if intent != nil {
		intent()
	}
}
