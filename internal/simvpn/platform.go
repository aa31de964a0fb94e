// Package simvpn internal/simvpn/platform.go
package simvpn

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/skycoin/skywire-utilities/pkg/logging"

	"github.com/skycoin/vpn-coordinator/pkg/connstatus"
	"github.com/skycoin/vpn-coordinator/pkg/coordinator"
)

// DefaultStepDelay is the delay between simulated status transitions.
const DefaultStepDelay = 300 * time.Millisecond

var (
	// ErrConnectRefused is returned by Connect after FailNextConnect.
	ErrConnectRefused = errors.New("simulated connect refused")
	// ErrNotConnected is returned by Reassert when the tunnel is not up.
	ErrNotConnected = errors.New("tunnel is not connected")
)

// StatusHandler receives every status the simulated tunnel moves through.
type StatusHandler func(status connstatus.Status)

// Platform simulates the operating system VPN subsystem. Transitions run
// asynchronously and a newer command abandons the transitions of an older one.
type Platform struct {
	log   logrus.FieldLogger
	delay time.Duration

	mx          sync.Mutex
	status      connstatus.Status
	epoch       uint64
	handler     StatusHandler
	failConnect bool
	last        coordinator.ConnectOptions
}

// New creates a disconnected Platform. A zero delay uses DefaultStepDelay.
func New(delay time.Duration, log logrus.FieldLogger) *Platform {
	if delay <= 0 {
		delay = DefaultStepDelay
	}
	if log == nil {
		log = logging.MustGetLogger("simvpn")
	}
	return &Platform{
		log:    log,
		delay:  delay,
		status: connstatus.Disconnected,
	}
}

// SetStatusHandler sets where status transitions are reported.
func (p *Platform) SetStatusHandler(h StatusHandler) {
	p.mx.Lock()
	p.handler = h
	p.mx.Unlock()
}

// FailNextConnect makes the next Connect call fail.
func (p *Platform) FailNextConnect() {
	p.mx.Lock()
	p.failConnect = true
	p.mx.Unlock()
}

// LastConnect returns the options of the last accepted Connect call.
func (p *Platform) LastConnect() coordinator.ConnectOptions {
	p.mx.Lock()
	defer p.mx.Unlock()
	return p.last
}

// Connect implements coordinator.Platform.
func (p *Platform) Connect(_ context.Context, opts coordinator.ConnectOptions) error {
	p.mx.Lock()
	defer p.mx.Unlock()

	if p.failConnect {
		p.failConnect = false
		return ErrConnectRefused
	}

	p.last = opts
	p.log.WithField("request_id", opts.RequestID).
		WithField("reason", opts.Reason).
		WithField("automatic", opts.Automatic).
		Info("Connecting tunnel.")

	p.startLocked(connstatus.Connecting, connstatus.Connected)
	return nil
}

// Disconnect implements coordinator.Platform.
func (p *Platform) Disconnect(context.Context) error {
	p.mx.Lock()
	defer p.mx.Unlock()

	p.log.Info("Disconnecting tunnel.")
	p.startLocked(connstatus.Disconnecting, connstatus.Disconnected)
	return nil
}

// Status implements coordinator.Platform.
func (p *Platform) Status(context.Context) (connstatus.Status, error) {
	p.mx.Lock()
	defer p.mx.Unlock()
	return p.status, nil
}

// Reassert simulates the system re-establishing a connected tunnel, as it
// does after a network change.
func (p *Platform) Reassert() error {
	p.mx.Lock()
	defer p.mx.Unlock()

	if p.status != connstatus.Connected {
		return ErrNotConnected
	}
	p.startLocked(
		connstatus.ReasserterDisconnecting,
		connstatus.ReasserterConnecting,
		connstatus.Connected,
	)
	return nil
}

// Drop simulates the tunnel going down without a Disconnect call.
func (p *Platform) Drop() {
	p.mx.Lock()
	defer p.mx.Unlock()

	p.startLocked(connstatus.Disconnected)
}

func (p *Platform) startLocked(steps ...connstatus.Status) {
	p.epoch++
	epoch := p.epoch

	p.setLocked(steps[0])
	if len(steps) == 1 {
		return
	}
	go p.run(epoch, steps[1:])
}

func (p *Platform) run(epoch uint64, steps []connstatus.Status) {
	for _, s := range steps {
		time.Sleep(p.delay)

		p.mx.Lock()
		if p.epoch != epoch {
			p.mx.Unlock()
			return
		}
		p.setLocked(s)
		p.mx.Unlock()
	}
}

// setLocked reports under the lock so handlers see transitions in order.
func (p *Platform) setLocked(s connstatus.Status) {
	p.status = s
	p.log.WithField("status", s).Debug("Tunnel status changed.")
	if p.handler != nil {
		p.handler(s)
	}
}
