// Package netwatch internal/netwatch/watcher.go
package netwatch

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/skycoin/skywire-utilities/pkg/logging"
	"github.com/skycoin/skywire-utilities/pkg/netutil"

	"github.com/skycoin/vpn-coordinator/pkg/nettrust"
)

// DefaultInterval is the default polling interval.
const DefaultInterval = 5 * time.Second

// Change is emitted whenever the active network changes.
type Change struct {
	Network     nettrust.Network
	CachedTrust nettrust.TrustLevel
}

// Source returns the name of the interface carrying the default route.
type Source func() (string, error)

// Config configures a Watcher.
type Config struct {
	Interval time.Duration
	Source   Source
	Trust    nettrust.Store
	Log      logrus.FieldLogger
}

// Watcher polls the default network interface and reports changes.
type Watcher struct {
	interval time.Duration
	source   Source
	trust    nettrust.Store
	log      logrus.FieldLogger

	mx      sync.Mutex
	current nettrust.Network
	started bool
}

// New creates a Watcher.
func New(conf Config) *Watcher {
	if conf.Interval <= 0 {
		conf.Interval = DefaultInterval
	}
	if conf.Source == nil {
		conf.Source = netutil.DefaultNetworkInterface
	}
	if conf.Trust == nil {
		conf.Trust = nettrust.NewMemoryStore()
	}
	if conf.Log == nil {
		conf.Log = logging.MustGetLogger("netwatch")
	}
	return &Watcher{
		interval: conf.Interval,
		source:   conf.Source,
		trust:    conf.Trust,
		log:      conf.Log,
		current:  nettrust.Network{Type: nettrust.NetworkNone},
	}
}

// Current returns the last observed network.
func (w *Watcher) Current() nettrust.Network {
	w.mx.Lock()
	defer w.mx.Unlock()
	return w.current
}

// Poll observes the network once. The change is reported on the first poll
// and whenever the network identity differs from the previous poll.
func (w *Watcher) Poll() (Change, bool) {
	iface, err := w.source()
	if err != nil {
		w.log.WithError(err).Debug("Failed to get default network interface.")
		iface = ""
	}
	n := Classify(iface)

	w.mx.Lock()
	changed := !w.started || !w.current.Same(n)
	w.started = true
	w.current = n
	w.mx.Unlock()

	if !changed {
		return Change{}, false
	}

	trust := nettrust.Unknown
	if !n.IsNone() {
		cached, ok, err := w.trust.Trust(n)
		switch {
		case err != nil:
			w.log.WithError(err).WithField("network", n).Warn("Failed to read cached trust.")
		case ok:
			trust = cached
		}
	}

	w.log.WithField("network", n).WithField("trust", trust).Info("Network changed.")
	return Change{Network: n, CachedTrust: trust}, true
}

// Run polls until ctx is done, calling onChange with every change.
func (w *Watcher) Run(ctx context.Context, onChange func(Change)) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		if c, ok := w.Poll(); ok {
			onChange(c)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Classify guesses the network type from an interface name.
func Classify(iface string) nettrust.Network {
	iface = strings.TrimSpace(iface)
	if iface == "" {
		return nettrust.Network{Type: nettrust.NetworkNone}
	}

	name := strings.ToLower(iface)
	t := nettrust.NetworkEthernet
	switch {
	case strings.HasPrefix(name, "wl"), strings.HasPrefix(name, "wifi"), strings.HasPrefix(name, "ath"):
		t = nettrust.NetworkWiFi
	case strings.HasPrefix(name, "wwan"), strings.HasPrefix(name, "rmnet"),
		strings.HasPrefix(name, "ppp"), strings.HasPrefix(name, "pdp_ip"), strings.HasPrefix(name, "ccmni"):
		t = nettrust.NetworkCellular
	}
	return nettrust.Network{Type: t, Name: iface}
}
