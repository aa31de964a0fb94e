// Package coordinator pkg/coordinator/coordinator.go
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/skycoin/skywire-utilities/pkg/logging"

	"github.com/skycoin/vpn-coordinator/pkg/connstatus"
	"github.com/skycoin/vpn-coordinator/pkg/coordinator/coordmetrics"
	"github.com/skycoin/vpn-coordinator/pkg/keyrotation"
	"github.com/skycoin/vpn-coordinator/pkg/nettrust"
	"github.com/skycoin/vpn-coordinator/pkg/session"
	"github.com/skycoin/vpn-coordinator/pkg/vpnerr"
)

// Errors associated with the Coordinator type.
var (
	ErrNoPlatform    = errors.New("platform is not set")
	ErrClosed        = errors.New("coordinator is closed")
	ErrNoSessions    = errors.New("session service is not set")
	ErrAlreadyActive = errors.New("connection is already active")
)

// ConnectOptions are passed to the platform connect call.
type ConnectOptions struct {
	RequestID uuid.UUID
	Reason    Reason
	// Automatic connects are silent; otherwise the platform may ask the user.
	Automatic bool
}

// Platform is the VPN subsystem of the operating system. Status changes are
// fed back through Coordinator.OnExternalStatusUpdate.
type Platform interface {
	Connect(ctx context.Context, opts ConnectOptions) error
	Disconnect(ctx context.Context) error
	Status(ctx context.Context) (connstatus.Status, error)
}

// SessionService creates account sessions.
type SessionService interface {
	CreateSession(ctx context.Context, force bool) (session.Outcome, error)
}

// Reporter receives everything the caller has to render.
type Reporter interface {
	// ReportAction is called with every session recovery action other than
	// connect, together with its classified cause.
	ReportAction(a session.Action, cause error)
	// ReportError is called with failures outside the session flow.
	ReportError(err error)
}

// NopReporter discards reports.
type NopReporter struct{}

// ReportAction implements Reporter.
func (NopReporter) ReportAction(session.Action, error) {}

// ReportError implements Reporter.
func (NopReporter) ReportError(error) {}

// ConfirmFunc asks the caller to confirm a reconnect. It may block.
type ConfirmFunc func() bool

// Config holds the collaborators of a Coordinator.
type Config struct {
	Platform     Platform
	Regenerator  keyrotation.Regenerator
	Key          keyrotation.KeyPair
	Sessions     SessionService
	Guard        session.Guard
	Trust        nettrust.Store
	Reporter     Reporter
	Metrics      coordmetrics.Metrics
	Log          logrus.FieldLogger
	// OnKeyRotated is called, off the event loop, with every new key pair.
	OnKeyRotated func(keyrotation.KeyPair)
}

// State is a point-in-time view of the coordinator.
type State struct {
	Status                connstatus.Status    `json:"status"`
	ReconnectPending      bool                 `json:"reconnect_pending"`
	OutstandingKeyRequest bool                 `json:"outstanding_key_request"`
	PendingRequest        *ReconnectRequest    `json:"pending_request,omitempty"`
	Network               nettrust.Network     `json:"network"`
	Trust                 nettrust.TrustLevel  `json:"trust"`
	KeyState              keyrotation.KeyState `json:"key_state"`
}

// Coordinator owns the connection status and serializes every transition
// onto a single event loop run by Serve.
type Coordinator struct {
	platform Platform
	gate     *keyrotation.Gate
	sessions SessionService
	guard    session.Guard
	trust    nettrust.Store
	reporter Reporter
	metrics  coordmetrics.Metrics
	log      logrus.FieldLogger

	events    *funcQueue
	deliver   *funcQueue
	listeners *listenerRegistry

	ctx       context.Context
	cancel    context.CancelFunc
	closeC    chan struct{}
	closeOnce sync.Once

	// owned by the event loop
	status                connstatus.Status
	hasStatus             bool
	reconnectPending      bool
	pending               *ReconnectRequest
	outstandingKeyRequest bool
	intentSeq             uint64
	sessionInFlight       bool
	network               nettrust.Network
	trustLevel            nettrust.TrustLevel

	snapMx sync.RWMutex
	snap   State
}

// New creates a Coordinator. Serve must be running for it to process events.
func New(conf Config) (*Coordinator, error) {
	if conf.Platform == nil {
		return nil, ErrNoPlatform
	}
	if conf.Log == nil {
		conf.Log = logging.MustGetLogger("vpn_coordinator")
	}
	if conf.Reporter == nil {
		conf.Reporter = NopReporter{}
	}
	if conf.Metrics == nil {
		conf.Metrics = coordmetrics.NewEmpty()
	}
	if conf.Trust == nil {
		conf.Trust = nettrust.NewMemoryStore()
	}

	ctx, cancel := context.WithCancel(context.Background())

	c := &Coordinator{
		platform:   conf.Platform,
		sessions:   conf.Sessions,
		guard:      conf.Guard,
		trust:      conf.Trust,
		reporter:   conf.Reporter,
		metrics:    conf.Metrics,
		log:        conf.Log,
		events:     newFuncQueue(),
		deliver:    newFuncQueue(),
		listeners:  newListenerRegistry(),
		ctx:        ctx,
		cancel:     cancel,
		closeC:     make(chan struct{}),
		status:     connstatus.Invalid,
		network:    nettrust.Network{Type: nettrust.NetworkNone},
		trustLevel: nettrust.Unknown,
	}

	c.gate = keyrotation.NewGate(keyrotation.GateConfig{
		Regenerator: conf.Regenerator,
		Key:         conf.Key,
		Log:         conf.Log.WithField("component", "key_rotation"),
		OnStart: func() {
			c.log.Debug("Key regeneration started.")
		},
		OnSuccess: func(kp keyrotation.KeyPair) {
			c.post(func() {
				c.metrics.RecordKeyRegeneration(true)
				if conf.OnKeyRotated != nil {
					c.deliver.push(func() { conf.OnKeyRotated(kp) })
				}
			})
		},
		OnFailure: func(err error) {
			c.post(func() { c.handleKeyFailure(err) })
		},
	})
	c.publish()
	c.post(c.fetchInitialStatus)

	return c, nil
}

// Serve runs the event loop until ctx is done or Close is called.
func (c *Coordinator) Serve(ctx context.Context) error {
	eg, ctx := errgroup.WithContext(ctx)

	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
		case <-c.closeC:
		}
		close(done)
	}()

	eg.Go(func() error {
		c.events.run(done)
		return nil
	})
	eg.Go(func() error {
		c.deliver.run(done)
		return nil
	})

	if err := eg.Wait(); err != nil {
		return err
	}

	select {
	case <-c.closeC:
		return nil
	default:
		return ctx.Err()
	}
}

// Close stops the event loop. Posted but unprocessed events are dropped.
func (c *Coordinator) Close() error {
	closed := false
	c.closeOnce.Do(func() {
		closed = true
		c.cancel()
		close(c.closeC)
		c.events.close()
		c.deliver.close()
	})
	if !closed {
		return ErrClosed
	}
	return nil
}

// Sync blocks until every event posted before the call has been processed and
// every resulting notification delivered.
func (c *Coordinator) Sync(ctx context.Context) error {
	done := make(chan struct{})
	ok := c.post(func() {
		if !c.deliver.push(func() { close(done) }) {
			close(done)
		}
	})
	if !ok {
		return ErrClosed
	}

	select {
	case <-done:
		return nil
	case <-c.closeC:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Subscribe registers a status listener.
func (c *Coordinator) Subscribe(l Listener) *Subscription {
	return c.listeners.add(l)
}

// State returns the last published state.
func (c *Coordinator) State() State {
	c.snapMx.RLock()
	defer c.snapMx.RUnlock()

	s := c.snap
	if s.PendingRequest != nil {
		req := *s.PendingRequest
		s.PendingRequest = &req
	}
	s.KeyState = c.gate.State()
	return s
}

// Status returns the current connection status.
func (c *Coordinator) Status() connstatus.Status {
	return c.State().Status
}

// Network returns the last evaluated network and its trust.
func (c *Coordinator) Network() (nettrust.Network, nettrust.TrustLevel) {
	s := c.State()
	return s.Network, s.Trust
}

// CanChangeProtocol reports whether the tunnel protocol may be changed now.
func (c *Coordinator) CanChangeProtocol() bool {
	return c.Status().IsDisconnected()
}

// OnExternalStatusUpdate is the single entry point changing the status.
func (c *Coordinator) OnExternalStatusUpdate(status connstatus.Status) {
	c.post(func() { c.handleStatus(status) })
}

// RequestReconnect tears the tunnel down (when up) and connects again. Only
// one sequence runs at a time; a request made while one is pending replaces
// the stored intent.
func (c *Coordinator) RequestReconnect(reason Reason, automatic bool) {
	req := newRequest(reason, automatic)
	c.post(func() { c.handleReconnect(req) })
}

// ReconnectToFastestServer reconnects automatically, only while connected.
func (c *Coordinator) ReconnectToFastestServer() {
	req := newRequest(ReasonFastestServer, true)
	c.post(func() {
		if c.status != connstatus.Connected {
			c.log.WithField("status", c.status).Debug("Not connected, fastest server reconnect skipped.")
			return
		}
		c.handleReconnect(req)
	})
}

// Connect connects unless the tunnel is already up or coming up.
func (c *Coordinator) Connect() {
	req := newRequest(ReasonUser, false)
	c.post(func() {
		if c.status.IsActive() {
			c.reporter.ReportError(ErrAlreadyActive)
			return
		}
		c.connect(req)
	})
}

// Disconnect tears the tunnel down and drops any pending reconnect or
// suspended connect intent.
func (c *Coordinator) Disconnect() {
	c.post(func() {
		c.reconnectPending = false
		c.pending = nil
		c.outstandingKeyRequest = false
		c.intentSeq++
		c.platformDisconnect()
	})
}

// RotateKeys regenerates key material without connecting.
func (c *Coordinator) RotateKeys() bool {
	return c.gate.Rotate(c.ctx)
}

// MarkKeysExpired records that the key material was reported expired. The
// next connect regenerates it first.
func (c *Coordinator) MarkKeysExpired() {
	c.log.Info("Keys reported expired.")
	c.gate.MarkExpired()
}

// EvaluateNetworkChange evaluates a network or trust change. When a reconnect
// is needed, confirm is asked (off the event loop) and only an explicit
// confirmation requests an automatic trust-change reconnect. The returned
// channel receives whether a reconnect was requested, false when the
// coordinator is closed first.
func (c *Coordinator) EvaluateNetworkChange(network nettrust.Network, trust nettrust.TrustLevel, confirm ConfirmFunc) <-chan bool {
	result := make(chan bool, 1)
	answered := make(chan struct{})
	var once sync.Once
	reply := func(v bool) {
		once.Do(func() {
			result <- v
			close(answered)
		})
	}

	go func() {
		select {
		case <-answered:
		case <-c.closeC:
			reply(false)
		}
	}()

	if !c.post(func() { c.handleNetworkChange(network, trust, confirm, reply) }) {
		reply(false)
	}
	return result
}

// CreateSession creates an account session and acts on the outcome.
func (c *Coordinator) CreateSession(force bool) {
	c.post(func() { c.startSession(force) })
}

// ResolveSessionPrompt answers a PromptLogoutOrRetry action.
func (c *Coordinator) ResolveSessionPrompt(choice session.PromptChoice) {
	c.post(func() {
		force, err := choice.ForceNewSession()
		if err != nil {
			c.report(func(r Reporter) { r.ReportError(err) })
			return
		}
		c.startSession(force)
	})
}

func (c *Coordinator) post(fn func()) bool {
	return c.events.push(func() {
		fn()
		c.publish()
	})
}

func (c *Coordinator) report(fn func(r Reporter)) {
	c.deliver.push(func() { fn(c.reporter) })
}

func (c *Coordinator) fetchInitialStatus() {
	status, err := c.platform.Status(c.ctx)
	if err != nil {
		c.log.WithError(err).Warn("Failed to get initial platform status.")
		return
	}
	if c.hasStatus {
		return
	}
	c.handleStatus(status)
}

func (c *Coordinator) handleStatus(status connstatus.Status) {
	prev := c.status
	changed := !c.hasStatus || prev != status
	c.status = status
	c.hasStatus = true

	if changed {
		c.log.WithField("status", status).Debug("Status changed.")
		c.metrics.RecordStatus(status)
		c.notify(status)
	}

	if !c.reconnectPending {
		return
	}
	switch {
	case status.IsDisconnected():
		req := *c.pending
		c.reconnectPending = false
		c.pending = nil
		c.log.WithField("request_id", req.ID).Info("Disconnected, issuing pending reconnect.")
		c.connect(req)

	case status == connstatus.Connected && prev.IsDisconnecting():
		c.log.WithField("request_id", c.pending.ID).Warn("Connected again without disconnecting, pending reconnect dropped.")
		c.reconnectPending = false
		c.pending = nil
	}
}

func (c *Coordinator) notify(status connstatus.Status) {
	entries := c.listeners.snapshot()
	if len(entries) == 0 {
		return
	}
	c.deliver.push(func() {
		for _, e := range entries {
			if e.active.Load() {
				e.fn(status)
			}
		}
	})
}

func (c *Coordinator) handleReconnect(req ReconnectRequest) {
	c.metrics.RecordReconnect(string(req.Reason))
	log := c.log.WithField("reason", req.Reason).WithField("automatic", req.Automatic)

	if c.reconnectPending {
		if !c.status.IsDisconnected() {
			log.Debug("Reconnect already pending, intent replaced.")
			c.pending = &req
			return
		}
		c.reconnectPending = false
		c.pending = nil
	}

	switch {
	case c.status.IsActive():
		log.Info("Disconnecting before reconnect.")
		c.pending = &req
		c.reconnectPending = true
		if err := c.platformDisconnect(); err != nil {
			c.reconnectPending = false
			c.pending = nil
		}

	case c.status.IsDisconnecting():
		log.Debug("Disconnect in flight, reconnect pending.")
		c.pending = &req
		c.reconnectPending = true

	default:
		log.Info("Connecting.")
		c.connect(req)
	}
}

// connect gates the platform connect call on valid key material.
func (c *Coordinator) connect(req ReconnectRequest) {
	c.intentSeq++
	seq := c.intentSeq

	var (
		mx     sync.Mutex
		inline = true
		ran    bool
	)
	intent := func() {
		mx.Lock()
		if inline {
			ran = true
			mx.Unlock()
			return
		}
		mx.Unlock()
		c.post(func() { c.resumeConnect(seq, req) })
	}

	decision := c.gate.BeginConnection(c.ctx, intent)

	mx.Lock()
	inline = false
	resumed := ran
	mx.Unlock()

	if resumed {
		c.outstandingKeyRequest = false
		c.platformConnect(req)
		return
	}

	c.log.WithField("decision", decision).Info("Connect suspended until keys are regenerated.")
	c.outstandingKeyRequest = true
}

func (c *Coordinator) resumeConnect(seq uint64, req ReconnectRequest) {
	if seq != c.intentSeq {
		c.log.WithField("request_id", req.ID).Debug("Stale connect intent dropped.")
		return
	}
	c.outstandingKeyRequest = false
	c.platformConnect(req)
}

func (c *Coordinator) handleKeyFailure(err error) {
	c.metrics.RecordKeyRegeneration(false)
	c.outstandingKeyRequest = false
	c.report(func(r Reporter) { r.ReportError(err) })
}

func (c *Coordinator) platformConnect(req ReconnectRequest) {
	done := c.metrics.RecordConnectAttempt()
	err := c.platform.Connect(c.ctx, req.options())
	done(&err)

	if err != nil {
		c.log.WithError(err).Warn("Platform connect failed.")
		perr := vpnerr.PlatformConnectFailure("connect", err)
		c.report(func(r Reporter) { r.ReportError(perr) })
	}
}

func (c *Coordinator) platformDisconnect() error {
	if err := c.platform.Disconnect(c.ctx); err != nil {
		c.log.WithError(err).Warn("Platform disconnect failed.")
		perr := vpnerr.PlatformConnectFailure("disconnect", err)
		c.report(func(r Reporter) { r.ReportError(perr) })
		return err
	}
	return nil
}

func (c *Coordinator) handleNetworkChange(network nettrust.Network, trust nettrust.TrustLevel, confirm ConfirmFunc, reply func(bool)) {
	cached, ok, err := c.trust.Trust(network)
	if err != nil {
		c.log.WithError(err).WithField("network", network).Warn("Failed to read cached trust.")
	}
	if !ok {
		cached = nettrust.Unknown
	}

	change := nettrust.Change{
		Previous:      c.network,
		PreviousTrust: c.trustLevel,
		Next:          network,
		NextTrust:     trust,
		CachedTrust:   cached,
		Active:        c.status.IsActive(),
	}

	if !nettrust.NeedsReconnect(change) {
		c.applyNetwork(network, trust)
		reply(false)
		return
	}

	log := c.log.WithField("network", network).WithField("trust", trust)
	log.Info("Trust change requires reconnect, asking for confirmation.")

	go func() {
		confirmed := confirm != nil && confirm()
		ok := c.post(func() {
			if !confirmed {
				log.Info("Reconnect declined.")
				reply(false)
				return
			}
			c.applyNetwork(network, trust)
			c.handleReconnect(newRequest(ReasonTrustChange, true))
			reply(true)
		})
		if !ok {
			reply(false)
		}
	}()
}

func (c *Coordinator) applyNetwork(network nettrust.Network, trust nettrust.TrustLevel) {
	c.network = network
	c.trustLevel = trust

	if network.IsNone() {
		return
	}
	if err := c.trust.SetTrust(network, trust); err != nil {
		c.log.WithError(err).WithField("network", network).Warn("Failed to persist trust.")
	}
}

func (c *Coordinator) startSession(force bool) {
	if c.sessions == nil {
		c.report(func(r Reporter) { r.ReportError(ErrNoSessions) })
		return
	}
	if c.sessionInFlight {
		c.log.Debug("Session creation already in flight.")
		return
	}
	c.sessionInFlight = true

	go func() {
		outcome, err := c.sessions.CreateSession(c.ctx, force)
		c.post(func() {
			c.sessionInFlight = false
			if err != nil {
				c.handleSessionError(err)
				return
			}
			c.handleOutcome(outcome)
		})
	}()
}

func (c *Coordinator) handleSessionError(err error) {
	c.log.WithError(err).Warn("Session creation failed.")
	if vpnerr.KindOf(err) == "" {
		err = vpnerr.NetworkUnreachable(err)
	}
	c.report(func(r Reporter) { r.ReportError(err) })
}

func (c *Coordinator) handleOutcome(o session.Outcome) {
	c.metrics.RecordSessionOutcome(o.Kind)
	action := c.guard.Handle(o)
	c.log.WithField("outcome", o.Kind).WithField("action", action).Info("Session outcome handled.")

	switch action.Kind {
	case session.ActionNone:
		return

	case session.ActionConnect:
		if c.status.IsActive() {
			return
		}
		c.connect(newRequest(ReasonSession, false))
		return
	}

	cause := actionCause(action, o)
	c.report(func(r Reporter) { r.ReportAction(action, cause) })
}

func actionCause(a session.Action, o session.Outcome) error {
	switch a.Kind {
	case session.ActionForceLogout:
		return vpnerr.AuthenticationFailure()
	case session.ActionPresentUpgrade, session.ActionPromptLogoutOrRetry:
		return vpnerr.TooManySessions(o.Limit, o.UpgradeURL, o.Upgradable)
	case session.ActionReportError:
		return vpnerr.SessionFailure(a.Message)
	}
	return fmt.Errorf("unexpected session action %s", a.Kind)
}

func (c *Coordinator) publish() {
	var pending *ReconnectRequest
	if c.pending != nil {
		req := *c.pending
		pending = &req
	}

	c.snapMx.Lock()
	c.snap = State{
		Status:                c.status,
		ReconnectPending:      c.reconnectPending,
		OutstandingKeyRequest: c.outstandingKeyRequest,
		PendingRequest:        pending,
		Network:               c.network,
		Trust:                 c.trustLevel,
	}
	c.snapMx.Unlock()
}
