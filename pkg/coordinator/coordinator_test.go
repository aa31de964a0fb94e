package coordinator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skycoin/skywire-utilities/pkg/cipher"
	"github.com/skycoin/skywire-utilities/pkg/logging"

	"github.com/skycoin/vpn-coordinator/pkg/connstatus"
	"github.com/skycoin/vpn-coordinator/pkg/keyrotation"
	"github.com/skycoin/vpn-coordinator/pkg/nettrust"
	"github.com/skycoin/vpn-coordinator/pkg/session"
	"github.com/skycoin/vpn-coordinator/pkg/vpnerr"
)

const waitFor = 2 * time.Second

type fakePlatform struct {
	mx          sync.Mutex
	connects    []ConnectOptions
	disconnects int
	status      connstatus.Status
	connectErr  error
}

func (p *fakePlatform) Connect(_ context.Context, opts ConnectOptions) error {
	p.mx.Lock()
	defer p.mx.Unlock()
	p.connects = append(p.connects, opts)
	return p.connectErr
}

func (p *fakePlatform) Disconnect(context.Context) error {
	p.mx.Lock()
	defer p.mx.Unlock()
	p.disconnects++
	return nil
}

func (p *fakePlatform) Status(context.Context) (connstatus.Status, error) {
	p.mx.Lock()
	defer p.mx.Unlock()
	return p.status, nil
}

func (p *fakePlatform) counts() (int, int) {
	p.mx.Lock()
	defer p.mx.Unlock()
	return len(p.connects), p.disconnects
}

func (p *fakePlatform) lastConnect() ConnectOptions {
	p.mx.Lock()
	defer p.mx.Unlock()
	return p.connects[len(p.connects)-1]
}

type fakeSessions struct {
	mx      sync.Mutex
	outcome session.Outcome
	err     error
	forced  []bool
}

func (s *fakeSessions) CreateSession(_ context.Context, force bool) (session.Outcome, error) {
	s.mx.Lock()
	defer s.mx.Unlock()
	s.forced = append(s.forced, force)
	return s.outcome, s.err
}

func (s *fakeSessions) calls() []bool {
	s.mx.Lock()
	defer s.mx.Unlock()
	return append([]bool(nil), s.forced...)
}

type reportedAction struct {
	action session.Action
	cause  error
}

type fakeReporter struct {
	mx      sync.Mutex
	actions []reportedAction
	errs    []error
}

func (r *fakeReporter) ReportAction(a session.Action, cause error) {
	r.mx.Lock()
	defer r.mx.Unlock()
	r.actions = append(r.actions, reportedAction{action: a, cause: cause})
}

func (r *fakeReporter) ReportError(err error) {
	r.mx.Lock()
	defer r.mx.Unlock()
	r.errs = append(r.errs, err)
}

func (r *fakeReporter) reported() ([]reportedAction, []error) {
	r.mx.Lock()
	defer r.mx.Unlock()
	return append([]reportedAction(nil), r.actions...), append([]error(nil), r.errs...)
}

// manualRegenerator hands every regeneration request to the test.
type manualRegenerator struct {
	dones chan func(keyrotation.KeyPair, error)
}

func newManualRegenerator() *manualRegenerator {
	return &manualRegenerator{dones: make(chan func(keyrotation.KeyPair, error), 4)}
}

func (r *manualRegenerator) RegenerateKeys(_ context.Context, done func(keyrotation.KeyPair, error)) {
	r.dones <- done
}

func (r *manualRegenerator) next(t *testing.T) func(keyrotation.KeyPair, error) {
	select {
	case done := <-r.dones:
		return done
	case <-time.After(waitFor):
		t.Fatal("no regeneration was started")
		return nil
	}
}

func validKey() keyrotation.KeyPair {
	pk, sk := cipher.GenerateKeyPair()
	now := time.Now()
	return keyrotation.KeyPair{
		Public:      pk,
		Secret:      sk,
		GeneratedAt: now,
		ExpiresAt:   now.Add(time.Hour),
	}
}

type harness struct {
	c        *Coordinator
	platform *fakePlatform
	sessions *fakeSessions
	reporter *fakeReporter
}

func newHarness(t *testing.T, mod func(conf *Config)) *harness {
	h := &harness{
		platform: &fakePlatform{status: connstatus.Disconnected},
		sessions: &fakeSessions{outcome: session.Success()},
		reporter: &fakeReporter{},
	}

	conf := Config{
		Platform: h.platform,
		Key:      validKey(),
		Sessions: h.sessions,
		Reporter: h.reporter,
		Log:      logging.MustGetLogger("coordinator_test"),
	}
	if mod != nil {
		mod(&conf)
	}

	c, err := New(conf)
	require.NoError(t, err)
	h.c = c

	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() { served <- c.Serve(ctx) }()

	t.Cleanup(func() {
		cancel()
		<-served
		_ = c.Close() //nolint:errcheck
	})

	h.sync(t)
	return h
}

func (h *harness) sync(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	require.NoError(t, h.c.Sync(ctx))
}

func (h *harness) setStatus(t *testing.T, statuses ...connstatus.Status) {
	for _, s := range statuses {
		h.c.OnExternalStatusUpdate(s)
	}
	h.sync(t)
}

func TestNew(t *testing.T) {
	_, err := New(Config{})
	require.ErrorIs(t, err, ErrNoPlatform)
}

func TestCoordinator_InitialStatus(t *testing.T) {
	h := newHarness(t, func(conf *Config) {
		conf.Platform.(*fakePlatform).status = connstatus.Connected
	})
	assert.Equal(t, connstatus.Connected, h.c.Status())
	assert.False(t, h.c.CanChangeProtocol())
}

func TestCoordinator_StatusDedup(t *testing.T) {
	h := newHarness(t, nil)

	var (
		mx  sync.Mutex
		got []connstatus.Status
	)
	sub := h.c.Subscribe(func(s connstatus.Status) {
		mx.Lock()
		got = append(got, s)
		mx.Unlock()
	})

	h.setStatus(t,
		connstatus.Disconnected,
		connstatus.Connecting,
		connstatus.Connecting,
		connstatus.Connected,
		connstatus.Connected,
		connstatus.Disconnecting,
		connstatus.Disconnected,
	)

	mx.Lock()
	assert.Equal(t, []connstatus.Status{
		connstatus.Connecting,
		connstatus.Connected,
		connstatus.Disconnecting,
		connstatus.Disconnected,
	}, got)
	mx.Unlock()

	sub.Unsubscribe()
	sub.Unsubscribe()
	h.setStatus(t, connstatus.Connecting)

	mx.Lock()
	assert.Len(t, got, 4)
	mx.Unlock()
}

func TestCoordinator_ReconnectFromDisconnected(t *testing.T) {
	h := newHarness(t, nil)

	h.c.RequestReconnect(ReasonUser, false)
	h.sync(t)

	connects, disconnects := h.platform.counts()
	assert.Equal(t, 1, connects)
	assert.Equal(t, 0, disconnects)
	assert.Equal(t, ReasonUser, h.platform.lastConnect().Reason)
	assert.False(t, h.c.State().ReconnectPending)
}

func TestCoordinator_ReconnectWhileConnected(t *testing.T) {
	h := newHarness(t, nil)
	h.setStatus(t, connstatus.Connected)

	h.c.RequestReconnect(ReasonUser, false)
	h.c.RequestReconnect(ReasonTrustChange, true)
	h.sync(t)

	connects, disconnects := h.platform.counts()
	assert.Equal(t, 0, connects)
	assert.Equal(t, 1, disconnects)

	st := h.c.State()
	require.True(t, st.ReconnectPending)
	require.NotNil(t, st.PendingRequest)
	assert.True(t, st.PendingRequest.Automatic)
	assert.Equal(t, ReasonTrustChange, st.PendingRequest.Reason)

	h.setStatus(t, connstatus.Disconnecting)
	connects, _ = h.platform.counts()
	assert.Equal(t, 0, connects)

	h.setStatus(t, connstatus.Disconnected)
	connects, disconnects = h.platform.counts()
	assert.Equal(t, 1, connects)
	assert.Equal(t, 1, disconnects)

	opts := h.platform.lastConnect()
	assert.True(t, opts.Automatic)
	assert.Equal(t, ReasonTrustChange, opts.Reason)
	assert.Equal(t, st.PendingRequest.ID, opts.RequestID)
	assert.False(t, h.c.State().ReconnectPending)

	// a later disconnect does not reconnect again
	h.setStatus(t, connstatus.Connected, connstatus.Disconnected)
	connects, _ = h.platform.counts()
	assert.Equal(t, 1, connects)
}

func TestCoordinator_ReconnectWhileDisconnecting(t *testing.T) {
	h := newHarness(t, nil)
	h.setStatus(t, connstatus.ReasserterDisconnecting)

	h.c.RequestReconnect(ReasonServerChange, false)
	h.sync(t)

	connects, disconnects := h.platform.counts()
	assert.Equal(t, 0, connects)
	assert.Equal(t, 0, disconnects)
	assert.True(t, h.c.State().ReconnectPending)

	h.setStatus(t, connstatus.Disconnected)
	connects, _ = h.platform.counts()
	assert.Equal(t, 1, connects)
	assert.Equal(t, ReasonServerChange, h.platform.lastConnect().Reason)
}

func TestCoordinator_ReconnectSettlesOnInvalid(t *testing.T) {
	h := newHarness(t, nil)
	h.setStatus(t, connstatus.Connected)

	h.c.RequestReconnect(ReasonUser, false)
	h.setStatus(t, connstatus.Disconnecting, connstatus.Invalid)

	connects, disconnects := h.platform.counts()
	assert.Equal(t, 1, connects)
	assert.Equal(t, 1, disconnects)
	assert.False(t, h.c.State().ReconnectPending)

	h.c.RequestReconnect(ReasonServerChange, false)
	h.sync(t)

	connects, disconnects = h.platform.counts()
	assert.Equal(t, 2, connects)
	assert.Equal(t, 1, disconnects)
	assert.Equal(t, ReasonServerChange, h.platform.lastConnect().Reason)
}

func TestCoordinator_ReconnectDroppedWhenConnectedAgain(t *testing.T) {
	h := newHarness(t, nil)
	h.setStatus(t, connstatus.Connected)

	h.c.RequestReconnect(ReasonUser, false)
	h.setStatus(t, connstatus.Disconnecting, connstatus.Connected)
	assert.False(t, h.c.State().ReconnectPending)

	h.c.RequestReconnect(ReasonServerChange, true)
	h.sync(t)

	_, disconnects := h.platform.counts()
	assert.Equal(t, 2, disconnects)
	st := h.c.State()
	assert.True(t, st.ReconnectPending)
	require.NotNil(t, st.PendingRequest)
	assert.Equal(t, ReasonServerChange, st.PendingRequest.Reason)

	h.setStatus(t, connstatus.Disconnected)
	connects, _ := h.platform.counts()
	assert.Equal(t, 1, connects)
	assert.True(t, h.platform.lastConnect().Automatic)
}

func TestCoordinator_Connect(t *testing.T) {
	h := newHarness(t, nil)

	h.c.Connect()
	h.setStatus(t, connstatus.Connecting)
	h.c.Connect()
	h.sync(t)

	connects, _ := h.platform.counts()
	assert.Equal(t, 1, connects)
	assert.False(t, h.platform.lastConnect().Automatic)

	_, errs := h.reporter.reported()
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], ErrAlreadyActive)
}

func TestCoordinator_Disconnect(t *testing.T) {
	h := newHarness(t, nil)
	h.setStatus(t, connstatus.Connected)

	h.c.RequestReconnect(ReasonUser, false)
	h.c.Disconnect()
	h.setStatus(t, connstatus.Disconnected)

	connects, disconnects := h.platform.counts()
	assert.Equal(t, 0, connects)
	assert.Equal(t, 2, disconnects)
	assert.False(t, h.c.State().ReconnectPending)
	assert.True(t, h.c.CanChangeProtocol())
}

func TestCoordinator_PlatformConnectFailure(t *testing.T) {
	h := newHarness(t, func(conf *Config) {
		conf.Platform.(*fakePlatform).connectErr = errors.New("tunnel refused")
	})

	h.c.RequestReconnect(ReasonUser, false)
	h.sync(t)

	_, errs := h.reporter.reported()
	require.Len(t, errs, 1)
	assert.Equal(t, vpnerr.KindPlatformConnectFailure, vpnerr.KindOf(errs[0]))

	connects, _ := h.platform.counts()
	assert.Equal(t, 1, connects)
}

func TestCoordinator_ReconnectToFastestServer(t *testing.T) {
	h := newHarness(t, nil)

	h.c.ReconnectToFastestServer()
	h.sync(t)
	connects, disconnects := h.platform.counts()
	assert.Equal(t, 0, connects)
	assert.Equal(t, 0, disconnects)

	h.setStatus(t, connstatus.Connected)
	h.c.ReconnectToFastestServer()
	h.setStatus(t, connstatus.Disconnected)

	connects, disconnects = h.platform.counts()
	assert.Equal(t, 1, connects)
	assert.Equal(t, 1, disconnects)
	assert.True(t, h.platform.lastConnect().Automatic)
	assert.Equal(t, ReasonFastestServer, h.platform.lastConnect().Reason)
}

func TestCoordinator_KeyGate(t *testing.T) {
	t.Run("suspended connect resumes after regeneration", func(t *testing.T) {
		regen := newManualRegenerator()
		rotated := make(chan keyrotation.KeyPair, 1)
		h := newHarness(t, func(conf *Config) {
			conf.Key = keyrotation.KeyPair{}
			conf.Regenerator = regen
			conf.OnKeyRotated = func(kp keyrotation.KeyPair) { rotated <- kp }
		})

		h.c.RequestReconnect(ReasonUser, false)
		h.sync(t)

		connects, _ := h.platform.counts()
		assert.Equal(t, 0, connects)
		assert.True(t, h.c.State().OutstandingKeyRequest)
		assert.Equal(t, keyrotation.RegenerationInFlight, h.c.State().KeyState)

		key := validKey()
		regen.next(t)(key, nil)
		h.sync(t)

		connects, _ = h.platform.counts()
		assert.Equal(t, 1, connects)
		assert.False(t, h.c.State().OutstandingKeyRequest)
		assert.Equal(t, keyrotation.Valid, h.c.State().KeyState)

		select {
		case kp := <-rotated:
			assert.Equal(t, key.Public, kp.Public)
		default:
			t.Fatal("rotated key not reported")
		}
	})

	t.Run("latest intent wins", func(t *testing.T) {
		regen := newManualRegenerator()
		h := newHarness(t, func(conf *Config) {
			conf.Key = keyrotation.KeyPair{}
			conf.Regenerator = regen
		})

		h.c.RequestReconnect(ReasonUser, false)
		h.sync(t)
		done := regen.next(t)

		h.c.RequestReconnect(ReasonTrustChange, true)
		h.sync(t)

		done(validKey(), nil)
		h.sync(t)

		connects, _ := h.platform.counts()
		assert.Equal(t, 1, connects)
		assert.Equal(t, ReasonTrustChange, h.platform.lastConnect().Reason)
	})

	t.Run("failure with expired keys", func(t *testing.T) {
		regen := newManualRegenerator()
		h := newHarness(t, func(conf *Config) {
			conf.Key = keyrotation.KeyPair{}
			conf.Regenerator = regen
		})

		h.c.RequestReconnect(ReasonUser, false)
		h.sync(t)

		regen.next(t)(keyrotation.KeyPair{}, errors.New("upload failed"))
		h.sync(t)

		connects, _ := h.platform.counts()
		assert.Equal(t, 0, connects)
		assert.False(t, h.c.State().OutstandingKeyRequest)

		_, errs := h.reporter.reported()
		require.Len(t, errs, 1)
		var verr *vpnerr.Error
		require.ErrorAs(t, errs[0], &verr)
		assert.Equal(t, vpnerr.ReasonExpiredAndRegenFailed, verr.Reason)
	})

	t.Run("disconnect drops suspended intent", func(t *testing.T) {
		regen := newManualRegenerator()
		h := newHarness(t, func(conf *Config) {
			conf.Key = keyrotation.KeyPair{}
			conf.Regenerator = regen
		})

		h.c.RequestReconnect(ReasonUser, false)
		h.sync(t)
		done := regen.next(t)

		h.c.Disconnect()
		h.sync(t)
		assert.False(t, h.c.State().OutstandingKeyRequest)

		done(validKey(), nil)
		h.sync(t)

		connects, _ := h.platform.counts()
		assert.Equal(t, 0, connects)
	})

	t.Run("rotation without connect", func(t *testing.T) {
		regen := newManualRegenerator()
		h := newHarness(t, func(conf *Config) {
			conf.Regenerator = regen
		})

		require.True(t, h.c.RotateKeys())
		require.False(t, h.c.RotateKeys())

		regen.next(t)(keyrotation.KeyPair{}, errors.New("boom"))
		h.sync(t)

		_, errs := h.reporter.reported()
		require.Len(t, errs, 1)
		var verr *vpnerr.Error
		require.ErrorAs(t, errs[0], &verr)
		assert.Equal(t, vpnerr.ReasonRegenFailed, verr.Reason)

		connects, _ := h.platform.counts()
		assert.Equal(t, 0, connects)
	})

	t.Run("keys reported expired regenerate on connect", func(t *testing.T) {
		regen := newManualRegenerator()
		h := newHarness(t, func(conf *Config) {
			conf.Regenerator = regen
		})
		assert.Equal(t, keyrotation.Valid, h.c.State().KeyState)

		h.c.MarkKeysExpired()
		assert.Equal(t, keyrotation.Expired, h.c.State().KeyState)

		h.c.Connect()
		h.sync(t)
		connects, _ := h.platform.counts()
		assert.Equal(t, 0, connects)

		regen.next(t)(keyrotation.KeyPair{}, errors.New("boom"))
		h.sync(t)

		_, errs := h.reporter.reported()
		require.Len(t, errs, 1)
		var verr *vpnerr.Error
		require.ErrorAs(t, errs[0], &verr)
		assert.True(t, verr.Expired)
		assert.Equal(t, vpnerr.ReasonExpiredAndRegenFailed, verr.Reason)
	})
}

func TestCoordinator_SessionOutcomes(t *testing.T) {
	cases := []struct {
		name     string
		testMode bool
		outcome  session.Outcome
		connect  bool
		action   session.ActionKind
		cause    vpnerr.Kind
	}{
		{name: "success", outcome: session.Success(), connect: true},
		{name: "service not active", outcome: session.ServiceNotActive(), connect: true},
		{
			name:    "too many sessions upgradable",
			outcome: session.TooManySessions(3, "https://example.com/upgrade", true),
			action:  session.ActionPresentUpgrade,
			cause:   vpnerr.KindTooManySessions,
		},
		{
			name:    "too many sessions",
			outcome: session.TooManySessions(3, "", false),
			action:  session.ActionPromptLogoutOrRetry,
			cause:   vpnerr.KindTooManySessions,
		},
		{
			name:    "authentication error",
			outcome: session.AuthenticationError(),
			action:  session.ActionForceLogout,
			cause:   vpnerr.KindAuthenticationFailure,
		},
		{
			name:    "not found",
			outcome: session.NotFound(),
			action:  session.ActionForceLogout,
			cause:   vpnerr.KindAuthenticationFailure,
		},
		{
			name:    "failure",
			outcome: session.Failure("backend down"),
			action:  session.ActionReportError,
			cause:   vpnerr.KindSessionFailure,
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t, func(conf *Config) {
				conf.Guard = session.Guard{TestMode: tc.testMode}
			})
			h.sessions.outcome = tc.outcome

			h.c.CreateSession(false)

			if tc.connect {
				require.Eventually(t, func() bool {
					connects, _ := h.platform.counts()
					return connects == 1
				}, waitFor, time.Millisecond)
				assert.Equal(t, ReasonSession, h.platform.lastConnect().Reason)
				return
			}

			require.Eventually(t, func() bool {
				actions, _ := h.reporter.reported()
				return len(actions) == 1
			}, waitFor, time.Millisecond)

			actions, _ := h.reporter.reported()
			assert.Equal(t, tc.action, actions[0].action.Kind)
			assert.False(t, actions[0].action.DeleteSession)
			assert.Equal(t, tc.cause, vpnerr.KindOf(actions[0].cause))

			connects, _ := h.platform.counts()
			assert.Equal(t, 0, connects)
		})
	}
}

func TestCoordinator_SessionNotFoundTestMode(t *testing.T) {
	h := newHarness(t, func(conf *Config) {
		conf.Guard = session.Guard{TestMode: true}
	})
	h.sessions.outcome = session.NotFound()

	h.c.CreateSession(false)
	require.Eventually(t, func() bool { return len(h.sessions.calls()) == 1 }, waitFor, time.Millisecond)

	assert.Never(t, func() bool {
		actions, errs := h.reporter.reported()
		connects, _ := h.platform.counts()
		return len(actions)+len(errs)+connects > 0
	}, 100*time.Millisecond, 10*time.Millisecond)
}

func TestCoordinator_SessionTransportError(t *testing.T) {
	h := newHarness(t, nil)
	h.sessions.err = errors.New("dial tcp: connection refused")

	h.c.CreateSession(false)
	require.Eventually(t, func() bool {
		_, errs := h.reporter.reported()
		return len(errs) == 1
	}, waitFor, time.Millisecond)

	_, errs := h.reporter.reported()
	assert.Equal(t, vpnerr.KindNetworkUnreachable, vpnerr.KindOf(errs[0]))
}

func TestCoordinator_ResolveSessionPrompt(t *testing.T) {
	h := newHarness(t, nil)
	h.sessions.outcome = session.TooManySessions(2, "", false)

	h.c.CreateSession(false)
	require.Eventually(t, func() bool {
		actions, _ := h.reporter.reported()
		return len(actions) == 1
	}, waitFor, time.Millisecond)

	h.sessions.mx.Lock()
	h.sessions.outcome = session.Success()
	h.sessions.mx.Unlock()

	h.c.ResolveSessionPrompt(session.ChoiceLogoutOthers)
	require.Eventually(t, func() bool {
		connects, _ := h.platform.counts()
		return connects == 1
	}, waitFor, time.Millisecond)

	assert.Equal(t, []bool{false, true}, h.sessions.calls())

	h.c.ResolveSessionPrompt("maybe")
	h.sync(t)
	_, errs := h.reporter.reported()
	assert.Len(t, errs, 1)
}

func TestCoordinator_EvaluateNetworkChange(t *testing.T) {
	home := nettrust.Network{Type: nettrust.NetworkWiFi, Name: "home"}

	wait := func(t *testing.T, ch <-chan bool) bool {
		select {
		case v := <-ch:
			return v
		case <-time.After(waitFor):
			t.Fatal("no evaluation result")
			return false
		}
	}
	yes := func() bool { return true }
	no := func() bool { return false }

	t.Run("inactive tunnel never reconnects", func(t *testing.T) {
		h := newHarness(t, nil)
		assert.False(t, wait(t, h.c.EvaluateNetworkChange(home, nettrust.Untrusted, yes)))

		n, trust := h.c.Network()
		assert.Equal(t, home, n)
		assert.Equal(t, nettrust.Untrusted, trust)
	})

	t.Run("trust decrease on same network", func(t *testing.T) {
		h := newHarness(t, nil)
		h.setStatus(t, connstatus.Connected)

		// unknown cached trust and unknown level: no change
		assert.False(t, wait(t, h.c.EvaluateNetworkChange(home, nettrust.Unknown, yes)))
		assert.False(t, wait(t, h.c.EvaluateNetworkChange(home, nettrust.Trusted, yes)))

		assert.True(t, wait(t, h.c.EvaluateNetworkChange(home, nettrust.Untrusted, yes)))
		h.sync(t)

		_, disconnects := h.platform.counts()
		assert.Equal(t, 1, disconnects)

		st := h.c.State()
		require.NotNil(t, st.PendingRequest)
		assert.True(t, st.PendingRequest.Automatic)
		assert.Equal(t, ReasonTrustChange, st.PendingRequest.Reason)
	})

	t.Run("declined confirmation changes nothing", func(t *testing.T) {
		h := newHarness(t, nil)
		h.setStatus(t, connstatus.Connected)

		assert.False(t, wait(t, h.c.EvaluateNetworkChange(home, nettrust.Untrusted, no)))
		assert.False(t, wait(t, h.c.EvaluateNetworkChange(home, nettrust.Untrusted, nil)))
		h.sync(t)

		_, disconnects := h.platform.counts()
		assert.Equal(t, 0, disconnects)
		n, _ := h.c.Network()
		assert.True(t, n.IsNone())
	})

	t.Run("new network compared with cached trust", func(t *testing.T) {
		store := nettrust.NewMemoryStore()
		require.NoError(t, store.SetTrust(home, nettrust.Trusted))

		h := newHarness(t, func(conf *Config) { conf.Trust = store })
		h.setStatus(t, connstatus.Connected)

		assert.False(t, wait(t, h.c.EvaluateNetworkChange(home, nettrust.Trusted, yes)))

		cafe := nettrust.Network{Type: nettrust.NetworkWiFi, Name: "cafe"}
		assert.True(t, wait(t, h.c.EvaluateNetworkChange(cafe, nettrust.Untrusted, yes)))

		trust, ok, err := store.Trust(cafe)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, nettrust.Untrusted, trust)
	})

	t.Run("no network", func(t *testing.T) {
		h := newHarness(t, nil)
		h.setStatus(t, connstatus.Connected)

		none := nettrust.Network{Type: nettrust.NetworkNone}
		assert.False(t, wait(t, h.c.EvaluateNetworkChange(none, nettrust.Untrusted, yes)))
	})
}

func TestCoordinator_ReentrantListener(t *testing.T) {
	h := newHarness(t, nil)

	var once sync.Once
	h.c.Subscribe(func(s connstatus.Status) {
		_ = h.c.State()
		if s == connstatus.Connected {
			once.Do(func() { h.c.RequestReconnect(ReasonServerChange, false) })
		}
	})

	h.setStatus(t, connstatus.Connected)
	h.sync(t)

	_, disconnects := h.platform.counts()
	assert.Equal(t, 1, disconnects)
	assert.True(t, h.c.State().ReconnectPending)
}

func TestCoordinator_Close(t *testing.T) {
	c, err := New(Config{Platform: &fakePlatform{status: connstatus.Disconnected}})
	require.NoError(t, err)

	served := make(chan error, 1)
	go func() { served <- c.Serve(context.Background()) }()

	require.NoError(t, c.Close())
	require.ErrorIs(t, c.Close(), ErrClosed)

	select {
	case err := <-served:
		require.NoError(t, err)
	case <-time.After(waitFor):
		t.Fatal("serve did not return")
	}

	require.ErrorIs(t, c.Sync(context.Background()), ErrClosed)
}

func TestCoordinator_CloseAnswersNetworkEvaluation(t *testing.T) {
	home := nettrust.Network{Type: nettrust.NetworkWiFi, Name: "home"}

	wait := func(t *testing.T, ch <-chan bool) {
		select {
		case v := <-ch:
			assert.False(t, v)
		case <-time.After(waitFor):
			t.Fatal("evaluation was never answered")
		}
	}

	t.Run("queued evaluation", func(t *testing.T) {
		c, err := New(Config{Platform: &fakePlatform{status: connstatus.Connected}})
		require.NoError(t, err)

		result := c.EvaluateNetworkChange(home, nettrust.Untrusted, func() bool { return true })
		require.NoError(t, c.Close())
		wait(t, result)
	})

	t.Run("evaluation waiting for confirmation", func(t *testing.T) {
		h := newHarness(t, nil)
		h.setStatus(t, connstatus.Connected)

		asked := make(chan struct{})
		release := make(chan struct{})
		result := h.c.EvaluateNetworkChange(home, nettrust.Untrusted, func() bool {
			close(asked)
			<-release
			return true
		})

		select {
		case <-asked:
		case <-time.After(waitFor):
			t.Fatal("confirmation was never asked")
		}
		require.NoError(t, h.c.Close())
		close(release)
		wait(t, result)

		_, disconnects := h.platform.counts()
		assert.Equal(t, 0, disconnects)
	})
}
