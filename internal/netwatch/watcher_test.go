package netwatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skycoin/vpn-coordinator/pkg/nettrust"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		iface string
		want  nettrust.NetworkType
	}{
		{"", nettrust.NetworkNone},
		{"  ", nettrust.NetworkNone},
		{"wlan0", nettrust.NetworkWiFi},
		{"wlp3s0", nettrust.NetworkWiFi},
		{"wwan0", nettrust.NetworkCellular},
		{"rmnet_data0", nettrust.NetworkCellular},
		{"pdp_ip0", nettrust.NetworkCellular},
		{"eth0", nettrust.NetworkEthernet},
		{"enp0s31f6", nettrust.NetworkEthernet},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Classify(tc.iface).Type, tc.iface)
	}
	assert.Equal(t, "wlan0", Classify("wlan0").Name)
}

type scriptedSource struct {
	mx    sync.Mutex
	names []string
	errs  []error
	i     int
}

func (s *scriptedSource) next() (string, error) {
	s.mx.Lock()
	defer s.mx.Unlock()

	i := s.i
	if i >= len(s.names) {
		i = len(s.names) - 1
	} else {
		s.i++
	}
	var err error
	if i < len(s.errs) {
		err = s.errs[i]
	}
	return s.names[i], err
}

func TestWatcher_Poll(t *testing.T) {
	store := nettrust.NewMemoryStore()
	home := nettrust.Network{Type: nettrust.NetworkWiFi, Name: "wlan0"}
	require.NoError(t, store.SetTrust(home, nettrust.Trusted))

	src := &scriptedSource{
		names: []string{"wlan0", "wlan0", "eth0", ""},
		errs:  []error{nil, nil, nil, errors.New("no route")},
	}
	w := New(Config{Source: src.next, Trust: store})

	c, ok := w.Poll()
	require.True(t, ok)
	assert.Equal(t, home, c.Network)
	assert.Equal(t, nettrust.Trusted, c.CachedTrust)

	_, ok = w.Poll()
	assert.False(t, ok)

	c, ok = w.Poll()
	require.True(t, ok)
	assert.Equal(t, nettrust.NetworkEthernet, c.Network.Type)
	assert.Equal(t, nettrust.Unknown, c.CachedTrust)

	c, ok = w.Poll()
	require.True(t, ok)
	assert.True(t, c.Network.IsNone())
	assert.True(t, w.Current().IsNone())
}

func TestWatcher_Run(t *testing.T) {
	src := &scriptedSource{names: []string{"eth0", "eth0", "wlan0"}}
	w := New(Config{Source: src.next, Interval: time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	changes := make(chan Change, 4)
	errCh := make(chan error, 1)
	go func() { errCh <- w.Run(ctx, func(c Change) { changes <- c }) }()

	first := <-changes
	assert.Equal(t, nettrust.NetworkEthernet, first.Network.Type)
	second := <-changes
	assert.Equal(t, nettrust.NetworkWiFi, second.Network.Type)

	cancel()
	assert.ErrorIs(t, <-errCh, context.Canceled)
}
