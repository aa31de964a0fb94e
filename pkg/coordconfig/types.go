// Package coordconfig pkg/coordconfig/types.go
package coordconfig

import (
	"errors"
	"time"
)

const (
	// MinCompatibleVersion is the oldest release whose config files are still read.
	MinCompatibleVersion = "v1.0.0"
	// DefaultAPIAddr is the default control API listening address.
	DefaultAPIAddr = "127.0.0.1:8087"
	// DefaultAccountAddr is the default account service URL.
	DefaultAccountAddr = "https://api.ivpn.net"
	// DefaultTrustDB is the default trust database file name.
	DefaultTrustDB = "trust.db"
	// DefaultPollInterval is how often the network watcher polls by default.
	DefaultPollInterval = Duration(5 * time.Second)
	// DefaultKeyValidity is how long regenerated keys stay valid by default.
	DefaultKeyValidity = Duration(30 * 24 * time.Hour)
	// DefaultServerListRefresh is how often the fastest server is re-evaluated by default.
	DefaultServerListRefresh = Duration(15 * time.Minute)
	// DefaultTimeout is the default account service request timeout.
	DefaultTimeout = Duration(10 * time.Second)
)

// Duration wraps around time.Duration to allow parsing from and to JSON
type Duration time.Duration

// MarshalJSON implements json marshaling
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON implements unmarshal from json
func (d *Duration) UnmarshalJSON(b []byte) error {
	if len(b) == 0 {
		*d = 0
		return nil
	}

	var v interface{}
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch value := v.(type) {
	case float64:
		*d = Duration(time.Duration(value))
		return nil
	case string:
		tmp, err := time.ParseDuration(value)
		if err != nil {
			return err
		}
		*d = Duration(tmp)
		return nil
	default:
		return errors.New("invalid duration")
	}
}

// Duration returns d as a time.Duration.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}
