// Package accountapi pkg/accountapi/client.go
package accountapi

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"

	"github.com/skycoin/skywire-utilities/pkg/buildinfo"
	"github.com/skycoin/skywire-utilities/pkg/cipher"
	"github.com/skycoin/skywire-utilities/pkg/logging"

	"github.com/skycoin/vpn-coordinator/pkg/session"
	"github.com/skycoin/vpn-coordinator/pkg/vpnerr"
)

var json = jsoniter.ConfigFastest

const (
	sessionNewPath    = "/v4/session/new"
	sessionDeletePath = "/v4/session/delete"
	keySetPath        = "/v4/session/wg/set"

	// StatusTooManySessions is the account service status for a session limit hit.
	StatusTooManySessions = 602

	defaultTimeout = 10 * time.Second
)

// ErrNoSessionToken is returned by calls needing an established session.
var ErrNoSessionToken = errors.New("no session token")

// Config configures the Client.
type Config struct {
	// Addr is the account service base URL.
	Addr string
	// AccountID identifies the account when creating sessions.
	AccountID string
	// SessionToken is an existing session, if any.
	SessionToken string
}

// Client talks to the account service. It creates sessions for the
// coordinator and uploads public keys for the key regenerator.
type Client struct {
	conf   Config
	client *http.Client
	log    logrus.FieldLogger

	tokenMx sync.Mutex
	token   string
}

// NewClient creates a Client. A nil http.Client gets a default with a timeout.
func NewClient(conf Config, client *http.Client, log logrus.FieldLogger) *Client {
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	if log == nil {
		log = logging.MustGetLogger("account_api")
	}
	conf.Addr = strings.TrimRight(conf.Addr, "/")

	return &Client{
		conf:   conf,
		client: client,
		log:    log,
		token:  conf.SessionToken,
	}
}

// SessionToken returns the current session token.
func (c *Client) SessionToken() string {
	c.tokenMx.Lock()
	defer c.tokenMx.Unlock()
	return c.token
}

type sessionNewRequest struct {
	Username     string `json:"username,omitempty"`
	SessionToken string `json:"session_token,omitempty"`
	Force        bool   `json:"force"`
	Version      string `json:"version,omitempty"`
}

type sessionLimitData struct {
	Limit        int    `json:"limit"`
	Upgradable   bool   `json:"upgradable"`
	UpgradeToURL string `json:"upgrade_to_url"`
}

type sessionNewResponse struct {
	Status        int               `json:"status"`
	Message       string            `json:"message,omitempty"`
	SessionToken  string            `json:"token,omitempty"`
	ServiceActive bool              `json:"service_active"`
	Data          *sessionLimitData `json:"data,omitempty"`
}

// CreateSession calls 'POST /v4/session/new'. Service responses become
// session outcomes, transport failures are returned as NetworkUnreachable.
func (c *Client) CreateSession(ctx context.Context, force bool) (session.Outcome, error) {
	reqBody := sessionNewRequest{
		Username:     c.conf.AccountID,
		SessionToken: c.SessionToken(),
		Force:        force,
		Version:      buildinfo.Version(),
	}

	var body sessionNewResponse
	code, err := c.post(ctx, sessionNewPath, reqBody, &body)
	if err != nil {
		return session.Outcome{}, err
	}

	log := c.log.WithField("http_status", code).WithField("status", body.Status)

	status := body.Status
	if status == 0 {
		status = code
	}

	switch {
	case status == http.StatusOK:
		if body.SessionToken != "" {
			c.tokenMx.Lock()
			c.token = body.SessionToken
			c.tokenMx.Unlock()
		}
		if !body.ServiceActive {
			log.Debug("Session created, service not active.")
			return session.ServiceNotActive(), nil
		}
		log.Debug("Session created.")
		return session.Success(), nil

	case status == http.StatusUnauthorized:
		return session.AuthenticationError(), nil

	case status == StatusTooManySessions:
		var data sessionLimitData
		if body.Data != nil {
			data = *body.Data
		}
		return session.TooManySessions(data.Limit, data.UpgradeToURL, data.Upgradable), nil

	case status == http.StatusNotFound:
		return session.NotFound(), nil
	}

	msg := body.Message
	if msg == "" {
		msg = http.StatusText(code)
	}
	log.WithField("msg", msg).Warn("Session creation rejected.")
	return session.Failure(msg), nil
}

type keySetRequest struct {
	SessionToken string `json:"session_token"`
	PublicKey    string `json:"public_key"`
}

// UploadPublicKey calls 'POST /v4/session/wg/set'.
func (c *Client) UploadPublicKey(ctx context.Context, pk cipher.PubKey) error {
	token := c.SessionToken()
	if token == "" {
		return ErrNoSessionToken
	}

	var body sessionNewResponse
	code, err := c.post(ctx, keySetPath, keySetRequest{SessionToken: token, PublicKey: pk.Hex()}, &body)
	if err != nil {
		return err
	}
	if code != http.StatusOK {
		return &HTTPError{HTTPStatus: code, Err: body.Message}
	}

	c.log.WithField("pk", pk).Debug("Public key uploaded.")
	return nil
}

type sessionDeleteRequest struct {
	SessionToken string `json:"session_token"`
}

// ClearSession forgets the session token without telling the account service.
func (c *Client) ClearSession() {
	c.tokenMx.Lock()
	c.token = ""
	c.tokenMx.Unlock()
}

// DeleteSession calls 'POST /v4/session/delete' and forgets the token.
func (c *Client) DeleteSession(ctx context.Context) error {
	token := c.SessionToken()
	if token == "" {
		return ErrNoSessionToken
	}

	var body sessionNewResponse
	code, err := c.post(ctx, sessionDeletePath, sessionDeleteRequest{SessionToken: token}, &body)
	if err != nil {
		return err
	}
	if code != http.StatusOK {
		return &HTTPError{HTTPStatus: code, Err: body.Message}
	}

	c.tokenMx.Lock()
	c.token = ""
	c.tokenMx.Unlock()
	return nil
}

// post sends payload as JSON and decodes the response into out. A body that
// is not JSON leaves out untouched.
func (c *Client) post(ctx context.Context, path string, payload, out interface{}) (code int, err error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.conf.Addr+path, bytes.NewReader(raw))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, vpnerr.NetworkUnreachable(err)
	}
	defer func() {
		if cErr := resp.Body.Close(); cErr != nil {
			c.log.WithError(cErr).Warn("Failed to close response body.")
		}
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, vpnerr.NetworkUnreachable(fmt.Errorf("read response body: %w", err))
	}

	if len(bytes.TrimSpace(respBody)) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			c.log.WithError(err).WithField("path", path).Debug("Response body is not JSON.")
		}
	}
	return resp.StatusCode, nil
}
