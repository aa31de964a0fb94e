// Package coordapi pkg/coordapi/api.go
package coordapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/skycoin/skywire-utilities/pkg/buildinfo"
	"github.com/skycoin/skywire-utilities/pkg/httputil"
	"github.com/skycoin/skywire-utilities/pkg/logging"
	"github.com/skycoin/skywire-utilities/pkg/metricsutil"

	"github.com/skycoin/vpn-coordinator/pkg/accountapi"
	"github.com/skycoin/vpn-coordinator/pkg/coordinator"
	"github.com/skycoin/vpn-coordinator/pkg/nettrust"
	"github.com/skycoin/vpn-coordinator/pkg/session"
)

// DefaultEvaluateTimeout bounds how long POST /network waits for a verdict.
const DefaultEvaluateTimeout = 10 * time.Second

//go:generate mockery -name Controller -case underscore -inpkg -testonly

// Controller is the part of the coordinator the API drives.
type Controller interface {
	State() coordinator.State
	Connect()
	Disconnect()
	RequestReconnect(reason coordinator.Reason, automatic bool)
	ReconnectToFastestServer()
	EvaluateNetworkChange(n nettrust.Network, trust nettrust.TrustLevel, confirm coordinator.ConfirmFunc) <-chan bool
	CreateSession(force bool)
	ResolveSessionPrompt(choice session.PromptChoice)
	RotateKeys() bool
	MarkKeysExpired()
	CanChangeProtocol() bool
}

// SessionDeleter ends the account session on the account service.
type SessionDeleter interface {
	DeleteSession(ctx context.Context) error
}

// ErrNoSessionDeleter is returned by DELETE /session when no account is configured.
var ErrNoSessionDeleter = errors.New("no account service configured")

// Config configures the API.
type Config struct {
	// Sessions serves DELETE /session when set.
	Sessions SessionDeleter
	// EnableMetrics serves GET /metrics and tracks request durations.
	EnableMetrics bool
	// PrintLog logs every request.
	PrintLog        bool
	EvaluateTimeout time.Duration
}

// API register all the API endpoints.
// It implements a net/http.Handler.
type API struct {
	http.Handler

	ctrl      Controller
	sessions  SessionDeleter
	reports   *Reports
	trust     nettrust.Store
	log       logrus.FieldLogger
	timeout   time.Duration
	startedAt time.Time
}

// New creates a new api.
func New(ctrl Controller, reports *Reports, trust nettrust.Store, log logrus.FieldLogger, conf Config) *API {
	if log == nil {
		log = logging.MustGetLogger("coord_api")
	}
	if reports == nil {
		reports = NewReports(0)
	}
	if conf.EvaluateTimeout <= 0 {
		conf.EvaluateTimeout = DefaultEvaluateTimeout
	}

	api := &API{
		ctrl:      ctrl,
		sessions:  conf.Sessions,
		reports:   reports,
		trust:     trust,
		log:       log,
		timeout:   conf.EvaluateTimeout,
		startedAt: time.Now(),
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	if conf.PrintLog {
		r.Use(middleware.Logger)
	}
	r.Use(middleware.Recoverer)
	if conf.EnableMetrics {
		r.Use(metricsutil.RequestDurationMiddleware)
	}
	r.Use(httputil.SetLoggerMiddleware(log))

	r.Get("/health", api.health)
	r.Get("/status", api.status)
	r.Get("/reports", api.listReports)
	r.Get("/networks", api.listNetworks)

	r.Post("/connect", api.connect)
	r.Post("/disconnect", api.disconnect)
	r.Post("/reconnect", api.reconnect)
	r.Post("/reconnect/fastest", api.reconnectFastest)
	r.Post("/network", api.network)
	r.Post("/session", api.createSession)
	r.Delete("/session", api.deleteSession)
	r.Post("/session/prompt", api.resolvePrompt)
	r.Post("/keys/rotate", api.rotateKeys)
	r.Post("/keys/expire", api.expireKeys)

	if conf.EnableMetrics {
		metricsutil.AddMetricsHandler(r)
	}

	api.Handler = r
	return api
}

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	coordinator.State
	CanChangeProtocol bool `json:"can_change_protocol"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
}

func (api *API) health(w http.ResponseWriter, r *http.Request) {
	info := buildinfo.Get()
	api.writeJSON(w, r, http.StatusOK, httputil.HealthCheckResponse{
		BuildInfo: info,
		StartedAt: api.startedAt,
	})
}

func (api *API) status(w http.ResponseWriter, r *http.Request) {
	api.writeJSON(w, r, http.StatusOK, StatusResponse{
		State:             api.ctrl.State(),
		CanChangeProtocol: api.ctrl.CanChangeProtocol(),
	})
}

func (api *API) listReports(w http.ResponseWriter, r *http.Request) {
	api.writeJSON(w, r, http.StatusOK, api.reports.List())
}

func (api *API) listNetworks(w http.ResponseWriter, r *http.Request) {
	if api.trust == nil {
		api.writeJSON(w, r, http.StatusOK, []nettrust.Record{})
		return
	}
	records, err := api.trust.Networks()
	if err != nil {
		api.writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	api.writeJSON(w, r, http.StatusOK, records)
}

func (api *API) connect(w http.ResponseWriter, r *http.Request) {
	api.ctrl.Connect()
	api.writeJSON(w, r, http.StatusAccepted, true)
}

func (api *API) disconnect(w http.ResponseWriter, r *http.Request) {
	api.ctrl.Disconnect()
	api.writeJSON(w, r, http.StatusAccepted, true)
}

// ReconnectRequest is the body of POST /reconnect.
type ReconnectRequest struct {
	Reason    coordinator.Reason `json:"reason"`
	Automatic bool               `json:"automatic"`
}

func (api *API) reconnect(w http.ResponseWriter, r *http.Request) {
	var req ReconnectRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		api.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	if req.Reason == "" {
		req.Reason = coordinator.ReasonUser
	}

	api.ctrl.RequestReconnect(req.Reason, req.Automatic)
	api.writeJSON(w, r, http.StatusAccepted, true)
}

func (api *API) reconnectFastest(w http.ResponseWriter, r *http.Request) {
	api.ctrl.ReconnectToFastestServer()
	api.writeJSON(w, r, http.StatusAccepted, true)
}

// NetworkRequest is the body of POST /network. Confirm answers the
// reconnect confirmation up front.
type NetworkRequest struct {
	Type    string `json:"type"`
	Name    string `json:"name"`
	Trust   string `json:"trust"`
	Confirm bool   `json:"confirm"`
}

// NetworkResponse is returned by POST /network.
type NetworkResponse struct {
	Reconnect bool `json:"reconnect"`
}

func (api *API) network(w http.ResponseWriter, r *http.Request) {
	var req NetworkRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		api.writeError(w, r, http.StatusBadRequest, err)
		return
	}

	nt, err := nettrust.ParseNetworkType(req.Type)
	if err != nil {
		api.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	trust, err := nettrust.ParseTrustLevel(req.Trust)
	if err != nil {
		api.writeError(w, r, http.StatusBadRequest, err)
		return
	}

	confirm := req.Confirm
	result := api.ctrl.EvaluateNetworkChange(nettrust.Network{Type: nt, Name: req.Name}, trust, func() bool { return confirm })

	ctx, cancel := context.WithTimeout(r.Context(), api.timeout)
	defer cancel()

	select {
	case reconnect := <-result:
		api.writeJSON(w, r, http.StatusOK, NetworkResponse{Reconnect: reconnect})
	case <-ctx.Done():
		api.writeError(w, r, http.StatusGatewayTimeout, ctx.Err())
	}
}

// SessionRequest is the body of POST /session.
type SessionRequest struct {
	Force bool `json:"force"`
}

func (api *API) createSession(w http.ResponseWriter, r *http.Request) {
	var req SessionRequest
	if r.ContentLength != 0 {
		if err := httputil.ReadJSON(r, &req); err != nil {
			api.writeError(w, r, http.StatusBadRequest, err)
			return
		}
	}

	api.ctrl.CreateSession(req.Force)
	api.writeJSON(w, r, http.StatusAccepted, true)
}

// DeleteSessionResponse is returned by DELETE /session. Deleted is false when
// there was no session to delete.
type DeleteSessionResponse struct {
	Deleted bool `json:"deleted"`
}

func (api *API) deleteSession(w http.ResponseWriter, r *http.Request) {
	if api.sessions == nil {
		api.writeError(w, r, http.StatusNotFound, ErrNoSessionDeleter)
		return
	}

	err := api.sessions.DeleteSession(r.Context())
	switch {
	case errors.Is(err, accountapi.ErrNoSessionToken):
		api.writeJSON(w, r, http.StatusOK, DeleteSessionResponse{Deleted: false})
	case err != nil:
		api.writeError(w, r, http.StatusBadGateway, err)
	default:
		api.ctrl.Disconnect()
		api.writeJSON(w, r, http.StatusOK, DeleteSessionResponse{Deleted: true})
	}
}

// PromptRequest is the body of POST /session/prompt.
type PromptRequest struct {
	Choice session.PromptChoice `json:"choice"`
}

// ErrUnknownChoice is returned for prompt choices other than logout-others and retry.
var ErrUnknownChoice = errors.New("unknown prompt choice")

func (api *API) resolvePrompt(w http.ResponseWriter, r *http.Request) {
	var req PromptRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		api.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	if _, err := req.Choice.ForceNewSession(); err != nil {
		api.writeError(w, r, http.StatusBadRequest, ErrUnknownChoice)
		return
	}

	api.ctrl.ResolveSessionPrompt(req.Choice)
	api.writeJSON(w, r, http.StatusAccepted, true)
}

// RotateResponse is returned by POST /keys/rotate.
type RotateResponse struct {
	Started bool `json:"started"`
}

func (api *API) rotateKeys(w http.ResponseWriter, r *http.Request) {
	started := api.ctrl.RotateKeys()
	code := http.StatusAccepted
	if !started {
		code = http.StatusConflict
	}
	api.writeJSON(w, r, code, RotateResponse{Started: started})
}

func (api *API) expireKeys(w http.ResponseWriter, r *http.Request) {
	api.ctrl.MarkKeysExpired()
	api.writeJSON(w, r, http.StatusAccepted, true)
}

func (api *API) writeError(w http.ResponseWriter, r *http.Request, code int, err error) {
	api.logger(r).WithError(err).WithField("http_status", http.StatusText(code)).Warn("Request failed.")
	api.writeJSON(w, r, code, ErrorResponse{Error: err.Error()})
}

func (api *API) writeJSON(w http.ResponseWriter, r *http.Request, code int, object interface{}) {
	httputil.WriteJSON(w, r, code, object)
}

func (api *API) logger(r *http.Request) logrus.FieldLogger {
	return httputil.GetLogger(r)
}
