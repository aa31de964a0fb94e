package commands

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/fatih/color"
	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"github.com/toqueteos/webbrowser"

	"github.com/skycoin/vpn-coordinator/cmd/vpn-coordinator/internal"
	"github.com/skycoin/vpn-coordinator/pkg/connstatus"
	"github.com/skycoin/vpn-coordinator/pkg/coordapi"
	"github.com/skycoin/vpn-coordinator/pkg/coordinator"
	"github.com/skycoin/vpn-coordinator/pkg/nettrust"
	"github.com/skycoin/vpn-coordinator/pkg/session"
)

var json = jsoniter.ConfigFastest

var (
	reconnectReason string
	automatic       bool
	trustLevel      string
	confirm         bool
	force           bool
	printURL        bool
	plansFrom       string
)

// errNoUpgrade is returned by `reports upgrade` when no upgrade was offered.
var errNoUpgrade = errors.New("no upgrade offer in recent reports")

func init() {
	reconnectCmd.Flags().StringVarP(&reconnectReason, "reason", "r", string(coordinator.ReasonUser), "reconnect reason\033[0m")
	reconnectCmd.Flags().BoolVar(&automatic, "automatic", false, "mark the reconnect as automatic\033[0m")
	reconnectCmd.AddCommand(fastestCmd)

	networkCmd.Flags().StringVarP(&trustLevel, "trust", "t", "unknown", "trust of the network: trusted, untrusted, unknown\033[0m")
	networkCmd.Flags().BoolVarP(&confirm, "confirm", "y", false, "confirm a reconnect if one is needed\033[0m")

	sessionCmd.Flags().BoolVarP(&force, "force", "f", false, "log out other sessions\033[0m")
	sessionCmd.AddCommand(promptCmd, logoutCmd)

	rotateCmd.AddCommand(expireCmd)

	plansCmd.Flags().StringVar(&plansFrom, "from", "", "purchase date as YYYY-MM-DD, defaults to today\033[0m")

	upgradeCmd.Flags().BoolVarP(&printURL, "print", "p", false, "print the upgrade url instead of opening it\033[0m")
	reportsCmd.AddCommand(upgradeCmd)
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the coordinator state",
	Run: func(cmd *cobra.Command, _ []string) {
		raw, err := request(http.MethodGet, "/status", nil)
		if err != nil {
			internal.PrintFatalError(err, cmd.Flags())
		}
		var view statusView
		internal.Catch(json.Unmarshal(raw, &view), "Failed to parse status:")

		var out interface{}
		internal.Catch(json.Unmarshal(raw, &out), "Failed to parse status:")
		internal.PrintOutput(out, view.String(), cmd.Flags())
	},
}

// statusView is the part of GET /status shown to humans.
type statusView struct {
	Status            string           `json:"status"`
	ReconnectPending  bool             `json:"reconnect_pending"`
	KeyRequest        bool             `json:"outstanding_key_request"`
	Network           nettrust.Network `json:"network"`
	Trust             string           `json:"trust"`
	KeyState          string           `json:"key_state"`
	CanChangeProtocol bool             `json:"can_change_protocol"`
}

func (v statusView) String() string {
	paint := color.New(color.FgRed).SprintFunc()
	switch v.Status {
	case connstatus.Connected.String():
		paint = color.New(color.FgGreen).SprintFunc()
	case connstatus.Connecting.String(), connstatus.ReasserterConnecting.String(),
		connstatus.Disconnecting.String(), connstatus.ReasserterDisconnecting.String():
		paint = color.New(color.FgYellow).SprintFunc()
	}

	var b strings.Builder
	fmt.Fprintf(&b, "status:    %s\n", paint(v.Status))
	fmt.Fprintf(&b, "network:   %s (%s)\n", v.Network, v.Trust)
	fmt.Fprintf(&b, "keys:      %s\n", v.KeyState)
	if v.ReconnectPending {
		fmt.Fprintf(&b, "reconnect: %s\n", color.New(color.FgYellow).Sprint("pending"))
	}
	if v.KeyRequest {
		fmt.Fprintf(&b, "connect:   %s\n", color.New(color.FgYellow).Sprint("waiting for keys"))
	}
	fmt.Fprintf(&b, "protocol:  changeable=%t", v.CanChangeProtocol)
	return b.String()
}

var connectCmd = &cobra.Command{
	Use:   "connect",
	Short: "Connect the tunnel",
	Run: func(cmd *cobra.Command, _ []string) {
		printResponse(cmd, http.MethodPost, "/connect", nil)
	},
}

var disconnectCmd = &cobra.Command{
	Use:   "disconnect",
	Short: "Disconnect the tunnel",
	Run: func(cmd *cobra.Command, _ []string) {
		printResponse(cmd, http.MethodPost, "/disconnect", nil)
	},
}

var reconnectCmd = &cobra.Command{
	Use:   "reconnect",
	Short: "Request a reconnect",
	Run: func(cmd *cobra.Command, _ []string) {
		printResponse(cmd, http.MethodPost, "/reconnect", coordapi.ReconnectRequest{
			Reason:    coordinator.Reason(reconnectReason),
			Automatic: automatic,
		})
	},
}

var fastestCmd = &cobra.Command{
	Use:   "fastest",
	Short: "Reconnect to the fastest server",
	Run: func(cmd *cobra.Command, _ []string) {
		printResponse(cmd, http.MethodPost, "/reconnect/fastest", nil)
	},
}

var networkCmd = &cobra.Command{
	Use:   "network <type> [name]",
	Short: "Report a network change",
	Long:  "Report a network change. Type is one of none, wifi, cellular, ethernet.",
	Args:  cobra.RangeArgs(1, 2),
	Run: func(cmd *cobra.Command, args []string) {
		req := coordapi.NetworkRequest{
			Type:    args[0],
			Trust:   trustLevel,
			Confirm: confirm,
		}
		if len(args) > 1 {
			req.Name = args[1]
		}
		printResponse(cmd, http.MethodPost, "/network", req)
	},
}

var networksCmd = &cobra.Command{
	Use:   "networks",
	Short: "List networks with a stored trust",
	Run: func(cmd *cobra.Command, _ []string) {
		printResponse(cmd, http.MethodGet, "/networks", nil)
	},
}

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Create an account session",
	Run: func(cmd *cobra.Command, _ []string) {
		printResponse(cmd, http.MethodPost, "/session", coordapi.SessionRequest{Force: force})
	},
}

var promptCmd = &cobra.Command{
	Use:       "prompt <logout-others|retry>",
	Short:     "Answer the too many sessions prompt",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{string(session.ChoiceLogoutOthers), string(session.ChoiceRetry)},
	Run: func(cmd *cobra.Command, args []string) {
		printResponse(cmd, http.MethodPost, "/session/prompt", coordapi.PromptRequest{
			Choice: session.PromptChoice(args[0]),
		})
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Delete the account session and disconnect",
	Run: func(cmd *cobra.Command, _ []string) {
		printResponse(cmd, http.MethodDelete, "/session", nil)
	},
}

var rotateCmd = &cobra.Command{
	Use:   "rotate",
	Short: "Regenerate the tunnel keys",
	Run: func(cmd *cobra.Command, _ []string) {
		printResponse(cmd, http.MethodPost, "/keys/rotate", nil)
	},
}

var expireCmd = &cobra.Command{
	Use:   "expire",
	Short: "Mark the tunnel keys expired, the next connect regenerates them",
	Run: func(cmd *cobra.Command, _ []string) {
		printResponse(cmd, http.MethodPost, "/keys/expire", nil)
	},
}

var reportsCmd = &cobra.Command{
	Use:   "reports",
	Short: "List recent errors and recovery actions",
	Run: func(cmd *cobra.Command, _ []string) {
		printResponse(cmd, http.MethodGet, "/reports", nil)
	},
}

var upgradeCmd = &cobra.Command{
	Use:   "upgrade",
	Short: "Open the latest offered upgrade page",
	Run: func(cmd *cobra.Command, _ []string) {
		raw, err := request(http.MethodGet, "/reports", nil)
		if err != nil {
			internal.PrintFatalError(err, cmd.Flags())
		}
		var reports []coordapi.Report
		internal.Catch(json.Unmarshal(raw, &reports), "Failed to parse reports:")

		url := latestUpgradeURL(reports)
		if url == "" {
			internal.PrintFatalError(errNoUpgrade, cmd.Flags())
		}
		if !printURL {
			if err := webbrowser.Open(url); err != nil {
				internal.PrintFatalError(fmt.Errorf("failed to open browser: %w", err), cmd.Flags())
			}
		}
		internal.PrintOutput(url, url, cmd.Flags())
	},
}

var plansCmd = &cobra.Command{
	Use:   "plans",
	Short: "Show until when each service period would be active",
	Run: func(cmd *cobra.Command, _ []string) {
		from := time.Now()
		if plansFrom != "" {
			t, err := time.ParseInLocation(planDateLayout, plansFrom, time.Local)
			if err != nil {
				internal.PrintFatalError(fmt.Errorf("invalid --from: %w", err), cmd.Flags())
			}
			from = t
		}
		plans := servicePlans(from)
		internal.PrintOutput(plans, plansText(plans), cmd.Flags())
	},
}

const planDateLayout = "2006-01-02"

// servicePlan is one purchasable service period.
type servicePlan struct {
	Duration    session.ServiceDuration `json:"duration"`
	ActiveUntil string                  `json:"active_until"`
}

func servicePlans(from time.Time) []servicePlan {
	durations := session.ServiceDurations()
	plans := make([]servicePlan, 0, len(durations))
	for _, d := range durations {
		plans = append(plans, servicePlan{Duration: d, ActiveUntil: d.WillBeActiveUntil(from)})
	}
	return plans
}

func plansText(plans []servicePlan) string {
	var b strings.Builder
	for i, p := range plans {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "%-12s active until %s", p.Duration, p.ActiveUntil)
	}
	return b.String()
}

func latestUpgradeURL(reports []coordapi.Report) string {
	for i := len(reports) - 1; i >= 0; i-- {
		a := reports[i].Action
		if a != nil && a.Kind == session.ActionPresentUpgrade && a.UpgradeURL != "" {
			return a.UpgradeURL
		}
	}
	return ""
}

func printResponse(cmd *cobra.Command, method, path string, body interface{}) {
	raw, err := request(method, path, body)
	if err != nil {
		internal.PrintFatalError(err, cmd.Flags())
	}

	var out interface{}
	internal.Catch(json.Unmarshal(raw, &out), "Failed to parse response:")
	internal.PrintOutput(out, internal.PrettyJSON(raw), cmd.Flags())
}

func request(method, path string, body interface{}) ([]byte, error) {
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		r = bytes.NewReader(b)
	}

	req, err := http.NewRequest(method, apiURL(path), r)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("is the coordinator running? %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			fmt.Println("Failed to close response body:", err)
		}
	}()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= http.StatusBadRequest {
		var e coordapi.ErrorResponse
		if err := json.Unmarshal(raw, &e); err == nil && e.Error != "" {
			return nil, fmt.Errorf("%s: %s", resp.Status, e.Error)
		}
		return nil, errors.New(resp.Status)
	}
	return raw, nil
}

func apiURL(path string) string {
	addr := apiAddr
	if !strings.HasPrefix(addr, "http://") && !strings.HasPrefix(addr, "https://") {
		addr = "http://" + addr
	}
	return strings.TrimSuffix(addr, "/") + path
}
