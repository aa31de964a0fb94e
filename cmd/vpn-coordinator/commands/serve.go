package commands

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/orandin/lumberjackrus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/skycoin/skywire-utilities/pkg/buildinfo"
	"github.com/skycoin/skywire-utilities/pkg/cmdutil"
	"github.com/skycoin/skywire-utilities/pkg/logging"
	"github.com/skycoin/skywire-utilities/pkg/netutil"

	"github.com/skycoin/vpn-coordinator/internal/netwatch"
	"github.com/skycoin/vpn-coordinator/internal/simvpn"
	"github.com/skycoin/vpn-coordinator/pkg/accountapi"
	"github.com/skycoin/vpn-coordinator/pkg/connstatus"
	"github.com/skycoin/vpn-coordinator/pkg/coordapi"
	"github.com/skycoin/vpn-coordinator/pkg/coordconfig"
	"github.com/skycoin/vpn-coordinator/pkg/coordinator"
	"github.com/skycoin/vpn-coordinator/pkg/coordinator/coordmetrics"
	"github.com/skycoin/vpn-coordinator/pkg/keyrotation"
	"github.com/skycoin/vpn-coordinator/pkg/nettrust"
	"github.com/skycoin/vpn-coordinator/pkg/session"
)

var (
	confPath    string
	logLevel    string
	stepDelay   time.Duration
	autoConfirm bool
	noWatch     bool
	uploadTries int64
	logFile     string
)

func init() {
	serveCmd.Flags().StringVarP(&confPath, "config", "c", "vpn-coordinator.json", "config file, created if missing\033[0m")
	serveCmd.Flags().StringVar(&logLevel, "loglvl", "", "overrides the config log level\033[0m")
	serveCmd.Flags().DurationVar(&stepDelay, "step-delay", simvpn.DefaultStepDelay, "delay between simulated tunnel transitions\033[0m")
	serveCmd.Flags().BoolVarP(&autoConfirm, "auto-confirm", "y", false, "confirm reconnects on network trust changes without asking\033[0m")
	serveCmd.Flags().BoolVar(&noWatch, "no-watch", false, "do not watch the default network interface\033[0m")
	serveCmd.Flags().StringVar(&logFile, "log-file", "", "also write logs to this file, rotated\033[0m")
	serveCmd.Flags().Int64Var(&uploadTries, "upload-tries", 5, "attempts to upload a regenerated public key\033[0m")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the coordinator daemon",
	Run: func(_ *cobra.Command, _ []string) {
		if _, err := buildinfo.Get().WriteTo(os.Stdout); err != nil {
			logrus.Printf("Failed to output build info: %v", err)
		}

		mLogger := logging.NewMasterLogger()
		logger := mLogger.PackageLogger("vpn_coordinator")

		conf, err := coordconfig.ReadOrCreate(confPath)
		if err != nil {
			logger.WithError(err).Fatal("Failed to read in config.")
		}
		if logLevel == "" {
			logLevel = conf.LogLevel
		}
		if lvl, err := logging.LevelFromString(logLevel); err == nil {
			mLogger.SetLevel(lvl)
		}
		if logFile != "" {
			hook, err := lumberjackrus.NewHook(&lumberjackrus.LogFile{
				Filename:   logFile,
				MaxSize:    50,
				MaxBackups: 3,
				MaxAge:     28,
				Compress:   true,
				LocalTime:  true,
			}, mLogger.GetLevel(), &logrus.JSONFormatter{}, nil)
			if err != nil {
				logger.WithError(err).Fatal("Failed to open log file.")
			}
			mLogger.AddHook(hook)
		}

		ctx, cancel := cmdutil.SignalContext(context.Background(), logger)
		defer cancel()

		if err := serve(ctx, conf, mLogger); err != nil {
			logger.WithError(err).Fatal("Coordinator stopped with error.")
		}
		logger.Info("Coordinator stopped.")
	},
}

func serve(ctx context.Context, conf *coordconfig.Config, mLogger *logging.MasterLogger) error {
	log := mLogger.PackageLogger("vpn_coordinator")

	trust, err := nettrust.NewBoltStore(conf.TrustDB, mLogger.PackageLogger("nettrust"))
	if err != nil {
		return err
	}
	defer func() {
		if err := trust.Close(); err != nil {
			log.WithError(err).Error("Failed to close trust store.")
		}
	}()
	if err := seedTrust(trust, conf.Network); err != nil {
		return err
	}

	platform := simvpn.New(stepDelay, mLogger.PackageLogger("simvpn"))

	var (
		sessions coordinator.SessionService
		uploader keyrotation.KeyUploader
		deleter  coordapi.SessionDeleter
		clearer  sessionClearer
	)
	if conf.Account.AccountID != "" {
		client := accountapi.NewClient(accountapi.Config{
			Addr:         conf.Account.Addr,
			AccountID:    conf.Account.AccountID,
			SessionToken: conf.Account.SessionToken,
		}, &http.Client{Timeout: conf.Account.Timeout.Duration()}, mLogger.PackageLogger("accountapi"))
		sessions, uploader, deleter, clearer = client, client, client, client
	} else {
		log.Info("No account configured, using simulated sessions.")
		sessions = simvpn.NewSessions()
	}

	regen := &keyrotation.LocalRegenerator{
		Uploader: uploader,
		Validity: conf.Keys.Validity.Duration(),
	}
	if uploader != nil {
		regen.Retrier = netutil.NewRetrier(log, time.Second, 30*time.Second, uploadTries, 2)
	}

	reports := coordapi.NewReports(coordapi.DefaultReportsLimit)
	reports.OnReport(reportHook(log, clearer, conf))

	c, err := coordinator.New(coordinator.Config{
		Platform:    platform,
		Regenerator: regen,
		Key:         conf.KeyPair(),
		Sessions:    sessions,
		Guard:       session.Guard{TestMode: conf.TestMode},
		Trust:       trust,
		Reporter:    reports,
		Metrics:     coordmetrics.NewVictoriaMetrics(nil),
		Log:         log,
		OnKeyRotated: func(kp keyrotation.KeyPair) {
			if err := conf.UpdateKeys(kp); err != nil {
				log.WithError(err).Error("Failed to persist rotated keys.")
			}
		},
	})
	if err != nil {
		return err
	}
	platform.SetStatusHandler(c.OnExternalStatusUpdate)
	c.Subscribe(func(status connstatus.Status) {
		log.WithField("status", status).Info("Connection status changed.")
	})

	api := coordapi.New(c, reports, trust, mLogger.PackageLogger("coordapi"), coordapi.Config{
		Sessions:      deleter,
		EnableMetrics: true,
		PrintLog:      mLogger.GetLevel() == logrus.DebugLevel,
	})
	srv := &http.Server{
		Addr:              conf.APIAddr,
		ReadHeaderTimeout: 2 * time.Second,
		IdleTimeout:       30 * time.Second,
		Handler:           api,
	}

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		if err := c.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	eg.Go(func() error {
		log.WithField("addr", conf.APIAddr).Info("Serving control API...")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	eg.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Warn("Control API shutdown failed.")
		}
		return c.Close()
	})
	if !noWatch {
		w := netwatch.New(netwatch.Config{
			Interval: conf.Network.PollInterval.Duration(),
			Trust:    trust,
			Log:      mLogger.PackageLogger("netwatch"),
		})
		eg.Go(func() error {
			err := w.Run(ctx, func(ch netwatch.Change) {
				c.EvaluateNetworkChange(ch.Network, ch.CachedTrust, func() bool { return autoConfirm })
			})
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}
	if refresh := conf.ServerListRefresh.Duration(); refresh > 0 {
		eg.Go(func() error {
			t := time.NewTicker(refresh)
			defer t.Stop()
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-t.C:
					c.ReconnectToFastestServer()
				}
			}
		})
	}

	err = eg.Wait()
	if errors.Is(err, coordinator.ErrClosed) {
		return nil
	}
	return err
}

type sessionClearer interface {
	ClearSession()
}

type tokenStore interface {
	UpdateSessionToken(token string) error
}

// reportHook logs every report. A forced logout drops the local session
// token without deleting the session on the account service.
func reportHook(log logrus.FieldLogger, clearer sessionClearer, store tokenStore) func(coordapi.Report) {
	return func(r coordapi.Report) {
		l := log.WithField("kind", r.Kind).WithField("code", r.Code)
		if r.Action != nil {
			l = l.WithField("action", r.Action.Kind)
		}
		l.Warn(r.Message)

		if r.Action == nil || r.Action.Kind != session.ActionForceLogout || clearer == nil {
			return
		}
		clearer.ClearSession()
		if err := store.UpdateSessionToken(""); err != nil {
			log.WithError(err).Error("Failed to persist cleared session token.")
			return
		}
		log.Info("Local session cleared.")
	}
}

func seedTrust(store nettrust.Store, conf coordconfig.Network) error {
	seed := func(names []string, level nettrust.TrustLevel) error {
		for _, name := range names {
			n := netwatch.Classify(name)
			if n.IsNone() {
				continue
			}
			if _, ok, err := store.Trust(n); err != nil {
				return err
			} else if ok {
				continue
			}
			if err := store.SetTrust(n, level); err != nil {
				return err
			}
		}
		return nil
	}
	if err := seed(conf.Trusted, nettrust.Trusted); err != nil {
		return err
	}
	return seed(conf.Untrusted, nettrust.Untrusted)
}
