package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	pflag "github.com/spf13/pflag"

	"github.com/bft-labs/sensorrelay/internal/adapters/fs"
	httpAdapter "github.com/bft-labs/sensorrelay/internal/adapters/http"
	"github.com/bft-labs/sensorrelay/internal/adapters/sensor"
	"github.com/bft-labs/sensorrelay/internal/adapters/ws"
	"github.com/bft-labs/sensorrelay/internal/app"
	"github.com/bft-labs/sensorrelay/internal/bridge"
	"github.com/bft-labs/sensorrelay/internal/cliconfig"
	"github.com/bft-labs/sensorrelay/internal/device"
	"github.com/bft-labs/sensorrelay/internal/discovery"
	"github.com/bft-labs/sensorrelay/internal/domain"
	"github.com/bft-labs/sensorrelay/internal/hostreceiver"
	"github.com/bft-labs/sensorrelay/internal/ports"
	"github.com/bft-labs/sensorrelay/internal/settings"
	"github.com/bft-labs/sensorrelay/pkg/log"
)

const helpDescription = `
Relay recorded motion-sensor trials from a wearable to a host on the local network.

The device records trial files and streams them in batches over a peer
channel. The bridge runs on the paired phone: it reacts to intents written into
its settings file, drives transfers with retry, and forwards every batch to a
host receiver found by scanning the local network.
`

var exampleUsage = strings.TrimSpace(`
  sensorrelay host
  sensorrelay device --storage ~/trials
  sensorrelay bridge --peer-url ws://watch.local:8765/peer --candidates 192.168.1.0/24
  sensorrelay intent allFilesAction send
  sensorrelay upload ~/trials/trial_acc_2024-6-20_16-24-44 --host 192.168.1.20:12345
`)

func getVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}

// cli carries the state shared by every subcommand.
type cli struct {
	cfg     cliconfig.Config
	cfgPath string
	zl      zerolog.Logger
	logger  ports.Logger
}

// load applies file, env and flag configuration in that order of precedence
// (flags win) and validates the result.
func (c *cli) load(cmd *cobra.Command) error {
	cfgFile := c.cfgPath
	if cfgFile == "" {
		cfgFile = cliconfig.DefaultConfigPath()
	}

	changed := map[string]bool{}
	cmd.Flags().Visit(func(f *pflag.Flag) { changed[f.Name] = true })

	if cfgFile != "" && cliconfig.FileExists(cfgFile) {
		fc, err := cliconfig.LoadFileConfig(cfgFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if err := cliconfig.ApplyFileConfig(&c.cfg, fc, changed); err != nil {
			return err
		}
	}
	if err := cliconfig.ApplyEnvConfig(&c.cfg, changed); err != nil {
		return err
	}
	if err := c.cfg.Validate(); err != nil {
		return err
	}

	zl, err := cliconfig.WithLevel(c.zl, c.cfg.LogLevel)
	if err != nil {
		zl.Warn().Str("level", c.cfg.LogLevel).Msg("unknown log level, using info")
	}
	c.zl = zl
	c.logger = log.NewZerologAdapterWithLogger(zl)
	c.zl.Debug().Interface("config", c.cfg).Msg("configuration")
	return nil
}

func (c *cli) httpClient() *http.Client {
	return &http.Client{Timeout: c.cfg.HTTPTimeout}
}

// run starts components as one service and blocks until a signal arrives or
// a component fails.
func (c *cli) run(name string, components ...app.Component) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svc := app.NewService(name, c.logger, components)
	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("start %s: %w", name, err)
	}

	select {
	case <-ctx.Done():
		c.logger.Info("received signal, stopping...")
		if err := svc.Stop(); err != nil && !errors.Is(err, domain.ErrNotRunning) {
			return fmt.Errorf("stop %s: %w", name, err)
		}
	case <-svc.Done():
	}
	return svc.Err()
}

func main() {
	c := &cli{cfg: cliconfig.DefaultConfig(), zl: cliconfig.Logger()}
	c.logger = log.NewZerologAdapterWithLogger(c.zl)

	root := &cobra.Command{
		Use:           "sensorrelay",
		Short:         "Relay wearable sensor trials to a host on the local network",
		Long:          strings.TrimSpace(helpDescription),
		Example:       exampleUsage,
		Version:       fmt.Sprintf("%s %s/%s", getVersion(), runtime.GOOS, runtime.GOARCH),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&c.cfgPath, "config", "", "path to config file (default: $HOME/.sensorrelay/config.toml)")
	pf.StringVar(&c.cfg.LogLevel, "log-level", c.cfg.LogLevel, "log level (debug, info, warn, error)")
	pf.StringVar(&c.cfg.FilePrefix, "file-prefix", c.cfg.FilePrefix, "file name prefix of relayable trial files")
	pf.IntVar(&c.cfg.HostPort, "host-port", c.cfg.HostPort, "host receiver port")
	pf.DurationVar(&c.cfg.HTTPTimeout, "timeout", c.cfg.HTTPTimeout, "HTTP timeout")

	root.AddCommand(
		deviceCommand(c),
		bridgeCommand(c),
		hostCommand(c),
		intentCommand(c),
		uploadCommand(c),
	)

	if err := root.Execute(); err != nil {
		c.zl.Error().Err(err).Msg("sensorrelay")
		os.Exit(1)
	}
}

func deviceCommand(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "device",
		Short: "Run the device agent with synthetic sensors",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.load(cmd); err != nil {
				return err
			}
			store, err := fs.NewTrialStore(c.cfg.StorageRoot)
			if err != nil {
				return err
			}
			sources := []ports.SensorSource{
				sensor.NewSynthetic(domain.SensorAccelerometer, 0),
				sensor.NewSynthetic(domain.SensorGyroscope, 0),
			}
			agent := device.New(store, sources, c.logger,
				device.WithPaceDelay(c.cfg.PaceDelay),
				device.WithFilePrefix(c.cfg.FilePrefix))
			listener := ws.NewListener(c.logger)

			c.logger.Info("device agent starting",
				ports.String("storage", store.Root()),
				ports.String("listen", c.cfg.PeerListen))

			return c.run("device",
				app.NewComponent("peer-listener", func(ctx context.Context) error {
					return listener.Serve(ctx, c.cfg.PeerListen)
				}),
				app.NewComponent("agent", func(ctx context.Context) error {
					defer agent.Close()
					for {
						conn, err := listener.Accept(ctx)
						if err != nil {
							return nil
						}
						if err := agent.Serve(ctx, conn); err != nil {
							c.logger.Warn("peer session ended", ports.Err(err))
						}
						conn.Close()
					}
				}),
			)
		},
	}
	f := cmd.Flags()
	f.StringVar(&c.cfg.StorageRoot, "storage", c.cfg.StorageRoot, "trial storage directory (default: $HOME/.sensorrelay/trials)")
	f.StringVar(&c.cfg.PeerListen, "peer-listen", c.cfg.PeerListen, "address the peer WebSocket listens on")
	f.DurationVar(&c.cfg.PaceDelay, "pace", c.cfg.PaceDelay, "delay between streamed batches")
	return cmd
}

func bridgeCommand(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bridge",
		Short: "Run the bridge orchestrator between the device and a host",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.load(cmd); err != nil {
				return err
			}
			if err := os.MkdirAll(filepath.Dir(c.cfg.SettingsPath), 0o700); err != nil {
				return fmt.Errorf("create settings dir: %w", err)
			}
			store, err := settings.NewFileStore(c.cfg.SettingsPath, c.logger)
			if err != nil {
				return err
			}
			host := httpAdapter.NewHostClient(c.httpClient(), domain.HostPaths{}, c.logger)
			disc, err := discovery.New(host, store, c.logger, c.discoveryConfig())
			if err != nil {
				return err
			}
			orch := bridge.New(store, host, disc, c.logger, bridge.Config{
				FilePrefix:         c.cfg.FilePrefix,
				WatchdogDelay:      c.cfg.WatchdogDelay,
				ForwardConcurrency: c.cfg.ForwardConcurrency,
				DeleteAfterRelay:   c.cfg.DeleteAfterRelay,
			})

			c.logger.Info("bridge starting",
				ports.String("settings", store.Path()),
				ports.String("peer", c.cfg.PeerURL),
				ports.Int("candidates", len(disc.Candidates())))

			return c.run("bridge",
				app.NewComponent("settings", store.Run),
				app.NewComponent("discovery", disc.Run),
				app.NewComponent("orchestrator", orch.Run),
				app.NewComponent("peer", func(ctx context.Context) error {
					b := app.NewBackoff(500*time.Millisecond, 30*time.Second)
					return ws.Redial(ctx, c.cfg.PeerURL, b, c.logger, func(ctx context.Context, conn *ws.Conn) {
						if err := orch.Serve(ctx, conn); err != nil {
							c.logger.Warn("peer session ended", ports.Err(err))
						}
					})
				}),
			)
		},
	}
	f := cmd.Flags()
	f.StringVar(&c.cfg.PeerURL, "peer-url", c.cfg.PeerURL, "device peer WebSocket URL")
	f.StringVar(&c.cfg.SettingsPath, "settings", c.cfg.SettingsPath, "settings file shared with the UI (default: $HOME/.sensorrelay/settings.json)")
	addDiscoveryFlags(c, f)
	f.IntVar(&c.cfg.ForwardConcurrency, "forward-concurrency", c.cfg.ForwardConcurrency, "maximum in-flight batch posts")
	f.DurationVar(&c.cfg.WatchdogDelay, "watchdog", c.cfg.WatchdogDelay, "time without progress before a retry is suggested")
	f.BoolVar(&c.cfg.DeleteAfterRelay, "delete-after-relay", c.cfg.DeleteAfterRelay, "delete files on the device once relayed")
	return cmd
}

func hostCommand(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "host",
		Short: "Run a host receiver that stores relayed batches in SQLite",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.load(cmd); err != nil {
				return err
			}
			store, err := hostreceiver.Open(c.cfg.HostDB)
			if err != nil {
				return err
			}
			defer store.Close()

			srv := hostreceiver.NewServer(store, domain.HostPaths{}, c.logger)
			c.logger.Info("host receiver starting",
				ports.String("db", c.cfg.HostDB),
				ports.String("listen", c.cfg.HostListen))

			return c.run("host",
				app.NewComponent("http", func(ctx context.Context) error {
					return srv.ListenAndServe(ctx, c.cfg.HostListen)
				}),
			)
		},
	}
	f := cmd.Flags()
	f.StringVar(&c.cfg.HostListen, "host-listen", c.cfg.HostListen, "listen address (default: :<host-port>)")
	f.StringVar(&c.cfg.HostDB, "host-db", c.cfg.HostDB, "SQLite database path (default: $HOME/.sensorrelay/host.sqlite)")
	return cmd
}

func intentCommand(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "intent <key> <value>",
		Short: "Write an intent into the bridge settings file",
		Example: strings.TrimSpace(`
  sensorrelay intent singleFileToAskFor trial_acc_2024-6-20_16-24-44
  sensorrelay intent recordCommand start
  sensorrelay intent retrySendFile true`),
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.load(cmd); err != nil {
				return err
			}
			if !settings.IsIntentKey(args[0]) {
				return fmt.Errorf("unknown intent key %q (want one of %s)",
					args[0], strings.Join(settings.IntentKeys(), ", "))
			}
			if err := settings.WriteValue(c.cfg.SettingsPath, args[0], args[1]); err != nil {
				return fmt.Errorf("write intent: %w", err)
			}
			c.logger.Info("intent written",
				ports.String("key", args[0]),
				ports.String("value", args[1]))
			return nil
		},
	}
	cmd.Flags().StringVar(&c.cfg.SettingsPath, "settings", c.cfg.SettingsPath, "settings file shared with the bridge")
	return cmd
}

func uploadCommand(c *cli) *cobra.Command {
	var hostAddr string
	cmd := &cobra.Command{
		Use:   "upload <file>",
		Short: "Push a local trial file to a host receiver",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.load(cmd); err != nil {
				return err
			}
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read %s: %w", args[0], err)
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			host := httpAdapter.NewHostClient(c.httpClient(), domain.HostPaths{}, c.logger)
			ep, err := domain.ParseEndpoint(hostAddr)
			if err != nil {
				return err
			}
			if ep.IsZero() {
				disc, err := discovery.New(host, nil, c.logger, c.discoveryConfig())
				if err != nil {
					return err
				}
				var ok bool
				if ep, ok = disc.Pass(ctx); !ok {
					return domain.ErrNoEndpoint
				}
			}

			name := filepath.Base(args[0])
			if err := host.PostFile(ctx, ep, name, domain.SamplesPerBatch, data); err != nil {
				return err
			}
			c.logger.Info("file uploaded",
				ports.String("file", name),
				ports.String("host", ep.String()),
				ports.Int("batches", domain.BatchCount(int64(len(data)))))
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&hostAddr, "host", "", "host receiver address (host:port); discovered when empty")
	addDiscoveryFlags(c, f)
	return cmd
}

func addDiscoveryFlags(c *cli, f *pflag.FlagSet) {
	f.StringVar(&c.cfg.Candidates, "candidates", c.cfg.Candidates, "comma-separated CIDR ranges, addresses or host:port pairs to probe")
	f.DurationVar(&c.cfg.DiscoveryInterval, "discovery-interval", c.cfg.DiscoveryInterval, "interval between discovery passes")
	f.DurationVar(&c.cfg.ProbeTimeout, "probe-timeout", c.cfg.ProbeTimeout, "timeout of one host probe")
	f.IntVar(&c.cfg.ProbeConcurrency, "probe-concurrency", c.cfg.ProbeConcurrency, "maximum probes in flight")
}

func (c *cli) discoveryConfig() discovery.Config {
	return discovery.Config{
		Candidates:   c.cfg.CandidateList(),
		Port:         c.cfg.HostPort,
		Interval:     c.cfg.DiscoveryInterval,
		ProbeTimeout: c.cfg.ProbeTimeout,
		Concurrency:  c.cfg.ProbeConcurrency,
	}
}
