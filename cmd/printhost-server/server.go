package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/muurk/printhost/internal/config"
	"github.com/muurk/printhost/internal/discovery"
	"github.com/muurk/printhost/internal/events"
	"github.com/muurk/printhost/internal/logging"
	"github.com/muurk/printhost/internal/plugin"
	"github.com/muurk/printhost/internal/server"
	"github.com/muurk/printhost/internal/settings"
)

// Server command and flags
var (
	host        string
	port        int
	baseDir     string
	configFile  string
	certPath    string
	keyPath     string
	logLevel    string
	hookTimeout time.Duration
	watchFile   bool
	natsURL     string
	natsSubject string
	announce    bool
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the settings server",
	Long: `Start the printhost settings server.

The base directory holds the settings file, the script store and the default
folders (uploads, timelapse, logs, ...). It defaults to the per-user
configuration directory.

With --watch the settings file is reloaded when it is edited by hand. With
--nats-url every settings change is also published to a NATS subject.`,
	Example: `  # Start with defaults (port 5000, per-user config directory)
  printhost-server server

  # Use a TOML settings file in a custom base directory
  printhost-server server --basedir /srv/printhost --config settings.toml

  # Serve HTTPS and forward change events to NATS
  printhost-server server --cert cert.pem --key key.pem --nats-url nats://127.0.0.1:4222

  # Verbose logging and live reload of hand edits
  printhost-server server --log-level debug --watch`,
	RunE: runServer,
}

func init() {
	serverCmd.Flags().StringVar(&host, "host", "", "Server hostname (empty = listen on all interfaces)")
	serverCmd.Flags().IntVar(&port, "port", 5000, "Server port")
	serverCmd.Flags().StringVar(&baseDir, "basedir", "", "Base directory (default: per-user config directory)")
	serverCmd.Flags().StringVar(&configFile, "config", "", "Settings file, relative to the base directory (default: config.yaml)")
	serverCmd.Flags().StringVar(&certPath, "cert", "", "Path to TLS certificate file (serves plain HTTP if not provided)")
	serverCmd.Flags().StringVar(&keyPath, "key", "", "Path to TLS private key file")
	serverCmd.Flags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	serverCmd.Flags().DurationVar(&hookTimeout, "hook-timeout", plugin.DefaultHookTimeout, "Time limit for each extension settings hook")
	serverCmd.Flags().BoolVar(&watchFile, "watch", false, "Reload the settings file when it changes on disk")
	serverCmd.Flags().StringVar(&natsURL, "nats-url", "", "Forward change events to this NATS server (disabled if not specified)")
	serverCmd.Flags().StringVar(&natsSubject, "nats-subject", events.DefaultSubject, "NATS subject for change events")
	serverCmd.Flags().BoolVar(&announce, "announce", true, "Announce the server via zeroconf")
}

func runServer(cmd *cobra.Command, args []string) error {
	if (certPath != "") != (keyPath != "") {
		return fmt.Errorf("both --cert and --key must be provided together, or neither")
	}

	if err := logging.Initialize(logLevel); err != nil {
		return err
	}
	defer logging.Sync()
	log := logging.Named("main")

	dir, err := config.ResolveBaseDir(baseDir)
	if err != nil {
		return err
	}

	storage, err := config.NewFileStorage(config.ResolveSettingsFile(dir, configFile))
	if err != nil {
		return err
	}

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	bus := events.NewBus()
	promRegistry.MustRegister(bus.Collectors()...)

	registry, err := plugin.NewRegistry(
		plugin.WithHookTimeout(hookTimeout),
		plugin.WithRegisterer(promRegistry),
	)
	if err != nil {
		return fmt.Errorf("failed to create extension registry: %w", err)
	}

	var announcer *discovery.Announcer
	if announce {
		announcer = discovery.NewAnnouncer(port, discovery.WithBus(bus))
		if err := registry.Register(announcer); err != nil {
			return err
		}
	}

	engine, err := settings.New(storage,
		settings.WithExtraDefaults(registry.Defaults()),
		settings.WithRegisterer(promRegistry),
	)
	if err != nil {
		return fmt.Errorf("failed to create settings engine: %w", err)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if err := engine.Load(ctx); err != nil {
		return fmt.Errorf("failed to load settings from %s: %w", storage.Path(), err)
	}

	key, generated, err := server.EnsureAPIKey(ctx, engine)
	var persistErr *settings.PersistenceError
	if errors.As(err, &persistErr) {
		log.Warn("Generated API key could not be saved", zap.Error(err))
	} else if err != nil {
		return err
	}
	if generated {
		fmt.Printf("Generated API key: %s\n", key)
	}

	folders := settings.NewFolders(dir)
	logs, err := folders.Get(engine.Snapshot(), settings.FolderLogs)
	if err != nil {
		return err
	}
	if err := logging.InitializeSerial(filepath.Join(logs, "serial.log")); err != nil {
		return err
	}

	var publisher events.Publisher = bus
	if natsURL != "" {
		nats, err := events.NewNATSPublisher(natsURL, natsSubject)
		if err != nil {
			return err
		}
		defer func() { _ = nats.Close() }()
		publisher = events.MultiPublisher{bus, nats}
		log.Info("Forwarding events to NATS", zap.String("url", natsURL), zap.String("subject", nats.Subject()))
	}

	opts := []server.Option{
		server.WithPlugins(registry),
		server.WithFolders(folders),
		server.WithBus(bus),
		server.WithPublisher(publisher),
		server.WithGatherer(promRegistry),
	}
	if announcer != nil {
		opts = append(opts, server.WithTask("announce", announcer.Task(engine)))
	}
	if watchFile {
		opts = append(opts, server.WithTask("watch", watchTask(storage.Path(), engine, publisher)))
	}

	srv, err := server.New(&server.Config{
		Host:     host,
		Port:     port,
		BaseDir:  dir,
		CertPath: certPath,
		KeyPath:  keyPath,
	}, engine, opts...)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	return srv.Start()
}

// watchTask reloads the settings file after external edits
func watchTask(path string, engine *settings.Settings, publisher events.Publisher) server.Task {
	log := logging.Named("watch")
	return func(ctx context.Context) error {
		return config.NewWatcher(path, 0).Run(ctx, func() {
			changed, err := engine.Reload(ctx)
			if err != nil {
				log.Warn("Failed to reload settings", zap.String("path", path), zap.Error(err))
				return
			}
			if !changed {
				return
			}
			if err := publisher.Publish(ctx, events.New(events.SettingsUpdated, nil)); err != nil {
				log.Warn("Failed to publish settings change", zap.Error(err))
			}
		})
	}
}
