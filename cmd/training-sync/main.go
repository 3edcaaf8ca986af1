package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ncsa/training-sync/internal/pipeline"
	"github.com/ncsa/training-sync/pkg/clients"
	"github.com/ncsa/training-sync/pkg/config"
	"github.com/ncsa/training-sync/pkg/endpoint"
	"github.com/ncsa/training-sync/pkg/errors"
	"github.com/ncsa/training-sync/pkg/logger"
	"github.com/ncsa/training-sync/pkg/metrics"
	"github.com/ncsa/training-sync/pkg/pidfile"
	"github.com/ncsa/training-sync/pkg/schedule"
	"github.com/ncsa/training-sync/pkg/source"
	"github.com/ncsa/training-sync/pkg/stats"
	"github.com/ncsa/training-sync/pkg/transform"
	"github.com/ncsa/training-sync/pkg/warehouse"
)

var version = "1.0.0"

const defaultSource = "file:./uiuc_training.json"

type cliFlags struct {
	source      string
	destination string
	daemonize   bool
	logLevel    string
	configPath  string
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	flags := &cliFlags{}

	root := &cobra.Command{
		Use:   "training-sync [start|stop|restart]",
		Short: "training-sync - catalog to search index synchronization",
		Long: `training-sync pulls training resource records from a catalog source and
publishes them into a remote search index, either once or forever as a
daemon that re-polls on an adaptive schedule.

File SRC|DEST syntax: file:<file path and name>`,
		Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"start", "stop", "restart"},
		RunE: func(cmd *cobra.Command, args []string) error {
			action := ""
			if len(args) > 0 {
				action = args[0]
			}
			// run owns the exit code; RunE never sees an error
			cmd.SilenceUsage = true
			os.Exit(run(action, flags))
			return nil
		},
	}

	root.Flags().StringVarP(&flags.source, "source", "s", "", "Record source {file, http[s]} (default="+defaultSource+")")
	root.Flags().StringVarP(&flags.destination, "destination", "d", "", "Record destination {file, analyze, or index} (default from config or index)")
	root.Flags().BoolVar(&flags.daemonize, "daemon", false, "Run as a daemon writing stdout/stderr to the daemon log")
	root.Flags().StringVarP(&flags.logLevel, "log", "l", "", "Logging level (default=warn)")
	root.Flags().StringVarP(&flags.configPath, "config", "c", "./training-sync.conf", "Configuration file")

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("training-sync v%s\n", version)
			fmt.Printf("Go version: %s\n", runtime.Version())
			fmt.Printf("OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	})

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// run executes the requested action and returns the process exit code:
// 0 clean, 1 on config or fatal errors, the signal number when a
// termination signal ends a run.
func run(action string, flags *cliFlags) int {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error %q reading config=%s\n", err, flags.configPath)
		return 1
	}

	if action == "stop" || action == "restart" {
		if err := signalRunning(cfg.PIDFile); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		if action == "stop" {
			return 0
		}
		// restart: give the old instance a moment to drop the lock
		time.Sleep(2 * time.Second)
	}

	src, dst, err := resolveEndpoints(cfg, flags)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	if err := cfg.Validate(dst.Scheme); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	daemonMode := action == "start" || action == "restart"
	if daemonMode && !endpoint.DaemonAllowed(src, dst) {
		fmt.Fprintln(os.Stderr, "can only daemonize when source=[http|https] and destination=index")
		return 1
	}

	level := normalizeLevel(flags.logLevel, cfg.LogLevel)
	if err := initLogging(cfg, level, flags.daemonize); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	log := logger.Get()
	defer func() { _ = logger.Sync() }()

	var lock *pidfile.PIDFile
	if cfg.PIDFile != "" {
		lock, err = pidfile.Acquire(cfg.PIDFile)
		if err != nil {
			log.Error("PID lock failed", zap.Error(err))
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		defer func() { _ = lock.Release() }()
	}

	log.Info(fmt.Sprintf("Starting program=%s pid=%d, uid=%d(%s)",
		"training-sync", os.Getpid(), os.Getuid(), logger.Username()))
	log.Info("Source: " + src.Display)
	log.Info("Destination: " + dst.Display)
	log.Info("Config: " + flags.configPath)
	log.Info("Log Level: " + level)

	if cfg.MetricsAddr != "" {
		ms := metrics.NewServer(cfg.MetricsAddr, log)
		ms.Start()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = ms.Stop(shutdownCtx)
		}()
	}

	runner, httpClient, err := buildRunner(cfg, src, dst, daemonMode, log)
	if err != nil {
		log.Error("setup failed", zap.Error(err))
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer func() { _ = httpClient.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	var caught atomic.Int32
	go func() {
		sig := <-sigCh
		if s, ok := sig.(syscall.Signal); ok {
			caught.Store(int32(s))
		}
		log.Error(fmt.Sprintf("Caught signal=%d(%s), exiting with rc=%d", caught.Load(), sig, caught.Load()))
		cancel()
	}()

	err = runner.Run(ctx, daemonMode)

	switch {
	case err == nil:
		return 0
	case errors.IsType(err, errors.ErrorTypeSignal) && caught.Load() != 0:
		return int(caught.Load())
	default:
		log.Error("Exiting with rc=1", zap.Error(err))
		return 1
	}
}

// resolveEndpoints applies the CLI and config defaults and validates the
// source/destination combination
func resolveEndpoints(cfg *config.Config, flags *cliFlags) (*endpoint.Endpoint, *endpoint.Endpoint, error) {
	srcSpec := flags.source
	if srcSpec == "" {
		srcSpec = defaultSource
	}
	src, err := endpoint.ParseSource(srcSpec)
	if err != nil {
		return nil, nil, err
	}

	dstSpec := flags.destination
	if dstSpec == "" {
		dstSpec = cfg.Destination
	}
	if dstSpec == "" {
		dstSpec = endpoint.SchemeIndex
	}
	dst, err := endpoint.ParseDestination(dstSpec)
	if err != nil {
		return nil, nil, err
	}
	if dst.Scheme == endpoint.SchemeIndex {
		dst.Display = fmt.Sprintf("%s@uuid=%s", dst.Scheme, cfg.Index)
	}

	if err := endpoint.ValidatePair(src, dst); err != nil {
		return nil, nil, err
	}
	return src, dst, nil
}

// normalizeLevel maps the CLI/config level to a zap level name, defaulting
// to warn like the original service
func normalizeLevel(flagLevel, cfgLevel string) string {
	level := flagLevel
	if level == "" {
		level = cfgLevel
	}
	if level == "" {
		level = "warn"
	}
	level = strings.ToLower(level)
	if level == "warning" {
		return "warn"
	}
	return level
}

func initLogging(cfg *config.Config, level string, daemonize bool) error {
	logCfg := logger.Config{
		Level:    level,
		Encoding: "console",
	}
	if cfg.LogFile != "" {
		logCfg.File = logger.FileConfig{
			Path:       cfg.LogFile,
			MaxSizeMB:  100,
			MaxBackups: 10,
			MaxAgeDays: 365,
		}
	}

	if daemonize && cfg.LogFile != "" {
		// keep any unexpected content from a previous daemon run
		daemonLog := logger.DaemonLogPath(cfg.LogFile)
		if saved, err := logger.PreserveDaemonLog(daemonLog); err == nil && saved != "" {
			fmt.Fprintf(os.Stderr, "saved previous daemon log to %s\n", saved)
		}
		logCfg.OutputPaths = []string{daemonLog}
	}

	return logger.Init(logCfg)
}

// buildRunner assembles the source reader, transformer, sink, and scheduler
// for the selected endpoints
func buildRunner(cfg *config.Config, src, dst *endpoint.Endpoint, daemonMode bool, log *zap.Logger) (*pipeline.Runner, *clients.HTTPClient, error) {
	httpClient := clients.NewHTTPClient(nil, log)

	reader, err := source.NewReader(src, cfg.Affiliation(), httpClient, log)
	if err != nil {
		_ = httpClient.Close()
		return nil, nil, err
	}

	transformer := transform.New(cfg.ImportSource, transform.NewRandomPolicy(time.Now().UnixNano()), log)

	var run stats.Run
	var ingestor *warehouse.Ingestor
	if dst.Scheme == endpoint.SchemeIndex {
		creds := warehouse.Credentials{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.TokenURL,
		}
		client := warehouse.NewSearchClient(cfg.SinkURL, cfg.Index, creds, httpClient, log)
		ingestor = warehouse.NewIngestor(client, cfg.BatchSize, &run, log)
	}

	var sched *schedule.Scheduler
	if daemonMode {
		opts := []schedule.Option{}
		if cfg.LastUpdateURL != "" {
			opts = append(opts, schedule.WithProbe(schedule.NewHTTPProbe(cfg.LastUpdateURL, httpClient)))
		}
		sched = schedule.NewScheduler(schedule.Config{
			PeakSleep: cfg.PeakInterval,
			OffSleep:  cfg.OffInterval,
			MaxStale:  cfg.MaxStale,
		}, log, opts...)
	}

	return pipeline.NewRunner(dst, reader, transformer, ingestor, sched, &run, log), httpClient, nil
}

// signalRunning sends SIGTERM to the instance recorded in the PID file
func signalRunning(pidPath string) error {
	if pidPath == "" {
		return errors.New(errors.ErrorTypeConfig, "PID_FILE is not configured, cannot signal a running instance")
	}

	pid, err := pidfile.ReadPID(pidPath)
	if err != nil {
		return err
	}

	if err := syscall.Kill(pid, syscall.SIGTERM); err != nil {
		return errors.Wrap(err, errors.ErrorTypeInternal, "signalling running instance").
			WithDetail("pid", pid)
	}
	fmt.Printf("sent SIGTERM to pid %d\n", pid)
	return nil
}
