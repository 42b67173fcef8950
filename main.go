package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"git.unix.lgbt/diamondburned/showip/showip"
	"git.unix.lgbt/diamondburned/showip/showip/config"
	"git.unix.lgbt/diamondburned/showip/showip/daemon"
	"git.unix.lgbt/diamondburned/showip/showip/display"
	"git.unix.lgbt/diamondburned/showip/showip/i2c"
	"git.unix.lgbt/diamondburned/showip/showip/journal"
	"git.unix.lgbt/diamondburned/showip/showip/lock"
	"git.unix.lgbt/diamondburned/showip/showip/logging"
	"git.unix.lgbt/diamondburned/showip/showip/metrics"
	"git.unix.lgbt/diamondburned/showip/showip/probe"
	"git.unix.lgbt/diamondburned/showip/showip/signals"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

type options struct {
	confFile    string
	testConf    string
	logFile     string
	pidFile     string
	daemonize   bool
	watchConf   bool
	maxLoops    int
	display     string
	i2cBus      int
	i2cAddr     uint16
	ipv6        bool
	metricsFile string
	logLevel    string
}

func defaultOptions() options {
	probeOpts := probe.DefaultOptions()

	return options{
		maxLoops: 10,
		display:  "lcd",
		i2cBus:   probeOpts.Bus,
		i2cAddr:  probeOpts.Addr,
	}
}

// errUsage is returned for arguments that parse but make no sense.
var errUsage = errors.New("invalid usage")

func main() {
	os.Exit(execute(os.Args[1:], os.Stdout, os.Stderr))
}

// execute runs the command with the given arguments and returns the exit
// status.
func execute(args []string, stdout, stderr io.Writer) int {
	opts := defaultOptions()
	code := 0

	cmd := newCommand(&opts, func(cmd *cobra.Command) {
		if opts.testConf != "" {
			code = testConf(opts.testConf, stderr)
			return
		}

		code = run(&opts, daemonArgs(cmd.Flags()))
	})
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(stderr, "Error:", err)
		cmd.SetOut(stderr)
		cmd.Usage()
		return 1
	}

	return code
}

func newCommand(opts *options, run func(cmd *cobra.Command)) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "showip [flags]",
		Short: "Show the addresses of this machine on a character LCD",
		Long: `showip is a small daemon that periodically writes the IP addresses of the
machine onto a 16x2 character LCD, so that a headless board can be found on
the network.

Send SIGHUP to reload the configuration file, SIGINT or SIGTERM to stop.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := opts.check(); err != nil {
				return err
			}
			if err := opts.resolvePaths(); err != nil {
				return err
			}

			run(cmd)
			return nil
		},
	}

	flags := cmd.Flags()
	flags.SortFlags = false
	flags.StringVarP(&opts.confFile, "conf_file", "c", opts.confFile, "read configuration from the file")
	flags.StringVarP(&opts.testConf, "test_conf", "t", opts.testConf, "test the configuration file and exit")
	flags.StringVarP(&opts.logFile, "log_file", "l", opts.logFile, "write progress records to the file instead of stdout")
	flags.BoolVarP(&opts.daemonize, "daemon", "d", opts.daemonize, "daemonize this application")
	flags.StringVarP(&opts.pidFile, "pid_file", "p", opts.pidFile, "PID file used to allow only one instance")
	flags.IntVarP(&opts.maxLoops, "max_loops", "n", opts.maxLoops, "stop after this many cycles, 0 to never stop")
	flags.BoolVarP(&opts.watchConf, "watch_conf", "w", opts.watchConf, "reload the configuration file when it changes")
	flags.StringVar(&opts.display, "display", opts.display, "display to render to: lcd, text or none")
	flags.IntVar(&opts.i2cBus, "i2c_bus", opts.i2cBus, "I2C bus of the LCD's I/O expander")
	flags.Uint16Var(&opts.i2cAddr, "i2c_addr", opts.i2cAddr, "I2C address of the LCD's I/O expander")
	flags.BoolVar(&opts.ipv6, "ipv6", opts.ipv6, "show IPv6 addresses instead of IPv4")
	flags.StringVar(&opts.metricsFile, "metrics_file", opts.metricsFile, "write Prometheus metrics into the file")
	flags.StringVar(&opts.logLevel, "log_level", opts.logLevel, "log level: debug, info, warn or error")

	return cmd
}

func (o *options) check() error {
	switch o.display {
	case "lcd", "text", "none":
	default:
		return errors.Wrapf(errUsage, "unknown display %q", o.display)
	}

	if o.logLevel != "" && !logging.ValidLevel(o.logLevel) {
		return errors.Wrapf(errUsage, "unknown log level %q", o.logLevel)
	}

	if o.maxLoops < 0 {
		return errors.Wrapf(errUsage, "negative max_loops %d", o.maxLoops)
	}

	return nil
}

// resolvePaths makes every path absolute, since the daemon runs in the root
// directory.
func (o *options) resolvePaths() error {
	for _, path := range []*string{&o.confFile, &o.logFile, &o.pidFile, &o.metricsFile} {
		if *path == "" {
			continue
		}

		abs, err := filepath.Abs(*path)
		if err != nil {
			return errors.Wrapf(err, "failed to resolve %q", *path)
		}
		*path = abs
	}

	return nil
}

// daemonArgs rebuilds the arguments that were given, with every value as it
// is after resolving, for the re-executed daemon stages.
func daemonArgs(flags *pflag.FlagSet) []string {
	var args []string
	flags.Visit(func(f *pflag.Flag) {
		args = append(args, "--"+f.Name+"="+f.Value.String())
	})
	return args
}

// testConf validates the configuration file. Only this mode reports to the
// terminal.
func testConf(path string, stderr io.Writer) int {
	if err := config.NewStore(path).Validate(); err != nil {
		switch {
		case errors.Is(err, config.ErrNotFound):
			fmt.Fprintf(stderr, "Can't read config file %s\n", path)
		default:
			fmt.Fprintf(stderr, "Wrong config file %s: %v\n", path, err)
		}
		return 1
	}

	return 0
}

// daemonize detaches the process. Only the detached daemon returns from it.
var daemonize = func(args []string) error {
	_, err := daemon.New(args).Daemonize()
	return err
}

func run(opts *options, args []string) int {
	logCfg := logging.FromEnv()
	if opts.logLevel != "" {
		logCfg.Level = opts.logLevel
	}

	logger, closer := logging.New(logCfg)
	defer closer.Close()

	slog.SetDefault(logger)

	// Every stage loads the configuration, but only the daemon reports on it.
	store := config.NewStore(opts.confFile)
	loadErr := store.Load()

	if opts.daemonize {
		if err := daemonize(args); err != nil {
			logger.Error("failed to daemonize", "error", err)
			return 1
		}
	}

	logger.Info("started", "pid", os.Getpid())

	if loadErr != nil {
		logger.Warn("failed to load configuration, using default",
			"path", opts.confFile, "error", loadErr, "interval", store.Current().Interval)
	} else if opts.confFile != "" {
		logger.Info("configuration loaded",
			"path", opts.confFile, "interval", store.Current().Interval)
	}

	handle, err := lock.Acquire(opts.pidFile)
	if err != nil {
		if errors.Is(err, lock.ErrAlreadyRunning) {
			logger.Error("already running", "path", opts.pidFile)
		} else {
			logger.Error("failed to acquire lock", "path", opts.pidFile, "error", err)
		}
		return 1
	}
	if opts.pidFile != "" {
		logger.Info("lock acquired", "path", opts.pidFile)
	}

	router := signals.NewRouter()
	router.Start()
	defer router.Stop()

	stream := openStream(opts.logFile, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := metrics.New(opts.metricsFile)

	p := probe.New(probe.Options{
		IPv6: opts.ipv6,
		Bus:  opts.i2cBus,
		Addr: opts.i2cAddr,
	})

	d, missing, release := openDisplay(opts, p, logger)
	defer release()

	c := showip.NewController(showip.ControllerConfig{
		Driver:  showip.NewDriver(stream, p, d, m, opts.maxLoops),
		Events:  router,
		Config:  store,
		Journal: stream,
		Lock:    handle,
		Stream:  stream,
		Logger:  logger,
		Metrics: m,
	})

	if missing != "" {
		c.CapabilityMissing(missing)
	}

	if opts.watchConf && opts.confFile != "" {
		config.TryWatch(ctx, opts.confFile, logger, router.RequestReload)
	}

	return c.Run(ctx)
}

// openStream opens the progress log. It falls back to stdout if there is no
// log file or it cannot be opened.
func openStream(path string, logger *slog.Logger) *journal.Stream {
	if path == "" {
		return journal.Stdout()
	}

	prev, err := journal.ReadPreviousStateFromFile(path)
	if err != nil {
		logger.Warn("failed to read previous log", "path", path, "error", err)
	} else if !prev.CleanShutdown() {
		logger.Warn("previous instance did not shut down cleanly",
			"path", path, "pid", prev.Started.PID, "started", prev.StartedAt)
	}

	s, err := journal.Open(path)
	if err != nil {
		logger.Warn("failed to open log file, using stdout", "path", path, "error", err)
		return journal.Stdout()
	}

	return s
}

// openDisplay opens the display selected by the options. If a required
// display is absent, the name of the capability is returned along with a
// display that renders nothing.
func openDisplay(opts *options, p *probe.Probe, logger *slog.Logger) (showip.Display, string, func()) {
	nop := func() {}

	switch opts.display {
	case "none":
		return display.Nop{}, "", nop
	case "text":
		return display.NewText(os.Stdout), "", nop
	}

	if !p.DisplayPresent() {
		return display.Nop{}, "lcd", nop
	}

	dev, err := i2c.Open(opts.i2cBus, opts.i2cAddr)
	if err != nil {
		logger.Error("failed to open LCD", "bus", opts.i2cBus, "addr", opts.i2cAddr, "error", err)
		return display.Nop{}, "lcd", nop
	}

	lcd := display.NewLCD(dev)
	if err := lcd.Start(); err != nil {
		logger.Warn("failed to initialize LCD, retrying on render", "error", err)
	}

	return lcd, "", func() { dev.Close() }
}
