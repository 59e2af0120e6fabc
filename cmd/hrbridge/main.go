package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chaz8081/hrbridge/internal/ble"
	"github.com/chaz8081/hrbridge/internal/config"
	"github.com/chaz8081/hrbridge/internal/csvlog"
	"github.com/chaz8081/hrbridge/internal/forward"
	"github.com/chaz8081/hrbridge/internal/metrics"
	"github.com/chaz8081/hrbridge/internal/mqtt"
	"github.com/chaz8081/hrbridge/internal/pipeline"
	"github.com/chaz8081/hrbridge/internal/prompt"
)

type flags struct {
	configPath  string
	writeConfig bool
	receiver    string
	sender      string
	peripheral  string
	timeout     int
	mode        string
	logDir      string
	noCSV       bool
	adapter     string
	logLevel    string
}

func main() {
	var f flags
	flag.StringVar(&f.configPath, "config", "", "path to config file (default: ~/.config/hrbridge/config.yaml)")
	flag.BoolVar(&f.writeConfig, "write-config", false, "write the default config file and exit")
	flag.StringVar(&f.receiver, "receiver", "", "OSC receiver address (default 127.0.0.1:9000)")
	flag.StringVar(&f.sender, "sender", "", "local address to send from (default 127.0.0.1:9001)")
	flag.StringVar(&f.peripheral, "peripheral", "", "heart-rate peripheral address; prompts when empty")
	flag.IntVar(&f.timeout, "timeout", 10, "seconds without a notification before reconnecting; 0 disables")
	flag.StringVar(&f.mode, "mode", "", "forwarding mode: continuous or chatbox")
	flag.StringVar(&f.logDir, "log-dir", "", "directory for the CSV log")
	flag.BoolVar(&f.noCSV, "no-csv", false, "disable the CSV log")
	flag.StringVar(&f.adapter, "adapter", "", "bluetooth adapter id, e.g. hci1")
	flag.StringVar(&f.logLevel, "log-level", "", "debug, info, warn or error")
	flag.Parse()

	if f.writeConfig {
		path, err := config.WriteDefault()
		if err != nil {
			fatal("config", err)
		}
		if path == "" {
			fmt.Printf("Config already exists at %s\n", config.DefaultConfigPath())
		} else {
			fmt.Printf("Wrote default config to %s\n", path)
		}
		return
	}

	cfg, err := loadConfig(f.configPath)
	if err != nil {
		fatal("config", err)
	}
	applyFlags(cfg, f)

	if err := cfg.Validate(); err != nil {
		fatal("config validation", err)
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: config.ParseLogLevel(cfg.LogLevel),
	})))

	printBanner(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); !isCleanExit(err) {
		stop()
		fatal("hrbridge", err)
	}
	slog.Info("Goodbye!")
}

func run(ctx context.Context, cfg *config.Config) error {
	start := time.Now()

	transport, err := forward.ListenUDP(cfg.OSC.Sender, cfg.OSC.Receiver)
	if err != nil {
		return err
	}
	defer transport.Close()
	slog.Info("[OSC] socket bound", "local", transport.LocalAddr(), "receiver", cfg.OSC.Receiver)

	forwarder, err := forward.NewForMode(transport, cfg.Forward.Mode, forward.Options{
		MinInterval:   cfg.Forward.MinInterval,
		ChatboxFormat: cfg.Forward.ChatboxFormat,
	})
	if err != nil {
		return err
	}

	m := metrics.New()
	if cfg.Metrics.Addr != "" {
		go func() {
			if err := m.Serve(ctx, cfg.Metrics.Addr); err != nil {
				slog.Error("[METRICS] server stopped", "error", err)
			}
		}()
	}

	var sinks []pipeline.Sink
	if cfg.CSV.Enabled {
		w, err := csvlog.Create(cfg.CSV.Dir, start)
		if err != nil {
			return err
		}
		defer w.Close()
		slog.Info("[CSV] logging samples", "path", w.Path())
		sinks = append(sinks, w)
	}
	if cfg.MQTT.Broker != "" {
		pub, err := mqtt.Connect(cfg.MQTT.Broker, cfg.MQTT.ClientID, cfg.MQTT.Topic)
		if err != nil {
			return err
		}
		defer pub.Close()
		sinks = append(sinks, pub)
	}

	chooser := prompt.NewTerminal()
	adapter, err := openAdapter(cfg.Adapter, chooser)
	if err != nil {
		return err
	}

	target := ble.Target{}
	if cfg.Peripheral != "" {
		// Already checked by Validate.
		target.Address, _ = ble.NormalizeAddress(cfg.Peripheral)
	}

	opts := ble.DefaultManagerOptions()
	opts.Retry = ble.RetryPolicy{
		Delay:       cfg.Retry.Delay,
		MaxAttempts: cfg.Retry.MaxAttempts,
	}
	manager := ble.NewManager(adapter, ble.NewSelector(adapter, chooser), opts)

	session, err := manager.Connect(ctx, target)
	if err != nil {
		return err
	}
	slog.Info("[BLE] streaming heart rate", "name", session.Name, "address", session.Address, "battery", session.Battery)

	p := pipeline.New(manager, forwarder, pipeline.Options{
		Timeout: cfg.Timeout,
		Sinks:   sinks,
		Metrics: m,
	})
	return p.Run(ctx, session)
}

// openAdapter picks and enables the local radio. A configured id must
// exist; otherwise a single adapter is used as is and several prompt.
func openAdapter(id string, chooser ble.Chooser) (*ble.TinygoAdapter, error) {
	adapters, err := ble.ListAdapters()
	if err != nil {
		return nil, err
	}

	var info ble.AdapterInfo
	if id != "" {
		found := false
		for _, a := range adapters {
			if a.ID == id {
				info, found = a, true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("ble: adapter %q: %w", id, ble.ErrNoAdapter)
		}
	} else {
		info, err = ble.ChooseAdapter(chooser, adapters)
		if err != nil {
			return nil, err
		}
	}

	adapter := ble.NewTinygoAdapter(ble.OpenAdapter(info.ID), info.ID)
	if err := adapter.Enable(); err != nil {
		return nil, err
	}
	slog.Info("[BLE] adapter ready", "adapter", info.Label())
	return adapter, nil
}

// loadConfig loads the config from the specified path, or falls back to
// the default config path, or uses built-in defaults.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}

	defaultPath := config.DefaultConfigPath()
	if _, err := os.Stat(defaultPath); err == nil {
		cfg, err := config.Load(defaultPath)
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", defaultPath, err)
		}
		slog.Info("Config loaded", "path", defaultPath)
		return cfg, nil
	}

	slog.Info("No config file found, using defaults")
	return config.Default(), nil
}

// applyFlags overrides config values with the flags given on the command line.
func applyFlags(cfg *config.Config, f flags) {
	flag.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "receiver":
			cfg.OSC.Receiver = f.receiver
		case "sender":
			cfg.OSC.Sender = f.sender
		case "peripheral":
			cfg.Peripheral = f.peripheral
		case "timeout":
			cfg.Timeout = time.Duration(f.timeout) * time.Second
		case "mode":
			cfg.Forward.Mode = f.mode
		case "log-dir":
			cfg.CSV.Dir = f.logDir
		case "no-csv":
			cfg.CSV.Enabled = !f.noCSV
		case "adapter":
			cfg.Adapter = f.adapter
		case "log-level":
			cfg.LogLevel = f.logLevel
		}
	})
}

// printBanner displays the startup configuration summary.
func printBanner(cfg *config.Config) {
	peripheral := cfg.Peripheral
	if peripheral == "" {
		peripheral = "(select interactively)"
	}
	timeout := cfg.Timeout.String()
	if cfg.Timeout == 0 {
		timeout = "disabled"
	}
	csv := "disabled"
	if cfg.CSV.Enabled {
		csv = cfg.CSV.Dir
	}

	fmt.Println("=== hrbridge ===")
	fmt.Printf("  Peripheral: %s\n", peripheral)
	fmt.Printf("  OSC:        %s -> %s\n", cfg.OSC.Sender, cfg.OSC.Receiver)
	fmt.Printf("  Mode:       %s\n", cfg.Forward.Mode)
	fmt.Printf("  Timeout:    %s\n", timeout)
	fmt.Printf("  CSV:        %s\n", csv)
	if cfg.MQTT.Broker != "" {
		fmt.Printf("  MQTT:       %s (%s)\n", cfg.MQTT.Broker, cfg.MQTT.Topic)
	}
	if cfg.Metrics.Addr != "" {
		fmt.Printf("  Metrics:    %s\n", cfg.Metrics.Addr)
	}
	fmt.Printf("  Log:        %s\n", cfg.LogLevel)
	fmt.Println("================")
}

// isCleanExit reports whether err ends the run normally: a signal, or the
// operator quitting a selection prompt.
func isCleanExit(err error) bool {
	return err == nil ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, prompt.ErrAborted)
}

func fatal(what string, err error) {
	slog.Error(what, "error", err)
	os.Exit(1)
}
