// Package main runs a voice trigger: it derives a loudness reading from a
// live PCM stream and fires a debounced trigger when the reading crosses a
// threshold, alongside a manual trigger that shares the same cooldown.
//
// Usage:
//
//	voicetrigger [-config path/to/config.json] [-debug]
//
// If -config is not specified, the service looks for config.json in the same
// directory as the binary.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/oszuidwest/zwfm-voicetrigger/internal/archive"
	"github.com/oszuidwest/zwfm-voicetrigger/internal/audio"
	"github.com/oszuidwest/zwfm-voicetrigger/internal/config"
	"github.com/oszuidwest/zwfm-voicetrigger/internal/control"
	"github.com/oszuidwest/zwfm-voicetrigger/internal/events"
	"github.com/oszuidwest/zwfm-voicetrigger/internal/notify"
	"github.com/oszuidwest/zwfm-voicetrigger/internal/observe"
	"github.com/oszuidwest/zwfm-voicetrigger/internal/sensor"
	"github.com/oszuidwest/zwfm-voicetrigger/internal/trigger"
	"github.com/oszuidwest/zwfm-voicetrigger/internal/util"
	"golang.org/x/sync/errgroup"
)

// errSourceEnded stops the service when a source that cannot be reopened ends.
var errSourceEnded = errors.New("sensor source ended")

func main() {
	configPath := flag.String("config", "", "Path to config file (default: config.json next to binary)")
	showVersion := flag.Bool("version", false, "Print version information and exit")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	if *showVersion {
		slog.Info("version info", "version", Version, "commit", Commit, "build_time", BuildTime)
		return
	}

	if *debug {
		slog.SetLogLoggerLevel(slog.LevelDebug)
	}

	if *configPath == "" {
		execPath, err := os.Executable()
		if err != nil {
			slog.Error("failed to get executable path", "error", err)
			os.Exit(1)
		}
		*configPath = filepath.Join(filepath.Dir(execPath), "config.json")
	}

	slog.Info("using config file", "path", *configPath)

	cfg := config.New(*configPath)
	if err := cfg.Load(); err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), util.ShutdownSignals()...)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("voice trigger stopped with error", "error", err)
		stop()
		os.Exit(1)
	}

	slog.Info("shutdown complete")
}

// run wires all components and blocks until ctx is cancelled or one of the
// long-running components fails.
func run(ctx context.Context, cfg *config.Config) error {
	snap := cfg.Snapshot()

	mp, shutdownMetrics, err := observe.InitProvider(observe.ProviderConfig{ServiceVersion: Version})
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}
	defer func() {
		if err := shutdownMetrics(context.WithoutCancel(ctx)); err != nil {
			slog.Warn("metrics shutdown failed", "error", err)
		}
	}()

	metrics, err := observe.NewMetrics(mp)
	if err != nil {
		return fmt.Errorf("create metrics: %w", err)
	}

	var uploader *archive.Uploader
	var onRotate func(string)
	if snap.HasArchive() {
		uploader, err = archive.New(snap.Archive)
		if err != nil {
			return fmt.Errorf("create archive uploader: %w", err)
		}
		onRotate = uploader.Enqueue
		slog.Info("event log archiving enabled", "bucket", snap.Archive.Bucket)
	}

	eventLog, err := events.NewLogger(snap.EventsDir, onRotate)
	if err != nil {
		return fmt.Errorf("open event log: %w", err)
	}
	defer util.SafeCloseFunc(eventLog, "event log")()

	notifier := notify.NewSensorNotifier(cfg)
	defer notifier.Wait()

	amp := audio.NewAmplitude()
	trig := trigger.New(amp, snap.TriggerConfig())
	hub := control.NewHub()

	loop := control.New(trig, hub, control.Options{
		TickInterval: snap.TickInterval(),
		Stale:        trigger.StaleConfig{After: snap.StaleAfter, Recovery: snap.Recovery},
		OnDecision:   decisionRecorder(ctx, metrics, eventLog, trig),
		OnStale:      staleHandler(ctx, metrics, eventLog, notifier, snap.SensorSource),
	})

	dial, once, err := sensorDialer(&snap)
	if err != nil {
		return err
	}
	sup := sensor.NewSupervisor(sensor.SupervisorConfig{
		Kind:      snap.SensorSource,
		Dial:      dial,
		Publisher: amp,
		HeaderLen: snap.HeaderBytes,
		Once:      once,
		OnChunk: func(reading float64, malformed bool) {
			metrics.RecordChunk(ctx, reading, malformed)
		},
		OnReconnect: func() { metrics.RecordReconnect(ctx) },
	})

	version := NewVersionChecker()
	srv := NewServer(cfg, loop, hub, sup, eventLog, version, metrics)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := sup.Run(gctx); err != nil {
			return err
		}
		if once && gctx.Err() == nil {
			return errSourceEnded
		}
		return nil
	})
	g.Go(func() error { return loop.Run(gctx) })
	g.Go(func() error { return eventLog.Run(gctx) })
	g.Go(func() error { return srv.Serve(gctx) })
	g.Go(func() error { return version.Run(gctx) })
	if uploader != nil {
		g.Go(func() error { return uploader.Run(gctx) })
	}

	slog.Info("voice trigger started",
		"source", snap.SensorSource,
		"threshold_pct", snap.Threshold,
		"cooldown", snap.Cooldown,
		"stale_policy", snap.StalePolicy)

	err = g.Wait()
	slog.Info("shutting down")
	if errors.Is(err, context.Canceled) || errors.Is(err, errSourceEnded) {
		return nil
	}
	return err
}

// sensorDialer returns the dialer for the configured sensor source and
// whether the source can only be opened once.
func sensorDialer(snap *config.Snapshot) (sensor.Dialer, bool, error) {
	switch snap.SensorSource {
	case config.SourceWebSocket:
		return sensor.WebSocketDialer(snap.SensorURL), false, nil
	case config.SourceCapture:
		ffmpegPath := util.ResolveFFmpegPath(snap.FFmpegPath)
		if ffmpegPath == "" {
			slog.Warn("FFmpeg not found, capture uses the platform default command",
				"configured_path", snap.FFmpegPath)
		}
		return sensor.CaptureDialer(snap.Device, ffmpegPath, snap.ChunkBytes), false, nil
	case config.SourceStdin:
		src := sensor.NewReaderSource(os.Stdin, snap.ChunkBytes)
		return func(context.Context) (sensor.Source, error) { return src, nil }, true, nil
	default:
		return nil, false, fmt.Errorf("unknown sensor source %q", snap.SensorSource)
	}
}

// decisionRecorder returns the loop callback for trigger attempts. Every
// attempt is counted; accepted triggers and manual attempts are written to
// the event log. It runs on the loop goroutine, which owns trig.
func decisionRecorder(ctx context.Context, metrics *observe.Metrics, log *events.Logger, trig *trigger.Trigger) func(trigger.Decision) {
	var fired uint64
	return func(d trigger.Decision) {
		metrics.RecordDecision(ctx, string(d.Source), d.Fired)
		if d.Fired {
			fired++
			slog.Info("trigger fired", "source", d.Source, "reading", d.Reading)
		} else if d.Source != trigger.SourceManual {
			return
		}
		if err := log.LogTrigger(d, trig.Threshold(), fired); err != nil {
			slog.Warn("failed to log trigger", "error", err)
		}
	}
}

// staleHandler returns the loop callback for sensor stale transitions.
func staleHandler(ctx context.Context, metrics *observe.Metrics, log *events.Logger, notifier *notify.SensorNotifier, source string) func(trigger.StaleEvent) {
	return func(ev trigger.StaleEvent) {
		eventType, duration := events.SensorStale, ev.Duration
		if ev.JustRecovered {
			eventType, duration = events.SensorRecovered, ev.TotalDuration
			slog.Info("sensor recovered", "source", source, "stale_for", duration)
		} else {
			slog.Warn("sensor stale", "source", source, "since", duration)
		}

		metrics.SetStale(ctx, ev.JustEntered)
		notifier.HandleEvent(ev)
		if err := log.LogSensor(eventType, source, duration); err != nil {
			slog.Warn("failed to log sensor event", "error", err)
		}
	}
}
