// lora-gateway bridges a LoRa concentrator to one or more network
// servers over the Semtech-style gateway protocol, injects ghost
// uplinks, transmits a GNSS-aligned beacon, and reports status and
// position. See spec.md and SPEC_FULL.md for the full component
// breakdown.
//
// The program takes one mandatory flag, -c/--config, naming the
// directory holding debug_conf.json (or global_conf.json plus an
// optional local_conf.json overlay), following the same
// mandatory-config-file discipline as apps/rtcmlogger's own -c flag.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/goblimey/go-tools/dailylogger"

	"github.com/goblimey/lora-gateway/concentrator"
	"github.com/goblimey/lora-gateway/gnss"
	"github.com/goblimey/lora-gateway/gwconfig"
	"github.com/goblimey/lora-gateway/supervisor"
)

func main() {
	var configDir string
	flag.StringVar(&configDir, "c", "", "directory holding the JSON config files")
	flag.StringVar(&configDir, "config", "", "directory holding the JSON config files")
	flag.Parse()

	if configDir == "" {
		os.Stderr.WriteString("missing config directory: -c or --config\n")
		os.Exit(1)
	}

	cfg, err := gwconfig.Load(configDir)
	if err != nil {
		os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}

	log := newEventLogger()

	if err := start(cfg, log); err != nil {
		fatal(log, err)
	}
}

// newEventLogger builds the daemon's structured event log, rotated
// daily exactly as apps/rtcmlogger/main.go rotates its own, carrying
// spec.md §7's category tags (up/down/gps/main) as a "component"
// attribute instead of a bracketed string prefix.
func newEventLogger() *slog.Logger {
	writer := dailylogger.New(".", "lora-gateway.", ".log")
	return slog.New(slog.NewTextHandler(writer, nil))
}

// start builds the hardware dependencies this binary can supply on its
// own (GNSS serial, concentrator HAL placeholder) and joins the
// supervisor's run until a shutdown signal arrives or a component
// fails fatally.
func start(cfg *gwconfig.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go watchAbruptShutdown()

	deps := supervisor.Deps{
		HAL: concentrator.NotImplementedHAL{},
	}

	if cfg.Gateway.GPS && !cfg.Gateway.FakeGPS {
		port, err := gnss.OpenSerial(gnss.SerialConfig{Path: cfg.Gateway.GPSTTYPath, BaudRate: 9600})
		if err != nil {
			return fmt.Errorf("main: cannot open GNSS device: %w", err)
		}
		deps.GPSReader = port
	}

	return supervisor.Run(ctx, cfg, deps, log)
}

// watchAbruptShutdown gives SIGQUIT its traditional immediate-exit
// meaning, distinct from SIGINT/SIGTERM's graceful drain through
// signal.NotifyContext above, per spec.md §7's two-tier shutdown.
func watchAbruptShutdown() {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGQUIT)
	<-sigs
	os.Exit(1)
}

// fatal is the exit path for every error start returns, replacing the
// teacher's scattered os.Exit calls (REDESIGN FLAG: "Error reporting by
// exit() scattered across depths"). A missing or unloadable config
// exits from main before the event log exists, and SIGQUIT exits from
// watchAbruptShutdown; neither goes through fatal.
func fatal(log *slog.Logger, err error) {
	if log != nil {
		log.Error("main: fatal error, stopping", "error", err)
	}
	os.Stderr.WriteString(err.Error() + "\n")
	os.Exit(1)
}
