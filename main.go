package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/ordishs/gocore"

	"github.com/samrock5000/nakamoto-cash/daemon"
	"github.com/samrock5000/nakamoto-cash/settings"
	"github.com/samrock5000/nakamoto-cash/ulogger"
)

// Name used by build script for the binaries. (Please keep on single line)
const progname = "nakamoto-cash"

// Version & commit strings injected at build with -ldflags -X...
var version string
var commit string

func init() {
	gocore.SetInfo(progname, version, commit)
}

func main() {
	logger := ulogger.New(progname)
	tSettings := settings.NewSettings()

	d, err := daemon.New(logger, tSettings)
	if err != nil {
		logger.Fatalf("cannot initialize daemon: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := d.Start(ctx); err != nil {
		logger.Errorf("daemon exited with error: %v", err)
		os.Exit(1)
	}

	logger.Infof("%s stopped", progname)
}
