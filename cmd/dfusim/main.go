// dfusim exposes in-memory mass-storage logical units over a loopback bus:
// a Unix socket carrying length-prefixed bus packets, so the Bulk-Only
// protocol can be exercised by a host-side test tool without gadget
// hardware.
package main

import (
	"fmt"
	"net"
	"os"
	"os/signal"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/Project-Muteki/dfusim/internal/config"
	"github.com/Project-Muteki/dfusim/usbms"
)

func main() {
	if len(os.Args) != 2 {
		die("usage: dfusim <config.yaml>")
	}

	cfg, err := config.Load(os.Args[1])
	if err != nil {
		die("%v", err)
	}

	setupLogging(cfg.Log)

	ln, err := net.Listen("unix", cfg.Listen)
	if err != nil {
		die("couldn't listen: %v", err)
	}
	defer ln.Close()
	logrus.Infof("dfusim listening on %s, %d logical unit(s)", cfg.Listen, len(cfg.Units))

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				logrus.Errorf("accept: %v", err)
				return
			}
			go serve(conn, cfg.Units)
		}
	}()

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt)
	<-signalChan
	logrus.Info("dfusim exiting")
}

// serve drives one function instance over one bus connection.
func serve(conn net.Conn, units []config.UnitConfig) {
	defer conn.Close()

	bus := newBus(conn)

	lus := make([]usbms.LogicalUnit, 0, len(units))
	for _, u := range units {
		lus = append(lus, newMemUnit(u.Blocks, u.BlockSize))
	}

	fn, err := usbms.NewFunction(bus.inEndpoint(), bus.outEndpoint(), lus...)
	if err != nil {
		logrus.Errorf("function: %v", err)
		return
	}

	if err := bus.run(fn); err != nil {
		logrus.Errorf("bus: %v", err)
	}
}

func setupLogging(cfg config.LogConfig) {
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		die("bad log level %q", cfg.Level)
	}
	logrus.SetLevel(level)

	if cfg.File != "" {
		logrus.SetOutput(&lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
		})
	}
}

func die(why string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, why+"\n", args...)
	os.Exit(1)
}
