package main

import (
	"flag"
	"math/rand"
	"time"

	"github.com/golang/glog"
	"github.com/spf13/viper"

	"github.com/bidforge/bidforge/config"
	"github.com/bidforge/bidforge/router"
	"github.com/bidforge/bidforge/server"
	"github.com/bidforge/bidforge/util/task"
)

// Rev holds binary revision string
// Set manually at build time using:
//    go build -ldflags "-X main.Rev=`git rev-parse --short HEAD`"
var Rev string

func init() {
	rand.Seed(time.Now().UnixNano())
}

func main() {
	flag.Parse() // required for glog flags and testing package flags

	cfg, err := loadConfig()
	if err != nil {
		glog.Exitf("Configuration could not be loaded or did not pass validation: %v", err)
	}

	if err := serve(Rev, cfg); err != nil {
		glog.Exitf("bidforge failed: %v", err)
	}
}

const configFileName = "bidforge"

func loadConfig() (*config.Configuration, error) {
	v := viper.New()
	config.SetupViper(v, configFileName)
	return config.New(v)
}

func serve(revision string, cfg *config.Configuration) error {
	r, err := router.New(cfg)
	if err != nil {
		return err
	}

	// Budgets are daily: reset the ledger at every UTC midnight.
	budgetResetTask := task.NewDelayedTickerTaskFromFunc(untilNextUTCMidnight(), 24*time.Hour, r.Ledger.Reset)
	budgetResetTask.Start()

	// The dedupe filter only grows, so it is cleared on a fixed cadence. Suppression
	// guarantees hold within a rotation window, not across one.
	rotation := time.Duration(cfg.Dedupe.RotationMinutes) * time.Minute
	filterRotationTask := task.NewTickerTaskFromFunc(rotation, r.SeenFilter.Rotate)
	filterRotationTask.Start()

	corsRouter := router.SupportCORS(r)
	server.Listen(cfg, router.NoCache{Handler: corsRouter}, router.Admin(revision, r), r.MetricsEngine)

	budgetResetTask.Stop()
	filterRotationTask.Stop()
	return nil
}

func untilNextUTCMidnight() time.Duration {
	now := time.Now().UTC()
	next := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).Add(24 * time.Hour)
	return next.Sub(now)
}
