package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	camus "github.com/hugolhafner/go-camus"
	"github.com/hugolhafner/go-camus/config"
	"github.com/hugolhafner/go-camus/internal/telemetry"
	"github.com/hugolhafner/go-camus/logger"
	"github.com/hugolhafner/go-camus/plugins/zaplogger"
	"github.com/hugolhafner/go-camus/pull"
)

type runCmd struct {
	global *globalOpts

	Work string `long:"work" short:"w" required:"true" description:"Path to the JSON work unit"`
}

func (c *runCmd) Execute([]string) (err error) {
	cfg, err := config.Load(c.global.Config)
	if err != nil {
		return err
	}

	log, zl, err := zaplogger.NewProduction(logger.ParseLevel(cfg.Log.Level), cfg.Log.JSON)
	if err != nil {
		return fmt.Errorf("building logger: %w", err)
	}
	defer func() { _ = zl.Sync() }()

	work, err := readWorkUnit(c.Work)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tel, err := telemetry.NewPrometheus()
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, tel.Shutdown(context.WithoutCancel(ctx))) }()

	if cfg.Metrics.Addr != "" {
		metricsCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		go func() {
			if err := tel.Serve(metricsCtx, cfg.Metrics.Addr, log); err != nil {
				log.Error("Metrics endpoint stopped", "error", err)
			}
		}()
	}

	app, err := camus.NewApplication(ctx, cfg, camus.WithLogger(log), camus.WithTelemetry(tel.Telemetry))
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, app.Close()) }()

	res, err := app.Run(ctx, work)
	if err != nil {
		log.Error("Work unit failed", "task_id", work.TaskID, "error", err)
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}

func readWorkUnit(path string) (pull.WorkUnit, error) {
	f, err := os.Open(path)
	if err != nil {
		return pull.WorkUnit{}, err
	}
	defer f.Close()

	var work pull.WorkUnit
	if err := json.NewDecoder(f).Decode(&work); err != nil {
		return pull.WorkUnit{}, fmt.Errorf("decoding work unit %s: %w", path, err)
	}
	if len(work.Requests) == 0 {
		return pull.WorkUnit{}, fmt.Errorf("work unit %s has no requests", path)
	}
	return work, nil
}
