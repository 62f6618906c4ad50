package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	arrivals "github.com/sofiatransit/arrivals"
	"github.com/sofiatransit/arrivals/config"
	"github.com/sofiatransit/arrivals/gtfs"
	"github.com/sofiatransit/arrivals/realtime"
)

func main() {
	var (
		cfgPath string
		debug   bool
	)
	flag.StringVar(&cfgPath, "config", "", "path to the configuration file")
	flag.BoolVar(&debug, "debug", false, "enable debug logging")
	flag.Parse()

	logger, err := arrivals.NewLogger(debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "create logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	loc, err := time.LoadLocation(cfg.GTFS.Timezone)
	if err != nil {
		logger.Fatal("load timezone", zap.String("timezone", cfg.GTFS.Timezone), zap.Error(err))
	}

	ds := gtfs.NewDataset(logger)
	if err := ds.LoadFromPath(cfg.GTFS.Path); err != nil {
		logger.Fatal("load static tables", zap.String("path", cfg.GTFS.Path), zap.Error(err))
	}
	idx := gtfs.BuildScheduleIndex(ds, logger)
	cal := gtfs.ResolveServiceCalendar(ds, time.Now().In(loc), logger)
	shapes := gtfs.NewShapeCache(ds.ShapesPath(), logger)
	details := gtfs.NewRouteDetailCache(idx, shapes, logger)

	metrics := arrivals.NewMetrics()
	feed := realtime.NewFeedCache(realtime.FeedURLs{
		TripUpdates:      cfg.Realtime.TripUpdatesURL,
		VehiclePositions: cfg.Realtime.VehiclePositionsURL,
		Alerts:           cfg.Realtime.AlertsURL,
	}, cfg.Realtime.RefreshWindow(), cfg.Realtime.FetchTimeout(), logger)
	feed.SetErrorHook(metrics.FeedRefreshFailed)
	feed.SetRefreshHook(metrics.ObserveFeedRefresh)

	engine := arrivals.NewEngine(idx, cal, feed, shapes, details, loc, logger, metrics)
	api := arrivals.NewAPI(engine, logger, metrics)

	srv := arrivals.NewServer(cfg.Server, api.Routes(), logger)
	srv.Start()
	srv.WaitForShutdown()
}
