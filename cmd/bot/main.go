package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"renderbot.ai/internal/config"
	"renderbot.ai/internal/logging"
)

func main() {
	var (
		cfgPath      = flag.String("config", "", "path to bot.yaml (optional)")
		host         = flag.String("host", "", "renderer host (overrides config and "+config.EnvRendererHost+")")
		port         = flag.Int("port", 0, "renderer port")
		policy       = flag.String("policy", "", "move policy: explore|idle")
		maxIter      = flag.Int("max_iterations", 0, "loop bound")
		worldRead    = flag.String("world_read", "", "world_info read mode: full|legacy")
		observerAddr = flag.String("observer", "", "serve the live event feed on this loopback addr, e.g. 127.0.0.1:8090")
		dataDir      = flag.String("data", "", "data dir for the event log, archive, index and snapshot")
		fromSnapshot = flag.String("from_snapshot", "", "build the height index from this snapshot instead of world_info")
		logLevel     = flag.String("log_level", "", "debug|info|warn|error")
	)
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(2)
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "host":
			cfg.Renderer.Host = *host
		case "port":
			cfg.Renderer.Port = *port
		case "policy":
			cfg.Navigation.Policy = *policy
		case "max_iterations":
			cfg.Navigation.MaxIterations = *maxIter
		case "world_read":
			cfg.Renderer.WorldRead = *worldRead
		case "observer":
			cfg.Observer.Listen = *observerAddr
		case "data":
			cfg.Data.Dir = *dataDir
		case "log_level":
			cfg.Log.Level = *logLevel
		}
	})
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(2)
	}

	logger, flush, err := logging.New(logging.Config{
		File:       cfg.Data.Path(cfg.Log.File),
		Level:      cfg.Log.Level,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(2)
	}
	defer flush()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, err := run(ctx, cfg, runOptions{FromSnapshot: *fromSnapshot}, logger)
	if err != nil {
		flush()
		logger.Fatal("bot run failed", zap.Error(err), zap.Int("iterations", res.Iterations))
	}
	fmt.Printf("iterations=%d reached_goal=%t events=%d final=(%g,%g,%g) facing=%s\n",
		res.Iterations, res.ReachedGoal, res.Events,
		res.Final.Current.X, res.Final.Current.Y, res.Final.Current.Z, res.Final.Direction)
}
