package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"renderbot.ai/internal/config"
	"renderbot.ai/internal/eventlog"
	"renderbot.ai/internal/heightmap"
	"renderbot.ai/internal/link"
	"renderbot.ai/internal/nav"
	"renderbot.ai/internal/persistence/archive"
	"renderbot.ai/internal/persistence/indexdb"
	"renderbot.ai/internal/persistence/snapshot"
	"renderbot.ai/internal/transport/observer"
)

type runOptions struct {
	FromSnapshot string
}

func run(ctx context.Context, cfg config.Config, opts runOptions, logger *zap.Logger) (nav.Result, error) {
	session := ulid.Make().String()
	lc := cfg.Link()
	logger = logger.With(zap.String("session", session))

	policy, ok := nav.PolicyByName(cfg.Navigation.Policy)
	if !ok {
		return nav.Result{}, fmt.Errorf("unknown policy %q", cfg.Navigation.Policy)
	}

	s, err := link.Open(ctx, lc, logger.Named("link"))
	if err != nil {
		return nav.Result{}, err
	}
	defer s.Close()

	planner := nav.New(s, cfg.Nav(), logger.Named("nav"))

	events, err := eventlog.Open(cfg.Data.Path(cfg.Data.EventLog))
	if err != nil {
		return nav.Result{}, fmt.Errorf("open event log: %w", err)
	}
	defer func() {
		if err := events.Close(); err != nil {
			logger.Error("close event log", zap.Error(err))
		}
	}()
	planner.AddSink("eventlog", events, true)

	if p := cfg.Data.Path(cfg.Data.Archive); p != "" {
		a := archive.NewEventArchive(p, session)
		defer a.Close()
		planner.AddSink("archive", a, false)
	}

	var idx *indexdb.SQLiteIndex
	if p := cfg.Data.Path(cfg.Data.IndexDB); p != "" {
		idx, err = indexdb.OpenSQLite(p)
		if err != nil {
			logger.Warn("index disabled", zap.String("path", p), zap.Error(err))
			idx = nil
		} else {
			defer idx.Close()
			planner.AddSink("index", idx.Session(session), false)
		}
	}

	var hub *observer.Hub
	if cfg.Observer.Listen != "" {
		hub = observer.NewHub(session, lc.Addr(), cfg.Nav().Goal, logger.Named("observer"))
		ln, err := net.Listen("tcp", cfg.Observer.Listen)
		if err != nil {
			return nav.Result{}, fmt.Errorf("observer listen: %w", err)
		}
		srv := &http.Server{Handler: hub.Mux(), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Warn("observer feed stopped", zap.Error(err))
			}
		}()
		defer func() {
			_ = hub.Close()
			sctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = srv.Shutdown(sctx)
		}()
		logger.Info("observer feed listening", zap.String("addr", ln.Addr().String()))
		planner.AddSink("observer", hub, false)
	}

	features, err := loadWorld(ctx, cfg, opts, planner, lc.Addr(), session, idx, logger)
	if err != nil {
		return nav.Result{}, err
	}
	idx.StartSession(session, lc.Addr(), features)

	res, runErr := planner.Run(ctx, policy)
	idx.FinishSession(session, res.Iterations, res.ReachedGoal)
	if hub != nil {
		hub.Finish(res, runErr)
	}
	logger.Info("run finished",
		zap.Int("iterations", res.Iterations),
		zap.Bool("reached_goal", res.ReachedGoal),
		zap.Int("events", res.Events),
		zap.Int("dials", s.Dials()),
		zap.Uint64("index_drops", idx.Stats().DropEventTotal))
	return res, runErr
}

// loadWorld installs the height index and returns the number of features
// it was built from.
func loadWorld(ctx context.Context, cfg config.Config, opts runOptions, planner *nav.Planner, addr, session string, idx *indexdb.SQLiteIndex, logger *zap.Logger) (int, error) {
	if opts.FromSnapshot != "" {
		snap, err := snapshot.Read(opts.FromSnapshot)
		if err != nil {
			return 0, fmt.Errorf("read snapshot: %w", err)
		}
		planner.UseIndex(heightmap.FromWorld(snap.World()))
		logger.Info("height index loaded from snapshot",
			zap.String("path", opts.FromSnapshot),
			zap.Time("taken_at", snap.Header.TakenAt),
			zap.Int("cells", planner.Index().Len()))
		return snap.Header.Features, nil
	}

	w, err := planner.LoadWorld(ctx)
	if err != nil {
		return 0, err
	}
	if p := cfg.Data.Path(cfg.Data.Snapshot); p != "" {
		snap := snapshot.FromWorld(addr, w)
		if err := snapshot.Write(p, snap); err != nil {
			logger.Warn("snapshot not saved", zap.String("path", p), zap.Error(err))
		} else {
			idx.RecordSnapshot(session, p, snap.Header.Features)
		}
	}
	return w.FeatureCount(), nil
}
