package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	applog "voxelcraft.ai/signlink/internal/log"
	"voxelcraft.ai/signlink/internal/persistence/archive"
	"voxelcraft.ai/signlink/internal/persistence/indexdb"
	persistlog "voxelcraft.ai/signlink/internal/persistence/log"
	"voxelcraft.ai/signlink/internal/persistence/snapshot"
	"voxelcraft.ai/signlink/internal/signlink"
	"voxelcraft.ai/signlink/internal/signlink/config"
	"voxelcraft.ai/signlink/internal/sim/geom"
	"voxelcraft.ai/signlink/internal/sim/tuning"
	"voxelcraft.ai/signlink/internal/sim/world"
	"voxelcraft.ai/signlink/internal/transport/ws"
)

func runServer(cmd *cobra.Command, _ []string) error {
	applog.Configure(applog.Config{Level: logLevel, Console: logConsole, Service: "signlink-server"})
	logger := applog.WithComponent("server")

	tp := strings.TrimSpace(tuningPath)
	if tp == "" {
		tp = filepath.Join(configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("load tuning: %w", err)
		}
		logger.Warn().Str("path", tp).Msg("tuning not found; using defaults")
		tune = tuning.Defaults()
	}
	if worldID == "" {
		worldID = tune.WorldID
	}

	worldDir := filepath.Join(dataDir, "worlds", worldID)
	if err := os.MkdirAll(worldDir, 0o755); err != nil {
		return err
	}

	var idx *indexdb.SQLiteIndex
	if !disableDB {
		idx, err = indexdb.OpenSQLite(filepath.Join(worldDir, "index", "signlink.sqlite"), applog.WithComponent("indexdb"))
		if err != nil {
			return fmt.Errorf("open index: %w", err)
		}
		defer idx.Close()
	}

	w, err := world.New(worldConfig(worldID, tune), applog.WithComponent("world"))
	if err != nil {
		return err
	}

	snapshotToLoad := strings.TrimSpace(snapPath)
	if snapshotToLoad == "" && loadLatest {
		snapshotToLoad = snapshot.Latest(filepath.Join(worldDir, "snapshots"))
	}
	if snapshotToLoad != "" {
		snap, err := snapshot.ReadSnapshot(snapshotToLoad)
		if err != nil {
			return fmt.Errorf("read snapshot: %w", err)
		}
		if err := w.ImportSnapshot(snap); err != nil {
			return fmt.Errorf("import snapshot: %w", err)
		}
		logger.Info().Str("snapshot", filepath.Base(snapshotToLoad)).Uint64("tick", w.CurrentTick()).Msg("resumed from snapshot")
	}

	auditLog := persistlog.NewAuditLogger(worldDir)
	defer auditLog.Close()
	linkLog := persistlog.NewLinkEventLogger(worldDir)
	defer linkLog.Close()
	w.SetAuditLogger(multiAuditLogger{a: auditLog, b: idx})

	pluginOpts := []signlink.Option{
		signlink.WithLogger(applog.WithComponent("signlink")),
		signlink.WithEventSink(linkLog),
	}
	if idx != nil {
		pluginOpts = append(pluginOpts, signlink.WithEventSink(idx))
	}
	plugin := signlink.New(filepath.Join(configDir, signlink.CommandName), pluginOpts...)
	if err := plugin.Load(); err != nil {
		// Defaults are in effect; keep serving.
		logger.Warn().Err(err).Msg("teleportmod loaded with errors")
	}
	idx.ReplaceLinks(plugin.Links())
	w.RegisterPlugin(plugin)
	w.RegisterCommand(plugin.Command())

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	if !noWatch {
		watcher := config.NewWatcher(applog.WithComponent("config"), func() {
			if err := plugin.Reload(); err != nil {
				logger.Warn().Err(err).Str("event", "config.watch_reload_failed").Msg("reload after file change failed")
			}
		}, plugin.ConfigPath(), plugin.LanguagePath())
		if err := watcher.Start(ctx); err != nil {
			logger.Warn().Err(err).Msg("config watcher disabled")
		} else {
			defer watcher.Close()
		}
	}

	snapDir := filepath.Join(worldDir, "snapshots")
	snapCh := make(chan snapshot.SnapshotV1, 2)
	w.SetSnapshotSink(snapCh)
	snapDone := make(chan struct{})
	go func() {
		defer close(snapDone)
		for {
			select {
			case <-ctx.Done():
				return
			case snap := <-snapCh:
				_, _ = writeSnapshot(logger, idx, snapDir, snap)
			}
		}
	}()

	worldDone := make(chan struct{})
	go func() {
		defer close(worldDone)
		if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error().Err(err).Msg("world stopped")
		}
	}()

	srv := &http.Server{
		Addr:              addr,
		Handler:           newRouter(ws.NewServer(w, applog.WithComponent("ws"))),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Info().Str("addr", addr).Str("world", worldID).Int("links", len(plugin.Links())).Msg("listening")
	serveErr := srv.ListenAndServe()
	if errors.Is(serveErr, http.ErrServerClosed) {
		serveErr = nil
	}
	cancel()
	<-worldDone
	<-snapDone

	// The world goroutine has exited; export the final state from here and keep it next to
	// the link file it belongs with.
	if tick := w.CurrentTick(); tick > 0 {
		snap := w.ExportSnapshot(tick - 1)
		if path, ok := writeSnapshot(logger, idx, snapDir, snap); ok {
			if dir, err := archive.Bundle(worldDir, path, plugin.LinksPath(), snap); err != nil {
				logger.Error().Err(err).Str("event", "archive.failed").Msg("archive bundle failed")
			} else {
				logger.Info().Str("event", "archive.written").Str("dir", dir).Msg("archive bundle written")
			}
		}
	}
	return serveErr
}

func worldConfig(id string, tune tuning.Tuning) world.WorldConfig {
	ops := make(map[string]world.Operator, len(tune.Operators))
	for name, op := range tune.Operators {
		ops[name] = world.Operator{Level: op.Level, Token: op.Token}
	}
	return world.WorldConfig{
		ID:                     id,
		TickRateHz:             tune.TickRateHz,
		Spawn:                  geom.Pos{X: tune.Spawn[0], Y: tune.Spawn[1], Z: tune.Spawn[2]},
		DefaultPermissionLevel: tune.DefaultPermissionLevel,
		StarterItem:            tune.StarterItem,
		Operators:              ops,
		SnapshotEveryTicks:     tune.SnapshotEveryTicks,
	}
}

func writeSnapshot(logger zerolog.Logger, idx *indexdb.SQLiteIndex, dir string, snap snapshot.SnapshotV1) (string, bool) {
	path := filepath.Join(dir, snapshot.FileName(snap.Header.Tick))
	if err := snapshot.WriteSnapshot(path, snap); err != nil {
		logger.Error().Err(err).Str("event", "snapshot.write_failed").Str("path", path).Msg("snapshot write failed")
		return "", false
	}
	idx.RecordSnapshot(path, snap)
	logger.Info().Str("event", "snapshot.written").Uint64("tick", snap.Header.Tick).Msg("snapshot written")
	return path, true
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}

type multiAuditLogger struct {
	a world.AuditLogger
	b *indexdb.SQLiteIndex
}

func (m multiAuditLogger) WriteAudit(entry world.AuditEntry) error {
	if m.a != nil {
		_ = m.a.WriteAudit(entry)
	}
	// nil-safe: indexdb methods no-op on a nil receiver.
	_ = m.b.WriteAudit(entry)
	return nil
}
