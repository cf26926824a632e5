// Package realtime wires the full pipeline and supervises it: one
// capture session per configured camera, a shared roster reload loop
// and the status server, all under one errgroup.
package realtime

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/adityasharma0903/CCTVattendance/internal/api"
	"github.com/adityasharma0903/CCTVattendance/internal/backend"
	"github.com/adityasharma0903/CCTVattendance/internal/camera"
	"github.com/adityasharma0903/CCTVattendance/internal/conf"
	"github.com/adityasharma0903/CCTVattendance/internal/datastore"
	"github.com/adityasharma0903/CCTVattendance/internal/engine"
	"github.com/adityasharma0903/CCTVattendance/internal/logging"
	"github.com/adityasharma0903/CCTVattendance/internal/matcher"
	"github.com/adityasharma0903/CCTVattendance/internal/mqtt"
	"github.com/adityasharma0903/CCTVattendance/internal/notification"
	"github.com/adityasharma0903/CCTVattendance/internal/observability"
	"github.com/adityasharma0903/CCTVattendance/internal/phonefilter"
	"github.com/adityasharma0903/CCTVattendance/internal/schedule"
	"github.com/adityasharma0903/CCTVattendance/internal/tracker"
	"github.com/adityasharma0903/CCTVattendance/internal/vision"
)

const shutdownGrace = 5 * time.Second

// Command returns the realtime subcommand.
func Command(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "realtime",
		Short: "Run the realtime attendance and proctoring pipeline",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), settings)
		},
	}
}

func run(ctx context.Context, settings *conf.Settings) error {
	logger := logging.ForService("realtime")
	if settings.Main.LogFile != "" {
		fileLogger, closeLog, err := logging.NewFileLogger(
			settings.Main.LogFile, "realtime", slog.LevelInfo)
		if err != nil {
			return err
		}
		defer func() { _ = closeLog() }()
		logger = fileLogger
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := backend.NewClient(&settings.Backend)
	modes := backend.NewOverridableClient(client)
	resolver := schedule.NewResolver(client, settings.Engine.TestModeAlwaysOn)

	embeddingCache := matcher.NewEmbeddingCache()
	index := matcher.NewIndex(&settings.Matcher, embeddingCache)

	faceDetector, err := vision.NewFaceDetector(settings.Vision.FaceCascadePath)
	if err != nil {
		return err
	}
	defer func() { _ = faceDetector.Close() }()

	embedder := vision.NewEmbedder(&settings.Vision.Embedder)

	objectDetector, err := vision.NewObjectDetector(&settings.Vision.Detector)
	if err != nil {
		return err
	}
	defer func() { _ = objectDetector.Close() }()

	metrics := observability.NewMetrics()

	var journal engine.Journal
	var journalReader api.JournalReader
	if settings.Output.SQLite.Enabled {
		store, err := datastore.Open(settings.Output.SQLite.Path)
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()
		journal = store
		journalReader = store
	}

	notifier, err := notification.New(&settings.Notification)
	if err != nil {
		return err
	}

	var publisher engine.Publisher
	if settings.MQTT.Enabled {
		pub := mqtt.NewPublisher(&settings.MQTT)
		if err := pub.Connect(ctx); err != nil {
			logger.Warn("mqtt connect failed, decision publishing disabled", "error", err)
		} else {
			defer pub.Disconnect()
			publisher = pub
		}
	}

	hub := camera.NewHub()
	var engines []*engine.Engine
	var sessions []*camera.Session
	for _, cam := range settings.Cameras {
		eng := engine.New(&settings.Engine, cam, settings.Main.Name, engine.Deps{
			Backend:   modes,
			Resolver:  resolver,
			Faces:     faceDetector,
			Embedder:  embedder,
			Matcher:   index,
			Objects:   objectDetector,
			Phones:    phonefilter.NewValidator(&settings.PhoneFilter),
			Tracker:   tracker.New(&settings.Tracker),
			Notifier:  notifier,
			Journal:   journal,
			Publisher: publisher,
			Metrics:   metrics,
		})
		engines = append(engines, eng)

		session := camera.NewSession(cam, eng,
			settings.Engine.DetectionInterval, settings.Engine.ExamCheckInterval)
		if err := session.Open(); err != nil {
			return err
		}
		defer session.Close()
		hub.Add(session)
		sessions = append(sessions, session)
	}

	reloadRoster := func(ctx context.Context) {
		students, err := client.GetStudents(ctx)
		if err != nil {
			logger.Warn("roster reload failed, keeping previous roster", "error", err)
			return
		}
		entries := make([]matcher.Entry, 0, len(students))
		for _, s := range students {
			entries = append(entries, matcher.Entry{
				RollNumber: s.RollNumber,
				Name:       s.Name,
				Embedding:  s.Embedding,
			})
		}
		embeddingCache.Replace(entries)
		for _, eng := range engines {
			eng.SetRoster(students)
		}
		logger.Info("roster loaded", "students", len(students), "with_embeddings", embeddingCache.Len())
	}
	reloadRoster(ctx)

	embedder.Warmup(ctx)
	objectDetector.Warmup()

	g, gctx := errgroup.WithContext(ctx)

	for _, session := range sessions {
		g.Go(func() error {
			return session.Run(gctx)
		})
	}

	g.Go(func() error {
		ticker := time.NewTicker(settings.Backend.RosterReload)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				reloadRoster(gctx)
			}
		}
	})

	if settings.HTTP.Enabled {
		server := api.NewServer(&settings.HTTP, hub, modes, journalReader, metrics)
		g.Go(server.Start)
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		})
	}

	logger.Info("pipeline running",
		"node", settings.Main.Name, "cameras", len(sessions))
	return g.Wait()
}
