package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"AI_INTERVIEW/go-backend/internal/capture"
	"AI_INTERVIEW/go-backend/internal/config"
	"AI_INTERVIEW/go-backend/internal/detector"
	"AI_INTERVIEW/go-backend/internal/events"
	"AI_INTERVIEW/go-backend/internal/handlers"
	"AI_INTERVIEW/go-backend/internal/services"
	"AI_INTERVIEW/go-backend/internal/session"
	"AI_INTERVIEW/go-backend/internal/store"
)

func main() {
	httpPort := flag.String("http-port", "", "HTTP port (overrides HTTP_PORT)")
	detectorURL := flag.String("detector-url", "", "Vision service URL (overrides DETECTOR_URL)")
	flag.Parse()

	cfg := config.LoadConfig()
	if *httpPort != "" {
		cfg.HTTPPort = *httpPort
	}
	if *detectorURL != "" {
		cfg.DetectorURL = *detectorURL
	}

	logger, err := newLogger(cfg)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("starting capture backend",
		zap.String("http_port", cfg.HTTPPort),
		zap.String("detector_url", cfg.DetectorURL),
		zap.String("environment", cfg.Environment))

	if err := capture.CheckFFmpeg(); err != nil {
		logger.Warn("ffmpeg not found, capture will fail to open devices", zap.Error(err))
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	// Optional Postgres persistence.
	var sessionStore session.Store
	if cfg.DBEnabled {
		db, err := store.Open(cfg.DSN())
		if err != nil {
			logger.Error("database unavailable, continuing without persistence",
				zap.String("dsn", cfg.DSNForLog()), zap.Error(err))
		} else {
			defer db.Close()
			if err := store.Migrate(db); err != nil {
				logger.Fatal("running migrations", zap.Error(err))
			}
			sessionStore = store.New(db, logger)
			logger.Info("database connected", zap.String("dsn", cfg.DSNForLog()))
		}
	}

	// Optional RabbitMQ lifecycle events.
	var eventSink session.EventSink
	if cfg.AMQPURL != "" {
		pub, err := events.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange, logger)
		if err != nil {
			logger.Error("RabbitMQ unavailable, continuing without events", zap.Error(err))
		} else {
			defer pub.Close()
			eventSink = pub
		}
	}

	visionClient := detector.NewClient(cfg.DetectorURL, logger)
	det := detector.Composite{
		Visual: visionClient,
		Audio:  detector.NewEnergyVAD(),
	}

	metrics := services.NewMetrics()

	registry := session.NewRegistry(
		session.Config{
			DataDir:           cfg.DataDir,
			DeviceTag:         cfg.DeviceTag,
			SampleRate:        cfg.SampleRate,
			FrameInterval:     cfg.FrameInterval(),
			BroadcastInterval: cfg.BroadcastInterval,
			StopJoinTimeout:   cfg.StopJoinTimeout,
		},
		session.Deps{
			Detector: det,
			NewFrameSource: func(videoPath string) capture.FrameSource {
				return capture.NewCameraSource(capture.CameraConfig{
					Device:    cfg.CameraDevice,
					Input:     cfg.CameraInput,
					FrameRate: cfg.FrameRate,
				}, videoPath, logger)
			},
			NewAudioSource: func(audioPath string) capture.AudioSource {
				return capture.NewMicSource(capture.MicConfig{
					Device:     cfg.AudioDevice,
					Input:      cfg.AudioInput,
					SampleRate: cfg.SampleRate,
					ChunkMs:    cfg.ChunkMs,
				}, audioPath, logger)
			},
			Store:   sessionStore,
			Events:  eventSink,
			Metrics: metrics,
			Logger:  logger,
		},
	)

	reaperCtx, stopReaper := context.WithCancel(context.Background())
	reaper := session.NewReaper(registry, cfg.ReapInterval, cfg.HeartbeatTimeout, logger)
	go reaper.Run(reaperCtx)

	mux := http.NewServeMux()
	h := handlers.New(registry, metrics, visionClient, cfg, logger)
	h.RegisterRoutes(mux)

	httpServer := &http.Server{
		Addr:        ":" + cfg.HTTPPort,
		Handler:     mux,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		logger.Info("HTTP server listening", zap.String("port", cfg.HTTPPort))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	<-done
	logger.Info("shutting down")

	stopReaper()

	stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	registry.Shutdown(stopCtx)

	if err := httpServer.Shutdown(stopCtx); err != nil {
		logger.Error("shutting down HTTP server", zap.Error(err))
	}

	logger.Info("goodbye")
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.IsDev() {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
