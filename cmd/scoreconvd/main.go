package main

import (
	"flag"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/willardjansen/cubby-score-conversion/pkg/api"
	"github.com/willardjansen/cubby-score-conversion/pkg/config"
	"github.com/willardjansen/cubby-score-conversion/pkg/converter"
	"github.com/willardjansen/cubby-score-conversion/pkg/logging"
	"github.com/willardjansen/cubby-score-conversion/pkg/metrics"
	"github.com/willardjansen/cubby-score-conversion/pkg/omr"
	"github.com/willardjansen/cubby-score-conversion/pkg/pdfpage"
	"github.com/willardjansen/cubby-score-conversion/pkg/shutdown"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML config file")
	port := flag.String("port", "", "HTTP listen port (overrides config)")
	uploadDir := flag.String("upload-dir", "", "Directory for per-job workspaces (overrides config)")
	outputDir := flag.String("output-dir", "", "Directory for finished artifacts (overrides config)")
	enableMetrics := flag.Bool("metrics", true, "Enable Prometheus metrics endpoint")
	metricsPort := flag.String("metrics-port", "", "Prometheus metrics port (overrides config)")
	logLevel := flag.String("log-level", "", "Log level: DEBUG, INFO, WARN, ERROR (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logging.NewLogger(logging.INFO, false).Fatal("Failed to load configuration", map[string]interface{}{
			"error": err.Error(),
		})
	}
	if *port != "" {
		cfg.Port = *port
	}
	if *uploadDir != "" {
		cfg.UploadDir = *uploadDir
	}
	if *outputDir != "" {
		cfg.OutputDir = *outputDir
	}
	if *metricsPort != "" {
		cfg.MetricsPort = *metricsPort
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}

	logger := logging.NewLogger(logging.ParseLevel(cfg.LogLevel), cfg.LogJSON)
	logger.Info("Starting score conversion service", map[string]interface{}{
		"port":       cfg.Port,
		"upload_dir": cfg.UploadDir,
		"output_dir": cfg.OutputDir,
	})

	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	registry := omr.NewRegistry(
		omr.NewAudiveris(cfg.AudiverisPath, timeout, logger),
		omr.NewHomr(cfg.HomrPath, cfg.CABundle, timeout, logger),
	)
	rasterizer := pdfpage.NewPoppler(cfg.PdftoppmPath, cfg.RasterDPI, timeout)

	var recorder metrics.Recorder
	var collector *metrics.Collector
	if *enableMetrics {
		collector = metrics.NewCollector()
		recorder = collector
	}

	orch, err := converter.New(registry, rasterizer, cfg.UploadDir, cfg.OutputDir, logger, recorder)
	if err != nil {
		logger.Fatal("Failed to initialize converter", map[string]interface{}{
			"error": err.Error(),
		})
	}

	handler := api.NewHandler(orch, registry, cfg.UploadDir, cfg.OutputDir, logger)
	router := mux.NewRouter()
	handler.RegisterRoutes(router)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  10 * time.Minute,
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	manager := shutdown.New(30*time.Second, logger)
	manager.Register(shutdown.StopHTTPServer(srv, "api"))

	if collector != nil {
		metricsRouter := mux.NewRouter()
		metricsRouter.Handle("/metrics", collector.Handler()).Methods("GET")

		metricsSrv := &http.Server{
			Addr:         ":" + cfg.MetricsPort,
			Handler:      metricsRouter,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		}
		manager.Register(shutdown.StopHTTPServer(metricsSrv, "metrics"))

		go func() {
			logger.Info("Metrics server listening", map[string]interface{}{
				"port": cfg.MetricsPort,
			})
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("Metrics server error", map[string]interface{}{
					"error": err.Error(),
				})
			}
		}()
	}

	go func() {
		logger.Info("API server listening", map[string]interface{}{
			"port": cfg.Port,
		})
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}()

	manager.Wait()
	logger.Info("Server stopped")
}
