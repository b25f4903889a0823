package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/eddielth/air-monitor/actuator"
	"github.com/eddielth/air-monitor/api"
	"github.com/eddielth/air-monitor/config"
	"github.com/eddielth/air-monitor/evaluator"
	"github.com/eddielth/air-monitor/events"
	"github.com/eddielth/air-monitor/logger"
	"github.com/eddielth/air-monitor/mqtt"
	"github.com/eddielth/air-monitor/storage"
	"github.com/eddielth/air-monitor/transformer"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	if err := logger.InitFromConfig(cfg.Logger.Level, cfg.Logger.FilePath, cfg.Logger.MaxSize, cfg.Logger.MaxBackups, cfg.Logger.Console); err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}

	err = run(*configPath, cfg)
	if err != nil {
		logger.Error("%v", err)
	}
	logger.Close()
	if err != nil {
		os.Exit(1)
	}
}

// run returns only after every resource it opened has been closed
func run(configPath string, cfg *config.Config) error {
	store, err := openStorage(cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer store.Close()

	ev := evaluator.New(store, cfg.Engine.HysteresisWindow)
	ingestor := evaluator.NewIngestor(store, ev)

	if cfg.Kafka.Enabled {
		publisher := events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		defer publisher.Close()
		ev.SetPublisher(publisher)
		logger.Info("publishing events to kafka topic %s", cfg.Kafka.Topic)
	}

	if cfg.GPIO.Enabled {
		relay, err := actuator.OpenRelay(cfg.GPIO.Pin, cfg.GPIO.ActiveLow)
		if err != nil {
			// keep serving the API and MQTT commands without the relay
			logger.Error("fan relay unavailable: %v", err)
		} else {
			defer relay.Close()
			ev.AddActuator(relay)
		}
	}

	transformerManager, err := transformer.NewManager(cfg.Transformers)
	if err != nil {
		return fmt.Errorf("failed to initialize transformer manager: %w", err)
	}

	if cfg.MQTT.Enabled {
		mqttManager, err := mqtt.NewManager(cfg.MQTT, transformerManager, ingestor)
		if err != nil {
			return err
		}
		if err := mqttManager.Start(); err != nil {
			return err
		}
		defer mqttManager.Stop()
		ev.AddActuator(mqttManager)
	}

	// flushes queued actuations before the actuators above are closed
	defer ev.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := ev.Sync(ctx); err != nil {
		logger.Warn("failed to sync actuators with stored fan state: %v", err)
	}
	go ev.Run(ctx, cfg.Engine.EvaluationInterval)

	server := api.NewServer(cfg.HTTP, store, ev, ingestor)
	go func() {
		if err := server.Start(); err != nil {
			logger.Error("HTTP server stopped: %v", err)
			cancel()
		}
	}()

	err = config.WatchConfig(configPath, func(newCfg *config.Config) error {
		logger.Info("applying new configuration...")

		for deviceType, transformerCfg := range newCfg.Transformers {
			if err := transformerManager.ReloadTransformer(deviceType, transformerCfg); err != nil {
				logger.Error("failed to reload transformer %s: %v", deviceType, err)
			}
		}

		if newCfg.Engine.HysteresisWindow != ev.Window() {
			ev.SetWindow(newCfg.Engine.HysteresisWindow)
			logger.Info("hysteresis window set to %s", newCfg.Engine.HysteresisWindow)
		}

		if err := logger.SetLevel(newCfg.Logger.Level); err != nil {
			logger.Warn("%v", err)
		}

		logger.Info("MQTT, storage, HTTP and actuator changes take effect after restart")
		return nil
	})
	if err != nil {
		logger.Warn("failed to watch config file: %v", err)
	} else {
		logger.Info("watching config file for changes")
	}

	logger.Info("air monitor started, waiting for sensor data...")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigChan:
	case <-ctx.Done():
	}

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP shutdown: %v", err)
	}

	logger.Info("service stopped")
	return nil
}

// openStorage picks the primary store and attaches the file archive
func openStorage(cfg config.StorageConfig) (*storage.Manager, error) {
	var primary storage.Store = storage.NewMemoryStorage()
	if cfg.Database.Enabled {
		db, err := storage.NewDatabaseStorage(cfg.Database.Type, cfg.Database.DSN)
		if err != nil {
			return nil, err
		}
		primary = db
	} else {
		logger.Warn("database storage disabled, readings and fan state are kept in memory only")
	}

	manager := storage.NewManager(primary)
	if cfg.File.Enabled {
		fileStorage, err := storage.NewFileStorage(cfg.File.Path)
		if err != nil {
			primary.Close()
			return nil, err
		}
		manager.AddBackend(fileStorage)
	}
	return manager, nil
}
