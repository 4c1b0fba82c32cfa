package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"appcrane/internal/application/config"
	"appcrane/internal/application/crane"
	"appcrane/internal/application/version"
	log "appcrane/pkg/log"
)

const shutdownTimeout = 30 * time.Second

// Global variables to manage the crane lifecycle
var (
	currentCrane *crane.Crane
	craneMutex   sync.Mutex
)

func main() {
	showVersion := flag.Bool("version", false, "Show version information")
	showHelp := flag.Bool("help", false, "Show help information")
	configPath := flag.String("config", "appcrane.config.json", "Path to configuration file")
	workerOnly := flag.Bool("worker-only", false, "Only consume the queues; no repo sync schedule and no event forwarding")
	updateAll := flag.Bool("update-all", false, "Update every outdated app once and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("\nAppCrane version: %s\n", version.Info())
		os.Exit(0)
	}

	if *showHelp {
		fmt.Println("\nAppCrane")
		fmt.Println("Usage: appcrane [options]")
		fmt.Println("Options:")
		fmt.Println("  --version      Show version information")
		fmt.Println("  --help         Show help information")
		fmt.Println("  --config       Path to configuration file (default: appcrane.config.json)")
		fmt.Println("  --worker-only  Only consume the queues; no repo sync schedule and no event forwarding")
		fmt.Println("  --update-all   Update every outdated app once and exit")
		os.Exit(0)
	}

	fmt.Printf("\nLoading configuration from %s", *configPath)
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Printf("\nFailed to load configuration: %v\n", err)
		os.Exit(1)
	}
	log.InitLog(cfg.LogLevel)
	fmt.Printf("\nAppCrane initialized with Log Level \"%s\"\n", cfg.LogLevel)

	if *updateAll {
		os.Exit(runUpdateAll(cfg))
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		sig := <-sigChan
		log.Info("Received signal, initiating graceful shutdown", "signal", sig.String())
		cancel()

		// Quit anyway if in-flight operations do not settle in time.
		time.Sleep(shutdownTimeout)
		log.Warn("Graceful shutdown timed out")
		os.Exit(1)
	}()

	opts := crane.Options{WorkerOnly: *workerOnly}
	if err := startCrane(ctx, cfg, opts); err != nil {
		log.Fatalf("Failed to start appcrane: %v", err)
	}

	watcher := config.NewWatcher(*configPath, func(newCfg *config.Config) {
		log.Info("Configuration changed, restarting appcrane")
		log.InitLog(newCfg.LogLevel)
		stopCurrentCrane()
		if err := startCrane(ctx, newCfg, opts); err != nil {
			log.Error("Failed to restart appcrane with the new configuration", "error", err)
			cancel()
		}
	})
	if err := watcher.Start(ctx); err != nil {
		log.Warn("Failed to start config watcher", "error", err)
	}

	<-ctx.Done()
	log.Printf("Context canceled, shutting down appcrane...")
	watcher.Stop()
	stopCurrentCrane()
}

// startCrane builds and runs a crane, replacing the current one.
func startCrane(ctx context.Context, cfg *config.Config, opts crane.Options) error {
	c, err := crane.New(cfg)
	if err != nil {
		return err
	}
	if err := c.Run(ctx, opts); err != nil {
		_ = c.Close()
		return err
	}

	craneMutex.Lock()
	defer craneMutex.Unlock()
	if currentCrane != nil {
		_ = currentCrane.Close()
	}
	currentCrane = c
	return nil
}

// stopCurrentCrane safely stops the current crane if it exists
func stopCurrentCrane() {
	craneMutex.Lock()
	defer craneMutex.Unlock()

	if currentCrane != nil {
		log.Info("Closing appcrane")
		if err := currentCrane.Close(); err != nil {
			log.Warn("Closing appcrane failed", "error", err)
		}
		currentCrane = nil
	}
}

// runUpdateAll updates outdated apps with a worker-only crane and returns the
// process exit code.
func runUpdateAll(cfg *config.Config) int {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	c, err := crane.New(cfg)
	if err != nil {
		fmt.Printf("Failed to start appcrane: %v\n", err)
		return 1
	}
	defer c.Close()

	if err := c.Run(ctx, crane.Options{WorkerOnly: true}); err != nil {
		fmt.Printf("Failed to start consumers: %v\n", err)
		return 1
	}

	updated, err := c.Lifecycle().UpdateAllApps(ctx)
	for _, urn := range updated {
		fmt.Printf("Updated %s\n", urn)
	}
	if err != nil {
		fmt.Printf("Some apps failed to update: %v\n", err)
		return 1
	}
	fmt.Printf("%d app(s) updated\n", len(updated))
	return 0
}
