package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"scribeeasy/internal/app"
)

// main is the application entry point
func main() {
	// Parse command line flags
	var (
		helpFlag    = flag.Bool("help", false, "Show help message")
		versionFlag = flag.Bool("version", false, "Show version information")
		healthFlag  = flag.Bool("health", false, "Check application health status")
	)
	flag.Parse()

	if *helpFlag {
		printHelp()
		os.Exit(0)
	}

	if *versionFlag {
		printVersion()
		os.Exit(0)
	}

	if *healthFlag {
		os.Exit(checkHealth())
	}

	// Run the main application logic
	if err := runApplication(); err != nil {
		fmt.Fprintf(os.Stderr, "Application error: %v\n", err)
		os.Exit(1)
	}
}

// runApplication contains the core application logic that can be tested
func runApplication() error {
	// Load .env before configuration is read; a missing file is fine
	_ = godotenv.Load()

	// Create structured logger for main
	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer logger.Sync()

	logger.Info("ScribeEasy starting up",
		zap.String("component", "main"),
		zap.String("version", "1.0.0"))

	// Create application instance using orchestrator
	application, err := app.NewApplication()
	if err != nil {
		logger.Error("Failed to create application",
			zap.Error(err),
			zap.String("component", "main"))
		return fmt.Errorf("failed to create application: %w", err)
	}

	// Set up context with cancellation for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Set up signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		logger.Info("Received shutdown signal",
			zap.String("signal", sig.String()),
			zap.String("component", "main"))
		cancel()
	}()

	if err := application.Run(ctx); err != nil {
		logger.Error("Application runtime error",
			zap.Error(err),
			zap.String("component", "main"))
		return fmt.Errorf("application runtime error: %w", err)
	}

	if err := application.Shutdown(); err != nil {
		return fmt.Errorf("application shutdown error: %w", err)
	}

	logger.Info("ScribeEasy stopped successfully",
		zap.String("component", "main"))
	return nil
}

// printHelp displays command line usage information
func printHelp() {
	fmt.Println("ScribeEasy - Audio/Video Transcription Service")
	fmt.Println()
	fmt.Println("USAGE:")
	fmt.Println("    scribeeasy [OPTIONS]")
	fmt.Println()
	fmt.Println("OPTIONS:")
	fmt.Println("    -help      Show this help message")
	fmt.Println("    -version   Show version information")
	fmt.Println("    -health    Check application health status")
	fmt.Println()
	fmt.Println("CONFIGURATION:")
	fmt.Println("    Configuration is loaded from environment variables or the")
	fmt.Println("    file named by CONFIG_PATH. ASSEMBLYAI_API_KEY is required.")
	fmt.Println()
	fmt.Println("EXAMPLES:")
	fmt.Println("    scribeeasy              # Run with default configuration")
	fmt.Println("    scribeeasy -health      # Check health (for container healthcheck)")
}

// printVersion displays version and build information
func printVersion() {
	fmt.Println("ScribeEasy")
	fmt.Println("Version: 1.0.0")
	fmt.Println("Architecture: Go 1.24 + AssemblyAI")
}

// checkHealth probes the local health endpoint
func checkHealth() int {
	return checkHealthWithURL("http://127.0.0.1:8000/")
}

// checkHealthWithURL probes the given health endpoint and reports the result
func checkHealthWithURL(url string) int {
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		fmt.Printf("UNHEALTHY: %v\n", err)
		return 1
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		fmt.Printf("UNHEALTHY: health endpoint returned HTTP %d\n", resp.StatusCode)
		return 1
	}

	fmt.Println("HEALTHY: Application is functioning normally")
	return 0
}
