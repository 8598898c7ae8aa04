package main

import (
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/chatwire/ircbridge/internal/config"
	"github.com/chatwire/ircbridge/internal/irc"
	"github.com/chatwire/ircbridge/internal/metrics"
)

// Version information - set at build time via ldflags
var (
	version   = "dev"
	buildDate = "unknown"
	gitCommit = "unknown"
)

func main() {
	// Command line flags
	foreground := flag.Bool("x", false, "Run in foreground (don't daemonize)")
	configPath := flag.String("c", "./config.yaml", "Path to configuration file")
	showVersion := flag.Bool("v", false, "Show version information and exit")
	showVersionLong := flag.Bool("version", false, "Show version information and exit")
	flag.Parse()

	// Show version and exit
	if *showVersion || *showVersionLong {
		fmt.Printf("ircbridge version %s\n", version)
		fmt.Printf("Built: %s\n", buildDate)
		fmt.Printf("Commit: %s\n", gitCommit)
		os.Exit(0)
	}

	// Daemonize unless -x flag is set
	if !*foreground {
		daemonize()
		return
	}

	// Write PID file
	if err := writePIDFile(); err != nil {
		log.Printf("Warning: could not write PID file: %v", err)
	}

	// Run the bridge
	run(*configPath)
}

// daemonize performs double-fork to become a daemon
func daemonize() {
	// Check if we're already a daemon child
	if os.Getenv("IRCBRIDGE_DAEMON") == "1" {
		// Write PID file
		if err := writePIDFile(); err != nil {
			log.Printf("Warning: could not write PID file: %v", err)
		}

		fmt.Printf("Now becoming a daemon\nMy pid is %d, this has been written to pid.txt\n", os.Getpid())

		// Re-exec ourselves in foreground mode to run the actual bridge
		args := append(os.Args, "-x")

		cmd := exec.Command(args[0], args[1:]...)
		cmd.Stdout = nil
		cmd.Stderr = nil
		cmd.Stdin = nil
		cmd.Env = os.Environ()

		if err := cmd.Start(); err != nil {
			log.Fatalf("Failed to start daemon: %v", err)
		}
		os.Exit(0)
	}

	// First fork
	cmd := exec.Command(os.Args[0], os.Args[1:]...)
	cmd.Env = append(os.Environ(), "IRCBRIDGE_DAEMON=1")
	cmd.Stdout = nil
	cmd.Stderr = nil
	cmd.Stdin = nil

	if err := cmd.Start(); err != nil {
		log.Fatalf("Failed to fork: %v", err)
	}

	// Parent exits
	os.Exit(0)
}

func writePIDFile() error {
	pid := os.Getpid()
	return os.WriteFile("pid.txt", []byte(fmt.Sprintf("%d\n", pid)), 0644)
}

func run(configPath string) {
	// Make config path absolute
	if !filepath.IsAbs(configPath) {
		wd, _ := os.Getwd()
		configPath = filepath.Join(wd, configPath)
	}

	// Secrets may live in a .env file next to the binary
	_ = godotenv.Load()

	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	sess := cfg.Session()

	// Metrics endpoint
	metrics.Init()
	if cfg.MetricsAddr != "" {
		go func() {
			http.Handle("/metrics", promhttp.Handler())
			log.Printf("Serving metrics on %s", cfg.MetricsAddr)
			if err := http.ListenAndServe(cfg.MetricsAddr, nil); err != nil {
				log.Printf("Metrics server error: %v", err)
			}
		}()
	}

	// Create the client and log every chat event it surfaces
	client := irc.NewClient(sess)
	cancel := client.Subscribe(func(ev irc.ChatEvent) {
		if ev.Direct {
			log.Printf("<%s> (direct): %s", ev.From.Nick, ev.Text)
			return
		}
		log.Printf("<%s> %s: %s", ev.From.Nick, ev.Target, ev.Text)
	})
	defer cancel()

	// Connect and run
	log.Printf("Connecting to %s:%d...", sess.Host, sess.Port)
	if err := client.Start(); err != nil {
		if !sess.AutoReconnect {
			log.Fatalf("Failed to connect: %v", err)
		}
		// The client keeps retrying on its own
		log.Printf("Initial connect failed: %v", err)
	}

	// Signal handling
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	log.Printf("Received signal %v, shutting down...", sig)
	client.Stop()
}
