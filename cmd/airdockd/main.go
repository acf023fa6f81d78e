package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/term"

	"github.com/airdock-app/airdock/daemon/config"
	"github.com/airdock-app/airdock/daemon/service"
	"github.com/airdock-app/airdock/daemon/store"
	"github.com/airdock-app/airdock/internal/observability"
)

const minFreeDiskBytes = 512 * 1024 * 1024

func main() {
	configPath := flag.String("config", "", "path to daemon config file (defaults to the platform config dir)")
	listenAddr := flag.String("listen-addr", "", "override the TCP transfer listen address")
	discoveryPort := flag.Int("discovery-port", 0, "override the UDP discovery port")
	dataDir := flag.String("data-dir", "", "override the daemon's data directory")
	downloadsDir := flag.String("downloads-dir", "", "override the default downloads directory")
	observAddr := flag.String("observ-addr", "127.0.0.1:8091", "observability server address (metrics, health, pprof)")
	interactive := flag.Bool("interactive", false, "prompt for and display pairing codes on stdin/stdout")
	flag.Parse()

	logger := observability.NewLogger("airdockd", "1.0.0", os.Stdout)

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logger.Fatal(err, "failed to load config")
	}
	if *listenAddr != "" {
		cfg.ListenAddress = *listenAddr
	}
	if *discoveryPort != 0 {
		cfg.DiscoveryPort = *discoveryPort
	}
	if *dataDir != "" {
		cfg.DataDirectory = *dataDir
	}
	if *downloadsDir != "" {
		cfg.DownloadsDir = *downloadsDir
	}

	if shutdown, err := observability.InitTracing(context.Background(), "airdockd"); err == nil {
		defer shutdown(context.Background())
	} else {
		logger.Error(err, "failed to init tracing")
	}

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		logger.Fatal(err, "failed to open store")
	}

	svc, err := service.New(cfg, st, logger)
	if err != nil {
		logger.Fatal(err, "failed to start service")
	}
	deviceID, displayName := svc.Identity()
	logger.Info(fmt.Sprintf("airdockd starting as %s (%s), listening on %s", displayName, deviceID, cfg.ListenAddress))

	if svc.GetSettings().DiscoveryEnabled {
		if err := svc.StartDiscovery(); err != nil {
			logger.Fatal(err, "failed to start discovery")
		}
		logger.Info("discovery broadcasting on port " + fmt.Sprint(cfg.DiscoveryPort))
	}

	metrics := observability.NewMetrics()
	health := observability.NewHealthChecker("1.0.0")
	health.RegisterCheck("tcp_listener", observability.TCPListenerCheck(cfg.ListenAddress))
	health.RegisterCheck("identity", observability.IdentityCheck(deviceID != ""))
	health.RegisterCheck("database", observability.DatabaseCheck(cfg.DBPath))
	health.RegisterCheck("disk_space", observability.DiskSpaceCheck(cfg.DownloadsDir, minFreeDiskBytes))

	obsServer := &http.Server{Addr: *observAddr, Handler: observabilityMux(metrics, health)}
	go func() {
		logger.Info("observability server listening on " + *observAddr + " (metrics, health, pprof)")
		if err := obsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error(err, "observability server error")
		}
	}()

	if *interactive {
		go runPairingPrompt(svc, logger)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutting down gracefully...")
	_ = obsServer.Close()
	if err := svc.Close(); err != nil {
		logger.Error(err, "error during service shutdown")
	}
	if err := st.Close(); err != nil {
		logger.Error(err, "error closing store")
	}
	logger.Info("airdockd stopped")
}

func observabilityMux(metrics *observability.Metrics, health *observability.HealthChecker) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.Handle("/health", health.Handler())
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	return mux
}

// runPairingPrompt prints a fresh pairing code each time the operator presses Enter at the
// daemon's console. Enter is read through term.ReadPassword so accidental keystrokes between
// prompts never echo to the terminal or land in shell history/scrollback, the same masked-input
// convention the keypair tooling uses for passphrase entry.
func runPairingPrompt(svc *service.Service, logger *observability.Logger) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return
	}

	fmt.Println("Press Enter to generate a pairing code (Ctrl+C to stop the daemon).")
	for {
		if _, err := term.ReadPassword(fd); err != nil {
			return
		}
		code, err := svc.GeneratePairingCode()
		if err != nil {
			logger.Error(err, "failed to generate pairing code")
			continue
		}
		fmt.Printf("Pairing code: %s (expires %s)\n", code.Code, code.ExpiresAt.Format("15:04:05"))
	}
}
