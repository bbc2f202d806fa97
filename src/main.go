package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/OpenTollGate/tollgate-session-engine-go/src/config_manager"
	"github.com/OpenTollGate/tollgate-session-engine-go/src/crowsnest"
	"github.com/OpenTollGate/tollgate-session-engine-go/src/gateway_client"
	"github.com/OpenTollGate/tollgate-session-engine-go/src/network_monitor"
	"github.com/OpenTollGate/tollgate-session-engine-go/src/purser"
	"github.com/OpenTollGate/tollgate-session-engine-go/src/relay"
	"github.com/OpenTollGate/tollgate-session-engine-go/src/relay_link"
	"github.com/OpenTollGate/tollgate-session-engine-go/src/tollwallet"
)

// getConfigPath returns the configuration file path, checking the environment
// variable first, then the default.
func getConfigPath() string {
	if configPath := os.Getenv("TOLLGATE_CONFIG_PATH"); configPath != "" {
		return configPath
	}
	return "/etc/tollgate/config.json"
}

// devRelayAddr picks the loopback address for the embedded dev relay, reusing
// the first configured relay port so the engine can dial it like a gateway's.
func devRelayAddr(config *config_manager.Config) string {
	port := 3334
	if len(config.RelayPorts) > 0 {
		port = config.RelayPorts[0]
	}
	return fmt.Sprintf("127.0.0.1:%d", port)
}

// startDevRelay serves an embedded session relay on loopback when dev mode is
// enabled, so the engine can be exercised without a real TollGate nearby.
func startDevRelay(enabled bool, config *config_manager.Config) *relay.SessionRelay {
	if !enabled {
		return nil
	}
	devRelay := relay.NewSessionRelay()
	addr := devRelayAddr(config)
	go func() {
		if err := devRelay.Start(addr); err != nil {
			logrus.WithError(err).Error("Dev relay stopped")
		}
	}()
	logrus.WithField("addr", addr).Info("Dev relay serving session events")
	return devRelay
}

// engine bundles the long-lived components of the session engine.
type engine struct {
	config   *config_manager.Config
	monitor  *network_monitor.NetworkMonitor
	scanner  *crowsnest.Scanner
	detector *crowsnest.Detector
	purser   *purser.Purser

	// advertisement is cached per gateway association so a flaky scan does
	// not flap the purchase trigger while a session is being negotiated.
	advertisement *crowsnest.Advertisement
	adGatewayIP   string
}

func main() {
	devMode := flag.Bool("dev", false, "serve an embedded local relay so the engine can be run against itself")
	flag.Parse()

	configPath := getConfigPath()
	configManager, err := config_manager.NewConfigManager(configPath)
	if err != nil {
		logrus.Fatalf("Failed to create config manager: %v", err)
	}
	config, err := configManager.LoadConfig()
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}

	InitializeGlobalLogger(config.LogLevel)
	logrus.WithField("config_path", configPath).Info("TollGate session engine starting")

	wallet, err := tollwallet.New(config.Wallet.Path, config.Wallet.AcceptedMints, config.Wallet.AllowUntrustedSwap)
	if err != nil {
		logrus.Fatalf("Failed to initialize wallet: %v", err)
	}
	logrus.WithFields(logrus.Fields{
		"balance":              wallet.GetBalance(),
		"default_mint_balance": wallet.GetBalanceByMint(config.DefaultMintURL),
	}).Info("Wallet ready")

	gatewayClient := gateway_client.New(config.GatewayServicePort, time.Duration(config.ProbeTimeoutMs)*time.Millisecond)

	monitor := network_monitor.New(
		network_monitor.NewGatewayResolver(),
		network_monitor.NewMacResolver(gatewayClient),
	)
	linkWatcher := network_monitor.NewLinkWatcher(monitor, config.WirelessInterface)
	if err := linkWatcher.Start(); err != nil {
		logrus.WithError(err).Warn("Link watcher unavailable, assuming link is up")
		monitor.SetLinkState(true)
	}
	defer linkWatcher.Stop()

	devRelay := startDevRelay(*devMode, config)

	link := relay_link.New(config.RelayPorts)
	sessionPurser := purser.New(link, wallet, gatewayClient, purser.Options{
		ConfirmationTimeout: time.Duration(config.ConfirmationTimeoutSeconds) * time.Second,
		ConfirmationSkew:    time.Duration(config.ConfirmationSkewSeconds) * time.Second,
		DismissDelay:        time.Duration(config.DismissDelaySeconds) * time.Second,
		DefaultAmount:       config.DefaultPurchaseAmount,
		DefaultMintURL:      config.DefaultMintURL,
		Renew:               config.AlwaysMaintainSession,
	})
	if err := sessionPurser.Start(); err != nil {
		logrus.Fatalf("Failed to start purser: %v", err)
	}
	defer sessionPurser.Stop()

	e := &engine{
		config:   config,
		monitor:  monitor,
		scanner:  crowsnest.NewScanner(),
		detector: crowsnest.NewDetector(gatewayClient),
		purser:   sessionPurser,
	}

	ticker := time.NewTicker(time.Duration(config.CheckIntervalSeconds) * time.Second)
	defer ticker.Stop()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	e.check()
	for {
		select {
		case <-ticker.C:
			e.check()
		case sig := <-sigChan:
			logrus.WithField("signal", sig.String()).Info("Shutting down")
			if devRelay != nil {
				for _, event := range devRelay.GetAllEvents() {
					logrus.WithFields(logrus.Fields{
						"event_id": event.ID,
						"kind":     event.Kind,
					}).Debug("Dev relay held event at shutdown")
				}
			}
			return
		}
	}
}

// check runs one evaluation cycle: refresh the network signals, detect the
// gateway's advertisement, and hand the purser a consistent snapshot.
func (e *engine) check() {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := e.monitor.PerformCheck(ctx); err != nil {
		logrus.WithError(err).Debug("Network check incomplete")
	}
	snapshot := e.monitor.Snapshot()

	if snapshot.GatewayIP != e.adGatewayIP {
		// New association: previous advertisement and probe verdicts no
		// longer apply.
		e.advertisement = nil
		e.adGatewayIP = snapshot.GatewayIP
		e.detector.Reset()
	}

	if snapshot.GatewayIP != "" && e.advertisement == nil {
		e.advertisement = e.detect(ctx, snapshot.GatewayIP)
	}

	e.purser.UpdateSignals(purser.Signals{
		Ready:         snapshot.Ready,
		GatewayIP:     snapshot.GatewayIP,
		ClientMac:     snapshot.ClientMac,
		Advertisement: e.advertisement,
	})
}

// detect looks for a TollGate advertisement, preferring beacon vendor
// elements from the scan and falling back to the HTTP pubkey probe.
func (e *engine) detect(ctx context.Context, gatewayIP string) *crowsnest.Advertisement {
	networks, err := e.scanner.ScanNetworks()
	if err != nil {
		logrus.WithError(err).Debug("WiFi scan failed")
	}
	for _, network := range networks {
		if ad, ok := e.detector.Detect(ctx, network, gatewayIP); ok {
			return ad
		}
	}

	// No usable beacon; probe the gateway directly.
	if ad, ok := e.detector.Detect(ctx, crowsnest.NetworkInfo{}, gatewayIP); ok {
		return ad
	}
	return nil
}
