// Command network-bridge polls the iFrogLab LoRa dongle for RX frames,
// forwards them as uplinks to the broker, and drains per-node downlink
// queues back onto the air.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ifroglab/lora-gateway-bridge/pkg/broker"
	"github.com/ifroglab/lora-gateway-bridge/pkg/config"
	"github.com/ifroglab/lora-gateway-bridge/pkg/dongle"
	"github.com/ifroglab/lora-gateway-bridge/pkg/httpapi"
	"github.com/ifroglab/lora-gateway-bridge/pkg/netloop"
	"github.com/ifroglab/lora-gateway-bridge/pkg/state"
)

var (
	configFile string
	listenAddr string
	logLevel   string

	rootCmd = &cobra.Command{
		Use:   "network-bridge",
		Short: "LoRa gateway network bridge",
		Long:  "Bridges an iFrogLab LoRa USB dongle to a message broker, forwarding uplinks and draining per-node downlink queues.",
		RunE:  run,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "configuration file path (YAML)")
	rootCmd.Flags().StringVar(&listenAddr, "listen", ":8080", "HTTP history/queue API listen address")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	config.RegisterFlags(rootCmd.Flags())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	log := logrus.WithField("component", "network-bridge")

	cfg, err := config.Load(configFile, cmd.Flags())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log.WithFields(logrus.Fields{
		"unit": cfg.Unit, "code": cfg.Code, "dev_path": cfg.DevPath, "freq": cfg.Freq, "power": cfg.Power,
	}).Info("starting network bridge")

	st := state.New()

	client, err := broker.NewClient(cfg.MqURI)
	if err != nil {
		return fmt.Errorf("connect broker: %w", err)
	}
	defer client.Close()

	handler := broker.NewNetworkHandler(st.Pending, nil, log.WithField("component", "broker.network_handler"))
	mgr := broker.NewNetworkMgr(client, handler, log.WithField("component", "broker.network_mgr"))
	handler.Sender = mgr
	defer mgr.Close()

	connect := func() (*dongle.Protocol, func() error, error) {
		port, err := dongle.Open(cfg.DevPath)
		if err != nil {
			return nil, nil, err
		}
		proto := dongle.NewProtocol(port, log.WithField("component", "dongle"))
		return proto, port.Close, nil
	}

	loopCfg := netloop.Config{Freq: cfg.Freq, Power: cfg.Power}
	loop := netloop.New(loopCfg, connect, st, mgr, log.WithField("component", "netloop"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go loop.Run(ctx)

	httpSrv := httpapi.New(st, nil, httpapi.RoleNetwork, log.WithField("component", "httpapi"))
	srv := &http.Server{Addr: listenAddr, Handler: httpSrv.Handler()}
	go func() {
		log.WithField("addr", listenAddr).Info("serving history/queue API")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("http server failed")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.WithField("signal", sig).Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = srv.Shutdown(shutdownCtx)
	cancel()
	return nil
}
