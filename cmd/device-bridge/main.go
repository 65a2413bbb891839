// Command device-bridge runs on an embedded host: it periodically
// samples I²C sensors and transmits the readings over the iFrogLab
// LoRa dongle, interleaving RX observation of other nodes.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ifroglab/lora-gateway-bridge/pkg/broker"
	"github.com/ifroglab/lora-gateway-bridge/pkg/config"
	"github.com/ifroglab/lora-gateway-bridge/pkg/devloop"
	"github.com/ifroglab/lora-gateway-bridge/pkg/dongle"
	"github.com/ifroglab/lora-gateway-bridge/pkg/sensors"
	"github.com/ifroglab/lora-gateway-bridge/pkg/state"
)

var (
	configFile string
	i2cBus     string
	echoUplink bool
	logLevel   string

	rootCmd = &cobra.Command{
		Use:   "device-bridge",
		Short: "LoRa device bridge",
		Long:  "Samples I2C sensors and transmits readings over an iFrogLab LoRa USB dongle, interleaving RX observation.",
		RunE:  run,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "configuration file path (YAML)")
	rootCmd.Flags().StringVar(&i2cBus, "i2c-bus", "/dev/i2c-1", "I2C bus device path")
	rootCmd.Flags().BoolVar(&echoUplink, "echo-uplink", false, "also publish observed uplinks to the broker")
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
	log := logrus.WithField("component", "device-bridge")

	cfg, err := config.Load(configFile, cmd.Flags())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log.WithFields(logrus.Fields{
		"unit": cfg.Unit, "code": cfg.Code, "dev_path": cfg.DevPath, "freq": cfg.Freq, "power": cfg.Power,
	}).Info("starting device bridge")

	bus, err := sensors.Open(i2cBus)
	if err != nil {
		return fmt.Errorf("open i2c bus: %w", err)
	}
	defer bus.Close()

	if err := bus.ResetSHTC3(); err != nil {
		return fmt.Errorf("reset shtc3: %w", err)
	}
	if err := bus.ResetLPS22HB(); err != nil {
		return fmt.Errorf("reset lps22hb: %w", err)
	}
	log.Info("sensors initialized")

	st := state.New()

	var pub devloop.Publisher
	if echoUplink {
		client, err := broker.NewClient(cfg.MqURI)
		if err != nil {
			return fmt.Errorf("connect broker: %w", err)
		}
		defer client.Close()
		mgr := broker.NewNetworkMgr(client, broker.NoopHandler{}, log.WithField("component", "broker.network_mgr"))
		defer mgr.Close()
		pub = mgr
	}

	connect := func() (*dongle.Protocol, func() error, uint32, error) {
		port, err := dongle.Open(cfg.DevPath)
		if err != nil {
			return nil, nil, 0, err
		}
		proto := dongle.NewProtocol(port, log.WithField("component", "dongle"))
		info, err := proto.ChipInfo()
		if err != nil {
			port.Close()
			return nil, nil, 0, err
		}
		return proto, port.Close, info.NodeID, nil
	}

	loopCfg := devloop.Config{Freq: cfg.Freq, Power: cfg.Power, Workers: 1}
	loop := devloop.New(loopCfg, connect, bus, st, pub, log.WithField("component", "devloop"))
	defer loop.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go loop.Run(ctx)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.WithField("signal", sig).Info("shutting down")
	cancel()
	return nil
}
