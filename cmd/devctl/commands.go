package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/loopholelabs/logging"
	"github.com/loopholelabs/logging/types"
	"github.com/spf13/cobra"

	"github.com/moffa90/go-devlink/config"
	"github.com/moffa90/go-devlink/device"
	"github.com/moffa90/go-devlink/metrics"
	"github.com/moffa90/go-devlink/protocol"
	"github.com/moffa90/go-devlink/transport"
)

var (
	rootCmd = &cobra.Command{
		Use:               "devctl",
		Short:             "Talk to display and IR controllers over HID or I2C.",
		Long:              ``,
		SilenceErrors:     true,
		SilenceUsage:      true,
		PersistentPreRunE: setup,
	}
)

var (
	rootConf       string
	rootDevice     string
	rootFamily     string
	rootTransports []string
	rootDebug      bool
	rootMetrics    string
	rootStatsd     string
	rootTimeout    time.Duration
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&rootConf, "conf", "c", "", "HCL configuration file")
	rootCmd.PersistentFlags().StringVarP(&rootDevice, "device", "D", "", "Device block to use from the configuration")
	rootCmd.PersistentFlags().StringVarP(&rootFamily, "family", "f", "display", "Device family when no configuration is given")
	rootCmd.PersistentFlags().StringSliceVarP(&rootTransports, "transport", "t", []string{config.TransportHID}, "Transports to search (hid, ftdi, i2c)")
	rootCmd.PersistentFlags().BoolVarP(&rootDebug, "debug", "d", false, "Debug logging (trace)")
	rootCmd.PersistentFlags().StringVarP(&rootMetrics, "metrics", "m", "", "Prom metrics address")
	rootCmd.PersistentFlags().StringVar(&rootStatsd, "statsd", "", "Statsd server address")
	rootCmd.PersistentFlags().DurationVar(&rootTimeout, "timeout", 0, "Command timeout (default from configuration)")
}

func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

// app is the state every subcommand shares, set up before it runs.
var app struct {
	log     types.RootLogger
	metrics metrics.Metrics
	ds      *config.DeviceSchema
	family  *protocol.Family
}

func setup(cmd *cobra.Command, _ []string) error {
	app.log = logging.New(logging.Zerolog, "devctl", os.Stderr)
	if rootDebug {
		app.log.SetLevel(types.TraceLevel)
	} else {
		app.log.SetLevel(types.InfoLevel)
	}

	var metricsConf *config.MetricsSchema
	if rootConf != "" {
		schema, err := config.ReadSchema(rootConf)
		if err != nil {
			return err
		}
		ds, err := schema.Lookup(rootDevice)
		if err != nil {
			return err
		}
		app.ds = ds
		metricsConf = schema.Metrics
	} else {
		app.ds = config.NewDeviceSchema("cli", rootFamily)
	}

	if rootConf == "" || cmd.Flags().Changed("transport") {
		app.ds.Transports = rootTransports
	}
	if err := app.ds.Validate(); err != nil {
		return err
	}

	family, err := app.ds.FamilySpec()
	if err != nil {
		return err
	}
	app.family = family

	if metricsConf == nil {
		metricsConf = &config.MetricsSchema{}
	}
	if rootMetrics != "" {
		metricsConf.Listen = rootMetrics
	}
	if rootStatsd != "" {
		metricsConf.Statsd = rootStatsd
	}
	app.metrics = startMetrics(metricsConf)

	return nil
}

func commandTimeout() time.Duration {
	if rootTimeout > 0 {
		return rootTimeout
	}
	return app.ds.CommandTimeoutDuration()
}

func newFinder() *device.Finder {
	topts := []transport.Option{transport.WithLogger(app.log)}

	return device.NewFinder(app.family,
		device.WithEnumerators(app.ds.Enumerators(topts...)...),
		device.WithWarmup(app.ds.WarmupDuration()),
		device.WithFinderLogger(app.log),
		device.WithClientOptions(
			device.WithLogger(app.log),
			device.WithMetrics(app.metrics),
			device.WithCommandTimeout(commandTimeout()),
			device.WithLogTimeout(app.ds.LogTimeoutDuration()),
		),
	)
}

// connect returns a client for the configured device or a readable error.
func connect(ctx context.Context) (*device.Client, error) {
	client, err := newFinder().Find(ctx)
	switch {
	case errors.Is(err, device.ErrNotFound):
		return nil, fmt.Errorf("no %s device found", app.family.Name)
	case errors.Is(err, device.ErrAmbiguous):
		return nil, fmt.Errorf("more than one %s device found, connect only one", app.family.Name)
	case err != nil:
		return nil, err
	}
	return client, nil
}

// withClient runs fn against a freshly connected client and closes it.
func withClient(cmd *cobra.Command, fn func(ctx context.Context, c *device.Client) error) error {
	ctx := cmd.Context()
	client, err := connect(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	return fn(ctx, client)
}
