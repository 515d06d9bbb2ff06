package main

import (
	"encoding/hex"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"rc433/pkg/app"
	"rc433/pkg/app/config"
	"rc433/pkg/syncpulse"

	"github.com/urfave/cli/v2"
	"github.com/womat/debug"
)

const defaultConfigFile = "/opt/womat/config/" + app.MODULE + ".yaml"

func main() {
	exitCode := 1
	defer func() {
		os.Exit(exitCode)
	}()

	// cfg holds the application configuration
	cfg := config.NewConfig()

	// load reads the configuration and starts the logging, the returned func closes the debug file
	load := func() (func(), error) {
		if err := cfg.LoadConfig(); err != nil {
			return func() {}, err
		}

		debug.SetDebug(cfg.Debug.File, cfg.Debug.Flag)
		return func() {
			debug.InfoLog.Printf("closing debug file %s", cfg.Debug.FileString)
			_ = cfg.Debug.File.Close()
		}, nil
	}

	cliApp := &cli.App{
		Name:    app.MODULE,
		Usage:   "433MHz receiver and transmitter for remote controls and sensors",
		Version: app.VERSION,
		Description: "Decode the packets of 433MHz remote controls and sensors received at a gpio line and write them to mqtt" +
			"\n packets are sent with the transmitter connected to a second gpio line." +
			"\n The supported protocols use a sync pulse followed by one pulse per data bit.",
		UsageText: "rc433 [--config <file>] [--log error|debug|trace] [command]" +
			"\n\nEXAMPLE:" +
			"\n\tstart the receiver and use the configuration file rc433.yaml" +
			"\n\t\trc433 --config /opt/womat/rc433.yaml" +
			"\n\tsend 24 bits with protocol emos-a" +
			"\n\t\trc433 send --protocol emos-a --data a50f3c",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Destination: &cfg.Flag.ConfigFile, Value: defaultConfigFile, Usage: "load configuration from `FILE`"},
			&cli.StringFlag{Name: "log", Aliases: []string{"l"}, Destination: &cfg.Flag.LogLevel, Value: "standard", Usage: "`LEVEL` defines the log level (fatal|info|warning|error|debug|trace)"},
		},
		Commands: []*cli.Command{
			{
				Name:  "send",
				Usage: "send one packet and exit",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "protocol", Aliases: []string{"p"}, Required: true, Usage: "`NAME` of the configured protocol or preset"},
					&cli.StringFlag{Name: "data", Aliases: []string{"d"}, Required: true, Usage: "`HEX` encoded data, most significant bit first"},
					&cli.IntFlag{Name: "bits", Aliases: []string{"b"}, Usage: "`COUNT` of bits to send, default are all bits of data"},
					&cli.IntFlag{Name: "repeat", Aliases: []string{"r"}, Usage: "`COUNT` of repetitions, default is transmitter.repetitions"},
				},
				Action: func(ctx *cli.Context) error {
					data, err := hex.DecodeString(ctx.String("data"))
					if err != nil {
						return fmt.Errorf("invalid data %q: %w", ctx.String("data"), err)
					}

					closeDebug, err := load()
					defer closeDebug()
					if err != nil {
						return err
					}

					stats, err := app.Transmit(cfg, ctx.String("protocol"), data, ctx.Int("bits"), ctx.Int("repeat"))
					if err != nil {
						return err
					}

					fmt.Printf("transmitted %d edges, %d delayed (%d outside tolerance), average delay %.1fus\n",
						stats.Transmitted, stats.Delayed, stats.DelayedOutsideTolerance, stats.AverageDelay)
					return nil
				},
			},
			{
				Name:  "presets",
				Usage: "list the built-in protocols",
				Action: func(ctx *cli.Context) error {
					for _, name := range syncpulse.Presets() {
						p, _ := syncpulse.Lookup(name)
						fmt.Printf("%-8s sync %v zero %v one %v tolerance %dus, %d-%d bits\n",
							p.Name, p.Sync, p.Zero, p.One, p.Tolerance, p.MinBits, p.MaxBits)
					}
					return nil
				},
			},
		},
		Action: func(ctx *cli.Context) error {
			closeDebug, err := load()
			defer closeDebug()
			if err != nil {
				return err
			}

			a, err := app.New(cfg)
			defer func() {
				debug.InfoLog.Printf("closing app %s", app.Version())
				_ = a.Close()
			}()

			if err != nil {
				return err
			}

			debug.InfoLog.Printf("starting app %s", app.Version())
			if err = a.Run(); err != nil {
				return err
			}

			// capture exit signals to ensure resources are released on exit.
			quit := make(chan os.Signal, 1)
			signal.Notify(quit, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
			defer signal.Stop(quit)

			// wait for am os.Interrupt signal (CTRL C)
			sig := <-quit
			debug.InfoLog.Printf("Got %s signal. Aborting...", sig)

			return nil
		},
	}

	// we expect to have more command line flags in the future - sort them
	sort.Sort(cli.FlagsByName(cliApp.Flags))
	sort.Sort(cli.CommandsByName(cliApp.Commands))

	err := cliApp.Run(os.Args)
	if err != nil {
		debug.FatalLog.Print(err)
		exitCode = 1
		return
	}

	exitCode = 0
	return
}
