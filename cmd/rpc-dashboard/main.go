// Package main is the entry point for the RPC latency dashboard agent. It refreshes
// per-chain state snapshots, probes every configured provider and pushes the
// latency samples to the metrics backend.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/alecthomas/kong"
	"github.com/sirupsen/logrus"

	"github.com/yourorg/rpc-dashboard/internal/config"
	"github.com/yourorg/rpc-dashboard/internal/types"
)

const version = "1.0.0"

// Globals are flags shared by every command
type Globals struct {
	LogLevel  string `env:"LOG_LEVEL"  enum:"debug,info,warn,warning,error" default:"info" help:"Log level."`
	LogFormat string `env:"LOG_FORMAT" enum:"text,json"                     default:"text" help:"Log format."`
}

// CLI is the command tree
type CLI struct {
	Globals

	Serve       ServeCmd       `cmd:"" default:"1" help:"Runs the HTTP trigger server (default)."`
	UpdateState UpdateStateCmd `cmd:"" help:"Runs one state refresh pass and prints the result."`
	Collect     CollectCmd     `cmd:"" help:"Runs one collection pass for a blockchain."`
	Chains      ChainsCmd      `cmd:"" help:"Lists the configured blockchains."`
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("rpc-dashboard"),
		kong.Description("Measures blockchain RPC provider latency."),
		kong.UsageOnError(),
		kong.Vars{"version": version},
	)

	setupLogging(cli.Globals)

	err := ctx.Run(&cli.Globals)
	ctx.FatalIfErrorf(err)
}

// setupLogging configures the global logrus logger
func setupLogging(g Globals) {
	switch strings.ToLower(g.LogFormat) {
	case "json":
		logrus.SetFormatter(&logrus.JSONFormatter{})
	default:
		logrus.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}

	switch strings.ToLower(g.LogLevel) {
	case "debug":
		logrus.SetLevel(logrus.DebugLevel)
	case "warn", "warning":
		logrus.SetLevel(logrus.WarnLevel)
	case "error":
		logrus.SetLevel(logrus.ErrorLevel)
	default:
		logrus.SetLevel(logrus.InfoLevel)
	}
}

// signalContext is cancelled on SIGINT or SIGTERM
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// ServeCmd runs the trigger server
type ServeCmd struct{}

func (c *ServeCmd) Run(g *Globals) error {
	ctx, stop := signalContext()
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	return NewServer(a).Start(ctx)
}

// UpdateStateCmd runs a single refresh pass
type UpdateStateCmd struct{}

func (c *UpdateStateCmd) Run(g *Globals) error {
	ctx, stop := signalContext()
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := context.WithTimeout(ctx, a.cfg.PassTimeout)
	defer cancel()

	res, err := a.updater.Run(ctx)
	if err != nil {
		return err
	}
	return printJSON(res)
}

// CollectCmd runs a single collection pass
type CollectCmd struct {
	Blockchain string `arg:"" help:"Blockchain to probe."`
	DryRun     bool   `help:"Print the encoded lines instead of pushing them."`
}

func (c *CollectCmd) Run(g *Globals) error {
	chain, err := types.Parse(c.Blockchain)
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	a, err := newApp(ctx, withDryRun(c.DryRun))
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := context.WithTimeout(ctx, a.cfg.PassTimeout)
	defer cancel()

	report, err := a.collector.Run(ctx, chain)
	if err != nil {
		return err
	}
	if c.DryRun {
		_, err = os.Stdout.Write(report.Lines)
		return err
	}
	return printJSON(report)
}

// ChainsCmd prints the blockchains in the endpoints document
type ChainsCmd struct{}

func (c *ChainsCmd) Run(g *Globals) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	endpoints, err := config.LoadEndpoints(cfg.Endpoints, cfg.EndpointsFile)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "BLOCKCHAIN\tFAMILY\tPROVIDERS")
	for _, chain := range endpoints.Blockchains() {
		fmt.Fprintf(w, "%s\t%s\t%d\n", chain, chain.Family(), len(endpoints.ProvidersFor(chain)))
	}
	return w.Flush()
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
