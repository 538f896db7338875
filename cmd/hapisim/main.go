// The hapisim command runs the account suites against a node and writes the
// results as JSON, one file per suite.
//
// By default suites run against an embedded in-memory node. Use -node to test
// a node serving the crypto JSON-RPC namespace, and -serve to run the embedded
// node as such a server.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hapisim/hapisim/internal/config"
	"github.com/hapisim/hapisim/internal/libhapi"
	"gopkg.in/inconshreveable/log15.v2"
)

func main() {
	var (
		configFile  = flag.String("config", "", "YAML config file")
		nodeFlag    = flag.String("node", "", `Node to test: JSON-RPC URL, "embedded" or "inproc"`)
		testPattern = flag.String("sim.test", "", "Regexp selecting the suites and tests to run (suite/test)")
		testLimit   = flag.Int("sim.limit", 0, "Maximum number of tests per suite (0 = no limit)")
		resultsRoot = flag.String("results-root", "", "Target folder for results output")
		loglevel    = flag.Int("loglevel", 3, "Log level to use for displaying system events")
		parallel    = flag.Int("parallel", 0, "Number of suites running concurrently")
		junitFile   = flag.String("junit", "", "Write a JUnit XML report of the run to this file")
		serveAddr   = flag.String("serve", "", "Serve the embedded node over HTTP JSON-RPC on this address instead of running suites")
		report      = flag.Bool("report", false, "Only write the JUnit report of the results in -results-root")
		listing     = flag.Bool("listing", false, "Write a JSON listing of the results in -results-root to stdout")
		gc          = flag.Bool("gc", false, "Delete old suite files in -results-root")
		gcKeep      = flag.Duration("keep", 31*24*time.Hour, "Time interval of past suite files to keep (for -gc)")
		gcKeepMin   = flag.Int("keep-min", 10, "Minimum number of suite files to keep (for -gc)")
	)
	flag.Parse()

	cfg := config.Default()
	if *configFile != "" {
		var err error
		if cfg, err = config.Load(*configFile); err != nil {
			fatal(err)
		}
	}
	// Flags override the config file.
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "node":
			cfg.Node.Endpoint = *nodeFlag
		case "sim.test":
			cfg.TestPattern = *testPattern
		case "sim.limit":
			cfg.TestLimit = *testLimit
		case "results-root":
			cfg.ResultsRoot = *resultsRoot
		case "loglevel":
			cfg.LogLevel = *loglevel
		case "parallel":
			cfg.Parallel = *parallel
		}
	})
	if err := cfg.Validate(); err != nil {
		fatal(err)
	}
	log15.Root().SetHandler(log15.LvlFilterHandler(log15.Lvl(cfg.LogLevel), log15.StreamHandler(os.Stderr, log15.TerminalFormat())))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	switch {
	case *serveAddr != "":
		if err := serveNode(ctx, &cfg.Node, *serveAddr); err != nil {
			fatal(err)
		}
	case *listing:
		if err := writeListing(os.DirFS(cfg.ResultsRoot), os.Stdout); err != nil {
			fatal(err)
		}
	case *gc:
		if err := resultsGC(cfg.ResultsRoot, time.Now().Add(-*gcKeep), *gcKeepMin); err != nil {
			fatal(err)
		}
	case *report:
		suites, pass, err := libhapi.ReadSuites(os.DirFS(cfg.ResultsRoot), ".")
		if err != nil {
			fatal(err)
		}
		if *junitFile != "" {
			if err := libhapi.WriteJUnit(suites, *junitFile); err != nil {
				fatal(err)
			}
		}
		if !pass {
			log15.Info("tests failed!")
			os.Exit(1)
		}
		log15.Info("tests passed!")
	default:
		failed, err := runSuites(ctx, cfg, *junitFile)
		if err != nil {
			fatal(err)
		}
		if failed > 0 {
			log15.Error("simulation finished with failures", "failed", failed)
			os.Exit(1)
		}
		log15.Info("simulation finished")
	}
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(2)
}
