package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sort"
	"time"

	"github.com/hapisim/hapisim/hapisim"
	"github.com/hapisim/hapisim/internal/config"
	"github.com/hapisim/hapisim/internal/libhapi"
	"github.com/hapisim/hapisim/suites/crypto"
	"golang.org/x/sync/errgroup"
	"gopkg.in/inconshreveable/log15.v2"
)

// allSuites lists the suites a run executes.
var allSuites = []func() hapisim.Suite{
	crypto.Suite,
}

// runSuites runs all suites matching the test pattern and returns the number of
// failed tests.
func runSuites(ctx context.Context, cfg *config.Config, junitFile string) (int, error) {
	conn, err := openNode(ctx, &cfg.Node)
	if err != nil {
		return 0, err
	}
	defer conn.close()

	tm := libhapi.NewTestManager(libhapi.SimEnv{
		LogDir:    cfg.ResultsRoot,
		TestLimit: cfg.TestLimit,
		Node:      conn.info,
	})
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	server := &http.Server{Handler: tm.API(), ReadHeaderTimeout: 10 * time.Second}
	go server.Serve(l)
	defer server.Close()
	log15.Debug("simulation API started", "url", "http://"+l.Addr().String())

	sim := hapisim.NewAt("http://" + l.Addr().String()).
		SetContext(ctx).
		SetNode(conn.Node).
		SetOperator(conn.operator, conn.operatorKey)
	if cfg.TestPattern != "" {
		sim.SetTestPattern(cfg.TestPattern)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Parallel)
	for _, mk := range allSuites {
		suite := mk()
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			log15.Info("running suite", "suite", suite.Name)
			return hapisim.RunSuite(sim, suite)
		})
	}
	runErr := g.Wait()
	if runErr == nil && ctx.Err() != nil {
		runErr = errors.New("simulation interrupted")
	}

	if err := tm.Terminate(); err != nil {
		log15.Error("can't terminate running tests", "error", err)
	}
	results := tm.Results()
	suites := make([]*libhapi.TestSuite, 0, len(results))
	for id := range results {
		suites = append(suites, results[id])
	}
	sortSuites(suites)
	for _, s := range suites {
		log15.Info("suite finished", "suite", s.Name, "tests", len(s.TestCases), "pass", s.Passed())
	}
	if junitFile != "" {
		if err := libhapi.WriteJUnit(suites, junitFile); err != nil {
			return 0, err
		}
	}
	return tm.Failed(), runErr
}

func sortSuites(suites []*libhapi.TestSuite) {
	sort.Slice(suites, func(i, j int) bool { return suites[i].ID < suites[j].ID })
}
