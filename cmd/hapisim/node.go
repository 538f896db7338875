package main

import (
	"context"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/rpc"
	"github.com/gorilla/mux"
	"github.com/hapisim/hapisim/internal/config"
	"github.com/hapisim/hapisim/internal/fakeledger"
	"github.com/hapisim/hapisim/internal/rpcnode"
	"github.com/hapisim/hapisim/internal/simapi"
	"github.com/hapisim/hapisim/keys"
	"github.com/hapisim/hapisim/ledger"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gopkg.in/inconshreveable/log15.v2"
)

// nodeConn is an opened node and the operator paying for its transactions.
type nodeConn struct {
	ledger.Node
	info        *simapi.NodeInfo
	operator    ledger.AccountID
	operatorKey *keys.Pair
	close       func()
}

// openNode connects to the node selected by cfg. The operator key file, when
// configured, is loaded in every mode.
func openNode(ctx context.Context, cfg *config.Node) (*nodeConn, error) {
	pair, err := cfg.OperatorKey()
	if err != nil {
		return nil, err
	}
	conn := &nodeConn{
		info:        &simapi.NodeInfo{Kind: cfg.Kind(), Endpoint: cfg.Endpoint},
		operatorKey: pair,
	}
	switch cfg.Kind() {
	case config.NodeEmbedded:
		node, err := newEmbedded(cfg)
		if err != nil {
			return nil, err
		}
		conn.Node, conn.operator, conn.close = node, node.Operator(), func() {}

	case config.NodeInProc:
		node, err := newEmbedded(cfg)
		if err != nil {
			return nil, err
		}
		server, err := rpcnode.NewServer(node)
		if err != nil {
			return nil, err
		}
		client := rpcnode.NewClient(rpc.DialInProc(server))
		conn.Node, conn.operator = client, node.Operator()
		conn.close = func() { client.Close(); server.Stop() }

	default:
		operator, err := cfg.OperatorID()
		if err != nil {
			return nil, err
		}
		client, err := rpcnode.Dial(ctx, cfg.Endpoint)
		if err != nil {
			return nil, errors.Wrapf(err, "can't dial node %s", cfg.Endpoint)
		}
		if !operator.IsZero() {
			client.SetDefaultPayer(operator)
		}
		conn.Node, conn.operator, conn.close = client, operator, client.Close
	}
	if !conn.operator.IsZero() {
		conn.info.Operator = conn.operator.String()
	}
	log15.Info("opened node", "kind", conn.info.Kind, "endpoint", cfg.Endpoint, "operator", conn.info.Operator, "operatorKey", pair != nil)
	return conn, nil
}

func newEmbedded(cfg *config.Node) (*fakeledger.Node, error) {
	ecfg, err := cfg.Embedded()
	if err != nil {
		return nil, err
	}
	node := fakeledger.New(ecfg)
	log15.Info("started embedded node", "operator", node.Operator())
	return node, nil
}

// nodeHandler serves the node API at the root path and its metrics at /metrics.
func nodeHandler(node ledger.Node) (http.Handler, func(), error) {
	reg := prometheus.NewRegistry()
	rpcServer, err := rpcnode.NewServer(rpcnode.Instrument(node, rpcnode.NewMetrics(reg)))
	if err != nil {
		return nil, nil, err
	}
	router := mux.NewRouter()
	router.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{})).Methods("GET")
	router.PathPrefix("/").Handler(rpcServer)
	return router, rpcServer.Stop, nil
}

// serveNode serves an embedded node over HTTP JSON-RPC until ctx is canceled.
func serveNode(ctx context.Context, cfg *config.Node, addr string) error {
	node, err := newEmbedded(cfg)
	if err != nil {
		return err
	}
	handler, stop, err := nodeHandler(node)
	if err != nil {
		return err
	}
	defer stop()

	server := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
	errc := make(chan error, 1)
	go func() { errc <- server.ListenAndServe() }()
	log15.Info("serving node", "addr", addr, "namespace", rpcnode.Namespace)

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		log15.Info("shutting down node server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	}
}
