package main

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/hapisim/hapisim/bdd"
	"github.com/hapisim/hapisim/hapisim"
	"github.com/hapisim/hapisim/internal/config"
	"github.com/hapisim/hapisim/internal/fakeledger"
	"github.com/hapisim/hapisim/internal/libhapi"
	"github.com/hapisim/hapisim/internal/rpcnode"
	"github.com/hapisim/hapisim/keys"
	"github.com/hapisim/hapisim/ledger"
	"github.com/stretchr/testify/require"
)

func TestRunSuites(t *testing.T) {
	for _, endpoint := range []string{config.NodeEmbedded, config.NodeInProc} {
		t.Run(endpoint, func(t *testing.T) {
			dir := t.TempDir()
			cfg := config.Default()
			cfg.Node.Endpoint = endpoint
			cfg.ResultsRoot = dir
			cfg.Parallel = 2
			junit := filepath.Join(dir, "output.xml")

			failed, err := runSuites(context.Background(), cfg, junit)
			require.NoError(t, err)
			require.Zero(t, failed)

			suites, pass, err := libhapi.ReadSuites(os.DirFS(dir), ".")
			require.NoError(t, err)
			require.True(t, pass)
			require.Len(t, suites, len(allSuites))
			require.Equal(t, endpoint, suites[0].Node.Kind)
			require.FileExists(t, junit)
		})
	}
}

func TestRunSuitesPattern(t *testing.T) {
	cfg := config.Default()
	cfg.ResultsRoot = t.TempDir()
	cfg.TestPattern = "crypto/invalid alias"

	failed, err := runSuites(context.Background(), cfg, "")
	require.NoError(t, err)
	require.Zero(t, failed)

	suites, _, err := libhapi.ReadSuites(os.DirFS(cfg.ResultsRoot), ".")
	require.NoError(t, err)
	require.Len(t, suites, 1)
	require.Len(t, suites[0].TestCases, 1)
}

func TestOpenRPCNode(t *testing.T) {
	server, err := rpcnode.NewServer(fakeledger.New(nil))
	require.NoError(t, err)
	defer server.Stop()
	srv := httptest.NewServer(server)
	defer srv.Close()

	cfg := &config.Node{Endpoint: srv.URL, Operator: "0.0.2"}
	conn, err := openNode(context.Background(), cfg)
	require.NoError(t, err)
	defer conn.close()
	require.Equal(t, config.NodeRPC, conn.info.Kind)
	require.Equal(t, "0.0.2", conn.info.Operator)
	require.Equal(t, fakeledger.DefaultOperator, conn.operator)
	require.Nil(t, conn.operatorKey)

	balance, err := conn.GetBalance(context.Background(), ledger.ByID(fakeledger.DefaultOperator))
	require.NoError(t, err)
	require.Equal(t, fakeledger.DefaultOperatorBalance, balance)
}

func TestNodeHandler(t *testing.T) {
	handler, stop, err := nodeHandler(fakeledger.New(nil))
	require.NoError(t, err)
	defer stop()
	srv := httptest.NewServer(handler)
	defer srv.Close()

	conn, err := openNode(context.Background(), &config.Node{Endpoint: srv.URL})
	require.NoError(t, err)
	defer conn.close()
	_, err = conn.GetBalance(context.Background(), ledger.ByID(fakeledger.DefaultOperator))
	require.NoError(t, err)

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), `hapisim_node_calls_total{method="getBalance"} 1`)
}

// operatorSuite checks that scenarios can act as the operator with its key.
func operatorSuite() hapisim.Suite {
	suite := hapisim.Suite{Name: "operator"}
	suite.Add(hapisim.ScenarioSpec{
		Name: "operator signs",
		Steps: []bdd.Step{
			bdd.GetAccountInfo{
				Account: bdd.Named(hapisim.OperatorName),
				Expect:  bdd.AccountWith().Key(hapisim.OperatorName),
			},
			bdd.CreateAccount{Name: "receiver", Balance: 0},
			bdd.Transfer{
				From:     bdd.Named(hapisim.OperatorName),
				To:       bdd.Named("receiver"),
				Amount:   ledger.OneHbar,
				SignedBy: []string{hapisim.OperatorName},
			},
			bdd.GetBalance{Account: bdd.Named("receiver"), Want: ledger.OneHbar},
		},
	})
	return suite
}

func TestRunSuitesOperatorKey(t *testing.T) {
	priv, err := crypto.GenerateKey()
	require.NoError(t, err)
	keyFile := filepath.Join(t.TempDir(), "operator.key")
	require.NoError(t, os.WriteFile(keyFile, []byte(hexutil.Encode(crypto.FromECDSA(priv))), 0600))
	pub := keys.FromECDSA(priv).Public()

	// A remote node holding the same operator key.
	server, err := rpcnode.NewServer(fakeledger.New(&fakeledger.Config{OperatorKey: &pub}))
	require.NoError(t, err)
	defer server.Stop()
	srv := httptest.NewServer(server)
	defer srv.Close()

	saved := allSuites
	defer func() { allSuites = saved }()
	allSuites = []func() hapisim.Suite{operatorSuite}

	nodes := map[string]config.Node{
		"embedded": {Endpoint: config.NodeEmbedded, OperatorKeyFile: keyFile},
		"inproc":   {Endpoint: config.NodeInProc, OperatorKeyFile: keyFile},
		"rpc":      {Endpoint: srv.URL, Operator: "0.0.2", OperatorKeyFile: keyFile},
	}
	for name, node := range nodes {
		t.Run(name, func(t *testing.T) {
			cfg := config.Default()
			cfg.Node = node
			cfg.ResultsRoot = t.TempDir()
			require.NoError(t, cfg.Validate())

			conn, err := openNode(context.Background(), &cfg.Node)
			require.NoError(t, err)
			require.Equal(t, fakeledger.DefaultOperator, conn.operator)
			require.NotNil(t, conn.operatorKey)
			require.True(t, conn.operatorKey.Public().Equal(pub))
			conn.close()

			failed, err := runSuites(context.Background(), cfg, "")
			require.NoError(t, err)
			require.Zero(t, failed)
		})
	}
}
