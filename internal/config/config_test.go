package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/hapisim/hapisim/keys"
	"github.com/hapisim/hapisim/ledger"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	file := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(file, []byte(content), 0644))
	return file
}

func TestLoad(t *testing.T) {
	file := writeFile(t, "hapisim.yaml", `
node:
  endpoint: http://127.0.0.1:7546
  operator: 0.0.1002
resultsRoot: /tmp/results
testPattern: crypto/hollow
parallel: 4
`)
	cfg, err := Load(file)
	require.NoError(t, err)
	require.Equal(t, "http://127.0.0.1:7546", cfg.Node.Endpoint)
	require.Equal(t, NodeRPC, cfg.Node.Kind())
	require.Equal(t, "/tmp/results", cfg.ResultsRoot)
	require.Equal(t, "crypto/hollow", cfg.TestPattern)
	require.Equal(t, 4, cfg.Parallel)
	// Defaults survive for fields the file omits.
	require.Equal(t, 3, cfg.LogLevel)

	id, err := cfg.Node.OperatorID()
	require.NoError(t, err)
	require.Equal(t, ledger.NewAccountID(1002), id)
}

func TestLoadErrors(t *testing.T) {
	tests := map[string]string{
		"unknown field": "nodes:\n  endpoint: embedded\n",
		"parallel":      "parallel: 0\n",
		"log level":     "logLevel: 9\n",
		"operator":      "node:\n  operator: alice\n",
		"endpoint":      "node:\n  endpoint: \"\"\n",
		"syntax":        "node: [\n",
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeFile(t, "bad.yaml", content))
			require.Error(t, err)
		})
	}
}

func TestEmbedded(t *testing.T) {
	priv, err := crypto.GenerateKey()
	require.NoError(t, err)
	keyFile := writeFile(t, "operator.key", hexutil.Encode(crypto.FromECDSA(priv))+"\n")

	n := Node{Endpoint: NodeEmbedded, Operator: "0.0.2", OperatorKeyFile: keyFile, StakingPeriodTxns: 5}
	cfg, err := n.Embedded()
	require.NoError(t, err)
	require.Equal(t, ledger.NewAccountID(2), cfg.Operator)
	require.Equal(t, 5, cfg.StakingPeriodTxns)
	require.NotNil(t, cfg.OperatorKey)
	require.Equal(t, keys.ECDSASecp256k1, cfg.OperatorKey.Type)
	require.True(t, cfg.OperatorKey.Equal(keys.FromECDSA(priv).Public()))
}

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	require.Equal(t, NodeEmbedded, cfg.Node.Kind())

	key, err := cfg.Node.OperatorKey()
	require.NoError(t, err)
	require.Nil(t, key)
}

func TestValidateOperatorKey(t *testing.T) {
	priv, err := crypto.GenerateKey()
	require.NoError(t, err)
	keyFile := writeFile(t, "operator.key", hexutil.Encode(crypto.FromECDSA(priv)))
	badFile := writeFile(t, "bad.key", "not hex")

	tests := []struct {
		name string
		node Node
		ok   bool
	}{
		{"embedded with key", Node{Endpoint: NodeEmbedded, OperatorKeyFile: keyFile}, true},
		{"rpc with operator and key", Node{Endpoint: "http://127.0.0.1:7546", Operator: "0.0.2", OperatorKeyFile: keyFile}, true},
		{"rpc key without operator", Node{Endpoint: "http://127.0.0.1:7546", OperatorKeyFile: keyFile}, false},
		{"missing file", Node{Endpoint: NodeEmbedded, OperatorKeyFile: filepath.Join(t.TempDir(), "none")}, false},
		{"bad file", Node{Endpoint: NodeInProc, OperatorKeyFile: badFile}, false},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			cfg := Default()
			cfg.Node = test.node
			if err := cfg.Validate(); test.ok {
				require.NoError(t, err)
			} else {
				require.Error(t, err)
			}
		})
	}
}
