// Package config loads the hapisim run configuration from YAML.
package config

import (
	"bytes"
	"os"

	"github.com/hapisim/hapisim/internal/fakeledger"
	"github.com/hapisim/hapisim/keys"
	"github.com/hapisim/hapisim/ledger"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Node kinds.
const (
	NodeEmbedded = "embedded"
	NodeInProc   = "inproc"
	NodeRPC      = "rpc"
)

// Config is the run configuration.
type Config struct {
	Node        Node   `yaml:"node"`
	ResultsRoot string `yaml:"resultsRoot"`
	TestPattern string `yaml:"testPattern"`
	TestLimit   int    `yaml:"testLimit"`
	LogLevel    int    `yaml:"logLevel"`
	Parallel    int    `yaml:"parallel"`
}

// Node selects the node suites run against.
type Node struct {
	// Endpoint is a JSON-RPC URL, or one of "embedded" and "inproc".
	Endpoint        string `yaml:"endpoint"`
	Operator        string `yaml:"operator"`
	OperatorKeyFile string `yaml:"operatorKeyFile"`

	// Embedded node settings.
	Fee               int64 `yaml:"fee"`
	StakingPeriodTxns int   `yaml:"stakingPeriodTxns"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Node:        Node{Endpoint: NodeEmbedded},
		ResultsRoot: "workspace/logs",
		LogLevel:    3,
		Parallel:    1,
	}
}

// Load reads a YAML file over the defaults. Unknown fields are an error.
func Load(file string) (*Config, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, err
	}
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, errors.Wrapf(err, "invalid config file %s", file)
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrapf(err, "invalid config file %s", file)
	}
	return cfg, nil
}

// Validate checks the value ranges of the configuration.
func (cfg *Config) Validate() error {
	if cfg.Parallel < 1 {
		return errors.Errorf("parallel must be at least 1, got %d", cfg.Parallel)
	}
	if cfg.LogLevel < 0 || cfg.LogLevel > 5 {
		return errors.Errorf("log level %d out of range [0, 5]", cfg.LogLevel)
	}
	if cfg.TestLimit < 0 {
		return errors.Errorf("negative test limit %d", cfg.TestLimit)
	}
	if cfg.Node.Endpoint == "" {
		return errors.New("node endpoint is empty")
	}
	operator, err := cfg.Node.OperatorID()
	if err != nil {
		return err
	}
	if cfg.Node.OperatorKeyFile != "" {
		if _, err := cfg.Node.OperatorKey(); err != nil {
			return errors.Wrap(err, "invalid operator key")
		}
		// A remote node has no default operator to attach the key to.
		if cfg.Node.Kind() == NodeRPC && operator.IsZero() {
			return errors.New("operator key file set without operator account")
		}
	}
	return nil
}

// Kind returns the node kind of the endpoint.
func (n *Node) Kind() string {
	switch n.Endpoint {
	case NodeEmbedded, NodeInProc:
		return n.Endpoint
	default:
		return NodeRPC
	}
}

// OperatorID returns the configured operator account. It is zero when unset.
func (n *Node) OperatorID() (ledger.AccountID, error) {
	if n.Operator == "" {
		return ledger.AccountID{}, nil
	}
	id, err := ledger.ParseAccountID(n.Operator)
	if err != nil {
		return id, errors.Wrap(err, "invalid operator")
	}
	return id, nil
}

// OperatorKey loads the operator key file. It returns nil when no file is set.
func (n *Node) OperatorKey() (*keys.Pair, error) {
	if n.OperatorKeyFile == "" {
		return nil, nil
	}
	return keys.LoadECDSAFile(n.OperatorKeyFile)
}

// Embedded returns the settings of an embedded node.
func (n *Node) Embedded() (*fakeledger.Config, error) {
	operator, err := n.OperatorID()
	if err != nil {
		return nil, err
	}
	cfg := &fakeledger.Config{
		Operator:          operator,
		Fee:               n.Fee,
		StakingPeriodTxns: n.StakingPeriodTxns,
	}
	pair, err := n.OperatorKey()
	if err != nil {
		return nil, err
	}
	if pair != nil {
		key := pair.Public()
		cfg.OperatorKey = &key
	}
	return cfg, nil
}
