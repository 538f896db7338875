package rpcnode

import (
	"context"
	"errors"

	"github.com/hapisim/hapisim/ledger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts the requests a node serves.
type Metrics struct {
	calls     *prometheus.CounterVec
	prechecks *prometheus.CounterVec
	statuses  *prometheus.CounterVec
}

// NewMetrics creates the node metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		calls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hapisim",
			Subsystem: "node",
			Name:      "calls_total",
			Help:      "Number of node API calls",
		}, []string{"method"}),
		prechecks: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hapisim",
			Subsystem: "node",
			Name:      "precheck_failures_total",
			Help:      "Number of calls rejected at precheck",
		}, []string{"method", "status"}),
		statuses: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hapisim",
			Subsystem: "node",
			Name:      "receipts_total",
			Help:      "Number of transactions reaching consensus, by receipt status",
		}, []string{"method", "status"}),
	}
}

// Instrument returns a node that records its calls in m.
func Instrument(node ledger.Node, m *Metrics) ledger.Node {
	return &instrumented{node: node, m: m}
}

type instrumented struct {
	node ledger.Node
	m    *Metrics
}

func (n *instrumented) observe(method string, rcpt *ledger.Receipt, err error) {
	n.m.calls.WithLabelValues(method).Inc()
	var pe *ledger.PrecheckError
	if errors.As(err, &pe) {
		n.m.prechecks.WithLabelValues(method, string(pe.Status)).Inc()
	}
	if rcpt != nil {
		n.m.statuses.WithLabelValues(method, string(rcpt.Status)).Inc()
	}
}

func (n *instrumented) CreateAccount(ctx context.Context, req ledger.CreateAccountRequest) (*ledger.Receipt, error) {
	rcpt, err := n.node.CreateAccount(ctx, req)
	n.observe("createAccount", rcpt, err)
	return rcpt, err
}

func (n *instrumented) Transfer(ctx context.Context, req ledger.TransferRequest) (*ledger.Receipt, error) {
	rcpt, err := n.node.Transfer(ctx, req)
	n.observe("transfer", rcpt, err)
	return rcpt, err
}

func (n *instrumented) GetAccountInfo(ctx context.Context, ref ledger.AccountRef) (*ledger.AccountInfo, error) {
	info, err := n.node.GetAccountInfo(ctx, ref)
	n.observe("getAccountInfo", nil, err)
	return info, err
}

func (n *instrumented) GetBalance(ctx context.Context, ref ledger.AccountRef) (int64, error) {
	balance, err := n.node.GetBalance(ctx, ref)
	n.observe("getBalance", nil, err)
	return balance, err
}

func (n *instrumented) GetReceipt(ctx context.Context, id ledger.TxnID) (*ledger.Receipt, error) {
	rcpt, err := n.node.GetReceipt(ctx, id)
	n.observe("getReceipt", nil, err)
	return rcpt, err
}

func (n *instrumented) GetTxnRecord(ctx context.Context, id ledger.TxnID, includeChildren bool) (*ledger.Record, error) {
	rec, err := n.node.GetTxnRecord(ctx, id, includeChildren)
	n.observe("getTxnRecord", nil, err)
	return rec, err
}
