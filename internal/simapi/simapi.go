// Package simapi contains definitions of JSON objects used in the simulation API.
package simapi

// TestRequest starts a suite or a test.
type TestRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// NodeInfo describes the ledger node tests run against.
type NodeInfo struct {
	Kind     string `json:"kind"` // "embedded" or "rpc"
	Endpoint string `json:"endpoint,omitempty"`
	Operator string `json:"operator"`
}

type Error struct {
	Error string `json:"error"`
}
