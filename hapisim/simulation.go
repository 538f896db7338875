package hapisim

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"

	"github.com/hapisim/hapisim/internal/simapi"
	"github.com/hapisim/hapisim/keys"
	"github.com/hapisim/hapisim/ledger"
)

// Simulation wraps the simulation HTTP API and the node that suites run against.
type Simulation struct {
	url  string
	m    namePattern
	ll   int
	ctx  context.Context
	node ledger.Node

	operator    ledger.AccountID
	operatorKey *keys.Pair
}

// New looks up the API endpoint using the HAPISIM_SIMULATOR environment variable
// and connects to it. It will panic if HAPISIM_SIMULATOR is not set.
//
// HAPISIM_TEST_PATTERN and HAPISIM_LOGLEVEL are applied when present.
func New() *Simulation {
	simulator, isSet := os.LookupEnv("HAPISIM_SIMULATOR")
	if !isSet {
		panic("HAPISIM_SIMULATOR environment variable not set")
	}
	sim := NewAt(simulator)
	if p := os.Getenv("HAPISIM_TEST_PATTERN"); p != "" {
		sim.SetTestPattern(p)
	}
	if ll := os.Getenv("HAPISIM_LOGLEVEL"); ll != "" {
		sim.ll, _ = strconv.Atoi(ll)
	}
	return sim
}

// NewAt creates a simulation connected to the given API endpoint.
func NewAt(url string) *Simulation {
	return &Simulation{url: url, ll: 3, ctx: context.Background()}
}

// SetContext sets the parent context of all tests. Canceling it cancels the
// contexts of running tests and with them their pending node calls.
func (sim *Simulation) SetContext(ctx context.Context) *Simulation {
	sim.ctx = ctx
	return sim
}

// SetTestPattern sets the regular expression that selects suites and tests.
// An invalid pattern panics.
func (sim *Simulation) SetTestPattern(p string) {
	m, err := compileNamePattern(p)
	if err != nil {
		panic("invalid test pattern regexp: " + err.Error())
	}
	sim.m = m
}

// TestPattern returns the regular expressions used to enable/disable suites and tests.
func (sim *Simulation) TestPattern() (suiteExpr string, testNameExpr string) {
	return sim.m.level(0), sim.m.level(1)
}

// SetNode sets the node that tests run against.
func (sim *Simulation) SetNode(node ledger.Node) *Simulation {
	sim.node = node
	return sim
}

// Node returns the node that tests run against. It is nil unless SetNode was called.
func (sim *Simulation) Node() ledger.Node {
	return sim.node
}

// SetOperator sets the account paying for the node's transactions by default and
// its key. Registries created by T.NewRegistry hold both under OperatorName.
// pair may be nil when the key is not known.
func (sim *Simulation) SetOperator(id ledger.AccountID, pair *keys.Pair) *Simulation {
	sim.operator = id
	sim.operatorKey = pair
	return sim
}

// Operator returns the values set by SetOperator.
func (sim *Simulation) Operator() (ledger.AccountID, *keys.Pair) {
	return sim.operator, sim.operatorKey
}

// NodeInfo returns the description of the node the results are reported for.
func (sim *Simulation) NodeInfo() (*simapi.NodeInfo, error) {
	resp, err := http.Get(sim.url + "/node")
	if err != nil {
		return nil, err
	}
	var info simapi.NodeInfo
	if err := readResponse(resp, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// StartSuite signals the start of a test suite.
func (sim *Simulation) StartSuite(suite *simapi.TestRequest) (SuiteID, error) {
	var id SuiteID
	err := postJSON(fmt.Sprintf("%s/testsuite", sim.url), suite, &id)
	return id, err
}

// EndSuite signals the end of a test suite.
func (sim *Simulation) EndSuite(testSuite SuiteID) error {
	req, err := http.NewRequest(http.MethodDelete, fmt.Sprintf("%s/testsuite/%d", sim.url, testSuite), nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	return readResponse(resp, nil)
}

// StartTest starts a new test case, returning the testcase id as a context identifier.
func (sim *Simulation) StartTest(testSuite SuiteID, test *simapi.TestRequest) (TestID, error) {
	var id TestID
	err := postJSON(fmt.Sprintf("%s/testsuite/%d/test", sim.url, testSuite), test, &id)
	return id, err
}

// EndTest finishes the test case.
func (sim *Simulation) EndTest(testSuite SuiteID, test TestID, summaryResult TestResult) error {
	// post because the delete http verb does not always support a message body
	return postJSON(fmt.Sprintf("%s/testsuite/%d/test/%d", sim.url, testSuite, test), summaryResult, nil)
}

func postJSON(url string, in, out interface{}) error {
	enc, err := json.Marshal(in)
	if err != nil {
		return err
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(enc))
	if err != nil {
		return err
	}
	return readResponse(resp, out)
}

// readResponse decodes a successful response into out, or turns the API error
// into a Go error.
func readResponse(resp *http.Response, out interface{}) error {
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 300 {
		var apiErr simapi.Error
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("request failed (%d): %s", resp.StatusCode, apiErr.Error)
		}
		return fmt.Errorf("request failed (%d): %s", resp.StatusCode, string(body))
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(body, out)
}
