package hapisim

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"strings"
	"sync"

	"github.com/hapisim/hapisim/bdd"
	"github.com/hapisim/hapisim/internal/simapi"
	"github.com/hapisim/hapisim/ledger"
)

// Suite is the description of a test suite.
type Suite struct {
	Name        string // Name is the unique identifier for the suite [Mandatory]
	Description string // Description of the test suite [Optional]
	Tests       []AnyTest
}

func (s *Suite) request() *simapi.TestRequest {
	return &simapi.TestRequest{Name: s.Name, Description: s.Description}
}

// Add adds a test to the suite.
func (s *Suite) Add(test AnyTest) *Suite {
	s.Tests = append(s.Tests, test)
	return s
}

// AnyTest is a TestSpec or ScenarioSpec.
type AnyTest interface {
	runTest(*Simulation, SuiteID, *Suite) error
}

// Run executes all given test suites.
func Run(host *Simulation, suites ...Suite) error {
	for _, s := range suites {
		if err := RunSuite(host, s); err != nil {
			return err
		}
	}
	return nil
}

// MustRun executes all given test suites, exiting the process if there is a problem
// reaching the simulation API.
func MustRun(host *Simulation, suites ...Suite) {
	for _, s := range suites {
		MustRunSuite(host, s)
	}
}

// RunSuite runs all tests in a suite.
func RunSuite(host *Simulation, suite Suite) error {
	if !host.m.match(suite.Name) {
		if host.ll > 3 {
			fmt.Fprintf(os.Stderr, "skipping suite %q because it doesn't match test pattern %s\n", suite.Name, host.m.source)
		}
		return nil
	}

	suiteID, err := host.StartSuite(suite.request())
	if err != nil {
		return err
	}
	defer host.EndSuite(suiteID)

	for _, test := range suite.Tests {
		if err := test.runTest(host, suiteID, &suite); err != nil {
			return err
		}
	}
	return nil
}

// MustRunSuite runs the given suite, exiting the process if there is a problem reaching
// the simulation API.
func MustRunSuite(host *Simulation, suite Suite) {
	if err := RunSuite(host, suite); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// TestSpec is the description of a test.
//
// The node under test is available through t.Node(). Step sequences can be
// executed with t.Exec:
//
//	reg := bdd.NewRegistry()
//	t.Exec(reg, bdd.NewKey{Name: "alice", Shape: keys.ECDSASecp256k1})
type TestSpec struct {
	Name        string // Name is the unique identifier for the test [Mandatory]
	Description string // Description of the test [Optional]

	// If AlwaysRun is true, the test will run even if Name does not match the test
	// pattern.
	AlwaysRun bool

	// The Run function is invoked when the test executes.
	Run func(*T)
}

// ScenarioSpec is a test made of a single step sequence, executed against the
// node with a fresh registry from T.NewRegistry.
type ScenarioSpec struct {
	Name        string
	Description string
	AlwaysRun   bool
	Steps       []bdd.Step
}

// T is a running test. This is a lot like testing.T, but also provides the node
// under test.
//
// All test log output (via t.Log, t.Logf) goes to the 'details' section of the test report.
type T struct {
	// Test case info.
	Sim     *Simulation
	TestID  TestID
	SuiteID SuiteID
	suite   *Suite
	path    []string
	ctx     context.Context
	mu      sync.Mutex
	result  TestResult
}

// OperatorName is the registry name of the operator account and key.
const OperatorName = "operator"

// Context returns a context that is canceled when the test ends or the
// simulation context is canceled.
func (t *T) Context() context.Context {
	return t.ctx
}

// Node returns the node under test. The test fails immediately if no node is set.
func (t *T) Node() ledger.Node {
	node := t.Sim.Node()
	if node == nil {
		t.Fatal("no node configured for this simulation")
	}
	return node
}

// NewRegistry returns an empty registry, except for the simulation's operator
// account and key which are saved under OperatorName when known.
func (t *T) NewRegistry() *bdd.Registry {
	reg := bdd.NewRegistry()
	id, pair := t.Sim.Operator()
	if !id.IsZero() {
		reg.SaveAccountID(OperatorName, id)
	}
	if pair != nil {
		reg.SaveKey(OperatorName, pair)
	}
	return reg
}

// Exec runs steps against the node, failing the test immediately if any step fails.
func (t *T) Exec(reg *bdd.Registry, steps ...bdd.Step) {
	if err := bdd.NewScenario(testPath(t.path), steps...).Run(t.ctx, t.Node(), reg); err != nil {
		t.Fatalf("%v", err)
	}
}

// Run runs a subtest of this test. It waits for the subtest to complete before continuing.
// The subtest is reported as "parent/name" and selected by the next level of the
// test pattern.
func (t *T) Run(spec TestSpec) {
	test := testSpec{
		suiteID:   t.SuiteID,
		suite:     t.suite,
		path:      append(t.path[:len(t.path):len(t.path)], spec.Name),
		desc:      spec.Description,
		alwaysRun: spec.AlwaysRun,
	}
	runTest(t.Sim, test, spec.Run)
}

// Error is like testing.T.Error.
func (t *T) Error(values ...interface{}) {
	t.Log(values...)
	t.Fail()
}

// Errorf is like testing.T.Errorf.
func (t *T) Errorf(format string, values ...interface{}) {
	t.Logf(format, values...)
	t.Fail()
}

// Fatal is like testing.T.Fatal. It fails the test immediately.
func (t *T) Fatal(values ...interface{}) {
	t.Log(values...)
	t.FailNow()
}

// Fatalf is like testing.T.Fatalf. It fails the test immediately.
func (t *T) Fatalf(format string, values ...interface{}) {
	t.Logf(format, values...)
	t.FailNow()
}

// Logf prints to standard output and adds the message to the test details.
func (t *T) Logf(format string, values ...interface{}) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !strings.HasSuffix(format, "\n") {
		format = format + "\n"
	}
	fmt.Printf(format, values...)
	t.result.Details += fmt.Sprintf(format, values...)
}

// Log prints to standard output and adds the message to the test details.
func (t *T) Log(values ...interface{}) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Println(values...)
	t.result.Details += fmt.Sprintln(values...)
}

// Failed reports whether the test has already failed.
func (t *T) Failed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.result.Pass
}

// Fail signals that the test has failed.
func (t *T) Fail() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.result.Pass = false
}

// FailNow signals that the test has failed and exits the test immediately.
// As with testing.T.FailNow(), this should only be called from the main test goroutine.
func (t *T) FailNow() {
	t.Fail()
	runtime.Goexit()
}

type testSpec struct {
	suiteID   SuiteID
	suite     *Suite
	path      []string
	desc      string
	alwaysRun bool
}

func (spec testSpec) request() *simapi.TestRequest {
	return &simapi.TestRequest{Name: testPath(spec.path), Description: spec.desc}
}

func runTest(host *Simulation, test testSpec, runit func(t *T)) error {
	name := testPath(test.path)
	if !test.alwaysRun && !host.m.match(append([]string{test.suite.Name}, test.path...)...) {
		if host.ll > 3 {
			fmt.Fprintf(os.Stderr, "skipping test %q because it doesn't match test pattern %s\n", name, host.m.source)
		}
		return nil
	}

	// Register test on simulation server and initialize the T.
	parent := host.ctx
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	defer cancel()
	t := &T{
		Sim:     host,
		SuiteID: test.suiteID,
		suite:   test.suite,
		path:    test.path,
		ctx:     ctx,
	}
	testID, err := host.StartTest(test.suiteID, test.request())
	if err != nil {
		return err
	}
	t.TestID = testID
	t.result.Pass = true
	defer func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		host.EndTest(test.suiteID, testID, t.result)
	}()

	// Run the test function.
	done := make(chan struct{})
	go func() {
		defer func() {
			if err := recover(); err != nil {
				buf := make([]byte, 4096)
				i := runtime.Stack(buf, false)
				t.Logf("panic: %v\n\n%s", err, buf[:i])
				t.Fail()
			}
			close(done)
		}()
		runit(t)
	}()
	<-done
	return nil
}

func (spec TestSpec) runTest(host *Simulation, suiteID SuiteID, suite *Suite) error {
	test := testSpec{
		suiteID:   suiteID,
		suite:     suite,
		path:      []string{spec.Name},
		desc:      spec.Description,
		alwaysRun: spec.AlwaysRun,
	}
	return runTest(host, test, spec.Run)
}

func (spec ScenarioSpec) runTest(host *Simulation, suiteID SuiteID, suite *Suite) error {
	test := testSpec{
		suiteID:   suiteID,
		suite:     suite,
		path:      []string{spec.Name},
		desc:      spec.Description,
		alwaysRun: spec.AlwaysRun,
	}
	return runTest(host, test, func(t *T) {
		t.Exec(t.NewRegistry(), spec.Steps...)
	})
}
