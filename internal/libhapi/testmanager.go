// Package libhapi collects the results of a test run. It serves the simulation API
// that test suites report to, and writes each finished suite as JSON.
package libhapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/hapisim/hapisim/internal/simapi"
	"gopkg.in/inconshreveable/log15.v2"
)

var (
	ErrNoSuchTestSuite  = errors.New("no such test suite")
	ErrNoSuchTestCase   = errors.New("no such test case")
	ErrTestSuiteRunning = errors.New("test suite still has running tests")
	ErrNoSummaryResult  = errors.New("test case must be ended with a summary result")
	ErrTestSuiteLimited = errors.New("testsuite test count is limited")
)

// SimEnv configures a TestManager.
type SimEnv struct {
	// LogDir receives one JSON file per finished suite. Empty disables writing.
	LogDir string

	// TestLimit caps the number of tests per suite. Zero means no limit.
	TestLimit int

	// Node is reported to suites asking which node they run against.
	Node *simapi.NodeInfo
}

// TestManager collects test results during a run.
type TestManager struct {
	config SimEnv

	testCaseMutex     sync.RWMutex
	testSuiteMutex    sync.RWMutex
	runningTestSuites map[TestSuiteID]*TestSuite
	runningTestCases  map[TestID]*TestCase
	testSuiteCounter  uint32
	testCaseCounter   uint32
	results           map[TestSuiteID]*TestSuite
}

func NewTestManager(config SimEnv) *TestManager {
	return &TestManager{
		config:            config,
		runningTestSuites: make(map[TestSuiteID]*TestSuite),
		runningTestCases:  make(map[TestID]*TestCase),
		results:           make(map[TestSuiteID]*TestSuite),
	}
}

// Results returns the results for all suites that have already ended.
func (manager *TestManager) Results() map[TestSuiteID]*TestSuite {
	manager.testSuiteMutex.RLock()
	defer manager.testSuiteMutex.RUnlock()

	// Copy results.
	r := make(map[TestSuiteID]*TestSuite)
	for id, suite := range manager.results {
		r[id] = suite
	}
	return r
}

// Failed returns the number of failed test cases over all ended suites.
func (manager *TestManager) Failed() int {
	manager.testSuiteMutex.RLock()
	defer manager.testSuiteMutex.RUnlock()

	n := 0
	for _, suite := range manager.results {
		for _, tc := range suite.TestCases {
			if !tc.SummaryResult.Pass {
				n++
			}
		}
	}
	return n
}

// API returns the simulation API handler.
func (manager *TestManager) API() http.Handler {
	return newSimulationAPI(manager)
}

// IsTestSuiteRunning checks if the test suite is still running and returns it if so.
func (manager *TestManager) IsTestSuiteRunning(testSuite TestSuiteID) (*TestSuite, bool) {
	manager.testSuiteMutex.RLock()
	defer manager.testSuiteMutex.RUnlock()
	suite, ok := manager.runningTestSuites[testSuite]
	return suite, ok
}

// IsTestRunning checks if the test is still running and returns it if so.
func (manager *TestManager) IsTestRunning(test TestID) (*TestCase, bool) {
	manager.testCaseMutex.RLock()
	defer manager.testCaseMutex.RUnlock()
	testCase, ok := manager.runningTestCases[test]
	return testCase, ok
}

// Terminate forces the termination of any running tests with an error message.
// This can be called as a cleanup method. If there are no running tests, there is
// no effect.
func (manager *TestManager) Terminate() error {
	terminationSummary := &TestResult{
		Pass:    false,
		Details: "Test was terminated by host",
	}
	manager.testSuiteMutex.RLock()
	running := make(map[TestSuiteID]*TestSuite, len(manager.runningTestSuites))
	for id, suite := range manager.runningTestSuites {
		running[id] = suite
	}
	manager.testSuiteMutex.RUnlock()

	for suiteID, suite := range running {
		manager.testCaseMutex.RLock()
		var ids []TestID
		for testID := range suite.TestCases {
			if _, ok := manager.runningTestCases[testID]; ok {
				ids = append(ids, testID)
			}
		}
		manager.testCaseMutex.RUnlock()

		for _, testID := range ids {
			if err := manager.EndTest(suiteID, testID, terminationSummary); err != nil {
				return err
			}
		}
		if err := manager.EndTestSuite(suiteID); err != nil {
			return err
		}
	}
	return nil
}

// StartTestSuite starts a test suite and returns the context id.
func (manager *TestManager) StartTestSuite(name string, description string) (TestSuiteID, error) {
	manager.testSuiteMutex.Lock()
	defer manager.testSuiteMutex.Unlock()

	var newSuiteID = TestSuiteID(manager.testSuiteCounter)
	manager.runningTestSuites[newSuiteID] = &TestSuite{
		ID:          newSuiteID,
		Name:        name,
		Description: description,
		Node:        manager.config.Node,
		TestCases:   make(map[TestID]*TestCase),
	}
	manager.testSuiteCounter++
	return newSuiteID, nil
}

// EndTestSuite ends the test suite by writing the test suite results to the log
// directory and removing the test suite from the running list.
func (manager *TestManager) EndTestSuite(testSuite TestSuiteID) error {
	manager.testSuiteMutex.Lock()
	defer manager.testSuiteMutex.Unlock()

	suite, ok := manager.runningTestSuites[testSuite]
	if !ok {
		return ErrNoSuchTestSuite
	}
	// Check the suite has no running test cases.
	manager.testCaseMutex.RLock()
	for k := range suite.TestCases {
		if _, ok := manager.runningTestCases[k]; ok {
			manager.testCaseMutex.RUnlock()
			return ErrTestSuiteRunning
		}
	}
	manager.testCaseMutex.RUnlock()

	// Write the result.
	if manager.config.LogDir != "" {
		if err := writeSuiteFile(suite, manager.config.LogDir); err != nil {
			return err
		}
	}
	// Move the suite to results.
	delete(manager.runningTestSuites, testSuite)
	manager.results[testSuite] = suite
	return nil
}

// StartTest starts a new test case, returning the testcase id as a context identifier.
func (manager *TestManager) StartTest(testSuiteID TestSuiteID, name string, description string) (TestID, error) {
	manager.testSuiteMutex.RLock()
	testSuite, ok := manager.runningTestSuites[testSuiteID]
	manager.testSuiteMutex.RUnlock()
	if !ok {
		return 0, ErrNoSuchTestSuite
	}

	manager.testCaseMutex.Lock()
	defer manager.testCaseMutex.Unlock()
	// check for a limiter
	if manager.config.TestLimit > 0 && len(testSuite.TestCases) >= manager.config.TestLimit {
		return 0, ErrTestSuiteLimited
	}
	manager.testCaseCounter++
	newTestCase := &TestCase{
		Name:        name,
		Description: description,
		Start:       time.Now(),
	}
	newCaseID := TestID(manager.testCaseCounter)
	testSuite.TestCases[newCaseID] = newTestCase
	manager.runningTestCases[newCaseID] = newTestCase
	return newCaseID, nil
}

// EndTest finishes the test case.
func (manager *TestManager) EndTest(testSuiteID TestSuiteID, testID TestID, summaryResult *TestResult) error {
	manager.testCaseMutex.Lock()
	defer manager.testCaseMutex.Unlock()

	testCase, ok := manager.runningTestCases[testID]
	if !ok {
		return ErrNoSuchTestCase
	}
	if summaryResult == nil {
		return ErrNoSummaryResult
	}
	testCase.End = time.Now()
	testCase.SummaryResult = *summaryResult
	delete(manager.runningTestCases, testID)
	return nil
}

var unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9_.-]+`)

// writeSuiteFile writes the suite as <unix time>-<id>-<name>.json into dir.
func writeSuiteFile(s *TestSuite, dir string) error {
	enc, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	name := fmt.Sprintf("%d-%v-%s.json", time.Now().Unix(), s.ID, unsafeChars.ReplaceAllString(s.Name, "_"))
	file := filepath.Join(dir, name)
	log15.Info("writing suite results", "suite", s.ID, "file", file)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	return os.WriteFile(file, enc, 0644)
}
