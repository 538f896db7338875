package libhapi

import (
	"strconv"
	"time"

	"github.com/hapisim/hapisim/internal/simapi"
)

// TestSuiteID identifies a test suite context.
type TestSuiteID uint32

func (id TestSuiteID) String() string {
	return strconv.Itoa(int(id))
}

// TestID identifies a test case context.
type TestID uint32

func (id TestID) String() string {
	return strconv.Itoa(int(id))
}

// TestSuite is a collection of test cases run in one go.
type TestSuite struct {
	ID          TestSuiteID          `json:"id"`
	Name        string               `json:"name"`
	Description string               `json:"description"`
	Node        *simapi.NodeInfo     `json:"node,omitempty"`
	TestCases   map[TestID]*TestCase `json:"testCases"`
}

// Passed reports whether all test cases of the suite passed.
func (s *TestSuite) Passed() bool {
	for _, tc := range s.TestCases {
		if !tc.SummaryResult.Pass {
			return false
		}
	}
	return true
}

// TestCase represents a single test case in a test suite.
type TestCase struct {
	Name          string     `json:"name"`        // Test case short name.
	Description   string     `json:"description"` // Test case long description.
	Start         time.Time  `json:"start"`
	End           time.Time  `json:"end"`
	SummaryResult TestResult `json:"summaryResult"` // The result of the whole test case.
}

// TestResult represents the result of a test case.
type TestResult struct {
	Pass    bool   `json:"pass"`
	Details string `json:"details"`
}
