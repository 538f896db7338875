package libhapi

import (
	"errors"
	"testing"
)

func TestTestManagerLimit(t *testing.T) {
	tm := NewTestManager(SimEnv{TestLimit: 1})
	suite, err := tm.StartTestSuite("s", "")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := tm.StartTest(suite, "a", ""); err != nil {
		t.Fatal(err)
	}
	if _, err := tm.StartTest(suite, "b", ""); !errors.Is(err, ErrTestSuiteLimited) {
		t.Fatalf("got %v, want ErrTestSuiteLimited", err)
	}
}

func TestTestManagerErrors(t *testing.T) {
	tm := NewTestManager(SimEnv{})
	if _, err := tm.StartTest(3, "a", ""); err != ErrNoSuchTestSuite {
		t.Fatalf("StartTest: got %v", err)
	}
	if err := tm.EndTestSuite(3); err != ErrNoSuchTestSuite {
		t.Fatalf("EndTestSuite: got %v", err)
	}
	suite, _ := tm.StartTestSuite("s", "")
	test, _ := tm.StartTest(suite, "a", "")
	if err := tm.EndTest(suite, test, nil); err != ErrNoSummaryResult {
		t.Fatalf("EndTest without result: got %v", err)
	}
	if err := tm.EndTest(suite, test+1, &TestResult{}); err != ErrNoSuchTestCase {
		t.Fatalf("EndTest of unknown test: got %v", err)
	}
}

func TestTestManagerTerminate(t *testing.T) {
	tm := NewTestManager(SimEnv{})
	s1, _ := tm.StartTestSuite("s1", "")
	s2, _ := tm.StartTestSuite("s2", "")
	t1, _ := tm.StartTest(s1, "running", "")
	t2, _ := tm.StartTest(s2, "done", "")
	if err := tm.EndTest(s2, t2, &TestResult{Pass: true}); err != nil {
		t.Fatal(err)
	}

	if err := tm.Terminate(); err != nil {
		t.Fatal(err)
	}
	results := tm.Results()
	if len(results) != 2 {
		t.Fatalf("expected 2 ended suites, got %d", len(results))
	}
	tc := results[s1].TestCases[t1]
	if tc.SummaryResult.Pass || tc.SummaryResult.Details != "Test was terminated by host" {
		t.Fatalf("wrong result of terminated test: %+v", tc.SummaryResult)
	}
	if !results[s2].Passed() {
		t.Fatal("suite s2 should pass")
	}
	if tm.Failed() != 1 {
		t.Fatalf("Failed() = %d, want 1", tm.Failed())
	}
}
