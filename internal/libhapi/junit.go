package libhapi

import (
	"encoding/xml"
	"fmt"
	"os"
	"sort"
	"time"
)

type junitSuites struct {
	XMLName  xml.Name     `xml:"testsuites"`
	ID       string       `xml:"id,attr"`
	Name     string       `xml:"name,attr"`
	Tests    int          `xml:"tests,attr"`
	Failures int          `xml:"failures,attr"`
	Time     string       `xml:"time,attr"`
	Suites   []junitSuite `xml:"testsuite"`
}

type junitSuite struct {
	Text     string      `xml:",chardata"`
	ID       int         `xml:"id,attr"`
	Name     string      `xml:"name,attr"`
	Tests    int         `xml:"tests,attr"`
	Failures int         `xml:"failures,attr"`
	Time     string      `xml:"time,attr"`
	Cases    []junitCase `xml:"testcase"`
}

type junitCase struct {
	Text    string        `xml:",chardata"`
	ID      int           `xml:"id,attr"`
	Name    string        `xml:"name,attr"`
	Time    string        `xml:"time,attr"`
	Failure *junitFailure `xml:"failure,omitempty"`
}

type junitFailure struct {
	Text    string `xml:",chardata"`
	Message string `xml:"message,attr"`
	Type    string `xml:"type,attr"`
}

// WriteJUnit writes the suites as a JUnit XML report.
func WriteJUnit(suites []*TestSuite, file string) error {
	out := junitSuites{ID: "0", Name: "hapisim run"}
	for i, ts := range suites {
		js := junitSuite{Text: ts.Description, ID: i + 1, Name: ts.Name}
		var total time.Duration

		// Test IDs are assigned in start order.
		ids := make([]TestID, 0, len(ts.TestCases))
		for id := range ts.TestCases {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

		for j, id := range ids {
			tc := ts.TestCases[id]
			d := tc.End.Sub(tc.Start)
			total += d
			jc := junitCase{Text: tc.Description, ID: j + 1, Name: tc.Name, Time: fmt.Sprintf("%v", d.Seconds())}
			if !tc.SummaryResult.Pass {
				js.Failures++
				jc.Failure = &junitFailure{Text: tc.SummaryResult.Details, Message: "Error", Type: "ERROR"}
			}
			js.Cases = append(js.Cases, jc)
		}
		js.Tests = len(js.Cases)
		js.Time = fmt.Sprintf("%v", total.Seconds())
		out.Suites = append(out.Suites, js)
		out.Tests += js.Tests
		out.Failures += js.Failures
	}

	content, err := xml.MarshalIndent(out, "", " ")
	if err != nil {
		return err
	}
	return os.WriteFile(file, append([]byte(xml.Header), content...), 0644)
}
