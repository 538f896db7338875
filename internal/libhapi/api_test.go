package libhapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"testing"

	"github.com/gorilla/mux"
	"github.com/hapisim/hapisim/internal/simapi"
)

func TestRegisterRoutes(t *testing.T) {
	api := &simAPI{tm: NewTestManager(SimEnv{})}
	router := mux.NewRouter()
	api.registerRoutes(router)

	routes := []struct {
		path   string
		method string
	}{
		{"/node", "GET"},
		{"/testsuite", "POST"},
		{"/testsuite/{suite}", "DELETE"},
		{"/testsuite/{suite}/test", "POST"},
		{"/testsuite/{suite}/test/{test}", "POST"},
	}
	for _, route := range routes {
		if !router.Match(&http.Request{Method: route.method, URL: &url.URL{Path: route.path}}, &mux.RouteMatch{}) {
			t.Errorf("Route %s %s not registered", route.method, route.path)
		}
	}
}

func post(t *testing.T, srv *httptest.Server, path string, body interface{}) *http.Response {
	t.Helper()
	enc, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.Post(srv.URL+path, "application/json", bytes.NewReader(enc))
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func decode(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("request failed with status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatal(err)
	}
}

func TestAPISuiteLifecycle(t *testing.T) {
	dir := t.TempDir()
	node := &simapi.NodeInfo{Kind: "embedded", Operator: "0.0.2"}
	tm := NewTestManager(SimEnv{LogDir: dir, Node: node})
	srv := httptest.NewServer(tm.API())
	defer srv.Close()

	var gotNode simapi.NodeInfo
	resp, err := http.Get(srv.URL + "/node")
	if err != nil {
		t.Fatal(err)
	}
	decode(t, resp, &gotNode)
	if gotNode != *node {
		t.Fatalf("wrong node info %+v", gotNode)
	}

	var suiteID TestSuiteID
	decode(t, post(t, srv, "/testsuite", &simapi.TestRequest{Name: "crypto", Description: "accounts"}), &suiteID)

	var testID TestID
	decode(t, post(t, srv, "/testsuite/"+suiteID.String()+"/test", &simapi.TestRequest{Name: "hollow"}), &testID)

	// Ending the suite with a running test fails.
	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/testsuite/"+suiteID.String(), nil)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("ending running suite: status %d", resp.StatusCode)
	}

	var null interface{}
	decode(t, post(t, srv, "/testsuite/"+suiteID.String()+"/test/"+testID.String(), &TestResult{Pass: true, Details: "ok"}), &null)

	req, _ = http.NewRequest(http.MethodDelete, srv.URL+"/testsuite/"+suiteID.String(), nil)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	decode(t, resp, &null)

	results := tm.Results()
	if len(results) != 1 || !results[suiteID].Passed() {
		t.Fatalf("wrong results %+v", results)
	}
	files, _ := filepath.Glob(filepath.Join(dir, "*-crypto.json"))
	if len(files) != 1 {
		t.Fatalf("expected one result file, got %v", files)
	}
	content, err := os.ReadFile(files[0])
	if err != nil {
		t.Fatal(err)
	}
	var written TestSuite
	if err := json.Unmarshal(content, &written); err != nil {
		t.Fatal(err)
	}
	if written.Name != "crypto" || written.Node.Operator != "0.0.2" || len(written.TestCases) != 1 {
		t.Fatalf("wrong suite file content: %s", content)
	}
}

func TestAPIBadRequests(t *testing.T) {
	tm := NewTestManager(SimEnv{})
	srv := httptest.NewServer(tm.API())
	defer srv.Close()

	tests := []struct {
		path string
		body interface{}
	}{
		{"/testsuite", &simapi.TestRequest{}},
		{"/testsuite/7/test", &simapi.TestRequest{Name: "x"}},
		{"/testsuite/abc/test", &simapi.TestRequest{Name: "x"}},
		{"/testsuite/0/test/1", &TestResult{}},
	}
	for _, test := range tests {
		resp := post(t, srv, test.path, test.body)
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("POST %s: status %d, want %d", test.path, resp.StatusCode, http.StatusBadRequest)
		}
	}

	resp, err := http.Get(srv.URL + "/node")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("GET /node without node: status %d", resp.StatusCode)
	}
}
