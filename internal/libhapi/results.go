package libhapi

import (
	"encoding/json"
	"io/fs"
	"path"
	"sort"
	"strings"

	"gopkg.in/inconshreveable/log15.v2"
)

// ReadSuites loads the suite files written into dir, newest first. It reports
// whether all test cases passed.
func ReadSuites(fsys fs.FS, dir string) ([]*TestSuite, bool, error) {
	var (
		suites []*TestSuite
		pass   = true
	)
	err := WalkSuites(fsys, dir, func(suite *TestSuite, _ fs.FileInfo) error {
		suites = append(suites, suite)
		if !suite.Passed() {
			pass = false
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return suites, pass, nil
}

// WalkSuites calls proc for every suite file in dir, newest first. Files that
// aren't suite results are skipped.
func WalkSuites(fsys fs.FS, dir string, proc func(*TestSuite, fs.FileInfo) error) error {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return err
	}
	// Sort by name newest-first.
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() > entries[j].Name()
	})

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		suite, fi := parseSuite(fsys, path.Join(dir, name))
		if suite == nil {
			continue
		}
		if err := proc(suite, fi); err != nil {
			return err
		}
	}
	return nil
}

func parseSuite(fsys fs.FS, file string) (*TestSuite, fs.FileInfo) {
	f, err := fsys.Open(file)
	if err != nil {
		log15.Warn("can't access suite file", "file", file, "error", err)
		return nil, nil
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		log15.Warn("can't access suite file", "file", file, "error", err)
		return nil, nil
	}
	var suite TestSuite
	if err := json.NewDecoder(f).Decode(&suite); err != nil {
		log15.Warn("skipping invalid suite file", "file", file, "error", err)
		return nil, nil
	}
	if suite.Name == "" {
		log15.Warn("skipping suite file without name", "file", file)
		return nil, nil
	}
	return &suite, fi
}
