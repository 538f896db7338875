package main

import (
	"encoding/json"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/hapisim/hapisim/internal/libhapi"
	"gopkg.in/inconshreveable/log15.v2"
)

const listLimit = 200 // number of suites reported

type listingEntry struct {
	Name     string    `json:"name"`
	NTests   int       `json:"ntests"`
	Passes   int       `json:"passes"`
	Fails    int       `json:"fails"`
	Node     string    `json:"node,omitempty"` // kind of node the suite ran against
	Start    time.Time `json:"start"`
	FileName string    `json:"fileName"`
	Size     int64     `json:"size"`
}

// writeListing writes one JSON line per suite file in fsys, newest first.
func writeListing(fsys fs.FS, output io.Writer) error {
	var (
		stop = errors.New("stop")
		enc  = json.NewEncoder(output)
		n    int
	)
	err := libhapi.WalkSuites(fsys, ".", func(suite *libhapi.TestSuite, fi fs.FileInfo) error {
		if err := enc.Encode(suiteToEntry(suite, fi)); err != nil {
			return err
		}
		if n++; n >= listLimit {
			return stop
		}
		return nil
	})
	if err == stop {
		return nil
	}
	return err
}

func suiteToEntry(s *libhapi.TestSuite, file fs.FileInfo) listingEntry {
	e := listingEntry{Name: s.Name, FileName: file.Name(), Size: file.Size()}
	if s.Node != nil {
		e.Node = s.Node.Kind
	}
	for _, test := range s.TestCases {
		e.NTests++
		if test.SummaryResult.Pass {
			e.Passes++
		} else {
			e.Fails++
		}
		if e.Start.IsZero() || test.Start.Before(e.Start) {
			e.Start = test.Start
		}
	}
	return e
}

// resultsGC deletes suite files that started before cutoff, keeping at least
// keepMin of the newest suites. Other files in dir are left alone.
func resultsGC(dir string, cutoff time.Time, keepMin int) error {
	var (
		kept    int
		removed []string
	)
	err := libhapi.WalkSuites(os.DirFS(dir), ".", func(suite *libhapi.TestSuite, fi fs.FileInfo) error {
		// Note we rely on getting called in descending time order here.
		if suiteStart(suite).Before(cutoff) && kept >= keepMin {
			removed = append(removed, fi.Name())
			return nil
		}
		kept++
		return nil
	})
	if err != nil {
		return err
	}
	log15.Info("collecting old results", "keep", kept, "remove", len(removed))
	for _, name := range removed {
		if err := os.Remove(filepath.Join(dir, name)); err != nil {
			log15.Warn("can't remove suite file", "file", name, "error", err)
		}
	}
	return nil
}

func suiteStart(suite *libhapi.TestSuite) time.Time {
	var start time.Time
	for _, test := range suite.TestCases {
		if start.IsZero() || test.Start.Before(start) {
			start = test.Start
		}
	}
	return start
}
