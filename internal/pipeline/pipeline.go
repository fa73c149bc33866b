// Package pipeline turns registered downloads into price observations:
// archives expand into per-city documents, documents parse into raw
// rows, rows normalize into observations, and every failure lands in
// the error ledger so a later run can retry it.
package pipeline

import (
	"github.com/agroamigo/sipsa-cli/internal/geo"
	"github.com/agroamigo/sipsa-cli/internal/storage"
	"github.com/agroamigo/sipsa-cli/internal/store"
)

// Pipeline wires the processing stages to their stores. Threads bounds
// the worker pool; Sequential forces one entry at a time regardless.
// DryRun parses everything but persists nothing.
type Pipeline struct {
	Store      store.Store
	Objects    storage.ObjectStore
	Geo        *geo.Matcher
	Threads    int
	Sequential bool
	DryRun     bool
}

// Summary reports one processing run.
type Summary struct {
	Entries      int   `json:"entries"`
	Succeeded    int   `json:"succeeded"`
	Failed       int   `json:"failed"`
	Documents    int   `json:"documents"`
	Observations int64 `json:"observations"`
	Errors       int   `json:"errors"`
}

func (s *Summary) add(o entryResult) {
	s.Entries++
	if o.success {
		s.Succeeded++
	} else {
		s.Failed++
	}
	s.Documents += o.documents
	s.Observations += o.observations
	s.Errors += o.errors
}

type entryResult struct {
	success      bool
	documents    int
	observations int64
	errors       int
}

func (p *Pipeline) workers() int {
	if p.Sequential {
		return 1
	}
	if p.Threads < 1 {
		return 1
	}
	return p.Threads
}
