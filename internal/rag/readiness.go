package rag

import (
	"fmt"
	"sync"

	"github.com/nikhilbhutani/medibot/internal/apperr"
)

// Stage is a point in service startup. Stages only move forward.
type Stage int

const (
	Uninitialized Stage = iota
	IndexReady
	Queryable
)

func (s Stage) String() string {
	switch s {
	case IndexReady:
		return "index-ready"
	case Queryable:
		return "queryable"
	default:
		return "uninitialized"
	}
}

// Readiness tracks startup so ingestion and answering cannot run before the
// index and model handles exist.
type Readiness struct {
	mu    sync.RWMutex
	stage Stage
}

func NewReadiness() *Readiness { return &Readiness{} }

func (r *Readiness) Stage() Stage {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.stage
}

// MarkIndexReady records that the index exists.
func (r *Readiness) MarkIndexReady() { r.advance(IndexReady) }

// MarkQueryable records that the retriever and model are built. The index
// must already be ready.
func (r *Readiness) MarkQueryable() error {
	if err := r.Require(IndexReady); err != nil {
		return err
	}
	r.advance(Queryable)
	return nil
}

func (r *Readiness) advance(to Stage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if to > r.stage {
		r.stage = to
	}
}

// Require fails with apperr.ErrPrecondition while the current stage is
// earlier than want.
func (r *Readiness) Require(want Stage) error {
	cur := r.Stage()
	if cur < want {
		return apperr.Precondition("readiness", fmt.Errorf("service is %s, need %s", cur, want))
	}
	return nil
}
