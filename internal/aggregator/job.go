// Package aggregator implements the per-HTTP-request Job Aggregator: it
// holds partial results for a (possibly multi-link) inspect request and
// flushes the HTTP response exactly once, when every link is terminal.
package aggregator

import (
	"sync"

	"git.appkode.ru/pub/go/failure"

	"inspectfleet/internal/domain/entity"
)

// Job is one inbound HTTP request. Safe for concurrent use: the Scheduler
// calls SetResponse/SetResponseErr from its dispatch goroutines as their
// work completes.
type Job struct {
	ID       string
	IP       string
	Bulk     bool

	mu      sync.Mutex
	order   []string
	results map[string]*entity.LinkResult
	flushed bool
	onFlush func(j *Job)
}

// New creates an empty Job. onFlush is invoked exactly once, the moment
// the job becomes terminal (every link resolved, errored, or retired).
func New(id, ip string, bulk bool, onFlush func(j *Job)) *Job {
	return &Job{
		ID:      id,
		IP:      ip,
		Bulk:    bulk,
		results: make(map[string]*entity.LinkResult),
		onFlush: onFlush,
	}
}

// Add registers a link as Pending. Links must be added before the Job is
// handed to the Scheduler.
func (j *Job) Add(link entity.InspectLink, price *uint64) {
	j.mu.Lock()
	defer j.mu.Unlock()

	key := link.Key()
	if _, exists := j.results[key]; exists {
		return
	}

	j.order = append(j.order, key)
	j.results[key] = &entity.LinkResult{
		Link:   link,
		Price:  price,
		Status: entity.LinkPending,
	}
}

// GetLink returns the link registered under assetId, if any.
func (j *Job) GetLink(assetID string) (entity.InspectLink, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()

	r, ok := j.results[assetID]
	if !ok {
		return entity.InspectLink{}, false
	}

	return r.Link, true
}

// GetRemainingLinks returns the links still Pending.
func (j *Job) GetRemainingLinks() []entity.InspectLink {
	j.mu.Lock()
	defer j.mu.Unlock()

	links := make([]entity.InspectLink, 0, len(j.order))

	for _, key := range j.order {
		if j.results[key].Status == entity.LinkPending {
			links = append(links, j.results[key].Link)
		}
	}

	return links
}

// RemainingSize reports how many links are still Pending.
func (j *Job) RemainingSize() int {
	j.mu.Lock()
	defer j.mu.Unlock()

	return j.remainingSizeLocked()
}

func (j *Job) remainingSizeLocked() int {
	n := 0

	for _, key := range j.order {
		if j.results[key].Status == entity.LinkPending {
			n++
		}
	}

	return n
}

// SetResponse resolves assetId successfully. If this was the last Pending
// link, the job flushes.
func (j *Job) SetResponse(assetID string, item entity.DecoratedItem) {
	j.mu.Lock()

	if r, ok := j.results[assetID]; ok && r.Status == entity.LinkPending {
		r.Status = entity.LinkOK
		r.Item = item
	}

	j.maybeFlushLocked()
}

// SetResponseErr resolves assetId with an error code.
func (j *Job) SetResponseErr(assetID string, code failure.ErrorCode) {
	j.mu.Lock()

	if r, ok := j.results[assetID]; ok && r.Status == entity.LinkPending {
		r.Status = entity.LinkErr
		r.Err = code
	}

	j.maybeFlushLocked()
}

// SetResponseRemaining fills every still-Pending entry with the same
// error code, for a failure that applies uniformly to the whole job.
func (j *Job) SetResponseRemaining(code failure.ErrorCode) {
	j.mu.Lock()

	for _, key := range j.order {
		if r := j.results[key]; r.Status == entity.LinkPending {
			r.Status = entity.LinkErr
			r.Err = code
		}
	}

	j.maybeFlushLocked()
}

// maybeFlushLocked must be called with mu held; it unlocks before
// invoking onFlush so the callback can itself call back into the Job's
// read-only accessors without deadlocking.
func (j *Job) maybeFlushLocked() {
	terminal := j.remainingSizeLocked() == 0 && !j.flushed

	if terminal {
		j.flushed = true
	}

	j.mu.Unlock()

	if terminal && j.onFlush != nil {
		j.onFlush(j)
	}
}

// Results returns the terminal results in insertion order. Only
// meaningful after the job has flushed.
func (j *Job) Results() []entity.LinkResult {
	j.mu.Lock()
	defer j.mu.Unlock()

	out := make([]entity.LinkResult, 0, len(j.order))
	for _, key := range j.order {
		out = append(out, *j.results[key])
	}

	return out
}
