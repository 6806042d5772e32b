package entity

import "git.appkode.ru/pub/go/failure"

// QueueEntry is one link awaiting dispatch inside the Scheduler's
// priority lanes.
type QueueEntry struct {
	Link           InspectLink
	Priority       int
	IP             string
	MaxAttempts    int
	Attempts       int
	ParentJobID    string
	SubmittedPrice *uint64
}

// LinkStatus is the terminal/pending state of one link inside a Job.
type LinkStatus int

const (
	LinkPending LinkStatus = iota
	LinkOK
	LinkErr
)

// LinkResult is the per-link outcome tracked by the Job Aggregator.
type LinkResult struct {
	Link   InspectLink
	Price  *uint64
	Status LinkStatus
	Item   DecoratedItem
	Err    failure.ErrorCode
}
