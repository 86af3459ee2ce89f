package domain

import "strconv"

// ExpectedRevision is the optimistic concurrency precondition of an append.
// NoStream requires that the stream does not exist yet; AtRevision(n) requires
// the stream's last event to sit at revision n. Revisions are 0-based.
type ExpectedRevision struct {
	revision uint64
	exists   bool
}

// NoStream expects the stream to be absent
var NoStream = ExpectedRevision{}

// AtRevision expects the stream's current revision to be r
func AtRevision(r uint64) ExpectedRevision {
	return ExpectedRevision{revision: r, exists: true}
}

// StreamExists reports whether the precondition expects an existing stream
func (e ExpectedRevision) StreamExists() bool { return e.exists }

// Revision is the expected current revision; meaningless for NoStream
func (e ExpectedRevision) Revision() uint64 { return e.revision }

// After returns the stream revision once n more events are appended
func (e ExpectedRevision) After(n int) uint64 {
	if !e.exists {
		return uint64(n) - 1
	}
	return e.revision + uint64(n)
}

func (e ExpectedRevision) String() string {
	if !e.exists {
		return "no-stream"
	}
	return strconv.FormatUint(e.revision, 10)
}

// StreamState is the observed position of a stream
type StreamState struct {
	StreamID string
	Revision uint64
	Exists   bool
}

// Expected turns an observed state into the precondition for the next append
func (s StreamState) Expected() ExpectedRevision {
	if !s.Exists {
		return NoStream
	}
	return AtRevision(s.Revision)
}

// Satisfies reports whether the state meets the precondition
func (s StreamState) Satisfies(e ExpectedRevision) bool {
	if !e.exists {
		return !s.Exists
	}
	return s.Exists && s.Revision == e.revision
}

func (s StreamState) String() string {
	return s.Expected().String()
}
