// Copyright 2026 The relay Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package relay

// An Event identifies the event type when installing or running a
// Handler. Install event handlers in a Client to extend it with custom
// functionality, for example attempt logging.
type Event int

const (
	// BeforeExecutionStart identifies the event that occurs before the
	// plan execution starts.
	//
	// When Client fires BeforeExecutionStart, the execution is non-nil
	// but the only field that has been set is the plan.
	BeforeExecutionStart Event = iota
	// BeforeAttempt identifies the event that occurs before each
	// individual request attempt during the plan execution.
	//
	// When Client fires BeforeAttempt, the execution's request field
	// is set to the HTTP request that WILL BE sent after all
	// BeforeAttempt handlers have finished.
	//
	// BeforeAttempt handlers may modify the execution's request, but
	// should clone reference-typed fields (URL and Header) before
	// changing them, as these fields initially reference the
	// same-named fields in the plan.
	BeforeAttempt
	// BeforeReadBody identifies the event that occurs after a request
	// attempt has resulted in an HTTP response but before the response
	// body is read and buffered.
	//
	// BeforeReadBody never fires if the attempt ended in error, but
	// always fires if an HTTP response is received, regardless of
	// status code and regardless of whether the response has a body.
	BeforeReadBody
	// AfterAttemptTimeout identifies the event that occurs after a
	// request attempt failed because of a timeout.
	//
	// When Client fires AfterAttemptTimeout, the execution's error
	// field is set to the classified timeout failure, and its attempt
	// timeout counter has been incremented.
	AfterAttemptTimeout
	// AfterAttempt identifies the event that occurs after a request
	// attempt is concluded, successfully or not.
	//
	// AfterAttempt always fires on every request attempt, and runs
	// before the retry policy is consulted for a retry decision.
	AfterAttempt
	// AfterPlanTimeout identifies the event that occurs after a
	// timeout on the request plan level, not just the request attempt
	// level (the deadline on the plan's own context is exceeded). A
	// plan timeout can be detected either at the same time as an
	// attempt timeout, or during the retry wait period.
	//
	// AfterPlanTimeout always occurs after AfterAttempt, even if the
	// plan timeout was detected at the same time as an attempt
	// timeout.
	AfterPlanTimeout
	// AfterExecutionEnd identifies the event that occurs after the
	// plan execution ends.
	AfterExecutionEnd
	// eventSentinel provides the total number of events typed as an
	// Event.
	eventSentinel

	// numEvents provides the total number of events typed as an int.
	numEvents = int(eventSentinel)
)

var eventNames = []string{
	"BeforeExecutionStart",
	"BeforeAttempt",
	"BeforeReadBody",
	"AfterAttemptTimeout",
	"AfterAttempt",
	"AfterPlanTimeout",
	"AfterExecutionEnd",
}

// Events returns a slice containing all events which can occur in a
// request plan execution by Client, in the order in which they would
// occur.
func Events() []Event {
	return []Event{
		BeforeExecutionStart,
		BeforeAttempt,
		BeforeReadBody,
		AfterAttemptTimeout,
		AfterAttempt,
		AfterPlanTimeout,
		AfterExecutionEnd,
	}
}

// Name returns the name of the event.
func (evt Event) Name() string {
	return eventNames[int(evt)]
}

// String returns the name of the event.
func (evt Event) String() string {
	return evt.Name()
}
