package models

// FailureReason classifies why a completion call produced no reply.
type FailureReason string

const (
	FailureNetwork   FailureReason = "network-error"
	FailureAuth      FailureReason = "auth-failed"
	FailureQuota     FailureReason = "quota-exceeded"
	FailureBlocked   FailureReason = "blocked"
	FailureMalformed FailureReason = "malformed-response"
	FailureCanceled  FailureReason = "canceled"
	FailureUnknown   FailureReason = "unknown-error"
)

type CompletionFailure struct {
	Reason FailureReason
	Detail string
}

// Completion is the outcome of one round trip to the model: either Text or
// Failure is set, never both.
type Completion struct {
	Text    string
	Failure *CompletionFailure
}

func (c Completion) Failed() bool {
	return c.Failure != nil
}
