package batch

import "github.com/scrivener-tools/scrivener/internal/remote"

// FailureClass distinguishes failures worth resubmitting from failures baked
// into the submission itself.
type FailureClass int

const (
	// ClassTransient marks infrastructure failures; the job stays active and
	// a later poll re-evaluates it. No automatic resubmission happens here.
	ClassTransient FailureClass = iota

	// ClassPermanent marks failures attributable to the submission; the job
	// and its payload move to quarantine.
	ClassPermanent
)

// String implements fmt.Stringer.
func (c FailureClass) String() string {
	if c == ClassPermanent {
		return "permanent"
	}
	return "transient"
}

// permanentErrorTypes are failure classes the remote API attributes to the
// request itself. Retrying an identical submission cannot succeed.
var permanentErrorTypes = map[string]struct{}{
	"invalid_request_error": {},
	"validation_error":      {},
	"malformed_request":     {},
	"request_too_large":     {},
	"expired":               {},
	"cancelled":             {},
}

// Classify maps the remote API's failure detail to a FailureClass. Unknown
// error types classify as transient so a later poll can re-evaluate them;
// quarantine is reserved for failures known to be unrecoverable.
func Classify(jobErr *remote.JobError) FailureClass {
	if jobErr == nil {
		return ClassTransient
	}
	if _, permanent := permanentErrorTypes[jobErr.Type]; permanent {
		return ClassPermanent
	}
	return ClassTransient
}
