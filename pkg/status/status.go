// Package status defines the canonical delivery outcome shared by every
// provider dispatcher. Each provider maps its own raw reply (HTTP status,
// reason string, binary status byte, XML result code) onto this enumeration
// so callers can apply one retry/removal policy across all gateways.
package status

// Status is the canonical per-endpoint delivery outcome.
type Status int

const (
	// Unknown means the provider reply could not be interpreted.
	Unknown Status = iota
	// Success means the provider accepted the notification for this endpoint.
	Success
	// Error means a permanent, non-endpoint failure (bad certificate,
	// blocked topic, rejected auth). Retrying the same send will not help.
	Error
	// InvalidEndpoint means the endpoint identifier itself was rejected.
	// The caller should drop it from future sends.
	InvalidEndpoint
	// TemporaryError means the provider or the transport failed transiently
	// (rate limit, processing error, timeout). The send may be retried.
	TemporaryError
	// FeedbackDeleted means the provider explicitly reported that the device
	// registration no longer exists and must be forgotten. Distinct from
	// InvalidEndpoint: the registration should be deleted, not re-tried.
	FeedbackDeleted
)

var names = map[Status]string{
	Unknown:         "unknown",
	Success:         "success",
	Error:           "error",
	InvalidEndpoint: "invalid-endpoint",
	TemporaryError:  "temporary-error",
	FeedbackDeleted: "feedback-deleted",
}

func (s Status) String() string {
	if n, ok := names[s]; ok {
		return n
	}
	return "unknown"
}
