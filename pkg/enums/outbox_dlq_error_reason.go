package enums

// OutboxDLQErrorReason mirrors outbox_dlq_error_reason_enum: why an event was
// parked instead of retried.
type OutboxDLQErrorReason string

const (
	// OutboxDLQReasonMaxAttempts: publishing failed until the attempt budget
	// ran out.
	OutboxDLQReasonMaxAttempts OutboxDLQErrorReason = "max_attempts"
	// OutboxDLQReasonNonRetryable: the publisher rejected the message for good.
	OutboxDLQReasonNonRetryable OutboxDLQErrorReason = "non_retryable"
	// OutboxDLQReasonInvalidPayload: the stored row did not decode into a
	// known event.
	OutboxDLQReasonInvalidPayload OutboxDLQErrorReason = "invalid_payload"
)

var dlqReasons = newLabelSet("outbox dlq error reason",
	OutboxDLQReasonMaxAttempts, OutboxDLQReasonNonRetryable, OutboxDLQReasonInvalidPayload,
)

func (r OutboxDLQErrorReason) IsValid() bool { return dlqReasons.has(r) }

func ParseOutboxDLQErrorReason(value string) (OutboxDLQErrorReason, error) {
	return dlqReasons.parse(value)
}
