package dynamodb

import (
	"errors"
	"fmt"

	"github.com/aws/smithy-go"
)

// storageError marks DynamoDB failures; throttling and server faults are retryable.
type storageError struct {
	op        string
	err       error
	retryable bool
}

func (e *storageError) Error() string {
	return fmt.Sprintf("dynamodb %s: %v", e.op, e.err)
}

func (e *storageError) Unwrap() error { return e.err }

// RetryableError is consulted by pkg/errors when deciding whether a failure is transient.
func (e *storageError) RetryableError() bool { return e.retryable }

var retryableCodes = map[string]bool{
	"ProvisionedThroughputExceededException": true,
	"ThrottlingException":                    true,
	"RequestLimitExceeded":                   true,
	"InternalServerError":                    true,
	"ServiceUnavailable":                     true,
	"TransactionConflictException":           true,
}

func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	retryable := false
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		retryable = retryableCodes[apiErr.ErrorCode()] || apiErr.ErrorFault() == smithy.FaultServer
	}
	return &storageError{op: op, err: err, retryable: retryable}
}
