package exchange

import "errors"

// TransientError marks failures worth retrying: network faults, rate limits,
// upstream 5xx.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return "transient exchange error: " + e.Err.Error()
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

func NewTransientError(err error) *TransientError {
	return &TransientError{Err: err}
}

// ClientError marks failures the caller must fix: bad symbol, insufficient
// funds, precision violations. Never retried.
type ClientError struct {
	Err error
}

func (e *ClientError) Error() string {
	return "exchange rejected request: " + e.Err.Error()
}

func (e *ClientError) Unwrap() error {
	return e.Err
}

func NewClientError(err error) *ClientError {
	return &ClientError{Err: err}
}

func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

func IsClient(err error) bool {
	var ce *ClientError
	return errors.As(err, &ce)
}
