package domain

import "fmt"

// ErrorCode identifies one of the closed taxonomy of error kinds defined
// in the system's error handling design: ConfigError, DataError,
// RenderError, ProviderError, StoreError, AuthError.
type ErrorCode string

const (
	ErrCodeConfig   ErrorCode = "CONFIG_ERROR"
	ErrCodeData     ErrorCode = "DATA_ERROR"
	ErrCodeRender   ErrorCode = "RENDER_ERROR"
	ErrCodeProvider ErrorCode = "PROVIDER_ERROR"
	ErrCodeStore    ErrorCode = "STORE_ERROR"
	ErrCodeAuth     ErrorCode = "AUTH_ERROR"
)

// SchedulerError is the single error type used at every package boundary
// in this module. It carries enough structured context to log and to
// decide retryability without string-matching the message.
type SchedulerError struct {
	Code      ErrorCode
	Message   string
	OrgID     string
	BatchID   string
	ContactID string
	Err       error
}

func (e *SchedulerError) Error() string {
	ctx := ""
	if e.BatchID != "" {
		ctx = fmt.Sprintf(" (batch: %s)", e.BatchID)
	} else if e.ContactID != "" {
		ctx = fmt.Sprintf(" (contact: %s)", e.ContactID)
	}
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s%s: %v", e.Code, e.Message, ctx, e.Err)
	}
	return fmt.Sprintf("[%s] %s%s", e.Code, e.Message, ctx)
}

func (e *SchedulerError) Unwrap() error { return e.Err }

func NewConfigError(message string, err error) *SchedulerError {
	return &SchedulerError{Code: ErrCodeConfig, Message: message, Err: err}
}

func NewDataError(contactID, message string, err error) *SchedulerError {
	return &SchedulerError{Code: ErrCodeData, ContactID: contactID, Message: message, Err: err}
}

func NewRenderError(contactID, message string, err error) *SchedulerError {
	return &SchedulerError{Code: ErrCodeRender, ContactID: contactID, Message: message, Err: err}
}

func NewProviderError(contactID, message string, err error) *SchedulerError {
	return &SchedulerError{Code: ErrCodeProvider, ContactID: contactID, Message: message, Err: err}
}

func NewStoreError(orgID, batchID, message string, err error) *SchedulerError {
	return &SchedulerError{Code: ErrCodeStore, OrgID: orgID, BatchID: batchID, Message: message, Err: err}
}

func NewAuthError(message string, err error) *SchedulerError {
	return &SchedulerError{Code: ErrCodeAuth, Message: message, Err: err}
}

// ErrNotFound is returned by the contact lookup external interface when
// an organization or contact id is unknown.
type ErrNotFound struct {
	Kind string
	ID   string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

// MaxReportErrors is the cap on the errors[] list carried by caller-
// visible batch results (executor chunk reports, reconciler pull/push
// reports), per §7.
const MaxReportErrors = 10

// AppendCappedError appends msg to errs unless errs has already reached
// MaxReportErrors, in which case it is dropped silently (the count of
// dropped entries is recoverable from the caller's own per-row counters).
func AppendCappedError(errs []string, msg string) []string {
	if len(errs) >= MaxReportErrors {
		return errs
	}
	return append(errs, msg)
}

// IsCode reports whether err is a *SchedulerError of the given code,
// unwrapping as needed.
func IsCode(err error, code ErrorCode) bool {
	var se *SchedulerError
	for err != nil {
		if e, ok := err.(*SchedulerError); ok {
			se = e
			break
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	return se != nil && se.Code == code
}
