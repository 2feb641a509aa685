package analysis

import "errors"

// ErrorKind classifies why a submission produced no analysis.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	// KindMissingInput means no image was supplied. No call is made.
	KindMissingInput
	// KindInvalidImage means the upload could not be decoded. No call is made.
	KindInvalidImage
	// KindServiceFailure covers every failure of the external call.
	KindServiceFailure
	// KindBusy means another analysis holds the in-flight slot.
	KindBusy
)

const (
	MissingImageMessage = "Please upload an image to analyze."
	BusyMessage         = "Another analysis is in progress. Please try again."
)

func (k ErrorKind) String() string {
	switch k {
	case KindMissingInput:
		return "missing_input"
	case KindInvalidImage:
		return "invalid_image"
	case KindServiceFailure:
		return "service_failure"
	case KindBusy:
		return "busy"
	default:
		return "unknown"
	}
}

// Error is the failure value returned for a submission. Message is safe to
// show to the user as-is.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.Err }

func missingInput() *Error {
	return &Error{Kind: KindMissingInput, Message: MissingImageMessage}
}

func busy() *Error {
	return &Error{Kind: KindBusy, Message: BusyMessage}
}

func serviceFailure(err error) *Error {
	return &Error{Kind: KindServiceFailure, Message: err.Error(), Err: err}
}

// InvalidImage wraps a decode failure raised before the gateway is invoked.
func InvalidImage(err error) *Error {
	return &Error{Kind: KindInvalidImage, Message: err.Error(), Err: err}
}

// KindOf reports the kind of err, or KindUnknown when err is not an *Error.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
