package chat

import "errors"

// Sentinel errors forming the user-facing failure taxonomy. Handlers map
// these to reply text; none of them implies partially written state.
var (
	// ErrAccessDenied means the user is not on the allow-list.
	ErrAccessDenied = errors.New("access denied")

	// ErrEmptyInput means the turn text was empty or whitespace-only.
	// Callers treat it as a silent no-op, not a failure.
	ErrEmptyInput = errors.New("empty input")

	// ErrCompletionFailed wraps a provider failure. The dialog and the
	// usage counter are exactly as they were before the call.
	ErrCompletionFailed = errors.New("completion failed")

	// ErrNothingToRetry means the dialog has no completed assistant turn
	// to redo.
	ErrNothingToRetry = errors.New("nothing to retry")

	// ErrTranscriptionEmpty means the audio yielded no usable text.
	ErrTranscriptionEmpty = errors.New("transcription empty")
)
