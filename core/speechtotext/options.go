package speechtotext

type TranscriptionOptions struct {
	InterimTranscriptionCallback func(transcript string)
	TranscriptionCallback        func(transcript string)

	ErrorCallback func(err error)
	CloseCallback func()
}

type TranscriptionOption func(*TranscriptionOptions)

// WithTranscriptionCallback registers a callback for finalized transcript
// fragments.
func WithTranscriptionCallback(callback func(transcript string)) TranscriptionOption {
	return func(o *TranscriptionOptions) {
		o.TranscriptionCallback = callback
	}
}

// WithInterimTranscriptionCallback registers a callback for interim
// (still mutable) transcript fragments.
func WithInterimTranscriptionCallback(callback func(transcript string)) TranscriptionOption {
	return func(o *TranscriptionOptions) {
		o.InterimTranscriptionCallback = callback
	}
}

// WithErrorCallback registers a callback invoked when the transcription
// stream fails after being established.
func WithErrorCallback(callback func(err error)) TranscriptionOption {
	return func(o *TranscriptionOptions) {
		o.ErrorCallback = callback
	}
}

// WithCloseCallback registers a callback invoked once the transcription
// stream has terminated, normally or otherwise.
func WithCloseCallback(callback func()) TranscriptionOption {
	return func(o *TranscriptionOptions) {
		o.CloseCallback = callback
	}
}
