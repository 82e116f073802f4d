package pull

// DiagnosticKind classifies a diagnostic entry
type DiagnosticKind string

const (
	KindFetchError   DiagnosticKind = "fetch_error"
	KindOpenError    DiagnosticKind = "open_error"
	KindDecoderError DiagnosticKind = "decoder_error"
	KindDecodeError  DiagnosticKind = "decode_error"
	KindPartialPull  DiagnosticKind = "partial_pull"
	KindMaxTaskTime  DiagnosticKind = "max_task_time"
	KindTimeSpent    DiagnosticKind = "time_spent"
)

// Diagnostic is an operator-facing entry tied to the key it was raised at
type Diagnostic struct {
	Key     Key
	Kind    DiagnosticKind
	Message string
	Err     error
}

// DiagnosticSink receives diagnostics as they are raised. Report must not block the engine for long.
type DiagnosticSink interface {
	Report(d Diagnostic)
}

type DiagnosticSinkFunc func(d Diagnostic)

func (f DiagnosticSinkFunc) Report(d Diagnostic) {
	f(d)
}

// DiscardDiagnostics drops every diagnostic
func DiscardDiagnostics() DiagnosticSink {
	return DiagnosticSinkFunc(func(Diagnostic) {})
}
