package reconcile

// Diagnostic describes a non-fatal repair the reconciler performed while
// passing over the live document, for delivery through the host's
// diagnostics channel.
type Diagnostic struct {
	// OldID is the duplicated identity that was found.
	OldID string

	// NewID is the freshly minted identity assigned to the second
	// occurrence.
	NewID string

	// Index is the position of the repaired cell at the time of repair.
	Index int

	// Fields names the fields whose content differed from the first
	// occurrence; empty when the duplicate was an identical copy.
	Fields []string
}

// DiagnosticFunc receives reconciler diagnostics. Implementations must not
// mutate the document from within the callback.
type DiagnosticFunc func(Diagnostic)

// Options configures a reconciliation.
type Options struct {
	diagnostics DiagnosticFunc
}

// Option configures a reconciliation.
type Option func(*Options)

// WithDiagnostics routes repair diagnostics to fn.
func WithDiagnostics(fn DiagnosticFunc) Option {
	return func(o *Options) {
		o.diagnostics = fn
	}
}

func buildOptions(opts []Option) *Options {
	o := &Options{}
	for _, opt := range opts {
		opt(o)
	}
	return o
}
