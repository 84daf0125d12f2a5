package logger

// ErrorEntry exposes errorEntry for white-box tests.
type ErrorEntry = errorEntry

// Message returns the entry message.
func (e errorEntry) Message() string { return e.message }

// Meta returns the entry metadata.
func (e errorEntry) Meta() map[string]any { return e.metadata }

var (
	CollectErrorEntries = collectErrorEntries
	FormatErrorEntries  = formatErrorEntries
)
