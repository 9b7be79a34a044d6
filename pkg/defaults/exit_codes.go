package defaults

// Exit codes for the CLI.
const (
	ExitSuccess       = 0 // Clean exit, no findings at or above the fail threshold
	ExitFindings      = 1 // Findings at or above the fail threshold
	ExitUserError     = 2 // Invalid arguments or configuration
	ExitNetworkError  = 3 // Target unreachable
	ExitInternalError = 4 // Unexpected internal error
)
