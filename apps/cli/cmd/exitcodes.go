package cmd

// Exit codes for the docshots CLI
const (
	// ExitSuccess indicates every screenshot was captured
	ExitSuccess = 0

	// ExitItemFailure indicates one or more items failed to deliver
	ExitItemFailure = 1

	// ExitFixtureError indicates a fixture could not be parsed or was malformed
	ExitFixtureError = 2

	// ExitConfigError indicates a configuration error
	ExitConfigError = 3

	// ExitNetworkError indicates the local server could not be reached
	ExitNetworkError = 4

	// ExitUsageError indicates invalid CLI usage
	ExitUsageError = 64
)
