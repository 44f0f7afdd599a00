// Package exitcodes defines the process exit codes of reportoor.
package exitcodes

// Exit codes:
//
// * Success (0): every test passed and no setup or teardown error occurred
// * TestFailure (1): failures, non-test errors, interruptions or no tests
// * RuntimeErr (2): the observer itself failed, e.g. a write after freeze
const (
	Success     = 0 // Run passed
	TestFailure = 1 // Run failed
	RuntimeErr  = 2 // Observer error
)
