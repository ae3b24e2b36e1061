// Package exitcodes defines the standard exit codes used by op-session.
package exitcodes

// Exit code constants used by op-session
// These constants define the exit codes that the application uses to indicate
// various states when it exits:
//
// * Success (0): Used when the session closed with no failed tests
// * TestFailure (1): Used when one or more tests failed
// * RuntimeErr (2): Used for bootstrap, teardown or engine errors
const (
	Success     = 0 // All tests pass
	TestFailure = 1 // Test failures
	RuntimeErr  = 2 // Runtime errors or lifecycle step failures
)
