// Package collector turns terminal test events into session results.
//
// The main components are:
//   - Classify: maps a terminal execution signal to exactly one Outcome and message
//   - SessionState: concurrency-safe, append-only outcome collections for one session
//   - SummaryAggregator: builds one SummaryRecord per leaf test and the final ExecutionSummary
//
// Writers may call into SessionState and SummaryAggregator from any number of
// goroutines. Reads of the outcome collections are only allowed once the session
// has been frozen at teardown.
package collector
