// Package schedule provides utilities for cron expression handling and deferred execution.
//
// Cron functions parse and validate cron expressions and compute upcoming run times.
// RunAt executes a function asynchronously at a specified time, and Every runs a
// function at each occurrence of a cron expression until its context ends.
package schedule
