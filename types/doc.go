// Package types contains the shared data model of the benchmark harness:
// structured errors, token accounting, and the task/rubric definitions.
//
// This package is a leaf: it imports nothing outside the standard library
// so that every other package can depend on it without cycles.
package types
