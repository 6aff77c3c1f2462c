// Package app defines the runtime contract shared by the cmd/* entrypoints.
package app

// Runner is a long-running process component. Run blocks until the process
// is asked to stop or fails.
type Runner interface {
	Run() error
}
