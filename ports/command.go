package ports

import "context"

// Command is one invocation of an external tool
type Command struct {
	Path string
	Args []string
	Dir  string
}

// CommandRunner executes external classifier tools. Implementations honour
// ctx for cancellation only; timeouts belong to the caller.
type CommandRunner interface {
	Run(ctx context.Context, cmd Command) ([]byte, error)
}
