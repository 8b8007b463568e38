// Package types defines the agent's core data structures: the resolved
// Configuration, lifecycle and diagnostic records, and the Task/Result
// pair exchanged with the task executor collaborator.
package types
