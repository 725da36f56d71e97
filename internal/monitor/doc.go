// Package monitor owns the lifecycle of station monitoring sessions and the
// captures reported within them. A station has at most one active session
// at any time: creating a new session deactivates the previous one before
// the new one is persisted.
package monitor
