// Package remote implements diff-based push/pull synchronization of a depot
// against a second filesystem reachable over a Transport (spec §4.H).
package remote

import "context"

// Transport treats a remote depot as a filesystem reachable via command
// execution plus file put/get (spec §4.H: "Treats the remote as a
// filesystem reachable via command execution + file put/get"). Both
// sshtransport and localtransport implement it.
type Transport interface {
	// Run executes cmd against the transport's current directory and
	// returns its stdout. Only two command forms are required by Push/
	// Pull: "find . -type f" (enumerate files under the current
	// directory) and "mkdir -p <relative path>".
	Run(ctx context.Context, cmd string) (stdout string, err error)
	// Put copies the local file at localPath to remotePath, relative to
	// the transport's current directory.
	Put(ctx context.Context, localPath, remotePath string) error
	// Get copies the remote file at remotePath, relative to the
	// transport's current directory, to localPath.
	Get(ctx context.Context, remotePath, localPath string) error
	// Cd returns a Transport rooted at path relative to the current one.
	Cd(path string) Transport
}
