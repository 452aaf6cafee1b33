// Package session holds per-user conversation state.
//
// The state machine is a pure function, Step, over a value type, Data.
// Session serializes Step calls for one user, and Registry owns the set of
// live sessions. Archive construction and delivery are requested through
// the Finalize effect and run elsewhere.
package session

import "github.com/ytwritergod/archivetoziptest/types"

// State is a session's position in the conversation.
type State int

const (
	Idle State = iota
	CollectingFiles
	SelectingFormat
	AwaitingPassword
	AwaitingName
	Finalizing
	Destroyed
)

var stateNames = [...]string{
	Idle:             "idle",
	CollectingFiles:  "collecting_files",
	SelectingFormat:  "selecting_format",
	AwaitingPassword: "awaiting_password",
	AwaitingName:     "awaiting_name",
	Finalizing:       "finalizing",
	Destroyed:        "destroyed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// Terminal reports whether no further input is accepted.
func (s State) Terminal() bool {
	return s == Finalizing || s == Destroyed
}

// Data is everything a session knows about the request being assembled.
type Data struct {
	State State
	// Files in upload order.
	Files []types.StagedFile
	// Pending counts uploads that were accepted but have not finished.
	Pending  int
	Format   types.Format
	Password string
	Name     string
}

// Clone returns a copy that shares nothing mutable with d.
func (d Data) Clone() Data {
	d.Files = append([]types.StagedFile(nil), d.Files...)
	return d
}

// Bytes is the total size of the staged files.
func (d Data) Bytes() int64 {
	var n int64
	for _, f := range d.Files {
		n += f.Size
	}
	return n
}

// Limits bound what a single session may accept.
type Limits struct {
	// MaxFiles caps staged plus in-flight files. Zero means unlimited.
	MaxFiles int
}
