package session

import "github.com/ytwritergod/archivetoziptest/types"

// Event is an input to Step.
type Event interface{ event() }

// Start opens the conversation.
type Start struct{}

// UploadBegin reserves a slot for a file that is about to be downloaded.
type UploadBegin struct{}

// UploadEnd records a file that finished staging.
type UploadEnd struct{ File types.StagedFile }

// UploadFailed releases the slot of a download that did not complete.
type UploadFailed struct{}

// Done ends file collection.
type Done struct{}

// FormatChosen carries a format button token.
type FormatChosen struct{ Token string }

// Text is a free-form reply.
type Text struct{ Value string }

func (Start) event()        {}
func (UploadBegin) event()  {}
func (UploadEnd) event()    {}
func (UploadFailed) event() {}
func (Done) event()         {}
func (FormatChosen) event() {}
func (Text) event()         {}

// Effect is an output of Step for the caller to carry out.
type Effect interface{ effect() }

// Prompt selects the inline keyboard attached to a reply.
type Prompt int

const (
	PromptNone Prompt = iota
	// PromptDone offers the button that ends file collection.
	PromptDone
	// PromptFormat offers one button per archive format.
	PromptFormat
)

// Reply is a status message for the user.
type Reply struct {
	Text   string
	Prompt Prompt
}

// Finalize asks for the archive to be built and delivered.
type Finalize struct{ Request Request }

func (Reply) effect()    {}
func (Finalize) effect() {}

// Request describes the archive to build. Password is secret and must not
// be logged.
type Request struct {
	Files    []types.StagedFile
	Format   types.Format
	Password string
	// FileName is the sanitized archive name including the format extension.
	FileName string
}
