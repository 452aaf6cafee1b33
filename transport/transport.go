// Package transport defines the outbound side of the chat: status text and
// artifact delivery. Implementations live in subpackages.
package transport

import "context"

// Keyboard selects the inline buttons attached to a message.
type Keyboard int

const (
	KeyboardNone Keyboard = iota
	// KeyboardDone carries the button that ends file collection.
	KeyboardDone
	// KeyboardFormat carries one button per archive format.
	KeyboardFormat
)

// Callback data sent back by the keyboard buttons.
const (
	CallbackDone      = "done"
	CallbackZip       = "zip"
	CallbackSevenZip  = "7z"
	CommandStart      = "start"
	CommandDone       = "done"
	CommandCancel     = "cancel"
	CommandNoPassword = "none"
)

// Message is one status text for a user.
type Message struct {
	Text     string
	Keyboard Keyboard
}

// Transport sends messages and files to a user.
type Transport interface {
	// SendText delivers a status message.
	SendText(ctx context.Context, userID int64, msg Message) error
	// DeliverArtifact uploads the file at path with a caption. The file is
	// deleted by the caller afterwards, so implementations must finish
	// reading it before returning.
	DeliverArtifact(ctx context.Context, userID int64, path, caption string) error
}
