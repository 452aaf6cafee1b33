package telegram

import (
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/ytwritergod/archivetoziptest/transport"
)

// Kind is what an update asks the bot to do.
type Kind int

const (
	KindIgnore Kind = iota
	KindStart
	KindDone
	KindCancel
	KindFormat
	KindText
	KindFile
)

var kindNames = map[Kind]string{
	KindIgnore: "ignore",
	KindStart:  "start",
	KindDone:   "done",
	KindCancel: "cancel",
	KindFormat: "format",
	KindText:   "text",
	KindFile:   "file",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// FileRef points at a file held by Telegram.
type FileRef struct {
	ID   string
	Name string
	Size int64
}

// Inbound is an update reduced to what the dispatcher needs.
type Inbound struct {
	Kind   Kind
	UserID int64
	// Text is the message text (KindText) or callback token (KindFormat).
	Text string
	File *FileRef
	// CallbackID is set when the update came from an inline button and
	// must be answered.
	CallbackID string
	// Shortcut marks a typed /zip or /7z, which also closes the file set.
	Shortcut bool
}

// Classify maps an update to an Inbound. Updates without a sender, group
// traffic and unknown commands are KindIgnore.
func Classify(u tgbotapi.Update) Inbound {
	if q := u.CallbackQuery; q != nil {
		return classifyCallback(q)
	}
	m := u.Message
	if m == nil || m.From == nil {
		return Inbound{Kind: KindIgnore}
	}
	if m.Chat != nil && !m.Chat.IsPrivate() {
		return Inbound{Kind: KindIgnore, UserID: m.From.ID}
	}
	in := Inbound{UserID: m.From.ID}

	if m.IsCommand() {
		switch strings.ToLower(m.Command()) {
		case transport.CommandStart:
			in.Kind = KindStart
		case transport.CommandDone:
			in.Kind = KindDone
		case transport.CommandCancel:
			in.Kind = KindCancel
		case transport.CommandNoPassword:
			in.Kind, in.Text = KindText, transport.CommandNoPassword
		case transport.CallbackZip, transport.CallbackSevenZip:
			in.Kind, in.Text, in.Shortcut = KindFormat, strings.ToLower(m.Command()), true
		default:
			in.Kind = KindIgnore
		}
		return in
	}

	if f := fileOf(m); f != nil {
		in.Kind, in.File = KindFile, f
		return in
	}
	if m.Text != "" {
		in.Kind, in.Text = KindText, m.Text
		return in
	}
	in.Kind = KindIgnore
	return in
}

func classifyCallback(q *tgbotapi.CallbackQuery) Inbound {
	if q.From == nil {
		return Inbound{Kind: KindIgnore, CallbackID: q.ID}
	}
	in := Inbound{UserID: q.From.ID, CallbackID: q.ID}
	switch q.Data {
	case transport.CallbackDone:
		in.Kind = KindDone
	case transport.CallbackZip, transport.CallbackSevenZip:
		in.Kind, in.Text = KindFormat, q.Data
	default:
		in.Kind = KindIgnore
	}
	return in
}

// fileOf picks the attachment of a message. Media without a file name get
// one derived from the unique file ID.
func fileOf(m *tgbotapi.Message) *FileRef {
	switch {
	case m.Document != nil:
		d := m.Document
		return &FileRef{ID: d.FileID, Name: orDefault(d.FileName, "document_"+d.FileUniqueID), Size: int64(d.FileSize)}
	case len(m.Photo) > 0:
		// Sizes are ordered smallest first.
		p := m.Photo[len(m.Photo)-1]
		return &FileRef{ID: p.FileID, Name: "photo_" + p.FileUniqueID + ".jpg", Size: int64(p.FileSize)}
	case m.Video != nil:
		v := m.Video
		return &FileRef{ID: v.FileID, Name: orDefault(v.FileName, "video_"+v.FileUniqueID+".mp4"), Size: int64(v.FileSize)}
	case m.Audio != nil:
		a := m.Audio
		return &FileRef{ID: a.FileID, Name: orDefault(a.FileName, "audio_"+a.FileUniqueID+".mp3"), Size: int64(a.FileSize)}
	case m.Voice != nil:
		v := m.Voice
		return &FileRef{ID: v.FileID, Name: "voice_" + v.FileUniqueID + ".ogg", Size: int64(v.FileSize)}
	}
	return nil
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}

// Markup returns the inline keyboard for kb, or nil for none.
func Markup(kb transport.Keyboard) *tgbotapi.InlineKeyboardMarkup {
	var markup tgbotapi.InlineKeyboardMarkup
	switch kb {
	case transport.KeyboardDone:
		markup = tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✅ Done", transport.CallbackDone),
		))
	case transport.KeyboardFormat:
		markup = tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("ZIP", transport.CallbackZip),
			tgbotapi.NewInlineKeyboardButtonData("7Z", transport.CallbackSevenZip),
		))
	default:
		return nil
	}
	return &markup
}
