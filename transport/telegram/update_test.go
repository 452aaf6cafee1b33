package telegram

import (
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/ytwritergod/archivetoziptest/transport"
)

func privateMessage(text string) *tgbotapi.Message {
	return &tgbotapi.Message{
		From: &tgbotapi.User{ID: 42},
		Chat: &tgbotapi.Chat{ID: 42, Type: "private"},
		Text: text,
	}
}

func command(name string) *tgbotapi.Message {
	m := privateMessage("/" + name)
	m.Entities = []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(name) + 1}}
	return m
}

func TestClassify(t *testing.T) {
	doc := privateMessage("")
	doc.Document = &tgbotapi.Document{FileID: "F1", FileUniqueID: "U1", FileName: "report.pdf", FileSize: 1024}

	unnamed := privateMessage("")
	unnamed.Document = &tgbotapi.Document{FileID: "F2", FileUniqueID: "U2"}

	photo := privateMessage("")
	photo.Photo = []tgbotapi.PhotoSize{
		{FileID: "small", FileUniqueID: "s", FileSize: 10},
		{FileID: "large", FileUniqueID: "l", FileSize: 90},
	}

	group := privateMessage("hello")
	group.Chat.Type = "group"

	tests := []struct {
		name     string
		update   tgbotapi.Update
		wantKind Kind
		wantText string
		wantFile *FileRef
	}{
		{name: "start", update: tgbotapi.Update{Message: command("start")}, wantKind: KindStart},
		{name: "done command", update: tgbotapi.Update{Message: command("done")}, wantKind: KindDone},
		{name: "cancel", update: tgbotapi.Update{Message: command("cancel")}, wantKind: KindCancel},
		{name: "none command", update: tgbotapi.Update{Message: command("none")}, wantKind: KindText, wantText: "none"},
		{name: "zip shortcut", update: tgbotapi.Update{Message: command("zip")}, wantKind: KindFormat, wantText: "zip"},
		{name: "7z shortcut", update: tgbotapi.Update{Message: command("7Z")}, wantKind: KindFormat, wantText: "7z"},
		{name: "unknown command", update: tgbotapi.Update{Message: command("help")}, wantKind: KindIgnore},
		{name: "text", update: tgbotapi.Update{Message: privateMessage("my archive")}, wantKind: KindText, wantText: "my archive"},
		{name: "document", update: tgbotapi.Update{Message: doc}, wantKind: KindFile,
			wantFile: &FileRef{ID: "F1", Name: "report.pdf", Size: 1024}},
		{name: "unnamed document", update: tgbotapi.Update{Message: unnamed}, wantKind: KindFile,
			wantFile: &FileRef{ID: "F2", Name: "document_U2"}},
		{name: "photo picks largest", update: tgbotapi.Update{Message: photo}, wantKind: KindFile,
			wantFile: &FileRef{ID: "large", Name: "photo_l.jpg", Size: 90}},
		{name: "group chat", update: tgbotapi.Update{Message: group}, wantKind: KindIgnore},
		{name: "no sender", update: tgbotapi.Update{Message: &tgbotapi.Message{Text: "hi"}}, wantKind: KindIgnore},
		{name: "empty update", update: tgbotapi.Update{}, wantKind: KindIgnore},
		{name: "done button", update: tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
			ID: "cb", From: &tgbotapi.User{ID: 42}, Data: transport.CallbackDone}}, wantKind: KindDone},
		{name: "7z button", update: tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
			ID: "cb", From: &tgbotapi.User{ID: 42}, Data: transport.CallbackSevenZip}}, wantKind: KindFormat, wantText: "7z"},
		{name: "stale button", update: tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
			ID: "cb", From: &tgbotapi.User{ID: 42}, Data: "rar"}}, wantKind: KindIgnore},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.update)
			if got.Kind != tt.wantKind {
				t.Fatalf("Kind = %v, want %v", got.Kind, tt.wantKind)
			}
			if got.Text != tt.wantText {
				t.Errorf("Text = %q, want %q", got.Text, tt.wantText)
			}
			switch {
			case tt.wantFile == nil && got.File != nil:
				t.Errorf("File = %+v, want nil", got.File)
			case tt.wantFile != nil && (got.File == nil || *got.File != *tt.wantFile):
				t.Errorf("File = %+v, want %+v", got.File, tt.wantFile)
			}
			if got.Kind != KindIgnore && got.UserID != 42 {
				t.Errorf("UserID = %d, want 42", got.UserID)
			}
		})
	}
}

func TestClassify_CallbackAlwaysAnswered(t *testing.T) {
	got := Classify(tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{ID: "cb-1", From: &tgbotapi.User{ID: 1}, Data: "junk"}})
	if got.CallbackID != "cb-1" {
		t.Errorf("CallbackID = %q, want cb-1", got.CallbackID)
	}
}

func TestMarkup(t *testing.T) {
	if Markup(transport.KeyboardNone) != nil {
		t.Error("KeyboardNone should have no markup")
	}

	done := Markup(transport.KeyboardDone)
	if done == nil || len(done.InlineKeyboard) != 1 || len(done.InlineKeyboard[0]) != 1 {
		t.Fatalf("done markup = %+v", done)
	}
	if data := done.InlineKeyboard[0][0].CallbackData; data == nil || *data != transport.CallbackDone {
		t.Errorf("done callback = %v", data)
	}

	format := Markup(transport.KeyboardFormat)
	if format == nil || len(format.InlineKeyboard[0]) != 2 {
		t.Fatalf("format markup = %+v", format)
	}
	var tokens []string
	for _, b := range format.InlineKeyboard[0] {
		tokens = append(tokens, *b.CallbackData)
	}
	if tokens[0] != transport.CallbackZip || tokens[1] != transport.CallbackSevenZip {
		t.Errorf("format tokens = %v", tokens)
	}
}
