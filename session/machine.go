package session

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/ytwritergod/archivetoziptest/types"
)

// NoPassword is the reply that skips archive encryption.
const NoPassword = "none"

const (
	msgStart        = "📁 Send me files to compress. Press Done when finished!"
	msgNoFiles      = "❌ No files yet. Send at least one file first."
	msgChooseFormat = "📦 Choose compression format:"
	msgAskPassword  = "🔒 Enter a password for the archive, or \"none\" for no password:"
	msgAskName      = "✏️ Enter archive name (without extension):"
	msgEmptyName    = "❌ Archive name cannot be empty."
	msgFinalizing   = "⏳ Your archive is already being built."
	msgNoSession    = "No active session. Send /start or a file to begin."
	msgCollecting   = "📁 Still collecting files. Send more or press Done."
	msgUploadLate   = "File ignored: this session is no longer accepting files."
)

// Step applies ev to d. On error d is returned unchanged and the error's
// reason (see types.Reason) is what the user should be told.
func Step(d Data, ev Event, lim Limits) (Data, []Effect, error) {
	if d.State == Destroyed {
		return d, nil, types.InvalidInputError(msgNoSession)
	}
	if d.State == Finalizing {
		return d, nil, types.InvalidInputError(msgFinalizing)
	}

	switch ev := ev.(type) {
	case Start:
		if d.State != Idle {
			return d, nil, types.InvalidInputError(msgCollecting)
		}
		d.State = CollectingFiles
		return d, []Effect{Reply{Text: msgStart, Prompt: PromptDone}}, nil

	case UploadBegin:
		return beginUpload(d, lim)

	case UploadEnd:
		return endUpload(d, ev.File)

	case UploadFailed:
		if d.Pending > 0 {
			d.Pending--
		}
		return d, nil, nil

	case Done:
		return done(d)

	case FormatChosen:
		return chooseFormat(d, ev.Token)

	case Text:
		return text(d, ev.Value)
	}
	return d, nil, fmt.Errorf("session: unknown event %T", ev)
}

func beginUpload(d Data, lim Limits) (Data, []Effect, error) {
	switch d.State {
	case Idle:
		d.State = CollectingFiles
	case CollectingFiles:
	default:
		return d, nil, types.InvalidInputError(msgUploadLate)
	}
	if lim.MaxFiles > 0 && len(d.Files)+d.Pending >= lim.MaxFiles {
		return d, nil, types.ResourceLimitError(
			fmt.Sprintf("🚫 File limit reached (%d files per archive).", lim.MaxFiles))
	}
	d.Pending++
	return d, nil, nil
}

func endUpload(d Data, f types.StagedFile) (Data, []Effect, error) {
	if d.State != CollectingFiles {
		return d, nil, types.InvalidInputError(msgUploadLate)
	}
	for _, existing := range d.Files {
		if existing.Path == f.Path {
			return d, nil, types.InvalidInputError(fmt.Sprintf("%s is already staged.", f.Name))
		}
	}
	if d.Pending > 0 {
		d.Pending--
	}
	d.Files = append(d.Files, f)
	reply := Reply{
		Text: fmt.Sprintf("✅ Saved: %s (%s). Total files: %d",
			f.Name, humanize.IBytes(uint64(f.Size)), len(d.Files)),
		Prompt: PromptDone,
	}
	return d, []Effect{reply}, nil
}

func done(d Data) (Data, []Effect, error) {
	if d.State != CollectingFiles {
		return d, nil, types.InvalidInputError(promptFor(d.State))
	}
	if d.Pending > 0 {
		return d, nil, types.InvalidInputError(
			fmt.Sprintf("⏳ Still receiving %d file(s). Press Done again when they are saved.", d.Pending))
	}
	if len(d.Files) == 0 {
		return d, nil, types.InvalidInputError(msgNoFiles)
	}
	d.State = SelectingFormat
	return d, []Effect{Reply{Text: msgChooseFormat, Prompt: PromptFormat}}, nil
}

func chooseFormat(d Data, token string) (Data, []Effect, error) {
	if d.State != SelectingFormat {
		return d, nil, types.InvalidInputError(promptFor(d.State))
	}
	f, err := types.ParseFormat(token)
	if err != nil {
		return d, nil, types.InvalidInputError(
			fmt.Sprintf("❌ Unsupported format %q. Choose ZIP or 7Z.", strings.TrimSpace(token)))
	}
	d.Format = f
	d.State = AwaitingPassword
	return d, []Effect{Reply{Text: msgAskPassword}}, nil
}

func text(d Data, value string) (Data, []Effect, error) {
	switch d.State {
	case SelectingFormat:
		// A typed format name is as good as a button.
		return chooseFormat(d, value)

	case AwaitingPassword:
		d.Password = parsePassword(value)
		d.State = AwaitingName
		return d, []Effect{Reply{Text: msgAskName}}, nil

	case AwaitingName:
		base := ArchiveBaseName(value, d.Format)
		if base == "" {
			return d, nil, types.InvalidInputError(msgEmptyName)
		}
		d.Name = base
		d.State = Finalizing
		req := Request{
			Files:    append([]types.StagedFile(nil), d.Files...),
			Format:   d.Format,
			Password: d.Password,
			FileName: base + d.Format.Extension(),
		}
		return d, []Effect{Finalize{Request: req}}, nil
	}
	return d, nil, types.InvalidInputError(promptFor(d.State))
}

// parsePassword maps the empty reply and NoPassword to "no password";
// anything else is used verbatim.
func parsePassword(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" || strings.EqualFold(trimmed, NoPassword) {
		return ""
	}
	return value
}

// promptFor is the hint repeated when input does not fit the state.
func promptFor(s State) string {
	switch s {
	case CollectingFiles:
		return msgCollecting
	case SelectingFormat:
		return msgChooseFormat
	case AwaitingPassword:
		return msgAskPassword
	case AwaitingName:
		return msgAskName
	case Finalizing:
		return msgFinalizing
	}
	return msgNoSession
}

// PromptKeyboard is the keyboard that belongs with a state's prompt.
func PromptKeyboard(s State) Prompt {
	switch s {
	case CollectingFiles:
		return PromptDone
	case SelectingFormat:
		return PromptFormat
	}
	return PromptNone
}
