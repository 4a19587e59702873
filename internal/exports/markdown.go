package exports

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/IvanTran-2001/Instagram-Logging/internal/helpers"
	"github.com/IvanTran-2001/Instagram-Logging/internal/stats"
	"github.com/IvanTran-2001/Instagram-Logging/internal/store"
)

const transcriptName = "conversation.md"

// inlineLimit is the content length up to which a text message stays on the
// same line as its header.
const inlineLimit = 60

// Options configure one transcript rendering.
type Options struct {
	// FriendUsername goes into the transcript title and profile link.
	FriendUsername string
	// SelfID is the sender key of the account owner. Messages from anyone
	// else render as blockquotes. Empty means nothing is quoted.
	SelfID string
	// DisplayNames maps sender keys to readable names. Unmapped counterpart
	// senders fall back to FriendUsername, anything else to the raw key.
	DisplayNames map[string]string
	// Location for the rendered timestamps.
	Location *time.Location
}

// RenderMarkdown turns records (stored newest first) into an oldest-first
// Markdown transcript.
func RenderMarkdown(records []store.Record, opts Options) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Chat with %v\n\n", opts.FriendUsername)
	if opts.FriendUsername != "" {
		fmt.Fprintf(&b, "Profile: %v\n\n", helpers.ProfileURL(opts.FriendUsername))
	}

	counts := stats.Collect(records)
	fmt.Fprintf(&b, "**Total:** %v | **Text:** %v | **Media:** %v | **Other:** %v\n\n",
		counts.Total, counts.Text, counts.Media, counts.Other)
	b.WriteString("---\n\n")

	for i := len(records) - 1; i >= 0; i-- {
		renderRecord(&b, records[i], opts)
	}

	return b.String()
}

// WriteTranscript renders records into dir/conversation.md and returns the
// written path.
func WriteTranscript(dir string, records []store.Record, opts Options) (string, error) {
	path := filepath.Join(dir, transcriptName)
	if err := os.WriteFile(path, []byte(RenderMarkdown(records, opts)), 0o644); err != nil {
		return "", fmt.Errorf("writing transcript: %w", err)
	}
	return path, nil
}

// FindLatest returns the most recently modified conversation folder inside
// dataDir.
func FindLatest(dataDir string) (string, error) {
	entries, err := os.ReadDir(dataDir)
	if err != nil {
		return "", fmt.Errorf("reading %v: %w", dataDir, err)
	}

	var latest string
	var latestMod time.Time
	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), "conversation_") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if latest == "" || info.ModTime().After(latestMod) {
			latest = entry.Name()
			latestMod = info.ModTime()
		}
	}

	if latest == "" {
		return "", fmt.Errorf("no conversation folders in %v", dataDir)
	}
	return filepath.Join(dataDir, latest), nil
}

func renderRecord(b *strings.Builder, rec store.Record, opts Options) {
	quoted := opts.SelfID != "" && rec.User != opts.SelfID
	head := fmt.Sprintf("`%v` **%v**", opts.stamp(rec.Timestamp), opts.displayName(rec.User))

	switch rec.Type {
	case store.TypeText:
		content := strings.TrimSpace(rec.Content)
		if content == "" {
			content = "(empty)"
		}
		if utf8.RuneCountInString(content) < inlineLimit && !strings.Contains(content, "\n") {
			writeLine(b, quoted, head+" "+content)
		} else {
			writeLine(b, quoted, head)
			for _, line := range strings.Split(content, "\n") {
				writeLine(b, quoted, line)
			}
		}

	case store.TypePhoto:
		writeLine(b, quoted, head+" 📸 "+baseName(rec.PhotoPath))

	case store.TypeVideo:
		writeLine(b, quoted, head+" 🎬 "+baseName(rec.VideoPath))

	case store.TypeMultiMedia:
		if len(rec.MediaItems) == 0 && rec.Content != "" {
			writeLine(b, quoted, head+" 📸 "+rec.Content)
			break
		}
		writeLine(b, quoted, fmt.Sprintf("%v 📸 %v items:", head, len(rec.MediaItems)))
		for _, item := range rec.MediaItems {
			emoji := "📸"
			if item.Type == "video" {
				emoji = "🎬"
			}
			writeLine(b, quoted, fmt.Sprintf("  %v %v", emoji, baseName(item.Path)))
		}

	case store.TypeAlbum:
		if len(rec.PhotoPaths) == 0 {
			content := rec.Content
			if content == "" {
				content = "[album]"
			}
			writeLine(b, quoted, head+" 📚 "+content)
			break
		}
		writeLine(b, quoted, fmt.Sprintf("%v 📚 Album (%v photos):", head, len(rec.PhotoPaths)))
		for _, path := range rec.PhotoPaths {
			writeLine(b, quoted, "  📸 "+baseName(path))
		}

	case store.TypeSharedAlbum:
		writeLine(b, quoted, fmt.Sprintf("%v 🔗 Shared Album (%v photos):", head, len(rec.PhotoPaths)))
		for _, path := range rec.PhotoPaths {
			writeLine(b, quoted, "  📸 "+baseName(path))
		}

	case store.TypeSharedPhoto:
		writeLine(b, quoted, head+" 🔗 Shared: "+baseName(rec.PhotoPath))

	case store.TypeStoryShare:
		writeLine(b, quoted, head+" 📖 Shared a story")

	case store.TypeFelixShare:
		writeLine(b, quoted, head+" 🎬 Shared a reel")

	case store.TypeVoiceMedia:
		writeLine(b, quoted, head+" 🎤 Voice message")

	case store.TypeAnimatedMedia:
		writeLine(b, quoted, head+" 🎆 GIF/animated media")

	case store.TypeLink:
		content := rec.Content
		if content == "" {
			content = "[link]"
		}
		writeLine(b, quoted, head+" 🔗 "+content)
		if rec.URL != "" {
			writeLine(b, quoted, "  "+rec.URL)
		}

	default:
		content := rec.Content
		if content == "" {
			content = "[" + string(rec.Type) + "]"
		}
		writeLine(b, quoted, head+" "+content)
	}

	b.WriteByte('\n')
}

func writeLine(b *strings.Builder, quoted bool, line string) {
	if quoted {
		b.WriteString("> ")
	}
	b.WriteString(line)
	b.WriteByte('\n')
}

func (o Options) displayName(user string) string {
	if name, ok := o.DisplayNames[user]; ok {
		return name
	}
	if user == "" {
		return "unknown"
	}
	if o.SelfID != "" && user != o.SelfID && o.FriendUsername != "" {
		return o.FriendUsername
	}
	return user
}

// stamp renders a stored timestamp in day-first local form, N/A when it does
// not parse.
func (o Options) stamp(ts string) string {
	if ts == "" {
		return "N/A"
	}
	parsed, err := helpers.ParseTimestamp(ts)
	if err != nil {
		return "N/A"
	}
	if o.Location != nil {
		parsed = parsed.In(o.Location)
	}
	return parsed.Format("02/01/2006 15:04")
}

func baseName(path string) string {
	if path == "" {
		return "unknown"
	}
	return filepath.Base(path)
}
