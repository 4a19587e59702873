// SPDX-License-Identifier: AGPL-3.0-only
package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"
)

const (
	fileName    = "conversation.json"
	photosDir   = "photos"
	folderStamp = "20060102_150405"
)

var (
	ErrFolderConflict = errors.New("multiple conversation folders match")
	ErrVerifyMismatch = errors.New("saved record count does not match")
)

// Conversation is one friend's archive folder: conversation.json plus a
// photos/ subfolder for downloaded media.
type Conversation struct {
	Dir string
	log zerolog.Logger
}

// Open resolves the folder for friend inside dataDir. No match creates a new
// timestamped folder, one match is reused, several matches mean someone has
// been copying folders around and we refuse to guess.
func Open(dataDir, friend string, log zerolog.Logger) (*Conversation, error) {
	matches, err := filepath.Glob(filepath.Join(dataDir, "conversation_"+friend+"_*"))
	if err != nil {
		return nil, fmt.Errorf("scanning %v: %w", dataDir, err)
	}

	dirs := matches[:0]
	for _, m := range matches {
		if info, err := os.Stat(m); err == nil && info.IsDir() {
			dirs = append(dirs, m)
		}
	}

	var dir string
	switch len(dirs) {
	case 0:
		dir = filepath.Join(dataDir, fmt.Sprintf("conversation_%v_%v", friend, time.Now().Format(folderStamp)))
		log.Info().Str("dir", dir).Msg("creating conversation folder")
	case 1:
		dir = dirs[0]
		log.Info().Str("dir", dir).Msg("reusing conversation folder")
	default:
		return nil, fmt.Errorf("%w: found %v folders for %v in %v", ErrFolderConflict, len(dirs), friend, dataDir)
	}

	if err := os.MkdirAll(filepath.Join(dir, photosDir), 0o755); err != nil {
		return nil, fmt.Errorf("creating %v: %w", dir, err)
	}

	return &Conversation{Dir: dir, log: log}, nil
}

func (c *Conversation) File() string {
	return filepath.Join(c.Dir, fileName)
}

func (c *Conversation) PhotosDir() string {
	return filepath.Join(c.Dir, photosDir)
}

// Load reads the archive, newest first. A missing file is an empty
// conversation, not an error.
func (c *Conversation) Load() ([]Record, error) {
	data, err := os.ReadFile(c.File())
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %v: %w", c.File(), err)
	}

	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("parsing %v: %w", c.File(), err)
	}

	return records, nil
}

// Save prepends newRecords to existing and rewrites the file via a temp file
// and rename, then re-reads it to verify the count survived.
func (c *Conversation) Save(existing, newRecords []Record) error {
	all := make([]Record, 0, len(newRecords)+len(existing))
	all = append(all, newRecords...)
	all = append(all, existing...)

	data, err := json.MarshalIndent(all, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding conversation: %w", err)
	}

	tmp, err := os.CreateTemp(c.Dir, fileName+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), c.File()); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replacing %v: %w", c.File(), err)
	}

	saved, err := c.Load()
	if err != nil {
		return fmt.Errorf("verifying save: %w", err)
	}
	if len(saved) != len(all) {
		return fmt.Errorf("%w: wrote %v, read back %v", ErrVerifyMismatch, len(all), len(saved))
	}

	c.log.Info().Int("new", len(newRecords)).Int("total", len(all)).Msg("conversation saved")
	return nil
}
