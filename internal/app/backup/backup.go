// Package backup provides point-in-time backups of the JSON data documents.
package backup

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/arca-org/arca-bot/internal/app/economy"
	"github.com/arca-org/arca-bot/internal/app/raffle"
	"github.com/arca-org/arca-bot/internal/app/voice"
	"github.com/arca-org/arca-bot/internal/infra/jsonstore"
)

// Backup types.
const (
	TypeFull    = "full"
	TypeEconomy = "economy"
	TypeVoice   = "voice"
)

const formatVersion = "1.0"

// Sentinel errors.
var (
	ErrNotFound    = errors.New("backup not found")
	ErrUnknownType = errors.New("unknown backup type")
)

// Metadata describes one backup archive.
type Metadata struct {
	Name        string    `json:"name"`
	Timestamp   time.Time `json:"timestamp"`
	Type        string    `json:"type"`
	Description string    `json:"description"`
	Version     string    `json:"version"`
}

// document is the on-disk backup shape: metadata plus the raw captured files.
type document struct {
	Metadata Metadata                   `json:"metadata"`
	Files    map[string]json.RawMessage `json:"files"`
}

// Manager creates, lists and restores backups under <data>/backups.
type Manager struct {
	js  *jsonstore.Store
	dir string

	now func() time.Time
}

// NewManager creates the backup directory and returns the manager.
func NewManager(js *jsonstore.Store) (*Manager, error) {
	dir := filepath.Join(js.Dir(), "backups")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errors.Wrap(err, "failed to create backup directory")
	}
	return &Manager{js: js, dir: dir, now: time.Now}, nil
}

// filesForType maps a backup type to the documents it captures.
func filesForType(backupType string) ([]string, error) {
	switch backupType {
	case TypeFull:
		return []string{economy.FileName, voice.FileName, raffle.FileName}, nil
	case TypeEconomy:
		return []string{economy.FileName}, nil
	case TypeVoice:
		return []string{voice.FileName}, nil
	default:
		return nil, ErrUnknownType
	}
}

// Create captures the documents for the given type into a new backup.
func (m *Manager) Create(backupType, description string) (Metadata, error) {
	names, err := filesForType(backupType)
	if err != nil {
		return Metadata{}, err
	}

	now := m.now()
	meta := Metadata{
		Name:        "backup_" + backupType + "_" + now.UTC().Format("20060102_150405") + ".json",
		Timestamp:   now,
		Type:        backupType,
		Description: description,
		Version:     formatVersion,
	}

	doc := document{Metadata: meta, Files: make(map[string]json.RawMessage)}
	for _, name := range names {
		data, err := os.ReadFile(m.js.Path(name))
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return Metadata{}, errors.Wrapf(err, "failed to read %s", name)
		}
		doc.Files[name] = json.RawMessage(data)
	}

	out, err := json.MarshalIndent(&doc, "", "  ")
	if err != nil {
		return Metadata{}, errors.Wrap(err, "failed to encode backup")
	}
	if err := os.WriteFile(filepath.Join(m.dir, meta.Name), out, 0644); err != nil {
		return Metadata{}, errors.Wrap(err, "failed to write backup")
	}

	zlog.Info().Msgf("backup created: name=%s type=%s files=%d", meta.Name, backupType, len(doc.Files))
	return meta, nil
}

// List returns all backups, newest first.
func (m *Manager) List() ([]Metadata, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read backup directory")
	}

	var out []Metadata
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		doc, err := m.read(entry.Name())
		if err != nil {
			zlog.Warn().Msgf("skipping unreadable backup: name=%s err=%v", entry.Name(), err)
			continue
		}
		meta := doc.Metadata
		meta.Name = entry.Name()
		out = append(out, meta)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	return out, nil
}

func (m *Manager) read(name string) (document, error) {
	data, err := os.ReadFile(filepath.Join(m.dir, name))
	if err != nil {
		if os.IsNotExist(err) {
			return document{}, ErrNotFound
		}
		return document{}, errors.Wrap(err, "failed to read backup")
	}
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return document{}, errors.Wrap(err, "failed to parse backup")
	}
	return doc, nil
}

// Restore writes a backup's captured documents back over the live data
// files. The current state is backed up first so a bad restore can itself be
// undone.
func (m *Manager) Restore(name string) error {
	doc, err := m.read(name)
	if err != nil {
		return err
	}

	if _, err := m.Create(TypeFull, "automatic backup before restoring "+name); err != nil {
		return errors.Wrap(err, "failed to create pre-restore backup")
	}

	for fileName, data := range doc.Files {
		if err := os.WriteFile(m.js.Path(fileName), data, 0644); err != nil {
			return errors.Wrapf(err, "failed to restore %s", fileName)
		}
	}

	zlog.Info().Msgf("backup restored: name=%s files=%d", name, len(doc.Files))
	return nil
}

// Delete removes one backup.
func (m *Manager) Delete(name string) error {
	err := os.Remove(filepath.Join(m.dir, name))
	if os.IsNotExist(err) {
		return ErrNotFound
	}
	return errors.Wrap(err, "failed to delete backup")
}

// Cleanup keeps the newest keep backups and deletes the rest.
// Returns how many were removed.
func (m *Manager) Cleanup(keep int) (int, error) {
	if keep < 1 {
		keep = 1
	}
	list, err := m.List()
	if err != nil {
		return 0, err
	}
	if len(list) <= keep {
		return 0, nil
	}

	removed := 0
	for _, meta := range list[keep:] {
		if err := m.Delete(meta.Name); err != nil {
			zlog.Error().Msgf("failed to delete old backup: name=%s err=%v", meta.Name, err)
			continue
		}
		removed++
	}
	zlog.Info().Msgf("backup cleanup: kept=%d removed=%d", keep, removed)
	return removed, nil
}
