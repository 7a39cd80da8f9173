package signlink

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/google/renameio/v2"
	"github.com/rs/zerolog"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"voxelcraft.ai/signlink/internal/sim/geom"
)

const linksSchema = `{
  "type": "object",
  "propertyNames": {"pattern": "^-?[0-9]+,-?[0-9]+,-?[0-9]+$"},
  "additionalProperties": {
    "type": "object",
    "required": ["x", "y", "z"],
    "properties": {
      "x": {"type": "integer"},
      "y": {"type": "integer"},
      "z": {"type": "integer"}
    }
  }
}`

var linksSchemaCompiled = jsonschema.MustCompileString("teleport_links.schema.json", linksSchema)

// ErrMalformed wraps syntax and schema errors of a link file.
var ErrMalformed = errors.New("signlink: malformed link file")

// DecodeLinks parses and validates the on-disk link format. It does not repair asymmetric
// entries.
func DecodeLinks(data []byte) (*Table, error) {
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if err := linksSchemaCompiled.Validate(doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	var raw map[string]geom.Pos
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return TableFrom(raw), nil
}

// EncodeLinks renders the table in the on-disk format (pretty printed, keys sorted).
func EncodeLinks(t *Table) ([]byte, error) {
	b, err := json.MarshalIndent(t.Snapshot(), "", "  ")
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}

// ReadLinksFile decodes path without rewriting it.
func ReadLinksFile(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return DecodeLinks(bytes.TrimSpace(data))
}

// Store persists a Table to a JSON file.
type Store struct {
	path string
	log  zerolog.Logger
}

func NewStore(path string, logger zerolog.Logger) *Store {
	return &Store{path: path, log: logger}
}

func (s *Store) Path() string { return s.path }

// Load reads the link file. A missing file, a malformed file or one with broken pairs is
// replaced on disk; the returned table is always usable. The error reports only failures
// that left the table empty for another reason (unreadable file) or failed rewrites.
func (s *Store) Load() (*Table, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		t := NewTable()
		if err := s.Save(t); err != nil {
			return t, err
		}
		s.log.Info().Str("event", "signlink.links_created").Str("path", s.path).Msg("new teleport links file created")
		return t, nil
	}
	if err != nil {
		return NewTable(), fmt.Errorf("read %s: %w", s.path, err)
	}

	t, err := DecodeLinks(bytes.TrimSpace(data))
	if err != nil {
		s.log.Warn().Err(err).Str("event", "signlink.links_malformed").Str("path", s.path).Msg("invalid teleport links file; starting empty")
		t = NewTable()
		return t, s.Save(t)
	}
	if dropped := t.Repair(); len(dropped) > 0 {
		s.log.Warn().Strs("keys", dropped).Str("event", "signlink.links_repaired").Msg("dropped unpaired teleport links")
		if err := s.Save(t); err != nil {
			return t, err
		}
	}
	s.log.Info().Int("links", t.Len()).Str("event", "signlink.links_loaded").Msg("teleport links loaded")
	return t, nil
}

// Save writes the table atomically.
func (s *Store) Save(t *Table) error {
	b, err := EncodeLinks(t)
	if err != nil {
		return fmt.Errorf("encode links: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	if err := renameio.WriteFile(s.path, b, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", s.path, err)
	}
	return nil
}
