// Package config loads and hot-reloads the teleport plugin configuration.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/renameio/v2"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

const (
	DefaultPermissionLevel = 4
	DefaultLocale          = "en"
	DefaultSelectionItem   = "OBSIDIAN"
)

// Config is the content of config.json. Only permissionLevel is written by default; the
// other fields are optional overrides.
type Config struct {
	PermissionLevel int    `json:"permissionLevel"`
	Locale          string `json:"locale,omitempty"`
	SelectionItem   string `json:"selectionItem,omitempty"`
}

func Defaults() Config {
	return Config{
		PermissionLevel: DefaultPermissionLevel,
		Locale:          DefaultLocale,
		SelectionItem:   DefaultSelectionItem,
	}
}

const configSchema = `{
  "type": "object",
  "properties": {
    "permissionLevel": {"type": "integer", "minimum": 0, "maximum": 4},
    "locale": {"type": "string"},
    "selectionItem": {"type": "string", "minLength": 1}
  }
}`

var configSchemaCompiled = jsonschema.MustCompileString("config.schema.json", configSchema)

// Parse decodes config.json. Fields absent from the document keep their defaults.
func Parse(data []byte) (Config, error) {
	cfg := Defaults()
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return cfg, fmt.Errorf("config.json: %w", err)
	}
	if err := configSchemaCompiled.Validate(doc); err != nil {
		return cfg, fmt.Errorf("config.json: %w", err)
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Defaults(), fmt.Errorf("config.json: %w", err)
	}
	if cfg.Locale == "" {
		cfg.Locale = DefaultLocale
	}
	if cfg.SelectionItem == "" {
		cfg.SelectionItem = DefaultSelectionItem
	}
	return cfg, nil
}

// Load reads path. When the file does not exist the defaults are written there and
// returned with created=true.
func Load(path string) (cfg Config, created bool, err error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		cfg = Defaults()
		return cfg, true, Save(path, cfg)
	}
	if err != nil {
		return Defaults(), false, err
	}
	cfg, err = Parse(bytes.TrimSpace(data))
	return cfg, false, err
}

// Save writes the config atomically. Defaults for locale and selection item are omitted so a
// fresh file only carries permissionLevel.
func Save(path string, cfg Config) error {
	out := cfg
	if out.Locale == DefaultLocale {
		out.Locale = ""
	}
	if out.SelectionItem == DefaultSelectionItem {
		out.SelectionItem = ""
	}
	b, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return renameio.WriteFile(path, append(b, '\n'), 0o644)
}

// Holder keeps the active config. Reload swaps it only when the file parses.
type Holder struct {
	mu   sync.RWMutex
	path string
	cur  Config
}

func NewHolder(path string) *Holder {
	return &Holder{path: path, cur: Defaults()}
}

func (h *Holder) Path() string { return h.path }

func (h *Holder) Get() Config {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.cur
}

// Reload reads the file again. On error the previous config stays active.
func (h *Holder) Reload() (created bool, err error) {
	cfg, created, err := Load(h.path)
	if err != nil {
		return created, err
	}
	h.mu.Lock()
	h.cur = cfg
	h.mu.Unlock()
	return created, nil
}
