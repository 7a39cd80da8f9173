// Package lang holds the player-facing strings of the teleport plugin.
//
// The on-disk format is one key=value pair per line. Keys missing from the file fall back to
// the built-in English defaults.
package lang

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/renameio/v2"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
)

const (
	KeySignASelected         = "sign_a_selected"
	KeyTeleportLinkSet       = "teleport_link_set"
	KeyTeleportedTo          = "teleported_to"
	KeyNoPermissionToDestroy = "no_permission_to_destroy"
	KeyErrorAlreadyLinked    = "error_already_linked"
	KeyErrorSameSign         = "error_same_sign"
	KeyLinkBroken            = "link_broken"
	KeyUnknownLocation       = "unknown_location"
	KeyReloaded              = "reloaded"
	KeyLoaded                = "loaded"
)

var defaults = map[string]string{
	KeySignASelected:         "Sign A selected!",
	KeyTeleportLinkSet:       "Teleport link set between A and B!",
	KeyTeleportedTo:          "Teleported to",
	KeyNoPermissionToDestroy: "You don't have permission to destroy this sign!",
	KeyErrorAlreadyLinked:    "Error: One of the signs is already linked!",
	KeyErrorSameSign:         "Error: A sign cannot be linked to itself!",
	KeyLinkBroken:            "The linked sign is gone; link removed.",
	KeyUnknownLocation:       "Unknown location",
	KeyReloaded:              "[TeleportMod] Configuration and language files reloaded.",
	KeyLoaded:                "[Teleport-mod] Loaded",
}

// Table maps string keys to text.
type Table struct {
	strings map[string]string
}

// Defaults returns a table holding the built-in strings.
func Defaults() *Table {
	t := &Table{strings: make(map[string]string, len(defaults))}
	for k, v := range defaults {
		t.strings[k] = v
	}
	return t
}

// Parse reads key=value lines. Blank lines, lines starting with '#' and lines without '=' are
// skipped; key and value are trimmed and the value may itself contain '='.
func Parse(r io.Reader) (*Table, error) {
	t := &Table{strings: map[string]string{}}
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		k, v, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		t.strings[k] = strings.TrimSpace(v)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return t, nil
}

// Load reads path. A missing file is created from Defaults, which are returned with
// created=true.
func Load(path string) (t *Table, created bool, err error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		t = Defaults()
		return t, true, Save(path, t)
	}
	if err != nil {
		return nil, false, err
	}
	t, err = Parse(bytes.NewReader(data))
	if err != nil {
		return nil, false, fmt.Errorf("language.txt: %w", err)
	}
	return t, false, nil
}

// Save writes the table as sorted key=value lines, atomically.
func Save(path string, t *Table) error {
	var buf bytes.Buffer
	for _, k := range t.Keys() {
		buf.WriteString(k)
		buf.WriteByte('=')
		buf.WriteString(t.strings[k])
		buf.WriteByte('\n')
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return renameio.WriteFile(path, buf.Bytes(), 0o644)
}

// Get returns the text for key, then the built-in default, then the key itself.
func (t *Table) Get(key string) string {
	if t != nil {
		if v, ok := t.strings[key]; ok {
			return v
		}
	}
	if v, ok := defaults[key]; ok {
		return v
	}
	return key
}

func (t *Table) Len() int { return len(t.strings) }

func (t *Table) Keys() []string {
	keys := make([]string, 0, len(t.strings))
	for k := range t.strings {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Localizer renders keys through an x/text message catalog built from a Table.
type Localizer struct {
	tag     language.Tag
	printer *message.Printer
}

// NewLocalizer registers every key of t (and every default) under locale. An unparsable
// locale falls back to English and is reported as an error alongside a usable Localizer.
func NewLocalizer(t *Table, locale string) (*Localizer, error) {
	tag, perr := language.Parse(locale)
	if perr != nil {
		tag = language.English
		perr = fmt.Errorf("locale %q: %w", locale, perr)
	}
	b := catalog.NewBuilder(catalog.Fallback(tag))
	keys := map[string]struct{}{}
	for k := range defaults {
		keys[k] = struct{}{}
	}
	if t != nil {
		for k := range t.strings {
			keys[k] = struct{}{}
		}
	}
	for k := range keys {
		// The catalog treats messages as format strings.
		if err := b.SetString(tag, k, strings.ReplaceAll(t.Get(k), "%", "%%")); err != nil {
			return nil, err
		}
	}
	return &Localizer{tag: tag, printer: message.NewPrinter(tag, message.Catalog(b))}, perr
}

func (l *Localizer) Tag() language.Tag { return l.tag }

// T renders key. Unknown keys render as the key.
func (l *Localizer) T(key string) string {
	return l.printer.Sprintf(message.Key(key, strings.ReplaceAll(key, "%", "%%")))
}
