// Package signlink links pairs of sign blocks as two-way teleport anchors.
//
// The Plugin binds to the host's block-use, block-break, command and server-started hooks.
// Links are kept in a Table and written to teleport_links.json after every change.
package signlink

import (
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"voxelcraft.ai/signlink/internal/metrics"
	"voxelcraft.ai/signlink/internal/signlink/config"
	"voxelcraft.ai/signlink/internal/signlink/lang"
	"voxelcraft.ai/signlink/internal/sim/geom"
	"voxelcraft.ai/signlink/internal/sim/world"
)

const (
	ConfigFile   = "config.json"
	LanguageFile = "language.txt"
	LinksFile    = "teleport_links.json"

	CommandName = "teleportmod"
)

type Option func(*Plugin)

func WithLogger(l zerolog.Logger) Option {
	return func(p *Plugin) { p.log = l }
}

// WithEventSink adds a sink; may be given more than once.
func WithEventSink(s EventSink) Option {
	return func(p *Plugin) {
		if s != nil {
			p.sinks = append(p.sinks, s)
		}
	}
}

// WithClock overrides time.Now for event timestamps.
func WithClock(now func() time.Time) Option {
	return func(p *Plugin) { p.now = now }
}

// Plugin holds the link table, configuration and strings. Hooks arrive on the world
// goroutine; Reload may also come from the config watcher, so all state sits behind mu.
type Plugin struct {
	dir   string
	log   zerolog.Logger
	sinks []EventSink
	now   func() time.Time

	mu       sync.Mutex
	cfg      *config.Holder
	strings  *lang.Table
	loc      *lang.Localizer
	store    *Store
	links    *Table
	selected map[string]geom.Pos // actor ID -> first sign
}

var _ world.Plugin = (*Plugin)(nil)

// New creates a plugin keeping its files in dir. Call Load before registering it.
func New(dir string, opts ...Option) *Plugin {
	p := &Plugin{
		dir:      dir,
		log:      zerolog.Nop(),
		now:      time.Now,
		cfg:      config.NewHolder(filepath.Join(dir, ConfigFile)),
		strings:  lang.Defaults(),
		links:    NewTable(),
		selected: map[string]geom.Pos{},
	}
	for _, o := range opts {
		o(p)
	}
	p.store = NewStore(filepath.Join(dir, LinksFile), p.log)
	p.loc, _ = lang.NewLocalizer(p.strings, config.DefaultLocale)
	return p
}

func (p *Plugin) Name() string { return "teleportmod" }

func (p *Plugin) Dir() string          { return p.dir }
func (p *Plugin) ConfigPath() string   { return p.cfg.Path() }
func (p *Plugin) LanguagePath() string { return filepath.Join(p.dir, LanguageFile) }
func (p *Plugin) LinksPath() string    { return p.store.Path() }

// Config returns the active configuration.
func (p *Plugin) Config() config.Config { return p.cfg.Get() }

// Load reads config, language and links, creating missing files with defaults. Failures are
// logged and returned; the plugin stays usable with defaults or an empty table.
func (p *Plugin) Load() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	errCfg := p.reloadLocked()

	links, err := p.store.Load()
	if err != nil {
		metrics.RecordFileError("links")
		p.log.Error().Err(err).Str("event", "signlink.links_load_failed").Msg("teleport links load failed")
	}
	p.links = links
	metrics.SetActiveLinks(links.Len())
	return errors.Join(errCfg, err)
}

// Reload re-reads config.json and language.txt. The link table is left alone.
func (p *Plugin) Reload() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	err := p.reloadLocked()
	metrics.RecordReload(err == nil)
	return err
}

func (p *Plugin) reloadLocked() error {
	var errs []error

	created, err := p.cfg.Reload()
	switch {
	case err != nil:
		metrics.RecordFileError("config")
		p.log.Error().Err(err).Str("event", "config.reload_failed").Str("path", p.cfg.Path()).Msg("config reload failed; keeping previous")
		errs = append(errs, err)
	case created:
		p.log.Info().Str("event", "config.created").Str("path", p.cfg.Path()).Msg("default config written")
	}
	cfg := p.cfg.Get()

	strs, created, err := lang.Load(p.LanguagePath())
	switch {
	case err != nil:
		metrics.RecordFileError("language")
		p.log.Error().Err(err).Str("event", "lang.reload_failed").Str("path", p.LanguagePath()).Msg("language reload failed; keeping previous")
		errs = append(errs, err)
	default:
		if created {
			p.log.Info().Str("event", "lang.created").Str("path", p.LanguagePath()).Msg("default language file written")
		}
		p.strings = strs
	}

	loc, err := lang.NewLocalizer(p.strings, cfg.Locale)
	if err != nil {
		p.log.Warn().Err(err).Str("event", "lang.bad_locale").Str("locale", cfg.Locale).Msg("unknown locale; using English")
	}
	if loc != nil {
		p.loc = loc
	}

	p.log.Info().
		Str("event", "signlink.config_loaded").
		Int("permission_level", cfg.PermissionLevel).
		Str("locale", p.loc.Tag().String()).
		Str("selection_item", cfg.SelectionItem).
		Int("strings", p.strings.Len()).
		Msg("teleport config loaded")
	return errors.Join(errs...)
}

// Links lists every link once.
func (p *Plugin) Links() []Pair {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.links.Pairs()
}

// Selected returns the pending first sign of actorID, if any.
func (p *Plugin) Selected(actorID string) (geom.Pos, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	pos, ok := p.selected[actorID]
	return pos, ok
}

func (p *Plugin) HandleServerStarted(lvl world.Level) {
	p.mu.Lock()
	msg := p.loc.T(lang.KeyLoaded)
	n := p.links.Len()
	p.mu.Unlock()

	lvl.Broadcast(msg)
	p.log.Info().Str("event", "signlink.started").Int("links", n).Msg("teleport plugin loaded")
}

func (p *Plugin) HandleLeave(a world.Actor) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.selected, a.ID())
}

func (p *Plugin) HandleUseBlock(a world.Actor, lvl world.Level, pos geom.Pos) world.Result {
	if !world.IsSign(lvl.BlockAt(pos)) {
		return world.ResultPass
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	cfg := p.cfg.Get()
	if a.HasPermissionLevel(cfg.PermissionLevel) && strings.EqualFold(a.MainHandItem(), cfg.SelectionItem) {
		return p.selectLocked(a, pos)
	}

	partner, ok := p.links.Partner(pos)
	if !ok {
		return world.ResultPass
	}
	if !world.IsSign(lvl.BlockAt(partner)) {
		p.links.Unlink(pos)
		p.saveLocked()
		metrics.RecordLinkRemoved("partner_missing")
		p.emit(Event{Kind: EventLinkRemoved, Actor: a.ID(), ActorName: a.Name(), A: pos.ToArray(), B: partner.ToArray(), Reason: "partner_missing"})
		p.log.Warn().Str("event", "signlink.partner_missing").Str("sign", pos.Key()).Str("partner", partner.Key()).Msg("linked sign is gone; link removed")
		a.SendActionBar(p.loc.T(lang.KeyLinkBroken))
		return world.ResultFail
	}

	label, ok := lvl.SignText(pos, 0)
	if !ok || strings.TrimSpace(label) == "" {
		label = p.loc.T(lang.KeyUnknownLocation)
	}
	a.Teleport(partner)
	metrics.RecordTeleport()
	p.emit(Event{Kind: EventTeleport, Actor: a.ID(), ActorName: a.Name(), A: pos.ToArray(), B: partner.ToArray()})
	a.SendActionBar(p.loc.T(lang.KeyTeleportedTo) + " " + label)
	return world.ResultSuccess
}

func (p *Plugin) selectLocked(a world.Actor, pos geom.Pos) world.Result {
	first, pending := p.selected[a.ID()]
	if !pending {
		p.selected[a.ID()] = pos
		a.SendActionBar(p.loc.T(lang.KeySignASelected))
		return world.ResultSuccess
	}
	delete(p.selected, a.ID())

	switch err := p.links.Link(first, pos); {
	case errors.Is(err, ErrAlreadyLinked):
		metrics.RecordSelectionRejected("already_linked")
		a.SendActionBar(p.loc.T(lang.KeyErrorAlreadyLinked))
		return world.ResultFail
	case errors.Is(err, ErrSelfLink):
		metrics.RecordSelectionRejected("same_sign")
		a.SendActionBar(p.loc.T(lang.KeyErrorSameSign))
		return world.ResultFail
	case err != nil:
		return world.ResultFail
	}

	p.saveLocked()
	metrics.RecordLinkCreated()
	p.emit(Event{Kind: EventLinkCreated, Actor: a.ID(), ActorName: a.Name(), A: first.ToArray(), B: pos.ToArray()})
	p.log.Info().Str("event", "signlink.link_created").Str("actor", a.ID()).Str("a", first.Key()).Str("b", pos.Key()).Msg("teleport link created")
	a.SendActionBar(p.loc.T(lang.KeyTeleportLinkSet))
	return world.ResultSuccess
}

func (p *Plugin) HandleBreakBlock(a world.Actor, lvl world.Level, pos geom.Pos) bool {
	if !world.IsSign(lvl.BlockAt(pos)) {
		return true
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.links.Linked(pos) {
		return true
	}
	if !a.HasPermissionLevel(p.cfg.Get().PermissionLevel) {
		metrics.RecordPermissionDenied("break")
		p.emit(Event{Kind: EventDenied, Actor: a.ID(), ActorName: a.Name(), A: pos.ToArray(), Reason: "break"})
		a.SendActionBar(p.loc.T(lang.KeyNoPermissionToDestroy))
		lvl.ResendBlock(a, pos)
		return false
	}

	partner, _ := p.links.Unlink(pos)
	p.saveLocked()
	metrics.RecordLinkRemoved("broken")
	p.emit(Event{Kind: EventLinkRemoved, Actor: a.ID(), ActorName: a.Name(), A: pos.ToArray(), B: partner.ToArray(), Reason: "broken"})
	p.log.Info().Str("event", "signlink.link_removed").Str("actor", a.ID()).Str("a", pos.Key()).Str("b", partner.Key()).Msg("teleport link removed")
	return true
}

func (p *Plugin) saveLocked() {
	metrics.SetActiveLinks(p.links.Len())
	if err := p.store.Save(p.links); err != nil {
		metrics.RecordFileError("links")
		p.log.Error().Err(err).Str("event", "signlink.links_save_failed").Msg("teleport links save failed")
	}
}

func (p *Plugin) emit(e Event) {
	e.Time = p.now().UTC()
	for _, s := range p.sinks {
		if err := s.WriteLinkEvent(e); err != nil {
			p.log.Warn().Err(err).Str("event", "signlink.sink_failed").Str("kind", e.Kind).Msg("link event sink failed")
		}
	}
}
