package signlink

import (
	"errors"
	"sort"

	"voxelcraft.ai/signlink/internal/sim/geom"
)

var (
	ErrAlreadyLinked = errors.New("signlink: sign already linked")
	ErrSelfLink      = errors.New("signlink: sign cannot link to itself")
)

// Pair is one link, reported once with A.Key() < B.Key().
type Pair struct {
	A geom.Pos `json:"a"`
	B geom.Pos `json:"b"`
}

// Table stores every link in both directions, keyed by geom.Pos.Key().
// Not safe for concurrent use; Plugin serialises access.
type Table struct {
	links map[string]geom.Pos
}

func NewTable() *Table {
	return &Table{links: map[string]geom.Pos{}}
}

// TableFrom wraps raw (as decoded from disk) without checking it. Call Repair afterwards.
func TableFrom(raw map[string]geom.Pos) *Table {
	t := NewTable()
	for k, v := range raw {
		t.links[k] = v
	}
	return t
}

// Link stores a<->b. Neither endpoint may already hold a link.
func (t *Table) Link(a, b geom.Pos) error {
	if t.Linked(a) || t.Linked(b) {
		return ErrAlreadyLinked
	}
	if a == b {
		return ErrSelfLink
	}
	t.links[a.Key()] = b
	t.links[b.Key()] = a
	return nil
}

// Unlink removes the link held by p and its partner's back reference.
func (t *Table) Unlink(p geom.Pos) (geom.Pos, bool) {
	partner, ok := t.links[p.Key()]
	if !ok {
		return geom.Pos{}, false
	}
	delete(t.links, p.Key())
	delete(t.links, partner.Key())
	return partner, true
}

func (t *Table) Partner(p geom.Pos) (geom.Pos, bool) {
	partner, ok := t.links[p.Key()]
	return partner, ok
}

func (t *Table) Linked(p geom.Pos) bool {
	_, ok := t.links[p.Key()]
	return ok
}

// Len returns the number of links (pairs), not map entries.
func (t *Table) Len() int { return len(t.links) / 2 }

// Pairs lists each link once, sorted by A's key.
func (t *Table) Pairs() []Pair {
	out := make([]Pair, 0, len(t.links)/2)
	for k, partner := range t.links {
		if k < partner.Key() {
			a, err := geom.ParseKey(k)
			if err != nil {
				continue
			}
			out = append(out, Pair{A: a, B: partner})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].A.Key() < out[j].A.Key() })
	return out
}

// Snapshot returns a copy of the underlying map, suitable for encoding.
func (t *Table) Snapshot() map[string]geom.Pos {
	out := make(map[string]geom.Pos, len(t.links))
	for k, v := range t.links {
		out[k] = v
	}
	return out
}

// Repair drops entries that break the pairing invariant: unparsable or non-canonical keys
// ("01,2,3"), self links, and entries whose partner does not point back. It returns the dropped keys, sorted.
func (t *Table) Repair() []string {
	var drop []string
	for k, partner := range t.links {
		p, err := geom.ParseKey(k)
		if err != nil || p.Key() != k || p == partner {
			drop = append(drop, k)
			continue
		}
		back, ok := t.links[partner.Key()]
		if !ok || back != p {
			drop = append(drop, k)
		}
	}
	for _, k := range drop {
		delete(t.links, k)
	}
	sort.Strings(drop)
	return drop
}
