// Package geom holds integer block coordinates shared by the host world and plugins.
package geom

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var ErrBadKey = errors.New("geom: malformed position key")

// Pos is a block position. Its JSON form is {"x":..,"y":..,"z":..}.
type Pos struct {
	X int `json:"x"`
	Y int `json:"y"`
	Z int `json:"z"`
}

// Key renders the position as "x,y,z".
func (p Pos) Key() string {
	return strconv.Itoa(p.X) + "," + strconv.Itoa(p.Y) + "," + strconv.Itoa(p.Z)
}

func (p Pos) String() string { return p.Key() }

func (p Pos) ToArray() [3]int { return [3]int{p.X, p.Y, p.Z} }

func FromArray(a [3]int) Pos { return Pos{X: a[0], Y: a[1], Z: a[2]} }

// ParseKey is the inverse of Pos.Key.
func ParseKey(s string) (Pos, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return Pos{}, fmt.Errorf("%w: %q", ErrBadKey, s)
	}
	var v [3]int
	for i, part := range parts {
		n, err := strconv.Atoi(part)
		if err != nil {
			return Pos{}, fmt.Errorf("%w: %q", ErrBadKey, s)
		}
		v[i] = n
	}
	return FromArray(v), nil
}

// Manhattan returns the L1 distance between two positions.
func Manhattan(a, b Pos) int {
	return abs(a.X-b.X) + abs(a.Y-b.Y) + abs(a.Z-b.Z)
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
