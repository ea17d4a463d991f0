package zone

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var ErrInvalidMargin = errors.New("invalid root margin")

type Rect struct {
	Left, Top, Width, Height float64
}

func (r Rect) right() float64  { return r.Left + r.Width }
func (r Rect) bottom() float64 { return r.Top + r.Height }

// Length is a margin component in pixels or percent of the root size.
type Length struct {
	Value   float64
	Percent bool
}

func (l Length) resolve(size float64) float64 {
	if l.Percent {
		return size * l.Value / 100
	}
	return l.Value
}

type Margin struct {
	Top, Right, Bottom, Left Length
}

// ParseRootMargin parses the CSS margin shorthand accepted by
// IntersectionObserver: one to four values, each in px or %.
func ParseRootMargin(s string) (Margin, error) {
	parts := strings.Fields(s)
	if len(parts) == 0 || len(parts) > 4 {
		return Margin{}, fmt.Errorf("%w: %q", ErrInvalidMargin, s)
	}

	vals := make([]Length, len(parts))
	for i, p := range parts {
		l, err := parseLength(p)
		if err != nil {
			return Margin{}, err
		}
		vals[i] = l
	}

	switch len(vals) {
	case 1:
		return Margin{vals[0], vals[0], vals[0], vals[0]}, nil
	case 2:
		return Margin{vals[0], vals[1], vals[0], vals[1]}, nil
	case 3:
		return Margin{vals[0], vals[1], vals[2], vals[1]}, nil
	default:
		return Margin{vals[0], vals[1], vals[2], vals[3]}, nil
	}
}

func parseLength(s string) (Length, error) {
	var (
		num     string
		percent bool
	)
	switch {
	case strings.HasSuffix(s, "px"):
		num = strings.TrimSuffix(s, "px")
	case strings.HasSuffix(s, "%"):
		num = strings.TrimSuffix(s, "%")
		percent = true
	case s == "0":
		num = s
	default:
		return Length{}, fmt.Errorf("%w: %q must be px or %%", ErrInvalidMargin, s)
	}
	v, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return Length{}, fmt.Errorf("%w: %q", ErrInvalidMargin, s)
	}
	return Length{Value: v, Percent: percent}, nil
}

// Ratio returns the visible fraction of target inside viewport grown (or
// shrunk, for negative values) by margin.
func Ratio(target, viewport Rect, m Margin) float64 {
	if target.Width <= 0 || target.Height <= 0 {
		return 0
	}
	root := Rect{
		Left: viewport.Left - m.Left.resolve(viewport.Width),
		Top:  viewport.Top - m.Top.resolve(viewport.Height),
	}
	root.Width = viewport.right() + m.Right.resolve(viewport.Width) - root.Left
	root.Height = viewport.bottom() + m.Bottom.resolve(viewport.Height) - root.Top

	w := min(target.right(), root.right()) - max(target.Left, root.Left)
	h := min(target.bottom(), root.bottom()) - max(target.Top, root.Top)
	if w <= 0 || h <= 0 {
		return 0
	}
	return (w * h) / (target.Width * target.Height)
}
