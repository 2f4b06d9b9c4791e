package crop

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Notice reports how the panel handled one entry.
type Notice struct {
	Field   Field  `json:"field"`
	Message string `json:"message"`
}

// EntryError is returned when an entry is refused.
type EntryError struct {
	Field Field
	Raw   string
	Err   error
}

func (e *EntryError) Error() string {
	return fmt.Sprintf("invalid value %q for %s: %v", e.Raw, e.Field, e.Err)
}

func (e *EntryError) Unwrap() error { return e.Err }

// Panel holds the current value of every field. Values outside a field's
// range are clamped, entries that do not parse are refused and leave the
// previous value in place. A new panel starts with every field at its minimum.
type Panel struct {
	values [NumFeatures]float64
}

// NewPanel returns a panel with every field at its minimum.
func NewPanel() *Panel {
	p := &Panel{}
	for i, b := range Bounds {
		p.values[i] = b.Min
	}

	return p
}

// Set parses raw and stores it in field. It reports whether the value had
// to be clamped into range.
func (p *Panel) Set(field Field, raw string) (bool, error) {
	b, idx, ok := BoundFor(field)
	if !ok {
		return false, &EntryError{Field: field, Raw: raw, Err: fmt.Errorf("unknown field")}
	}

	x, err := parseEntry(b, raw)
	if err != nil {
		return false, &EntryError{Field: field, Raw: raw, Err: err}
	}

	clamped := b.Clamp(x)
	p.values[idx] = clamped

	return clamped != x, nil
}

// Apply sets every field present in entries and returns one notice per
// clamped or refused entry, in feature order. Missing or blank entries keep
// their current value.
func (p *Panel) Apply(entries map[Field]string) []Notice {
	var notices []Notice
	for _, b := range Bounds {
		raw, ok := entries[b.Field]
		if !ok || strings.TrimSpace(raw) == "" {
			continue
		}

		clamped, err := p.Set(b.Field, raw)
		switch {
		case err != nil:
			notices = append(notices, Notice{Field: b.Field, Message: fmt.Sprintf("%s: %q is not a valid number, kept %s", b.Label, raw, p.Format(b.Field))})
		case clamped:
			notices = append(notices, Notice{Field: b.Field, Message: fmt.Sprintf("%s: limited to %s", b.Label, p.Format(b.Field))})
		}
	}

	return notices
}

// Value returns the current value of field.
func (p *Panel) Value(field Field) float64 {
	_, idx, ok := BoundFor(field)
	if !ok {
		return 0
	}

	return p.values[idx]
}

// Format returns the current value of field as the panel displays it.
func (p *Panel) Format(field Field) string {
	b, idx, ok := BoundFor(field)
	if !ok {
		return ""
	}

	return b.Format(p.values[idx])
}

// Vector assembles the current values. The result is always within bounds.
func (p *Panel) Vector() InputVector {
	return FromFeatures(p.values)
}

func parseEntry(b Bound, raw string) (float64, error) {
	raw = strings.TrimSpace(raw)
	if b.Integer {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("expected a whole number")
		}

		return float64(n), nil
	}

	x, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(x) || math.IsInf(x, 0) {
		return 0, fmt.Errorf("expected a number")
	}

	return x, nil
}
