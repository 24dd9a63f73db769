package expiry

import (
	"strconv"
	"strings"
	"sync"
)

// DeriveExpiry adds months to a DD/MM/YYYY manufacturing date and returns the expiry in the same form.
// An invalid manufacturing date yields the empty string.
func DeriveExpiry(mfgDate string, months int) string {
	d, err := ParseComponents(mfgDate)
	if err != nil {
		return ""
	}
	return d.AddMonths(months).String()
}

// Shelf lives outside this range are treated as not entered.
const (
	MinShelfLifeMonths = 1
	MaxShelfLifeMonths = 120
)

// Inputs are the three form fields the derived expiry depends on
type Inputs struct {
	Enabled           bool
	ManufacturingDate string
	ShelfLifeMonths   string
}

// Months returns the shelf life as an integer and whether it is present and in range
func (in Inputs) Months() (int, bool) {
	s := strings.TrimSpace(in.ShelfLifeMonths)
	if s == "" {
		return 0, false
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < MinShelfLifeMonths || n > MaxShelfLifeMonths {
		return 0, false
	}
	return n, true
}

// Derive computes the expiry for the inputs. Disabled mode and incomplete input both give "".
func Derive(in Inputs) string {
	if !in.Enabled {
		return ""
	}
	months, ok := in.Months()
	if !ok || !IsValidDate(in.ManufacturingDate) {
		return ""
	}
	return DeriveExpiry(in.ManufacturingDate, months)
}

// Deriver keeps the derived expiry in step with its inputs. Every setter recomputes synchronously
// and, while best-before mode is enabled, pushes each complete value to the sink. A pending ""
// is not pushed so the form keeps its last expiry until the inputs are complete again.
type Deriver struct {
	mu       sync.Mutex
	inputs   Inputs
	value    string
	onChange func(string)
}

// NewDeriver creates a Deriver that reports derived values to onChange. onChange may be nil.
func NewDeriver(onChange func(string)) *Deriver {
	return &Deriver{onChange: onChange}
}

// SetEnabled toggles best-before mode
func (d *Deriver) SetEnabled(enabled bool) string {
	return d.update(func(in *Inputs) { in.Enabled = enabled })
}

// SetManufacturingDate updates the manufacturing date field
func (d *Deriver) SetManufacturingDate(s string) string {
	return d.update(func(in *Inputs) { in.ManufacturingDate = s })
}

// SetShelfLifeMonths updates the best-before months field
func (d *Deriver) SetShelfLifeMonths(s string) string {
	return d.update(func(in *Inputs) { in.ShelfLifeMonths = s })
}

// Inputs returns the current field values
func (d *Deriver) Inputs() Inputs {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.inputs
}

// Enabled reports whether best-before mode is on
func (d *Deriver) Enabled() bool {
	return d.Inputs().Enabled
}

// Value returns the last derived expiry
func (d *Deriver) Value() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.value
}

// Reset clears all inputs without notifying the sink
func (d *Deriver) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.inputs = Inputs{}
	d.value = ""
}

func (d *Deriver) update(apply func(*Inputs)) string {
	d.mu.Lock()
	apply(&d.inputs)
	d.value = Derive(d.inputs)
	value, enabled, sink := d.value, d.inputs.Enabled, d.onChange
	d.mu.Unlock()

	if enabled && value != "" && sink != nil {
		sink(value)
	}
	return value
}
