package appointment

import (
	"fmt"
	"time"
)

// SlotGrid is the office's daily booking grid: every Slot-sized step from
// Start (inclusive) to End (exclusive). It is pure configuration; the same
// grid applies to every calendar day.
type SlotGrid struct {
	Start TimeOfDay
	End   TimeOfDay
	Slot  time.Duration
}

func NewSlotGrid(start, end TimeOfDay, slot time.Duration) (SlotGrid, error) {
	if slot < time.Minute || slot%time.Minute != 0 {
		return SlotGrid{}, fmt.Errorf("%w: slot duration must be a whole number of minutes", ErrInvalidRequest)
	}
	if end <= start {
		return SlotGrid{}, fmt.Errorf("%w: office end %s must be after start %s", ErrInvalidRequest, end, start)
	}
	return SlotGrid{Start: start, End: end, Slot: slot}, nil
}

func (g SlotGrid) slotMinutes() int {
	return int(g.Slot / time.Minute)
}

// Slots generates the full grid in ascending order.
func (g SlotGrid) Slots() []TimeOfDay {
	step := g.slotMinutes()
	out := make([]TimeOfDay, 0, (g.End.Minutes()-g.Start.Minutes())/step+1)
	for t := g.Start; t < g.End; t += TimeOfDay(step) {
		out = append(out, t)
	}
	return out
}

// Aligned reports whether t is a bookable grid point: within office hours
// and an exact slot multiple from opening.
func (g SlotGrid) Aligned(t TimeOfDay) bool {
	if t < g.Start || t >= g.End {
		return false
	}
	return (t.Minutes()-g.Start.Minutes())%g.slotMinutes() == 0
}
