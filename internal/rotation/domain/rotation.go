package domain

import "github.com/google/uuid"

// Slot is one entry of the expanded rotation sequence.
type Slot struct {
	// VendorIndex points into the ordered participating vendor list.
	VendorIndex int
	// Occurrence is the 1-based count of this vendor's slots up to here.
	Occurrence int
}

// Expander turns the ordered vendor list into the sequence the cursor walks.
// Every vendor must receive at least one slot.
type Expander interface {
	Expand(vendors []Vendor) []Slot
}

// ProportionalExpander repeats each vendor Weight times in place, so a
// vendor with weight w receives w turns per cycle.
type ProportionalExpander struct{}

// Expand implements Expander.
func (ProportionalExpander) Expand(vendors []Vendor) []Slot {
	slots := make([]Slot, 0, len(vendors))
	for i, v := range vendors {
		for run := 1; run <= v.EffectiveWeight(); run++ {
			slots = append(slots, Slot{VendorIndex: i, Occurrence: run})
		}
	}
	return slots
}

// maxIntervalRounds bounds the cycle built by IntervalExpander.
const maxIntervalRounds = 360

// IntervalExpander reads weight as "one turn every w rounds": round r holds
// every vendor whose weight divides r. The cycle spans the least common
// multiple of the weights, capped at maxIntervalRounds.
type IntervalExpander struct{}

// Expand implements Expander.
func (IntervalExpander) Expand(vendors []Vendor) []Slot {
	rounds := 1
	for _, v := range vendors {
		rounds = lcm(rounds, v.EffectiveWeight())
		if rounds > maxIntervalRounds {
			rounds = maxIntervalRounds
			break
		}
	}

	counts := make([]int, len(vendors))
	slots := make([]Slot, 0, len(vendors))
	for r := 0; r < rounds; r++ {
		for i, v := range vendors {
			if r%v.EffectiveWeight() != 0 {
				continue
			}
			counts[i]++
			slots = append(slots, Slot{VendorIndex: i, Occurrence: counts[i]})
		}
	}
	return slots
}

func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

func lcm(a, b int) int {
	return a / gcd(a, b) * b
}

// Pick is the outcome of one rotation step.
type Pick struct {
	Vendor Vendor
	// QueuePosition is the 1-based index of Vendor in the ordered list.
	QueuePosition int
	// RunPosition is the new LastRunPosition to persist.
	RunPosition   int
	SlotIndex     int
	TotalEligible int
	TotalSlots    int
}

// NextVendor computes the vendor after state's cursor. vendors must already
// be filtered and ordered (see FilterParticipating). The result depends only
// on the arguments.
func NextVendor(vendors []Vendor, state RotationState, exp Expander) (Pick, error) {
	if len(vendors) == 0 {
		return Pick{}, ErrNoEligibleVendors
	}
	if exp == nil {
		exp = ProportionalExpander{}
	}

	slots := exp.Expand(vendors)
	if len(slots) == 0 {
		return Pick{}, ErrNoEligibleVendors
	}

	next := 0
	if cursor, ok := cursorSlot(vendors, slots, state); ok {
		next = (cursor + 1) % len(slots)
	}

	slot := slots[next]
	return Pick{
		Vendor:        vendors[slot.VendorIndex],
		QueuePosition: slot.VendorIndex + 1,
		RunPosition:   slot.Occurrence,
		SlotIndex:     next,
		TotalEligible: len(vendors),
		TotalSlots:    len(slots),
	}, nil
}

// cursorSlot finds the slot of the last assignment. The run position is
// clamped into the vendor's occurrences so a lowered weight cannot strand
// the cursor.
func cursorSlot(vendors []Vendor, slots []Slot, state RotationState) (int, bool) {
	if state.LastAssignedVendorID == nil {
		return 0, false
	}
	vendorIndex := indexOfVendor(vendors, *state.LastAssignedVendorID)
	if vendorIndex < 0 {
		return 0, false
	}

	want := state.LastRunPosition
	if want < 1 {
		want = 1
	}

	first, last := -1, -1
	for i, s := range slots {
		if s.VendorIndex != vendorIndex {
			continue
		}
		if first < 0 {
			first = i
		}
		last = i
		if s.Occurrence == want {
			return i, true
		}
	}
	if first < 0 {
		return 0, false
	}
	// want is past the vendor's final occurrence.
	return last, true
}

func indexOfVendor(vendors []Vendor, id uuid.UUID) int {
	for i, v := range vendors {
		if v.ID == id {
			return i
		}
	}
	return -1
}

// SlotCounts returns how many slots each vendor holds per cycle, keyed by ID.
func SlotCounts(vendors []Vendor, exp Expander) map[uuid.UUID]int {
	if exp == nil {
		exp = ProportionalExpander{}
	}
	counts := make(map[uuid.UUID]int, len(vendors))
	for _, s := range exp.Expand(vendors) {
		counts[vendors[s.VendorIndex].ID]++
	}
	return counts
}
