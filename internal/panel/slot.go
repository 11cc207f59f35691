package panel

import (
	"strconv"
	"strings"
)

// SlotCount is the number of rows the panel renders.
const SlotCount = 3

// SlotID is the wire identifier of a slot, "slot1" through "slot3". It is
// also the DOM id of the slot's table row.
type SlotID string

// Slot returns the SlotID for index n.
func Slot(n int) SlotID {
	return SlotID("slot" + strconv.Itoa(n))
}

// Index returns the slot's numeric index and whether it is a panel slot.
func (s SlotID) Index() (int, bool) {
	n, err := strconv.Atoi(strings.TrimPrefix(string(s), "slot"))
	if err != nil || !strings.HasPrefix(string(s), "slot") {
		return 0, false
	}
	return n, n >= 1 && n <= SlotCount
}

// ParseSlot accepts "2" or "slot2" and returns the matching panel slot.
func ParseSlot(s string) (SlotID, bool) {
	if !strings.HasPrefix(s, "slot") {
		s = "slot" + s
	}
	id := SlotID(s)
	if _, ok := id.Index(); !ok {
		return "", false
	}
	return id, true
}

// LoaderSlot maps a loader name to its slot using the numeric suffix after
// the last '-'. It reports false when the suffix is not a number.
func LoaderSlot(name string) (SlotID, bool) {
	n, ok := loaderSuffix(name)
	if !ok {
		return "", false
	}
	return Slot(n), true
}

func loaderSuffix(name string) (int, bool) {
	suffix := name[strings.LastIndex(name, "-")+1:]
	n, err := strconv.Atoi(suffix)
	if err != nil {
		return 0, false
	}
	return n, true
}
