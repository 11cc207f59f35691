package selfservice

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// SlotCount is the number of loader slots each user owns.
const SlotCount = 3

var remoteUserPattern = regexp.MustCompile(`^[a-zA-Z0-9_.+-]+@[a-zA-Z0-9-]+\.[a-zA-Z0-9-.]+$`)

// ValidateUser checks that the proxy-supplied identity looks like an email address.
func ValidateUser(remoteUser string) error {
	if !remoteUserPattern.MatchString(remoteUser) {
		return ErrInvalidUser
	}
	return nil
}

// SlotIndex parses a wire slot id ("slot2") into its index.
func SlotIndex(slotID string) (int, error) {
	n, err := strconv.Atoi(strings.TrimPrefix(slotID, "slot"))
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidSlot, slotID)
	}
	if n < 1 || n > SlotCount {
		return 0, fmt.Errorf("%w: %q out of range", ErrInvalidSlot, slotID)
	}
	return n, nil
}

// userNamePrefix is the name prefix shared by all of a user's loaders.
func userNamePrefix(namePrefix, remoteUser string) string {
	return namePrefix + "-" + remoteUser + "-"
}

// loaderName builds the loader name for a user's slot.
func loaderName(namePrefix, remoteUser string, slot int) string {
	return userNamePrefix(namePrefix, remoteUser) + strconv.Itoa(slot)
}

// ownerOf recovers the remote user and slot suffix from a loader name.
func ownerOf(namePrefix, name string) (user, slot string, ok bool) {
	rest, found := strings.CutPrefix(name, namePrefix+"-")
	if !found {
		return "", "", false
	}
	i := strings.LastIndex(rest, "-")
	if i <= 0 {
		return "", "", false
	}
	return rest[:i], rest[i+1:], true
}
