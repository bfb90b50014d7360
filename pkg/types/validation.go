package types

// MaxNoteLength bounds save_note payloads.
const MaxNoteLength = 16 * 1024

// IsValidUserID accepts 1-50 characters of alphanumerics plus underscore
// and hyphen, the same shape identity tokens carry.
func IsValidUserID(id string) bool {
	if len(id) == 0 || len(id) > 50 {
		return false
	}
	for _, r := range id {
		if !isIDRune(r) {
			return false
		}
	}
	return true
}

// IsValidDisplayName accepts 1-50 characters of printable text.
func IsValidDisplayName(name string) bool {
	if len(name) == 0 || len(name) > 50 {
		return false
	}
	for _, r := range name {
		if r < 0x20 || r == 0x7f {
			return false
		}
	}
	return true
}

// IsValidStatus reports whether s is one of the session lifecycle states.
func IsValidStatus(s string) bool {
	return s == StatusActive || s == StatusPaused || s == StatusEnded
}

// CanTransition encodes the session state machine: ACTIVE and PAUSED swap
// freely, both may end, and ENDED has no outgoing transition.
func CanTransition(from, to string) bool {
	switch from {
	case StatusActive:
		return to == StatusPaused || to == StatusEnded
	case StatusPaused:
		return to == StatusActive || to == StatusEnded
	default:
		return false
	}
}

func isIDRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z':
		return true
	case r >= 'A' && r <= 'Z':
		return true
	case r >= '0' && r <= '9':
		return true
	case r == '_' || r == '-':
		return true
	}
	return false
}
