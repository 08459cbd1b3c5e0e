// Package validate holds the identifier syntax rules shared by the
// HTTP and WebSocket entry points.
package validate

const (
	maxRoomNameLen = 100
	maxUserIDLen   = 50
)

// RoomName reports whether s is a legal room name: non-empty, at most
// 100 chars, letters/digits/hyphen/underscore only.
func RoomName(s string) bool {
	return identifier(s, maxRoomNameLen)
}

// UserID reports whether s is a legal user identifier: non-empty, at
// most 50 chars, same charset as room names.
func UserID(s string) bool {
	return identifier(s, maxUserIDLen)
}

func identifier(s string, maxLen int) bool {
	if len(s) == 0 || len(s) > maxLen {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z':
		case c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9':
		case c == '-' || c == '_':
		default:
			return false
		}
	}
	return true
}
