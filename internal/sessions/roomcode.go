package sessions

import (
	"crypto/rand"
	"fmt"
	"strings"
)

const (
	// RoomCodeAlphabet excludes visually confusable characters (0/O, 1/I).
	RoomCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	// RoomCodeLength is the fixed length of every room code.
	RoomCodeLength = 8
)

// NewRoomCode draws RoomCodeLength characters uniformly from RoomCodeAlphabet.
// The alphabet has 32 symbols, so masking a random byte with 31 is unbiased.
func NewRoomCode() (string, error) {
	buf := make([]byte, RoomCodeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	for i, b := range buf {
		buf[i] = RoomCodeAlphabet[int(b)&(len(RoomCodeAlphabet)-1)]
	}
	return string(buf), nil
}

// ValidRoomCode reports whether code has the room code shape.
func ValidRoomCode(code string) bool {
	if len(code) != RoomCodeLength {
		return false
	}
	for i := 0; i < len(code); i++ {
		if strings.IndexByte(RoomCodeAlphabet, code[i]) < 0 {
			return false
		}
	}
	return true
}

// NormalizeRoomCode upper-cases and trims user input before lookup.
func NormalizeRoomCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
