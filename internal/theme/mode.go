package theme

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Mode is the interface color theme
type Mode int

// Modes keep the numeric values wallets already store remotely
const (
	Light Mode = iota
	Dark
	Auto
)

// ErrInvalidMode is returned when parsing an unknown mode
var ErrInvalidMode = errors.New("invalid theme mode")

var modeNames = map[Mode]string{
	Light: "light",
	Dark:  "dark",
	Auto:  "auto",
}

// ParseMode accepts the mode names or their numeric values
func ParseMode(s string) (Mode, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for m, name := range modeNames {
		if name == s {
			return m, nil
		}
	}
	if n, err := strconv.Atoi(s); err == nil && Mode(n).Valid() {
		return Mode(n), nil
	}
	return Auto, fmt.Errorf("%w: %q", ErrInvalidMode, s)
}

// Valid tells if m is one of the known modes
func (m Mode) Valid() bool {
	_, ok := modeNames[m]
	return ok
}

func (m Mode) String() string {
	if name, ok := modeNames[m]; ok {
		return name
	}
	return "Mode(" + strconv.Itoa(int(m)) + ")"
}

// MarshalJSON writes the mode name
func (m Mode) MarshalJSON() ([]byte, error) {
	if !m.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidMode, int(m))
	}
	return json.Marshal(m.String())
}

// UnmarshalJSON reads a mode name or a numeric mode
func (m *Mode) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		var n int
		if err := json.Unmarshal(b, &n); err != nil {
			return fmt.Errorf("%w: %s", ErrInvalidMode, b)
		}
		s = strconv.Itoa(n)
	}
	mode, err := ParseMode(s)
	if err != nil {
		return err
	}
	*m = mode
	return nil
}
