package config

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseClockOrDefault parses an "HH:MM" local-time config field. Blank
// falls back to the given default, so an explicit "00:00" stays midnight
// instead of being mistaken for "unset".
func ParseClockOrDefault(path, raw string, defHour, defMinute int) (hour, minute int, err error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return defHour, defMinute, nil
	}
	hh, mm, ok := strings.Cut(s, ":")
	if ok {
		h, herr := strconv.Atoi(hh)
		m, merr := strconv.Atoi(mm)
		if herr == nil && merr == nil && h >= 0 && h <= 23 && m >= 0 && m <= 59 {
			return h, m, nil
		}
	}
	return 0, 0, fmt.Errorf("%s: invalid time %q, want HH:MM", path, raw)
}
