// Package localtime resolves user timezones and computes local calendar
// boundaries on top of UTC-stored timestamps.
package localtime

import (
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"routined/pkg/logx"
)

// Resolver turns stored IANA zone names into *time.Location with a silent
// UTC fallback for invalid names. The fallback warning is rate limited so a
// bad row does not flood the log on every trigger tick.
type Resolver struct {
	log  logx.Logger
	warn *rate.Limiter

	mu    sync.Mutex
	cache map[string]*time.Location
	bad   map[string]bool
}

func NewResolver(log logx.Logger) *Resolver {
	return &Resolver{
		log:   log,
		warn:  rate.NewLimiter(rate.Every(time.Minute), 5),
		cache: map[string]*time.Location{},
		bad:   map[string]bool{},
	}
}

// Location resolves name to a location, falling back to UTC when the name
// is empty or unknown to the timezone database.
func (r *Resolver) Location(name string) *time.Location {
	name = strings.TrimSpace(name)
	if name == "" || name == "UTC" {
		return time.UTC
	}

	r.mu.Lock()
	if loc, ok := r.cache[name]; ok {
		r.mu.Unlock()
		return loc
	}
	known := r.bad[name]
	r.mu.Unlock()

	loc, err := time.LoadLocation(name)
	if err != nil {
		if !known && r.warn.Allow() {
			r.log.Warn("invalid timezone; falling back to UTC", logx.String("tz", name), logx.Err(err))
		}
		r.mu.Lock()
		r.bad[name] = true
		r.mu.Unlock()
		return time.UTC
	}

	r.mu.Lock()
	r.cache[name] = loc
	r.mu.Unlock()
	return loc
}

// Valid reports whether name resolves in the timezone database.
func Valid(name string) bool {
	name = strings.TrimSpace(name)
	if name == "" {
		return false
	}
	_, err := time.LoadLocation(name)
	return err == nil
}

// StartOfDay returns local midnight of the day containing t, in loc.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	lt := t.In(loc)
	return time.Date(lt.Year(), lt.Month(), lt.Day(), 0, 0, 0, 0, loc)
}

// NextMidnight returns the first local midnight strictly after t.
func NextMidnight(t time.Time, loc *time.Location) time.Time {
	return StartOfDay(t, loc).AddDate(0, 0, 1)
}

// At returns the instant of hour:min on the same local day as t.
// time.Date normalizes DST gaps, so 02:30 on a spring-forward day still
// yields a real instant.
func At(t time.Time, hour, min int, loc *time.Location) time.Time {
	lt := t.In(loc)
	return time.Date(lt.Year(), lt.Month(), lt.Day(), hour, min, 0, 0, loc)
}

// NextAt returns the first occurrence of hour:min local strictly after t.
func NextAt(t time.Time, hour, min int, loc *time.Location) time.Time {
	next := At(t, hour, min, loc)
	if !next.After(t) {
		next = At(t.In(loc).AddDate(0, 0, 1), hour, min, loc)
	}
	return next
}

// SameLocalDay reports whether a and b fall on the same calendar day in loc.
func SameLocalDay(a, b time.Time, loc *time.Location) bool {
	al, bl := a.In(loc), b.In(loc)
	return al.Year() == bl.Year() && al.Month() == bl.Month() && al.Day() == bl.Day()
}
