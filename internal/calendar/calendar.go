// Package calendar decides which dates are working days and does the local
// date arithmetic used by availability checks and reminder scheduling.
package calendar

import (
	_ "embed"
	"fmt"
	"io"
	"sort"
	"time"

	"cloud.google.com/go/civil"
	"gopkg.in/yaml.v3"

	"github.com/City-of-Helsinki/haravajarjestelma/pkg/config"
)

// MaxShiftIterations bounds ShiftForward and ShiftBackward. A run of more
// non-working days than this means the holiday table is broken.
const MaxShiftIterations = 30

//go:embed holidays_fi.yaml
var defaultHolidays []byte

type holidayFile struct {
	Country  string `yaml:"country"`
	Holidays []struct {
		Date string `yaml:"date"`
		Name string `yaml:"name"`
	} `yaml:"holidays"`
}

// Calendar knows the public holidays of one country
type Calendar struct {
	country  string
	holidays map[civil.Date]string
}

var defaultCalendar *Calendar

func init() {
	cal, err := parse(defaultHolidays)
	if err != nil {
		panic(fmt.Sprintf("calendar: embedded holiday table: %v", err))
	}
	defaultCalendar = cal
}

// Default returns the calendar built from the embedded Finnish holiday table
func Default() *Calendar {
	return defaultCalendar
}

// Load reads a holiday table in the embedded YAML format
func Load(r io.Reader) (*Calendar, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read holiday table: %w", err)
	}
	return parse(data)
}

func parse(data []byte) (*Calendar, error) {
	var f holidayFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, &config.ConfigurationError{Key: "holidays", Reason: err.Error()}
	}
	cal := &Calendar{country: f.Country, holidays: make(map[civil.Date]string, len(f.Holidays))}
	for _, h := range f.Holidays {
		d, err := civil.ParseDate(h.Date)
		if err != nil {
			return nil, &config.ConfigurationError{Key: "holidays", Reason: fmt.Sprintf("bad date %q: %v", h.Date, err)}
		}
		cal.holidays[d] = h.Name
	}
	return cal, nil
}

// Country returns the country code of the holiday table
func (c *Calendar) Country() string {
	return c.country
}

// HolidayName returns the holiday on d, if any
func (c *Calendar) HolidayName(d civil.Date) (string, bool) {
	name, ok := c.holidays[d]
	return name, ok
}

// IsVacationDay reports whether d is a Saturday, a Sunday or a public holiday
func (c *Calendar) IsVacationDay(d civil.Date) bool {
	switch d.In(time.UTC).Weekday() {
	case time.Saturday, time.Sunday:
		return true
	}
	_, ok := c.holidays[d]
	return ok
}

// ShiftForward returns the first working day on or after d
func (c *Calendar) ShiftForward(d civil.Date) (civil.Date, error) {
	return c.shift(d, 1)
}

// ShiftBackward returns the last working day on or before d
func (c *Calendar) ShiftBackward(d civil.Date) (civil.Date, error) {
	return c.shift(d, -1)
}

func (c *Calendar) shift(d civil.Date, step int) (civil.Date, error) {
	start := d
	for i := 0; c.IsVacationDay(d); i++ {
		if i >= MaxShiftIterations {
			return start, &config.ConfigurationError{
				Key:    "holidays",
				Reason: fmt.Sprintf("no working day within %d days of %s", MaxShiftIterations, start),
			}
		}
		d = d.AddDays(step)
	}
	return d, nil
}

// LocalDate returns the calendar date of t in loc
func LocalDate(t time.Time, loc *time.Location) civil.Date {
	return civil.DateOf(t.In(loc))
}

// StartOfDay returns local midnight of d in loc
func StartOfDay(d civil.Date, loc *time.Location) time.Time {
	return d.In(loc)
}

// DateRange returns every date from..to inclusive, or nil when to is before from
func DateRange(from, to civil.Date) []civil.Date {
	if to.Before(from) {
		return nil
	}
	dates := make([]civil.Date, 0, to.DaysSince(from)+1)
	for d := from; !d.After(to); d = d.AddDays(1) {
		dates = append(dates, d)
	}
	return dates
}

// SpanDates returns the local dates touched by [start, end). An end exactly at
// local midnight does not touch that day, unless the span is empty.
func SpanDates(start, end time.Time, loc *time.Location) []civil.Date {
	first := LocalDate(start, loc)
	last := LocalDate(end, loc)
	if end.After(start) && end.Equal(StartOfDay(last, loc)) {
		last = last.AddDays(-1)
	}
	if last.Before(first) {
		last = first
	}
	return DateRange(first, last)
}

// Range is an inclusive date window
type Range struct {
	From civil.Date
	To   civil.Date
}

// NewRange orders its arguments
func NewRange(a, b civil.Date) Range {
	if b.Before(a) {
		a, b = b, a
	}
	return Range{From: a, To: b}
}

// Contains reports whether d lies in r
func (r Range) Contains(d civil.Date) bool {
	return !d.Before(r.From) && !d.After(r.To)
}

// Dates expands r
func (r Range) Dates() []civil.Date {
	return DateRange(r.From, r.To)
}

// SpanRange returns the window covered by SpanDates(start, end, loc)
func SpanRange(start, end time.Time, loc *time.Location) Range {
	dates := SpanDates(start, end, loc)
	return Range{From: dates[0], To: dates[len(dates)-1]}
}

// SortDates sorts ascending in place and drops duplicates
func SortDates(dates []civil.Date) []civil.Date {
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	out := dates[:0]
	for _, d := range dates {
		if len(out) > 0 && d == out[len(out)-1] {
			continue
		}
		out = append(out, d)
	}
	return out
}
