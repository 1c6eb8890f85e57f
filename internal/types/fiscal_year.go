// Package types implements special types for the ledger.
package types

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// FiscalYearStartMonth is the month in which every fiscal year begins.
const FiscalYearStartMonth = time.April

var ErrFiscalYearInvalid = errors.New("the fiscal year must be given as YYYY or YYYY-YY, e.g. 2024 or 2024-25")

// FiscalYear is a fiscal period running from April 1 to March 31.
//
// It is identified by the calendar year in which it starts, so
// FiscalYear(2024) spans 2024-04-01 to 2025-03-31.
type FiscalYear int

// FiscalYearOf returns the fiscal year a time falls into.
func FiscalYearOf(t time.Time) FiscalYear {
	if t.Month() < FiscalYearStartMonth {
		return FiscalYear(t.Year() - 1)
	}

	return FiscalYear(t.Year())
}

// ParseFiscalYear parses "2024" as well as "2024-25".
func ParseFiscalYear(s string) (FiscalYear, error) {
	s = strings.TrimSpace(s)
	start, end, found := strings.Cut(s, "-")

	year, err := strconv.Atoi(start)
	if err != nil || len(start) != 4 {
		return 0, fmt.Errorf("%w: '%s'", ErrFiscalYearInvalid, s)
	}

	if found {
		next := fmt.Sprintf("%02d", (year+1)%100)
		if end != next {
			return 0, fmt.Errorf("%w: '%s'", ErrFiscalYearInvalid, s)
		}
	}

	return FiscalYear(year), nil
}

// String returns the fiscal year in the "2024-25" notation.
func (f FiscalYear) String() string {
	return fmt.Sprintf("%04d-%02d", int(f), (int(f)+1)%100)
}

// Start returns the first instant of the fiscal year in UTC.
func (f FiscalYear) Start() time.Time {
	return time.Date(int(f), FiscalYearStartMonth, 1, 0, 0, 0, 0, time.UTC)
}

// End returns the first instant after the fiscal year. It is exclusive.
func (f FiscalYear) End() time.Time {
	return f.Next().Start()
}

// Next returns the following fiscal year.
func (f FiscalYear) Next() FiscalYear {
	return f + 1
}

// Contains reports whether t is inside the fiscal year.
func (f FiscalYear) Contains(t time.Time) bool {
	return FiscalYearOf(t.In(time.UTC)) == f
}

// IsZero reports if no fiscal year is set.
func (f FiscalYear) IsZero() bool {
	return f == 0
}

// UnmarshalParam allows gin to bind a fiscal year from path and query parameters.
func (f *FiscalYear) UnmarshalParam(p string) error {
	if p == "" {
		*f = 0
		return nil
	}

	parsed, err := ParseFiscalYear(p)
	if err != nil {
		return err
	}

	*f = parsed
	return nil
}
