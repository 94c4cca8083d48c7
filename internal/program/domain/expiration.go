package domain

import "time"

// ExpirationKind selects how a card's expiry is computed.
type ExpirationKind string

const (
	// ExpirationRelative expires N periods after issuance.
	ExpirationRelative ExpirationKind = "relative"
	// ExpirationAbsolute expires on the next occurrence of a fixed (day, month).
	ExpirationAbsolute ExpirationKind = "absolute"
)

// PeriodUnit is the unit for relative expiration.
type PeriodUnit string

const (
	PeriodDay   PeriodUnit = "day"
	PeriodMonth PeriodUnit = "month"
	PeriodYear  PeriodUnit = "year"
)

// ExpirationPolicy computes a card's expiry from its issuance time.
// Exactly one mode is populated: relative (PeriodUnit/PeriodValue) or
// absolute (Day/Month). All arithmetic is done in UTC.
type ExpirationPolicy struct {
	Kind        ExpirationKind `gorm:"type:text" json:"kind"`
	PeriodUnit  PeriodUnit     `gorm:"type:text" json:"period_unit,omitempty"`
	PeriodValue int            `json:"period_value,omitempty"`
	Day         int            `json:"day,omitempty"`
	Month       int            `json:"month,omitempty"`
}

// ExpiresAt returns the expiry for a card issued at issuedAt. It is a pure
// function of the policy and the issuance timestamp.
//
// Relative month/year arithmetic clamps to the last day of the target month
// (Jan 31 + 1 month = Feb 28/29), and the absolute mode clamps Feb 29
// anniversaries to Feb 28 on non-leap years.
func (p ExpirationPolicy) ExpiresAt(issuedAt time.Time) time.Time {
	issuedAt = issuedAt.UTC()

	switch p.Kind {
	case ExpirationRelative:
		switch p.PeriodUnit {
		case PeriodDay:
			return issuedAt.AddDate(0, 0, p.PeriodValue)
		case PeriodMonth:
			return addMonthsClamped(issuedAt, p.PeriodValue)
		case PeriodYear:
			return addMonthsClamped(issuedAt, 12*p.PeriodValue)
		}
	case ExpirationAbsolute:
		candidate := anniversary(issuedAt.Year(), p.Month, p.Day)
		if candidate.After(issuedAt) {
			return candidate
		}
		return anniversary(issuedAt.Year()+1, p.Month, p.Day)
	}

	return issuedAt
}

// Validate reports whether exactly one mode is populated with legal values.
func (p ExpirationPolicy) Validate() error {
	switch p.Kind {
	case ExpirationRelative:
		if p.Day != 0 || p.Month != 0 {
			return ErrInvalidExpiration
		}
		if p.PeriodValue <= 0 {
			return ErrInvalidExpiration
		}
		switch p.PeriodUnit {
		case PeriodDay, PeriodMonth, PeriodYear:
			return nil
		}
		return ErrInvalidExpiration
	case ExpirationAbsolute:
		if p.PeriodUnit != "" || p.PeriodValue != 0 {
			return ErrInvalidExpiration
		}
		if p.Month < 1 || p.Month > 12 {
			return ErrInvalidExpiration
		}
		// Day 29 in February is legal; it clamps on non-leap years.
		if p.Day < 1 || p.Day > daysInMonth(p.Month, 2024) {
			return ErrInvalidExpiration
		}
		return nil
	}
	return ErrInvalidExpiration
}

func anniversary(year, month, day int) time.Time {
	if max := daysInMonth(month, year); day > max {
		day = max
	}
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
}

func addMonthsClamped(t time.Time, months int) time.Time {
	year, month, day := t.Date()
	total := int(month) - 1 + months
	targetYear := year + total/12
	targetMonth := total%12 + 1
	if total < 0 {
		targetYear = year + (total-11)/12
		targetMonth = (total%12+12)%12 + 1
	}
	if max := daysInMonth(targetMonth, targetYear); day > max {
		day = max
	}
	hour, minute, second := t.Clock()
	return time.Date(targetYear, time.Month(targetMonth), day, hour, minute, second, t.Nanosecond(), time.UTC)
}

func daysInMonth(month, year int) int {
	// Day 0 of the next month is the last day of this month.
	return time.Date(year, time.Month(month)+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
