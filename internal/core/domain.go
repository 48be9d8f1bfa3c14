package core

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	Daily   Granularity = "day"
	Weekly  Granularity = "week"
	Monthly Granularity = "month"
	Yearly  Granularity = "year"
)

const (
	UnitHour  Unit = "hour"
	UnitDay   Unit = "day"
	UnitMonth Unit = "month"
)

type (
	// Granularity is the aggregation window selected by the caller.
	Granularity string

	// Unit tells the presentation layer how to interpret a bucket timestamp.
	Unit string

	// Date is a calendar date, always midnight UTC.
	Date struct {
		time.Time
	}

	Money struct {
		Cents int64
	}

	// Tip is a single recorded tip. BusinessDate is the day the tip counts
	// toward, independent of when it was entered; both date fields are
	// immutable after creation.
	Tip struct {
		ID           uuid.UUID
		Amount       Money
		Comment      string
		BusinessDate Date
		CreatedAt    time.Time
	}

	// Day groups the tips sharing one business date. Derived per query,
	// never persisted.
	Day struct {
		Date Date
		Tips []Tip
	}

	// Bucket is one slot of a chart series. Present even at zero amount.
	Bucket struct {
		Timestamp time.Time
		Amount    Money
		Unit      Unit
	}

	// Summary is the full aggregate bundle for one (granularity, anchor)
	// query.
	Summary struct {
		Days   []Day
		Total  Money
		Series []Bucket
		Unit   Unit
	}
)

var (
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrInvalidDate        = errors.New("invalid date")
	ErrInvalidGranularity = errors.New("invalid granularity")
	ErrCommentTooLong     = errors.New("comment too long (max 200 characters)")
	ErrTipNotFound        = errors.New("tip not found")
)

func (g Granularity) Validate() error {
	switch g {
	case Daily, Weekly, Monthly, Yearly:
		return nil
	default:
		return ErrInvalidGranularity
	}
}

// Unit returns the bucket unit the granularity charts with.
func (g Granularity) Unit() Unit {
	switch g {
	case Daily:
		return UnitHour
	case Yearly:
		return UnitMonth
	default:
		return UnitDay
	}
}

// NewDate creates a Date from year, month, day.
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates a timestamp to its calendar date.
func DateOf(t time.Time) Date {
	y, m, d := t.UTC().Date()
	return NewDate(y, int(m), d)
}

func (d Date) Validate() error {
	if d.IsZero() {
		return ErrInvalidDate
	}
	return nil
}

// AddDays returns the date n calendar days later (or earlier for negative n).
func (d Date) AddDays(n int) Date {
	return Date{Time: d.Time.AddDate(0, 0, n)}
}

// String renders the date as YYYY-MM-DD.
func (d Date) String() string {
	return d.Format("2006-01-02")
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse("2006-01-02", strings.TrimSpace(s))
	if err != nil {
		return Date{}, ErrInvalidDate
	}
	return Date{Time: t}, nil
}

func (m Money) Validate() error {
	if m.Cents < 0 {
		return ErrInvalidAmount
	}
	return nil
}

func (t Tip) Validate() error {
	if err := t.Amount.Validate(); err != nil {
		return err
	}
	if err := t.BusinessDate.Validate(); err != nil {
		return err
	}
	if t.CreatedAt.IsZero() {
		return ErrInvalidDate
	}
	if len(t.Comment) > 200 {
		return ErrCommentTooLong
	}
	return nil
}

// NewTip builds a validated tip with a fresh ID. The business date is
// truncated to midnight here so downstream bucketing never sees a
// time-of-day component.
func NewTip(amount Money, comment string, businessDate Date, createdAt time.Time) (Tip, error) {
	tip := Tip{
		ID:           uuid.New(),
		Amount:       amount,
		Comment:      strings.TrimSpace(comment),
		BusinessDate: DateOf(businessDate.Time),
		CreatedAt:    createdAt,
	}
	if err := tip.Validate(); err != nil {
		return Tip{}, err
	}
	return tip, nil
}
