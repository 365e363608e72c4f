package wire

import (
	"encoding/binary"
	"time"
)

// DateSize is the wire size of a packed date.
const DateSize = 8

// Date is the packed date used in file info parameters and flat-file info
// forks: the calendar year, a millisecond remainder, and seconds elapsed
// since January 1 of that year.
type Date struct {
	Year    uint16
	Millis  uint16
	Seconds uint32
}

// NewDate packs a time.Time. Times are interpreted in UTC; the
// millisecond field is left zero, matching what classic servers emit.
func NewDate(t time.Time) Date {
	t = t.UTC()
	yearStart := time.Date(t.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
	return Date{
		Year:    uint16(t.Year()),
		Seconds: uint32(t.Sub(yearStart) / time.Second),
	}
}

// Time unpacks the date back to a time.Time in UTC.
func (d Date) Time() time.Time {
	yearStart := time.Date(int(d.Year), time.January, 1, 0, 0, 0, 0, time.UTC)
	return yearStart.Add(time.Duration(d.Seconds) * time.Second)
}

// Encode serializes the packed date.
func (d Date) Encode() []byte {
	buf := make([]byte, DateSize)
	binary.BigEndian.PutUint16(buf[0:2], d.Year)
	binary.BigEndian.PutUint16(buf[2:4], d.Millis)
	binary.BigEndian.PutUint32(buf[4:8], d.Seconds)
	return buf
}

// ParseDate extracts a packed date.
func ParseDate(data []byte) (Date, error) {
	if len(data) < DateSize {
		return Date{}, ErrMessageTooShort
	}
	return Date{
		Year:    binary.BigEndian.Uint16(data[0:2]),
		Millis:  binary.BigEndian.Uint16(data[2:4]),
		Seconds: binary.BigEndian.Uint32(data[4:8]),
	}, nil
}

// NewDateField builds a packed-date parameter.
func NewDateField(id uint16, t time.Time) Field {
	return Field{ID: id, Data: NewDate(t).Encode()}
}
