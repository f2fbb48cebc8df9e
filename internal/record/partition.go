package record

import (
	"errors"
	"fmt"
	"time"
)

const DateLayout = "2006-01-02"

var ErrInvalidDate = errors.New("invalid date")

// PartitionKey identifies one day partition of the table.
type PartitionKey struct {
	Year  int
	Month int
	Day   int
}

// PartitionFor returns the partition of t in t's location.
func PartitionFor(t time.Time) PartitionKey {
	y, m, d := t.Date()
	return PartitionKey{Year: y, Month: int(m), Day: d}
}

// String renders the hive style directory of the partition.
func (k PartitionKey) String() string {
	return fmt.Sprintf("year=%04d/month=%02d/day=%02d", k.Year, k.Month, k.Day)
}

// Date renders the key as YYYY-MM-DD.
func (k PartitionKey) Date() string {
	return fmt.Sprintf("%04d-%02d-%02d", k.Year, k.Month, k.Day)
}

// Compare orders keys chronologically.
func (k PartitionKey) Compare(o PartitionKey) int {
	switch {
	case k.Year != o.Year:
		return cmpInt(k.Year, o.Year)
	case k.Month != o.Month:
		return cmpInt(k.Month, o.Month)
	default:
		return cmpInt(k.Day, o.Day)
	}
}

// Within reports start <= k <= end.
func (k PartitionKey) Within(start, end PartitionKey) bool {
	return k.Compare(start) >= 0 && k.Compare(end) <= 0
}

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// ParseDate parses a YYYY-MM-DD literal.
func ParseDate(s string) (PartitionKey, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return PartitionKey{}, fmt.Errorf("%w %q: format should be YYYY-MM-DD", ErrInvalidDate, s)
	}
	return PartitionFor(t), nil
}

// ParseRange validates an inclusive date range the way readers of the table
// do: the start is required, the end defaults to the start, and the end may
// not precede the start.
func ParseRange(start, end string) (PartitionKey, PartitionKey, error) {
	if start == "" {
		return PartitionKey{}, PartitionKey{}, fmt.Errorf("%w: missing start date", ErrInvalidDate)
	}
	from, err := ParseDate(start)
	if err != nil {
		return PartitionKey{}, PartitionKey{}, err
	}
	to := from
	if end != "" {
		to, err = ParseDate(end)
		if err != nil {
			return PartitionKey{}, PartitionKey{}, err
		}
	}
	if to.Compare(from) < 0 {
		return PartitionKey{}, PartitionKey{}, fmt.Errorf("%w: end date cannot be earlier than start date", ErrInvalidDate)
	}
	return from, to, nil
}

// ParsePartitionPath parses "year=YYYY/month=MM/day=DD".
func ParsePartitionPath(p string) (PartitionKey, bool) {
	var k PartitionKey
	n, err := fmt.Sscanf(p, "year=%d/month=%d/day=%d", &k.Year, &k.Month, &k.Day)
	if err != nil || n != 3 {
		return PartitionKey{}, false
	}
	return k, true
}
