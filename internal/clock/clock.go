package clock

import (
	"time"

	"go.uber.org/fx"
)

var Module = fx.Module("clock",
	fx.Provide(func() Clock { return SystemClock{} }),
)

type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}

// Jakarta is the business timezone; queue numbers and "today" are computed in it.
var Jakarta = loadJakarta()

func loadJakarta() *time.Location {
	loc, err := time.LoadLocation("Asia/Jakarta")
	if err != nil {
		return time.FixedZone("WIB", 7*60*60)
	}
	return loc
}

// BusinessDate returns the Asia/Jakarta calendar date of t as YYYY-MM-DD.
func BusinessDate(t time.Time) string {
	return t.In(Jakarta).Format("2006-01-02")
}

// StartOfBusinessDay returns midnight Asia/Jakarta for the day containing t.
func StartOfBusinessDay(t time.Time) time.Time {
	local := t.In(Jakarta)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, Jakarta)
}
