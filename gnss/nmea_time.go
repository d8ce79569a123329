package gnss

import (
	"fmt"
	"time"

	"github.com/adrianmo/go-nmea"
)

// rmcUTC derives a time.Time from an RMC sentence's Date and Time
// fields. go-nmea represents two-digit years (00-79 => 2000-2079,
// 80-99 => 1980-1999 per the NMEA convention it implements).
func rmcUTC(rmc nmea.RMC) (time.Time, error) {
	year := rmc.Date.YY
	if year < 80 {
		year += 2000
	} else {
		year += 1900
	}
	if rmc.Date.MM < 1 || rmc.Date.MM > 12 || rmc.Date.DD < 1 || rmc.Date.DD > 31 {
		return time.Time{}, fmt.Errorf("gnss: invalid RMC date %02d-%02d-%02d", rmc.Date.YY, rmc.Date.MM, rmc.Date.DD)
	}
	return time.Date(
		year, time.Month(rmc.Date.MM), rmc.Date.DD,
		rmc.Time.Hour, rmc.Time.Minute, rmc.Time.Second,
		rmc.Time.Millisecond*int(time.Millisecond),
		time.UTC,
	), nil
}
