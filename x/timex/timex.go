package timex

import "time"

// NowMs returns Unix milliseconds as int64.
func NowMs() int64 { return time.Now().UnixMilli() }

// Unix32 returns t as unsigned 32-bit Unix seconds, saturating at both ends.
// Pre-1970 clocks (an unset RTC) read as 0.
func Unix32(t time.Time) uint32 {
	s := t.Unix()
	switch {
	case s < 0:
		return 0
	case s > 0xFFFFFFFF:
		return 0xFFFFFFFF
	}
	return uint32(s)
}

// FromUnix32 is the inverse of Unix32 (UTC).
func FromUnix32(s uint32) time.Time { return time.Unix(int64(s), 0).UTC() }
