// Package availability は連絡先の1日の利用可能時間帯の判定を提供する。
package availability

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ParseClock は "HH:MM"（24時間表記）を0時からの経過分に変換する。
func ParseClock(s string) (int, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok || len(hh) == 0 || len(hh) > 2 || len(mm) != 2 || !digits(hh) || !digits(mm) {
		return 0, fmt.Errorf("invalid time of day %q: want HH:MM", s)
	}

	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid minute in %q", s)
	}

	return h*60 + m, nil
}

func digits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// ValidClock は s が HH:MM として解釈できるかを返す。
func ValidClock(s string) bool {
	_, err := ParseClock(s)
	return err == nil
}

// MinutesOfDay は now の壁時計時刻を0時からの経過分で返す。
// 秒以下は切り捨てる。
func MinutesOfDay(now time.Time) int {
	return now.Hour()*60 + now.Minute()
}

// IsAvailable は now が [from, to] の時間帯（両端含む）に入っているかを返す。
//
// 日付をまたぐ時間帯（from > to）は空の範囲として扱い、常に false を返す。
// from / to が不正な形式の場合も false。
func IsAvailable(from, to string, now time.Time) bool {
	fromMin, err := ParseClock(from)
	if err != nil {
		return false
	}
	toMin, err := ParseClock(to)
	if err != nil {
		return false
	}

	cur := MinutesOfDay(now)
	return fromMin <= cur && cur <= toMin
}

// Evaluator は設定されたタイムゾーンの現在時刻で判定を行う。
type Evaluator struct {
	loc   *time.Location
	clock func() time.Time
}

// NewEvaluator はEvaluatorを生成する。locがnilの場合はtime.Localを使用する。
func NewEvaluator(loc *time.Location) *Evaluator {
	if loc == nil {
		loc = time.Local
	}
	return &Evaluator{loc: loc, clock: time.Now}
}

// Now は判定に使う現在時刻を返す。
func (e *Evaluator) Now() time.Time {
	return e.clock().In(e.loc)
}

// IsAvailableNow は現在時刻で IsAvailable を評価する。
func (e *Evaluator) IsAvailableNow(from, to string) bool {
	return IsAvailable(from, to, e.Now())
}
