package journal

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// InputKind says what a day input asks for.
type InputKind int

const (
	// InputOpen only opens the resolved day.
	InputOpen InputKind = iota
	// InputMemo appends a memo to the resolved day.
	InputMemo
	// InputTask appends a task to the resolved day.
	InputTask
)

// Input is the parsed form of what the user typed into the day prompt.
type Input struct {
	Kind InputKind
	// Date is the day the input refers to, at midnight local time.
	Date time.Time
	// Text is the memo or task text.
	Text string
}

var (
	offsetPattern   = regexp.MustCompile(`^[+-]?\d{1,4}$`)
	isoPattern      = regexp.MustCompile(`^(\d{4})-(\d{1,2})-(\d{1,2})$`)
	monthDayPattern = regexp.MustCompile(`^(\d{1,2})-(\d{1,2})$`)
	taskPrefix      = regexp.MustCompile(`(?i)^(task|todo)\b[:\s]*`)
)

var weekdays = map[string]time.Weekday{
	"sunday": time.Sunday, "sun": time.Sunday,
	"monday": time.Monday, "mon": time.Monday,
	"tuesday": time.Tuesday, "tue": time.Tuesday,
	"wednesday": time.Wednesday, "wed": time.Wednesday,
	"thursday": time.Thursday, "thu": time.Thursday,
	"friday": time.Friday, "fri": time.Friday,
	"saturday": time.Saturday, "sat": time.Saturday,
}

// Midnight truncates t to the start of its day.
func Midnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// ParseInput interprets a day prompt relative to now.
//
// A leading date token selects the day: an offset ("+1", "-2", "0"), an ISO
// date, "mm-dd", a day of the current month ("dd" is taken as an offset only
// when signed), or a weekday optionally prefixed with "next" or "last".
// Remaining text becomes a memo, or a task when prefixed with "task".
func ParseInput(raw string, now time.Time) (Input, error) {
	today := Midnight(now)
	in := Input{Kind: InputOpen, Date: today}

	fields := strings.Fields(strings.TrimSpace(raw))
	if len(fields) == 0 {
		return in, nil
	}

	date, used, err := parseDateToken(fields, today)
	if err != nil {
		return Input{}, err
	}
	if used > 0 {
		in.Date = date
	}

	text := strings.Join(fields[used:], " ")
	if text == "" {
		return in, nil
	}

	if loc := taskPrefix.FindStringIndex(text); loc != nil {
		task := strings.TrimSpace(text[loc[1]:])
		if task == "" {
			return Input{}, fmt.Errorf("task text must not be empty")
		}
		in.Kind = InputTask
		in.Text = task
		return in, nil
	}

	in.Kind = InputMemo
	in.Text = text
	return in, nil
}

// parseDateToken reads the date at the start of fields and reports how many
// fields it consumed.
func parseDateToken(fields []string, today time.Time) (time.Time, int, error) {
	first := strings.ToLower(fields[0])

	switch first {
	case "today":
		return today, 1, nil
	case "tomorrow":
		return today.AddDate(0, 0, 1), 1, nil
	case "yesterday":
		return today.AddDate(0, 0, -1), 1, nil
	case "next", "last":
		if len(fields) > 1 {
			if wd, ok := weekdays[strings.ToLower(fields[1])]; ok {
				weeks := 1
				if first == "last" {
					weeks = -1
				}
				return RelativeWeekday(today, wd, weeks), 2, nil
			}
		}
		return time.Time{}, 0, nil
	}

	if wd, ok := weekdays[first]; ok {
		return RelativeWeekday(today, wd, 0), 1, nil
	}

	if m := isoPattern.FindStringSubmatch(first); m != nil {
		d, err := buildDate(atoi(m[1]), atoi(m[2]), atoi(m[3]), today.Location())
		return d, 1, err
	}

	if m := monthDayPattern.FindStringSubmatch(first); m != nil {
		d, err := buildDate(today.Year(), atoi(m[1]), atoi(m[2]), today.Location())
		return d, 1, err
	}

	if offsetPattern.MatchString(first) {
		n := atoi(first)
		if first[0] == '+' || first[0] == '-' || n == 0 {
			return today.AddDate(0, 0, n), 1, nil
		}
		d, err := buildDate(today.Year(), int(today.Month()), n, today.Location())
		return d, 1, err
	}

	return time.Time{}, 0, nil
}

// RelativeWeekday returns an occurrence of wd relative to today, which is
// never returned itself. weeks 0 is the coming occurrence, one to seven days
// ahead, and each further week adds seven days. weeks -1 is the most recent
// past occurrence.
func RelativeWeekday(today time.Time, wd time.Weekday, weeks int) time.Time {
	if weeks >= 0 {
		diff := (int(wd) - int(today.Weekday()) + 7) % 7
		if diff == 0 {
			diff = 7
		}
		return today.AddDate(0, 0, diff+7*weeks)
	}
	diff := (int(today.Weekday()) - int(wd) + 7) % 7
	if diff == 0 {
		diff = 7
	}
	return today.AddDate(0, 0, -diff+7*(weeks+1))
}

func buildDate(year, month, day int, loc *time.Location) (time.Time, error) {
	d := time.Date(year, time.Month(month), day, 0, 0, 0, 0, loc)
	if d.Year() != year || int(d.Month()) != month || d.Day() != day {
		return time.Time{}, fmt.Errorf("invalid date %04d-%02d-%02d", year, month, day)
	}
	return d, nil
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
