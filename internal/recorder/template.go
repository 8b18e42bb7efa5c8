package recorder

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const segmentNumberToken = "N"

// clock holds the four time fields a filename template can reference.
type clock struct {
	day, hour, minute, second int
}

func clockOf(t time.Time) clock {
	return clock{day: t.Day(), hour: t.Hour(), minute: t.Minute(), second: t.Second()}
}

// RenderFilename builds the final path of a finished segment from a policy
// filename template.
//
// Every "N" in the template becomes the segment number. Then the first
// remaining "DD", "HH", "II" and "SS" take the start time's day, hour, minute
// and second, and the next occurrence of each takes the end time's. Values are
// zero-padded to two digits. The result is joined to StoragePath with the OS
// path separator and is not cleaned.
//
// A literal N anywhere in the template is replaced too, so "NEWS" renders as
// "1EWS" for segment 1.
func RenderFilename(template string, info SegmentInfo) string {
	name := renderName(template, info.Number, clockOf(info.Start()), clockOf(info.End))
	return info.StoragePath + string(os.PathSeparator) + name
}

func renderName(template string, number int, start, end clock) string {
	name := strings.ReplaceAll(template, segmentNumberToken, strconv.Itoa(number))
	for _, t := range []struct {
		token string
		value int
	}{
		{"DD", start.day},
		{"HH", start.hour},
		{"II", start.minute},
		{"SS", start.second},
		{"DD", end.day},
		{"HH", end.hour},
		{"II", end.minute},
		{"SS", end.second},
	} {
		name = strings.Replace(name, t.token, fmt.Sprintf("%02d", t.value), 1)
	}
	return name
}
