package capture

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"keymeter/internal/keystroke"
)

// TimeLayout is the ISO-8601 layout used for every timestamp in a capture
// file: local time, microsecond resolution, numeric UTC offset.
const TimeLayout = "2006-01-02T15:04:05.000000Z07:00"

const (
	commentPrefix = "# "
	headerPrefix  = "# capture started at "
	footerPrefix  = "# capture stopped at "

	// maxLineLength bounds a line Summarize will parse. Longer lines are
	// counted as malformed.
	maxLineLength = 64 * 1024
)

// LineKind classifies a line of a capture file.
type LineKind int

const (
	LineKeystroke LineKind = iota
	LineHeader
	LineFooter
	LineComment
)

func (k LineKind) String() string {
	switch k {
	case LineKeystroke:
		return "keystroke"
	case LineHeader:
		return "header"
	case LineFooter:
		return "footer"
	case LineComment:
		return "comment"
	default:
		return fmt.Sprintf("LineKind(%d)", int(k))
	}
}

// Line is one parsed capture-file line. Key is set only for keystrokes.
type Line struct {
	Kind LineKind
	Time time.Time
	Key  keystroke.KeyEvent
}

// ErrMalformedLine is returned by ParseLine for lines that are neither
// metadata nor a timestamp/key record.
var ErrMalformedLine = errors.New("capture: malformed line")

// FormatLine renders a keystroke record, newline included.
func FormatLine(t time.Time, ev keystroke.KeyEvent) string {
	return t.Format(TimeLayout) + "\t" + ev.String() + "\n"
}

func formatHeader(t time.Time) string {
	return headerPrefix + t.Format(TimeLayout) + "\n"
}

func formatFooter(t time.Time) string {
	return footerPrefix + t.Format(TimeLayout) + "\n"
}

// ParseLine parses one line without its trailing newline.
func ParseLine(s string) (Line, error) {
	if strings.HasPrefix(s, "#") {
		for _, m := range []struct {
			prefix string
			kind   LineKind
		}{
			{headerPrefix, LineHeader},
			{footerPrefix, LineFooter},
		} {
			if rest, ok := strings.CutPrefix(s, m.prefix); ok {
				t, err := time.Parse(TimeLayout, rest)
				if err != nil {
					return Line{}, fmt.Errorf("%w: %v", ErrMalformedLine, err)
				}
				return Line{Kind: m.kind, Time: t}, nil
			}
		}
		return Line{Kind: LineComment}, nil
	}

	ts, key, ok := strings.Cut(s, "\t")
	if !ok || key == "" {
		return Line{}, fmt.Errorf("%w: %q", ErrMalformedLine, s)
	}
	t, err := time.Parse(TimeLayout, ts)
	if err != nil {
		return Line{}, fmt.Errorf("%w: %v", ErrMalformedLine, err)
	}
	return Line{Kind: LineKeystroke, Time: t, Key: keystroke.ParseKey(key)}, nil
}

// Summary describes a capture file's contents without its key values.
type Summary struct {
	Headers    int
	Footers    int
	Keystrokes int
	Malformed  int
	StartedAt  time.Time
	StoppedAt  time.Time
	FirstKey   time.Time
	LastKey    time.Time
}

// Clean reports whether the file has exactly one header and one footer.
func (s Summary) Clean() bool {
	return s.Headers == 1 && s.Footers == 1
}

// Summarize reads a capture file and counts its lines by kind. Lines that
// do not parse, including overlong ones, are counted as Malformed.
func Summarize(r io.Reader) (Summary, error) {
	var sum Summary
	br := bufio.NewReader(r)
	for {
		text, tooLong, err := readLine(br)
		if errors.Is(err, io.EOF) {
			return sum, nil
		}
		if err != nil {
			return sum, err
		}
		if tooLong {
			sum.Malformed++
			continue
		}
		if text == "" {
			continue
		}
		line, err := ParseLine(text)
		if err != nil {
			sum.Malformed++
			continue
		}
		switch line.Kind {
		case LineHeader:
			if sum.Headers == 0 {
				sum.StartedAt = line.Time
			}
			sum.Headers++
		case LineFooter:
			sum.StoppedAt = line.Time
			sum.Footers++
		case LineKeystroke:
			if sum.Keystrokes == 0 {
				sum.FirstKey = line.Time
			}
			sum.LastKey = line.Time
			sum.Keystrokes++
		}
	}
}

// readLine returns the next line without its terminator. A line longer
// than maxLineLength is consumed whole and reported as tooLong.
func readLine(br *bufio.Reader) (string, bool, error) {
	var buf []byte
	tooLong := false
	for {
		chunk, isPrefix, err := br.ReadLine()
		if err != nil {
			return "", false, err
		}
		if !tooLong {
			if len(buf)+len(chunk) > maxLineLength {
				tooLong = true
				buf = nil
			} else {
				buf = append(buf, chunk...)
			}
		}
		if !isPrefix {
			return string(buf), tooLong, nil
		}
	}
}
