package infrastructure

import "strings"

// shellSpecial lists the characters that force quoting when a command
// line is rendered for logs
const shellSpecial = " \t\n\r'\"$`\\!*?[](){}|;<>&~#%"

// ShellEscape quotes s so the logged command can be pasted into a shell.
// exec.Command itself never needs this.
func ShellEscape(s string) string {
	if s == "" {
		return "''"
	}
	if !strings.ContainsAny(s, shellSpecial) {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}

// ShellEscapeCommand renders binary and args as one loggable line
func ShellEscapeCommand(binary string, args ...string) string {
	var b strings.Builder
	b.WriteString(ShellEscape(binary))
	for _, arg := range args {
		b.WriteByte(' ')
		b.WriteString(ShellEscape(arg))
	}
	return b.String()
}

// lastLines keeps the trailing lines of a process' output for error
// messages
type lastLines struct {
	max   int
	lines []string
}

func newLastLines(max int) *lastLines {
	return &lastLines{max: max}
}

func (l *lastLines) add(line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}
	l.lines = append(l.lines, line)
	if len(l.lines) > l.max {
		l.lines = l.lines[len(l.lines)-l.max:]
	}
}

// String prefers the last ERROR line since yt-dlp prints the cause there
func (l *lastLines) String() string {
	for i := len(l.lines) - 1; i >= 0; i-- {
		if strings.HasPrefix(l.lines[i], "ERROR:") {
			return strings.TrimSpace(strings.TrimPrefix(l.lines[i], "ERROR:"))
		}
	}
	return strings.Join(l.lines, "; ")
}
