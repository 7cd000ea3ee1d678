package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"rsc.io/qr"
)

// Level gates which lines reach the output.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

var (
	mu      sync.Mutex
	noColor bool
)

var (
	out   io.Writer = os.Stderr
	level Level     = LevelInfo
)

const (
	reset  = "\033[0m"
	bold   = "\033[1m"
	dim    = "\033[2m"
	red    = "\033[31m"
	green  = "\033[32m"
	yellow = "\033[33m"
	blue   = "\033[34m"
	cyan   = "\033[36m"
	white  = "\033[37m"

	brightRed  = "\033[91m"
	brightCyan = "\033[96m"

	// Teal shades (256-color)
	teal     = "\033[38;5;37m"
	deepTeal = "\033[38;5;30m"
	seafoam  = "\033[38;5;79m"
)

func init() {
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		noColor = true
	}
}

// SetOutput redirects all log lines. A nil writer restores stderr.
func SetOutput(w io.Writer) {
	if w == nil {
		w = os.Stderr
	}
	mu.Lock()
	out = w
	mu.Unlock()
}

// SetLevel parses debug, info, warn or error. Unknown names fall back to info.
func SetLevel(name string) {
	mu.Lock()
	defer mu.Unlock()
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		level = LevelDebug
	case "warn", "warning":
		level = LevelWarn
	case "error":
		level = LevelError
	default:
		level = LevelInfo
	}
}

// SetColor forces color on or off regardless of NO_COLOR.
func SetColor(enabled bool) {
	mu.Lock()
	noColor = !enabled
	mu.Unlock()
}

func enabled(l Level) bool {
	mu.Lock()
	defer mu.Unlock()
	return l >= level
}

func c(code, text string) string {
	if noColor {
		return text
	}
	return code + text + reset
}

func ts() string {
	return c(dim, time.Now().Format("15:04:05"))
}

func write(format string, args ...interface{}) {
	mu.Lock()
	fmt.Fprintf(out, format+"\n", args...)
	mu.Unlock()
}

func Banner(version string) {
	lines := "\n" +
		"  " + c(teal, `//  //`) + "\n" +
		" " + c(teal, `(( AC ))`) + "  " + c(bold+brightCyan, "AnyClaw") + " " + c(dim, version) + "\n" +
		"  " + c(teal, `\\  \\`) + "   " + c(dim, "One gateway per tenant") + "\n" +
		c(dim, " ─────────────────────────────────") + "\n"
	mu.Lock()
	fmt.Fprint(out, lines)
	mu.Unlock()
}

func Debug(format string, args ...interface{}) {
	if !enabled(LevelDebug) {
		return
	}
	msg := fmt.Sprintf(format, args...)
	write("%s  %s  %s", ts(), c(blue, "·"), c(dim, msg))
}

func Info(format string, args ...interface{}) {
	if !enabled(LevelInfo) {
		return
	}
	msg := fmt.Sprintf(format, args...)
	write("%s  %s  %s", ts(), c(cyan, "~"), msg)
}

func Success(format string, args ...interface{}) {
	if !enabled(LevelInfo) {
		return
	}
	msg := fmt.Sprintf(format, args...)
	write("%s  %s  %s", ts(), c(green, "✓"), msg)
}

func Warn(format string, args ...interface{}) {
	if !enabled(LevelWarn) {
		return
	}
	msg := fmt.Sprintf(format, args...)
	write("%s  %s  %s", ts(), c(yellow, "⚠"), c(yellow, msg))
}

func Error(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	write("%s  %s  %s", ts(), c(red, "✗"), c(red, msg))
}

func Fatal(format string, args ...interface{}) {
	Error(format, args...)
	os.Exit(1)
}

// Gateway logs a lifecycle transition for one tenant gateway.
func Gateway(profile, event, detail string) {
	if !enabled(LevelInfo) {
		return
	}
	ec := teal
	switch event {
	case "error", "stopped":
		ec = brightRed
	case "connected":
		ec = green
	}
	write("%s  %s %s %s %s",
		ts(),
		c(seafoam, "⚙"),
		c(deepTeal, profile),
		c(ec, fmt.Sprintf("%-10s", event)),
		c(dim, detail),
	)
}

func WS(event, detail string) {
	if !enabled(LevelDebug) {
		return
	}
	var icon, eventColor string
	switch event {
	case "connected":
		icon = c(seafoam, "⚡")
		eventColor = seafoam
	case "disconnected":
		icon = c(deepTeal, "·")
		eventColor = deepTeal
	default:
		icon = c(teal, "↔")
		eventColor = teal
	}
	write("%s  %s %s %s",
		ts(),
		icon,
		c(eventColor, fmt.Sprintf("%-14s", "ws:"+event)),
		c(cyan, detail),
	)
}

func Listen(addr string, urls ...string) {
	write("")
	write("%s  %s  Listening on %s", ts(), c(brightCyan, "⚓"), c(bold+white, addr))
	for _, url := range urls {
		write("              %s  %s", c(dim, "→"), c(cyan, url))
	}
	write("")
}

// QR renders payload as a terminal QR code under a short label. Used by the
// CLI to show a WhatsApp pairing code without a browser.
func QR(label, payload string) {
	write("%s  %s  %s", ts(), c(seafoam, "▣"), label)
	for _, line := range RenderQR(payload) {
		write("              %s", c(teal, line))
	}
}

// RenderQR returns the half-block rows for payload, or nil if it cannot be
// encoded.
func RenderQR(payload string) []string {
	code, err := qr.Encode(payload, qr.L)
	if err != nil {
		return nil
	}

	size := code.Size
	quiet := 1
	full := size + quiet*2

	black := func(x, y int) bool {
		qx, qy := x-quiet, y-quiet
		if qx < 0 || qy < 0 || qx >= size || qy >= size {
			return false
		}
		return code.Black(qx, qy)
	}

	rows := make([]string, 0, (full+1)/2)
	for y := 0; y < full; y += 2 {
		var line strings.Builder
		for x := 0; x < full; x++ {
			top := black(x, y)
			bot := y+1 < full && black(x, y+1)

			switch {
			case top && bot:
				line.WriteString("█")
			case top:
				line.WriteString("▀")
			case bot:
				line.WriteString("▄")
			default:
				line.WriteString(" ")
			}
		}
		rows = append(rows, line.String())
	}
	return rows
}

func Shutdown(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	write("")
	write("%s  %s  %s", ts(), c(yellow, "⏻"), c(dim, msg))
}

func Bye() {
	write("%s  %s  %s", ts(), c(dim, "~"), c(dim, "Stopped. Gateways keep running under systemd."))
	write("")
}

func HTTP(method, path string, status int, dur time.Duration) {
	if !enabled(LevelInfo) {
		return
	}
	statusStr := fmt.Sprintf("%d", status)
	var coloredStatus string
	switch {
	case status >= 400:
		coloredStatus = "\033[41;97m " + statusStr + " \033[0m"
		if noColor {
			coloredStatus = statusStr
		}
	default:
		coloredStatus = c(dim+teal, statusStr)
	}

	mc := teal
	switch method {
	case "POST", "PUT", "PATCH":
		mc = seafoam
	case "DELETE":
		mc = brightRed
	}

	write("%s  %s %s %s %s",
		ts(),
		c(mc, "["+method+"]"),
		coloredStatus,
		c(dim, path),
		c(dim, fmtDuration(dur)),
	)
}

func fmtDuration(d time.Duration) string {
	switch {
	case d < time.Millisecond:
		return fmt.Sprintf("%dµs", d.Microseconds())
	case d < time.Second:
		ms := float64(d.Microseconds()) / 1000.0
		if ms < 10 {
			return fmt.Sprintf("%.1fms", ms)
		}
		return fmt.Sprintf("%.0fms", ms)
	default:
		return fmt.Sprintf("%.2fs", d.Seconds())
	}
}
