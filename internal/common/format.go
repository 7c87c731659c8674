package common

import (
	"fmt"
	"strings"
	"time"
)

// DefaultWidth is the column width of every report the CLIs print
const DefaultWidth = 80

const timeLayout = "2006-01-02 15:04:05"

// PrintSeparator prints width copies of char
func PrintSeparator(char string, width int) {
	fmt.Println(strings.Repeat(char, width))
}

// PrintHeader opens a report section
func PrintHeader(title string, width int) {
	fmt.Printf("\n%s\n%s\n", strings.Repeat("=", width), title)
	PrintSeparator("=", width)
}

// PrintFooter closes a report with a one-line summary
func PrintFooter(summary string, width int) {
	fmt.Printf("\n%s\n%s\n%s\n\n", strings.Repeat("=", width), summary, strings.Repeat("=", width))
}

// PrintBoxSeparator rules off an account block from its entries
func PrintBoxSeparator(width int) {
	fmt.Println("├" + strings.Repeat("─", width))
}

// BoxPrefix is the tree glyph in front of a list row
func BoxPrefix(isLast bool) string {
	if isLast {
		return "└  "
	}
	return "│  "
}

// FormatCC renders a CC amount. signed adds a plus to credits.
func FormatCC(amount int64, signed bool) string {
	if signed && amount > 0 {
		return fmt.Sprintf("+%d CC", amount)
	}
	return fmt.Sprintf("%d CC", amount)
}

// FormatRef shortens a ledger ref to at most limit characters plus an ellipsis
func FormatRef(ref string, limit int) string {
	switch {
	case ref == "":
		return "none"
	case limit > 0 && len(ref) > limit:
		return ref[:limit] + "..."
	}
	return ref
}

// FormatTime renders t in UTC, or "never" for the zero time
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return t.UTC().Format(timeLayout)
}
