package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	diffpatch "github.com/sergi/go-diff/diffmatchpatch"
)

// writeDiff prints a line diff of from and to. Removed lines are red with a
// "-" prefix, added lines green with "+". Nothing is printed when they match.
func writeDiff(w io.Writer, from, to string) {
	dmp := diffpatch.New()
	a, b, lines := dmp.DiffLinesToChars(from, to)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(a, b, false), lines)

	del := color.New(color.FgRed).SprintFunc()
	ins := color.New(color.FgGreen).SprintFunc()
	for _, d := range diffs {
		for _, line := range splitLines(d.Text) {
			switch d.Type {
			case diffpatch.DiffDelete:
				fmt.Fprintln(w, del("-"+line))
			case diffpatch.DiffInsert:
				fmt.Fprintln(w, ins("+"+line))
			}
		}
	}
}

func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(strings.TrimSuffix(s, "\n"), "\n")
}
