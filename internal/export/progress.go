package export

import (
	"fmt"
	"io"

	"github.com/fatih/color"

	"github.com/hpungsan/stravagpx/internal/activity"
)

var manualTag = color.New(color.FgYellow)

// writeProgress prints the per-activity line, e.g. "   12. 9876 Run: Morning Run MANUAL".
func writeProgress(w io.Writer, n int, a activity.Activity) {
	fmt.Fprintf(w, "%5d. %d %s: %s", n, a.ID, a.SportType, a.Name)
	if a.Manual {
		fmt.Fprint(w, " "+manualTag.Sprint("MANUAL"))
	}
	fmt.Fprintln(w)
}
