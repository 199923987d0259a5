package internal

import (
	"fmt"
	"os"
	"path"
	"strings"
	"time"

	"github.com/schollz/progressbar/v3"
)

// NewEntryBar returns a byte progress bar on os.Stderr for one archive entry.
//
// The description is the action followed by the entry's base name truncated to 20 runes, e.g. `extract a.txt`. The
// bar is redrawn at most twice per second since transfer reports progress after every 512 KiB chunk.
func NewEntryBar(maxBytes int64, action, name string, options ...progressbar.Option) *progressbar.ProgressBar {
	return progressbar.NewOptions64(maxBytes,
		append([]progressbar.Option{
			progressbar.OptionSetDescription(fmt.Sprintf("%s %s", action, TruncateRightWithSuffix(baseName(name), 20, "..."))),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionShowBytes(true),
			progressbar.OptionSetWidth(10),
			progressbar.OptionThrottle(500 * time.Millisecond),
			progressbar.OptionShowCount(),
			progressbar.OptionOnCompletion(func() {
				_, _ = fmt.Fprint(os.Stderr, "\n")
			}),
			progressbar.OptionSpinnerType(14),
			progressbar.OptionSetRenderBlankState(true)},
			options...)...)
}

// baseName returns the last element of either a slash-separated ZIP entry name or a local path.
func baseName(name string) string {
	return path.Base(strings.ReplaceAll(name, "\\", "/"))
}
