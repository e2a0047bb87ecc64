package action

import (
	"fmt"
	"strings"
	"time"

	"github.com/jakesimonds/Creator/internal/command"
)

// Frame is one step of the progress indicator: either text or an encoded
// bitmap.
type Frame struct {
	Text  string
	Image string
}

func (f Frame) effect(d time.Duration) command.Effect {
	if f.Image != "" {
		return command.Image(f.Image, d)
	}
	return command.Text(f.Text, d)
}

// TextFrames builds n text frames for cmd with a cycling ellipsis.
func TextFrames(cmd string, n int) []Frame {
	frames := make([]Frame, 0, n)
	for i := 0; i < n; i++ {
		frames = append(frames, Frame{Text: fmt.Sprintf("Creating %q%s", cmd, strings.Repeat(".", i%3+1))})
	}
	return frames
}

// frameSlice is the display time of each frame so that all frames together
// take total.
func frameSlice(total time.Duration, n int) time.Duration {
	if n <= 0 || total <= 0 {
		return 0
	}
	return total / time.Duration(n)
}
