package forward

import "time"

// Options tunes the chatbox mode.
type Options struct {
	MinInterval   time.Duration
	ChatboxFormat string
}
