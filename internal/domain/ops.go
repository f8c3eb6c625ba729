package domain

// Op enumerates the transport-control operations a playback session
// can forward to the active player.
type Op int

const (
	OpPause Op = iota
	OpSeekForward
	OpSeekBackward
	OpNextChapter
	OpPreviousChapter
	OpToggleLoop
	OpRestart
)

func (op Op) String() string {
	switch op {
	case OpPause:
		return "pause"
	case OpSeekForward:
		return "seek_forward"
	case OpSeekBackward:
		return "seek_backward"
	case OpNextChapter:
		return "next_chapter"
	case OpPreviousChapter:
		return "previous_chapter"
	case OpToggleLoop:
		return "toggle_loop"
	case OpRestart:
		return "restart"
	}
	return "unknown"
}
