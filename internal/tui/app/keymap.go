package app

// Key binding constants used in handleKey.
const (
	KeyQuit       = "q"
	KeyCtrlC      = "ctrl+c"
	KeyTab        = "tab"
	KeyPrevPage   = "left"
	KeyPrevPageH  = "h"
	KeyNextPage   = "right"
	KeyNextPageL  = "l"
	KeyUp         = "up"
	KeyDown       = "down"
	KeyJ          = "j"
	KeyK          = "k"
	KeySearch     = "/"
	KeyUpload     = "u"
	KeyRecordOnce = "r"
	KeyContinuous = "c"
	KeyStop       = "s"
	KeyReset      = "esc"
	KeyEnter      = "enter"
)
