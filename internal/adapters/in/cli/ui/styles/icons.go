package styles

// Plain Unicode icons; no special terminal font needed.
const (
	IconSuccess = "✓"
	IconError   = "✗"
	IconWarning = "!"
)
