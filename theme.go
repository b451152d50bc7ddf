package tensorchat

// Theme defines semantic color mappings using ANSI color indices (0-15).
// The user's terminal theme determines the actual RGB values, so output
// automatically matches any color scheme. A negative index means no color.
type Theme struct {
	Pending   int // tensors not yet started
	Searching int // retrieval in progress
	Streaming int // receiving chunks
	Success   int // completed tensors
	Error     int // failed tensors and session errors
	Muted     int // status bar, metadata
	CodeBg    int // code block background
	Accent    int // headings, links
}

// DefaultTheme returns the default ANSI color mapping.
func DefaultTheme() Theme {
	return Theme{
		Pending:   8,
		Searching: 6,
		Streaming: 3,
		Success:   2,
		Error:     1,
		Muted:     8,
		CodeBg:    0,
		Accent:    5,
	}
}

// StatusColor returns the theme color for a tensor status.
func (t Theme) StatusColor(s TensorStatus) int {
	switch s {
	case TensorSearching:
		return t.Searching
	case TensorStreaming:
		return t.Streaming
	case TensorCompleted:
		return t.Success
	case TensorFailed:
		return t.Error
	default:
		return t.Pending
	}
}
