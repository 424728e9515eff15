package contracts

const (
	// MessageTypeRender updates the browser with the rendered tree view.
	MessageTypeRender = "render"
	// MessageTypeOpen asks the editor to open the file behind a rendered line.
	MessageTypeOpen = "open"
)

// IncomingMessage is the minimal envelope used to route browser messages.
type IncomingMessage struct {
	Type string
}

// OpenMessage requests the editor to open the entry rendered at Line.
type OpenMessage struct {
	Type string `json:"type"`
	Line int    `json:"line"`
}

// RenderMessage carries rendered HTML and revision metadata to the browser.
type RenderMessage struct {
	Type  string `json:"type"`
	HTML  string `json:"html"`
	Title string `json:"title"`
	Rev   uint64 `json:"rev"`
}
