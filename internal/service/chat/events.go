package chat

// Event types written to the client stream
const (
	EventToken      = "token"
	EventWebsearch  = "websearch"
	EventDeepsearch = "deepsearch"
	EventEnd        = "end"
	EventError      = "error"
	EventAborted    = "aborted"
)

// Event is one NDJSON object of the client stream
type Event interface {
	EventType() string
}

// TokenEvent carries one content fragment
type TokenEvent struct {
	Type  string `json:"type"`
	Token string `json:"token"`
	Done  bool   `json:"done"`
}

// SourcesEvent carries the citation list of a search-augmented turn, ahead of any token
type SourcesEvent struct {
	Type    string   `json:"type"`
	Sources []string `json:"sources"`
}

// EndEvent closes a successful turn
type EndEvent struct {
	Type              string `json:"type"`
	Tokens            int64  `json:"tokens"`
	Time              string `json:"time"`
	ConversationID    string `json:"conversation_id"`
	IsNewConversation bool   `json:"is_new_conversation"`
}

// ErrorEvent closes a failed turn
type ErrorEvent struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// AbortedEvent closes a cancelled turn
type AbortedEvent struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func (e TokenEvent) EventType() string   { return e.Type }
func (e SourcesEvent) EventType() string { return e.Type }
func (e EndEvent) EventType() string     { return e.Type }
func (e ErrorEvent) EventType() string   { return e.Type }
func (e AbortedEvent) EventType() string { return e.Type }

// EventSink is the client side of a streamed turn. Open commits the response
// headers; after that, failures must be reported as events.
type EventSink interface {
	Open() error
	Send(event Event) error
	Opened() bool
}
