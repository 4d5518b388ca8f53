package domain

// Source represents the ingestion transport that produced a candidate.
type Source string

const (
	SourcePoll      Source = "POLL"
	SourceWebhook   Source = "WEBHOOK"
	SourceWebSocket Source = "WEBSOCKET"
	SourceManual    Source = "MANUAL"
)

// String returns the string representation of Source.
func (s Source) String() string {
	return string(s)
}

// IsValid checks if the source is a valid value.
func (s Source) IsValid() bool {
	switch s {
	case SourcePoll, SourceWebhook, SourceWebSocket, SourceManual:
		return true
	}
	return false
}
