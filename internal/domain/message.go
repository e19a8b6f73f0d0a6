package domain

// InboundMessage is a single user message delivered by a channel adapter.
type InboundMessage struct {
	// EventID correlates log lines for one delivery; assigned at ingress.
	EventID  string `json:"event_id"`
	WaID     string `json:"wa_id"`
	Text     string `json:"text,omitempty"`
	AudioURL string `json:"audio_url,omitempty"`
}

// HasAudio returns true if the message carries an audio attachment.
func (m InboundMessage) HasAudio() bool {
	return m.AudioURL != ""
}
