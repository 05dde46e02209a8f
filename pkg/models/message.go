package models

// IncomingMessage is a chat message handed to the answer service.
// It is transient and never persisted.
type IncomingMessage struct {
	Text      string `json:"text"`
	Origin    string `json:"origin"` // conversation (channel) identifier
	Author    string `json:"author"`
	IsDirect  bool   `json:"is_direct"`
	Mentioned bool   `json:"mentioned"` // the bot was mentioned in the message
	FromSelf  bool   `json:"from_self"` // the message was sent by the bot itself
}
