package session

import (
	"encoding/json"
	"fmt"
)

// MessageType tags a message posted by the login browser.
type MessageType string

const (
	MsgSessionExtracted  MessageType = "sessionExtracted"
	MsgCookiesExtracted  MessageType = "cookiesExtracted"
	MsgPageLoaded        MessageType = "pageLoaded"
	MsgAuthDataExtracted MessageType = "authDataExtracted"
	MsgScriptResult      MessageType = "scriptResult"
	MsgScriptError       MessageType = "scriptError"
	MsgAuthToken         MessageType = "authToken"
	MsgStorageUpdate     MessageType = "storageUpdate"
)

// Message is the union of every browser message shape. Fields not used by
// a given type are left empty.
type Message struct {
	Type      MessageType `json:"type"`
	RequestID string      `json:"requestId,omitempty"`

	// sessionExtracted, authDataExtracted, cookiesExtracted
	Cookies        string            `json:"cookies,omitempty"`
	LocalStorage   map[string]string `json:"localStorage,omitempty"`
	SessionStorage map[string]string `json:"sessionStorage,omitempty"`
	Tokens         map[string]string `json:"tokens,omitempty"`
	UserID         string            `json:"userId,omitempty"`

	// pageLoaded
	URL string `json:"url,omitempty"`

	// authToken
	Name  string `json:"name,omitempty"`
	Token string `json:"token,omitempty"`

	// storageUpdate
	Storage string `json:"storage,omitempty"` // "local" or "session"
	Key     string `json:"key,omitempty"`
	Value   string `json:"value,omitempty"`

	// scriptResult, scriptError
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// Validate checks the type tag.
func (m Message) Validate() error {
	switch m.Type {
	case MsgSessionExtracted, MsgCookiesExtracted, MsgPageLoaded, MsgAuthDataExtracted,
		MsgScriptResult, MsgScriptError, MsgAuthToken, MsgStorageUpdate:
		return nil
	case "":
		return fmt.Errorf("message type is required")
	}
	return fmt.Errorf("unknown message type %q", m.Type)
}

// ParseMessage decodes a raw browser message.
func ParseMessage(data []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return Message{}, fmt.Errorf("decoding browser message: %w", err)
	}
	if err := m.Validate(); err != nil {
		return Message{}, err
	}
	return m, nil
}
