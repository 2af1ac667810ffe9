// Package platform abstracts the group-messaging client. The wire protocol
// itself lives in the underlying library; this package only defines the
// primitives the fleet needs: connect, disconnect, send, and event delivery.
package platform

import "errors"

var (
	// ErrCredentialNotFound means the credential file reference does not exist.
	ErrCredentialNotFound = errors.New("credential file not found")
	// ErrBadCredentials means the platform rejected the credential.
	ErrBadCredentials = errors.New("bad credentials")
	// ErrUnsupported means the client does not implement the requested path.
	ErrUnsupported = errors.New("operation not supported by this client")
	// ErrNotConnected is returned by send paths while offline.
	ErrNotConnected = errors.New("client not connected")
)

// Message is one inbound conversation message.
type Message struct {
	ConversationID string
	MessageID      string
	SenderID       string
	SenderName     string
	Text           string
	NewMember      bool // a member-join marker rather than a text message
	Group          bool // true for group/channel conversations
}

// ButtonClick is one inbound interactive-button press.
type ButtonClick struct {
	ConversationID string
	MessageID      string
	SenderID       string
	CustomID       string
	Group          bool
}

// Client is one persistent connection to the messaging platform.
// Implementations must be safe for concurrent use.
type Client interface {
	Connect() error
	Disconnect() error
	Connected() bool
	SendMessage(conversationID, text string) error
	// ClickButton presses an interactive button on an existing message.
	// Clients that cannot press buttons return ErrUnsupported.
	ClickButton(conversationID, messageID, customID string) error
	// Handlers are invoked sequentially in arrival order. They must return
	// quickly; slow work belongs on the consumer's side of a queue.
	OnMessage(fn func(Message))
	OnButton(fn func(ButtonClick))
}
