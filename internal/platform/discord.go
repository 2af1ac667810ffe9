package platform

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/bwmarrin/discordgo"
)

// DiscordClient drives one Discord bot connection through discordgo.
type DiscordClient struct {
	dg        *discordgo.Session
	mu        sync.RWMutex
	connected bool
	onMessage []func(Message)
	onButton  []func(ButtonClick)
}

// NewDiscordClient reads a bot token from tokenFile and prepares a session.
// The session is not opened until Connect.
func NewDiscordClient(tokenFile string) (*DiscordClient, error) {
	raw, err := os.ReadFile(tokenFile)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrCredentialNotFound, tokenFile)
		}
		return nil, err
	}
	token := strings.TrimSpace(string(raw))
	if token == "" {
		return nil, fmt.Errorf("%w: empty token in %s", ErrBadCredentials, tokenFile)
	}

	dg, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadCredentials, err)
	}

	c := &DiscordClient{dg: dg}
	c.dg.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsGuildMembers |
		discordgo.IntentsMessageContent

	// Handlers must fire in gateway arrival order; consumers do their own
	// queuing, so delivery itself stays cheap.
	c.dg.SyncEvents = true

	dg.AddHandler(c.handleMessageCreate)
	dg.AddHandler(c.handleMemberAdd)
	dg.AddHandler(c.handleInteractionCreate)
	dg.AddHandler(func(s *discordgo.Session, _ *discordgo.Disconnect) {
		c.mu.Lock()
		c.connected = false
		c.mu.Unlock()
	})
	dg.AddHandler(func(s *discordgo.Session, _ *discordgo.Resumed) {
		c.mu.Lock()
		c.connected = true
		c.mu.Unlock()
	})
	return c, nil
}

func (c *DiscordClient) Connect() error {
	if err := c.dg.Open(); err != nil {
		if strings.Contains(err.Error(), "Authentication failed") {
			return fmt.Errorf("%w: %v", ErrBadCredentials, err)
		}
		return err
	}
	c.mu.Lock()
	c.connected = true
	c.mu.Unlock()
	return nil
}

func (c *DiscordClient) Disconnect() error {
	c.mu.Lock()
	c.connected = false
	c.mu.Unlock()
	return c.dg.Close()
}

func (c *DiscordClient) Connected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

func (c *DiscordClient) SendMessage(conversationID, text string) error {
	if !c.Connected() {
		return ErrNotConnected
	}
	_, err := c.dg.ChannelMessageSend(conversationID, text)
	return err
}

// ClickButton is not available to bot accounts on Discord; component presses
// require a user interaction. Callers fall through to their next path.
func (c *DiscordClient) ClickButton(conversationID, messageID, customID string) error {
	return ErrUnsupported
}

func (c *DiscordClient) OnMessage(fn func(Message)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onMessage = append(c.onMessage, fn)
}

func (c *DiscordClient) OnButton(fn func(ButtonClick)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onButton = append(c.onButton, fn)
}

func (c *DiscordClient) handleMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.ID == s.State.User.ID {
		return
	}
	msg := Message{
		ConversationID: m.ChannelID,
		MessageID:      m.ID,
		SenderID:       m.Author.ID,
		SenderName:     m.Author.Username,
		Text:           m.Content,
		Group:          m.GuildID != "",
	}
	c.mu.RLock()
	handlers := append([]func(Message){}, c.onMessage...)
	c.mu.RUnlock()
	for _, fn := range handlers {
		fn(msg)
	}
}

func (c *DiscordClient) handleMemberAdd(s *discordgo.Session, m *discordgo.GuildMemberAdd) {
	if m.User == nil || m.User.ID == s.State.User.ID {
		return
	}
	msg := Message{
		ConversationID: m.GuildID,
		SenderID:       m.User.ID,
		SenderName:     m.User.Username,
		NewMember:      true,
		Group:          true,
	}
	c.mu.RLock()
	handlers := append([]func(Message){}, c.onMessage...)
	c.mu.RUnlock()
	for _, fn := range handlers {
		fn(msg)
	}
}

func (c *DiscordClient) handleInteractionCreate(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionMessageComponent {
		return
	}
	var senderID string
	if i.Member != nil && i.Member.User != nil {
		senderID = i.Member.User.ID
	} else if i.User != nil {
		senderID = i.User.ID
	}
	var messageID string
	if i.Message != nil {
		messageID = i.Message.ID
	}
	click := ButtonClick{
		ConversationID: i.ChannelID,
		MessageID:      messageID,
		SenderID:       senderID,
		CustomID:       i.MessageComponentData().CustomID,
		Group:          i.GuildID != "",
	}
	c.mu.RLock()
	handlers := append([]func(ButtonClick){}, c.onButton...)
	c.mu.RUnlock()
	for _, fn := range handlers {
		fn(click)
	}
}
