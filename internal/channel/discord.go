package channel

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/prosabot/prosa/internal/bus"
	"github.com/prosabot/prosa/internal/config"
)

// Session abstracts the discordgo session so tests can substitute a fake.
type Session interface {
	Open() error
	Close() error
	AddHandler(handler interface{}) func()
	ChannelMessageSend(channelID, content string) (*discordgo.Message, error)
	SelfID() string
}

// SessionFactory creates a Session from a bot token. Overridable in tests.
type SessionFactory func(token string) (Session, error)

// NewDiscordSession builds a real discordgo session with the intents the
// relay needs: guild messages, DMs and message content.
func NewDiscordSession(token string) (Session, error) {
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("discord: create session: %w", err)
	}
	s.Identify.Intents = discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentMessageContent
	return &discordSession{s: s}, nil
}

type discordSession struct {
	s *discordgo.Session
}

func (d *discordSession) Open() error  { return d.s.Open() }
func (d *discordSession) Close() error { return d.s.Close() }

func (d *discordSession) AddHandler(handler interface{}) func() {
	return d.s.AddHandler(handler)
}

func (d *discordSession) ChannelMessageSend(channelID, content string) (*discordgo.Message, error) {
	return d.s.ChannelMessageSend(channelID, content)
}

func (d *discordSession) SelfID() string {
	if d.s.State != nil && d.s.State.User != nil {
		return d.s.State.User.ID
	}
	return ""
}

// Discord bridges a Discord gateway connection to the message bus. Guild
// messages are relayed only when the bot is mentioned; DMs are always relayed.
type Discord struct {
	token   string
	bus     *bus.MessageBus
	factory SessionFactory
	logger  *slog.Logger

	// mu guards session and removeHandler: event handlers run on discordgo
	// goroutines that can overlap a Stop.
	mu            sync.Mutex
	session       Session
	removeHandler func()
}

func NewDiscord(token string, b *bus.MessageBus, factory SessionFactory, logger *slog.Logger) *Discord {
	if factory == nil {
		factory = NewDiscordSession
	}
	return &Discord{
		token:   token,
		bus:     b,
		factory: factory,
		logger:  logger.With("component", "discord"),
	}
}

func (d *Discord) Name() string { return "discord" }

func (d *Discord) Start(ctx context.Context) error {
	session, err := d.factory(d.token)
	if err != nil {
		return err
	}

	d.mu.Lock()
	d.session = session
	d.removeHandler = session.AddHandler(d.onMessageCreate)
	d.mu.Unlock()

	if err := session.Open(); err != nil {
		d.mu.Lock()
		d.session = nil
		d.removeHandler = nil
		d.mu.Unlock()
		return fmt.Errorf("discord: open gateway: %w", err)
	}
	d.logger.Info("discord channel connected")
	return nil
}

func (d *Discord) Stop() error {
	d.mu.Lock()
	session := d.session
	removeHandler := d.removeHandler
	d.session = nil
	d.removeHandler = nil
	d.mu.Unlock()

	if session == nil {
		return nil
	}
	if removeHandler != nil {
		removeHandler()
	}
	err := session.Close()
	d.logger.Info("discord channel disconnected")
	return err
}

func (d *Discord) currentSession() Session {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.session
}

// Send delivers one outbound message, splitting content that exceeds the
// platform limit into sequential chunks.
func (d *Discord) Send(msg bus.OutboundMessage) error {
	session := d.currentSession()
	if session == nil {
		return fmt.Errorf("discord: not connected")
	}
	for _, chunk := range SplitMessage(msg.Content, config.MessageLimit) {
		if _, err := session.ChannelMessageSend(msg.ChatID, chunk); err != nil {
			return fmt.Errorf("discord: send to %s: %w", msg.ChatID, err)
		}
	}
	return nil
}

func (d *Discord) onMessageCreate(_ *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil {
		return
	}
	session := d.currentSession()
	if session == nil {
		return
	}
	selfID := session.SelfID()
	if m.Author.ID == selfID || m.Author.Bot {
		return
	}

	isDM := m.GuildID == ""
	mentioned := false
	for _, u := range m.Mentions {
		if u != nil && u.ID == selfID {
			mentioned = true
			break
		}
	}
	if !isDM && !mentioned {
		return
	}

	content := stripMention(m.Content, selfID)
	if content == "" {
		return
	}

	inbound := bus.InboundMessage{
		Channel:   d.Name(),
		UserID:    m.Author.ID,
		Username:  m.Author.Username,
		ChatID:    m.ChannelID,
		Content:   content,
		Timestamp: time.Now(),
		DM:        isDM,
		Mentioned: mentioned,
	}

	select {
	case d.bus.Inbound <- inbound:
	default:
		d.logger.Warn("inbound queue full, message dropped", "user_id", m.Author.ID)
	}
}

// stripMention removes the bot's mention tokens from content. Discord renders
// a mention as <@id> or <@!id> depending on whether the member has a nickname.
func stripMention(content, selfID string) string {
	content = strings.ReplaceAll(content, "<@"+selfID+">", "")
	content = strings.ReplaceAll(content, "<@!"+selfID+">", "")
	return strings.TrimSpace(content)
}
