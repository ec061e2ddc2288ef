// Package discord glues the bot to the Discord gateway: command handling,
// voice state translation and the engine's channel/notifier collaborators.
package discord

import (
	"strings"
	"sync"

	"github.com/bwmarrin/discordgo"
	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/arca-org/arca-bot/internal/app/backup"
	"github.com/arca-org/arca-bot/internal/app/economy"
	"github.com/arca-org/arca-bot/internal/app/raffle"
	"github.com/arca-org/arca-bot/internal/app/voice"
	"github.com/arca-org/arca-bot/internal/infra/config"
)

// Bot wraps the gateway session and routes events to the stores and engine.
type Bot struct {
	session *discordgo.Session
	cfg     *config.Config

	economy *economy.Store
	raffles *raffle.Store
	store   *voice.Store
	backups *backup.Manager
	engine  *voice.Engine

	recoverOnce  sync.Once
	shutdownOnce sync.Once
	shutdownCh   chan struct{}
}

// New creates the bot and registers its gateway handlers. The voice engine
// is attached afterwards via SetEngine because it needs the bot as its
// channel collaborator.
func New(cfg *config.Config, econ *economy.Store, raffles *raffle.Store, store *voice.Store, backups *backup.Manager) (*Bot, error) {
	session, err := discordgo.New("Bot " + cfg.Bot.Token)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create Discord session")
	}

	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsGuildVoiceStates |
		discordgo.IntentsMessageContent

	b := &Bot{
		session:    session,
		cfg:        cfg,
		economy:    econ,
		raffles:    raffles,
		store:      store,
		backups:    backups,
		shutdownCh: make(chan struct{}),
	}

	session.AddHandler(b.ready)
	session.AddHandler(b.voiceStateUpdate)
	session.AddHandler(b.messageCreate)

	return b, nil
}

// SetEngine attaches the presence engine. Must be called before Start.
func (b *Bot) SetEngine(engine *voice.Engine) {
	b.engine = engine
}

// Start opens the gateway connection.
func (b *Bot) Start() error {
	if err := b.session.Open(); err != nil {
		return errors.Wrap(err, "failed to open Discord connection")
	}
	return nil
}

// Stop closes the gateway connection.
func (b *Bot) Stop() error {
	return b.session.Close()
}

// ShutdownRequested is closed when an admin issues the shutdown command.
func (b *Bot) ShutdownRequested() <-chan struct{} {
	return b.shutdownCh
}

func (b *Bot) requestShutdown() {
	b.shutdownOnce.Do(func() { close(b.shutdownCh) })
}

// ready fires once the gateway state is populated; that is the first moment
// persisted sessions can be checked against live voice state.
func (b *Bot) ready(s *discordgo.Session, r *discordgo.Ready) {
	zlog.Info().Msgf("gateway ready: user=%s guilds=%d", r.User.Username, len(r.Guilds))
	b.recoverOnce.Do(func() {
		if b.engine != nil {
			go b.engine.Recover()
		}
	})
}

// voiceStateUpdate translates a gateway voice event into the engine's
// normalized transition.
func (b *Bot) voiceStateUpdate(s *discordgo.Session, vs *discordgo.VoiceStateUpdate) {
	if b.engine == nil || vs.UserID == s.State.User.ID {
		return
	}

	username := vs.UserID
	if member, err := s.State.Member(vs.GuildID, vs.UserID); err == nil && member.User != nil {
		if member.User.Bot {
			return
		}
		username = member.User.Username
	}

	oldChannelID := ""
	if vs.BeforeUpdate != nil {
		oldChannelID = vs.BeforeUpdate.ChannelID
	}

	b.engine.HandleVoiceState(voice.StateUpdate{
		UserID:       vs.UserID,
		Username:     username,
		GuildID:      vs.GuildID,
		OldChannelID: oldChannelID,
		NewChannelID: vs.ChannelID,
	})
}

// messageCreate dispatches prefix commands and counts ordinary messages
// toward the activity reward.
func (b *Bot) messageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot || m.GuildID == "" {
		return
	}

	content := strings.TrimSpace(m.Content)
	prefix := b.cfg.Bot.CommandPrefix

	if !strings.HasPrefix(content, prefix) {
		b.handleActivityMessage(m, content)
		return
	}

	fields := strings.Fields(strings.TrimPrefix(content, prefix))
	if len(fields) == 0 {
		return
	}
	command, args := strings.ToLower(fields[0]), fields[1:]

	switch command {
	case "saldo":
		b.handleBalance(m)
	case "diario":
		b.handleDaily(m)
	case "ranking":
		b.handleLeaderboard(m)
	case "transferir":
		b.handleTransfer(m, args)
	case "economia":
		b.handleEconomyStats(m)
	case "ticket":
		b.handleBuyTicket(m)
	case "sorteio":
		b.handleRaffle(m, args)
	case "pagar":
		b.adminOnly(m, func() { b.handleGrant(m, args) })
	case "remover":
		b.adminOnly(m, func() { b.handleRemove(m, args) })
	case "distribuir":
		b.adminOnly(m, func() { b.handleDistribute(m, args) })
	case "voice-status":
		b.adminOnly(m, func() { b.handleVoiceStatus(m) })
	case "backup":
		b.adminOnly(m, func() { b.handleBackup(m, args) })
	case "desligar":
		b.adminOnly(m, func() { b.handleShutdown(m) })
	}
}

// isAdmin decides whether the author may run admin commands. Configured IDs
// always win; outside strict mode the Discord Administrator permission is
// accepted too.
func (b *Bot) isAdmin(m *discordgo.MessageCreate) bool {
	if b.cfg.IsAdminUser(m.Author.ID) {
		return true
	}
	if m.Member != nil && b.cfg.HasAdminRole(m.Member.Roles) {
		return true
	}
	if b.cfg.Bot.StrictAdmin {
		return false
	}
	perms, err := b.session.UserChannelPermissions(m.Author.ID, m.ChannelID)
	if err != nil {
		return false
	}
	return perms&discordgo.PermissionAdministrator != 0
}

func (b *Bot) adminOnly(m *discordgo.MessageCreate, fn func()) {
	if !b.isAdmin(m) {
		b.reply(m, "Você não tem permissão para usar este comando.")
		return
	}
	fn()
}

func (b *Bot) reply(m *discordgo.MessageCreate, text string) {
	if _, err := b.session.ChannelMessageSend(m.ChannelID, text); err != nil {
		zlog.Debug().Msgf("failed to send reply: channel=%s err=%v", m.ChannelID, err)
	}
}

func (b *Bot) replyEmbed(m *discordgo.MessageCreate, embed *discordgo.MessageEmbed) {
	if _, err := b.session.ChannelMessageSendEmbed(m.ChannelID, embed); err != nil {
		zlog.Debug().Msgf("failed to send embed: channel=%s err=%v", m.ChannelID, err)
	}
}
