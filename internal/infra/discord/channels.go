package discord

import (
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	zlog "github.com/rs/zerolog/log"

	"github.com/arca-org/arca-bot/internal/app/voice"
	domvoice "github.com/arca-org/arca-bot/internal/domain/voice"
)

// The Bot is the engine's window onto the guild: it resolves channels,
// paints roster embeds and delivers session summaries.

const statusEmbedColor = 0x5865F2

func (b *Bot) channel(channelID string) *discordgo.Channel {
	if ch, err := b.session.State.Channel(channelID); err == nil {
		return ch
	}
	ch, err := b.session.Channel(channelID)
	if err != nil {
		return nil
	}
	return ch
}

// IsTrackable reports whether the channel is a voice channel under the
// configured category.
func (b *Bot) IsTrackable(channelID string) bool {
	ch := b.channel(channelID)
	if ch == nil || ch.Type != discordgo.ChannelTypeGuildVoice || ch.ParentID == "" {
		return false
	}
	parent := b.channel(ch.ParentID)
	if parent == nil {
		return false
	}
	return b.cfg.IsTrackableCategory(parent.Name)
}

// ChannelName resolves a channel's display name.
func (b *Bot) ChannelName(channelID string) string {
	if ch := b.channel(channelID); ch != nil {
		return ch.Name
	}
	return channelID
}

// Occupants lists the non-bot members connected to a voice channel.
func (b *Bot) Occupants(channelID string) []voice.Occupant {
	ch := b.channel(channelID)
	if ch == nil {
		return nil
	}
	guild, err := b.session.State.Guild(ch.GuildID)
	if err != nil {
		return nil
	}

	var out []voice.Occupant
	for _, vs := range guild.VoiceStates {
		if vs.ChannelID != channelID {
			continue
		}
		username := vs.UserID
		if member, err := b.session.State.Member(ch.GuildID, vs.UserID); err == nil && member.User != nil {
			if member.User.Bot {
				continue
			}
			username = member.User.Username
		}
		out = append(out, voice.Occupant{UserID: vs.UserID, Username: username})
	}
	return out
}

// GuildAvailable reports whether the guild is present in the gateway state.
func (b *Bot) GuildAvailable(guildID string) bool {
	_, err := b.session.State.Guild(guildID)
	return err == nil
}

// UserVoiceChannel returns the channel the user is currently connected to.
func (b *Bot) UserVoiceChannel(guildID, userID string) (string, bool) {
	guild, err := b.session.State.Guild(guildID)
	if err != nil {
		return "", false
	}
	for _, vs := range guild.VoiceStates {
		if vs.UserID == userID && vs.ChannelID != "" {
			return vs.ChannelID, true
		}
	}
	return "", false
}

// statusEmbed renders the roster for a channel's status message.
func (b *Bot) statusEmbed(channelID string, entries []voice.StatusEntry) *discordgo.MessageEmbed {
	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		lines = append(lines, fmt.Sprintf("**%s** — %s · %d AC",
			e.Username, domvoice.FormatDuration(e.Duration), e.Earned))
	}
	description := "Ninguém na chamada."
	if len(lines) > 0 {
		description = ""
		for i, line := range lines {
			if i > 0 {
				description += "\n"
			}
			description += line
		}
	}
	return &discordgo.MessageEmbed{
		Title:       "🎙️ " + b.ChannelName(channelID),
		Description: description,
		Color:       statusEmbedColor,
		Footer: &discordgo.MessageEmbedFooter{
			Text: fmt.Sprintf("Ganhando %d AC por hora", b.cfg.Voice.ACPerHour),
		},
		Timestamp: time.Now().Format(time.RFC3339),
	}
}

// SendStatus posts a fresh roster embed into the channel's chat.
func (b *Bot) SendStatus(channelID string, entries []voice.StatusEntry) (string, error) {
	msg, err := b.session.ChannelMessageSendEmbed(channelID, b.statusEmbed(channelID, entries))
	if err != nil {
		return "", err
	}
	return msg.ID, nil
}

// EditStatus updates an existing roster embed in place.
func (b *Bot) EditStatus(channelID, messageID string, entries []voice.StatusEntry) error {
	_, err := b.session.ChannelMessageEditEmbed(channelID, messageID, b.statusEmbed(channelID, entries))
	return err
}

// DeleteMessage removes a message, tolerating it being gone already.
func (b *Bot) DeleteMessage(channelID, messageID string) error {
	return b.session.ChannelMessageDelete(channelID, messageID)
}

// ListRecentMessages returns the IDs of this bot's own status embeds among the
// channel's most recent messages. Used to sweep out embeds orphaned by a
// previous run.
func (b *Bot) ListRecentMessages(channelID string, limit int) []string {
	msgs, err := b.session.ChannelMessages(channelID, limit, "", "", "")
	if err != nil {
		zlog.Debug().Msgf("failed to list recent messages: channel=%s err=%v", channelID, err)
		return nil
	}

	botID := ""
	if b.session.State.User != nil {
		botID = b.session.State.User.ID
	}

	var out []string
	for _, msg := range msgs {
		if msg.Author == nil || msg.Author.ID != botID {
			continue
		}
		if len(msg.Embeds) == 0 || !strings.HasPrefix(msg.Embeds[0].Title, "🎙️") {
			continue
		}
		out = append(out, msg.ID)
	}
	return out
}

// SendSessionSummary DMs the user a recap of their finished voice session.
// Failures are logged and dropped; users can disable DMs.
func (b *Bot) SendSessionSummary(userID, username string, duration time.Duration, earned int) {
	dm, err := b.session.UserChannelCreate(userID)
	if err != nil {
		zlog.Debug().Msgf("failed to open DM channel: user=%s err=%v", userID, err)
		return
	}
	embed := &discordgo.MessageEmbed{
		Title: "📞 Resumo da chamada",
		Description: fmt.Sprintf("Você ficou **%s** em chamada e ganhou **%d AC**.",
			domvoice.FormatDuration(duration), earned),
		Color: statusEmbedColor,
	}
	if _, err := b.session.ChannelMessageSendEmbed(dm.ID, embed); err != nil {
		zlog.Debug().Msgf("failed to send session summary: user=%s err=%v", userID, err)
	}
}
