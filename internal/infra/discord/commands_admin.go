package discord

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	zlog "github.com/rs/zerolog/log"

	"github.com/arca-org/arca-bot/internal/app/backup"
	domvoice "github.com/arca-org/arca-bot/internal/domain/voice"
)

const adminEmbedColor = 0xFEE75C

func (b *Bot) handleGrant(m *discordgo.MessageCreate, args []string) {
	target, amount, ok := b.parseUserAmount(m, args)
	if !ok {
		b.reply(m, fmt.Sprintf("Formato: %spagar @usuário <quantia>", b.cfg.Bot.CommandPrefix))
		return
	}

	user, err := b.economy.AddBalance(target.ID, amount)
	if err != nil {
		b.reply(m, "Não foi possível creditar a quantia.")
		return
	}

	zlog.Info().Msgf("admin grant: admin=%s target=%s amount=%d", m.Author.ID, target.ID, amount)
	b.reply(m, fmt.Sprintf("✅ %d AC creditados para %s (saldo: %d AC).",
		amount, target.Mention(), user.Balance))
}

func (b *Bot) handleRemove(m *discordgo.MessageCreate, args []string) {
	target, amount, ok := b.parseUserAmount(m, args)
	if !ok {
		b.reply(m, fmt.Sprintf("Formato: %sremover @usuário <quantia>", b.cfg.Bot.CommandPrefix))
		return
	}

	user, removed, err := b.economy.RemoveBalance(target.ID, amount)
	if err != nil {
		b.reply(m, "Não foi possível remover a quantia.")
		return
	}

	zlog.Info().Msgf("admin removal: admin=%s target=%s requested=%d removed=%d",
		m.Author.ID, target.ID, amount, removed)
	b.reply(m, fmt.Sprintf("✅ %d AC removidos de %s (saldo: %d AC).",
		removed, target.Mention(), user.Balance))
}

// handleDistribute credits everyone currently in the caller's voice channel.
func (b *Bot) handleDistribute(m *discordgo.MessageCreate, args []string) {
	if len(args) < 1 {
		b.reply(m, fmt.Sprintf("Formato: %sdistribuir <quantia>", b.cfg.Bot.CommandPrefix))
		return
	}
	amount, err := strconv.Atoi(args[0])
	if err != nil || amount <= 0 {
		b.reply(m, "A quantia precisa ser um número positivo.")
		return
	}

	channelID, ok := b.UserVoiceChannel(m.GuildID, m.Author.ID)
	if !ok {
		b.reply(m, "Entre em um canal de voz para distribuir.")
		return
	}

	occupants := b.Occupants(channelID)
	if len(occupants) == 0 {
		b.reply(m, "Não há ninguém no canal para receber.")
		return
	}

	var paid []string
	for _, o := range occupants {
		if _, err := b.economy.AddBalance(o.UserID, amount); err != nil {
			zlog.Error().Msgf("failed to distribute: user=%s err=%v", o.UserID, err)
			continue
		}
		paid = append(paid, o.Username)
	}

	zlog.Info().Msgf("admin distribution: admin=%s channel=%s amount=%d recipients=%d",
		m.Author.ID, channelID, amount, len(paid))
	b.reply(m, fmt.Sprintf("🎉 %d AC distribuídos para %d pessoa(s) em **%s**: %s",
		amount, len(paid), b.ChannelName(channelID), strings.Join(paid, ", ")))
}

func (b *Bot) handleVoiceStatus(m *discordgo.MessageCreate) {
	sessions := b.store.AllActiveSessions()
	if len(sessions) == 0 {
		b.reply(m, "Nenhuma sessão de voz ativa no momento.")
		return
	}

	var sb strings.Builder
	for _, sess := range sessions {
		fmt.Fprintf(&sb, "**%s** em %s — %s · %d AC\n",
			sess.Username, sess.ChannelName,
			domvoice.FormatDuration(time.Since(sess.StartTime)), sess.ACEarned)
	}

	b.replyEmbed(m, &discordgo.MessageEmbed{
		Title:       fmt.Sprintf("📊 Sessões ativas (%d)", len(sessions)),
		Description: sb.String(),
		Color:       adminEmbedColor,
		Footer: &discordgo.MessageEmbedFooter{
			Text: "Último snapshot: " + b.store.LastSave().Format("02/01 15:04:05"),
		},
	})
}

func (b *Bot) handleBackup(m *discordgo.MessageCreate, args []string) {
	backupType := backup.TypeFull
	if len(args) > 0 {
		backupType = strings.ToLower(args[0])
	}

	meta, err := b.backups.Create(backupType, "manual backup by "+m.Author.Username)
	if err != nil {
		b.reply(m, "Não foi possível criar o backup: "+err.Error())
		return
	}
	b.reply(m, fmt.Sprintf("💾 Backup `%s` criado (%s).", meta.Name, meta.Type))
}

func (b *Bot) handleShutdown(m *discordgo.MessageCreate) {
	zlog.Warn().Msgf("shutdown requested via command: admin=%s", m.Author.ID)
	b.reply(m, "🔌 Desligando: salvando sessões e criando backup...")
	b.requestShutdown()
}
