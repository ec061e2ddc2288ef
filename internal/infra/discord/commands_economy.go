package discord

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	zlog "github.com/rs/zerolog/log"

	"github.com/cockroachdb/errors"

	"github.com/arca-org/arca-bot/internal/app/economy"
)

const economyEmbedColor = 0x57F287

// handleActivityMessage counts an ordinary message toward the activity
// reward and posts a short-lived notice when one is paid.
func (b *Bot) handleActivityMessage(m *discordgo.MessageCreate, content string) {
	if len(content) < b.cfg.Economy.Messages.MinMessageLength {
		return
	}

	reward, err := b.economy.AddMessage(m.Author.ID)
	if err != nil {
		zlog.Error().Msgf("failed to count message: user=%s err=%v", m.Author.ID, err)
		return
	}
	if reward == 0 {
		return
	}

	msg, err := b.session.ChannelMessageSend(m.ChannelID,
		fmt.Sprintf("💬 %s ganhou **%d AC** por atividade no chat!", m.Author.Mention(), reward))
	if err != nil {
		return
	}
	// The notice is transient so reward spam does not bury the chat.
	time.AfterFunc(10*time.Second, func() {
		if err := b.session.ChannelMessageDelete(m.ChannelID, msg.ID); err != nil {
			zlog.Debug().Msgf("failed to delete reward notice: err=%v", err)
		}
	})
}

func (b *Bot) handleBalance(m *discordgo.MessageCreate) {
	user, err := b.economy.GetUser(m.Author.ID)
	if err != nil {
		b.reply(m, "Não foi possível consultar seu saldo.")
		return
	}

	b.replyEmbed(m, &discordgo.MessageEmbed{
		Title: "💰 Saldo de " + m.Author.Username,
		Color: economyEmbedColor,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Saldo", Value: fmt.Sprintf("%d AC", user.Balance), Inline: true},
			{Name: "Total ganho", Value: fmt.Sprintf("%d AC", user.TotalEarned), Inline: true},
			{Name: "Total gasto", Value: fmt.Sprintf("%d AC", user.TotalSpent), Inline: true},
		},
	})
}

func (b *Bot) handleDaily(m *discordgo.MessageCreate) {
	res, err := b.economy.ClaimDaily(m.Author.ID)
	if err != nil {
		if errors.Is(err, economy.ErrDailyAlreadyClaimed) {
			b.reply(m, "⏳ Você já resgatou sua recompensa diária hoje. Volte depois da meia-noite!")
			return
		}
		b.reply(m, "Não foi possível resgatar a recompensa diária.")
		return
	}

	b.replyEmbed(m, &discordgo.MessageEmbed{
		Title: "🎁 Recompensa diária",
		Description: fmt.Sprintf("%s recebeu **%d AC** (%d base + %d bônus)!",
			m.Author.Mention(), res.Total, res.Base, res.Bonus),
		Color: economyEmbedColor,
		Footer: &discordgo.MessageEmbedFooter{
			Text: fmt.Sprintf("Saldo atual: %d AC", res.Balance),
		},
	})
}

func (b *Bot) handleLeaderboard(m *discordgo.MessageCreate) {
	top := b.economy.Leaderboard(10)
	if len(top) == 0 {
		b.reply(m, "Ainda não há ninguém no ranking.")
		return
	}

	medals := []string{"🥇", "🥈", "🥉"}
	var sb strings.Builder
	for i, user := range top {
		marker := fmt.Sprintf("%d.", i+1)
		if i < len(medals) {
			marker = medals[i]
		}
		fmt.Fprintf(&sb, "%s <@%s> — **%d AC**\n", marker, user.UserID, user.Balance)
	}

	b.replyEmbed(m, &discordgo.MessageEmbed{
		Title:       "🏆 Ranking de riqueza",
		Description: sb.String(),
		Color:       economyEmbedColor,
	})
}

func (b *Bot) handleTransfer(m *discordgo.MessageCreate, args []string) {
	target, amount, ok := b.parseUserAmount(m, args)
	if !ok {
		b.reply(m, fmt.Sprintf("Formato: %stransferir @usuário <quantia>", b.cfg.Bot.CommandPrefix))
		return
	}
	if target.Bot {
		b.reply(m, "Bots não têm carteira.")
		return
	}

	from, _, err := b.economy.Transfer(m.Author.ID, target.ID, amount)
	if err != nil {
		switch {
		case errors.Is(err, economy.ErrSelfTransfer):
			b.reply(m, "Você não pode transferir para si mesmo.")
		case errors.Is(err, economy.ErrInsufficientFunds):
			b.reply(m, "Saldo insuficiente para essa transferência.")
		case errors.Is(err, economy.ErrBelowMinimum):
			b.reply(m, fmt.Sprintf("A transferência mínima é de %d AC.", b.cfg.Economy.Transfer.MinAmount))
		case errors.Is(err, economy.ErrAboveMaximum):
			b.reply(m, fmt.Sprintf("A transferência máxima é de %d AC.", b.cfg.Economy.Transfer.MaxAmount))
		default:
			b.reply(m, "Não foi possível concluir a transferência.")
		}
		return
	}

	b.replyEmbed(m, &discordgo.MessageEmbed{
		Title: "💸 Transferência concluída",
		Description: fmt.Sprintf("%s enviou **%d AC** para %s.",
			m.Author.Mention(), amount, target.Mention()),
		Color: economyEmbedColor,
		Footer: &discordgo.MessageEmbedFooter{
			Text: fmt.Sprintf("Seu saldo: %d AC", from.Balance),
		},
	})
}

func (b *Bot) handleEconomyStats(m *discordgo.MessageCreate) {
	users, totalBalance, totalEarned := b.economy.Stats()

	b.replyEmbed(m, &discordgo.MessageEmbed{
		Title: "📊 Economia do servidor",
		Color: economyEmbedColor,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Usuários", Value: strconv.Itoa(users), Inline: true},
			{Name: "AC em circulação", Value: strconv.Itoa(totalBalance), Inline: true},
			{Name: "AC gerados", Value: strconv.Itoa(totalEarned), Inline: true},
		},
	})
}

// parseUserAmount extracts the mentioned user and a positive amount from a
// "@user <n>" argument list.
func (b *Bot) parseUserAmount(m *discordgo.MessageCreate, args []string) (*discordgo.User, int, bool) {
	if len(args) < 2 || len(m.Mentions) == 0 {
		return nil, 0, false
	}
	amount, err := strconv.Atoi(args[len(args)-1])
	if err != nil || amount <= 0 {
		return nil, 0, false
	}
	return m.Mentions[0], amount, true
}
