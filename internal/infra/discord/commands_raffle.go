package discord

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/arca-org/arca-bot/internal/app/raffle"
	domraffle "github.com/arca-org/arca-bot/internal/domain/raffle"
)

const raffleEmbedColor = 0xEB459E

func (b *Bot) handleRaffle(m *discordgo.MessageCreate, args []string) {
	if len(args) == 0 {
		b.reply(m, fmt.Sprintf(
			"Subcomandos: %[1]ssorteio criar <preço> <título> · %[1]ssorteio sortear · %[1]ssorteio cancelar · %[1]ssorteio painel",
			b.cfg.Bot.CommandPrefix))
		return
	}

	switch strings.ToLower(args[0]) {
	case "criar":
		b.handleRaffleCreate(m, args[1:])
	case "sortear":
		b.handleRaffleDraw(m)
	case "cancelar":
		b.handleRaffleCancel(m)
	case "painel":
		b.handleRafflePanel(m)
	default:
		b.reply(m, "Subcomando desconhecido. Use criar, sortear, cancelar ou painel.")
	}
}

func (b *Bot) handleRaffleCreate(m *discordgo.MessageCreate, args []string) {
	if len(args) < 2 {
		b.reply(m, fmt.Sprintf("Formato: %ssorteio criar <preço> <título>", b.cfg.Bot.CommandPrefix))
		return
	}
	price, err := strconv.Atoi(args[0])
	if err != nil {
		b.reply(m, "O preço do primeiro ticket precisa ser um número.")
		return
	}
	title := strings.Join(args[1:], " ")

	r, err := b.raffles.Create(title, m.Author.ID, m.ChannelID, price)
	if err != nil {
		switch {
		case errors.Is(err, raffle.ErrActiveExists):
			b.reply(m, "Este canal já tem um sorteio em andamento.")
		case errors.Is(err, raffle.ErrPriceOutOfBounds):
			b.reply(m, fmt.Sprintf("O preço precisa estar entre %d e %d AC.",
				b.cfg.Raffle.MinFirstTicketPrice, b.cfg.Raffle.MaxFirstTicketPrice))
		default:
			b.reply(m, "Não foi possível criar o sorteio.")
		}
		return
	}

	b.postRafflePanel(m.ChannelID, r)
}

func (b *Bot) handleBuyTicket(m *discordgo.MessageCreate) {
	r, price, err := b.raffles.QuoteTicket(m.ChannelID, m.Author.ID)
	if err != nil {
		switch {
		case errors.Is(err, raffle.ErrNotFound):
			b.reply(m, "Não há sorteio ativo neste canal.")
		case errors.Is(err, raffle.ErrFull):
			b.reply(m, "O sorteio atingiu o limite de participantes.")
		case errors.Is(err, raffle.ErrMaxTicketsReached):
			b.reply(m, fmt.Sprintf("Você já tem o máximo de %d tickets.", b.cfg.Raffle.MaxTicketsPerUser))
		default:
			b.reply(m, "Não foi possível consultar o sorteio.")
		}
		return
	}

	user, err := b.economy.GetUser(m.Author.ID)
	if err != nil {
		b.reply(m, "Não foi possível consultar seu saldo.")
		return
	}
	if user.Balance < price {
		b.reply(m, fmt.Sprintf("O próximo ticket custa **%d AC** e você tem apenas %d AC.",
			price, user.Balance))
		return
	}

	if _, _, err := b.economy.RemoveBalance(m.Author.ID, price); err != nil {
		b.reply(m, "Não foi possível debitar o ticket.")
		return
	}
	updated, err := b.raffles.RecordPurchase(r.ID, m.Author.ID, m.Author.Username, price)
	if err != nil {
		// The raffle closed between quote and purchase; give the money back.
		if _, rerr := b.economy.AddBalance(m.Author.ID, price); rerr != nil {
			zlog.Error().Msgf("failed to refund failed purchase: user=%s amount=%d err=%v",
				m.Author.ID, price, rerr)
		}
		b.reply(m, "O sorteio não está mais ativo; o valor foi devolvido.")
		return
	}

	owned := 0
	if p := updated.Participant(m.Author.ID); p != nil {
		owned = p.TicketCount
	}
	next := domraffle.TicketPrice(updated.FirstTicketPrice, owned, b.cfg.Raffle.PriceMultiplier)
	b.reply(m, fmt.Sprintf("🎟️ %s comprou um ticket por **%d AC** (total: %d). Próximo: %d AC.",
		m.Author.Mention(), price, owned, next))
	b.refreshRafflePanel(m.ChannelID, updated)
}

func (b *Bot) handleRaffleDraw(m *discordgo.MessageCreate) {
	active, err := b.raffles.ActiveInChannel(m.ChannelID)
	if err != nil {
		b.reply(m, "Não há sorteio ativo neste canal.")
		return
	}
	if !b.canManageRaffle(m, active) {
		b.reply(m, "Apenas quem criou o sorteio ou um administrador pode sortear.")
		return
	}

	r, winner, err := b.raffles.Draw(active.ID)
	if err != nil {
		if errors.Is(err, raffle.ErrNoParticipants) {
			b.reply(m, "Ninguém comprou tickets ainda.")
			return
		}
		b.reply(m, "Não foi possível realizar o sorteio.")
		return
	}

	if _, err := b.economy.AddBalance(winner.UserID, r.TotalPrize); err != nil {
		zlog.Error().Msgf("failed to pay raffle prize: raffle=%s winner=%s err=%v",
			r.ID, winner.UserID, err)
	}

	b.replyEmbed(m, &discordgo.MessageEmbed{
		Title: "🎉 Sorteio encerrado: " + r.Title,
		Description: fmt.Sprintf("O vencedor é <@%s> com %d ticket(s), levando **%d AC**!",
			winner.UserID, winner.TicketCount, r.TotalPrize),
		Color: raffleEmbedColor,
	})
}

func (b *Bot) handleRaffleCancel(m *discordgo.MessageCreate) {
	active, err := b.raffles.ActiveInChannel(m.ChannelID)
	if err != nil {
		b.reply(m, "Não há sorteio ativo neste canal.")
		return
	}
	if !b.canManageRaffle(m, active) {
		b.reply(m, "Apenas quem criou o sorteio ou um administrador pode cancelar.")
		return
	}

	r, refunds, err := b.raffles.Cancel(active.ID)
	if err != nil {
		b.reply(m, "Não foi possível cancelar o sorteio.")
		return
	}

	for _, refund := range refunds {
		if _, err := b.economy.AddBalance(refund.UserID, refund.Amount); err != nil {
			zlog.Error().Msgf("failed to refund cancelled raffle: raffle=%s user=%s amount=%d err=%v",
				r.ID, refund.UserID, refund.Amount, err)
		}
	}
	b.reply(m, fmt.Sprintf("🚫 Sorteio **%s** cancelado. %d participante(s) reembolsados.",
		r.Title, len(refunds)))
}

func (b *Bot) handleRafflePanel(m *discordgo.MessageCreate) {
	r, err := b.raffles.ActiveInChannel(m.ChannelID)
	if err != nil {
		b.reply(m, "Não há sorteio ativo neste canal.")
		return
	}
	b.postRafflePanel(m.ChannelID, r)
}

func (b *Bot) canManageRaffle(m *discordgo.MessageCreate, r domraffle.Raffle) bool {
	return r.CreatorID == m.Author.ID || b.isAdmin(m)
}

func (b *Bot) raffleEmbed(r domraffle.Raffle) *discordgo.MessageEmbed {
	var sb strings.Builder
	for _, p := range r.Participants {
		fmt.Fprintf(&sb, "**%s** — %d ticket(s)\n", p.Username, p.TicketCount)
	}
	description := "Nenhum participante ainda."
	if sb.Len() > 0 {
		description = sb.String()
	}

	return &discordgo.MessageEmbed{
		Title:       "🎰 " + r.Title,
		Description: description,
		Color:       raffleEmbedColor,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Prêmio acumulado", Value: fmt.Sprintf("%d AC", r.Pot()), Inline: true},
			{Name: "Tickets vendidos", Value: strconv.Itoa(r.TotalTickets()), Inline: true},
			{Name: "Primeiro ticket", Value: fmt.Sprintf("%d AC", r.FirstTicketPrice), Inline: true},
		},
		Footer: &discordgo.MessageEmbedFooter{
			Text: fmt.Sprintf("Compre com %sticket · o preço sobe a cada compra", b.cfg.Bot.CommandPrefix),
		},
	}
}

// postRafflePanel sends a fresh panel and remembers its message for edits.
func (b *Bot) postRafflePanel(channelID string, r domraffle.Raffle) {
	msg, err := b.session.ChannelMessageSendEmbed(channelID, b.raffleEmbed(r))
	if err != nil {
		zlog.Debug().Msgf("failed to post raffle panel: raffle=%s err=%v", r.ID, err)
		return
	}
	if err := b.raffles.SetMessageID(r.ID, msg.ID); err != nil {
		zlog.Debug().Msgf("failed to record raffle panel message: raffle=%s err=%v", r.ID, err)
	}
}

// refreshRafflePanel edits the existing panel, falling back to a new one.
func (b *Bot) refreshRafflePanel(channelID string, r domraffle.Raffle) {
	if r.MessageID != "" {
		if _, err := b.session.ChannelMessageEditEmbed(channelID, r.MessageID, b.raffleEmbed(r)); err == nil {
			return
		}
	}
	b.postRafflePanel(channelID, r)
}
