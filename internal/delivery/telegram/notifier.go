package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	tele "gopkg.in/telebot.v3"

	"crypto-signals/config"
	"crypto-signals/internal/dto"
	"crypto-signals/pkg/bus"
	"crypto-signals/pkg/logger"
)

// Notifier mirrors accepted signals into a Telegram ops channel. It is a
// plain bus subscriber, so it gets exactly the same feed as live websocket
// clients.
type Notifier struct {
	cfg           *config.Config
	log           *logger.Logger
	bot           *tele.Bot
	notifications bus.Bus
}

func NewNotifier(cfg *config.Config, log *logger.Logger, notifications bus.Bus) (*Notifier, error) {
	bot, err := tele.NewBot(tele.Settings{
		Token:  cfg.Telegram.BotToken,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telegram bot: %w", err)
	}

	return &Notifier{
		cfg:           cfg,
		log:           log,
		bot:           bot,
		notifications: notifications,
	}, nil
}

// Run consumes the bus until ctx is cancelled. Only new_signal envelopes are
// forwarded; price updates would flood the channel.
func (n *Notifier) Run(ctx context.Context) error {
	messages, err := n.notifications.Subscribe(ctx)
	if err != nil {
		return err
	}

	chat := &tele.Chat{ID: n.cfg.Telegram.ChatID}
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return nil
			}

			var envelope struct {
				Type string            `json:"type"`
				Data dto.SignalPayload `json:"data"`
			}
			if err := json.Unmarshal(msg.Payload, &envelope); err != nil {
				continue
			}
			if envelope.Type != dto.MessageTypeNewSignal {
				continue
			}

			if _, err := n.bot.Send(chat, formatSignal(envelope.Data), tele.ModeMarkdown); err != nil {
				n.log.WarnContext(ctx, "Failed to send telegram notification",
					logger.ErrorField(err),
					logger.StringField("symbol", envelope.Data.Symbol),
				)
			}
		}
	}
}

func formatSignal(signal dto.SignalPayload) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("*%s %s* (%s)\n", signal.Direction, signal.Symbol, signal.Timeframe))
	sb.WriteString(fmt.Sprintf("Confidence: %.1f%%\n", signal.Confidence))
	sb.WriteString(fmt.Sprintf("Entry: %.2f | Target: %.2f | Stop: %.2f\n", signal.EntryPrice, signal.TargetPrice, signal.StopLoss))
	sb.WriteString(fmt.Sprintf("R:R %.2f\n", signal.RiskRewardRatio))
	for _, line := range signal.Rationale {
		sb.WriteString("- " + line + "\n")
	}
	return sb.String()
}
