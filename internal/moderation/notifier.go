package moderation

import (
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"mullmine/backend/internal/models"
)

// transcriptPreview caps how many transcript lines go into the alert;
// the full snapshot stays in the audit row.
const transcriptPreview = 10

// TelegramNotifier pushes report alerts into the moderators' chat.
type TelegramNotifier struct {
	bot    *tgbotapi.BotAPI
	chatID int64
}

func NewTelegramNotifier(token string, chatID int64) (*TelegramNotifier, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	return &TelegramNotifier{bot: bot, chatID: chatID}, nil
}

// NotifyReport formats and sends the alert.
func (n *TelegramNotifier) NotifyReport(report *models.ReportedChat) error {
	var b strings.Builder
	fmt.Fprintf(&b, "New report %s\n", report.ID)
	fmt.Fprintf(&b, "Reporter: %s\nReported: %s\nRoom: %s\n", report.ReporterID, report.ReportedID, report.RoomID)
	lines := report.Messages
	if len(lines) > transcriptPreview {
		lines = lines[len(lines)-transcriptPreview:]
		b.WriteString("…\n")
	}
	for _, line := range lines {
		b.WriteString(line)
		b.WriteByte('\n')
	}
	msg := tgbotapi.NewMessage(n.chatID, b.String())
	_, err := n.bot.Send(msg)
	return err
}
