package logger

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"

	"go.uber.org/zap/zapcore"
)

// KeySendAlert marks a log entry for delivery to the ops alert channel.
const KeySendAlert = "send_alert"

// AlertCore forwards flagged error-level entries to a Telegram chat so that
// pipeline failures surface outside the log stream.
type AlertCore struct {
	core     zapcore.Core
	minLevel zapcore.Level
	botToken string
	chatID   int64
}

func NewAlertCore(core zapcore.Core, minLevel zapcore.Level, botToken string, chatID int64) *AlertCore {
	return &AlertCore{
		core:     core,
		minLevel: minLevel,
		botToken: botToken,
		chatID:   chatID,
	}
}

func (a *AlertCore) Enabled(lvl zapcore.Level) bool {
	return a.core.Enabled(lvl)
}

func (a *AlertCore) With(fields []zapcore.Field) zapcore.Core {
	return &AlertCore{
		core:     a.core.With(fields),
		minLevel: a.minLevel,
		botToken: a.botToken,
		chatID:   a.chatID,
	}
}

func (a *AlertCore) Check(entry zapcore.Entry, checkedEntry *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if a.Enabled(entry.Level) {
		return a.core.Check(entry, checkedEntry).AddCore(entry, a)
	}
	return checkedEntry
}

func (a *AlertCore) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	shouldSend := false
	for _, f := range fields {
		if f.Key == KeySendAlert && f.Type == zapcore.BoolType && f.Integer == 1 {
			shouldSend = true
			break
		}
	}
	if entry.Level >= a.minLevel && shouldSend && a.botToken != "" {
		go a.sendTelegramAlert(entry, fields) // async so logging never blocks
	}
	return a.core.Write(entry, fields)
}

func (a *AlertCore) Sync() error {
	return a.core.Sync()
}

func (a *AlertCore) sendTelegramAlert(entry zapcore.Entry, fields []zapcore.Field) {
	enc := zapcore.NewMapObjectEncoder()
	for _, f := range fields {
		f.AddTo(enc)
	}

	fieldStr := ""
	for k, v := range enc.Fields {
		fieldStr += fmt.Sprintf("• %s: %v\n", k, v)
	}

	timestamp := entry.Time.Format("2006-01-02 15:04:05")

	message := fmt.Sprintf(
		"🚨 *%s Alert*\n\n*Message:* %s\n\n*Fields:*\n%s\n*Time:* %s",
		entry.Level.CapitalString(),
		entry.Message,
		fieldStr,
		timestamp,
	)

	url := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", a.botToken)
	payload := map[string]interface{}{
		"chat_id":    a.chatID,
		"text":       message,
		"parse_mode": "Markdown",
	}

	jsonBody, _ := json.Marshal(payload)
	http.Post(url, "application/json", bytes.NewBuffer(jsonBody))
}
