package factory

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/hideapp/hide/internal/calendar"
	"github.com/hideapp/hide/internal/config"
	"github.com/hideapp/hide/internal/messaging"
	"github.com/hideapp/hide/internal/messaging/telegram"
	"github.com/hideapp/hide/internal/summarizer"
)

const externalCallTimeout = 15 * time.Second

// NewMessenger returns the Telegram client when a bot token is configured,
// otherwise a client that only logs.
func NewMessenger(cfg *config.Config, log zerolog.Logger) messaging.Client {
	if cfg.TelegramBotToken == "" {
		log.Warn().Msg("TELEGRAM_BOT_TOKEN not set; replies are logged, not sent")
		return messaging.NewLogClient(log)
	}
	return telegram.New(cfg.TelegramAPIURL, cfg.TelegramBotToken, externalCallTimeout)
}

// NewSummarizer returns the HTTP summarizer, or Echo when none is configured.
func NewSummarizer(cfg *config.Config, log zerolog.Logger) summarizer.Summarizer {
	if cfg.SummarizerURL == "" {
		log.Warn().Msg("SUMMARIZER_URL not set; cards carry the last message as summary")
		return summarizer.Echo{}
	}
	return summarizer.NewHTTP(cfg.SummarizerURL, time.Duration(cfg.SummarizerTimeoutSeconds)*time.Second)
}

// NewCalendar returns the webhook sink, or a logging sink when none is configured.
func NewCalendar(cfg *config.Config, log zerolog.Logger) calendar.Sink {
	if cfg.CalendarWebhookURL == "" {
		return calendar.NewLogSink(log, cfg.Location())
	}
	return calendar.NewWebhookSink(cfg.CalendarWebhookURL, cfg.Location(), cfg.CalendarAlertMinutes, externalCallTimeout)
}
