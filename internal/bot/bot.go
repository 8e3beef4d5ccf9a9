package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/yourusername/yt-fetch-go/internal/app"
	"github.com/yourusername/yt-fetch-go/internal/domain"
)

// botAPI is the part of tgbotapi.BotAPI the bot uses
type botAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Settings holds the bot's view of the configuration
type Settings struct {
	BaseURL        string
	MaxFileSize    int64
	FormatsPerPage int
	PollTimeout    int
}

// SettingsFromConfig extracts bot settings from the application config
func SettingsFromConfig(cfg *domain.Config) Settings {
	return Settings{
		BaseURL:        cfg.Server.BaseURL,
		MaxFileSize:    cfg.Download.MaxFileSize,
		FormatsPerPage: cfg.Bot.FormatsPerPage,
		PollTimeout:    cfg.Bot.PollTimeout,
	}
}

// Bot is the Telegram surface. Each user owns at most one session; a new
// link supersedes the previous one.
type Bot struct {
	api      botAPI
	service  *app.MediaService
	settings Settings
	logger   *zap.Logger

	mu    sync.Mutex
	users map[int64]string // user id -> session id

	wg sync.WaitGroup
}

// New connects to Telegram with the configured token
func New(cfg *domain.Config, service *app.MediaService, logger *zap.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(cfg.Bot.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to telegram: %w", err)
	}
	logger.Info("Authorized on Telegram", zap.String("username", api.Self.UserName))
	return newBot(api, SettingsFromConfig(cfg), service, logger), nil
}

func newBot(api botAPI, settings Settings, service *app.MediaService, logger *zap.Logger) *Bot {
	return &Bot{
		api:      api,
		service:  service,
		settings: settings,
		logger:   logger,
		users:    make(map[int64]string),
	}
}

// Run polls for updates until ctx is done. Every update is handled on its
// own goroutine.
func (b *Bot) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = b.settings.PollTimeout
	updates := b.api.GetUpdatesChan(u)

	b.logger.Info("Bot started polling")
	defer b.wg.Wait()

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			b.logger.Info("Bot stopped polling")
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			b.wg.Add(1)
			go func(update tgbotapi.Update) {
				defer b.wg.Done()
				defer func() {
					if r := recover(); r != nil {
						b.logger.Error("Panic while handling update",
							zap.Int("update_id", update.UpdateID),
							zap.Any("error", r),
							zap.Stack("stack"))
					}
				}()
				b.handleUpdate(ctx, update)
			}(update)
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	switch {
	case update.CallbackQuery != nil:
		b.handleCallback(ctx, update.CallbackQuery)
	case update.Message != nil && update.Message.IsCommand():
		b.handleCommand(update.Message)
	case update.Message != nil && update.Message.Text != "":
		b.handleLink(ctx, update.Message)
	}
}

func (b *Bot) handleCommand(msg *tgbotapi.Message) {
	chatID := msg.Chat.ID

	switch msg.Command() {
	case "start":
		firstName := ""
		if msg.From != nil {
			firstName = msg.From.FirstName
		}
		b.reply(chatID, welcomeText(firstName, b.settings.BaseURL), "")
	case "help":
		b.reply(chatID, helpText(b.settings.BaseURL, b.settings.MaxFileSize), tgbotapi.ModeMarkdown)
	case "cancel":
		sessionID := b.takeSession(userID(msg.From))
		if sessionID == "" {
			b.reply(chatID, nothingText, "")
			return
		}
		if err := b.service.Cleanup(sessionID); err != nil {
			b.logger.Warn("Cleanup failed", zap.String("session_id", sessionID), zap.Error(err))
		}
		b.reply(chatID, cancelledText, "")
	default:
		b.reply(chatID, unknownCmdText, "")
	}
}

func (b *Bot) handleLink(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	link := strings.TrimSpace(msg.Text)

	if _, err := domain.ParseVideoURL(link); err != nil {
		b.reply(chatID, userError(err), "")
		return
	}

	processing, err := b.api.Send(tgbotapi.NewMessage(chatID, processingText))
	if err != nil {
		b.logger.Error("Failed to send message", zap.Int64("chat_id", chatID), zap.Error(err))
		return
	}

	session, err := b.service.Probe(ctx, link)
	if err != nil {
		b.edit(chatID, processing.MessageID, userError(err), "", nil)
		return
	}

	if previous := b.claimSession(userID(msg.From), session.ID); previous != "" {
		if err := b.service.Cleanup(previous); err != nil {
			b.logger.Warn("Cleanup of superseded session failed", zap.String("session_id", previous), zap.Error(err))
		}
	}

	keyboard := formatKeyboard(session.ID, session.Media, 0, b.settings.FormatsPerPage)
	b.edit(chatID, processing.MessageID, mediaText(session.Media), tgbotapi.ModeMarkdown, &keyboard)
}

func (b *Bot) handleCallback(ctx context.Context, query *tgbotapi.CallbackQuery) {
	if _, err := b.api.Request(tgbotapi.NewCallback(query.ID, "")); err != nil {
		b.logger.Debug("Failed to answer callback", zap.Error(err))
	}
	if query.Message == nil {
		return
	}
	chatID := query.Message.Chat.ID
	messageID := query.Message.MessageID
	user := userID(query.From)

	cb, ok := parseCallback(query.Data)
	if !ok {
		b.edit(chatID, messageID, invalidText, "", nil)
		return
	}
	if b.currentSession(user) != cb.sessionID {
		b.edit(chatID, messageID, expiredText, "", nil)
		return
	}

	switch cb.action {
	case actionPage:
		session, err := b.service.Status(cb.sessionID)
		if err != nil {
			b.edit(chatID, messageID, userError(err), "", nil)
			return
		}
		page, _ := strconv.Atoi(cb.arg)
		keyboard := formatKeyboard(session.ID, session.Media, page, b.settings.FormatsPerPage)
		b.edit(chatID, messageID, mediaText(session.Media), tgbotapi.ModeMarkdown, &keyboard)

	case actionFormat:
		b.startDownload(ctx, chatID, messageID, user, cb)

	case actionCancel:
		b.releaseSession(user, cb.sessionID)
		if err := b.service.Cleanup(cb.sessionID); err != nil {
			b.logger.Warn("Cleanup failed", zap.String("session_id", cb.sessionID), zap.Error(err))
		}
		b.edit(chatID, messageID, cancelledText, "", nil)
	}
}

func (b *Bot) startDownload(ctx context.Context, chatID int64, messageID int, user int64, cb callback) {
	session, err := b.service.Status(cb.sessionID)
	if err != nil {
		b.edit(chatID, messageID, userError(err), "", nil)
		return
	}
	format, ok := session.Media.FindFormat(cb.arg)
	if !ok {
		b.edit(chatID, messageID, invalidText, "", nil)
		return
	}

	keyboard := progressKeyboard(session.ID)
	b.edit(chatID, messageID, progressText(app.ProgressUpdate{Status: domain.StatusPreparing}), tgbotapi.ModeMarkdown, &keyboard)

	hooks := app.JobHooks{
		Progress: &progressSink{bot: b, chatID: chatID, messageID: messageID, sessionID: session.ID},
		Deliver:  b.deliverFunc(chatID, messageID, user),
	}
	if err := b.service.StartDownload(ctx, session.ID, format.ID, format.Kind, hooks); err != nil {
		b.edit(chatID, messageID, userError(err), "", nil)
		return
	}

	b.logger.Info("Bot download started",
		zap.Int64("chat_id", chatID),
		zap.String("session_id", session.ID),
		zap.String("format_id", format.ID))
}

// deliverFunc sends the finished file, removes the progress message and
// always cleans the session afterwards
func (b *Bot) deliverFunc(chatID int64, progressMessageID int, user int64) app.DeliveryFunc {
	return func(ctx context.Context, session domain.Session) error {
		defer func() {
			b.releaseSession(user, session.ID)
			if err := b.service.Cleanup(session.ID); err != nil {
				b.logger.Warn("Cleanup failed", zap.String("session_id", session.ID), zap.Error(err))
			}
		}()

		file, name, err := b.service.OpenReader(session.ID)
		if err != nil {
			b.reply(chatID, fmt.Sprintf(sendFallbackText, b.settings.BaseURL), "")
			return err
		}
		defer file.Close()

		upload := tgbotapi.FileReader{Name: name, Reader: file}
		var media tgbotapi.Chattable
		if session.Format != nil && session.Format.Kind == domain.KindAudio {
			audio := tgbotapi.NewAudio(chatID, upload)
			audio.Caption = "🎵 Downloaded with ytfetch"
			if session.Media != nil {
				audio.Title = session.Media.Title
				audio.Performer = session.Media.Author
				audio.Duration = session.Media.Duration
			}
			media = audio
		} else {
			video := tgbotapi.NewVideo(chatID, upload)
			video.Caption = "🎬 Downloaded with ytfetch"
			video.SupportsStreaming = true
			if session.Media != nil {
				video.Duration = session.Media.Duration
			}
			media = video
		}

		if _, err := b.api.Send(media); err != nil {
			b.logger.Error("Failed to send file",
				zap.String("session_id", session.ID),
				zap.Int64("size", session.FileSize),
				zap.Error(err))
			b.reply(chatID, fmt.Sprintf(sendFallbackText, b.settings.BaseURL), "")
			return err
		}

		if _, err := b.api.Request(tgbotapi.NewDeleteMessage(chatID, progressMessageID)); err != nil {
			b.logger.Debug("Failed to delete progress message", zap.Error(err))
		}
		return nil
	}
}

func (b *Bot) reply(chatID int64, text, parseMode string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = parseMode
	if _, err := b.api.Send(msg); err != nil {
		b.logger.Error("Failed to send message", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

// edit replaces a message's text; "not modified" answers are ignored
func (b *Bot) edit(chatID int64, messageID int, text, parseMode string, keyboard *tgbotapi.InlineKeyboardMarkup) error {
	cfg := tgbotapi.NewEditMessageText(chatID, messageID, text)
	cfg.ParseMode = parseMode
	cfg.ReplyMarkup = keyboard
	if _, err := b.api.Request(cfg); err != nil {
		if strings.Contains(err.Error(), "message is not modified") {
			return nil
		}
		b.logger.Warn("Failed to edit message",
			zap.Int64("chat_id", chatID),
			zap.Int("message_id", messageID),
			zap.Error(err))
		return err
	}
	return nil
}

func (b *Bot) claimSession(user int64, sessionID string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	previous := b.users[user]
	b.users[user] = sessionID
	if previous == sessionID {
		return ""
	}
	return previous
}

func (b *Bot) currentSession(user int64) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.users[user]
}

func (b *Bot) takeSession(user int64) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	sessionID := b.users[user]
	delete(b.users, user)
	return sessionID
}

// releaseSession forgets sessionID only if it is still the user's current one
func (b *Bot) releaseSession(user int64, sessionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.users[user] == sessionID {
		delete(b.users, user)
	}
}

func userID(u *tgbotapi.User) int64 {
	if u == nil {
		return 0
	}
	return u.ID
}

// progressSink edits the progress message as the job advances
type progressSink struct {
	bot       *Bot
	chatID    int64
	messageID int
	sessionID string
}

func (s *progressSink) Report(ctx context.Context, update app.ProgressUpdate) error {
	switch update.Status {
	case domain.StatusPreparing, domain.StatusDownloading:
		keyboard := progressKeyboard(s.sessionID)
		return s.bot.edit(s.chatID, s.messageID, progressText(update), tgbotapi.ModeMarkdown, &keyboard)
	case domain.StatusFailed:
		return s.bot.edit(s.chatID, s.messageID, failureText(update.Err, s.bot.settings.BaseURL), tgbotapi.ModeMarkdown, nil)
	default:
		return s.bot.edit(s.chatID, s.messageID, progressText(update), tgbotapi.ModeMarkdown, nil)
	}
}
