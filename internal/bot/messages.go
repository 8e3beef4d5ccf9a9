package bot

import (
	"errors"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/yourusername/yt-fetch-go/internal/app"
	"github.com/yourusername/yt-fetch-go/internal/domain"
)

const progressBarWidth = 20

func escape(s string) string {
	return tgbotapi.EscapeText(tgbotapi.ModeMarkdown, s)
}

func welcomeText(firstName, baseURL string) string {
	name := firstName
	if name == "" {
		name = "there"
	}
	return fmt.Sprintf("👋 Hi %s!\n\n"+
		"I download YouTube videos. 🎬\n\n"+
		"Send me a YouTube link and pick the quality you want.\n\n"+
		"You can also use the web interface: %s\n\n"+
		"Send /help for more information.", name, baseURL)
}

func helpText(baseURL string, maxFileSize int64) string {
	return "🔍 *How to use this bot:*\n\n" +
		"1️⃣ Send a YouTube link\n" +
		"2️⃣ Pick a video or audio format\n" +
		"3️⃣ Wait for the file to arrive\n\n" +
		"📌 *Commands:*\n" +
		"/start - start the bot\n" +
		"/help - show this help\n" +
		"/cancel - cancel the current operation\n\n" +
		"🔗 *Web interface:*\n" +
		escape(baseURL) + "\n\n" +
		"⚠️ *Notes:*\n" +
		"- Files larger than " + escape(app.FormatSize(maxFileSize)) + " cannot be sent here\n" +
		"- Long videos take longer to download"
}

func mediaText(media *domain.MediaDescriptor) string {
	views := "unknown"
	if media.Views > 0 {
		views = groupThousands(media.Views)
	}
	return fmt.Sprintf("*🎬 %s*\n\n"+
		"👤 *Channel:* %s\n"+
		"⏱ *Duration:* %s\n"+
		"👁 *Views:* %s\n\n"+
		"Choose a format:",
		escape(media.Title), escape(media.Author), app.FormatDuration(media.Duration), views)
}

func groupThousands(n int64) string {
	s := fmt.Sprintf("%d", n)
	var b strings.Builder
	for i, r := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	return b.String()
}

func buttonLabel(f domain.FormatOption) string {
	size := "unknown size"
	if f.Size > 0 {
		size = app.FormatSize(f.Size)
	}
	icon := "🎬"
	if f.Kind == domain.KindAudio {
		icon = "🎵"
	}
	return fmt.Sprintf("%s %s (%s)", icon, f.Label, size)
}

func progressText(update app.ProgressUpdate) string {
	switch update.Status {
	case domain.StatusPreparing:
		return "⏳ *Preparing download...*"
	case domain.StatusDownloading:
		percent, known := app.Percent(update.Downloaded, update.Total)
		if !known {
			return fmt.Sprintf("⬇️ *Downloading...*\n\n%s\n*Downloaded:* %s",
				app.RenderBar(0, progressBarWidth), escape(app.FormatSize(update.Downloaded)))
		}
		eta := app.FormatETA(update.ETA)
		if eta == "" {
			eta = "unknown"
		}
		return fmt.Sprintf("⬇️ *Downloading...*\n\n%s\n*Progress:* %.1f%% (%s of %s)\n*Time left:* %s",
			app.RenderBar(percent, progressBarWidth), percent,
			escape(app.FormatSize(update.Downloaded)), escape(app.FormatSize(update.Total)), eta)
	case domain.StatusCompleted:
		return "✅ *Download complete!*\n\nSending the file..."
	case domain.StatusCancelled:
		return "✅ Download cancelled. Send another link whenever you like."
	default:
		return "ℹ️ *Status:* " + string(update.Status)
	}
}

func failureText(err error, baseURL string) string {
	var sizeErr *domain.SizeLimitError
	if errors.As(err, &sizeErr) {
		return fmt.Sprintf("⚠️ *The file is too large to send on Telegram*\n\n"+
			"File size: %s\n"+
			"Limit: %s\n\n"+
			"You can download it from the web interface instead:\n%s",
			escape(app.FormatSize(sizeErr.Size)), escape(app.FormatSize(sizeErr.Limit)), escape(baseURL))
	}
	reason := "unknown error"
	if err != nil {
		reason = err.Error()
	}
	return "❌ *Download failed*\n\n" + escape(reason)
}

// userError turns a service error into a short reply
func userError(err error) string {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		return "❌ That is not a valid YouTube link. Please send a YouTube video link."
	case errors.Is(err, domain.ErrExtractionFailure):
		return "❌ Could not read this video. Check the link and try again.\n\n" + err.Error()
	case errors.Is(err, domain.ErrNotFound):
		return expiredText
	case errors.Is(err, domain.ErrConflict):
		return "⏳ A download for this video is already running."
	default:
		return "❌ Something went wrong: " + err.Error()
	}
}

const (
	processingText   = "⏳ Processing your link..."
	expiredText      = "❌ This selection has expired. Please send the link again."
	invalidText      = "❌ Invalid option. Please send the link again."
	cancelledText    = "✅ Cancelled. Send another link whenever you like."
	nothingText      = "Nothing to cancel."
	unknownCmdText   = "Unknown command. Send /help to see what I can do."
	sendFallbackText = "❌ The file could not be sent on Telegram. You can download it from the web interface instead:\n%s"
)
