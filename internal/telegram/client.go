// Package telegram доставляет уведомления пользователям через Telegram Bot API.
package telegram

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/mmeshcher/storefront/internal/model"
)

// Client отправляет сообщения от имени бота.
type Client struct {
	bot *bot.Bot
}

// NewClient создаёт клиент Bot API. baseURL обычно https://api.telegram.org.
// Сетевых запросов при создании не выполняется.
func NewClient(baseURL, token string, timeout time.Duration) (*Client, error) {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	b, err := bot.New(token,
		bot.WithServerURL(strings.TrimRight(baseURL, "/")),
		bot.WithSkipGetMe(),
		bot.WithHTTPClient(timeout, &http.Client{Timeout: timeout}),
	)
	if err != nil {
		return nil, fmt.Errorf("create bot: %w", err)
	}

	return &Client{bot: b}, nil
}

// Send выбирает метод API по типу вложения и отправляет уведомление.
// Вложение без ссылки отправляется обычным текстом.
func (c *Client) Send(ctx context.Context, n model.Notification) error {
	markup := keyboard(n)
	hasMedia := n.MediaURL != nil && *n.MediaURL != ""

	var err error
	switch {
	case n.MediaType == model.MediaPhoto && hasMedia:
		_, err = c.bot.SendPhoto(ctx, &bot.SendPhotoParams{
			ChatID:      n.UserID,
			Photo:       &models.InputFileString{Data: *n.MediaURL},
			Caption:     n.Text,
			ParseMode:   models.ParseModeHTML,
			ReplyMarkup: markup,
		})
		if err != nil {
			return fmt.Errorf("send photo: %w", err)
		}
	case n.MediaType == model.MediaVideo && hasMedia:
		_, err = c.bot.SendVideo(ctx, &bot.SendVideoParams{
			ChatID:      n.UserID,
			Video:       &models.InputFileString{Data: *n.MediaURL},
			Caption:     n.Text,
			ParseMode:   models.ParseModeHTML,
			ReplyMarkup: markup,
		})
		if err != nil {
			return fmt.Errorf("send video: %w", err)
		}
	default:
		_, err = c.bot.SendMessage(ctx, &bot.SendMessageParams{
			ChatID:      n.UserID,
			Text:        n.Text,
			ParseMode:   models.ParseModeHTML,
			ReplyMarkup: markup,
		})
		if err != nil {
			return fmt.Errorf("send message: %w", err)
		}
	}

	return nil
}

// keyboard возвращает клавиатуру с одной кнопкой-ссылкой, если заданы и подпись, и адрес.
func keyboard(n model.Notification) models.ReplyMarkup {
	if n.ButtonTitle == nil || n.ButtonURL == nil || *n.ButtonTitle == "" || *n.ButtonURL == "" {
		return nil
	}
	return &models.InlineKeyboardMarkup{
		InlineKeyboard: [][]models.InlineKeyboardButton{{{Text: *n.ButtonTitle, URL: *n.ButtonURL}}},
	}
}
