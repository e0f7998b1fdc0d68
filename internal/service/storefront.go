package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mmeshcher/storefront/internal/model"
	"github.com/mmeshcher/storefront/internal/repository"
)

// RegisterUser создаёт пользователя при первом обращении или обновляет его профиль.
// Заблокированным пользователям возвращается repository.ErrUserBlocked.
func (s *Service) RegisterUser(ctx context.Context, u model.User) (*model.User, error) {
	if u.UserID <= 0 {
		return nil, fmt.Errorf("%w: user_id is required", ErrValidation)
	}

	saved, err := s.repo.UpsertUser(ctx, u)
	if err != nil {
		return nil, err
	}
	if saved.Blocked {
		return nil, repository.ErrUserBlocked
	}
	return saved, nil
}

// GetUser возвращает профиль пользователя.
func (s *Service) GetUser(ctx context.Context, userID int64) (*model.User, error) {
	return s.repo.GetUser(ctx, userID)
}

// ListProducts возвращает каталог.
func (s *Service) ListProducts(ctx context.Context) ([]model.Product, error) {
	return s.repo.ListProducts(ctx)
}

// AddCartItem добавляет позицию в корзину. Количество и параметры подписки не меньше 1.
func (s *Service) AddCartItem(ctx context.Context, item model.CartItem) (*model.CartItem, error) {
	if item.UserID <= 0 {
		return nil, fmt.Errorf("%w: user_id is required", ErrValidation)
	}
	item.ItemID = strings.TrimSpace(item.ItemID)
	if item.ItemID == "" {
		return nil, fmt.Errorf("%w: item_id is required", ErrValidation)
	}
	if item.Price.IsNegative() {
		return nil, fmt.Errorf("%w: price must not be negative", ErrValidation)
	}

	switch item.Type {
	case "":
		item.Type = model.CartItemOneTime
	case model.CartItemOneTime, model.CartItemSubscription:
	default:
		return nil, fmt.Errorf("%w: unknown item type %q", ErrValidation, item.Type)
	}

	if item.Quantity < 1 {
		item.Quantity = 1
	}
	if item.DeliveriesPerMonth < 1 {
		item.DeliveriesPerMonth = 1
	}
	if item.SubscriptionMonths < 1 {
		item.SubscriptionMonths = 1
	}

	return s.repo.AddCartItem(ctx, item)
}

// GetCart возвращает корзину пользователя.
func (s *Service) GetCart(ctx context.Context, userID int64) ([]model.CartItem, error) {
	return s.repo.GetCart(ctx, userID)
}

// DeleteCartItem удаляет позицию из корзины.
func (s *Service) DeleteCartItem(ctx context.Context, id int64) error {
	return s.repo.DeleteCartItem(ctx, id)
}

// CreateSource заводит метку рекламного источника.
func (s *Service) CreateSource(ctx context.Context, startParam, note string) (*model.Source, error) {
	startParam = strings.TrimSpace(startParam)
	if startParam == "" {
		return nil, fmt.Errorf("%w: start_param is required", ErrValidation)
	}
	return s.repo.CreateSource(ctx, startParam, strings.TrimSpace(note))
}

// ListSources возвращает метки со счётчиками посетителей.
func (s *Service) ListSources(ctx context.Context) ([]model.Source, error) {
	return s.repo.ListSources(ctx)
}

// LogSourceVisit фиксирует первый заход пользователя по метке.
func (s *Service) LogSourceVisit(ctx context.Context, startParam string, userID int64, phone *string) (bool, error) {
	startParam = strings.TrimSpace(startParam)
	if startParam == "" || userID <= 0 {
		return false, fmt.Errorf("%w: start_param and user_id are required", ErrValidation)
	}
	return s.repo.LogSourceVisit(ctx, startParam, userID, phone)
}

// LogAction записывает действие пользователя в журнал.
func (s *Service) LogAction(ctx context.Context, entry model.UserActionLog) (*model.UserActionLog, error) {
	entry.Action = strings.TrimSpace(entry.Action)
	if entry.UserID <= 0 || entry.Action == "" {
		return nil, fmt.Errorf("%w: user_id and action are required", ErrValidation)
	}
	if len(entry.Data) > 0 && !json.Valid(entry.Data) {
		return nil, fmt.Errorf("%w: data must be valid JSON", ErrValidation)
	}
	return s.repo.CreateActionLog(ctx, entry)
}

// ListActions возвращает журнал действий с необязательными фильтрами.
func (s *Service) ListActions(ctx context.Context, userID *int64, action *string) ([]model.UserActionLog, error) {
	return s.repo.ListActionLogs(ctx, userID, action)
}

// BroadcastInput — сообщение рассылки. Если UserID не задан, сообщение получают все
// незаблокированные пользователи.
type BroadcastInput struct {
	UserID      *int64
	Text        string
	MediaType   model.MediaType
	MediaURL    *string
	ButtonTitle *string
	ButtonURL   *string
}

// Broadcast публикует сообщение в шину уведомлений и возвращает число успешно
// опубликованных сообщений.
func (s *Service) Broadcast(ctx context.Context, in BroadcastInput) (int, error) {
	if strings.TrimSpace(in.Text) == "" {
		return 0, fmt.Errorf("%w: message is required", ErrValidation)
	}
	if in.MediaType == "" {
		in.MediaType = model.MediaNone
	}
	switch in.MediaType {
	case model.MediaNone, model.MediaPhoto, model.MediaVideo:
	default:
		return 0, fmt.Errorf("%w: unknown media type %q", ErrValidation, in.MediaType)
	}

	var recipients []int64
	if in.UserID != nil {
		u, err := s.repo.GetUser(ctx, *in.UserID)
		if err != nil {
			return 0, err
		}
		if !u.Blocked {
			recipients = append(recipients, u.UserID)
		}
	} else {
		users, err := s.repo.GetActiveUsers(ctx)
		if err != nil {
			return 0, err
		}
		for _, u := range users {
			recipients = append(recipients, u.UserID)
		}
	}

	if len(recipients) == 0 {
		return 0, ErrNoRecipients
	}

	sent := 0
	for _, id := range recipients {
		if s.publish(ctx, model.Notification{
			UserID:      id,
			Text:        in.Text,
			MediaType:   in.MediaType,
			MediaURL:    in.MediaURL,
			ButtonTitle: in.ButtonTitle,
			ButtonURL:   in.ButtonURL,
		}) {
			sent++
		}
	}
	return sent, nil
}
