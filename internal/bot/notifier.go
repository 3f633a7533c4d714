package bot

import (
	"context"
	"fmt"

	"aura-bot/internal/models"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
	"gorm.io/gorm"
)

// TelegramNotifier delivers ledger notifications to users who have a linked
// Telegram account. Portal-only users are silently skipped.
type TelegramNotifier struct {
	DB  *gorm.DB
	Bot *telego.Bot
}

func NewTelegramNotifier(db *gorm.DB, bot *telego.Bot) *TelegramNotifier {
	return &TelegramNotifier{DB: db, Bot: bot}
}

func (n *TelegramNotifier) Notify(ctx context.Context, userID uint, text string) error {
	var user models.User
	if err := n.DB.First(&user, userID).Error; err != nil {
		return fmt.Errorf("failed to find user %d: %w", userID, err)
	}
	if user.TelegramID == nil {
		return nil
	}
	_, err := n.Bot.SendMessage(ctx, tu.Message(tu.ID(*user.TelegramID), text))
	return err
}
