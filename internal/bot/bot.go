package bot

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"aura-bot/internal/guard"
	"aura-bot/internal/llm"
	"aura-bot/internal/models"
	"aura-bot/internal/payment"
	"aura-bot/internal/refcode"
	"aura-bot/internal/referral"
	"aura-bot/internal/subscription"

	"github.com/mymmrac/telego"
	th "github.com/mymmrac/telego/telegohandler"
	tu "github.com/mymmrac/telego/telegoutil"
	"gorm.io/gorm"
)

type Bot struct {
	Instance      *telego.Bot
	DB            *gorm.DB
	Engine        *referral.Engine
	Guard         *guard.Guard
	LLM           *llm.Client
	PaymentClient *payment.Client
	Projection    *subscription.Projection

	JournalWindow time.Duration
	journalUntil  map[int64]time.Time
	journalMu     sync.Mutex

	scaleRuns map[int64]*scaleRun
	scalesMu  sync.Mutex
}

func NewBot(token string, db *gorm.DB, engine *referral.Engine, g *guard.Guard, llmClient *llm.Client, paymentClient *payment.Client, journalWindow time.Duration) (*Bot, error) {
	tgBot, err := telego.NewBot(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	return &Bot{
		Instance:      tgBot,
		DB:            db,
		Engine:        engine,
		Guard:         g,
		LLM:           llmClient,
		PaymentClient: paymentClient,
		Projection:    subscription.NewProjection(db),
		JournalWindow: journalWindow,
		journalUntil:  make(map[int64]time.Time),
		scaleRuns:     make(map[int64]*scaleRun),
	}, nil
}

// ensureUser finds or creates the chat user and reports whether this contact
// created the account; that flag decides between joined and clicked.
func (b *Bot) ensureUser(telegramID int64, username string) (*models.User, bool, error) {
	var user models.User
	err := b.DB.Where("telegram_id = ?", telegramID).First(&user).Error
	if err == nil {
		if username != "" && user.Username != username {
			b.DB.Model(&user).Update("username", username)
		}
		return &user, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, err
	}

	user = models.User{TelegramID: &telegramID, Username: username, Status: "active"}
	if err := b.DB.Create(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			// Lost a create race against another update for the same user.
			if err := b.DB.Where("telegram_id = ?", telegramID).First(&user).Error; err != nil {
				return nil, false, err
			}
			return &user, false, nil
		}
		return nil, false, err
	}
	return &user, true, nil
}

func mainKeyboard() *telego.InlineKeyboardMarkup {
	return tu.InlineKeyboard(
		tu.InlineKeyboardRow(
			tu.InlineKeyboardButton("🧠 Сессия").WithCallbackData("session"),
			tu.InlineKeyboardButton("✅ Чек-ин").WithCallbackData("checkin"),
		),
		tu.InlineKeyboardRow(
			tu.InlineKeyboardButton("📝 Дневник").WithCallbackData("journal"),
			tu.InlineKeyboardButton("🧪 Шкалы").WithCallbackData("tests"),
		),
		tu.InlineKeyboardRow(
			tu.InlineKeyboardButton("💳 Подписка").WithCallbackData("account"),
			tu.InlineKeyboardButton("💌 Пригласить друга").WithCallbackData("invite"),
		),
		tu.InlineKeyboardRow(
			tu.InlineKeyboardButton("👥 Рефералы").WithCallbackData("referrals"),
		),
	)
}

func (b *Bot) Start(ctx context.Context) error {
	updates, err := b.Instance.UpdatesViaLongPolling(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start long polling: %w", err)
	}

	handler, err := th.NewBotHandler(b.Instance, updates)
	if err != nil {
		return fmt.Errorf("failed to create handler: %w", err)
	}

	// /start with optional deep-link payload "ref<code>"
	handler.Handle(func(hctx *th.Context, update telego.Update) error {
		message := update.Message
		telegramID := message.From.ID

		args := ""
		if parts := strings.Split(message.Text, " "); len(parts) > 1 {
			args = strings.TrimSpace(parts[1])
		}

		user, created, err := b.ensureUser(telegramID, message.From.Username)
		if err != nil {
			log.Printf("Failed to get/create user %d: %v", telegramID, err)
			return nil
		}

		if strings.HasPrefix(args, "ref") {
			b.handleReferralPayload(hctx, user, created, strings.TrimPrefix(args, "ref"))
		}

		_, _ = hctx.Bot().SendMessage(hctx.Context(), tu.Message(
			tu.ID(message.Chat.ID),
			"Привет! Я Aura — бот поддержки.\nЯ не ставлю диагнозы и не заменяю терапию. В кризисе звоните 112.\n\nВыберите действие ниже 👇",
		).WithReplyMarkup(mainKeyboard()))
		return nil
	}, th.CommandEqual("start"))

	handler.Handle(func(hctx *th.Context, update telego.Update) error {
		_, _ = hctx.Bot().SendMessage(hctx.Context(), tu.Message(
			tu.ID(update.Message.Chat.ID), "Выберите действие ниже 👇",
		).WithReplyMarkup(mainKeyboard()))
		return nil
	}, th.CommandEqual("menu"))

	b.registerReferralHandlers(handler)
	b.registerAccountHandlers(handler)
	b.registerJournalHandlers(handler)
	b.registerScaleHandlers(handler)
	b.registerSessionHandlers(handler)

	handler.Start()
	return nil
}

// handleReferralPayload drives the deep-link flow: resolve, record, and on a
// fresh join credit the newcomer. Any outcome still lets the visitor use the
// bot normally.
func (b *Bot) handleReferralPayload(hctx *th.Context, user *models.User, created bool, code string) {
	ctx := hctx.Context()
	chatID := tu.ID(*user.TelegramID)

	referrerID, err := b.Engine.ResolveCode(code)
	if err != nil {
		if errors.Is(err, refcode.ErrInvalidCode) {
			b.Engine.RecordInvalidVisit(user.ID, code)
			_, _ = hctx.Bot().SendMessage(ctx, tu.Message(chatID,
				"Кажется, реферальная ссылка некорректна. Но ничего — можно пользоваться ботом и так 💛"))
		} else {
			log.Printf("Failed to resolve referral code for user %d: %v", user.ID, err)
		}
		return
	}

	if referrerID == user.ID {
		if _, err := b.Engine.RecordVisit(ctx, referrerID, user.ID, code, created); err != nil {
			log.Printf("Failed to record self referral: %v", err)
		}
		_, _ = hctx.Bot().SendMessage(ctx, tu.Message(chatID,
			"Нельзя пригласить самого себя 😊 Отправьте ссылку друзьям."))
		return
	}

	status, err := b.Engine.RecordVisit(ctx, referrerID, user.ID, code, created)
	if err != nil {
		log.Printf("Failed to record referral visit: %v", err)
		return
	}

	if created && status == models.RefStatusJoined {
		granted, err := b.Engine.GrantJoinBonus(ctx, user.ID, referrerID)
		if err != nil {
			log.Printf("Failed to grant join bonus: %v", err)
			return
		}
		if granted {
			_, _ = hctx.Bot().SendMessage(ctx, tu.Message(chatID, fmt.Sprintf(
				"✨ Добро пожаловать! Вам начислено %d дней в подарок за регистрацию по приглашению.",
				b.Engine.JoinBonusDays)))
		}
	}
}
