package bot

import (
	"fmt"
	"log"
	"strconv"
	"strings"

	"github.com/mymmrac/telego"
	th "github.com/mymmrac/telego/telegohandler"
	tu "github.com/mymmrac/telego/telegoutil"
)

func (b *Bot) referralLink(hctx *th.Context, userID uint) string {
	botUsername := "aura_support_bot"
	if info, err := b.Instance.GetMe(hctx.Context()); err == nil {
		botUsername = info.Username
	}
	return fmt.Sprintf("https://t.me/%s?start=ref%s", botUsername, b.Engine.Codec.Encode(userID))
}

func (b *Bot) registerReferralHandlers(handler *th.BotHandler) {
	// Invite link
	handler.Handle(func(hctx *th.Context, update telego.Update) error {
		telegramID := callbackOrMessageFrom(update)
		user, _, err := b.ensureUser(telegramID, "")
		if err != nil {
			log.Printf("Failed to load user %d: %v", telegramID, err)
			return nil
		}

		msg := fmt.Sprintf("Реферальная программа:\n"+
			"• Друг регистрируется по вашей ссылке и сразу получает *%d дней* бесплатно.\n"+
			"• Когда друг впервые оплачивает — вам начисляется *%d дней*.\n\n"+
			"Ваша ссылка:\n%s\n\nПоделитесь ею с другом 💛",
			b.Engine.JoinBonusDays, b.Engine.PaidBonusDays, b.referralLink(hctx, user.ID))

		_, _ = hctx.Bot().SendMessage(hctx.Context(), tu.Message(tu.ID(telegramID), msg).
			WithParseMode(telego.ModeMarkdown))
		b.answerCallback(hctx, update)
		return nil
	}, th.Or(th.CallbackDataEqual("invite"), th.CommandEqual("invite")))

	// Referral stats
	handler.Handle(func(hctx *th.Context, update telego.Update) error {
		telegramID := callbackOrMessageFrom(update)
		user, _, err := b.ensureUser(telegramID, "")
		if err != nil {
			log.Printf("Failed to load user %d: %v", telegramID, err)
			return nil
		}

		stats, err := b.Engine.StatsFor(user.ID)
		if err != nil {
			log.Printf("Failed to load stats for user %d: %v", user.ID, err)
			return nil
		}
		balance, err := b.Projection.Balance(user.ID)
		if err != nil {
			log.Printf("Failed to load balance for user %d: %v", user.ID, err)
			return nil
		}

		msg := fmt.Sprintf("👥 *Мои рефералы*\n"+
			"Ссылка приглашения:\n%s\n\n"+
			"Кликнули: *%d*\n"+
			"Присоединились: *%d*\n"+
			"Совершили оплату: *%d*\n"+
			"Активных бонусных дней: *%d*",
			b.referralLink(hctx, user.ID), stats.Clicked, stats.Joined, stats.Paid, balance)

		_, _ = hctx.Bot().SendMessage(hctx.Context(), tu.Message(tu.ID(telegramID), msg).
			WithParseMode(telego.ModeMarkdown))
		b.answerCallback(hctx, update)
		return nil
	}, th.Or(th.CallbackDataEqual("referrals"), th.CommandEqual("referrals")))
}

func (b *Bot) registerAccountHandlers(handler *th.BotHandler) {
	// Subscription overview + tariffs
	handler.Handle(func(hctx *th.Context, update telego.Update) error {
		telegramID := callbackOrMessageFrom(update)
		user, _, err := b.ensureUser(telegramID, "")
		if err != nil {
			log.Printf("Failed to load user %d: %v", telegramID, err)
			return nil
		}

		balance, err := b.Projection.Balance(user.ID)
		if err != nil {
			log.Printf("Failed to load balance for user %d: %v", user.ID, err)
			return nil
		}
		expiry := "нет активной подписки"
		if user.SubscriptionEnd != nil {
			expiry = user.SubscriptionEnd.Format("02.01.2006")
		}

		keyboard := tu.InlineKeyboard(
			tu.InlineKeyboardRow(
				tu.InlineKeyboardButton("LIGHT — 30 дней, 990₽").WithCallbackData("pay:light:30"),
			),
			tu.InlineKeyboardRow(
				tu.InlineKeyboardButton("PRO — 90 дней, 2490₽").WithCallbackData("pay:pro:90"),
			),
		)
		msg := fmt.Sprintf("💳 *Подписка*\n\nАктивных бонусных дней: *%d*\nДействует до: %s\n\nВыберите план ⤵️",
			balance, expiry)

		_, _ = hctx.Bot().SendMessage(hctx.Context(), tu.Message(tu.ID(telegramID), msg).
			WithParseMode(telego.ModeMarkdown).WithReplyMarkup(keyboard))
		b.answerCallback(hctx, update)
		return nil
	}, th.Or(th.CallbackDataEqual("account"), th.CommandEqual("account")))

	// Plan selected: create an invoice and hand over the confirmation URL.
	// Crediting happens only when the provider webhook confirms the payment.
	handler.Handle(func(hctx *th.Context, update telego.Update) error {
		callback := update.CallbackQuery
		telegramID := callback.From.ID
		parts := strings.Split(callback.Data, ":")
		if len(parts) != 3 {
			return nil
		}
		plan := parts[1]
		days, err := strconv.Atoi(parts[2])
		if err != nil || days <= 0 {
			return nil
		}
		price := "990.00"
		if plan == "pro" {
			price = "2490.00"
		}

		user, _, err := b.ensureUser(telegramID, callback.From.Username)
		if err != nil {
			log.Printf("Failed to load user %d: %v", telegramID, err)
			return nil
		}

		metadata := map[string]string{
			"user_id":   strconv.FormatUint(uint64(user.ID), 10),
			"plan_days": strconv.Itoa(days),
		}
		returnURL := "https://t.me/aura_support_bot"
		if info, err := b.Instance.GetMe(hctx.Context()); err == nil {
			returnURL = "https://t.me/" + info.Username
		}
		resp, err := b.PaymentClient.CreatePayment(hctx.Context(), price, "RUB",
			fmt.Sprintf("Подписка %s на %d дней", strings.ToUpper(plan), days),
			returnURL, metadata)
		if err != nil {
			log.Printf("Failed to create payment for user %d: %v", user.ID, err)
			_, _ = hctx.Bot().SendMessage(hctx.Context(), tu.Message(tu.ID(telegramID),
				"❌ Ошибка при создании платежа. Попробуйте позже."))
		} else {
			_, _ = hctx.Bot().SendMessage(hctx.Context(), tu.Message(tu.ID(telegramID), fmt.Sprintf(
				"💳 Ссылка для оплаты:\n%s\n\nПосле подтверждения оплаты подписка продлится автоматически.",
				resp.Confirmation.ConfirmationURL)))
		}
		_ = hctx.Bot().AnswerCallbackQuery(hctx.Context(), tu.CallbackQuery(callback.ID))
		return nil
	}, th.CallbackDataPrefix("pay:"))
}

func callbackOrMessageFrom(update telego.Update) int64 {
	if update.CallbackQuery != nil {
		return update.CallbackQuery.From.ID
	}
	return update.Message.From.ID
}

func (b *Bot) answerCallback(hctx *th.Context, update telego.Update) {
	if update.CallbackQuery != nil {
		_ = hctx.Bot().AnswerCallbackQuery(hctx.Context(), tu.CallbackQuery(update.CallbackQuery.ID))
	}
}
