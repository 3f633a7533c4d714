package bot

import (
	"log"
	"regexp"

	"aura-bot/internal/llm"
	"aura-bot/internal/models"

	"github.com/mymmrac/telego"
	th "github.com/mymmrac/telego/telegohandler"
	tu "github.com/mymmrac/telego/telegoutil"
)

const conversationHistoryLimit = 12

const crisisText = "Мне очень жаль, что вам сейчас так тяжело. Я не могу заменить экстренную помощь.\n" +
	"Пожалуйста, позвоните 112 или на линию доверия 8-800-2000-122 — там помогут прямо сейчас.\n" +
	"Вы не одни. 💛"

const styleSystem = "Отвечай тепло, коротко, без диагнозов. Задавай один уточняющий вопрос за раз."

var personas = map[string]string{
	"pro_psychologist": "Ты — поддерживающий психолог-консультант. Помогаешь разобраться в чувствах и мыслях.",
	"mentor_growth":    "Ты — наставник по личностному росту. Помогаешь ставить цели и двигаться к ним.",
	"friend_fun":       "Ты — весёлый близкий друг. Поддерживаешь легко и с юмором.",
}

var riskPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(хочу|думаю|планирую)\s+(умереть|сдохнуть|покончить\s+с\s+собой)\b`),
	regexp.MustCompile(`(?i)\b(не\s+хочу\s+жить|жить\s+не\s+хочу)\b`),
	regexp.MustCompile(`(?i)\b(суицид|самоубийств[оа])\b`),
}

// DetectRisk screens a message for crisis phrases. A hit short-circuits the
// LLM call entirely.
func DetectRisk(text string) bool {
	if text == "" {
		return false
	}
	for _, re := range riskPatterns {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

func (b *Bot) registerSessionHandlers(handler *th.BotHandler) {
	handler.Handle(func(hctx *th.Context, update telego.Update) error {
		telegramID := callbackOrMessageFrom(update)
		_, _ = hctx.Bot().SendMessage(hctx.Context(), tu.Message(tu.ID(telegramID),
			"Начнём. Что сейчас важнее всего — мысль, чувство или ситуация?"))
		b.answerCallback(hctx, update)
		return nil
	}, th.Or(th.CallbackDataEqual("session"), th.CommandEqual("session")))

	// Free text: journal capture first, then guards, then the LLM session.
	// Registered last so commands and callbacks win.
	handler.Handle(func(hctx *th.Context, update telego.Update) error {
		message := update.Message
		telegramID := message.From.ID
		text := message.Text

		if b.captureJournalEntry(hctx, telegramID, text) {
			return nil
		}

		if b.Guard.RateLimited(hctx.Context(), uint(telegramID)) {
			_, _ = hctx.Bot().SendMessage(hctx.Context(), tu.Message(tu.ID(telegramID),
				"Хм, очень много сообщений подряд 🙈 Давайте по шагу…"))
			return nil
		}
		if b.Guard.IsDuplicate(hctx.Context(), uint(telegramID), text) {
			return nil
		}

		if DetectRisk(text) {
			_, _ = hctx.Bot().SendMessage(hctx.Context(), tu.Message(tu.ID(telegramID), crisisText))
			return nil
		}

		user, _, err := b.ensureUser(telegramID, message.From.Username)
		if err != nil {
			log.Printf("Failed to load user %d: %v", telegramID, err)
			return nil
		}

		reply := b.LLM.Reply(hctx.Context(), b.buildConversation(user, text))
		_, _ = hctx.Bot().SendMessage(hctx.Context(), tu.Message(tu.ID(telegramID), reply))
		b.storeExchange(user, text, reply)
		return nil
	}, th.AnyMessageWithText())
}

// buildConversation assembles persona system prompt plus bounded history.
func (b *Bot) buildConversation(user *models.User, text string) []llm.Message {
	system, ok := personas[user.Persona]
	if !ok {
		system = personas["pro_psychologist"]
	}

	var history []models.ConversationMessage
	err := b.DB.Where("user_id = ?", user.ID).
		Order("created_at DESC, id DESC").
		Limit(conversationHistoryLimit).
		Find(&history).Error
	if err != nil {
		log.Printf("Failed to load history for user %d: %v", user.ID, err)
	}

	messages := make([]llm.Message, 0, len(history)+2)
	messages = append(messages, llm.Message{Role: "system", Content: system + "\n\n" + styleSystem})
	for i := len(history) - 1; i >= 0; i-- {
		messages = append(messages, llm.Message{Role: history[i].Role, Content: history[i].Content})
	}
	messages = append(messages, llm.Message{Role: "user", Content: text})
	return messages
}

// storeExchange persists both sides of the turn and trims history beyond the
// window.
func (b *Bot) storeExchange(user *models.User, text, reply string) {
	err := b.DB.Create([]models.ConversationMessage{
		{UserID: user.ID, Role: "user", Content: text},
		{UserID: user.ID, Role: "assistant", Content: reply},
	}).Error
	if err != nil {
		log.Printf("Failed to store conversation for user %d: %v", user.ID, err)
		return
	}

	var staleIDs []uint
	err = b.DB.Model(&models.ConversationMessage{}).
		Where("user_id = ?", user.ID).
		Order("created_at DESC, id DESC").
		Offset(conversationHistoryLimit).
		Pluck("id", &staleIDs).Error
	if err != nil || len(staleIDs) == 0 {
		return
	}
	if err := b.DB.Delete(&models.ConversationMessage{}, staleIDs).Error; err != nil {
		log.Printf("Failed to trim history for user %d: %v", user.ID, err)
	}
}
