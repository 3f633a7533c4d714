package bot

import (
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"aura-bot/internal/models"

	"github.com/mymmrac/telego"
	th "github.com/mymmrac/telego/telegohandler"
	tu "github.com/mymmrac/telego/telegoutil"
)

var moods = []string{
	"спокоен/спокойна", "тревожно", "грусть", "злость",
	"усталость", "радость", "растерянность",
}

// openJournalWindow arms the per-user capture deadline. Expiry is checked
// when the next message arrives, not by a background sweep.
func (b *Bot) openJournalWindow(telegramID int64) {
	b.journalMu.Lock()
	b.journalUntil[telegramID] = time.Now().Add(b.JournalWindow)
	b.journalMu.Unlock()
}

// takeJournalWindow reports whether the user is inside an open window and
// closes it. An expired window is discarded on the way.
func (b *Bot) takeJournalWindow(telegramID int64) bool {
	b.journalMu.Lock()
	defer b.journalMu.Unlock()
	deadline, ok := b.journalUntil[telegramID]
	if !ok {
		return false
	}
	delete(b.journalUntil, telegramID)
	return time.Now().Before(deadline)
}

func (b *Bot) registerJournalHandlers(handler *th.BotHandler) {
	handler.Handle(func(hctx *th.Context, update telego.Update) error {
		telegramID := callbackOrMessageFrom(update)
		b.openJournalWindow(telegramID)
		_, _ = hctx.Bot().SendMessage(hctx.Context(), tu.Message(tu.ID(telegramID), fmt.Sprintf(
			"Напишите заметку в дневник (1–3 предложения) — у вас %d минут, потом окно закроется.",
			int(b.JournalWindow.Minutes()))))
		b.answerCallback(hctx, update)
		return nil
	}, th.Or(th.CallbackDataEqual("journal"), th.CommandEqual("journal")))

	// Mood check-in
	handler.Handle(func(hctx *th.Context, update telego.Update) error {
		telegramID := callbackOrMessageFrom(update)
		rows := make([][]telego.InlineKeyboardButton, 0, len(moods))
		for i, m := range moods {
			rows = append(rows, tu.InlineKeyboardRow(
				tu.InlineKeyboardButton(m).WithCallbackData("mood:"+strconv.Itoa(i)),
			))
		}
		_, _ = hctx.Bot().SendMessage(hctx.Context(), tu.Message(tu.ID(telegramID),
			"Как вы сейчас? Выберите состояние:").
			WithReplyMarkup(&telego.InlineKeyboardMarkup{InlineKeyboard: rows}))
		b.answerCallback(hctx, update)
		return nil
	}, th.Or(th.CallbackDataEqual("checkin"), th.CommandEqual("checkin")))

	handler.Handle(func(hctx *th.Context, update telego.Update) error {
		callback := update.CallbackQuery
		idx, err := strconv.Atoi(strings.TrimPrefix(callback.Data, "mood:"))
		if err != nil || idx < 0 || idx >= len(moods) {
			return nil
		}
		mood := moods[idx]

		user, _, err := b.ensureUser(callback.From.ID, callback.From.Username)
		if err != nil {
			log.Printf("Failed to load user %d: %v", callback.From.ID, err)
			return nil
		}
		entry := models.JournalEntry{UserID: user.ID, Mood: &mood}
		if err := b.DB.Create(&entry).Error; err != nil {
			log.Printf("Failed to save check-in for user %d: %v", user.ID, err)
		}

		_, _ = hctx.Bot().SendMessage(hctx.Context(), tu.Message(tu.ID(callback.From.ID),
			fmt.Sprintf("Сохранила: %s. Если хотите, добавьте пару слов — это помогает замечать паттерны.", mood)))
		_ = hctx.Bot().AnswerCallbackQuery(hctx.Context(), tu.CallbackQuery(callback.ID))
		return nil
	}, th.CallbackDataPrefix("mood:"))
}

// captureJournalEntry saves the message as a journal note when the user's
// window is open. Returns true when the message was consumed.
func (b *Bot) captureJournalEntry(hctx *th.Context, telegramID int64, text string) bool {
	if !b.takeJournalWindow(telegramID) {
		return false
	}

	user, _, err := b.ensureUser(telegramID, "")
	if err != nil {
		log.Printf("Failed to load user %d: %v", telegramID, err)
		return true
	}
	entry := models.JournalEntry{UserID: user.ID, Text: &text}
	if err := b.DB.Create(&entry).Error; err != nil {
		log.Printf("Failed to save journal entry for user %d: %v", user.ID, err)
		return true
	}

	_, _ = hctx.Bot().SendMessage(hctx.Context(), tu.Message(tu.ID(telegramID),
		"Сохранила запись. Спасибо, что доверяете."))
	return true
}
