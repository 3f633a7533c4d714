package bot

import (
	"fmt"
	"log"
	"strconv"
	"strings"

	"aura-bot/internal/models"

	"github.com/mymmrac/telego"
	th "github.com/mymmrac/telego/telegohandler"
	tu "github.com/mymmrac/telego/telegoutil"
)

var phq9 = []string{
	"Мало интереса или удовольствия от любимых занятий",
	"Подавленное или безнадёжное настроение",
	"Трудности со сном или повышенная сонливость",
	"Усталость или упадок сил",
	"Плохой аппетит или переедание",
	"Низкая самооценка, чувство, что вы неудачник/неудачница",
	"Трудности с концентрацией",
	"Замедленность или ажитация (заметно окружающим)",
	"Мысли, что лучше бы умереть, или мысли о причинении себе вреда",
}

var gad7 = []string{
	"Чувство нервозности, тревоги или на грани срыва",
	"Невозможность остановить или контролировать беспокойство",
	"Чрезмерные волнения о разных вещах",
	"Трудности с расслаблением",
	"Неспособность усидеть на месте из-за беспокойства",
	"Раздражительность",
	"Страх, что что-то ужасное может случиться",
}

var answerLabels = []string{
	"Никогда (0)", "Несколько дней (1)", "Более половины дней (2)", "Почти каждый день (3)",
}

type scaleRun struct {
	scale string
	index int
	score int
}

func scaleQuestions(scale string) []string {
	if scale == "GAD7" {
		return gad7
	}
	return phq9
}

// SeverityBand classifies a summed score the conventional way for the scale.
func SeverityBand(scale string, score int) string {
	switch scale {
	case "PHQ9":
		switch {
		case score < 5:
			return "минимальная"
		case score < 10:
			return "лёгкая"
		case score < 15:
			return "умеренная"
		case score < 20:
			return "умеренно-тяжёлая"
		default:
			return "тяжёлая"
		}
	case "GAD7":
		switch {
		case score < 5:
			return "минимальная"
		case score < 10:
			return "лёгкая"
		case score < 15:
			return "умеренная"
		default:
			return "тяжёлая"
		}
	}
	return "неизвестная"
}

func (b *Bot) registerScaleHandlers(handler *th.BotHandler) {
	handler.Handle(func(hctx *th.Context, update telego.Update) error {
		telegramID := callbackOrMessageFrom(update)
		keyboard := tu.InlineKeyboard(
			tu.InlineKeyboardRow(tu.InlineKeyboardButton("PHQ-9 (настроение)").WithCallbackData("scale:PHQ9")),
			tu.InlineKeyboardRow(tu.InlineKeyboardButton("GAD-7 (тревога)").WithCallbackData("scale:GAD7")),
		)
		_, _ = hctx.Bot().SendMessage(hctx.Context(), tu.Message(tu.ID(telegramID),
			"Короткие самооценочные шкалы. Это не диагноз, а ориентир.").WithReplyMarkup(keyboard))
		b.answerCallback(hctx, update)
		return nil
	}, th.Or(th.CallbackDataEqual("tests"), th.CommandEqual("tests")))

	handler.Handle(func(hctx *th.Context, update telego.Update) error {
		callback := update.CallbackQuery
		scale := strings.TrimPrefix(callback.Data, "scale:")
		if scale != "PHQ9" && scale != "GAD7" {
			return nil
		}

		b.scalesMu.Lock()
		b.scaleRuns[callback.From.ID] = &scaleRun{scale: scale}
		b.scalesMu.Unlock()

		b.sendScaleQuestion(hctx, callback.From.ID, scale, 0)
		_ = hctx.Bot().AnswerCallbackQuery(hctx.Context(), tu.CallbackQuery(callback.ID))
		return nil
	}, th.CallbackDataPrefix("scale:"))

	handler.Handle(func(hctx *th.Context, update telego.Update) error {
		callback := update.CallbackQuery
		parts := strings.Split(callback.Data, ":")
		if len(parts) != 3 {
			return nil
		}
		idx, err1 := strconv.Atoi(parts[1])
		score, err2 := strconv.Atoi(parts[2])
		if err1 != nil || err2 != nil || score < 0 || score > 3 {
			return nil
		}

		b.scalesMu.Lock()
		run, ok := b.scaleRuns[callback.From.ID]
		if !ok || run.index != idx {
			b.scalesMu.Unlock()
			return nil
		}
		run.score += score
		run.index++
		done := run.index >= len(scaleQuestions(run.scale))
		scale, total := run.scale, run.score
		if done {
			delete(b.scaleRuns, callback.From.ID)
		}
		b.scalesMu.Unlock()

		if !done {
			b.sendScaleQuestion(hctx, callback.From.ID, scale, idx+1)
		} else {
			user, _, err := b.ensureUser(callback.From.ID, callback.From.Username)
			if err == nil {
				result := models.ScaleResult{UserID: user.ID, Scale: scale, Score: total}
				if err := b.DB.Create(&result).Error; err != nil {
					log.Printf("Failed to save scale result for user %d: %v", user.ID, err)
				}
			}
			_, _ = hctx.Bot().SendMessage(hctx.Context(), tu.Message(tu.ID(callback.From.ID), fmt.Sprintf(
				"Итог %s: %d баллов (выраженность: %s).\nЕсли результат беспокоит — стоит обсудить его со специалистом.",
				scale, total, SeverityBand(scale, total))))
		}
		_ = hctx.Bot().AnswerCallbackQuery(hctx.Context(), tu.CallbackQuery(callback.ID))
		return nil
	}, th.CallbackDataPrefix("answer:"))
}

func (b *Bot) sendScaleQuestion(hctx *th.Context, telegramID int64, scale string, idx int) {
	questions := scaleQuestions(scale)
	if idx >= len(questions) {
		return
	}
	rows := make([][]telego.InlineKeyboardButton, 0, len(answerLabels))
	for score, label := range answerLabels {
		rows = append(rows, tu.InlineKeyboardRow(
			tu.InlineKeyboardButton(label).WithCallbackData(fmt.Sprintf("answer:%d:%d", idx, score)),
		))
	}
	_, _ = hctx.Bot().SendMessage(hctx.Context(), tu.Message(tu.ID(telegramID),
		fmt.Sprintf("%d/%d. %s", idx+1, len(questions), questions[idx])).
		WithReplyMarkup(&telego.InlineKeyboardMarkup{InlineKeyboard: rows}))
}
