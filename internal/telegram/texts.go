package telegram

import (
	"fmt"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/AndreyMartjushev/takingPills/internal/domain"
)

// UI texts, Russian first. tr falls back to Russian for unknown languages.
var texts = map[string]map[string]string{
	"ru": {
		"start": "👋 Я напомню принять лекарства вовремя.\n\n" +
			"Добавьте препарат командой /add, список команд — /help.",
		"help": "Команды:\n" +
			"/add — добавить препарат\n" +
			"/list — сегодняшние приёмы\n" +
			"/meds — мои препараты\n" +
			"/daily — отчёт за день\n" +
			"/timezone — часовой пояс\n" +
			"/remind — за сколько минут напоминать\n" +
			"/language — язык\n" +
			"/cancel — прервать текущий ввод",
		"addName":        "Как называется препарат?",
		"addMode":        "Как задать время приёма?",
		"addTimes":       "Введите время приёма через запятую, например: 08:00, 14:00, 20:00",
		"addTimesBad":    "Не понял время. Пример: 08:00, 14:00, 20:00",
		"addPeriods":     "Выберите периоды приёма и нажмите «Готово»:",
		"addPeriodsBad":  "Выберите хотя бы один период.",
		"addStock":       "Сколько таблеток в упаковке? Отправьте число или «нет», чтобы не считать остаток.",
		"addStockBad":    "Отправьте число, например 30, или «нет».",
		"added":          "Добавил %s: %s. Первое напоминание придёт по расписанию.",
		"reminder":       "💊 Пора принять %s (приём в %s)",
		"reminderRepeat": "🔁 Напоминание №%d",
		"taken":          "Отметил ✅",
		"takenStock":     "Отметил ✅ Осталось таблеток: %d",
		"alreadyTaken":   "Этот приём уже отмечен.",
		"lowStock":       "⚠️ %s заканчивается: осталось %d таблеток. Пора пополнить запас.",
		"snoozeMenu":     "Отложить на сколько?",
		"snoozed":        "Напомню через %d мин ⏰",
		"skipped":        "Больше не напоминаю об этом приёме 🔇",
		"summaryTitle":   "📋 Итоги дня %s:",
		"summaryLine":    "• %s: %d из %d",
		"summaryMissed":  " (пропущено %d)",
		"resumed":        "▶️ Возобновил напоминания: %s",
		"listEmpty":      "На сегодня приёмов нет. Добавьте препарат: /add",
		"listTitle":      "Приёмы на сегодня:",
		"medsEmpty":      "Препаратов пока нет. Добавьте: /add",
		"medsTitle":      "Ваши препараты:",
		"medPaused":      " (на паузе до %s)",
		"medStock":       ", осталось %d",
		"pauseMenu":      "На сколько приостановить %s?",
		"pausedMsg":      "⏸ Приостановил %s до %s.",
		"resumedManual":  "▶️ Возобновил %s.",
		"deleted":        "Удалил %s вместе с историей приёмов.",
		"restockPrompt":  "Сколько таблеток теперь в запасе?",
		"restockBad":     "Отправьте число, например 30.",
		"restocked":      "Запас обновлён: %d таблеток.",
		"editPrompt":     "Введите новое время приёма через запятую:",
		"edited":         "Расписание обновлено: %s. Старые напоминания пересчитаю.",
		"tzPrompt":       "Выберите часовой пояс или пришлите свой (Region/City):",
		"tzBad":          "Не знаю такой пояс. Пример: Europe/Moscow",
		"tzSet":          "Часовой пояс: %s",
		"remindPrompt":   "За сколько минут до приёма напоминать? (1–180)",
		"remindBad":      "Отправьте число от 1 до 180.",
		"remindSet":      "Буду напоминать за %d мин до приёма.",
		"langPrompt":     "Выберите язык:",
		"langSet":        "Язык переключён 🇷🇺",
		"takeAllBtn":     "✅ Принять все",
		"tookAll":        "Отметил приёмов: %d ✅",
		"nothingDue":     "Сейчас нет приёмов, ждущих отметки.",
		"deleteConfirm":  "Удалить %s вместе с историей приёмов?",
		"deleteYes":      "🗑 Да, удалить",
		"deleteNo":       "Отмена",
		"canceled":       "Отменил. Что дальше?",
		"nothingCancel":  "Нечего отменять.",
		"noSummaryData":  "Сегодня приёмов не было.",
		"errGeneric":     "Что-то пошло не так, попробуйте ещё раз.",
		"notFound":       "Не нашёл запись. Обновите список: /meds",
	},
	"en": {
		"start": "👋 I will remind you to take your meds on time.\n\n" +
			"Add a medication with /add, see /help for all commands.",
		"help": "Commands:\n" +
			"/add — add a medication\n" +
			"/list — today's doses\n" +
			"/meds — my medications\n" +
			"/daily — daily report\n" +
			"/timezone — time zone\n" +
			"/remind — reminder lead time\n" +
			"/language — language\n" +
			"/cancel — abort current input",
		"addName":        "What is the medication called?",
		"addMode":        "How should the dose times be set?",
		"addTimes":       "Enter dose times separated by commas, e.g.: 08:00, 14:00, 20:00",
		"addTimesBad":    "Could not parse that. Example: 08:00, 14:00, 20:00",
		"addPeriods":     "Pick the dose periods, then press Done:",
		"addPeriodsBad":  "Pick at least one period.",
		"addStock":       "How many pills are in the pack? Send a number, or \"no\" to skip stock tracking.",
		"addStockBad":    "Send a number like 30, or \"no\".",
		"added":          "Added %s: %s. Reminders will follow the schedule.",
		"reminder":       "💊 Time to take %s (dose at %s)",
		"reminderRepeat": "🔁 Reminder #%d",
		"taken":          "Marked ✅",
		"takenStock":     "Marked ✅ Pills left: %d",
		"alreadyTaken":   "This dose is already marked.",
		"lowStock":       "⚠️ %s is running low: %d pills left. Time to restock.",
		"snoozeMenu":     "Snooze for how long?",
		"snoozed":        "Will remind again in %d min ⏰",
		"skipped":        "No more reminders for this dose 🔇",
		"summaryTitle":   "📋 Daily report %s:",
		"summaryLine":    "• %s: %d of %d",
		"summaryMissed":  " (%d missed)",
		"resumed":        "▶️ Reminders resumed: %s",
		"listEmpty":      "No doses today. Add a medication: /add",
		"listTitle":      "Today's doses:",
		"medsEmpty":      "No medications yet. Add one: /add",
		"medsTitle":      "Your medications:",
		"medPaused":      " (paused until %s)",
		"medStock":       ", %d left",
		"pauseMenu":      "Pause %s for how long?",
		"pausedMsg":      "⏸ Paused %s until %s.",
		"resumedManual":  "▶️ Resumed %s.",
		"deleted":        "Deleted %s along with its intake history.",
		"restockPrompt":  "How many pills do you have now?",
		"restockBad":     "Send a number like 30.",
		"restocked":      "Stock updated: %d pills.",
		"editPrompt":     "Enter the new dose times separated by commas:",
		"edited":         "Schedule updated: %s. Upcoming reminders will be rebuilt.",
		"tzPrompt":       "Pick a time zone or send your own (Region/City):",
		"tzBad":          "Unknown time zone. Example: Europe/Moscow",
		"tzSet":          "Time zone: %s",
		"remindPrompt":   "How many minutes before a dose should I remind you? (1–180)",
		"remindBad":      "Send a number between 1 and 180.",
		"remindSet":      "I will remind you %d min before each dose.",
		"langPrompt":     "Choose a language:",
		"langSet":        "Language switched 🇬🇧",
		"takeAllBtn":     "✅ Take all",
		"tookAll":        "Marked %d doses ✅",
		"nothingDue":     "No doses waiting right now.",
		"deleteConfirm":  "Delete %s along with its intake history?",
		"deleteYes":      "🗑 Yes, delete",
		"deleteNo":       "Cancel",
		"canceled":       "Canceled. What next?",
		"nothingCancel":  "Nothing to cancel.",
		"noSummaryData":  "No doses were scheduled today.",
		"errGeneric":     "Something went wrong, please try again.",
		"notFound":       "Record not found. Refresh the list: /meds",
	},
}

var periodLabels = map[string]map[string]string{
	"ru": {"morning": "Утро", "lunch": "Обед", "day": "День", "evening": "Вечер", "night": "Ночь"},
	"en": {"morning": "Morning", "lunch": "Lunch", "day": "Afternoon", "evening": "Evening", "night": "Night"},
}

func tr(lang, key string) string {
	if m, ok := texts[lang]; ok {
		if s, ok := m[key]; ok {
			return s
		}
	}
	return texts["ru"][key]
}

func periodLabel(lang, key string) string {
	if m, ok := periodLabels[lang]; ok {
		if s, ok := m[key]; ok {
			return s
		}
	}
	return key
}

// Snooze presets offered under a reminder, in minutes.
var snoozePresets = []int{10, 20, 30, 40, 60, 120}

// Pause presets offered in the medication menu, in days.
var pausePresets = []struct {
	Days int
	RU   string
	EN   string
}{
	{7, "Неделя", "1 week"},
	{14, "2 недели", "2 weeks"},
	{30, "Месяц", "1 month"},
	{60, "2 месяца", "2 months"},
	{90, "3 месяца", "3 months"},
}

// mainMenuKeyboard is the persistent reply keyboard offered on /start.
func mainMenuKeyboard() tgbotapi.ReplyKeyboardMarkup {
	return tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton("/list"),
			tgbotapi.NewKeyboardButton("/meds"),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton("/add"),
			tgbotapi.NewKeyboardButton("/daily"),
		),
	)
}

func takeAllKeyboard(lang string) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(tr(lang, "takeAllBtn"), "takeall"),
		),
	)
}

func deleteConfirmKeyboard(lang string, medID int64) tgbotapi.InlineKeyboardMarkup {
	id := strconv.FormatInt(medID, 10)
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(tr(lang, "deleteYes"), "delconfirm:"+id),
			tgbotapi.NewInlineKeyboardButtonData(tr(lang, "deleteNo"), "delcancel"),
		),
	)
}

func reminderKeyboard(lang string, intakeID int64) tgbotapi.InlineKeyboardMarkup {
	id := strconv.FormatInt(intakeID, 10)
	take, snooze, skip := "✅ Принял", "⏰ Отложить", "🔇 Пропустить"
	if lang == "en" {
		take, snooze, skip = "✅ Taken", "⏰ Snooze", "🔇 Skip"
	}
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(take, "take:"+id),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(snooze, "snooze:"+id),
			tgbotapi.NewInlineKeyboardButtonData(skip, "skip:"+id),
		),
	)
}

func snoozeKeyboard(lang string, intakeID int64) tgbotapi.InlineKeyboardMarkup {
	id := strconv.FormatInt(intakeID, 10)
	unit := "мин"
	if lang == "en" {
		unit = "min"
	}
	var rows [][]tgbotapi.InlineKeyboardButton
	var row []tgbotapi.InlineKeyboardButton
	for _, m := range snoozePresets {
		row = append(row, tgbotapi.NewInlineKeyboardButtonData(
			fmt.Sprintf("%d %s", m, unit), fmt.Sprintf("snoozefor:%s:%d", id, m)))
		if len(row) == 3 {
			rows = append(rows, row)
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func addModeKeyboard(lang string) tgbotapi.InlineKeyboardMarkup {
	exact, period := "🕐 Точное время", "🌗 Периоды дня"
	if lang == "en" {
		exact, period = "🕐 Exact times", "🌗 Day periods"
	}
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(exact, "addmode:exact"),
			tgbotapi.NewInlineKeyboardButtonData(period, "addmode:period"),
		),
	)
}

func periodKeyboard(lang string, selected []string) tgbotapi.InlineKeyboardMarkup {
	picked := make(map[string]bool, len(selected))
	for _, k := range selected {
		picked[k] = true
	}
	var rows [][]tgbotapi.InlineKeyboardButton
	var row []tgbotapi.InlineKeyboardButton
	for _, p := range domain.Periods {
		label := periodLabel(lang, p.Key) + " " + p.Time
		if picked[p.Key] {
			label = "✅ " + label
		}
		row = append(row, tgbotapi.NewInlineKeyboardButtonData(label, "period:"+p.Key))
		if len(row) == 2 {
			rows = append(rows, row)
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}
	done := "Готово"
	if lang == "en" {
		done = "Done"
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData(done, "period:done"),
	))
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func medActionsKeyboard(lang string, med *domain.Medication) tgbotapi.InlineKeyboardMarkup {
	id := strconv.FormatInt(med.ID, 10)
	edit, pause, resume, restock, del := "✏️ Время", "⏸ Пауза", "▶️ Возобновить", "📦 Запас", "🗑 Удалить"
	if lang == "en" {
		edit, pause, resume, restock, del = "✏️ Times", "⏸ Pause", "▶️ Resume", "📦 Stock", "🗑 Delete"
	}
	toggle := tgbotapi.NewInlineKeyboardButtonData(pause, "med:pauseprompt:"+id)
	if !med.IsActive {
		toggle = tgbotapi.NewInlineKeyboardButtonData(resume, "med:resume:"+id)
	}
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(edit, "med:edit:"+id),
			toggle,
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(restock, "med:restock:"+id),
			tgbotapi.NewInlineKeyboardButtonData(del, "med:delete:"+id),
		),
	)
}

func pauseKeyboard(lang string, medID int64) tgbotapi.InlineKeyboardMarkup {
	id := strconv.FormatInt(medID, 10)
	var rows [][]tgbotapi.InlineKeyboardButton
	var row []tgbotapi.InlineKeyboardButton
	for _, p := range pausePresets {
		label := p.RU
		if lang == "en" {
			label = p.EN
		}
		row = append(row, tgbotapi.NewInlineKeyboardButtonData(
			label, fmt.Sprintf("pause:%s:%d", id, p.Days)))
		if len(row) == 3 {
			rows = append(rows, row)
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func tzPresetsKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Europe/Moscow", "tz:Europe/Moscow"),
			tgbotapi.NewInlineKeyboardButtonData("Europe/Berlin", "tz:Europe/Berlin"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Asia/Almaty", "tz:Asia/Almaty"),
			tgbotapi.NewInlineKeyboardButtonData("UTC", "tz:UTC"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✍️ Custom…", "tz:custom"),
		),
	)
}

func langKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🇷🇺 Русский", "lang:ru"),
			tgbotapi.NewInlineKeyboardButtonData("🇬🇧 English", "lang:en"),
		),
	)
}
