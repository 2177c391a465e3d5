package telegram

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/AndreyMartjushev/takingPills/internal/domain"
	"github.com/AndreyMartjushev/takingPills/internal/metrics"
)

// ensureUser makes sure a user row exists, creating it with defaults on first
// contact.
func (r *Router) ensureUser(ctx context.Context, chatID int64, from *tgbotapi.User) (*domain.User, error) {
	name := ""
	if from != nil {
		name = from.FirstName
	}
	return r.repo.GetOrCreateUser(ctx, chatID, name, r.opts.DefaultTZ, r.opts.DefaultRemindMin)
}

// --- Generic helpers ---

func (r *Router) sendText(chatID int64, text string) {
	if err := r.send(tgbotapi.NewMessage(chatID, text)); err != nil {
		r.log.Warn("send failed", zap.Error(err), zap.Int64("chatID", chatID))
	}
}

func (r *Router) sendWithMarkup(chatID int64, text string, markup interface{}) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = markup
	if err := r.send(msg); err != nil {
		r.log.Warn("send failed", zap.Error(err), zap.Int64("chatID", chatID))
	}
}

func (r *Router) answerCallback(id, text string) {
	_, _ = r.bot.Request(tgbotapi.NewCallback(id, text))
}

// dropKeyboard removes the inline keyboard from an already-answered message.
func (r *Router) dropKeyboard(chatID int64, msgID int) {
	empty := tgbotapi.InlineKeyboardMarkup{InlineKeyboard: [][]tgbotapi.InlineKeyboardButton{}}
	_, _ = r.bot.Request(tgbotapi.NewEditMessageReplyMarkup(chatID, msgID, empty))
}

// parseTimesList parses a comma-separated list of dose times into sorted
// unique canonical HH:MM strings.
func parseTimesList(raw string) ([]string, error) {
	seen := make(map[string]bool)
	var out []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		hhmm, err := domain.NormalizeTimeInput(part)
		if err != nil {
			return nil, err
		}
		if !seen[hhmm] {
			seen[hhmm] = true
			out = append(out, hhmm)
		}
	}
	if len(out) == 0 {
		return nil, domain.ErrInvalidTime
	}
	sort.Strings(out)
	return out, nil
}

func parseCallbackID(data, prefix string) (int64, bool) {
	id, err := strconv.ParseInt(strings.TrimPrefix(data, prefix), 10, 64)
	return id, err == nil
}

// loadOwnedMed fetches a medication and checks it belongs to the user.
func (r *Router) loadOwnedMed(ctx context.Context, u *domain.User, medID int64) (*domain.Medication, error) {
	med, err := r.repo.GetMedication(ctx, medID)
	if err != nil {
		return nil, err
	}
	if med.UserID != u.ID {
		return nil, domain.ErrNotFound
	}
	return med, nil
}

// --- Core commands ---

func (r *Router) handleStart(ctx context.Context, chatID int64, from *tgbotapi.User) {
	u, err := r.ensureUser(ctx, chatID, from)
	if err != nil {
		r.log.Error("ensureUser failed", zap.Error(err))
		r.sendText(chatID, tr("ru", "errGeneric"))
		return
	}
	r.sendWithMarkup(chatID, tr(u.Lang(), "start"), mainMenuKeyboard())
}

func (r *Router) handleHelp(ctx context.Context, chatID int64) {
	u, err := r.ensureUser(ctx, chatID, nil)
	if err != nil {
		r.log.Error("ensureUser failed", zap.Error(err))
		return
	}
	r.sendText(chatID, tr(u.Lang(), "help"))
}

func (r *Router) handleCancel(ctx context.Context, chatID int64) {
	u, err := r.ensureUser(ctx, chatID, nil)
	if err != nil {
		return
	}
	if r.getPending(chatID) == nil {
		r.sendText(chatID, tr(u.Lang(), "nothingCancel"))
		return
	}
	r.clearPending(chatID)
	r.sendText(chatID, tr(u.Lang(), "canceled"))
}

// --- /add flow ---

func (r *Router) handleAdd(ctx context.Context, chatID int64) {
	u, err := r.ensureUser(ctx, chatID, nil)
	if err != nil {
		r.log.Error("ensureUser failed", zap.Error(err))
		r.sendText(chatID, tr("ru", "errGeneric"))
		return
	}
	r.setPending(chatID, &pendingState{
		step:  pendingAddName,
		draft: &domain.Medication{UserID: u.ID, PillsPerDose: 1},
	})
	r.sendText(chatID, tr(u.Lang(), "addName"))
}

func (r *Router) handleAddMode(ctx context.Context, chatID int64, data, cbID string) {
	r.answerCallback(cbID, "")
	u, err := r.ensureUser(ctx, chatID, nil)
	if err != nil {
		return
	}
	st := r.getPending(chatID)
	if st == nil || st.draft == nil {
		return
	}
	switch data {
	case "addmode:exact":
		st.step = pendingAddTimes
		r.setPending(chatID, st)
		r.sendText(chatID, tr(u.Lang(), "addTimes"))
	case "addmode:period":
		st.step = ""
		st.periods = nil
		r.setPending(chatID, st)
		r.sendWithMarkup(chatID, tr(u.Lang(), "addPeriods"), periodKeyboard(u.Lang(), nil))
	}
}

func (r *Router) handlePeriodPick(ctx context.Context, chatID int64, msgID int, data, cbID string) {
	u, err := r.ensureUser(ctx, chatID, nil)
	if err != nil {
		r.answerCallback(cbID, "")
		return
	}
	st := r.getPending(chatID)
	if st == nil || st.draft == nil {
		r.answerCallback(cbID, "")
		return
	}

	key := strings.TrimPrefix(data, "period:")
	if key == "done" {
		if len(st.periods) == 0 {
			r.answerCallback(cbID, tr(u.Lang(), "addPeriodsBad"))
			return
		}
		r.answerCallback(cbID, "")
		// Resolve picked periods to clock times in preset order.
		var keys, times []string
		for _, p := range domain.Periods {
			for _, k := range st.periods {
				if k == p.Key {
					keys = append(keys, p.Key)
					times = append(times, p.Time)
				}
			}
		}
		st.draft.ScheduleMode = domain.SchedulePeriod
		st.draft.Periods = keys
		st.draft.Times = times
		st.draft.DosesPerDay = len(times)
		st.step = pendingAddStock
		r.setPending(chatID, st)
		r.sendText(chatID, tr(u.Lang(), "addStock"))
		return
	}

	if domain.PeriodByKey(key) == nil {
		r.answerCallback(cbID, "")
		return
	}
	toggled := st.periods[:0:0]
	found := false
	for _, k := range st.periods {
		if k == key {
			found = true
			continue
		}
		toggled = append(toggled, k)
	}
	if !found {
		toggled = append(toggled, key)
	}
	st.periods = toggled
	r.setPending(chatID, st)
	r.answerCallback(cbID, "")
	_, _ = r.bot.Request(tgbotapi.NewEditMessageReplyMarkup(chatID, msgID, periodKeyboard(u.Lang(), st.periods)))
}

func (r *Router) finishAdd(ctx context.Context, chatID int64, u *domain.User, st *pendingState) {
	st.draft.IsActive = true
	if err := st.draft.Validate(); err != nil {
		r.log.Warn("draft validation failed", zap.Error(err))
		r.clearPending(chatID)
		r.sendText(chatID, tr(u.Lang(), "errGeneric"))
		return
	}
	if err := r.repo.AddMedication(ctx, st.draft); err != nil {
		r.log.Error("AddMedication failed", zap.Error(err))
		r.clearPending(chatID)
		r.sendText(chatID, tr(u.Lang(), "errGeneric"))
		return
	}
	r.clearPending(chatID)
	r.sendText(chatID, fmt.Sprintf(tr(u.Lang(), "added"),
		st.draft.Name, strings.Join(st.draft.Times, ", ")))
}

// --- Free-form dispatcher (text steps of the pending flows) ---

func (r *Router) handleFreeForm(ctx context.Context, chatID int64, text string) {
	st := r.getPending(chatID)
	if st == nil {
		return
	}
	u, err := r.ensureUser(ctx, chatID, nil)
	if err != nil {
		r.log.Error("ensureUser failed", zap.Error(err))
		return
	}
	lang := u.Lang()

	switch st.step {
	case pendingAddName:
		if text == "" || len(text) > 100 {
			r.sendText(chatID, tr(lang, "addName"))
			return
		}
		st.draft.Name = text
		st.step = ""
		r.setPending(chatID, st)
		r.sendWithMarkup(chatID, tr(lang, "addMode"), addModeKeyboard(lang))

	case pendingAddTimes:
		times, err := parseTimesList(text)
		if err != nil {
			r.sendText(chatID, tr(lang, "addTimesBad"))
			return
		}
		st.draft.ScheduleMode = domain.ScheduleExact
		st.draft.Times = times
		st.draft.DosesPerDay = len(times)
		st.step = pendingAddStock
		r.setPending(chatID, st)
		r.sendText(chatID, tr(lang, "addStock"))

	case pendingAddStock:
		low := strings.ToLower(text)
		if low == "нет" || low == "no" || low == "skip" {
			r.finishAdd(ctx, chatID, u, st)
			return
		}
		n, err := strconv.Atoi(text)
		if err != nil || n <= 0 || n > 100000 {
			r.sendText(chatID, tr(lang, "addStockBad"))
			return
		}
		st.draft.StockTotal = &n
		r.finishAdd(ctx, chatID, u, st)

	case pendingEditTime:
		times, err := parseTimesList(text)
		if err != nil {
			r.sendText(chatID, tr(lang, "addTimesBad"))
			return
		}
		r.clearPending(chatID)
		if err := r.repo.UpdateMedicationSchedule(ctx, st.medID, times, domain.ScheduleExact, nil, len(times)); err != nil {
			r.log.Error("UpdateMedicationSchedule failed", zap.Error(err))
			r.sendText(chatID, tr(lang, "errGeneric"))
			return
		}
		// Drop untaken future instances so the new times materialize cleanly.
		if err := r.repo.ClearFutureIntakes(ctx, st.medID, time.Now().UTC()); err != nil {
			r.log.Error("ClearFutureIntakes failed", zap.Error(err))
		}
		r.sendText(chatID, fmt.Sprintf(tr(lang, "edited"), strings.Join(times, ", ")))

	case pendingRestock:
		n, err := strconv.Atoi(text)
		if err != nil || n < 0 || n > 100000 {
			r.sendText(chatID, tr(lang, "restockBad"))
			return
		}
		r.clearPending(chatID)
		if err := r.repo.SetStock(ctx, st.medID, n, r.opts.LowStockDays); err != nil {
			r.log.Error("SetStock failed", zap.Error(err))
			r.sendText(chatID, tr(lang, "errGeneric"))
			return
		}
		r.sendText(chatID, fmt.Sprintf(tr(lang, "restocked"), n))

	case pendingTZ:
		tz, err := domain.ValidateTZ(text)
		if err != nil {
			r.sendText(chatID, tr(lang, "tzBad"))
			return
		}
		r.clearPending(chatID)
		if err := r.repo.UpdateUserTimezone(ctx, u.ID, tz); err != nil {
			r.log.Error("UpdateUserTimezone failed", zap.Error(err))
			r.sendText(chatID, tr(lang, "errGeneric"))
			return
		}
		r.sendText(chatID, fmt.Sprintf(tr(lang, "tzSet"), tz))

	case pendingRemind:
		n, err := strconv.Atoi(text)
		if err != nil || n < 1 || n > 180 {
			r.sendText(chatID, tr(lang, "remindBad"))
			return
		}
		r.clearPending(chatID)
		if err := r.repo.UpdateUserRemindBefore(ctx, u.ID, n); err != nil {
			r.log.Error("UpdateUserRemindBefore failed", zap.Error(err))
			r.sendText(chatID, tr(lang, "errGeneric"))
			return
		}
		r.sendText(chatID, fmt.Sprintf(tr(lang, "remindSet"), n))

	default:
		// No pending flow: ignore free-form message
	}
}

// --- Today's doses and medication list ---

func (r *Router) handleList(ctx context.Context, chatID int64) {
	u, err := r.ensureUser(ctx, chatID, nil)
	if err != nil {
		r.sendText(chatID, tr("ru", "errGeneric"))
		return
	}
	lang := u.Lang()
	loc := u.Zone(r.opts.DefaultTZ)
	now := time.Now().UTC()
	from, to := domain.DayBounds(now.In(loc), loc)

	meds, err := r.repo.ListMedications(ctx, u.ID, false)
	if err != nil {
		r.log.Error("ListMedications failed", zap.Error(err))
		r.sendText(chatID, tr(lang, "errGeneric"))
		return
	}

	var b strings.Builder
	b.WriteString(tr(lang, "listTitle"))
	total, overdue := 0, 0
	for _, med := range meds {
		intakes, err := r.repo.ListIntakesForRange(ctx, med.ID, from, to)
		if err != nil {
			r.log.Error("ListIntakesForRange failed", zap.Error(err))
			continue
		}
		for _, in := range intakes {
			mark := "⏳"
			switch {
			case in.Taken:
				mark = "✅"
			case in.Paused:
				mark = "🔇"
			case in.ScheduledAt.Before(now):
				mark = "❌"
				overdue++
			}
			fmt.Fprintf(&b, "\n%s %s — %s", mark, domain.LocalClock(in.ScheduledAt, loc), med.Name)
			total++
		}
	}
	if total == 0 {
		r.sendText(chatID, tr(lang, "listEmpty"))
		return
	}
	if overdue > 0 {
		r.sendWithMarkup(chatID, b.String(), takeAllKeyboard(lang))
		return
	}
	r.sendText(chatID, b.String())
}

// handleTakeAll marks every overdue dose of the current local day taken in
// one go.
func (r *Router) handleTakeAll(ctx context.Context, chatID int64, cbID string) {
	u, err := r.ensureUser(ctx, chatID, nil)
	if err != nil {
		r.answerCallback(cbID, "")
		return
	}
	lang := u.Lang()
	loc := u.Zone(r.opts.DefaultTZ)
	now := time.Now().UTC()
	from, to := domain.DayBounds(now.In(loc), loc)

	meds, err := r.repo.ListMedications(ctx, u.ID, false)
	if err != nil {
		r.log.Error("ListMedications failed", zap.Error(err))
		r.answerCallback(cbID, tr(lang, "errGeneric"))
		return
	}

	marked := 0
	for _, med := range meds {
		intakes, err := r.repo.ListIntakesForRange(ctx, med.ID, from, to)
		if err != nil {
			r.log.Error("ListIntakesForRange failed", zap.Error(err))
			continue
		}
		for _, in := range intakes {
			if in.Terminal() || in.ScheduledAt.After(now) {
				continue
			}
			res, err := r.repo.MarkIntakeTaken(ctx, in.ID, now, r.opts.LowStockDays)
			if errors.Is(err, domain.ErrAlreadyTaken) {
				continue
			}
			if err != nil {
				r.log.Error("MarkIntakeTaken failed", zap.Error(err), zap.Int64("intakeID", in.ID))
				continue
			}
			metrics.RecordIntakeMarked()
			marked++
			if res.LowStock && res.NewStock != nil {
				metrics.RecordLowStockAlert()
				r.sendText(chatID, fmt.Sprintf(tr(lang, "lowStock"), med.Name, *res.NewStock))
			}
		}
	}

	if marked == 0 {
		r.answerCallback(cbID, tr(lang, "nothingDue"))
		return
	}
	r.answerCallback(cbID, "")
	r.sendText(chatID, fmt.Sprintf(tr(lang, "tookAll"), marked))
}

func (r *Router) handleMeds(ctx context.Context, chatID int64) {
	u, err := r.ensureUser(ctx, chatID, nil)
	if err != nil {
		r.sendText(chatID, tr("ru", "errGeneric"))
		return
	}
	lang := u.Lang()
	loc := u.Zone(r.opts.DefaultTZ)

	meds, err := r.repo.ListMedications(ctx, u.ID, true)
	if err != nil {
		r.log.Error("ListMedications failed", zap.Error(err))
		r.sendText(chatID, tr(lang, "errGeneric"))
		return
	}
	if len(meds) == 0 {
		r.sendText(chatID, tr(lang, "medsEmpty"))
		return
	}

	now := time.Now().UTC()
	r.sendText(chatID, tr(lang, "medsTitle"))
	for i := range meds {
		med := &meds[i]
		line := fmt.Sprintf("💊 %s — %s", med.Name, strings.Join(med.Times, ", "))
		if med.StockTotal != nil {
			line += fmt.Sprintf(tr(lang, "medStock"), *med.StockTotal)
		}
		if med.PausedAt(now) {
			line += fmt.Sprintf(tr(lang, "medPaused"), domain.LocalStamp(med.PausedUntil, loc))
		}
		r.sendWithMarkup(chatID, line, medActionsKeyboard(lang, med))
	}
}

// --- Daily report on demand ---

func (r *Router) handleDaily(ctx context.Context, chatID int64) {
	u, err := r.ensureUser(ctx, chatID, nil)
	if err != nil {
		r.sendText(chatID, tr("ru", "errGeneric"))
		return
	}
	lang := u.Lang()
	loc := u.Zone(r.opts.DefaultTZ)
	localNow := time.Now().In(loc)

	meds, err := r.repo.ListMedications(ctx, u.ID, false)
	if err != nil {
		r.log.Error("ListMedications failed", zap.Error(err))
		r.sendText(chatID, tr(lang, "errGeneric"))
		return
	}

	report := domain.DayReport{Date: localNow}
	from, to := domain.DayBounds(localNow, loc)
	for _, med := range meds {
		intakes, err := r.repo.ListIntakesForRange(ctx, med.ID, from, to)
		if err != nil {
			r.log.Error("ListIntakesForRange failed", zap.Error(err))
			continue
		}
		if len(intakes) == 0 {
			continue
		}
		report.Meds = append(report.Meds, domain.BuildMedReport(med.Name, intakes, localNow.UTC()))
	}
	if !report.HasData() {
		r.sendText(chatID, tr(lang, "noSummaryData"))
		return
	}
	if err := r.SendSummary(u, report); err != nil {
		r.log.Warn("on-demand summary failed", zap.Error(err))
	}
}

// --- Reminder buttons ---

func (r *Router) handleTake(ctx context.Context, chatID int64, msgID int, data, cbID string) {
	u, err := r.ensureUser(ctx, chatID, nil)
	if err != nil {
		r.answerCallback(cbID, "")
		return
	}
	lang := u.Lang()
	id, ok := parseCallbackID(data, "take:")
	if !ok {
		r.answerCallback(cbID, "")
		return
	}

	res, err := r.repo.MarkIntakeTaken(ctx, id, time.Now().UTC(), r.opts.LowStockDays)
	switch {
	case errors.Is(err, domain.ErrAlreadyTaken):
		r.answerCallback(cbID, tr(lang, "alreadyTaken"))
		r.dropKeyboard(chatID, msgID)
		return
	case errors.Is(err, domain.ErrNotFound):
		r.answerCallback(cbID, tr(lang, "notFound"))
		return
	case err != nil:
		r.log.Error("MarkIntakeTaken failed", zap.Error(err), zap.Int64("intakeID", id))
		r.answerCallback(cbID, tr(lang, "errGeneric"))
		return
	}
	metrics.RecordIntakeMarked()

	text := tr(lang, "taken")
	if res.NewStock != nil {
		text = fmt.Sprintf(tr(lang, "takenStock"), *res.NewStock)
	}
	r.answerCallback(cbID, text)
	r.dropKeyboard(chatID, msgID)

	if res.LowStock && res.NewStock != nil {
		metrics.RecordLowStockAlert()
		name := "?"
		if in, err := r.repo.GetIntake(ctx, id); err == nil {
			if med, err := r.repo.GetMedication(ctx, in.MedicationID); err == nil {
				name = med.Name
			}
		}
		r.sendText(chatID, fmt.Sprintf(tr(lang, "lowStock"), name, *res.NewStock))
	}
}

func (r *Router) handleSnoozeMenu(ctx context.Context, chatID int64, data, cbID string) {
	r.answerCallback(cbID, "")
	u, err := r.ensureUser(ctx, chatID, nil)
	if err != nil {
		return
	}
	id, ok := parseCallbackID(data, "snooze:")
	if !ok {
		return
	}
	r.sendWithMarkup(chatID, tr(u.Lang(), "snoozeMenu"), snoozeKeyboard(u.Lang(), id))
}

func (r *Router) handleSnoozeFor(ctx context.Context, chatID int64, msgID int, data, cbID string) {
	u, err := r.ensureUser(ctx, chatID, nil)
	if err != nil {
		r.answerCallback(cbID, "")
		return
	}
	lang := u.Lang()
	parts := strings.Split(strings.TrimPrefix(data, "snoozefor:"), ":")
	if len(parts) != 2 {
		r.answerCallback(cbID, "")
		return
	}
	id, err1 := strconv.ParseInt(parts[0], 10, 64)
	minutes, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil || minutes <= 0 {
		r.answerCallback(cbID, "")
		return
	}

	until := time.Now().UTC().Add(time.Duration(minutes) * time.Minute)
	if err := r.repo.SnoozeIntake(ctx, id, until); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			r.answerCallback(cbID, tr(lang, "alreadyTaken"))
			return
		}
		r.log.Error("SnoozeIntake failed", zap.Error(err), zap.Int64("intakeID", id))
		r.answerCallback(cbID, tr(lang, "errGeneric"))
		return
	}
	metrics.RecordSnooze()
	r.answerCallback(cbID, fmt.Sprintf(tr(lang, "snoozed"), minutes))
	r.dropKeyboard(chatID, msgID)
}

func (r *Router) handleSkip(ctx context.Context, chatID int64, msgID int, data, cbID string) {
	u, err := r.ensureUser(ctx, chatID, nil)
	if err != nil {
		r.answerCallback(cbID, "")
		return
	}
	lang := u.Lang()
	id, ok := parseCallbackID(data, "skip:")
	if !ok {
		r.answerCallback(cbID, "")
		return
	}
	if err := r.repo.SilenceIntake(ctx, id); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			r.answerCallback(cbID, tr(lang, "alreadyTaken"))
			return
		}
		r.log.Error("SilenceIntake failed", zap.Error(err), zap.Int64("intakeID", id))
		r.answerCallback(cbID, tr(lang, "errGeneric"))
		return
	}
	r.answerCallback(cbID, tr(lang, "skipped"))
	r.dropKeyboard(chatID, msgID)
}

// --- Medication management callbacks ---

func (r *Router) handleMedAction(ctx context.Context, chatID int64, data, cbID string) {
	u, err := r.ensureUser(ctx, chatID, nil)
	if err != nil {
		r.answerCallback(cbID, "")
		return
	}
	lang := u.Lang()
	parts := strings.SplitN(strings.TrimPrefix(data, "med:"), ":", 2)
	if len(parts) != 2 {
		r.answerCallback(cbID, "")
		return
	}
	action := parts[0]
	medID, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		r.answerCallback(cbID, "")
		return
	}

	med, err := r.loadOwnedMed(ctx, u, medID)
	if err != nil {
		r.answerCallback(cbID, tr(lang, "notFound"))
		return
	}
	r.answerCallback(cbID, "")

	switch action {
	case "edit":
		r.setPending(chatID, &pendingState{step: pendingEditTime, medID: medID})
		r.sendText(chatID, tr(lang, "editPrompt"))

	case "pauseprompt":
		r.sendWithMarkup(chatID, fmt.Sprintf(tr(lang, "pauseMenu"), med.Name), pauseKeyboard(lang, medID))

	case "resume":
		if err := r.repo.SetMedicationActive(ctx, medID, u.ID, true, nil); err != nil {
			r.log.Error("resume failed", zap.Error(err), zap.Int64("medID", medID))
			r.sendText(chatID, tr(lang, "errGeneric"))
			return
		}
		r.sendText(chatID, fmt.Sprintf(tr(lang, "resumedManual"), med.Name))

	case "restock":
		r.setPending(chatID, &pendingState{step: pendingRestock, medID: medID})
		r.sendText(chatID, tr(lang, "restockPrompt"))

	case "delete":
		// Destructive, so ask first.
		r.sendWithMarkup(chatID, fmt.Sprintf(tr(lang, "deleteConfirm"), med.Name),
			deleteConfirmKeyboard(lang, medID))
	}
}

func (r *Router) handleDeleteConfirm(ctx context.Context, chatID int64, msgID int, data, cbID string) {
	u, err := r.ensureUser(ctx, chatID, nil)
	if err != nil {
		r.answerCallback(cbID, "")
		return
	}
	lang := u.Lang()
	medID, ok := parseCallbackID(data, "delconfirm:")
	if !ok {
		r.answerCallback(cbID, "")
		return
	}
	med, err := r.loadOwnedMed(ctx, u, medID)
	if err != nil {
		r.answerCallback(cbID, tr(lang, "notFound"))
		return
	}
	if err := r.repo.DeleteMedication(ctx, medID, u.ID); err != nil {
		r.log.Error("DeleteMedication failed", zap.Error(err), zap.Int64("medID", medID))
		r.answerCallback(cbID, tr(lang, "errGeneric"))
		return
	}
	r.answerCallback(cbID, "")
	r.dropKeyboard(chatID, msgID)
	r.sendText(chatID, fmt.Sprintf(tr(lang, "deleted"), med.Name))
}

func (r *Router) handleDeleteCancel(ctx context.Context, chatID int64, msgID int, cbID string) {
	u, err := r.ensureUser(ctx, chatID, nil)
	if err != nil {
		r.answerCallback(cbID, "")
		return
	}
	r.answerCallback(cbID, tr(u.Lang(), "canceled"))
	r.dropKeyboard(chatID, msgID)
}

func (r *Router) handlePauseFor(ctx context.Context, chatID int64, data, cbID string) {
	u, err := r.ensureUser(ctx, chatID, nil)
	if err != nil {
		r.answerCallback(cbID, "")
		return
	}
	lang := u.Lang()
	parts := strings.Split(strings.TrimPrefix(data, "pause:"), ":")
	if len(parts) != 2 {
		r.answerCallback(cbID, "")
		return
	}
	medID, err1 := strconv.ParseInt(parts[0], 10, 64)
	days, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil || days <= 0 || days > 366 {
		r.answerCallback(cbID, "")
		return
	}

	med, err := r.loadOwnedMed(ctx, u, medID)
	if err != nil {
		r.answerCallback(cbID, tr(lang, "notFound"))
		return
	}
	r.answerCallback(cbID, "")

	now := time.Now().UTC()
	until := now.AddDate(0, 0, days)
	if err := r.repo.SetMedicationActive(ctx, medID, u.ID, false, &until); err != nil {
		r.log.Error("pause failed", zap.Error(err), zap.Int64("medID", medID))
		r.sendText(chatID, tr(lang, "errGeneric"))
		return
	}
	// Pending reminders for the paused course must not fire.
	if err := r.repo.ClearFutureIntakes(ctx, medID, now); err != nil {
		r.log.Error("ClearFutureIntakes failed", zap.Error(err), zap.Int64("medID", medID))
	}
	loc := u.Zone(r.opts.DefaultTZ)
	r.sendText(chatID, fmt.Sprintf(tr(lang, "pausedMsg"), med.Name, until.In(loc).Format("02.01.2006")))
}

// --- Settings ---

func (r *Router) handleTimezone(ctx context.Context, chatID int64) {
	u, err := r.ensureUser(ctx, chatID, nil)
	if err != nil {
		return
	}
	r.sendWithMarkup(chatID, tr(u.Lang(), "tzPrompt"), tzPresetsKeyboard())
}

func (r *Router) handleTZCallback(ctx context.Context, chatID int64, data, cbID string) {
	r.answerCallback(cbID, "")
	u, err := r.ensureUser(ctx, chatID, nil)
	if err != nil {
		return
	}
	lang := u.Lang()
	if data == "tz:custom" {
		r.setPending(chatID, &pendingState{step: pendingTZ})
		r.sendText(chatID, tr(lang, "tzPrompt"))
		return
	}
	tz, err := domain.ValidateTZ(strings.TrimPrefix(data, "tz:"))
	if err != nil {
		r.sendText(chatID, tr(lang, "tzBad"))
		return
	}
	if err := r.repo.UpdateUserTimezone(ctx, u.ID, tz); err != nil {
		r.log.Error("UpdateUserTimezone failed", zap.Error(err))
		r.sendText(chatID, tr(lang, "errGeneric"))
		return
	}
	r.sendText(chatID, fmt.Sprintf(tr(lang, "tzSet"), tz))
}

func (r *Router) handleRemind(ctx context.Context, chatID int64) {
	u, err := r.ensureUser(ctx, chatID, nil)
	if err != nil {
		return
	}
	r.setPending(chatID, &pendingState{step: pendingRemind})
	r.sendText(chatID, tr(u.Lang(), "remindPrompt"))
}

func (r *Router) handleLanguage(ctx context.Context, chatID int64) {
	u, err := r.ensureUser(ctx, chatID, nil)
	if err != nil {
		return
	}
	r.sendWithMarkup(chatID, tr(u.Lang(), "langPrompt"), langKeyboard())
}

func (r *Router) handleLangCallback(ctx context.Context, chatID int64, data, cbID string) {
	r.answerCallback(cbID, "")
	u, err := r.ensureUser(ctx, chatID, nil)
	if err != nil {
		return
	}
	lang := strings.TrimPrefix(data, "lang:")
	if lang != "ru" && lang != "en" {
		return
	}
	if err := r.repo.UpdateUserLanguage(ctx, u.ID, lang); err != nil {
		r.log.Error("UpdateUserLanguage failed", zap.Error(err))
		r.sendText(chatID, tr(u.Lang(), "errGeneric"))
		return
	}
	r.sendText(chatID, tr(lang, "langSet"))
}

// --- Operator stats ---

func (r *Router) handleStats(ctx context.Context, chatID int64) {
	if r.opts.AdminChatID == 0 || chatID != r.opts.AdminChatID {
		return
	}
	s := metrics.Read()
	r.sendText(chatID, fmt.Sprintf(
		"reminders sent: %d\nreminders failed: %d\nsnoozes: %d\nintakes marked: %d\nintakes missed: %d\nlow stock alerts: %d",
		s.RemindersSent, s.RemindersFailed, s.Snoozes, s.IntakesMarked, s.IntakesMissed, s.LowStockAlerts))
}
