package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/AndreyMartjushev/takingPills/internal/domain"
)

// send pushes one message through the shared rate limiter and classifies the
// outcome. A 403 means the user blocked the bot; anything else is worth
// retrying.
func (r *Router) send(c tgbotapi.Chattable) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := r.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrDeliveryTransient, err)
	}
	if _, err := r.bot.Send(c); err != nil {
		return classifySendError(err)
	}
	return nil
}

func classifySendError(err error) error {
	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) && apiErr.Code == 403 {
		return fmt.Errorf("%w: %v", domain.ErrDeliveryFatal, err)
	}
	return fmt.Errorf("%w: %v", domain.ErrDeliveryTransient, err)
}

// SendReminder delivers a dose reminder with the take/snooze/skip buttons.
func (r *Router) SendReminder(u *domain.User, med *domain.Medication, intake *domain.Intake) error {
	loc := u.Zone(r.opts.DefaultTZ)
	lang := u.Lang()
	text := fmt.Sprintf(tr(lang, "reminder"), med.Name, domain.LocalClock(intake.ScheduledAt, loc))
	if intake.ReminderCount > 0 {
		text = fmt.Sprintf(tr(lang, "reminderRepeat"), intake.ReminderCount+1) + "\n" + text
	}

	msg := tgbotapi.NewMessage(u.TelegramID, text)
	msg.ReplyMarkup = reminderKeyboard(lang, intake.ID)
	return r.send(msg)
}

// SendSummary delivers the end-of-day report.
func (r *Router) SendSummary(u *domain.User, report domain.DayReport) error {
	lang := u.Lang()
	var b strings.Builder
	fmt.Fprintf(&b, tr(lang, "summaryTitle"), report.Date.Format("02.01.2006"))
	for _, m := range report.Meds {
		b.WriteString("\n")
		fmt.Fprintf(&b, tr(lang, "summaryLine"), m.Name, m.Taken, m.Total())
		if m.Missed > 0 {
			fmt.Fprintf(&b, tr(lang, "summaryMissed"), m.Missed)
		}
	}
	return r.send(tgbotapi.NewMessage(u.TelegramID, b.String()))
}

// SendResumed tells the user a paused course is active again.
func (r *Router) SendResumed(u *domain.User, med *domain.Medication) error {
	text := fmt.Sprintf(tr(u.Lang(), "resumed"), med.Name)
	return r.send(tgbotapi.NewMessage(u.TelegramID, text))
}

// SendAlert notifies the operator chat. Best effort; a lost alert only costs
// visibility.
func (r *Router) SendAlert(text string) {
	if r.opts.AdminChatID == 0 {
		return
	}
	if err := r.send(tgbotapi.NewMessage(r.opts.AdminChatID, "⚠️ "+text)); err != nil {
		r.log.Warn("admin alert failed", zap.Error(err))
	}
}
