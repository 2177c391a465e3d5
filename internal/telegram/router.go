package telegram

import (
	"context"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/AndreyMartjushev/takingPills/internal/domain"
	"github.com/AndreyMartjushev/takingPills/internal/store"
)

// Pending state keys used in conversational flows.
const (
	pendingAddName  = "await_add_name"
	pendingAddTimes = "await_add_times"
	pendingAddStock = "await_add_stock"
	pendingTZ       = "await_tz_text"
	pendingRemind   = "await_remind_minutes"
	pendingRestock  = "await_restock_count"
	pendingEditTime = "await_edit_times"
)

// pendingState tracks one chat's position in a multi-step flow. The /add flow
// accumulates a draft medication across several messages and callbacks.
type pendingState struct {
	step    string
	draft   *domain.Medication
	periods []string // selected period keys while the picker is open
	medID   int64    // target of restock/edit flows
}

// Options carries the configuration slice the router needs.
type Options struct {
	DefaultTZ        string
	DefaultRemindMin int
	LowStockDays     int
	AdminChatID      int64 // 0 disables operator alerts
}

// Router wires Telegram updates to handlers and holds minimal in-memory state.
// It also implements scheduler.Sender for outbound reminders and summaries.
type Router struct {
	bot     *tgbotapi.BotAPI
	log     *zap.Logger
	repo    store.Repo
	opts    Options
	limiter *rate.Limiter

	state map[int64]*pendingState // chatID -> pending flow
	mu    sync.RWMutex
}

// NewRouter creates a new Telegram router.
func NewRouter(bot *tgbotapi.BotAPI, log *zap.Logger, repo store.Repo, opts Options) *Router {
	return &Router{
		bot:  bot,
		log:  log,
		repo: repo,
		opts: opts,
		// Bot API allows ~30 messages/second overall; stay under it.
		limiter: rate.NewLimiter(rate.Limit(25), 5),
		state:   make(map[int64]*pendingState),
	}
}

func (r *Router) setPending(chatID int64, s *pendingState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state[chatID] = s
}

func (r *Router) getPending(chatID int64) *pendingState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state[chatID]
}

func (r *Router) clearPending(chatID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.state, chatID)
}

// HandleUpdate routes a single update to the appropriate handler.
func (r *Router) HandleUpdate(ctx context.Context, upd tgbotapi.Update) {
	if upd.Message != nil {
		msg := upd.Message
		chatID := msg.Chat.ID
		text := strings.TrimSpace(msg.Text)

		switch {
		case strings.HasPrefix(text, "/start"):
			r.handleStart(ctx, chatID, msg.From)
		case strings.HasPrefix(text, "/help"):
			r.handleHelp(ctx, chatID)
		case strings.HasPrefix(text, "/add"):
			r.handleAdd(ctx, chatID)
		case strings.HasPrefix(text, "/list"):
			r.handleList(ctx, chatID)
		case strings.HasPrefix(text, "/meds"):
			r.handleMeds(ctx, chatID)
		case strings.HasPrefix(text, "/daily"):
			r.handleDaily(ctx, chatID)
		case strings.HasPrefix(text, "/timezone"):
			r.handleTimezone(ctx, chatID)
		case strings.HasPrefix(text, "/remind"):
			r.handleRemind(ctx, chatID)
		case strings.HasPrefix(text, "/language"):
			r.handleLanguage(ctx, chatID)
		case strings.HasPrefix(text, "/stats"):
			r.handleStats(ctx, chatID)
		case strings.HasPrefix(text, "/cancel"):
			r.handleCancel(ctx, chatID)
		default:
			// Free-form text feeds whatever flow is pending for this chat.
			r.handleFreeForm(ctx, chatID, text)
		}
		return
	}

	if upd.CallbackQuery != nil {
		cb := upd.CallbackQuery
		data := cb.Data
		if cb.Message == nil {
			return
		}
		chatID := cb.Message.Chat.ID

		switch {
		// /add flow
		case strings.HasPrefix(data, "addmode:"):
			r.handleAddMode(ctx, chatID, data, cb.ID)
		case strings.HasPrefix(data, "period:"):
			r.handlePeriodPick(ctx, chatID, cb.Message.MessageID, data, cb.ID)

		// Reminder buttons
		case strings.HasPrefix(data, "snoozefor:"):
			r.handleSnoozeFor(ctx, chatID, cb.Message.MessageID, data, cb.ID)
		case strings.HasPrefix(data, "take:"):
			r.handleTake(ctx, chatID, cb.Message.MessageID, data, cb.ID)
		case strings.HasPrefix(data, "snooze:"):
			r.handleSnoozeMenu(ctx, chatID, data, cb.ID)
		case strings.HasPrefix(data, "skip:"):
			r.handleSkip(ctx, chatID, cb.Message.MessageID, data, cb.ID)
		case data == "takeall":
			r.handleTakeAll(ctx, chatID, cb.ID)

		// Medication management
		case strings.HasPrefix(data, "med:"):
			r.handleMedAction(ctx, chatID, data, cb.ID)
		case strings.HasPrefix(data, "pause:"):
			r.handlePauseFor(ctx, chatID, data, cb.ID)
		case strings.HasPrefix(data, "delconfirm:"):
			r.handleDeleteConfirm(ctx, chatID, cb.Message.MessageID, data, cb.ID)
		case data == "delcancel":
			r.handleDeleteCancel(ctx, chatID, cb.Message.MessageID, cb.ID)

		// Settings
		case strings.HasPrefix(data, "tz:"):
			r.handleTZCallback(ctx, chatID, data, cb.ID)
		case strings.HasPrefix(data, "lang:"):
			r.handleLangCallback(ctx, chatID, data, cb.ID)

		default:
			// Unknown callback, ignore silently
		}
		return
	}
}
