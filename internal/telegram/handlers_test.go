package telegram

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/AndreyMartjushev/takingPills/internal/domain"
)

func TestParseTimesList(t *testing.T) {
	got, err := parseTimesList("20:00, 8.30, 0830, 14:00")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	// Duplicates collapse, output sorted.
	want := []string{"08:30", "14:00", "20:00"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("want %v, got %v", want, got)
	}
}

func TestParseTimesList_Rejects(t *testing.T) {
	for _, in := range []string{"", " , ", "8:30, 25:00"} {
		if _, err := parseTimesList(in); err == nil {
			t.Fatalf("%q: want error", in)
		}
	}
}

func TestClassifySendError(t *testing.T) {
	blocked := &tgbotapi.Error{Code: 403, Message: "Forbidden: bot was blocked by the user"}
	if !errors.Is(classifySendError(blocked), domain.ErrDeliveryFatal) {
		t.Fatal("403 must classify as fatal")
	}

	flood := &tgbotapi.Error{Code: 429, Message: "Too Many Requests"}
	if !errors.Is(classifySendError(flood), domain.ErrDeliveryTransient) {
		t.Fatal("429 must classify as transient")
	}
	if !errors.Is(classifySendError(errors.New("dial tcp: timeout")), domain.ErrDeliveryTransient) {
		t.Fatal("network error must classify as transient")
	}
}

func TestPeriodKeyboard_MarksSelection(t *testing.T) {
	kb := periodKeyboard("ru", []string{"morning"})
	found := false
	for _, row := range kb.InlineKeyboard {
		for _, btn := range row {
			if btn.CallbackData != nil && *btn.CallbackData == "period:morning" {
				found = true
				if !strings.HasPrefix(btn.Text, "✅") {
					t.Fatalf("selected period not marked: %q", btn.Text)
				}
			}
		}
	}
	if !found {
		t.Fatal("morning button missing")
	}
}
