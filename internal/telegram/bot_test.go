package telegram

import (
	"strings"
	"testing"

	"github.com/mkoval/newsdesk/internal/responder"
	"github.com/mkoval/newsdesk/internal/store"
)

func TestRenderCandidates(t *testing.T) {
	articles := []store.Article{
		{Source: "CNN", Title: "First <b>story</b>"},
		{Source: "BBC", Title: "Second story"},
	}

	text := renderCandidates(articles, map[int]bool{1: true})
	if !strings.Contains(text, "▫️ 1. [CNN]") {
		t.Errorf("unchosen article not rendered: %q", text)
	}
	if !strings.Contains(text, "✅ 2. [BBC]") {
		t.Errorf("chosen article not marked: %q", text)
	}
	if strings.Contains(text, "<b>story</b>") {
		t.Error("title not HTML-escaped")
	}
}

func TestBuildKeyboard(t *testing.T) {
	kb := buildKeyboard(5, map[int]bool{0: true})

	// Two number rows (3 + 2) plus the control row.
	if len(kb.InlineKeyboard) != 3 {
		t.Fatalf("got %d rows, want 3", len(kb.InlineKeyboard))
	}
	if kb.InlineKeyboard[0][0].Text != "✅1" {
		t.Errorf("chosen button label = %q", kb.InlineKeyboard[0][0].Text)
	}
	if kb.InlineKeyboard[0][0].CallbackData != "sel:1" {
		t.Errorf("callback data = %q", kb.InlineKeyboard[0][0].CallbackData)
	}

	controls := kb.InlineKeyboard[len(kb.InlineKeyboard)-1]
	if len(controls) != 3 || controls[1].CallbackData != "sel:confirm" {
		t.Errorf("control row = %v", controls)
	}
}

func TestBuildKeyboard_CapsCandidates(t *testing.T) {
	kb := buildKeyboard(20, nil)

	buttons := 0
	for _, row := range kb.InlineKeyboard[:len(kb.InlineKeyboard)-1] {
		buttons += len(row)
	}
	if buttons != selectionPageSize {
		t.Errorf("keyboard offers %d candidates, want %d", buttons, selectionPageSize)
	}
}

func TestExtractQuestion(t *testing.T) {
	b := &Bot{username: "newsbot"}

	q, ok := b.extractQuestion(&Message{Text: "@newsbot what's new?", Chat: Chat{Type: "group"}})
	if !ok || q != "what's new?" {
		t.Errorf("mention question = (%q, %v)", q, ok)
	}

	if _, ok := b.extractQuestion(&Message{Text: "just chatting", Chat: Chat{Type: "group"}}); ok {
		t.Error("unmentioned group message treated as a question")
	}

	q, ok = b.extractQuestion(&Message{Text: "hi there", Chat: Chat{Type: "private"}})
	if !ok || q != "hi there" {
		t.Errorf("private question = (%q, %v)", q, ok)
	}
}

func TestRememberMessage_WindowAndPriorSnapshot(t *testing.T) {
	b := &Bot{username: "newsbot", history: make(map[int64][]responder.Message)}

	for i := 0; i < historyKeep+3; i++ {
		prior := b.rememberMessage(&Message{
			Text: strings.Repeat("m", i+1),
			Chat: Chat{ID: 1},
			From: &User{Username: "alice"},
		})
		if len(prior) > historyKeep {
			t.Fatalf("prior history grew to %d, cap is %d", len(prior), historyKeep)
		}
	}

	if got := len(b.history[1]); got != historyKeep {
		t.Errorf("stored history = %d messages, want %d", got, historyKeep)
	}

	// History for another chat is independent.
	if len(b.history[2]) != 0 {
		t.Error("history leaked across chats")
	}
}
