package telegram

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/mkoval/newsdesk/internal/analyst"
	"github.com/mkoval/newsdesk/internal/responder"
	"github.com/mkoval/newsdesk/internal/scheduler"
	"github.com/mkoval/newsdesk/internal/scraper"
	"github.com/mkoval/newsdesk/internal/selection"
	"github.com/mkoval/newsdesk/internal/source"
	"github.com/mkoval/newsdesk/internal/store"
)

// selectionPageSize caps how many candidates one inline keyboard offers.
const selectionPageSize = 9

// historyKeep is how many recent chat messages we remember per chat.
const historyKeep = 10

// Bot routes Telegram updates to the core services.
type Bot struct {
	client    *Client
	store     store.Store
	analyst   *analyst.Analyst
	responder *responder.Responder
	scheduler *scheduler.Scheduler
	registry  *selection.Registry
	policy    selection.Policy
	scraper   *scraper.Scraper

	username string

	histMu  sync.Mutex
	history map[int64][]responder.Message
}

func NewBot(client *Client, s store.Store, a *analyst.Analyst, r *responder.Responder,
	sched *scheduler.Scheduler, registry *selection.Registry, policy selection.Policy,
	scr *scraper.Scraper) *Bot {
	return &Bot{
		client:    client,
		store:     s,
		analyst:   a,
		responder: r,
		scheduler: sched,
		registry:  registry,
		policy:    policy,
		scraper:   scr,
		history:   make(map[int64][]responder.Message),
	}
}

// Run long-polls for updates until ctx is done.
func (b *Bot) Run(ctx context.Context) error {
	me, err := b.client.GetMe(ctx)
	if err != nil {
		return fmt.Errorf("failed to identify bot: %w", err)
	}
	b.username = me.Username
	slog.Info("Bot connected", "username", b.username)

	var offset int64
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		updates, err := b.client.GetUpdates(ctx, offset)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			slog.Warn("Polling failed", "error", err)
			continue
		}

		for _, update := range updates {
			offset = update.UpdateID + 1
			b.handleUpdate(ctx, update)
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update Update) {
	switch {
	case update.CallbackQuery != nil:
		b.handleCallback(ctx, update.CallbackQuery)
	case update.Message != nil && update.Message.Text != "":
		b.handleMessage(ctx, update.Message)
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg *Message) {
	if msg.From != nil && msg.From.IsBot {
		return
	}

	if strings.HasPrefix(msg.Text, "/") {
		b.handleCommand(ctx, msg)
		return
	}

	question, mentioned := b.extractQuestion(msg)
	history := b.rememberMessage(msg)
	if !mentioned {
		return
	}

	answer := b.responder.HandleMention(ctx, question, history)
	if err := b.client.SendText(ctx, msg.Chat.ID, answer); err != nil {
		slog.Error("Failed to send answer", "chat", msg.Chat.ID, "error", err)
	}
}

// extractQuestion decides whether the bot is being addressed. Private chats
// always count; groups need an @mention, which is stripped from the text.
func (b *Bot) extractQuestion(msg *Message) (string, bool) {
	mention := "@" + b.username
	if strings.Contains(msg.Text, mention) {
		question := strings.TrimSpace(strings.ReplaceAll(msg.Text, mention, ""))
		return question, question != ""
	}
	if msg.Chat.Type == "private" {
		return msg.Text, true
	}
	return "", false
}

// rememberMessage appends to the chat's rolling history and returns the
// history as it stood before this message, for conversation context.
func (b *Bot) rememberMessage(msg *Message) []responder.Message {
	author := "User"
	if msg.From != nil {
		if msg.From.Username != "" {
			author = msg.From.Username
		} else if msg.From.FirstName != "" {
			author = msg.From.FirstName
		}
	}

	b.histMu.Lock()
	defer b.histMu.Unlock()

	prior := make([]responder.Message, len(b.history[msg.Chat.ID]))
	copy(prior, b.history[msg.Chat.ID])

	entries := append(b.history[msg.Chat.ID], responder.Message{Author: author, Text: msg.Text})
	if len(entries) > historyKeep {
		entries = entries[len(entries)-historyKeep:]
	}
	b.history[msg.Chat.ID] = entries

	return prior
}

func (b *Bot) handleCommand(ctx context.Context, msg *Message) {
	fields := strings.Fields(msg.Text)
	command := strings.TrimSuffix(fields[0], "@"+b.username)
	args := fields[1:]

	slog.Info("Handling command", "command", command, "chat", msg.Chat.ID)

	switch command {
	case "/start", "/help":
		b.reply(ctx, msg.Chat.ID, responder.HelpText())
	case "/news":
		b.cmdNews(ctx, msg, args)
	case "/update":
		b.cmdUpdate(ctx, msg.Chat.ID)
	case "/sources":
		b.cmdSources(ctx, msg.Chat.ID)
	case "/stats":
		b.cmdStats(ctx, msg.Chat.ID)
	case "/analyze":
		b.cmdAnalyze(ctx, msg.Chat.ID, args)
	default:
		b.reply(ctx, msg.Chat.ID, "Unknown command. Try /help.")
	}
}

// cmdNews offers recent articles (optionally from one outlet) as an
// interactive selection; confirmed picks go to collection analysis.
func (b *Bot) cmdNews(ctx context.Context, msg *Message, args []string) {
	var articles []store.Article
	var err error
	if len(args) > 0 {
		articles, err = b.store.BySource(strings.Join(args, " "), selectionPageSize)
	} else {
		articles, err = b.store.Recent(selectionPageSize)
	}
	if err != nil {
		slog.Error("Failed to load articles for /news", "error", err)
		b.reply(ctx, msg.Chat.ID, analyst.Apology)
		return
	}
	if len(articles) == 0 {
		b.reply(ctx, msg.Chat.ID, "No stored articles yet. Try /update to fetch the latest news.")
		return
	}

	userID := int64(0)
	if msg.From != nil {
		userID = msg.From.ID
	}

	text := renderCandidates(articles, nil)
	messageID, err := b.client.SendMessageWithKeyboard(ctx, msg.Chat.ID, text, buildKeyboard(len(articles), nil))
	if err != nil {
		slog.Error("Failed to send selection prompt", "error", err)
		return
	}

	b.registry.Create(selection.Key{ChatID: msg.Chat.ID, MessageID: messageID, UserID: userID}, articles)
}

func (b *Bot) cmdUpdate(ctx context.Context, chatID int64) {
	b.reply(ctx, chatID, "🔄 Fetching the latest news...")

	stored, err := b.scheduler.Run(ctx, true)
	switch {
	case errors.Is(err, scheduler.ErrFetchInProgress):
		b.reply(ctx, chatID, "A fetch is already running, hang on.")
	case err != nil:
		slog.Error("Manual fetch failed", "error", err)
		b.reply(ctx, chatID, "The fetch ran into trouble. Check back in a bit.")
	default:
		b.reply(ctx, chatID, fmt.Sprintf("Done — stored %d new articles.", stored))
	}
}

func (b *Bot) cmdSources(ctx context.Context, chatID int64) {
	articles, err := b.store.Recent(100)
	if err != nil {
		slog.Error("Failed to load sources", "error", err)
		b.reply(ctx, chatID, analyst.Apology)
		return
	}

	seen := make(map[string]bool)
	var sb strings.Builder
	sb.WriteString("🏢 Sources with stored articles:\n")
	for _, a := range articles {
		if seen[a.Source] {
			continue
		}
		seen[a.Source] = true
		tier := ""
		if b.policy.IsPrimary(a.Source) {
			tier = " (primary)"
		}
		fmt.Fprintf(&sb, "• %s%s\n", html.EscapeString(a.Source), tier)
	}
	if len(seen) == 0 {
		sb.WriteString("none yet — try /update\n")
	}
	b.reply(ctx, chatID, sb.String())
}

func (b *Bot) cmdStats(ctx context.Context, chatID int64) {
	stats, err := b.store.Stats()
	if err != nil {
		slog.Error("Failed to load stats", "error", err)
		b.reply(ctx, chatID, analyst.Apology)
		return
	}

	text := responder.StatsText(stats)
	lastAuto, lastManual, inFlight := b.scheduler.LastFetchInfo()
	if !lastAuto.IsZero() {
		text += fmt.Sprintf("\n• Last scheduled fetch: %s", lastAuto.Format("2006-01-02 15:04"))
	}
	if !lastManual.IsZero() {
		text += fmt.Sprintf("\n• Last manual fetch: %s", lastManual.Format("2006-01-02 15:04"))
	}
	if inFlight {
		text += "\n• A fetch is running right now"
	}
	b.reply(ctx, chatID, text)
}

func (b *Bot) cmdAnalyze(ctx context.Context, chatID int64, args []string) {
	if len(args) == 0 {
		b.reply(ctx, chatID, "Usage: /analyze <article url>")
		return
	}
	url := args[0]

	b.reply(ctx, chatID, "🔍 Reading the article...")

	page, err := b.scraper.ExtractArticle(ctx, url)
	if err != nil {
		slog.Warn("Analyze scrape failed", "url", url, "error", err)
		b.reply(ctx, chatID, "I couldn't read that page. Is the link right?")
		return
	}

	article := store.Article{
		Title:    page.Title,
		URL:      url,
		Source:   source.Extract(url),
		FullText: page.Text,
	}
	if err := b.client.SendText(ctx, chatID, b.analyst.DetailedArticleAnalysis(ctx, article)); err != nil {
		slog.Error("Failed to send analysis", "error", err)
	}
}

func (b *Bot) handleCallback(ctx context.Context, cb *CallbackQuery) {
	if cb.Message == nil {
		return
	}
	key := selection.Key{
		ChatID:    cb.Message.Chat.ID,
		MessageID: cb.Message.MessageID,
		UserID:    cb.From.ID,
	}

	action := strings.TrimPrefix(cb.Data, "sel:")
	switch action {
	case "confirm":
		b.confirmSelection(ctx, cb, key)
	case "cancel":
		b.registry.Cancel(key)
		b.ack(ctx, cb.ID, "Cancelled")
		if err := b.client.EditMessageText(ctx, key.ChatID, key.MessageID, "Selection cancelled.", nil); err != nil {
			slog.Debug("Failed to edit cancelled selection", "error", err)
		}
	case "all":
		if !b.registry.SelectAll(key) {
			b.ack(ctx, cb.ID, "This selection isn't yours or has expired.")
			return
		}
		b.ack(ctx, cb.ID, "All selected")
		b.refreshSelection(ctx, key)
	default:
		index, err := strconv.Atoi(action)
		if err != nil {
			return
		}
		if _, ok := b.registry.Toggle(key, index-1); !ok {
			b.ack(ctx, cb.ID, "This selection isn't yours or has expired.")
			return
		}
		b.ack(ctx, cb.ID, "")
		b.refreshSelection(ctx, key)
	}
}

func (b *Bot) confirmSelection(ctx context.Context, cb *CallbackQuery, key selection.Key) {
	chosen, ok := b.registry.Chosen(key)
	if !ok {
		b.ack(ctx, cb.ID, "This selection isn't yours or has expired.")
		return
	}
	if len(chosen) == 0 {
		b.ack(ctx, cb.ID, "Pick at least one article first.")
		return
	}

	b.registry.Take(key)
	b.ack(ctx, cb.ID, "Analyzing...")
	if err := b.client.EditMessageText(ctx, key.ChatID, key.MessageID,
		fmt.Sprintf("🧠 Analyzing %d selected articles...", len(chosen)), nil); err != nil {
		slog.Debug("Failed to edit selection prompt", "error", err)
	}

	analysis := b.analyst.SkepticalCollectionAnalysis(ctx, chosen)
	if err := b.client.SendText(ctx, key.ChatID, analysis); err != nil {
		slog.Error("Failed to send collection analysis", "error", err)
	}
}

// refreshSelection redraws the candidate list and keyboard with current
// check marks.
func (b *Bot) refreshSelection(ctx context.Context, key selection.Key) {
	chosen, ok := b.registry.Chosen(key)
	if !ok {
		return
	}
	chosenURLs := make(map[string]bool, len(chosen))
	for _, a := range chosen {
		chosenURLs[a.URL] = true
	}

	// Chosen() only returns picked articles; re-list the full candidate set
	// by toggling nothing and rendering from the registry snapshot.
	candidates, marked := b.selectionState(key, chosenURLs)
	if candidates == nil {
		return
	}

	text := renderCandidates(candidates, marked)
	if err := b.client.EditMessageText(ctx, key.ChatID, key.MessageID, text, keyboardPtr(buildKeyboard(len(candidates), marked))); err != nil {
		slog.Debug("Failed to refresh selection", "error", err)
	}
}

func (b *Bot) selectionState(key selection.Key, chosenURLs map[string]bool) ([]store.Article, map[int]bool) {
	candidates, ok := b.registry.Candidates(key)
	if !ok {
		return nil, nil
	}
	marked := make(map[int]bool)
	for i, a := range candidates {
		if chosenURLs[a.URL] {
			marked[i] = true
		}
	}
	return candidates, marked
}

func (b *Bot) ack(ctx context.Context, callbackID, text string) {
	if err := b.client.AnswerCallbackQuery(ctx, callbackID, text); err != nil {
		slog.Debug("Failed to answer callback", "error", err)
	}
}

func (b *Bot) reply(ctx context.Context, chatID int64, text string) {
	if err := b.client.SendText(ctx, chatID, text); err != nil {
		slog.Error("Failed to send reply", "chat", chatID, "error", err)
	}
}

// renderCandidates lists numbered candidates, marking chosen ones.
func renderCandidates(articles []store.Article, marked map[int]bool) string {
	var sb strings.Builder
	sb.WriteString("📰 Pick articles to analyze, then press Confirm:\n\n")
	for i, a := range articles {
		mark := "▫️"
		if marked[i] {
			mark = "✅"
		}
		fmt.Fprintf(&sb, "%s %d. [%s] %s\n", mark, i+1, html.EscapeString(a.Source), html.EscapeString(a.Title))
	}
	return sb.String()
}

// buildKeyboard lays out number buttons in rows of three, plus control
// buttons.
func buildKeyboard(n int, marked map[int]bool) InlineKeyboardMarkup {
	if n > selectionPageSize {
		n = selectionPageSize
	}

	var rows [][]InlineKeyboardButton
	var row []InlineKeyboardButton
	for i := 0; i < n; i++ {
		label := strconv.Itoa(i + 1)
		if marked[i] {
			label = "✅" + label
		}
		row = append(row, InlineKeyboardButton{Text: label, CallbackData: "sel:" + strconv.Itoa(i+1)})
		if len(row) == 3 {
			rows = append(rows, row)
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}

	rows = append(rows, []InlineKeyboardButton{
		{Text: "All", CallbackData: "sel:all"},
		{Text: "Confirm", CallbackData: "sel:confirm"},
		{Text: "Cancel", CallbackData: "sel:cancel"},
	})

	return InlineKeyboardMarkup{InlineKeyboard: rows}
}

func keyboardPtr(k InlineKeyboardMarkup) *InlineKeyboardMarkup { return &k }
