package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"FeedBot/internal/domain"
	"FeedBot/internal/ports"
)

// DefaultAPIURL is the public Bot API endpoint.
const DefaultAPIURL = "https://api.telegram.org"

// Notifier sends digests to Telegram chats via bot API. The digest's
// channel id is used as the chat id.
type Notifier struct {
	apiURL   string
	botToken string
	client   *http.Client
	logger   *slog.Logger
}

var _ ports.Notifier = (*Notifier)(nil)

// NewNotifier registers bot token and API endpoint.
func NewNotifier(client *http.Client, apiURL, botToken string, logger *slog.Logger) *Notifier {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{
		apiURL:   strings.TrimRight(apiURL, "/"),
		botToken: botToken,
		client:   client,
		logger:   logger,
	}
}

// Publish posts one HTML message per article, source by source.
// It stops at the first rejected message.
func (n *Notifier) Publish(ctx context.Context, digest domain.ChannelDigest) error {
	if n.botToken == "" || digest.ChannelID == "" {
		return fmt.Errorf("telegram notifier misconfigured")
	}

	sent := 0
	for _, src := range digest.Sources {
		for _, article := range src.Articles {
			if err := n.send(ctx, digest.ChannelID, renderArticle(src.Author, article)); err != nil {
				return fmt.Errorf("send %s to chat %s: %w", article.Link, digest.ChannelID, err)
			}
			sent++
		}
	}

	n.logger.Debug("digest delivered", "chat", digest.ChannelID, "messages", sent)
	return nil
}

func (n *Notifier) send(ctx context.Context, chatID, text string) error {
	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", n.apiURL, n.botToken)
	form := url.Values{}
	form.Set("chat_id", chatID)
	form.Set("text", text)
	form.Set("parse_mode", "HTML")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Description string `json:"description"`
		}
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Description != "" {
			return fmt.Errorf("telegram error: %s: %s", resp.Status, apiErr.Description)
		}
		return fmt.Errorf("telegram error: %s", resp.Status)
	}

	return nil
}

func renderArticle(author string, a domain.Article) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<a href=\"%s\">%s</a>\n", html.EscapeString(a.Link), html.EscapeString(a.Title))
	if author != "" {
		fmt.Fprintf(&b, "<i>%s</i>\n", html.EscapeString(author))
	}
	if a.Summary != "" {
		b.WriteString(html.EscapeString(a.Summary))
		b.WriteString("\n")
	}
	b.WriteString(a.TimeString())
	return b.String()
}
