package parser

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"FeedBot/internal/domain"
	"FeedBot/internal/scanner"
)

const (
	luoguBaseURL     = "https://www.luogu.com.cn"
	luoguContextNode = "script#lentille-context"
)

// LuoguScanner incrementally walks a user's article column. Listing pages
// are requested in ascending order, so page n always holds the same
// articles and the stored total count tells where new ones start.
type LuoguScanner struct {
	client  *http.Client
	baseURL string
	logger  *slog.Logger
}

var _ scanner.Scanner = (*LuoguScanner)(nil)

// NewLuoguScanner wires an HTTP client; an empty baseURL means the public site.
func NewLuoguScanner(client *http.Client, baseURL string, logger *slog.Logger) *LuoguScanner {
	if baseURL == "" {
		baseURL = luoguBaseURL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &LuoguScanner{
		client:  defaultClient(client),
		baseURL: strings.TrimSuffix(baseURL, "/"),
		logger:  logger,
	}
}

// Kind identifies the strategy inside the registry.
func (l *LuoguScanner) Kind() domain.SourceKind {
	return domain.KindLuogu
}

// DefersMarking is false: links are marked as the walk reaches them.
func (l *LuoguScanner) DefersMarking() bool {
	return false
}

type lentilleContext struct {
	Data struct {
		Articles struct {
			PerPage int            `json:"perPage"`
			Count   int            `json:"count"`
			Result  []luoguArticle `json:"result"`
		} `json:"articles"`
		User struct {
			Name string `json:"name"`
		} `json:"user"`
	} `json:"data"`
}

type luoguArticle struct {
	LID     string `json:"lid"`
	Title   string `json:"title"`
	Time    int64  `json:"time"`
	Content string `json:"content"`
}

// Scan discovers the column size from page 1, moves the checkpoint, and
// walks from the resume page to the last page.
func (l *LuoguScanner) Scan(ctx context.Context, req scanner.Request) (scanner.Result, error) {
	if req.Store == nil {
		return scanner.Result{}, fmt.Errorf("luogu %s: seen store is required", req.Target)
	}
	uid := req.Target

	first, err := l.fetchPage(ctx, uid, 1)
	if err != nil {
		return scanner.Result{}, fmt.Errorf("luogu %s: %w", uid, err)
	}

	perPage := first.Data.Articles.PerPage
	total := first.Data.Articles.Count
	author := first.Data.User.Name + " 的洛谷专栏"

	previous := req.Store.Checkpoint(uid)
	if total >= previous {
		req.Store.SetCheckpoint(uid, total)
	} else {
		l.logger.Warn("article count went down, keeping checkpoint", "uid", uid, "checkpoint", previous, "count", total)
	}

	if total == previous {
		return scanner.Result{Author: author}, nil
	}

	start := resumePage(min(previous, total), perPage)
	end := endPage(total, perPage)
	l.logger.Debug("luogu walk", "uid", uid, "checkpoint", previous, "count", total, "from", start, "to", end)

	var collected []domain.Article
	for page := start; page <= end; page++ {
		data := first
		if page != 1 {
			data, err = l.fetchPage(ctx, uid, page)
			if err != nil {
				l.logger.Error("luogu walk stopped", "uid", uid, "page", page, "error", err)
				return scanner.Result{Author: author, Articles: collected}, &scanner.PartialError{Page: page, Err: err}
			}
		}

		for _, a := range data.Data.Articles.Result {
			link := l.baseURL + "/article/" + a.LID
			if req.Store.IsSeen(link) {
				continue
			}
			req.Store.MarkSeen(link)

			published := time.Unix(a.Time, 0)
			if published.Before(req.Cutoff) {
				continue
			}

			collected = append(collected, domain.Article{
				Title:       a.Title,
				Link:        link,
				PublishedAt: published,
				Summary:     truncate(a.Content, summaryLimit, ""),
			})
		}
	}

	return scanner.Result{Author: author, Articles: collected}, nil
}

func (l *LuoguScanner) fetchPage(ctx context.Context, uid string, page int) (*lentilleContext, error) {
	pageURL, err := buildPageURL(l.baseURL, uid, page)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", scanner.ErrSourceUnavailable, err)
	}

	body, err := fetchBody(ctx, l.client, pageURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", scanner.ErrSourceUnavailable, err)
	}

	data, err := extractContext(body)
	if err != nil {
		return nil, fmt.Errorf("%w: page %d: %w", scanner.ErrSourceStructure, page, err)
	}
	return data, nil
}

func extractContext(body []byte) (*lentilleContext, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}

	node := doc.Find(luoguContextNode).First()
	if node.Length() == 0 {
		return nil, fmt.Errorf("missing %s", luoguContextNode)
	}

	var data lentilleContext
	if err := json.Unmarshal([]byte(node.Text()), &data); err != nil {
		return nil, fmt.Errorf("decode context: %w", err)
	}
	if data.Data.Articles.PerPage <= 0 {
		return nil, fmt.Errorf("invalid page size %d", data.Data.Articles.PerPage)
	}
	return &data, nil
}

// resumePage is the page holding article number previous+1.
func resumePage(previous, perPage int) int {
	return previous/perPage + 1
}

// endPage is the last page for total articles.
func endPage(total, perPage int) int {
	return (total + perPage - 1) / perPage
}

func buildPageURL(base, uid string, page int) (string, error) {
	parsed, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid base url %s: %w", base, err)
	}

	parsed.Path = strings.TrimSuffix(parsed.Path, "/") + "/user/" + url.PathEscape(uid) + "/article"
	query := parsed.Query()
	query.Set("page", strconv.Itoa(page))
	query.Set("ascending", "true")
	parsed.RawQuery = query.Encode()
	return parsed.String(), nil
}
