package svc

import (
	"context"
	"fmt"
	"html"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/singleflight"

	"linepaste/cfg"
	"linepaste/metrics"
	"linepaste/pkg/domain"
	"linepaste/svc/cache"
	"linepaste/svc/db"
	"linepaste/svc/mail"
	"linepaste/svc/render"
	"linepaste/svc/store"
	"linepaste/svc/util"
)

const excerptRadius = 5

// Paste orchestrates the store, the renderers and the notification
// path. It is the only component the web layer talks to.
type Paste struct {
	store       *store.Store
	lru         *cache.LRU
	rdb         *db.Redis
	hl          *render.Highlighter
	md          *render.Markdown
	mailer      mail.Sender
	cfg         *cfg.Cfg
	notifyQueue chan notifyJob
	notifyWg    sync.WaitGroup
	readGroup   singleflight.Group
	shutdownCtx context.Context
	shutdownFn  context.CancelFunc
	shutdown    atomic.Bool
	opWg        sync.WaitGroup
}

type notifyJob struct {
	msg mail.Message
	uid string
}

func NewPaste(st *store.Store, lru *cache.LRU, rdb *db.Redis, mailer mail.Sender, c *cfg.Cfg) *Paste {
	if st == nil || lru == nil || c == nil {
		panic("paste service: nil dependency (store, lru, or cfg)")
	}
	if c.WorkerPoolSize <= 0 {
		c.WorkerPoolSize = 4
	}
	shutdownCtx, shutdownFn := context.WithCancel(context.Background())
	p := &Paste{
		store:       st,
		lru:         lru,
		rdb:         rdb,
		hl:          render.NewHighlighter(),
		md:          render.NewMarkdown(),
		mailer:      mailer,
		cfg:         c,
		notifyQueue: make(chan notifyJob, c.WorkerPoolSize*100),
		shutdownCtx: shutdownCtx,
		shutdownFn:  shutdownFn,
	}
	p.startWorkers(c.WorkerPoolSize)
	return p
}

func (p *Paste) startWorkers(n int) {
	for i := 0; i < n; i++ {
		p.notifyWg.Add(1)
		go p.notifyWorker()
	}
}

// notifyWorker drains the notification queue. A slow or dead mail
// server can never hold a comment-save request: the save already
// succeeded by the time a job lands here, and every send runs under
// its own timeout.
func (p *Paste) notifyWorker() {
	defer p.notifyWg.Done()
	defer func() {
		if r := recover(); r != nil {
			util.Error().Interface("panic", r).Msg("notifyWorker panicked")
		}
	}()
	for job := range p.notifyQueue {
		if p.mailer == nil {
			continue
		}
		ctx, cancel := context.WithTimeout(p.shutdownCtx, p.cfg.NotifyTimeout)
		if err := p.mailer.Send(ctx, job.msg); err != nil {
			if errors.Is(err, context.Canceled) {
				cancel()
				return
			}
			metrics.NotificationFailed.Inc()
			util.Warn().Err(err).Str("uid", job.uid).Msg("comment notification failed")
		} else {
			metrics.NotificationSent.Inc()
		}
		cancel()
	}
}

func (p *Paste) Shutdown() {
	if !p.shutdown.CompareAndSwap(false, true) {
		return
	}
	close(p.notifyQueue)
	done := make(chan struct{})
	go func() {
		p.notifyWg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		util.Warn().Msg("notification workers didn't stop in time")
	}
	p.shutdownFn()
	p.opWg.Wait()
	util.Debug().Msg("paste service shutdown complete")
}

// Create persists a new paste aggregate with an empty comment list and
// returns it. Content is stored verbatim; it is only ever escaped on
// render, by the highlighter.
func (p *Paste) Create(ctx context.Context, params domain.CreateParams) (*domain.Paste, error) {
	if p.shutdown.Load() {
		return nil, errors.New("service shutting down")
	}
	p.opWg.Add(1)
	defer p.opWg.Done()
	if int64(len(params.Content)) > p.cfg.MaxPasteSize {
		return nil, domain.ErrPasteTooLarge
	}
	uid, err := util.NewUID(p.cfg.UIDLength, func(candidate string) (bool, error) {
		return p.store.Exists(ctx, candidate)
	})
	if err != nil {
		return nil, errors.Wrap(err, "gen uid")
	}
	paste := &domain.Paste{
		UID:      uid,
		Content:  params.Content,
		Name:     params.Name,
		Email:    params.Email,
		Language: params.Language,
		Time:     time.Now().Unix(),
		Comments: []domain.Comment{},
	}
	if err := p.store.Put(ctx, uid, paste); err != nil {
		return nil, errors.Wrap(err, "create paste")
	}
	p.lru.Set(ctx, paste)
	if p.rdb != nil {
		if err := p.rdb.CachePaste(ctx, paste); err != nil {
			util.Warn().Err(err).Str("uid", uid).Msg("failed to cache in Redis")
		}
	}
	metrics.PasteCreated.Inc()
	return paste, nil
}

// loadAggregate resolves a paste through LRU, then redis, then the
// store; concurrent decrypt-reads of one UID are collapsed.
func (p *Paste) loadAggregate(ctx context.Context, uid string) (*domain.Paste, error) {
	if paste := p.lru.Get(ctx, uid); paste != nil {
		metrics.CacheHits.Inc()
		return paste, nil
	}
	if p.rdb != nil {
		if paste, err := p.rdb.GetPaste(ctx, uid); err == nil && paste != nil {
			metrics.CacheHits.Inc()
			p.lru.Set(ctx, paste)
			return paste, nil
		}
	}
	metrics.CacheMisses.Inc()
	result, err, _ := p.readGroup.Do(uid, func() (interface{}, error) {
		paste, err := p.store.Get(ctx, uid)
		if err != nil {
			return nil, err
		}
		p.lru.Set(ctx, paste)
		if p.rdb != nil {
			if err := p.rdb.CachePaste(ctx, paste); err != nil {
				util.Warn().Err(err).Str("uid", uid).Msg("failed to cache in Redis")
			}
		}
		return paste, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*domain.Paste), nil
}

// Get returns the paste, optionally rendered: line-addressable
// highlighted HTML with comments overlaid, plus a markdown preview
// when the resolved language is markdown.
func (p *Paste) Get(ctx context.Context, uid string, withRendering bool) (*domain.PasteView, error) {
	paste, err := p.loadAggregate(ctx, uid)
	if err != nil {
		if errors.Is(err, domain.ErrPasteNotFound) {
			return nil, domain.ErrPasteNotFound
		}
		return nil, errors.Wrap(err, "get paste")
	}
	view := &domain.PasteView{
		UID:      paste.UID,
		Content:  paste.Content,
		Name:     paste.Name,
		Email:    paste.Email,
		Language: paste.Language,
		Time:     paste.Time,
		Comments: p.commentViews(paste.Comments, withRendering),
	}
	if withRendering {
		hl, err := p.hl.Highlight(paste.Content, paste.Language, nil)
		if err != nil {
			return nil, errors.Wrap(err, "highlight paste")
		}
		view.HighlightedLanguage = hl.Language
		view.HighlightedContent = render.BuildListing(render.Listing{
			UID:       paste.UID,
			Lines:     hl.Lines,
			Language:  hl.Language,
			StartLine: 1,
			Comments:  paste.Comments,
		}, p.md)
		if hl.Language == "markdown" {
			view.PreviewHTML = p.md.ToInlineHTML(paste.Content)
		}
	}
	metrics.PasteRetrieved.Inc()
	return view, nil
}

func (p *Paste) commentViews(comments []domain.Comment, rendered bool) []domain.CommentView {
	views := make([]domain.CommentView, 0, len(comments))
	for _, c := range comments {
		text := c.Comment
		if rendered {
			text = p.md.ToInlineHTML(c.Comment)
		}
		views = append(views, domain.CommentView{
			UID:     c.UID,
			Line:    c.Line,
			Comment: text,
			Name:    c.Name,
			Email:   c.Email,
			Time:    c.Time,
			Color:   c.Color,
		})
	}
	return views
}

// AddComment appends one comment to the aggregate. The text is
// HTML-escaped and the author color derived before storage, so neither
// ever changes retroactively. Notification dispatch is asynchronous
// and soft: once the store write succeeded the comment is saved, no
// matter what the mail server does.
func (p *Paste) AddComment(ctx context.Context, uid string, params domain.AddCommentParams) (*domain.CommentView, error) {
	if p.shutdown.Load() {
		return nil, errors.New("service shutting down")
	}
	p.opWg.Add(1)
	defer p.opWg.Done()
	if params.Line < 1 {
		return nil, errors.Wrap(domain.ErrValidation, "comment line must be >= 1")
	}
	if int64(len(params.Comment)) > p.cfg.MaxCommentSize {
		return nil, domain.ErrPasteTooLarge
	}
	comment := domain.Comment{
		UID:     uid,
		Line:    params.Line,
		Comment: html.EscapeString(params.Comment),
		Name:    params.Name,
		Email:   params.Email,
		Time:    time.Now().Unix(),
		Color:   render.ColorFor(params.Name),
	}
	updated, err := p.store.Update(ctx, uid, func(paste *domain.Paste) error {
		paste.Comments = append(paste.Comments, comment)
		return nil
	})
	if err != nil {
		return nil, err
	}
	p.lru.Set(ctx, updated)
	if p.rdb != nil {
		if err := p.rdb.CachePaste(ctx, updated); err != nil {
			util.Warn().Err(err).Str("uid", uid).Msg("failed to refresh Redis cache, dropping stale entry")
			if err := p.rdb.Delete(ctx, uid); err != nil {
				util.Warn().Err(err).Str("uid", uid).Msg("failed to drop stale Redis entry")
			}
		}
	}
	metrics.CommentAdded.Inc()

	if p.cfg.EnableSMTP && p.mailer != nil && mail.ValidAddress(updated.Email) {
		p.queueNotification(updated, comment)
	}

	return &domain.CommentView{
		UID:     comment.UID,
		Line:    comment.Line,
		Comment: p.md.ToInlineHTML(comment.Comment),
		Name:    comment.Name,
		Email:   comment.Email,
		Time:    comment.Time,
		Color:   comment.Color,
	}, nil
}

// BuildNotificationExcerpt renders a bounded window of ±5 lines around
// the commented line, numbering continuing from the window offset.
// The window never starts before the first line or past the last.
func (p *Paste) BuildNotificationExcerpt(paste *domain.Paste, line int) (string, error) {
	lineCount := len(strings.Split(paste.Content, "\n"))
	offset := line - 1 - excerptRadius
	if offset < 0 {
		offset = 0
	}
	if offset > lineCount {
		offset = lineCount
	}
	end := line - 1 + excerptRadius
	if end > lineCount-1 {
		end = lineCount - 1
	}
	length := end - offset + 1
	if length < 0 {
		length = 0
	}
	hl, err := p.hl.Highlight(paste.Content, paste.Language, &render.Window{Offset: offset, Length: length})
	if err != nil {
		return "", errors.Wrap(err, "highlight excerpt")
	}
	return render.BuildListing(render.Listing{
		UID:       paste.UID,
		Lines:     hl.Lines,
		Language:  hl.Language,
		StartLine: offset + 1,
		Comments:  paste.Comments,
	}, p.md), nil
}

// Excerpt loads the aggregate and renders the notification-style
// window around the given line.
func (p *Paste) Excerpt(ctx context.Context, uid string, line int) (string, error) {
	paste, err := p.loadAggregate(ctx, uid)
	if err != nil {
		return "", err
	}
	return p.BuildNotificationExcerpt(paste, line)
}

// queueNotification composes the message and hands it to the worker
// pool. A full queue drops the notification rather than blocking the
// request.
func (p *Paste) queueNotification(paste *domain.Paste, comment domain.Comment) {
	recipients := notificationRecipients(paste, comment)
	if len(recipients) == 0 {
		return
	}
	excerpt, err := p.BuildNotificationExcerpt(paste, comment.Line)
	if err != nil {
		metrics.NotificationFailed.Inc()
		util.Warn().Err(err).Str("uid", paste.UID).Msg("failed to build notification excerpt")
		return
	}
	body := fmt.Sprintf(`<html>
<body>
<p>Hi there,</p>
<p>%s wants you to talk smack about their code. Here is what they said:</p>
<div id="paste">%s</div>
<p>Comment: %s</p>
<p>You can view this comment directly on the page by clicking <a href="%s/%s#L%d">here</a>.</p>
<p>Hope you have a nice day!</p>
<p>Commie Bot</p>
</body>
</html>`,
		html.EscapeString(comment.Name),
		excerpt,
		p.md.ToInlineHTML(comment.Comment),
		p.cfg.AppBaseURL, paste.UID, comment.Line)
	job := notifyJob{
		uid: paste.UID,
		msg: mail.Message{
			To:       recipients,
			ReplyTo:  comment.Email,
			Subject:  "You have a new paste comment!",
			HTMLBody: body,
		},
	}
	select {
	case p.notifyQueue <- job:
	default:
		metrics.NotificationFailed.Inc()
		util.Warn().Str("uid", paste.UID).Msg("notification queue full, dropping notification")
	}
}

// notificationRecipients is the union of the paste author and every
// distinct prior commenter, minus whoever just commented.
func notificationRecipients(paste *domain.Paste, current domain.Comment) []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(email string) {
		if email == "" || email == current.Email {
			return
		}
		if !mail.ValidAddress(email) {
			return
		}
		if _, ok := seen[email]; ok {
			return
		}
		seen[email] = struct{}{}
		out = append(out, email)
	}
	add(paste.Email)
	for _, c := range paste.Comments {
		add(c.Email)
	}
	return out
}

// Scan is the keyword scan utility: decrypt everything, report pastes
// whose content contains the keyword case-insensitively.
func (p *Paste) Scan(ctx context.Context, keyword string) ([]domain.ScanMatch, error) {
	var matches []domain.ScanMatch
	err := p.store.Scan(ctx, keyword, func(m domain.ScanMatch) error {
		matches = append(matches, m)
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "scan pastes")
	}
	return matches, nil
}
