package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/calybase/calybase-backend/internal/activity/domain"
	"github.com/calybase/calybase-backend/internal/auth"
	"github.com/calybase/calybase-backend/internal/logger"
	"github.com/calybase/calybase-backend/internal/metrics"
	"github.com/calybase/calybase-backend/internal/reqctx"
)

const (
	DefaultBufferSize    = 10
	DefaultFlushInterval = 5 * time.Second
	DefaultMaxBuffered   = 1000

	storeWriteTimeout = 15 * time.Second
)

// Writer persists a batch of audit entries in one operation.
type Writer interface {
	Write(ctx context.Context, entries []domain.Entry) error
}

type LoggerOptions struct {
	// BufferSize is the number of buffered entries that triggers a flush.
	BufferSize int
	// FlushInterval is the period of the background flush.
	FlushInterval time.Duration
	// MaxBuffered bounds the buffer when failed flushes keep re-queueing.
	MaxBuffered int
	// Version is stamped into every entry's system block.
	Version string
	// SessionID overrides the generated session id.
	SessionID string
	Now       func() time.Time
}

// ActivityLogger buffers audit entries in memory and writes them in batches,
// either when the buffer is full or on a fixed interval.
type ActivityLogger struct {
	store   Writer
	log     *logger.Logger
	metrics *metrics.Metrics
	opts    LoggerOptions

	sessionID string

	mu     sync.Mutex
	buffer []domain.Entry

	// flushMu serializes flushes so a re-queued batch lands back in order.
	flushMu sync.Mutex
	// failing is set while the last write failed; only the ticker and
	// explicit Flush calls retry then.
	failing atomic.Bool

	startOnce sync.Once
	stopOnce  sync.Once
	stopCh    chan struct{}
	wg        sync.WaitGroup
}

func NewActivityLogger(store Writer, opts LoggerOptions, log *logger.Logger, m *metrics.Metrics) *ActivityLogger {
	if opts.BufferSize <= 0 {
		opts.BufferSize = DefaultBufferSize
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = DefaultFlushInterval
	}
	if opts.MaxBuffered < opts.BufferSize {
		opts.MaxBuffered = DefaultMaxBuffered
		if opts.MaxBuffered < opts.BufferSize {
			opts.MaxBuffered = opts.BufferSize
		}
	}
	if opts.Version == "" {
		opts.Version = "unknown"
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if log == nil {
		log = logger.Nop()
	}

	sessionID := opts.SessionID
	if sessionID == "" {
		sessionID = NewSessionID(opts.Now())
	}

	return &ActivityLogger{
		store:     store,
		log:       log.WithComponent("activity_logger"),
		metrics:   m,
		opts:      opts,
		sessionID: sessionID,
		buffer:    make([]domain.Entry, 0, opts.BufferSize),
		stopCh:    make(chan struct{}),
	}
}

// NewSessionID returns an id of the form session_<unix ms>_<9 random chars>.
func NewSessionID(now time.Time) string {
	random := strings.ReplaceAll(uuid.NewString(), "-", "")[:9]
	return "session_" + strconv.FormatInt(now.UnixMilli(), 10) + "_" + random
}

func (l *ActivityLogger) SessionID() string {
	return l.sessionID
}

// Start launches the periodic flush. Calling it more than once is a no-op.
func (l *ActivityLogger) Start() {
	l.startOnce.Do(func() {
		l.wg.Add(1)
		go l.flushLoop()
		l.log.Infof("activity logger started (session=%s, buffer=%d, interval=%s)",
			l.sessionID, l.opts.BufferSize, l.opts.FlushInterval)
	})
}

// Stop ends the periodic flush and makes one last flush attempt.
func (l *ActivityLogger) Stop(ctx context.Context) error {
	l.stopOnce.Do(func() {
		close(l.stopCh)
	})
	l.wg.Wait()

	l.log.Info("stopping activity logger")
	return l.Flush(ctx)
}

func (l *ActivityLogger) flushLoop() {
	defer l.wg.Done()

	ticker := time.NewTicker(l.opts.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if l.Len() == 0 {
				continue
			}
			ctx, cancel := context.WithTimeout(context.Background(), storeWriteTimeout)
			if err := l.Flush(ctx); err != nil {
				l.log.Warnf("periodic flush failed: %v", err)
			}
			cancel()
		case <-l.stopCh:
			return
		}
	}
}

// LogActivity records one user action. Identity and client details are read
// from ctx; entries without an authenticated caller are attributed to
// "anonymous". The append that fills the buffer flushes it before
// returning, unless a flush is already running or the store is failing.
func (l *ActivityLogger) LogActivity(ctx context.Context, action, category string, details, metadata map[string]interface{}) domain.Entry {
	entry := l.newEntry(ctx, action, category, details, metadata)

	l.mu.Lock()
	l.buffer = append(l.buffer, entry)
	l.trimLocked()
	n := len(l.buffer)
	l.mu.Unlock()

	l.metrics.AuditBuffered(n)
	l.log.Debugf("activity logged: %s %s", action, category)

	if n == l.opts.BufferSize && !l.failing.Load() {
		wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), storeWriteTimeout)
		defer cancel()
		if err := l.tryFlush(wctx); err != nil {
			l.log.Warnf("capacity flush failed: %v", err)
		}
	}

	return entry
}

// Flush writes every buffered entry in one batch. The buffer is claimed
// before the write so entries logged meanwhile go to a fresh buffer. On
// failure the claimed batch is put back in front of those entries.
func (l *ActivityLogger) Flush(ctx context.Context) error {
	l.flushMu.Lock()
	defer l.flushMu.Unlock()
	return l.flushLocked(ctx)
}

// tryFlush is Flush without waiting behind a flush in progress.
func (l *ActivityLogger) tryFlush(ctx context.Context) error {
	if !l.flushMu.TryLock() {
		return nil
	}
	defer l.flushMu.Unlock()
	return l.flushLocked(ctx)
}

func (l *ActivityLogger) flushLocked(ctx context.Context) error {
	l.mu.Lock()
	if len(l.buffer) == 0 {
		l.mu.Unlock()
		return nil
	}
	batch := l.buffer
	l.buffer = make([]domain.Entry, 0, l.opts.BufferSize)
	l.mu.Unlock()

	if err := l.store.Write(ctx, batch); err != nil {
		l.requeue(batch)
		l.failing.Store(true)
		l.metrics.AuditFlush("error", 0)
		return fmt.Errorf("flush %d audit entries: %w", len(batch), err)
	}

	l.failing.Store(false)
	l.metrics.AuditFlush("ok", len(batch))
	l.metrics.AuditBuffered(l.Len())
	l.log.Debugf("flushed %d audit entries", len(batch))
	return nil
}

func (l *ActivityLogger) requeue(batch []domain.Entry) {
	l.mu.Lock()
	defer l.mu.Unlock()

	merged := make([]domain.Entry, 0, len(batch)+len(l.buffer))
	merged = append(merged, batch...)
	merged = append(merged, l.buffer...)
	l.buffer = merged
	l.trimLocked()

	l.metrics.AuditBuffered(len(l.buffer))
}

// trimLocked drops the oldest entries beyond MaxBuffered. l.mu must be held.
func (l *ActivityLogger) trimLocked() {
	over := len(l.buffer) - l.opts.MaxBuffered
	if over <= 0 {
		return
	}
	l.buffer = append([]domain.Entry(nil), l.buffer[over:]...)
	l.metrics.AuditDropped(over)
	l.log.Warnf("audit buffer bound reached, dropped %d oldest entries", over)
}

// Len returns the number of entries waiting to be flushed.
func (l *ActivityLogger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buffer)
}

// Buffered returns a copy of the pending entries, oldest first.
func (l *ActivityLogger) Buffered() []domain.Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]domain.Entry, len(l.buffer))
	copy(out, l.buffer)
	return out
}

type SessionStats struct {
	SessionID   string `json:"sessionId"`
	BufferSize  int    `json:"bufferSize"`
	Capacity    int    `json:"capacity"`
	CurrentUser string `json:"currentUser"`
}

func (l *ActivityLogger) SessionStats(ctx context.Context) SessionStats {
	user := domain.AnonymousUser
	if id, ok := auth.IdentityFromContext(ctx); ok && id.Email != "" {
		user = id.Email
	}
	return SessionStats{
		SessionID:   l.sessionID,
		BufferSize:  l.Len(),
		Capacity:    l.opts.BufferSize,
		CurrentUser: user,
	}
}

func (l *ActivityLogger) newEntry(ctx context.Context, action, category string, details, metadata map[string]interface{}) domain.Entry {
	now := l.opts.Now()
	info := reqctx.InfoFrom(ctx)

	userID, userEmail := domain.AnonymousUser, domain.AnonymousUser
	if id, ok := auth.IdentityFromContext(ctx); ok {
		userID, userEmail = id.UID, id.Email
		if userEmail == "" {
			userEmail = domain.AnonymousUser
		}
	}

	sessionID := l.sessionID
	if info.SessionID != "" {
		sessionID = info.SessionID
	}

	meta := map[string]interface{}{
		"userAgent":     info.UserAgent,
		"url":           info.URL,
		"referrer":      info.Referrer,
		"timestamp_iso": FormatTimestamp(now),
	}
	for k, v := range metadata {
		meta[k] = v
	}

	if details == nil {
		details = map[string]interface{}{}
	}

	return domain.Entry{
		Timestamp: now,
		SessionID: sessionID,
		UserID:    userID,
		UserEmail: userEmail,
		Action:    action,
		Category:  category,
		Details:   details,
		Metadata:  meta,
		System: domain.SystemInfo{
			Version:  l.opts.Version,
			Platform: DetectPlatform(info.UserAgent),
		},
	}
}

// DetectPlatform classifies a user agent as mobile, tablet or desktop.
// Requests without a user agent originate from the server itself.
func DetectPlatform(userAgent string) string {
	if userAgent == "" {
		return "server"
	}
	ua := strings.ToLower(userAgent)
	switch {
	case strings.Contains(ua, "mobile"), strings.Contains(ua, "android"), strings.Contains(ua, "iphone"):
		return "mobile"
	case strings.Contains(ua, "tablet"), strings.Contains(ua, "ipad"):
		return "tablet"
	default:
		return "desktop"
	}
}
