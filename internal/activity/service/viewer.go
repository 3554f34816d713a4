package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/calybase/calybase-backend/internal/activity/domain"
	"github.com/calybase/calybase-backend/internal/logger"
)

const (
	MaxLoadedEntries = 1000
	PageSize         = 50
	DefaultRangeDays = 30
)

// Reader loads audit entries for the viewer.
type Reader interface {
	Query(ctx context.Context, q domain.Query) ([]domain.Entry, error)
}

// DateRange selects whole calendar days. A zero From or To leaves that
// side unbounded.
type DateRange struct {
	From time.Time
	To   time.Time
}

// DefaultDateRange covers the last 30 days up to and including today.
func DefaultDateRange(now time.Time) DateRange {
	return DateRange{From: now.AddDate(0, 0, -DefaultRangeDays), To: now}
}

// Bounds expands the range to [From 00:00:00.000, To 23:59:59.999] in the
// dates' own location.
func (r DateRange) Bounds() (time.Time, time.Time) {
	var from, to time.Time
	if !r.From.IsZero() {
		y, m, d := r.From.Date()
		from = time.Date(y, m, d, 0, 0, 0, 0, r.From.Location())
	}
	if !r.To.IsZero() {
		y, m, d := r.To.Date()
		to = time.Date(y, m, d, 23, 59, 59, int(999*time.Millisecond), r.To.Location())
	}
	return from, to
}

// Filter narrows an already loaded set. Empty fields match everything.
type Filter struct {
	User     string
	Category string
	Search   string
}

type Stats struct {
	TotalLogs      int `json:"totalLogs"`
	TodayLogs      int `json:"todayLogs"`
	ActiveUsers    int `json:"activeUsers"`
	SecurityEvents int `json:"securityEvents"`
}

type Page struct {
	Entries    []domain.Entry `json:"entries"`
	Page       int            `json:"page"`
	TotalPages int            `json:"totalPages"`
	Total      int            `json:"total"`
}

// Viewer holds one loaded window of the audit log. The date range is
// applied by the store; every other filter runs over the loaded set.
type Viewer struct {
	reader Reader
	log    *logger.Logger
	now    func() time.Time

	entries  []domain.Entry
	filter   Filter
	filtered []domain.Entry
	page     int
}

func NewViewer(reader Reader, log *logger.Logger) *Viewer {
	if log == nil {
		log = logger.Nop()
	}
	return &Viewer{
		reader: reader,
		log:    log.WithComponent("activity_viewer"),
		now:    time.Now,
		page:   1,
	}
}

// Load replaces the loaded set with the newest entries inside r and
// re-applies the current filter.
func (v *Viewer) Load(ctx context.Context, r DateRange) error {
	from, to := r.Bounds()
	entries, err := v.reader.Query(ctx, domain.Query{From: from, To: to, Limit: MaxLoadedEntries})
	if err != nil {
		return fmt.Errorf("load audit entries: %w", err)
	}
	v.entries = entries
	v.log.Debugf("loaded %d audit entries", len(entries))
	v.apply()
	return nil
}

// SetFilter replaces the filter and returns to the first page.
func (v *Viewer) SetFilter(f Filter) {
	v.filter = f
	v.apply()
}

func (v *Viewer) apply() {
	v.filtered = FilterEntries(v.entries, v.filter)
	v.page = 1
}

func (v *Viewer) Entries() []domain.Entry  { return v.entries }
func (v *Viewer) Filtered() []domain.Entry { return v.filtered }
func (v *Viewer) CurrentPage() int         { return v.page }

func (v *Viewer) TotalPages() int {
	return (len(v.filtered) + PageSize - 1) / PageSize
}

// GoTo moves to page n, clamped to the available pages.
func (v *Viewer) GoTo(n int) Page {
	total := v.TotalPages()
	if n > total {
		n = total
	}
	if n < 1 {
		n = 1
	}
	v.page = n
	return v.Page()
}

func (v *Viewer) Page() Page {
	return Paginate(v.filtered, v.page)
}

func (v *Viewer) Stats() Stats {
	return ComputeStats(v.entries, v.now())
}

func (v *Viewer) Users() []string {
	return DistinctUsers(v.entries)
}

// Export serializes the filtered set in the given format ("csv" or "json").
func (v *Viewer) Export(format string) ([]byte, error) {
	return Export(v.filtered, format)
}

// FilterEntries keeps the entries matching f, preserving order.
func FilterEntries(entries []domain.Entry, f Filter) []domain.Entry {
	search := strings.ToLower(f.Search)
	out := make([]domain.Entry, 0, len(entries))
	for _, e := range entries {
		if f.User != "" && e.UserEmail != f.User {
			continue
		}
		if f.Category != "" && e.Category != f.Category {
			continue
		}
		if search != "" && !strings.Contains(searchText(e), search) {
			continue
		}
		out = append(out, e)
	}
	return out
}

func searchText(e domain.Entry) string {
	return strings.ToLower(e.Action + " " + string(detailsJSON(e.Details)))
}

// Paginate returns the 1-based page of entries. Out of range pages are empty.
func Paginate(entries []domain.Entry, page int) Page {
	total := (len(entries) + PageSize - 1) / PageSize
	p := Page{Page: page, TotalPages: total, Total: len(entries), Entries: []domain.Entry{}}
	if page < 1 {
		return p
	}
	start := (page - 1) * PageSize
	if start >= len(entries) {
		return p
	}
	end := start + PageSize
	if end > len(entries) {
		end = len(entries)
	}
	p.Entries = entries[start:end]
	return p
}

// ComputeStats summarizes the loaded set. "Today" starts at local midnight.
func ComputeStats(entries []domain.Entry, now time.Time) Stats {
	y, m, d := now.Date()
	midnight := time.Date(y, m, d, 0, 0, 0, 0, now.Location())

	s := Stats{TotalLogs: len(entries)}
	users := make(map[string]struct{})
	for _, e := range entries {
		if !e.Timestamp.Before(midnight) {
			s.TodayLogs++
		}
		if isNamedUser(e.UserEmail) {
			users[e.UserEmail] = struct{}{}
		}
		if e.Category == domain.CategorySecurity {
			s.SecurityEvents++
		}
	}
	s.ActiveUsers = len(users)
	return s
}

// DistinctUsers returns the sorted non-anonymous emails in entries.
func DistinctUsers(entries []domain.Entry) []string {
	seen := make(map[string]struct{})
	out := []string{}
	for _, e := range entries {
		if !isNamedUser(e.UserEmail) {
			continue
		}
		if _, ok := seen[e.UserEmail]; ok {
			continue
		}
		seen[e.UserEmail] = struct{}{}
		out = append(out, e.UserEmail)
	}
	sort.Strings(out)
	return out
}

func isNamedUser(email string) bool {
	return email != "" && email != domain.AnonymousUser
}

func detailsJSON(details map[string]interface{}) []byte {
	if details == nil {
		details = map[string]interface{}{}
	}
	var sb strings.Builder
	enc := json.NewEncoder(&sb)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(details); err != nil {
		return []byte("{}")
	}
	return []byte(strings.TrimSuffix(sb.String(), "\n"))
}
