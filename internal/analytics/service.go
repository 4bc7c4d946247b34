package analytics

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/maxpark/access-controller/internal"
	"github.com/maxpark/access-controller/internal/core/datamodel/transaction"
	"github.com/maxpark/access-controller/internal/user"
)

// RecentBuffer is the engine's in-memory ring of recent transactions.
type RecentBuffer interface {
	Recent(limit int) []transaction.Transaction
	BufferedCount() int
}

// LogTailer reads transactions back from the day files.
type LogTailer interface {
	Tail(limit int) []transaction.Transaction
}

// UserLookup resolves report subjects.
type UserLookup interface {
	Get(card string) (user.User, bool)
	IsBlocked(card string) bool
}

// Service aggregates transactions into the report shapes the dashboard
// renders. All work happens over the local log; nothing here touches the
// remote store.
type Service struct {
	buffer RecentBuffer
	log    LogTailer
	users  UserLookup
	now    func() time.Time
}

func NewService(buffer RecentBuffer, log LogTailer, users UserLookup) *Service {
	return &Service{buffer: buffer, log: log, users: users, now: time.Now}
}

// Transactions returns up to limit recent transactions, newest first,
// from the in-memory buffer when it can satisfy the request and from the
// day files otherwise.
func (s *Service) Transactions(limit int) []transaction.Transaction {
	if limit <= 0 {
		return []transaction.Transaction{}
	}
	if s.buffer.BufferedCount() >= limit {
		return s.buffer.Recent(limit)
	}
	out := s.log.Tail(limit)
	if out == nil {
		out = []transaction.Transaction{}
	}
	return out
}

// StatusBreakdown counts transactions by outcome.
type StatusBreakdown struct {
	Granted int `json:"granted"`
	Denied  int `json:"denied"`
	Blocked int `json:"blocked"`
}

// TopUser is one row of the most-active-users list.
type TopUser struct {
	Name  string `json:"name"`
	Card  string `json:"card"`
	Count int    `json:"count"`
}

// Overview is the shape behind /get_analytics.
type Overview struct {
	PeriodDays         int             `json:"period_days"`
	TotalTransactions  int             `json:"total_transactions"`
	StatusBreakdown    StatusBreakdown `json:"status_breakdown"`
	ReaderBreakdown    map[int]int     `json:"reader_breakdown"`
	HourlyDistribution map[string]int  `json:"hourly_distribution"`
	DailyDistribution  map[string]int  `json:"daily_distribution"`
	TopUsers           []TopUser       `json:"top_users"`
	PeakHour           int             `json:"peak_hour"`
	PeakDay            string          `json:"peak_day"`
	BusiestReader      int             `json:"busiest_reader"`
	UniqueUsers        int             `json:"unique_users"`
	UniqueCards        int             `json:"unique_cards"`
}

// The sample sizes keep report latency bounded on an SD card: roughly
// 500 transactions per day for the overview, 100 for a single user.
const (
	overviewSampleCap = 5000
	reportSampleCap   = 2000

	// Longest reporting window; also keeps the cutoff arithmetic far away
	// from time.Duration overflow.
	maxPeriodDays = 365
)

// Analytics builds the period overview over the last days days,
// optionally restricted to one card.
func (s *Service) Analytics(days int, card string) Overview {
	if days <= 0 {
		days = 7
	}
	if days > maxPeriodDays {
		days = maxPeriodDays
	}
	limit := days * 500
	if limit > overviewSampleCap {
		limit = overviewSampleCap
	}

	cutoff := s.now().Add(-time.Duration(days) * 24 * time.Hour).Unix()
	var txs []transaction.Transaction
	for _, tx := range s.Transactions(limit) {
		if tx.Timestamp < cutoff {
			continue
		}
		if card != "" && tx.Card != card {
			continue
		}
		txs = append(txs, tx)
	}

	out := Overview{
		PeriodDays:         days,
		TotalTransactions:  len(txs),
		ReaderBreakdown:    map[int]int{1: 0, 2: 0, 3: 0},
		HourlyDistribution: emptyHours(),
		DailyDistribution:  map[string]int{},
		TopUsers:           []TopUser{},
		BusiestReader:      1,
	}

	byUser := make(map[string]int)
	uniqueCards := make(map[string]struct{})

	for _, tx := range txs {
		switch tx.Status {
		case transaction.StatusGranted:
			out.StatusBreakdown.Granted++
		case transaction.StatusDenied:
			out.StatusBreakdown.Denied++
		case transaction.StatusBlocked:
			out.StatusBreakdown.Blocked++
		}
		if _, ok := out.ReaderBreakdown[tx.Reader]; ok {
			out.ReaderBreakdown[tx.Reader]++
		}

		t := tx.Time()
		out.HourlyDistribution[strconv.Itoa(t.Hour())]++
		out.DailyDistribution[t.Format("2006-01-02")]++

		if card == "" {
			byUser[tx.Name+"|"+tx.Card]++
			uniqueCards[tx.Card] = struct{}{}
		}
	}

	out.PeakHour = peakHour(out.HourlyDistribution)
	out.PeakDay = peakDay(out.DailyDistribution)
	for reader, count := range out.ReaderBreakdown {
		if count > out.ReaderBreakdown[out.BusiestReader] || (count == out.ReaderBreakdown[out.BusiestReader] && reader < out.BusiestReader) {
			out.BusiestReader = reader
		}
	}
	out.UniqueUsers = len(uniqueCards)
	out.UniqueCards = out.UniqueUsers

	if card == "" {
		out.TopUsers = topUsers(byUser, 10)
	}
	return out
}

func emptyHours() map[string]int {
	hours := make(map[string]int, 24)
	for i := 0; i < 24; i++ {
		hours[strconv.Itoa(i)] = 0
	}
	return hours
}

func peakHour(hours map[string]int) int {
	best, bestCount := 0, -1
	for i := 0; i < 24; i++ {
		if c := hours[strconv.Itoa(i)]; c > bestCount {
			best, bestCount = i, c
		}
	}
	return best
}

func peakDay(days map[string]int) string {
	keys := make([]string, 0, len(days))
	for k := range days {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	best, bestCount := "", -1
	for _, k := range keys {
		if days[k] > bestCount {
			best, bestCount = k, days[k]
		}
	}
	return best
}

func topUsers(byUser map[string]int, n int) []TopUser {
	out := make([]TopUser, 0, len(byUser))
	for key, count := range byUser {
		name, card, _ := strings.Cut(key, "|")
		out = append(out, TopUser{Name: name, Card: card, Count: count})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Card < out[j].Card
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

type reportUser struct {
	Name    string `json:"name"`
	Card    string `json:"card"`
	ID      string `json:"id"`
	RefID   string `json:"ref_id"`
	Blocked bool   `json:"blocked"`
}

type reportSummary struct {
	TotalAccesses int     `json:"total_accesses"`
	Granted       int     `json:"granted"`
	Denied        int     `json:"denied"`
	Blocked       int     `json:"blocked"`
	AvgPerDay     float64 `json:"avg_per_day"`
}

type reportPatterns struct {
	MostUsedReader int    `json:"most_used_reader"`
	FavoriteHour   int    `json:"favorite_hour"`
	FirstAccess    *int64 `json:"first_access"`
	LastAccess     *int64 `json:"last_access"`
}

type timelineEntry struct {
	Timestamp int64              `json:"timestamp"`
	Reader    int                `json:"reader"`
	Status    transaction.Status `json:"status"`
}

// UserReport is the shape behind /get_user_report.
type UserReport struct {
	User          reportUser      `json:"user"`
	PeriodDays    int             `json:"period_days"`
	Summary       reportSummary   `json:"summary"`
	Patterns      reportPatterns  `json:"patterns"`
	Timeline      []timelineEntry `json:"timeline"`
	HourlyPattern map[string]int  `json:"hourly_pattern"`
	ReaderUsage   map[int]int     `json:"reader_usage"`
}

// Report builds a per-user activity report over the last days days.
func (s *Service) Report(card string, days int) (UserReport, error) {
	if days <= 0 {
		days = 30
	}
	if days > maxPeriodDays {
		days = maxPeriodDays
	}

	u, ok := s.users.Get(card)
	if !ok {
		return UserReport{}, internal.ErrUserNotFound
	}

	report := UserReport{
		User: reportUser{
			Name:    u.Name,
			Card:    card,
			ID:      u.ID,
			RefID:   u.RefID,
			Blocked: s.users.IsBlocked(card),
		},
		PeriodDays:    days,
		Patterns:      reportPatterns{MostUsedReader: 1},
		Timeline:      []timelineEntry{},
		HourlyPattern: emptyHours(),
		ReaderUsage:   map[int]int{1: 0, 2: 0, 3: 0},
	}

	limit := days * 100
	if limit > reportSampleCap {
		limit = reportSampleCap
	}
	cutoff := s.now().Add(-time.Duration(days) * 24 * time.Hour).Unix()

	var txs []transaction.Transaction
	for _, tx := range s.Transactions(limit) {
		if tx.Card == card && tx.Timestamp >= cutoff {
			txs = append(txs, tx)
		}
	}
	if len(txs) == 0 {
		return report, nil
	}

	var firstTS, lastTS int64
	for _, tx := range txs {
		switch tx.Status {
		case transaction.StatusGranted:
			report.Summary.Granted++
		case transaction.StatusDenied:
			report.Summary.Denied++
		case transaction.StatusBlocked:
			report.Summary.Blocked++
		}
		report.HourlyPattern[strconv.Itoa(tx.Time().Hour())]++
		if _, ok := report.ReaderUsage[tx.Reader]; ok {
			report.ReaderUsage[tx.Reader]++
		}
		report.Timeline = append(report.Timeline, timelineEntry{
			Timestamp: tx.Timestamp,
			Reader:    tx.Reader,
			Status:    tx.Status,
		})
		if firstTS == 0 || tx.Timestamp < firstTS {
			firstTS = tx.Timestamp
		}
		if tx.Timestamp > lastTS {
			lastTS = tx.Timestamp
		}
	}

	sort.Slice(report.Timeline, func(i, j int) bool {
		return report.Timeline[i].Timestamp > report.Timeline[j].Timestamp
	})
	if len(report.Timeline) > 20 {
		report.Timeline = report.Timeline[:20]
	}

	report.Summary.TotalAccesses = len(txs)
	report.Summary.AvgPerDay = math.Round(float64(len(txs))/float64(days)*100) / 100
	report.Patterns.FirstAccess = &firstTS
	report.Patterns.LastAccess = &lastTS
	report.Patterns.FavoriteHour = peakHour(report.HourlyPattern)
	for reader, count := range report.ReaderUsage {
		if count > report.ReaderUsage[report.Patterns.MostUsedReader] || (count == report.ReaderUsage[report.Patterns.MostUsedReader] && reader < report.Patterns.MostUsedReader) {
			report.Patterns.MostUsedReader = reader
		}
	}
	return report, nil
}

// CSV renders the most recent transactions as the historical CSV export.
// Commas in names become semicolons so the rows stay parseable without
// quoting.
func (s *Service) CSV(limit int) string {
	var b strings.Builder
	b.WriteString("Timestamp,Name,Card Number,Reader,Status")
	for _, tx := range s.Transactions(limit) {
		name := strings.ReplaceAll(tx.Name, ",", ";")
		fmt.Fprintf(&b, "\n%s,%s,%s,%d,%s",
			tx.Time().Format("2006-01-02 15:04:05"), name, tx.Card, tx.Reader, tx.Status)
	}
	return b.String()
}
