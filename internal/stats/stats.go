// Package stats turns recorded tickets into per-cook performance figures.
package stats

import (
	"fmt"
	"sort"
	"time"

	"github.com/sadopc/linecook/internal/store"
)

// Source is the ticket data the aggregator reads.
type Source interface {
	TicketsSince(since time.Time) ([]store.TicketRow, error)
	CookStats(cookPin int64, from, to time.Time) (store.CookStats, error)
}

type Aggregator struct {
	src Source
	loc *time.Location
	now func() time.Time
}

func New(src Source, loc *time.Location) *Aggregator {
	return &Aggregator{src: src, loc: loc, now: time.Now}
}

// Location is the timezone periods are computed in.
func (a *Aggregator) Location() *time.Location { return a.loc }

// Live is one cook's figures for a single local day.
type Live struct {
	Fastest int64
	Slowest int64
	Average int64
	Count   int
}

// Text returns fastest, slowest and average as m:ss, or placeholders when the
// cook has no tickets.
func (l Live) Text() (fastest, slowest, average string) {
	if l.Count == 0 {
		return Placeholder, Placeholder, Placeholder
	}
	return FormatSeconds(l.Fastest), FormatSeconds(l.Slowest), FormatSeconds(l.Average)
}

// Live aggregates the cook's tickets whose local date is the calendar day of
// localDate.
func (a *Aggregator) Live(cookPin int64, localDate time.Time) (Live, error) {
	y, m, d := localDate.In(a.loc).Date()
	from := time.Date(y, m, d, 0, 0, 0, 0, a.loc)
	to := from.AddDate(0, 0, 1)

	st, err := a.src.CookStats(cookPin, from, to)
	if err != nil {
		return Live{}, fmt.Errorf("live stats: %w", err)
	}
	if st.Count == 0 {
		return Live{}, nil
	}
	return Live{
		Fastest: st.Fastest,
		Slowest: st.Slowest,
		Average: int64(st.Average),
		Count:   st.Count,
	}, nil
}

// Today is Live for the current local day.
func (a *Aggregator) Today(cookPin int64) (Live, error) {
	return a.Live(cookPin, a.now())
}

// CookSummary is one cook's figures within a period.
type CookSummary struct {
	Pin     int64
	Name    string
	Fastest int64
	Slowest int64
	Average int64
	Count   int
}

type Period struct {
	Key   string
	Label string
	Cooks []CookSummary
}

type accumulator struct {
	summary CookSummary
	total   int64
}

// Grouped buckets recent tickets by period and cook. Periods appear in the
// order their first ticket was read, which is chronological because tickets
// are read oldest first. Within a period cooks are sorted by average, fastest
// first.
func (a *Aggregator) Grouped(g Group) ([]Period, error) {
	start := g.lookback(a.now().In(a.loc))
	rows, err := a.src.TicketsSince(start.UTC())
	if err != nil {
		return nil, fmt.Errorf("grouped stats: %w", err)
	}

	var order []string
	byPeriod := make(map[string][]*accumulator)
	byCook := make(map[string]map[int64]*accumulator)

	for _, r := range rows {
		key := Key(g, r.Date.In(a.loc))
		cooks, ok := byCook[key]
		if !ok {
			cooks = make(map[int64]*accumulator)
			byCook[key] = cooks
			order = append(order, key)
		}
		acc, ok := cooks[r.CookPin]
		if !ok {
			acc = &accumulator{summary: CookSummary{
				Pin:     r.CookPin,
				Name:    r.CookName,
				Fastest: r.TimeTaken,
				Slowest: r.TimeTaken,
			}}
			cooks[r.CookPin] = acc
			byPeriod[key] = append(byPeriod[key], acc)
		}
		acc.add(r.TimeTaken)
	}

	periods := make([]Period, 0, len(order))
	for _, key := range order {
		accs := byPeriod[key]
		summaries := make([]CookSummary, len(accs))
		for i, acc := range accs {
			summaries[i] = acc.summary
			summaries[i].Average = acc.total / int64(acc.summary.Count)
		}
		sort.SliceStable(summaries, func(i, j int) bool {
			return summaries[i].Average < summaries[j].Average
		})
		periods = append(periods, Period{Key: key, Label: Label(g, key), Cooks: summaries})
	}
	return periods, nil
}

func (acc *accumulator) add(secs int64) {
	s := &acc.summary
	s.Fastest = min(s.Fastest, secs)
	s.Slowest = max(s.Slowest, secs)
	s.Count++
	acc.total += secs
}

// Row is one line of an export.
type Row struct {
	PeriodKey string
	Period    string
	Cook      string
	Fastest   int64
	Slowest   int64
	Average   int64
	Count     int
}

// Export is a flattened, windowed copy of Grouped ready for a writer.
type Export struct {
	Group Group
	From  time.Time // local
	To    time.Time // local
	Rows  []Row
}

// ExportRange flattens Grouped, keeping only periods that start inside the
// export window.
func (a *Aggregator) ExportRange(g Group) (Export, error) {
	now := a.now().In(a.loc)
	from := g.exportWindow(now)

	periods, err := a.Grouped(g)
	if err != nil {
		return Export{}, err
	}

	exp := Export{Group: g, From: from, To: now}
	for _, p := range periods {
		start, err := Start(g, p.Key, a.loc)
		if err != nil || start.Before(from) {
			continue
		}
		for _, c := range p.Cooks {
			exp.Rows = append(exp.Rows, Row{
				PeriodKey: p.Key,
				Period:    p.Label,
				Cook:      c.Name,
				Fastest:   c.Fastest,
				Slowest:   c.Slowest,
				Average:   c.Average,
				Count:     c.Count,
			})
		}
	}
	return exp, nil
}
