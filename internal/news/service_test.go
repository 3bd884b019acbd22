package news

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"

	"als-trading-bot/internal/config"
	"als-trading-bot/internal/model"
	"als-trading-bot/internal/store/memory"
)

func TestBlackoutWindow(t *testing.T) {
	cfg := config.Default()
	store := memory.New()
	svc := NewService(cfg, store, nil)
	ctx := context.Background()

	release := time.Date(2026, 3, 2, 13, 30, 0, 0, time.UTC)
	ev := &model.NewsEvent{
		Name:          "Non-Farm Payrolls",
		Currency:      "USD",
		ReleaseTime:   release,
		Severity:      model.SeverityHigh,
		BufferMinutes: 45,
	}
	if err := store.CreateNewsEvent(ctx, ev); err != nil {
		t.Fatalf("CreateNewsEvent: %v", err)
	}

	cases := []struct {
		at         time.Time
		wantRisk   bool
		wantBuffer int
	}{
		{release.Add(-46 * time.Minute), false, 30},
		{release.Add(-45 * time.Minute), true, 45},
		{release, true, 45},
		{release.Add(45 * time.Minute), true, 45},
		{release.Add(46 * time.Minute), false, 30},
	}
	for _, c := range cases {
		risk, buffer, err := svc.Blackout(ctx, c.at)
		if err != nil {
			t.Fatalf("Blackout(%v): %v", c.at, err)
		}
		if risk != c.wantRisk || buffer != c.wantBuffer {
			t.Errorf("Blackout(%v) = (%v, %d), want (%v, %d)", c.at, risk, buffer, c.wantRisk, c.wantBuffer)
		}
	}
}

func TestBlackoutIgnoresLowImpact(t *testing.T) {
	cfg := config.Default()
	store := memory.New()
	svc := NewService(cfg, store, nil)
	ctx := context.Background()

	now := time.Date(2026, 3, 2, 13, 30, 0, 0, time.UTC)
	ev := &model.NewsEvent{
		Name:        "Minor Speech",
		Currency:    "USD",
		ReleaseTime: now,
		Severity:    model.SeverityLow,
	}
	if err := store.CreateNewsEvent(ctx, ev); err != nil {
		t.Fatalf("CreateNewsEvent: %v", err)
	}

	risk, _, err := svc.Blackout(ctx, now)
	if err != nil {
		t.Fatalf("Blackout: %v", err)
	}
	if risk {
		t.Error("Low-impact events must not black out entries")
	}
}

func TestBlackoutWidensToLargestBuffer(t *testing.T) {
	cfg := config.Default()
	store := memory.New()
	svc := NewService(cfg, store, nil)
	ctx := context.Background()

	now := time.Date(2026, 3, 2, 13, 30, 0, 0, time.UTC)
	events := []*model.NewsEvent{
		{Name: "CPI", Currency: "USD", ReleaseTime: now.Add(10 * time.Minute), Severity: model.SeverityCritical, BufferMinutes: 60},
		{Name: "Claims", Currency: "USD", ReleaseTime: now.Add(-5 * time.Minute), Severity: model.SeverityHigh, BufferMinutes: 45},
	}
	for _, ev := range events {
		if err := store.CreateNewsEvent(ctx, ev); err != nil {
			t.Fatalf("CreateNewsEvent: %v", err)
		}
	}

	risk, buffer, err := svc.Blackout(ctx, now)
	if err != nil {
		t.Fatalf("Blackout: %v", err)
	}
	if !risk {
		t.Fatal("Expected blackout with two overlapping events")
	}
	if buffer != 60 {
		t.Errorf("Expected widest buffer 60, got %d", buffer)
	}
}

func TestStoreEventsSkipsDuplicates(t *testing.T) {
	cfg := config.Default()
	store := memory.New()
	svc := NewService(cfg, store, nil)
	ctx := context.Background()

	release := time.Date(2026, 3, 2, 13, 30, 0, 0, time.UTC)
	batch := []model.NewsEvent{
		{Name: "Non-Farm Payrolls", Currency: "USD", ReleaseTime: release, Severity: model.SeverityHigh, BufferMinutes: 45},
		{Name: "Fed Speech", Currency: "USD", ReleaseTime: release.Add(time.Hour), Severity: model.SeverityMedium, BufferMinutes: 30},
	}

	// the calendar republishes the whole schedule every refresh
	svc.storeEvents(ctx, batch)
	svc.storeEvents(ctx, batch)

	got, err := store.NewsEventsBetween(ctx, release.Add(-time.Hour), release.Add(2*time.Hour), allSeverities)
	if err != nil {
		t.Fatalf("NewsEventsBetween: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Expected 2 stored events after repeated refresh, got %d", len(got))
	}

	// a genuinely new event still lands
	svc.storeEvents(ctx, []model.NewsEvent{
		{Name: "CPI", Currency: "USD", ReleaseTime: release.Add(30 * time.Minute), Severity: model.SeverityCritical, BufferMinutes: 60},
	})
	got, err = store.NewsEventsBetween(ctx, release.Add(-time.Hour), release.Add(2*time.Hour), allSeverities)
	if err != nil {
		t.Fatalf("NewsEventsBetween: %v", err)
	}
	if len(got) != 3 {
		t.Errorf("Expected 3 stored events, got %d", len(got))
	}
}

func TestParseCalendarRow(t *testing.T) {
	html := `<table><tr class="calendar__row">
		<td class="calendar__time">8:30am</td>
		<td class="calendar__currency">USD</td>
		<td class="calendar__impact"><span class="icon icon--ff-impact-red"></span></td>
		<td class="calendar__event"><span class="calendar__event-title">Core CPI m/m</span></td>
	</tr></table>`

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		t.Fatalf("NewDocumentFromReader: %v", err)
	}
	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

	ev, ok := parseCalendarRow(doc.Find("tr.calendar__row").First(), day)
	if !ok {
		t.Fatal("Expected row to parse")
	}
	if ev.Name != "Core CPI m/m" {
		t.Errorf("Unexpected name %q", ev.Name)
	}
	if ev.Currency != "USD" {
		t.Errorf("Unexpected currency %q", ev.Currency)
	}
	if ev.Severity != model.SeverityHigh {
		t.Errorf("Red impact must map to HIGH, got %v", ev.Severity)
	}
	if ev.BufferMinutes != 45 {
		t.Errorf("HIGH buffer defaults to 45, got %d", ev.BufferMinutes)
	}
	want := time.Date(2026, 3, 2, 8, 30, 0, 0, time.UTC)
	if !ev.ReleaseTime.Equal(want) {
		t.Errorf("Expected release %v, got %v", want, ev.ReleaseTime)
	}
}

func TestParseCalendarRowSkipsAllDay(t *testing.T) {
	html := `<table><tr class="calendar__row">
		<td class="calendar__time">All Day</td>
		<td class="calendar__currency">USD</td>
		<td class="calendar__impact"><span class="icon icon--ff-impact-yel"></span></td>
		<td class="calendar__event"><span class="calendar__event-title">Bank Holiday</span></td>
	</tr></table>`

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		t.Fatalf("NewDocumentFromReader: %v", err)
	}

	_, ok := parseCalendarRow(doc.Find("tr.calendar__row").First(), time.Now().UTC())
	if ok {
		t.Error("All-day rows must be skipped")
	}
}

func TestParseClock(t *testing.T) {
	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

	got, ok := parseClock("2:00pm", day)
	if !ok || got.Hour() != 14 {
		t.Errorf("parseClock(2:00pm) = (%v, %v)", got, ok)
	}
	got, ok = parseClock("09:15", day)
	if !ok || got.Hour() != 9 || got.Minute() != 15 {
		t.Errorf("parseClock(09:15) = (%v, %v)", got, ok)
	}
	if _, ok := parseClock("", day); ok {
		t.Error("Empty clock must not parse")
	}
	if _, ok := parseClock("Tentative", day); ok {
		t.Error("Tentative rows must not parse")
	}
}
