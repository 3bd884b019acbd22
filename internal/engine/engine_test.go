package engine

import (
	"context"
	"math"
	"testing"
	"time"

	"als-trading-bot/internal/config"
	"als-trading-bot/internal/market/sim"
	"als-trading-bot/internal/model"
	"als-trading-bot/internal/store/memory"
)

// A Monday, inside the overnight session.
var testDay = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

type stubAdvisor struct {
	stages []model.State
}

func (s *stubAdvisor) Advise(ctx context.Context, stage model.State, sess *model.Session, event map[string]any) (model.Opinion, error) {
	s.stages = append(s.stages, stage)
	return model.Opinion{Stage: stage, Proceed: true, Confidence: 1, Provider: "stub"}, nil
}

// harness drives the engine against a simulated terminal with a frozen
// clock, so each Step sees exactly the quotes and bars the test set up.
type harness struct {
	t       *testing.T
	term    *sim.Terminal
	store   *memory.Store
	advisor *stubAdvisor
	eng     *Engine
	clock   time.Time
}

func newHarness(t *testing.T, opts ...sim.Option) *harness {
	t.Helper()
	t.Setenv("TRADER_LOG_DIR", t.TempDir())

	cfg := config.Default()
	h := &harness{
		t:       t,
		store:   memory.New(),
		advisor: &stubAdvisor{},
		clock:   testDay.Add(2*time.Hour + 5*time.Minute),
	}
	base := []sim.Option{
		sim.WithQuote(2005.0, 2005.05),
		sim.WithBars(model.TimeframeM5, overnightBars()),
	}
	h.term = sim.New(cfg.Symbol, append(base, opts...)...)
	h.eng = newEngine(cfg, h.term, h.store, h.advisor, nil)
	h.eng.now = func() time.Time { return h.clock }
	return h
}

// overnightBars is a 00:00-02:00 M5 series with high 2010 and low 1995:
// a 150-pip range, midpoint 2002.5, sweep threshold 13.5 pips.
func overnightBars() []model.Bar {
	var bars []model.Bar
	for at := testDay; at.Before(testDay.Add(2 * time.Hour)); at = at.Add(5 * time.Minute) {
		b := model.Bar{Time: at, Open: 2000.0, High: 2005.0, Low: 1995.0, Close: 2000.0, Volume: 100}
		if at.Equal(testDay.Add(time.Hour)) {
			b.High = 2010.0
		}
		bars = append(bars, b)
	}
	return bars
}

func (h *harness) step() *model.StepResult {
	h.t.Helper()
	res, err := h.eng.Step(context.Background(), h.eng.cfg.Symbol)
	if err != nil {
		h.t.Fatalf("Step() error = %v", err)
	}
	return res
}

func (h *harness) session() *model.Session {
	h.t.Helper()
	sess, err := h.store.SessionForDay(context.Background(), testDay, h.eng.cfg.Symbol)
	if err != nil {
		h.t.Fatalf("SessionForDay() error = %v", err)
	}
	return sess
}

func (h *harness) saveSession(sess *model.Session) {
	h.t.Helper()
	if err := h.store.UpdateSession(context.Background(), sess); err != nil {
		h.t.Fatalf("UpdateSession() error = %v", err)
	}
}

// confirmReversal appends the M5 displacement bar and the M1 bars that
// show a lower high after the up sweep, and quotes back inside the range.
func (h *harness) confirmReversal() {
	h.clock = testDay.Add(2*time.Hour + 20*time.Minute)
	h.term.AppendBars(model.TimeframeM5, model.Bar{
		Time: testDay.Add(2*time.Hour + 15*time.Minute),
		Open: 2009.0, High: 2009.5, Low: 2003.5, Close: 2004.0, Volume: 80,
	})
	h.term.AppendBars(model.TimeframeM1,
		model.Bar{Time: testDay.Add(2*time.Hour + 16*time.Minute), Open: 2005.5, High: 2006.0, Low: 2004.0, Close: 2005.0},
		model.Bar{Time: testDay.Add(2*time.Hour + 17*time.Minute), Open: 2005.0, High: 2005.5, Low: 2004.0, Close: 2004.8},
		model.Bar{Time: testDay.Add(2*time.Hour + 18*time.Minute), Open: 2004.8, High: 2005.2, Low: 2004.0, Close: 2004.5},
		model.Bar{Time: testDay.Add(2*time.Hour + 19*time.Minute), Open: 2004.5, High: 2004.8, Low: 2004.0, Close: 2004.2},
	)
	h.term.SetTick(2004.0, 2004.05)
}

// driveToArmed walks bootstrap, sweep, confirmation and retest in four
// steps and fails the test if the session does not end up armed.
func (h *harness) driveToArmed() *model.Session {
	h.t.Helper()

	h.step()

	h.clock = testDay.Add(2*time.Hour + 10*time.Minute)
	h.term.SetTick(2011.5, 2011.55)
	h.step()

	h.confirmReversal()
	h.step()

	h.clock = testDay.Add(2*time.Hour + 25*time.Minute)
	h.term.SetTick(2002.6, 2002.65)
	h.step()

	sess := h.session()
	if sess.State != model.StateArmed {
		h.t.Fatalf("drive to armed: state = %s, cooldown reason %q", sess.State, sess.CooldownReason)
	}
	return sess
}

func TestStepFullLifecycle(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	// bootstrap computes the range, no breach yet
	res := h.step()
	if res.StateTo != model.StateIdle {
		t.Fatalf("first step state = %s, want IDLE", res.StateTo)
	}
	sess := h.session()
	if sess.Range.High != 2010.0 || sess.Range.Low != 1995.0 || sess.Range.Midpoint != 2002.5 {
		t.Fatalf("range = %+v", sess.Range)
	}
	if sess.SweepThreshold != 13.5 {
		t.Fatalf("threshold = %v, want 13.5", sess.SweepThreshold)
	}

	// bid beyond high + threshold sweeps the high
	h.clock = testDay.Add(2*time.Hour + 10*time.Minute)
	h.term.SetTick(2011.5, 2011.55)
	res = h.step()
	if res.StateFrom != model.StateIdle || res.StateTo != model.StateSwept {
		t.Fatalf("sweep step %s -> %s, want IDLE -> SWEPT", res.StateFrom, res.StateTo)
	}
	sess = h.session()
	if sess.SweepDirection != model.DirectionUp || sess.SweepPrice != 2011.5 {
		t.Fatalf("sweep direction %s price %v", sess.SweepDirection, sess.SweepPrice)
	}

	// displacement bar back inside the range plus a lower high on M1
	h.confirmReversal()
	res = h.step()
	if res.StateTo != model.StateConfirmed {
		t.Fatalf("confirm step state = %s detail = %q", res.StateTo, res.Detail)
	}

	// quote touches the midpoint band: signal armed
	h.clock = testDay.Add(2*time.Hour + 25*time.Minute)
	h.term.SetTick(2002.6, 2002.65)
	res = h.step()
	if res.StateTo != model.StateArmed {
		t.Fatalf("retest step state = %s detail = %q", res.StateTo, res.Detail)
	}
	sess = h.session()
	sig, err := h.store.LatestSignal(ctx, sess.ID)
	if err != nil {
		t.Fatalf("LatestSignal() error = %v", err)
	}
	if sig.Side != model.SideSell {
		t.Errorf("signal side = %s, want SELL", sig.Side)
	}
	if sig.Entry != 2002.65 {
		t.Errorf("entry = %v, want ask 2002.65", sig.Entry)
	}
	if math.Abs(sig.Stop-2011.5005) > 1e-9 {
		t.Errorf("stop = %v, want 2011.5005", sig.Stop)
	}
	if sig.Target1 != 2002.5 {
		t.Errorf("target1 = %v, want midpoint 2002.5", sig.Target1)
	}
	if sig.Volume != 0.11 {
		t.Errorf("volume = %v, want 0.11", sig.Volume)
	}

	// order fills at the bid for a sell
	h.clock = testDay.Add(2*time.Hour + 30*time.Minute)
	res = h.step()
	if !res.TradeExecuted || res.StateTo != model.StateInTrade {
		t.Fatalf("execution step executed=%t state=%s detail=%q", res.TradeExecuted, res.StateTo, res.Detail)
	}
	sess = h.session()
	if sess.TradeCount != 1 {
		t.Errorf("trade count = %d, want 1", sess.TradeCount)
	}
	exec, err := h.store.LatestExecution(ctx, sig.ID)
	if err != nil {
		t.Fatalf("LatestExecution() error = %v", err)
	}
	if exec.Status != "OPEN" || exec.FillPrice != 2002.6 {
		t.Fatalf("execution status %s fill %v", exec.Status, exec.FillPrice)
	}

	// management pass with the position still open
	h.clock = testDay.Add(2*time.Hour + 35*time.Minute)
	res = h.step()
	if res.StateTo != model.StateInTrade || res.TradeClosed {
		t.Fatalf("manage step state=%s closed=%t", res.StateTo, res.TradeClosed)
	}

	// terminal closes the position out from under us (broker-side stop)
	if err := h.term.ClosePosition(ctx, exec.OrderID, 0); err != nil {
		t.Fatalf("ClosePosition() error = %v", err)
	}
	h.clock = testDay.Add(2*time.Hour + 36*time.Minute)
	res = h.step()
	if !res.TradeClosed || res.StateTo != model.StateCooldown {
		t.Fatalf("close step closed=%t state=%s detail=%q", res.TradeClosed, res.StateTo, res.Detail)
	}
	if res.ClosedPnL >= 0 {
		t.Errorf("closed pnl = %v, want a loss", res.ClosedPnL)
	}
	sess = h.session()
	if sess.LossCount != 1 {
		t.Errorf("loss count = %d, want 1", sess.LossCount)
	}

	// a second management pass over the settled execution is a no-op
	out, err := h.eng.manager.Manage(ctx, sess, sig, h.clock)
	if err != nil {
		t.Fatalf("Manage() error = %v", err)
	}
	if out.Closed || out.Detail != "position already closed" {
		t.Errorf("repeat manage = %+v", out)
	}

	// cooldown dwell holds, then resets to IDLE keeping the counters
	res = h.step()
	if res.StateTo != model.StateCooldown || res.Detail != "cooling down" {
		t.Fatalf("cooldown step state=%s detail=%q", res.StateTo, res.Detail)
	}
	sess = h.session()
	past := h.clock.Add(-time.Minute)
	sess.CooldownUntil = &past
	h.saveSession(sess)
	res = h.step()
	if res.StateTo != model.StateIdle {
		t.Fatalf("reset step state = %s", res.StateTo)
	}
	sess = h.session()
	if sess.SweepPrice != 0 || sess.SweepTime != nil {
		t.Errorf("per-attempt sweep fields not cleared: %+v", sess)
	}
	if sess.SweepDirection != model.DirectionUp {
		t.Errorf("sweep direction = %q, want UP kept across the reset", sess.SweepDirection)
	}
	if sess.TradeCount != 1 || sess.LossCount != 1 {
		t.Errorf("counters reset: trades=%d losses=%d", sess.TradeCount, sess.LossCount)
	}

	want := []model.State{model.StateSwept, model.StateConfirmed, model.StateArmed, model.StateInTrade, model.StateCooldown}
	if len(h.advisor.stages) != len(want) {
		t.Fatalf("advisor stages = %v, want %v", h.advisor.stages, want)
	}
	for i, stage := range want {
		if h.advisor.stages[i] != stage {
			t.Errorf("advisor stage[%d] = %s, want %s", i, h.advisor.stages[i], stage)
		}
	}
}

func TestBothSidesSweptCoolsDown(t *testing.T) {
	h := newHarness(t)

	h.step()

	h.clock = testDay.Add(2*time.Hour + 10*time.Minute)
	h.term.SetTick(2011.5, 2011.55)
	if res := h.step(); res.StateTo != model.StateSwept {
		t.Fatalf("sweep step state = %s", res.StateTo)
	}

	// low side breaks too: setup invalid for the day
	h.clock = testDay.Add(2*time.Hour + 15*time.Minute)
	h.term.SetTick(1993.0, 1993.05)
	res := h.step()
	if res.StateTo != model.StateCooldown {
		t.Fatalf("second breach state = %s detail = %q", res.StateTo, res.Detail)
	}
	if sess := h.session(); sess.CooldownReason != "Both sides swept" {
		t.Errorf("cooldown reason = %q", sess.CooldownReason)
	}
}

func TestOppositeSweepAfterResetCoolsDown(t *testing.T) {
	h := newHarness(t)

	h.step()

	h.clock = testDay.Add(2*time.Hour + 10*time.Minute)
	h.term.SetTick(2011.5, 2011.55)
	if res := h.step(); res.StateTo != model.StateSwept {
		t.Fatalf("sweep step state = %s", res.StateTo)
	}

	// first attempt confirms but the retest never comes
	h.confirmReversal()
	if res := h.step(); res.StateTo != model.StateConfirmed {
		t.Fatalf("confirm step state = %s detail = %q", res.StateTo, res.Detail)
	}
	sess := h.session()
	stale := h.clock.Add(-20 * time.Minute)
	sess.ConfirmationTime = &stale
	h.saveSession(sess)
	h.clock = testDay.Add(3 * time.Hour)
	h.term.SetTick(2005.0, 2005.05)
	if res := h.step(); res.StateTo != model.StateCooldown {
		t.Fatalf("expiry step state = %s detail = %q", res.StateTo, res.Detail)
	}

	// cooldown lapses, session resets to IDLE
	sess = h.session()
	past := h.clock.Add(-time.Minute)
	sess.CooldownUntil = &past
	h.saveSession(sess)
	h.clock = testDay.Add(3*time.Hour + 5*time.Minute)
	if res := h.step(); res.StateTo != model.StateIdle {
		t.Fatalf("reset step state = %s", res.StateTo)
	}

	// the low breaks after an earlier high sweep: both sides are gone,
	// the session parks instead of arming a fresh attempt
	h.clock = testDay.Add(3*time.Hour + 10*time.Minute)
	h.term.SetTick(1993.0, 1993.05)
	res := h.step()
	if res.StateTo != model.StateCooldown {
		t.Fatalf("opposite breach state = %s detail = %q", res.StateTo, res.Detail)
	}
	if sess := h.session(); sess.CooldownReason != "Both sides swept" {
		t.Errorf("cooldown reason = %q", sess.CooldownReason)
	}
}

// gapMarket serves everything from the terminal but has no live quote.
type gapMarket struct {
	*sim.Terminal
}

func (g *gapMarket) GetTick(ctx context.Context, symbol string) (model.Tick, error) {
	return model.Tick{}, model.ErrDataUnavailable
}

func TestQuoteGapSkipsPass(t *testing.T) {
	h := newHarness(t)

	h.step()

	// feed drops while idle: the pass is skipped, nothing surfaces
	live := h.eng.market
	h.eng.market = &gapMarket{Terminal: h.term}
	h.clock = testDay.Add(2*time.Hour + 10*time.Minute)
	res := h.step()
	if res.Detail != "quote unavailable" || res.StateTo != model.StateIdle {
		t.Fatalf("idle gap step state=%s detail=%q", res.StateTo, res.Detail)
	}

	// quotes return and the same tick that would have swept still does
	h.eng.market = live
	h.term.SetTick(2011.5, 2011.55)
	if res := h.step(); res.StateTo != model.StateSwept {
		t.Fatalf("recovery step state = %s detail = %q", res.StateTo, res.Detail)
	}

	// feed drops again mid-setup: the swept state holds
	h.eng.market = &gapMarket{Terminal: h.term}
	h.clock = testDay.Add(2*time.Hour + 15*time.Minute)
	res = h.step()
	if res.Detail != "quote unavailable" || res.StateTo != model.StateSwept {
		t.Fatalf("swept gap step state=%s detail=%q", res.StateTo, res.Detail)
	}
}

func TestRetestWindowExpires(t *testing.T) {
	h := newHarness(t)

	h.step()
	h.clock = testDay.Add(2*time.Hour + 10*time.Minute)
	h.term.SetTick(2011.5, 2011.55)
	h.step()
	h.confirmReversal()
	if res := h.step(); res.StateTo != model.StateConfirmed {
		t.Fatalf("confirm step state = %s detail = %q", res.StateTo, res.Detail)
	}

	// push the confirmation stamp past the retest window and keep the
	// quote away from the midpoint
	sess := h.session()
	stale := h.clock.Add(-20 * time.Minute)
	sess.ConfirmationTime = &stale
	h.saveSession(sess)

	h.clock = h.clock.Add(5 * time.Minute)
	h.term.SetTick(2005.0, 2005.05)
	res := h.step()
	if res.StateTo != model.StateCooldown {
		t.Fatalf("expiry step state = %s detail = %q", res.StateTo, res.Detail)
	}
	if sess := h.session(); sess.CooldownReason != "retest window expired" {
		t.Errorf("cooldown reason = %q", sess.CooldownReason)
	}
}

func TestDailyLimitBlocksNewSweeps(t *testing.T) {
	h := newHarness(t)

	h.step()

	sess := h.session()
	sess.TradeCount = sess.MaxTrades
	h.saveSession(sess)

	// a clear breach that would otherwise sweep
	h.clock = testDay.Add(2*time.Hour + 10*time.Minute)
	h.term.SetTick(2011.5, 2011.55)
	res := h.step()
	if res.StateTo != model.StateIdle {
		t.Fatalf("state = %s, want IDLE", res.StateTo)
	}
	if res.Detail != "daily limit reached" {
		t.Errorf("detail = %q", res.Detail)
	}
}

func TestOrderRejectedStaysArmedAndRetries(t *testing.T) {
	h := newHarness(t, sim.WithRejectedOrders())
	ctx := context.Background()

	sess := h.driveToArmed()

	// the broker rejects: the session holds its state and the signal
	// stays live for the next pass
	h.clock = testDay.Add(2*time.Hour + 30*time.Minute)
	res := h.step()
	if res.TradeExecuted || res.StateTo != model.StateArmed {
		t.Fatalf("rejected step executed=%t state=%s detail=%q", res.TradeExecuted, res.StateTo, res.Detail)
	}

	sig, err := h.store.LatestSignal(ctx, sess.ID)
	if err != nil {
		t.Fatalf("LatestSignal() error = %v", err)
	}
	if sig.Status != model.SignalActive {
		t.Errorf("signal status = %s, want ACTIVE", sig.Status)
	}
	if sess := h.session(); sess.TradeCount != 0 {
		t.Errorf("trade count = %d, want 0", sess.TradeCount)
	}

	// broker recovers: the retry fills
	h.term.SetRejectOrders(false)
	h.clock = testDay.Add(2*time.Hour + 31*time.Minute)
	res = h.step()
	if !res.TradeExecuted || res.StateTo != model.StateInTrade {
		t.Fatalf("retry step executed=%t state=%s detail=%q", res.TradeExecuted, res.StateTo, res.Detail)
	}
	if sess := h.session(); sess.TradeCount != 1 {
		t.Errorf("trade count = %d, want 1", sess.TradeCount)
	}
}

func TestExecutionWindowCloses(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	sess := h.driveToArmed()

	// armed but the clock has run past the order window
	h.clock = testDay.Add(8*time.Hour + 5*time.Minute)
	res := h.step()
	if res.TradeExecuted || res.StateTo != model.StateCooldown {
		t.Fatalf("late step executed=%t state=%s detail=%q", res.TradeExecuted, res.StateTo, res.Detail)
	}
	if sess := h.session(); sess.CooldownReason != "execution window closed" {
		t.Errorf("cooldown reason = %q", sess.CooldownReason)
	}

	sig, err := h.store.LatestSignal(ctx, sess.ID)
	if err != nil {
		t.Fatalf("LatestSignal() error = %v", err)
	}
	if sig.Status != model.SignalCancelled {
		t.Errorf("signal status = %s, want CANCELLED", sig.Status)
	}
}

func TestBootstrapWaitsForRangeBars(t *testing.T) {
	h := newHarness(t, sim.WithBars(model.TimeframeM5, nil))

	res := h.step()
	if res.Stage != "bootstrap" || res.StateTo != model.StateIdle {
		t.Fatalf("empty-window step stage=%q state=%s", res.Stage, res.StateTo)
	}
	if sess := h.session(); !sess.Range.IsZero() {
		t.Fatalf("range set from no bars: %+v", sess.Range)
	}

	// bars arrive on the next pass
	h.term.SetBars(model.TimeframeM5, overnightBars())
	h.clock = h.clock.Add(5 * time.Minute)
	res = h.step()
	if res.Stage == "bootstrap" {
		t.Fatalf("still bootstrapping with bars present: %+v", res)
	}
	if sess := h.session(); sess.Range.High != 2010.0 || sess.Range.Low != 1995.0 {
		t.Errorf("range = %+v", sess.Range)
	}
}
