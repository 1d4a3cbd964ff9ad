package behavior

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"go.uber.org/zap"
)

type fakeClock struct {
	now   time.Time
	slept []time.Duration
}

func (c *fakeClock) sleep(_ context.Context, d time.Duration) error {
	c.slept = append(c.slept, d)
	c.now = c.now.Add(d)
	return nil
}

func newTestGovernor(t *testing.T, cfg Config) (*Governor, *fakeClock) {
	t.Helper()

	clock := &fakeClock{now: time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC)}

	g, err := New(cfg, NewStore(t.TempDir()), nil, zap.NewNop())
	if err != nil {
		t.Fatalf("creating governor: %v", err)
	}

	g.now = func() time.Time { return clock.now }
	g.sleep = clock.sleep
	g.rand = rand.New(rand.NewSource(1))
	g.sessionStart = clock.now
	g.hourWindowStart = clock.now
	g.state.Date = dateKey(clock.now)

	// Pin the pacing traits; break probability keeps whatever New resolved
	// from the config.
	g.profile.typingSpeed = 0.1
	g.profile.fatigueRate = 0.3
	g.profile.mousePrecision = 0.9

	return g, clock
}

func TestHourlyCeilingForcesPause(t *testing.T) {
	g, clock := newTestGovernor(t, Config{HourlyLimit: 3})

	for i := 0; i < 3; i++ {
		g.RecordApplication(90 * time.Second)
	}

	ok, err := g.CheckRateLimits(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatalf("expected proceed after hourly break")
	}

	if len(clock.slept) == 0 {
		t.Fatalf("expected an enforced pause")
	}
	if clock.slept[0] < 5*time.Minute {
		t.Fatalf("expected hourly break of at least 5 minutes, got %v", clock.slept[0])
	}
	if g.actionsThisHour != 0 {
		t.Fatalf("expected hourly counter reset, got %d", g.actionsThisHour)
	}
}

func TestDailyCeilingHoldsUntilDateChange(t *testing.T) {
	g, clock := newTestGovernor(t, Config{DailyLimit: 2})

	g.RecordApplication(time.Minute)
	g.RecordApplication(time.Minute)

	ok, err := g.CheckRateLimits(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatalf("expected daily ceiling to block")
	}

	// Still the same day: the ceiling holds no matter how often we ask.
	clock.now = clock.now.Add(6 * time.Hour)
	if ok, _ := g.CheckRateLimits(context.Background()); ok {
		t.Fatalf("expected daily ceiling to hold for the rest of the day")
	}

	clock.now = clock.now.Add(24 * time.Hour)
	ok, err = g.CheckRateLimits(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatalf("expected proceed after date rollover")
	}
	if g.state.DailyCount != 0 {
		t.Fatalf("expected daily counter reset, got %d", g.state.DailyCount)
	}
}

func TestSessionCeilingBlocks(t *testing.T) {
	g, _ := newTestGovernor(t, Config{SessionLimit: 1})

	g.RecordApplication(time.Minute)

	ok, err := g.CheckRateLimits(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatalf("expected session ceiling to block")
	}
}

func TestInterApplicationGapIsWaitedOut(t *testing.T) {
	g, clock := newTestGovernor(t, Config{BreakProbability: -1})

	g.RecordApplication(time.Minute)

	ok, err := g.CheckRateLimits(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatalf("expected proceed after waiting out the gap")
	}

	if len(clock.slept) != 1 {
		t.Fatalf("expected exactly one wait, got %v", clock.slept)
	}
	if clock.slept[0] < 3*time.Minute || clock.slept[0] > 6*time.Minute {
		t.Fatalf("expected gap between 3 and 6 minutes, got %v", clock.slept[0])
	}
}

func TestNegativeBreakProbabilityDisablesRandomBreaks(t *testing.T) {
	g, clock := newTestGovernor(t, Config{BreakProbability: -1})

	if g.profile.breakProbability != 0 {
		t.Fatalf("expected break probability 0, got %v", g.profile.breakProbability)
	}

	// No prior application, no ceilings hit: nothing left that may sleep.
	for i := 0; i < 20; i++ {
		ok, err := g.CheckRateLimits(context.Background())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !ok {
			t.Fatalf("expected proceed")
		}
	}
	if len(clock.slept) != 0 {
		t.Fatalf("expected no breaks, got %v", clock.slept)
	}
}

func TestBreakProbabilityConfigOverridesProfile(t *testing.T) {
	g, _ := newTestGovernor(t, Config{BreakProbability: 0.42})

	if g.profile.breakProbability != 0.42 {
		t.Fatalf("expected configured break probability, got %v", g.profile.breakProbability)
	}
}

func TestProfileDrawnWithinBounds(t *testing.T) {
	t.Parallel()

	for seed := int64(0); seed < 50; seed++ {
		p := newProfile(rand.New(rand.NewSource(seed)))

		if p.typingSpeed < 0.05 || p.typingSpeed > 0.15 {
			t.Fatalf("seed %d: typing speed out of bounds: %v", seed, p.typingSpeed)
		}
		if p.fatigueRate < 0.2 || p.fatigueRate > 0.4 {
			t.Fatalf("seed %d: fatigue rate out of bounds: %v", seed, p.fatigueRate)
		}
		if p.breakProbability < 0.05 || p.breakProbability > 0.15 {
			t.Fatalf("seed %d: break probability out of bounds: %v", seed, p.breakProbability)
		}
		if p.mousePrecision < 0.8 || p.mousePrecision > 0.95 {
			t.Fatalf("seed %d: mouse precision out of bounds: %v", seed, p.mousePrecision)
		}
	}
}

func TestFatigueFollowsProfileRate(t *testing.T) {
	g, clock := newTestGovernor(t, Config{})

	g.profile.fatigueRate = 0.5
	clock.now = clock.now.Add(time.Hour)
	if m := g.fatigueMultiplier(); m < 1.49 || m > 1.51 {
		t.Fatalf("expected multiplier near 1.5 after an hour, got %v", m)
	}

	clock.now = clock.now.Add(3 * time.Hour)
	if m := g.fatigueMultiplier(); m != 2 {
		t.Fatalf("expected multiplier capped at 2, got %v", m)
	}
}

func TestTypeDelayScalesWithLength(t *testing.T) {
	gShort, _ := newTestGovernor(t, Config{})
	gLong, clock := newTestGovernor(t, Config{})

	short, err := gShort.TypeDelay(context.Background(), 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	long, err := gLong.TypeDelay(context.Background(), 80)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if long <= short {
		t.Fatalf("expected longer delay for longer text: short=%v long=%v", short, long)
	}
	// 80 keystrokes at 0.1s each, halved to doubled per keystroke.
	if long < 4*time.Second || long > 30*time.Second {
		t.Fatalf("typing delay out of expected bounds: %v", long)
	}
	if len(clock.slept) != 1 || clock.slept[0] != long {
		t.Fatalf("expected blocking sleep equal to returned delay")
	}
}

func TestTypeDelayEmptyValue(t *testing.T) {
	g, clock := newTestGovernor(t, Config{})

	d, err := g.TypeDelay(context.Background(), 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d != 0 || len(clock.slept) != 0 {
		t.Fatalf("expected no delay for empty value, got %v", d)
	}
}

func TestRecordApplicationSmoothsAverage(t *testing.T) {
	g, _ := newTestGovernor(t, Config{})

	g.RecordApplication(100 * time.Second)
	g.RecordApplication(200 * time.Second)

	avg := g.Snapshot().AvgDurationSecs
	if avg < 109.9 || avg > 110.1 {
		t.Fatalf("expected smoothed average near 110, got %v", avg)
	}
}

func TestRecordApplicationPersistsEveryTenth(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)

	g, err := New(Config{}, store, nil, zap.NewNop())
	if err != nil {
		t.Fatalf("creating governor: %v", err)
	}
	clock := &fakeClock{now: time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC)}
	g.now = func() time.Time { return clock.now }
	g.sleep = clock.sleep

	for i := 0; i < 9; i++ {
		g.RecordApplication(time.Minute)
	}
	if _, err := store.Load(dateKey(clock.now)); err != nil {
		t.Fatalf("load: %v", err)
	}
	if state, _ := store.Load(dateKey(clock.now)); state.DailyCount != 0 {
		t.Fatalf("expected no flush before the tenth application, got %d", state.DailyCount)
	}

	g.RecordApplication(time.Minute)

	state, err := store.Load(dateKey(clock.now))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if state.DailyCount != 10 {
		t.Fatalf("expected persisted daily count 10, got %d", state.DailyCount)
	}
}

func TestSmartDelayStaysWithinBounds(t *testing.T) {
	g, clock := newTestGovernor(t, Config{})

	d, err := g.SmartDelay(context.Background(), "page_load", DelayContext{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Base 2-5s, daytime multiplier 1.0, no fatigue, optional hesitation
	// up to 3s, jitter within 10%.
	if d < 1800*time.Millisecond || d > 8800*time.Millisecond {
		t.Fatalf("delay out of expected bounds: %v", d)
	}
	if len(clock.slept) != 1 || clock.slept[0] != d {
		t.Fatalf("expected blocking sleep equal to returned delay")
	}
}

func TestSmartDelayScalesWithText(t *testing.T) {
	gShort, _ := newTestGovernor(t, Config{})
	gLong, _ := newTestGovernor(t, Config{})

	short, err := gShort.SmartDelay(context.Background(), "question_read", DelayContext{TextLength: 10})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	long, err := gLong.SmartDelay(context.Background(), "question_read", DelayContext{TextLength: 2000})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Both governors share a rand seed, so the only difference is the
	// reading-time term.
	if long <= short {
		t.Fatalf("expected longer delay for longer text: short=%v long=%v", short, long)
	}
}

func TestDetectChallenge(t *testing.T) {
	t.Parallel()

	g := &Governor{}

	cases := []struct {
		text   string
		expect bool
	}{
		{"Please complete this CAPTCHA to continue", true},
		{"We detected unusual activity from your account", true},
		{"Verify you are human before proceeding", true},
		{"Thanks for applying! We'll be in touch.", false},
		{"", false},
	}

	for _, tc := range cases {
		if got := g.DetectChallenge(tc.text); got != tc.expect {
			t.Fatalf("DetectChallenge(%q) = %v, want %v", tc.text, got, tc.expect)
		}
	}
}

type fakeCookieClearer struct {
	calls int
}

func (f *fakeCookieClearer) ClearCookies(context.Context) error {
	f.calls++
	return nil
}

func TestHandleDetectionResetsSessionOnly(t *testing.T) {
	g, clock := newTestGovernor(t, Config{})
	cookies := &fakeCookieClearer{}
	g.cookies = cookies

	g.state.DailyCount = 7
	g.sessionCount = 5
	g.actionsThisHour = 4

	if err := g.HandleDetection(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(clock.slept) != 1 || clock.slept[0] < 30*time.Minute || clock.slept[0] > 60*time.Minute {
		t.Fatalf("expected a 30-60 minute break, got %v", clock.slept)
	}
	if cookies.calls != 1 {
		t.Fatalf("expected cookies cleared once, got %d", cookies.calls)
	}
	if g.sessionCount != 0 || g.actionsThisHour != 0 {
		t.Fatalf("expected session counters reset")
	}
	if g.state.DailyCount != 7 {
		t.Fatalf("daily counter must survive detection, got %d", g.state.DailyCount)
	}
	if g.state.DetectionEvents != 1 {
		t.Fatalf("expected detection event recorded, got %d", g.state.DetectionEvents)
	}
}

func TestStoreDateRollover(t *testing.T) {
	store := NewStore(t.TempDir())

	if err := store.Save(&DailyState{
		Date:       "2025-03-09",
		DailyCount: 50,
		TotalCount: 160,
	}); err != nil {
		t.Fatalf("save: %v", err)
	}

	state, err := store.Load("2025-03-10")
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if state.DailyCount != 0 {
		t.Fatalf("expected daily count reset on rollover, got %d", state.DailyCount)
	}
	if state.TotalCount != 160 {
		t.Fatalf("expected total count to carry over, got %d", state.TotalCount)
	}
	if state.Date != "2025-03-10" {
		t.Fatalf("expected state date updated, got %s", state.Date)
	}
}
