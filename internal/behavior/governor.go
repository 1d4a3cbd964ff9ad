// Package behavior paces externally visible actions so submission timing
// resembles a human operator, and enforces application-rate ceilings with
// counters that survive process restarts.
package behavior

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/applyflow/applyflow/internal/browser"
	"github.com/applyflow/applyflow/internal/utils"
)

// Config carries the governor ceilings. Zero values fall back to defaults.
// A negative BreakProbability disables random breaks entirely; zero leaves
// the per-session profile value in effect.
type Config struct {
	DailyLimit       int     `mapstructure:"daily-limit"`
	HourlyLimit      int     `mapstructure:"hourly-limit"`
	SessionLimit     int     `mapstructure:"session-limit"`
	BreakProbability float64 `mapstructure:"break-probability"`
	StateDir         string  `mapstructure:"state-dir"`
}

const (
	defaultDailyLimit   = 100
	defaultHourlyLimit  = 15
	defaultSessionLimit = 50

	persistEvery = 10
)

// profile holds the pacing traits drawn once per session. Consecutive
// sessions get distinct profiles so their timing signatures differ.
type profile struct {
	typingSpeed      float64 // seconds per keystroke
	fatigueRate      float64 // delay growth per session hour
	breakProbability float64 // chance of an unprompted break per application
	mousePrecision   float64 // 0..1; lower means more re-aiming before clicks
}

func newProfile(r *rand.Rand) profile {
	typing := delayRanges["typing"]
	return profile{
		typingSpeed:      typing.min + r.Float64()*(typing.max-typing.min),
		fatigueRate:      0.2 + r.Float64()*0.2,
		breakProbability: 0.05 + r.Float64()*0.1,
		mousePrecision:   0.8 + r.Float64()*0.15,
	}
}

// DelayContext scales a delay by the work the simulated human would do.
type DelayContext struct {
	TextLength int
	Complexity float64 // 0..1
}

type delayRange struct {
	min, max float64 // seconds
}

var delayRanges = map[string]delayRange{
	"page_load":       {2, 5},
	"question_read":   {1, 4},
	"question_answer": {2, 8},
	"typing":          {0.05, 0.15},
	"form_submit":     {3, 12},
	"job_click":       {1, 5},
	"button_click":    {0.5, 2},
}

var defaultDelayRange = delayRange{1, 3}

var challengePhrases = []string{
	"unusual activity",
	"verify you are human",
	"verify you're human",
	"are you a robot",
	"prove you are not a robot",
	"automated behavior",
	"automated activity",
	"captcha",
	"security check",
	"security verification",
	"suspicious activity",
	"too many requests",
	"access to this page has been denied",
}

// Governor is the rate-and-timing oracle consulted before and after every
// externally visible action. Single-threaded; all waits block the caller.
type Governor struct {
	cfg     Config
	store   *Store
	cookies browser.CookieClearer
	logger  *zap.Logger

	// Injectable for tests.
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
	rand  *rand.Rand

	profile profile
	state   *DailyState

	sessionStart    time.Time
	lastApplication time.Time
	hourWindowStart time.Time
	actionsThisHour int
	sessionCount    int
	sinceFlush      int
}

// New loads persisted counters and starts a fresh session window. The
// cookie clearer may be nil; detection handling then skips cookie reset.
func New(cfg Config, store *Store, cookies browser.CookieClearer, log *zap.Logger) (*Governor, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.DailyLimit <= 0 {
		cfg.DailyLimit = defaultDailyLimit
	}
	if cfg.HourlyLimit <= 0 {
		cfg.HourlyLimit = defaultHourlyLimit
	}
	if cfg.SessionLimit <= 0 {
		cfg.SessionLimit = defaultSessionLimit
	}

	g := &Governor{
		cfg:     cfg,
		store:   store,
		cookies: cookies,
		logger:  log,
		now:     time.Now,
		sleep:   utils.WaitFor,
		rand:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}

	g.profile = newProfile(g.rand)
	switch {
	case cfg.BreakProbability < 0:
		g.profile.breakProbability = 0
	case cfg.BreakProbability > 0:
		g.profile.breakProbability = cfg.BreakProbability
	}

	now := g.now()
	g.sessionStart = now
	g.hourWindowStart = now

	state, err := store.Load(dateKey(now))
	if err != nil {
		return nil, err
	}
	g.state = state

	return g, nil
}

func dateKey(t time.Time) string {
	return t.Format("2006-01-02")
}

// SmartDelay blocks for a human-like interval derived from the action kind
// and context, and returns the elapsed duration.
func (g *Governor) SmartDelay(ctx context.Context, action string, dctx DelayContext) (time.Duration, error) {
	r, ok := delayRanges[action]
	if !ok {
		r = defaultDelayRange
	}

	seconds := r.min + g.rand.Float64()*(r.max-r.min)

	// Reading time for longer question or page text.
	if dctx.TextLength > 0 {
		chars := dctx.TextLength
		if chars > 2000 {
			chars = 2000
		}
		seconds += float64(chars) / 400
	}

	complexity := dctx.Complexity
	if complexity < 0 {
		complexity = 0
	}
	if complexity > 1 {
		complexity = 1
	}
	seconds *= 1 + 0.5*complexity

	seconds *= g.timeOfDayMultiplier()
	seconds *= g.fatigueMultiplier()

	// A less precise pointer hand spends extra time re-aiming.
	if action == "button_click" || action == "job_click" {
		seconds *= 2 - g.profile.mousePrecision
	}

	// Occasional hesitation before acting.
	if g.rand.Float64() < 0.1 {
		seconds += 1 + g.rand.Float64()*2
	}

	// Jitter within ±10%.
	seconds *= 0.9 + g.rand.Float64()*0.2

	d := time.Duration(seconds * float64(time.Second))
	if err := g.sleep(ctx, d); err != nil {
		return 0, err
	}

	g.logger.Debug("paced action",
		zap.String("action", action),
		zap.Duration("delay", d),
	)
	return d, nil
}

// Humans slow down at night and around lunch.
func (g *Governor) timeOfDayMultiplier() float64 {
	hour := g.now().Hour()
	switch {
	case hour < 6 || hour >= 23:
		return 1.5 + g.rand.Float64()*0.5
	case hour >= 12 && hour < 14:
		return 1.2 + g.rand.Float64()*0.2
	default:
		return 1.0
	}
}

// Fatigue grows linearly with session time at the profile's rate, capped
// at 2x.
func (g *Governor) fatigueMultiplier() float64 {
	elapsed := g.now().Sub(g.sessionStart).Hours()
	m := 1 + elapsed*g.profile.fatigueRate
	if m > 2 {
		m = 2
	}
	return m
}

// TypeDelay blocks for the time a human would need to key in a value of
// the given length, keystroke by keystroke, and returns the elapsed
// duration.
func (g *Governor) TypeDelay(ctx context.Context, chars int) (time.Duration, error) {
	if chars <= 0 {
		return 0, nil
	}

	seconds := 0.0
	for i := 0; i < chars; i++ {
		seconds += g.profile.typingSpeed * (0.5 + g.rand.Float64())
		// Occasional mid-value pause, as if re-reading the question.
		if g.rand.Float64() < 0.03 {
			seconds += 0.3 + g.rand.Float64()*0.7
		}
	}

	d := time.Duration(seconds * float64(time.Second))
	if err := g.sleep(ctx, d); err != nil {
		return 0, err
	}

	g.logger.Debug("paced typing",
		zap.Int("chars", chars),
		zap.Duration("delay", d),
	)
	return d, nil
}

// CheckRateLimits reports whether another application may proceed. A false
// return means the relevant ceiling holds for the rest of the day or
// session; temporary ceilings are waited out inside the call.
func (g *Governor) CheckRateLimits(ctx context.Context) (bool, error) {
	now := g.now()

	// Date rollover resets the daily counter.
	if g.state.Date != dateKey(now) {
		g.state.Date = dateKey(now)
		g.state.DailyCount = 0
	}

	if g.state.DailyCount >= g.cfg.DailyLimit {
		g.logger.Warn("daily application ceiling reached",
			zap.Int("daily_count", g.state.DailyCount),
			zap.Int("limit", g.cfg.DailyLimit),
		)
		return false, nil
	}

	if now.Sub(g.hourWindowStart) >= time.Hour {
		g.hourWindowStart = now
		g.actionsThisHour = 0
	}

	if g.actionsThisHour >= g.cfg.HourlyLimit {
		pause := time.Duration(5+g.rand.Intn(6)) * time.Minute
		g.logger.Info("hourly ceiling reached, taking a break",
			zap.Duration("break", pause),
		)
		if err := g.sleep(ctx, pause); err != nil {
			return false, err
		}
		g.hourWindowStart = g.now()
		g.actionsThisHour = 0
	}

	if g.sessionCount >= g.cfg.SessionLimit {
		g.logger.Warn("session application ceiling reached",
			zap.Int("session_count", g.sessionCount),
			zap.Int("limit", g.cfg.SessionLimit),
		)
		return false, nil
	}

	// Hold a minimum gap between applications.
	if !g.lastApplication.IsZero() {
		gap := time.Duration(180+g.rand.Intn(181)) * time.Second
		elapsed := now.Sub(g.lastApplication)
		if elapsed < gap {
			wait := gap - elapsed
			g.logger.Info("waiting out inter-application interval",
				zap.Duration("wait", wait),
			)
			if err := g.sleep(ctx, wait); err != nil {
				return false, err
			}
		}
	}

	// An occasional break independent of the ceilings breaks up periodic
	// timing patterns.
	if g.profile.breakProbability > 0 && g.rand.Float64() < g.profile.breakProbability {
		pause := time.Duration(2+g.rand.Intn(4)) * time.Minute
		g.logger.Info("taking a random break", zap.Duration("break", pause))
		if err := g.sleep(ctx, pause); err != nil {
			return false, err
		}
	}

	return true, nil
}

// RecordApplication updates all counters after a submitted application and
// persists the daily state every tenth application.
func (g *Governor) RecordApplication(duration time.Duration) {
	g.state.DailyCount++
	g.state.TotalCount++
	g.sessionCount++
	g.actionsThisHour++
	g.lastApplication = g.now()

	secs := duration.Seconds()
	if g.state.AvgDurationSecs == 0 {
		g.state.AvgDurationSecs = secs
	} else {
		g.state.AvgDurationSecs = g.state.AvgDurationSecs*0.9 + secs*0.1
	}

	g.sinceFlush++
	if g.sinceFlush >= persistEvery {
		g.sinceFlush = 0
		if err := g.store.Save(g.state); err != nil {
			g.logger.Warn("persisting behavior counters failed", zap.Error(err))
		}
	}
}

// DetectChallenge reports whether the page text contains an
// anti-automation challenge phrase.
func (g *Governor) DetectChallenge(pageText string) bool {
	text := strings.ToLower(pageText)
	for _, phrase := range challengePhrases {
		if strings.Contains(text, phrase) {
			return true
		}
	}
	return false
}

// HandleDetection backs off after an anti-automation challenge: a long
// break, fresh cookies, and reset session counters. Daily counters are
// untouched.
func (g *Governor) HandleDetection(ctx context.Context) error {
	g.state.DetectionEvents++

	pause := time.Duration(30+g.rand.Intn(31)) * time.Minute
	g.logger.Warn("anti-automation challenge detected, backing off",
		zap.Duration("break", pause),
	)

	if err := g.sleep(ctx, pause); err != nil {
		return err
	}

	if g.cookies != nil {
		if err := g.cookies.ClearCookies(ctx); err != nil {
			g.logger.Warn("clearing cookies failed", zap.Error(err))
		}
	}

	now := g.now()
	g.sessionStart = now
	g.hourWindowStart = now
	g.sessionCount = 0
	g.actionsThisHour = 0

	if err := g.store.Save(g.state); err != nil {
		return fmt.Errorf("persisting state after detection: %w", err)
	}
	return nil
}

// Flush persists the counters; called on shutdown.
func (g *Governor) Flush() error {
	return g.store.Save(g.state)
}

// Snapshot returns the current counters for the end-of-run summary.
func (g *Governor) Snapshot() DailyState {
	state := *g.state
	return state
}

// SessionCount returns applications submitted this session.
func (g *Governor) SessionCount() int {
	return g.sessionCount
}
