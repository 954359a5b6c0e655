package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/l1jgo/rewind/internal/component"
	"github.com/l1jgo/rewind/internal/config"
	"github.com/l1jgo/rewind/internal/core/ecs"
	"github.com/l1jgo/rewind/internal/core/event"
	"github.com/l1jgo/rewind/internal/data"
	"github.com/l1jgo/rewind/internal/persist"
	"github.com/l1jgo/rewind/internal/scripting"
	"github.com/l1jgo/rewind/internal/sim"
	"github.com/l1jgo/rewind/internal/system"
	"github.com/pkg/profile"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// ── Startup display helpers ────────────────────────────────────────

func printBanner() {
	fmt.Println()
	fmt.Println("\033[36;1m  ┌───────────────────────────────────────────┐\033[0m")
	fmt.Println("\033[36;1m  │\033[0m              rewind  v0.1.0               \033[36;1m│\033[0m")
	fmt.Println("\033[36;1m  │\033[0m    rollback ECS · wavefront scheduler     \033[36;1m│\033[0m")
	fmt.Println("\033[36;1m  └───────────────────────────────────────────┘\033[0m")
	fmt.Println()
}

func printSection(title string) {
	lineLen := max(46-len(title)-1, 3)
	fmt.Printf("  \033[33m── %s %s\033[0m\n", title, strings.Repeat("─", lineLen))
}

var statPrinter = message.NewPrinter(language.English)

func printStat(label string, value any) {
	s := statPrinter.Sprintf("%v", value)
	dotsLen := max(42-len(label)-len(s), 3)
	fmt.Printf("  %s \033[90m%s\033[0m \033[32m%s\033[0m\n", label, strings.Repeat("·", dotsLen), s)
}

func printOK(msg string) {
	fmt.Printf("  \033[32m✓\033[0m %s\n", msg)
}

func printReady(msg string) {
	fmt.Printf("  \033[32m▶\033[0m %s\n", msg)
}

// ── Simulation ─────────────────────────────────────────────────────

func run() error {
	cfgPath := "config/rewind.toml"
	if p := os.Getenv("REWIND_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := newLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	if stop := startProfile(cfg.Profiling); stop != nil {
		defer stop()
	}

	printBanner()

	printSection("Data")
	scenario, err := data.LoadScenario(cfg.Simulation.Scenario)
	if err != nil {
		return fmt.Errorf("load scenario: %w", err)
	}
	printStat("Entities", scenario.Count())
	printStat("Inputs", len(scenario.Inputs()))
	printStat("Corrections", len(scenario.Corrections()))

	var journal *journalSink
	if cfg.Database.DSN != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		db, err := persist.Open(ctx, cfg.Database, log.Named("db"))
		if err != nil {
			cancel()
			return fmt.Errorf("database: %w", err)
		}
		defer db.Close()
		printOK("PostgreSQL connected")

		if _, err := db.Migrate(ctx); err != nil {
			cancel()
			return fmt.Errorf("migrations: %w", err)
		}
		repo := persist.NewJournalRepo(db)
		runID, err := repo.StartRun(ctx, cfg.Simulation.Scenario, cfg.World.RetentionTicks)
		cancel()
		if err != nil {
			return fmt.Errorf("journal: %w", err)
		}
		journal = &journalSink{
			repo:     repo,
			journal:  persist.NewJournal(repo, runID, cfg.Database.JournalBatch, log.Named("journal")),
			scenario: cfg.Simulation.Scenario,
		}
		printStat("Journal run", runID)
	}

	var fallback system.InputSource
	if cfg.Simulation.Script != "" {
		engine, err := scripting.NewEngine(cfg.Simulation.Script, log.Named("lua"))
		if err != nil {
			return fmt.Errorf("scripting: %w", err)
		}
		defer engine.Close()
		fallback = engine
		printOK("Lua input script loaded")
	}
	fmt.Println()

	session, err := sim.New(sim.Config{
		Retention:  cfg.World.RetentionTicks,
		Workers:    cfg.Scheduler.Workers,
		Sequential: cfg.Scheduler.Sequential,
		Fallback:   fallback,
	}, log)
	if err != nil {
		return fmt.Errorf("build session: %w", err)
	}

	event.Subscribe(session.Events(), func(e sim.Despawned) {
		log.Info("entity despawned", zap.Uint32("entity", uint32(e.ID.Entity())), zap.Uint32("tick", uint32(e.Tick)))
	})
	event.Subscribe(session.Events(), func(e sim.Resimulated) {
		log.Debug("history rewritten", zap.Uint32("from", uint32(e.From)), zap.Uint32("to", uint32(e.To)))
	})

	ids := spawnScenario(session, scenario)
	for _, in := range scenario.Inputs() {
		session.Inputs().Record(toInput(in, scenario, ids))
	}

	printSection("Schedule")
	for l, names := range session.Plan().Layers() {
		printStat(fmt.Sprintf("Layer %d", l), strings.Join(names, ", "))
	}
	printStat("Retention (ticks)", cfg.World.RetentionTicks)
	fmt.Println()

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	var tickCh <-chan time.Time
	if cfg.Simulation.TickRate > 0 {
		ticker := time.NewTicker(cfg.Simulation.TickRate)
		defer ticker.Stop()
		tickCh = ticker.C
	}

	printSection("Running")
	printReady(fmt.Sprintf("%d ticks (tick: %s)", cfg.Simulation.Ticks, cfg.Simulation.TickRate))
	fmt.Println()

	r := &scenarioRunner{session: session, scenario: scenario, ids: ids, journal: journal, log: log}
	for int(session.Tick()) < cfg.Simulation.Ticks {
		if tickCh != nil {
			select {
			case <-tickCh:
			case sig := <-shutdownCh:
				log.Info("shutdown signal received", zap.String("signal", sig.String()))
				return r.finish()
			}
		}
		if err := r.step(); err != nil {
			return err
		}
	}
	return r.finish()
}

type scenarioRunner struct {
	session  *sim.Session
	scenario *data.Scenario
	ids      []ecs.EntityID
	journal  *journalSink
	log      *zap.Logger

	nextDespawn    int
	nextCorrection int
}

func (r *scenarioRunner) step() error {
	despawns := r.scenario.Despawns()
	next := uint32(r.session.Tick()) + 1
	for ; r.nextDespawn < len(despawns) && despawns[r.nextDespawn].Tick <= next; r.nextDespawn++ {
		i, _ := r.scenario.Index(despawns[r.nextDespawn].Entity)
		r.session.Despawn(r.ids[i])
	}

	if err := r.session.Step(); err != nil {
		return err
	}
	tick := r.session.Tick()

	corrections := r.scenario.Corrections()
	for ; r.nextCorrection < len(corrections) && corrections[r.nextCorrection].At <= uint32(tick); r.nextCorrection++ {
		c := corrections[r.nextCorrection]
		before, err := r.session.Checksum()
		if err != nil {
			return err
		}
		inputs := make([]sim.Input, 0, len(c.Inputs))
		for _, in := range c.Inputs {
			inputs = append(inputs, toInput(in, r.scenario, r.ids))
		}
		if err := r.session.Resimulate(ecs.Tick(c.RollbackTo), inputs...); err != nil {
			var rerr *ecs.RangeError
			if errors.As(err, &rerr) {
				r.log.Warn("correction outside retained history",
					zap.Uint32("at", c.At), zap.Uint32("rollback_to", c.RollbackTo), zap.Error(err))
				continue
			}
			return err
		}
		after, err := r.session.Checksum()
		if err != nil {
			return err
		}
		if r.journal != nil {
			entry := persist.CorrectionEntry{
				At:         tick,
				RollbackTo: ecs.Tick(c.RollbackTo),
				Inputs:     len(inputs),
				Before:     before,
				After:      after,
			}
			if err := r.journal.repo.WriteCorrection(context.Background(), r.journal.journal.Run(), entry); err != nil {
				return err
			}
		}
		r.log.Info("correction applied",
			zap.Uint32("tick", uint32(tick)),
			zap.Uint32("rollback_to", c.RollbackTo),
			zap.Stringer("before", before),
			zap.Stringer("after", after))
	}

	if r.journal == nil && tick%60 != 0 {
		return nil
	}
	sum, err := r.session.Checksum()
	if err != nil {
		return err
	}
	if r.journal != nil {
		if err := r.journal.journal.Record(context.Background(), tick, sum); err != nil {
			return fmt.Errorf("journal tick %d: %w", tick, err)
		}
	}
	if tick%60 == 0 {
		r.log.Info("tick", zap.Uint32("tick", uint32(tick)), zap.Stringer("checksum", sum))
	}
	return nil
}

func (r *scenarioRunner) finish() error {
	if err := r.session.World().Verify(); err != nil {
		return fmt.Errorf("world invariants: %w", err)
	}
	sum, err := r.session.Checksum()
	if err != nil {
		return err
	}

	printSection("Result")
	for i, spawn := range r.scenario.Entities() {
		e := r.ids[i].Entity()
		p, ok := r.session.Position(e)
		if !ok {
			printStat(spawn.Name, "destroyed")
			continue
		}
		o, _ := r.session.Odometer(e)
		printStat(spawn.Name, fmt.Sprintf("(%.2f, %.2f) travelled %.2f", p.X, p.Y, o.Distance))
	}
	printStat("Final tick", r.session.Tick())
	printStat("Checksum", sum)
	if r.journal != nil {
		if err := r.journal.finish(r.session.Tick(), sum, r.log); err != nil {
			return err
		}
	}
	fmt.Println()
	r.log.Info("simulation finished", zap.Uint32("tick", uint32(r.session.Tick())))
	return nil
}

// journalSink records checksums of a run and compares the finished run
// against the previous run of the same scenario.
type journalSink struct {
	repo     *persist.JournalRepo
	journal  *persist.Journal
	scenario string
}

func (j *journalSink) finish(tick ecs.Tick, sum ecs.Digest, log *zap.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := j.journal.Flush(ctx); err != nil {
		return fmt.Errorf("journal flush: %w", err)
	}
	run := j.journal.Run()
	if err := j.repo.FinishRun(ctx, run, tick, sum); err != nil {
		return err
	}
	prev, ok, err := j.repo.PreviousRun(ctx, j.scenario, run)
	if err != nil || !ok {
		return err
	}
	at, diverged, err := j.repo.FirstDivergence(ctx, prev, run)
	if err != nil {
		return err
	}
	if diverged {
		printStat("Desync vs run "+fmt.Sprint(prev), fmt.Sprintf("tick %d", at))
		log.Warn("run diverged from previous run",
			zap.Int64("run", run), zap.Int64("previous", prev), zap.Uint32("tick", uint32(at)))
		return nil
	}
	printStat("Matches run", prev)
	return nil
}

func spawnScenario(s *sim.Session, scenario *data.Scenario) []ecs.EntityID {
	ids := make([]ecs.EntityID, 0, scenario.Count())
	for _, e := range scenario.Entities() {
		ids = append(ids, s.Spawn(
			component.Position{X: e.Position.X, Y: e.Position.Y},
			component.Velocity{X: e.Velocity.X, Y: e.Velocity.Y},
			e.Frozen,
		))
	}
	return ids
}

func toInput(in data.InputEntry, scenario *data.Scenario, ids []ecs.EntityID) sim.Input {
	i, _ := scenario.Index(in.Entity)
	return sim.Input{
		Tick:     ecs.Tick(in.Tick),
		Entity:   ids[i].Entity(),
		Velocity: component.Velocity{X: in.Velocity.X, Y: in.Velocity.Y},
	}
}

func startProfile(cfg config.ProfilingConfig) func() {
	var mode func(*profile.Profile)
	switch cfg.Mode {
	case "cpu":
		mode = profile.CPUProfile
	case "mem":
		mode = profile.MemProfile
	case "goroutine":
		mode = profile.GoroutineProfile
	default:
		return nil
	}
	return profile.Start(mode, profile.ProfilePath(cfg.Path), profile.NoShutdownHook).Stop
}

func newLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		zapCfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
		zapCfg.EncoderConfig.ConsoleSeparator = "  "
		zapCfg.DisableCaller = true
		zapCfg.DisableStacktrace = true
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	return zapCfg.Build()
}
