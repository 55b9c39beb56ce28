// Command roundtable runs a multi-assistant discussion from the terminal.
//
// Usage:
//
//	roundtable "How should I structure a Go microservice?"
//	roundtable -history 10
//	roundtable -search "database"
//	roundtable -export md -session <id>
//	roundtable -health
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jwkim/roundtable"
	"github.com/jwkim/roundtable/adapter/httpsse"
	"github.com/jwkim/roundtable/adapter/subprocess"
	"github.com/jwkim/roundtable/export"
	"github.com/jwkim/roundtable/internal/config"
	"github.com/jwkim/roundtable/observer"
	"github.com/jwkim/roundtable/store/postgres"
	"github.com/jwkim/roundtable/store/sqlite"
)

func main() {
	var (
		configPath = flag.String("config", os.Getenv("ROUNDTABLE_CONFIG"), "config file path")
		historyN   = flag.Int("history", 0, "list the N most recent sessions and exit")
		searchQ    = flag.String("search", "", "search saved sessions and exit")
		sessionID  = flag.String("session", "", "session ID for -export")
		exportFmt  = flag.String("export", "", "export a session as md, json, or txt")
		statsFlag  = flag.Bool("stats", false, "print usage statistics and exit")
		health     = flag.Bool("health", false, "check adapter availability and exit")
		verbose    = flag.Bool("v", false, "verbose logging")
	)
	flag.Parse()

	cfg := config.Load(*configPath)

	logger := slog.New(slog.DiscardHandler)
	if *verbose {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	history, err := openHistory(ctx, cfg)
	if err != nil {
		log.Fatalf("open history: %v", err)
	}
	defer history.Close()

	switch {
	case *historyN > 0:
		listSessions(ctx, history, *historyN)
		return
	case *searchQ != "":
		searchSessions(ctx, history, *searchQ)
		return
	case *statsFlag:
		printStats(ctx, history)
		return
	case *exportFmt != "":
		exportSession(ctx, history, *sessionID, *exportFmt)
		return
	}

	var inst *observer.Instruments
	if cfg.Observer.Enabled {
		var shutdown func(context.Context) error
		var obsErr error
		inst, shutdown, obsErr = observer.Init(ctx, cfg.Observer.ServiceName)
		if obsErr != nil {
			fmt.Fprintf(os.Stderr, "observer init: %v\n", obsErr)
			inst = nil
		} else {
			defer func() {
				sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = shutdown(sctx)
			}()
		}
	}

	reg := buildRegistry(cfg, logger, inst)
	if *health {
		printHealth(ctx, reg)
		return
	}

	query := strings.TrimSpace(strings.Join(flag.Args(), " "))
	if query == "" {
		flag.Usage()
		os.Exit(2)
	}

	discussCfg := roundtable.DefaultDiscussionConfig()
	if cfg.Discussion.MaxRounds > 0 {
		discussCfg.MaxRounds = cfg.Discussion.MaxRounds
	}
	if cfg.Discussion.ConsensusThreshold > 0 {
		discussCfg.ConsensusThreshold = cfg.Discussion.ConsensusThreshold
	}
	if cfg.Discussion.TurnTimeoutSec > 0 {
		discussCfg.TurnTimeout = time.Duration(cfg.Discussion.TurnTimeoutSec) * time.Second
	}
	discussCfg.ConsensusCheck = cfg.Discussion.ConsensusCheck

	coord := roundtable.NewCoordinator(reg,
		roundtable.WithLogger(logger),
		roundtable.WithDiscussionConfig(discussCfg),
		roundtable.WithDecisionCallback(askUser),
		roundtable.WithApprovalCallback(askApproval),
	)

	events := make(chan roundtable.Event, 64)
	done := make(chan struct{})
	go func() {
		defer close(done)
		render(events)
	}()

	session, err := coord.Run(ctx, query, events)
	<-done
	if err != nil {
		log.Fatalf("discussion failed: %v", err)
	}

	if session != nil {
		if err := history.SaveSession(ctx, session); err != nil {
			fmt.Fprintf(os.Stderr, "save session: %v\n", err)
		} else {
			fmt.Printf("\nSession saved: %s\n", session.ID)
		}
	}
}

func openHistory(ctx context.Context, cfg config.Config) (roundtable.History, error) {
	if cfg.Database.Driver == "postgres" {
		pool, err := pgxpool.New(ctx, cfg.Database.PostgresURL)
		if err != nil {
			return nil, err
		}
		store := postgres.New(pool)
		if err := store.Init(ctx); err != nil {
			pool.Close()
			return nil, err
		}
		return store, nil
	}
	store := sqlite.New(cfg.Database.Path)
	if err := store.Init(ctx); err != nil {
		store.Close()
		return nil, err
	}
	return store, nil
}

func buildRegistry(cfg config.Config, logger *slog.Logger, inst *observer.Instruments) *roundtable.Registry {
	wrap := func(a roundtable.Adapter, retries int) roundtable.Adapter {
		a = roundtable.WithRetry(a,
			roundtable.RetryMaxAttempts(retries),
			roundtable.RetryLogger(logger),
		)
		a = roundtable.WithBreaker(a, roundtable.BreakerSettings{Logger: logger})
		if inst != nil {
			a = observer.WrapAdapter(a, inst)
		}
		return a
	}

	var adapters []roundtable.Adapter
	if c := cfg.Adapters.Claude; c.Enabled {
		adapters = append(adapters, wrap(subprocess.NewClaude(adapterConfig(c), subprocess.WithLogger(logger)), c.MaxRetries))
	}
	if c := cfg.Adapters.Codex; c.Enabled {
		adapters = append(adapters, wrap(subprocess.NewCodex(adapterConfig(c), subprocess.WithLogger(logger)), c.MaxRetries))
	}
	if c := cfg.Adapters.Gemini; c.Enabled {
		adapters = append(adapters, wrap(subprocess.NewGemini(adapterConfig(c), subprocess.WithLogger(logger)), c.MaxRetries))
	}
	if c := cfg.Adapters.GLM; c.Enabled {
		adapters = append(adapters, wrap(httpsse.NewGLM(adapterConfig(c), httpsse.WithGLMLogger(logger)), c.MaxRetries))
	}
	if c := cfg.Adapters.Ollama; c.Enabled {
		// Left unwrapped so the selector can derive per-model instances.
		adapters = append(adapters, httpsse.NewOllama(adapterConfig(c), httpsse.WithOllamaLogger(logger)))
	}

	return roundtable.NewRegistry(adapters, roundtable.RegistryLogger(logger))
}

func adapterConfig(c config.AdapterConfig) *roundtable.AdapterConfig {
	out := &roundtable.AdapterConfig{
		Timeout:    time.Duration(c.TimeoutSec) * time.Second,
		MaxTokens:  c.MaxTokens,
		Model:      c.Model,
		Endpoint:   c.Endpoint,
		MaxRetries: c.MaxRetries,
	}
	if c.APIKey != "" {
		out.Extra = map[string]string{"api_key": c.APIKey}
	}
	return out
}

// render prints the event stream to the terminal.
func render(events <-chan roundtable.Event) {
	for ev := range events {
		switch ev.Type {
		case roundtable.EventTaskAnalyzed:
			if ev.Task != nil {
				fmt.Printf("Task: %s (complexity %.0f%%)\n", ev.Task.Type, ev.Task.Complexity*100)
			}
		case roundtable.EventAIsSelected:
			if len(ev.Assistants) == 0 {
				fmt.Println(ev.Content)
				continue
			}
			fmt.Printf("Participants: %s\n\n", strings.Join(ev.Assistants, ", "))
		case roundtable.EventRoundStart:
			fmt.Printf("--- Round %d/%d ---\n", ev.Round, ev.MaxRounds)
		case roundtable.EventAIStart:
			fmt.Printf("\n%s %s:\n", ev.Icon, ev.Name)
		case roundtable.EventAIChunk:
			fmt.Print(ev.Content)
		case roundtable.EventAIEnd:
			fmt.Println()
		case roundtable.EventAIError:
			fmt.Printf("  [%s unavailable: %s]\n", ev.Name, ev.Err)
		case roundtable.EventConflictDetected:
			if ev.Conflict != nil {
				fmt.Printf("\n! Disagreement on %s (severity %s)\n", ev.Conflict.Topic, ev.Conflict.Severity)
			}
		case roundtable.EventConflictResolved:
			if ev.Resolution != nil {
				fmt.Printf("  Resolved: %s\n", ev.Resolution.Explanation)
			}
		case roundtable.EventConsensusReached:
			fmt.Printf("\nConsensus reached in round %d.\n", ev.Round)
		case roundtable.EventApprovalResult:
			if ev.Action != nil {
				fmt.Printf("  [%s] %s -> %s\n", ev.Importance, ev.Action.Description, ev.Approval)
			}
		case roundtable.EventResult:
			if ev.Synthesis != nil {
				fmt.Printf("\n=== Result ===\n%s\n", ev.Synthesis.Summary)
			}
		}
	}
}

// askUser resolves a close-vote conflict by prompting on the terminal.
func askUser(ctx context.Context, c *roundtable.Conflict, r *roundtable.Resolution) (string, error) {
	fmt.Printf("\nThe vote on %q is too close to call:\n", c.Topic)
	for i, opt := range r.Options {
		fmt.Printf("  %d) %s\n", i+1, opt)
	}
	fmt.Print("Pick an option number, or press Enter to continue the discussion: ")

	sc := bufio.NewScanner(os.Stdin)
	if !sc.Scan() {
		return "more", nil
	}
	choice := strings.TrimSpace(sc.Text())
	switch choice {
	case "1":
		return r.Options[0], nil
	case "2":
		if len(r.Options) > 1 {
			return r.Options[1], nil
		}
	}
	return "more", nil
}

// askApproval rules on a proposed action by prompting on the terminal.
func askApproval(ctx context.Context, a *roundtable.Action, level roundtable.ImportanceLevel) (roundtable.ApprovalStatus, error) {
	fmt.Printf("\nProposed action (%s): %s\n", level, a.Description)
	fmt.Print("Approve? [y/N]: ")

	sc := bufio.NewScanner(os.Stdin)
	if sc.Scan() && strings.EqualFold(strings.TrimSpace(sc.Text()), "y") {
		return roundtable.StatusApproved, nil
	}
	return roundtable.StatusRejected, nil
}

func listSessions(ctx context.Context, h roundtable.History, n int) {
	sessions, err := h.Recent(ctx, n, 0)
	if err != nil {
		log.Fatalf("history: %v", err)
	}
	for _, s := range sessions {
		fmt.Printf("%s  %-12s %-10s %s\n", s.ID, s.TaskType, s.Status, roundtable.Truncate(s.UserQuery, 60))
	}
}

func searchSessions(ctx context.Context, h roundtable.History, query string) {
	sessions, err := h.Search(ctx, query, 20)
	if err != nil {
		log.Fatalf("search: %v", err)
	}
	for _, s := range sessions {
		fmt.Printf("%s  %s\n", s.ID, roundtable.Truncate(s.UserQuery, 70))
	}
}

func printStats(ctx context.Context, h roundtable.History) {
	stats, err := h.Stats(ctx)
	if err != nil {
		log.Fatalf("stats: %v", err)
	}
	fmt.Printf("Sessions: %d\nMessages: %d\n", stats.TotalSessions, stats.TotalMessages)
	for status, count := range stats.ByStatus {
		fmt.Printf("  %s: %d\n", status, count)
	}
	fmt.Println("AI usage:")
	for name, count := range stats.AIUsage {
		fmt.Printf("  %s: %d\n", name, count)
	}
}

func exportSession(ctx context.Context, h roundtable.History, id, format string) {
	if id == "" {
		log.Fatal("-export requires -session")
	}
	session, err := h.GetSession(ctx, id)
	if err != nil {
		log.Fatalf("get session: %v", err)
	}
	out, err := export.Render(session, export.Format(format))
	if err != nil {
		log.Fatal(err)
	}
	fmt.Print(out)
}

func printHealth(ctx context.Context, reg *roundtable.Registry) {
	for _, r := range reg.CheckAll(ctx) {
		mark := "✗"
		if r.Available {
			mark = "✓"
		}
		line := fmt.Sprintf("%s %-10s %s", mark, r.DisplayName, r.Version)
		if r.Error != "" {
			line += "  (" + r.Error + ")"
		}
		fmt.Println(strings.TrimRight(line, " "))
	}
}
