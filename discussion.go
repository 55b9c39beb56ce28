package roundtable

import (
	"context"
	"log/slog"
	"strings"
	"time"
)

// DiscussionConfig tunes the round loop.
type DiscussionConfig struct {
	MaxRounds          int           // hard cap on rounds (default 5)
	ConsensusThreshold float64       // agreement fraction that ends early (default 0.7)
	TurnTimeout        time.Duration // per-assistant turn budget (default 60s)
	ConsensusCheck     bool          // probe for consensus from round 2
	MinResponseLength  int           // responses shorter than this are logged as weak
}

// DefaultDiscussionConfig returns the standard tuning.
func DefaultDiscussionConfig() DiscussionConfig {
	return DiscussionConfig{
		MaxRounds:          5,
		ConsensusThreshold: 0.7,
		TurnTimeout:        60 * time.Second,
		ConsensusCheck:     true,
		MinResponseLength:  50,
	}
}

// agreementPhrases mark a message as building on another's position.
var agreementPhrases = []string{
	"agree", "동의", "맞습니다", "correct", "좋은 의견",
	"good point", "build on", "추가하면", "덧붙이면", "adding to",
}

// DiscussionEngine runs the round loop: each round every assistant takes
// one sequential turn against the shared context. A failed turn is skipped,
// not fatal. AfterRound, when set, runs after each round-end event (the
// coordinator uses it to inject conflict detection).
type DiscussionEngine struct {
	Config     DiscussionConfig
	Logger     *slog.Logger
	AfterRound func(round int, emit func(Event) error) error
}

// NewDiscussionEngine creates an engine with the given config. A nil
// logger discards output.
func NewDiscussionEngine(cfg DiscussionConfig, logger *slog.Logger) *DiscussionEngine {
	if logger == nil {
		logger = nopLogger
	}
	return &DiscussionEngine{Config: cfg, Logger: logger}
}

// Run drives the discussion over the given roster, emitting events as it
// goes. Returns the number of rounds run and whether consensus was
// reached. The only error returned is context cancellation.
func (e *DiscussionEngine) Run(ctx context.Context, adapters []Adapter, sctx *SharedContext, task Task, emit func(Event) error) (int, bool, error) {
	rounds := task.SuggestedRounds
	if rounds <= 0 || rounds > e.Config.MaxRounds {
		rounds = e.Config.MaxRounds
	}

	totalRounds := 0
	for round := 1; round <= rounds; round++ {
		totalRounds = round
		if err := emit(Event{Type: EventRoundStart, Round: round, MaxRounds: rounds}); err != nil {
			return totalRounds, false, err
		}

		for _, a := range adapters {
			if err := e.turn(ctx, a, sctx, round, emit); err != nil {
				return totalRounds, false, err
			}
		}

		if err := emit(Event{Type: EventRoundEnd, Round: round}); err != nil {
			return totalRounds, false, err
		}
		if e.AfterRound != nil {
			if err := e.AfterRound(round, emit); err != nil {
				return totalRounds, false, err
			}
		}

		if round > 1 && e.Config.ConsensusCheck {
			reached := e.checkConsensus(sctx)
			if err := emit(Event{Type: EventConsensusCheck, Round: round, Reached: reached}); err != nil {
				return totalRounds, false, err
			}
			if reached {
				sctx.ConsensusReached = true
				break
			}
		}
	}

	if err := emit(Event{Type: EventDiscussionComplete, Round: totalRounds, Reached: sctx.ConsensusReached}); err != nil {
		return totalRounds, sctx.ConsensusReached, err
	}
	return totalRounds, sctx.ConsensusReached, nil
}

// turn runs one assistant's turn: stream the response, record it, and on
// failure emit ai-error and move on.
func (e *DiscussionEngine) turn(ctx context.Context, a Adapter, sctx *SharedContext, round int, emit func(Event) error) error {
	name := a.DisplayName()
	if err := emit(Event{Type: EventAIStart, Name: name, Icon: a.Icon(), Color: a.Color(), Round: round}); err != nil {
		return err
	}

	turnCtx := ctx
	var cancel context.CancelFunc
	if e.Config.TurnTimeout > 0 {
		turnCtx, cancel = context.WithTimeout(ctx, e.Config.TurnTimeout)
		defer cancel()
	}

	start := time.Now()
	prompt := sctx.BuildPrompt(name, round)

	ch := make(chan string, 64)
	var sendErr error
	done := make(chan struct{})
	go func() {
		defer close(done)
		sendErr = a.Send(turnCtx, prompt, ch)
	}()

	var full strings.Builder
	for chunk := range ch {
		full.WriteString(chunk)
		if err := emit(Event{Type: EventAIChunk, Name: name, Content: chunk, Round: round}); err != nil {
			// Drain so the producer can close the channel.
			for range ch {
			}
			<-done
			return err
		}
	}
	<-done

	if sendErr != nil {
		// Parent cancellation ends the discussion; a turn timeout only
		// ends the turn.
		if ctx.Err() != nil {
			return ctx.Err()
		}
		e.Logger.Error("turn failed", "assistant", name, "round", round, "kind", KindOf(sendErr), "error", sendErr, "duration", time.Since(start))
		return emit(Event{Type: EventAIError, Name: name, Round: round, Err: FormatUserError(sendErr, name)})
	}

	response := full.String()
	if len(response) < e.Config.MinResponseLength {
		e.Logger.Warn("short response", "assistant", name, "round", round, "length", len(response))
	}
	sctx.AddMessage(name, response, round)
	e.Logger.Debug("turn complete", "assistant", name, "round", round, "length", len(response), "duration", time.Since(start))
	return emit(Event{Type: EventAIEnd, Name: name, Content: response, Round: round})
}

// checkConsensus measures how many of the last few messages contain
// agreement phrasing. Fewer than two messages can never agree.
func (e *DiscussionEngine) checkConsensus(sctx *SharedContext) bool {
	msgs := sctx.Messages()
	n := len(msgs)
	if n > 4 {
		msgs = msgs[n-4:]
	}
	if len(msgs) < 2 {
		return false
	}
	agreeing := 0
	for _, m := range msgs {
		content := strings.ToLower(m.Content)
		for _, phrase := range agreementPhrases {
			if strings.Contains(content, phrase) {
				agreeing++
				break
			}
		}
	}
	return float64(agreeing)/float64(len(msgs)) >= e.Config.ConsensusThreshold
}
