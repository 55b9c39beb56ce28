// Package roundtable orchestrates discussions between multiple AI assistants.
//
// A user query is analyzed, a roster of assistants is selected, and the
// assistants take turns responding over several rounds while sharing a
// common context. Conflicting positions are resolved by weighted voting,
// and the final transcript is synthesized into a summary. Sessions can be
// persisted and exported.
//
// # Quick Start
//
//	reg := roundtable.NewRegistry(
//		subprocess.NewClaude(nil),
//		subprocess.NewCodex(nil),
//		httpsse.NewGLM(nil),
//	)
//	coord := roundtable.NewCoordinator(reg)
//
//	events := make(chan roundtable.Event, 64)
//	go func() {
//		for ev := range events {
//			fmt.Print(ev.Content)
//		}
//	}()
//	result, err := coord.Run(ctx, "design a rate limiter", events)
//
// # Core Interfaces
//
// The root package defines the contracts that all components implement:
//
//   - [Adapter]: one assistant backend (CLI subprocess or HTTP API)
//   - [History]: session persistence (store/sqlite, store/postgres)
//
// # Included Implementations
//
// Adapters: adapter/subprocess (claude, codex, gemini CLIs),
// adapter/httpsse (Anthropic-compatible SSE APIs, local Ollama).
// Storage: store/sqlite (local), store/postgres.
//
// See cmd/roundtable for a complete terminal front-end.
package roundtable
