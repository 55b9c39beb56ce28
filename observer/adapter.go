package observer

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/jwkim/roundtable"
)

// ObservedAdapter wraps a roundtable.Adapter with OTEL instrumentation.
type ObservedAdapter struct {
	inner roundtable.Adapter
	inst  *Instruments
}

var _ roundtable.Adapter = (*ObservedAdapter)(nil)

// WrapAdapter returns an instrumented adapter that emits a span and
// metrics per Send.
func WrapAdapter(inner roundtable.Adapter, inst *Instruments) *ObservedAdapter {
	return &ObservedAdapter{inner: inner, inst: inst}
}

func (o *ObservedAdapter) Name() string        { return o.inner.Name() }
func (o *ObservedAdapter) DisplayName() string { return o.inner.DisplayName() }
func (o *ObservedAdapter) Icon() string        { return o.inner.Icon() }
func (o *ObservedAdapter) Color() string       { return o.inner.Color() }

func (o *ObservedAdapter) Send(ctx context.Context, prompt string, ch chan<- string) error {
	ctx, span := o.inst.Tracer.Start(ctx, "assistant.send", trace.WithAttributes(
		AttrAssistantName.String(o.inner.Name()),
	))
	defer span.End()
	start := time.Now()

	// Wrap the channel to count chunks. Buffer generously so the inner
	// adapter never blocks on send while the forwarder waits on ch.
	bufSize := max(cap(ch), 64)
	wrapped := make(chan string, bufSize)
	chunks := 0
	bytes := 0
	done := make(chan struct{})
	go func() {
		defer close(ch)
		defer close(done)
		for chunk := range wrapped {
			chunks++
			bytes += len(chunk)
			select {
			case ch <- chunk:
			case <-ctx.Done():
				return
			}
		}
	}()

	err := o.inner.Send(ctx, prompt, wrapped)
	<-done

	durationMs := float64(time.Since(start).Milliseconds())
	status := "ok"
	if err != nil {
		status = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.SetAttributes(AttrStreamChunks.Int(chunks))

	attrs := metric.WithAttributes(
		AttrAssistantName.String(o.inner.Name()),
		attribute.String("status", status),
	)
	o.inst.SendRequests.Add(ctx, 1, attrs)
	o.inst.StreamChunks.Add(ctx, int64(chunks), attrs)
	o.inst.TokensOut.Add(ctx, int64(bytes/4), attrs)
	o.inst.SendDuration.Record(ctx, durationMs, attrs)
	return err
}

func (o *ObservedAdapter) Available(ctx context.Context) bool {
	return o.inner.Available(ctx)
}

func (o *ObservedAdapter) Version(ctx context.Context) string {
	return o.inner.Version(ctx)
}
