package auth

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace/noop"
)

func TestCycle_SavingCannotBeTerminated(t *testing.T) {
	_, c := newCycle(context.Background(), noop.NewTracerProvider().Tracer(""), NewStrategy(nil, false))

	require.True(t, c.transition(StateLaunched, StateResolving))
	require.True(t, c.transition(StateResolving, StateSaving))

	assert.False(t, c.terminate(StateFailed, nil))
	assert.Equal(t, StateSaving, c.State())

	assert.True(t, c.finish(StateSaving, StateSucceeded, nil))
	assert.False(t, c.terminate(StateFailed, nil))
	assert.Equal(t, StateSucceeded, c.State())
}

func TestCycle_TerminatedBeforeSavingNeverSaves(t *testing.T) {
	_, c := newCycle(context.Background(), noop.NewTracerProvider().Tracer(""), NewStrategy(nil, false))
	require.True(t, c.transition(StateLaunched, StateResolving))

	require.True(t, c.terminate(StateFailed, nil))
	assert.False(t, c.transition(StateResolving, StateSaving))
}

func spanAttr(s sdktrace.ReadOnlySpan, key attribute.Key) string {
	for _, kv := range s.Attributes() {
		if kv.Key == key {
			return kv.Value.Emit()
		}
	}
	return ""
}

func TestLaunch_CycleSpans(t *testing.T) {
	spans := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(spans))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	rec := newRecorder()
	o := newTestOrchestrator(t, rec, WithTracerProvider(tp))
	o.Register(&fakeTransport{kind: KindBrowser, rec: rec}, true)
	_, err := o.Toggle(KindBrowser)
	require.NoError(t, err)

	o.Launch(context.Background())
	firstID, _ := o.Status()
	assert.Empty(t, spans.Ended(), "span ends with the cycle, not the launch")

	o.OnRedirect(context.Background(), redirectTo("/browser"))

	o.Register(&fakeTransport{kind: KindBrowser, rec: rec, launchErr: errors.New("cannot start")}, true)
	o.Launch(context.Background())
	secondID, _ := o.Status()

	ended := spans.Ended()
	require.Len(t, ended, 2)

	assert.Equal(t, "authenticate", ended[0].Name())
	assert.Equal(t, firstID, spanAttr(ended[0], "auth.cycle"))
	assert.Equal(t, "succeeded", spanAttr(ended[0], "auth.state"))
	assert.Equal(t, codes.Unset, ended[0].Status().Code)

	assert.Equal(t, secondID, spanAttr(ended[1], "auth.cycle"))
	assert.Equal(t, "failed", spanAttr(ended[1], "auth.state"))
	assert.Equal(t, codes.Error, ended[1].Status().Code)
}
