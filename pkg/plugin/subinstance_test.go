// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PCE Contributors

package plugin_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/pce-editor/pce/pkg/errutil"
	"github.com/pce-editor/pce/pkg/plugin"
	"github.com/pce-editor/pce/pkg/plugin/plugintest"
)

func newInstance(t *testing.T, parent context.Context, hooks plugin.Hooks, opts ...plugin.Option) *plugin.SubInstance {
	t.Helper()
	s := plugin.NewSubInstance("test-plugin", &plugintest.Editor{Name: "ed-1"}, parent, hooks, opts...)
	t.Cleanup(func() {
		s.Destroy()
		s.Wait()
	})
	return s
}

func TestSubInstance_StartsDisabledWithoutHooks(t *testing.T) {
	hooks := &plugintest.Hooks{}
	s := newInstance(t, context.Background(), hooks)

	assert.Equal(t, plugin.StateDisabled, s.State())
	assert.Zero(t, hooks.Enables.Load())
	assert.Zero(t, hooks.Disables.Load())
	assert.Equal(t, "ed-1", s.Editor().ID())
	assert.Equal(t, "test-plugin", s.Name())
}

func TestSubInstance_EnableDisableAreIdempotent(t *testing.T) {
	hooks := &plugintest.Hooks{}
	s := newInstance(t, context.Background(), hooks)

	s.Disable()
	assert.Zero(t, hooks.Disables.Load(), "disable while disabled is a no-op")

	s.Enable()
	s.Enable()
	assert.Equal(t, int32(1), hooks.Enables.Load())
	assert.True(t, s.Enabled())

	s.Disable()
	s.Disable()
	assert.Equal(t, int32(1), hooks.Disables.Load())

	s.Enable()
	assert.Equal(t, int32(2), hooks.Enables.Load(), "re-enable after disable is allowed")
}

func TestSubInstance_ConcurrentEnableRunsHookOnce(t *testing.T) {
	hooks := &plugintest.Hooks{}
	s := newInstance(t, context.Background(), hooks)

	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Enable()
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), hooks.Enables.Load())
}

func TestSubInstance_InvokeConsumersKeystrokeExample(t *testing.T) {
	s := newInstance(t, context.Background(), nil)
	rec := &plugintest.Recorder{}

	require.NoError(t, plugin.Subscribe[plugin.KeyPress](s, plugintest.Consumer[plugin.KeyPress](rec, "A", plugin.Continue)))
	require.NoError(t, plugin.Subscribe[plugin.KeyPress](s, plugintest.Consumer[plugin.KeyPress](rec, "B", plugin.Intercept)))
	require.NoError(t, plugin.Subscribe[plugin.KeyPress](s, plugintest.Consumer[plugin.KeyPress](rec, "C", plugin.Continue)))

	got := s.InvokeConsumers(keyPress("k"))

	assert.Equal(t, plugin.Intercept, got)
	assert.Equal(t, []string{"A", "B"}, rec.Calls())
}

func TestSubInstance_InvokeConsumersNeverReturnsUnsubscribe(t *testing.T) {
	s := newInstance(t, context.Background(), nil)
	rec := &plugintest.Recorder{}
	require.NoError(t, plugin.Subscribe[plugin.SelectionChange](s, plugintest.Consumer[plugin.SelectionChange](rec, "A", plugin.Unsubscribe)))

	event := plugin.SelectionChange{Header: plugin.NewHeader(), End: plugin.Position{Column: 3}}
	assert.Equal(t, plugin.Continue, s.InvokeConsumers(event))
	assert.Equal(t, plugin.Continue, s.InvokeConsumers(event))
	assert.Equal(t, []string{"A"}, rec.Calls())
}

func TestSubInstance_ConsumerFailureRoutedToHandler(t *testing.T) {
	failures := &plugintest.Failures{}
	s := newInstance(t, context.Background(), nil, plugin.WithFailureHandler(failures.Handle))
	rec := &plugintest.Recorder{}

	require.NoError(t, plugin.Subscribe[plugin.KeyPress](s, plugintest.PanickingConsumer[plugin.KeyPress](rec, "bad")))
	require.NoError(t, plugin.Subscribe[plugin.KeyPress](s, plugintest.Consumer[plugin.KeyPress](rec, "good", plugin.Intercept)))

	var got plugin.Disposition
	assert.NotPanics(t, func() { got = s.InvokeConsumers(keyPress("a")) })
	assert.Equal(t, plugin.Intercept, got)
	assert.Equal(t, []string{"bad", "good"}, rec.Calls())

	require.Equal(t, 1, failures.Len())
	err := failures.Errors()[0]
	errutil.AssertErrorCode(t, err, "HANDLER_FAILURE")
	errutil.AssertErrorContext(t, err, "plugin", "test-plugin")
}

func TestSubInstance_FailureObserverFromParentContext(t *testing.T) {
	var mu sync.Mutex
	var seen []string
	parent := plugin.WithFailureObserver(context.Background(), func(name string, _ error) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, name)
	})
	s := newInstance(t, parent, nil, plugin.WithFailureHandler(func(error) {}))
	rec := &plugintest.Recorder{}
	require.NoError(t, plugin.Subscribe[plugin.KeyPress](s, plugintest.FailingConsumer[plugin.KeyPress](rec, "bad")))

	s.InvokeConsumers(keyPress("a"))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"test-plugin"}, seen)
}

type panickingHooks struct{}

func (panickingHooks) OnEnable()  { panic("enable") }
func (panickingHooks) OnDisable() { panic("disable") }

func TestSubInstance_HookPanicIsContained(t *testing.T) {
	failures := &plugintest.Failures{}
	s := newInstance(t, context.Background(), panickingHooks{}, plugin.WithFailureHandler(failures.Handle))

	assert.NotPanics(t, s.Enable)
	assert.True(t, s.Enabled())
	assert.NotPanics(t, s.Disable)
	assert.False(t, s.Enabled())

	errs := failures.Errors()
	require.Len(t, errs, 2)
	errutil.AssertErrorCode(t, errs[0], "HOOK_FAILURE")
	errutil.AssertErrorContext(t, errs[0], "hook", "on_enable")
	errutil.AssertErrorContext(t, errs[1], "hook", "on_disable")
}

func TestSubInstance_DestroyCancelsOutstandingWork(t *testing.T) {
	defer goleak.VerifyNone(t)

	hooks := &plugintest.Hooks{}
	s := plugin.NewSubInstance("worker", &plugintest.Editor{Name: "ed"}, context.Background(), hooks)
	s.Enable()

	started := make(chan struct{})
	require.True(t, s.Go(func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	}))
	<-started

	s.Destroy()
	s.Wait()

	assert.Equal(t, plugin.StateDestroyed, s.State())
	assert.Error(t, s.Context().Err())
	assert.Zero(t, hooks.Disables.Load(), "destroy does not run OnDisable")

	s.Destroy()
	s.Enable()
	assert.Equal(t, plugin.StateDestroyed, s.State())
	assert.Equal(t, int32(1), hooks.Enables.Load())
}

func TestSubInstance_ParentCancelCascadesToInstances(t *testing.T) {
	defer goleak.VerifyNone(t)

	parent, cancel := context.WithCancel(context.Background())
	a := plugin.NewSubInstance("a", &plugintest.Editor{Name: "ed"}, parent, nil)
	b := plugin.NewSubInstance("b", &plugintest.Editor{Name: "ed"}, parent, nil)

	done := make(chan string, 2)
	for _, s := range []*plugin.SubInstance{a, b} {
		require.True(t, s.Go(func(ctx context.Context) error {
			<-ctx.Done()
			done <- s.Name()
			return ctx.Err()
		}))
	}

	cancel()
	for range 2 {
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("instance task did not observe parent cancellation")
		}
	}
	a.Wait()
	b.Wait()
}

func TestSubInstance_DestroyLeavesSiblingRunning(t *testing.T) {
	a := newInstance(t, context.Background(), nil)
	b := newInstance(t, context.Background(), nil)

	a.Destroy()

	assert.Error(t, a.Context().Err())
	assert.NoError(t, b.Context().Err())
}

func TestSubInstance_SubscribeAfterDestroyIsRejected(t *testing.T) {
	s := newInstance(t, context.Background(), nil)
	rec := &plugintest.Recorder{}
	require.NoError(t, plugin.Subscribe[plugin.KeyPress](s, plugintest.Consumer[plugin.KeyPress](rec, "A", plugin.Continue)))

	s.Destroy()

	err := plugin.Subscribe[plugin.KeyPress](s, plugintest.Consumer[plugin.KeyPress](rec, "B", plugin.Continue))
	errutil.AssertErrorCode(t, err, "INSTANCE_DESTROYED")
	assert.Equal(t, plugin.Continue, s.InvokeConsumers(keyPress("a")))
	assert.Empty(t, rec.Calls(), "destroyed instances do not dispatch")
}

func TestSubInstance_InvokeConsumersLeavesEnableGatingToHost(t *testing.T) {
	s := newInstance(t, context.Background(), nil)
	rec := &plugintest.Recorder{}
	require.NoError(t, plugin.Subscribe[plugin.KeyPress](s, plugintest.Consumer[plugin.KeyPress](rec, "A", plugin.Intercept)))

	require.False(t, s.Enabled())
	assert.Equal(t, plugin.Intercept, s.InvokeConsumers(keyPress("a")), "disabled instances still dispatch")

	var inst plugin.Instance = s
	inst.Enable()
	assert.True(t, inst.Enabled())
	inst.Disable()
	assert.False(t, inst.Enabled())

	s.Destroy()
	assert.False(t, inst.Enabled())
	assert.Equal(t, []string{"A"}, rec.Calls())
}

func TestSubInstance_AsyncTaskFailureDoesNotCancelSiblings(t *testing.T) {
	failures := &plugintest.Failures{}
	a := newInstance(t, context.Background(), nil, plugin.WithFailureHandler(failures.Handle))
	b := newInstance(t, context.Background(), nil)

	require.True(t, a.Go(func(context.Context) error { return errors.New("task failed") }))
	a.Wait()

	require.Equal(t, 1, failures.Len())
	errutil.AssertErrorCode(t, failures.Errors()[0], "TASK_FAILURE")
	assert.NoError(t, a.Context().Err(), "a failed task does not cancel its own scope")
	assert.NoError(t, b.Context().Err())
}

func TestSubscribeFunc_InfersKind(t *testing.T) {
	s := newInstance(t, context.Background(), nil)
	var got []plugin.LifecyclePhase

	require.NoError(t, plugin.SubscribeFunc(s, func(e plugin.Lifecycle) (plugin.Disposition, error) {
		got = append(got, e.Phase)
		return plugin.Continue, nil
	}))

	s.InvokeConsumers(plugin.Lifecycle{Header: plugin.NewHeader(), Phase: plugin.PhaseFocused})
	s.InvokeConsumers(plugin.Lifecycle{Header: plugin.NewHeader(), Phase: plugin.PhaseBlurred})

	assert.Equal(t, []plugin.LifecyclePhase{plugin.PhaseFocused, plugin.PhaseBlurred}, got)
}
