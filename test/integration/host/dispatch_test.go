// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PCE Contributors

//go:build integration

package host_test

import (
	"context"
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/pce-editor/pce/internal/host"
	"github.com/pce-editor/pce/internal/observability"
	plugins "github.com/pce-editor/pce/internal/plugin"
	"github.com/pce-editor/pce/internal/plugin/capability"
	"github.com/pce-editor/pce/internal/plugin/hostfunc"
	"github.com/pce-editor/pce/internal/plugin/lua"
	"github.com/pce-editor/pce/pkg/errutil"
	"github.com/pce-editor/pce/pkg/plugin"
)

func key(k string) plugin.Event {
	return plugin.KeyPress{Header: plugin.NewHeader(), Key: k}
}

func text(s string) plugin.Event {
	return plugin.TextChange{Header: plugin.NewHeader(), Text: s}
}

var _ = Describe("Lua plugins on a dispatcher", func() {
	var (
		ctx  context.Context
		root string
		d    *host.Dispatcher
	)

	BeforeEach(func() {
		ctx = context.Background()
		root = GinkgoT().TempDir()
	})

	AfterEach(func() {
		if d != nil {
			Expect(d.Close(ctx)).To(Succeed())
			d = nil
		}
	})

	Describe("priority and interception", func() {
		BeforeEach(func() {
			writePlugin(root, "high", 50, []string{"events.subscribe.key_press"}, `
pce.subscribe("key_press", function(e)
  if e.key == "x" then return pce.INTERCEPT end
end)
`)
			writePlugin(root, "low", -50, []string{"events.subscribe.*"}, `
pce.subscribe("key_press", function(e) return "intercept" end)
`)
			d = startHost(ctx, root)
		})

		It("dispatches in descending priority", func() {
			Expect(d.Plugins()).To(Equal([]string{"high", "low"}))
		})

		It("stops at the first plugin that intercepts", func() {
			Expect(d.DispatchOutcome(key("x")).InterceptedBy).To(Equal("high"))
			Expect(d.DispatchOutcome(key("y")).InterceptedBy).To(Equal("low"))
		})

		It("skips disabled plugins", func() {
			Expect(d.Disable("low")).To(Succeed())
			Expect(d.Dispatch(key("y"))).To(Equal(plugin.Continue))
			Expect(d.Enable("low")).To(Succeed())
			Expect(d.Dispatch(key("y"))).To(Equal(plugin.Intercept))
		})
	})

	Describe("unsubscribe", func() {
		It("removes the consumer and never reaches the caller", func() {
			writePlugin(root, "one-shot", 0, []string{"events.subscribe.*"}, `
local calls = 0
pce.subscribe("key_press", function(e)
  calls = calls + 1
  return pce.UNSUBSCRIBE
end)
pce.subscribe("text_change", function(e)
  if calls == 1 then return pce.INTERCEPT end
end)
`)
			d = startHost(ctx, root)

			for _, k := range []string{"a", "b", "c"} {
				Expect(d.Dispatch(key(k))).To(Equal(plugin.Continue))
			}
			Expect(d.Dispatch(text("done"))).To(Equal(plugin.Intercept))
		})
	})

	Describe("lifecycle hooks", func() {
		It("runs on_enable again after a disable", func() {
			writePlugin(root, "hooks", 0, []string{"events.subscribe.key_press"}, `
local enables = 0
function on_enable() enables = enables + 1 end
function on_disable() end
pce.subscribe("key_press", function(e)
  if enables == 2 then return pce.INTERCEPT end
end)
`)
			d = startHost(ctx, root)

			Expect(d.Dispatch(key("a"))).To(Equal(plugin.Continue))
			Expect(d.Disable("hooks")).To(Succeed())
			Expect(d.Enable("hooks")).To(Succeed())
			Expect(d.Dispatch(key("a"))).To(Equal(plugin.Intercept))
		})
	})

	Describe("failure containment", func() {
		It("keeps dispatching past a failing handler and counts the failure", func() {
			writePlugin(root, "broken", 10, []string{"events.subscribe.key_press"}, `
pce.subscribe("key_press", function(e) error("boom") end)
`)
			writePlugin(root, "good", 0, []string{"events.subscribe.key_press"}, `
pce.subscribe("key_press", function(e) return pce.INTERCEPT end)
`)
			reg := prometheus.NewRegistry()
			d = startHost(ctx, root, host.WithMetrics(observability.NewMetrics(reg)))

			out := d.DispatchOutcome(key("a"))
			Expect(out.Disposition).To(Equal(plugin.Intercept))
			Expect(out.InterceptedBy).To(Equal("good"))

			n, err := testutil.GatherAndCount(reg, "pce_plugin_failures_total")
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(Equal(1))
		})

		It("refuses to attach a plugin that subscribes without the capability", func() {
			dir := writePlugin(root, "sneaky", 0, nil, `
pce.subscribe("key_press", function(e) return pce.INTERCEPT end)
`)
			manifest, err := plugins.ReadManifest(dir)
			Expect(err).NotTo(HaveOccurred())
			loader := lua.NewLoader(hostfunc.New(capability.NewEnforcer()), lua.WithLogger(quietLogger()))
			p, err := loader.Load(ctx, manifest, dir)
			Expect(err).NotTo(HaveOccurred())

			d = host.NewDispatcher(ctx, host.NewHeadlessEditor("integration"), host.WithLogger(quietLogger()))
			err = d.Attach(p, manifest.Priority)
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("capability denied"))
			Expect(d.Plugins()).To(BeEmpty())
		})
	})

	Describe("shutdown", func() {
		It("stops dispatching and refuses new plugins once closed", func() {
			writePlugin(root, "grabby", 0, []string{"events.subscribe.key_press"}, `
pce.subscribe("key_press", function(e) return pce.INTERCEPT end)
`)
			d = startHost(ctx, root)
			Expect(d.Dispatch(key("a"))).To(Equal(plugin.Intercept))

			closeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			Expect(d.Close(closeCtx)).To(Succeed())

			Expect(d.Dispatch(key("a"))).To(Equal(plugin.Continue))
			Expect(d.Context().Err()).To(HaveOccurred())

			err := d.Attach(&closedProbe{}, 0)
			Expect(err).To(HaveOccurred())
			Expect(errutil.Code(err)).To(Equal("DISPATCHER_CLOSED"))
		})

		It("cascades a cancelled parent context to every instance", func() {
			writePlugin(root, "a", 0, []string{"events.subscribe.key_press"}, `pce.subscribe("key_press", function(e) end)`)
			writePlugin(root, "b", 0, []string{"events.subscribe.key_press"}, `pce.subscribe("key_press", function(e) end)`)

			parent, cancel := context.WithCancel(ctx)
			d = startHost(parent, root)
			cancel()

			Eventually(d.Context().Done()).Should(BeClosed())
		})
	})

	Describe("shipped example plugins", func() {
		It("replays the sample session", func() {
			d = startHost(ctx, filepath.Join("..", "..", "..", "plugins"))
			data, err := os.ReadFile(filepath.Join("..", "..", "..", "cmd", "pce", "testdata", "session.yaml"))
			Expect(err).NotTo(HaveOccurred())
			events, err := host.ParseScript(data)
			Expect(err).NotTo(HaveOccurred())

			var interceptedBy []string
			for _, e := range events {
				interceptedBy = append(interceptedBy, d.DispatchOutcome(e).InterceptedBy)
			}
			Expect(interceptedBy).To(Equal([]string{"", "", "", "vim-keys", "vim-keys", "vim-keys", "", "", ""}))
		})
	})
})

// closedProbe is a plugin that must never get an instance.
type closedProbe struct{}

func (closedProbe) Description() plugin.Description {
	return plugin.Description{Name: "probe", Version: "1.0.0"}
}

func (closedProbe) CreateSubInstance(plugin.Editor, context.Context) (plugin.Instance, error) {
	Fail("CreateSubInstance called on a closed dispatcher")
	return nil, nil
}
