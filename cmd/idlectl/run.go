package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	opentracinggo "github.com/opentracing/opentracing-go"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	jaegercfg "github.com/uber/jaeger-client-go/config"
	"go.uber.org/atomic"

	"github.com/taskmesh/idlecore/config"
	"github.com/taskmesh/idlecore/deque"
	"github.com/taskmesh/idlecore/idle"
	"github.com/taskmesh/idlecore/latch"
	"github.com/taskmesh/idlecore/logger"
	"github.com/taskmesh/idlecore/metrics"
	"github.com/taskmesh/idlecore/tracing"
	"github.com/taskmesh/idlecore/tracing/opentracing"
	"github.com/taskmesh/idlecore/workerpool"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// tracerFor returns a Jaeger-backed tracing.Tracer reporting to agentHost,
// or the package-wide no-op tracer if agentHost is empty. The returned
// closer must be closed when the caller is done producing spans so buffered
// spans are flushed.
func tracerFor(agentHost string, log logger.Logger) (tracing.Tracer, io.Closer, error) {
	if agentHost == "" {
		return tracing.NopTracer(), nopCloser{}, nil
	}
	jcfg := jaegercfg.Configuration{
		ServiceName: "idlectl",
		Sampler:     &jaegercfg.SamplerConfig{Type: "const", Param: 1},
		Reporter:    &jaegercfg.ReporterConfig{LocalAgentHostPort: agentHost, LogSpans: false},
	}
	jtracer, closer, err := jcfg.NewTracer()
	if err != nil {
		return nil, nil, err
	}
	opentracinggo.SetGlobalTracer(jtracer)
	return opentracing.NewTracer(jtracer, log), closer, nil
}

// leafSize bounds how small a range gets before sumTask computes it
// directly instead of splitting further.
const leafSize = 1 << 12

// sumTask is a fork/join node: sum the integers in [lo, hi). Ranges larger
// than leafSize split in half, push the right half onto the current
// worker's own deque as stealable work, and recurse into the left half
// inline -- the same shape as a recursive join, just without a stack frame
// that blocks.
type sumTask struct {
	lo, hi int64
	acc    *atomic.Int64
	done   *latch.Countdown
}

func (t *sumTask) run(owned *deque.Chase) {
	if t.hi-t.lo <= leafSize {
		var s int64
		for i := t.lo; i < t.hi; i++ {
			s += i
		}
		t.acc.Add(s)
		t.done.Done()
		return
	}
	mid := t.lo + (t.hi-t.lo)/2
	owned.PushBottom(&sumTask{lo: mid, hi: t.hi, acc: t.acc, done: t.done})
	left := &sumTask{lo: t.lo, hi: mid, acc: t.acc, done: t.done}
	left.run(owned)
}

func countLeaves(lo, hi int64) int64 {
	if hi-lo <= leafSize {
		return 1
	}
	mid := lo + (hi-lo)/2
	return countLeaves(lo, mid) + countLeaves(mid, hi)
}

func newRunCommand(stdout, stderr io.Writer, configFile, logPath *string) *cobra.Command {
	var rangeN int64
	var jaegerAgent string
	var profile bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a demo fork/join workload over the idle-coordination pool.",
		RunE: func(cmd *cobra.Command, args []string) error {
			v := viper.New()
			cfg, err := config.Load(v, cmd.Flags(), *configFile)
			if err != nil {
				return err
			}

			logOutput, logCloser, err := setupLogOutput(*logPath, stderr)
			if err != nil {
				return err
			}
			if logCloser != nil {
				defer logCloser.Close()
			}
			log := logger.NewStandardLogger(logOutput)
			tracer, closer, err := tracerFor(jaegerAgent, log)
			if err != nil {
				return err
			}
			defer closer.Close()
			tracing.GlobalTracer = tracer

			var runSpan tracing.Span
			runCtx := context.Background()
			if profile {
				runSpan, runCtx = tracing.StartProfiledSpanFromContext(runCtx, "idlectl.run")
			} else {
				runSpan, runCtx = tracing.StartSpanFromContext(runCtx, "idlectl.run")
			}
			runSpan.LogKV("n", rangeN, "workers", cfg.N)

			core := idle.NewWithThresholds(cfg.N, cfg.RoundsUntilSleepy, cfg.RoundsUntilAsleep)
			core.SetYieldHint(cfg.YieldHint)
			core.SetTracer(tracer)
			core.OnTransition(func(workerIndex int, from, to string) {
				log.Debugf("worker %d: %s -> %s", workerIndex, from, to)
			})

			reg := prometheus.NewRegistry()
			collector := metrics.NewCollector(reg)
			metrics.Attach(core, collector)

			deques := make([]*deque.Chase, cfg.N)
			for i := range deques {
				deques[i] = deque.NewChase(core, i, 1024)
			}
			injector := deque.NewInjector(core, -1)

			acc := atomic.NewInt64(0)
			leaves := countLeaves(0, rangeN)
			done := latch.NewCountdown(core, -1, int(leaves))
			injector.Push(&sumTask{lo: 0, hi: rangeN, acc: acc, done: done})
			collector.ObserveTickle()

			scan := func(ctx context.Context, workerIndex int) bool {
				owned := deques[workerIndex]
				if t, ok := owned.PopBottom(); ok {
					t.(*sumTask).run(owned)
					return true
				}
				for i := 0; i < len(deques); i++ {
					if i == workerIndex {
						continue
					}
					if t, ok := deques[i].Steal(); ok {
						t.(*sumTask).run(owned)
						return true
					}
				}
				if t, ok := injector.Pop(); ok {
					t.(*sumTask).run(owned)
					return true
				}
				return false
			}

			pool := workerpool.New(core, cfg.N, scan)
			ctx, cancel := context.WithCancel(runCtx)

			go pool.Run(ctx)
			waitSpan, _ := tracing.StartSpanFromContext(ctx, "idlectl.run.wait")
			ticker := time.NewTicker(time.Duration(cfg.StatsInterval))
			defer ticker.Stop()
			for !done.Probe() {
				select {
				case <-ticker.C:
					s := pool.Stats()
					log.Infof("live=%d asleep=%d sleepy=%d", s.Live, s.Asleep, s.Sleepy)
				default:
					time.Sleep(time.Millisecond)
				}
			}
			waitSpan.Finish()
			cancel()
			pool.Close()
			runSpan.Finish()

			stats := pool.Stats()
			want := rangeN * (rangeN - 1) / 2
			fmt.Fprintf(stdout, "sum(0..%d) = %d (want %d)\n", rangeN, acc.Load(), want)
			fmt.Fprintf(stdout, "final stats: live=%d asleep=%d sleepy=%d\n", stats.Live, stats.Asleep, stats.Sleepy)

			if profile {
				if profSpan, ok := runSpan.(tracing.ProfiledSpan); ok {
					b, err := json.MarshalIndent(profSpan.Dump(), "", "  ")
					if err == nil {
						fmt.Fprintln(stdout, string(b))
					}
				}
			}
			return nil
		},
	}
	cmd.Flags().Int64Var(&rangeN, "n", 1<<20, "sum the integers in [0, n) using the demo fork/join workload")
	cmd.Flags().StringVar(&jaegerAgent, "jaeger-agent", "", "Jaeger agent host:port to report Sleep spans to; empty disables tracing")
	cmd.Flags().BoolVar(&profile, "profile", false, "wrap the run in a self-profiling span and dump its JSON to stdout on completion")
	return cmd
}
