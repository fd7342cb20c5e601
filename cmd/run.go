package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/smazurov/camgraph/internal/config"
	"github.com/smazurov/camgraph/internal/events"
	"github.com/smazurov/camgraph/internal/logging"
	"github.com/smazurov/camgraph/internal/node"
	"github.com/smazurov/camgraph/internal/nodes/frontend"
	"github.com/smazurov/camgraph/internal/pipeline"
	"github.com/spf13/cobra"
)

// runStats aggregates retirement events.
type runStats struct {
	mu        sync.Mutex
	retired   int
	byStatus  map[string]int
	total     time.Duration
	slowest   time.Duration
	retiredCh chan struct{}
}

func newRunStats() *runStats {
	return &runStats{byStatus: make(map[string]int), retiredCh: make(chan struct{}, 1)}
}

func (s *runStats) observe(e events.RequestRetiredEvent) {
	latency := time.Duration(e.LatencyMS) * time.Millisecond
	s.mu.Lock()
	s.retired++
	s.byStatus[e.Status]++
	s.total += latency
	s.slowest = max(s.slowest, latency)
	s.mu.Unlock()
	select {
	case s.retiredCh <- struct{}{}:
	default:
	}
}

// await blocks until n retirements were observed or ctx is done.
func (s *runStats) await(ctx context.Context, n int) error {
	for {
		s.mu.Lock()
		got := s.retired
		s.mu.Unlock()
		if got >= n {
			return nil
		}
		select {
		case <-s.retiredCh:
		case <-ctx.Done():
			return fmt.Errorf("saw %d of %d retirements: %w", got, n, ctx.Err())
		}
	}
}

// CreateRunCmd creates the run command.
func CreateRunCmd() *cobra.Command {
	var (
		flags      pipelineFlags
		count      int
		failEvery  int
		flushAfter int
		skipFD     bool
		timeout    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Drive simulated capture requests through a pipeline",
		Long: `Builds the pipeline described by the topology file with simulated hardware backends, ` +
			`submits capture requests and prints how they retired.`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			flags.initLogging()
			logger := logging.GetLogger("main")

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			bus := events.New()
			stats := newRunStats()
			defer bus.Subscribe(stats.observe)()

			p, err := flags.build(bus, func(top *config.Topology) {
				if failEvery > 0 {
					for i := range top.Devices {
						top.Devices[i].FailEvery = failEvery
					}
				}
			})
			if err != nil {
				return err
			}
			defer func() { _ = p.Close() }()

			out := cmd.OutOrStdout()
			submitted := 0
			for i := 1; i <= count && ctx.Err() == nil; i++ {
				opts := pipeline.SubmitOptions{}
				if skipFD && i%2 == 0 {
					opts.Controls = map[string]any{frontend.ControlFDSkip: true}
				}
				req, err := submitWhenRoom(ctx, p, opts, timeout)
				if err != nil {
					return err
				}
				submitted++
				logger.Debug("Request submitted", "request", req.ID)

				if flushAfter > 0 && i == flushAfter {
					res := p.Flush()
					fmt.Fprintf(out, "flush after %d: %d requests, %d units, %d fences, %d commands cancelled\n",
						i, res.Requests, res.Units, res.Fences, res.Commands)
				}
			}

			waitCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			if err := p.WaitIdle(waitCtx); err != nil {
				return fmt.Errorf("pipeline did not drain: %w", err)
			}
			if err := stats.await(waitCtx, submitted); err != nil {
				return err
			}

			stats.mu.Lock()
			defer stats.mu.Unlock()
			fmt.Fprintf(out, "submitted %d  success %d  failed %d  cancelled %d\n", submitted,
				stats.byStatus[pipeline.StatusSuccess], stats.byStatus[pipeline.StatusFailed],
				stats.byStatus[pipeline.StatusCancelled])
			if stats.retired > 0 {
				fmt.Fprintf(out, "latency mean %v  max %v\n", stats.total/time.Duration(stats.retired), stats.slowest)
			}
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().IntVarP(&count, "requests", "n", 30, "Number of requests to submit")
	cmd.Flags().IntVar(&failEvery, "fail-every", 0, "Fail every n-th command on each simulated device")
	cmd.Flags().IntVar(&flushAfter, "flush-after", 0, "Flush the pipeline after submitting n requests")
	cmd.Flags().BoolVar(&skipFD, "skip-fd", false, "Skip face detection on every other request")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "How long to wait for the pipeline to drain")
	return cmd
}

// submitWhenRoom submits opts, waiting for the pipeline to drain when depth
// requests are already in flight.
func submitWhenRoom(ctx context.Context, p *pipeline.Pipeline, opts pipeline.SubmitOptions, timeout time.Duration) (node.Request, error) {
	req, err := p.Submit(ctx, opts)
	if !errors.Is(err, pipeline.ErrQueueFull) {
		return req, err
	}
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := p.WaitIdle(waitCtx); err != nil {
		return req, fmt.Errorf("waiting for room: %w", err)
	}
	return p.Submit(ctx, opts)
}
