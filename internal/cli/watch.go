package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	goSession "github.com/MrEthical07/goSession"
	"github.com/MrEthical07/goSession/metrics/export/prometheus"
	"github.com/spf13/cobra"
)

// lockedWriter serialises output from hooks and the command loop.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) printf(format string, args ...any) {
	l.mu.Lock()
	fmt.Fprintf(l.w, format, args...)
	l.mu.Unlock()
}

func newWatchCmd(a *app) *cobra.Command {
	var fast, slow time.Duration
	var metricsAddr string

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Run the timeout monitor for the profile session",
		Long: "watch keeps the session under the timeout monitor and prints state changes and the " +
			"warning countdown. Each stdin line is an interaction: \"c\" continues the session, " +
			"\"q\" signs out, anything else counts as a key press.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			out := &lockedWriter{w: cmd.OutOrStdout()}
			ended := make(chan goSession.LogoutEvent, 1)

			m, done, err := a.manager(ctx, func(cfg *goSession.Config, b *goSession.Builder) {
				cfg.Monitor.Disabled = false
				if fast > 0 {
					cfg.Monitor.FastInterval = fast
				}
				if slow > 0 {
					cfg.Monitor.SlowInterval = slow
				}
				b.WithStateHook(func(_, to goSession.State, st goSession.Status) {
					if to == goSession.StateWarning {
						out.printf("state: warning (expires in %ds)\n", st.RemainingSeconds)
						return
					}
					out.printf("state: %s\n", to)
				})
				b.WithLogoutHook(func(e goSession.LogoutEvent) {
					select {
					case ended <- e:
					default:
					}
				})
			})
			if err != nil {
				return err
			}
			defer done()

			if st := m.Resume(ctx); !st.State.Authenticated() {
				return errors.New("not signed in")
			}

			if metricsAddr != "" {
				stop, err := serveMetrics(ctx, metricsAddr, m, out)
				if err != nil {
					return err
				}
				defer stop()
			}

			lines := make(chan string)
			go func() {
				sc := bufio.NewScanner(cmd.InOrStdin())
				for sc.Scan() {
					select {
					case lines <- strings.TrimSpace(sc.Text()):
					case <-ctx.Done():
						return
					}
				}
			}()

			tick := time.NewTicker(time.Second)
			defer tick.Stop()

			for {
				select {
				case <-ctx.Done():
					return nil
				case e := <-ended:
					out.printf("signed out (%s)\n", e.Reason)
					return nil
				case line := <-lines:
					switch line {
					case "q":
						if err := m.LogoutNow(ctx); err != nil {
							return err
						}
					case "c":
						if err := m.ContinueSession(ctx); err != nil {
							out.printf("continue failed: %s\n", goSession.Message(err))
						}
					default:
						m.Activity().Signal(ctx, goSession.SignalKeyPress)
					}
				case <-tick.C:
					if m.State() == goSession.StateWarning {
						st := m.Check(ctx)
						if st.State == goSession.StateWarning {
							out.printf("expires in %ds, enter c to stay signed in\n", st.RemainingSeconds)
						}
					}
				}
			}
		},
	}

	cmd.Flags().DurationVar(&fast, "fast-interval", 0, "Monitor interval near expiry (default from config)")
	cmd.Flags().DurationVar(&slow, "slow-interval", 0, "Monitor interval otherwise (default from config)")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address while watching")
	return cmd
}

// serveMetrics exposes m on addr under /metrics until the returned stop is called.
func serveMetrics(ctx context.Context, addr string, m *goSession.Manager, out *lockedWriter) (stop func(), err error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("metrics listener: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", prometheus.NewExporter(m).Handler())

	ctx, cancel := context.WithCancel(ctx)
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		if err := serveUntilDone(ctx, "metrics", ln, mux, out); err != nil {
			out.printf("metrics server: %v\n", err)
		}
	}()
	return func() {
		cancel()
		<-finished
	}, nil
}
