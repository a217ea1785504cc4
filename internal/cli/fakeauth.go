package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/MrEthical07/goSession/authtest"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

type fakeAuthOptions struct {
	TokenTTL      time.Duration
	RedisAddr     string
	RedisEmbedded bool
	Seed          authtest.Account
	TwoFactor     bool
}

// newFakeAuth builds the development authentication service. Reset codes and seeded
// secrets are printed to out. The returned func releases Redis resources.
func newFakeAuth(a *app, opts fakeAuthOptions, out *lockedWriter) (*authtest.Server, func(), error) {
	cfg := authtest.Config{
		TokenTTL: opts.TokenTTL,
		Logger:   a.logger,
		OnResetCode: func(email, code string) {
			out.printf("reset code for %s: %s\n", email, code)
		},
	}
	cleanup := func() {}

	switch {
	case opts.RedisEmbedded:
		mr, err := miniredis.Run()
		if err != nil {
			return nil, nil, fmt.Errorf("start embedded redis: %w", err)
		}
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		cfg.Redis = client
		cleanup = func() {
			_ = client.Close()
			mr.Close()
		}
	case opts.RedisAddr != "":
		client := redis.NewClient(&redis.Options{Addr: opts.RedisAddr})
		cfg.Redis = client
		cleanup = func() { _ = client.Close() }
	}

	srv, err := authtest.New(cfg)
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	if opts.Seed.Email != "" {
		if _, err := srv.AddAccount(opts.Seed); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("seed account: %w", err)
		}
		out.printf("seeded account %s (%s)\n", opts.Seed.Username, opts.Seed.Email)
		if opts.TwoFactor {
			secret, err := srv.EnableTwoFactor(opts.Seed.Email)
			if err != nil {
				cleanup()
				return nil, nil, err
			}
			out.printf("two-factor secret for %s: %s\n", opts.Seed.Email, secret)
		}
	}
	return srv, cleanup, nil
}

func newFakeAuthCmd(a *app) *cobra.Command {
	var addr string
	var opts fakeAuthOptions

	cmd := &cobra.Command{
		Use:   "fake-auth",
		Short: "Serve an in-memory authentication service for local development",
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := &lockedWriter{w: cmd.OutOrStdout()}
			srv, cleanup, err := newFakeAuth(a, opts, out)
			if err != nil {
				return err
			}
			defer cleanup()

			ln, err := net.Listen("tcp", addr)
			if err != nil {
				return err
			}
			return serveUntilDone(cmd.Context(), "fake auth service", ln, srv.Handler(), out)
		},
	}

	f := cmd.Flags()
	f.StringVar(&addr, "addr", "127.0.0.1:8000", "Listen address")
	f.DurationVar(&opts.TokenTTL, "token-ttl", 30*time.Minute, "Access token lifetime")
	f.StringVar(&opts.RedisAddr, "throttle-redis", "", "Redis address for login throttling")
	f.BoolVar(&opts.RedisEmbedded, "redis-embedded", false, "Throttle logins with an embedded Redis")
	f.StringVar(&opts.Seed.Email, "seed-email", "", "Seed an account with this email")
	f.StringVar(&opts.Seed.Username, "seed-username", "", "Username of the seeded account")
	f.StringVar(&opts.Seed.FullName, "seed-name", "", "Full name of the seeded account")
	f.StringVar(&opts.Seed.Password, "seed-password", "", "Password of the seeded account")
	f.BoolVar(&opts.TwoFactor, "seed-2fa", false, "Enable two-factor login for the seeded account")
	return cmd
}

// serveUntilDone serves h on ln until ctx ends, then shuts down gracefully.
func serveUntilDone(ctx context.Context, name string, ln net.Listener, h http.Handler, out *lockedWriter) error {
	srv := &http.Server{Handler: h, ReadHeaderTimeout: 5 * time.Second}
	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ln) }()
	out.printf("%s listening on http://%s\n", name, ln.Addr())

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
