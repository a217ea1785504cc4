package cli

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/MrEthical07/goSession/internal/logging"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// app carries what every subcommand needs: the merged settings and the logger.
type app struct {
	v       *viper.Viper
	cfgFile string
	logger  *slog.Logger
}

// NewRootCmd creates the sessionctl command tree.
//
// Every persistent flag can also be set as GOSESSION_<FLAG> (dashes become underscores)
// or as a key of the --config file. Flags win over the environment, which wins over the file.
func NewRootCmd() *cobra.Command {
	a := &app{v: viper.New()}

	root := &cobra.Command{
		Use:   "sessionctl",
		Short: "Sign in and manage a goSession client session",
		Long: "sessionctl signs in against an authentication service and keeps the session in a " +
			"profile store shared by every client using the same profile.",
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd)
		},
		SilenceUsage: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.cfgFile, "config", "", "Config file (yaml, json or toml)")
	pf.String("base-url", "http://localhost:8000", "Authentication service URL")
	pf.String("profile", "default", "Session profile; clients sharing a profile share one session")
	pf.String("store", "sqlite", "Session store (sqlite, redis, memory)")
	pf.String("db", "", "SQLite database path (default <user config dir>/gosession/sessions.db)")
	pf.String("redis-addr", "", "Redis address; selects the redis store")
	pf.Duration("timeout", 15*time.Minute, "Inactivity timeout")
	pf.Duration("warning", 2*time.Minute, "Warning window before expiry")
	pf.Duration("debounce", 5*time.Second, "Minimum spacing between two activity writes")
	pf.String("rounding", "floor", "Countdown rounding (floor, ceil)")
	pf.String("log-level", "warn", "Log level (debug, info, warn, error)")
	pf.String("log-format", "text", "Log format (text, json)")
	_ = a.v.BindPFlags(pf)

	a.v.SetEnvPrefix("GOSESSION")
	a.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	a.v.AutomaticEnv()

	root.AddCommand(
		newLoginCmd(a),
		newWhoamiCmd(a),
		newStatusCmd(a),
		newLogoutCmd(a),
		newRegisterCmd(a),
		newForgotPasswordCmd(a),
		newResetPasswordCmd(a),
		newWatchCmd(a),
		newFakeAuthCmd(a),
	)
	return root
}

func (a *app) init(cmd *cobra.Command) error {
	if a.cfgFile != "" {
		a.v.SetConfigFile(a.cfgFile)
		if err := a.v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config %s: %w", a.cfgFile, err)
		}
	}
	a.logger = logging.NewLoggerWithWriter(
		logging.ParseLevel(a.v.GetString("log-level")),
		a.v.GetString("log-format"),
		cmd.ErrOrStderr(),
	)
	return nil
}
