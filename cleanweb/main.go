// Command cleanweb watches the clipboard and strips tracking parameters from
// URLs copied into it.
package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/getlantern/golog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/getlantern/cleanweb"
	"github.com/getlantern/cleanweb/osclip"
)

var log = golog.LoggerFor("cleanweb-main")

type settings struct {
	Rules        string `mapstructure:"rules"`
	FoldHostCase bool   `mapstructure:"fold-host-case"`
	Debug        bool   `mapstructure:"debug"`
}

func (s *settings) options() []cleanweb.Option {
	return []cleanweb.Option{cleanweb.WithHostCaseFolding(s.FoldHostCase)}
}

// loadSettings layers flags over CLEANWEB_* environment variables over the
// optional settings file over defaults.
func loadSettings(cmd *cobra.Command) (*settings, error) {
	v := viper.New()
	v.SetDefault("fold-host-case", true)
	v.SetDefault("debug", false)

	settingsFile, _ := cmd.Flags().GetString("settings")
	if settingsFile != "" {
		v.SetConfigFile(settingsFile)
	} else if dir, err := cleanweb.ConfigDir(); err == nil {
		v.AddConfigPath(dir)
		v.SetConfigName("settings")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("CLEANWEB")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	for _, name := range []string{"rules", "fold-host-case", "debug"} {
		if err := v.BindPFlag(name, cmd.Flags().Lookup(name)); err != nil {
			return nil, fmt.Errorf("bind flag %v: %w", name, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || settingsFile != "" {
			return nil, fmt.Errorf("read settings: %w", err)
		}
	}

	var s settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("decode settings: %w", err)
	}
	if s.Rules == "" {
		path, err := cleanweb.RulesPath()
		if err != nil {
			return nil, err
		}
		s.Rules = path
	}

	if s.Debug {
		golog.SetOutputs(os.Stderr, os.Stderr)
	} else {
		golog.SetOutputs(os.Stderr, io.Discard)
	}
	return &s, nil
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "cleanweb",
		Short:         "Strip tracking parameters from URLs copied to the clipboard",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          run,
	}
	flags := root.PersistentFlags()
	flags.String("settings", "", "settings file (default is settings.yaml in the config dir)")
	flags.String("rules", "", "rule file (default is config.csv in the config dir)")
	flags.Bool("fold-host-case", true, "lowercase hosts before matching host patterns")
	flags.Bool("debug", false, "log debug output to stderr")

	root.AddCommand(
		&cobra.Command{
			Use:   "run",
			Short: "Watch the clipboard until interrupted (default)",
			Args:  cobra.NoArgs,
			RunE:  run,
		},
		&cobra.Command{
			Use:   "rules",
			Short: "Print the rules in effect",
			Args:  cobra.NoArgs,
			RunE:  printRules,
		},
		&cobra.Command{
			Use:   "clean [url...]",
			Short: "Clean the given URLs, or one per line from stdin",
			RunE:  clean,
		},
	)
	return root
}

func run(cmd *cobra.Command, _ []string) error {
	s, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	rs, err := cleanweb.LoadOrDefault(s.Rules, s.options()...)
	if err != nil {
		return fmt.Errorf("load rules: %w", err)
	}
	clip, err := osclip.New()
	if err != nil {
		return fmt.Errorf("open clipboard: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	coordinator := cleanweb.NewCoordinator(clip, rs.Rewriter())
	log.Debugf("Watching clipboard with %d rules from %v", rs.Len(), s.Rules)
	clip.Watch(ctx, coordinator.Handle)

	st := coordinator.Stats()
	log.Debugf("Handled %d changes, cleaned %d, average %v, max %v on %v",
		st.Runs, st.Changed, st.Average(), st.Max, st.MaxHost)
	return nil
}

func printRules(cmd *cobra.Command, _ []string) error {
	s, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	rs, err := cleanweb.LoadRules(s.Rules, s.options()...)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "# %v\n", s.Rules)
	return cleanweb.WriteRules(out, rs.Rules())
}

func clean(cmd *cobra.Command, args []string) error {
	s, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	rs, err := cleanweb.LoadRules(s.Rules, s.options()...)
	if err != nil {
		return err
	}
	rewrite := rs.Rewriter()
	out := cmd.OutOrStdout()

	if len(args) > 0 {
		for _, arg := range args {
			fmt.Fprintln(out, rewrite(arg).Text)
		}
		return nil
	}
	scanner := bufio.NewScanner(cmd.InOrStdin())
	for scanner.Scan() {
		fmt.Fprintln(out, rewrite(scanner.Text()).Text)
	}
	return scanner.Err()
}

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "cleanweb: %v\n", err)
		os.Exit(1)
	}
}
