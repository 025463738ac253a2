package app

import (
	"fmt"
	"os"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	cliflag "k8s.io/component-base/cli/flag"
	"k8s.io/component-base/term"

	"github.com/autopeer-io/nodeagent/pkg/log"
	"github.com/autopeer-io/nodeagent/pkg/version"
)

// EnvPrefix is prepended to every environment variable bound to a flag,
// e.g. CPEER_MQTT_TOKEN for --mqtt.token.
const EnvPrefix = "CPEER"

const configFlagName = "config"

// NamedFlagSetOptions is implemented by the options of every command.
type NamedFlagSetOptions interface {
	// Flags returns the flags grouped by section.
	Flags() cliflag.NamedFlagSets
	// Complete fills in defaults derived from other fields.
	Complete() error
	// Validate checks the options after Complete.
	Validate() error
}

// LogOptionsProvider is implemented by options that carry log settings.
// The app initializes the global logger from them and re-applies the level
// when the config file changes.
type LogOptionsProvider interface {
	LogOptions() *log.Options
}

// RunFunc is the main entry of a command.
type RunFunc func() error

// Option configures an App.
type Option func(*App)

// App is a cobra command with options bound to flags, the environment and an
// optional config file.
type App struct {
	name        string
	shortDesc   string
	description string
	options     NamedFlagSetOptions
	runFunc     RunFunc
	noConfig    bool
	args        cobra.PositionalArgs

	viper *viper.Viper
	cmd   *cobra.Command
}

// WithDescription sets the long description of the command.
func WithDescription(desc string) Option {
	return func(a *App) { a.description = desc }
}

// WithOptions binds opts to the command flags.
func WithOptions(opts NamedFlagSetOptions) Option {
	return func(a *App) { a.options = opts }
}

// WithRunFunc sets the function executed once options are loaded.
func WithRunFunc(run RunFunc) Option {
	return func(a *App) { a.runFunc = run }
}

// WithNoConfig removes the --config flag.
func WithNoConfig() Option {
	return func(a *App) { a.noConfig = true }
}

// WithValidArgs sets the positional argument validator.
func WithValidArgs(args cobra.PositionalArgs) Option {
	return func(a *App) { a.args = args }
}

// WithDefaultValidArgs rejects any positional argument.
func WithDefaultValidArgs() Option {
	return func(a *App) {
		a.args = func(cmd *cobra.Command, args []string) error {
			for _, arg := range args {
				if len(arg) > 0 {
					return fmt.Errorf("%q does not take any arguments, got %q", cmd.CommandPath(), args)
				}
			}
			return nil
		}
	}
}

// NewApp builds the command tree for name.
func NewApp(name string, shortDesc string, opts ...Option) *App {
	a := &App{
		name:      name,
		shortDesc: shortDesc,
		viper:     viper.New(),
	}
	for _, o := range opts {
		o(a)
	}
	a.buildCommand()
	return a
}

// Command returns the root cobra command.
func (a *App) Command() *cobra.Command {
	return a.cmd
}

// Run executes the command with os.Args. A returned error has already been
// printed to the command's error output.
func (a *App) Run() error {
	if err := a.cmd.Execute(); err != nil {
		a.cmd.PrintErrf("Error: %v\n", err)
		return err
	}
	return nil
}

func (a *App) buildCommand() {
	cmd := &cobra.Command{
		Use:           a.name,
		Short:         a.shortDesc,
		Long:          a.description,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          a.args,
	}
	cmd.SetOut(os.Stdout)
	cmd.SetErr(os.Stderr)
	cmd.Flags().SortFlags = true

	var fss cliflag.NamedFlagSets
	if a.options != nil {
		fss = a.options.Flags()
	}
	if !a.noConfig {
		addConfigFlag(a.name, fss.FlagSet("global"))
	}
	fss.FlagSet("global").BoolP("help", "h", false, fmt.Sprintf("help for %s", a.name))
	for _, f := range fss.FlagSets {
		cmd.Flags().AddFlagSet(f)
	}

	if a.runFunc != nil {
		cmd.RunE = a.runCommand
	}
	cmd.AddCommand(newVersionCommand())

	cols, _, _ := term.TerminalSize(cmd.OutOrStdout())
	cliflag.SetUsageAndHelpFunc(cmd, fss, cols)

	a.cmd = cmd
}

func (a *App) runCommand(cmd *cobra.Command, _ []string) error {
	if err := a.loadConfig(cmd.Flags()); err != nil {
		return err
	}

	if a.options != nil {
		if err := a.applyOptions(); err != nil {
			return err
		}
	}

	if p, ok := a.options.(LogOptionsProvider); ok {
		log.Init(p.LogOptions())
		defer log.Sync() //nolint:errcheck
		a.watchLogLevel(p)
	}

	log.Info("Starting application", "name", a.name, "version", version.Get().GitVersion)
	if cfg := a.viper.ConfigFileUsed(); cfg != "" {
		log.Info("Using config file", "path", cfg)
	}

	return a.runFunc()
}

// loadConfig binds flags and environment variables, then reads the config
// file if one was given.
func (a *App) loadConfig(fs *pflag.FlagSet) error {
	v := a.viper
	if err := v.BindPFlags(fs); err != nil {
		return fmt.Errorf("failed to bind flags: %w", err)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if a.noConfig {
		return nil
	}
	cfgFile, _ := fs.GetString(configFlagName)
	if cfgFile == "" {
		return nil
	}
	v.SetConfigFile(cfgFile)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read configuration file(%s): %w", cfgFile, err)
	}
	return nil
}

func (a *App) applyOptions() error {
	if err := a.viper.Unmarshal(a.options); err != nil {
		return fmt.Errorf("failed to unmarshal options: %w", err)
	}
	if err := a.options.Complete(); err != nil {
		return fmt.Errorf("failed to complete options: %w", err)
	}
	return a.options.Validate()
}

// watchLogLevel re-applies the log level whenever the config file changes.
// Other options only take effect on restart.
func (a *App) watchLogLevel(p LogOptionsProvider) {
	if a.viper.ConfigFileUsed() == "" {
		return
	}
	a.viper.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		level := a.viper.GetString("log.level")
		if level == "" || level == p.LogOptions().Level {
			return
		}
		if err := log.SetLevel(level); err != nil {
			log.Error(err, "Ignoring invalid log level from config file", "level", level)
			return
		}
		p.LogOptions().Level = level
		log.Info("Log level changed", "level", level, "path", e.Name)
	})
	a.viper.WatchConfig()
}

func addConfigFlag(name string, fs *pflag.FlagSet) {
	fs.StringP(configFlagName, "c", "", fmt.Sprintf("Read configuration from the specified file. Supported formats: JSON, TOML, YAML. Environment variables prefixed with %s_ override it (e.g. %s_MQTT_TOKEN for %s --mqtt.token).", EnvPrefix, EnvPrefix, name))
}
