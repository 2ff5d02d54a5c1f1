package main

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"intake-chat/internal/chat"
	"intake-chat/internal/config"
	"intake-chat/internal/store"
	"intake-chat/internal/ui"
)

// app carries the state shared by all subcommands.
type app struct {
	configPath string
	serverURL  string
	dataDir    string
	storage    string

	cfg     *config.ClientConfig
	kv      store.Store
	closers []io.Closer
	log     *log.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "intake-chat",
		Short: "Test-drive the counseling intake chat from the terminal",
		Long: `Opens the intake chat against a running intake-server. The conversation and
the workshop notes are kept in the local data directory between runs.

Keys: enter sends, alt+enter inserts a newline, alt+1..9 picks a quick reply,
ctrl+r starts over, ctrl+c quits.`,
		SilenceUsage:       true,
		PersistentPreRunE:  a.setup,
		PersistentPostRunE: a.teardown,
		RunE:               a.runChat,
	}
	f := root.PersistentFlags()
	f.StringVar(&a.configPath, "config", "", "Path to the client config (default "+config.ClientConfigPath()+")")
	f.StringVar(&a.serverURL, "server", "", "Base URL of the intake server")
	f.StringVar(&a.dataDir, "data-dir", "", "Directory for the conversation, notes and logs")
	f.StringVar(&a.storage, "storage", "", "Local storage backend: file, sqlite or memory")

	root.AddCommand(newResetCmd(a), newNotesCmd(a), newUnitsCmd(a), newConfigCmd(a))
	return root
}

func (a *app) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadClientConfig(a.configPath)
	if err != nil {
		return err
	}
	if a.serverURL != "" {
		cfg.ServerURL = a.serverURL
	}
	if a.dataDir != "" {
		cfg.DataDir = a.dataDir
	}
	if a.storage != "" {
		cfg.Storage = a.storage
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg

	if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	a.log = log.New()
	a.log.SetOutput(io.Discard)
	if lvl, err := log.ParseLevel(cfg.LogLevel); err == nil {
		a.log.SetLevel(lvl)
	}
	if lf, err := os.OpenFile(filepath.Join(cfg.DataDir, "intake-chat.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600); err == nil {
		a.log.SetOutput(lf)
		a.closers = append(a.closers, lf)
	}

	switch cfg.Storage {
	case config.StorageSQLite:
		s, err := store.NewSQLiteStore(cfg.DataDir)
		if err != nil {
			return err
		}
		a.kv = s
		a.closers = append(a.closers, s)
	case config.StorageMemory:
		a.kv = store.NewMemoryStore()
	default:
		s, err := store.NewFileStore(filepath.Join(cfg.DataDir, "store"))
		if err != nil {
			return err
		}
		a.kv = s
	}
	a.log.WithFields(log.Fields{"storage": cfg.Storage, "server": cfg.ServerURL}).Debug("client ready")
	return nil
}

func (a *app) teardown(*cobra.Command, []string) error {
	for i := len(a.closers) - 1; i >= 0; i-- {
		_ = a.closers[i].Close()
	}
	a.closers = nil
	return nil
}

func (a *app) client() *chat.Client {
	return chat.NewClient(a.cfg.ServerURL, &http.Client{Timeout: 2 * time.Minute})
}

func (a *app) controller() *chat.Controller {
	return chat.NewController(a.client(), a.kv, chat.WithLogger(a.log))
}

func (a *app) runChat(cmd *cobra.Command, _ []string) error {
	delay := time.Duration(a.cfg.TypingDelayMS) * time.Millisecond
	return ui.Run(cmd.Context(), a.controller(), ui.WithTypingDelay(delay))
}

func newResetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Discard the stored conversation and start over with the greeting",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a.controller().Reset()
			fmt.Fprintln(cmd.OutOrStdout(), "Gespräch zurückgesetzt.")
			return nil
		},
	}
}

func newUnitsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "units",
		Short: "List the organization's counseling units known to the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			org, err := a.client().Units(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, org.Name)
			for _, u := range org.Units {
				fmt.Fprintf(out, "  %-22s %s\n", u.Key, u.Title)
			}
			return nil
		},
	}
}
