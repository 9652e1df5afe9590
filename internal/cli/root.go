package cli

import (
	"errors"
	"fmt"
	"io/fs"

	"chat-widget/internal/backend"
	"chat-widget/internal/chat"
	"chat-widget/internal/config"
	"chat-widget/internal/export"
	"chat-widget/internal/journal"
	"chat-widget/internal/logging"
	"chat-widget/internal/ui"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

type app struct {
	v          *viper.Viper
	configFile string
	cfg        config.AppConfig
}

func NewRootCommand(version string) *cobra.Command {
	a := &app{v: config.NewViper()}

	root := &cobra.Command{
		Use:           "chatwidget",
		Short:         "Floating chat panel for a conversational backend",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.load()
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runPanel()
		},
	}
	root.PersistentFlags().StringVar(&a.configFile, "config", "", "config file (yaml, toml or json)")
	config.RegisterFlags(root.PersistentFlags(), a.v)

	root.AddCommand(
		newSendCommand(a),
		newJournalCommand(a),
		newServeEchoCommand(a),
	)
	return root
}

func (a *app) load() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}
	if err := config.ReadFile(a.v, a.configFile); err != nil {
		return err
	}
	cfg, err := config.Load(a.v)
	if err != nil {
		return err
	}
	a.cfg = cfg
	return nil
}

// newController wires the HTTP backend and, when configured, the journal.
// The returned func flushes pending records and releases the journal.
func (a *app) newController() (*chat.Controller, func(), error) {
	opts := []chat.Option{
		chat.WithUserID(a.cfg.UserID),
		chat.WithTimeout(a.cfg.Timeout),
	}
	if a.cfg.VerboseErrors {
		opts = append(opts, chat.WithErrorRenderer(chat.DetailedErrorText))
	}

	var j *journal.Journal
	if a.cfg.JournalPath != "" {
		var err error
		j, err = journal.Open(a.cfg.JournalPath)
		if err != nil {
			return nil, nil, err
		}
		opts = append(opts, chat.WithRecorder(j))
	}

	ctrl := chat.NewController(backend.New(a.cfg.Endpoint), opts...)
	cleanup := func() {
		ctrl.Wait()
		if j == nil {
			return
		}
		if err := j.Close(); err != nil {
			log.Error().Err(err).Msg("close journal")
		}
	}
	return ctrl, cleanup, nil
}

func (a *app) runPanel() error {
	closeLog, err := logging.Setup(a.cfg.LogFile, a.cfg.LogLevel)
	if err != nil {
		return err
	}
	defer closeLog()

	exp, err := export.New(a.cfg.ExportDir, a.cfg.Endpoint)
	if err != nil {
		return err
	}
	ctrl, cleanup, err := a.newController()
	if err != nil {
		return err
	}
	defer cleanup()

	log.Info().
		Str("session", ctrl.SessionID()).
		Str("endpoint", a.cfg.Endpoint).
		Dur("timeout", a.cfg.Timeout).
		Msg("starting chat panel")

	p := tea.NewProgram(ui.NewModel(a.cfg, ctrl, exp), tea.WithAltScreen())
	_, err = p.Run()
	return err
}
