package cmd

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/parleychat/parley/internal/attach"
	"github.com/parleychat/parley/internal/config"
	"github.com/parleychat/parley/internal/convo"
	"github.com/parleychat/parley/internal/log"
	"github.com/parleychat/parley/internal/stream"
	"github.com/parleychat/parley/internal/transport"
	"github.com/parleychat/parley/internal/tui"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Open the chat interface",
	RunE:  runChat,
}

func init() {
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	logger := log.New(log.Config{Level: cfg.Level(), JSON: cfg.LogJSON})

	store := convo.NewStore(logger)
	tr := transport.NewWS(cfg.ServerURL, logger, transport.WithAuthToken(cfg.APIKey))

	notes := tui.NewNotes()
	ctrl := stream.NewController(store, tr, logger,
		stream.WithFlushInterval(cfg.FlushInterval()),
		stream.WithHooks(tui.Hooks(notes)),
	)

	uploader := attach.NewUploader(cfg.UploadURL, cfg.APIKey, logger)

	m, err := tui.New(ctrl, store, uploader, cfg, notes)
	if err != nil {
		return err
	}

	// Reopen the previous conversation so a restart can pick up a stream
	// the backend is still holding.
	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("resolve home directory: %w", err)
	}
	if prev, err := convo.LoadCurrentConversationID(home); err != nil {
		logger.Warn("session state unreadable", "error", err)
	} else if prev != nil {
		store.Restore(prev.String())
		m.SetConversation(prev.String())
	}

	if err := tr.Connect(ctx); err != nil {
		return fmt.Errorf("connect to %s: %w", cfg.ServerURL, err)
	}
	defer tr.Close() //nolint:errcheck

	// A stream may have survived the previous run; ask for the replay.
	if err := ctrl.RequestResume(""); err != nil {
		logger.Warn("initial resume request failed", "error", err)
	}

	runErr := tui.Run(ctx, m, tr, ctrl, logger)

	if cid := ctrl.ActiveConversation(); cid != "" {
		if parsed, err := uuid.Parse(cid); err == nil {
			if err := convo.SaveCurrentConversationID(home, parsed); err != nil {
				logger.Warn("session state not saved", "error", err)
			}
		}
	} else if err := convo.ClearCurrentConversationID(home); err != nil {
		logger.Warn("session state not cleared", "error", err)
	}

	return runErr
}
