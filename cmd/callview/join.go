package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/dkeye/callview/internal/adapters/capture"
	"github.com/dkeye/callview/internal/adapters/provider"
	"github.com/dkeye/callview/internal/adapters/webview"
	"github.com/dkeye/callview/internal/app"
	"github.com/dkeye/callview/internal/core"
	"github.com/dkeye/callview/internal/domain"
)

func newJoinCmd() *cobra.Command {
	var room, token, name string

	cmd := &cobra.Command{
		Use:   "join",
		Short: "Join a room; returns when the call ends",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if room != "" {
				cfg.Room = room
			}
			if token != "" {
				cfg.Token = token
			}
			if name != "" {
				cfg.DisplayName = name
			}

			capt, err := capture.New()
			if err != nil {
				return fmt.Errorf("capture provider: %w", err)
			}
			view := webview.New()
			prov := provider.New()
			prov.SetupEngine = capt.SetupEngine
			ctl := app.NewController(prov, capt, view)

			srv := &http.Server{
				Addr:    fmt.Sprintf(":%d", cfg.UIPort),
				Handler: view.SetupRouter(cfg),
			}
			go func() {
				log.Info().Str("addr", srv.Addr).Msg("callview UI started")
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Error().Err(err).Msg("UI server error")
				}
			}()

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			err = ctl.Join(ctx, core.Credentials{URL: cfg.ProviderURL, Token: cfg.Token}, app.JoinParams{
				Room:        domain.RoomName(cfg.Room),
				DisplayName: cfg.DisplayName,
				AudioDevice: cfg.AudioDevice,
				VideoDevice: cfg.VideoDevice,
			})

			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			if serr := srv.Shutdown(shutdownCtx); serr != nil {
				log.Error().Err(serr).Msg("UI server forced to shutdown")
			}

			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}

	cmd.Flags().StringVar(&room, "room", "", "room to join (overrides config)")
	cmd.Flags().StringVar(&token, "token", "", "access token (overrides config)")
	cmd.Flags().StringVar(&name, "name", "", "display name (overrides config)")
	return cmd
}
