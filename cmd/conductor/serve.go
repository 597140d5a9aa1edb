package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/conductor-ai/conductor/internal/orchestrator"
)

func newServeCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server streaming agent events as NDJSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath, _ := cmd.Flags().GetString("config")

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			rt, err := buildRuntime(ctx, configPath)
			if err != nil {
				return err
			}
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				rt.close(shutdownCtx)
			}()

			server := &http.Server{
				Addr:              addr,
				Handler:           newHandler(rt),
				ReadHeaderTimeout: 10 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() { errCh <- server.ListenAndServe() }()
			rt.logger.Info("server listening", "addr", addr)

			select {
			case <-ctx.Done():
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				return server.Shutdown(shutdownCtx)
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			}
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8090", "listen address")
	return cmd
}

type messageRequest struct {
	Platform     string `json:"platform"`
	PlatformID   string `json:"platform_id"`
	ContextID    string `json:"context_id,omitempty"`
	Text         string `json:"text"`
	ConfirmToken string `json:"confirm_token,omitempty"`
}

func newHandler(rt *runtime) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})
	mux.HandleFunc("POST /v1/messages", func(w http.ResponseWriter, r *http.Request) {
		var req messageRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		if req.Platform == "" {
			req.Platform = "http"
		}
		if req.PlatformID == "" {
			req.PlatformID = r.RemoteAddr
		}

		events, err := rt.dispatcher.Stream(r.Context(), orchestrator.Inbound{
			Platform:     req.Platform,
			PlatformID:   req.PlatformID,
			ContextID:    req.ContextID,
			Text:         req.Text,
			ConfirmToken: req.ConfirmToken,
		})
		if err != nil {
			rt.logger.Error("request rejected", "error", err)
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
			return
		}

		w.Header().Set("Content-Type", "application/x-ndjson")
		w.WriteHeader(http.StatusOK)
		flusher, _ := w.(http.Flusher)
		enc := json.NewEncoder(w)
		for event := range events {
			if err := enc.Encode(event); err != nil {
				return
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
	})
	return mux
}
