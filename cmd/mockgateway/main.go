// Command mockgateway serves an in-memory mock of the remote
// conversation service for local development of the sync engine.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/sitechat/chatsync/internal/logging"
	"github.com/sitechat/chatsync/internal/mockapi"
)

func main() {
	addr := flag.String("addr", ":8000", "Listen address")
	dev := flag.Bool("dev", true, "Development logging")
	flag.Parse()

	var log *logging.Logger
	if *dev {
		log = logging.NewDevelopment()
	} else {
		log = logging.NewDefault()
	}
	defer log.Sync()

	srv := &http.Server{
		Addr:    *addr,
		Handler: mockapi.NewServer(log.Named("mockapi")).Router(),
	}

	errChan := make(chan error, 1)
	go func() {
		log.Info("mock gateway listening", zap.String("addr", *addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigChan:
		log.Info("shutting down gracefully")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.Error("shutdown error", zap.Error(err))
		}
	case err := <-errChan:
		log.Fatal("server error", zap.Error(err))
	}
}
