// Command mock-evaluator stands in for the report evaluator during local runs.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"honeypot-lab/pkg/logger"
)

func main() {
	addr := flag.String("addr", ":8090", "listen address")
	failFirst := flag.Int("fail-first", 0, "answer the first N submissions with 503")
	flag.Parse()

	log := logger.NewDevelopment()

	server := &http.Server{
		Addr:         *addr,
		Handler:      newEvaluator(*failFirst, log).routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	log.Info().Str("addr", *addr).Msg("mock evaluator listening")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("mock evaluator failed")
	}
}
