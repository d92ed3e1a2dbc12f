package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"
)

func main() {
	app, err := SetupApp()
	if err != nil {
		log.Fatalf("setup failed: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		done <- app.Run()
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)

	for {
		select {
		case err := <-done:
			if err != nil {
				log.Printf("run error: %v", err)
			}
			shutdown(app)
			return
		case s := <-sig:
			if s == syscall.SIGHUP {
				// Operator asked for a rotation: cut the current object now.
				ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				if err := app.Rotate(ctx); err != nil {
					log.Printf("rotate failed: %v", err)
				}
				cancel()
				continue
			}
			log.Println("shutdown signal received")
			shutdown(app)
			return
		}
	}
}

func shutdown(app *App) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := app.Shutdown(ctx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
