package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/RoofStorm/tiger-engagement/internal/app"
	"github.com/RoofStorm/tiger-engagement/internal/auth"
	"github.com/RoofStorm/tiger-engagement/internal/config"
	"github.com/RoofStorm/tiger-engagement/internal/dispatch"
	"github.com/RoofStorm/tiger-engagement/internal/model"
	"github.com/RoofStorm/tiger-engagement/internal/popup"
	"github.com/RoofStorm/tiger-engagement/internal/zone"
	"github.com/RoofStorm/tiger-engagement/pkg/logger"
	"go.uber.org/zap"
)

func main() {
	var userID string
	var dwell time.Duration

	flag.StringVar(&userID, "user", "", "Log in as this user after the first page (anonymous when empty)")
	flag.DurationVar(&dwell, "dwell", 4*time.Second, "How long the simulated visitor looks at each zone")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.NewLogger(cfg.LogLevel, cfg.Environment)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync(log)
	log = logger.WithService(log, "demo-client")

	ctx := context.Background()
	client, err := app.New(ctx, app.Options{Client: cfg.Client, Logger: log})
	if err != nil {
		log.Fatal("Failed to initialize tracking", zap.Error(err))
	}

	client.Popups().Subscribe(func(item popup.Item) {
		log.Info("Popup shown", zap.String("type", string(item.Type)), zap.Any("payload", item.Payload))
		go client.Popups().CloseCurrent()
	})

	fmt.Printf("Session: %s\n", client.SessionID(ctx))
	client.SetReady(ctx)

	nav := client.Navigation()
	nav.Navigate("home")

	hero := client.Zone(zone.Config{Page: "home", Zone: "hero", Component: "banner"})
	viewport := zone.Rect{Width: 1280, Height: 720}
	hero.ObserveRects(zone.Rect{Top: 100, Width: 1280, Height: 400}, viewport)

	client.Corners().Enter(1)
	time.Sleep(dwell)
	client.Corners().Leave(1)

	hero.ObserveRects(zone.Rect{Top: 900, Width: 1280, Height: 400}, viewport)
	client.Track(dispatch.Event{Page: "home", Component: "cta", Action: model.ActionClick})

	if userID != "" {
		token, err := auth.NewAuthenticator(cfg.JWTSecret, "tiger-nhip-song", log).Issue(userID, time.Hour)
		if err != nil {
			log.Fatal("Failed to issue token", zap.Error(err))
		}
		client.Login(ctx, userID, token)
		fmt.Printf("Logged in as %s, %d unread notifications\n", userID, client.Feed().UnreadCount())
	}

	nav.Navigate("challenge")
	form := client.Zone(zone.Config{Page: "challenge", Zone: "form"})
	form.Observe(zone.Entry{Intersecting: true, Ratio: 1})
	client.Track(dispatch.Event{Page: "challenge", Component: "form", Action: model.ActionStart})
	time.Sleep(dwell)
	client.Track(dispatch.Event{Page: "challenge", Component: "form", Action: model.ActionSubmit})

	if err := client.Flush(ctx); err != nil {
		log.Warn("Flush failed", zap.Error(err))
	}

	client.Close()
	client.Wait()
	fmt.Println("Done")
}
