package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/park285/cheese-chess-web/internal/apiclient"
	"github.com/park285/cheese-chess-web/internal/domain"
	"github.com/park285/cheese-chess-web/internal/leaderboard"
	"github.com/park285/cheese-chess-web/pkg/chessdto"
)

func main() {
	baseURL := flag.String("url", os.Getenv("LEADERBOARD_API_URL"), "base URL of the chess web server")
	initTables := flag.Bool("init", false, "create leaderboard tables before reading")
	watch := flag.String("watch", "", "game id whose event stream to follow")
	window := flag.Duration("for", 10*time.Second, "how long to follow -watch")
	flag.Parse()

	if *baseURL == "" {
		log.Fatal("-url or LEADERBOARD_API_URL is required")
	}

	client := apiclient.NewClient(*baseURL,
		apiclient.WithTimeout(8*time.Second),
		apiclient.WithRetry(2),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if *initTables {
		if err := client.Init(ctx); err != nil {
			log.Printf("init error: %v", err)
		} else {
			log.Println("init ok")
		}
	}

	for _, d := range domain.Difficulties {
		entries, err := client.Top(ctx, d)
		if err != nil {
			log.Printf("%s: %v", d, err)
			continue
		}
		fmt.Printf("== %s (%d)\n", d, len(entries))
		for i, e := range entries {
			fmt.Printf("%d. %-20s %6s  %s\n", i+1, e.PlayerName, leaderboard.FormatTime(e.TimeSeconds), e.CreatedAt.Format(time.DateTime))
		}
	}

	if *watch == "" {
		return
	}
	wsURL, err := apiclient.EventsURL(*baseURL, *watch)
	if err != nil {
		log.Fatalf("events url: %v", err)
	}
	stream := apiclient.NewEventStream(wsURL, 5, time.Second)
	stream.OnStateChange(func(s apiclient.StreamState) {
		log.Printf("stream state: %s", s)
	})
	stream.OnEvent(func(ev *chessdto.GameEvent) {
		switch {
		case ev.State != nil:
			fmt.Printf("%s moves=%d outcome=%s elapsed=%s\n", ev.Type, len(ev.State.Moves), ev.State.Outcome, ev.State.ElapsedDisplay)
		case ev.Move != "":
			fmt.Printf("%s %s\n", ev.Type, ev.Move)
		default:
			fmt.Printf("%s %s\n", ev.Type, ev.Message)
		}
	})

	cctx, ccancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer ccancel()
	if err := stream.Connect(cctx); err != nil {
		log.Printf("stream connect error: %v", err)
	}

	t := time.NewTimer(*window)
	<-t.C

	closeCtx, closeCancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer closeCancel()
	_ = stream.Close(closeCtx)
}
