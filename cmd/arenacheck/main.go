// arenacheck probes an arena deployment: one REST list call, then a short
// listen on the live socket. Useful when wiring a new environment.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/swingmate-app/challenge-engine/internal/arena"
)

func main() {
	baseURL := os.Getenv("ARENA_BASE_URL")
	wsURL := os.Getenv("ARENA_WS_URL")
	token := os.Getenv("AUTH_TOKEN")

	if baseURL == "" {
		log.Fatal("ARENA_BASE_URL is required")
	}

	cred := arena.Anonymous()
	if token != "" {
		cred = arena.NewCredential(token)
	}

	client := arena.NewClient(baseURL, cred, arena.WithTimeout(8*time.Second))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	sessions, err := client.ListChallenges(ctx)
	if err != nil {
		log.Printf("list error: %v", err)
	} else {
		log.Printf("list ok: %d challenge(s)", len(sessions))
		for _, s := range sessions {
			log.Printf("  %s state=%s kind=%s participants=%d", s.ID, s.State, s.Kind, s.ParticipantCount())
		}
	}

	if wsURL == "" {
		log.Println("ARENA_WS_URL not set; skipping socket check")
		return
	}
	if cred.Anonymous() {
		log.Println("AUTH_TOKEN not set; socket requires a credential, skipping")
		return
	}

	sock := arena.NewSocket(wsURL, "challenges", cred)
	sock.OnState(func(state arena.ConnState, attempt int) {
		log.Printf("socket state: %s (attempt %d)", state, attempt)
	})
	sock.OnFrame(func(data []byte) {
		fmt.Printf("frame: %s\n", data)
	})

	cctx, ccancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer ccancel()
	sock.Connect(cctx)

	// observe for a short window
	t := time.NewTimer(10 * time.Second)
	<-t.C

	_ = sock.Close(context.Background())
}
