package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"authgate/internal/api"
	"authgate/internal/auth"
	"authgate/internal/config"
	"authgate/internal/observability"
	"authgate/internal/store"

	"github.com/joho/godotenv"
)

const usage = `usage: authctl <command>

commands:
  status                      reconcile with the backend and print auth state
  login                       print the OAuth login URL to open in a browser
  complete <access> <refresh> exchange redirect tokens for a session cookie
  refresh                     extend the current session
  logout                      revoke the session and clear local state
`

// authctl is a stand-in consumer for the auth slice: it reads derived
// state and invokes controller actions, nothing else.
func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	log := observability.NewLogger(cfg.Env)

	snap, err := store.NewFileSnapshot(cfg.SnapshotPath)

	if err != nil {
		log.Error("snapshot path unavailable", "err", err)
		os.Exit(1)
	}

	st := store.New(snap, log)

	// the session cookie has to outlive a single command, so the jar
	// is file-backed like the snapshot
	client, err := api.NewPersistent(cfg.APIBaseURL, cfg.CookiePath, log)

	if err != nil {
		log.Error("cookie store unavailable", "err", err)
		os.Exit(1)
	}

	navigate := func(url string) {
		// the post-logout landing route means nothing outside a browser
		if !strings.HasPrefix(url, "http") {
			return
		}

		fmt.Println("open in your browser:")
		fmt.Println("  " + url)
	}

	ctrl := auth.New(client, st, navigate, log)

	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	switch os.Args[1] {
	case "status":
		ctrl.FetchUser(ctx)
		printState(st.State())

	case "login":
		ctrl.LoginWithGoogle()

	case "complete":
		if len(os.Args) != 4 {
			fmt.Fprint(os.Stderr, usage)
			os.Exit(2)
		}

		ctrl.CompleteLogin(ctx, os.Args[2], os.Args[3])
		printState(st.State())

	case "refresh":
		ctrl.RefreshSession(ctx)
		fmt.Println("refresh requested")

	case "logout":
		ctrl.Logout(ctx)
		printState(st.State())

	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
}

func printState(s store.State) {
	out, err := json.MarshalIndent(s, "", "  ")

	if err != nil {
		fmt.Println("unprintable state:", err)
		return
	}

	fmt.Println(string(out))
}
