package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/ecomstore/chatsync/internal/daemon"
	"github.com/ecomstore/chatsync/internal/session"
	"go.uber.org/fx"
)

func main() {
	sessionFlag := flag.String("session", "", "session name (overrides config default)")
	tokenFlag := flag.String("token", "", "service token (overrides CHATSYNC_TOKEN)")
	flag.Parse()

	sessionName := session.Resolve(*sessionFlag)
	if err := session.ValidateName(sessionName); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	credential := *tokenFlag
	if credential == "" {
		credential = os.Getenv("CHATSYNC_TOKEN")
	}
	if credential == "" {
		fmt.Fprintln(os.Stderr, "error: no service token (use -token or CHATSYNC_TOKEN)")
		os.Exit(1)
	}

	app := fx.New(
		daemon.Module(daemon.Params{
			SessionName: sessionName,
			Credential:  credential,
		}),
	)

	app.Run()
}
