package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/99designs/keyring"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/retailops/notifier/internal/platform/credential"
	"github.com/retailops/notifier/internal/platform/env"
	"github.com/retailops/notifier/internal/tui"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// readToken returns the operator token: OPSWATCH_TOKEN first, then the
// keyring entry written by "opswatch login".
func readToken(store *credential.Store) (string, error) {
	if tok := strings.TrimSpace(os.Getenv("OPSWATCH_TOKEN")); tok != "" {
		return tok, nil
	}
	tok, err := store.Get(credential.SessionTokenKey)
	if err != nil {
		if errors.Is(err, keyring.ErrKeyNotFound) {
			return "", errors.New("not logged in: run 'opswatch login <token>' or set OPSWATCH_TOKEN")
		}
		return "", err
	}
	return tok, nil
}

func run() error {
	apiURL := env.String("OPSWATCH_API_URL", "http://localhost"+env.DefaultListenAddr)
	store := credential.NewStore()

	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "login":
			if len(os.Args) != 3 {
				return errors.New("usage: opswatch login <token>")
			}
			if err := store.Set(credential.SessionTokenKey, strings.TrimSpace(os.Args[2])); err != nil {
				return err
			}
			fmt.Println("token saved")
			return nil
		case "logout":
			if err := store.Set(credential.SessionTokenKey, ""); err != nil {
				return err
			}
			fmt.Println("token cleared")
			return nil
		case "help", "--help", "-h":
			fmt.Println("usage: opswatch [login <token> | logout]")
			return nil
		default:
			return fmt.Errorf("unknown command %q", os.Args[1])
		}
	}

	token, err := readToken(store)
	if err != nil {
		return err
	}
	if token == "" {
		return errors.New("empty token: run 'opswatch login <token>'")
	}

	app := tui.NewApp(tui.NewClient(apiURL, token))
	_, err = tea.NewProgram(app, tea.WithAltScreen()).Run()
	return err
}
