package commands

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/urfave/cli/v3"
	"golang.org/x/term"

	"github.com/dohr-michael/forge/internal/config"
	"github.com/dohr-michael/forge/internal/secrets"
)

// NewSecretCommand returns the secret subcommand.
func NewSecretCommand() *cli.Command {
	return &cli.Command{
		Name:  "secret",
		Usage: "Manage entries of the forge .env file",
		Commands: []*cli.Command{
			{
				Name:      "set",
				Usage:     "Add or replace an entry",
				ArgsUsage: "<KEY> [VALUE]",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "encrypt",
						Usage: "Store the value age-encrypted",
					},
				},
				Action: runSecretSet,
			},
		},
	}
}

func runSecretSet(_ context.Context, cmd *cli.Command) error {
	setupLogging(cmd)
	key, value := cmd.Args().Get(0), cmd.Args().Get(1)
	if key == "" {
		return fmt.Errorf("usage: forge secret set <KEY> [VALUE]")
	}
	if value == "" {
		var err error
		if value, err = promptValue(key); err != nil {
			return err
		}
	}

	if cmd.Bool("encrypt") {
		identity, err := secrets.LoadIdentity(config.KeyPath())
		if err != nil {
			return fmt.Errorf("%w (run forge init)", err)
		}
		if value, err = secrets.Encrypt(value, identity.Recipient()); err != nil {
			return err
		}
	}

	path := config.DotenvPath()
	if err := secrets.SetEntry(path, key, value); err != nil {
		return err
	}
	fmt.Printf("%s written to %s.\n", key, path)
	return nil
}

// promptValue reads a secret from the terminal without echoing it.
func promptValue(key string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("no value given for %s and stdin is not a terminal", key)
	}
	fmt.Fprintf(os.Stderr, "%s: ", key)
	raw, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", key, err)
	}
	value := strings.TrimSpace(string(raw))
	if value == "" {
		return "", fmt.Errorf("empty value for %s", key)
	}
	return value, nil
}
