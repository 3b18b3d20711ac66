package main

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/hvgate/hvgate/internal/config"
	"github.com/hvgate/hvgate/internal/credstore"
)

func credsCommand() *cli.Command {
	return &cli.Command{
		Name:  "creds",
		Usage: "Manage the gateway's encrypted credential store",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "path",
				Usage: "location of the credentials file",
				Value: filepath.Join("credentials", "hvgate.cred"),
			},
		},
		Subcommands: []*cli.Command{
			{
				Name:  "init",
				Usage: "Create the credential store (fails if it already exists)",
				Flags: credsValueFlags(),
				Action: func(c *cli.Context) error {
					store := credstore.New(c.String("path"))
					if store.Exists() {
						return fmt.Errorf("credentials already exist at %q - use 'creds reset' to replace them", store.Path())
					}
					return writeCreds(c, store)
				},
			},
			{
				Name:  "reset",
				Usage: "Delete and recreate the credential store",
				Flags: credsValueFlags(),
				Action: func(c *cli.Context) error {
					store := credstore.New(c.String("path"))
					if err := store.Delete(); err != nil {
						return fmt.Errorf("removing old credentials: %w", err)
					}
					return writeCreds(c, store)
				},
			},
			{
				Name:  "show",
				Usage: "Print the stored credentials (secrets redacted)",
				Action: func(c *cli.Context) error {
					creds, err := credstore.New(c.String("path")).Load()
					if err != nil {
						return err
					}
					if creds == nil {
						return fmt.Errorf("no readable credentials at %q", c.String("path"))
					}

					fmt.Printf("api key:     %s\n", redact(creds.APIKey))
					fmt.Printf("hmac secret: %s\n", redact(creds.HMACSecret))
					fmt.Printf("allow ips:   %s\n", strings.Join(creds.AllowIPs, ", "))
					fmt.Printf("created:     %s\n", creds.CreatedAt.Format("2006-01-02 15:04:05 MST"))
					return nil
				},
			},
		},
	}
}

func credsValueFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "api-key",
			Usage: "shared API key - generated randomly when omitted",
		},
		&cli.StringFlag{
			Name:  "hmac-secret",
			Usage: "shared HMAC signing secret - generated randomly when omitted",
		},
		&cli.StringFlag{
			Name:  "allow-ips",
			Usage: "comma-separated client IP allow-list - empty means unrestricted",
		},
	}
}

func writeCreds(c *cli.Context, store *credstore.Store) error {
	apiKey := c.String("api-key")
	if apiKey == "" {
		var err error
		if apiKey, err = randomToken(); err != nil {
			return err
		}
	}

	secret := c.String("hmac-secret")
	if secret == "" {
		var err error
		if secret, err = randomToken(); err != nil {
			return err
		}
	}

	allowIPs := config.SplitIPs(c.String("allow-ips"))
	if err := store.Save(apiKey, secret, allowIPs); err != nil {
		return err
	}

	// print the full values exactly once - they are not recoverable in
	// cleartext through 'creds show'
	fmt.Printf("wrote %s\n", store.Path())
	fmt.Printf("api key:     %s\n", apiKey)
	fmt.Printf("hmac secret: %s\n", secret)
	if len(allowIPs) > 0 {
		fmt.Printf("allow ips:   %s\n", strings.Join(allowIPs, ", "))
	}
	return nil
}

func randomToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating random token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

func redact(val string) string {
	if len(val) <= 8 {
		return "********"
	}
	return val[:4] + strings.Repeat("*", 8) + val[len(val)-4:]
}
