package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v3"

	"github.com/fieldhouse/fieldhouse-go/auth"
	"github.com/fieldhouse/fieldhouse-go/session"
)

func cmdLogin() *cli.Command {
	var identifier, password string
	return &cli.Command{
		Name:  "login",
		Usage: "Sign in with email/username and password",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "identifier",
				Aliases:     []string{"i"},
				Usage:       "Email address or username",
				Destination: &identifier,
			},
			&cli.StringFlag{
				Name:        "password",
				Aliases:     []string{"p"},
				Usage:       "Password (prompted when omitted)",
				Destination: &password,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			a, err := newApp()
			if err != nil {
				return err
			}

			if identifier == "" {
				identifier = prompt("Email or username: ")
			}
			if password == "" {
				password = prompt("Password: ")
			}

			sess, err := a.auth.LoginWithPassword(ctx, identifier, password)
			if lockErr, locked := auth.IsLocked(err); locked {
				sess, err = unlockFlow(ctx, a, lockErr.Email)
			}
			if errors.Is(err, auth.ErrEmailNotVerified) {
				return errors.New("this account's email address is not verified yet; check your inbox")
			}
			if err != nil {
				return err
			}

			printSignedIn(sess)
			return nil
		},
	}
}

// unlockFlow collects the emailed 6-digit unlock code. An expired lockout
// falls back to plain login instead of retrying the unlock.
func unlockFlow(ctx context.Context, a *app, email string) (*session.Session, error) {
	fmt.Printf("Account %s is locked after repeated failed attempts.\n", email)
	fmt.Println("An unlock code has been sent to the account's email address.")

	for {
		code := prompt("Unlock code (6 digits, 'r' to resend, empty to abort): ")
		switch code {
		case "":
			return nil, errors.New("login aborted")
		case "r", "R":
			if err := a.auth.ResendUnlockCode(ctx, email); err != nil {
				fmt.Printf("Could not resend the code: %v\n", err)
			} else {
				fmt.Println("A new code is on its way.")
			}
			continue
		}

		sess, err := a.auth.UnlockAccount(ctx, email, code)
		if errors.Is(err, auth.ErrLockoutExpired) {
			return nil, errors.New("the lockout has expired; sign in again with your password")
		}
		if err != nil {
			fmt.Printf("Unlock failed: %v\n", err)
			continue
		}
		return sess, nil
	}
}

func printSignedIn(sess *session.Session) {
	name := sess.User.DisplayName
	if name == "" {
		name = sess.User.Email
	}
	fmt.Printf("Signed in as %s (%s)\n", name, sess.User.Role)
}

// stdin is shared across prompts so buffered input is not lost between reads.
var stdin = bufio.NewReader(os.Stdin)

func prompt(label string) string {
	fmt.Print(label)
	line, _ := stdin.ReadString('\n')
	return strings.TrimSpace(line)
}
