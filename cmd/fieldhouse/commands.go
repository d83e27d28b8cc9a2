package main

import (
	"context"
	"fmt"

	"github.com/common-nighthawk/go-figure"
	"github.com/urfave/cli/v3"

	"github.com/fieldhouse/fieldhouse-go/apimodel"
	"github.com/fieldhouse/fieldhouse-go/auth"
	"github.com/fieldhouse/fieldhouse-go/internal/utils"
	"github.com/fieldhouse/fieldhouse-go/realtime"
	"github.com/fieldhouse/fieldhouse-go/session"
)

func cmdWhoami() *cli.Command {
	return &cli.Command{
		Name:  "whoami",
		Usage: "Show the signed-in user",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			a, err := newApp()
			if err != nil {
				return err
			}

			sess, err := a.auth.CheckSession(ctx)
			if err != nil {
				return err
			}
			if sess == nil {
				fmt.Println("Not signed in.")
				return nil
			}

			fmt.Printf("User:    %s\n", sess.User.Email)
			if sess.User.DisplayName != "" {
				fmt.Printf("Name:    %s\n", sess.User.DisplayName)
			}
			fmt.Printf("Role:    %s\n", sess.User.Role)
			if sess.User.IsAdmin {
				fmt.Println("Admin:   yes")
			}

			if claims, expired, err := a.auth.TokenClaims(); err == nil && !claims.ExpiresAt.IsZero() {
				fmt.Printf("Token:   expires %s", claims.ExpiresAt.Format("2006-01-02 15:04:05"))
				if expired {
					fmt.Print(" (expired, will refresh on next call)")
				}
				fmt.Println()
			}
			return nil
		},
	}
}

func cmdLogout() *cli.Command {
	return &cli.Command{
		Name:  "logout",
		Usage: "Sign out and clear local credentials",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			if _, err := a.auth.CheckSession(ctx); err != nil {
				a.logger.Debug().Err(err).Msg("session check before logout")
			}
			return a.auth.Logout(ctx)
		},
	}
}

func cmdWatch() *cli.Command {
	var venues []string
	return &cli.Command{
		Name:  "watch",
		Usage: "Stay connected and react to account/venue events",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:        "venue",
				Usage:       "Venue IDs whose rosters to watch",
				Destination: &venues,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			a, err := newApp()
			if err != nil {
				return err
			}

			figure.NewFigure(a.cfg.GetAppName(), "cybermedium", true).Print()
			fmt.Println()

			sess, err := a.auth.CheckSession(ctx)
			if err != nil {
				return err
			}
			if sess == nil {
				return fmt.Errorf("not signed in; run 'fieldhouse login' first")
			}

			channel := realtime.NewChannel(realtime.Options{
				URL:           a.cfg.GetRealtimeURL(),
				Source:        a.tokens,
				Handler:       a.auth,
				OnAuthFailure: a.auth.ConnectionRejected,
				Logger:        a.logger,
			})
			a.auth.SetChannel(channel)
			channel.Connect(ctx)
			defer channel.Close()

			for _, venueID := range venues {
				if err := channel.JoinRoom("venue:" + venueID); err != nil {
					a.logger.Warn().Err(err).Str("venue", venueID).Msg("joining venue room")
				}
			}

			a.auth.StartDeletionWatcher(ctx, a.cfg.GetVerifyInterval())
			a.auth.Subscribe(func(state auth.State, sess *session.Session) {
				if state != auth.StateAuthenticated {
					fmt.Println("Session ended.")
				}
			})

			fmt.Println("Watching for events. Press Ctrl-C to stop.")
			<-ctx.Done()
			return nil
		},
	}
}

func cmdProfile() *cli.Command {
	var name, photo, cover string
	return &cli.Command{
		Name:  "profile",
		Usage: "Show or update the signed-in user's profile",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "name",
				Usage:       "New display name",
				Destination: &name,
			},
			&cli.StringFlag{
				Name:        "photo",
				Usage:       "New profile photo URL",
				Destination: &photo,
			},
			&cli.StringFlag{
				Name:        "cover",
				Usage:       "New cover photo URL",
				Destination: &cover,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			sess, err := a.auth.CheckSession(ctx)
			if err != nil {
				return err
			}
			if sess == nil {
				return fmt.Errorf("not signed in; run 'fieldhouse login' first")
			}

			update := apimodel.ProfileUpdate{}
			if cmd.IsSet("name") {
				update.DisplayName = utils.Ptr(name)
			}
			if cmd.IsSet("photo") {
				update.PhotoURL = utils.Ptr(photo)
			}
			if cmd.IsSet("cover") {
				update.CoverPhoto = utils.Ptr(cover)
			}

			if update.DisplayName != nil || update.PhotoURL != nil || update.CoverPhoto != nil {
				if sess, err = a.auth.UpdateProfile(ctx, update); err != nil {
					return err
				}
				fmt.Println("Profile updated.")
			}

			if sess.User.DisplayName != "" {
				fmt.Printf("Name:  %s\n", sess.User.DisplayName)
			}
			fmt.Printf("Email: %s\n", sess.User.Email)
			if sess.User.PhotoURL != "" {
				fmt.Printf("Photo: %s\n", sess.User.PhotoURL)
			}
			return nil
		},
	}
}

func cmdVenues() *cli.Command {
	return &cli.Command{
		Name:      "venues",
		Usage:     "List venues, or show one venue and its scheduled sessions",
		ArgsUsage: "[venue-id]",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			if _, err := a.auth.CheckSession(ctx); err != nil {
				return err
			}

			if id := cmd.Args().First(); id != "" {
				return showVenue(ctx, a, id)
			}

			venues, err := a.api.Venues(ctx)
			if err != nil {
				return err
			}
			for _, v := range venues {
				fmt.Printf("%-26s %s\n", v.ID, v.Name)
			}
			return nil
		},
	}
}

func showVenue(ctx context.Context, a *app, id string) error {
	venue, err := a.api.Venue(ctx, id)
	if err != nil {
		return err
	}
	fmt.Printf("%s\n", venue.Name)
	if venue.Address != "" {
		fmt.Printf("  %s\n", venue.Address)
	}
	for _, sport := range venue.Sports {
		fmt.Printf("  - %s\n", sport)
	}

	sessions, err := a.api.VenueSessions(ctx, id)
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		fmt.Println("No sessions scheduled.")
		return nil
	}
	fmt.Println("Sessions:")
	for _, s := range sessions {
		fmt.Printf("  %s  %-12s %s - %s (%d/%d)\n",
			s.ID, s.Sport,
			s.StartsAt.Local().Format("Mon 02 Jan 15:04"),
			s.EndsAt.Local().Format("15:04"),
			len(s.Attendee), s.Capacity)
	}
	return nil
}

func cmdClubs() *cli.Command {
	var join, leave string
	return &cli.Command{
		Name:  "clubs",
		Usage: "List, join or leave clubs",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "join",
				Usage:       "Club ID to join",
				Destination: &join,
			},
			&cli.StringFlag{
				Name:        "leave",
				Usage:       "Club ID to leave",
				Destination: &leave,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			if _, err := a.auth.CheckSession(ctx); err != nil {
				return err
			}

			if join != "" {
				return a.api.JoinClub(ctx, join)
			}
			if leave != "" {
				return a.api.LeaveClub(ctx, leave)
			}

			clubs, err := a.api.Clubs(ctx)
			if err != nil {
				return err
			}
			for _, c := range clubs {
				marker := " "
				if c.Joined {
					marker = "*"
				}
				fmt.Printf("%s %-26s %s (%d members)\n", marker, c.ID, c.Name, c.MemberCount)
			}
			return nil
		},
	}
}
