package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newLoginCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Sign a challenge with the wallet and open a session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := a.client.CreateSession(cmd.Context())
			if err != nil {
				return err
			}
			if err := writeSession(a.cfg.Session.File, s.Token); err != nil {
				return err
			}
			out := struct {
				Wallet    string    `json:"wallet"`
				ExpiresAt time.Time `json:"expires_at"`
			}{s.Wallet, s.ExpiresAt}
			return a.output(cmd, out, func() error {
				_, err := fmt.Fprintf(cmd.OutOrStdout(), "logged in as %s (expires %s)\n",
					s.Wallet, s.ExpiresAt.Local().Format("2006-01-02 15:04"))
				return err
			})
		},
	}
}

func newLogoutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Revoke the session and forget it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			err := a.client.Logout(cmd.Context())
			// the local copy goes either way
			if werr := writeSession(a.cfg.Session.File, ""); werr != nil {
				err = errors.Join(err, werr)
			}
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), "logged out")
			return err
		},
	}
}

func newWhoamiCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Check the stored session with the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			v, err := a.client.ValidateSession(cmd.Context())
			if err != nil {
				return err
			}
			if !v.Valid {
				if err := writeSession(a.cfg.Session.File, ""); err != nil {
					return err
				}
			}
			return a.output(cmd, v, func() error {
				out := "not logged in"
				if v.Valid {
					out = "logged in as " + v.Wallet
				}
				_, err := fmt.Fprintln(cmd.OutOrStdout(), out)
				return err
			})
		},
	}
}
