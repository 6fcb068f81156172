package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/teemow/calmerge/internal/google"
)

func newAuthCmd() *cobra.Command {
	var (
		account string
		force   bool
	)

	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Authorize read-only access to a Google Calendar account",
		Long: `Run the OAuth consent flow for a Google account and store the token for
the google sources that name this account.

The OAuth client is read from the environment:
  CALMERGE_GOOGLE_CLIENT_ID, CALMERGE_GOOGLE_CLIENT_SECRET
  CALMERGE_GOOGLE_REDIRECT_URL (optional, defaults to the copy/paste flow)`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			if google.HasTokenForAccount(account) && !force {
				fmt.Fprintf(out, "Account %q is already authorized. Use --force to authorize it again.\n", account)
				return nil
			}

			authURL, err := google.GetAuthURL(account)
			if err != nil {
				return err
			}

			fmt.Fprintf(out, "Open the following URL in your browser and grant access:\n\n  %s\n\n", authURL)
			fmt.Fprint(out, "Paste the authorization code: ")

			scanner := bufio.NewScanner(cmd.InOrStdin())
			if !scanner.Scan() {
				if err := scanner.Err(); err != nil {
					return fmt.Errorf("failed to read authorization code: %w", err)
				}
				return errors.New("no authorization code entered")
			}
			code := strings.TrimSpace(scanner.Text())
			if code == "" {
				return errors.New("no authorization code entered")
			}

			if err := google.SaveTokenForAccount(cmd.Context(), account, code); err != nil {
				return err
			}
			fmt.Fprintf(out, "\nToken for account %q saved in %s\n", account, google.TokenDir())
			return nil
		},
	}

	cmd.Flags().StringVar(&account, "account", google.DefaultAccount, "Account name the token is stored under")
	cmd.Flags().BoolVar(&force, "force", false, "Authorize again even if a token exists")

	return cmd
}
