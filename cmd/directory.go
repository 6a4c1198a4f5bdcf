package cmd

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"ideasync/internal/client"
	"ideasync/internal/collab"
	"ideasync/internal/models"
)

func newShowCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "show <session-id>",
		Short: "Print the latest snapshot the relay knows for a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadSettings(v)
			if err != nil {
				return err
			}
			dir := client.NewDirectory(s.client.DirectoryURL, nil)
			se, err := dir.Session(cmd.Context(), args[0])
			if errors.Is(err, collab.ErrSessionNotFound) {
				return fmt.Errorf("session %s not found", args[0])
			}
			if err != nil {
				return err
			}
			return writeJSON(cmd, se)
		},
	}
}

func newListCmd(v *viper.Viper) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the sessions the user takes part in",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := loadSettings(v)
			if err != nil {
				return err
			}
			if s.identity.UserID == "" {
				return errUserRequired
			}
			c := client.New(cmd.Context(), s.client, s.identity)
			defer c.Disconnect()
			list, err := c.RemoteSessions(cmd.Context(), s.identity.UserID)
			if err != nil {
				return err
			}
			if asJSON {
				if list == nil {
					list = make([]*models.Session, 0)
				}
				return writeJSON(cmd, list)
			}
			out := cmd.OutOrStdout()
			if len(list) == 0 {
				_, err := fmt.Fprintln(out, "no sessions")
				return err
			}
			for _, se := range list {
				fmt.Fprintf(out, "%s  %-9s  %d online  %s\n", se.ID, se.Status, se.OnlineCount(), se.Title)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
