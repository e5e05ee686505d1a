package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"mediasniff/internal/storage"
)

func newSettingsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Read or change the aria2 settings",
	}

	var all bool
	get := &cobra.Command{
		Use:   "get",
		Short: "Print the stored aria2 settings",
		RunE: func(cmd *cobra.Command, _ []string) error {
			repo, closeDB, err := openSettings()
			if err != nil {
				return err
			}
			defer closeDB()
			var out any
			if all {
				out, err = repo.GetAll()
			} else {
				out, err = repo.Aria2()
			}
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}
	get.Flags().BoolVar(&all, "all", false, "print every stored key")

	var url, token string
	set := &cobra.Command{
		Use:   "set",
		Short: "Store aria2 settings",
		RunE: func(cmd *cobra.Command, _ []string) error {
			repo, closeDB, err := openSettings()
			if err != nil {
				return err
			}
			defer closeDB()
			cur, err := repo.Aria2()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("aria2-url") {
				cur.URL = url
			}
			if cmd.Flags().Changed("aria2-token") {
				cur.Token = token
			}
			if err := repo.SetAria2(cur); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "settings saved")
			return nil
		},
	}
	set.Flags().StringVar(&url, "aria2-url", "", "aria2 JSON-RPC endpoint")
	set.Flags().StringVar(&token, "aria2-token", "", "aria2 RPC secret")

	cmd.AddCommand(get, set)
	return cmd
}

func openSettings() (*storage.SettingsRepo, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	db, err := storage.Open(cfg.DBPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}
	return storage.NewSettingsRepo(db), func() { _ = storage.Close(db) }, nil
}
