package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"mediasniff/internal/classify"
)

type classifyOutput struct {
	Key          string `json:"key"`
	Media        bool   `json:"media"`
	ID           string `json:"id"`
	Type         string `json:"type"`
	Itag         string `json:"itag"`
	Mime         string `json:"mime"`
	Range        string `json:"range"`
	CanonicalURL string `json:"canonicalUrl"`
}

func newClassifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "classify <url>",
		Short: "Print how a request URL would be catalogued",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			info := classify.Parse(args[0])
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			enc.SetEscapeHTML(false)
			return enc.Encode(classifyOutput{
				Key:          info.Key(),
				Media:        classify.IsMediaURL(args[0]),
				ID:           info.ID,
				Type:         string(info.Kind),
				Itag:         info.Itag,
				Mime:         info.Mime,
				Range:        info.Range,
				CanonicalURL: info.CanonicalURL,
			})
		},
	}
}
