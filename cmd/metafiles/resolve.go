package main

import (
	"encoding/json"
	"fmt"
	"path"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/ki-ujep/metafiles/pkg/meta"
)

var resolveJSON bool

var (
	keyStyle     = lipgloss.NewStyle().Bold(true)
	sectionStyle = lipgloss.NewStyle().Bold(true).Underline(true)
	dimStyle     = lipgloss.NewStyle().Faint(true)
)

var resolveCmd = &cobra.Command{
	Use:   "resolve <path>",
	Short: "Show the metadata resolved for one file",
	Long: `Resolve runs the rule cascade for a single file and prints the
resulting metadata and links. The path is relative to the location's
data root; the file itself does not have to exist.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := loadEnvironment()
		if err != nil {
			return err
		}

		rel := path.Clean(args[0])
		dir := path.Dir(rel)
		if dir == "." {
			dir = ""
		}
		metadata, links := env.resolver.Resolve(dir, path.Base(rel))

		if resolveJSON {
			return printResolvedJSON(cmd, metadata, links)
		}
		printResolved(cmd, rel, metadata, links)
		return nil
	},
}

func init() {
	resolveCmd.Flags().BoolVar(&resolveJSON, "json", false, "Print the result as JSON")
}

func printResolved(cmd *cobra.Command, rel string, metadata *meta.Map, links []meta.LinkInfo) {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, sectionStyle.Render(rel))

	if metadata.Len() == 0 {
		fmt.Fprintln(out, dimStyle.Render("  no metadata"))
	}
	for _, key := range metadata.Keys() {
		values, _ := metadata.Get(key)
		for _, v := range values {
			text := v.Text()
			if v.IsStructured() {
				text = dimStyle.Render(text)
			}
			fmt.Fprintf(out, "  %s %s\n", keyStyle.Render(key+":"), text)
		}
	}

	if len(links) == 0 {
		return
	}
	fmt.Fprintln(out, sectionStyle.Render("links"))
	for _, link := range links {
		fmt.Fprintf(out, "  %s %s\n", keyStyle.Render(link.Type), link.Path)
		if link.Metadata == nil {
			continue
		}
		for _, key := range link.Metadata.Keys() {
			values, _ := link.Metadata.Get(key)
			for _, v := range values {
				fmt.Fprintf(out, "    %s %s\n", dimStyle.Render(key+":"), v.Text())
			}
		}
	}
}

func printResolvedJSON(cmd *cobra.Command, metadata *meta.Map, links []meta.LinkInfo) error {
	if links == nil {
		links = []meta.LinkInfo{}
	}
	payload := struct {
		Metadata *meta.Map       `json:"metadata"`
		Links    []meta.LinkInfo `json:"links"`
	}{metadata, links}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(payload)
}
