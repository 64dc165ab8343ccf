package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"mediagrab/internal/httputil"
	"mediagrab/internal/media"
	"mediagrab/internal/ui"
)

var flagAllIdentities bool

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List downloads recorded for the identity",
	Args:  cobra.NoArgs,
	RunE:  historyRun,
}

var historyDeleteCmd = &cobra.Command{
	Use:   "delete [id]",
	Short: "Delete a download and its files; picks one with fzf when no id is given",
	Args:  cobra.MaximumNArgs(1),
	RunE:  historyDeleteRun,
}

func init() {
	historyCmd.Flags().BoolVar(&flagAllIdentities, "all", false, "List every identity's downloads")
	historyCmd.AddCommand(historyDeleteCmd)
}

func historyRun(cmd *cobra.Command, args []string) error {
	a, err := newApp(cfg, nil)
	if err != nil {
		return err
	}

	identities := []string{cfg.Identity}
	if flagAllIdentities {
		identities = a.store.Identities()
	}

	out := stdout()
	if flagJSON {
		all := make(map[string]any, len(identities))
		for _, id := range identities {
			all[id] = a.service.History(id)
		}
		return out.json(all)
	}
	for _, id := range identities {
		if flagAllIdentities {
			fmt.Fprintln(out.w, out.render(accentStyle, id))
		}
		out.history(a.service.History(id))
	}
	return nil
}

func historyDeleteRun(cmd *cobra.Command, args []string) error {
	a, err := newApp(cfg, nil)
	if err != nil {
		return err
	}

	var id string
	if len(args) == 1 {
		id = args[0]
		if err := httputil.ValidateID(id); err != nil {
			return fmt.Errorf("invalid download id: %w", err)
		}
	} else {
		id, err = pickArtifact(a.service.History(cfg.Identity))
		if err != nil {
			return err
		}
	}
	if err := a.service.Delete(id, cfg.Identity); err != nil {
		return fmt.Errorf("deleting %s: %w", id, err)
	}
	debugf("deleted %s for %s", id, cfg.Identity)
	fmt.Fprintf(stdout().w, "Deleted %s.\n", id)
	return nil
}

// pickArtifact lets the user choose one of their completed downloads and
// confirm the deletion.
func pickArtifact(entries []media.Artifact) (string, error) {
	var live []media.Artifact
	var items []string
	for _, e := range entries {
		if e.Status == media.Completed {
			live = append(live, e)
			items = append(items, ui.ArtifactLine(e))
		}
	}
	if len(live) == 0 {
		return "", fmt.Errorf("no downloads to delete")
	}

	idx, err := ui.Select("Delete", items)
	if err != nil {
		return "", err
	}
	ok, err := ui.Confirm(fmt.Sprintf("Delete %q?", live[idx].Title))
	if err != nil {
		return "", err
	}
	if !ok {
		return "", ui.ErrCancelled
	}
	return live[idx].ID, nil
}
