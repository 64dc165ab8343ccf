package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"mediagrab/internal/quota"
)

var quotaCmd = &cobra.Command{
	Use:   "quota [identity]",
	Short: "Show storage usage and limit",
	Args:  cobra.MaximumNArgs(1),
	RunE:  quotaRun,
}

var quotaLimitCmd = &cobra.Command{
	Use:   "set-limit <identity> <bytes|unlimited>",
	Short: "Set an identity's storage limit",
	Args:  cobra.ExactArgs(2),
	RunE:  quotaLimitRun,
}

var quotaRoleCmd = &cobra.Command{
	Use:   "set-role <identity> <user|admin>",
	Short: "Set an identity's role; admins have no storage limit",
	Args:  cobra.ExactArgs(2),
	RunE:  quotaRoleRun,
}

func init() {
	quotaCmd.AddCommand(quotaLimitCmd)
	quotaCmd.AddCommand(quotaRoleCmd)
}

func quotaRun(cmd *cobra.Command, args []string) error {
	identity := cfg.Identity
	if len(args) == 1 {
		identity = args[0]
	}

	a, err := newApp(cfg, nil)
	if err != nil {
		return err
	}
	rec := a.service.Quota(identity)

	out := stdout()
	if flagJSON {
		return out.json(rec)
	}
	out.quota(rec)
	return nil
}

func quotaLimitRun(cmd *cobra.Command, args []string) error {
	limit, err := parseLimit(args[1])
	if err != nil {
		return err
	}

	a, err := newApp(cfg, nil)
	if err != nil {
		return err
	}
	if err := a.quota.SetLimit(args[0], limit); err != nil {
		return err
	}
	stdout().quota(a.quota.Get(args[0]))
	return nil
}

func quotaRoleRun(cmd *cobra.Command, args []string) error {
	role, err := quota.ParseRole(args[1])
	if err != nil {
		return err
	}

	a, err := newApp(cfg, nil)
	if err != nil {
		return err
	}
	if err := a.quota.SetRole(args[0], role); err != nil {
		return err
	}
	stdout().quota(a.quota.Get(args[0]))
	return nil
}

// parseLimit accepts a byte count, -1 or "unlimited".
func parseLimit(s string) (int64, error) {
	if s == "unlimited" {
		return quota.Unlimited, nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n < quota.Unlimited {
		return 0, fmt.Errorf("invalid limit %q: want a byte count or \"unlimited\"", s)
	}
	return n, nil
}
