package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/Muneerali199/DocMagic-sub004/internal/credits"
	"github.com/Muneerali199/DocMagic-sub004/internal/domain"
	"github.com/spf13/cobra"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := depsFrom(cmd).Migrate(cmd.Context())
			if err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s)\n", n)
			return nil
		},
	}
}

func showCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show [user-id]",
		Short: "Show the credit balance of a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			uc, err := depsFrom(cmd).Credits.Get(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("failed to load credits for %s: %w", args[0], err)
			}
			printCredits(cmd, uc)
			return nil
		},
	}
}

func resetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset [user-id]",
		Short: "Zero the usage of a user and start a new period",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			deps := depsFrom(cmd)
			uc, err := deps.Credits.Reset(cmd.Context(), args[0], credits.NextReset(deps.Now().UTC()))
			if err != nil {
				return fmt.Errorf("failed to reset credits for %s: %w", args[0], err)
			}
			printCredits(cmd, uc)
			return nil
		},
	}
}

func setTierCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set-tier [user-id] [tier]",
		Short: "Move a user to a tier without touching Stripe",
		Long: `Set the tier and allotment of a user. Usage in the current period is kept.
The next Stripe webhook for the user overrides a manual change.

Examples:
  creditsctl set-tier 7d1c... pro
  creditsctl set-tier 7d1c... free`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			tier, err := domain.ParseTier(args[1])
			if err != nil {
				return err
			}
			deps := depsFrom(cmd)
			uc, err := deps.Credits.SetTier(cmd.Context(), args[0], tier, credits.Limit(tier), credits.NextReset(deps.Now().UTC()))
			if err != nil {
				return fmt.Errorf("failed to set tier for %s: %w", args[0], err)
			}
			printCredits(cmd, uc)
			return nil
		},
	}
}

func sweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Reset every balance whose period has ended",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			deps := depsFrom(cmd)
			now := deps.Now().UTC()
			n, err := deps.Credits.ResetExpired(cmd.Context(), now, credits.NextReset(now))
			if err != nil {
				return fmt.Errorf("sweep: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Reset %d balance(s)\n", n)
			return nil
		},
	}
}

func plansCmd() *cobra.Command {
	plans := &cobra.Command{
		Use:   "plans",
		Short: "Manage the Stripe price to tier mapping",
	}

	list := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List subscription plans",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			all, err := depsFrom(cmd).Plans.List(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to list plans: %w", err)
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tTIER\tPRICE\tACTIVE")
			for _, p := range all {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%t\n", p.ID, p.Name, p.Tier, p.StripePriceID, p.Active)
			}
			return w.Flush()
		},
	}

	var inactive bool
	upsert := &cobra.Command{
		Use:   "upsert [plan-id] [name] [tier] [stripe-price-id]",
		Short: "Create or update a plan",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			tier, err := domain.ParseTier(args[2])
			if err != nil {
				return err
			}
			plan := &domain.SubscriptionPlan{
				ID:            args[0],
				Name:          args[1],
				Tier:          tier,
				StripePriceID: args[3],
				Active:        !inactive,
			}
			if err := depsFrom(cmd).Plans.Upsert(cmd.Context(), plan); err != nil {
				return fmt.Errorf("failed to upsert plan %s: %w", plan.ID, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Plan %s -> %s (%s)\n", plan.StripePriceID, plan.Tier, plan.ID)
			return nil
		},
	}
	upsert.Flags().BoolVar(&inactive, "inactive", false, "hide the plan from checkout")

	plans.AddCommand(list, upsert)
	return plans
}

func printCredits(cmd *cobra.Command, uc *domain.UserCredits) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "User:      %s\n", uc.UserID)
	fmt.Fprintf(out, "  Tier:      %s (%s)\n", uc.Tier, credits.TierNames[uc.Tier])
	fmt.Fprintf(out, "  Used:      %d / %d\n", uc.CreditsUsed, uc.CreditsTotal)
	fmt.Fprintf(out, "  Remaining: %d\n", credits.Remaining(uc.CreditsTotal, uc.CreditsUsed))
	fmt.Fprintf(out, "  Resets:    %s\n", uc.CreditsResetAt.UTC().Format("2006-01-02 15:04"))
}
