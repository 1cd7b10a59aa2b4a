package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	cl "gangs/internal/cli"
	"gangs/internal/config"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

type app struct {
	cfg    config.CLIConfig
	player string
}

func main() {
	a := &app{cfg: config.LoadCLIFromEnv()}

	root := &cobra.Command{
		Use:          "gang",
		Short:        "Gang management client",
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// The URL saved at login applies unless --api or the env overrides it.
			if cmd.Flags().Changed("api") || strings.TrimSpace(os.Getenv("GANG_API_BASE_URL")) != "" {
				return
			}
			if sess, err := cl.LoadSession(); err == nil && sess.BaseURL != "" {
				a.cfg.APIBaseURL = sess.BaseURL
			}
		},
	}
	root.PersistentFlags().StringVar(&a.cfg.APIBaseURL, "api", a.cfg.APIBaseURL, "gangs-api base URL")
	root.PersistentFlags().StringVar(&a.player, "as", "", "act as this player id instead of the saved session")

	root.AddCommand(
		a.newLoginCmd(),
		a.newLogoutCmd(),
		a.newWhoamiCmd(),
		a.newCreateCmd(),
		a.newInfoCmd(),
		a.newListCmd(),
		a.newPerksCmd(),
		a.newInviteCmd(),
		a.newJoinCmd(),
		a.newLeaveCmd(),
		a.newKickCmd(),
		a.newPromoteCmd(),
		a.newDisbandCmd(),
		a.newPerkCmd(),
		a.newFeeCmd(),
		a.newColorCmd(),
		a.newXPCmd(),
		a.newTreasuryCmd("deposit", "Move money from your wallet into the treasury"),
		a.newTreasuryCmd("withdraw", "Move money from the treasury into your wallet (boss only)"),
		a.newClaimCmd(),
		a.newUnclaimCmd(),
		a.newOwnerCmd(),
		a.newAdminCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func (a *app) client() *cl.Client {
	return cl.NewClient(strings.TrimSpace(a.cfg.APIBaseURL), a.cfg.APIKey, a.cfg.AdminKey)
}

// actor resolves the acting player from --as or the saved session.
func (a *app) actor() (uuid.UUID, error) {
	if strings.TrimSpace(a.player) != "" {
		return uuid.Parse(strings.TrimSpace(a.player))
	}
	sess, err := cl.LoadSession()
	if err != nil {
		return uuid.Nil, fmt.Errorf("login required (gang login <player-id>): %w", err)
	}
	return sess.PlayerID, nil
}

// playerCall runs fn as the acting player with a request timeout.
func (a *app) playerCall(cmd *cobra.Command, fn func(ctx context.Context, c *cl.Client, player uuid.UUID) (map[string]any, error), render func(map[string]any) error) error {
	player, err := a.actor()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()
	out, err := fn(ctx, a.client(), player)
	if err != nil {
		return err
	}
	return render(out)
}

func (a *app) adminCall(cmd *cobra.Command, fn func(ctx context.Context, c *cl.Client) (map[string]any, error), render func(map[string]any) error) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), 60*time.Second)
	defer cancel()
	out, err := fn(ctx, a.client())
	if err != nil {
		return err
	}
	return render(out)
}

func done(msg string) func(map[string]any) error {
	return func(map[string]any) error {
		printSuccess(msg)
		return nil
	}
}

func parsePlayer(arg string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(arg))
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid player id %q", arg)
	}
	return id, nil
}

func (a *app) newLoginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login [player-id]",
		Short: "Remember which player this client acts as",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var raw string
			if len(args) == 1 {
				raw = args[0]
			} else {
				v, err := promptRequired("Player ID")
				if err != nil {
					return err
				}
				raw = v
			}
			id, err := parsePlayer(raw)
			if err != nil {
				return err
			}
			if err := cl.SaveSession(cl.Session{PlayerID: id, BaseURL: a.cfg.APIBaseURL}); err != nil {
				return err
			}
			printSuccess("Session saved for " + id.String())
			return nil
		},
	}
}

func (a *app) newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the saved player",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cl.ClearSession(); err != nil {
				return err
			}
			printSuccess("Logged out.")
			return nil
		},
	}
}

func (a *app) newWhoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the acting player",
		RunE: func(cmd *cobra.Command, args []string) error {
			player, err := a.actor()
			if err != nil {
				return err
			}
			printInfo(player.String())
			return nil
		},
	}
}

func (a *app) newCreateCmd() *cobra.Command {
	var colorName string
	cmd := &cobra.Command{
		Use:   "create <name> <tag>",
		Short: "Found a new gang and become its boss",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.playerCall(cmd, func(ctx context.Context, c *cl.Client, p uuid.UUID) (map[string]any, error) {
				return c.CreateGang(ctx, p, args[0], args[1], colorName)
			}, renderGang)
		},
	}
	cmd.Flags().StringVar(&colorName, "color", "", "display color (e.g. RED, GOLD)")
	return cmd
}

func (a *app) newInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info [gang]",
		Short: "Show a gang by name, tag or id (defaults to your own)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.playerCall(cmd, func(ctx context.Context, c *cl.Client, p uuid.UUID) (map[string]any, error) {
				if len(args) == 0 {
					return c.MyGang(ctx, p)
				}
				return c.GangInfo(ctx, p, args[0])
			}, renderGang)
		},
	}
}

func (a *app) newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all gangs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.playerCall(cmd, func(ctx context.Context, c *cl.Client, p uuid.UUID) (map[string]any, error) {
				return c.ListGangs(ctx, p)
			}, renderGangList)
		},
	}
}

func (a *app) newPerksCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "perks",
		Short: "Show the perk tree and rank permissions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.playerCall(cmd, func(ctx context.Context, c *cl.Client, p uuid.UUID) (map[string]any, error) {
				return c.Perks(ctx, p)
			}, renderPerks)
		},
	}
}

func (a *app) newInviteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "invite <player-id>",
		Short: "Invite a player to your gang",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := parsePlayer(args[0])
			if err != nil {
				return err
			}
			return a.playerCall(cmd, func(ctx context.Context, c *cl.Client, p uuid.UUID) (map[string]any, error) {
				return c.Invite(ctx, p, target)
			}, func(out map[string]any) error {
				printSuccess(fmt.Sprintf("Invited %s (expires in %v).", target, out["expires_in"]))
				return nil
			})
		},
	}
}

func (a *app) newJoinCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "join <gang>",
		Aliases: []string{"accept"},
		Short:   "Accept a pending invite",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.playerCall(cmd, func(ctx context.Context, c *cl.Client, p uuid.UUID) (map[string]any, error) {
				return c.Join(ctx, p, args[0])
			}, renderGang)
		},
	}
}

func (a *app) newLeaveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "leave",
		Short: "Leave your gang",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.playerCall(cmd, func(ctx context.Context, c *cl.Client, p uuid.UUID) (map[string]any, error) {
				return c.Leave(ctx, p)
			}, func(out map[string]any) error {
				if out["disbanded"] == true {
					printWarn("You were the last member. The gang has been disbanded.")
					return nil
				}
				printSuccess("You left the gang.")
				return nil
			})
		},
	}
}

func (a *app) newKickCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "kick <player-id>",
		Short: "Remove a lower-ranked member",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := parsePlayer(args[0])
			if err != nil {
				return err
			}
			return a.playerCall(cmd, func(ctx context.Context, c *cl.Client, p uuid.UUID) (map[string]any, error) {
				return c.Kick(ctx, p, target)
			}, done("Kicked "+target.String()))
		},
	}
}

func (a *app) newPromoteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "promote <player-id> <rank>",
		Short: "Change a member's rank (BOSS transfers leadership)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := parsePlayer(args[0])
			if err != nil {
				return err
			}
			rank := strings.ToUpper(strings.TrimSpace(args[1]))
			return a.playerCall(cmd, func(ctx context.Context, c *cl.Client, p uuid.UUID) (map[string]any, error) {
				return c.Promote(ctx, p, target, rank)
			}, done(fmt.Sprintf("%s is now %s.", target, rank)))
		},
	}
}

func (a *app) newDisbandCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "disband",
		Short: "Dissolve your gang (boss only)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				ok, err := confirm("Disband the gang? Treasury and territory are lost")
				if err != nil {
					return err
				}
				if !ok {
					printInfo("Cancelled.")
					return nil
				}
			}
			return a.playerCall(cmd, func(ctx context.Context, c *cl.Client, p uuid.UUID) (map[string]any, error) {
				return c.Disband(ctx, p)
			}, done("Gang disbanded."))
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip confirmation")
	return cmd
}

func (a *app) newPerkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "perk <name>",
		Short: "Spend a perk point",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.playerCall(cmd, func(ctx context.Context, c *cl.Client, p uuid.UUID) (map[string]any, error) {
				return c.UnlockPerk(ctx, p, args[0])
			}, renderGang)
		},
	}
}

func (a *app) newFeeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fee <amount>",
		Short: "Set the weekly membership fee (0 disables dues)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fee, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid fee %q", args[0])
			}
			return a.playerCall(cmd, func(ctx context.Context, c *cl.Client, p uuid.UUID) (map[string]any, error) {
				return c.SetFee(ctx, p, fee)
			}, done(fmt.Sprintf("Weekly fee set to %s.", comma(fee))))
		},
	}
}

func (a *app) newColorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "color <color>",
		Short: "Change the gang display color",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.playerCall(cmd, func(ctx context.Context, c *cl.Client, p uuid.UUID) (map[string]any, error) {
				return c.SetColor(ctx, p, args[0])
			}, func(out map[string]any) error {
				printSuccess(fmt.Sprintf("Color set to %v.", out["color"]))
				return nil
			})
		},
	}
}

func (a *app) newXPCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "xp <amount>",
		Short: "Contribute XP to your gang",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid amount %q", args[0])
			}
			return a.playerCall(cmd, func(ctx context.Context, c *cl.Client, p uuid.UUID) (map[string]any, error) {
				return c.AddXP(ctx, p, amount)
			}, renderLevel)
		},
	}
}

func renderLevel(out map[string]any) error {
	if out["leveled_up"] == true {
		printSuccess(fmt.Sprintf("Level up! Gang is now level %v.", out["level"]))
		return nil
	}
	printInfo(fmt.Sprintf("Level %v, %v XP.", out["level"], out["xp"]))
	return nil
}

func (a *app) newTreasuryCmd(verb, short string) *cobra.Command {
	return &cobra.Command{
		Use:   verb + " [amount]",
		Short: short,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var amount int64
			if len(args) == 1 {
				v, err := strconv.ParseInt(args[0], 10, 64)
				if err != nil {
					return fmt.Errorf("invalid amount %q", args[0])
				}
				amount = v
			} else {
				v, err := promptInt64("Amount", 1)
				if err != nil {
					return err
				}
				amount = v
			}
			return a.playerCall(cmd, func(ctx context.Context, c *cl.Client, p uuid.UUID) (map[string]any, error) {
				if verb == "withdraw" {
					return c.Withdraw(ctx, p, amount)
				}
				return c.Deposit(ctx, p, amount)
			}, func(out map[string]any) error {
				balance, _ := out["balance"].(float64)
				printSuccess(fmt.Sprintf("Treasury balance: %s", comma(int64(balance))))
				return nil
			})
		},
	}
}

func (a *app) newClaimCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "claim <x,z>",
		Short: "Claim a chunk for your gang",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.playerCall(cmd, func(ctx context.Context, c *cl.Client, p uuid.UUID) (map[string]any, error) {
				return c.Claim(ctx, p, args[0])
			}, done("Claimed chunk "+args[0]))
		},
	}
}

func (a *app) newUnclaimCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unclaim <x,z>",
		Short: "Release a claimed chunk",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.playerCall(cmd, func(ctx context.Context, c *cl.Client, p uuid.UUID) (map[string]any, error) {
				return c.Unclaim(ctx, p, args[0])
			}, done("Released chunk "+args[0]))
		},
	}
}

func (a *app) newOwnerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "owner <x,z>",
		Short: "Show which gang owns a chunk",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.playerCall(cmd, func(ctx context.Context, c *cl.Client, p uuid.UUID) (map[string]any, error) {
				return c.TerritoryOwner(ctx, p, args[0])
			}, func(out map[string]any) error {
				if out["owned"] != true {
					printInfo(fmt.Sprintf("Chunk %v is wilderness.", out["chunk"]))
					return nil
				}
				printInfo(fmt.Sprintf("Chunk %v belongs to gang %v.", out["chunk"], out["gang_id"]))
				return nil
			})
		},
	}
}

func (a *app) newAdminCmd() *cobra.Command {
	admin := &cobra.Command{
		Use:   "admin",
		Short: "Operator commands (requires GANG_ADMIN_KEY)",
	}

	admin.AddCommand(&cobra.Command{
		Use:   "setlevel <gang> <level>",
		Short: "Force a gang's level",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			level, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid level %q", args[1])
			}
			return a.adminCall(cmd, func(ctx context.Context, c *cl.Client) (map[string]any, error) {
				return c.AdminSetLevel(ctx, args[0], level)
			}, func(out map[string]any) error {
				printSuccess(fmt.Sprintf("Level set to %v.", out["level"]))
				if revoked, ok := out["revoked_perks"].([]any); ok && len(revoked) > 0 {
					printWarn(fmt.Sprintf("Revoked perks: %v", revoked))
				}
				return nil
			})
		},
	})

	admin.AddCommand(&cobra.Command{
		Use:   "addxp <gang> <amount>",
		Short: "Grant XP to a gang",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid amount %q", args[1])
			}
			return a.adminCall(cmd, func(ctx context.Context, c *cl.Client) (map[string]any, error) {
				return c.AdminAddXP(ctx, args[0], amount)
			}, renderLevel)
		},
	})

	admin.AddCommand(&cobra.Command{
		Use:   "bill",
		Short: "Run the weekly dues sweep now",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.adminCall(cmd, func(ctx context.Context, c *cl.Client) (map[string]any, error) {
				return c.AdminRunBilling(ctx)
			}, renderBilling)
		},
	})

	admin.AddCommand(&cobra.Command{
		Use:   "save",
		Short: "Persist all gangs now",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.adminCall(cmd, func(ctx context.Context, c *cl.Client) (map[string]any, error) {
				return c.AdminSave(ctx)
			}, func(out map[string]any) error {
				printSuccess(fmt.Sprintf("Saved %v gangs.", out["saved"]))
				return nil
			})
		},
	})

	admin.AddCommand(&cobra.Command{
		Use:   "check",
		Short: "Verify directory indexes",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.adminCall(cmd, func(ctx context.Context, c *cl.Client) (map[string]any, error) {
				return c.AdminConsistency(ctx)
			}, func(out map[string]any) error {
				if out["ok"] == true {
					printSuccess("Directory is consistent.")
					return nil
				}
				printWarn(fmt.Sprintf("Inconsistent: %v", out["error"]))
				return nil
			})
		},
	})

	return admin
}
