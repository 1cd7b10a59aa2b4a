package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gangs/internal/gang"

	"github.com/fatih/color"
)

var (
	stdinReader = bufio.NewReader(os.Stdin)
	accent      = color.New(color.FgCyan, color.Bold)
	success     = color.New(color.FgGreen, color.Bold)
	warn        = color.New(color.FgYellow, color.Bold)
	danger      = color.New(color.FgRed, color.Bold)
	neutral     = color.New(color.FgHiWhite)
)

type gangsPayload struct {
	Gangs []gang.GangView `json:"gangs"`
}

type perksPayload struct {
	Perks []gang.Perk `json:"perks"`
	Ranks []rankRow   `json:"ranks"`
}

type rankRow struct {
	Rank          string  `json:"rank"`
	Priority      int     `json:"priority"`
	FeeMultiplier float64 `json:"fee_multiplier"`
	CanInvite     bool    `json:"can_invite"`
	CanKick       bool    `json:"can_kick"`
	CanClaim      bool    `json:"can_claim"`
	CanPerks      bool    `json:"can_perks"`
	CanDisband    bool    `json:"can_disband"`
}

func printSuccess(msg string) {
	success.Println(msg)
}

func printWarn(msg string) {
	warn.Println(msg)
}

func printInfo(msg string) {
	neutral.Println(msg)
}

func promptRequired(label string) (string, error) {
	for {
		fmt.Printf("%s: ", label)
		text, err := stdinReader.ReadString('\n')
		if err != nil {
			return "", err
		}
		text = strings.TrimSpace(text)
		if text != "" {
			return text, nil
		}
		printWarn(label + " is required.")
	}
}

func promptInt64(label string, min int64) (int64, error) {
	for {
		text, err := promptRequired(label)
		if err != nil {
			return 0, err
		}
		v, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			printWarn("Enter a whole number.")
			continue
		}
		if v < min {
			printWarn(fmt.Sprintf("Value must be >= %d", min))
			continue
		}
		return v, nil
	}
}

func confirm(label string) (bool, error) {
	fmt.Printf("%s [y/N]: ", label)
	text, err := stdinReader.ReadString('\n')
	if err != nil {
		return false, err
	}
	text = strings.ToLower(strings.TrimSpace(text))
	return text == "y" || text == "yes", nil
}

func renderGang(raw map[string]any) error {
	g, err := decodeInto[gang.GangView](raw)
	if err != nil {
		return err
	}
	accent.Printf("\n== [%s] %s ==\n", g.Tag, g.Name)
	fmt.Printf("Level:      %d (%s)\n", g.Level, progressBar(g.Progress, 20))
	if g.Level < gang.MaxLevel {
		fmt.Printf("Next level: %s XP to go\n", comma(g.XPToNextLevel))
	}
	fmt.Printf("Treasury:   %s\n", comma(g.Balance))
	fmt.Printf("Weekly fee: %s\n", comma(g.WeeklyFee))
	fmt.Printf("Color:      %s\n", g.Color)
	fmt.Printf("Founded:    %s\n", g.Founded.Local().Format("2006-01-02"))
	fmt.Printf("Members:    %d/%d\n", g.MemberCount, g.MemberCapacity)
	fmt.Printf("Perks:      %d/%d points used\n", g.PerkPointsUsed, g.PerkBudget)
	fmt.Printf("Territory:  %d/%s chunks\n", len(g.Territory), capacityLabel(g.TerritoryCapacity))

	fmt.Println()
	accent.Println("Roster")
	fmt.Printf("%-36s %-10s %12s %7s %-16s\n", "PLAYER", "RANK", "XP", "MISSED", "JOINED")
	for _, m := range g.Members {
		fmt.Printf("%-36s %-10s %12s %7s %-16s\n",
			m.Player,
			m.Rank,
			comma(m.ContributedXP),
			colorizeMissed(m.MissedPayments),
			m.JoinedAt.Local().Format("2006-01-02 15:04"),
		)
	}

	if len(g.Perks) > 0 {
		fmt.Println()
		accent.Println("Unlocked perks")
		for _, p := range g.Perks {
			fmt.Printf("  %s\n", p)
		}
	}
	if len(g.Territory) > 0 {
		fmt.Println()
		accent.Println("Claimed chunks")
		fmt.Printf("  %s\n", strings.Join(g.Territory, "  "))
	}
	fmt.Println()
	return nil
}

func renderGangList(raw map[string]any) error {
	out, err := decodeInto[gangsPayload](raw)
	if err != nil {
		return err
	}
	accent.Println("\n== GANGS ==")
	if len(out.Gangs) == 0 {
		printInfo("No gangs yet.")
		return nil
	}
	fmt.Printf("%-6s %-20s %6s %9s %10s %14s\n", "TAG", "NAME", "LEVEL", "MEMBERS", "CHUNKS", "TREASURY")
	for _, g := range out.Gangs {
		fmt.Printf("%-6s %-20s %6d %9s %10s %14s\n",
			g.Tag,
			truncate(g.Name, 20),
			g.Level,
			fmt.Sprintf("%d/%d", g.MemberCount, g.MemberCapacity),
			fmt.Sprintf("%d/%s", len(g.Territory), capacityLabel(g.TerritoryCapacity)),
			comma(g.Balance),
		)
	}
	fmt.Println()
	return nil
}

func renderPerks(raw map[string]any) error {
	out, err := decodeInto[perksPayload](raw)
	if err != nil {
		return err
	}
	accent.Println("\n== PERKS ==")
	fmt.Printf("%-22s %-11s %6s  %s\n", "PERK", "BRANCH", "LEVEL", "EFFECT")
	for _, p := range out.Perks {
		fmt.Printf("%-22s %-11s %6d  %s\n", p.Name, p.Branch, p.RequiredLevel, p.Description)
	}
	fmt.Println()
	accent.Println("Ranks")
	fmt.Printf("%-10s %5s %7s %7s %6s %6s %8s\n", "RANK", "FEE", "INVITE", "KICK", "CLAIM", "PERKS", "DISBAND")
	for _, r := range out.Ranks {
		fmt.Printf("%-10s %4.1fx %7s %7s %6s %6s %8s\n",
			r.Rank, r.FeeMultiplier,
			yesNo(r.CanInvite), yesNo(r.CanKick), yesNo(r.CanClaim), yesNo(r.CanPerks), yesNo(r.CanDisband),
		)
	}
	fmt.Println()
	return nil
}

func renderBilling(raw map[string]any) error {
	rep, err := decodeInto[gang.BillingReport](raw)
	if err != nil {
		return err
	}
	accent.Println("\n== DUES SWEEP ==")
	fmt.Printf("Gangs billed:    %d\n", rep.Gangs)
	fmt.Printf("Members charged: %d\n", rep.Assessed)
	fmt.Printf("Paid:            %s\n", success.Sprint(rep.Paid))
	fmt.Printf("Missed:          %s\n", colorizeMissed(rep.Missed))
	fmt.Printf("Offline:         %d\n", rep.Offline)
	fmt.Printf("Kicked:          %s\n", colorizeMissed(rep.Kicked))
	fmt.Printf("Disbanded:       %d\n", rep.Disbanded)
	fmt.Printf("Collected:       %s\n", comma(rep.Collected))
	fmt.Println()
	return nil
}

func decodeInto[T any](in any) (T, error) {
	var out T
	raw, err := json.Marshal(in)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, err
	}
	return out, nil
}

func colorizeMissed(n int) string {
	text := strconv.Itoa(n)
	switch {
	case n >= gang.MaxMissedPayments-1:
		return danger.Sprint(text)
	case n > 0:
		return warn.Sprint(text)
	default:
		return neutral.Sprint(text)
	}
}

func progressBar(p float64, width int) string {
	if p < 0 {
		p = 0
	}
	if p > 1 {
		p = 1
	}
	filled := int(p * float64(width))
	return "[" + strings.Repeat("#", filled) + strings.Repeat(".", width-filled) + fmt.Sprintf("] %3.0f%%", p*100)
}

func capacityLabel(c int) string {
	if c == gang.Unlimited {
		return "inf"
	}
	return strconv.Itoa(c)
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "-"
}

func comma(v int64) string {
	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	}
	s := strconv.FormatInt(v, 10)
	if len(s) <= 3 {
		return sign + s
	}
	var b strings.Builder
	b.WriteString(sign)
	pre := len(s) % 3
	if pre > 0 {
		b.WriteString(s[:pre])
		b.WriteByte(',')
	}
	for i := pre; i < len(s); i += 3 {
		b.WriteString(s[i : i+3])
		if i+3 < len(s) {
			b.WriteByte(',')
		}
	}
	return b.String()
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if n <= 0 || len(s) <= n {
		return s
	}
	if n <= 3 {
		return s[:n]
	}
	return s[:n-3] + "..."
}
