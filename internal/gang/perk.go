package gang

import "strings"

type Branch string

const (
	BranchTerritory  Branch = "TERRITORY"
	BranchEconomy    Branch = "ECONOMY"
	BranchCrime      Branch = "CRIME"
	BranchProduction Branch = "PRODUCTION"
)

// Unlimited marks a territory capacity with no cap.
const Unlimited = -1

type Perk struct {
	Name          string `json:"name"`
	Branch        Branch `json:"branch"`
	RequiredLevel int    `json:"required_level"`
	Description   string `json:"description"`
	// TerritoryCap overrides the level-based claim limit when > 0, or
	// removes it when Unlimited. Zero means no territory effect.
	TerritoryCap int `json:"territory_cap,omitempty"`
}

const (
	PerkTerritoryExpansion  = "TERRITORY_EXPANSION"
	PerkTerritoryStronghold = "TERRITORY_STRONGHOLD"
	PerkTerritoryDominion   = "TERRITORY_DOMINION"
	PerkTerritoryEmpire     = "TERRITORY_EMPIRE"
)

var perkCatalog = []Perk{
	{Name: PerkTerritoryExpansion, Branch: BranchTerritory, RequiredLevel: 5, TerritoryCap: 10, Description: "Claim up to 10 chunks."},
	{Name: PerkTerritoryStronghold, Branch: BranchTerritory, RequiredLevel: 12, TerritoryCap: 20, Description: "Claim up to 20 chunks."},
	{Name: PerkTerritoryDominion, Branch: BranchTerritory, RequiredLevel: 20, TerritoryCap: 35, Description: "Claim up to 35 chunks."},
	{Name: PerkTerritoryEmpire, Branch: BranchTerritory, RequiredLevel: 28, TerritoryCap: Unlimited, Description: "No limit on claimed chunks."},

	{Name: "ECONOMY_TAX_BREAK", Branch: BranchEconomy, RequiredLevel: 2, Description: "5% discount on shop purchases inside gang territory."},
	{Name: "ECONOMY_INTEREST", Branch: BranchEconomy, RequiredLevel: 8, Description: "Treasury earns 1% interest per day."},
	{Name: "ECONOMY_BULK_TRADE", Branch: BranchEconomy, RequiredLevel: 14, Description: "Better sell prices for bulk trades."},
	{Name: "ECONOMY_CARTEL", Branch: BranchEconomy, RequiredLevel: 24, Description: "Members share 2% of each other's trade income."},

	{Name: "CRIME_FAST_HEIST", Branch: BranchCrime, RequiredLevel: 4, Description: "Heists complete 20% faster."},
	{Name: "CRIME_SILENT_ALARM", Branch: BranchCrime, RequiredLevel: 9, Description: "Police response is delayed by 30 seconds."},
	{Name: "CRIME_BRIBE", Branch: BranchCrime, RequiredLevel: 16, Description: "Wanted level decays twice as fast."},
	{Name: "CRIME_SYNDICATE", Branch: BranchCrime, RequiredLevel: 26, Description: "Heist payouts increased by 25%."},

	{Name: "PRODUCTION_YIELD", Branch: BranchProduction, RequiredLevel: 3, Description: "Drug labs yield 10% more product."},
	{Name: "PRODUCTION_SPEED", Branch: BranchProduction, RequiredLevel: 7, Description: "Production cycles run 15% faster."},
	{Name: "PRODUCTION_QUALITY", Branch: BranchProduction, RequiredLevel: 13, Description: "Product sells at higher quality tier."},
	{Name: "PRODUCTION_FACTORY", Branch: BranchProduction, RequiredLevel: 22, Description: "Unlocks an extra production slot per territory."},
}

var perksByName = func() map[string]Perk {
	m := make(map[string]Perk, len(perkCatalog))
	for _, p := range perkCatalog {
		m[p.Name] = p
	}
	return m
}()

// LookupPerk finds a catalog entry by name, case-insensitively.
func LookupPerk(name string) (Perk, bool) {
	p, ok := perksByName[strings.ToUpper(strings.TrimSpace(name))]
	return p, ok
}

func Perks() []Perk {
	out := make([]Perk, len(perkCatalog))
	copy(out, perkCatalog)
	return out
}

func PerksByBranch(b Branch) []Perk {
	var out []Perk
	for _, p := range perkCatalog {
		if p.Branch == b {
			out = append(out, p)
		}
	}
	return out
}

func Branches() []Branch {
	return []Branch{BranchTerritory, BranchEconomy, BranchCrime, BranchProduction}
}
