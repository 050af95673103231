package ledger

import "github.com/ahmetcoskunkizilkaya/nexusart/internal/models"

// Plan is one row of the subscription catalog.
type Plan struct {
	Tier      string
	Credits   int
	Channels  int
	TrialDays int
}

var catalog = map[string]Plan{
	models.PlanTrial:        {Tier: models.PlanTrial, Credits: 10, Channels: 1, TrialDays: 7},
	models.PlanBasic:        {Tier: models.PlanBasic, Credits: 50, Channels: 1},
	models.PlanProfessional: {Tier: models.PlanProfessional, Credits: 200, Channels: 3},
	models.PlanAnnual:       {Tier: models.PlanAnnual, Credits: 200, Channels: 3},
}

// productAliases maps billing product ids onto plan tiers.
var productAliases = map[string]string{
	"basic_monthly":        models.PlanBasic,
	"professional_monthly": models.PlanProfessional,
	"annual_professional":  models.PlanAnnual,
}

// PlanFor resolves a tier name or billing product id.
func PlanFor(name string) (Plan, bool) {
	if tier, ok := productAliases[name]; ok {
		name = tier
	}
	p, ok := catalog[name]
	return p, ok
}

func TrialPlan() Plan {
	return catalog[models.PlanTrial]
}
