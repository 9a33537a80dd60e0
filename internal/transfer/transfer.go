package transfer

import (
	"fmt"
	"strings"

	"loot-stix/internal/models"
)

// Notice is a human-readable pickup message for the session log.
type Notice struct {
	Text string
	Img  string
}

// Plan is the full mutation set for moving a container's loot to an
// actor. It either moves everything or nothing; applying a plan built
// from an empty container is a no-op, which is what makes a replayed
// interaction harmless.
type Plan struct {
	// Creations hold one owned-item creation per quantity unit, each
	// carrying the item's snapshot data.
	Creations []models.OwnedItem

	// ActorCurrency is the actor's balance after the additive merge.
	ActorCurrency models.Currency
	// CurrencyMoved reports whether the merge changed anything.
	CurrencyMoved bool

	// ContainerItems / ContainerCurrency are the container's depleted
	// state: items removed, transferred currency zeroed.
	ContainerItems    []models.LootItem
	ContainerCurrency models.Currency

	Notices []Notice
}

// Empty reports whether the plan carries no mutations at all.
func (p Plan) Empty() bool {
	return len(p.Creations) == 0 && !p.CurrencyMoved
}

// BuildPlan computes the transfer of items and currency from a
// container to an actor. Zero-count entries are pruned without a
// notice. When currencyEnabled is false the container's currency is
// left untouched.
func BuildPlan(items []models.LootItem, containerCur, actorCur models.Currency, currencyEnabled bool) Plan {
	plan := Plan{
		ActorCurrency:     actorCur,
		ContainerCurrency: containerCur,
	}

	for _, it := range items {
		if it.Count <= 0 {
			continue
		}
		for i := 0; i < it.Count; i++ {
			plan.Creations = append(plan.Creations, models.OwnedItem{
				Name: it.Name,
				Img:  it.Img,
				Data: it.Data,
			})
		}
		plan.Notices = append(plan.Notices, Notice{
			Text: fmt.Sprintf("Picked up %d %s", it.Count, it.Name),
			Img:  it.Img,
		})
	}

	if currencyEnabled && !containerCur.IsEmpty() {
		plan.ActorCurrency = actorCur.Add(containerCur)
		plan.ContainerCurrency = containerCur.Zeroed()
		plan.CurrencyMoved = true
		plan.Notices = append(plan.Notices, Notice{Text: currencyNotice(containerCur)})
	}

	return plan
}

func currencyNotice(cur models.Currency) string {
	var b strings.Builder
	b.WriteString("Picked up:")
	for _, code := range models.CurrencyCodes {
		if cur[code] > 0 {
			fmt.Fprintf(&b, " (%s) %d", code, cur[code])
		}
	}
	return b.String()
}
