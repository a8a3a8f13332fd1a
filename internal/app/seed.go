// Package app wires the engine together for the CLI and seeds demo data.
// The demo fleet used to live as a module-level static array; it is now
// inserted through the same engine operations every caller uses, against an
// explicitly constructed store.
package app

import (
	"context"
	"fmt"
	"time"

	"fleetline/internal/domain"
	"fleetline/internal/engine"
)

// SeedDemoFleet creates a handful of demonstration missions. Safe to call
// once per fresh workspace; it does not check for duplicates.
func SeedDemoFleet(ctx context.Context, e engine.Engine, actorID string) ([]domain.Mission, error) {
	master := domain.Party{ID: "capt-ramos", Name: "E. Ramos", Role: "master"}
	mate := domain.Party{ID: "mate-okafor", Name: "C. Okafor", Role: "chief mate"}
	bosun := domain.Party{ID: "bosun-lindqvist", Name: "A. Lindqvist", Role: "bosun"}
	engineer := domain.Party{ID: "eng-tanaka", Name: "H. Tanaka", Role: "second engineer"}

	due := func(days int) string {
		return time.Now().UTC().AddDate(0, 0, days).Format(time.RFC3339)
	}

	drafts := []engine.MissionCreateOptions{
		{
			Title:       "Pre-departure safety rounds",
			Description: "Deck and bridge checks before leaving port.",
			Vessel:      "mv-aurora",
			AssignedBy:  master,
			AssignedTo:  mate,
			DueDate:     due(1),
			Priority:    domain.PriorityHigh,
			Items: []engine.ItemDraft{
				{Text: "Confirm mooring stations secured", Kind: domain.KindAcknowledge, Required: true},
				{Text: "Photograph pilot ladder rigging", Kind: domain.KindPhoto, Required: true},
				{Text: "Record bridge equipment test", Kind: domain.KindVideo, Required: false},
				{Text: "Sign off departure checklist", Kind: domain.KindSignature, Required: true},
			},
			ActorID: actorID,
		},
		{
			Title:       "Monthly lifeboat inspection",
			Description: "Davit, release gear and provisions check.",
			Vessel:      "mv-petrel",
			AssignedBy:  master,
			AssignedTo:  bosun,
			DueDate:     due(7),
			Priority:    domain.PriorityMedium,
			Items: []engine.ItemDraft{
				{Text: "Inspect release hooks", Kind: domain.KindAcknowledge, Required: true},
				{Text: "Photograph hull condition", Kind: domain.KindPhoto, Required: true},
				{Text: "Upload inventory sheet", Kind: domain.KindFile, Required: false},
			},
			ActorID: actorID,
		},
		{
			Title:       "Engine room oil record update",
			Vessel:      "mv-cormorant",
			AssignedBy:  master,
			AssignedTo:  engineer,
			DueDate:     due(3),
			Priority:    domain.PriorityLow,
			Items: []engine.ItemDraft{
				{Text: "Upload signed oil record page", Kind: domain.KindFile, Required: true},
				{Text: "Acknowledge sounding log reviewed", Kind: domain.KindAcknowledge, Required: false},
			},
			ActorID: actorID,
		},
	}

	var missions []domain.Mission
	for _, d := range drafts {
		m, err := e.CreateMission(ctx, d)
		if err != nil {
			return missions, fmt.Errorf("seed %q: %w", d.Title, err)
		}
		missions = append(missions, m)
	}
	return missions, nil
}
