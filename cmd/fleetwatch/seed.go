package main

import (
	"context"
	"fmt"
	"time"

	"github.com/fleetwatch/fleetwatch/internal/domain"
	"github.com/fleetwatch/fleetwatch/internal/usecase"
	"github.com/spf13/cobra"
)

const seedActor = "seed"

var seedOperators = []domain.Operator{
	{EmployeeID: "E100", Name: "Maria Lopez", Plant: "North", Status: "Active"},
	{EmployeeID: "E101", Name: "Dwayne Carter", Plant: "North", Status: "Active"},
	{EmployeeID: "E200", Name: "Priya Shah", Plant: "South", Status: "Active"},
}

var seedMixers = []domain.Snapshot{
	{"truckNumber": "101", "assignedPlant": "North", "assignedOperator": "E100", "status": "Active", "cleanlinessRating": 4, "make": "Mack", "model": "Granite", "year": "2019"},
	{"truckNumber": "102", "assignedPlant": "North", "assignedOperator": "0", "status": "Spare", "cleanlinessRating": 2, "make": "Kenworth", "model": "T880", "year": "2021"},
	{"truckNumber": "201", "assignedPlant": "South", "assignedOperator": "E200", "status": "In Shop", "lastServiceDate": "2025-01-02"},
}

var seedTractors = []domain.Snapshot{
	{"truckNumber": "T-7", "assignedPlant": "North", "assignedOperator": "E101", "status": "Active", "hasBlower": true, "freight": "Cement"},
	{"truckNumber": "T-9", "assignedPlant": "South", "status": "Active", "hasBlower": false, "freight": "Fly Ash"},
}

func newSeedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Insert sample operators, mixers and tractors",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			now := time.Now().UTC()
			for i := range seedOperators {
				op := seedOperators[i]
				op.CreatedAt = now
				if err := a.operators.Create(ctx, &op); err != nil {
					return err
				}
			}

			mixers, err := seedAssets(ctx, a.mixers, seedMixers)
			if err != nil {
				return err
			}
			tractors, err := seedAssets(ctx, a.tractors, seedTractors)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "seeded %d operators, %d mixers, %d tractors\n",
				len(seedOperators), mixers, tractors)
			return nil
		},
	}
}

// seedAssets creates each asset. The first is verified, the second is verified
// and then edited, the rest stay unverified.
func seedAssets(ctx context.Context, uc *usecase.AssetUseCase, fields []domain.Snapshot) (int, error) {
	for i, f := range fields {
		view, err := uc.Create(ctx, seedActor, f)
		if err != nil {
			return i, fmt.Errorf("failed to seed %s: %w", uc.Kind(), err)
		}

		switch i {
		case 0:
			_, err = uc.Verify(ctx, view.ID, seedActor)
		case 1:
			if _, err = uc.Verify(ctx, view.ID, seedActor); err == nil {
				_, err = uc.Update(ctx, view.ID, seedActor, domain.Snapshot{"status": "Active", "cleanlinessRating": 3})
			}
		}
		if err != nil {
			return i, fmt.Errorf("failed to seed %s: %w", uc.Kind(), err)
		}
	}
	return len(fields), nil
}
