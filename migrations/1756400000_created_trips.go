package migrations

import (
	"github.com/pocketbase/pocketbase/core"
	m "github.com/pocketbase/pocketbase/migrations"
)

func init() {
	m.Register(func(app core.App) error {
		collection := core.NewBaseCollection("trips")

		collection.Fields.Add(
			&core.TextField{
				Name:     "route",
				Required: true,
				Max:      255,
			},
			&core.TextField{
				Name: "vehicle",
				Max:  100,
			},
			&core.NumberField{
				Name:     "total_seats",
				Required: true,
				OnlyInt:  true,
			},
			&core.JSONField{
				Name:     "seat_labels",
				Required: true,
				MaxSize:  50000,
			},
			&core.JSONField{
				Name:    "booked_seats",
				MaxSize: 50000,
			},
			&core.NumberField{
				Name:    "available_seats",
				OnlyInt: true,
			},
			&core.NumberField{
				Name:     "fare",
				Required: true,
			},
			&core.SelectField{
				Name:      "status",
				Required:  true,
				MaxSelect: 1,
				Values:    []string{"scheduled", "ongoing", "completed", "cancelled"},
			},
			&core.DateField{
				Name:     "departs_at",
				Required: true,
			},
			&core.AutodateField{
				Name:     "created",
				OnCreate: true,
			},
			&core.AutodateField{
				Name:     "updated",
				OnCreate: true,
				OnUpdate: true,
			},
		)

		collection.AddIndex("idx_trips_status_departs", false, "status, departs_at", "")

		return app.Save(collection)
	}, func(app core.App) error {
		collection, err := app.FindCollectionByNameOrId("trips")
		if err != nil {
			return err
		}
		return app.Delete(collection)
	})
}
