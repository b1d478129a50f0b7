package migrations

import (
	"github.com/pocketbase/pocketbase/core"
	m "github.com/pocketbase/pocketbase/migrations"
)

func init() {
	m.Register(func(app core.App) error {
		collection := core.NewBaseCollection("bookings")

		collection.Fields.Add(
			&core.TextField{
				Name:     "code",
				Required: true,
				Max:      20,
			},
			&core.TextField{
				Name:     "trip",
				Required: true,
				Max:      50,
			},
			&core.JSONField{
				Name:     "seats",
				Required: true,
				MaxSize:  10000,
			},
			&core.JSONField{
				Name:     "passengers",
				Required: true,
				MaxSize:  50000,
			},
			&core.TextField{
				Name: "contact_name",
				Max:  255,
			},
			&core.TextField{
				Name:     "contact_email",
				Required: true,
				Max:      255,
			},
			&core.TextField{
				Name: "contact_phone",
				Max:  50,
			},
			&core.TextField{
				Name:     "holder_key",
				Required: true,
				Max:      100,
			},
			&core.SelectField{
				Name:      "status",
				Required:  true,
				MaxSelect: 1,
				Values:    []string{"pending", "confirmed", "cancelled", "completed"},
			},
			&core.DateField{
				Name: "hold_expiry",
			},
			&core.TextField{
				Name: "payment_ref",
				Max:  255,
			},
			&core.NumberField{
				Name: "base_amount",
			},
			&core.NumberField{
				Name: "discount_amount",
			},
			&core.NumberField{
				Name: "final_amount",
			},
			&core.NumberField{
				Name: "refund_amount",
			},
			&core.SelectField{
				Name:      "refund_status",
				MaxSelect: 1,
				Values:    []string{"none", "pending", "processed"},
			},
			&core.TextField{
				Name: "cancel_reason",
				Max:  500,
			},
			&core.TextField{
				Name: "cancelled_by",
				Max:  100,
			},
			&core.NumberField{
				Name:    "loyalty_points",
				OnlyInt: true,
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

		collection.AddIndex("idx_bookings_code", true, "code", "")
		collection.AddIndex("idx_bookings_holder", false, "holder_key, created", "")
		collection.AddIndex("idx_bookings_sweep", false, "status, hold_expiry", "status = 'pending'")

		return app.Save(collection)
	}, func(app core.App) error {
		collection, err := app.FindCollectionByNameOrId("bookings")
		if err != nil {
			return err
		}
		return app.Delete(collection)
	})
}
