// Seeds a development database with demo vendors, products and coupons.
package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/paulmach/orb"

	"github.com/bazaar-labs/bazaar-api/internal/catalog"
	"github.com/bazaar-labs/bazaar-api/internal/coupon"
	"github.com/bazaar-labs/bazaar-api/internal/db"
	"github.com/bazaar-labs/bazaar-api/internal/vendor"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, relying on environment variables")
	}

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := db.NewPool(ctx, dbURL)
	if err != nil {
		log.Fatalf("connect database: %v", err)
	}
	defer pool.Close()

	if err := db.Migrate(dbURL); err != nil {
		log.Fatalf("run migrations: %v", err)
	}

	catalogStore := catalog.Store{DB: pool}
	vendorStore := vendor.Store{DB: pool}
	couponStore := coupon.Store{DB: pool}

	log.Println("seeding categories...")
	grocery, err := catalogStore.CreateCategory(ctx, "Grocery", "grocery")
	if err != nil {
		log.Fatalf("seed category: %v", err)
	}
	beverages, err := catalogStore.CreateCategory(ctx, "Beverages", "beverages")
	if err != nil {
		log.Fatalf("seed category: %v", err)
	}

	log.Println("seeding vendors...")
	demoOwner := uuid.MustParse("3f9f2c1e-9b7a-4c52-8f4d-6d1f6b3a9e01")
	vendors := []vendor.Vendor{
		{
			OwnerUserID:      demoOwner,
			Name:             "Sharma General Store",
			StateCode:        "DL",
			AddressLine:      "14 Chandni Chowk",
			City:             "Delhi",
			PostalCode:       "110006",
			Location:         orb.Point{77.2303, 28.6562},
			DeliveryRadiusKm: 5,
		},
		{
			OwnerUserID:      demoOwner,
			Name:             "Assam Tea House",
			StateCode:        "AS",
			AddressLine:      "2 Station Road",
			City:             "Guwahati",
			PostalCode:       "781001",
			Location:         orb.Point{91.7362, 26.1445},
			DeliveryRadiusKm: 8,
		},
	}
	for i, v := range vendors {
		created, err := vendorStore.Create(ctx, v)
		if err != nil {
			log.Fatalf("seed vendor %q: %v", v.Name, err)
		}
		vendors[i] = created
	}

	log.Println("seeding products...")
	products := []catalog.Product{
		{VendorID: vendors[0].ID, CategoryID: grocery.ID, Title: "Masala Tin", Price: 10000, WeightGrams: 500, Stock: 100, Active: true},
		{VendorID: vendors[0].ID, CategoryID: grocery.ID, Title: "Basmati Rice 1kg", Price: 14500, WeightGrams: 1000, Stock: 60, Active: true},
		{VendorID: vendors[1].ID, CategoryID: beverages.ID, Title: "Assam Tea Pack", Price: 5000, WeightGrams: 300, Stock: 200, Active: true},
		{VendorID: vendors[1].ID, CategoryID: beverages.ID, Title: "Green Tea Sampler", Price: 7500, WeightGrams: 150, Stock: 80, Active: true},
	}
	for _, p := range products {
		if _, err := catalogStore.CreateProduct(ctx, p); err != nil {
			log.Fatalf("seed product %q: %v", p.Title, err)
		}
	}

	log.Println("seeding coupons...")
	now := time.Now()
	coupons := []coupon.Coupon{
		{
			Code:           "WELCOME10",
			Kind:           coupon.KindPercent,
			PercentBps:     1000,
			MinOrderAmount: 20000,
			PerUserLimit:   1,
			TotalLimit:     1000,
			StartsAt:       now,
			ExpiresAt:      now.AddDate(0, 3, 0),
			Scope:          coupon.ScopeAllProducts,
			Status:         coupon.StatusActive,
		},
		{
			Code:         "FLAT50",
			Kind:         coupon.KindFixed,
			Value:        5000,
			PerUserLimit: 3,
			StartsAt:     now,
			ExpiresAt:    now.AddDate(0, 1, 0),
			Scope:        coupon.ScopeAllProducts,
			Status:       coupon.StatusActive,
		},
	}
	for _, c := range coupons {
		if _, err := couponStore.Create(ctx, c); err != nil {
			log.Fatalf("seed coupon %q: %v", c.Code, err)
		}
	}

	log.Println("seeding completed")
}
