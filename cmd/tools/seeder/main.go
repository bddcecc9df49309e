package main

import (
	"database/sql"
	"log"
	"os"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	"github.com/elitegames/backend-store/internal/app"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL is not set")
	}

	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		log.Fatalf("Failed to open DB: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		log.Fatalf("Failed to ping DB: %v", err)
	}

	seedUsers(db)
	seedCatalog(db)
	seedSettings(db)

	log.Println("Seeding completed successfully!")
}

func seedUsers(db *sql.DB) {
	users := []struct {
		Name  string
		Email string
		Role  string
	}{
		{"Store Admin", "admin@elitegames.example", "admin"},
		{"Ana Martins", "ana@example.com", "customer"},
		{"Joao Pereira", "joao@example.com", "customer"},
		{"Marta Silva", "marta@example.com", "customer"},
	}

	log.Println("Seeding users...")
	password := os.Getenv("SEED_PASSWORD")
	if password == "" {
		password = "changeme12345"
	}
	hash, err := app.HashPassword(password)
	if err != nil {
		log.Fatalf("Failed to hash seed password: %v", err)
	}

	for _, u := range users {
		_, err := db.Exec(`
			INSERT INTO users (name, email, password_hash, roles)
			VALUES ($1, $2, $3, ARRAY[$4])
			ON CONFLICT (email) DO NOTHING`,
			u.Name, u.Email, hash, u.Role,
		)
		if err != nil {
			log.Fatalf("Failed to seed user %s: %v", u.Email, err)
		}
	}
}

func seedCatalog(db *sql.DB) {
	log.Println("Seeding catalog...")

	categories := []struct {
		Name string
		Slug string
	}{
		{"Strategy", "strategy"},
		{"Family", "family"},
		{"Accessories", "accessories"},
	}
	for _, c := range categories {
		_, err := db.Exec(`
			INSERT INTO categories (name, slug)
			VALUES ($1, $2)
			ON CONFLICT (slug) DO NOTHING`,
			c.Name, c.Slug,
		)
		if err != nil {
			log.Fatalf("Failed to seed category %s: %v", c.Slug, err)
		}
	}

	products := []struct {
		Name         string
		Slug         string
		CategorySlug string
		Type         string
		Price        int64
		SalePrice    *int64
		Description  string
	}{
		{"Gloomhaven", "gloomhaven", "strategy", "board_game", 13999, nil, "Euro-inspired tactical combat in a persistent world."},
		{"Scythe", "scythe", "strategy", "board_game", 8999, nil, "Engine building in an alternate-history 1920s Europe."},
		{"Wingspan", "wingspan", "family", "board_game", 5999, ptr(4999), "A competitive bird-collection engine builder."},
		{"Wingspan: European Expansion", "wingspan-european-expansion", "family", "expansion", 2999, nil, "New birds and end-round abilities for Wingspan."},
		{"Premium Card Sleeves", "premium-card-sleeves", "accessories", "accessory", 899, nil, "Pack of 100 clear sleeves for standard cards."},
		{"Metal Dice Set", "metal-dice-set", "accessories", "accessory", 1999, ptr(1500), "Seven-piece polyhedral set in a tin."},
		{"Gift Card 50", "gift-card-50", "", "gift_card", 5000, nil, "Digital gift card worth 50."},
	}
	for _, p := range products {
		var categoryID any
		if p.CategorySlug != "" {
			var id string
			if err := db.QueryRow("SELECT id FROM categories WHERE slug = $1", p.CategorySlug).Scan(&id); err != nil {
				log.Fatalf("Failed to resolve category %s: %v", p.CategorySlug, err)
			}
			categoryID = id
		}
		_, err := db.Exec(`
			INSERT INTO products (category_id, name, slug, description, product_type, price, sale_price, active)
			VALUES ($1, $2, $3, $4, $5, $6, $7, TRUE)
			ON CONFLICT (slug) DO NOTHING`,
			categoryID, p.Name, p.Slug, p.Description, p.Type, p.Price, p.SalePrice,
		)
		if err != nil {
			log.Fatalf("Failed to seed product %s: %v", p.Slug, err)
		}
	}
}

func seedSettings(db *sql.DB) {
	log.Println("Seeding shop settings...")
	_, err := db.Exec(`
		INSERT INTO shop_settings (
			id, first_board_game_price, additional_board_game_price,
			free_shipping_threshold, standard_shipping_cost, tax_rate_bps, currency
		)
		VALUES (1, 4000, 2500, 5000, 599, 2100, 'EUR')
		ON CONFLICT (id) DO NOTHING`)
	if err != nil {
		log.Fatalf("Failed to seed shop settings: %v", err)
	}
}

func ptr(v int64) *int64 { return &v }
