package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"digital-storefront/internal/config"
	"digital-storefront/internal/domain"
	"digital-storefront/internal/domain/model"
	"digital-storefront/internal/domain/ports/repository"
	pg "digital-storefront/internal/infra/db/postgres"
)

type seedProduct struct {
	ID             string     `yaml:"id"`
	Slug           string     `yaml:"slug"`
	Name           string     `yaml:"name"`
	Price          int64      `yaml:"price"`
	Currency       string     `yaml:"currency"`
	Active         *bool      `yaml:"active"`
	AvailableFrom  *time.Time `yaml:"available_from"`
	AvailableUntil *time.Time `yaml:"available_until"`
	DurationDays   *int       `yaml:"auto_grant_duration_days"`
}

type seedFile struct {
	Products []seedProduct `yaml:"products"`
}

func main() {
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	productsPath := flag.String("products", "deploy/seed/products.yaml", "path to the products YAML file")
	flag.Parse()

	// Seeding never touches Stripe, so dev mode skips that check.
	cfg, err := config.LoadConfig(*cfgPath, true)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	b, err := os.ReadFile(*productsPath)
	if err != nil {
		log.Fatalf("read products: %v", err)
	}
	var sf seedFile
	if err := yaml.Unmarshal(b, &sf); err != nil {
		log.Fatalf("parse products: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, 4)
	if err != nil {
		log.Fatalf("postgres: %v", err)
	}
	defer pool.Close()
	repo := pg.NewProductRepo(pool)

	seeded := 0
	for _, s := range sf.Products {
		active := true
		if s.Active != nil {
			active = *s.Active
		}
		p, err := model.NewProduct(s.ID, s.Slug, s.Name, s.Price, s.Currency, active, s.AvailableFrom, s.AvailableUntil, s.DurationDays)
		if err != nil {
			log.Fatalf("product %q: %v", s.Slug, err)
		}
		if existing, err := repo.FindBySlug(ctx, repository.NoTX, p.Slug); err == nil {
			fmt.Printf("exists: %s (id=%s)\n", existing.Slug, existing.ID)
			continue
		} else if !errors.Is(err, domain.ErrNotFound) {
			log.Fatalf("lookup %q: %v", p.Slug, err)
		}
		if err := repo.Save(ctx, repository.NoTX, p); err != nil {
			log.Fatalf("save %q: %v", p.Slug, err)
		}
		seeded++
		fmt.Printf("seeded: %s (id=%s, price=%d %s)\n", p.Slug, p.ID, p.Price, p.Currency)
	}

	fmt.Printf("seeding complete: %d new product(s)\n", seeded)
}
