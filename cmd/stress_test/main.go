package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rl1809/stock-ledger/internal/adapter/storage"
	"github.com/rl1809/stock-ledger/internal/core/domain"
	"github.com/rl1809/stock-ledger/internal/core/service"
	"github.com/rl1809/stock-ledger/internal/port"
)

const (
	initialStock  = 1000 // grams of flour
	gramsPerUnit  = 10
	totalSales    = 150
	totalRestocks = 20
	restockGrams  = 25
)

func main() {
	driver := flag.String("driver", "memory", "memory or sqlite3")
	flag.Parse()
	ctx := context.Background()

	store, cleanup, err := openStore(ctx, *driver)
	if err != nil {
		log.Fatalf("failed to open store: %v", err)
	}
	defer cleanup()

	ledger := service.NewLedger(store, service.WithLogger(zap.NewNop()))
	purchases := service.NewPurchaseService(store, ledger)
	sales := service.NewSalesService(store, ledger)
	catalog := service.NewRecipeCatalog(store)

	minStock := decimal.Zero
	buy := func(grams int64, price string) error {
		_, err := purchases.RegisterPurchase(ctx, service.PurchaseInput{
			ProductName: "Flour",
			Quantity:    decimal.NewFromInt(grams),
			Unit:        "g",
			UnitPrice:   decimal.RequireFromString(price),
			Type:        domain.PurchaseTypeBulk,
			MinStock:    &minStock,
			DisplayUnit: "g",
		})
		return err
	}
	if err := buy(initialStock, "0.002"); err != nil {
		log.Fatalf("failed to seed stock: %v", err)
	}
	flour, err := store.GetProductByName(ctx, "Flour")
	if err != nil || flour == nil {
		log.Fatalf("failed to load seeded product: %v", err)
	}
	roll, err := catalog.Create(ctx, "Roll", "bakery", decimal.NewFromInt(1))
	if err != nil {
		log.Fatalf("failed to create recipe: %v", err)
	}
	if err := catalog.AddIngredient(ctx, roll, flour.ID, decimal.NewFromInt(gramsPerUnit), "g"); err != nil {
		log.Fatalf("failed to add ingredient: %v", err)
	}

	var (
		soldCount     atomic.Int32
		shortCount    atomic.Int32
		restockCount  atomic.Int32
		unexpectedErr atomic.Int32
		wg            sync.WaitGroup
	)
	start := time.Now()

	for i := 0; i < totalSales; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := sales.RegisterSale(ctx, service.SaleInput{
				RecipeID:     roll,
				QuantitySold: 1,
				SalePrice:    decimal.NewFromInt(1),
			})
			switch {
			case err == nil:
				soldCount.Add(1)
			case errors.Is(err, domain.ErrInsufficientStock):
				shortCount.Add(1)
			default:
				unexpectedErr.Add(1)
				log.Printf("sale failed: %v", err)
			}
		}()
	}
	for i := 0; i < totalRestocks; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := buy(restockGrams, "0.004"); err != nil {
				unexpectedErr.Add(1)
				log.Printf("restock failed: %v", err)
				return
			}
			restockCount.Add(1)
		}()
	}

	wg.Wait()
	elapsed := time.Since(start)

	sold := soldCount.Load()
	restocked := restockCount.Load()

	final, err := store.GetProduct(ctx, flour.ID)
	if err != nil || final == nil {
		log.Fatalf("failed to reload product: %v", err)
	}
	expected := decimal.NewFromInt(int64(initialStock) + int64(restocked)*restockGrams - int64(sold)*gramsPerUnit)

	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Store:            %s\n", *driver)
	fmt.Printf("Sales attempted:  %d\n", totalSales)
	fmt.Printf("Sold:             %d\n", sold)
	fmt.Printf("Short on stock:   %d\n", shortCount.Load())
	fmt.Printf("Restocks:         %d\n", restocked)
	fmt.Printf("Unexpected:       %d\n", unexpectedErr.Load())
	fmt.Printf("Final quantity:   %s g\n", final.Quantity)
	fmt.Printf("Final valuation:  %s\n", final.TotalInvested)
	fmt.Printf("Duration:         %v\n", elapsed)
	fmt.Println("==========================================")

	failed := false
	if !final.Quantity.Equal(expected) {
		fmt.Printf("FAIL: expected quantity %s, got %s\n", expected, final.Quantity)
		failed = true
	} else {
		fmt.Println("PASS: no lost updates")
	}
	if final.Quantity.IsNegative() || final.TotalInvested.IsNegative() {
		fmt.Println("FAIL: negative stock or valuation")
		failed = true
	}
	if final.Quantity.IsZero() != final.TotalInvested.IsZero() {
		fmt.Println("FAIL: valuation left on an empty product")
		failed = true
	}
	if unexpectedErr.Load() > 0 {
		failed = true
	}
	if failed {
		os.Exit(1)
	}
}

func openStore(ctx context.Context, driver string) (port.Store, func(), error) {
	switch driver {
	case "memory":
		return storage.NewMemoryStore(10 * time.Second), func() {}, nil
	case "sqlite3":
		dir, err := os.MkdirTemp("", "ledger-stress")
		if err != nil {
			return nil, nil, err
		}
		dsn := "file:" + filepath.Join(dir, "ledger.db") + "?_txlock=immediate&_busy_timeout=10000"
		db, err := storage.Open(driver, dsn)
		if err != nil {
			return nil, nil, err
		}
		if err := storage.Migrate(ctx, db); err != nil {
			return nil, nil, err
		}
		store, err := storage.NewSQLStore(db)
		if err != nil {
			return nil, nil, err
		}
		return store, func() {
			store.Close()
			os.RemoveAll(dir)
		}, nil
	default:
		return nil, nil, fmt.Errorf("unsupported driver %q", driver)
	}
}
