package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rl1809/stock-ledger/internal/core/domain"
)

func TestLowStock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	flour := f.buy(t, "Flour", "100", "g", "0.002")
	sugar := f.buy(t, "Sugar", "100", "g", "0.004")
	f.buy(t, "Salt", "100", "g", "0.001")

	if err := f.ledger.UpdateMinStock(ctx, flour, dec("500")); err != nil {
		t.Fatal(err)
	}
	// At the threshold is not below it.
	if err := f.ledger.UpdateMinStock(ctx, sugar, dec("100")); err != nil {
		t.Fatal(err)
	}

	low, err := f.reports.LowStock(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(low) != 1 || low[0].ID != flour {
		t.Errorf("expected only flour to be low, got %+v", low)
	}
}

func TestHistoryWindows(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	f := newFixture(t, WithClock(clock.Now))
	ctx := context.Background()

	milk := f.buy(t, "Milk", "2", "L", "1")
	clock.Advance(10 * 24 * time.Hour)
	flour := f.buy(t, "Flour", "1000", "g", "0.002")
	if _, err := f.autoconsumption.RegisterAutoconsumption(ctx, AutoconsumptionInput{
		ProductID: milk, Quantity: dec("0.5"), Unit: "L", Reason: "tasting",
	}); err != nil {
		t.Fatal(err)
	}
	clock.Advance(time.Hour)
	if _, err := f.autoconsumption.RegisterAutoconsumption(ctx, AutoconsumptionInput{
		ProductID: flour, Quantity: dec("100"), Unit: "g",
	}); err != nil {
		t.Fatal(err)
	}

	recent, err := f.reports.PurchaseHistory(ctx, 7, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(recent) != 1 || recent[0].ProductID != flour {
		t.Errorf("expected only the flour purchase in the last 7 days, got %+v", recent)
	}

	all, err := f.reports.PurchaseHistory(ctx, 30, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 || all[0].ProductID != flour {
		t.Errorf("expected 2 purchases newest first, got %+v", all)
	}

	milkOnly, err := f.reports.PurchaseHistory(ctx, 30, milk)
	if err != nil {
		t.Fatal(err)
	}
	if len(milkOnly) != 1 || milkOnly[0].ProductID != milk {
		t.Errorf("expected the milk purchase only, got %+v", milkOnly)
	}

	consumed, err := f.reports.AutoconsumptionHistory(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(consumed) != 2 || consumed[0].ProductID != flour {
		t.Errorf("expected 2 records newest first, got %+v", consumed)
	}

	total, err := f.reports.AutoconsumptionCost(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	assertDecimal(t, "autoconsumption cost", dec("0.7"), total)
}

func TestSalesAndProductionHistory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	flour := f.buy(t, "Flour", "1000", "g", "0.002")
	bread := f.recipe(t, "Bread", ingredient(flour, "100", "g"))

	if _, err := f.sales.RegisterSale(ctx, SaleInput{RecipeID: bread, QuantitySold: 2, SalePrice: dec("2")}); err != nil {
		t.Fatal(err)
	}
	if _, err := f.production.RegisterProduction(ctx, ProductionInput{
		ElaboratedName:   "Dough",
		Ingredients:      []IngredientUse{{ProductID: flour, Quantity: dec("300"), Unit: "g"}},
		QuantityProduced: dec("1"),
		UnitProduced:     "kg",
	}); err != nil {
		t.Fatal(err)
	}

	sales, err := f.reports.SalesHistory(ctx, 30)
	if err != nil {
		t.Fatal(err)
	}
	if len(sales) != 1 || sales[0].QuantitySold != 2 {
		t.Errorf("unexpected sales %+v", sales)
	}
	runs, err := f.reports.ProductionHistory(ctx, 30)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 {
		t.Fatalf("expected 1 production run, got %d", len(runs))
	}
	assertDecimal(t, "production cost", dec("0.6"), runs[0].TotalCost)
}

func TestReports_RejectNonPositiveDays(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, days := range []int{0, -3} {
		if _, err := f.reports.SalesHistory(ctx, days); !errors.Is(err, domain.ErrValidation) {
			t.Errorf("days=%d: expected ErrValidation, got %v", days, err)
		}
		if _, err := f.reports.AutoconsumptionCost(ctx, days); !errors.Is(err, domain.ErrValidation) {
			t.Errorf("days=%d: expected ErrValidation, got %v", days, err)
		}
	}
	total, err := f.reports.AutoconsumptionCost(ctx, 7)
	if err != nil {
		t.Fatal(err)
	}
	assertDecimal(t, "empty total", decimal.Zero, total)
}

func TestSalesReports(t *testing.T) {
	day1 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := &fakeClock{now: day1}
	f := newFixture(t, WithClock(clock.Now))
	ctx := context.Background()

	flour := f.buy(t, "Flour", "1000", "g", "0.002")
	bread := f.recipe(t, "Bread", ingredient(flour, "100", "g"))
	cake := f.recipe(t, "Cake", ingredient(flour, "50", "g"))
	scone := f.recipe(t, "Scone")
	if _, err := f.catalog.AddWorker(ctx, bread, "Baker", dec("0.5")); err != nil {
		t.Fatal(err)
	}

	sell := func(recipeID, quantity int64, price, client string) {
		t.Helper()
		if _, err := f.sales.RegisterSale(ctx, SaleInput{
			RecipeID: recipeID, QuantitySold: quantity, SalePrice: dec(price), ClientName: client,
		}); err != nil {
			t.Fatal(err)
		}
	}
	sell(bread, 2, "2", "Ana")
	clock.Advance(24 * time.Hour)
	sell(cake, 1, "5", "Bo")
	sell(bread, 1, "3", "Ana")
	sell(bread, 1, "1", "  ")

	byRecipe, err := f.reports.SalesByRecipe(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(byRecipe) != 2 {
		t.Fatalf("expected 2 sold recipes, got %+v", byRecipe)
	}
	if byRecipe[0].RecipeID != bread || byRecipe[0].Name != "Bread" || byRecipe[0].UnitsSold != 4 {
		t.Errorf("unexpected first row %+v", byRecipe[0])
	}
	assertDecimal(t, "bread revenue", dec("8"), byRecipe[0].Revenue)
	assertDecimal(t, "cake revenue", dec("5"), byRecipe[1].Revenue)

	clients, err := f.reports.TopClients(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(clients) != 2 || clients[0].Name != "Ana" || clients[0].Purchases != 2 {
		t.Fatalf("unexpected clients %+v", clients)
	}
	assertDecimal(t, "ana spent", dec("7"), clients[0].Spent)
	assertDecimal(t, "bo spent", dec("5"), clients[1].Spent)

	top, err := f.reports.TopClients(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(top) != 1 || top[0].Name != "Ana" {
		t.Errorf("expected only Ana, got %+v", top)
	}

	daily, err := f.reports.DailySales(ctx, 7)
	if err != nil {
		t.Fatal(err)
	}
	if len(daily) != 2 {
		t.Fatalf("expected 2 days, got %+v", daily)
	}
	if !daily[0].Day.Equal(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("expected oldest day first, got %v", daily[0].Day)
	}
	assertDecimal(t, "day 1", dec("4"), daily[0].Revenue)
	assertDecimal(t, "day 2", dec("9"), daily[1].Revenue)

	profits, err := f.reports.ProfitByRecipe(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(profits) != 3 {
		t.Fatalf("expected every recipe, got %+v", profits)
	}
	if profits[0].RecipeID != bread || profits[1].RecipeID != cake || profits[2].RecipeID != scone {
		t.Errorf("expected revenue order bread, cake, scone, got %+v", profits)
	}
	assertDecimal(t, "bread ingredients", dec("0.8"), profits[0].IngredientCost)
	assertDecimal(t, "bread labor", dec("2"), profits[0].LaborCost)
	assertDecimal(t, "bread profit", dec("5.2"), profits[0].Profit)
	assertDecimal(t, "cake profit", dec("4.9"), profits[1].Profit)
	assertDecimal(t, "unsold profit", decimal.Zero, profits[2].Profit)

	totals, err := f.reports.Totals(ctx)
	if err != nil {
		t.Fatal(err)
	}
	assertDecimal(t, "total revenue", dec("13"), totals.Revenue)
	assertDecimal(t, "total cost of goods", dec("0.9"), totals.CostOfGoods)
	assertDecimal(t, "total labor", dec("2"), totals.LaborCost)
	assertDecimal(t, "total profit", dec("10.1"), totals.Profit)
	assertDecimal(t, "total invested", dec("1.1"), totals.TotalInvested)
}

func TestSalesReports_Empty(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	byRecipe, err := f.reports.SalesByRecipe(ctx)
	if err != nil || len(byRecipe) != 0 {
		t.Errorf("expected no rows, got %+v, %v", byRecipe, err)
	}
	clients, err := f.reports.TopClients(ctx, 5)
	if err != nil || len(clients) != 0 {
		t.Errorf("expected no clients, got %+v, %v", clients, err)
	}
	if _, err := f.reports.DailySales(ctx, 0); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("expected ErrValidation for days=0, got %v", err)
	}
	totals, err := f.reports.Totals(ctx)
	if err != nil {
		t.Fatal(err)
	}
	assertDecimal(t, "revenue", decimal.Zero, totals.Revenue)
	assertDecimal(t, "invested", decimal.Zero, totals.TotalInvested)
}
