package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"
	"github.com/shopspring/decimal"

	"github.com/rl1809/stock-ledger/internal/core/domain"
	"github.com/rl1809/stock-ledger/internal/core/units"
	"github.com/rl1809/stock-ledger/internal/port"
)

//go:embed migrations
var migrationsFS embed.FS

var ErrUnsupportedDriver = errors.New("unsupported database driver")

type dialect struct {
	name       string
	driver     string
	lockSuffix string
	returning  bool
	upsertLine string
}

var dialects = map[string]dialect{
	"mysql": {
		name:       "mysql",
		driver:     "mysql",
		lockSuffix: " FOR UPDATE",
		upsertLine: `INSERT INTO recipe_ingredients (recipe_id, product_id, quantity, unit)
			VALUES (?, ?, ?, ?)
			ON DUPLICATE KEY UPDATE quantity = VALUES(quantity), unit = VALUES(unit)`,
	},
	"postgres": {
		name:       "postgres",
		driver:     "pgx",
		lockSuffix: " FOR UPDATE",
		returning:  true,
		upsertLine: `INSERT INTO recipe_ingredients (recipe_id, product_id, quantity, unit)
			VALUES (?, ?, ?, ?)
			ON CONFLICT (recipe_id, product_id) DO UPDATE SET quantity = excluded.quantity, unit = excluded.unit`,
	},
	// SQLite has no row locks; Open makes every transaction take the database
	// write lock at BEGIN through _txlock=immediate.
	"sqlite3": {
		name:   "sqlite3",
		driver: "sqlite3",
		upsertLine: `INSERT INTO recipe_ingredients (recipe_id, product_id, quantity, unit)
			VALUES (?, ?, ?, ?)
			ON CONFLICT (recipe_id, product_id) DO UPDATE SET quantity = excluded.quantity, unit = excluded.unit`,
	},
}

func lookupDialect(name string) (dialect, error) {
	if name == "pgx" {
		name = "postgres"
	}
	d, ok := dialects[name]
	if !ok {
		return dialect{}, fmt.Errorf("%w: %q", ErrUnsupportedDriver, name)
	}
	return d, nil
}

// Open connects to a database. driver is one of mysql, postgres or sqlite3.
func Open(driver, dsn string) (*sqlx.DB, error) {
	d, err := lookupDialect(driver)
	if err != nil {
		return nil, err
	}
	if d.name == "sqlite3" {
		if dsn, err = sqliteDSN(dsn); err != nil {
			return nil, err
		}
	}
	db, err := sqlx.Open(d.driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", d.name, err)
	}
	return db, nil
}

// sqliteDSN adds _txlock=immediate when the DSN does not choose a lock mode,
// and rejects deferred transactions.
func sqliteDSN(dsn string) (string, error) {
	_, rawQuery, hasQuery := strings.Cut(dsn, "?")
	q, err := url.ParseQuery(rawQuery)
	if err != nil {
		return "", fmt.Errorf("parse sqlite3 dsn: %w", err)
	}
	switch mode := q.Get("_txlock"); mode {
	case "":
		if hasQuery && rawQuery != "" {
			return dsn + "&_txlock=immediate", nil
		}
		return strings.TrimSuffix(dsn, "?") + "?_txlock=immediate", nil
	case "immediate", "exclusive":
		return dsn, nil
	default:
		return "", fmt.Errorf("sqlite3 dsn: _txlock=%s does not serialise writers", mode)
	}
}

// Migrate applies the embedded schema for the connection's dialect.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	d, err := lookupDialect(db.DriverName())
	if err != nil {
		return err
	}
	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect(d.name); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db.DB, "migrations/"+d.name); err != nil {
		return fmt.Errorf("migrate %s: %w", d.name, err)
	}
	return nil
}

// SQLStore implements port.Store on MySQL, PostgreSQL or SQLite.
type SQLStore struct {
	sqlReader
	db *sqlx.DB
}

func NewSQLStore(db *sqlx.DB) (*SQLStore, error) {
	d, err := lookupDialect(db.DriverName())
	if err != nil {
		return nil, err
	}
	return &SQLStore{sqlReader: sqlReader{q: db, d: d}, db: db}, nil
}

func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

func (s *SQLStore) WithTx(ctx context.Context, fn func(tx port.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return domain.Persistence("begin tx", err)
	}
	defer tx.Rollback()

	if err := fn(&sqlTx{sqlReader: sqlReader{q: tx, d: s.d}, tx: tx}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return domain.Persistence("commit", err)
	}
	if err := tx.Commit(); err != nil {
		return domain.Persistence("commit", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == 1062
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}

func wrapErr(op string, err error) error {
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %s", domain.ErrDuplicateName, op)
	}
	return domain.Persistence(op, err)
}

type sqlReader struct {
	q sqlx.ExtContext
	d dialect
}

func (r sqlReader) get(ctx context.Context, op string, dest any, query string, args ...any) (bool, error) {
	err := sqlx.GetContext(ctx, r.q, dest, r.q.Rebind(query), args...)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, wrapErr(op, err)
	}
	return true, nil
}

func (r sqlReader) selectRows(ctx context.Context, op string, dest any, query string, args ...any) error {
	if err := sqlx.SelectContext(ctx, r.q, dest, r.q.Rebind(query), args...); err != nil {
		return wrapErr(op, err)
	}
	return nil
}

func (r sqlReader) GetProduct(ctx context.Context, id int64) (*domain.Product, error) {
	var row productRow
	found, err := r.get(ctx, "get product", &row,
		`SELECT `+productColumns+` FROM products WHERE id = ?`, id)
	if err != nil || !found {
		return nil, err
	}
	return row.toDomain(), nil
}

func (r sqlReader) GetProductByName(ctx context.Context, name string) (*domain.Product, error) {
	var row productRow
	found, err := r.get(ctx, "get product by name", &row,
		`SELECT `+productColumns+` FROM products WHERE name_key = ?`, domain.NameKey(name))
	if err != nil || !found {
		return nil, err
	}
	return row.toDomain(), nil
}

func (r sqlReader) ListProducts(ctx context.Context) ([]domain.Product, error) {
	var rows []productRow
	if err := r.selectRows(ctx, "list products", &rows,
		`SELECT `+productColumns+` FROM products ORDER BY name_key, id`); err != nil {
		return nil, err
	}
	out := make([]domain.Product, 0, len(rows))
	for _, row := range rows {
		out = append(out, *row.toDomain())
	}
	return out, nil
}

func (r sqlReader) GetRecipe(ctx context.Context, id int64) (*domain.Recipe, error) {
	var row recipeRow
	found, err := r.get(ctx, "get recipe", &row,
		`SELECT `+recipeColumns+` FROM recipes WHERE id = ?`, id)
	if err != nil || !found {
		return nil, err
	}
	recipes, err := r.withDetails(ctx, []recipeRow{row})
	if err != nil {
		return nil, err
	}
	return &recipes[0], nil
}

func (r sqlReader) GetRecipeByName(ctx context.Context, name string) (*domain.Recipe, error) {
	var row recipeRow
	found, err := r.get(ctx, "get recipe by name", &row,
		`SELECT `+recipeColumns+` FROM recipes WHERE name_key = ?`, domain.NameKey(name))
	if err != nil || !found {
		return nil, err
	}
	recipes, err := r.withDetails(ctx, []recipeRow{row})
	if err != nil {
		return nil, err
	}
	return &recipes[0], nil
}

func (r sqlReader) ListRecipes(ctx context.Context, category string) ([]domain.Recipe, error) {
	query := `SELECT ` + recipeColumns + ` FROM recipes`
	var args []any
	if category != "" {
		query += ` WHERE category = ?`
		args = append(args, category)
	}
	query += ` ORDER BY name_key`

	var rows []recipeRow
	if err := r.selectRows(ctx, "list recipes", &rows, query, args...); err != nil {
		return nil, err
	}
	return r.withDetails(ctx, rows)
}

// withDetails loads ingredients and workers for every recipe in two queries.
func (r sqlReader) withDetails(ctx context.Context, rows []recipeRow) ([]domain.Recipe, error) {
	out := make([]domain.Recipe, 0, len(rows))
	if len(rows) == 0 {
		return out, nil
	}
	ids := make([]int64, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
	}

	query, args, err := sqlx.In(`SELECT recipe_id, product_id, quantity, unit
		FROM recipe_ingredients WHERE recipe_id IN (?) ORDER BY recipe_id, product_id`, ids)
	if err != nil {
		return nil, fmt.Errorf("build ingredients query: %w", err)
	}
	var ingredients []ingredientRow
	if err := r.selectRows(ctx, "list recipe ingredients", &ingredients, query, args...); err != nil {
		return nil, err
	}

	query, args, err = sqlx.In(`SELECT id, recipe_id, name, payment
		FROM recipe_workers WHERE recipe_id IN (?) ORDER BY recipe_id, id`, ids)
	if err != nil {
		return nil, fmt.Errorf("build workers query: %w", err)
	}
	var workers []workerRow
	if err := r.selectRows(ctx, "list recipe workers", &workers, query, args...); err != nil {
		return nil, err
	}

	byRecipe := make(map[int64]*domain.Recipe, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	for i := range out {
		byRecipe[out[i].ID] = &out[i]
	}
	for _, ing := range ingredients {
		rec := byRecipe[ing.RecipeID]
		rec.Ingredients = append(rec.Ingredients, domain.RecipeIngredient{
			RecipeID:  ing.RecipeID,
			ProductID: ing.ProductID,
			Quantity:  ing.Quantity,
			Unit:      units.Unit(ing.Unit),
		})
	}
	for _, w := range workers {
		rec := byRecipe[w.RecipeID]
		rec.Workers = append(rec.Workers, domain.Worker{
			ID:       w.ID,
			RecipeID: w.RecipeID,
			Name:     w.Name,
			Payment:  w.Payment,
		})
	}
	return out, nil
}

func (r sqlReader) ListPurchases(ctx context.Context, since time.Time, productID int64) ([]domain.Purchase, error) {
	query := `SELECT ` + purchaseColumns + ` FROM purchases WHERE purchased_at >= ?`
	args := []any{since.UTC()}
	if productID != 0 {
		query += ` AND product_id = ?`
		args = append(args, productID)
	}
	query += ` ORDER BY purchased_at DESC`

	var rows []purchaseRow
	if err := r.selectRows(ctx, "list purchases", &rows, query, args...); err != nil {
		return nil, err
	}
	out := make([]domain.Purchase, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

func (r sqlReader) ListProductions(ctx context.Context, since time.Time) ([]domain.Production, error) {
	var rows []productionRow
	if err := r.selectRows(ctx, "list productions", &rows,
		`SELECT `+productionColumns+` FROM productions WHERE produced_at >= ? ORDER BY produced_at DESC`,
		since.UTC()); err != nil {
		return nil, err
	}
	out := make([]domain.Production, 0, len(rows))
	if len(rows) == 0 {
		return out, nil
	}

	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
	}
	query, args, err := sqlx.In(`SELECT production_id, line_no, product_id, quantity, unit, base_quantity, cost
		FROM production_lines WHERE production_id IN (?) ORDER BY production_id, line_no`, ids)
	if err != nil {
		return nil, fmt.Errorf("build production lines query: %w", err)
	}
	var lines []productionLineRow
	if err := r.selectRows(ctx, "list production lines", &lines, query, args...); err != nil {
		return nil, err
	}
	byProduction := make(map[string][]domain.ProductionLine, len(rows))
	for _, l := range lines {
		byProduction[l.ProductionID] = append(byProduction[l.ProductionID], domain.ProductionLine{
			ProductID:    l.ProductID,
			Quantity:     l.Quantity,
			Unit:         units.Unit(l.Unit),
			BaseQuantity: l.BaseQuantity,
			Cost:         l.Cost,
		})
	}

	for _, row := range rows {
		out = append(out, domain.Production{
			ID:               row.ID,
			ProductID:        row.ProductID,
			QuantityProduced: row.QuantityProduced,
			UnitProduced:     units.Unit(row.UnitProduced),
			BaseQuantity:     row.BaseQuantity,
			CostPerUnit:      row.CostPerUnit,
			TotalCost:        row.TotalCost,
			Lines:            byProduction[row.ID],
			ProducedAt:       row.ProducedAt,
		})
	}
	return out, nil
}

func (r sqlReader) ListSales(ctx context.Context, since time.Time) ([]domain.Sale, error) {
	var rows []saleRow
	if err := r.selectRows(ctx, "list sales", &rows,
		`SELECT `+saleColumns+` FROM sales WHERE sold_at >= ? ORDER BY sold_at DESC`, since.UTC()); err != nil {
		return nil, err
	}
	out := make([]domain.Sale, 0, len(rows))
	for _, row := range rows {
		out = append(out, domain.Sale{
			ID:           row.ID,
			RecipeID:     row.RecipeID,
			QuantitySold: row.QuantitySold,
			SalePrice:    row.SalePrice,
			ClientName:   row.ClientName,
			ClientNotes:  row.ClientNotes,
			Revenue:      row.Revenue,
			CostOfGoods:  row.CostOfGoods,
			SoldAt:       row.SoldAt,
		})
	}
	return out, nil
}

func (r sqlReader) ListAutoconsumption(ctx context.Context, since time.Time) ([]domain.Autoconsumption, error) {
	var rows []autoconsumptionRow
	if err := r.selectRows(ctx, "list autoconsumption", &rows,
		`SELECT `+autoconsumptionColumns+` FROM autoconsumption WHERE consumed_at >= ? ORDER BY consumed_at DESC`,
		since.UTC()); err != nil {
		return nil, err
	}
	out := make([]domain.Autoconsumption, 0, len(rows))
	for _, row := range rows {
		out = append(out, domain.Autoconsumption{
			ID:           row.ID,
			ProductID:    row.ProductID,
			Quantity:     row.Quantity,
			Unit:         units.Unit(row.Unit),
			BaseQuantity: row.BaseQuantity,
			AverageCost:  row.AverageCost,
			Cost:         row.Cost,
			Reason:       row.Reason,
			ConsumedAt:   row.ConsumedAt,
		})
	}
	return out, nil
}

type sqlTx struct {
	sqlReader
	tx *sqlx.Tx
}

func (t *sqlTx) exec(ctx context.Context, op, query string, args ...any) (sql.Result, error) {
	res, err := t.tx.ExecContext(ctx, t.tx.Rebind(query), args...)
	if err != nil {
		return nil, wrapErr(op, err)
	}
	return res, nil
}

func (t *sqlTx) namedExec(ctx context.Context, op, query string, arg any) error {
	if _, err := t.tx.NamedExecContext(ctx, query, arg); err != nil {
		return wrapErr(op, err)
	}
	return nil
}

// insertID runs an INSERT and returns the generated id.
func (t *sqlTx) insertID(ctx context.Context, op, query string, args ...any) (int64, error) {
	if t.d.returning {
		var id int64
		if err := t.tx.QueryRowxContext(ctx, t.tx.Rebind(query+` RETURNING id`), args...).Scan(&id); err != nil {
			return 0, wrapErr(op, err)
		}
		return id, nil
	}
	res, err := t.exec(ctx, op, query, args...)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, wrapErr(op, err)
	}
	return id, nil
}

func (t *sqlTx) LockProducts(ctx context.Context, ids ...int64) (map[int64]*domain.Product, error) {
	out := make(map[int64]*domain.Product, len(ids))
	for _, id := range sortedIDs(ids) {
		var row productRow
		found, err := t.get(ctx, "lock product", &row,
			`SELECT `+productColumns+` FROM products WHERE id = ?`+t.d.lockSuffix, id)
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, domain.NotFound("product", id)
		}
		out[id] = row.toDomain()
	}
	return out, nil
}

func (t *sqlTx) InsertProduct(ctx context.Context, p *domain.Product) (int64, error) {
	row := newProductRow(p)
	return t.insertID(ctx, "insert product", `INSERT INTO products
		(name, name_key, quantity, base_unit, total_invested, display_unit, min_stock, supplier, notes, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		row.Name, row.NameKey, row.Quantity, row.BaseUnit, row.TotalInvested, row.DisplayUnit,
		row.MinStock, row.Supplier, row.Notes, row.CreatedAt, row.UpdatedAt,
	)
}

func (t *sqlTx) UpdateProduct(ctx context.Context, p *domain.Product) error {
	row := newProductRow(p)
	res, err := t.exec(ctx, "update product", `UPDATE products
		SET quantity = ?, total_invested = ?, display_unit = ?, min_stock = ?, supplier = ?, notes = ?, updated_at = ?
		WHERE id = ?`,
		row.Quantity, row.TotalInvested, row.DisplayUnit, row.MinStock, row.Supplier, row.Notes, row.UpdatedAt, row.ID,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.NotFound("product", p.ID)
	}
	return nil
}

func (t *sqlTx) DeleteProduct(ctx context.Context, id int64) error {
	_, err := t.exec(ctx, "delete product", `DELETE FROM products WHERE id = ?`, id)
	return err
}

func (t *sqlTx) ProductReferences(ctx context.Context, id int64) (int, error) {
	var n int
	_, err := t.get(ctx, "count product references", &n, `SELECT
		(SELECT COUNT(*) FROM recipe_ingredients WHERE product_id = ?) +
		(SELECT COUNT(*) FROM purchases WHERE product_id = ?) +
		(SELECT COUNT(*) FROM productions WHERE product_id = ?) +
		(SELECT COUNT(*) FROM production_lines WHERE product_id = ?) +
		(SELECT COUNT(*) FROM autoconsumption WHERE product_id = ?)`,
		id, id, id, id, id)
	return n, err
}

func (t *sqlTx) InsertPurchase(ctx context.Context, p *domain.Purchase) error {
	return t.namedExec(ctx, "insert purchase", `INSERT INTO purchases (`+purchaseColumns+`)
		VALUES (:id, :product_id, :quantity, :unit, :unit_price, :purchase_type, :supplier, :notes,
		:package_weight, :units_per_package, :base_quantity, :total_cost, :unit_cost_base, :purchased_at)`,
		newPurchaseRow(p))
}

func (t *sqlTx) InsertProduction(ctx context.Context, p *domain.Production) error {
	row := productionRow{
		ID:               p.ID,
		ProductID:        p.ProductID,
		QuantityProduced: domain.Round(p.QuantityProduced),
		UnitProduced:     string(p.UnitProduced),
		BaseQuantity:     domain.Round(p.BaseQuantity),
		CostPerUnit:      domain.Round(p.CostPerUnit),
		TotalCost:        domain.Round(p.TotalCost),
		ProducedAt:       p.ProducedAt.UTC(),
	}
	if err := t.namedExec(ctx, "insert production", `INSERT INTO productions (`+productionColumns+`)
		VALUES (:id, :product_id, :quantity_produced, :unit_produced, :base_quantity,
		:cost_per_unit, :total_cost, :produced_at)`, row); err != nil {
		return err
	}

	for i, l := range p.Lines {
		line := productionLineRow{
			ProductionID: p.ID,
			LineNo:       i + 1,
			ProductID:    l.ProductID,
			Quantity:     domain.Round(l.Quantity),
			Unit:         string(l.Unit),
			BaseQuantity: domain.Round(l.BaseQuantity),
			Cost:         domain.Round(l.Cost),
		}
		if err := t.namedExec(ctx, "insert production line", `INSERT INTO production_lines
			(production_id, line_no, product_id, quantity, unit, base_quantity, cost)
			VALUES (:production_id, :line_no, :product_id, :quantity, :unit, :base_quantity, :cost)`, line); err != nil {
			return err
		}
	}
	return nil
}

func (t *sqlTx) InsertSale(ctx context.Context, s *domain.Sale) error {
	return t.namedExec(ctx, "insert sale", `INSERT INTO sales (`+saleColumns+`)
		VALUES (:id, :recipe_id, :quantity_sold, :sale_price, :client_name, :client_notes,
		:revenue, :cost_of_goods, :sold_at)`,
		saleRow{
			ID:           s.ID,
			RecipeID:     s.RecipeID,
			QuantitySold: s.QuantitySold,
			SalePrice:    domain.Round(s.SalePrice),
			ClientName:   s.ClientName,
			ClientNotes:  s.ClientNotes,
			Revenue:      domain.Round(s.Revenue),
			CostOfGoods:  domain.Round(s.CostOfGoods),
			SoldAt:       s.SoldAt.UTC(),
		})
}

func (t *sqlTx) InsertAutoconsumption(ctx context.Context, a *domain.Autoconsumption) error {
	return t.namedExec(ctx, "insert autoconsumption", `INSERT INTO autoconsumption (`+autoconsumptionColumns+`)
		VALUES (:id, :product_id, :quantity, :unit, :base_quantity, :average_cost, :cost, :reason, :consumed_at)`,
		autoconsumptionRow{
			ID:           a.ID,
			ProductID:    a.ProductID,
			Quantity:     domain.Round(a.Quantity),
			Unit:         string(a.Unit),
			BaseQuantity: domain.Round(a.BaseQuantity),
			AverageCost:  domain.Round(a.AverageCost),
			Cost:         domain.Round(a.Cost),
			Reason:       a.Reason,
			ConsumedAt:   a.ConsumedAt.UTC(),
		})
}

func (t *sqlTx) InsertRecipe(ctx context.Context, r *domain.Recipe) (int64, error) {
	return t.insertID(ctx, "insert recipe", `INSERT INTO recipes
		(name, name_key, category, sale_price, total_labor_cost, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		r.Name, domain.NameKey(r.Name), r.Category, domain.Round(r.SalePrice),
		domain.Round(r.TotalLaborCost), r.CreatedAt.UTC(),
	)
}

func (t *sqlTx) UpsertRecipeIngredient(ctx context.Context, ing domain.RecipeIngredient) error {
	_, err := t.exec(ctx, "upsert recipe ingredient", t.d.upsertLine,
		ing.RecipeID, ing.ProductID, domain.Round(ing.Quantity), string(ing.Unit))
	return err
}

func (t *sqlTx) lockRecipe(ctx context.Context, id int64) error {
	var lockedID int64
	found, err := t.get(ctx, "lock recipe", &lockedID,
		`SELECT id FROM recipes WHERE id = ?`+t.d.lockSuffix, id)
	if err != nil {
		return err
	}
	if !found {
		return domain.NotFound("recipe", id)
	}
	return nil
}

func (t *sqlTx) InsertWorker(ctx context.Context, w *domain.Worker) (int64, error) {
	if err := t.lockRecipe(ctx, w.RecipeID); err != nil {
		return 0, err
	}
	return t.insertID(ctx, "insert worker", `INSERT INTO recipe_workers (recipe_id, name, payment)
		VALUES (?, ?, ?)`, w.RecipeID, w.Name, domain.Round(w.Payment))
}

func (t *sqlTx) RefreshRecipeLaborCost(ctx context.Context, recipeID int64) (decimal.Decimal, error) {
	if err := t.lockRecipe(ctx, recipeID); err != nil {
		return decimal.Zero, err
	}
	// Summed in Go: SQLite stores decimals as text.
	var payments []decimal.Decimal
	if err := t.selectRows(ctx, "list worker payments", &payments,
		`SELECT payment FROM recipe_workers WHERE recipe_id = ?`, recipeID); err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, p := range payments {
		total = total.Add(p)
	}
	if _, err := t.exec(ctx, "update labor cost",
		`UPDATE recipes SET total_labor_cost = ? WHERE id = ?`, domain.Round(total), recipeID); err != nil {
		return decimal.Zero, err
	}
	return total, nil
}
