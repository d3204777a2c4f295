package storage

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rl1809/stock-ledger/internal/core/domain"
	"github.com/rl1809/stock-ledger/internal/port"
)

var ErrLockTimeout = errors.New("lock wait timeout")

type lockKey struct {
	table string
	id    int64
}

// MemoryStore is an in-process port.Store. Row locks are one-slot channels
// held until the owning transaction commits or rolls back; staged writes are
// applied atomically at commit.
type MemoryStore struct {
	mu              sync.RWMutex
	products        map[int64]domain.Product
	recipes         map[int64]domain.Recipe
	purchases       []domain.Purchase
	productions     []domain.Production
	sales           []domain.Sale
	autoconsumption []domain.Autoconsumption

	nextProductID atomic.Int64
	nextRecipeID  atomic.Int64
	nextWorkerID  atomic.Int64

	locksMu     sync.Mutex
	locks       map[lockKey]chan struct{}
	lockTimeout time.Duration
}

// NewMemoryStore creates an empty store. A zero lockTimeout waits for locks
// until the context is done.
func NewMemoryStore(lockTimeout time.Duration) *MemoryStore {
	return &MemoryStore{
		products:    make(map[int64]domain.Product),
		recipes:     make(map[int64]domain.Recipe),
		locks:       make(map[lockKey]chan struct{}),
		lockTimeout: lockTimeout,
	}
}

func (s *MemoryStore) Ping(ctx context.Context) error { return ctx.Err() }

func (s *MemoryStore) Close() error { return nil }

func (s *MemoryStore) lockChan(k lockKey) chan struct{} {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	ch, ok := s.locks[k]
	if !ok {
		ch = make(chan struct{}, 1)
		s.locks[k] = ch
	}
	return ch
}

func (s *MemoryStore) acquire(ctx context.Context, k lockKey) error {
	ch := s.lockChan(k)

	var timeout <-chan time.Time
	if s.lockTimeout > 0 {
		timer := time.NewTimer(s.lockTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		return domain.Persistence("lock "+k.table, ctx.Err())
	case <-timeout:
		return domain.Persistence("lock "+k.table, fmt.Errorf("%w on %s %d", ErrLockTimeout, k.table, k.id))
	}
}

func (s *MemoryStore) release(k lockKey) {
	<-s.lockChan(k)
}

func (s *MemoryStore) WithTx(ctx context.Context, fn func(tx port.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return domain.Persistence("begin tx", err)
	}

	tx := &memTx{
		s:        s,
		held:     make(map[lockKey]bool),
		products: make(map[int64]*domain.Product),
		created:  make(map[int64]bool),
		deleted:  make(map[int64]bool),
		recipes:  make(map[int64]*domain.Recipe),
	}
	defer tx.releaseLocks()

	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return domain.Persistence("commit", err)
	}
	return s.commit(tx)
}

func (s *MemoryStore) commit(tx *memTx) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Concurrent transactions may have created the same name since it was checked.
	for id := range tx.created {
		if tx.deleted[id] {
			continue
		}
		key := domain.NameKey(tx.products[id].Name)
		for otherID, other := range s.products {
			if otherID != id && !tx.deleted[otherID] && domain.NameKey(other.Name) == key {
				return fmt.Errorf("%w: product %q", domain.ErrDuplicateName, tx.products[id].Name)
			}
		}
	}
	for id, r := range tx.recipes {
		if _, exists := s.recipes[id]; exists {
			continue
		}
		key := domain.NameKey(r.Name)
		for _, other := range s.recipes {
			if domain.NameKey(other.Name) == key {
				return fmt.Errorf("%w: recipe %q", domain.ErrDuplicateName, r.Name)
			}
		}
	}

	for id, p := range tx.products {
		if !tx.deleted[id] {
			s.products[id] = *p
		}
	}
	for id := range tx.deleted {
		delete(s.products, id)
	}
	for id, r := range tx.recipes {
		s.recipes[id] = cloneRecipe(*r)
	}
	s.purchases = append(s.purchases, tx.purchases...)
	s.productions = append(s.productions, tx.productions...)
	s.sales = append(s.sales, tx.sales...)
	s.autoconsumption = append(s.autoconsumption, tx.autoconsumption...)
	return nil
}

func (s *MemoryStore) GetProduct(ctx context.Context, id int64) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.products[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (s *MemoryStore) GetProductByName(ctx context.Context, name string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	key := domain.NameKey(name)
	for _, p := range s.products {
		if domain.NameKey(p.Name) == key {
			return &p, nil
		}
	}
	return nil, nil
}

func (s *MemoryStore) ListProducts(ctx context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		out = append(out, p)
	}
	sortProducts(out)
	return out, nil
}

func (s *MemoryStore) GetRecipe(ctx context.Context, id int64) (*domain.Recipe, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.recipes[id]
	if !ok {
		return nil, nil
	}
	r = cloneRecipe(r)
	return &r, nil
}

func (s *MemoryStore) GetRecipeByName(ctx context.Context, name string) (*domain.Recipe, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	key := domain.NameKey(name)
	for _, r := range s.recipes {
		if domain.NameKey(r.Name) == key {
			r = cloneRecipe(r)
			return &r, nil
		}
	}
	return nil, nil
}

func (s *MemoryStore) ListRecipes(ctx context.Context, category string) ([]domain.Recipe, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Recipe, 0, len(s.recipes))
	for _, r := range s.recipes {
		if category == "" || r.Category == category {
			out = append(out, cloneRecipe(r))
		}
	}
	sortRecipes(out)
	return out, nil
}

func (s *MemoryStore) ListPurchases(ctx context.Context, since time.Time, productID int64) ([]domain.Purchase, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return filterPurchases(s.purchases, since, productID), nil
}

func (s *MemoryStore) ListProductions(ctx context.Context, since time.Time) ([]domain.Production, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newestFirst(s.productions, since, func(p domain.Production) time.Time { return p.ProducedAt }), nil
}

func (s *MemoryStore) ListSales(ctx context.Context, since time.Time) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newestFirst(s.sales, since, func(x domain.Sale) time.Time { return x.SoldAt }), nil
}

func (s *MemoryStore) ListAutoconsumption(ctx context.Context, since time.Time) ([]domain.Autoconsumption, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newestFirst(s.autoconsumption, since, func(a domain.Autoconsumption) time.Time { return a.ConsumedAt }), nil
}

// memTx stages every write until commit. Reads see committed rows overlaid
// with the transaction's own writes.
type memTx struct {
	s *MemoryStore

	held     map[lockKey]bool
	products map[int64]*domain.Product
	created  map[int64]bool
	deleted  map[int64]bool
	recipes  map[int64]*domain.Recipe

	purchases       []domain.Purchase
	productions     []domain.Production
	sales           []domain.Sale
	autoconsumption []domain.Autoconsumption
}

func (tx *memTx) releaseLocks() {
	for k := range tx.held {
		tx.s.release(k)
	}
	tx.held = nil
}

func (tx *memTx) lock(ctx context.Context, k lockKey) error {
	if tx.held[k] {
		return nil
	}
	if err := tx.s.acquire(ctx, k); err != nil {
		return err
	}
	tx.held[k] = true
	return nil
}

func (tx *memTx) product(id int64) (domain.Product, bool) {
	if tx.deleted[id] {
		return domain.Product{}, false
	}
	if p, ok := tx.products[id]; ok {
		return *p, true
	}
	tx.s.mu.RLock()
	defer tx.s.mu.RUnlock()
	p, ok := tx.s.products[id]
	return p, ok
}

func (tx *memTx) visibleProducts() []domain.Product {
	tx.s.mu.RLock()
	out := make([]domain.Product, 0, len(tx.s.products)+len(tx.created))
	for id, p := range tx.s.products {
		if tx.deleted[id] {
			continue
		}
		if staged, ok := tx.products[id]; ok {
			p = *staged
		}
		out = append(out, p)
	}
	tx.s.mu.RUnlock()
	for id := range tx.created {
		if !tx.deleted[id] {
			out = append(out, *tx.products[id])
		}
	}
	sortProducts(out)
	return out
}

func (tx *memTx) GetProduct(ctx context.Context, id int64) (*domain.Product, error) {
	p, ok := tx.product(id)
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (tx *memTx) GetProductByName(ctx context.Context, name string) (*domain.Product, error) {
	key := domain.NameKey(name)
	for _, p := range tx.visibleProducts() {
		if domain.NameKey(p.Name) == key {
			return &p, nil
		}
	}
	return nil, nil
}

func (tx *memTx) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return tx.visibleProducts(), nil
}

func (tx *memTx) recipe(id int64) (domain.Recipe, bool) {
	if r, ok := tx.recipes[id]; ok {
		return cloneRecipe(*r), true
	}
	tx.s.mu.RLock()
	defer tx.s.mu.RUnlock()
	r, ok := tx.s.recipes[id]
	if !ok {
		return domain.Recipe{}, false
	}
	return cloneRecipe(r), true
}

func (tx *memTx) visibleRecipes() []domain.Recipe {
	tx.s.mu.RLock()
	out := make([]domain.Recipe, 0, len(tx.s.recipes)+len(tx.recipes))
	for id, r := range tx.s.recipes {
		if _, staged := tx.recipes[id]; !staged {
			out = append(out, cloneRecipe(r))
		}
	}
	tx.s.mu.RUnlock()
	for _, r := range tx.recipes {
		out = append(out, cloneRecipe(*r))
	}
	sortRecipes(out)
	return out
}

func (tx *memTx) GetRecipe(ctx context.Context, id int64) (*domain.Recipe, error) {
	r, ok := tx.recipe(id)
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func (tx *memTx) GetRecipeByName(ctx context.Context, name string) (*domain.Recipe, error) {
	key := domain.NameKey(name)
	for _, r := range tx.visibleRecipes() {
		if domain.NameKey(r.Name) == key {
			return &r, nil
		}
	}
	return nil, nil
}

func (tx *memTx) ListRecipes(ctx context.Context, category string) ([]domain.Recipe, error) {
	var out []domain.Recipe
	for _, r := range tx.visibleRecipes() {
		if category == "" || r.Category == category {
			out = append(out, r)
		}
	}
	return out, nil
}

func (tx *memTx) ListPurchases(ctx context.Context, since time.Time, productID int64) ([]domain.Purchase, error) {
	tx.s.mu.RLock()
	all := append(slices.Clone(tx.s.purchases), tx.purchases...)
	tx.s.mu.RUnlock()
	return filterPurchases(all, since, productID), nil
}

func (tx *memTx) ListProductions(ctx context.Context, since time.Time) ([]domain.Production, error) {
	tx.s.mu.RLock()
	all := append(slices.Clone(tx.s.productions), tx.productions...)
	tx.s.mu.RUnlock()
	return newestFirst(all, since, func(p domain.Production) time.Time { return p.ProducedAt }), nil
}

func (tx *memTx) ListSales(ctx context.Context, since time.Time) ([]domain.Sale, error) {
	tx.s.mu.RLock()
	all := append(slices.Clone(tx.s.sales), tx.sales...)
	tx.s.mu.RUnlock()
	return newestFirst(all, since, func(x domain.Sale) time.Time { return x.SoldAt }), nil
}

func (tx *memTx) ListAutoconsumption(ctx context.Context, since time.Time) ([]domain.Autoconsumption, error) {
	tx.s.mu.RLock()
	all := append(slices.Clone(tx.s.autoconsumption), tx.autoconsumption...)
	tx.s.mu.RUnlock()
	return newestFirst(all, since, func(a domain.Autoconsumption) time.Time { return a.ConsumedAt }), nil
}

func (tx *memTx) LockProducts(ctx context.Context, ids ...int64) (map[int64]*domain.Product, error) {
	out := make(map[int64]*domain.Product, len(ids))
	for _, id := range sortedIDs(ids) {
		if err := tx.lock(ctx, lockKey{"products", id}); err != nil {
			return nil, err
		}
		p, ok := tx.product(id)
		if !ok {
			return nil, domain.NotFound("product", id)
		}
		out[id] = &p
	}
	return out, nil
}

func (tx *memTx) InsertProduct(ctx context.Context, p *domain.Product) (int64, error) {
	existing, _ := tx.GetProductByName(ctx, p.Name)
	if existing != nil {
		return 0, fmt.Errorf("%w: product %q", domain.ErrDuplicateName, p.Name)
	}
	id := tx.s.nextProductID.Add(1)
	if err := tx.lock(ctx, lockKey{"products", id}); err != nil {
		return 0, err
	}
	row := *p
	row.ID = id
	tx.products[id] = &row
	tx.created[id] = true
	return id, nil
}

func (tx *memTx) UpdateProduct(ctx context.Context, p *domain.Product) error {
	if !tx.held[lockKey{"products", p.ID}] {
		return domain.Persistence("update product", fmt.Errorf("product %d is not locked", p.ID))
	}
	if _, ok := tx.product(p.ID); !ok {
		return domain.NotFound("product", p.ID)
	}
	row := *p
	tx.products[p.ID] = &row
	return nil
}

func (tx *memTx) DeleteProduct(ctx context.Context, id int64) error {
	if !tx.held[lockKey{"products", id}] {
		return domain.Persistence("delete product", fmt.Errorf("product %d is not locked", id))
	}
	tx.deleted[id] = true
	return nil
}

func (tx *memTx) ProductReferences(ctx context.Context, id int64) (int, error) {
	n := 0
	for _, r := range tx.visibleRecipes() {
		for _, ing := range r.Ingredients {
			if ing.ProductID == id {
				n++
			}
		}
	}

	tx.s.mu.RLock()
	defer tx.s.mu.RUnlock()
	for _, p := range append(slices.Clone(tx.s.purchases), tx.purchases...) {
		if p.ProductID == id {
			n++
		}
	}
	for _, p := range append(slices.Clone(tx.s.productions), tx.productions...) {
		if p.ProductID == id {
			n++
		}
		for _, l := range p.Lines {
			if l.ProductID == id {
				n++
			}
		}
	}
	for _, a := range append(slices.Clone(tx.s.autoconsumption), tx.autoconsumption...) {
		if a.ProductID == id {
			n++
		}
	}
	return n, nil
}

func (tx *memTx) InsertPurchase(ctx context.Context, p *domain.Purchase) error {
	tx.purchases = append(tx.purchases, *p)
	return nil
}

func (tx *memTx) InsertProduction(ctx context.Context, p *domain.Production) error {
	row := *p
	row.Lines = slices.Clone(p.Lines)
	tx.productions = append(tx.productions, row)
	return nil
}

func (tx *memTx) InsertSale(ctx context.Context, s *domain.Sale) error {
	tx.sales = append(tx.sales, *s)
	return nil
}

func (tx *memTx) InsertAutoconsumption(ctx context.Context, a *domain.Autoconsumption) error {
	tx.autoconsumption = append(tx.autoconsumption, *a)
	return nil
}

func (tx *memTx) InsertRecipe(ctx context.Context, r *domain.Recipe) (int64, error) {
	existing, _ := tx.GetRecipeByName(ctx, r.Name)
	if existing != nil {
		return 0, fmt.Errorf("%w: recipe %q", domain.ErrDuplicateName, r.Name)
	}
	id := tx.s.nextRecipeID.Add(1)
	if err := tx.lock(ctx, lockKey{"recipes", id}); err != nil {
		return 0, err
	}
	row := cloneRecipe(*r)
	row.ID = id
	tx.recipes[id] = &row
	return id, nil
}

// recipeForWrite locks the recipe and stages a private copy of it.
func (tx *memTx) recipeForWrite(ctx context.Context, id int64) (*domain.Recipe, error) {
	if err := tx.lock(ctx, lockKey{"recipes", id}); err != nil {
		return nil, err
	}
	if r, ok := tx.recipes[id]; ok {
		return r, nil
	}
	r, ok := tx.recipe(id)
	if !ok {
		return nil, domain.NotFound("recipe", id)
	}
	tx.recipes[id] = &r
	return &r, nil
}

func (tx *memTx) UpsertRecipeIngredient(ctx context.Context, ing domain.RecipeIngredient) error {
	r, err := tx.recipeForWrite(ctx, ing.RecipeID)
	if err != nil {
		return err
	}
	for i := range r.Ingredients {
		if r.Ingredients[i].ProductID == ing.ProductID {
			r.Ingredients[i] = ing
			return nil
		}
	}
	r.Ingredients = append(r.Ingredients, ing)
	return nil
}

func (tx *memTx) InsertWorker(ctx context.Context, w *domain.Worker) (int64, error) {
	r, err := tx.recipeForWrite(ctx, w.RecipeID)
	if err != nil {
		return 0, err
	}
	row := *w
	row.ID = tx.s.nextWorkerID.Add(1)
	r.Workers = append(r.Workers, row)
	return row.ID, nil
}

func (tx *memTx) RefreshRecipeLaborCost(ctx context.Context, recipeID int64) (decimal.Decimal, error) {
	r, err := tx.recipeForWrite(ctx, recipeID)
	if err != nil {
		return decimal.Zero, err
	}
	r.TotalLaborCost = r.LaborCost()
	return r.TotalLaborCost, nil
}

func cloneRecipe(r domain.Recipe) domain.Recipe {
	r.Ingredients = slices.Clone(r.Ingredients)
	r.Workers = slices.Clone(r.Workers)
	return r
}

func sortedIDs(ids []int64) []int64 {
	out := slices.Clone(ids)
	slices.Sort(out)
	return slices.Compact(out)
}

func sortProducts(ps []domain.Product) {
	sort.Slice(ps, func(i, j int) bool {
		ki, kj := domain.NameKey(ps[i].Name), domain.NameKey(ps[j].Name)
		if ki != kj {
			return ki < kj
		}
		return ps[i].ID < ps[j].ID
	})
}

func sortRecipes(rs []domain.Recipe) {
	sort.Slice(rs, func(i, j int) bool {
		return domain.NameKey(rs[i].Name) < domain.NameKey(rs[j].Name)
	})
}

func filterPurchases(all []domain.Purchase, since time.Time, productID int64) []domain.Purchase {
	out := newestFirst(all, since, func(p domain.Purchase) time.Time { return p.PurchasedAt })
	if productID == 0 {
		return out
	}
	return slices.DeleteFunc(out, func(p domain.Purchase) bool { return p.ProductID != productID })
}

func newestFirst[T any](all []T, since time.Time, at func(T) time.Time) []T {
	out := make([]T, 0, len(all))
	for _, r := range all {
		if !at(r).Before(since) {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return at(out[i]).After(at(out[j])) })
	return out
}
