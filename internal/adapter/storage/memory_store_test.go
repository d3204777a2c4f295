package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rl1809/stock-ledger/internal/core/domain"
	"github.com/rl1809/stock-ledger/internal/port"
)

// holdLock keeps product id locked until the returned func is called.
func holdLock(t *testing.T, s *MemoryStore, id int64) func() {
	t.Helper()
	locked := make(chan struct{})
	done := make(chan struct{})
	finished := make(chan error, 1)
	go func() {
		finished <- s.WithTx(context.Background(), func(tx port.Tx) error {
			if _, err := tx.LockProducts(context.Background(), id); err != nil {
				return err
			}
			close(locked)
			<-done
			return nil
		})
	}()
	<-locked
	return func() {
		close(done)
		if err := <-finished; err != nil {
			t.Errorf("holder tx: %v", err)
		}
	}
}

func TestMemoryStore_LockTimeout(t *testing.T) {
	s := NewMemoryStore(50 * time.Millisecond)
	id := insertProduct(t, s, "Flour")
	release := holdLock(t, s, id)
	defer release()

	err := s.WithTx(context.Background(), func(tx port.Tx) error {
		_, err := tx.LockProducts(context.Background(), id)
		return err
	})
	if !errors.Is(err, ErrLockTimeout) {
		t.Errorf("expected ErrLockTimeout, got %v", err)
	}
	if !errors.Is(err, domain.ErrPersistence) {
		t.Errorf("expected a persistence error, got %v", err)
	}
}

func TestMemoryStore_LockWaitHonoursContext(t *testing.T) {
	s := NewMemoryStore(0)
	id := insertProduct(t, s, "Flour")
	release := holdLock(t, s, id)
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := s.WithTx(ctx, func(tx port.Tx) error {
		_, err := tx.LockProducts(ctx, id)
		return err
	})
	if !errors.Is(err, context.DeadlineExceeded) || !errors.Is(err, domain.ErrPersistence) {
		t.Errorf("expected a persistence error wrapping the deadline, got %v", err)
	}
}

func TestMemoryStore_LockReleasedAfterCommit(t *testing.T) {
	s := NewMemoryStore(time.Second)
	id := insertProduct(t, s, "Flour")

	for range 3 {
		err := s.WithTx(context.Background(), func(tx port.Tx) error {
			_, err := tx.LockProducts(context.Background(), id)
			return err
		})
		if err != nil {
			t.Fatalf("expected lock to be free again, got %v", err)
		}
	}
}

func TestMemoryStore_UpdateRequiresLock(t *testing.T) {
	s := NewMemoryStore(time.Second)
	id := insertProduct(t, s, "Flour")
	ctx := context.Background()

	err := s.WithTx(ctx, func(tx port.Tx) error {
		p, _ := tx.GetProduct(ctx, id)
		p.Quantity = dec("10")
		return tx.UpdateProduct(ctx, p)
	})
	if !errors.Is(err, domain.ErrPersistence) {
		t.Errorf("expected a persistence error, got %v", err)
	}
	if p, _ := s.GetProduct(ctx, id); !p.Quantity.IsZero() {
		t.Errorf("expected quantity to stay 0, got %s", p.Quantity)
	}
}

func TestMemoryStore_DuplicateNameAtCommit(t *testing.T) {
	s := NewMemoryStore(time.Second)
	ctx := context.Background()

	inserted := make(chan struct{})
	proceed := make(chan struct{})
	first := make(chan error, 1)
	go func() {
		first <- s.WithTx(ctx, func(tx port.Tx) error {
			if _, err := tx.InsertProduct(ctx, &domain.Product{Name: "Cocoa", BaseUnit: "g", DisplayUnit: "g"}); err != nil {
				return err
			}
			close(inserted)
			<-proceed
			return nil
		})
	}()

	<-inserted
	insertProduct(t, s, "cocoa")
	close(proceed)

	if err := <-first; !errors.Is(err, domain.ErrDuplicateName) {
		t.Errorf("expected ErrDuplicateName at commit, got %v", err)
	}
	products, _ := s.ListProducts(ctx)
	if len(products) != 1 {
		t.Errorf("expected a single product, got %d", len(products))
	}
}

func TestMemoryStore_CanceledContextSkipsCommit(t *testing.T) {
	s := NewMemoryStore(time.Second)
	ctx, cancel := context.WithCancel(context.Background())

	err := s.WithTx(ctx, func(tx port.Tx) error {
		if _, err := tx.InsertProduct(ctx, &domain.Product{Name: "Yeast", BaseUnit: "g", DisplayUnit: "g"}); err != nil {
			return err
		}
		cancel()
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if p, _ := s.GetProductByName(context.Background(), "Yeast"); p != nil {
		t.Errorf("expected no product after canceled commit, got %+v", p)
	}
}
