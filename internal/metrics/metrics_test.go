package metrics

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/rl1809/stock-ledger/internal/core/domain"
)

func TestRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewRecorder(reg)

	started := time.Now()
	r.ObserveOperation("sale", started, nil)
	r.ObserveOperation("sale", started, nil)
	r.ObserveOperation("sale", started, &domain.InsufficientStockError{ProductID: 1})
	r.ObserveOperation("purchase", started, fmt.Errorf("wrap: %w", domain.Invalid("quantity", "must be positive")))
	r.ObserveOperation("purchase", started, domain.Persistence("commit", errors.New("conn reset")))
	r.StockShortfall("sale")

	tests := []struct {
		op, result string
		want       float64
	}{
		{"sale", "ok", 2},
		{"sale", "insufficient_stock", 1},
		{"purchase", "validation", 1},
		{"purchase", "persistence", 1},
		{"purchase", "ok", 0},
	}
	for _, tt := range tests {
		got := testutil.ToFloat64(r.operations.WithLabelValues(tt.op, tt.result))
		if got != tt.want {
			t.Errorf("operations{%s,%s}: expected %v, got %v", tt.op, tt.result, tt.want, got)
		}
	}

	if got := testutil.ToFloat64(r.shortfalls.WithLabelValues("sale")); got != 1 {
		t.Errorf("expected 1 shortfall, got %v", got)
	}
	if n := testutil.CollectAndCount(r.duration); n != 2 {
		t.Errorf("expected 2 duration series, got %d", n)
	}
}

func TestRecorder_RegistersOnce(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewRecorder(reg)

	defer func() {
		if recover() == nil {
			t.Error("expected duplicate registration to panic")
		}
	}()
	NewRecorder(reg)
}
