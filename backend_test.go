package radixsort

import (
	"context"
	"errors"
	"slices"
	"testing"
)

func TestOpenEngineCPU(t *testing.T) {
	e, err := OpenEngine(BackendCPU, WithWorkers(2))
	if err != nil {
		t.Fatalf("OpenEngine(cpu) failed: %v", err)
	}
	defer e.Close()

	if _, ok := e.(*Sorter); !ok {
		t.Fatalf("cpu backend returned %T, want *Sorter", e)
	}
	res, err := e.Sort(context.Background(), []uint32{3, 1, 2}, nil)
	if err != nil {
		t.Fatalf("Sort failed: %v", err)
	}
	if !slices.Equal(res.Keys, []uint32{1, 2, 3}) {
		t.Errorf("Keys = %v, want [1 2 3]", res.Keys)
	}
}

func TestOpenEngineUnknown(t *testing.T) {
	_, err := OpenEngine("tpu")
	if !errors.Is(err, ErrUnknownBackend) {
		t.Errorf("err = %v, want ErrUnknownBackend", err)
	}
}

func TestOpenEngineInvalidOptions(t *testing.T) {
	_, err := OpenEngine(BackendCPU, WithKeyBits(12))
	if !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("err = %v, want ErrInvalidConfig", err)
	}
}

func TestRegisterBackend(t *testing.T) {
	opened := 0
	err := RegisterBackend("test-backend", func(opts ...Option) (Engine, error) {
		opened++
		s, err := NewSorter(opts...)
		if err != nil {
			return nil, err
		}
		return s, nil
	})
	if err != nil {
		t.Fatalf("RegisterBackend failed: %v", err)
	}
	if !slices.Contains(Backends(), "test-backend") {
		t.Errorf("Backends() = %v, missing test-backend", Backends())
	}

	e, err := OpenEngine("test-backend")
	if err != nil {
		t.Fatalf("OpenEngine failed: %v", err)
	}
	e.Close()
	if opened != 1 {
		t.Errorf("factory called %d times, want 1", opened)
	}

	if err := RegisterBackend("", nil); err == nil {
		t.Error("expected error for empty registration")
	}
}
