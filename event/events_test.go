package event

import (
	"errors"
	"testing"
)

func TestNewSale(t *testing.T) {
	e, err := NewSale(2, "001")
	if err != nil {
		t.Fatalf("NewSale: %v", err)
	}
	if e.Kind() != KindSale {
		t.Errorf("Kind() = %q, want %q", e.Kind(), KindSale)
	}
	if e.MachineID() != "001" {
		t.Errorf("MachineID() = %q, want %q", e.MachineID(), "001")
	}
	if e.SoldQuantity() != 2 {
		t.Errorf("SoldQuantity() = %d, want 2", e.SoldQuantity())
	}
}

func TestNewSale_RejectsNonPositive(t *testing.T) {
	for _, qty := range []int{0, -1, -10} {
		if _, err := NewSale(qty, "001"); !errors.Is(err, ErrInvalidQuantity) {
			t.Errorf("NewSale(%d) error = %v, want ErrInvalidQuantity", qty, err)
		}
	}
}

func TestNewRefill_RejectsEmptyMachine(t *testing.T) {
	if _, err := NewRefill(3, ""); !errors.Is(err, ErrEmptyMachineID) {
		t.Errorf("NewRefill error = %v, want ErrEmptyMachineID", err)
	}
}

func TestMustRefill_Panics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("MustRefill(0) did not panic")
		}
	}()
	MustRefill(0, "001")
}

func TestEvents_ValueEquality(t *testing.T) {
	if NewLowStockWarning("001") != NewLowStockWarning("001") {
		t.Error("equal warnings should compare equal")
	}
	var a, b Event = MustSale(1, "002"), MustSale(1, "002")
	if a != b {
		t.Error("equal sales should compare equal as Event")
	}
	if Event(NewSoldOutWarning("001")) == Event(NewStockLevelOk("001")) {
		t.Error("events of different kinds must differ")
	}
}

func TestQuantity(t *testing.T) {
	tests := []struct {
		event Event
		want  int
	}{
		{MustSale(2, "001"), 2},
		{MustRefill(5, "001"), 5},
		{NewLowStockWarning("001"), 0},
		{NewSoldOutWarning("001"), 0},
		{NewStockLevelOk("001"), 0},
	}
	for _, tt := range tests {
		if got := Quantity(tt.event); got != tt.want {
			t.Errorf("Quantity(%s) = %d, want %d", tt.event.Kind(), got, tt.want)
		}
	}
}

func TestKind_ValidAndDerived(t *testing.T) {
	if len(Kinds()) != 5 {
		t.Fatalf("Kinds() = %d entries, want 5", len(Kinds()))
	}
	for _, k := range Kinds() {
		if !k.Valid() {
			t.Errorf("%q should be valid", k)
		}
	}
	if Kind("restock").Valid() {
		t.Error("unknown kind reported valid")
	}
	if KindSale.Derived() || KindRefill.Derived() {
		t.Error("sale/refill must not be derived")
	}
	if !KindLowStockWarning.Derived() || !KindSoldOutWarning.Derived() || !KindStockLevelOk.Derived() {
		t.Error("warning kinds must be derived")
	}
}

func TestKinds_ReturnsCopy(t *testing.T) {
	ks := Kinds()
	ks[0] = "mutated"
	if Kinds()[0] != KindSale {
		t.Error("Kinds() exposed internal slice")
	}
}

func TestVisit_DispatchesByType(t *testing.T) {
	var got []Kind
	v := Funcs{
		Sale:            func(Sale) { got = append(got, KindSale) },
		Refill:          func(Refill) { got = append(got, KindRefill) },
		LowStockWarning: func(LowStockWarning) { got = append(got, KindLowStockWarning) },
		SoldOutWarning:  func(SoldOutWarning) { got = append(got, KindSoldOutWarning) },
		StockLevelOk:    func(StockLevelOk) { got = append(got, KindStockLevelOk) },
	}

	all := []Event{
		MustSale(1, "001"),
		MustRefill(3, "001"),
		NewLowStockWarning("001"),
		NewSoldOutWarning("001"),
		NewStockLevelOk("001"),
	}
	for _, e := range all {
		Visit(e, v)
	}

	if len(got) != len(all) {
		t.Fatalf("visited %d events, want %d", len(got), len(all))
	}
	for i, e := range all {
		if got[i] != e.Kind() {
			t.Errorf("visit %d = %q, want %q", i, got[i], e.Kind())
		}
	}
}

func TestFuncs_NilCallbacksSkipped(t *testing.T) {
	// Should not panic.
	Visit(MustSale(1, "001"), Funcs{})
	Visit(NewStockLevelOk("001"), Funcs{})
}
