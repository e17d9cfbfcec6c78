package order

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func validAddress() ShippingAddress {
	return ShippingAddress{
		Street:  "1 Market St",
		City:    "Springfield",
		Zip:     "12345",
		Country: "US",
	}
}

func twoItems() []Item {
	return []Item{
		{ProductID: "p1", Name: "Apples", Price: decimal.RequireFromString("2.50"), Quantity: 3},
		{ProductID: "p2", Name: "Bread", Price: decimal.RequireFromString("1.99"), Quantity: 1},
	}
}

func TestNewComputesTotal(t *testing.T) {
	ord, err := New("o1", "u1", twoItems(), validAddress(), "card")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	want := decimal.RequireFromString("9.49")
	if !ord.TotalAmount.Equal(want) {
		t.Fatalf("total = %s, want %s", ord.TotalAmount, want)
	}
	if ord.Status != StatusPending {
		t.Fatalf("status = %s, want PENDING", ord.Status)
	}
}

func TestNewRejectsBadInput(t *testing.T) {
	if _, err := New("o1", "u1", nil, validAddress(), "card"); !errors.Is(err, ErrEmptyItems) {
		t.Errorf("empty items: got %v", err)
	}

	items := twoItems()
	items[0].Quantity = 0
	if _, err := New("o1", "u1", items, validAddress(), "card"); !errors.Is(err, ErrInvalidQuantity) {
		t.Errorf("zero quantity: got %v", err)
	}

	addr := validAddress()
	addr.Zip = ""
	if _, err := New("o1", "u1", twoItems(), addr, "card"); !errors.Is(err, ErrInvalidAddress) {
		t.Errorf("missing zip: got %v", err)
	}
}

func TestTransitions(t *testing.T) {
	cases := []struct {
		from, to Status
		ok       bool
	}{
		{StatusPending, StatusConfirmed, true},
		{StatusPending, StatusPaymentFailed, true},
		{StatusPending, StatusShipped, false},
		{StatusConfirmed, StatusShipped, true},
		{StatusConfirmed, StatusPending, false},
		{StatusShipped, StatusDelivered, true},
		{StatusDelivered, StatusCancelled, false},
		{StatusPaymentFailed, StatusConfirmed, false},
	}
	for _, tc := range cases {
		ord, err := New("o1", "u1", twoItems(), validAddress(), "card")
		if err != nil {
			t.Fatal(err)
		}
		ord.Status = tc.from
		err = ord.TransitionTo(tc.to)
		if tc.ok && err != nil {
			t.Errorf("%s -> %s: unexpected error %v", tc.from, tc.to, err)
		}
		if !tc.ok && !errors.Is(err, ErrInvalidTransition) {
			t.Errorf("%s -> %s: got %v, want ErrInvalidTransition", tc.from, tc.to, err)
		}
	}
}

func TestTransitionToSameStatusIsNoop(t *testing.T) {
	ord, err := New("o1", "u1", twoItems(), validAddress(), "card")
	if err != nil {
		t.Fatal(err)
	}
	ord.Status = StatusDelivered
	if err := ord.TransitionTo(StatusDelivered); err != nil {
		t.Fatalf("same-status transition: %v", err)
	}
}

func TestCartRecalculatesTotal(t *testing.T) {
	cart := NewCart("u1")
	item := Item{ProductID: "p1", Name: "Apples", Price: decimal.RequireFromString("2.00"), Quantity: 2}
	if err := cart.AddItem(item); err != nil {
		t.Fatal(err)
	}
	// Adding the same product merges quantities.
	if err := cart.AddItem(item); err != nil {
		t.Fatal(err)
	}
	if len(cart.Items) != 1 || cart.Items[0].Quantity != 4 {
		t.Fatalf("merge failed: %+v", cart.Items)
	}
	if want := decimal.RequireFromString("8.00"); !cart.TotalPrice.Equal(want) {
		t.Fatalf("total = %s, want %s", cart.TotalPrice, want)
	}

	if err := cart.UpdateItem("p1", 1); err != nil {
		t.Fatal(err)
	}
	if want := decimal.RequireFromString("2.00"); !cart.TotalPrice.Equal(want) {
		t.Fatalf("total after update = %s, want %s", cart.TotalPrice, want)
	}

	if err := cart.RemoveItem("p2"); !errors.Is(err, ErrItemNotInCart) {
		t.Fatalf("remove absent item: got %v", err)
	}
	if err := cart.RemoveItem("p1"); err != nil {
		t.Fatal(err)
	}
	if !cart.IsEmpty() {
		t.Fatal("cart should be empty")
	}
}
