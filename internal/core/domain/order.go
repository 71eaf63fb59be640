package domain

// OrderLine is a customer's request for a quantity of one sku under one order.
// Two lines with identical fields are interchangeable.
type OrderLine struct {
	OrderID string
	SKU     string
	Qty     int
}

func NewOrderLine(orderID, sku string, qty int) (OrderLine, error) {
	if qty <= 0 {
		return OrderLine{}, ErrInvalidQuantity
	}
	return OrderLine{OrderID: orderID, SKU: sku, Qty: qty}, nil
}

// Allocation is a row of the denormalized allocations read model.
type Allocation struct {
	OrderID  string `json:"orderid"`
	SKU      string `json:"sku"`
	BatchRef string `json:"batchref"`
}
