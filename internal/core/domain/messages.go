package domain

import "time"

// Message is anything the message bus can route.
type Message interface {
	MessageName() string
}

// Command is an imperative request handled by exactly one handler.
type Command interface {
	Message
	isCommand()
}

// Event is a fact that has already happened, fanned out to zero or more
// handlers.
type Event interface {
	Message
	isEvent()
}

type CreateBatch struct {
	Ref string
	SKU string
	Qty int
	ETA *time.Time
}

type Allocate struct {
	OrderID string
	SKU     string
	Qty     int
}

type ChangeBatchQuantity struct {
	Ref string
	Qty int
}

func (CreateBatch) MessageName() string         { return "CreateBatch" }
func (Allocate) MessageName() string            { return "Allocate" }
func (ChangeBatchQuantity) MessageName() string { return "ChangeBatchQuantity" }

func (CreateBatch) isCommand()         {}
func (Allocate) isCommand()            {}
func (ChangeBatchQuantity) isCommand() {}

type Allocated struct {
	OrderID  string `json:"orderid"`
	SKU      string `json:"sku"`
	Qty      int    `json:"qty"`
	BatchRef string `json:"batchref"`
}

type Deallocated struct {
	OrderID string `json:"orderid"`
	SKU     string `json:"sku"`
	Qty     int    `json:"qty"`
}

type OutOfStock struct {
	SKU string `json:"sku"`
}

func (Allocated) MessageName() string   { return "Allocated" }
func (Deallocated) MessageName() string { return "Deallocated" }
func (OutOfStock) MessageName() string  { return "OutOfStock" }

func (Allocated) isEvent()   {}
func (Deallocated) isEvent() {}
func (OutOfStock) isEvent()  {}
