// Package queue defines message payloads exchanged over the message broker.
package queue

// OrderConfirmedEvent is published when a checkout commits.  It contains
// enough information for downstream consumers (confirmation e-mail,
// analytics) to act without querying the primary database.
type OrderConfirmedEvent struct {
	OrderID     uint64           `json:"order_id"`
	OrderNumber string           `json:"order_number"`
	PageID      uint64           `json:"page_id"`
	PageTitle   string           `json:"page_title"`
	GuestEmail  string           `json:"guest_email,omitempty"`
	AccountID   uint64           `json:"account_id,omitempty"`
	TotalCents  uint32           `json:"total_cents"`
	Items       []OrderItemEvent `json:"items"`
	ConfirmedAt string           `json:"confirmed_at"`
}

// OrderItemEvent is one line of a confirmed order.
type OrderItemEvent struct {
	ProductID   uint64 `json:"product_id"`
	ProductName string `json:"product_name"`
	Quantity    int    `json:"quantity"`
}

// StockAvailableEvent is published when the auto-increase policy raises a
// section cap and a product's availability crosses from zero back to
// positive, so back-in-stock subscribers can be alerted.
type StockAvailableEvent struct {
	PageID    uint64 `json:"page_id"`
	ProductID uint64 `json:"product_id"`
	Available int    `json:"available_quantity"`
	RaisedTo  int    `json:"raised_to"`
	At        string `json:"at"`
}
