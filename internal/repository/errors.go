// Package repository defines error types that are reused across multiple
// repositories. These sentinel values allow higher layers such as the
// reservation engine and HTTP handlers to distinguish between different
// failure scenarios without string matching on driver errors.
package repository

import "errors"

// ErrProductNotFound indicates that a product id did not resolve to a
// catalog row.
var ErrProductNotFound = errors.New("product not found")

// ErrPageNotFound indicates that an exclusive page was not located.
var ErrPageNotFound = errors.New("exclusive page not found")

// ErrOrderNotFound indicates that an order lookup matched no row.
var ErrOrderNotFound = errors.New("order not found")

// ErrEmailExists is returned when an account insert collides with an
// existing email.  The guest checkout flow also uses it to signal that
// the caller must log in instead of ordering as a guest.
var ErrEmailExists = errors.New("email already exists")
