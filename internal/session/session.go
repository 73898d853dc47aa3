// Package session stores the "current cart id" of anonymous shoppers, keyed
// by their session token.
package session

import "context"

type Store interface {
	// CartID returns the cart referenced by token; ok is false when there is
	// no live reference.
	CartID(ctx context.Context, token string) (cartID uint, ok bool, err error)
	SetCartID(ctx context.Context, token string, cartID uint) error
	Forget(ctx context.Context, token string) error
}
