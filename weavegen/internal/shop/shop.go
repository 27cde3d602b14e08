// Package shop holds override types for the generator. zz_hotpatch.go is
// its generated registration; regenerate it after changing a directive.
//
//go:generate go run github.com/chazu/hotpatch/cmd/hotpatch-gen
package shop

import (
	"errors"
	"time"
)

type Cart struct {
	Items   []int
	Audited int
}

type CartOverride struct{}

func NewCartOverride() *CartOverride {
	return &CartOverride{}
}

func (*CartOverride) DispatchTarget() {}

//hotpatch:replace shop.Cart total
func (o *CartOverride) Total(c *Cart, discount int) (int, error) {
	if c == nil {
		return 0, errors.New("nil cart")
	}
	sum := 0
	for _, v := range c.Items {
		sum += v
	}
	return sum - discount, nil
}

//hotpatch:before shop.Cart checkout
//hotpatch:after shop.Cart checkout
func (o *CartOverride) Audit(c *Cart) {
	c.Audited++
}

//hotpatch:replace shop.Cart tags
func (o *CartOverride) Tags(c *Cart, tags ...string) []string {
	return tags
}

type PriceOverride struct{}

func (PriceOverride) DispatchTarget() {}

//hotpatch:replace shop.Price expires
func (PriceOverride) Expires(target any, d time.Duration) error {
	if d < 0 {
		return errors.New("negative duration")
	}
	return nil
}

// Plain comment, no directive.
func (PriceOverride) helper() {}
