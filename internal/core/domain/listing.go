package domain

import (
	"math"
	"time"
)

// MaxPrice is the highest price every store can persist (signed 64-bit columns).
const MaxPrice = math.MaxInt64

// Listing holds the sale terms of an asset. The row outlives the listing episode: a sold or
// delisted asset keeps its last terms with Active set to false.
type Listing struct {
	AssetId uint64
	Seller  string
	Price   uint64
	Active  bool
	// Position is the asset's slot in the listing index, assigned the first time it's listed.
	Position uint64
	// Episode counts how many times the asset went from unlisted to listed.
	Episode   uint32
	ListedAt  int64
	UpdatedAt int64
}

// Relist opens a new episode, or refreshes the terms of the current one if still active and
// listed by the same seller.
func (l *Listing) Relist(seller string, price uint64) {
	now := time.Now().Unix()
	if !l.Active || l.Seller != seller {
		l.Episode++
		l.ListedAt = now
	}
	l.Seller = seller
	l.Price = price
	l.Active = true
	l.UpdatedAt = now
}

func (l *Listing) UpdatePrice(price uint64) {
	l.Price = price
	l.UpdatedAt = time.Now().Unix()
}

func (l *Listing) Deactivate() {
	l.Active = false
	l.UpdatedAt = time.Now().Unix()
}

func IsValidPrice(price uint64) bool {
	return price > 0 && price <= MaxPrice
}
