package domain

import (
	"math/big"
	"sort"
)

// HolderRecord is a single holder balance in raw base units.
type HolderRecord struct {
	Address string
	Balance *big.Int
}

// SortHoldersDesc orders holders by balance descending. Ties are broken by
// address so that the order is deterministic.
func SortHoldersDesc(holders []HolderRecord) {
	sort.SliceStable(holders, func(i, j int) bool {
		c := holders[i].Balance.Cmp(holders[j].Balance)
		if c != 0 {
			return c > 0
		}
		return holders[i].Address < holders[j].Address
	})
}
