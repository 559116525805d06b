package ledger

import "github.com/shopspring/decimal"

// SeedBalance is a test helper that overwrites a wallet balance when using the in-memory store.
// The wallet version is bumped like any other committed write.
func SeedBalance(s Store, walletID string, amount decimal.Decimal) {
	if mem, ok := s.(*inMemoryStore); ok {
		mem.mu.Lock()
		defer mem.mu.Unlock()
		if w, exists := mem.wallets[walletID]; exists {
			w.Balance = amount
			w.Version++
			mem.wallets[walletID] = w
		}
	}
}
