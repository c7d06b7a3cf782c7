package governance

import "sync"

// WalletStore holds the derived wallet of the connected session. Writes replace the
// whole record; readers receive copies.
type WalletStore struct {
	mutex  sync.RWMutex
	wallet *Wallet
}

// NewWalletStore constructs an empty store.
func NewWalletStore() *WalletStore {
	return &WalletStore{}
}

// Get returns a copy of the stored wallet or nil.
func (store *WalletStore) Get() *Wallet {
	store.mutex.RLock()
	defer store.mutex.RUnlock()
	if store.wallet == nil {
		return nil
	}
	copied := *store.wallet
	return &copied
}

// Replace stores a copy of wallet, or clears the store when wallet is nil.
func (store *WalletStore) Replace(wallet *Wallet) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	if wallet == nil {
		store.wallet = nil
		return
	}
	copied := *wallet
	store.wallet = &copied
}

// Clear invalidates the stored wallet.
func (store *WalletStore) Clear() {
	store.Replace(nil)
}
