package storage

import (
	"errors"
	"fmt"
	"time"

	st "steward/internal/storagetypes"
)

const transactionHistoryLimit = 200

// ErrInsufficientFunds is returned when a debit would take a wallet
// below zero.
var ErrInsufficientFunds = errors.New("storage: insufficient funds")

func (r *Record) wallet(userID string) *st.Wallet {
	if r.Wallets == nil {
		r.Wallets = make(map[string]*st.Wallet)
	}
	w, ok := r.Wallets[userID]
	if !ok {
		w = &st.Wallet{}
		r.Wallets[userID] = w
	}
	return w
}

func (r *Record) appendTransaction(tx st.Transaction) {
	r.Transactions = append(r.Transactions, tx)
	if n := len(r.Transactions); n > transactionHistoryLimit {
		r.Transactions = r.Transactions[n-transactionHistoryLimit:]
	}
}

// Balance returns the user's wallet balance, zero for unknown users.
func (s *Storage) Balance(guildID, userID string) (int64, error) {
	rec, err := s.guildRecord(guildID)
	if err != nil {
		return 0, err
	}
	if w, ok := rec.Wallets[userID]; ok {
		return w.Balance, nil
	}
	return 0, nil
}

// AddBalance credits (or debits, when amount is negative) a wallet in
// one atomic step. A debit that would go below zero fails with
// ErrInsufficientFunds and leaves the wallet untouched.
func (s *Storage) AddBalance(guildID, userID string, amount int64, reason string) (int64, error) {
	var balance int64
	err := s.updateGuild(guildID, func(rec *Record) error {
		w := rec.wallet(userID)
		if w.Balance+amount < 0 {
			return ErrInsufficientFunds
		}
		w.Balance += amount
		balance = w.Balance
		rec.appendTransaction(st.Transaction{To: userID, Amount: amount, Reason: reason, At: time.Now()})
		return nil
	})
	return balance, err
}

// Transfer moves amount between two wallets atomically.
func (s *Storage) Transfer(guildID, fromID, toID string, amount int64, reason string) error {
	if amount <= 0 {
		return fmt.Errorf("storage: transfer amount must be positive")
	}
	return s.updateGuild(guildID, func(rec *Record) error {
		from := rec.wallet(fromID)
		if from.Balance < amount {
			return ErrInsufficientFunds
		}
		from.Balance -= amount
		rec.wallet(toID).Balance += amount
		rec.appendTransaction(st.Transaction{From: fromID, To: toID, Amount: amount, Reason: reason, At: time.Now()})
		return nil
	})
}

// ClaimDaily credits the daily reward if the claim window has elapsed.
// Returns the new balance, or the remaining wait on failure.
func (s *Storage) ClaimDaily(guildID, userID string, amount int64, window time.Duration) (int64, time.Duration, error) {
	var (
		balance   int64
		remaining time.Duration
	)
	err := s.updateGuild(guildID, func(rec *Record) error {
		w := rec.wallet(userID)
		if since := time.Since(w.LastDaily); since < window {
			remaining = window - since
			return nil
		}
		w.LastDaily = time.Now()
		w.Balance += amount
		balance = w.Balance
		rec.appendTransaction(st.Transaction{To: userID, Amount: amount, Reason: "daily", At: time.Now()})
		return nil
	})
	return balance, remaining, err
}

// SettleWager applies a game result in one atomic step: the wager must
// be covered, then the wallet moves by payout minus wager. Callers
// decide the outcome before any money moves, so a failed reply can
// never leave a half-applied bet.
func (s *Storage) SettleWager(guildID, userID string, wager, payout int64, reason string) (int64, error) {
	if wager <= 0 {
		return 0, fmt.Errorf("storage: wager must be positive")
	}
	var balance int64
	err := s.updateGuild(guildID, func(rec *Record) error {
		w := rec.wallet(userID)
		if w.Balance < wager {
			return ErrInsufficientFunds
		}
		w.Balance += payout - wager
		balance = w.Balance
		rec.appendTransaction(st.Transaction{To: userID, Amount: payout - wager, Reason: reason, At: time.Now()})
		return nil
	})
	return balance, err
}

// ShopItems returns all items in the guild's shop.
func (s *Storage) ShopItems(guildID string) ([]st.ShopItem, error) {
	rec, err := s.guildRecord(guildID)
	if err != nil {
		return nil, err
	}
	items := make([]st.ShopItem, 0, len(rec.ShopItems))
	for _, item := range rec.ShopItems {
		items = append(items, item)
	}
	return items, nil
}

// PutShopItem creates or replaces a shop item.
func (s *Storage) PutShopItem(guildID string, item st.ShopItem) error {
	return s.updateGuild(guildID, func(rec *Record) error {
		if rec.ShopItems == nil {
			rec.ShopItems = make(map[string]st.ShopItem)
		}
		rec.ShopItems[item.ID] = item
		return nil
	})
}

// BuyItem debits the item price and adds the item to the user's
// inventory in one atomic step.
func (s *Storage) BuyItem(guildID, userID, itemID string) (st.ShopItem, error) {
	var bought st.ShopItem
	err := s.updateGuild(guildID, func(rec *Record) error {
		item, ok := rec.ShopItems[itemID]
		if !ok {
			return fmt.Errorf("item %q: %w", itemID, ErrNotFound)
		}
		w := rec.wallet(userID)
		if w.Balance < item.Price {
			return ErrInsufficientFunds
		}
		w.Balance -= item.Price
		if rec.Inventories == nil {
			rec.Inventories = make(map[string][]string)
		}
		rec.Inventories[userID] = append(rec.Inventories[userID], item.ID)
		rec.appendTransaction(st.Transaction{From: userID, Amount: item.Price, Reason: "buy:" + item.ID, At: time.Now()})
		bought = item
		return nil
	})
	return bought, err
}

// Inventory returns the user's owned item IDs.
func (s *Storage) Inventory(guildID, userID string) ([]string, error) {
	rec, err := s.guildRecord(guildID)
	if err != nil {
		return nil, err
	}
	return rec.Inventories[userID], nil
}
