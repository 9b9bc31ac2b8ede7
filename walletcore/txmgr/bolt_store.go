package txmgr

import (
	jsoniter "github.com/json-iterator/go"
	"go.etcd.io/bbolt"

	"github.com/nodech/hsd/walletcore/er"
)

var jsonc = jsoniter.ConfigCompatibleWithStandardLibrary

var (
	creditsBucket  = []byte("credits")
	balancesBucket = []byte("balances")
)

// BoltStore persists a Store's credits and cached balance tuples to a
// bbolt database, in the style of the teacher's own wallet database
// (pktwallet/wallet.Loader opens its bolt file with
// bbolt.Options{NoFreelistSync: ...} before handing it to the wallet).
// Unlike the teacher, this talks to bbolt directly rather than through
// the walletdb driver-registration layer: the engine only ever needs
// one concrete backend, not a pluggable one.
type BoltStore struct {
	db *bbolt.DB
}

// OpenBoltStore opens (creating if necessary) a bbolt-backed credit
// database at path.
func OpenBoltStore(path string) (*BoltStore, er.R) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{NoFreelistSync: true})
	if err != nil {
		return nil, storeError(ErrInput, "opening bolt store: "+err.Error(), nil)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(creditsBucket); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(balancesBucket)
		return err
	})
	if err != nil {
		return nil, storeError(ErrInput, "initializing bolt store: "+err.Error(), nil)
	}
	return &BoltStore{db: db}, nil
}

// Close closes the underlying database file.
func (b *BoltStore) Close() er.R {
	if err := b.db.Close(); err != nil {
		return storeError(ErrInput, "closing bolt store: "+err.Error(), nil)
	}
	return nil
}

// Save writes every credit and cached balance tuple currently held by
// store into the database, replacing whatever was there before. Called
// after a batch of events has been applied, not per event — the engine
// dispatcher (component H) decides the save cadence.
func (b *BoltStore) Save(store *Store) er.R {
	err := b.db.Update(func(tx *bbolt.Tx) error {
		cb := tx.Bucket(creditsBucket)
		if err := cb.ForEach(func(k, v []byte) error { return cb.Delete(k) }); err != nil {
			return err
		}
		var saveErr error
		store.ForEachCredit(func(c *Credit) {
			if saveErr != nil {
				return
			}
			buf, err := jsonc.Marshal(c)
			if err != nil {
				saveErr = err
				return
			}
			saveErr = cb.Put([]byte(c.OutPoint.String()), buf)
		})
		if saveErr != nil {
			return saveErr
		}

		bb := tx.Bucket(balancesBucket)
		if err := bb.ForEach(func(k, v []byte) error { return bb.Delete(k) }); err != nil {
			return err
		}
		buf, err := jsonc.Marshal(store.wallet.tuple)
		if err != nil {
			return err
		}
		if err := bb.Put([]byte(""), buf); err != nil {
			return err
		}
		for name := range store.accounts {
			buf, err := jsonc.Marshal(store.Balance(AccountScope(name)))
			if err != nil {
				return err
			}
			if err := bb.Put([]byte(name), buf); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return storeError(ErrInput, "saving bolt store: "+err.Error(), nil)
	}
	return nil
}

// Load populates an empty Store from the database's persisted credits
// and balance tuples. Credits are keyed by the same OutPoint.String()
// representation Save writes, so callers must reconstruct the OutPoint
// from the raw transaction hash/index encoded in the Credit itself
// rather than relying on the bucket key.
//
// The touched-transaction set Touch/Untouch rely on (store.go) is not
// persisted alongside the tuple: it is rebuilt from the loaded credits
// via RebuildAllTouched, the same ground-truth sweep rescan.Recompute
// uses for Tx. Without this, every transaction that touched a scope
// before the save looks unseen to Touch after a Load, and the next
// event touching that scope double-counts it.
func (b *BoltStore) Load(store *Store) er.R {
	err := b.db.View(func(tx *bbolt.Tx) error {
		cb := tx.Bucket(creditsBucket)
		cerr := cb.ForEach(func(k, v []byte) error {
			var c Credit
			if err := jsonc.Unmarshal(v, &c); err != nil {
				return err
			}
			store.credits[c.OutPoint] = &c
			store.outputsByTx[c.OutPoint.Hash] = append(store.outputsByTx[c.OutPoint.Hash], c.OutPoint)
			return nil
		})
		if cerr != nil {
			return cerr
		}

		bb := tx.Bucket(balancesBucket)
		return bb.ForEach(func(k, v []byte) error {
			var t Tuple
			if err := jsonc.Unmarshal(v, &t); err != nil {
				return err
			}
			name := string(k)
			if name == "" {
				store.wallet.tuple = t
			} else {
				store.SetBalance(AccountScope(name), t)
			}
			return nil
		})
	})
	if err != nil {
		return storeError(ErrInput, "loading bolt store: "+err.Error(), nil)
	}
	store.RebuildAllTouched()
	return nil
}
