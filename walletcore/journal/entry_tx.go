package journal

import (
	"sort"

	"github.com/nodech/hsd/walletcore/chainio"
)

// AttachTx records the raw transaction an entry describes. Discovery
// (component F) needs the original outputs/inputs, not just the
// credits materialized so far, so it can retroactively match addresses
// that were not yet derivable when the transaction first arrived.
func (e *Entry) AttachTx(tx *chainio.Tx) {
	if e.Tx == nil {
		e.Tx = tx
	}
}

// AllEntries returns every journal entry, in undefined order.
func (j *Journal) AllEntries() []*Entry {
	out := make([]*Entry, 0, len(j.entries))
	for _, e := range j.entries {
		out = append(out, e)
	}
	return out
}

// EntriesAbove returns every Confirmed entry with Height > height,
// ordered from highest height to lowest — the order revertTo must
// Unconfirm them in (spec.md §4.E "emits Unconfirm for every tx with
// height > h in reverse order").
func (j *Journal) EntriesAbove(height int32) []*Entry {
	var out []*Entry
	for _, e := range j.entries {
		if e.State == Confirmed && e.Height > height {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].Height > out[k].Height })
	return out
}
