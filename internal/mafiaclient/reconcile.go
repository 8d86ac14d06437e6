package mafiaclient

import "sort"

// Intent is an operation the client submitted (or wants to submit) that the
// ledger has not yet confirmed. Intents are keyed by tx type: re-noting the
// same type replaces the previous value, which keeps resubmission idempotent.
type Intent struct {
	Type  string
	Value any
}

// PlayerProgress mirrors the ledger's per-player progress flags from the
// room query. It is the confirmation source for pending intents.
type PlayerProgress struct {
	DeckCommitted  bool
	SharedKeys     bool
	ConfirmedRole  bool
	Voted          bool
	NightCommitted bool
	NightRevealed  bool
}

// intentConfirmed maps a tx type to the ledger flag that proves it landed.
func intentConfirmed(typ string, p PlayerProgress) bool {
	switch typ {
	case "shuffle/commit_deck":
		return p.DeckCommitted
	case "reveal/share_keys":
		return p.SharedKeys
	case "reveal/confirm_role":
		return p.ConfirmedRole
	case "vote/cast":
		return p.Voted
	case "night/commit_action", "night/commit_target":
		return p.NightCommitted
	case "night/reveal_action", "night/reveal_target":
		return p.NightRevealed
	}
	return false
}

// Reconciler is the client's local intent cache. After every poll the caller
// feeds the fetched progress back in; intents the ledger confirms are
// dropped, the rest are due for resubmission. On any disagreement the ledger
// wins: local state is never pushed over fetched state.
type Reconciler struct {
	pending map[string]Intent
}

func NewReconciler() *Reconciler {
	return &Reconciler{pending: map[string]Intent{}}
}

// Note records an intent, replacing any earlier intent of the same type.
func (r *Reconciler) Note(in Intent) {
	r.pending[in.Type] = in
}

// Drop removes an intent the caller no longer wants, for example after a
// phase change made it moot.
func (r *Reconciler) Drop(typ string) {
	delete(r.pending, typ)
}

// Reconcile drops every intent the fetched progress confirms and returns the
// intents still due, in deterministic order.
func (r *Reconciler) Reconcile(p PlayerProgress) []Intent {
	for typ := range r.pending {
		if intentConfirmed(typ, p) {
			delete(r.pending, typ)
		}
	}
	due := make([]Intent, 0, len(r.pending))
	for _, in := range r.pending {
		due = append(due, in)
	}
	sort.Slice(due, func(i, j int) bool { return due[i].Type < due[j].Type })
	return due
}
