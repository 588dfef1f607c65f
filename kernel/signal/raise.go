package signal

import "sort"

// Raise implements spec.md §4.C's raise path: picks the first candidate
// thread (by ascending tid) whose mask doesn't block sig, and pushes sig
// onto its pending set. candidates need not be pre-sorted. Returns the
// thread sig was delivered to, or nil if the raise was dropped (SIG_IGN,
// or a default-ignore signal at its default disposition).
//
// Callers hold whatever process-level lock protects the thread-id → tid
// ordering (spec.md §5 lock ordering: per-process inner lock is acquired
// before per-thread state) before calling this.
func Raise(proc *ProcessSignals, candidates []*ThreadSignals, sig Signal) *ThreadSignals {
	if len(candidates) == 0 {
		return nil
	}

	d := proc.Get(sig)
	if d.Action == ActionIgnore {
		return nil
	}

	if d.Action == ActionDefault && sig.DefaultIgnore() {
		return nil
	}

	ordered := append([]*ThreadSignals(nil), candidates...)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].TID < ordered[j].TID })

	for _, th := range ordered {
		if th.accepts(sig) {
			th.push(sig)
			return th
		}
	}

	// Every thread masks it: still becomes pending on the first thread by
	// tid order, matching Linux's behaviour of queuing a masked signal
	// rather than dropping it.
	ordered[0].push(sig)

	return ordered[0]
}
