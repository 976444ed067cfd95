package store

// RollbackPolicy decides, per operation type, whether a remote rejection
// undoes the optimistic local mutation. Inserts of brand-new entities always
// roll back regardless of policy: a temp-id entry with no confirmed row
// behind it is an orphan, not an eventually-consistent divergence.
type RollbackPolicy struct {
	Toggle  bool
	Edit    bool
	Delete  bool
	Move    bool
	Clear   bool
	Restore bool
	Reorder bool
}

// DefaultRollbackPolicy rolls back every operation on remote failure, so
// local state only diverges from the row store while a call is in flight.
func DefaultRollbackPolicy() RollbackPolicy {
	return RollbackPolicy{
		Toggle:  true,
		Edit:    true,
		Delete:  true,
		Move:    true,
		Clear:   true,
		Restore: true,
		Reorder: true,
	}
}

// FireAndForgetPolicy keeps optimistic state on every failure except inserts,
// trusting eventual reconciliation on the next session load.
func FireAndForgetPolicy() RollbackPolicy {
	return RollbackPolicy{}
}
