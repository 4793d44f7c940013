package attendance

import "context"

// Adapter loads baseline records and persists composed updates.
type Adapter interface {
	ListAttendance(ctx context.Context, filter Filter) ([]Record, error)
	UpdateAttendance(ctx context.Context, payload Payload) (Record, error)
}

type Creator interface {
	CreateAttendance(ctx context.Context, entry NewEntry) (Record, error)
}

type Approver interface {
	ApproveAttendance(ctx context.Context, id string) (Record, error)
}
