package core

import "context"

// ActivityRecorder appends rows to the activity log. It is called after the
// primary transaction has committed and never joins it.
type ActivityRecorder interface {
	Record(ctx context.Context, activity Activity) error
}

// StoreActivityRecorder writes activities through the store's append path.
type StoreActivityRecorder struct {
	store PersistentStore
}

// NewStoreActivityRecorder constructs a recorder over store.
func NewStoreActivityRecorder(store PersistentStore) *StoreActivityRecorder {
	return &StoreActivityRecorder{store: store}
}

// Record implements ActivityRecorder.
func (r *StoreActivityRecorder) Record(ctx context.Context, activity Activity) error {
	_, err := r.store.AppendActivity(ctx, activity)
	return err
}

// recordActivity is best effort: the operation already committed, so a
// failure is logged and dropped.
func (s *Service) recordActivity(ctx context.Context, op string, activity Activity) {
	if err := s.activity.Record(ctx, activity); err != nil {
		s.logger.Warn("activity append failed",
			"operation", op,
			"entity", string(activity.EntityType),
			"id", activity.EntityID,
			"error", err,
		)
	}
}
