package domain

import "time"

// Manifest describes the crate a push is about to store.
type Manifest struct {
	Crate  CrateID
	Origin DeviceID
	Source DeviceID
	Size   int64
	Copies int
}

type StorageReservation struct {
	ID         ReservationID
	Crate      CrateID
	Size       int64
	Copies     int
	Origin     DeviceID
	Expiration time.Time
}

func (r StorageReservation) IsExpired(now time.Time) bool {
	return !r.Expiration.IsZero() && now.After(r.Expiration)
}
