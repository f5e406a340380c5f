package store

import "log"

// StartRetentionWorker launches a background goroutine that deletes
// activity records older than retentionDays once at startup and then once
// per day.
func (s *Store) StartRetentionWorker(retentionDays int, done <-chan struct{}) {
	go func() {
		if affected, err := s.DeleteOlderThan(retentionDays); err != nil {
			log.Printf("retention cleanup error (startup): %v", err)
		} else if affected > 0 {
			log.Printf("retention cleanup (startup): removed %d records", affected)
		}

		ticker := dailyTicker()
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if affected, err := s.DeleteOlderThan(retentionDays); err != nil {
					log.Printf("retention cleanup error: %v", err)
				} else if affected > 0 {
					log.Printf("retention cleanup: removed %d records", affected)
				}
			}
		}
	}()
}
