package store

import "time"

func dailyTicker() *time.Ticker {
	return time.NewTicker(24 * time.Hour)
}
