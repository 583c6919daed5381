// Package cache provides a generic, thread-safe LRU cache with hit and
// miss statistics.
//
// The dedup package puts one in front of the marker store so that repeated
// deliveries of an already-processed vehicle snapshot are answered without
// a round trip:
//
//	lru, err := cache.NewLRU[struct{}](1024)
//	if err != nil {
//		return err
//	}
//	lru.Set("WBA00000000000001/2023-06-01T10:00:00Z", struct{}{})
//	_, ok := lru.Get("WBA00000000000001/2023-06-01T10:00:00Z")
package cache
