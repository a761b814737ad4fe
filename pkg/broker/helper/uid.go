// Package helper holds small utilities shared across the broker packages,
// mirroring go-mcast's pkg/mcast/helper split (a UID generator plus a
// handful of pure functions) generalized to this module's needs.
package helper

import "github.com/google/uuid"

// GenerateUID returns a fresh random identifier. Store commands and
// deferred messages carry no such identifier, and no package in this
// module calls GenerateUID. go-mcast's own helper.GenerateUID
// (referenced from test/testing.go's CreateCluster) was not present in
// the retrieved file set; google/uuid fills the same role idiomatically.
func GenerateUID() string {
	return uuid.NewString()
}
