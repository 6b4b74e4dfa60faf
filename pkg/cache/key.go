package cache

import (
	"fmt"
	"strings"
)

// Key identifies one cached version list. The key space is small:
// subscription x region x preview flag.
type Key struct {
	SubscriptionID string
	Location       string
	ShowPreview    bool
}

// String generates a deterministic cache key string. The location is
// lowercased because Azure region names are case-insensitive.
//
// Format: aks:<subscription>:<location>:preview=<bool>
//
// Example:
//
//	aks:00000000-0000-0000-0000-000000000000:eastus:preview=false
func (k Key) String() string {
	return fmt.Sprintf("aks:%s:%s:preview=%t", k.SubscriptionID, strings.ToLower(k.Location), k.ShowPreview)
}
