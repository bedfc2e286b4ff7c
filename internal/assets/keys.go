package assets

import (
	"fmt"
	"slices"
	"strings"
)

const keySeparator = "/"

// AssetKey identifies an asset by a path such as "warehouse/orders". It is a
// comparable value and may be used as a map key.
type AssetKey string

// NewAssetKey joins path segments into a key.
func NewAssetKey(path ...string) AssetKey {
	return AssetKey(strings.Join(path, keySeparator))
}

// ParseAssetKey validates a "/"-separated key.
func ParseAssetKey(raw string) (AssetKey, error) {
	key := AssetKey(strings.TrimSpace(raw))
	if err := key.Validate(); err != nil {
		return "", err
	}
	return key, nil
}

func (k AssetKey) Path() []string {
	if k == "" {
		return nil
	}
	return strings.Split(string(k), keySeparator)
}

func (k AssetKey) Validate() error {
	if k == "" {
		return fmt.Errorf("asset key is required")
	}
	if slices.ContainsFunc(k.Path(), func(segment string) bool { return strings.TrimSpace(segment) == "" }) {
		return fmt.Errorf("asset key %q has an empty path segment", string(k))
	}
	return nil
}

func (k AssetKey) String() string { return string(k) }

func sortKeys(keys []AssetKey) []AssetKey {
	slices.Sort(keys)
	return slices.Compact(keys)
}
