package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"router/pkg/config"
)

// GeometryCacheKey builds the cache key for a reach's channel geometry:
// sha256 of the route directory, reach id, and column mapping, so that two
// runs over different route directories or different column configs never
// collide even if a reach id happens to repeat.
func GeometryCacheKey(routeDir string, reachID uint32, columns config.ColumnConfig) string {
	canonical := fmt.Sprintf(
		"route:%s;reach:%d;key:%s;downstream:%s;length:%s;manning:%s;manningcc:%s;slope:%s;bw:%s;tw:%s;twcc:%s;cs:%s",
		routeDir, reachID,
		columns.Key, columns.Downstream, columns.Length, columns.Manning,
		columns.ManningCC, columns.Slope, columns.BottomWidth, columns.TopWidth,
		columns.TopWidthCC, columns.SideSlope,
	)
	hash := sha256.Sum256([]byte(canonical))
	return "geom:" + hex.EncodeToString(hash[:16])
}

// QuickHash computes the full SHA-256 hex digest of arbitrary data.
func QuickHash(data []byte) string {
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}

// ShortHash computes a truncated (16 hex char) SHA-256 digest, suitable for
// compact cache keys where full collision resistance is not required.
func ShortHash(data []byte) string {
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:8])
}
