package redis

import (
	"fmt"

	"github.com/google/uuid"
)

const ns = "freshcut:v1"

func KeyShopSummary(shopID uuid.UUID) string {
	return fmt.Sprintf("%s:shop:%s:summary", ns, shopID)
}

func KeyShopQueue(shopID uuid.UUID) string {
	return fmt.Sprintf("%s:shop:%s:queue", ns, shopID)
}

func KeyShopServices(shopID uuid.UUID) string {
	return fmt.Sprintf("%s:shop:%s:services", ns, shopID)
}

func KeyShopBarbers(shopID uuid.UUID) string {
	return fmt.Sprintf("%s:shop:%s:barbers", ns, shopID)
}

func KeyRateLimit(scope, id string) string {
	return fmt.Sprintf("%s:rl:%s:%s", ns, scope, id)
}

// ChannelFeed is the pub/sub channel carrying row deltas for one table.
func ChannelFeed(table string) string {
	return fmt.Sprintf("%s:feed:%s", ns, table)
}
