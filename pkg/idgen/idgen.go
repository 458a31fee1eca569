package idgen

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
)

// 节点ID 0-1023，多实例部署时每个实例配置不同的值

var (
	node *snowflake.Node
	mu   sync.Mutex
)

// Init 初始化默认节点
func Init(nodeID int64) error {
	n, err := snowflake.NewNode(nodeID)
	if err != nil {
		return fmt.Errorf("初始化 ID 生成器失败: %w", err)
	}
	mu.Lock()
	node = n
	mu.Unlock()
	return nil
}

func defaultNode() *snowflake.Node {
	mu.Lock()
	defer mu.Unlock()
	if node == nil {
		// 默认使用节点 1
		node, _ = snowflake.NewNode(1)
	}
	return node
}

// NextID 生成下一个ID
func NextID() snowflake.ID {
	return defaultNode().Generate()
}

// GenerateExternalID 生成充值单的网关业务单号
// 格式：TOPUP-年月日时分秒-用户ID-雪花ID(base36)
// 例如：TOPUP-20240115143052-42-3l5p9k1x2w0g
func GenerateExternalID(userID int64) string {
	return fmt.Sprintf("TOPUP-%s-%d-%s",
		time.Now().UTC().Format("20060102150405"), userID, NextID().Base36())
}

// GenerateEntryNo 生成余额流水号
func GenerateEntryNo() string {
	return "ENT" + time.Now().Format("20060102150405") + strings.ToUpper(NextID().Base36())
}
