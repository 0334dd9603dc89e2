// Package utils 提供 ID 生成、重试与分页等通用工具
package utils

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
)

// SnowflakeID 雪花 ID 生成器
type SnowflakeID struct {
	node *snowflake.Node
}

// NewSnowflakeID 创建雪花 ID 生成器
func NewSnowflakeID(nodeID int64) *SnowflakeID {
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		panic(fmt.Sprintf("failed to create snowflake node: %v", err))
	}
	return &SnowflakeID{node: node}
}

// Generate 生成一个新 ID
func (s *SnowflakeID) Generate() int64 {
	return s.node.Generate().Int64()
}

// GenerateString 生成字符串形式的新 ID
func (s *SnowflakeID) GenerateString() string {
	return s.node.Generate().String()
}

// Retry 固定间隔重试
func Retry(maxAttempts int, delay time.Duration, fn func() error) error {
	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if attempt < maxAttempts {
			time.Sleep(delay)
		}
	}
	return fmt.Errorf("operation failed after %d attempts: %w", maxAttempts, err)
}

// RetryWithBackoff 指数退避重试
func RetryWithBackoff(maxAttempts int, initialDelay, maxDelay time.Duration, fn func() error) error {
	var err error
	delay := initialDelay
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if attempt < maxAttempts {
			time.Sleep(delay)
			delay *= 2
			if delay > maxDelay {
				delay = maxDelay
			}
		}
	}
	return fmt.Errorf("operation failed after %d attempts: %w", maxAttempts, err)
}

// ToJSON 序列化为 JSON 字符串，失败时返回空串
func ToJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(data)
}

// FromJSON 从 JSON 字符串反序列化
func FromJSON(data string, v any) error {
	return json.Unmarshal([]byte(data), v)
}

// Pagination 分页信息
type Pagination struct {
	Page     int   `json:"page"`
	PageSize int   `json:"page_size"`
	Total    int64 `json:"total"`
}

// NewPagination 创建分页信息，page/pageSize 非法时回退默认值
func NewPagination(page, pageSize int, total int64) *Pagination {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 200 {
		pageSize = 20
	}
	return &Pagination{Page: page, PageSize: pageSize, Total: total}
}

// Offset 数据库偏移量
func (p *Pagination) Offset() int {
	return (p.Page - 1) * p.PageSize
}

// Limit 数据库单页条数
func (p *Pagination) Limit() int {
	return p.PageSize
}
