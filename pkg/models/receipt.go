package models

import "time"

// TokenKind 代币类型
type TokenKind string

const (
	TokenKindFungible     TokenKind = "fungible"
	TokenKindSemiFungible TokenKind = "semi-fungible"
	TokenKindNonFungible  TokenKind = "non-fungible"
	TokenKindMeta         TokenKind = "meta"
	TokenKindUnknown      TokenKind = "unknown"
)

// ParsedReceipt 解释后的交易回执
type ParsedReceipt struct {
	Hash                 string      `json:"hash"`
	Status               string      `json:"status"`
	Sender               string      `json:"sender"`
	Receiver             string      `json:"receiver"`
	GasUsed              uint64      `json:"gasUsed"`
	Fee                  *BigInt     `json:"fee"`
	Logs                 *LogRecord  `json:"logs,omitempty"`
	SmartContractResults []*ScResult `json:"smartContractResults"`

	NewIssuedTokenIdentifier *string   `json:"newIssuedTokenIdentifier,omitempty"`
	IssuedTokenKind          TokenKind `json:"issuedTokenKind,omitempty"`
	NewDeployedAddress       *string   `json:"newDeployedAddress,omitempty"`

	Out              []Bytes  `json:"out"`
	OutDecodeWarning bool     `json:"outDecodeWarning,omitempty"`
	Warnings         []string `json:"warnings,omitempty"`
}

// HasIssuance 是否发行了新代币
func (r *ParsedReceipt) HasIssuance() bool {
	return r.NewIssuedTokenIdentifier != nil
}

// TokenIdentifier 新代币标识，没有时返回空串
func (r *ParsedReceipt) TokenIdentifier() string {
	if r.NewIssuedTokenIdentifier == nil {
		return ""
	}
	return *r.NewIssuedTokenIdentifier
}

// IssuedToken 发行记录
type IssuedToken struct {
	Identifier   string    `json:"identifier"`
	Kind         TokenKind `json:"kind"`
	TxHash       string    `json:"txHash"`
	Issuer       string    `json:"issuer"`
	DiscoveredAt time.Time `json:"discoveredAt"`
}

// NewIssuedToken 从回执生成发行记录，未发行时返回nil
func NewIssuedToken(r *ParsedReceipt, now time.Time) *IssuedToken {
	if !r.HasIssuance() {
		return nil
	}
	return &IssuedToken{
		Identifier:   *r.NewIssuedTokenIdentifier,
		Kind:         r.IssuedTokenKind,
		TxHash:       r.Hash,
		Issuer:       r.Sender,
		DiscoveredAt: now.UTC(),
	}
}

// ReceiptStats 回执统计
type ReceiptStats struct {
	TotalReceipts      uint64               `json:"totalReceipts"`
	SuccessfulReceipts uint64               `json:"successfulReceipts"`
	FailedReceipts     uint64               `json:"failedReceipts"`
	IssuedTokens       uint64               `json:"issuedTokens"`
	TokensByKind       map[TokenKind]uint64 `json:"tokensByKind"`
	TotalGasUsed       uint64               `json:"totalGasUsed"`
	LastUpdated        time.Time            `json:"lastUpdated"`
}

// NewReceiptStats 创建空统计
func NewReceiptStats() *ReceiptStats {
	return &ReceiptStats{TokensByKind: make(map[TokenKind]uint64)}
}

// Add 计入一个回执
func (s *ReceiptStats) Add(r *ParsedReceipt) {
	s.TotalReceipts++
	if r.Status == StatusSuccess {
		s.SuccessfulReceipts++
	} else {
		s.FailedReceipts++
	}
	s.TotalGasUsed += r.GasUsed
	if r.HasIssuance() {
		s.IssuedTokens++
		if s.TokensByKind == nil {
			s.TokensByKind = make(map[TokenKind]uint64)
		}
		s.TokensByKind[r.IssuedTokenKind]++
	}
}
