package validation

import (
	"context"
	stderrors "errors"
	"fmt"
	"regexp"
	"sync/atomic"

	"esdtscan/internal/codec"
	"esdtscan/internal/errors"
	"esdtscan/internal/issuance"
	"esdtscan/pkg/models"

	"github.com/sirupsen/logrus"
)

var (
	tokenIdentifierRegex = regexp.MustCompile(`^[A-Z0-9]{3,10}-[0-9a-f]{6}$`)
	txHashRegex          = regexp.MustCompile(`^[0-9a-f]{64}$`)
)

// 已知的交易状态
var knownStatuses = map[string]bool{
	models.StatusSuccess: true,
	models.StatusFail:    true,
	models.StatusPending: true,
	models.StatusInvalid: true,
}

// Validator 回执验证器
type Validator struct {
	logger       *logrus.Logger
	strictMode   atomic.Bool // 严格模式下标识格式问题视为错误
	errorHandler *errors.ErrorHandler
	rules        map[string]ValidationRule
}

// ValidationRule 验证规则接口
type ValidationRule interface {
	Validate(data interface{}) error
	Name() string
	Description() string
}

// ValidationResult 验证结果
type ValidationResult struct {
	Valid    bool                `json:"valid"`
	Errors   []*errors.ScanError `json:"errors,omitempty"`
	Warnings []string            `json:"warnings,omitempty"`
	DataType string              `json:"data_type"`
}

// NewValidator 创建回执验证器
func NewValidator(logger *logrus.Logger, strictMode bool) *Validator {
	v := &Validator{
		logger:       logger,
		errorHandler: errors.NewErrorHandler(logger),
		rules:        make(map[string]ValidationRule),
	}

	v.strictMode.Store(strictMode)
	v.registerDefaultRules()

	return v
}

func (v *Validator) registerDefaultRules() {
	v.AddRule(NewReceiptValidationRule())
	v.AddRule(NewTokenIdentifierRule())
	v.AddRule(NewAddressValidationRule())
	v.AddRule(NewHashValidationRule())
}

// AddRule 添加验证规则
func (v *Validator) AddRule(rule ValidationRule) {
	v.rules[rule.Name()] = rule
	v.logger.Debugf("已注册验证规则: %s", rule.Name())
}

// ValidateReceipt 验证解释后的回执
//
// 告警不影响Valid；哈希与地址格式错误总是错误，代币标识格式只在严格模式下是错误。
func (v *Validator) ValidateReceipt(receipt *models.ParsedReceipt) *ValidationResult {
	if receipt == nil {
		return &ValidationResult{
			Valid: false,
			Errors: []*errors.ScanError{errors.NewScanError(errors.ErrorTypeValidation, errors.SeverityHigh,
				"EMPTY_RECEIPT", "回执为空")},
			DataType: "receipt",
		}
	}

	result := &ValidationResult{
		Valid:    true,
		DataType: "receipt",
		Errors:   make([]*errors.ScanError, 0),
		Warnings: make([]string, 0),
	}

	if !IsValidTxHash(receipt.Hash) {
		v.addError(result, receipt.Hash, errors.NewScanError(errors.ErrorTypeValidation, errors.SeverityHigh,
			"INVALID_TX_HASH", "交易哈希格式无效"))
	}

	if receipt.Sender != "" && !codec.IsValidAddress(receipt.Sender) {
		v.addError(result, receipt.Hash, errors.NewScanError(errors.ErrorTypeValidation, errors.SeverityHigh,
			"INVALID_SENDER_ADDRESS", "发送方地址格式无效"))
	}
	if receipt.Receiver != "" && !codec.IsValidAddress(receipt.Receiver) {
		v.addError(result, receipt.Hash, errors.NewScanError(errors.ErrorTypeValidation, errors.SeverityHigh,
			"INVALID_RECEIVER_ADDRESS", "接收方地址格式无效"))
	}

	if !knownStatuses[receipt.Status] {
		result.Warnings = append(result.Warnings, fmt.Sprintf("未知的交易状态: %q", receipt.Status))
	}

	if receipt.HasIssuance() {
		v.validateIssuance(receipt, result)
	}

	if rule, exists := v.rules["receipt"]; exists {
		if err := rule.Validate(receipt); err != nil {
			var scanErr *errors.ScanError
			if !stderrors.As(err, &scanErr) {
				scanErr = errors.WrapError(err, errors.ErrorTypeValidation, errors.SeverityMedium,
					"RECEIPT_RULE_VALIDATION_FAILED", "回执规则验证失败")
			}
			v.addError(result, receipt.Hash, scanErr)
		}
	}

	if receipt.OutDecodeWarning {
		result.Warnings = append(result.Warnings, "返回数据解码失败")
	}
	result.Warnings = append(result.Warnings, receipt.Warnings...)

	return result
}

// validateIssuance 标识格式与ESDTSetBurnRoleForAll交叉校验
func (v *Validator) validateIssuance(receipt *models.ParsedReceipt, result *ValidationResult) {
	identifier := receipt.TokenIdentifier()

	if err := ValidateTokenIdentifier(identifier); err != nil {
		if v.strictMode.Load() {
			var scanErr *errors.ScanError
			if stderrors.As(err, &scanErr) {
				v.addError(result, receipt.Hash, scanErr)
			}
		} else {
			result.Warnings = append(result.Warnings, fmt.Sprintf("代币标识格式异常: %q", identifier))
		}
	}

	burnRoles := issuance.BurnRoleTokens(&models.TransactionOnNetwork{
		Logs:                 receipt.Logs,
		SmartContractResults: receipt.SmartContractResults,
	})
	if len(burnRoles) == 0 {
		return
	}
	for _, token := range burnRoles {
		if token == identifier {
			return
		}
	}
	result.Warnings = append(result.Warnings,
		fmt.Sprintf("ESDTSetBurnRoleForAll事件中的代币%v与发行标识%s不一致", burnRoles, identifier))
}

func (v *Validator) addError(result *ValidationResult, txHash string, err *errors.ScanError) {
	if txHash != "" {
		err.WithTxHash(txHash)
	}
	result.Valid = false
	result.Errors = append(result.Errors, err)
	v.errorHandler.HandleError(context.Background(), err.WithComponent("validation"))
}

// ValidateTokenIdentifier 校验 TICKER-xxxxxx 格式
func ValidateTokenIdentifier(identifier string) error {
	if !IsValidTokenIdentifier(identifier) {
		return errors.NewScanError(errors.ErrorTypeValidation, errors.SeverityMedium,
			"INVALID_TOKEN_IDENTIFIER", fmt.Sprintf("代币标识格式无效: %q", identifier))
	}
	return nil
}

// IsValidTokenIdentifier 3-10位大写字母或数字，'-'，6位小写十六进制
func IsValidTokenIdentifier(identifier string) bool {
	return tokenIdentifierRegex.MatchString(identifier)
}

// IsValidTxHash 64位小写十六进制
func IsValidTxHash(hash string) bool {
	return txHashRegex.MatchString(hash)
}

// ReceiptValidationRule 回执一致性规则
type ReceiptValidationRule struct{}

func NewReceiptValidationRule() *ReceiptValidationRule {
	return &ReceiptValidationRule{}
}

func (r *ReceiptValidationRule) Name() string {
	return "receipt"
}

func (r *ReceiptValidationRule) Description() string {
	return "回执数据一致性规则"
}

func (r *ReceiptValidationRule) Validate(data interface{}) error {
	receipt, ok := data.(*models.ParsedReceipt)
	if !ok {
		return fmt.Errorf("数据类型不是回执")
	}

	if receipt.HasIssuance() && receipt.Status != models.StatusSuccess {
		return errors.NewScanError(errors.ErrorTypeValidation, errors.SeverityHigh,
			"ISSUANCE_ON_FAILED_TX", "失败交易不应报告新发行代币")
	}
	if receipt.HasIssuance() && receipt.IssuedTokenKind == "" {
		return errors.NewScanError(errors.ErrorTypeValidation, errors.SeverityMedium,
			"MISSING_TOKEN_KIND", "发行记录缺少代币类型")
	}
	for i, r := range receipt.SmartContractResults {
		if r == nil {
			return errors.NewScanError(errors.ErrorTypeValidation, errors.SeverityMedium,
				"NIL_SMART_CONTRACT_RESULT", fmt.Sprintf("第%d个合约结果为空", i))
		}
	}

	return nil
}

// TokenIdentifierRule 代币标识规则
type TokenIdentifierRule struct{}

func NewTokenIdentifierRule() *TokenIdentifierRule {
	return &TokenIdentifierRule{}
}

func (r *TokenIdentifierRule) Name() string {
	return "token_identifier"
}

func (r *TokenIdentifierRule) Description() string {
	return "代币标识格式规则"
}

func (r *TokenIdentifierRule) Validate(data interface{}) error {
	identifier, ok := data.(string)
	if !ok {
		return fmt.Errorf("数据类型不是字符串")
	}
	return ValidateTokenIdentifier(identifier)
}

// AddressValidationRule 地址验证规则
type AddressValidationRule struct{}

func NewAddressValidationRule() *AddressValidationRule {
	return &AddressValidationRule{}
}

func (r *AddressValidationRule) Name() string {
	return "address"
}

func (r *AddressValidationRule) Description() string {
	return "bech32地址验证规则"
}

func (r *AddressValidationRule) Validate(data interface{}) error {
	addr, ok := data.(string)
	if !ok {
		return fmt.Errorf("数据类型不是字符串")
	}

	if !codec.IsValidAddress(addr) {
		return errors.NewScanError(errors.ErrorTypeValidation, errors.SeverityHigh,
			"INVALID_ADDRESS_FORMAT", "地址格式无效")
	}

	return nil
}

// HashValidationRule 哈希验证规则
type HashValidationRule struct{}

func NewHashValidationRule() *HashValidationRule {
	return &HashValidationRule{}
}

func (r *HashValidationRule) Name() string {
	return "hash"
}

func (r *HashValidationRule) Description() string {
	return "交易哈希验证规则"
}

func (r *HashValidationRule) Validate(data interface{}) error {
	hash, ok := data.(string)
	if !ok {
		return fmt.Errorf("数据类型不是字符串")
	}

	if !IsValidTxHash(hash) {
		return errors.NewScanError(errors.ErrorTypeValidation, errors.SeverityHigh,
			"INVALID_HASH_FORMAT", "哈希格式无效")
	}

	return nil
}

// ValidateValue 按规则名验证单个值
func (v *Validator) ValidateValue(ruleName string, value interface{}) error {
	rule, exists := v.rules[ruleName]
	if !exists {
		return fmt.Errorf("验证规则不存在: %s", ruleName)
	}
	return rule.Validate(value)
}

// GetValidationStats 获取验证统计信息
func (v *Validator) GetValidationStats() map[string]interface{} {
	return map[string]interface{}{
		"strict_mode":      v.strictMode.Load(),
		"registered_rules": len(v.rules),
		"error_stats":      v.errorHandler.GetStats(),
	}
}

// SetStrictMode 设置严格模式
func (v *Validator) SetStrictMode(strict bool) {
	v.strictMode.Store(strict)
	v.logger.Infof("验证器严格模式设置为: %t", strict)
}
