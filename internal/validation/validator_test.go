package validation

import (
	"testing"

	"esdtscan/internal/errors"
	"esdtscan/pkg/models"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	validHash     = "574ec0c8817a75a0417dbafd05978d948e78043fc34cae626c8705913e520e85"
	validSender   = "erd1qnufjmd8vwm6j6d3q28wxqr4d8408f34fpka4vs365fvskualrastsajum"
	validReceiver = "erd1qqqqqqqqqqqqqpplm5pxpusmcrk9rkkvna4tklusnnwdxpqm0zls4du99k"
	systemAddress = "erd1qqqqqqqqqqqqqqqpqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqzllls8a5w6u"
)

func newTestValidator(strict bool) *Validator {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return NewValidator(logger, strict)
}

func issuedReceipt(identifier string) *models.ParsedReceipt {
	return &models.ParsedReceipt{
		Hash:                     validHash,
		Status:                   models.StatusSuccess,
		Sender:                   validSender,
		Receiver:                 validReceiver,
		NewIssuedTokenIdentifier: &identifier,
		IssuedTokenKind:          models.TokenKindSemiFungible,
		Out:                      []models.Bytes{},
	}
}

func burnRoleLogs(identifier string) *models.LogRecord {
	return &models.LogRecord{
		Address: validReceiver,
		Events: []*models.Event{{
			Address:    systemAddress,
			Identifier: "ESDTSetBurnRoleForAll",
			Topics:     []models.Bytes{models.Bytes(identifier)},
		}},
	}
}

func TestNewValidator(t *testing.T) {
	validator := newTestValidator(true)

	assert.NotNil(t, validator)
	assert.True(t, validator.strictMode.Load())
	assert.Equal(t, 4, len(validator.rules))
}

func TestValidateReceipt_Valid(t *testing.T) {
	validator := newTestValidator(false)

	result := validator.ValidateReceipt(issuedReceipt("DOPETEST-77200c"))

	assert.True(t, result.Valid)
	assert.Equal(t, "receipt", result.DataType)
	assert.Empty(t, result.Errors)
	assert.Empty(t, result.Warnings)
}

func TestValidateReceipt_Nil(t *testing.T) {
	result := newTestValidator(false).ValidateReceipt(nil)

	assert.False(t, result.Valid)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "EMPTY_RECEIPT", result.Errors[0].Code)
}

func TestValidateReceipt_InvalidHash(t *testing.T) {
	tests := []string{
		"",
		"0x574ec0c8817a75a0417dbafd05978d948e78043fc34cae626c8705913e520e85",
		"574EC0C8817A75A0417DBAFD05978D948E78043FC34CAE626C8705913E520E85",
		"574ec0c8",
	}

	for _, hash := range tests {
		receipt := issuedReceipt("DOPETEST-77200c")
		receipt.Hash = hash

		result := newTestValidator(false).ValidateReceipt(receipt)
		assert.False(t, result.Valid, hash)
		require.NotEmpty(t, result.Errors, hash)
		assert.Equal(t, "INVALID_TX_HASH", result.Errors[0].Code)
	}
}

func TestValidateReceipt_InvalidAddresses(t *testing.T) {
	receipt := issuedReceipt("DOPETEST-77200c")
	receipt.Sender = "0x1234567890abcdef1234567890abcdef12345678"
	receipt.Receiver = "erd1invalid"

	result := newTestValidator(false).ValidateReceipt(receipt)

	assert.False(t, result.Valid)
	require.Len(t, result.Errors, 2)
	assert.Equal(t, "INVALID_SENDER_ADDRESS", result.Errors[0].Code)
	assert.Equal(t, "INVALID_RECEIVER_ADDRESS", result.Errors[1].Code)
	require.NotNil(t, result.Errors[0].TxHash)
	assert.Equal(t, validHash, *result.Errors[0].TxHash)
}

func TestValidateReceipt_TokenIdentifierShape(t *testing.T) {
	receipt := issuedReceipt("dopetest-77200c")

	lenient := newTestValidator(false).ValidateReceipt(receipt)
	assert.True(t, lenient.Valid)
	require.Len(t, lenient.Warnings, 1)
	assert.Contains(t, lenient.Warnings[0], "dopetest-77200c")

	strict := newTestValidator(true).ValidateReceipt(receipt)
	assert.False(t, strict.Valid)
	require.Len(t, strict.Errors, 1)
	assert.Equal(t, "INVALID_TOKEN_IDENTIFIER", strict.Errors[0].Code)
}

func TestValidateReceipt_BurnRoleCrossCheck(t *testing.T) {
	validator := newTestValidator(false)

	matching := issuedReceipt("TESTCOLL1-5aa80c")
	matching.Logs = burnRoleLogs("TESTCOLL1-5aa80c")
	result := validator.ValidateReceipt(matching)
	assert.Empty(t, result.Warnings)

	mismatching := issuedReceipt("TESTCOLL1-5aa80c")
	mismatching.SmartContractResults = []*models.ScResult{{Logs: burnRoleLogs("OTHER-123456")}}
	result = validator.ValidateReceipt(mismatching)
	assert.True(t, result.Valid)
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "OTHER-123456")
}

func TestValidateReceipt_Warnings(t *testing.T) {
	receipt := &models.ParsedReceipt{
		Hash:             validHash,
		Status:           "executed",
		OutDecodeWarning: true,
		Warnings:         []string{"writeLog事件返回码不是ok"},
	}

	result := newTestValidator(false).ValidateReceipt(receipt)

	assert.True(t, result.Valid)
	assert.Len(t, result.Warnings, 3)
	assert.Equal(t, "writeLog事件返回码不是ok", result.Warnings[2])
}

func TestReceiptValidationRule(t *testing.T) {
	rule := NewReceiptValidationRule()
	assert.Equal(t, "receipt", rule.Name())
	assert.NotEmpty(t, rule.Description())

	failed := issuedReceipt("DOPETEST-77200c")
	failed.Status = models.StatusFail
	err := rule.Validate(failed)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ISSUANCE_ON_FAILED_TX")

	noKind := issuedReceipt("DOPETEST-77200c")
	noKind.IssuedTokenKind = ""
	assert.Error(t, rule.Validate(noKind))

	withNil := issuedReceipt("DOPETEST-77200c")
	withNil.SmartContractResults = []*models.ScResult{{}, nil}
	assert.Error(t, rule.Validate(withNil))

	assert.NoError(t, rule.Validate(issuedReceipt("DOPETEST-77200c")))
	assert.Error(t, rule.Validate("not a receipt"))
}

func TestValidateReceipt_RuleErrorsAreCollected(t *testing.T) {
	validator := newTestValidator(false)
	receipt := issuedReceipt("DOPETEST-77200c")
	receipt.Status = models.StatusFail

	result := validator.ValidateReceipt(receipt)
	assert.False(t, result.Valid)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "ISSUANCE_ON_FAILED_TX", result.Errors[0].Code)
	assert.Equal(t, "validation", result.Errors[0].Component)

	stats := validator.GetValidationStats()
	errorStats, ok := stats["error_stats"].(errors.ErrorStats)
	require.True(t, ok)
	assert.Equal(t, 1, errorStats.TotalErrors)
}

func TestIsValidTokenIdentifier(t *testing.T) {
	tests := []struct {
		identifier string
		expected   bool
	}{
		{"EGLDMEX-95c6d5", true},
		{"GEN-868593", true},
		{"TESTCOLL1-5aa80c", true},
		{"ABCDEFGHIJ-000000", true},
		{"AB-000000", false},
		{"ABCDEFGHIJK-000000", false},
		{"GEN-86859", false},
		{"GEN-86859Z", false},
		{"GEN-8685AB", false},
		{"gen-868593", false},
		{"GEN868593", false},
		{" GEN-868593", false},
		{"", false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, IsValidTokenIdentifier(tt.identifier), tt.identifier)
	}
}

func TestValidateValue(t *testing.T) {
	validator := newTestValidator(false)

	assert.NoError(t, validator.ValidateValue("hash", validHash))
	assert.Error(t, validator.ValidateValue("hash", "0x"+validHash))
	assert.NoError(t, validator.ValidateValue("address", systemAddress))
	assert.Error(t, validator.ValidateValue("address", "erd1"))
	assert.NoError(t, validator.ValidateValue("token_identifier", "GEN-868593"))
	assert.Error(t, validator.ValidateValue("token_identifier", 42))
	assert.Error(t, validator.ValidateValue("missing", "x"))
}

func TestSetStrictMode(t *testing.T) {
	validator := newTestValidator(false)
	validator.SetStrictMode(true)

	stats := validator.GetValidationStats()
	assert.Equal(t, true, stats["strict_mode"])
	assert.Equal(t, 4, stats["registered_rules"])
}
