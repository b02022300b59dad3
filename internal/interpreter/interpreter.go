package interpreter

import (
	"bytes"
	"encoding/json"
	"fmt"

	"esdtscan/internal/codec"
	"esdtscan/internal/errors"
	"esdtscan/internal/issuance"
	"esdtscan/pkg/models"
)

const (
	eventWriteLog = "writeLog"
	eventSCDeploy = "SCDeploy"
)

// 返回数据的第一个参数，表示调用成功
var returnCodeOK = []byte("ok")

// Interpreter 回执解释器，无状态，可并发使用
type Interpreter struct {
	classifier *issuance.Classifier
}

// New 创建解释器，classifier为nil时使用默认选项
func New(classifier *issuance.Classifier) *Interpreter {
	if classifier == nil {
		classifier = issuance.NewClassifier(issuance.Options{})
	}
	return &Interpreter{classifier: classifier}
}

var defaultInterpreter = New(nil)

// Interpret 使用默认解释器
func Interpret(tx *models.TransactionOnNetwork) *models.ParsedReceipt {
	return defaultInterpreter.Interpret(tx)
}

// ParseReceipt 使用默认解释器解析网关响应
func ParseReceipt(raw []byte) (*models.ParsedReceipt, error) {
	return defaultInterpreter.Parse(raw)
}

// Parse 解析网关响应 {data:{transaction}, error, code}
//
// 只有JSON结构错误会返回MalformedReceipt，其余异常都体现在回执字段中。
func (in *Interpreter) Parse(raw []byte) (receipt *models.ParsedReceipt, err error) {
	defer func() {
		if r := recover(); r != nil {
			receipt = nil
			err = errors.NewScanError(errors.ErrorTypeInternal, errors.SeverityCritical,
				"INTERNAL", fmt.Sprintf("解释回执时发生panic: %v", r))
		}
	}()

	var envelope models.TransactionEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeMalformedReceipt, errors.SeverityHigh,
			"INVALID_JSON", "回执JSON解析失败")
	}

	if envelope.Data == nil || envelope.Data.Transaction == nil {
		scanErr := errors.NewScanError(errors.ErrorTypeMalformedReceipt, errors.SeverityHigh,
			"MISSING_TRANSACTION", "缺少data.transaction")
		if envelope.Error != "" {
			scanErr.WithContext("gateway_error", envelope.Error)
		}
		if envelope.Code != "" {
			scanErr.WithContext("gateway_code", envelope.Code)
		}
		return nil, scanErr
	}

	return in.Interpret(envelope.Data.Transaction), nil
}

// Interpret 将交易转换为解释后的回执，不会失败
func (in *Interpreter) Interpret(tx *models.TransactionOnNetwork) *models.ParsedReceipt {
	if tx == nil {
		return nil
	}

	receipt := &models.ParsedReceipt{
		Hash:                 tx.Hash,
		Status:               tx.Status,
		Sender:               tx.Sender,
		Receiver:             tx.Receiver,
		GasUsed:              tx.GasUsed,
		Fee:                  tx.Fee,
		Logs:                 tx.Logs,
		SmartContractResults: tx.SmartContractResults,
		Out:                  []models.Bytes{},
	}

	if iss, ok := in.classifier.Classify(tx); ok {
		identifier := iss.Identifier
		receipt.NewIssuedTokenIdentifier = &identifier
		receipt.IssuedTokenKind = iss.Kind
	}

	out, warning := decodeOut(tx)
	if warning != "" {
		receipt.OutDecodeWarning = true
		receipt.Warnings = append(receipt.Warnings, warning)
	} else {
		receipt.Out = out
	}

	address, warning := deployedAddress(tx)
	if warning != "" {
		receipt.Warnings = append(receipt.Warnings, warning)
	} else if address != "" {
		receipt.NewDeployedAddress = &address
	}

	return receipt
}

// decodeOut 解码最外层调用的返回数据
//
// 成功交易优先取回给发送方、nonce非0且以'@'开头的合约结果，否则取最后一个以'@'开头的writeLog事件。
// 没有返回数据时返回空序列且无告警。
func decodeOut(tx *models.TransactionOnNetwork) ([]models.Bytes, string) {
	out := []models.Bytes{}
	if !tx.IsSuccess() {
		return out, ""
	}

	data, source := returnData(tx)
	if data == nil {
		return out, ""
	}

	call, err := codec.SplitCallData(data)
	if err != nil {
		return out, fmt.Sprintf("%s返回数据解码失败: %v", source, err)
	}
	if call.Function != "" {
		return out, fmt.Sprintf("%s返回数据不应包含函数名: %q", source, call.Function)
	}

	code, ok := call.Arg(0)
	if !ok || !bytes.Equal(code, returnCodeOK) {
		return out, fmt.Sprintf("%s返回码不是ok: %q", source, code)
	}

	for _, arg := range call.Args[1:] {
		out = append(out, models.Bytes(arg))
	}
	return out, ""
}

func returnData(tx *models.TransactionOnNetwork) (models.Bytes, string) {
	for _, r := range tx.SmartContractResults {
		if r == nil || r.Nonce == 0 || !r.Data.HasPrefix("@") {
			continue
		}
		if tx.Sender != "" && r.Receiver != tx.Sender {
			continue
		}
		return r.Data, "合约结果"
	}

	if tx.Logs == nil {
		return nil, ""
	}
	for i := len(tx.Logs.Events) - 1; i >= 0; i-- {
		event := tx.Logs.Events[i]
		if event != nil && event.Identifier == eventWriteLog && event.Data.HasPrefix("@") {
			return event.Data, "writeLog事件"
		}
	}
	return nil, ""
}

// deployedAddress 第一个SCDeploy事件的第一个主题即新合约公钥
func deployedAddress(tx *models.TransactionOnNetwork) (string, string) {
	for _, event := range tx.Events() {
		if event == nil || event.Identifier != eventSCDeploy {
			continue
		}

		topic, ok := event.Topic(0)
		if !ok {
			return "", "SCDeploy事件缺少主题"
		}
		address, err := codec.EncodeAddress(topic)
		if err != nil {
			return "", fmt.Sprintf("新合约地址编码失败: %v", err)
		}
		return address, ""
	}
	return "", ""
}
