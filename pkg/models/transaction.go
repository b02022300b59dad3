package models

// 交易状态
const (
	StatusSuccess = "success"
	StatusFail    = "fail"
	StatusPending = "pending"
	StatusInvalid = "invalid"
)

// Event 日志事件
type Event struct {
	Address    string  `json:"address"`
	Identifier string  `json:"identifier"`
	Topics     []Bytes `json:"topics"`
	Data       Bytes   `json:"data,omitempty"`
}

// Topic 按下标取主题，越界返回nil,false
func (e *Event) Topic(i int) (Bytes, bool) {
	if i < 0 || i >= len(e.Topics) {
		return nil, false
	}
	return e.Topics[i], true
}

// LogRecord 日志记录
type LogRecord struct {
	Address string   `json:"address"`
	Events  []*Event `json:"events"`
}

// ScResult 智能合约结果，异步调用链中的一步
type ScResult struct {
	Hash           string     `json:"hash"`
	Nonce          uint64     `json:"nonce"`
	Value          *BigInt    `json:"value"`
	Receiver       string     `json:"receiver"`
	Sender         string     `json:"sender"`
	Data           Bytes      `json:"data"`
	PrevTxHash     string     `json:"prevTxHash"`
	OriginalTxHash string     `json:"originalTxHash"`
	GasLimit       uint64     `json:"gasLimit"`
	GasPrice       uint64     `json:"gasPrice"`
	CallType       int        `json:"callType"`
	Logs           *LogRecord `json:"logs,omitempty"`
}

// TransactionOnNetwork 链上已提交交易（含合约结果）
type TransactionOnNetwork struct {
	Hash                 string      `json:"hash"`
	Nonce                uint64      `json:"nonce"`
	Status               string      `json:"status"`
	Value                *BigInt     `json:"value"`
	Sender               string      `json:"sender"`
	Receiver             string      `json:"receiver"`
	GasLimit             uint64      `json:"gasLimit"`
	GasPrice             uint64      `json:"gasPrice"`
	GasUsed              uint64      `json:"gasUsed"`
	Fee                  *BigInt     `json:"fee"`
	Data                 Bytes       `json:"data"`
	Logs                 *LogRecord  `json:"logs,omitempty"`
	SmartContractResults []*ScResult `json:"smartContractResults"`
}

// IsSuccess 交易是否成功
func (t *TransactionOnNetwork) IsSuccess() bool {
	return t.Status == StatusSuccess
}

// Events 按顺序返回交易日志与各合约结果日志中的全部事件
func (t *TransactionOnNetwork) Events() []*Event {
	var events []*Event
	if t.Logs != nil {
		events = append(events, t.Logs.Events...)
	}
	for _, r := range t.SmartContractResults {
		if r != nil && r.Logs != nil {
			events = append(events, r.Logs.Events...)
		}
	}
	return events
}

// EnvelopeData 网关响应的data字段
type EnvelopeData struct {
	Transaction *TransactionOnNetwork `json:"transaction"`
}

// TransactionEnvelope 网关交易查询响应
type TransactionEnvelope struct {
	Data  *EnvelopeData `json:"data"`
	Error string        `json:"error"`
	Code  string        `json:"code"`
}
