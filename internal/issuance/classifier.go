package issuance

import (
	"esdtscan/internal/codec"
	"esdtscan/pkg/models"
)

// 发行动词（系统合约函数名，区分大小写）
const (
	VerbIssue                  = "issue"
	VerbIssueSemiFungible      = "issueSemiFungible"
	VerbIssueNonFungible       = "issueNonFungible"
	VerbRegisterMetaESDT       = "registerMetaESDT"
	VerbRegisterAndSetAllRoles = "registerAndSetAllRoles"
)

// 与发行形态相近但不是发行的函数与事件
const (
	FunctionESDTTransfer       = "ESDTTransfer"
	FunctionSetSpecialRole     = "setSpecialRole"
	FunctionESDTSetRole        = "ESDTSetRole"
	EventESDTSetBurnRoleForAll = "ESDTSetBurnRoleForAll"
)

var verbKinds = map[string]models.TokenKind{
	VerbIssue:                  models.TokenKindFungible,
	VerbIssueSemiFungible:      models.TokenKindSemiFungible,
	VerbIssueNonFungible:       models.TokenKindNonFungible,
	VerbRegisterMetaESDT:       models.TokenKindMeta,
	VerbRegisterAndSetAllRoles: models.TokenKindUnknown,
}

// registerAndSetAllRoles的第3个参数为代币类型
var tokenTypeKinds = map[string]models.TokenKind{
	"FNG":  models.TokenKindFungible,
	"SFT":  models.TokenKindSemiFungible,
	"NFT":  models.TokenKindNonFungible,
	"META": models.TokenKindMeta,
}

// IsIssuanceVerb 是否为发行动词
func IsIssuanceVerb(function string) bool {
	_, ok := verbKinds[function]
	return ok
}

// Options 分类器选项
type Options struct {
	// SystemSCAddress 非空时，完成结果必须由该地址发出
	SystemSCAddress string `mapstructure:"system_sc_address"`
}

// Issuance 一次代币发行
type Issuance struct {
	Identifier      string           `json:"identifier"`
	Kind            models.TokenKind `json:"kind"`
	Verb            string           `json:"verb"`
	InitiatorIndex  int              `json:"initiatorIndex"`
	CompletionIndex int              `json:"completionIndex"`
}

// Classifier 发行分类器，无状态，可并发使用
type Classifier struct {
	opts Options
}

// NewClassifier 创建分类器
func NewClassifier(opts Options) *Classifier {
	return &Classifier{opts: opts}
}

var defaultClassifier = NewClassifier(Options{})

// Classify 使用默认选项分类
func Classify(tx *models.TransactionOnNetwork) (*Issuance, bool) {
	return defaultClassifier.Classify(tx)
}

// NewIssuedTokenIdentifier 使用默认选项返回新发行的代币标识
func NewIssuedTokenIdentifier(tx *models.TransactionOnNetwork) (string, bool) {
	return defaultClassifier.NewIssuedTokenIdentifier(tx)
}

// NewIssuedTokenIdentifier 返回新发行的代币标识
func (c *Classifier) NewIssuedTokenIdentifier(tx *models.TransactionOnNetwork) (string, bool) {
	iss, ok := c.Classify(tx)
	if !ok {
		return "", false
	}
	return iss.Identifier, true
}

// Classify 按顺序遍历合约结果，返回第一个有完成结果的发行
//
// 失败交易、没有完成结果的发行、无法拆分的结果都不报告发行，也不回退到日志事件。
func (c *Classifier) Classify(tx *models.TransactionOnNetwork) (*Issuance, bool) {
	if tx == nil || !tx.IsSuccess() {
		return nil, false
	}

	results := tx.SmartContractResults
	for i, r := range results {
		call, ok := initiatorCall(r)
		if !ok {
			continue
		}

		identifier, j, ok := c.completion(results, i, call.Function)
		if !ok {
			continue
		}

		return &Issuance{
			Identifier:      string(identifier),
			Kind:            kindOf(call),
			Verb:            call.Function,
			InitiatorIndex:  i,
			CompletionIndex: j,
		}, true
	}

	return nil, false
}

// initiatorCall 结果数据以发行动词开头时返回拆分结果
func initiatorCall(r *models.ScResult) (*codec.CallData, bool) {
	if r == nil || len(r.Data) == 0 {
		return nil, false
	}

	call, err := codec.SplitCallData(r.Data)
	if err != nil {
		return nil, false
	}
	if !IsIssuanceVerb(call.Function) {
		return nil, false
	}
	return call, true
}

func kindOf(call *codec.CallData) models.TokenKind {
	if call.Function == VerbRegisterAndSetAllRoles {
		if tokenType, ok := call.Arg(2); ok {
			if kind, ok := tokenTypeKinds[string(tokenType)]; ok {
				return kind
			}
		}
	}
	return verbKinds[call.Function]
}

// completion 查找发行的完成结果，返回代币标识与完成结果下标
func (c *Classifier) completion(results []*models.ScResult, i int, verb string) ([]byte, int, bool) {
	// 空哈希无法与prevTxHash关联
	if results[i].Hash == "" {
		return nil, -1, false
	}

	if verb == VerbIssue {
		if identifier, j, ok := c.findCompletion(results, i, transferIdentifier); ok {
			return identifier, j, true
		}
	}
	return c.findCompletion(results, i, callbackIdentifier)
}

func (c *Classifier) findCompletion(results []*models.ScResult, i int,
	extract func(*codec.CallData) ([]byte, bool)) ([]byte, int, bool) {
	hash := results[i].Hash

	for j := i + 1; j < len(results); j++ {
		r := results[j]
		if r == nil || r.PrevTxHash != hash {
			continue
		}
		if c.opts.SystemSCAddress != "" && r.Sender != c.opts.SystemSCAddress {
			continue
		}

		call, err := codec.SplitCallData(r.Data)
		if err != nil {
			continue
		}
		if identifier, ok := extract(call); ok {
			return identifier, j, true
		}
	}

	return nil, -1, false
}

// callbackIdentifier @00@<标识>@...
func callbackIdentifier(call *codec.CallData) ([]byte, bool) {
	if !call.IsSuccessCallback() {
		return nil, false
	}
	identifier, ok := call.Arg(1)
	if !ok || len(identifier) == 0 {
		return nil, false
	}
	return identifier, true
}

// transferIdentifier ESDTTransfer@<标识>@<数量>@...
func transferIdentifier(call *codec.CallData) ([]byte, bool) {
	if call.Function != FunctionESDTTransfer {
		return nil, false
	}
	identifier, ok := call.Arg(0)
	if !ok || len(identifier) == 0 {
		return nil, false
	}
	return identifier, true
}

// BurnRoleTokens 返回交易与合约结果日志中全部ESDTSetBurnRoleForAll事件的第一个主题
//
// 仅用于交叉校验，发行标识始终以回调参数为准。
func BurnRoleTokens(tx *models.TransactionOnNetwork) []string {
	if tx == nil {
		return nil
	}

	var tokens []string
	for _, event := range tx.Events() {
		if event == nil || event.Identifier != EventESDTSetBurnRoleForAll {
			continue
		}
		if topic, ok := event.Topic(0); ok {
			tokens = append(tokens, string(topic))
		}
	}
	return tokens
}
