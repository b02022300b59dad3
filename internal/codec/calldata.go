package codec

import (
	"bytes"
	"strings"
	"unicode/utf8"

	"esdtscan/internal/errors"

	"github.com/ethereum/go-ethereum/common"
)

// FieldSeparator 调用字符串字段分隔符
const FieldSeparator = '@'

// CallData 系统合约调用字符串解析结果
//
// 线格式为 name@arg1hex@arg2hex@...，第一个字段是函数名，其余字段各为一个参数的小写十六进制编码。
type CallData struct {
	Function string   `json:"function"`
	Args     [][]byte `json:"args"`
}

// SplitCallData 按'@'拆分调用字符串
//
// 开头的'@'得到空函数名（回调结果），结尾的'@'得到一个空参数并被保留。
// 某个字段十六进制解码失败时返回MalformedCallData，并标记字段位置。
func SplitCallData(data []byte) (*CallData, error) {
	fields := bytes.Split(data, []byte{FieldSeparator})

	if !utf8.Valid(fields[0]) {
		return nil, errors.NewScanError(errors.ErrorTypeMalformedCallData, errors.SeverityLow,
			"MALFORMED_CALL_DATA", "函数名不是合法的UTF-8").WithFieldIndex(0)
	}

	call := &CallData{
		Function: string(fields[0]),
		Args:     make([][]byte, 0, len(fields)-1),
	}

	for i, field := range fields[1:] {
		arg, err := DecodeHex(string(field))
		if err != nil {
			return nil, errors.WrapError(err, errors.ErrorTypeMalformedCallData, errors.SeverityLow,
				"MALFORMED_CALL_DATA", "调用参数解码失败").WithFieldIndex(i + 1)
		}
		call.Args = append(call.Args, arg)
	}

	return call, nil
}

// EncodeCallData 编码调用字符串，SplitCallData的逆操作
func EncodeCallData(function string, args ...[]byte) []byte {
	var sb strings.Builder
	sb.WriteString(function)
	for _, arg := range args {
		sb.WriteByte(FieldSeparator)
		sb.WriteString(common.Bytes2Hex(arg))
	}
	return []byte(sb.String())
}

// IsSuccessCallback 函数名为空且第一个参数为单字节0x00（协议的回调成功标记）
func (c *CallData) IsSuccessCallback() bool {
	return c.Function == "" && len(c.Args) > 0 && bytes.Equal(c.Args[0], []byte{0x00})
}

// Arg 按下标取参数，越界返回nil,false
func (c *CallData) Arg(i int) ([]byte, bool) {
	if i < 0 || i >= len(c.Args) {
		return nil, false
	}
	return c.Args[i], true
}

// ArgCount 参数个数
func (c *CallData) ArgCount() int {
	return len(c.Args)
}
