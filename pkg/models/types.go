package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"esdtscan/internal/codec"

	"github.com/fxamacker/cbor/v2"
)

// Bytes 字节字段，JSON中为标准base64字符串
type Bytes []byte

// MarshalJSON 编码为base64字符串
func (b Bytes) MarshalJSON() ([]byte, error) {
	return json.Marshal(codec.EncodeBase64(b))
}

// UnmarshalJSON 解码base64字符串，null得到nil
func (b *Bytes) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		*b = nil
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("字节字段必须是base64字符串: %w", err)
	}

	decoded, err := codec.DecodeBase64(s)
	if err != nil {
		return err
	}
	*b = decoded
	return nil
}

// HasPrefix 是否以指定字节开头
func (b Bytes) HasPrefix(prefix string) bool {
	return bytes.HasPrefix(b, []byte(prefix))
}

// BigInt 非负任意精度整数，JSON中接受十进制字符串或数字
type BigInt struct {
	big.Int
}

// NewBigInt 由int64创建
func NewBigInt(v int64) *BigInt {
	b := &BigInt{}
	b.SetInt64(v)
	return b
}

// ParseBigInt 解析十进制字符串，空串视为0
func ParseBigInt(s string) (*BigInt, error) {
	b := &BigInt{}
	s = strings.TrimSpace(s)
	if s == "" {
		return b, nil
	}
	if _, ok := b.SetString(s, 10); !ok {
		return nil, fmt.Errorf("无效的整数: %q", s)
	}
	if b.Sign() < 0 {
		return nil, fmt.Errorf("数值不能为负: %s", s)
	}
	return b, nil
}

// MarshalJSON 编码为十进制字符串
func (b *BigInt) MarshalJSON() ([]byte, error) {
	return json.Marshal(b.String())
}

// UnmarshalJSON 解码十进制字符串或JSON数字
func (b *BigInt) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		b.SetInt64(0)
		return nil
	}

	s := string(data)
	if len(data) > 0 && data[0] == '"' {
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
	}

	parsed, err := ParseBigInt(s)
	if err != nil {
		return err
	}
	b.Set(&parsed.Int)
	return nil
}

// MarshalCBOR 使用CBOR bignum编码
func (b *BigInt) MarshalCBOR() ([]byte, error) {
	return cbor.Marshal(&b.Int)
}

// UnmarshalCBOR 解码CBOR bignum
func (b *BigInt) UnmarshalCBOR(data []byte) error {
	var v big.Int
	if err := cbor.Unmarshal(data, &v); err != nil {
		return err
	}
	b.Set(&v)
	return nil
}
