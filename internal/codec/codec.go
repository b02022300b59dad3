package codec

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"

	"esdtscan/internal/errors"
)

// DecodeBase64 解码标准base64（RFC 4648，+/字母表，=填充），允许一个结尾换行
func DecodeBase64(s string) ([]byte, error) {
	s = strings.TrimSuffix(s, "\n")

	// 标准库会静默跳过\r\n，这里需要视为非法字符
	if strings.ContainsAny(s, "\r\n") {
		return nil, errors.NewScanError(errors.ErrorTypeMalformedBase64, errors.SeverityLow,
			"MALFORMED_BASE64", "base64包含换行符")
	}

	decoded, err := base64.StdEncoding.Strict().DecodeString(s)
	if err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeMalformedBase64, errors.SeverityLow,
			"MALFORMED_BASE64", "base64格式错误")
	}
	return decoded, nil
}

// EncodeBase64 编码为标准base64
func EncodeBase64(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}

// DecodeHex 解码小写十六进制，不允许0x前缀与分隔符
func DecodeHex(s string) ([]byte, error) {
	if len(s)%2 != 0 {
		return nil, errors.NewScanError(errors.ErrorTypeMalformedHex, errors.SeverityLow,
			"MALFORMED_HEX", fmt.Sprintf("十六进制长度为奇数: %d", len(s)))
	}

	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return nil, errors.NewScanError(errors.ErrorTypeMalformedHex, errors.SeverityLow,
				"MALFORMED_HEX", fmt.Sprintf("非法十六进制字符 %q (位置 %d)", c, i))
		}
	}

	decoded, err := hex.DecodeString(s)
	if err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeMalformedHex, errors.SeverityLow,
			"MALFORMED_HEX", "十六进制格式错误")
	}
	return decoded, nil
}
