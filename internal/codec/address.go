package codec

import (
	"fmt"

	"github.com/btcsuite/btcd/btcutil/bech32"
)

// AddressHRP 链上地址的bech32前缀
const AddressHRP = "erd"

// AddressLength 公钥长度
const AddressLength = 32

// EncodeAddress 将32字节公钥编码为bech32地址
func EncodeAddress(pubkey []byte) (string, error) {
	if len(pubkey) != AddressLength {
		return "", fmt.Errorf("公钥长度错误: %d", len(pubkey))
	}

	converted, err := bech32.ConvertBits(pubkey, 8, 5, true)
	if err != nil {
		return "", fmt.Errorf("转换地址位宽失败: %w", err)
	}
	return bech32.Encode(AddressHRP, converted)
}

// DecodeAddress 解码bech32地址为公钥
func DecodeAddress(address string) ([]byte, error) {
	hrp, data, err := bech32.Decode(address)
	if err != nil {
		return nil, fmt.Errorf("bech32解码失败: %w", err)
	}
	if hrp != AddressHRP {
		return nil, fmt.Errorf("地址前缀错误: %s", hrp)
	}

	pubkey, err := bech32.ConvertBits(data, 5, 8, false)
	if err != nil {
		return nil, fmt.Errorf("转换地址位宽失败: %w", err)
	}
	if len(pubkey) != AddressLength {
		return nil, fmt.Errorf("公钥长度错误: %d", len(pubkey))
	}
	return pubkey, nil
}

// IsValidAddress 判断是否为合法地址
func IsValidAddress(address string) bool {
	_, err := DecodeAddress(address)
	return err == nil
}
