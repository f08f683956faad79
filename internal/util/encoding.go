// Package util 设备输出的字符集处理
package util

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/traditionalchinese"
	"golang.org/x/text/transform"
)

// 自动探测时依次尝试的编码，国产设备中文提示多为 GBK/GB18030
var autoCandidates = []encoding.Encoding{
	simplifiedchinese.GB18030,
	simplifiedchinese.GBK,
	traditionalchinese.Big5,
	charmap.Windows1252,
}

// EncodingByName 按名称查找编码，空串与 auto 返回 nil
func EncodingByName(name string) (encoding.Encoding, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "auto", "utf-8", "utf8":
		return nil, nil
	case "gbk", "cp936":
		return simplifiedchinese.GBK, nil
	case "gb18030":
		return simplifiedchinese.GB18030, nil
	case "big5":
		return traditionalchinese.Big5, nil
	case "latin1", "iso-8859-1":
		return charmap.ISO8859_1, nil
	case "windows-1252", "cp1252":
		return charmap.Windows1252, nil
	default:
		return nil, fmt.Errorf("unsupported output encoding %q", name)
	}
}

// EnsureUTF8Bytes 合法 UTF-8 原样返回，否则依次尝试常见编码解码，全部失败时按原字节返回
func EnsureUTF8Bytes(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	if utf8.Valid(b) {
		return string(b)
	}
	for _, enc := range autoCandidates {
		if s, ok := decodeWith(enc, b); ok {
			return s
		}
	}
	return string(b)
}

// DecodeBytes 使用指定编码解码；enc 为 nil 时自动探测
func DecodeBytes(enc encoding.Encoding, b []byte) string {
	if enc == nil {
		return EnsureUTF8Bytes(b)
	}
	if s, ok := decodeWith(enc, b); ok {
		return s
	}
	return EnsureUTF8Bytes(b)
}

func decodeWith(enc encoding.Encoding, b []byte) (string, bool) {
	decoded, _, err := transform.Bytes(enc.NewDecoder(), b)
	if err != nil || !utf8.Valid(decoded) {
		return "", false
	}
	return string(decoded), true
}
