package codec

import (
	"encoding/base64"
	"fmt"
	"strings"
)

const (
	dataPrefix   = "data:"
	base64Marker = ";base64"

	// ChunkSize 是分块解码时每块的源字符数。
	ChunkSize = 512
)

// mimePrefixes 记录可识别的图片类型及其 data URI 前缀。
var mimePrefixes = map[string]string{
	"image/apng":    "data:image/apng;base64,",
	"image/avif":    "data:image/avif;base64,",
	"image/gif":     "data:image/gif;base64,",
	"image/jpeg":    "data:image/jpeg;base64,",
	"image/png":     "data:image/png;base64,",
	"image/svg+xml": "data:image/svg+xml;base64,",
	"image/webp":    "data:image/webp;base64,",
}

// Supported 报告 mime 是否属于可识别的图片类型。
func Supported(mime string) bool {
	_, ok := mimePrefixes[mime]
	return ok
}

// Prefix 返回 mime 对应的 data URI 前缀，未知类型返回空串。
func Prefix(mime string) string {
	return mimePrefixes[mime]
}

// ExtractMime 截取 "data:" 与首个 ";base64" 之间的 MIME 字符串。
// 不校验取值，未知类型原样返回。
func ExtractMime(s string) (string, bool) {
	start := strings.Index(s, dataPrefix)
	end := strings.Index(s, base64Marker)
	if start < 0 || end < 0 {
		return "", false
	}
	start += len(dataPrefix)
	if end < start {
		return "", false
	}
	return s[start:end], true
}

// Decode 去掉 mime 对应的前缀与 ASCII 空白后按 ChunkSize 分块解码 base64。
// 分块只为限制单次分配，结果与整体解码一致。
func Decode(s, mime string) ([]byte, error) {
	s = stripSpace(strings.TrimPrefix(s, Prefix(mime)))

	enc := base64.StdEncoding
	out := make([]byte, 0, enc.DecodedLen(len(s)))
	buf := make([]byte, enc.DecodedLen(ChunkSize))
	for offset := 0; offset < len(s); offset += ChunkSize {
		end := offset + ChunkSize
		if end > len(s) {
			end = len(s)
		}
		// 空白已去除且 ChunkSize 是 4 的倍数，只有最后一块可能带 padding。
		n, err := enc.Decode(buf, []byte(s[offset:end]))
		if err != nil {
			return nil, fmt.Errorf("decode base64 at offset %d: %w", offset, err)
		}
		out = append(out, buf[:n]...)
	}
	return out, nil
}

// stripSpace 去掉换行等 ASCII 空白，折行的 base64 因此可以按固定长度分块。
func stripSpace(s string) string {
	if !strings.ContainsAny(s, " \t\n\f\r") {
		return s
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\n', '\f', '\r':
			return -1
		}
		return r
	}, s)
}

// Encode 生成带 MIME 前缀的 data URI；未知类型只输出裸 base64。
func Encode(b []byte, mime string) string {
	prefix := Prefix(mime)
	var sb strings.Builder
	sb.Grow(len(prefix) + base64.StdEncoding.EncodedLen(len(b)))
	sb.WriteString(prefix)
	sb.WriteString(base64.StdEncoding.EncodeToString(b))
	return sb.String()
}
