package export

import (
	"fmt"
	"strings"
	"unicode"
)

// Filename 由标题生成下载文件名：小写，非字母数字折叠为单个连字符。
// 标题不含可用字符时退回 resume-<id>.pdf。
func Filename(title string, resumeID uint) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(title) {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	slug := strings.TrimRight(b.String(), "-")
	if len(slug) > 80 {
		slug = strings.TrimRight(slug[:80], "-")
	}
	if slug == "" {
		slug = fmt.Sprintf("resume-%d", resumeID)
	}
	return slug + ".pdf"
}
