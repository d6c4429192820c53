// Package langdetect 源文档语言检测
package langdetect

import (
	"strings"

	"github.com/pemistahl/lingua-go"
)

// sampleBytes 只取开头一段文本检测，长文档全文检测没有收益
const sampleBytes = 4096

// DefaultLanguages 默认候选语言（只加载这些语言的模型，控制内存）
var DefaultLanguages = []lingua.Language{
	lingua.English, lingua.French, lingua.German, lingua.Spanish, lingua.Italian,
	lingua.Portuguese, lingua.Dutch, lingua.Russian, lingua.Chinese, lingua.Japanese,
	lingua.Korean, lingua.Arabic, lingua.Turkish, lingua.Polish,
}

// Detector 语言检测器，可并发使用
type Detector struct {
	detector lingua.LanguageDetector
}

// New 创建检测器；codes 为 ISO 639-1 代码，为空时使用 DefaultLanguages
func New(codes ...string) *Detector {
	langs := DefaultLanguages
	if len(codes) > 0 {
		langs = nil
		for _, c := range codes {
			if l := fromCode(c); l != lingua.Unknown {
				langs = append(langs, l)
			}
		}
		if len(langs) < 2 {
			langs = DefaultLanguages
		}
	}
	return &Detector{
		detector: lingua.NewLanguageDetectorBuilder().FromLanguages(langs...).Build(),
	}
}

// Detect 返回小写 ISO 639-1 代码；无法判断时返回 false
func (d *Detector) Detect(text string) (string, bool) {
	if len(text) > sampleBytes {
		text = text[:sampleBytes]
	}
	lang, ok := d.detector.DetectLanguageOf(text)
	if !ok || lang == lingua.Unknown {
		return "", false
	}
	return strings.ToLower(lang.IsoCode639_1().String()), true
}

// Name 语言代码的英文名，未知代码原样返回
func Name(code string) string {
	if l := fromCode(code); l != lingua.Unknown {
		return l.String()
	}
	return code
}

func fromCode(code string) lingua.Language {
	code = strings.ToLower(strings.TrimSpace(code))
	if i := strings.IndexAny(code, "-_"); i > 0 {
		code = code[:i]
	}
	if len(code) != 2 {
		return lingua.Unknown
	}
	return lingua.GetLanguageFromIsoCode639_1(lingua.GetIsoCode639_1FromValue(code))
}
