package segmenter

import (
	"fmt"
	"math"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"
)

// TokenCounter 计算文本的 token 数
type TokenCounter interface {
	Count(text string) int
}

// EstimateTokenizer 不加载 BPE 表的估算模式名
const EstimateTokenizer = "estimate"

var loaderOnce sync.Once

// TiktokenCounter 基于 BPE 编码的精确计数
type TiktokenCounter struct {
	enc *tiktoken.Tiktoken
}

// NewTiktokenCounter 按编码名（cl100k_base、o200k_base …）创建计数器
//
// BPE 表从内嵌的离线 loader 读取，不访问网络。
func NewTiktokenCounter(encoding string) (*TiktokenCounter, error) {
	loaderOnce.Do(func() {
		tiktoken.SetBpeLoader(tiktoken_loader.NewOfflineLoader())
	})
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("load tokenizer %q: %w", encoding, err)
	}
	return &TiktokenCounter{enc: enc}, nil
}

// Count token 数
func (c *TiktokenCounter) Count(text string) int {
	if text == "" {
		return 0
	}
	return len(c.enc.Encode(text, nil, nil))
}

// EstimateCounter 按字节数估算：ceil(len/bytesPerToken)
type EstimateCounter struct {
	BytesPerToken float64
}

// Count 估算 token 数
func (c EstimateCounter) Count(text string) int {
	if text == "" {
		return 0
	}
	bpt := c.BytesPerToken
	if bpt <= 0 {
		bpt = 4
	}
	return int(math.Ceil(float64(len(text)) / bpt))
}

// NewCounter 按配置选择计数器
func NewCounter(tokenizer string, bytesPerToken float64) (TokenCounter, error) {
	if tokenizer == "" || strings.EqualFold(tokenizer, EstimateTokenizer) {
		return EstimateCounter{BytesPerToken: bytesPerToken}, nil
	}
	return NewTiktokenCounter(tokenizer)
}
