package generative

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"
)

func init() {
	tiktoken.SetBpeLoader(tiktoken_loader.NewOfflineLoader())
}

const tokenEncoding = "cl100k_base"

var (
	encoding     *tiktoken.Tiktoken
	encodingOnce sync.Once
	encodingErr  error
)

// CountTokens returns the cl100k_base token count of text. It falls back to a
// four-bytes-per-token estimate if the encoding cannot be loaded.
func CountTokens(text string) int {
	if text == "" {
		return 0
	}

	encodingOnce.Do(func() {
		encoding, encodingErr = tiktoken.GetEncoding(tokenEncoding)
	})
	if encodingErr != nil {
		return (len(text) + 3) / 4
	}
	return len(encoding.Encode(text, nil, nil))
}
