package budget

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

var (
	encoderCache   = make(map[string]*tiktoken.Tiktoken)
	encoderCacheMu sync.RWMutex
)

// Tiktoken counts tokens with the BPE encoding of a model. The encoding
// tables are downloaded on first use unless TIKTOKEN_CACHE_DIR holds them.
type Tiktoken struct {
	enc *tiktoken.Tiktoken
}

// NewTiktoken returns a counter for model, falling back to cl100k_base for
// models tiktoken does not know.
func NewTiktoken(model string) (*Tiktoken, error) {
	encoderCacheMu.RLock()
	enc, ok := encoderCache[model]
	encoderCacheMu.RUnlock()
	if ok {
		return &Tiktoken{enc: enc}, nil
	}

	encoderCacheMu.Lock()
	defer encoderCacheMu.Unlock()
	if enc, ok := encoderCache[model]; ok {
		return &Tiktoken{enc: enc}, nil
	}
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, err
		}
	}
	encoderCache[model] = enc
	return &Tiktoken{enc: enc}, nil
}

func (t *Tiktoken) Count(s string) int {
	return len(t.enc.Encode(s, nil, nil))
}
