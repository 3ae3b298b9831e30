package cwl

import (
	_ "embed"
	"encoding/json"
	"fmt"

	"github.com/JakeFAU/lottery-crawler/internal/lottery"
)

//go:embed fallback.json
var fallbackJSON []byte

var fallbackPayloads = mustLoadFallback(fallbackJSON)

func mustLoadFallback(data []byte) map[string]lottery.Payload {
	var out map[string]lottery.Payload
	if err := json.Unmarshal(data, &out); err != nil {
		panic(fmt.Sprintf("decode embedded fallback dataset: %v", err))
	}
	return out
}

// Fallback returns the embedded last-resort payload for a lottery code.
func Fallback(code string) (lottery.Payload, bool) {
	p, ok := fallbackPayloads[code]
	if !ok {
		return lottery.Payload{}, false
	}
	items := make([]json.RawMessage, len(p.Result))
	copy(items, p.Result)
	return lottery.Payload{
		State:        0,
		Message:      "embedded fallback dataset",
		Result:       items,
		FromFallback: true,
	}, true
}
