package normalize

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/JakeFAU/lottery-crawler/internal/lottery"
)

// Tier is the prize tier a raw prize grade maps onto.
type Tier int

// Prize tiers tracked on a DrawResult.
const (
	TierNone Tier = iota
	TierFirst
	TierSecond
)

// TierCode is the upstream prize grade discriminator. Depending on the
// lottery type it arrives either as a small integer or as a descriptive label.
type TierCode struct {
	Number   int
	Label    string
	IsNumber bool
}

// UnmarshalJSON accepts a JSON number, a JSON string or null.
func (t *TierCode) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	*t = TierCode{}
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	if data[0] == '"' {
		if err := json.Unmarshal(data, &t.Label); err != nil {
			return fmt.Errorf("decode tier label: %w", err)
		}
		return nil
	}
	if err := json.Unmarshal(data, &t.Number); err != nil {
		return fmt.Errorf("decode tier number: %w", err)
	}
	t.IsNumber = true
	return nil
}

// TierDecoder maps a TierCode onto a Tier for one lottery type.
type TierDecoder func(TierCode) Tier

// NumericTier handles the integer form shared by every lottery type.
func NumericTier(code TierCode) Tier {
	if !code.IsNumber {
		return TierNone
	}
	switch code.Number {
	case 1:
		return TierFirst
	case 2:
		return TierSecond
	default:
		return TierNone
	}
}

// LabelTier returns a decoder that matches labels by substring, falling
// back to NumericTier for integer codes.
func LabelTier(first, second []string) TierDecoder {
	return func(code TierCode) Tier {
		if code.IsNumber {
			return NumericTier(code)
		}
		if containsAny(code.Label, first) {
			return TierFirst
		}
		if containsAny(code.Label, second) {
			return TierSecond
		}
		return TierNone
	}
}

// DefaultTier decodes ssq, qlc and kl8 style grades.
var DefaultTier = LabelTier([]string{"x1z1", "一等奖"}, []string{"x1z2", "二等奖"})

// ThreeDTier decodes 3D grades, where the single-selection prize is the
// first tier and the group-selection prize is the second.
var ThreeDTier = LabelTier([]string{"单选"}, []string{"组选"})

func defaultDecoders() map[string]TierDecoder {
	return map[string]TierDecoder{
		lottery.Code3D: ThreeDTier,
	}
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}
