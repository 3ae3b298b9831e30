// Package normalize maps raw upstream draw items onto canonical draw records.
package normalize

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/JakeFAU/lottery-crawler/internal/lottery"
)

// ErrMalformed wraps every per-item parse failure.
var ErrMalformed = errors.New("malformed draw item")

// Normalizer converts raw items using per-type prize tier decoders.
type Normalizer struct {
	decoders map[string]TierDecoder
	fallback TierDecoder
}

// New creates a Normalizer with the built-in per-type decoders.
func New() *Normalizer {
	return &Normalizer{
		decoders: defaultDecoders(),
		fallback: DefaultTier,
	}
}

// Register overrides the prize tier decoder for one lottery code.
func (n *Normalizer) Register(code string, decoder TierDecoder) {
	n.decoders[code] = decoder
}

type rawItem struct {
	Code        text         `json:"code"`
	Date        text         `json:"date"`
	Red         text         `json:"red"`
	Blue        text         `json:"blue"`
	Blue2       text         `json:"blue2"`
	Sales       text         `json:"sales"`
	PoolMoney   text         `json:"poolmoney"`
	PrizeGrades []prizeGrade `json:"prizegrades"`
}

type prizeGrade struct {
	Type      TierCode `json:"type"`
	TypeNum   text     `json:"typenum"`
	TypeMoney text     `json:"typemoney"`
}

// Normalize decodes one raw item for the given lottery code and type id.
func (n *Normalizer) Normalize(code string, typeID int64, raw json.RawMessage) (lottery.DrawResult, error) {
	var item rawItem
	if err := json.Unmarshal(raw, &item); err != nil {
		return lottery.DrawResult{}, fmt.Errorf("%w: decode: %v", ErrMalformed, err)
	}

	issue := strings.TrimSpace(string(item.Code))
	if issue == "" {
		return lottery.DrawResult{}, fmt.Errorf("%w: missing issue", ErrMalformed)
	}
	drawDate, err := ParseDrawDate(string(item.Date))
	if err != nil {
		return lottery.DrawResult{}, fmt.Errorf("%w: issue %s: %v", ErrMalformed, issue, err)
	}
	red, err := splitBalls(code, string(item.Red))
	if err != nil {
		return lottery.DrawResult{}, fmt.Errorf("%w: issue %s: %v", ErrMalformed, issue, err)
	}

	result := lottery.DrawResult{
		TypeID:    typeID,
		Issue:     issue,
		DrawDate:  drawDate,
		RedBalls:  red,
		BlueBalls: blueBalls(code, item),
		Sales:     string(item.Sales),
		PoolMoney: string(item.PoolMoney),
	}
	if err := n.applyPrizes(code, item.PrizeGrades, &result); err != nil {
		return lottery.DrawResult{}, fmt.Errorf("%w: issue %s: %v", ErrMalformed, issue, err)
	}
	return result, nil
}

func (n *Normalizer) decoderFor(code string) TierDecoder {
	if d, ok := n.decoders[code]; ok {
		return d
	}
	return n.fallback
}

func (n *Normalizer) applyPrizes(code string, grades []prizeGrade, result *lottery.DrawResult) error {
	decode := n.decoderFor(code)
	for _, grade := range grades {
		tier := decode(grade.Type)
		if tier == TierNone {
			continue
		}
		count, err := parseCount(string(grade.TypeNum))
		if err != nil {
			return err
		}
		switch tier {
		case TierFirst:
			result.FirstPrizeCount = count
			result.FirstPrizeAmount = string(grade.TypeMoney)
		case TierSecond:
			result.SecondPrizeCount = count
			result.SecondPrizeAmount = string(grade.TypeMoney)
		}
	}
	return nil
}

// ParseDrawDate strips a trailing weekday annotation such as "(四)" and
// parses the remaining calendar date.
func ParseDrawDate(raw string) (time.Time, error) {
	datePart := raw
	if idx := strings.Index(raw, "("); idx >= 0 {
		datePart = raw[:idx]
	}
	datePart = strings.TrimSpace(datePart)
	t, err := time.ParseInLocation(lottery.DateLayout, datePart, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse draw date %q: %w", raw, err)
	}
	return t, nil
}

func splitBalls(code, raw string) ([]string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, errors.New("missing red balls")
	}
	var balls []string
	if code == lottery.Code3D && !strings.Contains(raw, ",") && len(raw) == 3 {
		balls = strings.Split(raw, "")
	} else {
		balls = strings.Split(raw, ",")
	}
	for i, b := range balls {
		b = strings.TrimSpace(b)
		if !isDigits(b) {
			return nil, fmt.Errorf("invalid ball %q", b)
		}
		balls[i] = b
	}
	return balls, nil
}

func blueBalls(code string, item rawItem) string {
	if code == lottery.Code3D {
		return ""
	}
	blue := strings.TrimSpace(string(item.Blue))
	if blue == "" {
		blue = strings.TrimSpace(string(item.Blue2))
	}
	return blue
}

func parseCount(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid prize count %q", raw)
	}
	return n, nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// text decodes JSON strings, numbers and null into a plain string.
type text string

func (t *text) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0 || bytes.Equal(data, []byte("null")):
		*t = ""
	case data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("decode string: %w", err)
		}
		*t = text(s)
	default:
		var num json.Number
		if err := json.Unmarshal(data, &num); err != nil {
			return fmt.Errorf("decode number: %w", err)
		}
		*t = text(num.String())
	}
	return nil
}
