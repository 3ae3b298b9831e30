package normalize

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/lottery-crawler/internal/lottery"
)

func TestNormalizeSSQItem(t *testing.T) {
	t.Parallel()

	raw := json.RawMessage(`{"name":"双色球","code":"2025140","date":"2025-12-04(四)",
		"red":"01,03,04,12,18,24","blue":"05","blue2":"","sales":"362437084","poolmoney":"2690606470",
		"prizegrades":[{"type":1,"typenum":"4","typemoney":"9980899"},{"type":2,"typenum":"126","typemoney":"197654"}]}`)

	got, err := New().Normalize(lottery.CodeSSQ, 1, raw)
	require.NoError(t, err)
	require.Equal(t, int64(1), got.TypeID)
	require.Equal(t, "2025140", got.Issue)
	require.Equal(t, "2025-12-04", got.DrawDate.Format(lottery.DateLayout))
	require.Equal(t, []string{"01", "03", "04", "12", "18", "24"}, got.RedBalls)
	require.Equal(t, "05", got.BlueBalls)
	require.Equal(t, "362437084", got.Sales)
	require.Equal(t, "2690606470", got.PoolMoney)
	require.Equal(t, 4, got.FirstPrizeCount)
	require.Equal(t, "9980899", got.FirstPrizeAmount)
	require.Equal(t, 126, got.SecondPrizeCount)
	require.Equal(t, "197654", got.SecondPrizeAmount)
}

func TestNormalize3DDigits(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		red  string
	}{
		{name: "comma separated", red: "6,6,1"},
		{name: "packed digits", red: "661"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			raw := json.RawMessage(`{"code":"2025324","date":"2025-12-04(四)","red":"` + tt.red +
				`","blue":"9","prizegrades":[{"type":"单选","typenum":"1234","typemoney":"1040"},` +
				`{"type":"组选3","typenum":"","typemoney":"346"}]}`)
			got, err := New().Normalize(lottery.Code3D, 4, raw)
			require.NoError(t, err)
			require.Equal(t, []string{"6", "6", "1"}, got.RedBalls)
			require.Empty(t, got.BlueBalls)
			require.Equal(t, 1234, got.FirstPrizeCount)
			require.Equal(t, "1040", got.FirstPrizeAmount)
			require.Equal(t, 0, got.SecondPrizeCount)
			require.Equal(t, "346", got.SecondPrizeAmount)
		})
	}
}

func TestNormalizeLabelTiers(t *testing.T) {
	t.Parallel()

	raw := json.RawMessage(`{"code":"2025324","date":"2025-12-04","red":"09,13,20","blue":"",
		"prizegrades":[{"type":"x1z1","typenum":"3","typemoney":"5"},{"type":"x10z9","typenum":"64","typemoney":"8000.00"},
		{"type":"二等奖","typenum":"7","typemoney":"12809"}]}`)

	got, err := New().Normalize(lottery.CodeKL8, 2, raw)
	require.NoError(t, err)
	require.Equal(t, "2025-12-04", got.DrawDate.Format(lottery.DateLayout))
	require.Empty(t, got.BlueBalls)
	require.Equal(t, 3, got.FirstPrizeCount)
	require.Equal(t, 7, got.SecondPrizeCount)
	require.Equal(t, "12809", got.SecondPrizeAmount)
}

func TestNormalizeBlueFallsBackToBlue2(t *testing.T) {
	t.Parallel()

	raw := json.RawMessage(`{"code":"1","date":"2025-01-01","red":"01","blue":"","blue2":"08","sales":12345}`)
	got, err := New().Normalize(lottery.CodeQLC, 3, raw)
	require.NoError(t, err)
	require.Equal(t, "08", got.BlueBalls)
	require.Equal(t, "12345", got.Sales)
}

func TestNormalizeMalformed(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  string
	}{
		{name: "not json", raw: `{"code":`},
		{name: "missing issue", raw: `{"date":"2025-01-01","red":"01"}`},
		{name: "bad date", raw: `{"code":"1","date":"yesterday","red":"01"}`},
		{name: "missing red", raw: `{"code":"1","date":"2025-01-01","red":""}`},
		{name: "non numeric ball", raw: `{"code":"1","date":"2025-01-01","red":"01,xx"}`},
		{name: "bad prize count", raw: `{"code":"1","date":"2025-01-01","red":"01","prizegrades":[{"type":1,"typenum":"many"}]}`},
		{name: "bad tier", raw: `{"code":"1","date":"2025-01-01","red":"01","prizegrades":[{"type":{}}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := New().Normalize(lottery.CodeSSQ, 1, json.RawMessage(tt.raw))
			require.Error(t, err)
			require.True(t, errors.Is(err, ErrMalformed), "expected ErrMalformed, got %v", err)
		})
	}
}

func TestParseDrawDate(t *testing.T) {
	t.Parallel()

	want := time.Date(2025, 12, 4, 0, 0, 0, 0, time.UTC)
	for _, in := range []string{"2025-12-04(四)", "2025-12-04", " 2025-12-04 (Thu)"} {
		got, err := ParseDrawDate(in)
		require.NoError(t, err, in)
		require.True(t, want.Equal(got), "%q parsed to %v", in, got)
	}
}

func TestRegisterOverridesDecoder(t *testing.T) {
	t.Parallel()

	n := New()
	n.Register(lottery.CodeKL8, func(code TierCode) Tier {
		if code.Label == "x10z10" {
			return TierFirst
		}
		return TierNone
	})
	raw := json.RawMessage(`{"code":"1","date":"2025-01-01","red":"01",
		"prizegrades":[{"type":"x10z10","typenum":"2","typemoney":"5000000"}]}`)
	got, err := n.Normalize(lottery.CodeKL8, 2, raw)
	require.NoError(t, err)
	require.Equal(t, 2, got.FirstPrizeCount)
	require.Equal(t, "5000000", got.FirstPrizeAmount)
}
