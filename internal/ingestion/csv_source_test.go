package ingestion

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/irfndi/stockcast-go/internal/config"
	"github.com/irfndi/stockcast-go/internal/logging"
	"github.com/irfndi/stockcast-go/internal/utils"
)

const sheet = `S.NO,CODE,ITEM DESCRIPTION,UOM,UNIT PRICE,OPENING STOCK,TYPE,1,2,3,4
1,A1,Hand Sanitizer,BTL,12.50,40,Safety Items,5,,-2,5
2,A2,  Paper Towel ,ROLL,"1,250.00",10,,x,3,0,3
,,Total,,,,,10,3,0,8
nan,,Ghost,,,,,1,1,1,1
`

func TestParseRecords(t *testing.T) {
	records, err := ParseRecords(strings.NewReader(sheet), "Jan")
	require.NoError(t, err)
	require.Len(t, records, 2, "only serial-numbered rows survive")

	first := records[0]
	assert.Equal(t, "Hand Sanitizer", first.ItemName)
	assert.Equal(t, "BTL", first.UOM)
	assert.Equal(t, 12.5, first.Price)
	assert.Equal(t, 40.0, first.OpeningStock)
	assert.Equal(t, "Safety Items", first.Category)
	assert.Equal(t, "Jan", first.Period)
	assert.Equal(t, []float64{5, 0, 0, 5}, first.DailyWithdrawals, "blank and negative cells become 0")

	second := records[1]
	assert.Equal(t, "Paper Towel", second.ItemName)
	assert.Equal(t, 1250.0, second.Price)
	assert.Equal(t, "Unknown", second.Category)
	assert.Equal(t, []float64{0, 3, 0, 3}, second.DailyWithdrawals)
}

func TestParseRecords_HeaderVariants(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		check  func(t *testing.T, l columnLayout)
		noDays bool
	}{
		{
			name:  "item falls back to third column",
			input: "No,Code,Name,Unit\n1,X,Soap,PCS\n",
			check: func(t *testing.T, l columnLayout) {
				assert.Equal(t, 2, l.item)
				assert.Equal(t, 3, l.uom, "short fourth header is the unit")
			},
			noDays: true,
		},
		{
			name:  "consumable marks the category",
			input: "SN,ITEM,CONSUMABLE/NON,UOM,PRICE\n1,Tape,Office,PCS,2\n",
			check: func(t *testing.T, l columnLayout) {
				assert.Equal(t, 1, l.item)
				assert.Equal(t, 2, l.category)
				assert.Equal(t, 3, l.uom)
				assert.Equal(t, 4, l.price)
			},
			noDays: true,
		},
		{
			name:  "out of range day headers ignored",
			input: "SN,ITEM,0,2,32\n1,Tape,9,4,9\n",
			check: func(t *testing.T, l columnLayout) {
				assert.Equal(t, 2, l.maxDay)
				assert.Len(t, l.days, 1)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			header := strings.SplitN(tt.input, "\n", 2)[0]
			tt.check(t, sniffColumns(strings.Split(header, ",")))

			records, err := ParseRecords(strings.NewReader(tt.input), "Feb")
			require.NoError(t, err)
			require.Len(t, records, 1)
			assert.Equal(t, tt.noDays, records[0].DailyWithdrawals == nil)
		})
	}
}

func TestParseRecords_NoSerialNumbers(t *testing.T) {
	input := "ITEM,UOM,1,2\nGloves,BOX,1,0\n,BOX,2,2\nMask,PCS,0,4\n"
	records, err := ParseRecords(strings.NewReader(input), "Mar")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "Gloves", records[0].ItemName)
	assert.Equal(t, "Mask", records[1].ItemName)
}

func TestParseRecords_Empty(t *testing.T) {
	records, err := ParseRecords(strings.NewReader(""), "Apr")
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestMatchPeriodFile(t *testing.T) {
	files := []string{"/in/April 2025.csv", "/in/apr.csv", "/in/Mar.csv", "/in/notes.csv"}

	tests := []struct {
		label string
		want  string
		ok    bool
	}{
		{"Apr", "/in/apr.csv", true},
		{" MAR ", "/in/Mar.csv", true},
		{"April", "/in/April 2025.csv", true},
		{"May", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			got, ok := MatchPeriodFile(tt.label, files)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600))
}

func TestCSVSource_LoadPeriods(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "Jan.csv", sheet)
	writeFile(t, dir, "feb.csv", sheet)
	writeFile(t, dir, "Mar.csv", "S.NO,ITEM,1\n")
	writeFile(t, dir, "readme.txt", "ignored")

	src := NewCSVSource(config.IngestionConfig{InputDir: dir}, logging.NewDiscardLogger())
	data, err := src.LoadPeriods(context.Background(), []string{"Jan", "Feb", "Mar", "Apr"})
	require.NoError(t, err)

	assert.Len(t, data, 2)
	assert.Len(t, data["Jan"], 2)
	assert.Equal(t, "Feb", data["Feb"][0].Period)
	assert.NotContains(t, data, "Mar", "no usable rows")
	assert.NotContains(t, data, "Apr")
}

func TestCSVSource_MissingInput(t *testing.T) {
	src := NewCSVSource(config.IngestionConfig{InputDir: t.TempDir()}, logging.NewDiscardLogger())
	_, err := src.LoadPeriods(context.Background(), []string{"Jan"})

	var missing *utils.MissingInputError
	require.True(t, errors.As(err, &missing))
}

func TestCSVSource_Cancelled(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "Jan.csv", sheet)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewCSVSource(config.IngestionConfig{InputDir: dir}, logging.NewDiscardLogger()).LoadPeriods(ctx, []string{"Jan"})
	assert.ErrorIs(t, err, context.Canceled)
}
