package export

import (
	"encoding/csv"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sketchxpress/curvetrack/internal/history"
)

func price(v uint64) *uint64 { return &v }

func ts(v int64) *int64 { return &v }

func generateTestEntries() []history.Entry {
	return []history.Entry{
		{
			Signature:       "sig-mint-1",
			Timestamp:       ts(1_700_000_000),
			InstructionName: "mint_nft",
			PoolAddress:     "PooLAddr1111111111111111111111111111111111",
			Price:           price(1_000_000),
		},
		{
			Signature:       "sig-mint-2",
			Timestamp:       ts(1_700_000_100),
			InstructionName: "mint_nft",
			PoolAddress:     "PooLAddr1111111111111111111111111111111111",
			Price:           price(1_200_000),
		},
		{
			Signature:       "sig-sell-1",
			Timestamp:       ts(1_700_000_200),
			InstructionName: "sell_nft",
			PoolAddress:     "PooLAddr1111111111111111111111111111111111",
			Price:           price(1_140_000),
		},
		{
			Signature:       "sig-unknown",
			Timestamp:       ts(1_700_000_300),
			InstructionName: history.InstructionUnknown,
		},
		{
			Signature:       "live-abc",
			Timestamp:       nil,
			InstructionName: "mint_nft",
			Price:           price(1_440_000),
			Synthesized:     true,
		},
	}
}

func TestExportCSV(t *testing.T) {
	exporter := NewHistoryExporter(zap.NewNop())

	outputPath, err := exporter.ExportEntries(generateTestEntries(), ExportOptions{
		Format:    FormatCSV,
		OutputDir: t.TempDir(),
	})
	require.NoError(t, err)

	file, err := os.Open(outputPath)
	require.NoError(t, err)
	defer file.Close()

	rows, err := csv.NewReader(file).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 6, "header plus five entries")
	assert.Equal(t, CSVHeaders(), rows[0])

	// Nil-timestamp entries sort first (oldest-unknown), then by time.
	assert.Equal(t, "live-abc", rows[1][0])
	assert.Equal(t, "sig-mint-1", rows[2][0])

	// Lamports and the SOL conversion column.
	assert.Equal(t, "1000000", rows[2][4])
	assert.Equal(t, "0.001", rows[2][5])

	// Unpriced entries leave the price columns empty.
	assert.Equal(t, "", rows[5][4])
}

func TestExportJSONSummary(t *testing.T) {
	exporter := NewHistoryExporter(zap.NewNop())

	outputPath, err := exporter.ExportEntries(generateTestEntries(), ExportOptions{
		Format:    FormatJSON,
		OutputDir: t.TempDir(),
	})
	require.NoError(t, err)

	raw, err := os.ReadFile(outputPath)
	require.NoError(t, err)

	var report struct {
		EntryCount int             `json:"entry_count"`
		Entries    []history.Entry `json:"entries"`
		Summary    ExportSummary   `json:"summary"`
	}
	require.NoError(t, json.Unmarshal(raw, &report))

	assert.Equal(t, 5, report.EntryCount)
	assert.Equal(t, 3, report.Summary.MintCount)
	assert.Equal(t, 1, report.Summary.SellCount)
	assert.Equal(t, 1, report.Summary.UnknownCount)
	assert.Equal(t, 4, report.Summary.PricedEntries)
	assert.Equal(t, 1, report.Summary.SynthesizedEntries)
	assert.Equal(t, "0.00364", report.Summary.MintVolumeSOL)
	assert.Equal(t, "0.00114", report.Summary.SellVolumeSOL)
}

func TestExportFilters(t *testing.T) {
	exporter := NewHistoryExporter(zap.NewNop())
	tempDir := t.TempDir()

	t.Run("instruction filter", func(t *testing.T) {
		outputPath, err := exporter.ExportEntries(generateTestEntries(), ExportOptions{
			Format:            FormatCSV,
			OutputDir:         tempDir,
			InstructionFilter: "sell_nft",
		})
		require.NoError(t, err)

		file, err := os.Open(outputPath)
		require.NoError(t, err)
		defer file.Close()

		rows, err := csv.NewReader(file).ReadAll()
		require.NoError(t, err)
		require.Len(t, rows, 2)
		assert.Equal(t, "sig-sell-1", rows[1][0])
	})

	t.Run("only priced", func(t *testing.T) {
		outputPath, err := exporter.ExportEntries(generateTestEntries(), ExportOptions{
			Format:     FormatCSV,
			OutputDir:  tempDir,
			OnlyPriced: true,
		})
		require.NoError(t, err)

		file, err := os.Open(outputPath)
		require.NoError(t, err)
		defer file.Close()

		rows, err := csv.NewReader(file).ReadAll()
		require.NoError(t, err)
		assert.Len(t, rows, 5)
	})

	t.Run("skip synthesized", func(t *testing.T) {
		outputPath, err := exporter.ExportEntries(generateTestEntries(), ExportOptions{
			Format:          FormatJSON,
			OutputDir:       tempDir,
			SkipSynthesized: true,
		})
		require.NoError(t, err)

		raw, err := os.ReadFile(outputPath)
		require.NoError(t, err)

		var report struct {
			EntryCount int `json:"entry_count"`
		}
		require.NoError(t, json.Unmarshal(raw, &report))
		assert.Equal(t, 4, report.EntryCount)
	})

	t.Run("time range", func(t *testing.T) {
		outputPath, err := exporter.ExportEntries(generateTestEntries(), ExportOptions{
			Format:    FormatCSV,
			OutputDir: tempDir,
			StartTime: time.Unix(1_700_000_100, 0),
			EndTime:   time.Unix(1_700_000_200, 0),
		})
		require.NoError(t, err)

		file, err := os.Open(outputPath)
		require.NoError(t, err)
		defer file.Close()

		rows, err := csv.NewReader(file).ReadAll()
		require.NoError(t, err)
		assert.Len(t, rows, 3)
	})

	t.Run("nothing matches", func(t *testing.T) {
		_, err := exporter.ExportEntries(generateTestEntries(), ExportOptions{
			Format:            FormatCSV,
			OutputDir:         tempDir,
			InstructionFilter: "migrate_to_tensor",
		})
		assert.Error(t, err)
	})
}
