package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/sketchxpress/curvetrack/internal/history"
)

// ExportFormat represents the export file format
type ExportFormat string

const (
	FormatCSV  ExportFormat = "csv"
	FormatJSON ExportFormat = "json"
)

// lamportsPerSOL converts inferred lamport prices to SOL columns.
var lamportsPerSOL = decimal.NewFromInt(1_000_000_000)

// ExportOptions configures the export behavior
type ExportOptions struct {
	Format            ExportFormat
	StartTime         time.Time
	EndTime           time.Time
	InstructionFilter string // filter by decoded instruction name
	PoolFilter        string // filter by pool address
	OnlyPriced        bool   // only export entries with an inferred price
	SkipSynthesized   bool   // drop live placeholder entries
	OutputDir         string
}

// HistoryExporter writes reconstructed history entries to disk.
type HistoryExporter struct {
	logger *zap.Logger
}

func NewHistoryExporter(logger *zap.Logger) *HistoryExporter {
	return &HistoryExporter{
		logger: logger,
	}
}

// ExportEntries exports history entries based on the provided options.
func (he *HistoryExporter) ExportEntries(entries []history.Entry, options ExportOptions) (string, error) {
	filtered := he.filterEntries(entries, options)

	if len(filtered) == 0 {
		return "", fmt.Errorf("no entries match the export criteria")
	}

	// Oldest first reads naturally in a report.
	sort.SliceStable(filtered, func(i, j int) bool {
		return entryTime(filtered[i]) < entryTime(filtered[j])
	})

	filename := he.generateFilename(options)
	outputPath := filepath.Join(options.OutputDir, filename)

	if err := os.MkdirAll(options.OutputDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	var err error
	switch options.Format {
	case FormatCSV:
		err = he.exportToCSV(filtered, outputPath)
	case FormatJSON:
		err = he.exportToJSON(filtered, outputPath)
	default:
		err = fmt.Errorf("unsupported format: %s", options.Format)
	}

	if err != nil {
		return "", err
	}

	he.logger.Info("History exported",
		zap.String("file", outputPath),
		zap.Int("count", len(filtered)),
		zap.String("format", string(options.Format)))

	return outputPath, nil
}

func entryTime(e history.Entry) int64 {
	if e.Timestamp == nil {
		return 0
	}
	return *e.Timestamp
}

// filterEntries applies filters to the entry list
func (he *HistoryExporter) filterEntries(entries []history.Entry, options ExportOptions) []history.Entry {
	var filtered []history.Entry

	for _, entry := range entries {
		if !options.StartTime.IsZero() && entryTime(entry) < options.StartTime.Unix() {
			continue
		}
		if !options.EndTime.IsZero() && entryTime(entry) > options.EndTime.Unix() {
			continue
		}
		if options.InstructionFilter != "" && entry.InstructionName != options.InstructionFilter {
			continue
		}
		if options.PoolFilter != "" && entry.PoolAddress != options.PoolFilter {
			continue
		}
		if options.OnlyPriced && entry.Price == nil {
			continue
		}
		if options.SkipSynthesized && entry.Synthesized {
			continue
		}

		filtered = append(filtered, entry)
	}

	return filtered
}

// generateFilename creates a filename based on export options
func (he *HistoryExporter) generateFilename(options ExportOptions) string {
	timestamp := time.Now().Format("20060102_150405")

	prefix := "history_all"
	if options.InstructionFilter != "" {
		prefix = fmt.Sprintf("history_%s", options.InstructionFilter)
	}
	if options.PoolFilter != "" && len(options.PoolFilter) >= 8 {
		prefix += "_" + options.PoolFilter[:8]
	}

	return fmt.Sprintf("%s_%s.%s", prefix, timestamp, options.Format)
}

// CSVHeaders returns the column order used by exportToCSV.
func CSVHeaders() []string {
	return []string{
		"signature", "timestamp", "instruction", "pool",
		"price_lamports", "price_sol", "failed", "synthesized",
	}
}

func entryToCSV(e history.Entry) []string {
	timestamp := ""
	if e.Timestamp != nil {
		timestamp = time.Unix(*e.Timestamp, 0).UTC().Format(time.RFC3339)
	}

	priceLamports, priceSOL := "", ""
	if e.Price != nil {
		priceLamports = strconv.FormatUint(*e.Price, 10)
		priceSOL = decimal.NewFromUint64(*e.Price).Div(lamportsPerSOL).String()
	}

	return []string{
		e.Signature,
		timestamp,
		e.InstructionName,
		e.PoolAddress,
		priceLamports,
		priceSOL,
		strconv.FormatBool(e.TxError != nil),
		strconv.FormatBool(e.Synthesized),
	}
}

// exportToCSV exports entries to CSV format
func (he *HistoryExporter) exportToCSV(entries []history.Entry, outputPath string) error {
	file, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	if err := writer.Write(CSVHeaders()); err != nil {
		return fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, entry := range entries {
		if err := writer.Write(entryToCSV(entry)); err != nil {
			return fmt.Errorf("failed to write entry: %w", err)
		}
	}

	return nil
}

// exportToJSON exports entries to JSON format
func (he *HistoryExporter) exportToJSON(entries []history.Entry, outputPath string) error {
	file, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create JSON file: %w", err)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")

	exportData := struct {
		ExportTime time.Time       `json:"export_time"`
		EntryCount int             `json:"entry_count"`
		Entries    []history.Entry `json:"entries"`
		Summary    ExportSummary   `json:"summary"`
	}{
		ExportTime: time.Now(),
		EntryCount: len(entries),
		Entries:    entries,
		Summary:    he.calculateSummary(entries),
	}

	if err := encoder.Encode(exportData); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}

	return nil
}

// calculateSummary calculates summary statistics for the export
func (he *HistoryExporter) calculateSummary(entries []history.Entry) ExportSummary {
	summary := ExportSummary{
		TotalEntries: len(entries),
	}

	if len(entries) == 0 {
		return summary
	}

	mintVolume := decimal.Zero
	sellVolume := decimal.Zero

	for _, entry := range entries {
		if entry.TxError != nil {
			summary.FailedEntries++
		}
		if entry.Price != nil {
			summary.PricedEntries++
		}
		if entry.Synthesized {
			summary.SynthesizedEntries++
		}

		switch entry.InstructionName {
		case "mint_nft", "buy_nft", "place_bid":
			summary.MintCount++
			if entry.Price != nil {
				mintVolume = mintVolume.Add(decimal.NewFromUint64(*entry.Price))
			}
		case "sell_nft", "accept_bid":
			summary.SellCount++
			if entry.Price != nil {
				sellVolume = sellVolume.Add(decimal.NewFromUint64(*entry.Price))
			}
		case history.InstructionUnknown:
			summary.UnknownCount++
		}
	}

	summary.MintVolumeSOL = mintVolume.Div(lamportsPerSOL).String()
	summary.SellVolumeSOL = sellVolume.Div(lamportsPerSOL).String()
	summary.TotalVolumeSOL = mintVolume.Add(sellVolume).Div(lamportsPerSOL).String()

	if first := entries[0].Timestamp; first != nil {
		summary.StartDate = time.Unix(*first, 0).UTC()
	}
	if last := entries[len(entries)-1].Timestamp; last != nil {
		summary.EndDate = time.Unix(*last, 0).UTC()
	}

	return summary
}

// ExportSummary contains summary statistics for exported entries
type ExportSummary struct {
	TotalEntries       int       `json:"total_entries"`
	PricedEntries      int       `json:"priced_entries"`
	FailedEntries      int       `json:"failed_entries"`
	SynthesizedEntries int       `json:"synthesized_entries"`
	MintCount          int       `json:"mint_count"`
	SellCount          int       `json:"sell_count"`
	UnknownCount       int       `json:"unknown_count"`
	MintVolumeSOL      string    `json:"mint_volume_sol"`
	SellVolumeSOL      string    `json:"sell_volume_sol"`
	TotalVolumeSOL     string    `json:"total_volume_sol"`
	StartDate          time.Time `json:"start_date"`
	EndDate            time.Time `json:"end_date"`
}
