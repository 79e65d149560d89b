package export

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/tealeg/xlsx"

	"github.com/openacoustics/audiomoth-configurator/internal/models"
	"github.com/openacoustics/audiomoth-configurator/pkg/audiomoth"
)

// SheetName is the worksheet holding the deployment log
const SheetName = "Deployments"

const timeLayout = "2006-01-02 15:04:05"

var columns = []string{
	"Configured (UTC)",
	"Device ID",
	"Firmware",
	"Description",
	"Layout",
	"State",
	"Sample Rate (kHz)",
	"Gains",
	"Record (s)",
	"Sleep (s)",
	"Recording Periods",
	"Operator",
	"Error",
}

func headerStyle() *xlsx.Style {
	style := xlsx.NewStyle()
	style.Font.Bold = true
	style.ApplyFont = true
	return style
}

func failedStyle() *xlsx.Style {
	style := xlsx.NewStyle()
	style.Fill = *xlsx.NewFill("solid", "FFC7CE", "00000000")
	style.ApplyFill = true
	return style
}

// WriteConfigurationLog writes logs as a single sheet workbook to w
func WriteConfigurationLog(w io.Writer, logs []*models.ConfigurationLog) error {
	file := xlsx.NewFile()
	sheet, err := file.AddSheet(SheetName)
	if err != nil {
		return fmt.Errorf("add sheet: %w", err)
	}

	row := sheet.AddRow()
	bold := headerStyle()
	for _, name := range columns {
		cell := row.AddCell()
		cell.SetString(name)
		cell.SetStyle(bold)
	}

	red := failedStyle()
	for _, entry := range logs {
		addLogRow(sheet, entry, red)
	}

	if err := sheet.SetColWidth(0, len(columns)-1, 18); err != nil {
		return fmt.Errorf("set column width: %w", err)
	}

	if err := file.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func addLogRow(sheet *xlsx.Sheet, entry *models.ConfigurationLog, failed *xlsx.Style) {
	var s audiomoth.Settings
	decoded := len(entry.Settings) > 0 && entry.Settings.Decode(&s) == nil

	values := []string{
		formatTime(entry.SentAt, entry.CreatedAt),
		entry.DeviceID,
		entry.FirmwareVersion,
		entry.FirmwareDescription,
		entry.Layout,
		entry.State,
		"", "", "", "", "",
		entry.Operator,
		entry.Error,
	}
	if decoded {
		values[6] = sampleRate(s.SampleRateIndex)
		values[7] = fmt.Sprintf("%d/%d/%d", s.Gain1, s.Gain2, s.Gain3)
		values[8] = fmt.Sprintf("%d/%d/%d", s.RecordDurationGain1, s.RecordDurationGain2, s.RecordDurationGain3)
		values[9] = fmt.Sprintf("%d", s.SleepDuration)
		values[10] = periods(s.TimePeriods)
	}

	row := sheet.AddRow()
	for _, v := range values {
		cell := row.AddCell()
		cell.SetString(v)
		if !entry.Succeeded() {
			cell.SetStyle(failed)
		}
	}
}

func formatTime(sent, created time.Time) string {
	if sent.IsZero() {
		sent = created
	}
	return sent.UTC().Format(timeLayout)
}

func sampleRate(index int) string {
	if index < 0 || index >= len(audiomoth.Configurations) {
		return ""
	}
	return fmt.Sprintf("%g", audiomoth.Configurations[index].TrueSampleRate)
}

func periods(ps []audiomoth.TimePeriod) string {
	if len(ps) == 0 {
		return "all day"
	}
	out := make([]string, 0, len(ps))
	for _, p := range audiomoth.SortPeriods(ps) {
		out = append(out, p.String())
	}
	return strings.Join(out, ", ")
}
