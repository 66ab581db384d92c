// Package sheet reads bank exports into raw rows keyed by column label.
// CSV exports keep their header labels; CAMT.053 statements are flattened to
// one row per entry keyed by element name.
package sheet

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gocarina/gocsv"

	"fjacquet/ledger-sync/internal/normalizer"
	"fjacquet/ledger-sync/internal/xmlutils"
)

// Format identifies an export layout.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatCAMT Format = "camt"
)

// Row keys produced for CAMT.053 entries.
const (
	KeyAcctSvcrRef  = "AcctSvcrRef"
	KeyBookingDate  = "BookgDt"
	KeyValueDate    = "ValDt"
	KeyCdtDbtInd    = "CdtDbtInd"
	KeyAmount       = "Amt"
	KeyCurrency     = "Ccy"
	KeyStatus       = "Sts"
	KeyUstrd        = "Ustrd"
	KeyAddtlNtryInf = "AddtlNtryInf"
	KeyAddtlTxInf   = "AddtlTxInf"
	KeyDebtorName   = "DbtrNm"
	KeyCreditorName = "CdtrNm"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// ParseFormat accepts "csv", "camt" or "xml".
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "csv":
		return FormatCSV, nil
	case "camt", "camt053", "xml":
		return FormatCAMT, nil
	}
	return "", fmt.Errorf("unsupported input format %q", s)
}

// DetectFormat guesses the format from the file extension.
func DetectFormat(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".xml") {
		return FormatCAMT
	}
	return FormatCSV
}

// ReadFile reads path in the given format. An empty format is detected from
// the extension.
func ReadFile(path string, format Format) ([]normalizer.RawRow, error) {
	if format == "" {
		format = DetectFormat(path)
	}
	file, err := os.Open(path) // #nosec G304 -- path is the user's input file
	if err != nil {
		return nil, fmt.Errorf("error opening input file: %w", err)
	}
	defer func() { _ = file.Close() }()

	switch format {
	case FormatCSV:
		return ReadCSV(file)
	case FormatCAMT:
		return ReadCAMT(file)
	}
	return nil, fmt.Errorf("unsupported input format %q", format)
}

// ReadCSV reads a header row followed by data rows. Header labels are trimmed
// and a leading byte-order mark is dropped.
func ReadCSV(r io.Reader) ([]normalizer.RawRow, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("error reading CSV: %w", err)
	}
	data = bytes.TrimPrefix(data, utf8BOM)
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}

	records, err := gocsv.CSVToMaps(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("error parsing CSV: %w", err)
	}

	rows := make([]normalizer.RawRow, 0, len(records))
	for _, record := range records {
		row := make(normalizer.RawRow, len(record))
		blank := true
		for label, value := range record {
			row[strings.TrimSpace(label)] = value
			if strings.TrimSpace(value) != "" {
				blank = false
			}
		}
		if !blank {
			rows = append(rows, row)
		}
	}
	return rows, nil
}

// ReadCAMT flattens every Ntry of a CAMT.053 statement into a row.
func ReadCAMT(r io.Reader) ([]normalizer.RawRow, error) {
	root, err := xmlutils.Parse(r)
	if err != nil {
		return nil, err
	}

	entries := xmlutils.Nodes(root, xmlutils.XPathEntry)
	rows := make([]normalizer.RawRow, 0, len(entries))
	for _, entry := range entries {
		rows = append(rows, normalizer.RawRow{
			KeyAcctSvcrRef:  xmlutils.FirstOf(entry, xmlutils.XPathAccountSvcRef, xmlutils.XPathTxAccountSvcRef, xmlutils.XPathEntryRef),
			KeyBookingDate:  bookingDate(xmlutils.FirstOf(entry, xmlutils.XPathBookingDate, xmlutils.XPathBookingDateTm)),
			KeyValueDate:    xmlutils.Value(entry, xmlutils.XPathValueDate),
			KeyCdtDbtInd:    xmlutils.Value(entry, xmlutils.XPathCreditDebitInd),
			KeyAmount:       xmlutils.Value(entry, xmlutils.XPathAmount),
			KeyCurrency:     xmlutils.Value(entry, xmlutils.XPathCurrency),
			KeyStatus:       xmlutils.FirstOf(entry, xmlutils.XPathStatusCode, xmlutils.XPathStatus),
			KeyUstrd:        strings.Join(xmlutils.Values(entry, xmlutils.XPathRemittanceInfo), " "),
			KeyAddtlNtryInf: xmlutils.Value(entry, xmlutils.XPathAddEntryInfo),
			KeyAddtlTxInf:   xmlutils.Value(entry, xmlutils.XPathAddTxInfo),
			KeyDebtorName:   xmlutils.Value(entry, xmlutils.XPathDebtorName),
			KeyCreditorName: xmlutils.Value(entry, xmlutils.XPathCreditorName),
		})
	}
	return rows, nil
}

// bookingDate keeps the calendar day of a DtTm value.
func bookingDate(s string) string {
	if len(s) > len("2006-01-02") && s[10] == 'T' {
		return s[:10]
	}
	return s
}
