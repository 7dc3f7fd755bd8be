package service

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/Aidin1998/watchlist_screening/internal/screening/models"
)

// Export formats
const (
	FormatJSON = "json"
	FormatCSV  = "csv"
)

// ErrUnsupportedFormat is returned for an unknown export format
var ErrUnsupportedFormat = errors.New("unsupported export format")

// CSVHeader is the column layout of the CSV export, one row per match
var CSVHeader = []string{
	"requestId",
	"subjectName",
	"provider",
	"matchLevel",
	"confidenceScore",
	"requiresManualReview",
	"decision",
}

// ResultRecord is a result as exported in JSON, with its matches and subject
type ResultRecord struct {
	SubjectName string `json:"subject_name"`
	*models.ScreeningResult
}

// ExportResults writes every stored result to w in the given format
func (s *Service) ExportResults(ctx context.Context, format string, w io.Writer) error {
	if format != FormatJSON && format != FormatCSV {
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}

	records, err := s.exportRecords(ctx)
	if err != nil {
		return err
	}

	if format == FormatJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(records)
	}
	return writeCSV(w, records)
}

func (s *Service) exportRecords(ctx context.Context) ([]ResultRecord, error) {
	results, err := s.store.ListResults(ctx)
	if err != nil {
		return nil, err
	}

	records := make([]ResultRecord, 0, len(results))
	for _, result := range results {
		matches, err := s.store.ListMatchesByRequest(ctx, result.RequestID)
		if err != nil {
			return nil, err
		}
		result.Matches = matches

		record := ResultRecord{ScreeningResult: result}
		if request, err := s.store.GetRequest(ctx, result.RequestID); err == nil {
			record.SubjectName = request.Subject.Name
		} else if !errors.Is(err, models.ErrNotFound) {
			return nil, err
		}
		records = append(records, record)
	}
	return records, nil
}

func writeCSV(w io.Writer, records []ResultRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader); err != nil {
		return err
	}
	for _, record := range records {
		for _, m := range record.Matches {
			decision := ""
			if m.Disposition != nil {
				decision = string(m.Disposition.Decision)
			}
			row := []string{
				record.RequestID,
				record.SubjectName,
				m.SourceProvider,
				string(m.MatchLevel),
				strconv.FormatFloat(m.ConfidenceScore, 'f', 4, 64),
				strconv.FormatBool(m.RequiresManualReview),
				decision,
			}
			if err := cw.Write(row); err != nil {
				return err
			}
		}
	}
	cw.Flush()
	return cw.Error()
}
