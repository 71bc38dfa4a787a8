// Package ingest loads raw feedback from CSV files and normalizes it into
// model.FeedbackRecord values. Malformed rows are skipped and logged, never
// fatal: one bad review must not sink the run.
package ingest

import (
	"encoding/csv"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"

	"github.com/triagehq/triage-cli/internal/model"
)

// reviewRow mirrors one row of app_store_reviews.csv.
type reviewRow struct {
	ReviewID   string `csv:"review_id"`
	ReviewText string `csv:"review_text"`
	Platform   string `csv:"platform"`
	Rating     string `csv:"rating"`
	AppVersion string `csv:"app_version"`
	UserName   string `csv:"user_name"`
	Date       string `csv:"date"`
}

// emailRow mirrors one row of support_emails.csv.
type emailRow struct {
	EmailID     string `csv:"email_id"`
	Subject     string `csv:"subject"`
	Body        string `csv:"body"`
	SenderEmail string `csv:"sender_email"`
	Timestamp   string `csv:"timestamp"`
	Priority    string `csv:"priority"`
}

// LoadReviews reads app-store reviews from path. A missing file is not an
// error: it returns an empty slice so the run can proceed on emails alone.
func LoadReviews(path string) ([]model.FeedbackRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			zap.L().Warn("reviews file not found", zap.String("path", path))
			return nil, nil
		}
		return nil, eris.Wrapf(err, "ingest: open %s", path)
	}
	defer f.Close()

	dec, err := newDecoder(f)
	if err != nil {
		if err == errEmptyFile {
			zap.L().Warn("reviews file is empty", zap.String("path", path))
			return nil, nil
		}
		return nil, eris.Wrapf(err, "ingest: decode %s", path)
	}

	var records []model.FeedbackRecord
	skipped := 0
	for {
		var row reviewRow
		if err := dec.Decode(&row); err == io.EOF {
			break
		} else if err != nil {
			skipped++
			zap.L().Warn("skipping malformed review row", zap.Error(err))
			continue
		}

		rec, err := reviewToRecord(row)
		if err != nil {
			skipped++
			zap.L().Warn("skipping invalid review",
				zap.String("review_id", row.ReviewID),
				zap.Error(err),
			)
			continue
		}
		records = append(records, rec)
	}

	zap.L().Info("loaded reviews",
		zap.String("path", path),
		zap.Int("loaded", len(records)),
		zap.Int("skipped", skipped),
	)
	return records, nil
}

// LoadEmails reads support emails from path. A missing file returns an
// empty slice.
func LoadEmails(path string) ([]model.FeedbackRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			zap.L().Warn("emails file not found", zap.String("path", path))
			return nil, nil
		}
		return nil, eris.Wrapf(err, "ingest: open %s", path)
	}
	defer f.Close()

	dec, err := newDecoder(f)
	if err != nil {
		if err == errEmptyFile {
			zap.L().Warn("emails file is empty", zap.String("path", path))
			return nil, nil
		}
		return nil, eris.Wrapf(err, "ingest: decode %s", path)
	}

	var records []model.FeedbackRecord
	skipped := 0
	for {
		var row emailRow
		if err := dec.Decode(&row); err == io.EOF {
			break
		} else if err != nil {
			skipped++
			zap.L().Warn("skipping malformed email row", zap.Error(err))
			continue
		}

		rec, err := emailToRecord(row)
		if err != nil {
			skipped++
			zap.L().Warn("skipping invalid email",
				zap.String("email_id", row.EmailID),
				zap.Error(err),
			)
			continue
		}
		records = append(records, rec)
	}

	zap.L().Info("loaded emails",
		zap.String("path", path),
		zap.Int("loaded", len(records)),
		zap.Int("skipped", skipped),
	)
	return records, nil
}

// LoadAll loads reviews then emails, preserving file order within each
// source. Returns all normalized records.
func LoadAll(reviewsPath, emailsPath string) ([]model.FeedbackRecord, error) {
	reviews, err := LoadReviews(reviewsPath)
	if err != nil {
		return nil, err
	}
	emails, err := LoadEmails(emailsPath)
	if err != nil {
		return nil, err
	}
	return append(reviews, emails...), nil
}

var errEmptyFile = eris.New("ingest: empty file")

func newDecoder(r io.Reader) (*csvutil.Decoder, error) {
	cr := csv.NewReader(r)
	cr.LazyQuotes = true
	cr.FieldsPerRecord = -1

	dec, err := csvutil.NewDecoder(cr)
	if err != nil {
		if err == io.EOF {
			return nil, errEmptyFile
		}
		return nil, err
	}
	return dec, nil
}

func reviewToRecord(row reviewRow) (model.FeedbackRecord, error) {
	rating := 0
	if s := strings.TrimSpace(row.Rating); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			return model.FeedbackRecord{}, eris.Wrapf(err, "ingest: rating %q", s)
		}
		rating = n
	}

	return model.NewFeedbackRecord(model.FeedbackRecord{
		SourceID:   strings.TrimSpace(row.ReviewID),
		SourceType: model.SourceAppStoreReview,
		Text:       normalize(row.ReviewText),
		Platform:   strings.TrimSpace(row.Platform),
		Rating:     rating,
		AppVersion: strings.TrimSpace(row.AppVersion),
		UserName:   normalize(row.UserName),
		Date:       strings.TrimSpace(row.Date),
	})
}

func emailToRecord(row emailRow) (model.FeedbackRecord, error) {
	return model.NewFeedbackRecord(model.FeedbackRecord{
		SourceID:    strings.TrimSpace(row.EmailID),
		SourceType:  model.SourceEmail,
		Text:        normalize(row.Body),
		Subject:     normalize(row.Subject),
		SenderEmail: strings.TrimSpace(row.SenderEmail),
		Timestamp:   strings.TrimSpace(row.Timestamp),
		Priority:    strings.TrimSpace(row.Priority),
	})
}

// normalize applies Unicode NFC so byte-level comparisons and downstream
// prompts see a single canonical form.
func normalize(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}
