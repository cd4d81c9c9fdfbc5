package postgres

import (
	"time"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/jinford/mevzuat-rag/internal/core/search"
)

// TimeToPgtype converts time.Time to pgtype.Timestamptz
func TimeToPgtype(t time.Time) pgtype.Timestamptz {
	return pgtype.Timestamptz{Time: t, Valid: true}
}

// PgtypeToTime converts pgtype.Timestamptz to time.Time
func PgtypeToTime(t pgtype.Timestamptz) time.Time {
	if !t.Valid {
		return time.Time{}
	}
	return t.Time.UTC()
}

// StringPtrToPgtext converts *string to pgtype.Text
func StringPtrToPgtext(s *string) pgtype.Text {
	if s == nil {
		return pgtype.Text{}
	}
	return pgtype.Text{String: *s, Valid: true}
}

// filterArgs converts a search filter into nullable query parameters
func filterArgs(f search.Filter) (kind, lawType, lawName pgtype.Text) {
	if f.Kind != nil {
		kind = pgtype.Text{String: string(*f.Kind), Valid: true}
	}
	if f.DocumentType != nil {
		lawType = pgtype.Text{String: string(*f.DocumentType), Valid: true}
	}
	return kind, lawType, StringPtrToPgtext(f.DocumentName)
}
