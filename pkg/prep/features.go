package prep

import (
	"errors"
	"fmt"

	"github.com/malbeclabs/fraudprep/pkg/frame"
)

const (
	ColumnUserID               = "user_id"
	ColumnPurchaseTime         = "purchase_time"
	ColumnPurchaseHour         = "purchase_hour"
	ColumnPurchaseDayOfWeek    = "purchase_day_of_week"
	ColumnUserTransactionCount = "user_transaction_count"
)

var ErrNoUserID = errors.New("user_id column is required")

// EngineerFeatures adds purchase_hour and purchase_day_of_week (Monday is 0)
// when purchase_time is present, and user_transaction_count, the number of
// rows sharing each row's user_id. Rows with a missing user_id get a missing
// count.
func EngineerFeatures(f *frame.Frame) (*frame.Frame, error) {
	if !f.Has(ColumnUserID) {
		return nil, ErrNoUserID
	}
	users, _ := f.Column(ColumnUserID)
	out := f.Clone()

	if f.Has(ColumnPurchaseTime) {
		times, _ := f.Column(ColumnPurchaseTime)
		hours := make([]any, len(times))
		days := make([]any, len(times))
		for i, v := range times {
			if frame.IsMissing(v) {
				continue
			}
			t, err := ParseTime(v)
			if err != nil {
				return nil, fmt.Errorf("failed to read %s row %d: %w", ColumnPurchaseTime, i, err)
			}
			hours[i] = int64(t.Hour())
			days[i] = int64((int(t.Weekday()) + 6) % 7)
		}
		if err := out.SetColumn(ColumnPurchaseHour, hours); err != nil {
			return nil, err
		}
		if err := out.SetColumn(ColumnPurchaseDayOfWeek, days); err != nil {
			return nil, err
		}
	}

	counts := make(map[string]int64)
	for _, v := range users {
		if !frame.IsMissing(v) {
			counts[frame.FormatValue(v)]++
		}
	}
	col := make([]any, len(users))
	for i, v := range users {
		if !frame.IsMissing(v) {
			col[i] = counts[frame.FormatValue(v)]
		}
	}
	if err := out.SetColumn(ColumnUserTransactionCount, col); err != nil {
		return nil, err
	}
	return out, nil
}
