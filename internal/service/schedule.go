package service

import (
	"fmt"
	"strings"
	"time"
)

// Условная длина месяца подписки.
const daysPerMonth = 30

// ScheduleDeliveries возвращает даты доставок подписки: deliveriesPerMonth × months штук,
// i-я доставка через floor(30·i/deliveriesPerMonth) суток после start.
// Значения меньше 1 считаются равными 1.
func ScheduleDeliveries(start time.Time, deliveriesPerMonth, months int) []time.Time {
	if deliveriesPerMonth < 1 {
		deliveriesPerMonth = 1
	}
	if months < 1 {
		months = 1
	}

	total := deliveriesPerMonth * months
	dates := make([]time.Time, 0, total)
	for i := 0; i < total; i++ {
		days := daysPerMonth * i / deliveriesPerMonth
		dates = append(dates, start.Add(time.Duration(days)*24*time.Hour))
	}
	return dates
}

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
	"02.01.2006",
}

// ParseDate разбирает дату доставки в одном из поддерживаемых форматов.
func ParseDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: unsupported date %q", ErrValidation, value)
}

func positiveOrOne(v *int) int {
	if v == nil || *v < 1 {
		return 1
	}
	return *v
}
