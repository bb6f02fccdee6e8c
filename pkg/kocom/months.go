// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 The kocomstat Authors

package kocom

import (
	"strings"
	"time"
)

// BillingMonths returns the first day of two months ago, last month and this
// month, in that order. Arithmetic starts from the first of the month so that
// day overflow (e.g. March 31 minus one month) can never skip a month.
func BillingMonths(now time.Time) [3]time.Time {
	first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	return [3]time.Time{
		first.AddDate(0, -2, 0),
		first.AddDate(0, -1, 0),
		first,
	}
}

// MonthLabels returns the billing months formatted as YYYYMM, oldest first.
func MonthLabels(now time.Time) [3]string {
	var labels [3]string
	for i, m := range BillingMonths(now) {
		labels[i] = m.Format("200601")
	}
	return labels
}

// layout1DateField is the comma-joined month list of a Layout1 request.
func layout1DateField(now time.Time) string {
	labels := MonthLabels(now)
	return strings.Join(labels[:], ",")
}

// layout3DateField is the day-zero timestamp of a Layout3 request.
func layout3DateField(now time.Time) string {
	return now.Format("2006-01") + "-00 00:00:00"
}
