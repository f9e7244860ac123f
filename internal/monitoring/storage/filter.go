package storage

import (
	"fmt"
	"strconv"
	"time"

	"anomaly-watchdog/internal/monitoring/models"
)

// ParseEventFilter monta o filtro a partir de parâmetros nomeados.
// since/until aceitam RFC3339 ou duração relativa a now ("30m", "24h").
func ParseEventFilter(get func(string) string, now time.Time) (EventFilter, error) {
	filter := EventFilter{
		Metric:  get("metric"),
		Subtype: models.AnomalySubtype(get("subtype")),
	}

	if d := get("detector"); d != "" {
		kind, err := models.ParseDetectorKind(d)
		if err != nil {
			return filter, err
		}
		filter.Detector = kind
	}

	var err error
	if filter.Since, err = parseTimeParam(get("since"), now); err != nil {
		return filter, fmt.Errorf("invalid since: %w", err)
	}
	if filter.Until, err = parseTimeParam(get("until"), now); err != nil {
		return filter, fmt.Errorf("invalid until: %w", err)
	}

	if l := get("limit"); l != "" {
		limit, err := strconv.Atoi(l)
		if err != nil || limit <= 0 {
			return filter, fmt.Errorf("invalid limit %q", l)
		}
		filter.Limit = limit
	}

	return filter, nil
}

func parseTimeParam(value string, now time.Time) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return time.Time{}, fmt.Errorf("expected RFC3339 or duration, got %q", value)
	}
	return now.Add(-d), nil
}
