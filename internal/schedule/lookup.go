package schedule

import (
	"context"
	"strings"
	"time"

	"github.com/JawadKotaichh/aubus/internal/domain"
)

// Source resolves one weekday's Day for a driver, backed by storage.
type Source interface {
	GetDriverDay(ctx context.Context, driverID, weekday string) (Day, error)
}

// Lookup adapts a Source into the selector.ScheduleLookup capability.
type Lookup struct {
	Source Source
}

func NewLookup(source Source) *Lookup {
	return &Lookup{Source: source}
}

func (l *Lookup) WindowStartToday(ctx context.Context, driverID string, direction domain.Direction, ref time.Time) (time.Time, bool, error) {
	weekday := strings.ToLower(ref.Weekday().String())
	day, err := l.Source.GetDriverDay(ctx, driverID, weekday)
	if err != nil {
		return time.Time{}, false, err
	}
	start, set := WindowStartToday(day, ref, direction == domain.DirectionToCampus)
	return start, set, nil
}
