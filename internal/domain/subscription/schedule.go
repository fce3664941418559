package subscription

import (
	"fmt"
	"time"

	"github.com/mensalize/billing-api/internal/types"
)

// DefaultDueDay is used when the caller does not pick a day of the month.
const DefaultDueDay = 10

// MaxDueDay caps the due day at 28 so every month has the chosen day.
const MaxDueDay = 28

var monthNamesPT = [...]string{
	"Janeiro", "Fevereiro", "Março", "Abril", "Maio", "Junho",
	"Julho", "Agosto", "Setembro", "Outubro", "Novembro", "Dezembro",
}

// ScheduleItem is one installment of a subscription's billing year.
type ScheduleItem struct {
	DueDate     time.Time
	Description string
}

// BuildSchedule front-loads exactly one year of billing: {12,4,2,1}
// installments for monthly/quarterly/semiannual/annual cadence. Each due
// date lands on dueDay of the month reached by striding from the start
// date's month; dates are UTC midnights.
func BuildSchedule(periodicity types.Periodicity, startDate time.Time, dueDay int) []ScheduleItem {
	count, stride := periodicity.Installments()
	if count == 0 {
		return nil
	}

	// Anchor on the first of the start month so the month arithmetic never
	// rolls over on short months.
	base := time.Date(startDate.Year(), startDate.Month(), 1, 0, 0, 0, 0, time.UTC)

	items := make([]ScheduleItem, 0, count)
	for i := 0; i < count; i++ {
		target := base.AddDate(0, i*stride, 0)
		due := time.Date(target.Year(), target.Month(), dueDay, 0, 0, 0, 0, time.UTC)
		items = append(items, ScheduleItem{
			DueDate: due,
			Description: fmt.Sprintf("Assinatura %s (%d/%d) - %s/%d",
				periodicity.Label(), i+1, count, monthNamesPT[target.Month()-1], target.Year()),
		})
	}
	return items
}
