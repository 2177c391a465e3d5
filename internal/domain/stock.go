package domain

// LowStockThreshold returns the pill count under which the remaining stock no
// longer covers days of dosing.
func LowStockThreshold(med *Medication, days int) int {
	pills := med.PillsPerDose
	if pills < 1 {
		pills = 1
	}
	doses := med.DosesPerDay
	if doses < 1 {
		doses = 1
	}
	return doses * pills * days
}

// ApplyDose returns the stock remaining after one dose, floored at zero.
func ApplyDose(stock, pillsPerDose int) int {
	if pillsPerDose < 1 {
		pillsPerDose = 1
	}
	stock -= pillsPerDose
	if stock < 0 {
		return 0
	}
	return stock
}

// CrossedLowStock reports whether a decrement from prev to next crossed the
// threshold while the one-shot notification flag was still clear. The flag
// fires exactly once per depletion cycle; replenishing above the threshold
// re-arms it.
func CrossedLowStock(prev, next, threshold int, notified bool) bool {
	return !notified && prev > threshold && next <= threshold
}
