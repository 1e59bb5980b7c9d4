package scoring

import "time"

// The scoring tables are indexed by training-year age bracket, so age is
// anchored to the start of the financial year (1 April) rather than the
// participant's actual birthday. Both dates are resolved to calendar-day
// parts in Singapore local time so the result does not drift with the
// caller's time zone.

const financialYearStartMonth = time.April

var singaporeZone = time.FixedZone("Asia/Singapore", 8*60*60)

// FinancialYearAge computes the participant's age as of the start of the
// financial year containing testDate.
func FinancialYearAge(testDate, dateOfBirth time.Time) int {
	testYear, testMonth, _ := testDate.In(singaporeZone).Date()
	birthYear, birthMonth, birthDay := dateOfBirth.In(singaporeZone).Date()

	financialYearStartYear := testYear
	if testMonth < financialYearStartMonth {
		financialYearStartYear--
	}

	age := financialYearStartYear - birthYear

	// Birthday not yet reached relative to the fixed 1 April anchor.
	if birthMonth > financialYearStartMonth || (birthMonth == financialYearStartMonth && birthDay > 1) {
		age--
	}
	return age
}
