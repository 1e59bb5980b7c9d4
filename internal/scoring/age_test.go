package scoring

import (
	"testing"
	"time"
)

func TestFinancialYearAge(t *testing.T) {
	tests := []struct {
		name        string
		testDate    time.Time
		dateOfBirth time.Time
		expectedAge int
	}{
		{
			name:        "birthday on financial year start",
			testDate:    time.Date(2024, time.April, 1, 0, 0, 0, 0, time.UTC),
			dateOfBirth: time.Date(2000, time.April, 1, 0, 0, 0, 0, time.UTC),
			expectedAge: 24,
		},
		{
			name:        "test before april uses previous financial year",
			testDate:    time.Date(2024, time.March, 31, 0, 0, 0, 0, time.UTC),
			dateOfBirth: time.Date(2000, time.April, 1, 0, 0, 0, 0, time.UTC),
			expectedAge: 23,
		},
		{
			name:        "birthday after anchor subtracts a year",
			testDate:    time.Date(2024, time.June, 15, 0, 0, 0, 0, time.UTC),
			dateOfBirth: time.Date(2000, time.April, 2, 0, 0, 0, 0, time.UTC),
			expectedAge: 23,
		},
		{
			name:        "birthday before anchor keeps full years",
			testDate:    time.Date(2024, time.June, 15, 0, 0, 0, 0, time.UTC),
			dateOfBirth: time.Date(2000, time.February, 10, 0, 0, 0, 0, time.UTC),
			expectedAge: 24,
		},
		{
			name:        "december birthday mid training year",
			testDate:    time.Date(2024, time.December, 1, 0, 0, 0, 0, time.UTC),
			dateOfBirth: time.Date(2002, time.December, 25, 0, 0, 0, 0, time.UTC),
			expectedAge: 21,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			age := FinancialYearAge(tc.testDate, tc.dateOfBirth)
			if age != tc.expectedAge {
				t.Fatalf("expected age %d, got %d", tc.expectedAge, age)
			}
		})
	}
}

func TestFinancialYearAgeIsTimezoneStable(t *testing.T) {
	dateOfBirth := time.Date(2000, time.April, 1, 0, 0, 0, 0, singaporeZone)
	conductDate := time.Date(2024, time.April, 1, 0, 0, 0, 0, singaporeZone)

	zones := []*time.Location{
		time.UTC,
		time.FixedZone("UTC-11", -11*60*60),
		time.FixedZone("UTC+14", 14*60*60),
	}

	expected := FinancialYearAge(conductDate, dateOfBirth)
	for _, zone := range zones {
		age := FinancialYearAge(conductDate.In(zone), dateOfBirth.In(zone))
		if age != expected {
			t.Fatalf("age in zone %v = %d, want %d", zone, age, expected)
		}
	}
}
