package recall

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Offset is a calendar delta parsed from a timing label. Months and years
// add calendar units, so "1개월 후" from Jan 31 lands on Feb 28/29 rather
// than a fixed 30 days out.
type Offset struct {
	Days   int
	Months int
	Years  int
}

// From returns base shifted by the offset.
func (o Offset) From(base time.Time) time.Time {
	return base.AddDate(o.Years, o.Months, o.Days)
}

var timingPattern = regexp.MustCompile(`^(\d+)\s*(일|주|개월|달|년|day|days|week|weeks|month|months|year|years)\s*(후)?$`)

// ParseTiming converts a human timing label into a calendar offset. Both
// Korean ("1주 후", "1개월 후", "6개월 후") and English ("1 week",
// "6 months") forms are accepted.
func ParseTiming(label string) (Offset, error) {
	m := timingPattern.FindStringSubmatch(strings.ToLower(strings.TrimSpace(label)))
	if m == nil {
		return Offset{}, ErrUnknownTiming
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n <= 0 {
		return Offset{}, ErrUnknownTiming
	}

	switch m[2] {
	case "일", "day", "days":
		return Offset{Days: n}, nil
	case "주", "week", "weeks":
		return Offset{Days: n * 7}, nil
	case "개월", "달", "month", "months":
		return Offset{Months: n}, nil
	case "년", "year", "years":
		return Offset{Years: n}, nil
	}
	return Offset{}, ErrUnknownTiming
}

// RenderMessage substitutes the patient-name placeholders in a template.
// Both {환자명} and {이름} are honored.
func RenderMessage(template, patientName string) string {
	out := strings.ReplaceAll(template, "{환자명}", patientName)
	return strings.ReplaceAll(out, "{이름}", patientName)
}

// DefaultRules returns the stock recall sequence seeded for a new treatment:
// a one-week healing check, a one-month follow-up, and a six-month checkup.
func DefaultRules(treatment string) []Rule {
	return []Rule{
		{
			Treatment: treatment,
			Timing:    "1주 후",
			Template:  "{환자명}님, 치료 부위는 괜찮으신가요? 불편하신 점이 있으면 연락 주세요.",
			Enabled:   true,
			SortOrder: 1,
		},
		{
			Treatment: treatment,
			Timing:    "1개월 후",
			Template:  "{환자명}님, 치료 후 한 달이 지났습니다. 경과 확인을 위해 내원을 추천드립니다.",
			Enabled:   true,
			SortOrder: 2,
		},
		{
			Treatment: treatment,
			Timing:    "6개월 후",
			Template:  "{환자명}님, 정기 검진 시기가 되었습니다. 편하신 시간에 예약 부탁드립니다.",
			Enabled:   true,
			SortOrder: 3,
		},
	}
}
