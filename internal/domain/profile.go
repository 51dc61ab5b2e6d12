package domain

import "time"

// ZodiacSign is one of the twelve astrological signs stored on a profile.
type ZodiacSign string

const (
	SignAries       ZodiacSign = "aries"
	SignTaurus      ZodiacSign = "taurus"
	SignGemini      ZodiacSign = "gemini"
	SignCancer      ZodiacSign = "cancer"
	SignLeo         ZodiacSign = "leo"
	SignVirgo       ZodiacSign = "virgo"
	SignLibra       ZodiacSign = "libra"
	SignScorpio     ZodiacSign = "scorpio"
	SignSagittarius ZodiacSign = "sagittarius"
	SignCapricorn   ZodiacSign = "capricorn"
	SignAquarius    ZodiacSign = "aquarius"
	SignPisces      ZodiacSign = "pisces"
)

// AllSigns lists every zodiac sign in calendar order.
var AllSigns = []ZodiacSign{
	SignAries, SignTaurus, SignGemini, SignCancer,
	SignLeo, SignVirgo, SignLibra, SignScorpio,
	SignSagittarius, SignCapricorn, SignAquarius, SignPisces,
}

// Valid reports whether s is one of the known signs.
func (s ZodiacSign) Valid() bool {
	for _, sign := range AllSigns {
		if s == sign {
			return true
		}
	}
	return false
}

// Profile represents an application user stored in the database.
// Credits never go negative; the database enforces the invariant and
// every mutation is a single conditional statement.
type Profile struct {
	UserID         string     `json:"user_id"`
	DisplayName    string     `json:"display_name"`
	ZodiacSign     ZodiacSign `json:"zodiac_sign"`
	Credits        int64      `json:"credits"`
	IsPremium      bool       `json:"is_premium"`
	LastDailyBonus *time.Time `json:"last_daily_bonus,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// Balance is the spendable view of a profile handed to clients.
type Balance struct {
	Credits   int64 `json:"credits"`
	IsPremium bool  `json:"is_premium"`
}

// Balance returns the spendable view of the profile.
func (p *Profile) Balance() Balance {
	if p == nil {
		return Balance{}
	}
	return Balance{Credits: p.Credits, IsPremium: p.IsPremium}
}

// CanAfford reports whether a spend of amount would succeed.
// Premium accounts bypass the credit check entirely.
func (p *Profile) CanAfford(amount int64) bool {
	if p == nil {
		return false
	}
	return p.IsPremium || p.Credits >= amount
}

// ClaimedBonusOn reports whether the daily bonus was already claimed on the
// given UTC calendar day.
func (p *Profile) ClaimedBonusOn(day time.Time) bool {
	if p == nil || p.LastDailyBonus == nil {
		return false
	}

	y1, m1, d1 := p.LastDailyBonus.UTC().Date()
	y2, m2, d2 := day.UTC().Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}
