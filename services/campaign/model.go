package campaign

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type Status string

const (
	StatusActive    Status = "ACTIVE"
	StatusCompleted Status = "COMPLETED"
	StatusExpired   Status = "EXPIRED"
	StatusCancelled Status = "CANCELLED"
)

func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusCompleted, StatusExpired, StatusCancelled:
		return true
	}
	return false
}

// AllProducts as a campaign product id matches every sale.
const AllProducts = "all_products"

// DayLayout is the storage and wire format of calendar days.
const DayLayout = "2006-01-02"

// Campaign ties a product to a kickback rate and a sales target for a
// window of DurationDays starting at StartDate. StartDate and EndDate are
// UTC midnights of calendar days.
type Campaign struct {
	ID           string          `gorm:"column:id;primaryKey;type:varchar(32)" json:"id"`
	Code         string          `gorm:"column:code;type:varchar(32);index" json:"code"`
	Name         string          `gorm:"column:name;type:varchar(255);not null" json:"campaignName"`
	Description  string          `gorm:"column:description;type:text" json:"description,omitempty"`
	ProductID    string          `gorm:"column:product_id;type:varchar(255);not null" json:"productId"`
	ProductName  string          `gorm:"column:product_name;type:varchar(255)" json:"productName,omitempty"`
	ProductPrice decimal.Decimal `gorm:"column:product_price;type:numeric(20,2)" json:"productPrice"`
	KickbackRate decimal.Decimal `gorm:"column:kickback_rate;type:numeric(9,4);not null" json:"kickbackRate"`
	SalesTarget  decimal.Decimal `gorm:"column:sales_target;type:numeric(20,2);not null" json:"salesTarget"`
	DurationDays int             `gorm:"column:duration_days;not null" json:"durationDays"`
	StartDate    time.Time       `gorm:"column:start_date;not null" json:"startDate"`
	EndDate      time.Time       `gorm:"column:end_date;not null;index" json:"endDate"`
	Status       Status          `gorm:"column:status;type:varchar(20);not null;index" json:"status"`
	Metadata     datatypes.JSON  `gorm:"column:metadata" json:"metadata,omitempty"`
	CreatedBy    string          `gorm:"column:created_by;type:varchar(255)" json:"createdBy,omitempty"`
	CreatedAt    time.Time       `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
	UpdatedAt    time.Time       `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`

	// Retailers is the eligibility set; empty means open to every retailer.
	Retailers []string `gorm:"-" json:"retailerIds"`
}

func (Campaign) TableName() string { return "campaigns" }

// CampaignRetailer is one member of a campaign's eligibility set.
type CampaignRetailer struct {
	CampaignID    string    `gorm:"column:campaign_id;primaryKey;type:varchar(32)"`
	RetailerEmail string    `gorm:"column:retailer_email;primaryKey;type:varchar(255)"`
	CreatedAt     time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (CampaignRetailer) TableName() string { return "campaign_retailers" }

func (c *Campaign) IsActive() bool {
	return c.Status == StatusActive
}

// CoversDay reports whether day falls inside [StartDate, EndDate].
func (c *Campaign) CoversDay(day time.Time) bool {
	return !day.Before(c.StartDate) && !day.After(c.EndDate)
}

// IsEligible is exact membership of the normalized email in Retailers.
func (c *Campaign) IsEligible(retailerEmail string) bool {
	if len(c.Retailers) == 0 {
		return true
	}
	email := NormalizeEmail(retailerEmail)
	for _, r := range c.Retailers {
		if r == email {
			return true
		}
	}
	return false
}

// DaysRemaining counts whole days from today to EndDate, never negative.
func (c *Campaign) DaysRemaining(today time.Time) int {
	days := int(c.EndDate.Sub(today).Hours() / 24)
	if days < 0 {
		return 0
	}
	return days
}

// MatchesProduct applies the product rule. Outside strict mode the match is
// deliberately loose: case-insensitive equality or substring in either
// direction, so "cola" matches a campaign for "Coca-Cola 0.5L".
func MatchesProduct(campaignProduct, saleProduct string, strict bool) bool {
	if campaignProduct == AllProducts {
		return true
	}
	a := strings.ToLower(strings.TrimSpace(campaignProduct))
	b := strings.ToLower(strings.TrimSpace(saleProduct))
	if a == "" || b == "" {
		return false
	}
	if a == b {
		return true
	}
	if strict {
		return false
	}
	return strings.Contains(a, b) || strings.Contains(b, a)
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NormalizeRetailers trims, lower-cases and de-duplicates, keeping order.
func NormalizeRetailers(emails []string) []string {
	out := make([]string, 0, len(emails))
	seen := make(map[string]struct{}, len(emails))
	for _, e := range emails {
		n := NormalizeEmail(e)
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}

// Day returns the calendar day of t in loc as a UTC midnight.
func Day(t time.Time, loc *time.Location) time.Time {
	if loc != nil {
		t = t.In(loc)
	}
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func DayKey(day time.Time) string {
	return day.UTC().Format(DayLayout)
}

func ParseDay(s string) (time.Time, error) {
	return time.ParseInLocation(DayLayout, strings.TrimSpace(s), time.UTC)
}
