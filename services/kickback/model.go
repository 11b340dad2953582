package kickback

import (
	"time"

	"github.com/shopspring/decimal"
)

type ParticipationStatus string

const (
	ParticipationActive    ParticipationStatus = "ACTIVE"
	ParticipationCompleted ParticipationStatus = "COMPLETED"
	ParticipationExpired   ParticipationStatus = "EXPIRED"
)

type EarningStatus string

const (
	EarningPending  EarningStatus = "PENDING"
	EarningApproved EarningStatus = "APPROVED"
	EarningRejected EarningStatus = "REJECTED"
	EarningExpired  EarningStatus = "EXPIRED"
)

// Participation is a retailer's running totals within one campaign.
// TotalEarnedPoints always equals ApprovedPoints + PendingPoints.
type Participation struct {
	ID                string              `gorm:"column:id;primaryKey;type:varchar(32)" json:"id"`
	CampaignID        string              `gorm:"column:campaign_id;type:varchar(32);not null;uniqueIndex:ux_participation_campaign_retailer" json:"campaignId"`
	RetailerEmail     string              `gorm:"column:retailer_email;type:varchar(255);not null;uniqueIndex:ux_participation_campaign_retailer;index" json:"retailerEmail"`
	RetailerName      string              `gorm:"column:retailer_name;type:varchar(255)" json:"retailerName"`
	TotalSales        decimal.Decimal     `gorm:"column:total_sales;type:numeric(20,2);not null" json:"totalSales"`
	TotalEarnedPoints decimal.Decimal     `gorm:"column:total_earned_points;type:numeric(20,2);not null" json:"totalEarnedPoints"`
	ApprovedPoints    decimal.Decimal     `gorm:"column:approved_points;type:numeric(20,2);not null" json:"approvedPoints"`
	PendingPoints     decimal.Decimal     `gorm:"column:pending_points;type:numeric(20,2);not null" json:"pendingPoints"`
	TargetReached     bool                `gorm:"column:target_reached;not null" json:"targetReached"`
	Status            ParticipationStatus `gorm:"column:status;type:varchar(20);not null" json:"status"`
	CreatedAt         time.Time           `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
	UpdatedAt         time.Time           `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`
}

func (Participation) TableName() string { return "kickback_participations" }

// Earning is one calendar day of attributed sales for a retailer within a
// campaign. EarnedPoints is capped by the sales target, DailySalesAmount is
// not.
type Earning struct {
	ID               string          `gorm:"column:id;primaryKey;type:varchar(32)" json:"id"`
	CampaignID       string          `gorm:"column:campaign_id;type:varchar(32);not null;uniqueIndex:ux_earning_day" json:"campaignId"`
	RetailerEmail    string          `gorm:"column:retailer_email;type:varchar(255);not null;uniqueIndex:ux_earning_day" json:"retailerEmail"`
	RetailerName     string          `gorm:"column:retailer_name;type:varchar(255)" json:"retailerName"`
	EarningDate      string          `gorm:"column:earning_date;type:varchar(10);not null;uniqueIndex:ux_earning_day" json:"earningDate"`
	DailySalesAmount decimal.Decimal `gorm:"column:daily_sales_amount;type:numeric(20,2);not null" json:"dailySalesAmount"`
	EarnedPoints     decimal.Decimal `gorm:"column:earned_points;type:numeric(20,2);not null" json:"earnedPoints"`
	CumulativeSales  decimal.Decimal `gorm:"column:cumulative_sales;type:numeric(20,2);not null" json:"cumulativeSales"`
	Status           EarningStatus   `gorm:"column:status;type:varchar(20);not null;index" json:"status"`
	ApprovedBy       string          `gorm:"column:approved_by;type:varchar(255)" json:"approvedBy,omitempty"`
	ApprovedAt       *time.Time      `gorm:"column:approved_at" json:"approvedAt,omitempty"`
	RejectionReason  string          `gorm:"column:rejection_reason;type:text" json:"rejectionReason,omitempty"`
	CreatedAt        time.Time       `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
	UpdatedAt        time.Time       `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`
}

func (Earning) TableName() string { return "kickback_earnings" }

// Models lists the tables owned by this package.
func Models() []any {
	return []any{&Participation{}, &Earning{}}
}
