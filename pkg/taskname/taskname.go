package taskname

const (
	// Kickback tasks
	KickbackRecordSale      = "kickback:sale:record"
	KickbackExpireCampaigns = "kickback:campaign:expire"
)
